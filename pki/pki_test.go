package pki

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePublicKey(t *testing.T) {
	// Empty means the node has not published a key.
	key, err := ParsePublicKey("")
	require.NoError(t, err)
	assert.Nil(t, key)

	raw := make([]byte, KeySize)
	for i := range raw {
		raw[i] = byte(i)
	}
	key, err = ParsePublicKey(base64.StdEncoding.EncodeToString(raw))
	require.NoError(t, err)
	assert.Equal(t, raw, key)

	_, err = ParsePublicKey("%%%not-base64%%%")
	require.ErrorIs(t, err, ErrBadPublicKey)

	_, err = ParsePublicKey(base64.StdEncoding.EncodeToString([]byte("short")))
	require.ErrorIs(t, err, ErrBadPublicKey)
}

func TestModeForKey(t *testing.T) {
	assert.Equal(t, ModeChannelPSK, ModeForKey(nil))
	assert.Equal(t, ModeChannelPSK, ModeForKey(make([]byte, 16)))
	assert.Equal(t, ModePKI, ModeForKey(make([]byte, KeySize)))

	assert.Equal(t, "psk", ModeChannelPSK.String())
	assert.Equal(t, "pki", ModePKI.String())
}

func TestFromSecretKeyMatchesGenerated(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	restored, err := FromSecretKey(kp.Private)
	require.NoError(t, err)
	assert.Equal(t, kp.Public, restored.Public)

	var zero [KeySize]byte
	_, err = FromSecretKey(zero)
	assert.Error(t, err)
}

func TestSealOpenRoundTrip(t *testing.T) {
	alice, err := GenerateKeyPair()
	require.NoError(t, err)
	bob, err := GenerateKeyPair()
	require.NoError(t, err)

	plaintext := []byte("T: 72F 7.0 snr/1 hop")
	sealed, nonce, err := Seal(plaintext, bob.Public[:], alice)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, sealed)

	opened, err := Open(sealed, nonce, alice.Public[:], bob)
	require.NoError(t, err)
	assert.Equal(t, plaintext, opened)
}

func TestOpenRejectsWrongKeyAndTamper(t *testing.T) {
	alice, err := GenerateKeyPair()
	require.NoError(t, err)
	bob, err := GenerateKeyPair()
	require.NoError(t, err)
	eve, err := GenerateKeyPair()
	require.NoError(t, err)

	sealed, nonce, err := Seal([]byte("hello"), bob.Public[:], alice)
	require.NoError(t, err)

	_, err = Open(sealed, nonce, alice.Public[:], eve)
	require.ErrorIs(t, err, ErrDecryptFailed)

	sealed[0] ^= 0xff
	_, err = Open(sealed, nonce, alice.Public[:], bob)
	require.ErrorIs(t, err, ErrDecryptFailed)
}

func TestSealRejectsBadInput(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	_, _, err = Seal(nil, kp.Public[:], kp)
	assert.Error(t, err, "empty payload")

	_, _, err = Seal([]byte("x"), make([]byte, 16), kp)
	require.ErrorIs(t, err, ErrBadPublicKey)
}
