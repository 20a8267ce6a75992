package pki

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/nacl/box"
)

// Mode selects how a message is encrypted on the air.
type Mode uint8

const (
	// ModeChannelPSK encrypts with the shared channel key; any node on
	// the channel can read the message.
	ModeChannelPSK Mode = iota
	// ModePKI encrypts end to end for a single peer that has published
	// a public key.
	ModePKI
)

// String returns the wire name of the mode.
func (m Mode) String() string {
	switch m {
	case ModeChannelPSK:
		return "psk"
	case ModePKI:
		return "pki"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// ModeForKey picks the strongest mode available for a peer: PKI when a
// public key is known, channel PSK otherwise.
func ModeForKey(peerPublicKey []byte) Mode {
	if len(peerPublicKey) == KeySize {
		return ModePKI
	}
	return ModeChannelPSK
}

// Seal encrypts a payload for a peer using NaCl box. The returned
// nonce must travel with the ciphertext.
func Seal(plaintext []byte, peerPublicKey []byte, kp *KeyPair) ([]byte, Nonce, error) {
	var nonce Nonce
	if len(plaintext) == 0 {
		return nil, nonce, errors.New("empty payload")
	}
	if len(peerPublicKey) != KeySize {
		return nil, nonce, ErrBadPublicKey
	}
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, nonce, err
	}

	var peer [KeySize]byte
	copy(peer[:], peerPublicKey)

	sealed := box.Seal(nil, plaintext, (*[24]byte)(&nonce), &peer, &kp.Private)
	return sealed, nonce, nil
}

// Open decrypts a payload sealed by a peer.
func Open(sealed []byte, nonce Nonce, peerPublicKey []byte, kp *KeyPair) ([]byte, error) {
	if len(peerPublicKey) != KeySize {
		return nil, ErrBadPublicKey
	}

	var peer [KeySize]byte
	copy(peer[:], peerPublicKey)

	plaintext, ok := box.Open(nil, sealed, (*[24]byte)(&nonce), &peer, &kp.Private)
	if !ok {
		return nil, ErrDecryptFailed
	}
	return plaintext, nil
}
