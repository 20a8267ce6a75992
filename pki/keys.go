// Package pki implements the key handling used for direct messages on
// the mesh: X25519 key pairs, peer public key parsing, and NaCl box
// sealing of payloads for peers that have published a key.
//
// Key distribution and storage are the radio firmware's job; this
// package only decides which encryption mode a send should request and
// performs the optional end-to-end seal.
package pki

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/nacl/box"
)

// KeySize is the length of an X25519 public or private key.
const KeySize = 32

// Nonce is the 24-byte random value prepended to sealed payloads.
type Nonce [24]byte

var (
	// ErrBadPublicKey indicates a peer public key that is not 32 bytes
	// of valid base64.
	ErrBadPublicKey = errors.New("bad public key")
	// ErrDecryptFailed indicates a sealed payload that did not
	// authenticate against the given keys.
	ErrDecryptFailed = errors.New("decrypt failed")
)

// KeyPair represents an X25519 key pair used for PKI-mode messages.
type KeyPair struct {
	Public  [KeySize]byte
	Private [KeySize]byte
}

// GenerateKeyPair creates a new random X25519 key pair.
func GenerateKeyPair() (*KeyPair, error) {
	publicKey, privateKey, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &KeyPair{Public: *publicKey, Private: *privateKey}, nil
}

// FromSecretKey reconstructs a key pair from a stored private key.
func FromSecretKey(secretKey [KeySize]byte) (*KeyPair, error) {
	var zero [KeySize]byte
	if secretKey == zero {
		return nil, errors.New("zero secret key")
	}

	pub, err := curve25519.X25519(secretKey[:], curve25519.Basepoint)
	if err != nil {
		return nil, err
	}

	kp := &KeyPair{Private: secretKey}
	copy(kp.Public[:], pub)
	return kp, nil
}

// ParsePublicKey decodes a base64 peer public key as published in the
// node directory. An empty string is a valid "no key" result.
func ParsePublicKey(encoded string) ([]byte, error) {
	if encoded == "" {
		return nil, nil
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPublicKey, err)
	}
	if len(raw) != KeySize {
		return nil, fmt.Errorf("%w: %d bytes", ErrBadPublicKey, len(raw))
	}
	return raw, nil
}
