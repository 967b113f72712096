// Package security seals account credentials at rest.
package security

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	keySize   = 32
	nonceSize = 24

	// sealedPrefix marks values produced by Seal.
	sealedPrefix = "sb1:"
)

var (
	ErrInvalidKey    = errors.New("token key must be 32 bytes encoded as base64")
	ErrDecryptFailed = errors.New("failed to open sealed token")
	ErrSealedNoKey   = errors.New("token is sealed but no token key is configured")
)

// Sealer encrypts and decrypts tokens with NaCl secretbox.
// A Sealer without a key passes tokens through unchanged.
type Sealer struct {
	key *[keySize]byte
}

// NewSealer creates a Sealer from a base64 encoded key. An empty key disables sealing.
func NewSealer(encodedKey string) (*Sealer, error) {
	if encodedKey == "" {
		return &Sealer{}, nil
	}

	raw, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil || len(raw) != keySize {
		return nil, ErrInvalidKey
	}

	var key [keySize]byte
	copy(key[:], raw)

	return &Sealer{key: &key}, nil
}

// Enabled reports whether tokens are sealed.
func (s *Sealer) Enabled() bool {
	return s != nil && s.key != nil
}

// Seal encrypts a token.
func (s *Sealer) Seal(token string) (string, error) {
	if !s.Enabled() {
		return token, nil
	}

	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	box := secretbox.Seal(nonce[:], []byte(token), &nonce, s.key)

	return sealedPrefix + base64.RawURLEncoding.EncodeToString(box), nil
}

// Open decrypts a token produced by Seal. Plaintext tokens are returned as-is.
func (s *Sealer) Open(value string) (string, error) {
	encoded, sealed := strings.CutPrefix(value, sealedPrefix)
	if !sealed {
		return value, nil
	}

	if !s.Enabled() {
		return "", ErrSealedNoKey
	}

	box, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil || len(box) < nonceSize+secretbox.Overhead {
		return "", ErrDecryptFailed
	}

	var nonce [nonceSize]byte
	copy(nonce[:], box[:nonceSize])

	plain, ok := secretbox.Open(nil, box[nonceSize:], &nonce, s.key)
	if !ok {
		return "", ErrDecryptFailed
	}

	return string(plain), nil
}
