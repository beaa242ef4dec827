// Package credentials keeps provider OAuth tokens usable: it seals them at
// rest and refreshes expired access tokens before a sync run.
package credentials

import (
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// sealSalt is fixed so every worker derives the same key from one passphrase.
var sealSalt = []byte("kinsync/connection-tokens/v1")

var errSealedTooShort = errors.New("sealed value too short")

// DeriveKey stretches a passphrase into a 32-byte key with Argon2id.
func DeriveKey(passphrase []byte) []byte {
	return argon2.IDKey(passphrase, sealSalt, 1, 64*1024, 4, chacha20poly1305.KeySize)
}

// Sealer encrypts tokens with XChaCha20-Poly1305. A sealed value is the
// random 24-byte nonce followed by the ciphertext.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer derives the key from passphrase and returns a Sealer.
func NewSealer(passphrase string) (*Sealer, error) {
	if passphrase == "" {
		return nil, errors.New("empty seal passphrase")
	}
	key := DeriveKey([]byte(passphrase))
	defer Wipe(key)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	return &Sealer{aead: aead}, nil
}

// Wipe overwrites b with zeros. The AEAD keeps its own copy of the key.
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return s.aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (s *Sealer) Open(sealed []byte) ([]byte, error) {
	n := s.aead.NonceSize()
	if len(sealed) < n+s.aead.Overhead() {
		return nil, errSealedTooShort
	}
	out, err := s.aead.Open(nil, sealed[:n], sealed[n:], nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt token: %w", err)
	}
	return out, nil
}
