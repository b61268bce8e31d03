package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const kekInfo = "memokeeper user key wrapping v1"

// DeriveKEK derives the key-encryption key used by the backend to keep issued
// user keys encrypted in the database. secret is the server's configured
// KeyEncryptionSecret, salt is fixed per deployment.
func DeriveKEK(secret, salt []byte) ([]byte, error) {
	kek := make([]byte, KeySize)
	r := hkdf.New(sha256.New, secret, salt, []byte(kekInfo))
	if _, err := io.ReadFull(r, kek); err != nil {
		return nil, fmt.Errorf("hkdf: %w", err)
	}
	return kek, nil
}

// SealKey encrypts a user key under kek with AES-256-GCM. The result is
// nonce ‖ ciphertext ‖ tag. The owner id is bound as additional data so a
// sealed key cannot be moved between accounts.
func SealKey(userKey, kek []byte, ownerID string) ([]byte, error) {
	aead, err := newGCM(kek)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, userKey, []byte(ownerID)), nil
}

// OpenKey reverses SealKey.
func OpenKey(sealed, kek []byte, ownerID string) ([]byte, error) {
	if len(sealed) < NonceSize+TagSize {
		return nil, ErrInvalidFormat
	}
	aead, err := newGCM(kek)
	if err != nil {
		return nil, err
	}
	key, err := aead.Open(nil, sealed[:NonceSize], sealed[NonceSize:], []byte(ownerID))
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	return key, nil
}
