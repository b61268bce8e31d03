package cryptox

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/dmitrijs2005/memokeeper/internal/logging"
)

const (
	// KeySize is the length of a field key (AES-256).
	KeySize = 32
	// NonceSize is the GCM nonce length.
	NonceSize = 12
	// TagSize is the GCM authentication tag length.
	TagSize = 16
	// EnvelopePrefix marks an encrypted field value.
	EnvelopePrefix = "v1:"
)

var (
	// ErrInvalidFormat is returned when a value does not decode as an envelope.
	ErrInvalidFormat = errors.New("invalid envelope format")
	// ErrAuthenticationFailed is returned on a GCM tag mismatch: wrong key
	// or corrupted ciphertext.
	ErrAuthenticationFailed = errors.New("authentication failed")
	// ErrEncoding is returned when the decrypted bytes are not valid UTF-8.
	ErrEncoding = errors.New("plaintext is not valid utf-8")
	// ErrInvalidKey is returned for keys that are not KeySize bytes long.
	ErrInvalidKey = errors.New("invalid key size")
)

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: %d", ErrInvalidKey, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// EncryptField encrypts a UTF-8 string with AES-256-GCM and returns the
// envelope
//
//	"v1:" + base64(nonce ‖ ciphertext ‖ tag)
//
// A fresh random 12-byte nonce is drawn on every call, so encrypting the same
// plaintext twice yields two different envelopes.
//
// Example:
//
//	env, err := cryptox.EncryptField("call the dentist", key)
//	if err != nil {
//	    return err
//	}
//	// env == "v1:Jk2c...=="
func EncryptField(plaintext string, key []byte) (string, error) {
	aead, err := newGCM(key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	// Seal appends ciphertext‖tag to nonce.
	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)

	return EnvelopePrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptField reverses EncryptField.
//
// Errors:
//   - ErrInvalidFormat: missing "v1:" prefix, bad base64, or fewer than
//     nonce+tag bytes after decoding.
//   - ErrAuthenticationFailed: the tag does not verify under key.
//   - ErrEncoding: the plaintext is not valid UTF-8.
//   - ErrInvalidKey: key is not 32 bytes.
func DecryptField(envelope string, key []byte) (string, error) {
	if !strings.HasPrefix(envelope, EnvelopePrefix) {
		return "", ErrInvalidFormat
	}

	raw, err := base64.StdEncoding.DecodeString(envelope[len(EnvelopePrefix):])
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	if len(raw) < NonceSize+TagSize {
		return "", ErrInvalidFormat
	}

	aead, err := newGCM(key)
	if err != nil {
		return "", err
	}

	plaintext, err := aead.Open(nil, raw[:NonceSize], raw[NonceSize:], nil)
	if err != nil {
		return "", ErrAuthenticationFailed
	}
	if !utf8.Valid(plaintext) {
		return "", ErrEncoding
	}

	return string(plaintext), nil
}

// IsEnvelope reports whether value carries the envelope prefix. It does not
// validate the payload.
func IsEnvelope(value string) bool {
	return strings.HasPrefix(value, EnvelopePrefix)
}

// DecryptFieldIfNeeded returns value unchanged unless it looks like an
// envelope, in which case it tries to decrypt it with key. Any failure,
// including a nil key, is logged and the original string is returned, so
// callers can always render something.
func DecryptFieldIfNeeded(ctx context.Context, log logging.Logger, value string, key []byte) string {
	if !IsEnvelope(value) {
		return value
	}
	if key == nil {
		log.Debug(ctx, "no key for encrypted field, leaving as is")
		return value
	}
	plaintext, err := DecryptField(value, key)
	if err != nil {
		log.Warn(ctx, "field decryption failed", "error", err)
		return value
	}
	return plaintext
}
