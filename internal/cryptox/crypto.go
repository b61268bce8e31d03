// Package cryptox contains the cryptographic primitives shared by the client
// and the server: account credential derivation, the field codec used for
// sensitive record fields, and sealing of per-user keys at rest.
package cryptox

import (
	"crypto/sha256"

	"golang.org/x/crypto/argon2"
)

// MakeVerifier hashes a derived master key into the verifier the server
// stores and compares at login.
func MakeVerifier(masterKey []byte) []byte {
	hash := sha256.Sum256(masterKey)
	return hash[:]
}

// DeriveMasterKey stretches a password with argon2id (1 pass, 64 MiB, 4 lanes)
// into a 32-byte key.
func DeriveMasterKey(password []byte, salt []byte) []byte {
	return argon2.IDKey(password, salt, 1, 64*1024, 4, 32)
}
