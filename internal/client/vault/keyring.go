package vault

import (
	"context"
	"errors"
	"io/fs"

	"github.com/99designs/keyring"
)

// KeyringConfig selects and configures the OS keychain backend.
type KeyringConfig struct {
	// Namespace becomes the keyring service name.
	Namespace string
	// Backends restricts the allowed backends; empty means the platform default order.
	Backends []keyring.BackendType
	// FileDir and FilePassword configure the encrypted-file fallback.
	FileDir      string
	FilePassword string
}

// KeyringVault stores secrets in the OS keychain.
type KeyringVault struct {
	ring keyring.Keyring
}

// OpenKeyring opens the keychain described by cfg.
func OpenKeyring(cfg KeyringConfig) (*KeyringVault, error) {
	kc := keyring.Config{
		ServiceName:     cfg.Namespace,
		AllowedBackends: cfg.Backends,
		FileDir:         cfg.FileDir,
	}
	if cfg.FilePassword != "" {
		kc.FilePasswordFunc = keyring.FixedStringPrompt(cfg.FilePassword)
	}
	ring, err := keyring.Open(kc)
	if err != nil {
		return nil, newError("open", CodeUnavailable, err)
	}
	return NewKeyringVault(ring), nil
}

// NewKeyringVault wraps an already opened keyring.
func NewKeyringVault(ring keyring.Keyring) *KeyringVault {
	return &KeyringVault{ring: ring}
}

func isMissing(err error) bool {
	return errors.Is(err, keyring.ErrKeyNotFound) || errors.Is(err, fs.ErrNotExist)
}

func (v *KeyringVault) Save(ctx context.Context, account string, secret []byte) error {
	if err := v.ring.Remove(account); err != nil && !isMissing(err) {
		return newError("save", CodeDelete, err)
	}
	item := keyring.Item{
		Key:         account,
		Data:        append([]byte(nil), secret...),
		Label:       "memokeeper field key",
		Description: "per-account encryption key",
	}
	if err := v.ring.Set(item); err != nil {
		return newError("save", CodeWrite, err)
	}
	return nil
}

func (v *KeyringVault) Load(ctx context.Context, account string) ([]byte, error) {
	item, err := v.ring.Get(account)
	if err != nil {
		if isMissing(err) {
			return nil, nil
		}
		return nil, newError("load", CodeRead, err)
	}
	return item.Data, nil
}

func (v *KeyringVault) Delete(ctx context.Context, account string) error {
	if err := v.ring.Remove(account); err != nil && !isMissing(err) {
		return newError("delete", CodeDelete, err)
	}
	return nil
}
