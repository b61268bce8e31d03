// Package metadata stores the small key/value facts the client keeps between
// runs: the cached login identity used for offline login and the owner id of
// the last session.
package metadata

import (
	"context"
)

// Well-known keys.
const (
	KeyUsername = "username"
	KeySalt     = "salt"
	KeyVerifier = "verifier"
	KeyOwnerID  = "owner_id"
)

type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) (map[string][]byte, error)
	Clear(ctx context.Context) error
}

// Identity is the cached login identity.
type Identity struct {
	Username string
	OwnerID  string
	Salt     []byte
	Verifier []byte
}

// SaveIdentity writes every identity key through repo. Run it inside a
// transaction-bound repository to keep the keys consistent.
func SaveIdentity(ctx context.Context, repo Repository, id Identity) error {
	pairs := []struct {
		k string
		v []byte
	}{
		{KeyUsername, []byte(id.Username)},
		{KeyOwnerID, []byte(id.OwnerID)},
		{KeySalt, id.Salt},
		{KeyVerifier, id.Verifier},
	}
	for _, p := range pairs {
		if err := repo.Set(ctx, p.k, p.v); err != nil {
			return err
		}
	}
	return nil
}

// LoadIdentity reads the cached identity. It returns (nil, nil) when any of
// the keys is missing.
func LoadIdentity(ctx context.Context, repo Repository) (*Identity, error) {
	all, err := repo.List(ctx)
	if err != nil {
		return nil, err
	}
	username, ok1 := all[KeyUsername]
	salt, ok2 := all[KeySalt]
	verifier, ok3 := all[KeyVerifier]
	if !ok1 || !ok2 || !ok3 {
		return nil, nil
	}
	return &Identity{
		Username: string(username),
		OwnerID:  string(all[KeyOwnerID]),
		Salt:     salt,
		Verifier: verifier,
	}, nil
}
