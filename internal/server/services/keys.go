package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/memokeeper/internal/common"
	"github.com/dmitrijs2005/memokeeper/internal/cryptox"
	"github.com/dmitrijs2005/memokeeper/internal/server/config"
	"github.com/dmitrijs2005/memokeeper/internal/server/metrics"
	"github.com/dmitrijs2005/memokeeper/internal/server/models"
	"github.com/dmitrijs2005/memokeeper/internal/server/repositories/repomanager"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

const (
	kekSalt      = "memokeeper/user_keys"
	keyVersion   = 1
	keyCacheSize = 1024
	KeyAlgorithm = "AES-256-GCM"
)

// KeyService issues and returns the per-user field encryption keys. Keys are
// stored sealed under a KEK derived from the configured secret.
type KeyService struct {
	db    *sql.DB
	rm    repomanager.RepositoryManager
	kek   []byte
	group singleflight.Group
	cache *lru.Cache[string, []byte]
}

func NewKeyService(db *sql.DB, rm repomanager.RepositoryManager, cfg *config.Config) (*KeyService, error) {
	if cfg.KeyEncryptionSecret == "" {
		return nil, errors.New("key encryption secret is empty")
	}
	kek, err := cryptox.DeriveKEK([]byte(cfg.KeyEncryptionSecret), []byte(kekSalt))
	if err != nil {
		return nil, err
	}
	cache, err := lru.New[string, []byte](keyCacheSize)
	if err != nil {
		return nil, err
	}
	return &KeyService{db: db, rm: rm, kek: kek, cache: cache}, nil
}

// UserKey returns a copy of the user's key and its version, generating the
// key on first use. Accounts without field encryption get
// common.ErrEncryptionNotEnabled.
func (s *KeyService) UserKey(ctx context.Context, userID string) ([]byte, int, error) {
	user, err := s.rm.Users(s.db).GetUserByID(ctx, userID)
	if err != nil {
		return nil, 0, fmt.Errorf("error loading user: %w", err)
	}
	if !user.EncryptionEnabled {
		return nil, 0, common.ErrEncryptionNotEnabled
	}

	if key, ok := s.cache.Get(userID); ok {
		return clone(key), keyVersion, nil
	}

	v, err, _ := s.group.Do(userID, func() (any, error) {
		return s.loadOrIssue(ctx, userID)
	})
	if err != nil {
		return nil, 0, err
	}
	key := v.([]byte)
	s.cache.Add(userID, key)
	return clone(key), keyVersion, nil
}

func (s *KeyService) loadOrIssue(ctx context.Context, userID string) ([]byte, error) {
	repo := s.rm.Keys(s.db)

	stored, err := repo.Get(ctx, userID)
	if errors.Is(err, common.ErrorNotFound) {
		key := common.GenerateRandByteArray(cryptox.KeySize)
		sealed, err := cryptox.SealKey(key, s.kek, userID)
		if err != nil {
			return nil, fmt.Errorf("seal user key: %w", err)
		}
		created, err := repo.Insert(ctx, &models.UserKey{UserID: userID, SealedKey: sealed, Version: keyVersion})
		if err != nil {
			return nil, fmt.Errorf("error storing user key: %w", err)
		}
		if created {
			metrics.KeysIssued.Inc()
			return key, nil
		}
		// another instance won the insert
		stored, err = repo.Get(ctx, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("error loading user key: %w", err)
	}

	key, err := cryptox.OpenKey(stored.SealedKey, s.kek, userID)
	if err != nil {
		return nil, fmt.Errorf("open user key: %w", err)
	}
	return key, nil
}

func clone(b []byte) []byte {
	return append([]byte(nil), b...)
}
