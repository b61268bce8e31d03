// Package keys owns the per-user field encryption key: it fetches the key
// from the key exchange endpoint, keeps it in memory for the session, mirrors
// it into the vault, and destroys both copies at logout.
package keys

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/memokeeper/internal/client/metrics"
	"github.com/dmitrijs2005/memokeeper/internal/client/models"
	"github.com/dmitrijs2005/memokeeper/internal/client/vault"
	"github.com/dmitrijs2005/memokeeper/internal/common"
	"github.com/dmitrijs2005/memokeeper/internal/cryptox"
	"github.com/dmitrijs2005/memokeeper/internal/logging"
	"golang.org/x/sync/singleflight"
)

// Algorithm is the only key algorithm the field codec understands.
const Algorithm = "AES-256-GCM"

const defaultExchangeTimeout = 30 * time.Second

// Exchanger is the key exchange endpoint. It reports
// common.ErrEncryptionNotEnabled when the account has no field encryption.
type Exchanger interface {
	ExchangeKey(ctx context.Context) (*models.KeyMaterial, error)
}

// Manager is the single authority over the current user's key. All state is
// guarded by mu; vault I/O happens under mu as well so that ClearKey can never
// interleave with a save.
type Manager struct {
	vault     vault.Vault
	exchanger Exchanger
	logger    logging.Logger

	mu         sync.Mutex
	key        []byte
	owner      string
	generation uint64

	flights         singleflight.Group
	exchangeTimeout time.Duration
}

func NewManager(v vault.Vault, ex Exchanger, logger logging.Logger) *Manager {
	return &Manager{
		vault:     v,
		exchanger: ex,
		logger:    logger.With("module", "keys"),

		exchangeTimeout: defaultExchangeTimeout,
	}
}

// FetchAndStoreKey performs a key exchange for owner, validates the key,
// writes it to the vault and caches it. "Encryption not enabled" is a
// successful no-op. A vault write failure is logged; the key is still cached
// for the session.
func (m *Manager) FetchAndStoreKey(ctx context.Context, owner string) error {
	if owner == "" {
		return ErrNoOwner
	}

	m.mu.Lock()
	gen := m.generation
	m.mu.Unlock()

	km, err := m.exchanger.ExchangeKey(ctx)
	if err != nil {
		if errors.Is(err, common.ErrEncryptionNotEnabled) {
			metrics.KeyExchangesTotal.WithLabelValues("not_enabled").Inc()
			m.logger.Info(ctx, "encryption not enabled for account", "owner", owner)
			return nil
		}
		metrics.KeyExchangesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("key exchange: %w", err)
	}

	key, err := decodeKeyMaterial(km)
	if err != nil {
		metrics.KeyExchangesTotal.WithLabelValues("invalid").Inc()
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.generation != gen {
		common.WipeByteArray(key)
		return ErrSessionChanged
	}

	if err := m.vault.Save(ctx, owner, key); err != nil {
		m.logger.Warn(ctx, "failed to persist key, keeping it in memory only", "owner", owner, "error", err)
	}
	m.setLocked(owner, key)
	common.WipeByteArray(key)
	metrics.KeyExchangesTotal.WithLabelValues("success").Inc()
	return nil
}

// GetKey returns a copy of owner's key from memory, falling back to the vault.
// It never performs network I/O. Vault errors are logged and reported as a miss.
func (m *Manager) GetKey(ctx context.Context, owner string) ([]byte, bool) {
	if owner == "" {
		return nil, false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.key != nil && m.owner == owner {
		return clone(m.key), true
	}

	secret, err := m.vault.Load(ctx, owner)
	if err != nil {
		m.logger.Warn(ctx, "vault read failed", "owner", owner, "error", err)
		return nil, false
	}
	if secret == nil {
		return nil, false
	}
	if len(secret) != cryptox.KeySize {
		m.logger.Warn(ctx, "ignoring stored key of wrong size", "owner", owner, "size", len(secret))
		return nil, false
	}

	m.setLocked(owner, secret)
	return clone(m.key), true
}

// EnsureKeyAvailable makes sure owner's key is loaded, fetching it when
// neither memory nor the vault has it. Failures are logged, never returned.
// Concurrent calls for one owner share a single exchange.
func (m *Manager) EnsureKeyAvailable(ctx context.Context, owner string) {
	if _, ok := m.GetKey(ctx, owner); ok {
		return
	}

	// the exchange is shared, so no single caller's cancellation may end it
	ch := m.flights.DoChan(owner, func() (any, error) {
		if m.cached(owner) {
			return nil, nil
		}
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.exchangeTimeout)
		defer cancel()
		return nil, m.FetchAndStoreKey(fctx, owner)
	})

	select {
	case <-ctx.Done():
		m.logger.Debug(ctx, "stopped waiting for key exchange", "owner", owner, "error", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			m.logger.Warn(ctx, "key not available, encrypted fields will stay hidden", "owner", owner, "error", res.Err)
		}
	}
}

// ClearKey wipes the memory cache and, when owner is set, deletes owner's
// vault entry. An exchange still in flight for the previous session can no
// longer populate the cache afterwards.
func (m *Manager) ClearKey(ctx context.Context, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	common.WipeByteArray(m.key)
	m.key = nil
	m.owner = ""
	m.generation++

	if owner == "" {
		return nil
	}
	m.flights.Forget(owner)
	if err := m.vault.Delete(ctx, owner); err != nil {
		m.logger.Warn(ctx, "failed to delete key from vault", "owner", owner, "error", err)
		return err
	}
	return nil
}

func (m *Manager) cached(owner string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.key != nil && m.owner == owner
}

func (m *Manager) setLocked(owner string, key []byte) {
	if m.key != nil {
		common.WipeByteArray(m.key)
	}
	m.key = clone(key)
	m.owner = owner
}

func clone(b []byte) []byte {
	return append([]byte(nil), b...)
}

func decodeKeyMaterial(km *models.KeyMaterial) ([]byte, error) {
	if km == nil {
		return nil, ErrMalformedKey
	}
	if km.Algorithm != "" && !strings.EqualFold(km.Algorithm, Algorithm) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, km.Algorithm)
	}
	if (km.NonceSize != 0 && km.NonceSize != cryptox.NonceSize) || (km.TagSize != 0 && km.TagSize != cryptox.TagSize) {
		return nil, fmt.Errorf("%w: nonce %d, tag %d", ErrUnsupportedAlgorithm, km.NonceSize, km.TagSize)
	}

	raw, err := base64.StdEncoding.DecodeString(km.KeyBase64)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}
	if len(raw) != cryptox.KeySize {
		return nil, &InvalidKeySizeError{Size: len(raw)}
	}
	return raw, nil
}
