package store

import (
	"context"
	"sort"
	"time"

	"github.com/dmitrijs2005/memokeeper/internal/client/metrics"
	"github.com/dmitrijs2005/memokeeper/internal/client/models"
	"github.com/dmitrijs2005/memokeeper/internal/cryptox"
	"github.com/dmitrijs2005/memokeeper/internal/logging"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// KeySource hands out the field key of an owner without network I/O.
type KeySource interface {
	GetKey(ctx context.Context, owner string) ([]byte, bool)
}

// Reader is the decrypting read path. It renders records into transient
// Views and keeps recently decrypted values in a bounded TTL cache. Nothing
// it decrypts is written back into the Store.
type Reader struct {
	store  *Store
	keys   KeySource
	logger logging.Logger
	cache  *expirable.LRU[string, string]
}

// NewReader builds a Reader caching up to size decrypted values for ttl.
func NewReader(s *Store, keys KeySource, logger logging.Logger, size int, ttl time.Duration) *Reader {
	if size <= 0 {
		size = 256
	}
	return &Reader{
		store:  s,
		keys:   keys,
		logger: logger.With("module", "reader"),
		cache:  expirable.NewLRU[string, string](size, nil, ttl),
	}
}

// Materialize renders rec. Encrypted fields that cannot be decrypted keep
// their envelope value and are listed in View.Degraded.
func (r *Reader) Materialize(ctx context.Context, rec *models.Record) models.View {
	v := models.View{
		ID:         rec.ID,
		Status:     rec.Status,
		Fields:     make(map[string]string, len(rec.Payload)),
		ContactRef: rec.ContactRef,
		Duration:   rec.DurationHint,
		CreatedAt:  rec.CreatedAt,
		OccurredAt: rec.OccurredAt,
	}
	if rec.Retry != nil {
		rs := *rec.Retry
		v.Retry = &rs
	}

	var (
		key    []byte
		loaded bool
	)
	for name, f := range rec.Payload {
		if !cryptox.IsEnvelope(f.Value) {
			v.Fields[name] = f.Value
			continue
		}

		ck := rec.OwnerID + "\x00" + f.Value
		if plain, ok := r.cache.Get(ck); ok {
			metrics.ViewCacheHits.Inc()
			v.Fields[name] = plain
			continue
		}
		metrics.ViewCacheMisses.Inc()

		if !loaded {
			key, _ = r.keys.GetKey(ctx, rec.OwnerID)
			loaded = true
		}

		plain := cryptox.DecryptFieldIfNeeded(ctx, r.logger, f.Value, key)
		v.Fields[name] = plain
		if plain == f.Value {
			metrics.FieldReadsTotal.WithLabelValues("degraded").Inc()
			v.Degraded = append(v.Degraded, name)
			continue
		}
		metrics.FieldReadsTotal.WithLabelValues("decrypted").Inc()
		r.cache.Add(ck, plain)
	}
	sort.Strings(v.Degraded)
	return v
}

// Get materializes record id.
func (r *Reader) Get(ctx context.Context, id string) (models.View, bool) {
	rec, ok := r.store.Get(id)
	if !ok {
		return models.View{}, false
	}
	return r.Materialize(ctx, rec), true
}

// List materializes the current snapshot.
func (r *Reader) List(ctx context.Context) []models.View {
	snap := r.store.Snapshot()
	out := make([]models.View, 0, len(snap.Records))
	for _, rec := range snap.Records {
		out = append(out, r.Materialize(ctx, rec))
	}
	return out
}

// Purge forgets every decrypted value.
func (r *Reader) Purge() {
	r.cache.Purge()
}
