// Package upload turns finished recordings into server records. Save creates
// an optimistic record at once and uploads the artifact in the background;
// failures keep the artifact around so the upload can be retried, also after
// a restart through the pending-upload journal.
package upload

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dmitrijs2005/memokeeper/internal/client/metrics"
	"github.com/dmitrijs2005/memokeeper/internal/client/models"
	"github.com/dmitrijs2005/memokeeper/internal/client/store"
	"github.com/dmitrijs2005/memokeeper/internal/logging"
	"github.com/dmitrijs2005/memokeeper/internal/status"
	"github.com/google/uuid"
)

// Uploader ships an artifact and creates the server record for it.
type Uploader interface {
	CreateRecord(ctx context.Context, artifact models.Artifact, meta models.RecordMeta, durationHint time.Duration) (*models.ServerRecord, error)
}

// Listener starts following the processing state of a server record.
type Listener interface {
	StartListening(ctx context.Context, serverID string) bool
}

// Notifier tells the user about a failed upload. Calls are best effort and
// never block the coordinator.
type Notifier interface {
	UploadFailed(ctx context.Context, tempID string, err error)
}

// Journal persists uploads that have not reached the server.
type Journal interface {
	Save(ctx context.Context, p *models.PendingUpload) error
	ListByOwner(ctx context.Context, ownerID string) ([]*models.PendingUpload, error)
	Delete(ctx context.Context, tempID string) error
}

type Config struct {
	MaxConcurrent   int
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 2
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.InitialInterval <= 0 {
		c.InitialInterval = 2 * time.Second
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = time.Minute
	}
	return c
}

// resident is an artifact the coordinator still holds for a temp id.
type resident struct {
	pending *models.PendingUpload
	bo      backoff.BackOff
}

type Coordinator struct {
	store    *store.Store
	uploader Uploader
	listener Listener
	journal  Journal
	notifier Notifier
	logger   logging.Logger
	cfg      Config
	now      func() time.Time

	sem chan struct{}
	wg  sync.WaitGroup

	baseCtx context.Context
	stop    context.CancelFunc

	mu        sync.Mutex
	artifacts map[string]*resident
	inflight  map[string]bool
}

// NewCoordinator wires a coordinator to s. Removing a record from s makes
// the coordinator forget its artifact. notifier may be nil.
func NewCoordinator(s *store.Store, up Uploader, l Listener, j Journal, n Notifier, logger logging.Logger, cfg Config) *Coordinator {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		store:     s,
		uploader:  up,
		listener:  l,
		journal:   j,
		notifier:  n,
		logger:    logger.With("module", "upload"),
		cfg:       cfg,
		now:       time.Now,
		sem:       make(chan struct{}, cfg.MaxConcurrent),
		baseCtx:   ctx,
		stop:      cancel,
		artifacts: make(map[string]*resident),
		inflight:  make(map[string]bool),
	}
	s.OnRemove(func(id string) { c.Forget(context.Background(), id) })
	return c
}

// Save inserts an optimistic uploading record and schedules the upload. It
// returns as soon as the record is visible in the store.
func (c *Coordinator) Save(ctx context.Context, artifact models.Artifact, meta models.RecordMeta, durationHint time.Duration) (string, error) {
	p := &models.PendingUpload{
		TempID:       models.TempIDPrefix + uuid.NewString(),
		OwnerID:      meta.OwnerID,
		Artifact:     artifact,
		Meta:         meta,
		DurationHint: durationHint,
		CreatedAt:    c.now().UTC(),
	}
	p.Meta.OccurredAt = meta.OccurredAt.UTC().Truncate(time.Second)

	// the row must exist before the record is visible: removing the
	// record deletes it, and a crash mid-upload leaves it for Restore
	c.mu.Lock()
	c.artifacts[p.TempID] = &resident{pending: p, bo: c.newBackOff()}
	c.inflight[p.TempID] = true
	c.mu.Unlock()

	if err := c.journal.Save(ctx, p); err != nil {
		c.release(p.TempID)
		return "", fmt.Errorf("journal upload: %w", err)
	}

	if err := c.store.InsertOptimistic(optimisticRecord(p)); err != nil {
		c.release(p.TempID)
		if derr := c.journal.Delete(ctx, p.TempID); derr != nil {
			c.logger.Error(ctx, "journal delete failed", "temp_id", p.TempID, "error", derr)
		}
		return "", err
	}

	c.logger.Info(ctx, "upload scheduled", "temp_id", p.TempID, "path", artifact.Path)
	c.launch(p.TempID)
	return p.TempID, nil
}

// Retry re-runs a failed upload whose artifact is still resident.
func (c *Coordinator) Retry(ctx context.Context, id string) error {
	c.mu.Lock()
	if c.inflight[id] {
		c.mu.Unlock()
		return ErrUploadInFlight
	}

	rec, ok := c.store.Get(id)
	if !ok {
		c.mu.Unlock()
		return store.ErrNotFound
	}
	if rec.Status != status.Failed || !rec.IsTemporary() {
		c.mu.Unlock()
		return ErrNotRetryable
	}

	res, held := c.artifacts[id]
	if !held || !fileExists(res.pending.Artifact.Path) {
		delete(c.artifacts, id)
		c.mu.Unlock()
		c.dropRetry(ctx, id)
		return ErrRetryUnavailable
	}

	if err := c.store.Transition(id, status.Uploading, func(r *models.Record) { r.Retry = nil }); err != nil {
		c.mu.Unlock()
		return err
	}
	c.inflight[id] = true
	p := *res.pending
	c.mu.Unlock()

	if err := c.journal.Save(ctx, &p); err != nil {
		c.logger.Error(ctx, "journal save failed", "temp_id", id, "error", err)
	}

	c.logger.Info(ctx, "upload retry", "temp_id", id, "attempts", res.pending.Attempts)
	c.launch(id)
	return nil
}

// RetryDue retries failed uploads whose next-eligible time has passed and
// that have attempts left. It returns the number of uploads restarted.
func (c *Coordinator) RetryDue(ctx context.Context) int {
	now := c.now()
	n := 0
	for _, rec := range c.store.Snapshot().Records {
		if !rec.Retryable() || !rec.IsTemporary() {
			continue
		}
		if rec.Retry.Attempts >= c.cfg.MaxAttempts || rec.Retry.NextEligibleAt.After(now) {
			continue
		}
		if err := c.Retry(ctx, rec.ID); err != nil {
			c.logger.Debug(ctx, "automatic retry skipped", "temp_id", rec.ID, "error", err)
			continue
		}
		n++
	}
	return n
}

// Run calls RetryDue every interval until ctx is done.
func (c *Coordinator) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			c.RetryDue(ctx)
		}
	}
}

// Restore brings back the journaled uploads of owner. Uploads whose artifact
// file still exists are started again; the rest become permanently failed.
func (c *Coordinator) Restore(ctx context.Context, owner string) error {
	rows, err := c.journal.ListByOwner(ctx, owner)
	if err != nil {
		return err
	}

	for _, p := range rows {
		if _, exists := c.store.Get(p.TempID); exists {
			continue
		}
		if err := c.store.InsertOptimistic(optimisticRecord(p)); err != nil {
			c.logger.Warn(ctx, "journaled upload not restored", "temp_id", p.TempID, "error", err)
			continue
		}

		if !fileExists(p.Artifact.Path) {
			c.logger.Warn(ctx, "artifact missing, upload cannot resume", "temp_id", p.TempID, "path", p.Artifact.Path)
			_ = c.store.Transition(p.TempID, status.Failed, nil)
			if err := c.journal.Delete(ctx, p.TempID); err != nil {
				c.logger.Error(ctx, "journal delete failed", "temp_id", p.TempID, "error", err)
			}
			if c.notifier != nil {
				go c.notifier.UploadFailed(ctx, p.TempID, &Error{TempID: p.TempID, Attempt: p.Attempts, Err: ErrRetryUnavailable})
			}
			continue
		}

		c.mu.Lock()
		c.artifacts[p.TempID] = &resident{pending: p, bo: c.newBackOff()}
		c.inflight[p.TempID] = true
		c.mu.Unlock()

		c.logger.Info(ctx, "resuming journaled upload", "temp_id", p.TempID, "attempts", p.Attempts)
		c.launch(p.TempID)
	}
	return nil
}

// Forget drops the artifact and journal row of id. An attempt already
// running for id finishes but is discarded.
func (c *Coordinator) Forget(ctx context.Context, id string) {
	c.mu.Lock()
	_, held := c.artifacts[id]
	delete(c.artifacts, id)
	c.mu.Unlock()

	if !held {
		return
	}
	if err := c.journal.Delete(ctx, id); err != nil {
		c.logger.Error(ctx, "journal delete failed", "temp_id", id, "error", err)
	}
}

// Wait blocks until all started uploads have finished.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// Close cancels running uploads and waits for them. Cancelled attempts keep
// their journal row and attempt count so Restore resumes them.
func (c *Coordinator) Close() {
	c.stop()
	c.wg.Wait()
}

func (c *Coordinator) launch(id string) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		select {
		case c.sem <- struct{}{}:
		case <-c.baseCtx.Done():
			c.fail(id, c.baseCtx.Err())
			return
		}
		defer func() { <-c.sem }()

		c.attempt(id)
	}()
}

func (c *Coordinator) attempt(id string) {
	c.mu.Lock()
	res, ok := c.artifacts[id]
	c.mu.Unlock()
	if !ok {
		c.finish(id)
		return
	}
	p := res.pending

	metrics.UploadsInFlight.Inc()
	start := time.Now()
	srv, err := c.uploader.CreateRecord(c.baseCtx, p.Artifact, p.Meta, p.DurationHint)
	metrics.UploadDuration.Observe(time.Since(start).Seconds())
	metrics.UploadsInFlight.Dec()

	if err != nil {
		metrics.UploadsTotal.WithLabelValues("failure").Inc()
		c.fail(id, err)
		return
	}
	metrics.UploadsTotal.WithLabelValues("success").Inc()
	c.succeed(id, srv)
}

func (c *Coordinator) succeed(tempID string, srv *models.ServerRecord) {
	ctx := context.WithoutCancel(c.baseCtx)

	rec := srv.ToRecord()
	rec.Status = status.Clamp(rec.Status, status.Uploaded)

	replaced := c.store.Replace(tempID, rec)

	c.mu.Lock()
	delete(c.artifacts, tempID)
	delete(c.inflight, tempID)
	c.mu.Unlock()

	if err := c.journal.Delete(ctx, tempID); err != nil {
		c.logger.Error(ctx, "journal delete failed", "temp_id", tempID, "error", err)
	}

	if !replaced {
		c.logger.Info(ctx, "record removed before upload finished", "temp_id", tempID, "server_id", rec.ID)
		return
	}
	c.logger.Info(ctx, "upload finished", "temp_id", tempID, "server_id", rec.ID)
	c.listener.StartListening(ctx, rec.ID)
}

func (c *Coordinator) fail(id string, cause error) {
	ctx := context.WithoutCancel(c.baseCtx)

	if errors.Is(cause, context.Canceled) && c.baseCtx.Err() != nil {
		c.interrupted(ctx, id)
		return
	}

	c.mu.Lock()
	res, ok := c.artifacts[id]
	delete(c.inflight, id)
	if !ok {
		c.mu.Unlock()
		return
	}
	res.pending.Attempts++
	res.pending.LastError = cause.Error()
	p := *res.pending
	wait := res.bo.NextBackOff()
	c.mu.Unlock()

	uerr := &Error{TempID: id, Attempt: p.Attempts, Err: cause}
	c.logger.Warn(ctx, "upload failed", "temp_id", id, "attempt", p.Attempts, "error", cause)

	retry := &models.RetryState{Attempts: p.Attempts, LastError: p.LastError}
	if wait != backoff.Stop {
		retry.NextEligibleAt = c.now().Add(wait)
	}
	// journal first; a concurrent Remove must never leave a row behind
	if err := c.journal.Save(ctx, &p); err != nil {
		c.logger.Error(ctx, "journal save failed", "temp_id", id, "error", err)
	}

	if err := c.store.Transition(id, status.Failed, func(r *models.Record) { r.Retry = retry }); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.Forget(ctx, id)
			if err := c.journal.Delete(ctx, id); err != nil {
				c.logger.Error(ctx, "journal delete failed", "temp_id", id, "error", err)
			}
			return
		}
		c.logger.Error(ctx, "cannot mark upload failed", "temp_id", id, "error", err)
	}

	if c.notifier != nil {
		go c.notifier.UploadFailed(ctx, id, uerr)
	}
}

// interrupted handles an attempt cut off by Close. It is not counted
// against MaxAttempts and nobody is notified; the row is kept as it was
// before the attempt.
func (c *Coordinator) interrupted(ctx context.Context, id string) {
	c.mu.Lock()
	res, ok := c.artifacts[id]
	delete(c.inflight, id)
	var p models.PendingUpload
	if ok {
		p = *res.pending
	}
	c.mu.Unlock()
	if !ok {
		return
	}

	c.logger.Info(ctx, "upload interrupted", "temp_id", id)
	if err := c.journal.Save(ctx, &p); err != nil {
		c.logger.Error(ctx, "journal save failed", "temp_id", id, "error", err)
	}
}

// release undoes the bookkeeping of a Save that did not go through.
func (c *Coordinator) release(id string) {
	c.mu.Lock()
	delete(c.artifacts, id)
	delete(c.inflight, id)
	c.mu.Unlock()
}

// finish clears the in-flight flag of an attempt that had nothing to do.
func (c *Coordinator) finish(id string) {
	c.mu.Lock()
	delete(c.inflight, id)
	c.mu.Unlock()
}

func (c *Coordinator) dropRetry(ctx context.Context, id string) {
	c.store.Update(id, func(r *models.Record) { r.Retry = nil })
	if err := c.journal.Delete(ctx, id); err != nil {
		c.logger.Error(ctx, "journal delete failed", "temp_id", id, "error", err)
	}
}

func (c *Coordinator) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.InitialInterval
	b.MaxInterval = c.cfg.MaxInterval
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func optimisticRecord(p *models.PendingUpload) *models.Record {
	payload := make(map[string]models.Field, len(p.Meta.Payload))
	for k, v := range p.Meta.Payload {
		payload[k] = v
	}
	return &models.Record{
		ID:           p.TempID,
		OwnerID:      p.OwnerID,
		Status:       status.Uploading,
		Payload:      payload,
		ContactRef:   p.Meta.ContactRef,
		DurationHint: p.DurationHint,
		CreatedAt:    p.CreatedAt,
		OccurredAt:   p.Meta.OccurredAt,
	}
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
