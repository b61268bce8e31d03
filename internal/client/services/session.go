package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/memokeeper/internal/client/client"
	"github.com/dmitrijs2005/memokeeper/internal/client/keys"
	"github.com/dmitrijs2005/memokeeper/internal/client/models"
	"github.com/dmitrijs2005/memokeeper/internal/client/reconcile"
	"github.com/dmitrijs2005/memokeeper/internal/client/repositories/pending"
	"github.com/dmitrijs2005/memokeeper/internal/client/store"
	"github.com/dmitrijs2005/memokeeper/internal/client/upload"
	"github.com/dmitrijs2005/memokeeper/internal/client/vault"
	"github.com/dmitrijs2005/memokeeper/internal/filex"
	"github.com/dmitrijs2005/memokeeper/internal/logging"
)

var (
	ErrNotLoggedIn     = errors.New("not logged in")
	ErrAlreadyLoggedIn = errors.New("already logged in")
)

// Deps are the collaborators of a Session.
type Deps struct {
	Client   client.Client
	DB       *sql.DB
	Vault    vault.Vault
	Logger   logging.Logger
	Notifier upload.Notifier

	Uploads       upload.Config
	RetryInterval time.Duration
	ArtifactsDir  string

	ViewCacheSize int
	ViewCacheTTL  time.Duration
}

// Session is the composition root of the sync engine. A successful Login
// builds a fresh store, read path, listener pool and upload coordinator for
// the account; Logout tears all of them down again.
type Session struct {
	deps   Deps
	logger logging.Logger
	authn  AuthService
	keys   *keys.Manager

	mu     sync.Mutex
	active *activeSession
}

type activeSession struct {
	owner   string
	offline bool

	ctx    context.Context
	cancel context.CancelFunc

	store   *store.Store
	reader  *store.Reader
	pool    *reconcile.Pool
	uploads *upload.Coordinator

	deletions reconcile.Handle
	runDone   chan struct{}
}

func NewSession(d Deps) *Session {
	if d.Logger == nil {
		d.Logger = logging.NewNop()
	}
	if d.RetryInterval <= 0 {
		d.RetryInterval = 5 * time.Second
	}
	logger := d.Logger.With("module", "session")
	if d.Notifier == nil {
		d.Notifier = logNotifier{logger: logger}
	}
	return &Session{
		deps:   d,
		logger: logger,
		authn:  NewAuthService(d.Client, d.DB),
		keys:   keys.NewManager(d.Vault, d.Client, d.Logger),
	}
}

// Auth exposes the authentication service (register, ping).
func (s *Session) Auth() AuthService {
	return s.authn
}

// Login authenticates and starts the sync engine for the account. When the
// server is unreachable it falls back to the cached identity; the returned
// flag reports such an offline session.
func (s *Session) Login(ctx context.Context, username string, password []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil {
		return false, ErrAlreadyLoggedIn
	}

	offline := false
	owner, err := s.authn.OnlineLogin(ctx, username, password)
	if errors.Is(err, client.ErrUnavailable) {
		s.logger.Warn(ctx, "server unavailable, trying offline login", "error", err)
		owner, err = s.authn.OfflineLogin(ctx, username, password)
		offline = true
	}
	if err != nil {
		return false, err
	}

	s.active = s.start(ctx, owner, offline)
	return offline, nil
}

func (s *Session) start(ctx context.Context, owner string, offline bool) *activeSession {
	d := s.deps
	sessCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	st := store.New()
	a := &activeSession{
		owner:   owner,
		offline: offline,
		ctx:     sessCtx,
		cancel:  cancel,
		store:   st,
		reader:  store.NewReader(st, s.keys, d.Logger, d.ViewCacheSize, d.ViewCacheTTL),
		pool:    reconcile.NewPool(st, d.Client, d.Logger),
		runDone: make(chan struct{}),
	}
	a.uploads = upload.NewCoordinator(st, d.Client, a.pool, pending.NewSQLiteRepository(d.DB), d.Notifier, d.Logger, d.Uploads)

	s.keys.EnsureKeyAvailable(sessCtx, owner)

	if !offline {
		s.loadRecords(sessCtx, a)

		h, err := d.Client.WatchDeletions(sessCtx, func(id string) {
			if st.Remove(id) {
				s.logger.Info(sessCtx, "record deleted remotely", "record_id", id)
			}
		})
		if err != nil {
			s.logger.Warn(sessCtx, "deletion watch not started", "error", err)
		} else {
			a.deletions = h
		}
	}

	if err := a.uploads.Restore(sessCtx, owner); err != nil {
		s.logger.Error(sessCtx, "restoring pending uploads failed", "error", err)
	}

	go func() {
		defer close(a.runDone)
		a.uploads.Run(sessCtx, d.RetryInterval)
	}()

	s.logger.Info(sessCtx, "session started", "owner", owner, "offline", offline)
	return a
}

func (s *Session) loadRecords(ctx context.Context, a *activeSession) {
	recs, err := s.deps.Client.ListRecords(ctx)
	if err != nil {
		s.logger.Warn(ctx, "listing records failed", "error", err)
		return
	}

	out := make([]*models.Record, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.ToRecord())
	}
	a.store.Reset(out)

	for _, r := range out {
		if !r.Status.IsTerminal() {
			a.pool.StartListening(a.ctx, r.ID)
		}
	}
}

// Logout stops every background activity of the session, destroys the key
// and wipes the cached identity. It is a no-op without an active session.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	a := s.active
	s.active = nil
	s.mu.Unlock()

	if a == nil {
		return nil
	}

	a.stop()

	var errs []error
	if err := s.keys.ClearKey(ctx, a.owner); err != nil {
		errs = append(errs, fmt.Errorf("clear key: %w", err))
	}
	a.reader.Purge()
	a.store.Clear()

	s.deps.Client.Logout()
	if err := s.authn.ClearOfflineData(ctx); err != nil {
		errs = append(errs, fmt.Errorf("clear offline data: %w", err))
	}

	s.logger.Info(ctx, "session ended", "owner", a.owner)
	return errors.Join(errs...)
}

// Close ends the session, if any, and closes the client connection.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	a := s.active
	s.active = nil
	s.mu.Unlock()

	if a != nil {
		// key and identity stay so the next start can work offline
		a.stop()
		a.reader.Purge()
	}
	return s.authn.Close(ctx)
}

// stop cancels the retry loop, the uploads and every subscription. Uploads
// go first so a late success cannot open a listener after CancelAll.
func (a *activeSession) stop() {
	a.cancel()
	<-a.runDone
	if a.deletions != nil {
		a.deletions.Cancel()
	}
	a.uploads.Close()
	a.pool.CancelAll()
}

func (s *Session) current() (*activeSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return nil, ErrNotLoggedIn
	}
	return s.active, nil
}

// Owner returns the account id of the active session.
func (s *Session) Owner() (string, bool) {
	a, err := s.current()
	if err != nil {
		return "", false
	}
	return a.owner, true
}

// Offline reports whether the active session was opened without the server.
func (s *Session) Offline() bool {
	a, err := s.current()
	return err == nil && a.offline
}

// Record imports the artifact at path into the artifacts directory and
// schedules its upload. It returns the temporary record id.
func (s *Session) Record(ctx context.Context, path, contactRef string) (string, error) {
	a, err := s.current()
	if err != nil {
		return "", err
	}

	dir, err := filex.EnsureDir(s.deps.ArtifactsDir)
	if err != nil {
		return "", err
	}
	dst, size, err := filex.Import(dir, path)
	if err != nil {
		return "", err
	}

	artifact := models.Artifact{Path: dst, ContentType: filex.ContentType(dst), Size: size}
	meta := models.RecordMeta{OwnerID: a.owner, ContactRef: contactRef, OccurredAt: time.Now()}
	return a.uploads.Save(ctx, artifact, meta, 0)
}

// List returns display views of all records, most recent first.
func (s *Session) List(ctx context.Context) ([]models.View, error) {
	a, err := s.current()
	if err != nil {
		return nil, err
	}
	return a.reader.List(ctx), nil
}

// Show returns the display view of one record.
func (s *Session) Show(ctx context.Context, id string) (models.View, error) {
	a, err := s.current()
	if err != nil {
		return models.View{}, err
	}
	v, ok := a.reader.Get(ctx, id)
	if !ok {
		return models.View{}, store.ErrNotFound
	}
	return v, nil
}

// Retry re-runs a failed upload.
func (s *Session) Retry(ctx context.Context, id string) error {
	a, err := s.current()
	if err != nil {
		return err
	}
	return a.uploads.Retry(ctx, id)
}

// Delete removes a record. Records that never reached the server are only
// dropped locally.
func (s *Session) Delete(ctx context.Context, id string) error {
	a, err := s.current()
	if err != nil {
		return err
	}
	rec, ok := a.store.Get(id)
	if !ok {
		return store.ErrNotFound
	}
	if !rec.IsTemporary() {
		if err := s.deps.Client.DeleteRecord(ctx, id); err != nil && !errors.Is(err, client.ErrNotFound) {
			return err
		}
	}
	a.store.Remove(id)
	return nil
}

// Subscribe streams store snapshots of the active session. cancel must be
// called when done.
func (s *Session) Subscribe() (<-chan store.Snapshot, func(), error) {
	a, err := s.current()
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := a.store.Subscribe()
	return ch, cancel, nil
}

type logNotifier struct {
	logger logging.Logger
}

func (n logNotifier) UploadFailed(ctx context.Context, tempID string, err error) {
	n.logger.Warn(ctx, "upload failed", "temp_id", tempID, "error", err)
}
