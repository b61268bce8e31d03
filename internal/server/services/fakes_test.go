package services

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/memokeeper/internal/common"
	"github.com/dmitrijs2005/memokeeper/internal/dbx"
	"github.com/dmitrijs2005/memokeeper/internal/server/models"
	"github.com/dmitrijs2005/memokeeper/internal/server/repositories/keys"
	"github.com/dmitrijs2005/memokeeper/internal/server/repositories/records"
	"github.com/dmitrijs2005/memokeeper/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/memokeeper/internal/server/repositories/users"
)

type errBoom struct{}

func (errBoom) Error() string { return "boom" }

type memUsers struct {
	mu        sync.Mutex
	rows      map[string]*models.User
	createErr error
	getErr    error
}

func (r *memUsers) add(u *models.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[u.ID] = u
}

func (r *memUsers) Create(_ context.Context, u *models.User) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return nil, r.createErr
	}
	for _, x := range r.rows {
		if x.UserName == u.UserName {
			return nil, users.ErrUserExists
		}
	}
	u.ID = "u-" + u.UserName
	r.rows[u.ID] = u
	return u, nil
}

func (r *memUsers) GetUserByLogin(_ context.Context, login string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	for _, x := range r.rows {
		if x.UserName == login {
			return x, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *memUsers) GetUserByID(_ context.Context, id string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	u, ok := r.rows[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return u, nil
}

type memTokens struct {
	mu        sync.Mutex
	rows      map[string]*models.RefreshToken
	createErr error
	delErr    error
	pruned    int
}

func (r *memTokens) Create(_ context.Context, userID, token string, validity time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	r.rows[token] = &models.RefreshToken{UserID: userID, Token: token, Expires: time.Now().Add(validity)}
	return nil
}

func (r *memTokens) Find(_ context.Context, token string) (*models.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.rows[token]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return t, nil
}

func (r *memTokens) Delete(_ context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.delErr != nil {
		return r.delErr
	}
	delete(r.rows, token)
	return nil
}

func (r *memTokens) DeleteExpired(_ context.Context, userID string, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for k, t := range r.rows {
		if t.UserID == userID && t.Expires.Before(now) {
			delete(r.rows, k)
			n++
		}
	}
	r.pruned += int(n)
	return n, nil
}

type memRecords struct {
	mu        sync.Mutex
	rows      map[string]*models.Record
	createErr error
	updateErr error
}

func (r *memRecords) Create(_ context.Context, rec *models.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	rec.CreatedAt = time.Now()
	rec.UpdatedAt = rec.CreatedAt
	r.rows[rec.ID] = rec.Clone()
	return nil
}

func (r *memRecords) GetByID(_ context.Context, id string) (*models.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.rows[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return rec.Clone(), nil
}

func (r *memRecords) LockByID(ctx context.Context, id string) (*models.Record, error) {
	return r.GetByID(ctx, id)
}

func (r *memRecords) ListByUser(_ context.Context, userID string) ([]*models.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Record
	for _, rec := range r.rows {
		if rec.UserID == userID {
			out = append(out, rec.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memRecords) Update(_ context.Context, rec *models.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	if _, ok := r.rows[rec.ID]; !ok {
		return common.ErrorNotFound
	}
	rec.UpdatedAt = time.Now()
	r.rows[rec.ID] = rec.Clone()
	return nil
}

func (r *memRecords) Delete(_ context.Context, userID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.rows[id]
	if !ok || rec.UserID != userID {
		return common.ErrorNotFound
	}
	delete(r.rows, id)
	return nil
}

type memKeys struct {
	mu   sync.Mutex
	rows map[string]*models.UserKey
}

func (r *memKeys) Get(_ context.Context, userID string) (*models.UserKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k, ok := r.rows[userID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	c := *k
	return &c, nil
}

func (r *memKeys) Insert(_ context.Context, k *models.UserKey) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[k.UserID]; ok {
		return false, nil
	}
	c := *k
	r.rows[k.UserID] = &c
	return true, nil
}

// memRepoManager hands out the same in-memory repositories for any DBTX.
type memRepoManager struct {
	users   *memUsers
	tokens  *memTokens
	records *memRecords
	keys    *memKeys
}

func newMemRepoManager() *memRepoManager {
	return &memRepoManager{
		users:   &memUsers{rows: map[string]*models.User{}},
		tokens:  &memTokens{rows: map[string]*models.RefreshToken{}},
		records: &memRecords{rows: map[string]*models.Record{}},
		keys:    &memKeys{rows: map[string]*models.UserKey{}},
	}
}

func (m *memRepoManager) RunMigrations(context.Context, *sql.DB) error    { return nil }
func (m *memRepoManager) Users(dbx.DBTX) users.Repository                 { return m.users }
func (m *memRepoManager) RefreshTokens(dbx.DBTX) refreshtokens.Repository { return m.tokens }
func (m *memRepoManager) Records(dbx.DBTX) records.Repository             { return m.records }
func (m *memRepoManager) Keys(dbx.DBTX) keys.Repository                   { return m.keys }
