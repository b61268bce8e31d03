package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/memokeeper/internal/common"
	"github.com/dmitrijs2005/memokeeper/internal/cryptox"
	"github.com/dmitrijs2005/memokeeper/internal/server/models"
	"github.com/dmitrijs2005/memokeeper/internal/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePresigner struct {
	gotKey string
	err    error
}

func (p *fakePresigner) PresignPut(_ context.Context, key, _ string, _ int64) (string, error) {
	p.gotKey = key
	if p.err != nil {
		return "", p.err
	}
	return "https://s3.local/" + key + "?sig=1", nil
}

type recordingHub struct {
	mu      sync.Mutex
	records []*models.Record
	deleted []string
}

func (h *recordingHub) PublishRecord(rec *models.Record) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, rec.Clone())
}

func (h *recordingHub) PublishDeletion(userID, id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.deleted = append(h.deleted, userID+"/"+id)
}

type recordEnv struct {
	svc  *RecordService
	rm   *memRepoManager
	ks   *KeyService
	hub  *recordingHub
	pre  *fakePresigner
	mock sqlmock.Sqlmock
}

func newRecordEnv(t *testing.T) *recordEnv {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	rm := newMemRepoManager()
	rm.users.add(&models.User{ID: "u-1", UserName: "ann", EncryptionEnabled: true})
	rm.users.add(&models.User{ID: "u-2", UserName: "bob", EncryptionEnabled: false})

	ks, err := NewKeyService(db, rm, testServerConfig())
	require.NoError(t, err)

	env := &recordEnv{rm: rm, ks: ks, hub: &recordingHub{}, pre: &fakePresigner{}, mock: mock}
	env.svc = NewRecordService(db, rm, ks, env.pre, env.hub)
	env.svc.now = func() time.Time { return time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC) }
	return env
}

func (e *recordEnv) create(t *testing.T, userID string) *models.Record {
	t.Helper()
	rec, err := e.svc.Create(context.Background(), userID, NewRecord{
		StorageKey: storagePrefix(userID) + "2024/05/01/x",
		OccurredAt: time.UnixMilli(1714557600000),
	})
	require.NoError(t, err)
	return rec
}

func TestRequestUpload(t *testing.T) {
	env := newRecordEnv(t)

	ticket, err := env.svc.RequestUpload(context.Background(), "u-1", "audio/mp4", 10)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ticket.StorageKey, "users/u-1/2024/05/01/"), ticket.StorageKey)
	assert.Equal(t, env.pre.gotKey, ticket.StorageKey)
	assert.Contains(t, ticket.URL, ticket.StorageKey)

	_, err = env.svc.RequestUpload(context.Background(), "u-1", "", -1)
	assert.ErrorIs(t, err, common.ErrorValidation)

	env.pre.err = errBoom{}
	_, err = env.svc.RequestUpload(context.Background(), "u-1", "", 1)
	assert.EqualError(t, err, "boom")
}

func TestCreate_Validation(t *testing.T) {
	env := newRecordEnv(t)
	ctx := context.Background()

	_, err := env.svc.Create(ctx, "u-1", NewRecord{StorageKey: "users/u-2/x", OccurredAt: time.Now()})
	assert.ErrorIs(t, err, common.ErrorValidation)

	_, err = env.svc.Create(ctx, "u-1", NewRecord{StorageKey: "users/u-1/x"})
	assert.ErrorIs(t, err, common.ErrorValidation)

	_, err = env.svc.Create(ctx, "u-1", NewRecord{StorageKey: "users/u-1/x", OccurredAt: time.Now(), Duration: -time.Second})
	assert.ErrorIs(t, err, common.ErrorValidation)

	assert.Empty(t, env.rm.records.rows)
	assert.Empty(t, env.hub.records)
}

func TestCreate_EncryptsSensitiveFields(t *testing.T) {
	env := newRecordEnv(t)

	rec, err := env.svc.Create(context.Background(), "u-1", NewRecord{
		StorageKey: "users/u-1/a",
		ContactRef: "c-7",
		OccurredAt: time.UnixMilli(1714557600000),
		Duration:   3 * time.Second,
		Fields:     map[string]string{"title": "Call with Rita", "language": "en"},
	})
	require.NoError(t, err)
	assert.Equal(t, status.Uploaded, rec.Status)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "en", rec.Fields["language"])
	require.True(t, cryptox.IsEnvelope(rec.Fields["title"]))

	key, _, err := env.ks.UserKey(context.Background(), "u-1")
	require.NoError(t, err)
	plain, err := cryptox.DecryptField(rec.Fields["title"], key)
	require.NoError(t, err)
	assert.Equal(t, "Call with Rita", plain)

	require.Len(t, env.hub.records, 1)
	assert.Equal(t, rec.ID, env.hub.records[0].ID)
}

func TestCreate_PlaintextWithoutEncryption(t *testing.T) {
	env := newRecordEnv(t)

	rec, err := env.svc.Create(context.Background(), "u-2", NewRecord{
		StorageKey: "users/u-2/a",
		OccurredAt: time.Now(),
		Fields:     map[string]string{"title": "plain"},
	})
	require.NoError(t, err)
	assert.Equal(t, "plain", rec.Fields["title"])
}

func TestGetAndDelete_Ownership(t *testing.T) {
	env := newRecordEnv(t)
	rec := env.create(t, "u-1")
	ctx := context.Background()

	got, err := env.svc.Get(ctx, "u-1", rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)

	_, err = env.svc.Get(ctx, "u-2", rec.ID)
	assert.ErrorIs(t, err, common.ErrorNotFound)

	assert.ErrorIs(t, env.svc.Delete(ctx, "u-2", rec.ID), common.ErrorNotFound)
	assert.Empty(t, env.hub.deleted)

	require.NoError(t, env.svc.Delete(ctx, "u-1", rec.ID))
	assert.Equal(t, []string{"u-1/" + rec.ID}, env.hub.deleted)

	list, err := env.svc.List(ctx, "u-1")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestAdvance_HappyPath(t *testing.T) {
	env := newRecordEnv(t)
	rec := env.create(t, "u-1")
	ctx := context.Background()

	env.mock.ExpectBegin()
	env.mock.ExpectCommit()
	got, err := env.svc.Advance(ctx, Advance{ID: rec.ID, Status: status.Processing, Duration: 42 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, status.Processing, got.Status)
	assert.Equal(t, 42*time.Second, got.Duration)

	env.mock.ExpectBegin()
	env.mock.ExpectCommit()
	got, err = env.svc.Advance(ctx, Advance{
		ID:     rec.ID,
		Status: status.Ready,
		Fields: map[string]string{"transcript": "hello", "summary": "greeting", "speaker_count": "2"},
	})
	require.NoError(t, err)
	assert.Equal(t, status.Ready, got.Status)
	assert.Equal(t, 42*time.Second, got.Duration)
	assert.True(t, cryptox.IsEnvelope(got.Fields["transcript"]))
	assert.True(t, cryptox.IsEnvelope(got.Fields["summary"]))
	assert.Equal(t, "2", got.Fields["speaker_count"])

	stored, err := env.rm.records.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, status.Ready, stored.Status)

	require.Len(t, env.hub.records, 3)
	assert.Equal(t, status.Ready, env.hub.records[2].Status)
	require.NoError(t, env.mock.ExpectationsWereMet())
}

func TestAdvance_RejectsInvalidTransition(t *testing.T) {
	env := newRecordEnv(t)
	rec := env.create(t, "u-1")
	ctx := context.Background()

	env.mock.ExpectBegin()
	env.mock.ExpectCommit()
	_, err := env.svc.Advance(ctx, Advance{ID: rec.ID, Status: status.Ready})
	require.NoError(t, err)

	env.mock.ExpectBegin()
	env.mock.ExpectRollback()
	_, err = env.svc.Advance(ctx, Advance{ID: rec.ID, Status: status.Processing})
	assert.ErrorIs(t, err, common.ErrorValidation)
	assert.ErrorIs(t, err, status.ErrInvalidTransition)

	_, err = env.svc.Advance(ctx, Advance{ID: rec.ID, Status: "archived"})
	assert.ErrorIs(t, err, common.ErrorValidation)
	require.NoError(t, env.mock.ExpectationsWereMet())
}

func TestAdvance_NotFoundAndUpdateError(t *testing.T) {
	env := newRecordEnv(t)
	ctx := context.Background()

	env.mock.ExpectBegin()
	env.mock.ExpectRollback()
	_, err := env.svc.Advance(ctx, Advance{ID: "missing", Status: status.Processing})
	assert.ErrorIs(t, err, common.ErrorNotFound)

	rec := env.create(t, "u-1")
	env.rm.records.updateErr = errors.New("disk full")
	env.mock.ExpectBegin()
	env.mock.ExpectRollback()
	_, err = env.svc.Advance(ctx, Advance{ID: rec.ID, Status: status.Processing})
	assert.EqualError(t, err, "disk full")
	require.Len(t, env.hub.records, 1, "only the create was published")
}

func TestSealFields_KeepsEnvelopes(t *testing.T) {
	env := newRecordEnv(t)

	key, _, err := env.ks.UserKey(context.Background(), "u-1")
	require.NoError(t, err)
	env0, err := cryptox.EncryptField("already", key)
	require.NoError(t, err)

	out, err := env.svc.sealFields(context.Background(), "u-1", map[string]string{"title": env0, "summary": ""})
	require.NoError(t, err)
	assert.Equal(t, env0, out["title"])
	assert.Equal(t, "", out["summary"])

	out, err = env.svc.sealFields(context.Background(), "u-1", nil)
	require.NoError(t, err)
	assert.Nil(t, out)
}
