package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/memokeeper/internal/common"
	"github.com/dmitrijs2005/memokeeper/internal/cryptox"
	"github.com/dmitrijs2005/memokeeper/internal/dbx"
	"github.com/dmitrijs2005/memokeeper/internal/server/metrics"
	"github.com/dmitrijs2005/memokeeper/internal/server/models"
	"github.com/dmitrijs2005/memokeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/memokeeper/internal/status"
	"github.com/google/uuid"
)

// SensitiveFields are stored as "v1:" envelopes for accounts with field
// encryption.
var SensitiveFields = map[string]bool{
	"title":      true,
	"transcript": true,
	"summary":    true,
}

// KeyProvider returns the field key of a user.
type KeyProvider interface {
	UserKey(ctx context.Context, userID string) ([]byte, int, error)
}

// Publisher receives committed record changes.
type Publisher interface {
	PublishRecord(rec *models.Record)
	PublishDeletion(userID, id string)
}

// UploadTicket is where and under which key an artifact is uploaded.
type UploadTicket struct {
	StorageKey string
	URL        string
}

// NewRecord describes a record created after its artifact was uploaded.
type NewRecord struct {
	StorageKey string
	ContactRef string
	OccurredAt time.Time
	Duration   time.Duration
	Fields     map[string]string
}

// Advance is one pipeline step for a record.
type Advance struct {
	ID       string
	Status   status.Status
	Fields   map[string]string
	Duration time.Duration
}

type RecordService struct {
	db        *sql.DB
	rm        repomanager.RepositoryManager
	keys      KeyProvider
	presigner Presigner
	hub       Publisher
	now       func() time.Time
}

func NewRecordService(db *sql.DB, rm repomanager.RepositoryManager, keys KeyProvider, p Presigner, hub Publisher) *RecordService {
	return &RecordService{db: db, rm: rm, keys: keys, presigner: p, hub: hub, now: time.Now}
}

// RequestUpload reserves a storage key for userID and presigns its upload.
func (s *RecordService) RequestUpload(ctx context.Context, userID, contentType string, size int64) (*UploadTicket, error) {
	if size < 0 {
		return nil, fmt.Errorf("%w: negative size", common.ErrorValidation)
	}
	key := newStorageKey(userID, s.now())
	url, err := s.presigner.PresignPut(ctx, key, contentType, size)
	if err != nil {
		return nil, err
	}
	return &UploadTicket{StorageKey: key, URL: url}, nil
}

// Create stores a new record in status uploaded.
func (s *RecordService) Create(ctx context.Context, userID string, in NewRecord) (*models.Record, error) {
	switch {
	case !strings.HasPrefix(in.StorageKey, storagePrefix(userID)):
		return nil, fmt.Errorf("%w: storage key not owned by caller", common.ErrorValidation)
	case in.OccurredAt.IsZero():
		return nil, fmt.Errorf("%w: occurred_at is required", common.ErrorValidation)
	case in.Duration < 0:
		return nil, fmt.Errorf("%w: negative duration", common.ErrorValidation)
	}

	fields, err := s.sealFields(ctx, userID, in.Fields)
	if err != nil {
		return nil, err
	}

	rec := &models.Record{
		ID:         uuid.NewString(),
		UserID:     userID,
		Status:     status.Uploaded,
		StorageKey: in.StorageKey,
		ContactRef: in.ContactRef,
		Fields:     fields,
		Duration:   in.Duration,
		OccurredAt: in.OccurredAt,
	}
	if err := s.rm.Records(s.db).Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("error creating record: %w", err)
	}
	s.hub.PublishRecord(rec)
	return rec, nil
}

func (s *RecordService) List(ctx context.Context, userID string) ([]*models.Record, error) {
	return s.rm.Records(s.db).ListByUser(ctx, userID)
}

// Get returns common.ErrorNotFound for records of other users.
func (s *RecordService) Get(ctx context.Context, userID, id string) (*models.Record, error) {
	rec, err := s.rm.Records(s.db).GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.UserID != userID {
		return nil, common.ErrorNotFound
	}
	return rec, nil
}

func (s *RecordService) Delete(ctx context.Context, userID, id string) error {
	if err := s.rm.Records(s.db).Delete(ctx, userID, id); err != nil {
		return err
	}
	s.hub.PublishDeletion(userID, id)
	return nil
}

// Advance applies a pipeline step: the status change is checked against the
// lifecycle and the given fields are merged into the record.
func (s *RecordService) Advance(ctx context.Context, in Advance) (*models.Record, error) {
	if !in.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", common.ErrorValidation, in.Status)
	}

	var out *models.Record
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.rm.Records(tx)
		rec, err := repo.LockByID(ctx, in.ID)
		if err != nil {
			return err
		}
		if err := status.Validate(rec.Status, in.Status); err != nil {
			return fmt.Errorf("%w: %w", common.ErrorValidation, err)
		}

		fields, err := s.sealFields(ctx, rec.UserID, in.Fields)
		if err != nil {
			return err
		}
		if rec.Fields == nil && len(fields) > 0 {
			rec.Fields = make(map[string]string, len(fields))
		}
		for k, v := range fields {
			rec.Fields[k] = v
		}
		rec.Status = in.Status
		if in.Duration > 0 {
			rec.Duration = in.Duration
		}

		if err := repo.Update(ctx, rec); err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.StatusTransitions.WithLabelValues(string(out.Status)).Inc()
	s.hub.PublishRecord(out)
	return out, nil
}

// sealFields encrypts the sensitive plaintext values with the owner's key.
// Values already in envelope form are kept as they are.
func (s *RecordService) sealFields(ctx context.Context, userID string, in map[string]string) (map[string]string, error) {
	if len(in) == 0 {
		return nil, nil
	}

	var key []byte
	needsKey := false
	for k, v := range in {
		if SensitiveFields[k] && v != "" && !cryptox.IsEnvelope(v) {
			needsKey = true
			break
		}
	}
	if needsKey {
		var err error
		key, _, err = s.keys.UserKey(ctx, userID)
		switch {
		case errors.Is(err, common.ErrEncryptionNotEnabled):
			key = nil
		case err != nil:
			return nil, err
		}
		defer common.WipeByteArray(key)
	}

	out := make(map[string]string, len(in))
	for k, v := range in {
		if key != nil && SensitiveFields[k] && v != "" && !cryptox.IsEnvelope(v) {
			enc, err := cryptox.EncryptField(v, key)
			if err != nil {
				return nil, fmt.Errorf("encrypt %s: %w", k, err)
			}
			v = enc
		}
		out[k] = v
	}
	return out, nil
}
