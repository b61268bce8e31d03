package grpc

import (
	"context"
	"encoding/base64"
	"errors"
	"time"

	"github.com/dmitrijs2005/memokeeper/internal/common"
	"github.com/dmitrijs2005/memokeeper/internal/cryptox"
	"github.com/dmitrijs2005/memokeeper/internal/rpc"
	"github.com/dmitrijs2005/memokeeper/internal/server/models"
	"github.com/dmitrijs2005/memokeeper/internal/server/repositories/users"
	"github.com/dmitrijs2005/memokeeper/internal/server/services"
	st "github.com/dmitrijs2005/memokeeper/internal/status"
	"github.com/dmitrijs2005/memokeeper/internal/timex"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// toStatus maps service errors to gRPC statuses. Unknown errors are logged
// and reported as Internal without detail.
func (s *GRPCServer) toStatus(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, common.ErrorValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, common.ErrorNotFound):
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, common.ErrorUnauthorized), errors.Is(err, common.ErrRefreshTokenExpired):
		return status.Error(codes.Unauthenticated, "unauthorized")
	case errors.Is(err, common.ErrEncryptionNotEnabled):
		return status.Error(codes.FailedPrecondition, common.ErrEncryptionNotEnabled.Error())
	case errors.Is(err, users.ErrUserExists):
		return status.Error(codes.AlreadyExists, users.ErrUserExists.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	}
	s.logger.Error(ctx, "request failed", "error", err)
	return status.Error(codes.Internal, "internal error")
}

func (s *GRPCServer) caller(ctx context.Context) (string, error) {
	id, ok := userIDFrom(ctx)
	if !ok {
		return "", status.Error(codes.Unauthenticated, "missing token")
	}
	return id, nil
}

func toWire(r *models.Record) *rpc.Record {
	return &rpc.Record{
		ID:           r.ID,
		OwnerID:      r.UserID,
		Status:       string(r.Status),
		Fields:       r.Fields,
		ContactRef:   r.ContactRef,
		DurationMs:   r.Duration.Milliseconds(),
		CreatedAtMs:  timex.ToEpochMillis(r.CreatedAt),
		OccurredAtMs: timex.ToEpochMillis(r.OccurredAt),
	}
}

func (s *GRPCServer) RegisterUser(ctx context.Context, req *rpc.RegisterUserRequest) (*rpc.RegisterUserResponse, error) {
	u, err := s.users.Register(ctx, req.Username, req.Salt, req.Verifier)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	s.logger.Info(ctx, "Registered", "username", req.Username, "user_id", u.ID)
	return &rpc.RegisterUserResponse{}, nil
}

func (s *GRPCServer) GetSalt(ctx context.Context, req *rpc.GetSaltRequest) (*rpc.GetSaltResponse, error) {
	salt, err := s.users.GetSalt(ctx, req.Username)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &rpc.GetSaltResponse{Salt: salt}, nil
}

func (s *GRPCServer) Login(ctx context.Context, req *rpc.LoginRequest) (*rpc.LoginResponse, error) {
	userID, tokens, err := s.users.Login(ctx, req.Username, req.VerifierCandidate)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &rpc.LoginResponse{UserID: userID, AccessToken: tokens.AccessToken, RefreshToken: tokens.RefreshToken}, nil
}

func (s *GRPCServer) RefreshToken(ctx context.Context, req *rpc.RefreshTokenRequest) (*rpc.RefreshTokenResponse, error) {
	tokens, err := s.users.RefreshToken(ctx, req.RefreshToken)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &rpc.RefreshTokenResponse{AccessToken: tokens.AccessToken, RefreshToken: tokens.RefreshToken}, nil
}

func (s *GRPCServer) Ping(ctx context.Context, req *rpc.PingRequest) (*rpc.PingResponse, error) {
	return &rpc.PingResponse{Status: "OK"}, nil
}

func (s *GRPCServer) ExchangeKey(ctx context.Context, req *rpc.ExchangeKeyRequest) (*rpc.ExchangeKeyResponse, error) {
	userID, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	key, version, err := s.keys.UserKey(ctx, userID)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	defer common.WipeByteArray(key)

	return &rpc.ExchangeKeyResponse{
		Key:       base64.StdEncoding.EncodeToString(key),
		Algorithm: services.KeyAlgorithm,
		Version:   version,
		NonceSize: cryptox.NonceSize,
		TagSize:   cryptox.TagSize,
	}, nil
}

func (s *GRPCServer) RequestUpload(ctx context.Context, req *rpc.RequestUploadRequest) (*rpc.RequestUploadResponse, error) {
	userID, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	ticket, err := s.records.RequestUpload(ctx, userID, req.ContentType, req.Size)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &rpc.RequestUploadResponse{StorageKey: ticket.StorageKey, URL: ticket.URL}, nil
}

func (s *GRPCServer) CreateRecord(ctx context.Context, req *rpc.CreateRecordRequest) (*rpc.CreateRecordResponse, error) {
	userID, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	occurred, err := timex.FromEpochMillis(req.OccurredAtMs)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	rec, err := s.records.Create(ctx, userID, services.NewRecord{
		StorageKey: req.StorageKey,
		ContactRef: req.ContactRef,
		OccurredAt: occurred,
		Duration:   time.Duration(req.DurationMs) * time.Millisecond,
		Fields:     req.Fields,
	})
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	s.logger.Info(ctx, "record created", "record_id", rec.ID, "user_id", userID)
	return &rpc.CreateRecordResponse{Record: toWire(rec)}, nil
}

func (s *GRPCServer) ListRecords(ctx context.Context, req *rpc.ListRecordsRequest) (*rpc.ListRecordsResponse, error) {
	userID, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	recs, err := s.records.List(ctx, userID)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	out := make([]*rpc.Record, 0, len(recs))
	for _, r := range recs {
		out = append(out, toWire(r))
	}
	return &rpc.ListRecordsResponse{Records: out}, nil
}

func (s *GRPCServer) DeleteRecord(ctx context.Context, req *rpc.DeleteRecordRequest) (*rpc.DeleteRecordResponse, error) {
	userID, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.records.Delete(ctx, userID, req.ID); err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &rpc.DeleteRecordResponse{}, nil
}

func (s *GRPCServer) AdvanceRecord(ctx context.Context, req *rpc.AdvanceRecordRequest) (*rpc.AdvanceRecordResponse, error) {
	to, err := st.Parse(req.Status)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if req.DurationMs < 0 {
		return nil, status.Error(codes.InvalidArgument, "negative duration")
	}
	rec, err := s.records.Advance(ctx, services.Advance{
		ID:       req.ID,
		Status:   to,
		Fields:   req.Fields,
		Duration: time.Duration(req.DurationMs) * time.Millisecond,
	})
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	s.logger.Info(ctx, "record advanced", "record_id", rec.ID, "status", rec.Status)
	return &rpc.AdvanceRecordResponse{Record: toWire(rec)}, nil
}
