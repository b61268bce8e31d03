package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/memokeeper/internal/client/models"
	"github.com/dmitrijs2005/memokeeper/internal/common"
	"github.com/dmitrijs2005/memokeeper/internal/logging"
	"github.com/dmitrijs2005/memokeeper/internal/netx"
	"github.com/dmitrijs2005/memokeeper/internal/rpc"
	"github.com/dmitrijs2005/memokeeper/internal/timex"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// memoAPI is the subset of rpc.MemoServiceClient used here.
type memoAPI interface {
	RegisterUser(ctx context.Context, in *rpc.RegisterUserRequest, opts ...grpc.CallOption) (*rpc.RegisterUserResponse, error)
	GetSalt(ctx context.Context, in *rpc.GetSaltRequest, opts ...grpc.CallOption) (*rpc.GetSaltResponse, error)
	Login(ctx context.Context, in *rpc.LoginRequest, opts ...grpc.CallOption) (*rpc.LoginResponse, error)
	RefreshToken(ctx context.Context, in *rpc.RefreshTokenRequest, opts ...grpc.CallOption) (*rpc.RefreshTokenResponse, error)
	Ping(ctx context.Context, in *rpc.PingRequest, opts ...grpc.CallOption) (*rpc.PingResponse, error)
	ExchangeKey(ctx context.Context, in *rpc.ExchangeKeyRequest, opts ...grpc.CallOption) (*rpc.ExchangeKeyResponse, error)
	RequestUpload(ctx context.Context, in *rpc.RequestUploadRequest, opts ...grpc.CallOption) (*rpc.RequestUploadResponse, error)
	CreateRecord(ctx context.Context, in *rpc.CreateRecordRequest, opts ...grpc.CallOption) (*rpc.CreateRecordResponse, error)
	ListRecords(ctx context.Context, in *rpc.ListRecordsRequest, opts ...grpc.CallOption) (*rpc.ListRecordsResponse, error)
	DeleteRecord(ctx context.Context, in *rpc.DeleteRecordRequest, opts ...grpc.CallOption) (*rpc.DeleteRecordResponse, error)
	Subscribe(ctx context.Context, in *rpc.SubscribeRequest, opts ...grpc.CallOption) (rpc.RecordStreamClient, error)
	WatchDeletions(ctx context.Context, in *rpc.WatchDeletionsRequest, opts ...grpc.CallOption) (rpc.DeletionStreamClient, error)
}

type GRPCClient struct {
	endpointURL string
	conn        *grpc.ClientConn
	client      memoAPI
	logger      logging.Logger

	// putArtifact uploads the artifact bytes to a presigned URL.
	putArtifact func(ctx context.Context, url string, a models.Artifact) error

	streamInitialInterval time.Duration
	streamMaxInterval     time.Duration

	mu           sync.RWMutex
	accessToken  string
	refreshToken string
}

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Delete(common.AccessTokenHeaderName)
	md.Set(common.AccessTokenHeaderName, token)

	return metadata.NewOutgoingContext(ctx, md)
}

func (s *GRPCClient) tokens() (string, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken, s.refreshToken
}

func (s *GRPCClient) setTokens(access, refresh string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessToken = access
	s.refreshToken = refresh
}

func isTokenExpired(err error) bool {
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	return st.Code() == codes.Unauthenticated && st.Message() == common.ErrTokenExpired.Error()
}

// refresh swaps the token pair using the refresh token.
func (s *GRPCClient) refresh(ctx context.Context) error {
	_, refreshToken := s.tokens()
	if refreshToken == "" {
		return ErrUnauthorized
	}

	resp, err := s.client.RefreshToken(ctx, &rpc.RefreshTokenRequest{RefreshToken: refreshToken})
	if err != nil {
		return err
	}
	s.setTokens(resp.AccessToken, resp.RefreshToken)
	return nil
}

func (s *GRPCClient) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply interface{},
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	accessToken, refreshToken := s.tokens()
	err := invoker(withAccessToken(ctx, accessToken), method, req, reply, cc, opts...)
	if err == nil || !isTokenExpired(err) {
		return err
	}
	if refreshToken == "" || method == rpc.MethodRefreshToken {
		return err
	}

	if rerr := s.refresh(ctx); rerr != nil {
		return rerr
	}

	// tokens refreshed, retry once with the new access token
	accessToken, _ = s.tokens()
	return invoker(withAccessToken(ctx, accessToken), method, req, reply, cc, opts...)
}

func (s *GRPCClient) streamAccessTokenInterceptor(
	ctx context.Context,
	desc *grpc.StreamDesc,
	cc *grpc.ClientConn,
	method string,
	streamer grpc.Streamer,
	opts ...grpc.CallOption,
) (grpc.ClientStream, error) {
	accessToken, _ := s.tokens()
	return streamer(withAccessToken(ctx, accessToken), desc, cc, method, opts...)
}

func NewGRPCClient(endpointURL string, logger logging.Logger) (*GRPCClient, error) {
	c := &GRPCClient{
		endpointURL:           endpointURL,
		logger:                logger.With("module", "grpcclient"),
		streamInitialInterval: 500 * time.Millisecond,
		streamMaxInterval:     30 * time.Second,
	}
	c.putArtifact = func(ctx context.Context, url string, a models.Artifact) error {
		return netx.UploadFile(ctx, url, a.Path, netx.PutOptions{ContentType: a.ContentType, Retries: 3})
	}
	if err := c.InitGRPCClient(); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *GRPCClient) InitGRPCClient() error {
	conn, err := grpc.NewClient(s.endpointURL,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(s.accessTokenInterceptor),
		grpc.WithStreamInterceptor(s.streamAccessTokenInterceptor),
	)
	if err != nil {
		return err
	}
	s.conn = conn
	s.client = rpc.NewMemoServiceClient(conn)
	return nil
}

func (s *GRPCClient) Register(ctx context.Context, userName string, salt []byte, verifier []byte) error {
	req := &rpc.RegisterUserRequest{Username: userName, Salt: salt, Verifier: verifier}

	if _, err := s.client.RegisterUser(ctx, req); err != nil {
		return s.mapError(err)
	}
	return nil
}

func (s *GRPCClient) GetSalt(ctx context.Context, userName string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, 12*time.Second)
	defer cancel()

	resp, err := s.client.GetSalt(ctx, &rpc.GetSaltRequest{Username: userName})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp.Salt, nil
}

func (s *GRPCClient) Login(ctx context.Context, userName string, verifier []byte) (string, error) {
	req := &rpc.LoginRequest{Username: userName, VerifierCandidate: verifier}

	resp, err := s.client.Login(ctx, req)
	if err != nil {
		return "", s.mapError(err)
	}

	s.setTokens(resp.AccessToken, resp.RefreshToken)
	return resp.UserID, nil
}

// Logout forgets the token pair.
func (s *GRPCClient) Logout() {
	s.setTokens("", "")
}

func (s *GRPCClient) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func (s *GRPCClient) Ping(ctx context.Context) error {
	resp, err := s.client.Ping(ctx, &rpc.PingRequest{})
	if err != nil {
		return s.mapError(err)
	}
	if resp.Status != "OK" {
		return ErrUnavailable
	}
	return nil
}

func (s *GRPCClient) ExchangeKey(ctx context.Context) (*models.KeyMaterial, error) {
	resp, err := s.client.ExchangeKey(ctx, &rpc.ExchangeKeyRequest{})
	if err != nil {
		return nil, s.mapError(err)
	}
	return &models.KeyMaterial{
		KeyBase64: resp.Key,
		Algorithm: resp.Algorithm,
		Version:   resp.Version,
		NonceSize: resp.NonceSize,
		TagSize:   resp.TagSize,
	}, nil
}

// CreateRecord requests a presigned URL, uploads the artifact to it and
// creates the record referencing the stored object.
func (s *GRPCClient) CreateRecord(ctx context.Context, artifact models.Artifact, meta models.RecordMeta, durationHint time.Duration) (*models.ServerRecord, error) {
	up, err := s.client.RequestUpload(ctx, &rpc.RequestUploadRequest{ContentType: artifact.ContentType, Size: artifact.Size})
	if err != nil {
		return nil, s.mapError(err)
	}

	if err := s.putArtifact(ctx, up.URL, artifact); err != nil {
		return nil, fmt.Errorf("artifact upload: %w", err)
	}

	req := &rpc.CreateRecordRequest{
		StorageKey:   up.StorageKey,
		ContactRef:   meta.ContactRef,
		OccurredAtMs: timex.ToEpochMillis(meta.OccurredAt),
		DurationMs:   durationHint.Milliseconds(),
		Fields:       fieldsToWire(meta.Payload),
	}
	resp, err := s.client.CreateRecord(ctx, req)
	if err != nil {
		return nil, s.mapError(err)
	}
	return recordFromWire(resp.Record)
}

func (s *GRPCClient) ListRecords(ctx context.Context) ([]*models.ServerRecord, error) {
	resp, err := s.client.ListRecords(ctx, &rpc.ListRecordsRequest{})
	if err != nil {
		return nil, s.mapError(err)
	}

	out := make([]*models.ServerRecord, 0, len(resp.Records))
	for _, r := range resp.Records {
		rec, err := recordFromWire(r)
		if err != nil {
			s.logger.Warn(ctx, "skipping malformed record", "error", err)
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *GRPCClient) DeleteRecord(ctx context.Context, id string) error {
	if _, err := s.client.DeleteRecord(ctx, &rpc.DeleteRecordRequest{ID: id}); err != nil {
		return s.mapError(err)
	}
	return nil
}

func (s *GRPCClient) mapError(err error) error {
	if err == nil {
		return nil
	}
	st, _ := status.FromError(err)
	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		return ErrUnauthorized
	case codes.Unavailable, codes.DeadlineExceeded:
		return ErrUnavailable
	case codes.NotFound:
		return ErrNotFound
	case codes.FailedPrecondition:
		if st.Message() == common.ErrEncryptionNotEnabled.Error() {
			return ErrEncryptionNotEnabled
		}
		return fmt.Errorf("rpc error: %w", err)
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}
