package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/memokeeper/internal/client/models"
	"github.com/dmitrijs2005/memokeeper/internal/client/reconcile"
	"github.com/dmitrijs2005/memokeeper/internal/common"
	"github.com/dmitrijs2005/memokeeper/internal/logging"
	"github.com/dmitrijs2005/memokeeper/internal/rpc"
	recstatus "github.com/dmitrijs2005/memokeeper/internal/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

/*************
 * Fake rpc client
 *************/

type fakeRPC struct {
	mu sync.Mutex

	lastRefreshTokenReq *rpc.RefreshTokenRequest
	lastGetSaltReq      *rpc.GetSaltRequest
	lastLoginReq        *rpc.LoginRequest
	lastRegisterReq     *rpc.RegisterUserRequest
	lastUploadReq       *rpc.RequestUploadRequest
	lastCreateReq       *rpc.CreateRecordRequest
	lastDeleteReq       *rpc.DeleteRecordRequest

	refreshTokenResp *rpc.RefreshTokenResponse
	refreshTokenErr  error
	pingResp         *rpc.PingResponse
	pingErr          error
	getSaltResp      *rpc.GetSaltResponse
	getSaltErr       error
	loginResp        *rpc.LoginResponse
	loginErr         error
	registerErr      error
	exchangeResp     *rpc.ExchangeKeyResponse
	exchangeErr      error
	uploadResp       *rpc.RequestUploadResponse
	uploadErr        error
	createResp       *rpc.CreateRecordResponse
	createErr        error
	listResp         *rpc.ListRecordsResponse
	listErr          error
	deleteErr        error

	subscribeFn func(ctx context.Context, n int) (rpc.RecordStreamClient, error)
	subscribes  int
	deletionsFn func(ctx context.Context) (rpc.DeletionStreamClient, error)
}

func (f *fakeRPC) RegisterUser(_ context.Context, in *rpc.RegisterUserRequest, _ ...grpc.CallOption) (*rpc.RegisterUserResponse, error) {
	f.lastRegisterReq = in
	return &rpc.RegisterUserResponse{}, f.registerErr
}
func (f *fakeRPC) GetSalt(_ context.Context, in *rpc.GetSaltRequest, _ ...grpc.CallOption) (*rpc.GetSaltResponse, error) {
	f.lastGetSaltReq = in
	return f.getSaltResp, f.getSaltErr
}
func (f *fakeRPC) Login(_ context.Context, in *rpc.LoginRequest, _ ...grpc.CallOption) (*rpc.LoginResponse, error) {
	f.lastLoginReq = in
	return f.loginResp, f.loginErr
}
func (f *fakeRPC) RefreshToken(_ context.Context, in *rpc.RefreshTokenRequest, _ ...grpc.CallOption) (*rpc.RefreshTokenResponse, error) {
	f.lastRefreshTokenReq = in
	return f.refreshTokenResp, f.refreshTokenErr
}
func (f *fakeRPC) Ping(context.Context, *rpc.PingRequest, ...grpc.CallOption) (*rpc.PingResponse, error) {
	return f.pingResp, f.pingErr
}
func (f *fakeRPC) ExchangeKey(context.Context, *rpc.ExchangeKeyRequest, ...grpc.CallOption) (*rpc.ExchangeKeyResponse, error) {
	return f.exchangeResp, f.exchangeErr
}
func (f *fakeRPC) RequestUpload(_ context.Context, in *rpc.RequestUploadRequest, _ ...grpc.CallOption) (*rpc.RequestUploadResponse, error) {
	f.lastUploadReq = in
	return f.uploadResp, f.uploadErr
}
func (f *fakeRPC) CreateRecord(_ context.Context, in *rpc.CreateRecordRequest, _ ...grpc.CallOption) (*rpc.CreateRecordResponse, error) {
	f.lastCreateReq = in
	return f.createResp, f.createErr
}
func (f *fakeRPC) ListRecords(context.Context, *rpc.ListRecordsRequest, ...grpc.CallOption) (*rpc.ListRecordsResponse, error) {
	return f.listResp, f.listErr
}
func (f *fakeRPC) DeleteRecord(_ context.Context, in *rpc.DeleteRecordRequest, _ ...grpc.CallOption) (*rpc.DeleteRecordResponse, error) {
	f.lastDeleteReq = in
	return &rpc.DeleteRecordResponse{}, f.deleteErr
}
func (f *fakeRPC) Subscribe(ctx context.Context, _ *rpc.SubscribeRequest, _ ...grpc.CallOption) (rpc.RecordStreamClient, error) {
	f.mu.Lock()
	f.subscribes++
	n := f.subscribes
	f.mu.Unlock()
	return f.subscribeFn(ctx, n)
}
func (f *fakeRPC) WatchDeletions(ctx context.Context, _ *rpc.WatchDeletionsRequest, _ ...grpc.CallOption) (rpc.DeletionStreamClient, error) {
	return f.deletionsFn(ctx)
}

func newTestClient(f *fakeRPC) *GRPCClient {
	return &GRPCClient{
		client:                f,
		logger:                logging.NewNop(),
		streamInitialInterval: time.Millisecond,
		streamMaxInterval:     5 * time.Millisecond,
	}
}

/*************
 * accessTokenInterceptor tests
 *************/

func TestInterceptor_RefreshesTokenOnExpiredAndRetries(t *testing.T) {
	f := &fakeRPC{
		refreshTokenResp: &rpc.RefreshTokenResponse{AccessToken: "A2", RefreshToken: "R2"},
	}
	c := newTestClient(f)
	c.setTokens("A1", "R1")

	callCount := 0
	invoker := func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
		callCount++
		md, _ := metadata.FromOutgoingContext(ctx)
		toks := md.Get(common.AccessTokenHeaderName)
		require.Len(t, toks, 1)

		if callCount == 1 {
			require.Equal(t, "A1", toks[0])
			return status.Error(codes.Unauthenticated, common.ErrTokenExpired.Error())
		}
		require.Equal(t, "A2", toks[0])
		return nil
	}

	err := c.accessTokenInterceptor(context.Background(), "/svc/Method", nil, nil, nil, invoker)
	require.NoError(t, err)
	require.Equal(t, 2, callCount)
	access, refresh := c.tokens()
	require.Equal(t, "A2", access)
	require.Equal(t, "R2", refresh)
	require.Equal(t, "R1", f.lastRefreshTokenReq.RefreshToken)
}

func TestInterceptor_NoRefreshIfNoRefreshToken(t *testing.T) {
	f := &fakeRPC{}
	c := newTestClient(f)
	c.setTokens("A1", "")

	invoker := func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
		return status.Error(codes.Unauthenticated, common.ErrTokenExpired.Error())
	}

	err := c.accessTokenInterceptor(context.Background(), "/svc/Method", nil, nil, nil, invoker)
	require.Error(t, err)
	require.Nil(t, f.lastRefreshTokenReq)
}

func TestInterceptor_RefreshCallIsNotRefreshed(t *testing.T) {
	f := &fakeRPC{}
	c := newTestClient(f)
	c.setTokens("A1", "R1")

	invoker := func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
		return status.Error(codes.Unauthenticated, common.ErrTokenExpired.Error())
	}

	err := c.accessTokenInterceptor(context.Background(), rpc.MethodRefreshToken, nil, nil, nil, invoker)
	require.Error(t, err)
	require.Nil(t, f.lastRefreshTokenReq)
}

func TestInterceptor_IgnoresOtherErrors(t *testing.T) {
	c := newTestClient(&fakeRPC{})
	c.setTokens("X", "R")
	invoker := func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
		return status.Error(codes.Internal, "boom")
	}
	err := c.accessTokenInterceptor(context.Background(), "/svc/Method", nil, nil, nil, invoker)
	require.Error(t, err)
}

func TestInterceptor_UnauthenticatedButDifferentMessage_NoRefresh(t *testing.T) {
	f := &fakeRPC{}
	c := newTestClient(f)
	c.setTokens("X", "R")
	invoker := func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
		return status.Error(codes.Unauthenticated, "some other reason")
	}
	err := c.accessTokenInterceptor(context.Background(), "/svc/Method", nil, nil, nil, invoker)
	require.Error(t, err)
	require.Nil(t, f.lastRefreshTokenReq)
}

func TestStreamInterceptor_AddsToken(t *testing.T) {
	c := newTestClient(&fakeRPC{})
	c.setTokens("A", "R")

	var got []string
	streamer := func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, opts ...grpc.CallOption) (grpc.ClientStream, error) {
		md, _ := metadata.FromOutgoingContext(ctx)
		got = md.Get(common.AccessTokenHeaderName)
		return nil, nil
	}
	_, err := c.streamAccessTokenInterceptor(context.Background(), &grpc.StreamDesc{}, nil, rpc.MethodSubscribe, streamer)
	require.NoError(t, err)
	require.Equal(t, []string{"A"}, got)
}

/*************
 * mapError tests
 *************/

func TestMapError(t *testing.T) {
	c := newTestClient(&fakeRPC{})

	require.Equal(t, ErrUnauthorized, c.mapError(status.Error(codes.Unauthenticated, "x")))
	require.Equal(t, ErrUnauthorized, c.mapError(status.Error(codes.PermissionDenied, "x")))
	require.Equal(t, ErrUnavailable, c.mapError(status.Error(codes.Unavailable, "x")))
	require.Equal(t, ErrUnavailable, c.mapError(status.Error(codes.DeadlineExceeded, "x")))
	require.Equal(t, ErrNotFound, c.mapError(status.Error(codes.NotFound, "x")))
	require.ErrorIs(t, c.mapError(status.Error(codes.FailedPrecondition, "encryption not enabled")), common.ErrEncryptionNotEnabled)
	require.ErrorContains(t, c.mapError(status.Error(codes.FailedPrecondition, "other")), "rpc error:")
	require.ErrorContains(t, c.mapError(errors.New("plain")), "rpc error:")
	require.NoError(t, c.mapError(nil))
}

/*************
 * unary call tests
 *************/

func TestPing(t *testing.T) {
	require.NoError(t, newTestClient(&fakeRPC{pingResp: &rpc.PingResponse{Status: "OK"}}).Ping(context.Background()))
	require.ErrorIs(t, newTestClient(&fakeRPC{pingResp: &rpc.PingResponse{Status: "NOT_OK"}}).Ping(context.Background()), ErrUnavailable)
	require.ErrorIs(t, newTestClient(&fakeRPC{pingErr: status.Error(codes.Unavailable, "down")}).Ping(context.Background()), ErrUnavailable)
}

func TestGetSalt(t *testing.T) {
	f := &fakeRPC{getSaltResp: &rpc.GetSaltResponse{Salt: []byte{1, 2, 3}}}
	salt, err := newTestClient(f).GetSalt(context.Background(), "u")
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, salt)
	require.Equal(t, "u", f.lastGetSaltReq.Username)

	_, err = newTestClient(&fakeRPC{getSaltErr: status.Error(codes.Unavailable, "x")}).GetSalt(context.Background(), "u")
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestLogin_SetsTokensAndReturnsID(t *testing.T) {
	f := &fakeRPC{loginResp: &rpc.LoginResponse{UserID: "u-1", AccessToken: "A", RefreshToken: "R"}}
	c := newTestClient(f)

	id, err := c.Login(context.Background(), "ann", []byte{9})
	require.NoError(t, err)
	require.Equal(t, "u-1", id)
	access, refresh := c.tokens()
	require.Equal(t, "A", access)
	require.Equal(t, "R", refresh)
	require.Equal(t, []byte{9}, f.lastLoginReq.VerifierCandidate)

	c.Logout()
	access, refresh = c.tokens()
	require.Empty(t, access)
	require.Empty(t, refresh)
}

func TestRegister_MapsError(t *testing.T) {
	f := &fakeRPC{registerErr: status.Error(codes.PermissionDenied, "no")}
	err := newTestClient(f).Register(context.Background(), "u", []byte{1}, []byte{2})
	require.ErrorIs(t, err, ErrUnauthorized)
	require.Equal(t, "u", f.lastRegisterReq.Username)
	require.Equal(t, []byte{1}, f.lastRegisterReq.Salt)
	require.Equal(t, []byte{2}, f.lastRegisterReq.Verifier)
}

func TestExchangeKey(t *testing.T) {
	f := &fakeRPC{exchangeResp: &rpc.ExchangeKeyResponse{Key: "a2V5", Algorithm: "AES-256-GCM", Version: 1, NonceSize: 12, TagSize: 16}}
	km, err := newTestClient(f).ExchangeKey(context.Background())
	require.NoError(t, err)
	require.Equal(t, &models.KeyMaterial{KeyBase64: "a2V5", Algorithm: "AES-256-GCM", Version: 1, NonceSize: 12, TagSize: 16}, km)

	f = &fakeRPC{exchangeErr: status.Error(codes.FailedPrecondition, common.ErrEncryptionNotEnabled.Error())}
	_, err = newTestClient(f).ExchangeKey(context.Background())
	require.ErrorIs(t, err, ErrEncryptionNotEnabled)
}

func TestCreateRecord_UploadsThenCreates(t *testing.T) {
	f := &fakeRPC{
		uploadResp: &rpc.RequestUploadResponse{StorageKey: "k/1", URL: "https://s3/put"},
		createResp: &rpc.CreateRecordResponse{Record: &rpc.Record{
			ID:           "srv-9",
			OwnerID:      "u1",
			Status:       "processing",
			Fields:       map[string]string{"title": "v1:AAAA", "language": "en"},
			DurationMs:   4500,
			CreatedAtMs:  1714557600123,
			OccurredAtMs: 1714557000999,
		}},
	}
	c := newTestClient(f)
	var putURL, putPath string
	c.putArtifact = func(_ context.Context, url string, a models.Artifact) error {
		putURL, putPath = url, a.Path
		return nil
	}

	occurred := time.Date(2024, 5, 1, 9, 50, 0, 0, time.UTC)
	rec, err := c.CreateRecord(context.Background(),
		models.Artifact{Path: "/tmp/a.m4a", ContentType: "audio/mp4", Size: 10},
		models.RecordMeta{OwnerID: "u1", ContactRef: "c-1", OccurredAt: occurred, Payload: map[string]models.Field{"language": models.Plaintext("en")}},
		4500*time.Millisecond,
	)
	require.NoError(t, err)

	require.Equal(t, "audio/mp4", f.lastUploadReq.ContentType)
	require.Equal(t, int64(10), f.lastUploadReq.Size)
	require.Equal(t, "https://s3/put", putURL)
	require.Equal(t, "/tmp/a.m4a", putPath)
	require.Equal(t, "k/1", f.lastCreateReq.StorageKey)
	require.Equal(t, occurred.UnixMilli(), f.lastCreateReq.OccurredAtMs)
	require.Equal(t, int64(4500), f.lastCreateReq.DurationMs)
	require.Equal(t, map[string]string{"language": "en"}, f.lastCreateReq.Fields)

	require.Equal(t, "srv-9", rec.ID)
	require.Equal(t, recstatus.Processing, rec.Status)
	require.Equal(t, models.FieldEncrypted, rec.Fields["title"].Kind)
	require.Equal(t, models.FieldPlaintext, rec.Fields["language"].Kind)
	require.Equal(t, time.Unix(1714557000, 0).UTC(), rec.OccurredAt)
	require.Equal(t, 4500*time.Millisecond, rec.Duration)
}

func TestCreateRecord_PutFailureSkipsCreate(t *testing.T) {
	f := &fakeRPC{uploadResp: &rpc.RequestUploadResponse{StorageKey: "k", URL: "u"}}
	c := newTestClient(f)
	c.putArtifact = func(context.Context, string, models.Artifact) error { return errors.New("403") }

	_, err := c.CreateRecord(context.Background(), models.Artifact{Path: "p"}, models.RecordMeta{}, 0)
	require.ErrorContains(t, err, "artifact upload")
	require.Nil(t, f.lastCreateReq)
}

func TestCreateRecord_RejectsSecondsTimestamp(t *testing.T) {
	f := &fakeRPC{
		uploadResp: &rpc.RequestUploadResponse{StorageKey: "k", URL: "u"},
		createResp: &rpc.CreateRecordResponse{Record: &rpc.Record{ID: "srv-1", Status: "uploaded", OccurredAtMs: 1714557000}},
	}
	c := newTestClient(f)
	c.putArtifact = func(context.Context, string, models.Artifact) error { return nil }

	_, err := c.CreateRecord(context.Background(), models.Artifact{Path: "p"}, models.RecordMeta{}, 0)
	require.ErrorContains(t, err, "occurred_at")
}

func TestListRecords_SkipsMalformed(t *testing.T) {
	f := &fakeRPC{listResp: &rpc.ListRecordsResponse{Records: []*rpc.Record{
		{ID: "a", Status: "ready"},
		{ID: "b", Status: "bogus"},
		{ID: "c", Status: "failed"},
	}}}
	recs, err := newTestClient(f).ListRecords(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.Equal(t, "a", recs[0].ID)
	require.Equal(t, "c", recs[1].ID)
}

func TestDeleteRecord(t *testing.T) {
	f := &fakeRPC{}
	require.NoError(t, newTestClient(f).DeleteRecord(context.Background(), "srv-1"))
	require.Equal(t, "srv-1", f.lastDeleteReq.ID)

	f = &fakeRPC{deleteErr: status.Error(codes.NotFound, "gone")}
	require.ErrorIs(t, newTestClient(f).DeleteRecord(context.Background(), "srv-1"), ErrNotFound)
}

/*************
 * stream tests
 *************/

type fakeRecordStream struct {
	grpc.ClientStream
	ctx  context.Context
	msgs chan *rpc.Record
}

func (s *fakeRecordStream) Recv() (*rpc.Record, error) {
	select {
	case m := <-s.msgs:
		return m, nil
	case <-s.ctx.Done():
		return nil, status.Error(codes.Canceled, "canceled")
	}
}

type fakeDeletionStream struct {
	grpc.ClientStream
	ctx context.Context
	ids chan string
}

func (s *fakeDeletionStream) Recv() (*rpc.DeletionEvent, error) {
	select {
	case id := <-s.ids:
		return &rpc.DeletionEvent{RecordID: id}, nil
	case <-s.ctx.Done():
		return nil, status.Error(codes.Canceled, "canceled")
	}
}

type updates struct {
	mu  sync.Mutex
	got []reconcile.Update
	ch  chan struct{}
}

func newUpdates() *updates { return &updates{ch: make(chan struct{}, 16)} }

func (u *updates) add(up reconcile.Update) {
	u.mu.Lock()
	u.got = append(u.got, up)
	u.mu.Unlock()
	u.ch <- struct{}{}
}

func (u *updates) wait(t *testing.T, n int) []reconcile.Update {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-u.ch:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for update %d", i+1)
		}
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]reconcile.Update(nil), u.got...)
}

func TestSubscribe_DeliversAndCancels(t *testing.T) {
	msgs := make(chan *rpc.Record, 2)
	msgs <- &rpc.Record{ID: "srv-1", Status: "processing"}
	msgs <- &rpc.Record{ID: "srv-1", Status: "ready", Fields: map[string]string{"title": "v1:xx"}}

	f := &fakeRPC{subscribeFn: func(ctx context.Context, _ int) (rpc.RecordStreamClient, error) {
		return &fakeRecordStream{ctx: ctx, msgs: msgs}, nil
	}}
	c := newTestClient(f)
	u := newUpdates()

	h, err := c.Subscribe(context.Background(), "srv-1", u.add)
	require.NoError(t, err)

	got := u.wait(t, 2)
	require.Equal(t, recstatus.Processing, got[0].Record.Status)
	require.Equal(t, recstatus.Ready, got[1].Record.Status)
	require.Equal(t, models.FieldEncrypted, got[1].Record.Fields["title"].Kind)

	h.Cancel()
	select {
	case <-h.(*Subscription).Done():
	case <-time.After(2 * time.Second):
		t.Fatal("subscription goroutine did not stop")
	}
}

func TestSubscribe_ReconnectsAfterTransportError(t *testing.T) {
	f := &fakeRPC{subscribeFn: func(ctx context.Context, n int) (rpc.RecordStreamClient, error) {
		if n == 1 {
			return nil, status.Error(codes.Unavailable, "connection refused")
		}
		msgs := make(chan *rpc.Record, 1)
		msgs <- &rpc.Record{ID: "srv-1", Status: "uploaded"}
		return &fakeRecordStream{ctx: ctx, msgs: msgs}, nil
	}}
	c := newTestClient(f)
	u := newUpdates()

	h, err := c.Subscribe(context.Background(), "srv-1", u.add)
	require.NoError(t, err)
	defer h.Cancel()

	got := u.wait(t, 2)
	require.ErrorIs(t, got[0].Err, reconcile.ErrSubscriptionTransport)
	require.ErrorIs(t, got[0].Err, ErrUnavailable)
	require.NotNil(t, got[1].Record)
	require.Equal(t, recstatus.Uploaded, got[1].Record.Status)
}

func TestSubscribe_NotFoundStops(t *testing.T) {
	f := &fakeRPC{subscribeFn: func(context.Context, int) (rpc.RecordStreamClient, error) {
		return nil, status.Error(codes.NotFound, "no such record")
	}}
	c := newTestClient(f)
	u := newUpdates()

	h, err := c.Subscribe(context.Background(), "srv-1", u.add)
	require.NoError(t, err)

	select {
	case <-h.(*Subscription).Done():
	case <-time.After(2 * time.Second):
		t.Fatal("subscription did not stop on NotFound")
	}
	got := u.wait(t, 1)
	require.ErrorIs(t, got[0].Err, ErrNotFound)
	require.Equal(t, 1, f.subscribes)
}

func TestWatchDeletions(t *testing.T) {
	ids := make(chan string, 2)
	ids <- "srv-1"
	ids <- "srv-2"
	f := &fakeRPC{deletionsFn: func(ctx context.Context) (rpc.DeletionStreamClient, error) {
		return &fakeDeletionStream{ctx: ctx, ids: ids}, nil
	}}
	c := newTestClient(f)

	deleted := make(chan string, 2)
	h, err := c.WatchDeletions(context.Background(), func(id string) { deleted <- id })
	require.NoError(t, err)
	defer h.Cancel()

	var got []string
	for i := 0; i < 2; i++ {
		select {
		case id := <-deleted:
			got = append(got, id)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for deletion")
		}
	}
	assert.Equal(t, []string{"srv-1", "srv-2"}, got)
}
