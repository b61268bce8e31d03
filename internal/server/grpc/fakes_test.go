package grpc

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/memokeeper/internal/common"
	"github.com/dmitrijs2005/memokeeper/internal/logging"
	"github.com/dmitrijs2005/memokeeper/internal/rpc"
	"github.com/dmitrijs2005/memokeeper/internal/server/auth"
	"github.com/dmitrijs2005/memokeeper/internal/server/hub"
	"github.com/dmitrijs2005/memokeeper/internal/server/models"
	"github.com/dmitrijs2005/memokeeper/internal/server/services"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/test/bufconn"
)

const (
	testSecret   = "secret"
	testPipeline = "pipe"
)

type fakeUsers struct {
	regErr    error
	salt      []byte
	saltErr   error
	loginID   string
	loginErr  error
	refresh   *services.TokenPair
	refreshEr error
}

func (f *fakeUsers) Register(_ context.Context, username string, _, _ []byte) (*models.User, error) {
	if f.regErr != nil {
		return nil, f.regErr
	}
	return &models.User{ID: "u-" + username, UserName: username}, nil
}

func (f *fakeUsers) GetSalt(context.Context, string) ([]byte, error) { return f.salt, f.saltErr }

func (f *fakeUsers) Login(context.Context, string, []byte) (string, *services.TokenPair, error) {
	if f.loginErr != nil {
		return "", nil, f.loginErr
	}
	return f.loginID, &services.TokenPair{AccessToken: "a", RefreshToken: "r"}, nil
}

func (f *fakeUsers) RefreshToken(context.Context, string) (*services.TokenPair, error) {
	return f.refresh, f.refreshEr
}

type fakeKeys struct {
	key []byte
	err error
}

func (f *fakeKeys) UserKey(context.Context, string) ([]byte, int, error) {
	if f.err != nil {
		return nil, 0, f.err
	}
	return append([]byte(nil), f.key...), 1, nil
}

type fakeRecords struct {
	mu       sync.Mutex
	rows     map[string]*models.Record
	created  services.NewRecord
	advanced services.Advance
	err      error
}

func (f *fakeRecords) put(r *models.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[r.ID] = r
}

func (f *fakeRecords) RequestUpload(_ context.Context, userID, _ string, _ int64) (*services.UploadTicket, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &services.UploadTicket{StorageKey: "users/" + userID + "/k", URL: "https://s3/k"}, nil
}

func (f *fakeRecords) Create(_ context.Context, userID string, in services.NewRecord) (*models.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.created = in
	return &models.Record{ID: "r-new", UserID: userID, Status: "uploaded", OccurredAt: in.OccurredAt, CreatedAt: time.UnixMilli(1714557600000)}, nil
}

func (f *fakeRecords) List(_ context.Context, userID string) ([]*models.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Record
	for _, r := range f.rows {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, f.err
}

func (f *fakeRecords) Get(_ context.Context, userID, id string) (*models.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[id]
	if !ok || r.UserID != userID {
		return nil, common.ErrorNotFound
	}
	return r, nil
}

func (f *fakeRecords) Delete(_ context.Context, userID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[id]
	if !ok || r.UserID != userID {
		return common.ErrorNotFound
	}
	delete(f.rows, id)
	return nil
}

func (f *fakeRecords) Advance(_ context.Context, in services.Advance) (*models.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.advanced = in
	if f.err != nil {
		return nil, f.err
	}
	r, ok := f.rows[in.ID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	r.Status = in.Status
	return r, nil
}

type testEnv struct {
	srv     *GRPCServer
	users   *fakeUsers
	keys    *fakeKeys
	records *fakeRecords
	hub     *hub.Hub
	client  *rpc.MemoServiceClient
	conn    *grpc.ClientConn
}

func newTestServer(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		users:   &fakeUsers{loginID: "u-1"},
		keys:    &fakeKeys{key: []byte("0123456789abcdef0123456789abcdef")},
		records: &fakeRecords{rows: map[string]*models.Record{}},
		hub:     hub.New(),
	}
	env.srv = NewGRPCServer("127.0.0.1:0", logging.NewNop(), env.users, env.keys, env.records, env.hub,
		Options{JWTSecret: testSecret, PipelineToken: testPipeline})
	return env
}

// dial starts the server on an in-memory listener.
func (e *testEnv) dial(t *testing.T) *rpc.MemoServiceClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	s := e.srv.NewServer()
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	e.conn = conn
	e.client = rpc.NewMemoServiceClient(conn)
	return e.client
}

func asUser(t *testing.T, ctx context.Context, userID string) context.Context {
	t.Helper()
	tok, err := auth.GenerateToken(userID, []byte(testSecret), time.Minute)
	require.NoError(t, err)
	return metadata.AppendToOutgoingContext(ctx, common.AccessTokenHeaderName, tok)
}

func asPipeline(ctx context.Context, token string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, common.PipelineTokenHeaderName, token)
}
