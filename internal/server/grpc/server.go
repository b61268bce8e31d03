// Package grpc exposes the memo service over gRPC: unary handlers, the two
// server streams and the token interceptors.
package grpc

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/dmitrijs2005/memokeeper/internal/logging"
	"github.com/dmitrijs2005/memokeeper/internal/rpc"
	"github.com/dmitrijs2005/memokeeper/internal/server/models"
	"github.com/dmitrijs2005/memokeeper/internal/server/services"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
)

type UserService interface {
	Register(ctx context.Context, username string, salt, verifier []byte) (*models.User, error)
	GetSalt(ctx context.Context, username string) ([]byte, error)
	Login(ctx context.Context, username string, verifierCandidate []byte) (string, *services.TokenPair, error)
	RefreshToken(ctx context.Context, refreshToken string) (*services.TokenPair, error)
}

type KeyService interface {
	UserKey(ctx context.Context, userID string) ([]byte, int, error)
}

type RecordService interface {
	RequestUpload(ctx context.Context, userID, contentType string, size int64) (*services.UploadTicket, error)
	Create(ctx context.Context, userID string, in services.NewRecord) (*models.Record, error)
	List(ctx context.Context, userID string) ([]*models.Record, error)
	Get(ctx context.Context, userID, id string) (*models.Record, error)
	Delete(ctx context.Context, userID, id string) error
	Advance(ctx context.Context, in services.Advance) (*models.Record, error)
}

// Subscriber is the read side of the change hub.
type Subscriber interface {
	SubscribeRecord(id string) (<-chan *models.Record, func())
	SubscribeDeletions(userID string) (<-chan string, func())
}

type GRPCServer struct {
	rpc.UnimplementedMemoServiceServer
	address       string
	users         UserService
	keys          KeyService
	records       RecordService
	hub           Subscriber
	logger        logging.Logger
	jwtSecret     []byte
	pipelineToken string
	health        *health.Server
}

// Options carries the secrets checked by the interceptors.
type Options struct {
	JWTSecret     string
	PipelineToken string
}

func NewGRPCServer(a string, l logging.Logger, us UserService, ks KeyService, rs RecordService, hub Subscriber, opts Options) *GRPCServer {
	return &GRPCServer{
		address:       a,
		logger:        l.With("module", "grpc_server"),
		users:         us,
		keys:          ks,
		records:       rs,
		hub:           hub,
		jwtSecret:     []byte(opts.JWTSecret),
		pipelineToken: opts.PipelineToken,
		health:        health.NewServer(),
	}
}

// NewServer builds a grpc.Server with the memo and health services registered.
func (s *GRPCServer) NewServer() *grpc.Server {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(s.metricsInterceptor, s.accessTokenInterceptor),
		grpc.ChainStreamInterceptor(s.streamAccessTokenInterceptor),
		grpc.KeepaliveParams(keepalive.ServerParameters{Time: 30 * time.Second, Timeout: 10 * time.Second}),
	)
	rpc.RegisterMemoServiceServer(srv, s)
	healthpb.RegisterHealthServer(srv, s.health)
	s.health.SetServingStatus(rpc.ServiceName, healthpb.HealthCheckResponse_SERVING)
	return srv
}

func (s *GRPCServer) Run(ctx context.Context) error {

	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := s.NewServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		s.health.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}

	return nil
}
