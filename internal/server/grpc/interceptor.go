package grpc

import (
	"context"
	"crypto/subtle"
	"errors"

	"github.com/dmitrijs2005/memokeeper/internal/common"
	"github.com/dmitrijs2005/memokeeper/internal/rpc"
	"github.com/dmitrijs2005/memokeeper/internal/server/auth"
	"github.com/dmitrijs2005/memokeeper/internal/server/metrics"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type ctxKey string

const userIDKey ctxKey = "userID"

// publicMethods need no access token.
var publicMethods = map[string]bool{
	rpc.MethodRegisterUser: true,
	rpc.MethodGetSalt:      true,
	rpc.MethodLogin:        true,
	rpc.MethodRefreshToken: true,
	rpc.MethodPing:         true,
}

func userIDFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

func firstHeader(ctx context.Context, name string) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if values := md.Get(name); len(values) > 0 {
		return values[0]
	}
	return ""
}

// authenticate resolves the caller of a protected method. AdvanceRecord is
// called by the pipeline and carries the pipeline token instead.
func (s *GRPCServer) authenticate(ctx context.Context, method string) (context.Context, error) {
	if publicMethods[method] {
		return ctx, nil
	}

	if method == rpc.MethodAdvanceRecord {
		token := firstHeader(ctx, common.PipelineTokenHeaderName)
		if s.pipelineToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.pipelineToken)) != 1 {
			return nil, status.Error(codes.PermissionDenied, "invalid pipeline token")
		}
		return ctx, nil
	}

	accessToken := firstHeader(ctx, common.AccessTokenHeaderName)
	if accessToken == "" {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	userID, err := auth.GetUserIDFromToken(accessToken, s.jwtSecret)
	if err != nil {
		if errors.Is(err, common.ErrTokenExpired) {
			return nil, status.Error(codes.Unauthenticated, common.ErrTokenExpired.Error())
		}
		return nil, status.Error(codes.Unauthenticated, common.ErrInvalidToken.Error())
	}

	return context.WithValue(ctx, userIDKey, userID), nil
}

func (s *GRPCServer) accessTokenInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	ctx, err := s.authenticate(ctx, info.FullMethod)
	if err != nil {
		return nil, err
	}
	return handler(ctx, req)
}

type authedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (a *authedStream) Context() context.Context { return a.ctx }

func (s *GRPCServer) streamAccessTokenInterceptor(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	ctx, err := s.authenticate(ss.Context(), info.FullMethod)
	if err != nil {
		return err
	}

	g := metrics.OpenStreams.WithLabelValues(info.FullMethod)
	g.Inc()
	defer g.Dec()

	return handler(srv, &authedStream{ServerStream: ss, ctx: ctx})
}

func (s *GRPCServer) metricsInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	resp, err := handler(ctx, req)
	metrics.RPCTotal.WithLabelValues(info.FullMethod, status.Code(err).String()).Inc()
	return resp, err
}
