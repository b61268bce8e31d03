// Package rpc describes the memokeeper gRPC service: message types, the
// service descriptor used to register a server, and a client stub. Messages
// are encoded with a JSON codec registered under the "json" content subtype.
package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const ServiceName = "memokeeper.v1.MemoService"

const (
	MethodRegisterUser   = "/" + ServiceName + "/RegisterUser"
	MethodGetSalt        = "/" + ServiceName + "/GetSalt"
	MethodLogin          = "/" + ServiceName + "/Login"
	MethodRefreshToken   = "/" + ServiceName + "/RefreshToken"
	MethodPing           = "/" + ServiceName + "/Ping"
	MethodExchangeKey    = "/" + ServiceName + "/ExchangeKey"
	MethodRequestUpload  = "/" + ServiceName + "/RequestUpload"
	MethodCreateRecord   = "/" + ServiceName + "/CreateRecord"
	MethodListRecords    = "/" + ServiceName + "/ListRecords"
	MethodDeleteRecord   = "/" + ServiceName + "/DeleteRecord"
	MethodAdvanceRecord  = "/" + ServiceName + "/AdvanceRecord"
	MethodSubscribe      = "/" + ServiceName + "/Subscribe"
	MethodWatchDeletions = "/" + ServiceName + "/WatchDeletions"
)

// MemoServiceServer is implemented by the backend.
type MemoServiceServer interface {
	RegisterUser(context.Context, *RegisterUserRequest) (*RegisterUserResponse, error)
	GetSalt(context.Context, *GetSaltRequest) (*GetSaltResponse, error)
	Login(context.Context, *LoginRequest) (*LoginResponse, error)
	RefreshToken(context.Context, *RefreshTokenRequest) (*RefreshTokenResponse, error)
	Ping(context.Context, *PingRequest) (*PingResponse, error)
	ExchangeKey(context.Context, *ExchangeKeyRequest) (*ExchangeKeyResponse, error)
	RequestUpload(context.Context, *RequestUploadRequest) (*RequestUploadResponse, error)
	CreateRecord(context.Context, *CreateRecordRequest) (*CreateRecordResponse, error)
	ListRecords(context.Context, *ListRecordsRequest) (*ListRecordsResponse, error)
	DeleteRecord(context.Context, *DeleteRecordRequest) (*DeleteRecordResponse, error)
	AdvanceRecord(context.Context, *AdvanceRecordRequest) (*AdvanceRecordResponse, error)
	Subscribe(*SubscribeRequest, RecordStream) error
	WatchDeletions(*WatchDeletionsRequest, DeletionStream) error
}

// RecordStream is the server side of Subscribe.
type RecordStream interface {
	Send(*Record) error
	grpc.ServerStream
}

// DeletionStream is the server side of WatchDeletions.
type DeletionStream interface {
	Send(*DeletionEvent) error
	grpc.ServerStream
}

// UnimplementedMemoServiceServer can be embedded to satisfy the interface.
type UnimplementedMemoServiceServer struct{}

func unimplemented(name string) error {
	return status.Errorf(codes.Unimplemented, "method %s not implemented", name)
}

func (UnimplementedMemoServiceServer) RegisterUser(context.Context, *RegisterUserRequest) (*RegisterUserResponse, error) {
	return nil, unimplemented("RegisterUser")
}
func (UnimplementedMemoServiceServer) GetSalt(context.Context, *GetSaltRequest) (*GetSaltResponse, error) {
	return nil, unimplemented("GetSalt")
}
func (UnimplementedMemoServiceServer) Login(context.Context, *LoginRequest) (*LoginResponse, error) {
	return nil, unimplemented("Login")
}
func (UnimplementedMemoServiceServer) RefreshToken(context.Context, *RefreshTokenRequest) (*RefreshTokenResponse, error) {
	return nil, unimplemented("RefreshToken")
}
func (UnimplementedMemoServiceServer) Ping(context.Context, *PingRequest) (*PingResponse, error) {
	return nil, unimplemented("Ping")
}
func (UnimplementedMemoServiceServer) ExchangeKey(context.Context, *ExchangeKeyRequest) (*ExchangeKeyResponse, error) {
	return nil, unimplemented("ExchangeKey")
}
func (UnimplementedMemoServiceServer) RequestUpload(context.Context, *RequestUploadRequest) (*RequestUploadResponse, error) {
	return nil, unimplemented("RequestUpload")
}
func (UnimplementedMemoServiceServer) CreateRecord(context.Context, *CreateRecordRequest) (*CreateRecordResponse, error) {
	return nil, unimplemented("CreateRecord")
}
func (UnimplementedMemoServiceServer) ListRecords(context.Context, *ListRecordsRequest) (*ListRecordsResponse, error) {
	return nil, unimplemented("ListRecords")
}
func (UnimplementedMemoServiceServer) DeleteRecord(context.Context, *DeleteRecordRequest) (*DeleteRecordResponse, error) {
	return nil, unimplemented("DeleteRecord")
}
func (UnimplementedMemoServiceServer) AdvanceRecord(context.Context, *AdvanceRecordRequest) (*AdvanceRecordResponse, error) {
	return nil, unimplemented("AdvanceRecord")
}
func (UnimplementedMemoServiceServer) Subscribe(*SubscribeRequest, RecordStream) error {
	return unimplemented("Subscribe")
}
func (UnimplementedMemoServiceServer) WatchDeletions(*WatchDeletionsRequest, DeletionStream) error {
	return unimplemented("WatchDeletions")
}

// RegisterMemoServiceServer registers srv on s.
func RegisterMemoServiceServer(s grpc.ServiceRegistrar, srv MemoServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func unary[Req any, Resp any](name string, call func(MemoServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	full := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(MemoServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: full}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(MemoServiceServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

type recordStream struct{ grpc.ServerStream }

func (s *recordStream) Send(r *Record) error { return s.ServerStream.SendMsg(r) }

type deletionStream struct{ grpc.ServerStream }

func (s *deletionStream) Send(e *DeletionEvent) error { return s.ServerStream.SendMsg(e) }

// ServiceDesc is the grpc.ServiceDesc of the memo service.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MemoServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("RegisterUser", MemoServiceServer.RegisterUser),
		unary("GetSalt", MemoServiceServer.GetSalt),
		unary("Login", MemoServiceServer.Login),
		unary("RefreshToken", MemoServiceServer.RefreshToken),
		unary("Ping", MemoServiceServer.Ping),
		unary("ExchangeKey", MemoServiceServer.ExchangeKey),
		unary("RequestUpload", MemoServiceServer.RequestUpload),
		unary("CreateRecord", MemoServiceServer.CreateRecord),
		unary("ListRecords", MemoServiceServer.ListRecords),
		unary("DeleteRecord", MemoServiceServer.DeleteRecord),
		unary("AdvanceRecord", MemoServiceServer.AdvanceRecord),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName: "Subscribe",
			Handler: func(srv interface{}, stream grpc.ServerStream) error {
				in := new(SubscribeRequest)
				if err := stream.RecvMsg(in); err != nil {
					return err
				}
				return srv.(MemoServiceServer).Subscribe(in, &recordStream{stream})
			},
			ServerStreams: true,
		},
		{
			StreamName: "WatchDeletions",
			Handler: func(srv interface{}, stream grpc.ServerStream) error {
				in := new(WatchDeletionsRequest)
				if err := stream.RecvMsg(in); err != nil {
					return err
				}
				return srv.(MemoServiceServer).WatchDeletions(in, &deletionStream{stream})
			},
			ServerStreams: true,
		},
	},
	Metadata: "internal/rpc/service.go",
}
