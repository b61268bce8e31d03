package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// MemoServiceClient is the client stub of the memo service. Every call is
// sent with the JSON content subtype.
type MemoServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewMemoServiceClient(cc grpc.ClientConnInterface) *MemoServiceClient {
	return &MemoServiceClient{cc: cc}
}

func withCodec(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	if err := cc.Invoke(ctx, method, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *MemoServiceClient) RegisterUser(ctx context.Context, in *RegisterUserRequest, opts ...grpc.CallOption) (*RegisterUserResponse, error) {
	return invoke[RegisterUserResponse](ctx, c.cc, MethodRegisterUser, in, opts)
}

func (c *MemoServiceClient) GetSalt(ctx context.Context, in *GetSaltRequest, opts ...grpc.CallOption) (*GetSaltResponse, error) {
	return invoke[GetSaltResponse](ctx, c.cc, MethodGetSalt, in, opts)
}

func (c *MemoServiceClient) Login(ctx context.Context, in *LoginRequest, opts ...grpc.CallOption) (*LoginResponse, error) {
	return invoke[LoginResponse](ctx, c.cc, MethodLogin, in, opts)
}

func (c *MemoServiceClient) RefreshToken(ctx context.Context, in *RefreshTokenRequest, opts ...grpc.CallOption) (*RefreshTokenResponse, error) {
	return invoke[RefreshTokenResponse](ctx, c.cc, MethodRefreshToken, in, opts)
}

func (c *MemoServiceClient) Ping(ctx context.Context, in *PingRequest, opts ...grpc.CallOption) (*PingResponse, error) {
	return invoke[PingResponse](ctx, c.cc, MethodPing, in, opts)
}

func (c *MemoServiceClient) ExchangeKey(ctx context.Context, in *ExchangeKeyRequest, opts ...grpc.CallOption) (*ExchangeKeyResponse, error) {
	return invoke[ExchangeKeyResponse](ctx, c.cc, MethodExchangeKey, in, opts)
}

func (c *MemoServiceClient) RequestUpload(ctx context.Context, in *RequestUploadRequest, opts ...grpc.CallOption) (*RequestUploadResponse, error) {
	return invoke[RequestUploadResponse](ctx, c.cc, MethodRequestUpload, in, opts)
}

func (c *MemoServiceClient) CreateRecord(ctx context.Context, in *CreateRecordRequest, opts ...grpc.CallOption) (*CreateRecordResponse, error) {
	return invoke[CreateRecordResponse](ctx, c.cc, MethodCreateRecord, in, opts)
}

func (c *MemoServiceClient) ListRecords(ctx context.Context, in *ListRecordsRequest, opts ...grpc.CallOption) (*ListRecordsResponse, error) {
	return invoke[ListRecordsResponse](ctx, c.cc, MethodListRecords, in, opts)
}

func (c *MemoServiceClient) DeleteRecord(ctx context.Context, in *DeleteRecordRequest, opts ...grpc.CallOption) (*DeleteRecordResponse, error) {
	return invoke[DeleteRecordResponse](ctx, c.cc, MethodDeleteRecord, in, opts)
}

func (c *MemoServiceClient) AdvanceRecord(ctx context.Context, in *AdvanceRecordRequest, opts ...grpc.CallOption) (*AdvanceRecordResponse, error) {
	return invoke[AdvanceRecordResponse](ctx, c.cc, MethodAdvanceRecord, in, opts)
}

// RecordStreamClient receives Subscribe pushes.
type RecordStreamClient interface {
	Recv() (*Record, error)
	grpc.ClientStream
}

type recordStreamClient struct{ grpc.ClientStream }

func (s *recordStreamClient) Recv() (*Record, error) {
	m := new(Record)
	if err := s.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// DeletionStreamClient receives WatchDeletions events.
type DeletionStreamClient interface {
	Recv() (*DeletionEvent, error)
	grpc.ClientStream
}

type deletionStreamClient struct{ grpc.ClientStream }

func (s *deletionStreamClient) Recv() (*DeletionEvent, error) {
	m := new(DeletionEvent)
	if err := s.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (c *MemoServiceClient) openStream(ctx context.Context, desc *grpc.StreamDesc, method string, in any, opts []grpc.CallOption) (grpc.ClientStream, error) {
	stream, err := c.cc.NewStream(ctx, desc, method, withCodec(opts)...)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return stream, nil
}

func (c *MemoServiceClient) Subscribe(ctx context.Context, in *SubscribeRequest, opts ...grpc.CallOption) (RecordStreamClient, error) {
	stream, err := c.openStream(ctx, &ServiceDesc.Streams[0], MethodSubscribe, in, opts)
	if err != nil {
		return nil, err
	}
	return &recordStreamClient{stream}, nil
}

func (c *MemoServiceClient) WatchDeletions(ctx context.Context, in *WatchDeletionsRequest, opts ...grpc.CallOption) (DeletionStreamClient, error) {
	stream, err := c.openStream(ctx, &ServiceDesc.Streams[1], MethodWatchDeletions, in, opts)
	if err != nil {
		return nil, err
	}
	return &deletionStreamClient{stream}, nil
}
