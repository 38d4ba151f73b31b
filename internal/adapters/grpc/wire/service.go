// Package wire は siteaccess.v1.AccessService のサービス定義とメッセージ変換を提供します。
// メッセージは google.protobuf.Struct で表現するため、コード生成を必要としません。
package wire

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName は gRPC のサービス名です。
const ServiceName = "siteaccess.v1.AccessService"

const (
	MethodScanIdentifier        = "/" + ServiceName + "/ScanIdentifier"
	MethodRecordDecision        = "/" + ServiceName + "/RecordDecision"
	MethodListRecentActivity    = "/" + ServiceName + "/ListRecentActivity"
	MethodBulkCloseStaleEntries = "/" + ServiceName + "/BulkCloseStaleEntries"
	MethodCurrentOccupancy      = "/" + ServiceName + "/CurrentOccupancy"
)

// AccessServer は AccessService のサーバー実装が満たすインターフェースです。
type AccessServer interface {
	ScanIdentifier(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	RecordDecision(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListRecentActivity(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	BulkCloseStaleEntries(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	CurrentOccupancy(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc は AccessService のサービス記述子です。
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AccessServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ScanIdentifier", Handler: unary(MethodScanIdentifier, AccessServer.ScanIdentifier)},
		{MethodName: "RecordDecision", Handler: unary(MethodRecordDecision, AccessServer.RecordDecision)},
		{MethodName: "ListRecentActivity", Handler: unary(MethodListRecentActivity, AccessServer.ListRecentActivity)},
		{MethodName: "BulkCloseStaleEntries", Handler: unary(MethodBulkCloseStaleEntries, AccessServer.BulkCloseStaleEntries)},
		{MethodName: "CurrentOccupancy", Handler: unary(MethodCurrentOccupancy, AccessServer.CurrentOccupancy)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "siteaccess/v1/access.proto",
}

// RegisterAccessServer はサーバー実装を登録します。
func RegisterAccessServer(s grpc.ServiceRegistrar, srv AccessServer) {
	s.RegisterService(&ServiceDesc, srv)
}

type unaryMethod func(AccessServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(fullMethod string, call unaryMethod) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(AccessServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(AccessServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// AccessClient は AccessService のクライアントスタブです。
type AccessClient struct {
	cc grpc.ClientConnInterface
}

// NewAccessClient は AccessClient を生成します。
func NewAccessClient(cc grpc.ClientConnInterface) *AccessClient {
	return &AccessClient{cc: cc}
}

// Invoke は method を呼び出し、応答を返します。
func (c *AccessClient) Invoke(ctx context.Context, method string, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
