package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName 节点间 gRPC 服务名
const ServiceName = "skywidget.PeerService"

const (
	methodHealth      = "/" + ServiceName + "/Health"
	methodGetNode     = "/" + ServiceName + "/GetNode"
	methodListNodes   = "/" + ServiceName + "/ListNodes"
	methodNotifyAlert = "/" + ServiceName + "/NotifyAlert"
)

// PeerServiceServer 与 HTTP 节点接口一一对应，消息使用 protobuf 通用类型
type PeerServiceServer interface {
	Health(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	GetNode(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	ListNodes(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
	NotifyAlert(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterPeerServiceServer 注册服务
func RegisterPeerServiceServer(s grpc.ServiceRegistrar, srv PeerServiceServer) {
	s.RegisterService(&PeerServiceDesc, srv)
}

// unaryMethod 生成一元方法描述
func unaryMethod[Req any, PReq interface {
	*Req
}](name, fullMethod string, call func(PeerServiceServer, context.Context, PReq) (any, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := PReq(new(Req))
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(PeerServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(PeerServiceServer), ctx, req.(PReq))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// PeerServiceDesc 手写的服务描述
var PeerServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PeerServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("Health", methodHealth, func(s PeerServiceServer, ctx context.Context, in *emptypb.Empty) (any, error) {
			return s.Health(ctx, in)
		}),
		unaryMethod("GetNode", methodGetNode, func(s PeerServiceServer, ctx context.Context, in *emptypb.Empty) (any, error) {
			return s.GetNode(ctx, in)
		}),
		unaryMethod("ListNodes", methodListNodes, func(s PeerServiceServer, ctx context.Context, in *emptypb.Empty) (any, error) {
			return s.ListNodes(ctx, in)
		}),
		unaryMethod("NotifyAlert", methodNotifyAlert, func(s PeerServiceServer, ctx context.Context, in *structpb.Struct) (any, error) {
			return s.NotifyAlert(ctx, in)
		}),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "skywidget/peer.proto",
}
