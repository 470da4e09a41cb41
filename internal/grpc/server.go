package grpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"skywidget/internal/alert"
	"skywidget/internal/logger"
	"skywidget/internal/models"
)

// PeerLister 已发现节点来源
type PeerLister interface {
	Nodes() []models.NodeInfo
}

type Server struct {
	notifier *alert.Notifier
	peers    PeerLister
	version  string
	now      func() time.Time
	log      *zap.Logger
}

func NewServer(notifier *alert.Notifier, peers PeerLister, version string) *Server {
	return &Server{
		notifier: notifier,
		peers:    peers,
		version:  version,
		now:      time.Now,
		log:      logger.Named("grpc"),
	}
}

func (s *Server) Health(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"status":    "ok",
		"version":   s.version,
		"timestamp": float64(s.now().UnixMilli()),
	})
}

func (s *Server) GetNode(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	out, err := toStruct(s.notifier.Local())
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode node: %v", err)
	}
	return out, nil
}

func (s *Server) ListNodes(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	var nodes []models.NodeInfo
	if s.peers != nil {
		nodes = s.peers.Nodes()
	}

	values := make([]*structpb.Value, 0, len(nodes))
	for _, node := range nodes {
		st, err := toStruct(node)
		if err != nil {
			return nil, status.Errorf(codes.Internal, "encode node %s: %v", node.ID, err)
		}
		values = append(values, structpb.NewStructValue(st))
	}
	return &structpb.ListValue{Values: values}, nil
}

func (s *Server) NotifyAlert(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var notification models.AlertNotification
	if err := fromStruct(req, &notification); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "decode alert: %v", err)
	}
	if notification.SourceNodeID == "" || notification.SourceNodeName == "" || notification.Message == "" {
		return nil, status.Error(codes.InvalidArgument, "source_node_id, source_node_name and message are required")
	}

	s.notifier.Receive(notification)

	return structpb.NewStruct(map[string]any{
		"status":  "ok",
		"message": "Alert received",
	})
}

// toStruct 经 JSON 转为 structpb.Struct，字段名与 HTTP 接口一致
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

func fromStruct(s *structpb.Struct, out any) error {
	data, err := json.Marshal(s.AsMap())
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// loggingInterceptor 记录每次调用的方法与耗时
func loggingInterceptor(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		log.Debug("gRPC call",
			zap.String("method", info.FullMethod),
			zap.Duration("duration", time.Since(start)),
			zap.String("code", status.Code(err).String()),
		)
		return resp, err
	}
}

// NewGRPCServer 创建并注册节点服务与标准健康检查
func NewGRPCServer(srv *Server) *grpc.Server {
	s := grpc.NewServer(grpc.UnaryInterceptor(loggingInterceptor(srv.log)))

	RegisterPeerServiceServer(s, srv)

	healthServer := health.NewServer()
	healthServer.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, healthServer)

	return s
}

// Serve 在 addr 上监听，直到 s.Stop/GracefulStop
func Serve(s *grpc.Server, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	logger.Info("gRPC server listening", zap.String("address", addr))

	if err := s.Serve(lis); err != nil && err != grpc.ErrServerStopped {
		return err
	}
	return nil
}
