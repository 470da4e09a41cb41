package grpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"skywidget/internal/models"
)

// peerClient 测试用的节点 gRPC 客户端
type peerClient struct {
	conn *grpc.ClientConn
}

// dialPeer 建立到节点的明文连接
func dialPeer(target string, opts ...grpc.DialOption) (*peerClient, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", target, err)
	}
	return &peerClient{conn: conn}, nil
}

func (c *peerClient) Close() error {
	return c.conn.Close()
}

// Health 返回 {status, version, timestamp}
func (c *peerClient) Health(ctx context.Context) (map[string]any, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, methodHealth, &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}

func (c *peerClient) GetNode(ctx context.Context) (models.NodeInfo, error) {
	var node models.NodeInfo
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, methodGetNode, &emptypb.Empty{}, out); err != nil {
		return node, err
	}
	err := fromStruct(out, &node)
	return node, err
}

func (c *peerClient) ListNodes(ctx context.Context) ([]models.NodeInfo, error) {
	out := new(structpb.ListValue)
	if err := c.conn.Invoke(ctx, methodListNodes, &emptypb.Empty{}, out); err != nil {
		return nil, err
	}

	nodes := make([]models.NodeInfo, 0, len(out.GetValues()))
	for _, v := range out.GetValues() {
		var node models.NodeInfo
		if err := fromStruct(v.GetStructValue(), &node); err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

// NotifyAlert 向节点投递一条告警
func (c *peerClient) NotifyAlert(ctx context.Context, notification models.AlertNotification) error {
	in, err := toStruct(notification)
	if err != nil {
		return err
	}
	return c.conn.Invoke(ctx, methodNotifyAlert, in, new(structpb.Struct))
}
