package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/ChuLiYu/decision-engine/internal/planner"
)

// Client calls a remote Planner service.
type Client struct {
	conn *grpc.ClientConn
	own  bool
}

// Dial connects to target without transport security.
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, own: true}, nil
}

// NewClient wraps an existing connection. Close leaves conn open.
func NewClient(conn *grpc.ClientConn) *Client {
	return &Client{conn: conn}
}

func (c *Client) Train(ctx context.Context, req planner.TrainRequest) (planner.TrainResult, error) {
	var out planner.TrainResult
	err := c.conn.Invoke(ctx, trainMethod, &req, &out, grpc.CallContentSubtype(CodecName))
	return out, err
}

func (c *Client) Plan(ctx context.Context, req planner.PlanRequest) (planner.PlanResult, error) {
	var out planner.PlanResult
	err := c.conn.Invoke(ctx, planMethod, &req, &out, grpc.CallContentSubtype(CodecName))
	return out, err
}

func (c *Client) Close() error {
	if !c.own {
		return nil
	}
	return c.conn.Close()
}
