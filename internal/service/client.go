package service

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client calls the task and notification services on behalf of one user.
type Client struct {
	conn  grpc.ClientConnInterface
	token string
}

func NewClient(conn grpc.ClientConnInterface, token string) *Client {
	return &Client{conn: conn, token: token}
}

// Call invokes service/method with body and returns the decoded response.
func (c *Client) Call(ctx context.Context, service, method string, body map[string]interface{}) (map[string]interface{}, error) {
	req, err := structpb.NewStruct(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	if c.token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+c.token)
	}

	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, FullMethod(service, method), req, resp); err != nil {
		return nil, err
	}
	return resp.AsMap(), nil
}

func (c *Client) Task(ctx context.Context, method string, body map[string]interface{}) (map[string]interface{}, error) {
	return c.Call(ctx, TaskServiceName, method, body)
}

func (c *Client) Notifications(ctx context.Context, method string, body map[string]interface{}) (map[string]interface{}, error) {
	return c.Call(ctx, NotificationServiceName, method, body)
}

func (c *Client) Users(ctx context.Context, method string, body map[string]interface{}) (map[string]interface{}, error) {
	return c.Call(ctx, UserServiceName, method, body)
}
