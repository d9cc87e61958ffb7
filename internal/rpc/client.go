package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"signal-executor/internal/order"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client submits signals to a running executor.
type Client struct {
	conn    *grpc.ClientConn
	apiKey  string
	timeout time.Duration
}

// Dial connects to addr. Extra options (e.g. a bufconn dialer) are appended.
func Dial(addr, apiKey string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, apiKey: apiKey, timeout: 5 * time.Second}, nil
}

func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// Submit sends sig and returns the assigned signal id.
func (c *Client) Submit(ctx context.Context, sig order.TradeSignal) (string, error) {
	raw, err := json.Marshal(sig)
	if err != nil {
		return "", err
	}
	in := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, in); err != nil {
		return "", fmt.Errorf("encode signal: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if c.apiKey != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, apiKeyMetadata, c.apiKey)
	}

	out := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, submitMethod, in, out); err != nil {
		return "", err
	}
	return out.GetFields()["signal_id"].GetStringValue(), nil
}
