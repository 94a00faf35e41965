package platformsync

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client calls PlatformSyncService over a client connection.
type Client struct {
	conn grpc.ClientConnInterface
}

// NewClient wraps conn.
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// GetAllPlatforms performs the bulk pull.
func (c *Client) GetAllPlatforms(ctx context.Context, opts ...grpc.CallOption) ([]Platform, error) {
	if c == nil || c.conn == nil {
		return nil, fmt.Errorf("platform sync client is not configured")
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, GetAllPlatformsMethod, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	platforms, err := PlatformsFromStruct(out)
	if err != nil {
		return nil, fmt.Errorf("decode platforms response: %w", err)
	}
	return platforms, nil
}

// SubscribeEvents declares the named durable subscription.
func (c *Client) SubscribeEvents(ctx context.Context, subscription string, opts ...grpc.CallOption) error {
	if c == nil || c.conn == nil {
		return fmt.Errorf("platform sync client is not configured")
	}
	subscription = strings.TrimSpace(subscription)
	if subscription == "" {
		return fmt.Errorf("subscription name is required")
	}
	in, err := SubscriptionToStruct(subscription)
	if err != nil {
		return err
	}
	return c.conn.Invoke(ctx, SubscribeEventsMethod, in, &emptypb.Empty{}, opts...)
}

// LeaseEvents leases due deliveries for a subscription.
func (c *Client) LeaseEvents(ctx context.Context, req LeaseRequest, opts ...grpc.CallOption) ([]Delivery, error) {
	if c == nil || c.conn == nil {
		return nil, fmt.Errorf("platform sync client is not configured")
	}
	in, err := LeaseRequestToStruct(req)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, LeaseEventsMethod, in, out, opts...); err != nil {
		return nil, err
	}
	deliveries, err := DeliveriesFromStruct(out)
	if err != nil {
		return nil, fmt.Errorf("decode lease response: %w", err)
	}
	return deliveries, nil
}

// AckEvent reports the outcome of a leased delivery.
func (c *Client) AckEvent(ctx context.Context, req AckRequest, opts ...grpc.CallOption) error {
	if c == nil || c.conn == nil {
		return fmt.Errorf("platform sync client is not configured")
	}
	if !req.Outcome.Valid() {
		return fmt.Errorf("unknown ack outcome %q", req.Outcome)
	}
	in, err := AckRequestToStruct(req)
	if err != nil {
		return err
	}
	return c.conn.Invoke(ctx, AckEventMethod, in, &emptypb.Empty{}, opts...)
}
