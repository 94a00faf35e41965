package subscriber

import (
	"context"

	"github.com/louisbranch/platformsync/internal/services/shared/platformsync"
	"google.golang.org/grpc"
)

// Transport is the subscription side of the owner's durable topic.
type Transport interface {
	SubscribeEvents(ctx context.Context, subscription string) error
	LeaseEvents(ctx context.Context, req platformsync.LeaseRequest) ([]platformsync.Delivery, error)
	AckEvent(ctx context.Context, req platformsync.AckRequest) error
}

type grpcTransport struct {
	client *platformsync.Client
}

// NewGRPCTransport adapts an owner connection to Transport.
func NewGRPCTransport(conn grpc.ClientConnInterface) Transport {
	return grpcTransport{client: platformsync.NewClient(conn)}
}

func (t grpcTransport) SubscribeEvents(ctx context.Context, subscription string) error {
	return t.client.SubscribeEvents(ctx, subscription)
}

func (t grpcTransport) LeaseEvents(ctx context.Context, req platformsync.LeaseRequest) ([]platformsync.Delivery, error) {
	return t.client.LeaseEvents(ctx, req)
}

func (t grpcTransport) AckEvent(ctx context.Context, req platformsync.AckRequest) error {
	return t.client.AckEvent(ctx, req)
}
