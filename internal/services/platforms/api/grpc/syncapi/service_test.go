package syncapi

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/louisbranch/platformsync/internal/services/platforms/storage"
	platformsqlite "github.com/louisbranch/platformsync/internal/services/platforms/storage/sqlite"
	"github.com/louisbranch/platformsync/internal/services/shared/platformsync"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

func TestGetAllPlatformsReturnsEveryRecord(t *testing.T) {
	service, store := newTestService(t)
	ctx := context.Background()
	for _, name := range []string{"Dotnet", "Kubernetes"} {
		if _, err := store.CreatePlatform(ctx, storage.NewPlatform{Name: name, Publisher: "p", Cost: "Free"}, time.Time{}); err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
	}

	out, err := service.GetAllPlatforms(ctx, &emptypb.Empty{})
	if err != nil {
		t.Fatalf("get all platforms: %v", err)
	}
	platforms, err := platformsync.PlatformsFromStruct(out)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(platforms) != 2 || platforms[0].Name != "Dotnet" || platforms[1].Name != "Kubernetes" {
		t.Fatalf("platforms = %+v", platforms)
	}
}

func TestGetAllPlatformsEmptyStore(t *testing.T) {
	service, _ := newTestService(t)
	out, err := service.GetAllPlatforms(context.Background(), &emptypb.Empty{})
	if err != nil {
		t.Fatalf("get all platforms: %v", err)
	}
	platforms, err := platformsync.PlatformsFromStruct(out)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(platforms) != 0 {
		t.Fatalf("expected no platforms, got %+v", platforms)
	}
}

func TestSubscribeLeaseAckFlow(t *testing.T) {
	service, store := newTestService(t)
	ctx := context.Background()
	now := time.Date(2026, time.March, 3, 10, 0, 0, 0, time.UTC)
	service.clock = func() time.Time { return now }

	subscribe, err := platformsync.SubscriptionToStruct("commands")
	if err != nil {
		t.Fatalf("subscription struct: %v", err)
	}
	if _, err := service.SubscribeEvents(ctx, subscribe); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := store.AppendEvent(ctx, storage.TopicEvent{
		ID: "evt-1", Topic: platformsync.TopicPlatforms, EventType: platformsync.EventTypePlatformPublished,
		Body: []byte(`{"event_type":"platforms.platform_published","payload":{"id":7,"name":"Kubernetes","publisher":"CNCF"}}`), CreatedAt: now,
	}); err != nil {
		t.Fatalf("append: %v", err)
	}

	leaseReq, err := platformsync.LeaseRequestToStruct(platformsync.LeaseRequest{Subscription: "commands", Limit: 5, LeaseTTL: time.Minute})
	if err != nil {
		t.Fatalf("lease struct: %v", err)
	}
	out, err := service.LeaseEvents(ctx, leaseReq)
	if err != nil {
		t.Fatalf("lease: %v", err)
	}
	deliveries, err := platformsync.DeliveriesFromStruct(out)
	if err != nil {
		t.Fatalf("decode deliveries: %v", err)
	}
	if len(deliveries) != 1 || deliveries[0].EventID != "evt-1" {
		t.Fatalf("deliveries = %+v", deliveries)
	}

	ackReq, err := platformsync.AckRequestToStruct(platformsync.AckRequest{
		Subscription: "commands", EventID: "evt-1", Outcome: platformsync.AckRetry, Error: "busy", RetryAfter: 3 * time.Second,
	})
	if err != nil {
		t.Fatalf("ack struct: %v", err)
	}
	if _, err := service.AckEvent(ctx, ackReq); err != nil {
		t.Fatalf("ack: %v", err)
	}
	delivery, err := store.GetDelivery(ctx, "commands", "evt-1")
	if err != nil {
		t.Fatalf("get delivery: %v", err)
	}
	if delivery.Status != storage.DeliveryStatusPending || !delivery.NextAttemptAt.Equal(now.Add(3*time.Second)) {
		t.Fatalf("delivery = %+v", delivery)
	}

	if _, err := service.AckEvent(ctx, ackReq); status.Code(err) != codes.NotFound {
		t.Fatalf("expected NotFound for unleased ack, got %v", err)
	}
}

func TestRequestValidation(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	empty, _ := structpb.NewStruct(map[string]any{})
	if _, err := service.SubscribeEvents(ctx, empty); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("subscribe without name: %v", err)
	}
	if _, err := service.LeaseEvents(ctx, empty); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("lease without subscription: %v", err)
	}
	badLimit, _ := structpb.NewStruct(map[string]any{"subscription": "commands", "limit": "ten"})
	if _, err := service.LeaseEvents(ctx, badLimit); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("lease with bad limit: %v", err)
	}
	badOutcome, _ := structpb.NewStruct(map[string]any{"subscription": "commands", "event_id": "evt", "outcome": "later"})
	if _, err := service.AckEvent(ctx, badOutcome); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("ack with bad outcome: %v", err)
	}
}

func TestUnconfiguredService(t *testing.T) {
	var service *Service
	if _, err := service.GetAllPlatforms(context.Background(), &emptypb.Empty{}); status.Code(err) != codes.Internal {
		t.Fatalf("expected Internal, got %v", err)
	}
}

func newTestService(t *testing.T) (*Service, *platformsqlite.Store) {
	t.Helper()
	store, err := platformsqlite.Open(context.Background(), filepath.Join(t.TempDir(), "platforms.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return NewService(store, store), store
}
