package platformsync

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

type fakeServer struct {
	mu          sync.Mutex
	platforms   []Platform
	deliveries  []Delivery
	subscribed  []string
	leaseReqs   []LeaseRequest
	acks        []AckRequest
	platformErr error
}

func (f *fakeServer) GetAllPlatforms(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	if f.platformErr != nil {
		return nil, f.platformErr
	}
	return PlatformsToStruct(f.platforms)
}

func (f *fakeServer) SubscribeEvents(_ context.Context, in *structpb.Struct) (*emptypb.Empty, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed = append(f.subscribed, SubscriptionFromStruct(in))
	return &emptypb.Empty{}, nil
}

func (f *fakeServer) LeaseEvents(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, err := LeaseRequestFromStruct(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	f.leaseReqs = append(f.leaseReqs, req)
	return DeliveriesToStruct(f.deliveries)
}

func (f *fakeServer) AckEvent(_ context.Context, in *structpb.Struct) (*emptypb.Empty, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, err := AckRequestFromStruct(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	f.acks = append(f.acks, req)
	return &emptypb.Empty{}, nil
}

func TestClientRoundTripsEveryMethod(t *testing.T) {
	fake := &fakeServer{
		platforms: []Platform{{ID: 7, Name: "Kubernetes", Publisher: "CNCF"}},
		deliveries: []Delivery{{
			EventID:      "evt-1",
			Seq:          3,
			AttemptCount: 1,
			Body:         []byte(`{"event_type":"x","payload":{}}`),
		}},
	}
	client := startClient(t, fake)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	platforms, err := client.GetAllPlatforms(ctx)
	if err != nil {
		t.Fatalf("get all platforms: %v", err)
	}
	if len(platforms) != 1 || platforms[0] != fake.platforms[0] {
		t.Fatalf("platforms = %+v", platforms)
	}

	if err := client.SubscribeEvents(ctx, "commands"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	fake.mu.Lock()
	subscribed := append([]string(nil), fake.subscribed...)
	fake.mu.Unlock()
	if len(subscribed) != 1 || subscribed[0] != "commands" {
		t.Fatalf("subscribed = %v", subscribed)
	}

	deliveries, err := client.LeaseEvents(ctx, LeaseRequest{Subscription: "commands", Limit: 10, LeaseTTL: 30 * time.Second})
	if err != nil {
		t.Fatalf("lease: %v", err)
	}
	if len(deliveries) != 1 || deliveries[0].EventID != "evt-1" || deliveries[0].Seq != 3 || string(deliveries[0].Body) != string(fake.deliveries[0].Body) {
		t.Fatalf("deliveries = %+v", deliveries)
	}
	fake.mu.Lock()
	leaseReq := fake.leaseReqs[0]
	fake.mu.Unlock()
	if got := leaseReq; got.Limit != 10 || got.LeaseTTL != 30*time.Second {
		t.Fatalf("lease request = %+v", got)
	}

	err = client.AckEvent(ctx, AckRequest{
		Subscription: "commands",
		EventID:      "evt-1",
		Outcome:      AckRetry,
		Error:        "store down",
		RetryAfter:   2 * time.Second,
	})
	if err != nil {
		t.Fatalf("ack: %v", err)
	}
	fake.mu.Lock()
	ack := fake.acks[0]
	fake.mu.Unlock()
	if got := ack; got.Outcome != AckRetry || got.RetryAfter != 2*time.Second || got.Error != "store down" {
		t.Fatalf("ack request = %+v", got)
	}
}

func TestClientRejectsUnknownAckOutcome(t *testing.T) {
	client := startClient(t, &fakeServer{})
	err := client.AckEvent(context.Background(), AckRequest{Subscription: "commands", EventID: "evt", Outcome: "maybe"})
	if err == nil {
		t.Fatal("expected unknown outcome error")
	}
}

func TestClientSurfacesStatusErrors(t *testing.T) {
	client := startClient(t, &fakeServer{platformErr: status.Error(codes.Unavailable, "down")})
	_, err := client.GetAllPlatforms(context.Background())
	if status.Code(err) != codes.Unavailable {
		t.Fatalf("expected Unavailable, got %v", err)
	}
}

func TestPlatformsFromStructRejectsBadRecords(t *testing.T) {
	cases := map[string]map[string]any{
		"missing list":  {},
		"fractional id": {"platforms": []any{map[string]any{"id": 1.5, "name": "a", "publisher": "b"}}},
		"string id":     {"platforms": []any{map[string]any{"id": "1", "name": "a", "publisher": "b"}}},
		"missing name":  {"platforms": []any{map[string]any{"id": 1, "publisher": "b"}}},
		"not an object": {"platforms": []any{"kubernetes"}},
		"non-positive":  {"platforms": []any{map[string]any{"id": 0, "name": "a", "publisher": "b"}}},
	}
	for name, fields := range cases {
		t.Run(name, func(t *testing.T) {
			in, err := structpb.NewStruct(fields)
			if err != nil {
				t.Fatalf("new struct: %v", err)
			}
			if _, err := PlatformsFromStruct(in); err == nil {
				t.Fatal("expected decode error")
			}
		})
	}
}

func startClient(t *testing.T, srv Server) *Client {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	server := grpc.NewServer()
	RegisterServer(server, srv)
	go func() {
		_ = server.Serve(listener)
	}()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient(listener.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return NewClient(conn)
}
