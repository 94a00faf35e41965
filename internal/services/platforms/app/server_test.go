package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	platformgrpc "github.com/louisbranch/platformsync/internal/platform/grpc"
	platformsqlite "github.com/louisbranch/platformsync/internal/services/platforms/storage/sqlite"
	"github.com/louisbranch/platformsync/internal/services/shared/platformsync"
)

func TestSeedPlatformsOnlyWhenEmpty(t *testing.T) {
	store, err := platformsqlite.Open(context.Background(), filepath.Join(t.TempDir(), "platforms.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	seeded, err := SeedPlatforms(context.Background(), store, time.Now())
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if seeded != 3 {
		t.Fatalf("seeded = %d, want 3", seeded)
	}
	again, err := SeedPlatforms(context.Background(), store, time.Now())
	if err != nil {
		t.Fatalf("seed again: %v", err)
	}
	if again != 0 {
		t.Fatalf("second seed = %d, want 0", again)
	}
	platforms, err := store.ListPlatforms(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(platforms) != 3 || platforms[2].Publisher != "Cloud Native Computing Foundation" {
		t.Fatalf("platforms = %+v", platforms)
	}
}

func TestServerServesHTTPAndSync(t *testing.T) {
	srv, err := New(context.Background(), Config{
		HTTPAddr: "127.0.0.1:0",
		GRPCAddr: "127.0.0.1:0",
		DBPath:   filepath.Join(t.TempDir(), "platforms.db"),
		Seed:     true,
		Logf:     t.Logf,
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()
	defer func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("serve: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for server shutdown")
		}
	}()

	conn, err := platformgrpc.NewLazyClient(srv.GRPCAddr())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	callCtx, callCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer callCancel()
	if err := platformgrpc.WaitForHealth(callCtx, conn, platformsync.ServiceName, nil); err != nil {
		t.Fatalf("health: %v", err)
	}
	client := platformsync.NewClient(conn)
	if err := client.SubscribeEvents(callCtx, "commands"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	resp, err := http.Post("http://"+srv.HTTPAddr()+"/api/platforms", "application/json",
		strings.NewReader(`{"name":"Terraform","publisher":"HashiCorp","cost":"Free"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", resp.StatusCode, body)
	}
	var created struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("decode create: %v", err)
	}

	platforms, err := client.GetAllPlatforms(callCtx)
	if err != nil {
		t.Fatalf("get all platforms: %v", err)
	}
	if len(platforms) != 4 {
		t.Fatalf("expected 3 seeds plus 1 created, got %+v", platforms)
	}

	deliveries, err := client.LeaseEvents(callCtx, platformsync.LeaseRequest{Subscription: "commands", Limit: 10, LeaseTTL: time.Minute})
	if err != nil {
		t.Fatalf("lease: %v", err)
	}
	if len(deliveries) != 1 {
		t.Fatalf("expected only the created platform to be published, got %d deliveries", len(deliveries))
	}
	event, err := platformsync.Decode(deliveries[0].Body)
	if err != nil {
		t.Fatalf("decode event: %v", err)
	}
	payload, err := platformsync.DecodePlatformPayload(event.Payload)
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.ID != created.ID || payload.Name != "Terraform" {
		t.Fatalf("payload = %+v, created id %d", payload, created.ID)
	}
	if err := client.AckEvent(callCtx, platformsync.AckRequest{Subscription: "commands", EventID: deliveries[0].EventID, Outcome: platformsync.AckSucceeded}); err != nil {
		t.Fatalf("ack: %v", err)
	}

	metricsResp, err := http.Get("http://" + srv.HTTPAddr() + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	metricsBody, _ := io.ReadAll(metricsResp.Body)
	_ = metricsResp.Body.Close()
	if !strings.Contains(string(metricsBody), `platformsync_publisher_events_total{outcome="published"} 1`) {
		t.Fatalf("metrics missing publish counter:\n%s", metricsBody)
	}
}

func TestNewFailsOnBusyAddress(t *testing.T) {
	first, err := New(context.Background(), Config{
		HTTPAddr: "127.0.0.1:0",
		GRPCAddr: "127.0.0.1:0",
		DBPath:   filepath.Join(t.TempDir(), "a.db"),
	})
	if err != nil {
		t.Fatalf("first server: %v", err)
	}
	defer first.Close()

	_, err = New(context.Background(), Config{
		HTTPAddr: first.HTTPAddr(),
		GRPCAddr: "127.0.0.1:0",
		DBPath:   filepath.Join(t.TempDir(), "b.db"),
	})
	if err == nil {
		t.Fatal("expected listen error for busy address")
	}
}
