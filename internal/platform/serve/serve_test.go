package serve

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	platformgrpc "github.com/louisbranch/platformsync/internal/platform/grpc"
)

func TestHTTPServesUntilCancel(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	server := NewHTTPServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "ok")
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- HTTP(ctx, server, listener) }()

	resp, err := http.Get("http://" + listener.Addr().String())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if string(body) != "ok" {
		t.Fatalf("body = %q", body)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for shutdown")
	}
}

func TestGRPCServesUntilCancel(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	server, healthServer := platformgrpc.NewServerWithHealth()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- GRPC(ctx, server, healthServer, listener) }()

	conn, err := platformgrpc.NewLazyClient(listener.Addr().String())
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	defer conn.Close()
	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	if err := platformgrpc.WaitForHealth(waitCtx, conn, "", nil); err != nil {
		t.Fatalf("wait for health: %v", err)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for graceful stop")
	}
}

func TestServeRequiresArguments(t *testing.T) {
	if err := HTTP(context.Background(), nil, nil); err == nil {
		t.Fatal("expected http argument error")
	}
	if err := GRPC(context.Background(), nil, nil, nil); err == nil {
		t.Fatal("expected grpc argument error")
	}
}
