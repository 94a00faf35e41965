// Package serve runs HTTP and gRPC servers until their context ends.
package serve

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/louisbranch/platformsync/internal/platform/timeouts"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
)

// NewHTTPServer returns an http.Server with the shared header timeout.
func NewHTTPServer(handler http.Handler) *http.Server {
	return &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: timeouts.ReadHeader,
	}
}

// HTTP serves on listener until ctx ends, then shuts the server down.
func HTTP(ctx context.Context, server *http.Server, listener net.Listener) error {
	if server == nil || listener == nil {
		return errors.New("http server and listener are required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		err := server.Shutdown(shutdownCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

// GRPC serves on listener until ctx ends, then marks the health service
// NOT_SERVING and stops gracefully.
func GRPC(ctx context.Context, server *grpc.Server, healthServer *health.Server, listener net.Listener) error {
	if server == nil || listener == nil {
		return errors.New("grpc server and listener are required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		if healthServer != nil {
			healthServer.Shutdown()
		}
		server.GracefulStop()
		err := <-serveErr
		if err == nil || errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("serve gRPC: %w", err)
	case err := <-serveErr:
		if err == nil || errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("serve gRPC: %w", err)
	}
}
