// Package server wires the platform owner runtime: storage, the sync gRPC API
// and the HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	platformgrpc "github.com/louisbranch/platformsync/internal/platform/grpc"
	"github.com/louisbranch/platformsync/internal/platform/serve"
	"github.com/louisbranch/platformsync/internal/platform/telemetry/metrics"
	"github.com/louisbranch/platformsync/internal/services/platforms/api/grpc/syncapi"
	"github.com/louisbranch/platformsync/internal/services/platforms/api/httpapi"
	"github.com/louisbranch/platformsync/internal/services/platforms/publisher"
	platformsqlite "github.com/louisbranch/platformsync/internal/services/platforms/storage/sqlite"
	"github.com/louisbranch/platformsync/internal/services/shared/platformsync"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
)

// Config defines the inputs for the platform owner process.
type Config struct {
	HTTPAddr string
	GRPCAddr string
	DBPath   string
	// Seed creates the default platforms when the store is empty.
	Seed bool
	// Logf defaults to log.Printf.
	Logf func(string, ...any)
}

// Server hosts the platform HTTP and gRPC APIs over one SQLite store.
type Server struct {
	httpListener net.Listener
	grpcListener net.Listener
	httpServer   *http.Server
	grpcServer   *grpc.Server
	health       *health.Server
	store        *platformsqlite.Store
	logf         func(string, ...any)
}

// New opens storage, seeds it when configured, and binds both listeners.
func New(ctx context.Context, cfg Config) (*Server, error) {
	logf := cfg.Logf
	if logf == nil {
		logf = log.Printf
	}
	dbPath := strings.TrimSpace(cfg.DBPath)
	if dbPath == "" {
		dbPath = filepath.Join("data", "platforms.db")
	}

	store, err := platformsqlite.Open(ctx, dbPath)
	if err != nil {
		return nil, fmt.Errorf("open platform store: %w", err)
	}
	if cfg.Seed {
		seeded, err := SeedPlatforms(ctx, store, time.Now())
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		if seeded > 0 {
			logf("seeded %d platforms", seeded)
		}
	}

	registry := metrics.NewRegistry()
	eventPublisher := publisher.New(store, publisher.WithRegisterer(registry))

	grpcServer, healthServer := platformgrpc.NewServerWithHealth(platformsync.ServiceName)
	platformsync.RegisterServer(grpcServer, syncapi.NewService(store, store))

	mux := http.NewServeMux()
	httpapi.NewHandler(store, eventPublisher, logf).Register(mux)
	mux.Handle(metrics.Path, metrics.Handler(registry))

	httpListener, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("listen on %s: %w", cfg.HTTPAddr, err)
	}
	grpcListener, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		_ = httpListener.Close()
		_ = store.Close()
		return nil, fmt.Errorf("listen on %s: %w", cfg.GRPCAddr, err)
	}

	return &Server{
		httpListener: httpListener,
		grpcListener: grpcListener,
		httpServer:   serve.NewHTTPServer(mux),
		grpcServer:   grpcServer,
		health:       healthServer,
		store:        store,
		logf:         logf,
	}, nil
}

// HTTPAddr returns the bound HTTP address.
func (s *Server) HTTPAddr() string {
	if s == nil || s.httpListener == nil {
		return ""
	}
	return s.httpListener.Addr().String()
}

// GRPCAddr returns the bound gRPC address.
func (s *Server) GRPCAddr() string {
	if s == nil || s.grpcListener == nil {
		return ""
	}
	return s.grpcListener.Addr().String()
}

// Serve runs both servers until ctx ends or one of them fails, then releases
// the store.
func (s *Server) Serve(ctx context.Context) error {
	if s == nil {
		return errors.New("server is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	defer s.Close()

	s.logf("platforms HTTP listening at %v", s.httpListener.Addr())
	s.logf("platforms gRPC listening at %v", s.grpcListener.Addr())

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return serve.HTTP(groupCtx, s.httpServer, s.httpListener)
	})
	group.Go(func() error {
		return serve.GRPC(groupCtx, s.grpcServer, s.health, s.grpcListener)
	})
	return group.Wait()
}

// Close releases server resources. It is safe to call more than once.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if s.health != nil {
		s.health.Shutdown()
	}
	if s.grpcServer != nil {
		s.grpcServer.Stop()
	}
	if s.httpServer != nil {
		_ = s.httpServer.Close()
	}
	if s.httpListener != nil {
		_ = s.httpListener.Close()
	}
	if s.grpcListener != nil {
		_ = s.grpcListener.Close()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logf("close platform store: %v", err)
		}
		s.store = nil
	}
}
