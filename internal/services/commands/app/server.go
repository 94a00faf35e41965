// Package server wires the command service runtime: the replica store,
// startup bootstrap, the event subscriber and the HTTP API.
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

	platformgrpc "github.com/louisbranch/platformsync/internal/platform/grpc"
	"github.com/louisbranch/platformsync/internal/platform/serve"
	"github.com/louisbranch/platformsync/internal/platform/telemetry/metrics"
	"github.com/louisbranch/platformsync/internal/platform/timeouts"
	"github.com/louisbranch/platformsync/internal/services/commands/api/httpapi"
	"github.com/louisbranch/platformsync/internal/services/commands/bootstrap"
	"github.com/louisbranch/platformsync/internal/services/commands/catalog"
	"github.com/louisbranch/platformsync/internal/services/commands/replica"
	"github.com/louisbranch/platformsync/internal/services/commands/storage"
	"github.com/louisbranch/platformsync/internal/services/commands/storage/memory"
	"github.com/louisbranch/platformsync/internal/services/commands/storage/postgres"
	commandsqlite "github.com/louisbranch/platformsync/internal/services/commands/storage/sqlite"
	"github.com/louisbranch/platformsync/internal/services/commands/subscriber"
	"github.com/louisbranch/platformsync/internal/services/commands/syncclient"
	"google.golang.org/grpc"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config defines the inputs for the command service process.
type Config struct {
	HTTPAddr string
	// OwnerAddr is the platform owner's gRPC address, used by both the bulk
	// pull and the subscriber.
	OwnerAddr   string
	StoreDriver string
	DBPath      string
	PostgresDSN string
	Seeds       []bootstrap.SeedPlatform
	Sync        syncclient.Config
	Subscriber  subscriber.Config
	// Logf defaults to log.Printf.
	Logf func(string, ...any)
}

// Server hosts the command HTTP API over the platform replica.
type Server struct {
	httpListener net.Listener
	httpServer   *http.Server
	ownerConn    *grpc.ClientConn
	subscriber   *subscriber.Subscriber
	store        storage.Store
	summary      bootstrap.Summary
	logf         func(string, ...any)
}

// OpenStore opens the replica backend named by cfg.StoreDriver.
func OpenStore(ctx context.Context, cfg Config) (storage.Store, error) {
	logf := cfg.Logf
	if logf == nil {
		logf = log.Printf
	}
	switch driver := strings.ToLower(strings.TrimSpace(cfg.StoreDriver)); driver {
	case "", DriverMemory:
		return memory.New(), nil
	case DriverSQLite:
		dbPath := strings.TrimSpace(cfg.DBPath)
		if dbPath == "" {
			dbPath = filepath.Join("data", "commands.db")
		}
		store, err := commandsqlite.Open(ctx, dbPath)
		if err != nil {
			return nil, err
		}
		return store, nil
	case DriverPostgres:
		if strings.TrimSpace(cfg.PostgresDSN) == "" {
			return nil, errors.New("postgres DSN is required for the postgres driver")
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN, postgres.WithLogf(logf))
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}

// New opens the replica, runs the startup bootstrap and binds the HTTP
// listener. The subscriber starts with Serve.
func New(ctx context.Context, cfg Config) (*Server, error) {
	logf := cfg.Logf
	if logf == nil {
		logf = log.Printf
	}
	ownerAddr := strings.TrimSpace(cfg.OwnerAddr)
	if ownerAddr == "" {
		return nil, errors.New("owner address is required")
	}

	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open replica store: %w", err)
	}

	registry := metrics.NewRegistry()
	engine := replica.NewEngine(store, replica.WithRegisterer(registry))

	ownerConn, err := platformgrpc.NewLazyClient(ownerAddr)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("owner client: %w", err)
	}
	sub := subscriber.New(
		subscriber.NewGRPCTransport(ownerConn),
		subscriber.DefaultHandlers(engine, logf),
		cfg.Subscriber,
		subscriber.WithLogf(logf),
		subscriber.WithRegisterer(registry),
	)

	// The subscription is declared inside each pull attempt so that events
	// published after the snapshot are retained for the subscriber.
	syncCfg := cfg.Sync
	syncCfg.Addr = ownerAddr
	bulk := syncclient.New(syncCfg,
		syncclient.WithLogf(logf),
		syncclient.WithRegisterer(registry),
		syncclient.WithSubscriptionDeclarer(sub.Declare),
	)
	orchestrator := bootstrap.New(store, bulk, engine, bootstrap.WithSeeds(cfg.Seeds), bootstrap.WithLogf(logf))
	summary, err := orchestrator.Run(ctx)
	if err != nil {
		_ = ownerConn.Close()
		_ = store.Close()
		return nil, fmt.Errorf("bootstrap replica: %w", err)
	}

	mux := http.NewServeMux()
	httpapi.NewHandler(catalog.NewService(store), logf).Register(mux)
	mux.Handle(metrics.Path, metrics.Handler(registry))

	httpListener, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		_ = ownerConn.Close()
		_ = store.Close()
		return nil, fmt.Errorf("listen on %s: %w", cfg.HTTPAddr, err)
	}

	return &Server{
		httpListener: httpListener,
		httpServer:   serve.NewHTTPServer(mux),
		ownerConn:    ownerConn,
		subscriber:   sub,
		store:        store,
		summary:      summary,
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

// Bootstrap reports the startup bootstrap outcome.
func (s *Server) Bootstrap() bootstrap.Summary {
	if s == nil {
		return bootstrap.Summary{}
	}
	return s.summary
}

// Serve starts the subscriber and the HTTP server and runs until ctx ends.
// The subscriber finishes its in-flight message before the store closes.
func (s *Server) Serve(ctx context.Context) error {
	if s == nil {
		return errors.New("server is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	defer s.Close()

	handle := s.subscriber.Start(ctx)
	s.logf("commands HTTP listening at %v", s.httpListener.Addr())
	serveErr := serve.HTTP(ctx, s.httpServer, s.httpListener)

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeouts.Shutdown)
	defer cancel()
	if err := handle.Stop(stopCtx); err != nil {
		s.logf("stop subscriber: %v", err)
	}
	return serveErr
}

// Close releases server resources. It is safe to call more than once.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if s.httpServer != nil {
		_ = s.httpServer.Close()
	}
	if s.httpListener != nil {
		_ = s.httpListener.Close()
	}
	if s.ownerConn != nil {
		if err := s.ownerConn.Close(); err != nil {
			s.logf("close owner connection: %v", err)
		}
		s.ownerConn = nil
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logf("close replica store: %v", err)
		}
		s.store = nil
	}
}
