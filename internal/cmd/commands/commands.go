// Package commands parses command service flags and launches its runtime.
package commands

import (
	"context"
	"flag"
	"fmt"
	"strings"
	"time"

	entrypoint "github.com/louisbranch/platformsync/internal/platform/cmd"
	"github.com/louisbranch/platformsync/internal/platform/discovery"
	"github.com/louisbranch/platformsync/internal/platform/retry"
	server "github.com/louisbranch/platformsync/internal/services/commands/app"
	"github.com/louisbranch/platformsync/internal/services/commands/bootstrap"
	"github.com/louisbranch/platformsync/internal/services/commands/subscriber"
	"github.com/louisbranch/platformsync/internal/services/commands/syncclient"
)

// Config holds command service configuration.
type Config struct {
	HTTPPort         int           `env:"PLATFORMSYNC_COMMANDS_HTTP_PORT"`
	PlatformsAddr    string        `env:"PLATFORMSYNC_COMMANDS_PLATFORMS_ADDR"`
	StoreDriver      string        `env:"PLATFORMSYNC_COMMANDS_STORE" envDefault:"memory"`
	DBPath           string        `env:"PLATFORMSYNC_COMMANDS_DB_PATH" envDefault:"data/commands.db"`
	PostgresDSN      string        `env:"PLATFORMSYNC_COMMANDS_POSTGRES_DSN"`
	Subscription     string        `env:"PLATFORMSYNC_COMMANDS_SUBSCRIPTION" envDefault:"commands"`
	PollInterval     time.Duration `env:"PLATFORMSYNC_COMMANDS_POLL_INTERVAL" envDefault:"1s"`
	LeaseTTL         time.Duration `env:"PLATFORMSYNC_COMMANDS_LEASE_TTL" envDefault:"30s"`
	BatchSize        int           `env:"PLATFORMSYNC_COMMANDS_BATCH_SIZE" envDefault:"10"`
	MaxDeliveries    int           `env:"PLATFORMSYNC_COMMANDS_MAX_DELIVERIES" envDefault:"10"`
	SyncAttempts     int           `env:"PLATFORMSYNC_COMMANDS_SYNC_ATTEMPTS" envDefault:"5"`
	SyncInitialDelay time.Duration `env:"PLATFORMSYNC_COMMANDS_SYNC_INITIAL_DELAY" envDefault:"1s"`
	SyncMultiplier   float64       `env:"PLATFORMSYNC_COMMANDS_SYNC_MULTIPLIER" envDefault:"2"`
	SyncCallTimeout  time.Duration `env:"PLATFORMSYNC_COMMANDS_SYNC_CALL_TIMEOUT" envDefault:"5s"`
	GRPCDialTimeout  time.Duration `env:"PLATFORMSYNC_COMMANDS_DIAL_TIMEOUT" envDefault:"2s"`
	SeedPlatforms    []string      `env:"PLATFORMSYNC_COMMANDS_SEED_PLATFORMS" envSeparator:","`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	if cfg.HTTPPort <= 0 {
		cfg.HTTPPort = discovery.DefaultHTTPPort(discovery.ServiceCommands)
	}
	cfg.PlatformsAddr = discovery.OrDefaultGRPCAddr(cfg.PlatformsAddr, discovery.ServicePlatforms)
	seeds := strings.Join(cfg.SeedPlatforms, ",")
	fs.IntVar(&cfg.HTTPPort, "http-port", cfg.HTTPPort, "The commands HTTP server port")
	fs.StringVar(&cfg.PlatformsAddr, "platforms-addr", cfg.PlatformsAddr, "The platforms gRPC server address")
	fs.StringVar(&cfg.StoreDriver, "store", cfg.StoreDriver, "Replica store driver: memory, sqlite or postgres")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The replica SQLite database path")
	fs.StringVar(&cfg.PostgresDSN, "postgres-dsn", cfg.PostgresDSN, "The replica Postgres DSN")
	fs.StringVar(&cfg.Subscription, "subscription", cfg.Subscription, "Durable platform event subscription name")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "Platform event poll interval")
	fs.DurationVar(&cfg.LeaseTTL, "lease-ttl", cfg.LeaseTTL, "Platform event lease duration")
	fs.IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "Platform events leased per poll")
	fs.IntVar(&cfg.MaxDeliveries, "max-deliveries", cfg.MaxDeliveries, "Processing attempts before an event is parked")
	fs.IntVar(&cfg.SyncAttempts, "sync-attempts", cfg.SyncAttempts, "Bulk pull attempts at startup")
	fs.DurationVar(&cfg.SyncInitialDelay, "sync-initial-delay", cfg.SyncInitialDelay, "Wait before the first bulk pull retry")
	fs.Float64Var(&cfg.SyncMultiplier, "sync-multiplier", cfg.SyncMultiplier, "Bulk pull backoff multiplier")
	fs.DurationVar(&cfg.SyncCallTimeout, "sync-call-timeout", cfg.SyncCallTimeout, "Per-attempt bulk pull call timeout")
	fs.DurationVar(&cfg.GRPCDialTimeout, "dial-timeout", cfg.GRPCDialTimeout, "gRPC dependency dial timeout")
	fs.StringVar(&seeds, "seed-platforms", seeds, "Comma-separated Name:Publisher platforms for an empty replica")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	cfg.SeedPlatforms = splitList(seeds)
	if _, err := bootstrap.ParseSeedPlatforms(cfg.SeedPlatforms); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the command service runtime.
func Run(ctx context.Context, cfg Config) error {
	seeds, err := bootstrap.ParseSeedPlatforms(cfg.SeedPlatforms)
	if err != nil {
		return err
	}
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceCommands, func(ctx context.Context) error {
		srv, err := server.New(ctx, server.Config{
			HTTPAddr:    fmt.Sprintf(":%d", cfg.HTTPPort),
			OwnerAddr:   cfg.PlatformsAddr,
			StoreDriver: cfg.StoreDriver,
			DBPath:      cfg.DBPath,
			PostgresDSN: cfg.PostgresDSN,
			Seeds:       seeds,
			Sync: syncclient.Config{
				Policy: retry.Policy{
					MaxAttempts:  cfg.SyncAttempts,
					InitialDelay: cfg.SyncInitialDelay,
					Multiplier:   cfg.SyncMultiplier,
				},
				DialTimeout: cfg.GRPCDialTimeout,
				CallTimeout: cfg.SyncCallTimeout,
			},
			Subscriber: subscriber.Config{
				Subscription: cfg.Subscription,
				PollInterval: cfg.PollInterval,
				LeaseTTL:     cfg.LeaseTTL,
				BatchSize:    cfg.BatchSize,
				MaxAttempts:  cfg.MaxDeliveries,
			},
		})
		if err != nil {
			return err
		}
		return srv.Serve(ctx)
	})
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
