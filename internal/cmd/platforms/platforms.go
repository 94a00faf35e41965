// Package platforms parses platform owner flags and launches its runtime.
package platforms

import (
	"context"
	"flag"
	"fmt"

	entrypoint "github.com/louisbranch/platformsync/internal/platform/cmd"
	"github.com/louisbranch/platformsync/internal/platform/discovery"
	server "github.com/louisbranch/platformsync/internal/services/platforms/app"
)

// Config holds platform owner command configuration.
type Config struct {
	HTTPPort int    `env:"PLATFORMSYNC_PLATFORMS_HTTP_PORT"`
	GRPCPort int    `env:"PLATFORMSYNC_PLATFORMS_GRPC_PORT"`
	DBPath   string `env:"PLATFORMSYNC_PLATFORMS_DB_PATH" envDefault:"data/platforms.db"`
	Seed     bool   `env:"PLATFORMSYNC_PLATFORMS_SEED" envDefault:"true"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	if cfg.HTTPPort <= 0 {
		cfg.HTTPPort = discovery.DefaultHTTPPort(discovery.ServicePlatforms)
	}
	if cfg.GRPCPort <= 0 {
		cfg.GRPCPort = discovery.DefaultGRPCPort(discovery.ServicePlatforms)
	}
	fs.IntVar(&cfg.HTTPPort, "http-port", cfg.HTTPPort, "The platforms HTTP server port")
	fs.IntVar(&cfg.GRPCPort, "grpc-port", cfg.GRPCPort, "The platforms gRPC server port")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The platforms SQLite database path")
	fs.BoolVar(&cfg.Seed, "seed", cfg.Seed, "Seed default platforms into an empty store")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the platform owner runtime.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServicePlatforms, func(ctx context.Context) error {
		srv, err := server.New(ctx, server.Config{
			HTTPAddr: fmt.Sprintf(":%d", cfg.HTTPPort),
			GRPCAddr: fmt.Sprintf(":%d", cfg.GRPCPort),
			DBPath:   cfg.DBPath,
			Seed:     cfg.Seed,
		})
		if err != nil {
			return err
		}
		return srv.Serve(ctx)
	})
}
