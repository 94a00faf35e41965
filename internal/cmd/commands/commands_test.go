package commands

import (
	"flag"
	"testing"
	"time"
)

func TestParseConfig_ParsesDefaultsAndFlags(t *testing.T) {
	fs := flag.NewFlagSet("commands", flag.ContinueOnError)
	t.Setenv("PLATFORMSYNC_COMMANDS_STORE", "sqlite")
	t.Setenv("PLATFORMSYNC_COMMANDS_PLATFORMS_ADDR", "owner:9071")
	t.Setenv("PLATFORMSYNC_COMMANDS_SEED_PLATFORMS", "Dotnet:Microsoft,Kubernetes:CNCF")

	cfg, err := ParseConfig(fs, []string{"-subscription", "commands-e2e", "-sync-attempts", "3", "-poll-interval", "250ms"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.StoreDriver != "sqlite" {
		t.Fatalf("store = %q, want sqlite", cfg.StoreDriver)
	}
	if cfg.PlatformsAddr != "owner:9071" {
		t.Fatalf("platforms addr = %q", cfg.PlatformsAddr)
	}
	if cfg.Subscription != "commands-e2e" {
		t.Fatalf("subscription = %q", cfg.Subscription)
	}
	if cfg.SyncAttempts != 3 {
		t.Fatalf("sync attempts = %d, want 3", cfg.SyncAttempts)
	}
	if cfg.PollInterval != 250*time.Millisecond {
		t.Fatalf("poll interval = %s", cfg.PollInterval)
	}
	if len(cfg.SeedPlatforms) != 2 || cfg.SeedPlatforms[1] != "Kubernetes:CNCF" {
		t.Fatalf("seed platforms = %v", cfg.SeedPlatforms)
	}
}

func TestParseConfig_Defaults(t *testing.T) {
	fs := flag.NewFlagSet("commands", flag.ContinueOnError)

	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.PlatformsAddr != "platforms:8071" {
		t.Fatalf("platforms addr = %q, want platforms:8071", cfg.PlatformsAddr)
	}
	if cfg.HTTPPort != 8072 || cfg.StoreDriver != "memory" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.SyncAttempts != 5 || cfg.SyncInitialDelay != time.Second || cfg.SyncMultiplier != 2 {
		t.Fatalf("retry defaults = %d %s %v", cfg.SyncAttempts, cfg.SyncInitialDelay, cfg.SyncMultiplier)
	}
	if len(cfg.SeedPlatforms) != 0 {
		t.Fatalf("seed platforms = %v", cfg.SeedPlatforms)
	}
}

func TestParseConfig_RejectsBadSeeds(t *testing.T) {
	fs := flag.NewFlagSet("commands", flag.ContinueOnError)
	if _, err := ParseConfig(fs, []string{"-seed-platforms", "Dotnet"}); err == nil {
		t.Fatal("expected error for seed without publisher")
	}
}
