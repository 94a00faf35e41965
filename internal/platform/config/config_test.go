package config

import (
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"
)

type envTestConfig struct {
	Port     int           `env:"PLATFORMSYNC_TEST_PORT" envDefault:"123"`
	Interval time.Duration `env:"PLATFORMSYNC_TEST_INTERVAL" envDefault:"2s"`
	Seeds    []string      `env:"PLATFORMSYNC_TEST_SEEDS" envSeparator:","`
}

func TestParseEnvDefaults(t *testing.T) {
	var cfg envTestConfig

	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Port != 123 {
		t.Fatalf("expected default port 123, got %d", cfg.Port)
	}
	if cfg.Interval != 2*time.Second {
		t.Fatalf("expected default interval 2s, got %v", cfg.Interval)
	}
}

func TestParseEnvError(t *testing.T) {
	var cfg envTestConfig
	t.Setenv("PLATFORMSYNC_TEST_PORT", "not-an-int")

	err := ParseEnv(&cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}

func TestParseEnvReadsSlices(t *testing.T) {
	var cfg envTestConfig
	t.Setenv("PLATFORMSYNC_TEST_PORT", "9000")
	t.Setenv("PLATFORMSYNC_TEST_SEEDS", "a:b,c:d")

	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Port != 9000 {
		t.Fatalf("port = %d, want 9000", cfg.Port)
	}
	if len(cfg.Seeds) != 2 || cfg.Seeds[1] != "c:d" {
		t.Fatalf("seeds = %v, want [a:b c:d]", cfg.Seeds)
	}
}

// Exitf calls os.Exit, so the assertion runs in a subprocess.
func TestExitf_ExitsWithCode1(t *testing.T) {
	if os.Getenv("TEST_EXITF_SUBPROCESS") == "1" {
		Exitf("fatal: %s", "something broke")
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=^TestExitf_ExitsWithCode1$")
	cmd.Env = append(os.Environ(), "TEST_EXITF_SUBPROCESS=1")

	out, err := cmd.CombinedOutput()

	exitErr, ok := err.(*exec.ExitError)
	if !ok {
		t.Fatalf("expected *exec.ExitError, got %T: %v", err, err)
	}
	if exitErr.ExitCode() != 1 {
		t.Fatalf("expected exit code 1, got %d", exitErr.ExitCode())
	}
	if !strings.Contains(string(out), "fatal: something broke") {
		t.Fatalf("expected stderr to contain %q, got %q", "fatal: something broke", string(out))
	}
}
