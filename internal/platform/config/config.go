// Package config loads process configuration shared by every service command.
package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
)

// Prefix namespaces every environment variable read by platformsync commands.
const Prefix = "PLATFORMSYNC_"

// ParseEnv loads configuration from environment variables into target.
//
// Struct tags carry fully qualified names (PLATFORMSYNC_...), so no prefix is
// applied here.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Exitf writes a formatted error message to stderr and exits with code 1.
func Exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
