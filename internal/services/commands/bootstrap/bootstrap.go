// Package bootstrap brings the replica up to date before the consumer starts
// serving: optional local seeds, then one bulk pull from the owner merged
// record by record.
package bootstrap

import (
	"context"
	"fmt"
	"log"
	"strings"

	apperrors "github.com/louisbranch/platformsync/internal/platform/errors"
	"github.com/louisbranch/platformsync/internal/services/commands/storage"
	"github.com/louisbranch/platformsync/internal/services/shared/platformsync"
)

// Fetcher performs the bulk pull.
type Fetcher interface {
	FetchAllPlatforms(ctx context.Context) ([]platformsync.Platform, error)
}

// Merger applies one owner platform to the replica.
type Merger interface {
	Merge(ctx context.Context, externalID int64, name, publisher string) (bool, error)
}

// SeedPlatform is a local-only replica inserted into an empty store.
type SeedPlatform struct {
	Name      string
	Publisher string
}

// ParseSeedPlatforms parses "Name:Publisher" entries.
func ParseSeedPlatforms(values []string) ([]SeedPlatform, error) {
	seeds := make([]SeedPlatform, 0, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		name, publisher, ok := strings.Cut(value, ":")
		name = strings.TrimSpace(name)
		publisher = strings.TrimSpace(publisher)
		if !ok || name == "" || publisher == "" {
			return nil, apperrors.New(apperrors.CodeInvalidArgument, fmt.Sprintf("seed platform %q must be Name:Publisher", value))
		}
		seeds = append(seeds, SeedPlatform{Name: name, Publisher: publisher})
	}
	return seeds, nil
}

// Summary reports what a bootstrap run did.
type Summary struct {
	Seeded        int
	Fetched       int
	Inserted      int
	Duplicates    int
	Failed        int
	SyncAvailable bool
}

// Orchestrator runs the startup sequence.
type Orchestrator struct {
	store   storage.ReplicaStore
	fetcher Fetcher
	merger  Merger
	seeds   []SeedPlatform
	logf    func(string, ...any)
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithSeeds sets the local-only platforms for an empty store.
func WithSeeds(seeds []SeedPlatform) Option {
	return func(o *Orchestrator) {
		o.seeds = append([]SeedPlatform(nil), seeds...)
	}
}

// WithLogf sets the logger.
func WithLogf(logf func(string, ...any)) Option {
	return func(o *Orchestrator) {
		if logf != nil {
			o.logf = logf
		}
	}
}

// New creates an orchestrator.
func New(store storage.ReplicaStore, fetcher Fetcher, merger Merger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:   store,
		fetcher: fetcher,
		merger:  merger,
		logf:    log.Printf,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run seeds and pulls. A failed pull is logged and leaves the replica as it
// was; only a store failure while seeding is returned.
func (o *Orchestrator) Run(ctx context.Context) (Summary, error) {
	var summary Summary
	if o == nil || o.store == nil {
		return summary, fmt.Errorf("replica store is required")
	}

	seeded, err := o.seed(ctx)
	if err != nil {
		return summary, err
	}
	summary.Seeded = seeded

	if o.fetcher == nil || o.merger == nil {
		o.logf("platform sync is not configured; serving existing replica")
		return summary, nil
	}
	platforms, err := o.fetcher.FetchAllPlatforms(ctx)
	if err != nil {
		o.logf("bulk pull failed, serving existing replica: %v", err)
		return summary, nil
	}
	summary.SyncAvailable = true
	summary.Fetched = len(platforms)

	for _, platform := range platforms {
		inserted, err := o.merger.Merge(ctx, platform.ID, platform.Name, platform.Publisher)
		switch {
		case err != nil:
			summary.Failed++
			o.logf("merge platform %d from bulk pull: %v", platform.ID, err)
		case inserted:
			summary.Inserted++
		default:
			summary.Duplicates++
		}
	}
	o.logf("bulk pull merged %d platforms: %d inserted, %d already present, %d failed",
		summary.Fetched, summary.Inserted, summary.Duplicates, summary.Failed)
	return summary, nil
}

func (o *Orchestrator) seed(ctx context.Context) (int, error) {
	if len(o.seeds) == 0 {
		return 0, nil
	}
	count, err := o.store.CountReplicas(ctx)
	if err != nil {
		return 0, fmt.Errorf("count replicas: %w", err)
	}
	if count > 0 {
		return 0, nil
	}
	for _, seed := range o.seeds {
		if _, err := o.store.InsertReplica(ctx, storage.Replica{Name: seed.Name, Publisher: seed.Publisher}); err != nil {
			return 0, fmt.Errorf("seed platform %s: %w", seed.Name, err)
		}
	}
	o.logf("seeded %d local platforms", len(o.seeds))
	return len(o.seeds), nil
}
