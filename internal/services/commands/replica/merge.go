// Package replica applies owner platforms to the local replica store.
//
// Engine.Merge is the only path that inserts an owner-sourced replica. Both
// the bootstrap bulk pull and the event subscriber funnel through it, and the
// store's unique external ID makes concurrent deliveries of one platform
// collapse into a single row.
package replica

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	apperrors "github.com/louisbranch/platformsync/internal/platform/errors"
	"github.com/louisbranch/platformsync/internal/platform/telemetry/metrics"
	"github.com/louisbranch/platformsync/internal/services/commands/storage"
	"github.com/prometheus/client_golang/prometheus"
)

// ErrReplicaWriteFailed matches store failures during a merge.
var ErrReplicaWriteFailed = apperrors.New(apperrors.CodeReplicaWriteFailed, "replica write failed")

const (
	outcomeInserted  = "inserted"
	outcomeDuplicate = "duplicate"
	outcomeFailed    = "failed"
)

// Engine merges owner platforms into a ReplicaStore.
type Engine struct {
	store  storage.ReplicaStore
	merged *prometheus.CounterVec
}

// Option customizes an Engine.
type Option func(*Engine)

// WithRegisterer records merge outcomes on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(e *Engine) {
		e.merged = metrics.Register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "replica",
			Name:      "merges_total",
			Help:      "Platform merges into the replica store, by outcome.",
		}, []string{"outcome"}))
	}
}

// NewEngine creates a merge engine over store.
func NewEngine(store storage.ReplicaStore, opts ...Option) *Engine {
	e := &Engine{store: store}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Merge inserts the platform unless a replica with externalID already exists.
// It reports whether a row was inserted. Store failures match
// ErrReplicaWriteFailed.
func (e *Engine) Merge(ctx context.Context, externalID int64, name, publisher string) (bool, error) {
	inserted, err := e.merge(ctx, externalID, name, publisher)
	e.observe(inserted, err)
	return inserted, err
}

func (e *Engine) merge(ctx context.Context, externalID int64, name, publisher string) (bool, error) {
	if e == nil || e.store == nil {
		return false, apperrors.New(apperrors.CodeReplicaWriteFailed, "replica store is not configured")
	}
	name = strings.TrimSpace(name)
	publisher = strings.TrimSpace(publisher)
	if externalID <= 0 || name == "" || publisher == "" {
		return false, apperrors.New(apperrors.CodeInvalidArgument,
			fmt.Sprintf("platform %d needs a positive id, a name and a publisher", externalID))
	}
	metadata := map[string]string{"external_id": strconv.FormatInt(externalID, 10)}

	_, err := e.store.GetReplicaByExternalID(ctx, externalID)
	switch {
	case err == nil:
		return false, nil
	case !errors.Is(err, storage.ErrNotFound):
		return false, apperrors.WrapWithMetadata(apperrors.CodeReplicaWriteFailed, "look up replica", metadata, err)
	}

	_, err = e.store.InsertReplica(ctx, storage.Replica{
		ExternalID: externalID,
		Name:       name,
		Publisher:  publisher,
	})
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, storage.ErrAlreadyExists):
		// Another delivery of the same platform won the race.
		return false, nil
	default:
		return false, apperrors.WrapWithMetadata(apperrors.CodeReplicaWriteFailed, "insert replica", metadata, err)
	}
}

func (e *Engine) observe(inserted bool, err error) {
	if e == nil || e.merged == nil {
		return
	}
	outcome := outcomeDuplicate
	switch {
	case err != nil:
		outcome = outcomeFailed
	case inserted:
		outcome = outcomeInserted
	}
	e.merged.WithLabelValues(outcome).Inc()
}
