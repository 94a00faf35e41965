package subscriber

import (
	"context"
	"fmt"

	"github.com/louisbranch/platformsync/internal/services/shared/platformsync"
)

// EventHandler applies one decoded event.
type EventHandler interface {
	Handle(ctx context.Context, event platformsync.SyncEvent) error
}

// HandlerFunc adapts a function to EventHandler.
type HandlerFunc func(ctx context.Context, event platformsync.SyncEvent) error

// Handle calls fn.
func (fn HandlerFunc) Handle(ctx context.Context, event platformsync.SyncEvent) error {
	return fn(ctx, event)
}

// Merger is the replica write path used by the platform handler.
type Merger interface {
	Merge(ctx context.Context, externalID int64, name, publisher string) (bool, error)
}

// PlatformPublishedHandler merges a published platform into the replica.
func PlatformPublishedHandler(merger Merger, logf func(string, ...any)) EventHandler {
	return HandlerFunc(func(ctx context.Context, event platformsync.SyncEvent) error {
		payload, err := platformsync.DecodePlatformPayload(event.Payload)
		if err != nil {
			return err
		}
		inserted, err := merger.Merge(ctx, payload.ID, payload.Name, payload.Publisher)
		if err != nil {
			return fmt.Errorf("merge platform %d: %w", payload.ID, err)
		}
		if logf != nil {
			if inserted {
				logf("replicated platform %d (%s)", payload.ID, payload.Name)
			} else {
				logf("platform %d already replicated", payload.ID)
			}
		}
		return nil
	})
}

// DefaultHandlers returns the handler table for the platforms topic.
func DefaultHandlers(merger Merger, logf func(string, ...any)) map[string]EventHandler {
	return map[string]EventHandler{
		platformsync.EventTypePlatformPublished: PlatformPublishedHandler(merger, logf),
	}
}
