// Package publisher announces committed platforms on the durable topic.
package publisher

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/louisbranch/platformsync/internal/platform/errors"
	"github.com/louisbranch/platformsync/internal/platform/id"
	"github.com/louisbranch/platformsync/internal/platform/telemetry/metrics"
	"github.com/louisbranch/platformsync/internal/services/platforms/storage"
	"github.com/louisbranch/platformsync/internal/services/shared/platformsync"
	"github.com/prometheus/client_golang/prometheus"
)

// EventAppender is the durable topic write used by the publisher.
type EventAppender interface {
	AppendEvent(ctx context.Context, event storage.TopicEvent) error
}

// Publisher serializes platforms into sync events.
type Publisher struct {
	topic     EventAppender
	clock     func() time.Time
	newID     func() (string, error)
	published *prometheus.CounterVec
}

// Option customizes a Publisher.
type Option func(*Publisher)

// WithClock overrides the event timestamp source.
func WithClock(clock func() time.Time) Option {
	return func(p *Publisher) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// WithIDGenerator overrides event ID generation.
func WithIDGenerator(newID func() (string, error)) Option {
	return func(p *Publisher) {
		if newID != nil {
			p.newID = newID
		}
	}
}

// WithRegisterer records publish outcomes on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(p *Publisher) {
		p.published = metrics.Register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "publisher",
			Name:      "events_total",
			Help:      "Platform events appended to the durable topic, by outcome.",
		}, []string{"outcome"}))
	}
}

// New creates a publisher that appends to topic.
func New(topic EventAppender, opts ...Option) *Publisher {
	p := &Publisher{
		topic: topic,
		clock: time.Now,
		newID: id.NewID,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PublishCreated appends a PlatformPublished event for a committed platform.
// It returns once the topic write commits; subscribers are not awaited.
func (p *Publisher) PublishCreated(ctx context.Context, platform storage.Platform) error {
	err := p.publish(ctx, platform)
	p.observe(err)
	return err
}

func (p *Publisher) publish(ctx context.Context, platform storage.Platform) error {
	if p == nil || p.topic == nil {
		return apperrors.New(apperrors.CodePublishFailed, "event topic is not configured")
	}
	event, err := platformsync.NewPlatformPublished(platformsync.PlatformPayload{
		ID:        platform.ID,
		Name:      platform.Name,
		Publisher: platform.Publisher,
	})
	if err != nil {
		return apperrors.Wrap(apperrors.CodePublishFailed, "build platform event", err)
	}
	body, err := event.Encode()
	if err != nil {
		return apperrors.Wrap(apperrors.CodePublishFailed, "encode platform event", err)
	}
	eventID, err := p.newID()
	if err != nil {
		return apperrors.Wrap(apperrors.CodePublishFailed, "generate event id", err)
	}
	err = p.topic.AppendEvent(ctx, storage.TopicEvent{
		ID:        eventID,
		Topic:     platformsync.TopicPlatforms,
		EventType: event.EventType,
		Body:      body,
		CreatedAt: p.clock().UTC(),
	})
	if err != nil {
		return apperrors.WrapWithMetadata(
			apperrors.CodePublishFailed,
			"append platform event",
			map[string]string{"platform_id": fmt.Sprint(platform.ID)},
			err,
		)
	}
	return nil
}

func (p *Publisher) observe(err error) {
	if p == nil || p.published == nil {
		return
	}
	outcome := "published"
	if err != nil {
		outcome = "failed"
	}
	p.published.WithLabelValues(outcome).Inc()
}
