// Package storage declares the platform owner's persistence contracts.
package storage

import (
	"context"
	"time"

	"github.com/louisbranch/platformsync/internal/platform/errors"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New(errors.CodeNotFound, "record not found")

// ErrAlreadyExists indicates a unique key is already taken.
var ErrAlreadyExists = errors.New(errors.CodeAlreadyExists, "record already exists")

// Platform is the authoritative platform record.
type Platform struct {
	ID        int64
	Name      string
	Publisher string
	Cost      string
	CreatedAt time.Time
}

// NewPlatform carries the attributes of a platform to create.
type NewPlatform struct {
	Name      string
	Publisher string
	Cost      string
}

// PlatformStore persists platforms. IDs are assigned by the store and never reused.
type PlatformStore interface {
	CreatePlatform(ctx context.Context, in NewPlatform, createdAt time.Time) (Platform, error)
	GetPlatform(ctx context.Context, id int64) (Platform, error)
	ListPlatforms(ctx context.Context) ([]Platform, error)
	CountPlatforms(ctx context.Context) (int, error)
}

// Delivery statuses for durable topic subscriptions.
const (
	DeliveryStatusPending   = "pending"
	DeliveryStatusLeased    = "leased"
	DeliveryStatusSucceeded = "succeeded"
	DeliveryStatusDead      = "dead"
)

// TopicEvent is one message appended to a durable topic.
type TopicEvent struct {
	ID        string
	Topic     string
	EventType string
	Body      []byte
	CreatedAt time.Time
}

// TopicDelivery tracks one event for one named subscription.
type TopicDelivery struct {
	Subscription   string
	EventID        string
	Seq            int64
	EventType      string
	Body           []byte
	Status         string
	AttemptCount   int
	NextAttemptAt  time.Time
	LeaseExpiresAt *time.Time
	LastError      string
	ProcessedAt    *time.Time
}

// AckOutcome is the processing result for a leased delivery.
type AckOutcome struct {
	// Status is DeliveryStatusSucceeded, DeliveryStatusPending (retry) or
	// DeliveryStatusDead.
	Status        string
	LastError     string
	NextAttemptAt time.Time
}

// TopicStore is the durable topic behind event propagation.
type TopicStore interface {
	DeclareSubscription(ctx context.Context, topic, subscription string, now time.Time) error
	AppendEvent(ctx context.Context, event TopicEvent) error
	LeaseDeliveries(ctx context.Context, subscription string, limit int, now time.Time, leaseTTL time.Duration) ([]TopicDelivery, error)
	AckDelivery(ctx context.Context, subscription, eventID string, outcome AckOutcome, now time.Time) error
	GetDelivery(ctx context.Context, subscription, eventID string) (TopicDelivery, error)
}
