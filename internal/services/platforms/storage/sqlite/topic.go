package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/platformsync/internal/platform/storage/sqlitedb"
	"github.com/louisbranch/platformsync/internal/services/platforms/storage"
)

// DeclareSubscription registers a named durable subscription to topic.
// Declaring an existing subscription for the same topic is a no-op.
func (s *Store) DeclareSubscription(ctx context.Context, topic, subscription string, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	topic = strings.TrimSpace(topic)
	subscription = strings.TrimSpace(subscription)
	if topic == "" {
		return fmt.Errorf("topic is required")
	}
	if subscription == "" {
		return fmt.Errorf("subscription is required")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	if _, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO topic_subscriptions (name, topic, created_at)
VALUES (?, ?, ?)
ON CONFLICT(name) DO NOTHING
`, subscription, topic, toMillis(now)); err != nil {
		return fmt.Errorf("declare subscription: %w", err)
	}

	var existingTopic string
	if err := s.sqlDB.QueryRowContext(ctx, `SELECT topic FROM topic_subscriptions WHERE name = ?`, subscription).Scan(&existingTopic); err != nil {
		return fmt.Errorf("read subscription: %w", err)
	}
	if existingTopic != topic {
		return fmt.Errorf("subscription %q is bound to topic %q: %w", subscription, existingTopic, storage.ErrAlreadyExists)
	}
	return nil
}

// AppendEvent stores an event and one pending delivery per subscription of its
// topic in a single transaction.
func (s *Store) AppendEvent(ctx context.Context, event storage.TopicEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	event.ID = strings.TrimSpace(event.ID)
	event.Topic = strings.TrimSpace(event.Topic)
	event.EventType = strings.TrimSpace(event.EventType)
	if event.ID == "" {
		return fmt.Errorf("event id is required")
	}
	if event.Topic == "" {
		return fmt.Errorf("topic is required")
	}
	if event.EventType == "" {
		return fmt.Errorf("event type is required")
	}
	if len(event.Body) == 0 {
		return fmt.Errorf("event body is required")
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	createdAt := toMillis(event.CreatedAt)

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("start append transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO topic_events (id, topic, event_type, body, created_at)
VALUES (?, ?, ?, ?, ?)
`, event.ID, event.Topic, event.EventType, event.Body, createdAt); err != nil {
		if sqlitedb.IsUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("insert topic event: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO topic_deliveries (subscription, event_id, status, attempt_count, next_attempt_at, last_error, updated_at)
SELECT name, ?, ?, 0, ?, '', ?
FROM topic_subscriptions
WHERE topic = ?
`, event.ID, storage.DeliveryStatusPending, createdAt, createdAt, event.Topic); err != nil {
		return fmt.Errorf("fan out topic event: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append transaction: %w", err)
	}
	return nil
}

// LeaseDeliveries leases due deliveries of one subscription: pending rows whose
// next attempt is due and leased rows whose lease expired.
func (s *Store) LeaseDeliveries(ctx context.Context, subscription string, limit int, now time.Time, leaseTTL time.Duration) ([]storage.TopicDelivery, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	subscription = strings.TrimSpace(subscription)
	if subscription == "" {
		return nil, fmt.Errorf("subscription is required")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}
	if leaseTTL <= 0 {
		return nil, fmt.Errorf("lease ttl must be greater than zero")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	nowMillis := toMillis(now)
	leaseExpiresAt := toMillis(now.Add(leaseTTL))

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("start lease transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	rows, err := tx.QueryContext(ctx, `
SELECT d.event_id
FROM topic_deliveries d
JOIN topic_events e ON e.id = d.event_id
WHERE d.subscription = ?
AND (
	(d.status = ? AND d.next_attempt_at <= ?)
	OR
	(d.status = ? AND d.lease_expires_at IS NOT NULL AND d.lease_expires_at <= ?)
)
ORDER BY e.seq ASC
LIMIT ?
`,
		subscription,
		storage.DeliveryStatusPending,
		nowMillis,
		storage.DeliveryStatusLeased,
		nowMillis,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select lease candidates: %w", err)
	}
	candidateIDs := make([]string, 0, limit)
	for rows.Next() {
		var id string
		if scanErr := rows.Scan(&id); scanErr != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan lease candidate: %w", scanErr)
		}
		candidateIDs = append(candidateIDs, id)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("iterate lease candidates: %w", err)
	}
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("close lease candidates: %w", err)
	}

	leased := make([]storage.TopicDelivery, 0, len(candidateIDs))
	for _, id := range candidateIDs {
		result, updateErr := tx.ExecContext(ctx, `
UPDATE topic_deliveries
SET
	status = ?,
	lease_expires_at = ?,
	updated_at = ?
WHERE subscription = ?
AND event_id = ?
AND (
	(status = ? AND next_attempt_at <= ?)
	OR
	(status = ? AND lease_expires_at IS NOT NULL AND lease_expires_at <= ?)
)
`,
			storage.DeliveryStatusLeased,
			leaseExpiresAt,
			nowMillis,
			subscription,
			id,
			storage.DeliveryStatusPending,
			nowMillis,
			storage.DeliveryStatusLeased,
			nowMillis,
		)
		if updateErr != nil {
			return nil, fmt.Errorf("lease delivery %s: %w", id, updateErr)
		}
		affected, rowsErr := result.RowsAffected()
		if rowsErr != nil {
			return nil, fmt.Errorf("lease rows affected for %s: %w", id, rowsErr)
		}
		if affected == 0 {
			continue
		}
		delivery, scanErr := scanDelivery(tx.QueryRowContext(ctx, selectDelivery, subscription, id).Scan)
		if scanErr != nil {
			return nil, fmt.Errorf("scan leased delivery %s: %w", id, scanErr)
		}
		leased = append(leased, delivery)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit lease transaction: %w", err)
	}
	return leased, nil
}

// AckDelivery records the outcome of a delivery currently leased to subscription.
func (s *Store) AckDelivery(ctx context.Context, subscription, eventID string, outcome storage.AckOutcome, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	subscription = strings.TrimSpace(subscription)
	eventID = strings.TrimSpace(eventID)
	if subscription == "" {
		return fmt.Errorf("subscription is required")
	}
	if eventID == "" {
		return fmt.Errorf("event id is required")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	nowMillis := toMillis(now)

	var (
		result sql.Result
		err    error
	)
	switch outcome.Status {
	case storage.DeliveryStatusSucceeded:
		result, err = s.sqlDB.ExecContext(ctx, `
UPDATE topic_deliveries
SET
	status = ?,
	lease_expires_at = NULL,
	last_error = '',
	processed_at = ?,
	updated_at = ?
WHERE subscription = ? AND event_id = ? AND status = ?
`, storage.DeliveryStatusSucceeded, nowMillis, nowMillis, subscription, eventID, storage.DeliveryStatusLeased)
	case storage.DeliveryStatusPending:
		nextAttemptAt := outcome.NextAttemptAt
		if nextAttemptAt.IsZero() {
			nextAttemptAt = now
		}
		result, err = s.sqlDB.ExecContext(ctx, `
UPDATE topic_deliveries
SET
	status = ?,
	attempt_count = attempt_count + 1,
	next_attempt_at = ?,
	lease_expires_at = NULL,
	last_error = ?,
	updated_at = ?
WHERE subscription = ? AND event_id = ? AND status = ?
`, storage.DeliveryStatusPending, toMillis(nextAttemptAt), outcome.LastError, nowMillis, subscription, eventID, storage.DeliveryStatusLeased)
	case storage.DeliveryStatusDead:
		result, err = s.sqlDB.ExecContext(ctx, `
UPDATE topic_deliveries
SET
	status = ?,
	attempt_count = attempt_count + 1,
	lease_expires_at = NULL,
	last_error = ?,
	processed_at = ?,
	updated_at = ?
WHERE subscription = ? AND event_id = ? AND status = ?
`, storage.DeliveryStatusDead, outcome.LastError, nowMillis, nowMillis, subscription, eventID, storage.DeliveryStatusLeased)
	default:
		return fmt.Errorf("unknown delivery outcome %q", outcome.Status)
	}
	if err != nil {
		return fmt.Errorf("ack delivery %s: %w", eventID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("ack rows affected for %s: %w", eventID, err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// GetDelivery returns one delivery by subscription and event ID.
func (s *Store) GetDelivery(ctx context.Context, subscription, eventID string) (storage.TopicDelivery, error) {
	if err := ctx.Err(); err != nil {
		return storage.TopicDelivery{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.TopicDelivery{}, fmt.Errorf("storage is not configured")
	}
	delivery, err := scanDelivery(s.sqlDB.QueryRowContext(ctx, selectDelivery, strings.TrimSpace(subscription), strings.TrimSpace(eventID)).Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.TopicDelivery{}, storage.ErrNotFound
		}
		return storage.TopicDelivery{}, fmt.Errorf("get delivery: %w", err)
	}
	return delivery, nil
}

const selectDelivery = `
SELECT
	d.subscription,
	d.event_id,
	e.seq,
	e.event_type,
	e.body,
	d.status,
	d.attempt_count,
	d.next_attempt_at,
	d.lease_expires_at,
	d.last_error,
	d.processed_at
FROM topic_deliveries d
JOIN topic_events e ON e.id = d.event_id
WHERE d.subscription = ? AND d.event_id = ?
`

func scanDelivery(scan func(dest ...any) error) (storage.TopicDelivery, error) {
	var (
		delivery       storage.TopicDelivery
		nextAttemptAt  int64
		leaseExpiresAt sql.NullInt64
		processedAt    sql.NullInt64
	)
	if err := scan(
		&delivery.Subscription,
		&delivery.EventID,
		&delivery.Seq,
		&delivery.EventType,
		&delivery.Body,
		&delivery.Status,
		&delivery.AttemptCount,
		&nextAttemptAt,
		&leaseExpiresAt,
		&delivery.LastError,
		&processedAt,
	); err != nil {
		return storage.TopicDelivery{}, err
	}
	delivery.NextAttemptAt = fromMillis(nextAttemptAt)
	delivery.LeaseExpiresAt = nullMillis(leaseExpiresAt)
	delivery.ProcessedAt = nullMillis(processedAt)
	return delivery, nil
}
