// Package postgres persists platform replicas and commands in Postgres through
// the pgx database/sql driver.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	"github.com/louisbranch/platformsync/internal/platform/retry"
	"github.com/louisbranch/platformsync/internal/services/commands/storage"
	"github.com/louisbranch/platformsync/internal/services/commands/storage/postgres/migrations"
)

const driverName = "pgx"

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

var sqlOpen = sql.Open

// Store provides Postgres-backed replica and command persistence.
type Store struct {
	db *sql.DB
}

var _ storage.Store = (*Store)(nil)

// Option customizes Open.
type Option func(*openOptions)

type openOptions struct {
	policy retry.Policy
	sleep  retry.Sleeper
	logf   func(string, ...any)
}

// WithRetryPolicy bounds connection and schema attempts.
func WithRetryPolicy(policy retry.Policy) Option {
	return func(o *openOptions) {
		o.policy = policy
	}
}

// WithSleeper replaces the wait between attempts.
func WithSleeper(sleep retry.Sleeper) Option {
	return func(o *openOptions) {
		if sleep != nil {
			o.sleep = sleep
		}
	}
}

// WithLogf sets the retry logger.
func WithLogf(logf func(string, ...any)) Option {
	return func(o *openOptions) {
		if logf != nil {
			o.logf = logf
		}
	}
}

// Open connects to dsn and applies the schema, retrying both while the
// database comes up.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	options := openOptions{
		policy: retry.DefaultPolicy(),
		sleep:  retry.SleepContext,
		logf:   log.Printf,
	}
	for _, opt := range opts {
		opt(&options)
	}

	db, err := sqlOpen(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	onRetry := func(attempt int, delay time.Duration, err error) {
		options.logf("postgres not ready (attempt %d), retrying in %s: %v", attempt, delay, err)
	}
	_, err = retry.Do(ctx, options.policy, options.sleep, onRetry, func(ctx context.Context, _ int) error {
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}
		return applySchema(ctx, db)
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func applySchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range strings.Split(migrations.Schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute ddl: %w", err)
		}
	}
	return nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// InsertReplica stores a replica; a zero ExternalID is stored as NULL.
func (s *Store) InsertReplica(ctx context.Context, replica storage.Replica) (storage.Replica, error) {
	if s == nil || s.db == nil {
		return storage.Replica{}, fmt.Errorf("storage is not configured")
	}
	replica.Name = strings.TrimSpace(replica.Name)
	replica.Publisher = strings.TrimSpace(replica.Publisher)
	if replica.ExternalID < 0 {
		return storage.Replica{}, fmt.Errorf("external id must not be negative")
	}
	if replica.Name == "" || replica.Publisher == "" {
		return storage.Replica{}, fmt.Errorf("replica name and publisher are required")
	}

	externalID := sql.NullInt64{Int64: replica.ExternalID, Valid: replica.ExternalID != 0}
	err := s.db.QueryRowContext(ctx, `
INSERT INTO platform_replicas (external_id, name, publisher)
VALUES ($1, $2, $3)
RETURNING local_id
`, externalID, replica.Name, replica.Publisher).Scan(&replica.LocalID)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.Replica{}, storage.ErrAlreadyExists
		}
		return storage.Replica{}, fmt.Errorf("insert replica: %w", err)
	}
	return replica, nil
}

// GetReplica returns a replica by local ID.
func (s *Store) GetReplica(ctx context.Context, localID int64) (storage.Replica, error) {
	return s.getReplica(ctx, `WHERE local_id = $1`, localID)
}

// GetReplicaByExternalID returns a replica by owner ID.
func (s *Store) GetReplicaByExternalID(ctx context.Context, externalID int64) (storage.Replica, error) {
	if externalID == 0 {
		return storage.Replica{}, storage.ErrNotFound
	}
	return s.getReplica(ctx, `WHERE external_id = $1`, externalID)
}

func (s *Store) getReplica(ctx context.Context, where string, arg int64) (storage.Replica, error) {
	if s == nil || s.db == nil {
		return storage.Replica{}, fmt.Errorf("storage is not configured")
	}
	var (
		replica    storage.Replica
		externalID sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
SELECT local_id, external_id, name, publisher
FROM platform_replicas
`+where, arg).Scan(&replica.LocalID, &externalID, &replica.Name, &replica.Publisher)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Replica{}, storage.ErrNotFound
		}
		return storage.Replica{}, fmt.Errorf("get replica: %w", err)
	}
	replica.ExternalID = externalID.Int64
	return replica, nil
}

// ListReplicas returns every replica ordered by local ID.
func (s *Store) ListReplicas(ctx context.Context) ([]storage.Replica, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT local_id, external_id, name, publisher
FROM platform_replicas
ORDER BY local_id ASC
`)
	if err != nil {
		return nil, fmt.Errorf("list replicas: %w", err)
	}
	defer func() { _ = rows.Close() }()

	replicas := make([]storage.Replica, 0)
	for rows.Next() {
		var (
			replica    storage.Replica
			externalID sql.NullInt64
		)
		if err := rows.Scan(&replica.LocalID, &externalID, &replica.Name, &replica.Publisher); err != nil {
			return nil, fmt.Errorf("scan replica: %w", err)
		}
		replica.ExternalID = externalID.Int64
		replicas = append(replicas, replica)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate replicas: %w", err)
	}
	return replicas, nil
}

// CountReplicas returns the number of replicas.
func (s *Store) CountReplicas(ctx context.Context) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM platform_replicas`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count replicas: %w", err)
	}
	return count, nil
}

// CreateCommand stores a command under a fresh ID.
func (s *Store) CreateCommand(ctx context.Context, command storage.Command) (storage.Command, error) {
	if s == nil || s.db == nil {
		return storage.Command{}, fmt.Errorf("storage is not configured")
	}
	if command.PlatformLocalID <= 0 {
		return storage.Command{}, fmt.Errorf("platform local id is required")
	}
	err := s.db.QueryRowContext(ctx, `
INSERT INTO commands (how_to, command_line, platform_local_id)
VALUES ($1, $2, $3)
RETURNING id
`, command.HowTo, command.CommandLine, command.PlatformLocalID).Scan(&command.ID)
	if err != nil {
		return storage.Command{}, fmt.Errorf("insert command: %w", err)
	}
	return command, nil
}

// GetCommand returns a command of one platform.
func (s *Store) GetCommand(ctx context.Context, platformLocalID, commandID int64) (storage.Command, error) {
	if s == nil || s.db == nil {
		return storage.Command{}, fmt.Errorf("storage is not configured")
	}
	var command storage.Command
	err := s.db.QueryRowContext(ctx, `
SELECT id, how_to, command_line, platform_local_id
FROM commands
WHERE platform_local_id = $1 AND id = $2
`, platformLocalID, commandID).Scan(&command.ID, &command.HowTo, &command.CommandLine, &command.PlatformLocalID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Command{}, storage.ErrNotFound
		}
		return storage.Command{}, fmt.Errorf("get command: %w", err)
	}
	return command, nil
}

// ListCommands returns the commands of one platform ordered by ID.
func (s *Store) ListCommands(ctx context.Context, platformLocalID int64) ([]storage.Command, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, how_to, command_line, platform_local_id
FROM commands
WHERE platform_local_id = $1
ORDER BY id ASC
`, platformLocalID)
	if err != nil {
		return nil, fmt.Errorf("list commands: %w", err)
	}
	defer func() { _ = rows.Close() }()

	commands := make([]storage.Command, 0)
	for rows.Next() {
		var command storage.Command
		if err := rows.Scan(&command.ID, &command.HowTo, &command.CommandLine, &command.PlatformLocalID); err != nil {
			return nil, fmt.Errorf("scan command: %w", err)
		}
		commands = append(commands, command)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate commands: %w", err)
	}
	return commands, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
