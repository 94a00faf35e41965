// Package sqlite persists platform replicas and commands in SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/louisbranch/platformsync/internal/platform/storage/sqlitedb"
	"github.com/louisbranch/platformsync/internal/services/commands/storage"
	"github.com/louisbranch/platformsync/internal/services/commands/storage/sqlite/migrations"
)

// Store provides SQLite-backed replica and command persistence. The UNIQUE
// external_id column serializes concurrent merges of the same platform.
type Store struct {
	sqlDB *sql.DB
}

var _ storage.Store = (*Store)(nil)

// Open opens a SQLite store at path and applies migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	sqlDB, err := sqlitedb.Open(ctx, path, migrations.FS)
	if err != nil {
		return nil, err
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// InsertReplica stores a replica; a zero ExternalID is stored as NULL.
func (s *Store) InsertReplica(ctx context.Context, replica storage.Replica) (storage.Replica, error) {
	if err := ctx.Err(); err != nil {
		return storage.Replica{}, err
	}
	if s == nil || s.sqlDB == nil {
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

	result, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO platform_replicas (external_id, name, publisher)
VALUES (?, ?, ?)
`, nullExternalID(replica.ExternalID), replica.Name, replica.Publisher)
	if err != nil {
		if sqlitedb.IsUniqueViolation(err) {
			return storage.Replica{}, storage.ErrAlreadyExists
		}
		return storage.Replica{}, fmt.Errorf("insert replica: %w", err)
	}
	localID, err := result.LastInsertId()
	if err != nil {
		return storage.Replica{}, fmt.Errorf("replica id: %w", err)
	}
	replica.LocalID = localID
	return replica, nil
}

// GetReplica returns a replica by local ID.
func (s *Store) GetReplica(ctx context.Context, localID int64) (storage.Replica, error) {
	return s.getReplica(ctx, `WHERE local_id = ?`, localID)
}

// GetReplicaByExternalID returns a replica by owner ID.
func (s *Store) GetReplicaByExternalID(ctx context.Context, externalID int64) (storage.Replica, error) {
	if externalID == 0 {
		return storage.Replica{}, storage.ErrNotFound
	}
	return s.getReplica(ctx, `WHERE external_id = ?`, externalID)
}

func (s *Store) getReplica(ctx context.Context, where string, arg int64) (storage.Replica, error) {
	if err := ctx.Err(); err != nil {
		return storage.Replica{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Replica{}, fmt.Errorf("storage is not configured")
	}
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT local_id, external_id, name, publisher
FROM platform_replicas
`+where, arg)
	replica, err := scanReplica(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Replica{}, storage.ErrNotFound
		}
		return storage.Replica{}, fmt.Errorf("get replica: %w", err)
	}
	return replica, nil
}

// ListReplicas returns every replica ordered by local ID.
func (s *Store) ListReplicas(ctx context.Context) ([]storage.Replica, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT local_id, external_id, name, publisher
FROM platform_replicas
ORDER BY local_id ASC
`)
	if err != nil {
		return nil, fmt.Errorf("list replicas: %w", err)
	}
	defer rows.Close()

	replicas := make([]storage.Replica, 0)
	for rows.Next() {
		replica, err := scanReplica(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan replica: %w", err)
		}
		replicas = append(replicas, replica)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate replicas: %w", err)
	}
	return replicas, nil
}

// CountReplicas returns the number of replicas.
func (s *Store) CountReplicas(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	var count int
	if err := s.sqlDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM platform_replicas`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count replicas: %w", err)
	}
	return count, nil
}

// CreateCommand stores a command under a fresh ID.
func (s *Store) CreateCommand(ctx context.Context, command storage.Command) (storage.Command, error) {
	if err := ctx.Err(); err != nil {
		return storage.Command{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Command{}, fmt.Errorf("storage is not configured")
	}
	if command.PlatformLocalID <= 0 {
		return storage.Command{}, fmt.Errorf("platform local id is required")
	}
	result, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO commands (how_to, command_line, platform_local_id)
VALUES (?, ?, ?)
`, command.HowTo, command.CommandLine, command.PlatformLocalID)
	if err != nil {
		return storage.Command{}, fmt.Errorf("insert command: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return storage.Command{}, fmt.Errorf("command id: %w", err)
	}
	command.ID = id
	return command, nil
}

// GetCommand returns a command of one platform.
func (s *Store) GetCommand(ctx context.Context, platformLocalID, commandID int64) (storage.Command, error) {
	if err := ctx.Err(); err != nil {
		return storage.Command{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Command{}, fmt.Errorf("storage is not configured")
	}
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, how_to, command_line, platform_local_id
FROM commands
WHERE platform_local_id = ? AND id = ?
`, platformLocalID, commandID)
	command, err := scanCommand(row.Scan)
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
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, how_to, command_line, platform_local_id
FROM commands
WHERE platform_local_id = ?
ORDER BY id ASC
`, platformLocalID)
	if err != nil {
		return nil, fmt.Errorf("list commands: %w", err)
	}
	defer rows.Close()

	commands := make([]storage.Command, 0)
	for rows.Next() {
		command, err := scanCommand(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan command: %w", err)
		}
		commands = append(commands, command)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate commands: %w", err)
	}
	return commands, nil
}

func scanReplica(scan func(dest ...any) error) (storage.Replica, error) {
	var (
		replica    storage.Replica
		externalID sql.NullInt64
	)
	if err := scan(&replica.LocalID, &externalID, &replica.Name, &replica.Publisher); err != nil {
		return storage.Replica{}, err
	}
	replica.ExternalID = externalID.Int64
	return replica, nil
}

func scanCommand(scan func(dest ...any) error) (storage.Command, error) {
	var command storage.Command
	if err := scan(&command.ID, &command.HowTo, &command.CommandLine, &command.PlatformLocalID); err != nil {
		return storage.Command{}, err
	}
	return command, nil
}

func nullExternalID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}
