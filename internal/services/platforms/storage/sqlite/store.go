// Package sqlite persists platforms and the platform event topic in SQLite.
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
	"github.com/louisbranch/platformsync/internal/services/platforms/storage/sqlite/migrations"
)

// Store provides SQLite-backed platform and topic persistence.
type Store struct {
	sqlDB *sql.DB
}

var (
	_ storage.PlatformStore = (*Store)(nil)
	_ storage.TopicStore    = (*Store)(nil)
)

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

// CreatePlatform inserts a platform and returns it with its assigned ID.
func (s *Store) CreatePlatform(ctx context.Context, in storage.NewPlatform, createdAt time.Time) (storage.Platform, error) {
	if err := ctx.Err(); err != nil {
		return storage.Platform{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Platform{}, fmt.Errorf("storage is not configured")
	}
	name := strings.TrimSpace(in.Name)
	publisher := strings.TrimSpace(in.Publisher)
	cost := strings.TrimSpace(in.Cost)
	if name == "" || publisher == "" || cost == "" {
		return storage.Platform{}, fmt.Errorf("platform name, publisher and cost are required")
	}
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	createdAt = createdAt.UTC()

	result, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO platforms (name, publisher, cost, created_at)
VALUES (?, ?, ?, ?)
`, name, publisher, cost, toMillis(createdAt))
	if err != nil {
		return storage.Platform{}, fmt.Errorf("insert platform: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return storage.Platform{}, fmt.Errorf("platform id: %w", err)
	}
	return storage.Platform{
		ID:        id,
		Name:      name,
		Publisher: publisher,
		Cost:      cost,
		CreatedAt: fromMillis(toMillis(createdAt)),
	}, nil
}

// GetPlatform returns one platform by ID.
func (s *Store) GetPlatform(ctx context.Context, id int64) (storage.Platform, error) {
	if err := ctx.Err(); err != nil {
		return storage.Platform{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Platform{}, fmt.Errorf("storage is not configured")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, name, publisher, cost, created_at
FROM platforms
WHERE id = ?
`, id)
	platform, err := scanPlatform(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Platform{}, storage.ErrNotFound
		}
		return storage.Platform{}, fmt.Errorf("get platform: %w", err)
	}
	return platform, nil
}

// ListPlatforms returns every platform ordered by ID.
func (s *Store) ListPlatforms(ctx context.Context) ([]storage.Platform, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, name, publisher, cost, created_at
FROM platforms
ORDER BY id ASC
`)
	if err != nil {
		return nil, fmt.Errorf("list platforms: %w", err)
	}
	defer rows.Close()

	platforms := make([]storage.Platform, 0)
	for rows.Next() {
		platform, err := scanPlatform(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan platform: %w", err)
		}
		platforms = append(platforms, platform)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate platforms: %w", err)
	}
	return platforms, nil
}

// CountPlatforms returns the number of stored platforms.
func (s *Store) CountPlatforms(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	var count int
	if err := s.sqlDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM platforms`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count platforms: %w", err)
	}
	return count, nil
}

func scanPlatform(scan func(dest ...any) error) (storage.Platform, error) {
	var (
		platform  storage.Platform
		createdAt int64
	)
	if err := scan(&platform.ID, &platform.Name, &platform.Publisher, &platform.Cost, &createdAt); err != nil {
		return storage.Platform{}, err
	}
	platform.CreatedAt = fromMillis(createdAt)
	return platform, nil
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func nullMillis(value sql.NullInt64) *time.Time {
	if !value.Valid {
		return nil
	}
	t := fromMillis(value.Int64)
	return &t
}
