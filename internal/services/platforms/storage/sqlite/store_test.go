package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/louisbranch/platformsync/internal/services/platforms/storage"
)

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := Open(context.Background(), ""); err == nil {
		t.Fatal("expected empty path error")
	}
}

func TestCreateGetPlatformRoundTrip(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	now := time.Date(2026, time.March, 3, 10, 0, 0, 0, time.UTC)
	created, err := store.CreatePlatform(context.Background(), storage.NewPlatform{
		Name:      " Kubernetes ",
		Publisher: "Cloud Native Computing Foundation",
		Cost:      "Free",
	}, now)
	if err != nil {
		t.Fatalf("create platform: %v", err)
	}
	if created.ID <= 0 {
		t.Fatalf("expected assigned id, got %d", created.ID)
	}

	got, err := store.GetPlatform(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("get platform: %v", err)
	}
	if got.Name != "Kubernetes" {
		t.Fatalf("name = %q, want %q", got.Name, "Kubernetes")
	}
	if got.Cost != "Free" {
		t.Fatalf("cost = %q, want %q", got.Cost, "Free")
	}
	if !got.CreatedAt.Equal(now) {
		t.Fatalf("created_at = %v, want %v", got.CreatedAt, now)
	}
}

func TestCreatePlatformRequiresFields(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	if _, err := store.CreatePlatform(context.Background(), storage.NewPlatform{Name: "Dotnet"}, time.Time{}); err == nil {
		t.Fatal("expected missing field error")
	}
}

func TestGetPlatformNotFound(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	if _, err := store.GetPlatform(context.Background(), 99); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListAndCountPlatforms(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	for _, name := range []string{"Dotnet", "Sql Server Express", "Kubernetes"} {
		if _, err := store.CreatePlatform(ctx, storage.NewPlatform{Name: name, Publisher: "p", Cost: "Free"}, time.Time{}); err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
	}

	count, err := store.CountPlatforms(ctx)
	if err != nil {
		t.Fatalf("count platforms: %v", err)
	}
	if count != 3 {
		t.Fatalf("count = %d, want 3", count)
	}
	platforms, err := store.ListPlatforms(ctx)
	if err != nil {
		t.Fatalf("list platforms: %v", err)
	}
	if len(platforms) != 3 || platforms[0].Name != "Dotnet" || platforms[2].Name != "Kubernetes" {
		t.Fatalf("platforms = %+v", platforms)
	}
	if platforms[0].ID >= platforms[1].ID {
		t.Fatalf("expected ascending ids, got %d then %d", platforms[0].ID, platforms[1].ID)
	}
}

func TestPlatformsSurviveReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "platforms.db")
	store, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	created, err := store.CreatePlatform(context.Background(), storage.NewPlatform{Name: "Dotnet", Publisher: "Microsoft", Cost: "Free"}, time.Time{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = reopened.Close() })
	if _, err := reopened.GetPlatform(context.Background(), created.ID); err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
}

func openTempStore(t *testing.T) *Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "platforms.db")
	store, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return store
}
