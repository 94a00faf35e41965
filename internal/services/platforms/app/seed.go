package server

import (
	"context"
	"fmt"
	"time"

	"github.com/louisbranch/platformsync/internal/services/platforms/storage"
)

// defaultPlatforms are created on first start so a fresh owner has data to
// replicate. They are not published; consumers pick them up by bulk pull.
var defaultPlatforms = []storage.NewPlatform{
	{Name: "Dotnet", Publisher: "Microsoft", Cost: "Free"},
	{Name: "Sql Server Express", Publisher: "Microsoft", Cost: "Free"},
	{Name: "Kubernetes", Publisher: "Cloud Native Computing Foundation", Cost: "Free"},
}

// SeedPlatforms inserts the default platforms when the store is empty and
// returns how many were created.
func SeedPlatforms(ctx context.Context, store storage.PlatformStore, now time.Time) (int, error) {
	count, err := store.CountPlatforms(ctx)
	if err != nil {
		return 0, fmt.Errorf("count platforms: %w", err)
	}
	if count > 0 {
		return 0, nil
	}
	for i, platform := range defaultPlatforms {
		if _, err := store.CreatePlatform(ctx, platform, now); err != nil {
			return i, fmt.Errorf("seed platform %q: %w", platform.Name, err)
		}
	}
	return len(defaultPlatforms), nil
}
