// Package storagetest holds the behavior every command-service backend must share.
package storagetest

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/louisbranch/platformsync/internal/services/commands/storage"
)

// Run exercises store against the shared backend contract. open must return
// an empty store.
func Run(t *testing.T, open func(t *testing.T) storage.Store) {
	t.Helper()

	t.Run("insert assigns local ids", func(t *testing.T) {
		store := open(t)
		ctx := context.Background()
		first, err := store.InsertReplica(ctx, storage.Replica{ExternalID: 7, Name: "Kubernetes", Publisher: "CNCF"})
		if err != nil {
			t.Fatalf("insert first: %v", err)
		}
		second, err := store.InsertReplica(ctx, storage.Replica{ExternalID: 9, Name: "Dotnet", Publisher: "Microsoft"})
		if err != nil {
			t.Fatalf("insert second: %v", err)
		}
		if first.LocalID <= 0 || second.LocalID <= first.LocalID {
			t.Fatalf("local ids = %d, %d", first.LocalID, second.LocalID)
		}

		got, err := store.GetReplicaByExternalID(ctx, 7)
		if err != nil {
			t.Fatalf("get by external id: %v", err)
		}
		if got != first {
			t.Fatalf("replica = %+v, want %+v", got, first)
		}
		byLocal, err := store.GetReplica(ctx, second.LocalID)
		if err != nil {
			t.Fatalf("get by local id: %v", err)
		}
		if byLocal.ExternalID != 9 || byLocal.Name != "Dotnet" {
			t.Fatalf("replica = %+v", byLocal)
		}
	})

	t.Run("duplicate external id is rejected", func(t *testing.T) {
		store := open(t)
		ctx := context.Background()
		if _, err := store.InsertReplica(ctx, storage.Replica{ExternalID: 7, Name: "Kubernetes", Publisher: "CNCF"}); err != nil {
			t.Fatalf("insert: %v", err)
		}
		_, err := store.InsertReplica(ctx, storage.Replica{ExternalID: 7, Name: "Kubernetes", Publisher: "CNCF"})
		if !errors.Is(err, storage.ErrAlreadyExists) {
			t.Fatalf("expected ErrAlreadyExists, got %v", err)
		}
		if count := mustCount(t, store); count != 1 {
			t.Fatalf("count = %d, want 1", count)
		}
	})

	t.Run("local-only rows do not collide", func(t *testing.T) {
		store := open(t)
		ctx := context.Background()
		for _, name := range []string{"Dotnet", "Sql Server Express"} {
			if _, err := store.InsertReplica(ctx, storage.Replica{Name: name, Publisher: "Microsoft"}); err != nil {
				t.Fatalf("insert local %s: %v", name, err)
			}
		}
		if count := mustCount(t, store); count != 2 {
			t.Fatalf("count = %d, want 2", count)
		}
		if _, err := store.GetReplicaByExternalID(ctx, 0); !errors.Is(err, storage.ErrNotFound) {
			t.Fatalf("external id 0 lookup = %v, want ErrNotFound", err)
		}
		replicas, err := store.ListReplicas(ctx)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(replicas) != 2 || replicas[0].ExternalID != 0 || replicas[0].Name != "Dotnet" {
			t.Fatalf("replicas = %+v", replicas)
		}
	})

	t.Run("missing replicas", func(t *testing.T) {
		store := open(t)
		ctx := context.Background()
		if _, err := store.GetReplica(ctx, 42); !errors.Is(err, storage.ErrNotFound) {
			t.Fatalf("get replica = %v", err)
		}
		if _, err := store.GetReplicaByExternalID(ctx, 42); !errors.Is(err, storage.ErrNotFound) {
			t.Fatalf("get by external id = %v", err)
		}
	})

	t.Run("invalid replicas are rejected", func(t *testing.T) {
		store := open(t)
		if _, err := store.InsertReplica(context.Background(), storage.Replica{ExternalID: 1, Publisher: "CNCF"}); err == nil {
			t.Fatal("expected missing name error")
		}
	})

	t.Run("concurrent inserts keep one row per external id", func(t *testing.T) {
		store := open(t)
		ctx := context.Background()
		const workers = 8
		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			inserted int
		)
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := store.InsertReplica(ctx, storage.Replica{ExternalID: 7, Name: "Kubernetes", Publisher: "CNCF"})
				if err == nil {
					mu.Lock()
					inserted++
					mu.Unlock()
					return
				}
				if !errors.Is(err, storage.ErrAlreadyExists) {
					t.Errorf("insert: %v", err)
				}
			}()
		}
		wg.Wait()
		if inserted != 1 {
			t.Fatalf("inserted = %d, want 1", inserted)
		}
		if count := mustCount(t, store); count != 1 {
			t.Fatalf("count = %d, want 1", count)
		}
	})

	t.Run("commands belong to one platform", func(t *testing.T) {
		store := open(t)
		ctx := context.Background()
		k8s, err := store.InsertReplica(ctx, storage.Replica{ExternalID: 7, Name: "Kubernetes", Publisher: "CNCF"})
		if err != nil {
			t.Fatalf("insert k8s: %v", err)
		}
		dotnet, err := store.InsertReplica(ctx, storage.Replica{ExternalID: 1, Name: "Dotnet", Publisher: "Microsoft"})
		if err != nil {
			t.Fatalf("insert dotnet: %v", err)
		}

		first, err := store.CreateCommand(ctx, storage.Command{HowTo: "List pods", CommandLine: "kubectl get pods", PlatformLocalID: k8s.LocalID})
		if err != nil {
			t.Fatalf("create first: %v", err)
		}
		if _, err := store.CreateCommand(ctx, storage.Command{HowTo: "Build", CommandLine: "dotnet build", PlatformLocalID: dotnet.LocalID}); err != nil {
			t.Fatalf("create second: %v", err)
		}
		third, err := store.CreateCommand(ctx, storage.Command{HowTo: "Apply", CommandLine: "kubectl apply -f .", PlatformLocalID: k8s.LocalID})
		if err != nil {
			t.Fatalf("create third: %v", err)
		}

		commands, err := store.ListCommands(ctx, k8s.LocalID)
		if err != nil {
			t.Fatalf("list commands: %v", err)
		}
		if len(commands) != 2 || commands[0].ID != first.ID || commands[1].ID != third.ID {
			t.Fatalf("commands = %+v", commands)
		}
		got, err := store.GetCommand(ctx, k8s.LocalID, first.ID)
		if err != nil {
			t.Fatalf("get command: %v", err)
		}
		if got.CommandLine != "kubectl get pods" || got.HowTo != "List pods" {
			t.Fatalf("command = %+v", got)
		}
		if _, err := store.GetCommand(ctx, dotnet.LocalID, first.ID); !errors.Is(err, storage.ErrNotFound) {
			t.Fatalf("cross-platform get = %v, want ErrNotFound", err)
		}
		empty, err := store.ListCommands(ctx, 999)
		if err != nil {
			t.Fatalf("list for unknown platform: %v", err)
		}
		if len(empty) != 0 {
			t.Fatalf("expected no commands, got %+v", empty)
		}
	})
}

func mustCount(t *testing.T, store storage.Store) int {
	t.Helper()
	count, err := store.CountReplicas(context.Background())
	if err != nil {
		t.Fatalf("count replicas: %v", err)
	}
	return count
}
