// Package memory keeps replicas and commands in process memory.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/louisbranch/platformsync/internal/services/commands/storage"
)

// Store is a mutex-guarded in-memory backend. The external ID index plays
// the role of a unique constraint.
type Store struct {
	mu            sync.RWMutex
	replicas      map[int64]storage.Replica
	byExternalID  map[int64]int64
	commands      map[int64]storage.Command
	nextReplicaID int64
	nextCommandID int64
}

var _ storage.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		replicas:     make(map[int64]storage.Replica),
		byExternalID: make(map[int64]int64),
		commands:     make(map[int64]storage.Command),
	}
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

// InsertReplica stores a replica under a fresh local ID.
func (s *Store) InsertReplica(ctx context.Context, replica storage.Replica) (storage.Replica, error) {
	if err := ctx.Err(); err != nil {
		return storage.Replica{}, err
	}
	if err := validateReplica(replica); err != nil {
		return storage.Replica{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if replica.ExternalID != 0 {
		if _, exists := s.byExternalID[replica.ExternalID]; exists {
			return storage.Replica{}, storage.ErrAlreadyExists
		}
	}
	s.nextReplicaID++
	replica.LocalID = s.nextReplicaID
	replica.Name = strings.TrimSpace(replica.Name)
	replica.Publisher = strings.TrimSpace(replica.Publisher)
	s.replicas[replica.LocalID] = replica
	if replica.ExternalID != 0 {
		s.byExternalID[replica.ExternalID] = replica.LocalID
	}
	return replica, nil
}

// GetReplica returns a replica by local ID.
func (s *Store) GetReplica(ctx context.Context, localID int64) (storage.Replica, error) {
	if err := ctx.Err(); err != nil {
		return storage.Replica{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	replica, ok := s.replicas[localID]
	if !ok {
		return storage.Replica{}, storage.ErrNotFound
	}
	return replica, nil
}

// GetReplicaByExternalID returns a replica by owner ID.
func (s *Store) GetReplicaByExternalID(ctx context.Context, externalID int64) (storage.Replica, error) {
	if err := ctx.Err(); err != nil {
		return storage.Replica{}, err
	}
	if externalID == 0 {
		return storage.Replica{}, storage.ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	localID, ok := s.byExternalID[externalID]
	if !ok {
		return storage.Replica{}, storage.ErrNotFound
	}
	return s.replicas[localID], nil
}

// ListReplicas returns every replica ordered by local ID.
func (s *Store) ListReplicas(ctx context.Context) ([]storage.Replica, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	replicas := make([]storage.Replica, 0, len(s.replicas))
	for _, replica := range s.replicas {
		replicas = append(replicas, replica)
	}
	slices.SortFunc(replicas, func(a, b storage.Replica) int {
		return cmp.Compare(a.LocalID, b.LocalID)
	})
	return replicas, nil
}

// CountReplicas returns the number of replicas.
func (s *Store) CountReplicas(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.replicas), nil
}

// CreateCommand stores a command under a fresh ID.
func (s *Store) CreateCommand(ctx context.Context, command storage.Command) (storage.Command, error) {
	if err := ctx.Err(); err != nil {
		return storage.Command{}, err
	}
	if command.PlatformLocalID <= 0 {
		return storage.Command{}, fmt.Errorf("platform local id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextCommandID++
	command.ID = s.nextCommandID
	s.commands[command.ID] = command
	return command, nil
}

// GetCommand returns a command of one platform.
func (s *Store) GetCommand(ctx context.Context, platformLocalID, commandID int64) (storage.Command, error) {
	if err := ctx.Err(); err != nil {
		return storage.Command{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	command, ok := s.commands[commandID]
	if !ok || command.PlatformLocalID != platformLocalID {
		return storage.Command{}, storage.ErrNotFound
	}
	return command, nil
}

// ListCommands returns the commands of one platform ordered by ID.
func (s *Store) ListCommands(ctx context.Context, platformLocalID int64) ([]storage.Command, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	commands := make([]storage.Command, 0)
	for _, command := range s.commands {
		if command.PlatformLocalID == platformLocalID {
			commands = append(commands, command)
		}
	}
	slices.SortFunc(commands, func(a, b storage.Command) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return commands, nil
}

func validateReplica(replica storage.Replica) error {
	if replica.ExternalID < 0 {
		return fmt.Errorf("external id must not be negative")
	}
	if strings.TrimSpace(replica.Name) == "" || strings.TrimSpace(replica.Publisher) == "" {
		return fmt.Errorf("replica name and publisher are required")
	}
	return nil
}
