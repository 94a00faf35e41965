// Package storage declares the command service's persistence contracts: the
// platform replica and the commands attached to it.
package storage

import (
	"context"

	"github.com/louisbranch/platformsync/internal/platform/errors"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New(errors.CodeNotFound, "record not found")

// ErrAlreadyExists indicates the replica already holds a platform with the
// same external ID.
var ErrAlreadyExists = errors.New(errors.CodeAlreadyExists, "record already exists")

// Replica is the local copy of an owner platform.
//
// LocalID is assigned by the store. ExternalID is the owner's platform ID and
// is unique across the replica; zero marks a local-only row that was never
// sourced from the owner.
type Replica struct {
	LocalID    int64
	ExternalID int64
	Name       string
	Publisher  string
}

// Command is a consumer-owned record attached to a replica.
type Command struct {
	ID              int64
	HowTo           string
	CommandLine     string
	PlatformLocalID int64
}

// ReplicaStore persists platform replicas.
type ReplicaStore interface {
	// InsertReplica assigns a local ID and stores the replica. It returns
	// ErrAlreadyExists when another replica holds the same non-zero ExternalID.
	InsertReplica(ctx context.Context, replica Replica) (Replica, error)
	GetReplica(ctx context.Context, localID int64) (Replica, error)
	GetReplicaByExternalID(ctx context.Context, externalID int64) (Replica, error)
	ListReplicas(ctx context.Context) ([]Replica, error)
	CountReplicas(ctx context.Context) (int, error)
}

// CommandStore persists commands.
type CommandStore interface {
	CreateCommand(ctx context.Context, command Command) (Command, error)
	GetCommand(ctx context.Context, platformLocalID, commandID int64) (Command, error)
	ListCommands(ctx context.Context, platformLocalID int64) ([]Command, error)
}

// Store is a complete command-service backend.
type Store interface {
	ReplicaStore
	CommandStore
	Close() error
}
