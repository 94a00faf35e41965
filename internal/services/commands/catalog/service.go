// Package catalog implements the consumer's command operations on top of the
// platform replica. Commands may only reference platforms the replica holds.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	apperrors "github.com/louisbranch/platformsync/internal/platform/errors"
	"github.com/louisbranch/platformsync/internal/services/commands/storage"
)

// ErrReferentialPrecondition matches a command that names a platform missing
// from the replica.
var ErrReferentialPrecondition = apperrors.New(apperrors.CodeReferentialPrecondition, "platform does not exist")

// Store is the persistence the catalog needs.
type Store interface {
	storage.ReplicaStore
	storage.CommandStore
}

// PlatformCommands is a replica with its commands.
type PlatformCommands struct {
	Platform storage.Replica
	Commands []storage.Command
}

// NewCommand is the input for CreateCommand.
type NewCommand struct {
	HowTo       string
	CommandLine string
}

// Service serves command reads and writes.
type Service struct {
	store Store
}

// NewService creates a catalog over store.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// ListPlatforms returns every replica with its commands.
func (s *Service) ListPlatforms(ctx context.Context) ([]PlatformCommands, error) {
	replicas, err := s.store.ListReplicas(ctx)
	if err != nil {
		return nil, fmt.Errorf("list replicas: %w", err)
	}
	out := make([]PlatformCommands, 0, len(replicas))
	for _, replica := range replicas {
		commands, err := s.store.ListCommands(ctx, replica.LocalID)
		if err != nil {
			return nil, fmt.Errorf("list commands of platform %d: %w", replica.LocalID, err)
		}
		out = append(out, PlatformCommands{Platform: replica, Commands: commands})
	}
	return out, nil
}

// ListCommands returns the commands of one replica.
func (s *Service) ListCommands(ctx context.Context, platformID int64) ([]storage.Command, error) {
	if _, err := s.platform(ctx, platformID); err != nil {
		return nil, err
	}
	commands, err := s.store.ListCommands(ctx, platformID)
	if err != nil {
		return nil, fmt.Errorf("list commands of platform %d: %w", platformID, err)
	}
	return commands, nil
}

// GetCommand returns one command of a replica.
func (s *Service) GetCommand(ctx context.Context, platformID, commandID int64) (storage.Command, error) {
	if _, err := s.platform(ctx, platformID); err != nil {
		return storage.Command{}, err
	}
	if commandID <= 0 {
		return storage.Command{}, apperrors.New(apperrors.CodeInvalidArgument, "command id must be positive")
	}
	command, err := s.store.GetCommand(ctx, platformID, commandID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.Command{}, apperrors.Wrap(apperrors.CodeNotFound, fmt.Sprintf("command %d not found", commandID), err)
		}
		return storage.Command{}, fmt.Errorf("get command %d: %w", commandID, err)
	}
	return command, nil
}

// CreateCommand attaches a command to a replica. A missing replica fails
// with ErrReferentialPrecondition.
func (s *Service) CreateCommand(ctx context.Context, platformID int64, in NewCommand) (storage.Command, error) {
	in.HowTo = strings.TrimSpace(in.HowTo)
	in.CommandLine = strings.TrimSpace(in.CommandLine)
	switch {
	case platformID <= 0:
		return storage.Command{}, apperrors.New(apperrors.CodeInvalidArgument, "platform id must be positive")
	case in.HowTo == "":
		return storage.Command{}, apperrors.New(apperrors.CodeInvalidArgument, "howTo is required")
	case in.CommandLine == "":
		return storage.Command{}, apperrors.New(apperrors.CodeInvalidArgument, "commandLine is required")
	}

	if _, err := s.store.GetReplica(ctx, platformID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.Command{}, apperrors.WrapWithMetadata(
				apperrors.CodeReferentialPrecondition,
				fmt.Sprintf("platform %d does not exist", platformID),
				map[string]string{"platform_id": fmt.Sprint(platformID)},
				err,
			)
		}
		return storage.Command{}, fmt.Errorf("get platform %d: %w", platformID, err)
	}
	command, err := s.store.CreateCommand(ctx, storage.Command{
		HowTo:           in.HowTo,
		CommandLine:     in.CommandLine,
		PlatformLocalID: platformID,
	})
	if err != nil {
		return storage.Command{}, fmt.Errorf("create command: %w", err)
	}
	return command, nil
}

func (s *Service) platform(ctx context.Context, platformID int64) (storage.Replica, error) {
	if platformID <= 0 {
		return storage.Replica{}, apperrors.New(apperrors.CodeInvalidArgument, "platform id must be positive")
	}
	replica, err := s.store.GetReplica(ctx, platformID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.Replica{}, apperrors.Wrap(apperrors.CodeNotFound, fmt.Sprintf("platform %d not found", platformID), err)
		}
		return storage.Replica{}, fmt.Errorf("get platform %d: %w", platformID, err)
	}
	return replica, nil
}
