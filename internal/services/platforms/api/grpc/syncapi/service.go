// Package syncapi serves PlatformSyncService from the platform owner's stores.
package syncapi

import (
	"context"
	"errors"
	"time"

	"github.com/louisbranch/platformsync/internal/services/platforms/storage"
	"github.com/louisbranch/platformsync/internal/services/shared/platformsync"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	defaultLeaseLimit = 10
	maxLeaseLimit     = 100
	defaultLeaseTTL   = 30 * time.Second
	maxLeaseTTL       = 5 * time.Minute
)

// Service exposes platformsync.v1 gRPC operations.
type Service struct {
	platforms storage.PlatformStore
	topic     storage.TopicStore
	clock     func() time.Time
}

var _ platformsync.Server = (*Service)(nil)

// NewService creates a sync service backed by platform and topic storage.
func NewService(platforms storage.PlatformStore, topic storage.TopicStore) *Service {
	return &Service{
		platforms: platforms,
		topic:     topic,
		clock:     time.Now,
	}
}

// GetAllPlatforms returns every platform without pagination.
func (s *Service) GetAllPlatforms(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if s == nil || s.platforms == nil {
		return nil, status.Error(codes.Internal, "platform store is not configured")
	}
	records, err := s.platforms.ListPlatforms(ctx)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "list platforms: %v", err)
	}
	platforms := make([]platformsync.Platform, 0, len(records))
	for _, record := range records {
		platforms = append(platforms, platformsync.Platform{
			ID:        record.ID,
			Name:      record.Name,
			Publisher: record.Publisher,
		})
	}
	out, err := platformsync.PlatformsToStruct(platforms)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode platforms: %v", err)
	}
	return out, nil
}

// SubscribeEvents declares a durable subscription to the platform topic.
func (s *Service) SubscribeEvents(ctx context.Context, in *structpb.Struct) (*emptypb.Empty, error) {
	if s == nil || s.topic == nil {
		return nil, status.Error(codes.Internal, "topic store is not configured")
	}
	subscription := platformsync.SubscriptionFromStruct(in)
	if subscription == "" {
		return nil, status.Error(codes.InvalidArgument, "subscription is required")
	}
	if err := s.topic.DeclareSubscription(ctx, platformsync.TopicPlatforms, subscription, s.now()); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return nil, status.Error(codes.AlreadyExists, err.Error())
		}
		return nil, status.Errorf(codes.Internal, "declare subscription: %v", err)
	}
	return &emptypb.Empty{}, nil
}

// LeaseEvents leases due deliveries for a subscription.
func (s *Service) LeaseEvents(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if s == nil || s.topic == nil {
		return nil, status.Error(codes.Internal, "topic store is not configured")
	}
	req, err := platformsync.LeaseRequestFromStruct(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if req.Subscription == "" {
		return nil, status.Error(codes.InvalidArgument, "subscription is required")
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultLeaseLimit
	}
	limit = min(limit, maxLeaseLimit)
	ttl := req.LeaseTTL
	if ttl <= 0 {
		ttl = defaultLeaseTTL
	}
	ttl = min(ttl, maxLeaseTTL)

	leased, err := s.topic.LeaseDeliveries(ctx, req.Subscription, limit, s.now(), ttl)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "lease deliveries: %v", err)
	}
	deliveries := make([]platformsync.Delivery, 0, len(leased))
	for _, delivery := range leased {
		deliveries = append(deliveries, platformsync.Delivery{
			EventID:      delivery.EventID,
			Seq:          delivery.Seq,
			AttemptCount: delivery.AttemptCount,
			Body:         delivery.Body,
		})
	}
	out, err := platformsync.DeliveriesToStruct(deliveries)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode deliveries: %v", err)
	}
	return out, nil
}

// AckEvent records the processing outcome of a leased delivery.
func (s *Service) AckEvent(ctx context.Context, in *structpb.Struct) (*emptypb.Empty, error) {
	if s == nil || s.topic == nil {
		return nil, status.Error(codes.Internal, "topic store is not configured")
	}
	req, err := platformsync.AckRequestFromStruct(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if req.Subscription == "" {
		return nil, status.Error(codes.InvalidArgument, "subscription is required")
	}
	if req.EventID == "" {
		return nil, status.Error(codes.InvalidArgument, "event id is required")
	}

	now := s.now()
	var outcome storage.AckOutcome
	switch req.Outcome {
	case platformsync.AckSucceeded:
		outcome = storage.AckOutcome{Status: storage.DeliveryStatusSucceeded}
	case platformsync.AckRetry:
		outcome = storage.AckOutcome{
			Status:        storage.DeliveryStatusPending,
			LastError:     req.Error,
			NextAttemptAt: now.Add(max(req.RetryAfter, 0)),
		}
	case platformsync.AckDead:
		outcome = storage.AckOutcome{Status: storage.DeliveryStatusDead, LastError: req.Error}
	default:
		return nil, status.Errorf(codes.InvalidArgument, "unknown ack outcome %q", req.Outcome)
	}

	if err := s.topic.AckDelivery(ctx, req.Subscription, req.EventID, outcome, now); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, status.Error(codes.NotFound, "delivery is not leased to this subscription")
		}
		return nil, status.Errorf(codes.Internal, "ack delivery: %v", err)
	}
	return &emptypb.Empty{}, nil
}

func (s *Service) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock().UTC()
}
