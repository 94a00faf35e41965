package platformsync

import (
	"fmt"
	"math"
	"strings"
	"time"

	"google.golang.org/protobuf/types/known/structpb"
)

// Platform is the record returned by the bulk pull.
type Platform struct {
	ID        int64
	Name      string
	Publisher string
}

// AckOutcome is the processing result reported for a leased delivery.
type AckOutcome string

const (
	// AckSucceeded marks a delivery as processed.
	AckSucceeded AckOutcome = "succeeded"
	// AckRetry returns a delivery to the topic for redelivery.
	AckRetry AckOutcome = "retry"
	// AckDead parks a delivery that can never be processed.
	AckDead AckOutcome = "dead"
)

// Valid reports whether the outcome is known.
func (o AckOutcome) Valid() bool {
	switch o {
	case AckSucceeded, AckRetry, AckDead:
		return true
	default:
		return false
	}
}

// Delivery is one leased event for a subscription.
type Delivery struct {
	EventID      string
	Seq          int64
	AttemptCount int
	Body         []byte
}

// LeaseRequest asks for due deliveries of one subscription.
type LeaseRequest struct {
	Subscription string
	Limit        int
	LeaseTTL     time.Duration
}

// AckRequest reports the outcome of one delivery.
type AckRequest struct {
	Subscription string
	EventID      string
	Outcome      AckOutcome
	Error        string
	RetryAfter   time.Duration
}

const (
	fieldPlatforms    = "platforms"
	fieldID           = "id"
	fieldName         = "name"
	fieldPublisher    = "publisher"
	fieldSubscription = "subscription"
	fieldLimit        = "limit"
	fieldLeaseTTLMS   = "lease_ttl_ms"
	fieldDeliveries   = "deliveries"
	fieldEventID      = "event_id"
	fieldSeq          = "seq"
	fieldAttemptCount = "attempt_count"
	fieldBody         = "body"
	fieldOutcome      = "outcome"
	fieldError        = "error"
	fieldRetryAfterMS = "retry_after_ms"
)

// PlatformsToStruct encodes a bulk-pull response.
func PlatformsToStruct(platforms []Platform) (*structpb.Struct, error) {
	items := make([]any, 0, len(platforms))
	for _, platform := range platforms {
		items = append(items, map[string]any{
			fieldID:        platform.ID,
			fieldName:      platform.Name,
			fieldPublisher: platform.Publisher,
		})
	}
	return structpb.NewStruct(map[string]any{fieldPlatforms: items})
}

// PlatformsFromStruct decodes a bulk-pull response.
func PlatformsFromStruct(in *structpb.Struct) ([]Platform, error) {
	if in == nil {
		return nil, fmt.Errorf("platforms response is required")
	}
	list, ok := in.GetFields()[fieldPlatforms]
	if !ok {
		return nil, fmt.Errorf("platforms response is missing %q", fieldPlatforms)
	}
	values := list.GetListValue().GetValues()
	platforms := make([]Platform, 0, len(values))
	for i, value := range values {
		item := value.GetStructValue()
		if item == nil {
			return nil, fmt.Errorf("platform %d is not an object", i)
		}
		id, err := intField(item, fieldID)
		if err != nil {
			return nil, fmt.Errorf("platform %d: %w", i, err)
		}
		platform := Platform{
			ID:        id,
			Name:      strings.TrimSpace(stringField(item, fieldName)),
			Publisher: strings.TrimSpace(stringField(item, fieldPublisher)),
		}
		if platform.ID <= 0 || platform.Name == "" || platform.Publisher == "" {
			return nil, fmt.Errorf("platform %d is incomplete", i)
		}
		platforms = append(platforms, platform)
	}
	return platforms, nil
}

// SubscriptionToStruct encodes a SubscribeEvents request.
func SubscriptionToStruct(name string) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{fieldSubscription: name})
}

// SubscriptionFromStruct decodes a SubscribeEvents request.
func SubscriptionFromStruct(in *structpb.Struct) string {
	return strings.TrimSpace(stringField(in, fieldSubscription))
}

// LeaseRequestToStruct encodes a LeaseEvents request.
func LeaseRequestToStruct(req LeaseRequest) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		fieldSubscription: req.Subscription,
		fieldLimit:        req.Limit,
		fieldLeaseTTLMS:   req.LeaseTTL.Milliseconds(),
	})
}

// LeaseRequestFromStruct decodes a LeaseEvents request.
func LeaseRequestFromStruct(in *structpb.Struct) (LeaseRequest, error) {
	limit, err := intField(in, fieldLimit)
	if err != nil {
		return LeaseRequest{}, err
	}
	ttl, err := intField(in, fieldLeaseTTLMS)
	if err != nil {
		return LeaseRequest{}, err
	}
	return LeaseRequest{
		Subscription: strings.TrimSpace(stringField(in, fieldSubscription)),
		Limit:        int(limit),
		LeaseTTL:     time.Duration(ttl) * time.Millisecond,
	}, nil
}

// DeliveriesToStruct encodes a LeaseEvents response.
func DeliveriesToStruct(deliveries []Delivery) (*structpb.Struct, error) {
	items := make([]any, 0, len(deliveries))
	for _, delivery := range deliveries {
		items = append(items, map[string]any{
			fieldEventID:      delivery.EventID,
			fieldSeq:          delivery.Seq,
			fieldAttemptCount: delivery.AttemptCount,
			fieldBody:         string(delivery.Body),
		})
	}
	return structpb.NewStruct(map[string]any{fieldDeliveries: items})
}

// DeliveriesFromStruct decodes a LeaseEvents response.
func DeliveriesFromStruct(in *structpb.Struct) ([]Delivery, error) {
	if in == nil {
		return nil, fmt.Errorf("lease response is required")
	}
	values := in.GetFields()[fieldDeliveries].GetListValue().GetValues()
	deliveries := make([]Delivery, 0, len(values))
	for i, value := range values {
		item := value.GetStructValue()
		if item == nil {
			return nil, fmt.Errorf("delivery %d is not an object", i)
		}
		eventID := strings.TrimSpace(stringField(item, fieldEventID))
		if eventID == "" {
			return nil, fmt.Errorf("delivery %d is missing an event id", i)
		}
		seq, err := intField(item, fieldSeq)
		if err != nil {
			return nil, fmt.Errorf("delivery %d: %w", i, err)
		}
		attempts, err := intField(item, fieldAttemptCount)
		if err != nil {
			return nil, fmt.Errorf("delivery %d: %w", i, err)
		}
		deliveries = append(deliveries, Delivery{
			EventID:      eventID,
			Seq:          seq,
			AttemptCount: int(attempts),
			Body:         []byte(stringField(item, fieldBody)),
		})
	}
	return deliveries, nil
}

// AckRequestToStruct encodes an AckEvent request.
func AckRequestToStruct(req AckRequest) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		fieldSubscription: req.Subscription,
		fieldEventID:      req.EventID,
		fieldOutcome:      string(req.Outcome),
		fieldError:        req.Error,
		fieldRetryAfterMS: req.RetryAfter.Milliseconds(),
	})
}

// AckRequestFromStruct decodes an AckEvent request.
func AckRequestFromStruct(in *structpb.Struct) (AckRequest, error) {
	retryAfter, err := intField(in, fieldRetryAfterMS)
	if err != nil {
		return AckRequest{}, err
	}
	return AckRequest{
		Subscription: strings.TrimSpace(stringField(in, fieldSubscription)),
		EventID:      strings.TrimSpace(stringField(in, fieldEventID)),
		Outcome:      AckOutcome(strings.TrimSpace(stringField(in, fieldOutcome))),
		Error:        stringField(in, fieldError),
		RetryAfter:   time.Duration(retryAfter) * time.Millisecond,
	}, nil
}

func stringField(in *structpb.Struct, name string) string {
	return in.GetFields()[name].GetStringValue()
}

// intField reads an optional integral number; absent fields are zero.
func intField(in *structpb.Struct, name string) (int64, error) {
	value, ok := in.GetFields()[name]
	if !ok {
		return 0, nil
	}
	if _, isNumber := value.GetKind().(*structpb.Value_NumberValue); !isNumber {
		return 0, fmt.Errorf("field %q must be a number", name)
	}
	number := value.GetNumberValue()
	if number != math.Trunc(number) || math.Abs(number) > 1<<53 {
		return 0, fmt.Errorf("field %q must be an integer", name)
	}
	return int64(number), nil
}
