// Package platformsync defines the wire contract shared by the platform owner
// and its replicas: the sync event envelope and the PlatformSyncService RPCs.
package platformsync

import (
	"bytes"
	"encoding/json"
	"strings"

	apperrors "github.com/louisbranch/platformsync/internal/platform/errors"
)

// EventTypePlatformPublished announces a newly created platform.
const EventTypePlatformPublished = "platforms.platform_published"

// TopicPlatforms is the durable topic platform events are appended to.
const TopicPlatforms = "platforms"

// ErrMalformedMessage matches any event body that cannot be decoded.
var ErrMalformedMessage = apperrors.New(apperrors.CodeMalformedMessage, "malformed sync event")

// SyncEvent is the envelope carried by the durable topic. Payload is decoded
// by the handler registered for EventType.
type SyncEvent struct {
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
}

// PlatformPayload is the PlatformPublished payload.
type PlatformPayload struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Publisher string `json:"publisher"`
}

// NewPlatformPublished builds the envelope for a created platform.
func NewPlatformPublished(payload PlatformPayload) (SyncEvent, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return SyncEvent{}, err
	}
	return SyncEvent{EventType: EventTypePlatformPublished, Payload: raw}, nil
}

// Encode serializes the envelope.
func (e SyncEvent) Encode() ([]byte, error) {
	if strings.TrimSpace(e.EventType) == "" {
		return nil, apperrors.New(apperrors.CodeInvalidArgument, "event type is required")
	}
	return json.Marshal(e)
}

// Decode parses an envelope. Unknown event types decode successfully; only
// bodies without a usable envelope are malformed.
func Decode(body []byte) (SyncEvent, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return SyncEvent{}, apperrors.New(apperrors.CodeMalformedMessage, "empty sync event body")
	}
	var event SyncEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return SyncEvent{}, apperrors.Wrap(apperrors.CodeMalformedMessage, "decode sync event", err)
	}
	event.EventType = strings.TrimSpace(event.EventType)
	if event.EventType == "" {
		return SyncEvent{}, apperrors.New(apperrors.CodeMalformedMessage, "sync event type is required")
	}
	return event, nil
}

// DecodePlatformPayload parses and validates a PlatformPublished payload.
func DecodePlatformPayload(raw json.RawMessage) (PlatformPayload, error) {
	var payload PlatformPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return PlatformPayload{}, apperrors.Wrap(apperrors.CodeMalformedMessage, "decode platform payload", err)
	}
	payload.Name = strings.TrimSpace(payload.Name)
	payload.Publisher = strings.TrimSpace(payload.Publisher)
	switch {
	case payload.ID <= 0:
		return PlatformPayload{}, apperrors.New(apperrors.CodeMalformedMessage, "platform id must be positive")
	case payload.Name == "":
		return PlatformPayload{}, apperrors.New(apperrors.CodeMalformedMessage, "platform name is required")
	case payload.Publisher == "":
		return PlatformPayload{}, apperrors.New(apperrors.CodeMalformedMessage, "platform publisher is required")
	}
	return payload, nil
}
