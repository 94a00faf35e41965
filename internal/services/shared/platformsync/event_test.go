package platformsync

import (
	"errors"
	"testing"
)

func TestPlatformPublishedEnvelope(t *testing.T) {
	event, err := NewPlatformPublished(PlatformPayload{ID: 7, Name: "Kubernetes", Publisher: "CNCF"})
	if err != nil {
		t.Fatalf("new event: %v", err)
	}
	body, err := event.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := `{"event_type":"platforms.platform_published","payload":{"id":7,"name":"Kubernetes","publisher":"CNCF"}}`
	if string(body) != want {
		t.Fatalf("body = %s, want %s", body, want)
	}

	decoded, err := Decode(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.EventType != EventTypePlatformPublished {
		t.Fatalf("event type = %q", decoded.EventType)
	}
	payload, err := DecodePlatformPayload(decoded.Payload)
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload != (PlatformPayload{ID: 7, Name: "Kubernetes", Publisher: "CNCF"}) {
		t.Fatalf("payload = %+v", payload)
	}
}

func TestDecodeRejectsMalformedBodies(t *testing.T) {
	bodies := map[string]string{
		"empty":        "",
		"not json":     "{not json",
		"missing type": `{"payload":{"id":1}}`,
		"blank type":   `{"event_type":"  ","payload":{}}`,
		"wrong shape":  `["platforms.platform_published"]`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(body))
			if !errors.Is(err, ErrMalformedMessage) {
				t.Fatalf("expected ErrMalformedMessage, got %v", err)
			}
		})
	}
}

func TestDecodeKeepsUnknownEventTypes(t *testing.T) {
	event, err := Decode([]byte(`{"event_type":"platforms.platform_retired","payload":{"id":3}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if event.EventType != "platforms.platform_retired" {
		t.Fatalf("event type = %q", event.EventType)
	}
}

func TestDecodePlatformPayloadValidation(t *testing.T) {
	payloads := map[string]string{
		"zero id":       `{"id":0,"name":"a","publisher":"b"}`,
		"missing name":  `{"id":1,"publisher":"b"}`,
		"blank pub":     `{"id":1,"name":"a","publisher":" "}`,
		"string id":     `{"id":"1","name":"a","publisher":"b"}`,
		"not an object": `42`,
	}
	for name, raw := range payloads {
		t.Run(name, func(t *testing.T) {
			_, err := DecodePlatformPayload([]byte(raw))
			if !errors.Is(err, ErrMalformedMessage) {
				t.Fatalf("expected ErrMalformedMessage, got %v", err)
			}
		})
	}
}

func TestEncodeRequiresEventType(t *testing.T) {
	if _, err := (SyncEvent{}).Encode(); err == nil {
		t.Fatal("expected missing event type error")
	}
}
