package queue

import (
	"strings"
	"testing"
	"time"
)

func TestEventRoundTrip(t *testing.T) {
	evt := NewEvent(EventDocumentCreated, "doc-123", "user-456")
	evt.FileType = ".pdf"
	evt.Size = 2048
	evt.HasText = true

	payload, err := EncodeEvent(evt)
	if err != nil {
		t.Fatalf("encode event: %v", err)
	}
	if !strings.Contains(string(payload), `"type":"document.created"`) {
		t.Fatalf("unexpected payload: %s", payload)
	}

	got, err := DecodeEvent(payload)
	if err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if got.DocumentID != "doc-123" || got.UserID != "user-456" || got.Version != 1 {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if !got.OccurredAt.Equal(evt.OccurredAt) {
		t.Fatalf("timestamp mismatch: %s vs %s", got.OccurredAt, evt.OccurredAt)
	}
	if time.Since(got.OccurredAt) > time.Minute {
		t.Fatalf("expected fresh timestamp, got %s", got.OccurredAt)
	}
}

func TestDecodeEventRejectsGarbage(t *testing.T) {
	if _, err := DecodeEvent([]byte("{")); err == nil {
		t.Fatal("expected decode error")
	}
}
