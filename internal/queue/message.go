package queue

import (
	"encoding/json"
	"time"
)

const (
	EventDocumentCreated = "document.created"
	EventDocumentDeleted = "document.deleted"

	eventVersion = 1
)

// Event is the payload sent to downstream consumers.
type Event struct {
	Type       string    `json:"type"`
	DocumentID string    `json:"documentId"`
	UserID     string    `json:"userId"`
	FileType   string    `json:"fileType,omitempty"`
	Size       int64     `json:"size,omitempty"`
	HasText    bool      `json:"hasText"`
	RequestID  string    `json:"requestId,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
	Version    int       `json:"version"`
}

// NewEvent stamps an event with the current time and schema version.
func NewEvent(eventType, documentID, userID string) Event {
	return Event{
		Type:       eventType,
		DocumentID: documentID,
		UserID:     userID,
		OccurredAt: time.Now().UTC(),
		Version:    eventVersion,
	}
}

// EncodeEvent returns the JSON representation of an event.
func EncodeEvent(evt Event) ([]byte, error) {
	return json.Marshal(evt)
}

// DecodeEvent parses a JSON payload into an Event.
func DecodeEvent(payload []byte) (Event, error) {
	var evt Event
	if err := json.Unmarshal(payload, &evt); err != nil {
		return Event{}, err
	}
	return evt, nil
}
