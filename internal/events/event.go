package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Event is the envelope delivered to every notification sink.
type Event struct {
	ID         string          `json:"eventId"`
	Topic      string          `json:"topic"`
	Data       json.RawMessage `json:"data"`
	OccurredAt time.Time       `json:"occurredAt"`
}

// New wraps payload into an event envelope with a fresh identifier.
func New(topic string, payload any, occurredAt time.Time) (Event, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return Event{}, errors.New("events: topic is required")
	}
	encoded, err := encodePayload(payload)
	if err != nil {
		return Event{}, fmt.Errorf("events: encode payload: %w", err)
	}
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}
	return Event{
		ID:         uuid.NewString(),
		Topic:      topic,
		Data:       encoded,
		OccurredAt: occurredAt.UTC(),
	}, nil
}

// Decode unmarshals the event data into dst.
func (e Event) Decode(dst any) error {
	if len(e.Data) == 0 {
		return errors.New("events: empty payload")
	}
	return json.Unmarshal(e.Data, dst)
}

func encodePayload(payload any) ([]byte, error) {
	if payload == nil {
		return []byte("{}"), nil
	}
	switch v := payload.(type) {
	case []byte:
		return validJSON(v)
	case json.RawMessage:
		return validJSON(v)
	case string:
		if strings.TrimSpace(v) == "" {
			return []byte("{}"), nil
		}
		return validJSON([]byte(v))
	default:
		return json.Marshal(v)
	}
}

func validJSON(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return []byte("{}"), nil
	}
	if !json.Valid(data) {
		return nil, errors.New("payload is not valid json")
	}
	return append([]byte(nil), data...), nil
}
