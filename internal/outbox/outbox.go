// Package outbox implements the transactional outbox: domain changes enqueue
// events in the same database transaction, and a Relay publishes them to
// Kafka afterwards.
package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

// Event is a domain event waiting in (or read from) the outbox table.
type Event struct {
	ID        int64
	EventID   uuid.UUID
	Type      string
	Key       string
	Payload   json.RawMessage
	CreatedAt time.Time
}

// NewEvent marshals payload and assigns a fresh event id.
func NewEvent(eventType, key string, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, errors.Wrapf(err, "marshal %s payload", eventType)
	}
	return Event{
		EventID: uuid.New(),
		Type:    eventType,
		Key:     key,
		Payload: data,
	}, nil
}

// Store reads pending events and acknowledges published ones.
type Store interface {
	FetchPending(ctx context.Context, limit int) ([]Event, error)
	MarkSent(ctx context.Context, ids []int64) error
}

// Publisher delivers a batch of events to the message broker.
type Publisher interface {
	Publish(ctx context.Context, events []Event) error
}
