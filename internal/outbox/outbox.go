// Package outbox relays change events written inside remote-store
// transactions to Kafka. Writer records an event in the same transaction as
// the row change; Worker drains unpublished records to the changes topic.
package outbox

//go:generate mockgen -source=outbox.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"github.com/google/uuid"

	"nexops/internal/platform/kafka"
)

// Record is one outbox row. Payload is the JSON-encoded change event.
type Record struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
	PublishedAt   *time.Time
}

// Store persists outbox records.
type Store interface {
	Append(ctx context.Context, rec Record) error
	// Dispatch claims up to limit unpublished records in creation order and
	// hands them to fn. The batch is marked published only when fn succeeds.
	Dispatch(ctx context.Context, limit int, fn func(ctx context.Context, batch []Record) error) (int, error)
}

// Producer sends messages to the changes topic.
type Producer interface {
	Send(ctx context.Context, msgs ...kafka.Message) error
}

// Metrics records relay activity.
type Metrics interface {
	ObserveRelay(start time.Time, published int, err error)
}
