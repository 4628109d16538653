package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"nexops/internal/feed"
)

// Writer implements feed.Publisher on top of the outbox. Remote-store writes
// call Publish inside their transaction, so the event commits with the row.
type Writer struct {
	store Store
	now   func() time.Time
}

func NewWriter(store Store) *Writer {
	return &Writer{store: store, now: time.Now}
}

func (w *Writer) Publish(ctx context.Context, ev feed.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode change event: %w", err)
	}
	rec := Record{
		ID:            uuid.New(),
		AggregateType: ev.Table,
		AggregateID:   ev.RecordID,
		EventType:     string(ev.Op),
		Payload:       payload,
		CreatedAt:     w.now(),
	}
	if err := w.store.Append(ctx, rec); err != nil {
		return fmt.Errorf("append outbox record: %w", err)
	}
	return nil
}
