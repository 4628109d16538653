package outbox_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexops/internal/feed"
	"nexops/internal/outbox"
	"nexops/internal/outbox/store/memory"
)

func TestWriterPublish(t *testing.T) {
	store := memory.New()
	w := outbox.NewWriter(store)

	err := w.Publish(context.Background(), feed.Event{Table: "anomalies", Op: feed.OpInsert, RecordID: "a-1"})
	require.NoError(t, err)

	var batch []outbox.Record
	n, err := store.Dispatch(context.Background(), 10, func(_ context.Context, b []outbox.Record) error {
		batch = b
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	rec := batch[0]
	assert.Equal(t, "anomalies", rec.AggregateType)
	assert.Equal(t, "a-1", rec.AggregateID)
	assert.Equal(t, "insert", rec.EventType)

	var ev feed.Event
	require.NoError(t, json.Unmarshal(rec.Payload, &ev))
	assert.Equal(t, feed.Event{Table: "anomalies", Op: feed.OpInsert, RecordID: "a-1"}, ev)
}
