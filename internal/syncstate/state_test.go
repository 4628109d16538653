package syncstate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerStartsOffline(t *testing.T) {
	st := NewTracker().State()
	assert.Equal(t, StatusOffline, st.Status)
	assert.Nil(t, st.LastSynced)
	assert.Zero(t, st.PendingOps)
}

func TestTrackerPendingOps(t *testing.T) {
	tr := NewTracker()
	tr.SetLink(StatusLive)

	tr.IncrementPending()
	tr.IncrementPending()
	assert.Equal(t, State{Status: StatusSyncing, PendingOps: 2}, tr.State())

	tr.DecrementPending()
	tr.DecrementPending()
	tr.DecrementPending()
	assert.Equal(t, State{Status: StatusLive}, tr.State(), "counter is floored at zero")
}

func TestTrackerPendingDoesNotMaskOutage(t *testing.T) {
	tr := NewTracker()
	tr.SetLink(StatusReconnecting)
	tr.IncrementPending()
	assert.Equal(t, StatusReconnecting, tr.State().Status)
}

func TestTrackerConfirm(t *testing.T) {
	tr := NewTracker()
	at := time.Date(2026, 5, 2, 14, 0, 0, 0, time.UTC)

	tr.Confirm(at)

	st := tr.State()
	assert.Equal(t, StatusLive, st.Status)
	require.NotNil(t, st.LastSynced)
	assert.True(t, at.Equal(*st.LastSynced))
}

func TestTrackerOnChange(t *testing.T) {
	tr := NewTracker()
	var seen []State
	cancel := tr.OnChange(func(st State) { seen = append(seen, st) })

	tr.SetLink(StatusLive)
	tr.SetLink(StatusLive)
	tr.IncrementPending()
	cancel()
	tr.DecrementPending()

	require.Len(t, seen, 2, "no-op updates are not broadcast")
	assert.Equal(t, StatusLive, seen[0].Status)
	assert.Equal(t, StatusSyncing, seen[1].Status)
}
