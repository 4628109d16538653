// Package syncstate tracks connectivity with the remote store and keeps
// cached views reconciled with the change feed.
package syncstate

import (
	"sync"
	"time"
)

// Status is the connectivity state shown to operators.
type Status string

const (
	StatusLive         Status = "live"
	StatusSyncing      Status = "syncing"
	StatusReconnecting Status = "reconnecting"
	StatusOffline      Status = "offline"
)

// State is a point-in-time copy of the tracker.
type State struct {
	Status     Status     `json:"status"`
	LastSynced *time.Time `json:"last_synced,omitempty"`
	PendingOps int        `json:"pending_ops"`
}

// Tracker is the session's single SyncState. The reconciler owns the link
// status; the mutation coordinator owns the pending counter. A live link with
// pending operations reads as syncing.
type Tracker struct {
	mu         sync.Mutex
	link       Status
	lastSynced *time.Time
	pending    int
	nextID     int
	listeners  map[int]func(State)
}

// NewTracker returns a tracker in the offline state.
func NewTracker() *Tracker {
	return &Tracker{
		link:      StatusOffline,
		listeners: make(map[int]func(State)),
	}
}

func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stateLocked()
}

func (t *Tracker) stateLocked() State {
	st := State{Status: t.link, PendingOps: t.pending}
	if st.Status == StatusLive && t.pending > 0 {
		st.Status = StatusSyncing
	}
	if t.lastSynced != nil {
		ls := *t.lastSynced
		st.LastSynced = &ls
	}
	return st
}

// SetLink records the feed connection status.
func (t *Tracker) SetLink(s Status) {
	t.update(func() { t.link = s })
}

func (t *Tracker) SetLastSynced(at time.Time) {
	t.update(func() { t.lastSynced = &at })
}

// Confirm records a reconciliation at at. Receiving an event proves the link is up.
func (t *Tracker) Confirm(at time.Time) {
	t.update(func() {
		t.link = StatusLive
		t.lastSynced = &at
	})
}

func (t *Tracker) IncrementPending() {
	t.update(func() { t.pending++ })
}

// DecrementPending never takes the counter below zero.
func (t *Tracker) DecrementPending() {
	t.update(func() {
		if t.pending > 0 {
			t.pending--
		}
	})
}

// OnChange registers fn to receive every state change. fn runs on the
// mutating goroutine and must not block. The returned func unregisters it.
func (t *Tracker) OnChange(fn func(State)) (cancel func()) {
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.listeners[id] = fn
	t.mu.Unlock()
	return func() {
		t.mu.Lock()
		delete(t.listeners, id)
		t.mu.Unlock()
	}
}

func (t *Tracker) update(mutate func()) {
	t.mu.Lock()
	before := t.stateLocked()
	mutate()
	after := t.stateLocked()
	var fns []func(State)
	if !equal(before, after) {
		fns = make([]func(State), 0, len(t.listeners))
		for _, fn := range t.listeners {
			fns = append(fns, fn)
		}
	}
	t.mu.Unlock()

	for _, fn := range fns {
		fn(after)
	}
}

func equal(a, b State) bool {
	if a.Status != b.Status || a.PendingOps != b.PendingOps {
		return false
	}
	if a.LastSynced == nil || b.LastSynced == nil {
		return a.LastSynced == b.LastSynced
	}
	return a.LastSynced.Equal(*b.LastSynced)
}

// Statuses lists every status value.
func Statuses() []Status {
	return []Status{StatusLive, StatusSyncing, StatusReconnecting, StatusOffline}
}
