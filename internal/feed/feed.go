// Package feed defines the change-feed contract: a push stream of
// "something changed in table T" signals. Events carry no row state;
// consumers refetch.
package feed

import (
	"context"
	"time"
)

// Op is the kind of row change.
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
	OpAny    Op = "*"
)

// Event is one change notification.
type Event struct {
	Table      string    `json:"table"`
	Op         Op        `json:"op"`
	RecordID   string    `json:"record_id,omitempty"`
	ReceivedAt time.Time `json:"-"`
}

// Topic selects which events a subscription receives.
type Topic struct {
	Table string
	Op    Op
}

// Matches reports whether ev falls under t. An empty table matches every table.
func (t Topic) Matches(ev Event) bool {
	if t.Table != "" && t.Table != ev.Table {
		return false
	}
	return t.Op == "" || t.Op == OpAny || t.Op == ev.Op
}

// StatusKind is a subscription lifecycle signal.
type StatusKind string

const (
	StatusSubscribed StatusKind = "subscribed"
	StatusClosed     StatusKind = "closed"
	StatusError      StatusKind = "error"
)

// Status is a subscription lifecycle change. Err is set for StatusError.
type Status struct {
	Kind StatusKind
	Err  error
}

// Subscription is a live feed subscription. Both channels are closed after
// Close returns or the feed shuts the subscription down.
type Subscription interface {
	Events() <-chan Event
	Status() <-chan Status
	Close() error
}

// Feed opens subscriptions.
type Feed interface {
	Subscribe(ctx context.Context, topic Topic) (Subscription, error)
}

// Publisher emits change events. Remote store adapters publish after a
// successful write.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, ev Event) error

func (f PublisherFunc) Publish(ctx context.Context, ev Event) error { return f(ctx, ev) }
