package domain

import (
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	dErrors "nexops/pkg/domain-errors"
)

// AnomalyID identifies an anomaly. Server-assigned IDs are UUIDs; an
// optimistic insert carries a provisional ID until the next refetch replaces it.
type AnomalyID string

const provisionalPrefix = "optimistic-"

// NewAnomalyID returns a fresh server-side identity.
func NewAnomalyID() AnomalyID {
	return AnomalyID(uuid.NewString())
}

var provisionalSeq atomic.Uint64

// ProvisionalAnomalyID derives a client-side placeholder identity from t. A
// process-wide sequence keeps IDs distinct when t repeats.
func ProvisionalAnomalyID(t time.Time) AnomalyID {
	return AnomalyID(provisionalPrefix +
		strconv.FormatInt(t.UnixNano(), 10) + "-" +
		strconv.FormatUint(provisionalSeq.Add(1), 10))
}

// ParseAnomalyID constructs an AnomalyID from external input. Provisional IDs
// are rejected: they never exist remotely.
func ParseAnomalyID(s string) (AnomalyID, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "anomaly id cannot be empty")
	}
	parsed, err := uuid.Parse(s)
	if err != nil || parsed == uuid.Nil {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid anomaly id")
	}
	return AnomalyID(parsed.String()), nil
}

// IsProvisional reports whether the ID is an optimistic placeholder.
func (id AnomalyID) IsProvisional() bool {
	return strings.HasPrefix(string(id), provisionalPrefix)
}

func (id AnomalyID) String() string { return string(id) }

// AuditEntryID identifies an audit ledger entry.
type AuditEntryID uuid.UUID

func NewAuditEntryID() AuditEntryID {
	return AuditEntryID(uuid.New())
}

func ParseAuditEntryID(s string) (AuditEntryID, error) {
	if s == "" {
		return AuditEntryID{}, dErrors.New(dErrors.CodeInvalidInput, "audit entry id cannot be empty")
	}
	parsed, err := uuid.Parse(s)
	if err != nil || parsed == uuid.Nil {
		return AuditEntryID{}, dErrors.New(dErrors.CodeInvalidInput, "invalid audit entry id")
	}
	return AuditEntryID(parsed), nil
}

func (id AuditEntryID) String() string { return uuid.UUID(id).String() }

func (id AuditEntryID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// MarshalText lets entry IDs travel as plain UUID strings in JSON.
func (id AuditEntryID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *AuditEntryID) UnmarshalText(b []byte) error {
	parsed, err := ParseAuditEntryID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
