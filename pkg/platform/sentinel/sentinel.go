package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores, feeds and locks return
// these (optionally wrapped) so services can translate them into domain errors.
//
// They describe the state of a resource, not a validation failure:
// - ErrNotFound: record does not exist in the remote store
// - ErrConflict: record already exists or was changed underneath the caller
// - ErrInvalidState: record is in the wrong state for the requested operation
// - ErrUnavailable: backend or lock temporarily unavailable
// - ErrClosed: feed, subscription or session already shut down
//
// For bad input, use pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
	ErrClosed       = errors.New("closed")
)
