// Package httputil holds the JSON envelope every handler writes.
package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	dErrors "nexops/pkg/domain-errors"
	"nexops/pkg/platform/sentinel"
	"nexops/pkg/platform/validation"
)

const maxBodyBytes = 1 << 20

// Validatable request bodies check and normalize themselves after decoding.
type Validatable interface {
	Validate() error
}

// ErrorResponse is the error envelope. Description is omitted for internal errors.
type ErrorResponse struct {
	Error       string            `json:"error"`
	Description string            `json:"error_description,omitempty"`
	Fields      map[string]string `json:"fields,omitempty"`
}

// StatusFor maps a domain error code to an HTTP status.
func StatusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeBadRequest, dErrors.CodeInvalidInput:
		return http.StatusBadRequest
	case dErrors.CodeValidation, dErrors.CodeInvalidTransition:
		return http.StatusUnprocessableEntity
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeConflict:
		return http.StatusConflict
	case dErrors.CodeForbidden:
		return http.StatusForbidden
	case dErrors.CodeTimeout:
		return http.StatusGatewayTimeout
	case dErrors.CodeRemoteWrite, dErrors.CodeRemoteRead, dErrors.CodeSubscription, dErrors.CodeDetectionScan:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// WriteError translates err into the error envelope. Infrastructure sentinels
// that reach the transport without a code are mapped here.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	if code == dErrors.CodeInternal {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			code = dErrors.CodeNotFound
		case errors.Is(err, sentinel.ErrConflict):
			code = dErrors.CodeConflict
		case errors.Is(err, context.DeadlineExceeded):
			code = dErrors.CodeTimeout
		}
	}

	resp := ErrorResponse{Error: string(code)}
	if code != dErrors.CodeInternal {
		resp.Description = dErrors.MessageOf(err)
	}
	if code == dErrors.CodeValidation {
		resp.Fields = validation.Fields(err)
	}
	WriteJSON(w, StatusFor(code), resp)
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// DecodeAndPrepare decodes the body into T and validates it. On failure the
// error response is already written and ok is false.
func DecodeAndPrepare[T any, PT interface {
	*T
	Validatable
}](w http.ResponseWriter, r *http.Request, logger *slog.Logger) (req *T, ok bool) {
	ctx := r.Context()
	req = new(T)
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(req); err != nil {
		logger.WarnContext(ctx, "failed to decode request body", "error", err)
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid json body"))
		return nil, false
	}
	if err := PT(req).Validate(); err != nil {
		logger.WarnContext(ctx, "request failed validation", "error", err)
		WriteError(w, err)
		return nil, false
	}
	return req, true
}
