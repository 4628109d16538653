package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"nexops/internal/roles"
	dErrors "nexops/pkg/domain-errors"
	"nexops/pkg/platform/httputil"
	"nexops/pkg/requestcontext"
)

// Operator identity headers. Authentication happens upstream; these carry the
// already-established identity and the persona the operator is acting as.
const (
	HeaderUserID   = "X-Nexops-User-Id"
	HeaderUserName = "X-Nexops-User-Name"
	HeaderRole     = "X-Nexops-Role"
)

// Actor is the operator on whose behalf a request runs.
type Actor struct {
	UserID string
	Name   string
	Role   roles.Role
}

type contextKeyActor struct{}

// ContextKeyActor is exported for tests that build contexts by hand.
var ContextKeyActor = contextKeyActor{}

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, ContextKeyActor, a)
}

// ActorFrom returns the request's actor, if RequireActor ran.
func ActorFrom(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(ContextKeyActor).(Actor)
	return a, ok
}

// RequireActor rejects requests without a known role header. The user id
// and name are optional; detection and ingestion clients run without them.
// Browsers cannot set headers on a websocket handshake, so the role may also
// arrive as the "role" query parameter.
func RequireActor(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			raw := strings.TrimSpace(r.Header.Get(HeaderRole))
			if raw == "" {
				raw = r.URL.Query().Get("role")
			}
			if raw == "" {
				logger.WarnContext(ctx, "request without operator role",
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, HeaderRole+" header is required"))
				return
			}
			role, err := roles.Parse(raw)
			if err != nil {
				logger.WarnContext(ctx, "request with unknown operator role",
					"role", raw,
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, err)
				return
			}

			a := Actor{
				UserID: strings.TrimSpace(r.Header.Get(HeaderUserID)),
				Name:   strings.TrimSpace(r.Header.Get(HeaderUserName)),
				Role:   role,
			}
			next.ServeHTTP(w, r.WithContext(WithActor(ctx, a)))
		})
	}
}
