package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexops/internal/roles"
	"nexops/pkg/requestcontext"
	"nexops/pkg/testutil"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = requestcontext.RequestID(r.Context())
	}))

	t.Run("keeps the caller's id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "req-42")
		rr := testutil.DoRequest(h, req)
		assert.Equal(t, "req-42", seen)
		assert.Equal(t, "req-42", rr.Header().Get(RequestIDHeader))
	})

	t.Run("assigns one when missing", func(t *testing.T) {
		rr := testutil.DoRequest(h, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.NotEmpty(t, seen)
		assert.Equal(t, seen, rr.Header().Get(RequestIDHeader))
	})
}

func TestClientIPFromRequest(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded chain", map[string]string{"X-Forwarded-For": "203.0.113.9, 10.0.0.1"}, "10.0.0.2:4000", "203.0.113.9"},
		{"real ip", map[string]string{"X-Real-IP": " 198.51.100.7 "}, "10.0.0.2:4000", "198.51.100.7"},
		{"remote addr", nil, "192.0.2.1:5555", "192.0.2.1"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remote
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tc.want, ClientIPFromRequest(req))
		})
	}
}

func TestRecovery(t *testing.T) {
	h := Recovery(discard())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rr := testutil.DoRequest(h, httptest.NewRequest(http.MethodGet, "/", nil))
	testutil.AssertStatusAndError(t, rr, http.StatusInternalServerError, "internal_error")
}

type latencySpy struct {
	route  string
	status int
}

func (s *latencySpy) ObserveRequest(route, _ string, status int, _ time.Time) {
	s.route, s.status = route, status
}

func TestLoggerRecordsRoutePattern(t *testing.T) {
	spy := &latencySpy{}
	r := chi.NewRouter()
	r.Use(Logger(discard(), spy))
	r.Get("/anomalies/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	testutil.DoRequest(r, httptest.NewRequest(http.MethodGet, "/anomalies/abc", nil))
	assert.Equal(t, "/anomalies/{id}", spy.route)
	assert.Equal(t, http.StatusNoContent, spy.status)
}

func TestTimeoutSetsDeadline(t *testing.T) {
	h := Timeout(time.Second)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok := r.Context().Deadline()
		assert.True(t, ok)
	}))
	testutil.DoRequest(h, httptest.NewRequest(http.MethodGet, "/", nil))
}

func TestContentTypeJSON(t *testing.T) {
	h := ContentTypeJSON(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("status=resolved"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := testutil.DoRequest(h, req)
	testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "bad_request")

	rr = testutil.DoRequest(h, testutil.NewJSONRequest(t, http.MethodPost, "/", map[string]string{"status": "resolved"}))
	testutil.AssertStatusOK(t, rr)
}

func TestRequireActor(t *testing.T) {
	var got Actor
	h := RequireActor(discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a, ok := ActorFrom(r.Context())
		require.True(t, ok)
		got = a
	}))

	t.Run("headers identify the operator", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(HeaderRole, "finance")
		req.Header.Set(HeaderUserID, "u-9")
		req.Header.Set(HeaderUserName, "Priya Raman")
		rr := testutil.DoRequest(h, req)

		testutil.AssertStatusOK(t, rr)
		assert.Equal(t, Actor{UserID: "u-9", Name: "Priya Raman", Role: roles.Finance}, got)
	})

	t.Run("query parameter works for websocket handshakes", func(t *testing.T) {
		rr := testutil.DoRequest(h, httptest.NewRequest(http.MethodGet, "/?role=driver", nil))
		testutil.AssertStatusOK(t, rr)
		assert.Equal(t, roles.Driver, got.Role)
	})

	t.Run("missing role is rejected", func(t *testing.T) {
		rr := testutil.DoRequest(h, httptest.NewRequest(http.MethodGet, "/", nil))
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "bad_request")
	})

	t.Run("unknown role is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(HeaderRole, "admin")
		rr := testutil.DoRequest(h, req)
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "invalid_input")
	})
}
