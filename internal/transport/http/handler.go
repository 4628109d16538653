// Package httptransport exposes the anomaly session over HTTP and a sync
// websocket.
package httptransport

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"nexops/internal/anomaly/detector"
	"nexops/internal/anomaly/models"
	"nexops/internal/anomaly/mutation"
	"nexops/internal/anomaly/transition"
	"nexops/internal/audit"
	"nexops/internal/kpi"
	"nexops/internal/platform/middleware"
	"nexops/internal/roles"
	"nexops/internal/syncstate"
	"nexops/pkg/domain"
	dErrors "nexops/pkg/domain-errors"
	"nexops/pkg/platform/httputil"
	"nexops/pkg/requestcontext"
)

// Service is the session surface the handlers drive.
type Service interface {
	Mount(ctx context.Context, role roles.Role) ([]models.Anomaly, error)
	Unmount(role roles.Role)
	ActiveAnomalies(ctx context.Context, role roles.Role) ([]models.Anomaly, error)
	InsertAnomaly(ctx context.Context, role roles.Role, n models.NewAnomaly) (*models.Anomaly, error)
	ApplyStatusTransition(ctx context.Context, id domain.AnomalyID, next domain.AnomalyStatus, actor transition.Actor) (*transition.Result, error)
	RunDetectionScan(ctx context.Context, role roles.Role) (*detector.Result, error)
	AuditLog(ctx context.Context, role roles.Role, scope audit.Scope) ([]audit.Entry, error)
	VerifyAudit(ctx context.Context) error
	KPIs(ctx context.Context) (kpi.Metrics, error)
	SyncState() syncstate.State
	PendingMutations() []mutation.Command
	Reconnect() error
}

// Handler wires anomaly endpoints to the session.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the operator endpoints. Callers install RequireActor first.
func (h *Handler) Register(r chi.Router) {
	r.Get("/roles/current", h.HandleRoleConfig)
	r.Post("/mount", h.HandleMount)
	r.Delete("/mount", h.HandleUnmount)

	r.Get("/anomalies", h.HandleListAnomalies)
	r.Post("/anomalies", h.HandleCreateAnomaly)
	r.Post("/anomalies/{id}/transitions", h.HandleTransition)
	r.Get("/anomalies/{id}/audit", h.HandleRecordAudit)

	r.Post("/detection/scans", h.HandleScan)

	r.Get("/audit", h.HandleAuditLog)
	r.Get("/audit/verify", h.HandleVerifyAudit)

	r.Get("/kpis", h.HandleKPIs)
	r.Get("/sync", h.HandleSyncState)
	r.Post("/sync/reconnect", h.HandleReconnect)
}

func actorFrom(w http.ResponseWriter, r *http.Request) (middleware.Actor, bool) {
	a, ok := middleware.ActorFrom(r.Context())
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "operator role is required"))
	}
	return a, ok
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error, attrs ...any) {
	ctx := r.Context()
	attrs = append(attrs, "request_id", requestcontext.RequestID(ctx), "error", err)
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg, attrs...)
	} else {
		h.logger.WarnContext(ctx, msg, attrs...)
	}
	httputil.WriteError(w, err)
}

// HandleRoleConfig handles GET /roles/current.
func (h *Handler) HandleRoleConfig(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	cfg, err := roles.For(actor.Role)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, cfg)
}

// HandleMount handles POST /mount: loads the role's queue and runs the
// first detection scan of the mount.
func (h *Handler) HandleMount(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	view, err := h.service.Mount(r.Context(), actor.Role)
	if err != nil {
		h.fail(w, r, "mount failed", err, "role", actor.Role)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, AnomalyListResponse{Role: actor.Role.String(), Anomalies: fromAnomalies(view)})
}

// HandleUnmount handles DELETE /mount.
func (h *Handler) HandleUnmount(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	h.service.Unmount(actor.Role)
	w.WriteHeader(http.StatusNoContent)
}

// HandleListAnomalies handles GET /anomalies.
func (h *Handler) HandleListAnomalies(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	view, err := h.service.ActiveAnomalies(r.Context(), actor.Role)
	if err != nil {
		h.fail(w, r, "list anomalies failed", err, "role", actor.Role)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, AnomalyListResponse{Role: actor.Role.String(), Anomalies: fromAnomalies(view)})
}

// HandleCreateAnomaly handles POST /anomalies.
func (h *Handler) HandleCreateAnomaly(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[CreateAnomalyRequest](w, r, h.logger)
	if !ok {
		return
	}
	stored, err := h.service.InsertAnomaly(r.Context(), actor.Role, req.parsed)
	if err != nil {
		h.fail(w, r, "insert anomaly failed", err, "role", actor.Role, "entity_id", req.EntityID)
		return
	}
	h.logger.InfoContext(r.Context(), "anomaly inserted",
		"request_id", requestcontext.RequestID(r.Context()),
		"anomaly_id", stored.ID,
		"severity", stored.Severity,
	)
	httputil.WriteJSON(w, http.StatusCreated, fromAnomaly(*stored))
}

// HandleTransition handles POST /anomalies/{id}/transitions.
func (h *Handler) HandleTransition(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, err := domain.ParseAnomalyID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[TransitionRequest](w, r, h.logger)
	if !ok {
		return
	}

	res, err := h.service.ApplyStatusTransition(r.Context(), id, req.parsedStatus, transition.Actor{
		UserID: actor.UserID,
		Name:   actor.Name,
		Role:   actor.Role,
	})
	if err != nil {
		h.fail(w, r, "status transition failed", err, "anomaly_id", id, "status", req.parsedStatus)
		return
	}

	resp := TransitionResponse{Anomaly: fromAnomaly(res.Anomaly)}
	if !res.Entry.ID.IsNil() {
		entry := res.Entry
		resp.AuditEntry = &entry
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// HandleRecordAudit handles GET /anomalies/{id}/audit.
func (h *Handler) HandleRecordAudit(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, err := domain.ParseAnomalyID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.writeAudit(w, r, actor.Role, audit.Scope{RecordID: id.String()})
}

// HandleAuditLog handles GET /audit. With ?record_id= it reads one record's
// history (shipments, drivers and invoices included); without it, the global
// window. trigger_source and table narrow the result.
func (h *Handler) HandleAuditLog(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	h.writeAudit(w, r, actor.Role, audit.Scope{RecordID: r.URL.Query().Get("record_id")})
}

func (h *Handler) writeAudit(w http.ResponseWriter, r *http.Request, role roles.Role, scope audit.Scope) {
	q := r.URL.Query()
	filter := audit.Filter{TableName: q.Get("table")}
	if src := q.Get("trigger_source"); src != "" {
		parsed, err := domain.ParseTriggerSource(src)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		filter.TriggerSource = parsed
	}

	entries, err := h.service.AuditLog(r.Context(), role, scope)
	if err != nil {
		h.fail(w, r, "audit read failed", err, "role", role, "record_id", scope.RecordID)
		return
	}

	label := "global"
	if !scope.IsGlobal() {
		label = "record"
	}
	httputil.WriteJSON(w, http.StatusOK, AuditLogResponse{
		Scope:   label,
		Tables:  audit.Tables(entries),
		Entries: filter.Apply(entries),
	})
}

// HandleVerifyAudit handles GET /audit/verify.
func (h *Handler) HandleVerifyAudit(w http.ResponseWriter, r *http.Request) {
	if err := h.service.VerifyAudit(r.Context()); err != nil {
		h.fail(w, r, "audit chain verification failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"valid": true})
}

// HandleScan handles POST /detection/scans.
func (h *Handler) HandleScan(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	res, err := h.service.RunDetectionScan(r.Context(), actor.Role)
	if err != nil {
		h.fail(w, r, "detection scan failed", err, "role", actor.Role)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromScan(res))
}

// HandleKPIs handles GET /kpis.
func (h *Handler) HandleKPIs(w http.ResponseWriter, r *http.Request) {
	m, err := h.service.KPIs(r.Context())
	if err != nil {
		h.fail(w, r, "kpi read failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, m)
}

// HandleSyncState handles GET /sync.
func (h *Handler) HandleSyncState(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, SyncResponse{
		State:   h.service.SyncState(),
		Pending: fromCommands(h.service.PendingMutations()),
	})
}

// HandleReconnect handles POST /sync/reconnect.
func (h *Handler) HandleReconnect(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Reconnect(); err != nil {
		h.fail(w, r, "reconnect failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, h.service.SyncState())
}
