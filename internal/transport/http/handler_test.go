package httptransport

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"nexops/internal/anomaly/cache"
	"nexops/internal/anomaly/detector"
	"nexops/internal/anomaly/models"
	"nexops/internal/anomaly/mutation"
	"nexops/internal/anomaly/transition"
	"nexops/internal/audit"
	"nexops/internal/platform/middleware"
	"nexops/internal/roles"
	"nexops/internal/syncstate"
	"nexops/internal/transport/http/mocks"
	"nexops/pkg/domain"
	dErrors "nexops/pkg/domain-errors"
	"nexops/pkg/testutil"
)

type HandlerSuite struct {
	suite.Suite
	service *mocks.MockService
	router  http.Handler
	now     time.Time
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.service = mocks.NewMockService(ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.router = NewRouter(New(s.service, logger), nil, RouterConfig{Logger: logger})
	s.now = time.Date(2026, 6, 2, 14, 0, 0, 0, time.UTC)
}

func (s *HandlerSuite) do(req *http.Request, role string) *httptest.ResponseRecorder {
	if role != "" {
		req.Header.Set(middleware.HeaderRole, role)
		req.Header.Set(middleware.HeaderUserID, "u-1")
		req.Header.Set(middleware.HeaderUserName, "Sam Okafor")
	}
	return testutil.DoRequest(s.router, req)
}

func (s *HandlerSuite) anomaly(id domain.AnomalyID, status domain.AnomalyStatus) models.Anomaly {
	delta := 90
	return models.Anomaly{
		ID:               id,
		Type:             domain.TypeShipmentDelayed,
		Severity:         domain.SeverityWatch,
		EntityType:       domain.EntityShipment,
		EntityID:         "s1",
		EntityLabel:      "Shipment #REF-1",
		TimeDeltaMinutes: &delta,
		TriggerSource:    domain.TriggerAI,
		Status:           status,
		TriggeredAt:      s.now,
		UpdatedAt:        s.now,
	}
}

func (s *HandlerSuite) TestListAnomalies() {
	id := domain.NewAnomalyID()
	s.service.EXPECT().ActiveAnomalies(gomock.Any(), roles.WarehouseManager).
		Return([]models.Anomaly{s.anomaly(id, domain.StatusOpen)}, nil)

	rr := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/anomalies"), "warehouse_manager")

	testutil.AssertStatusOK(s.T(), rr)
	resp := testutil.UnmarshalResponse[AnomalyListResponse](s.T(), rr)
	s.Equal("warehouse_manager", resp.Role)
	s.Require().Len(resp.Anomalies, 1)
	s.Equal(id, resp.Anomalies[0].ID)
	s.Equal("Shipment #REF-1 is delayed (1 hr 30 min)", resp.Anomalies[0].Description)
	s.Equal("1 hr 30 min", resp.Anomalies[0].TimeDelta)
}

func (s *HandlerSuite) TestMissingRoleIsRejected() {
	rr := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/anomalies"), "")
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
}

func (s *HandlerSuite) TestMount() {
	s.service.EXPECT().Mount(gomock.Any(), roles.CEO).Return(nil, nil)
	rr := s.do(testutil.NewRequest(s.T(), http.MethodPost, "/mount"), "ceo")
	testutil.AssertStatusOK(s.T(), rr)

	s.service.EXPECT().Unmount(roles.CEO)
	rr = s.do(testutil.NewRequest(s.T(), http.MethodDelete, "/mount"), "ceo")
	testutil.AssertStatus(s.T(), rr, http.StatusNoContent)
}

func (s *HandlerSuite) TestTransition() {
	id := domain.NewAnomalyID()
	path := "/anomalies/" + id.String() + "/transitions"

	s.Run("accepted transition returns the audit entry", func() {
		entry := audit.Seal(audit.Entry{
			ID:            domain.NewAuditEntryID(),
			TableName:     "anomalies",
			RecordID:      id.String(),
			FieldChanged:  "status",
			TriggerSource: domain.TriggerManual,
			ChangedAt:     s.now,
		}, "")
		s.service.EXPECT().ApplyStatusTransition(gomock.Any(), id, domain.StatusInvestigating, transition.Actor{
			UserID: "u-1", Name: "Sam Okafor", Role: roles.WarehouseManager,
		}).Return(&transition.Result{Anomaly: s.anomaly(id, domain.StatusInvestigating), Entry: entry}, nil)

		rr := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, path, map[string]string{"status": "investigating"}), "warehouse_manager")

		testutil.AssertStatusOK(s.T(), rr)
		resp := testutil.UnmarshalResponse[TransitionResponse](s.T(), rr)
		s.Equal(domain.StatusInvestigating, resp.Anomaly.Status)
		s.Require().NotNil(resp.AuditEntry)
		s.Equal(entry.Hash, resp.AuditEntry.Hash)
	})

	s.Run("rejected edge is unprocessable", func() {
		s.service.EXPECT().ApplyStatusTransition(gomock.Any(), id, domain.StatusOpen, gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeInvalidTransition, "cannot move resolved to open"))

		rr := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, path, map[string]string{"status": "open"}), "warehouse_manager")
		testutil.AssertStatusAndError(s.T(), rr, http.StatusUnprocessableEntity, "invalid_transition")
	})

	s.Run("unknown status never reaches the session", func() {
		rr := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, path, map[string]string{"status": "closed"}), "warehouse_manager")
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "invalid_input")
	})

	s.Run("provisional ids are not addressable", func() {
		p := "/anomalies/" + domain.ProvisionalAnomalyID(s.now).String() + "/transitions"
		rr := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, p, map[string]string{"status": "resolved"}), "warehouse_manager")
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "invalid_input")
	})

	s.Run("write failure surfaces as bad gateway", func() {
		s.service.EXPECT().ApplyStatusTransition(gomock.Any(), id, domain.StatusResolved, gomock.Any()).
			Return(nil, dErrors.Wrap(errors.New("connection reset"), dErrors.CodeRemoteWrite, "update anomaly status"))

		rr := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, path, map[string]string{"status": "resolved"}), "warehouse_manager")
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadGateway, "remote_write_failed")
	})
}

func (s *HandlerSuite) TestCreateAnomaly() {
	s.Run("defaults the trigger source to manual", func() {
		var got models.NewAnomaly
		s.service.EXPECT().InsertAnomaly(gomock.Any(), roles.WarehouseManager, gomock.Any()).
			DoAndReturn(func(_ any, _ roles.Role, n models.NewAnomaly) (*models.Anomaly, error) {
				got = n
				a := n.Materialize(domain.NewAnomalyID(), s.now)
				return &a, nil
			})

		rr := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/anomalies", map[string]any{
			"anomaly_type": "driver_offline",
			"severity":     "critical",
			"entity_type":  "driver",
			"entity_id":    " drv-4 ",
			"entity_label": "Driver 4",
		}), "warehouse_manager")

		testutil.AssertStatus(s.T(), rr, http.StatusCreated)
		s.Equal(domain.TriggerManual, got.TriggerSource)
		s.Equal("drv-4", got.EntityID)
	})

	s.Run("missing fields are listed", func() {
		rr := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/anomalies", map[string]any{
			"anomaly_type": "driver_offline",
			"severity":     "critical",
			"entity_type":  "driver",
		}), "warehouse_manager")

		testutil.AssertStatus(s.T(), rr, http.StatusUnprocessableEntity)
		body := testutil.UnmarshalResponse[struct {
			Error  string            `json:"error"`
			Fields map[string]string `json:"fields"`
		}](s.T(), rr)
		s.Equal("validation_error", body.Error)
		s.Equal(map[string]string{"entity_id": "required", "entity_label": "required"}, body.Fields)
	})
}

func (s *HandlerSuite) TestAuditLog() {
	s.Run("global window is forbidden for scoped roles", func() {
		s.service.EXPECT().AuditLog(gomock.Any(), roles.Driver, audit.Scope{}).
			Return(nil, dErrors.New(dErrors.CodeForbidden, "Field Driver cannot read the global audit log"))

		rr := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/audit"), "driver")
		testutil.AssertStatusAndError(s.T(), rr, http.StatusForbidden, "forbidden")
	})

	s.Run("filters apply after facets", func() {
		src := func(table string, source domain.TriggerSource) audit.Entry {
			return audit.Entry{ID: domain.NewAuditEntryID(), TableName: table, RecordID: "r", FieldChanged: "status", TriggerSource: source}
		}
		s.service.EXPECT().AuditLog(gomock.Any(), roles.Finance, audit.Scope{}).Return([]audit.Entry{
			src("anomalies", domain.TriggerManual),
			src("shipments", domain.TriggerSystem),
			src("anomalies", domain.TriggerSystem),
		}, nil)

		rr := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/audit?trigger_source=system&table=anomalies"), "finance")

		testutil.AssertStatusOK(s.T(), rr)
		resp := testutil.UnmarshalResponse[AuditLogResponse](s.T(), rr)
		s.Equal("global", resp.Scope)
		s.Equal([]string{"anomalies", "shipments"}, resp.Tables)
		s.Len(resp.Entries, 1)
	})

	s.Run("record history by anomaly id", func() {
		id := domain.NewAnomalyID()
		s.service.EXPECT().AuditLog(gomock.Any(), roles.WarehouseManager, audit.Scope{RecordID: id.String()}).Return(nil, nil)

		rr := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/anomalies/"+id.String()+"/audit"), "warehouse_manager")
		testutil.AssertStatusOK(s.T(), rr)
		s.Equal("record", testutil.UnmarshalResponse[AuditLogResponse](s.T(), rr).Scope)
	})
}

func (s *HandlerSuite) TestScan() {
	s.service.EXPECT().RunDetectionScan(gomock.Any(), roles.WarehouseManager).
		Return(&detector.Result{Candidates: 3, Breaches: 1, Skipped: 0}, nil)

	rr := s.do(testutil.NewRequest(s.T(), http.MethodPost, "/detection/scans"), "warehouse_manager")

	testutil.AssertStatusOK(s.T(), rr)
	resp := testutil.UnmarshalResponse[ScanResponse](s.T(), rr)
	s.Equal(3, resp.Candidates)
	s.Empty(resp.Inserted)
}

func (s *HandlerSuite) TestSyncState() {
	cmdID := uuid.New()
	s.service.EXPECT().SyncState().Return(syncstate.State{Status: syncstate.StatusSyncing, PendingOps: 1})
	s.service.EXPECT().PendingMutations().Return([]mutation.Command{{
		ID: cmdID, Label: "update anomaly status", Scope: cache.ScopeKey("ceo"), IssuedAt: s.now, Pending: true,
	}})

	rr := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/sync"), "ceo")

	testutil.AssertStatusOK(s.T(), rr)
	resp := testutil.UnmarshalResponse[SyncResponse](s.T(), rr)
	s.Equal(syncstate.StatusSyncing, resp.Status)
	s.Require().Len(resp.Pending, 1)
	s.Equal(cmdID.String(), resp.Pending[0].ID)
}

func (s *HandlerSuite) TestReconnect() {
	s.service.EXPECT().Reconnect().Return(dErrors.New(dErrors.CodeSubscription, "subscribe to change feed"))
	rr := s.do(testutil.NewRequest(s.T(), http.MethodPost, "/sync/reconnect"), "ceo")
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadGateway, "subscription_failed")
}

func (s *HandlerSuite) TestRoleConfig() {
	rr := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/roles/current"), "ceo")
	testutil.AssertStatusOK(s.T(), rr)
	cfg := testutil.UnmarshalResponse[roles.Config](s.T(), rr)
	s.Equal("CEO", cfg.Label)
	s.Equal(roles.AuditReadOnly, cfg.AuditAccess)
}

func TestHealthz(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	down := errors.New("postgres unreachable")
	r := NewRouter(New(nil, logger), nil, RouterConfig{Logger: logger, Health: func() error { return down }})

	rr := testutil.DoRequest(r, testutil.NewRequest(t, http.MethodGet, "/healthz"))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.Contains(t, rr.Body.String(), "postgres unreachable")
}
