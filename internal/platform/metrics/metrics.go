package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var latencyBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}

// Metrics holds all Prometheus metrics for the engine. One value satisfies
// the Metrics interfaces of the cache, mutation, transition, audit,
// reconciler, detector, KPI and outbox packages.
type Metrics struct {
	RefetchLatency      *prometheus.HistogramVec
	RefetchFailures     *prometheus.CounterVec
	WriteLatency        *prometheus.HistogramVec
	WriteOutcomes       *prometheus.CounterVec
	Rollbacks           *prometheus.CounterVec
	Transitions         *prometheus.CounterVec
	AuditEntries        *prometheus.CounterVec
	FeedEvents          *prometheus.CounterVec
	InvalidationLatency *prometheus.HistogramVec
	InvalidationErrors  *prometheus.CounterVec
	ScanLatency         prometheus.Histogram
	ScanOutcomes        *prometheus.CounterVec
	DetectedAnomalies   prometheus.Counter
	KPIRefreshLatency   prometheus.Histogram
	KPIRefreshFailures  prometheus.Counter
	RelayLatency        prometheus.Histogram
	RelayedRecords      prometheus.Counter
	RelayFailures       prometheus.Counter
	SyncStatus          *prometheus.GaugeVec
	PendingOps          prometheus.Gauge
	RequestLatency      *prometheus.HistogramVec
}

// New registers every metric on reg. Pass prometheus.DefaultRegisterer in
// production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RefetchLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nexops_cache_refetch_duration_seconds",
			Help:    "Duration of anomaly view refetches by scope",
			Buckets: latencyBuckets,
		}, []string{"scope"}),
		RefetchFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nexops_cache_refetch_failures_total",
			Help: "Anomaly view refetches that failed, by scope",
		}, []string{"scope"}),
		WriteLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nexops_mutation_write_duration_seconds",
			Help:    "Duration of remote writes issued by optimistic mutations",
			Buckets: latencyBuckets,
		}, []string{"mutation"}),
		WriteOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nexops_mutation_writes_total",
			Help: "Optimistic mutation writes by mutation and outcome",
		}, []string{"mutation", "outcome"}), // outcome: "ok", "error"
		Rollbacks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nexops_mutation_rollbacks_total",
			Help: "Optimistic mutations rolled back after a failed write",
		}, []string{"mutation"}),
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nexops_status_transitions_total",
			Help: "Anomaly status transitions requested, by edge and result",
		}, []string{"from", "to", "result"}), // result: "accepted", "rejected"
		AuditEntries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nexops_audit_entries_total",
			Help: "Audit ledger entries appended by trigger source",
		}, []string{"source"}),
		FeedEvents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nexops_feed_events_total",
			Help: "Change-feed events received, by table and whether they were coalesced",
		}, []string{"table", "coalesced"}),
		InvalidationLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nexops_invalidation_duration_seconds",
			Help:    "Duration of cache invalidations triggered by change events",
			Buckets: latencyBuckets,
		}, []string{"target"}),
		InvalidationErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nexops_invalidation_failures_total",
			Help: "Cache invalidations that failed, by target",
		}, []string{"target"}),
		ScanLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "nexops_detection_scan_duration_seconds",
			Help:    "Duration of SLA breach detection scans",
			Buckets: latencyBuckets,
		}),
		ScanOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nexops_detection_scans_total",
			Help: "Detection scans by outcome",
		}, []string{"outcome"}),
		DetectedAnomalies: f.NewCounter(prometheus.CounterOpts{
			Name: "nexops_detection_anomalies_inserted_total",
			Help: "Anomalies inserted by the detector",
		}),
		KPIRefreshLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "nexops_kpi_refresh_duration_seconds",
			Help:    "Duration of KPI recomputation",
			Buckets: latencyBuckets,
		}),
		KPIRefreshFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "nexops_kpi_refresh_failures_total",
			Help: "KPI recomputations that failed",
		}),
		RelayLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "nexops_outbox_relay_duration_seconds",
			Help:    "Duration of outbox relay batches",
			Buckets: latencyBuckets,
		}),
		RelayedRecords: f.NewCounter(prometheus.CounterOpts{
			Name: "nexops_outbox_records_relayed_total",
			Help: "Outbox records published to Kafka",
		}),
		RelayFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "nexops_outbox_relay_failures_total",
			Help: "Outbox relay batches that failed",
		}),
		SyncStatus: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "nexops_sync_status",
			Help: "1 for the current derived sync status, 0 otherwise",
		}, []string{"status"}),
		PendingOps: f.NewGauge(prometheus.GaugeOpts{
			Name: "nexops_sync_pending_ops",
			Help: "Optimistic writes awaiting confirmation",
		}),
		RequestLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nexops_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern, method and status",
			Buckets: latencyBuckets,
		}, []string{"route", "method", "status"}),
	}
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (m *Metrics) ObserveRefetch(scope string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.RefetchLatency.WithLabelValues(scope).Observe(time.Since(start).Seconds())
	if err != nil {
		m.RefetchFailures.WithLabelValues(scope).Inc()
	}
}

func (m *Metrics) ObserveWrite(label string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.WriteLatency.WithLabelValues(label).Observe(time.Since(start).Seconds())
	m.WriteOutcomes.WithLabelValues(label, outcome(err)).Inc()
}

func (m *Metrics) IncrementRollback(label string) {
	if m != nil {
		m.Rollbacks.WithLabelValues(label).Inc()
	}
}

func (m *Metrics) IncrementTransition(from, to string, accepted bool) {
	if m == nil {
		return
	}
	result := "rejected"
	if accepted {
		result = "accepted"
	}
	m.Transitions.WithLabelValues(from, to, result).Inc()
}

func (m *Metrics) IncrementAppended(source string) {
	if m != nil {
		m.AuditEntries.WithLabelValues(source).Inc()
	}
}

func (m *Metrics) IncrementFeedEvent(table string, coalesced bool) {
	if m == nil {
		return
	}
	c := "false"
	if coalesced {
		c = "true"
	}
	m.FeedEvents.WithLabelValues(table, c).Inc()
}

func (m *Metrics) ObserveInvalidation(target string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.InvalidationLatency.WithLabelValues(target).Observe(time.Since(start).Seconds())
	if err != nil {
		m.InvalidationErrors.WithLabelValues(target).Inc()
	}
}

func (m *Metrics) ObserveScan(start time.Time, inserted int, err error) {
	if m == nil {
		return
	}
	m.ScanLatency.Observe(time.Since(start).Seconds())
	m.ScanOutcomes.WithLabelValues(outcome(err)).Inc()
	m.DetectedAnomalies.Add(float64(inserted))
}

func (m *Metrics) ObserveKPIRefresh(start time.Time, err error) {
	if m == nil {
		return
	}
	m.KPIRefreshLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		m.KPIRefreshFailures.Inc()
	}
}

func (m *Metrics) ObserveRelay(start time.Time, published int, err error) {
	if m == nil {
		return
	}
	m.RelayLatency.Observe(time.Since(start).Seconds())
	m.RelayedRecords.Add(float64(published))
	if err != nil {
		m.RelayFailures.Inc()
	}
}

// SetSyncState publishes the derived sync status and pending counter.
func (m *Metrics) SetSyncState(status string, all []string, pending int) {
	if m == nil {
		return
	}
	for _, s := range all {
		v := 0.0
		if s == status {
			v = 1
		}
		m.SyncStatus.WithLabelValues(s).Set(v)
	}
	m.PendingOps.Set(float64(pending))
}

func (m *Metrics) ObserveRequest(route, method string, status int, start time.Time) {
	if m == nil {
		return
	}
	m.RequestLatency.WithLabelValues(route, method, strconv.Itoa(status)).Observe(time.Since(start).Seconds())
}
