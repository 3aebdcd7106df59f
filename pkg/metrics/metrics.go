// Package metrics wires a Prometheus registry for the poller, exposing a
// /metrics scrape endpoint and a trivial /healthz handler.
//
// The counter/histogram shapes (operation-by-status counters, millisecond
// histograms with hand-picked buckets) follow the teacher's
// pkg/metrics/prometheus/s3.go; this package collapses the teacher's
// IsEnabled()/GetRegistry() indirection (which exists to avoid an import
// cycle between pkg/cache and pkg/metrics) since blobtailer's poller
// depends on metrics directly and no such cycle exists here.
package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/blobtailer/blobtailer/internal/cli/health"
	"github.com/blobtailer/blobtailer/internal/cli/timeutil"
	"github.com/blobtailer/blobtailer/internal/logger"
)

// Recorder records poll-cycle outcomes. A nil *Recorder is valid and a
// no-op, so callers can pass it through unconditionally when metrics are
// disabled.
type Recorder struct {
	registry *prometheus.Registry

	cycleDuration    prometheus.Histogram
	blobsTotal       *prometheus.CounterVec
	eventsProduced   prometheus.Counter
	activeLeases     prometheus.Gauge
	leaseRenewalFail prometheus.Counter
}

// NewRecorder creates a Recorder registered against a fresh registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()

	return &Recorder{
		registry: reg,
		cycleDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name: "blobtailer_poll_cycle_duration_milliseconds",
			Help: "Duration of one poll cycle in milliseconds",
			Buckets: []float64{
				10, 50, 100, 500, 1000, 5000, 10000, 30000, 60000,
			},
		}),
		blobsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "blobtailer_blobs_total",
			Help: "Total number of blobs by cycle outcome",
		}, []string{"outcome"}),
		eventsProduced: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "blobtailer_events_produced_total",
			Help: "Total number of log lines emitted to the sink",
		}),
		activeLeases: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "blobtailer_active_leases",
			Help: "Number of blob leases currently held by this process",
		}),
		leaseRenewalFail: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "blobtailer_lease_renewal_failures_total",
			Help: "Total number of lease renewal failures observed",
		}),
	}
}

// ObserveCycle records one completed poll cycle's outcome counts and
// duration.
func (r *Recorder) ObserveCycle(processed, failed, skipped, events int, d time.Duration) {
	if r == nil {
		return
	}
	r.blobsTotal.WithLabelValues("processed").Add(float64(processed))
	r.blobsTotal.WithLabelValues("failed").Add(float64(failed))
	r.blobsTotal.WithLabelValues("skipped").Add(float64(skipped))
	r.eventsProduced.Add(float64(events))
	r.cycleDuration.Observe(float64(d.Milliseconds()))
}

// SetActiveLeases updates the active-lease gauge.
func (r *Recorder) SetActiveLeases(n int) {
	if r == nil {
		return
	}
	r.activeLeases.Set(float64(n))
}

// IncLeaseRenewalFailure increments the lease-renewal-failure counter.
func (r *Recorder) IncLeaseRenewalFailure() {
	if r == nil {
		return
	}
	r.leaseRenewalFail.Inc()
}

// Healthy reports whether the poller has completed at least one cycle
// successfully. Wired into the /healthz handler.
type Healthy func() bool

// Server serves /metrics and /healthz on a dedicated HTTP port.
type Server struct {
	httpServer *http.Server
	startedAt  time.Time
}

// NewServer builds a Server for the given recorder and health predicate.
// /healthz responds with the teacher's health.Response JSON shape so
// existing dashboards parsing that structure keep working unchanged.
func NewServer(addr string, r *Recorder, healthy Healthy) *Server {
	startedAt := time.Now()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		uptime := time.Since(startedAt)

		resp := health.Response{Timestamp: time.Now().UTC().Format(time.RFC3339)}
		resp.Data.Service = "blobtailer"
		resp.Data.StartedAt = startedAt.UTC().Format(time.RFC3339)
		resp.Data.UptimeSec = int64(uptime.Seconds())
		resp.Data.Uptime = timeutil.FormatUptime(uptime.String())

		w.Header().Set("Content-Type", "application/json")
		if healthy != nil && healthy() {
			resp.Status = "ok"
			w.WriteHeader(http.StatusOK)
		} else {
			resp.Status = "not ready"
			resp.Error = "poller has not completed a cycle or has been stopped"
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(resp)
	})

	return &Server{httpServer: &http.Server{Addr: addr, Handler: mux}, startedAt: startedAt}
}

// Start begins serving in the background. Errors other than
// http.ErrServerClosed are logged.
func (s *Server) Start() {
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics: server error", "error", err)
		}
	}()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
