package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Capture metrics
	RecordsCaptured = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "filetrail_records_captured_total",
		Help: "Raw journal records decoded, by volume",
	}, []string{"volume"})

	RecordsFiltered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "filetrail_records_filtered_total",
		Help: "Records dropped by classification filters, by volume",
	}, []string{"volume"})

	RecordErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "filetrail_record_errors_total",
		Help: "Per-record processing errors, by volume",
	}, []string{"volume"})

	JournalReadErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "filetrail_journal_read_errors_total",
		Help: "Transient journal read errors, by volume",
	}, []string{"volume"})

	FallbackRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "filetrail_fallback_records_total",
		Help: "Synthetic records generated for degraded volumes",
	}, []string{"volume"})

	VolumesDegraded = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "filetrail_volumes_degraded",
		Help: "Volumes currently running in fallback mode",
	})

	// Pipeline metrics
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "filetrail_queue_depth",
		Help: "Events waiting in the pipeline queue",
	})

	QueueOverflow = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "filetrail_queue_overflow_total",
		Help: "Events dropped by the queue overflow policy",
	}, []string{"policy"})

	EventsConsumed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "filetrail_events_consumed_total",
		Help: "Events drained by the pipeline consumer",
	})

	// Recorder metrics
	RecordsStored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "filetrail_records_stored_total",
		Help: "Activity records persisted to the retention store",
	})

	StoreErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "filetrail_store_errors_total",
		Help: "Recorder write failures",
	})

	RetentionLive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "filetrail_retention_live_records",
		Help: "Unexpired records in the retention store",
	})

	ImportanceScore = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "filetrail_importance_score",
		Help:    "Importance score distribution of stored records",
		Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
	})
)

func init() {
	// Pre-initialize Vec metrics so they appear in /metrics output before first use.
	RecordsCaptured.WithLabelValues("")
	RecordsFiltered.WithLabelValues("")
	RecordErrors.WithLabelValues("")
	JournalReadErrors.WithLabelValues("")
	FallbackRecords.WithLabelValues("")
	QueueOverflow.WithLabelValues("block")
}

// HealthCheck holds a single health check function.
type HealthCheck struct {
	Name  string
	Check func() error
}

// HealthStatus represents the health response.
type HealthStatus struct {
	Status string            `json:"status"` // "ok" or "degraded"
	Checks map[string]string `json:"checks"`
}

// healthChecker holds registered health checks.
type healthChecker struct {
	mu     sync.RWMutex
	checks []HealthCheck
}

var defaultHealthChecker = &healthChecker{}

// RegisterHealthCheck adds a health check.
func RegisterHealthCheck(name string, check func() error) {
	defaultHealthChecker.mu.Lock()
	defer defaultHealthChecker.mu.Unlock()
	defaultHealthChecker.checks = append(defaultHealthChecker.checks, HealthCheck{
		Name:  name,
		Check: check,
	})
}

// runChecks runs all registered health checks.
func runChecks() HealthStatus {
	defaultHealthChecker.mu.RLock()
	checks := make([]HealthCheck, len(defaultHealthChecker.checks))
	copy(checks, defaultHealthChecker.checks)
	defaultHealthChecker.mu.RUnlock()

	status := HealthStatus{
		Status: "ok",
		Checks: make(map[string]string),
	}

	for _, hc := range checks {
		if err := hc.Check(); err != nil {
			status.Status = "degraded"
			status.Checks[hc.Name] = err.Error()
		} else {
			status.Checks[hc.Name] = "ok"
		}
	}
	return status
}

// HealthzHandler handles GET /healthz requests.
func HealthzHandler(w http.ResponseWriter, r *http.Request) {
	status := runChecks()
	w.Header().Set("Content-Type", "application/json")
	if status.Status != "ok" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(status)
}

// MetricsServer starts an HTTP server for /metrics and /healthz on the given addr.
// It blocks until the provided stop channel is closed, then shuts down gracefully.
func MetricsServer(addr string, stop <-chan struct{}) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", HealthzHandler)

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-stop:
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	case err := <-errCh:
		return err
	}
}
