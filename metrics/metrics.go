// Package metrics exposes Prometheus collectors for certificate operations
// and the HTTP server that serves them.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ruteri/certificate-ledger/interfaces"
)

const namespace = "certificate_ledger"

var (
	// operationsTotal counts orchestrator operations.
	// Labels: operation (issue, verify_upload, verify_id, revoke, list), outcome (success or error kind)
	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Total number of certificate operations grouped by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	// operationDuration tracks end-to-end latency, dominated by ledger confirmation for writes.
	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of certificate operations in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120},
		},
		[]string{"operation"},
	)

	// pinAttemptsTotal counts individual pin attempts including retries.
	pinAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pin_attempts_total",
			Help:      "Total number of artifact pin attempts grouped by outcome",
		},
		[]string{"outcome"},
	)

	// indexCertificates reports the indexed certificates by state.
	// Labels: state (valid, revoked)
	indexCertificates = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "index_certificates",
			Help:      "Number of indexed certificates grouped by state",
		},
		[]string{"state"},
	)

	// indexLastBlock is the last ledger block applied to the index.
	indexLastBlock = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "index_last_block",
			Help:      "Last ledger block applied to the certificate index",
		},
	)
)

// Outcome returns the label value for err.
func Outcome(err error) string {
	if err == nil {
		return "success"
	}
	return interfaces.ErrorKind(err)
}

// RecordOperation records the outcome and duration of an operation started at start.
func RecordOperation(operation string, start time.Time, err error) {
	operationsTotal.WithLabelValues(operation, Outcome(err)).Inc()
	operationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// RecordPinAttempt records one pin attempt.
func RecordPinAttempt(err error) {
	pinAttemptsTotal.WithLabelValues(Outcome(err)).Inc()
}

// SetIndexState publishes the index size and progress.
func SetIndexState(valid, revoked int, lastBlock uint64) {
	indexCertificates.WithLabelValues("valid").Set(float64(valid))
	indexCertificates.WithLabelValues("revoked").Set(float64(revoked))
	indexLastBlock.Set(float64(lastBlock))
}

// MetricsServer serves /metrics from the default Prometheus registry.
type MetricsServer struct {
	srv *http.Server
}

// New creates a metrics server listening on listenAddr.
func New(listenAddr string) *MetricsServer {
	mux := chi.NewRouter()
	mux.Handle("/metrics", promhttp.Handler())

	return &MetricsServer{
		srv: &http.Server{
			Addr:              listenAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Handler returns the HTTP handler serving the metrics endpoint.
func (m *MetricsServer) Handler() http.Handler {
	return m.srv.Handler
}

// ListenAndServe blocks serving metrics until Shutdown.
func (m *MetricsServer) ListenAndServe() error {
	return m.srv.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}
