package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	aggregatepkg "github.com/drblury/scriptflow/internal/runtime/aggregate"
	loggingpkg "github.com/drblury/scriptflow/internal/runtime/logging"
	reconstructpkg "github.com/drblury/scriptflow/internal/runtime/reconstruct"
)

// PipelineMetrics tracks reconstruction statistics. A nil *PipelineMetrics
// is valid and records nothing.
type PipelineMetrics struct {
	mu sync.RWMutex

	totals PipelineSnapshot

	// Prometheus collectors
	recordsTotal   *prometheus.CounterVec
	artifactsTotal *prometheus.CounterVec
	warningsTotal  *prometheus.CounterVec
	sinkFailures   prometheus.Counter
	streamsTotal   *prometheus.CounterVec
	fragmentsHist  prometheus.Histogram
	streamDuration prometheus.Histogram

	registerer prometheus.Registerer
	registered bool
}

// PipelineSnapshot provides a point-in-time view of the pipeline counters.
type PipelineSnapshot struct {
	Records      uint64            `json:"records"`
	Fragments    uint64            `json:"fragments"`
	Contexts     uint64            `json:"contexts"`
	Starts       uint64            `json:"starts"`
	Unrecognized uint64            `json:"unrecognized"`
	Discarded    uint64            `json:"discarded"`
	Complete     uint64            `json:"artifacts_complete"`
	Incomplete   uint64            `json:"artifacts_incomplete"`
	SinkFailures uint64            `json:"sink_failures"`
	Warnings     map[string]uint64 `json:"warnings"`
	Streams      map[string]uint64 `json:"streams"`
	CollectedAt  time.Time         `json:"collected_at"`
}

func newPipelineCounterVec(name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scriptflow",
			Subsystem: "pipeline",
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

func newPipelineHistogram(name, help string, buckets []float64) prometheus.Histogram {
	return prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "scriptflow",
			Subsystem: "pipeline",
			Name:      name,
			Help:      help,
			Buckets:   buckets,
		},
	)
}

// NewPipelineMetrics creates a metrics collector. Call Register to expose it.
func NewPipelineMetrics(registerer prometheus.Registerer) *PipelineMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &PipelineMetrics{
		totals:         newPipelineSnapshot(),
		registerer:     registerer,
		recordsTotal:   newPipelineCounterVec("records_total", "Records processed, by classification", []string{"kind"}),
		artifactsTotal: newPipelineCounterVec("artifacts_total", "Artifacts written, by verdict", []string{"verdict"}),
		warningsTotal:  newPipelineCounterVec("warnings_total", "Per-correlation warnings, by kind", []string{"kind"}),
		sinkFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "scriptflow",
			Subsystem: "pipeline",
			Name:      "sink_failures_total",
			Help:      "Artifacts the sink failed to store",
		}),
		streamsTotal:   newPipelineCounterVec("streams_total", "Streams processed, by final status", []string{"status"}),
		fragmentsHist:  newPipelineHistogram("artifact_fragments", "Fragments assembled per artifact", []float64{1, 2, 5, 10, 20, 50, 100, 500}),
		streamDuration: newPipelineHistogram("stream_duration_seconds", "Time spent processing one stream", prometheus.DefBuckets),
	}
}

func newPipelineSnapshot() PipelineSnapshot {
	return PipelineSnapshot{
		Warnings: make(map[string]uint64),
		Streams:  make(map[string]uint64),
	}
}

// Register registers the Prometheus collectors. Safe to call multiple times.
func (m *PipelineMetrics) Register() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	collectors := []prometheus.Collector{
		m.recordsTotal,
		m.artifactsTotal,
		m.warningsTotal,
		m.sinkFailures,
		m.streamsTotal,
		m.fragmentsHist,
		m.streamDuration,
	}

	for _, c := range collectors {
		if err := m.registerer.Register(c); err != nil {
			// Already registered is fine.
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				return err
			}
		}
	}

	m.registered = true
	return nil
}

// ObserveRecords records the classification counts of one stream.
func (m *PipelineMetrics) ObserveRecords(stats aggregatepkg.Stats) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totals.Records += uint64(stats.Events)
	m.totals.Fragments += uint64(stats.Fragments)
	m.totals.Contexts += uint64(stats.Contexts)
	m.totals.Starts += uint64(stats.Starts)
	m.totals.Unrecognized += uint64(stats.Unrecognized)
	m.totals.Discarded += uint64(stats.Discarded)

	m.recordsTotal.WithLabelValues("fragment").Add(float64(stats.Fragments))
	m.recordsTotal.WithLabelValues("context").Add(float64(stats.Contexts))
	m.recordsTotal.WithLabelValues("start").Add(float64(stats.Starts))
	m.recordsTotal.WithLabelValues("unrecognized").Add(float64(stats.Unrecognized))
	m.recordsTotal.WithLabelValues("discarded").Add(float64(stats.Discarded))
}

// ObserveArtifact records an artifact accepted by the sink.
func (m *PipelineMetrics) ObserveArtifact(artifact EmittedArtifact) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if artifact.Verdict == reconstructpkg.VerdictComplete {
		m.totals.Complete++
	} else {
		m.totals.Incomplete++
	}
	m.artifactsTotal.WithLabelValues(artifact.Verdict.String()).Inc()
	m.fragmentsHist.Observe(float64(artifact.Fragments))
}

// ObserveWarning records one per-correlation warning.
func (m *PipelineMetrics) ObserveWarning(kind WarningKind) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totals.Warnings[string(kind)]++
	m.warningsTotal.WithLabelValues(string(kind)).Inc()
}

// ObserveSinkFailure records an artifact the sink did not store.
func (m *PipelineMetrics) ObserveSinkFailure() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totals.SinkFailures++
	m.sinkFailures.Inc()
}

// ObserveStream records the final status of a stream.
func (m *PipelineMetrics) ObserveStream(report *StreamReport) {
	if m == nil || report == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	status := string(report.Status())
	m.totals.Streams[status]++
	m.streamsTotal.WithLabelValues(status).Inc()
	m.streamDuration.Observe(report.Duration.Seconds())
}

// GetSnapshot returns a point-in-time copy of the counters.
func (m *PipelineMetrics) GetSnapshot() PipelineSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot := m.totals
	snapshot.Warnings = make(map[string]uint64, len(m.totals.Warnings))
	for k, v := range m.totals.Warnings {
		snapshot.Warnings[k] = v
	}
	snapshot.Streams = make(map[string]uint64, len(m.totals.Streams))
	for k, v := range m.totals.Streams {
		snapshot.Streams[k] = v
	}
	snapshot.CollectedAt = time.Now()
	return snapshot
}

// Reset resets all metrics (useful for testing).
func (m *PipelineMetrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totals = newPipelineSnapshot()
	m.recordsTotal.Reset()
	m.artifactsTotal.Reset()
	m.warningsTotal.Reset()
	m.streamsTotal.Reset()
}

// ServeMetrics exposes the default Prometheus registry on /metrics until ctx
// is cancelled. Batch runs use it; services mount /metrics on their own.
func ServeMetrics(ctx context.Context, port int, log loggingpkg.ServiceLogger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	serveHTTP(ctx, fmt.Sprintf(":%d", port), mux, log)
}
