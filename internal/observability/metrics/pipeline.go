package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics observes per-file pipeline runs.
type PipelineMetrics struct {
	service string

	filesTotal      *prometheus.CounterVec
	fileDuration    *prometheus.HistogramVec
	filesInFlight   prometheus.Gauge
	rejectionsTotal *prometheus.CounterVec
	parseDegraded   prometheus.Counter
	stageFailures   *prometheus.CounterVec
	breakerState    *prometheus.GaugeVec
	notifications   *prometheus.CounterVec
}

func NewPipelineMetrics(registry *prometheus.Registry, service string) *PipelineMetrics {
	constLabels := prometheus.Labels{"service": service}

	filesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "files_total",
			Help:      "Files that finished the pipeline by outcome.",
		},
		[]string{"service", "outcome"},
	)
	fileDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "file_duration_seconds",
			Help:      "Pipeline duration per file in seconds by outcome.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"service", "outcome"},
	)
	filesInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "pipeline",
			Name:        "files_in_flight",
			Help:        "Files currently between processing and a terminal state.",
			ConstLabels: constLabels,
		},
	)
	rejectionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "rejections_total",
			Help:      "Files rejected by upload validation by reason.",
		},
		[]string{"service", "reason"},
	)
	parseDegraded := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "pipeline",
			Name:        "parse_degraded_total",
			Help:        "Analysis responses without a usable JSON object.",
			ConstLabels: constLabels,
		},
	)
	stageFailures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_failures_total",
			Help:      "Pipeline failures by stage.",
		},
		[]string{"service", "stage"},
	)
	breakerState := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "breaker_open",
			Help:      "1 while the circuit breaker for an operation is not closed.",
		},
		[]string{"service", "operation"},
	)
	notifications := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifier",
			Name:      "notifications_total",
			Help:      "Notifications consumed by level.",
		},
		[]string{"service", "level"},
	)

	registry.MustRegister(filesTotal, fileDuration, filesInFlight, rejectionsTotal, parseDegraded, stageFailures, breakerState, notifications)

	return &PipelineMetrics{
		service:         service,
		filesTotal:      filesTotal,
		fileDuration:    fileDuration,
		filesInFlight:   filesInFlight,
		rejectionsTotal: rejectionsTotal,
		parseDegraded:   parseDegraded,
		stageFailures:   stageFailures,
		breakerState:    breakerState,
		notifications:   notifications,
	}
}

func (m *PipelineMetrics) StartFile() {
	m.filesInFlight.Inc()
}

func (m *PipelineMetrics) FinishFile(outcome string, duration time.Duration) {
	m.filesInFlight.Dec()
	m.filesTotal.WithLabelValues(m.service, outcome).Inc()
	m.fileDuration.WithLabelValues(m.service, outcome).Observe(duration.Seconds())
}

func (m *PipelineMetrics) RecordRejection(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	m.rejectionsTotal.WithLabelValues(m.service, reason).Inc()
}

func (m *PipelineMetrics) RecordParseDegraded() {
	m.parseDegraded.Inc()
}

func (m *PipelineMetrics) RecordStageFailure(stage string) {
	if stage == "" {
		stage = "unknown"
	}
	m.stageFailures.WithLabelValues(m.service, stage).Inc()
}

// BreakerStateChanged matches resilience.Config.OnStateChange.
func (m *PipelineMetrics) BreakerStateChanged(operation, _, to string) {
	value := 1.0
	if to == "closed" {
		value = 0
	}
	m.breakerState.WithLabelValues(m.service, operation).Set(value)
}

func (m *PipelineMetrics) RecordNotification(level string) {
	m.notifications.WithLabelValues(m.service, level).Inc()
}
