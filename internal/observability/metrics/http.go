package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "intake"

// HTTPServerMetrics counts API traffic. Event streams are counted but kept out
// of the latency histogram since they stay open for the client's lifetime.
type HTTPServerMetrics struct {
	registry *prometheus.Registry
	service  string

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge
	openStreams     prometheus.Gauge
	uploadFiles     prometheus.Histogram
}

func NewHTTPServerMetrics(registry *prometheus.Registry, service string) *HTTPServerMetrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	constLabels := prometheus.Labels{"service": service}

	m := &HTTPServerMetrics{
		registry: registry,
		service:  service,
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		}, []string{"service", "method", "path", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds, excluding event streams.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"service", "method", "path"}),
		requestInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "http",
			Name:        "in_flight_requests",
			Help:        "Number of in-flight HTTP requests.",
			ConstLabels: constLabels,
		}),
		openStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "http",
			Name:        "open_event_streams",
			Help:        "Upload event streams currently connected.",
			ConstLabels: constLabels,
		}),
		uploadFiles: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "http",
			Name:        "upload_files",
			Help:        "Files per upload request.",
			Buckets:     []float64{1, 2, 3, 5, 8, 13, 21},
			ConstLabels: constLabels,
		}),
	}
	registry.MustRegister(m.requestTotal, m.requestDuration, m.requestInFlight, m.openStreams, m.uploadFiles)
	return m
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		stream := path == eventsPath
		recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		gauge := m.requestInFlight
		if stream {
			gauge = m.openStreams
		}
		gauge.Inc()
		defer gauge.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(m.service, r.Method, path, strconv.Itoa(recorder.statusCode)).Inc()
		if !stream {
			m.requestDuration.WithLabelValues(m.service, r.Method, path).Observe(time.Since(start).Seconds())
		}
	})
}

func (m *HTTPServerMetrics) RecordUpload(files int) {
	m.uploadFiles.Observe(float64(files))
}

const eventsPath = "/v1/uploads/events"

// normalizePath collapses ids so label cardinality stays bounded.
func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/documents/") && strings.HasSuffix(path, "/content"):
		return "/v1/documents/{document_id}/content"
	case strings.HasPrefix(path, "/v1/documents/"):
		return "/v1/documents/{document_id}"
	case path == eventsPath:
		return path
	case strings.HasPrefix(path, "/v1/uploads/"):
		return "/v1/uploads/{file_id}"
	default:
		return path
	}
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}
