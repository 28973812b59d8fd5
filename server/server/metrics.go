package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/derktes/pi-ir/pulse"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// metrics holds the Prometheus metrics of one server.
type metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	samplesTotal       *prometheus.CounterVec
	recordingsTotal    *prometheus.CounterVec
	transmissionsTotal *prometheus.CounterVec
	transmitDuration   prometheus.Histogram
	codesStored        prometheus.Gauge
	listenSubscribers  prometheus.Gauge
}

func newMetrics() *metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &metrics{
		registry: reg,

		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "piir_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "piir_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		samplesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "piir_record_samples_total",
				Help: "Captured codes offered to recording sessions, by outcome",
			},
			[]string{"status"},
		),
		recordingsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "piir_recordings_total",
				Help: "Total number of recording sessions",
			},
			[]string{"status"},
		),
		transmissionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "piir_transmissions_total",
				Help: "Total number of send requests",
			},
			[]string{"status"},
		),
		transmitDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "piir_transmit_duration_seconds",
				Help:    "Time spent sending codes, pauses included",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
			},
		),
		codesStored: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "piir_codes_stored",
				Help: "Number of codes in the library",
			},
		),
		listenSubscribers: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "piir_listen_subscribers",
				Help: "Number of open raw code streams",
			},
		),
	}
}

func result(err error) string {
	if err != nil {
		return statusError
	}
	return statusSuccess
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *metrics) recordSample(r pulse.SampleResult) {
	m.samplesTotal.WithLabelValues(r.Status.String()).Inc()
}

func (m *metrics) recordRecording(err error) {
	m.recordingsTotal.WithLabelValues(result(err)).Inc()
}

func (m *metrics) recordTransmission(err error, duration time.Duration) {
	m.transmissionsTotal.WithLabelValues(result(err)).Inc()
	m.transmitDuration.Observe(duration.Seconds())
}

// instrumentHandler records count and latency of requests to endpoint.
func (m *metrics) instrumentHandler(method, endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		handler(rw, r)
		m.httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(rw.statusCode)).Inc()
		m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(time.Since(start).Seconds())
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
