package service

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the API.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	intakeRecords   *prometheus.CounterVec
	intakeBatches   prometheus.Counter
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	intakeRecords := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_intake_records_total",
		Help: "Attendance records written through bulk intake",
	}, []string{"outcome"})

	intakeBatches := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "attendance_intake_batches_total",
		Help: "Total bulk intake batches processed",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, intakeRecords, intakeBatches, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		intakeRecords:   intakeRecords,
		intakeBatches:   intakeBatches,
	}
}

// Handler returns the Prometheus scrape handler.
func (m *MetricsService) Handler() http.Handler {
	return m.handler
}

// ObserveHTTPRequest records duration and count for a completed request.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	labels := []string{method, path, strconv.Itoa(status)}
	m.requestDuration.WithLabelValues(labels...).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(labels...).Inc()
}

// ObserveBulkIntake tracks the outcome counts of one bulk intake batch.
func (m *MetricsService) ObserveBulkIntake(created, updated, failed int) {
	m.intakeBatches.Inc()
	m.intakeRecords.WithLabelValues("created").Add(float64(created))
	m.intakeRecords.WithLabelValues("updated").Add(float64(updated))
	m.intakeRecords.WithLabelValues("failed").Add(float64(failed))
}
