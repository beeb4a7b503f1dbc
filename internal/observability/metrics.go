package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "midikiti",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "midikiti",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	linkBytesRead = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "midikiti",
			Subsystem: "link",
			Name:      "bytes_read_total",
			Help:      "Bytes read from the device.",
		},
	)
	linkBytesSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "midikiti",
			Subsystem: "link",
			Name:      "bytes_skipped_total",
			Help:      "Bytes discarded while scanning for a start marker.",
		},
	)
	linkFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "midikiti",
			Subsystem: "link",
			Name:      "frames_total",
			Help:      "Complete frames decoded from the device.",
		},
		[]string{"command"},
	)
	linkRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "midikiti",
			Subsystem: "link",
			Name:      "requests_total",
			Help:      "Requests submitted to the device.",
		},
		[]string{"command", "success"},
	)
	routeErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "midikiti",
			Subsystem: "route",
			Name:      "errors_total",
			Help:      "Decoded frames dropped during routing.",
		},
		[]string{"command"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			linkBytesRead,
			linkBytesSkipped,
			linkFrames,
			linkRequests,
			routeErrors,
		)
	})
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

func RecordRead(n int, skipped uint64) {
	RegisterMetrics()
	if n > 0 {
		linkBytesRead.Add(float64(n))
	}
	if skipped > 0 {
		linkBytesSkipped.Add(float64(skipped))
	}
}

func RecordFrame(command string) {
	RegisterMetrics()
	linkFrames.WithLabelValues(command).Inc()
}

func RecordRequest(command string, success bool) {
	RegisterMetrics()
	linkRequests.WithLabelValues(command, strconv.FormatBool(success)).Inc()
}

func RecordRouteError(command string) {
	RegisterMetrics()
	routeErrors.WithLabelValues(command).Inc()
}
