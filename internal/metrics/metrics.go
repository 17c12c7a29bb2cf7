// Package metrics exposes Prometheus collectors for the harvester service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	portalFetchesTotal         *prometheus.CounterVec
	portalFetchBytesTotal      prometheus.Counter
	rendersTotal               *prometheus.CounterVec
	renderDurationSeconds      prometheus.Histogram
	attachmentUploadsTotal     *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		portalFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_portal_fetches_total",
				Help: "Total plain HTTP fetches against the portal, labeled by status class.",
			},
			[]string{"status"},
		)

		portalFetchBytesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "harvester_portal_fetch_bytes_total",
				Help: "Total bytes downloaded from the portal.",
			},
		)

		rendersTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_renders_total",
				Help: "Total page renders, labeled by result.",
			},
			[]string{"result"},
		)

		renderDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "harvester_render_duration_seconds",
				Help:    "Histogram of page render latencies.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
			},
		)

		attachmentUploadsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_attachment_uploads_total",
				Help: "Total attachment uploads, labeled by result.",
			},
			[]string{"result"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePortalFetch increments the portal fetch metrics.
func ObservePortalFetch(statusCode int, bytesFetched int) {
	portalFetchesTotal.WithLabelValues(statusClass(statusCode)).Inc()
	if bytesFetched > 0 {
		portalFetchBytesTotal.Add(float64(bytesFetched))
	}
}

// ObserveRender records one page render attempt.
func ObserveRender(err error, duration time.Duration) {
	result := "success"
	if err != nil {
		result = "error"
	}
	rendersTotal.WithLabelValues(result).Inc()
	renderDurationSeconds.Observe(duration.Seconds())
}

// ObserveAttachmentUpload records one attachment transfer outcome.
func ObserveAttachmentUpload(succeeded bool) {
	result := "success"
	if !succeeded {
		result = "error"
	}
	attachmentUploadsTotal.WithLabelValues(result).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

func statusClass(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "other"
	}
}
