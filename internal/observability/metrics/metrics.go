package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "soundcrate"

// Recorder owns a Prometheus registry and the collectors for HTTP traffic,
// media uploads, logins, and rate limiting. Each Recorder has its own
// registry so tests can inspect counters without global state.
type Recorder struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	uploads         *prometheus.CounterVec
	uploadDuration  *prometheus.HistogramVec
	cleanupFailures prometheus.Counter
	logins          *prometheus.CounterVec
	rateLimited     *prometheus.CounterVec
	cascadeDeletes  *prometheus.CounterVec
}

var (
	defaultMu       sync.RWMutex
	defaultRecorder = New()
)

// New constructs a Recorder with every collector registered.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests processed by the API",
		}, []string{"method", "path", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "media_uploads_total",
			Help:      "Media uploads by backend and outcome",
		}, []string{"backend", "outcome"}),
		uploadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "media_upload_duration_seconds",
			Help:      "Time spent handing a staged file to the media backend",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"backend"}),
		cleanupFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "media_temp_cleanup_failures_total",
			Help:      "Staged upload files that could not be removed",
		}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_logins_total",
			Help:      "Login attempts by outcome",
		}, []string{"outcome"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_requests_total",
			Help:      "Requests rejected by a rate limiter",
		}, []string{"scope"}),
		cascadeDeletes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_deletes_total",
			Help:      "Catalog records deleted through the API by kind",
		}, []string{"kind"}),
	}
	r.registry.MustRegister(
		r.requests,
		r.requestDuration,
		r.uploads,
		r.uploadDuration,
		r.cleanupFailures,
		r.logins,
		r.rateLimited,
		r.cascadeDeletes,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Default returns the process-wide Recorder.
func Default() *Recorder {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultRecorder
}

// SetDefault replaces the process-wide Recorder. Nil is ignored.
func SetDefault(r *Recorder) {
	if r == nil {
		return
	}
	defaultMu.Lock()
	defaultRecorder = r
	defaultMu.Unlock()
}

// Registry exposes the underlying registry for callers that add collectors.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// ObserveRequest records one HTTP request. Id-like path segments are folded
// into ":id" so label cardinality stays bounded.
func (r *Recorder) ObserveRequest(method, path string, status int, duration time.Duration) {
	method = strings.ToUpper(method)
	normalized := normalizePath(path)
	r.requests.WithLabelValues(method, normalized, strconv.Itoa(status)).Inc()
	r.requestDuration.WithLabelValues(method, normalized).Observe(duration.Seconds())
}

// ObserveUpload records a media upload attempt against backend.
func (r *Recorder) ObserveUpload(backend string, err error, duration time.Duration) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	r.uploads.WithLabelValues(backend, outcome).Inc()
	r.uploadDuration.WithLabelValues(backend).Observe(duration.Seconds())
}

// TempCleanupFailed counts a staged file that could not be removed.
func (r *Recorder) TempCleanupFailed() {
	r.cleanupFailures.Inc()
}

// ObserveLogin records a login attempt. Outcome is "success", "rejected" for
// bad credentials, or "error".
func (r *Recorder) ObserveLogin(outcome string) {
	r.logins.WithLabelValues(outcome).Inc()
}

// RateLimited counts a request rejected by the limiter named scope.
func (r *Recorder) RateLimited(scope string) {
	r.rateLimited.WithLabelValues(scope).Inc()
}

// ObserveDelete counts a deleted catalog record of kind.
func (r *Recorder) ObserveDelete(kind string) {
	r.cascadeDeletes.WithLabelValues(kind).Inc()
}

// ObserveRequest records against the default Recorder.
func ObserveRequest(method, path string, status int, duration time.Duration) {
	Default().ObserveRequest(method, path, status, duration)
}

func normalizePath(path string) string {
	if path == "" || path == "/" {
		return "/"
	}
	parts := strings.Split(path, "/")
	for i, part := range parts {
		if part == "" {
			continue
		}
		if looksLikeIdentifier(part) {
			parts[i] = ":id"
		}
	}
	normalized := strings.Join(parts, "/")
	if !strings.HasPrefix(normalized, "/") {
		normalized = "/" + normalized
	}
	if strings.HasSuffix(normalized, "/") && len(normalized) > 1 {
		normalized = strings.TrimSuffix(normalized, "/")
	}
	return normalized
}

// looksLikeIdentifier treats UUIDs and numeric-heavy segments as ids. Route
// words such as "new-releases" and "remove-songs" contain dashes but no
// digits, so length alone is not enough.
func looksLikeIdentifier(segment string) bool {
	digitCount := 0
	for _, r := range segment {
		if r >= '0' && r <= '9' {
			digitCount++
		}
	}
	if digitCount >= 3 {
		return true
	}
	return len(segment) >= 20 && digitCount > 0
}
