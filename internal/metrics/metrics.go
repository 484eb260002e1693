// Package metrics exposes Prometheus collectors for search, index maintenance,
// notifications, and the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "shopassist"

var (
	// Registry holds the application collectors.
	Registry = prometheus.NewRegistry()

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method", "path"},
	)

	searches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "places",
			Name:      "searches_total",
			Help:      "Total number of nearby place searches by outcome.",
		},
		[]string{"outcome"},
	)

	searchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "places",
			Name:      "search_duration_seconds",
			Help:      "Duration of nearby place searches.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		},
	)

	searchFallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "places",
			Name:      "marker_fallbacks_total",
			Help:      "Searches answered by the marker-field fallback query.",
		},
	)

	rebuilds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "rebuilds_total",
			Help:      "Total number of index rebuilds.",
		},
		[]string{"success"},
	)

	rebuildDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "rebuild_duration_seconds",
			Help:      "Duration of index rebuilds.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		},
	)

	indexedDocuments = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "documents",
			Help:      "Documents written by the last successful rebuild.",
		},
	)

	notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "deliveries_total",
			Help:      "Push deliveries by result.",
		},
		[]string{"result"},
	)

	recommendationJobs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "recommend",
			Name:      "jobs_total",
			Help:      "Recommendation jobs by result.",
		},
		[]string{"result"},
	)
)

func init() {
	Registry.MustRegister(
		httpRequests,
		httpDuration,
		searches,
		searchDuration,
		searchFallbacks,
		rebuilds,
		rebuildDuration,
		indexedDocuments,
		notifications,
		recommendationJobs,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps next with request count and latency collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)
		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	})
}

// ObserveSearch records a nearby search with its outcome ("ok", "empty", or an error kind).
func ObserveSearch(outcome string, d time.Duration) {
	searches.WithLabelValues(outcome).Inc()
	searchDuration.Observe(d.Seconds())
}

// IncSearchFallback counts a search answered by the marker fallback.
func IncSearchFallback() {
	searchFallbacks.Inc()
}

// ObserveRebuild records an index rebuild. docs is only applied on success.
func ObserveRebuild(success bool, docs int, d time.Duration) {
	rebuilds.WithLabelValues(strconv.FormatBool(success)).Inc()
	rebuildDuration.Observe(d.Seconds())
	if success {
		indexedDocuments.Set(float64(docs))
	}
}

// IncNotification counts one push delivery result ("sent", "updated", "removed", "failed").
func IncNotification(result string) {
	notifications.WithLabelValues(result).Inc()
}

// IncRecommendationJob counts one recommendation job result ("generated", "skipped", "failed", "dropped").
func IncRecommendationJob(result string) {
	recommendationJobs.WithLabelValues(result).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// canonicalPath collapses numeric and id path segments so label cardinality stays bounded.
func canonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	// /api/v1/<resource>[/<id>]
	if len(parts) >= 3 && parts[0] == "api" {
		path := "/" + strings.Join(parts[:3], "/")
		if len(parts) > 3 {
			if parts[3] == "nearby" || parts[3] == "rebuild-index" {
				return path + "/" + parts[3]
			}
			return path + "/{id}"
		}
		return path
	}
	return "/" + parts[0]
}
