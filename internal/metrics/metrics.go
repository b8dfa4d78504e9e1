// Package metrics holds the Prometheus collectors for the quest pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	poiResolutions   *prometheus.CounterVec
	generations      *prometheus.CounterVec
	generationTime   prometheus.Histogram
	verifications    *prometheus.CounterVec
	verificationTime prometheus.Histogram
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
}

// New builds the collectors on a private registry so several instances
// can coexist in tests.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		poiResolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "photoquest_poi_resolutions_total",
			Help: "POI resolutions by source (provider or fallback) and reason.",
		}, []string{"source", "reason"}),
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "photoquest_generations_total",
			Help: "Quest generation calls by outcome.",
		}, []string{"outcome"}),
		generationTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "photoquest_generation_duration_seconds",
			Help:    "Duration of quest generation calls.",
			Buckets: []float64{1, 2.5, 5, 10, 20, 40, 80},
		}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "photoquest_verifications_total",
			Help: "Photo verification calls by outcome.",
		}, []string{"outcome"}),
		verificationTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "photoquest_verification_duration_seconds",
			Help:    "Duration of photo verification calls.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20},
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"route", "method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
	m.registry.MustRegister(
		m.poiResolutions,
		m.generations,
		m.generationTime,
		m.verifications,
		m.verificationTime,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

// POIResolution records where a POI set came from.
func (m *Metrics) POIResolution(source, reason string) {
	m.poiResolutions.WithLabelValues(source, reason).Inc()
}

func (m *Metrics) Generation(outcome string, d time.Duration) {
	m.generations.WithLabelValues(outcome).Inc()
	m.generationTime.Observe(d.Seconds())
}

func (m *Metrics) Verification(outcome string, d time.Duration) {
	m.verifications.WithLabelValues(outcome).Inc()
	m.verificationTime.Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Middleware counts requests per chi route pattern. Using the pattern
// instead of the raw path keeps session ids out of the label set.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.httpRequests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		m.httpDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}
