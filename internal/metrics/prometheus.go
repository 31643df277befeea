// Package metrics exposes ingestion and HTTP counters in the Prometheus format.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/i474232898/weather-report/internal/forecast"
)

// PrometheusRecorder implements forecast.Recorder on a private registry.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	cacheLookups     *prometheus.CounterVec
	providerCalls    *prometheus.CounterVec
	recordsPersisted prometheus.Counter
	requestDuration  *prometheus.HistogramVec
}

var _ forecast.Recorder = (*PrometheusRecorder)(nil)

func NewPrometheusRecorder() *PrometheusRecorder {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &PrometheusRecorder{
		registry: registry,
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "weather_cache_lookups_total",
			Help: "Ingestion cache lookups by result.",
		}, []string{"result"}), // hit, miss
		providerCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "weather_provider_calls_total",
			Help: "Upstream provider calls by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		recordsPersisted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "weather_records_persisted_total",
			Help: "Forecast records written to storage.",
		}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "weather_http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	registry.MustRegister(r.cacheLookups)
	registry.MustRegister(r.providerCalls)
	registry.MustRegister(r.recordsPersisted)
	registry.MustRegister(r.requestDuration)

	return r
}

func (r *PrometheusRecorder) CacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	r.cacheLookups.WithLabelValues(result).Inc()
}

func (r *PrometheusRecorder) ProviderCall(endpoint string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	r.providerCalls.WithLabelValues(endpoint, outcome).Inc()
}

func (r *PrometheusRecorder) RecordsPersisted(n int) {
	r.recordsPersisted.Add(float64(n))
}

// ObserveRequest records one served HTTP request.
func (r *PrometheusRecorder) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	r.requestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

// Handler serves the registry contents.
func (r *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
