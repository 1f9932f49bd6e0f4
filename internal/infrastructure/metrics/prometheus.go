package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "clubattrs"

// PrometheusExporter exports metrics to Prometheus format.
type PrometheusExporter struct {
	collector *Collector
	gatherer  prometheus.Gatherer

	cacheHitRate     prometheus.Gauge
	cacheKeys        prometheus.Gauge
	cacheMemoryBytes prometheus.Gauge
	cacheEvictions   prometheus.Gauge

	conditionEvaluations *prometheus.CounterVec
	gateDecisions        *prometheus.CounterVec
	decodeDegradations   *prometheus.CounterVec
	httpRequests         *prometheus.CounterVec
	httpDuration         *prometheus.HistogramVec
}

// NewPrometheusExporter registers the application metrics on a fresh
// registry together with the Go and process collectors.
func NewPrometheusExporter(collector *Collector) *PrometheusExporter {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewPrometheusExporterWithRegistry(collector, reg, reg)
}

// NewPrometheusExporterWithRegistry registers the application metrics on reg.
func NewPrometheusExporterWithRegistry(collector *Collector, reg prometheus.Registerer, gatherer prometheus.Gatherer) *PrometheusExporter {
	factory := promauto.With(reg)
	return &PrometheusExporter{
		collector: collector,
		gatherer:  gatherer,
		cacheHitRate: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "definition_cache_hit_rate",
			Help:      "Current definition cache hit rate (0.0 to 1.0)",
		}),
		cacheKeys: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "definition_cache_keys_current",
			Help:      "Current number of keys in the definition cache",
		}),
		cacheMemoryBytes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "definition_cache_memory_bytes",
			Help:      "Approximate memory usage of the definition cache in bytes",
		}),
		cacheEvictions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "definition_cache_evictions",
			Help:      "Number of definition cache evictions since start",
		}),
		conditionEvaluations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "condition_evaluations_total",
				Help:      "Total number of condition evaluations by operator and result",
			},
			[]string{"operator", "result"},
		),
		gateDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "gate_decisions_total",
				Help:      "Total number of eligibility gate decisions",
			},
			[]string{"allowed"},
		),
		decodeDegradations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "decode_degradations_total",
				Help:      "Stored raw values that could not be decoded and were read as null",
			},
			[]string{"value_type"},
		),
		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"route", "method", "status"},
		),
		httpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
			},
			[]string{"route"},
		),
	}
}

// Update refreshes the cache gauges from the collector.
// Call it periodically or right before a scrape.
func (e *PrometheusExporter) Update() {
	m := e.collector.GetCacheMetrics()
	e.cacheHitRate.Set(m.HitRate)
	e.cacheKeys.Set(float64(m.KeysCurrent))
	e.cacheMemoryBytes.Set(float64(m.MemoryBytes))
	e.cacheEvictions.Set(float64(m.Evictions))
}

// Handler serves the registry in the Prometheus exposition format.
func (e *PrometheusExporter) Handler() http.Handler {
	inner := promhttp.HandlerFor(e.gatherer, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		e.Update()
		inner.ServeHTTP(w, r)
	})
}

// RecordEvaluation counts one condition evaluation.
func (e *PrometheusExporter) RecordEvaluation(operator string, result bool) {
	e.conditionEvaluations.WithLabelValues(operator, strconv.FormatBool(result)).Inc()
}

// RecordDecision counts one gate decision.
func (e *PrometheusExporter) RecordDecision(allowed bool) {
	e.gateDecisions.WithLabelValues(strconv.FormatBool(allowed)).Inc()
	if e.collector != nil {
		e.collector.RecordDecision(allowed)
	}
}

// RecordDecodeDegradation counts a stored value that decoded to null.
func (e *PrometheusExporter) RecordDecodeDegradation(valueType string) {
	e.decodeDegradations.WithLabelValues(valueType).Inc()
}

// RecordHTTPRequest counts one HTTP request.
func (e *PrometheusExporter) RecordHTTPRequest(route, method string, status int, durationSeconds float64) {
	e.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	e.httpDuration.WithLabelValues(route).Observe(durationSeconds)
}
