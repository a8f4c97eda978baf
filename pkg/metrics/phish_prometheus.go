// Package metrics exposes Prometheus collectors and an in-process latency
// tracker for the scoring path.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Recorder owns the service collectors. Each Recorder has its own registry
// so tests can create as many as they like.
type Recorder struct {
	Registry *prometheus.Registry

	predictions    *prometheus.CounterVec
	predictLatency prometheus.Histogram
	cacheLookups   *prometheus.CounterVec
	httpRequests   *prometheus.CounterVec
	httpLatency    *prometheus.HistogramVec
	scanJobs       *prometheus.CounterVec

	latency *LatencyTracker
}

// NewRecorder registers all collectors on a fresh registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		Registry: prometheus.NewRegistry(),
		predictions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "phish",
				Name:      "predictions_total",
				Help:      "Predictions served, by label",
			},
			[]string{"label"},
		),
		predictLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "phish",
				Name:      "prediction_duration_seconds",
				Help:      "Time spent extracting, scaling and classifying one URL",
				Buckets:   []float64{.0001, .00025, .0005, .001, .0025, .005, .01, .025, .05, .1},
			},
		),
		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "phish",
				Name:      "cache_lookups_total",
				Help:      "Prediction cache lookups, by result",
			},
			[]string{"result"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "phish",
				Name:      "http_requests_total",
				Help:      "HTTP requests, by method, route and status",
			},
			[]string{"method", "route", "status"},
		),
		httpLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "phish",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency, by method and route",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		scanJobs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "phish",
				Name:      "scan_jobs_total",
				Help:      "Scan job transitions, by status",
			},
			[]string{"status"},
		),
		latency: NewLatencyTracker(1000),
	}

	r.Registry.MustRegister(
		r.predictions,
		r.predictLatency,
		r.cacheLookups,
		r.httpRequests,
		r.httpLatency,
		r.scanJobs,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// ObservePrediction records one computed prediction.
func (r *Recorder) ObservePrediction(label string, d time.Duration) {
	r.predictions.WithLabelValues(label).Inc()
	r.predictLatency.Observe(d.Seconds())
	r.latency.Record(d)
}

// ObserveCache records a cache hit or miss.
func (r *Recorder) ObserveCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	r.cacheLookups.WithLabelValues(result).Inc()
}

// ObserveHTTP records one finished request.
func (r *Recorder) ObserveHTTP(method, route, status string) {
	r.httpRequests.WithLabelValues(method, route, status).Inc()
}

// ObserveHTTPDuration records the latency of one finished request.
func (r *Recorder) ObserveHTTPDuration(method, route string, d time.Duration) {
	r.httpLatency.WithLabelValues(method, route).Observe(d.Seconds())
}

// ObserveScan records a scan job transition.
func (r *Recorder) ObserveScan(status string) {
	r.scanJobs.WithLabelValues(status).Inc()
}

// Latency returns the percentile view of prediction latency.
func (r *Recorder) Latency() LatencyStats {
	return r.latency.Stats()
}
