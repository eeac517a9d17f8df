// Package metrics provides Prometheus metrics for the ivscan pipeline.
//
// Metrics live on a private registry. The CLI never listens on a port; it
// writes the registry to a node-exporter textfile on exit.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every metric of the pipeline.
type Manager struct {
	namespace      string
	subsystem      string
	latencyBuckets []float64
	constLabels    map[string]string
	registry       prometheus.Registerer

	// Transcript
	linesScanned       prometheus.Counter
	observationsParsed prometheus.Counter
	parseErrors        *prometheus.CounterVec
	undetected         prometheus.Counter

	// Reference data and resolution
	lookupErrors    *prometheus.CounterVec
	resolveDistance prometheus.Histogram
	resolveMismatch prometheus.Counter

	// Inference
	inferenceCandidates prometheus.Histogram
	inferenceLatency    prometheus.Histogram
	cacheHits           prometheus.Counter
	cacheMisses         prometheus.Counter
	cacheSize           prometheus.Gauge
	evaluations         *prometheus.CounterVec

	// Queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueued      prometheus.Counter
	queueDequeued      prometheus.Counter
	queueEnqueueErrors *prometheus.CounterVec

	// Workers
	workerCount             prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            *prometheus.CounterVec

	// Repository
	storedEvaluations prometheus.Gauge

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:      "ivscan",
		subsystem:      "pipeline",
		latencyBuckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50},
		constLabels:    map[string]string{},
		registry:       prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: buckets,
	})
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every metric
	m.linesScanned = m.counter("lines_scanned_total", "Input lines read by the scanner")
	m.observationsParsed = m.counter("observations_parsed_total", "Lines parsed into observations")
	m.parseErrors = m.counterVec("parse_errors_total", "Lines rejected by the parser, by kind", "kind")
	m.undetected = m.counter("observations_undetected_total", "Observations missing a field required for inference")

	m.lookupErrors = m.counterVec("lookup_errors_total", "Species or level lookups outside the reference tables", "what")
	m.resolveDistance = m.histogram("resolve_distance", "Edit distance of resolved species names",
		[]float64{0, 1, 2, 3, 4, 6, 8, 12})
	m.resolveMismatch = m.counter("resolve_mismatch_total", "Logged names resolving to a different species than the logged id")

	m.inferenceCandidates = m.histogram("inference_candidates", "Number of IV candidates per observation",
		prometheus.ExponentialBuckets(1, 2, 13))
	m.inferenceLatency = m.histogram("inference_latency_milliseconds", "Time spent in the IV search", m.latencyBuckets)
	m.cacheHits = m.counter("inference_cache_hits_total", "Inference results served from the cache")
	m.cacheMisses = m.counter("inference_cache_misses_total", "Inference results computed")
	m.cacheSize = m.gauge("inference_cache_size", "Keys held by the inference cache")
	m.evaluations = m.counterVec("evaluations_total", "Completed evaluations by outcome", "outcome")

	m.queueSize = m.gauge("queue_size", "Jobs waiting in the queue")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum jobs the queue holds")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Queue size over capacity")
	m.queueEnqueued = m.counter("queue_enqueued_total", "Jobs accepted by the queue")
	m.queueDequeued = m.counter("queue_dequeued_total", "Jobs handed to workers")
	m.queueEnqueueErrors = m.counterVec("queue_enqueue_errors_total", "Jobs refused by the queue, by reason", "reason")

	m.workerCount = m.gauge("worker_count", "Workers in the pool")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds", "Time to evaluate one job", m.latencyBuckets)
	m.workerErrors = m.counterVec("worker_errors_total", "Jobs that failed evaluation, by reason", "reason")

	m.storedEvaluations = m.gauge("stored_evaluations", "Evaluations held in the run report")

	m.systemMemoryUsage = m.gauge("system_memory_bytes", "Heap bytes allocated")
	m.systemGoroutineCount = m.gauge("system_goroutines", "Live goroutines")
}

// Transcript metrics.

// RecordLineScanned counts one input line.
func RecordLineScanned() { globalManager.linesScanned.Inc() }

// RecordObservationParsed counts one parsed observation.
func RecordObservationParsed() { globalManager.observationsParsed.Inc() }

// RecordParseError counts a rejected line by kind ("no_match", "malformed").
func RecordParseError(kind string) { globalManager.parseErrors.WithLabelValues(kind).Inc() }

// RecordUndetected counts an observation that cannot be inferred.
func RecordUndetected() { globalManager.undetected.Inc() }

// Resolution metrics.

// RecordLookupError counts a lookup outside the tables ("species", "level").
func RecordLookupError(what string) { globalManager.lookupErrors.WithLabelValues(what).Inc() }

// RecordResolveDistance observes the edit distance of a resolved name.
func RecordResolveDistance(distance int) { globalManager.resolveDistance.Observe(float64(distance)) }

// RecordResolveMismatch counts a name that resolved to a different species than its id.
func RecordResolveMismatch() { globalManager.resolveMismatch.Inc() }

// Inference metrics.

// RecordInference observes the candidate count and search latency.
func RecordInference(candidates int, latencyMs float64) {
	globalManager.inferenceCandidates.Observe(float64(candidates))
	globalManager.inferenceLatency.Observe(latencyMs)
}

// RecordCacheHit counts an inference served from the cache.
func RecordCacheHit() { globalManager.cacheHits.Inc() }

// RecordCacheMiss counts an inference computed from scratch.
func RecordCacheMiss() { globalManager.cacheMisses.Inc() }

// UpdateCacheSize sets the number of cached keys.
func UpdateCacheSize(size int64) { globalManager.cacheSize.Set(float64(size)) }

// RecordEvaluation counts a completed evaluation by outcome.
func RecordEvaluation(outcome string) { globalManager.evaluations.WithLabelValues(outcome).Inc() }

// Queue metrics.

// UpdateQueueSize sets the current queue length.
func UpdateQueueSize(size int) { globalManager.queueSize.Set(float64(size)) }

// UpdateQueueCapacity sets the queue capacity.
func UpdateQueueCapacity(capacity int) { globalManager.queueCapacity.Set(float64(capacity)) }

// UpdateQueueUtilization sets size over capacity.
func UpdateQueueUtilization(utilization float64) { globalManager.queueUtilization.Set(utilization) }

// RecordQueueEnqueue counts an accepted job.
func RecordQueueEnqueue() { globalManager.queueEnqueued.Inc() }

// RecordQueueDequeue counts a job handed to a worker.
func RecordQueueDequeue() { globalManager.queueDequeued.Inc() }

// RecordQueueEnqueueError counts a refused job by reason.
func RecordQueueEnqueueError(reason string) {
	globalManager.queueEnqueueErrors.WithLabelValues(reason).Inc()
}

// Worker metrics.

// UpdateWorkerCount sets the pool size.
func UpdateWorkerCount(count int) { globalManager.workerCount.Set(float64(count)) }

// RecordWorkerProcessingLatency observes the time to evaluate one job.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError counts a failed job by reason.
func RecordWorkerError(reason string) { globalManager.workerErrors.WithLabelValues(reason).Inc() }

// Repository metrics.

// UpdateStoredEvaluations sets the number of evaluations in the report.
func UpdateStoredEvaluations(count int) { globalManager.storedEvaluations.Set(float64(count)) }

// System metrics.

// UpdateSystemMemoryUsage sets the heap bytes allocated.
func UpdateSystemMemoryUsage(bytes uint64) { globalManager.systemMemoryUsage.Set(float64(bytes)) }

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) { globalManager.systemGoroutineCount.Set(float64(count)) }

// GetRegistry returns the registry holding the global metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// WriteTextfile writes the global metrics in Prometheus text format, for
// the node-exporter textfile collector. The write is atomic.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, customRegistry); err != nil {
		return fmt.Errorf("%w: %w", ErrExport, err)
	}
	return nil
}
