package observability

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "relaymap"

// Metrics implements [PipelineHooks], [CacheHooks] and [HTTPHooks] on top of
// a private Prometheus registry. relaymap runs once per invocation, so the
// registry is not served; [Metrics.WriteTextfile] dumps it for the
// node_exporter textfile collector instead.
type Metrics struct {
	registry *prometheus.Registry

	stageDuration *prometheus.GaugeVec
	stageItems    *prometheus.GaugeVec
	stageErrors   *prometheus.CounterVec
	relays        *prometheus.GaugeVec
	geo           *prometheus.GaugeVec
	markers       prometheus.Gauge
	lastSuccess   prometheus.Gauge

	cacheOps      *prometheus.CounterVec
	cacheBytes    prometheus.Counter
	httpRequests  *prometheus.CounterVec
	httpResponses *prometheus.CounterVec
	httpErrors    prometheus.Counter
	httpLatency   prometheus.Histogram

	now func() time.Time
}

// NewMetrics creates a Metrics with all collectors registered.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		stageDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of the last run of each pipeline stage.",
		}, []string{"stage"}),
		stageItems: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stage_items",
			Help:      "Number of items produced by the last run of each pipeline stage.",
		}, []string{"stage"}),
		stageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_errors_total",
			Help:      "Pipeline stages that ended in an error.",
		}, []string{"stage"}),
		relays: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "relays",
			Help:      "Running relays by role.",
		}, []string{"role"}),
		geo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "geo_lookups",
			Help:      "Relay addresses by geolocation outcome.",
		}, []string{"result"}),
		markers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "map_markers",
			Help:      "Markers drawn on the map.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last run that produced output.",
		}),
		cacheOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_operations_total",
			Help:      "Response cache operations.",
		}, []string{"type", "op"}),
		cacheBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_written_bytes_total",
			Help:      "Bytes written to the response cache.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Directory requests sent.",
		}, []string{"host"}),
		httpResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_responses_total",
			Help:      "Directory responses by status code.",
		}, []string{"host", "code"}),
		httpErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_errors_total",
			Help:      "Directory requests that failed without a response.",
		}),
		httpLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Directory request latency.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		now: time.Now,
	}
	m.registry.MustRegister(
		m.stageDuration, m.stageItems, m.stageErrors,
		m.relays, m.geo, m.markers, m.lastSuccess,
		m.cacheOps, m.cacheBytes,
		m.httpRequests, m.httpResponses, m.httpErrors, m.httpLatency,
	)
	return m
}

// Registry exposes the underlying registry, e.g. for tests or for callers
// that want to add their own collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// WriteTextfile writes all metrics in the Prometheus text format to path.
// The file is written to a temporary name and renamed, so a collector never
// reads a partial file.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

func (m *Metrics) OnStageStart(context.Context, string) {}

func (m *Metrics) OnStageComplete(_ context.Context, stage string, items int, d time.Duration, err error) {
	m.stageDuration.WithLabelValues(stage).Set(d.Seconds())
	m.stageItems.WithLabelValues(stage).Set(float64(items))
	if err != nil {
		m.stageErrors.WithLabelValues(stage).Inc()
	}
}

func (m *Metrics) OnRunComplete(_ context.Context, s RunSummary) {
	m.relays.WithLabelValues("all").Set(float64(s.Relays))
	m.relays.WithLabelValues("guard").Set(float64(s.Guards))
	m.relays.WithLabelValues("exit").Set(float64(s.Exits))
	m.relays.WithLabelValues("middle").Set(float64(s.Middles))
	m.geo.WithLabelValues("resolved").Set(float64(s.Resolved))
	m.geo.WithLabelValues("unresolved").Set(float64(s.Unresolved))
	m.markers.Set(float64(s.Markers))
	m.lastSuccess.Set(float64(m.now().Unix()))
}

func (m *Metrics) OnCacheHit(_ context.Context, keyType string) {
	m.cacheOps.WithLabelValues(keyType, "hit").Inc()
}

func (m *Metrics) OnCacheMiss(_ context.Context, keyType string) {
	m.cacheOps.WithLabelValues(keyType, "miss").Inc()
}

func (m *Metrics) OnCacheSet(_ context.Context, keyType string, size int) {
	m.cacheOps.WithLabelValues(keyType, "set").Inc()
	m.cacheBytes.Add(float64(size))
}

func (m *Metrics) OnRequest(_ context.Context, _, host, _ string) {
	m.httpRequests.WithLabelValues(host).Inc()
}

func (m *Metrics) OnResponse(_ context.Context, _, host, _ string, status int, d time.Duration) {
	m.httpResponses.WithLabelValues(host, strconv.Itoa(status)).Inc()
	m.httpLatency.Observe(d.Seconds())
}

func (m *Metrics) OnError(context.Context, string, string, string, error) {
	m.httpErrors.Inc()
}

var (
	_ PipelineHooks = (*Metrics)(nil)
	_ CacheHooks    = (*Metrics)(nil)
	_ HTTPHooks     = (*Metrics)(nil)
)
