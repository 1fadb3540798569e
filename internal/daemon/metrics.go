package daemon

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "sentinel"
	subsystem = "daemon"
)

// metrics holds the daemon's Prometheus collectors on a private registry so
// several services can coexist in one process.
type metrics struct {
	registry *prometheus.Registry

	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	samplesIngested prometheus.Counter
	ingestRejected  *prometheus.CounterVec
	samplesPruned   prometheus.Counter
	costAlerts      *prometheus.CounterVec
	pollDuration    prometheus.Histogram
	pollErrors      prometheus.Counter
	agents          prometheus.Gauge
	samples         prometheus.Gauge
	agentHealth     *prometheus.GaugeVec
}

func newMetrics() *metrics {
	m := &metrics{registry: prometheus.NewRegistry()}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(m.registry)

	m.httpRequests = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status code",
		},
		[]string{"route", "method", "code"},
	)
	m.httpDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	m.samplesIngested = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "samples_ingested_total",
		Help:      "Samples accepted through the ingest endpoint",
	})
	m.ingestRejected = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "ingest_rejected_total",
			Help:      "Samples rejected at ingestion by error code",
		},
		[]string{"code"},
	)
	m.samplesPruned = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "samples_pruned_total",
		Help:      "Samples deleted by the retention loop",
	})
	m.costAlerts = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "cost_alerts_total",
			Help:      "Newly raised cost alerts by type and severity",
		},
		[]string{"type", "severity"},
	)
	m.pollDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "poll_duration_seconds",
		Help:      "Duration of one alert and health poll",
		Buckets:   prometheus.DefBuckets,
	})
	m.pollErrors = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "poll_errors_total",
		Help:      "Polls that failed",
	})
	m.agents = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "agents",
		Help:      "Registered agents at the last poll",
	})
	m.samples = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "samples",
		Help:      "Stored samples at the last poll",
	})
	m.agentHealth = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "agents_by_health",
			Help:      "Agents per overall health rating at the last poll",
		},
		[]string{"health"},
	)
	return m
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *metrics) observeRequest(route, method string, code int, d time.Duration) {
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(d.Seconds())
}
