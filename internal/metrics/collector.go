// Package metrics exposes Prometheus metrics for the assistant.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/nidhogg/jarvis/internal/agent"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Collector owns a private registry so tests and multiple servers never
// collide on the global one.
type Collector struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	messagesTotal     *prometheus.CounterVec
	messageDuration   prometheus.Histogram
	replyConfidence   prometheus.Histogram
	generatorFailures *prometheus.CounterVec

	sessionsActive  prometheus.Gauge
	sessionsEvicted prometheus.Counter

	logger *zap.Logger
}

// NewCollector creates a collector with metrics under namespace.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		httpRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		messagesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Messages processed by category",
		}, []string{"category"}),
		messageDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "message_duration_seconds",
			Help:      "Time to answer one message",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5, 15, 30},
		}),
		replyConfidence: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reply_confidence",
			Help:      "Confidence reported with each reply",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		}),
		generatorFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generator_failures_total",
			Help:      "Generator calls that fell back to the knowledge base",
		}, []string{"reason"}),
		sessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Sessions currently bound to an agent",
		}),
		sessionsEvicted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_evicted_total",
			Help:      "Sessions removed by the idle sweep",
		}),
		logger: logger.With(zap.String("component", "metrics")),
	}
}

// Handler serves the collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records one served request.
func (c *Collector) RecordHTTPRequest(method, path string, status int, d time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

// Observe records a processed exchange.
func (c *Collector) Observe(_ context.Context, ex *agent.Exchange) {
	c.messagesTotal.WithLabelValues(ex.Reply.Category).Inc()
	c.replyConfidence.Observe(ex.Reply.Confidence)
	if ex.Chain != nil {
		c.messageDuration.Observe(ex.Chain.Duration.Seconds())
	}
	if ex.GeneratorErr != nil {
		reason := "error"
		if agent.IsGeneratorTimeout(ex.GeneratorErr) {
			reason = "timeout"
		}
		c.generatorFailures.WithLabelValues(reason).Inc()
	}
}

// SetActiveSessions updates the session gauge.
func (c *Collector) SetActiveSessions(n int) {
	c.sessionsActive.Set(float64(n))
}

// RecordEvictions counts sessions removed by a sweep.
func (c *Collector) RecordEvictions(n int) {
	if n > 0 {
		c.sessionsEvicted.Add(float64(n))
		c.logger.Debug("recorded evictions", zap.Int("count", n))
	}
}
