package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"mcpq/internal/domain"
)

// PrometheusMetrics implements domain.Metrics on a Prometheus registerer.
type PrometheusMetrics struct {
	dispatchDuration *prometheus.HistogramVec
	retries          *prometheus.CounterVec
	enqueueRejected  *prometheus.CounterVec
	queueDepth       prometheus.Gauge
	activeRequests   prometheus.Gauge
	toolExecutions   *prometheus.HistogramVec
}

func NewPrometheusMetrics(registerer prometheus.Registerer) *PrometheusMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)

	return &PrometheusMetrics{
		dispatchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mcpq_dispatch_duration_seconds",
				Help:    "Duration of transport dispatches in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "status"},
		),
		retries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcpq_dispatch_retries_total",
				Help: "Total number of dispatch retries",
			},
			[]string{"method"},
		),
		enqueueRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcpq_enqueue_rejected_total",
				Help: "Total number of enqueue attempts refused",
			},
			[]string{"reason"},
		),
		queueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "mcpq_queue_depth",
				Help: "Current number of pending requests",
			},
		),
		activeRequests: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "mcpq_active_requests",
				Help: "Current number of in-flight requests",
			},
		),
		toolExecutions: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mcpq_tool_execution_seconds",
				Help:    "Recorded tool execution times in seconds",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"tool", "status"},
		),
	}
}

func (p *PrometheusMetrics) ObserveDispatch(method domain.RequestMethod, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	p.dispatchDuration.WithLabelValues(string(method), status).Observe(duration.Seconds())
}

func (p *PrometheusMetrics) ObserveRetry(method domain.RequestMethod) {
	p.retries.WithLabelValues(string(method)).Inc()
}

func (p *PrometheusMetrics) ObserveEnqueueRejected(reason domain.RejectReason) {
	p.enqueueRejected.WithLabelValues(string(reason)).Inc()
}

func (p *PrometheusMetrics) SetQueueDepth(count int) {
	p.queueDepth.Set(float64(count))
}

func (p *PrometheusMetrics) SetActiveRequests(count int) {
	p.activeRequests.Set(float64(count))
}

func (p *PrometheusMetrics) ObserveToolExecution(tool string, duration time.Duration, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	p.toolExecutions.WithLabelValues(tool, status).Observe(duration.Seconds())
}

var _ domain.Metrics = (*PrometheusMetrics)(nil)
