package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "editorial_workflow"

// Metrics holds the workflow engine collectors on a private registry
type Metrics struct {
	registry *prometheus.Registry

	transitionsTotal *prometheus.CounterVec
	publishesTotal   *prometheus.CounterVec
	consumedTotal    *prometheus.CounterVec
	sweepsTotal      *prometheus.CounterVec
	purgedTotal      *prometheus.CounterVec
}

// New creates the collectors and registers them together with the Go runtime collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		transitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transitions_total",
				Help:      "Transition attempts by outcome",
			},
			[]string{"outcome"},
		),
		publishesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "event_publishes_total",
				Help:      "State change events handed to the queue by result",
			},
			[]string{"result"},
		),
		consumedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_consumed_total",
				Help:      "Messages received by consumer and result",
			},
			[]string{"consumer", "result"},
		),
		sweepsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retention_sweeps_total",
				Help:      "Retention purges by target and status",
			},
			[]string{"target", "status"},
		),
		purgedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retention_deleted_records_total",
				Help:      "Records deleted by the retention sweep",
			},
			[]string{"target"},
		),
	}

	m.registry.MustRegister(
		m.transitionsTotal,
		m.publishesTotal,
		m.consumedTotal,
		m.sweepsTotal,
		m.purgedTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveTransition counts a transition attempt
func (m *Metrics) ObserveTransition(outcome string) {
	m.transitionsTotal.WithLabelValues(outcome).Inc()
}

// ObservePublish counts an enqueue result
func (m *Metrics) ObservePublish(result string) {
	m.publishesTotal.WithLabelValues(result).Inc()
}

// ObserveConsume counts a consumed message
func (m *Metrics) ObserveConsume(consumer, result string) {
	m.consumedTotal.WithLabelValues(consumer, result).Inc()
}

// ObserveSweep counts a retention purge and the records it removed
func (m *Metrics) ObserveSweep(target string, deleted int64, err error) {
	if err != nil {
		m.sweepsTotal.WithLabelValues(target, "failed").Inc()
		return
	}
	m.sweepsTotal.WithLabelValues(target, "ok").Inc()
	m.purgedTotal.WithLabelValues(target).Add(float64(deleted))
}

// Registry exposes the registry, mostly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
