// Package metrics exposes Prometheus collectors for flow executions.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	ExecutionsStarted  *prometheus.CounterVec
	ExecutionsFinished *prometheus.CounterVec
	NodeSteps          *prometheus.CounterVec
	NodeDuration       *prometheus.HistogramVec
	MessagesSent       *prometheus.CounterVec
	InboundEvents      *prometheus.CounterVec
}

// New registers the chatflow collectors on reg. Pass prometheus.DefaultRegisterer
// in binaries and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ExecutionsStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatflow",
			Name:      "executions_started_total",
			Help:      "Flow executions started, by flow.",
		}, []string{"flow_id"}),
		ExecutionsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatflow",
			Name:      "executions_finished_total",
			Help:      "Flow executions that reached a terminal status.",
		}, []string{"flow_id", "status"}),
		NodeSteps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatflow",
			Name:      "node_steps_total",
			Help:      "Node steps executed, by node type and outcome.",
		}, []string{"node_type", "status"}),
		NodeDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "chatflow",
			Name:      "node_step_duration_seconds",
			Help:      "Time spent executing one node step.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"node_type"}),
		MessagesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatflow",
			Name:      "messages_sent_total",
			Help:      "Outbound messages handed to the messenger.",
		}, []string{"channel", "kind"}),
		InboundEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatflow",
			Name:      "inbound_events_total",
			Help:      "Inbound events by how the engine handled them.",
		}, []string{"type", "outcome"}),
	}
}
