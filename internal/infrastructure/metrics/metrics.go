package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the service's Prometheus collectors.
type Metrics struct {
	EventsProcessed       *prometheus.CounterVec
	EventsDeduplicated    prometheus.Counter
	TriggerAttempts       prometheus.Counter
	TriggerFailures       prometheus.Counter
	TimeoutsFired         prometheus.Counter
	RecordsIngested       prometheus.Counter
	ResourceParseFailures prometheus.Counter
	SinkPushes            *prometheus.CounterVec
}

// New registers the service collectors with the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EventsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "webhook_events_processed_total",
			Help: "Webhook events processed, by event type and outcome.",
		}, []string{"type", "outcome"}),
		EventsDeduplicated: factory.NewCounter(prometheus.CounterOpts{
			Name: "webhook_events_deduplicated_total",
			Help: "Webhook events acknowledged without processing because their id was already seen.",
		}),
		TriggerAttempts: factory.NewCounter(prometheus.CounterOpts{
			Name: "export_trigger_attempts_total",
			Help: "Export trigger requests issued against the provider.",
		}),
		TriggerFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "export_trigger_failures_total",
			Help: "Export triggers that failed after exhausting retries.",
		}),
		TimeoutsFired: factory.NewCounter(prometheus.CounterOpts{
			Name: "export_timeouts_fired_total",
			Help: "Export deadlines that elapsed before a terminal webhook arrived.",
		}),
		RecordsIngested: factory.NewCounter(prometheus.CounterOpts{
			Name: "records_ingested_total",
			Help: "Normalized records committed by the transform pipeline.",
		}),
		ResourceParseFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "resource_parse_failures_total",
			Help: "Export payload lines skipped because they could not be parsed.",
		}),
		SinkPushes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sink_pushes_total",
			Help: "Record batch pushes to the downstream sink, by outcome.",
		}, []string{"outcome"}),
	}
}

// NewNop returns metrics backed by a throwaway registry, for tests.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
