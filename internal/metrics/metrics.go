// Package metrics exposes Prometheus counters for club joins, RSVPs and
// assistant turns.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tabyslink"

// Assistant turn outcomes.
const (
	OutcomeGenerated = "generated"
	OutcomeFailed    = "failed"
	OutcomeLimited   = "rate_limited"
)

// Metrics holds the service's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	ClubJoins      *prometheus.CounterVec
	RSVPs          *prometheus.CounterVec
	AssistantTurns *prometheus.CounterVec
	SSEClients     prometheus.GaugeFunc
}

// New registers every collector. connected reports the number of open SSE
// streams and may be nil.
func New(connected func() int) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ClubJoins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "club_joins_total",
			Help:      "Club join attempts by result.",
		}, []string{"result"}),
		RSVPs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_rsvps_total",
			Help:      "Accepted RSVP changes by status.",
		}, []string{"status"}),
		AssistantTurns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assistant_turns_total",
			Help:      "Assistant chat turns by chat type and outcome.",
		}, []string{"chat_type", "outcome"}),
	}
	if connected == nil {
		connected = func() int { return 0 }
	}
	m.SSEClients = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sse_clients",
		Help:      "Users with an open notification stream.",
	}, func() float64 { return float64(connected()) })

	m.registry.MustRegister(
		m.ClubJoins,
		m.RSVPs,
		m.AssistantTurns,
		m.SSEClients,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
