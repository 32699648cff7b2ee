// Package metrics exposes the engine's operational counters over
// Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the engine's counters on a private registry so tests
// can run multiple instances without collisions.
type Metrics struct {
	registry *prometheus.Registry

	CommitsAccepted    prometheus.Counter
	CommitsRejected    prometheus.Counter
	RevealsAccepted    prometheus.Counter
	RevealsRejected    prometheus.Counter
	Slashes            *prometheus.CounterVec
	BatchesSettled     prometheus.Counter
	BatchesVoided      prometheus.Counter
	SettlementFailures prometheus.Counter
}

// New creates a metrics bundle on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		CommitsAccepted: factory.NewCounter(prometheus.CounterOpts{
			Name: "batchclear_commits_accepted_total",
			Help: "Order commitments accepted into a batch.",
		}),
		CommitsRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "batchclear_commits_rejected_total",
			Help: "Order commitments rejected at submission.",
		}),
		RevealsAccepted: factory.NewCounter(prometheus.CounterOpts{
			Name: "batchclear_reveals_accepted_total",
			Help: "Order reveals that matched their commitment.",
		}),
		RevealsRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "batchclear_reveals_rejected_total",
			Help: "Order reveals rejected at submission.",
		}),
		Slashes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "batchclear_slashes_total",
			Help: "Collateral slashing events by cause.",
		}, []string{"event"}),
		BatchesSettled: factory.NewCounter(prometheus.CounterOpts{
			Name: "batchclear_batches_settled_total",
			Help: "Batches settled and closed.",
		}),
		BatchesVoided: factory.NewCounter(prometheus.CounterOpts{
			Name: "batchclear_batches_voided_total",
			Help: "Batches voided without settlement.",
		}),
		SettlementFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "batchclear_settlement_failures_total",
			Help: "Settlement attempts that failed and were queued for retry.",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
