package supervisor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for supervised slots
type Metrics struct {
	running prometheus.Gauge
	started prometheus.Counter
	ended   *prometheus.CounterVec
}

// NewMetrics registers the slot metrics on reg, labelled with the kind of
// process the supervisor runs
func NewMetrics(reg prometheus.Registerer, kind string) *Metrics {
	f := promauto.With(reg)
	labels := prometheus.Labels{"kind": kind}
	return &Metrics{
		running: f.NewGauge(prometheus.GaugeOpts{
			Namespace:   "derivbot",
			Name:        "slots_running",
			Help:        "Processes currently running.",
			ConstLabels: labels,
		}),
		started: f.NewCounter(prometheus.CounterOpts{
			Namespace:   "derivbot",
			Name:        "slots_started_total",
			Help:        "Processes started.",
			ConstLabels: labels,
		}),
		ended: f.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "derivbot",
			Name:        "slots_ended_total",
			Help:        "Processes ended, by reason.",
			ConstLabels: labels,
		}, []string{"reason"}),
	}
}
