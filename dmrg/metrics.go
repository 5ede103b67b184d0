package dmrg

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "dipolar"

// Metrics are the prometheus collectors updated after every sweep.
type Metrics struct {
	energy     prometheus.Gauge
	maxEntropy prometheus.Gauge
	ceiling    prometheus.Gauge
	mixer      prometheus.Gauge
	truncation prometheus.Gauge
	maxBond    prometheus.Gauge
	sweeps     prometheus.Counter
	duration   prometheus.Histogram
	runs       *prometheus.CounterVec
}

// NewMetrics registers the driver collectors with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		energy: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "energy",
			Help: "Energy after the last sweep.",
		}),
		maxEntropy: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "max_entanglement_entropy",
			Help: "Largest bond entanglement entropy after the last sweep.",
		}),
		ceiling: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "bond_dimension_ceiling",
			Help: "Bond dimension ceiling of the last sweep.",
		}),
		mixer: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "mixer_amplitude",
			Help: "Mixer amplitude of the last sweep.",
		}),
		truncation: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "truncation_error",
			Help: "Largest discarded weight of the last sweep.",
		}),
		maxBond: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "max_bond_dimension",
			Help: "Largest bond dimension after the last sweep.",
		}),
		sweeps: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "sweeps_total",
			Help: "Number of completed sweeps.",
		}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "sweep_duration_seconds",
			Help:    "Wall time of a sweep.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "runs_total",
			Help: "Finished runs by final state.",
		}, []string{"state"}),
	}
}
