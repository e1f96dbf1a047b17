package causal

import "github.com/prometheus/client_golang/prometheus"

var (
	causalImpressions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "causal_impressions_total",
			Help: "Experiment impressions by group; control impressions are ghosts.",
		},
		[]string{"group"},
	)

	causalConversions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "causal_conversions_total",
			Help: "Conversions by attributed group (or unattributed).",
		},
		[]string{"group"},
	)

	experimentsRotated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "causal_experiments_rotated_total",
		Help: "Experiments retired after their duration elapsed.",
	})
)

func init() {
	prometheus.MustRegister(causalImpressions, causalConversions, experimentsRotated)
}
