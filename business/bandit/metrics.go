package bandit

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	banditDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bandit_explore_decisions_total",
			Help: "Exploration decisions by outcome (warmup, explore, exploit).",
		},
		[]string{"outcome"},
	)

	banditUpdates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bandit_updates_total",
			Help: "Arm updates by result (applied, skipped).",
		},
		[]string{"result"},
	)

	banditArmsEvicted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bandit_arms_evicted_total",
		Help: "Arms dropped by the per-bucket cap.",
	})
)

func init() {
	prometheus.MustRegister(banditDecisions, banditUpdates, banditArmsEvicted)
}
