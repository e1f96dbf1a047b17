package pacing

import "github.com/prometheus/client_golang/prometheus"

var pacingTimeouts = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "pacing_oracle_timeouts_total",
	Help: "Pacing oracle calls abandoned after the guard timeout",
})

func init() {
	prometheus.MustRegister(pacingTimeouts)
}
