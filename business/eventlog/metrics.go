package eventlog

import "github.com/prometheus/client_golang/prometheus"

var (
	eventsQueued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventlog_events_queued_total",
			Help: "Events accepted into the dispatcher queue by kind.",
		},
		[]string{"kind"},
	)

	eventsWritten = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "eventlog_events_written_total",
		Help: "Events persisted by the primary writer.",
	})

	eventsDeadLettered = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "eventlog_events_dead_lettered_total",
		Help: "Events routed to the dead-letter writer.",
	})
)

func init() {
	prometheus.MustRegister(eventsQueued, eventsWritten, eventsDeadLettered)
}
