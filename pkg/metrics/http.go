package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// Latency of HTTP handlers by route
	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Latency of HTTP handlers",
		Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"method", "route", "status"})

	// Requests turned away by the rate limiter
	HTTPRateLimited = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_rate_limited_total",
		Help: "Requests rejected by the rate limiter",
	}, []string{"route"})
)

func Init() {
	prometheus.MustRegister(
		HTTPRequestDuration,
		HTTPRateLimited,
	)
}
