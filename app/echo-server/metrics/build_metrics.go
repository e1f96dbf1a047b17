package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	BuildInfo = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ad_decisioning_build_info",
		Help: "Build and environment of the running server",
	}, []string{"version", "environment", "state_backend"})

	ConfigReloads = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ad_decisioning_config_applied_total",
		Help: "Decisioning configs applied since start",
	})
)

func Init(version, environment, backend string) {
	prometheus.MustRegister(BuildInfo, ConfigReloads)
	BuildInfo.WithLabelValues(version, environment, backend).Set(1)
}
