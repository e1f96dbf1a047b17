package frequency

import "github.com/prometheus/client_golang/prometheus"

var (
	frequencyRecords = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "frequency_records_total",
		Help: "Impressions appended to frequency logs",
	})

	frequencySwept = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "frequency_swept_entries_total",
		Help: "Expired frequency entries removed by the sweeper",
	})
)

func init() {
	prometheus.MustRegister(frequencyRecords, frequencySwept)
}
