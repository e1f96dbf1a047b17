package auction

import "github.com/prometheus/client_golang/prometheus"

var (
	auctionsRun = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auctions_total",
		Help: "Auctions run, by outcome",
	}, []string{"outcome"})

	auctionLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "auction_duration_seconds",
		Help:    "Time spent deciding an auction",
		Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25},
	})

	auctionCandidates = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "auction_candidates",
		Help:    "Bids entering ranking per auction",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})

	auctionSpend = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auction_clearing_spend_total",
		Help: "Sum of clearing prices charged to winners",
	})
)

func init() {
	prometheus.MustRegister(auctionsRun, auctionLatency, auctionCandidates, auctionSpend)
}
