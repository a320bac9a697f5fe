package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dividends_build_info",
			Help: "Build information of the dividends tool",
		},
		[]string{"version", "commit", "date"},
	)

	ShareMutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dividends_share_mutations_total",
			Help: "Total number of share mint, burn and transfer operations",
		},
		[]string{"op", "status"},
	)

	FundsFoldedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dividends_funds_folded_total",
			Help: "Total payment asset units folded into the dividend accumulator",
		},
	)

	SynchronizationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dividends_synchronizations_total",
			Help: "Total number of explicit synchronizations, by whether new funds were folded",
		},
		[]string{"result"},
	)

	ReleasesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dividends_releases_total",
			Help: "Total number of release attempts",
		},
		[]string{"kind", "status"},
	)

	ReleasedUnitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dividends_released_units_total",
			Help: "Total payment asset units released to payees",
		},
		[]string{"kind"},
	)

	RPCRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dividends_rpc_requests_total",
			Help: "Total number of node JSON-RPC requests",
		},
		[]string{"method", "status"},
	)

	RPCRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dividends_rpc_request_duration_seconds",
			Help:    "Duration of node JSON-RPC requests",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		},
		[]string{"method"},
	)

	CheckpointsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dividends_checkpoints_total",
			Help: "Total number of instance checkpoints written",
		},
		[]string{"status"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dividends_http_requests_total",
			Help: "Total number of HTTP API requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dividends_http_request_duration_seconds",
			Help:    "Duration of HTTP API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Status maps an error to the status label used by the counters above.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
