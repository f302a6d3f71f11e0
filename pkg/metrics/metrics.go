package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ProcessStartsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keeper_process_starts_total",
			Help: "Total number of managed process spawns.",
		},
		[]string{"role"},
	)

	ProcessExitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keeper_process_exits_total",
			Help: "Total number of observed managed process exits.",
		},
		[]string{"role"},
	)

	LaunchErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keeper_launch_errors_total",
			Help: "Total number of spawn failures.",
		},
		[]string{"role"},
	)

	RecoveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keeper_recoveries_total",
			Help: "Total number of recovery passes triggered by a missing binary.",
		},
		[]string{"role", "result"}, // result: ready, fatal
	)

	DownloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keeper_downloads_total",
			Help: "Total number of artifact downloads.",
		},
		[]string{"artifact", "result"},
	)

	DiscoveryAttemptsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "keeper_discovery_attempts_total",
			Help: "Total number of boot log polls made by the endpoint extractor.",
		},
	)

	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keeper_http_requests_total",
			Help: "Total number of HTTP requests served.",
		},
		[]string{"path", "status_code"},
	)
)

const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultReady   = "ready"
	ResultFatal   = "fatal"
)
