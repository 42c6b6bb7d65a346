// Package metrics exposes Prometheus counters for quoting and execution.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	QuotesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moonx_quotes_total",
			Help: "Quote requests by venue and result",
		},
		[]string{"venue", "result"},
	)
	StaleQuotesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "moonx_stale_quotes_total",
			Help: "Quote results discarded because a newer request superseded them",
		},
	)
	ExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moonx_executions_total",
			Help: "Trade executions by venue, mode and final state",
		},
		[]string{"venue", "mode", "state"},
	)
	ExecutionSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "moonx_execution_seconds",
			Help:    "Wall time from validation to a terminal state",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120, 300},
		},
		[]string{"venue"},
	)
	ApprovalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moonx_approvals_total",
			Help: "Allowance checks by outcome",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(QuotesTotal, StaleQuotesTotal, ExecutionsTotal, ExecutionSeconds, ApprovalsTotal)
}

// Serve exposes /metrics on addr. It blocks like http.ListenAndServe.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return srv.ListenAndServe()
}
