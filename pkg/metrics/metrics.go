// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stockline_http_requests_total",
		Help: "HTTP requests by route and status",
	}, []string{"method", "route", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stockline_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	// CacheLookupsTotal counts price cache reads by tier (price, supply, proxy, wallet) and result (hit, miss, stale).
	CacheLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stockline_cache_lookups_total",
		Help: "Cache lookups by tier and result",
	}, []string{"tier", "result"})

	UpstreamRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stockline_upstream_requests_total",
		Help: "Calls to third-party providers by outcome",
	}, []string{"provider", "operation", "outcome"})

	UpstreamRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stockline_upstream_request_duration_seconds",
		Help:    "Latency of calls to third-party providers",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
	}, []string{"provider", "operation"})

	ProxyChunkFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stockline_proxy_chunk_failures_total",
		Help: "Aggregation chunks whose addresses were returned as null",
	})

	PriceFetchFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stockline_price_fetch_failures_total",
		Help: "Token price lookups that fell back to cached or zero values",
	})

	SupplySourceTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stockline_supply_source_total",
		Help: "Where token supply figures were resolved from",
	}, []string{"source"})

	ProgressiveBatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stockline_progressive_batches_total",
		Help: "Progressive loading batches by outcome",
	}, []string{"outcome"})

	WalletPrefetchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stockline_wallet_prefetch_total",
		Help: "Wallet prefetch runs by outcome",
	}, []string{"outcome"})

	TicketsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stockline_tickets_total",
		Help: "Airtable ticket operations by kind and outcome",
	}, []string{"kind", "outcome"})

	CacheEntries = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "stockline_cache_entries",
		Help: "Entries currently held per price cache tier",
	}, []string{"tier"})
)

// Outcome converts an error into the outcome label used by the counters.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
