package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tilestore_cache_hits_total",
		Help: "Total number of tile cache hits",
	})

	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tilestore_cache_misses_total",
		Help: "Total number of tile cache misses",
	})

	CacheStores = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tilestore_cache_stores_total",
		Help: "Total number of tiles written into a cache handler",
	})

	CacheFlushes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tilestore_cache_flushes_total",
		Help: "Total number of dirty tiles written back to a downstream store",
	})

	CacheFlushErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tilestore_cache_flush_errors_total",
		Help: "Total number of failed dirty tile write-backs",
	})

	CacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tilestore_cache_evictions_total",
		Help: "Total number of tiles evicted from a cache handler",
	})

	ChainRebinds = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tilestore_chain_rebinds_total",
		Help: "Total number of handler chain rebinds",
	})

	Buffers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tilestore_buffers",
		Help: "Number of live buffers",
	})

	// Swap backend metrics
	SwapOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tilestore_swap_operation_duration_seconds",
		Help:    "Duration of swap backend operations in seconds",
		Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"backend", "operation"})

	SwapErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tilestore_swap_errors_total",
		Help: "Total number of swap backend errors",
	}, []string{"backend", "operation"})

	SwapBytesWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tilestore_swap_bytes_written_total",
		Help: "Total number of encoded bytes written to swap",
	}, []string{"backend"})

	SwapCleanupRemoved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tilestore_swap_cleanup_removed_total",
		Help: "Total number of swap files removed by cleanup",
	})
)
