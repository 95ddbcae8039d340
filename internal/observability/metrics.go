package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StoreErrors counts document store errors by operation.
	StoreErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "threads_store_errors_total",
		Help: "Total number of document store errors by operation",
	}, []string{"operation"})

	// StoreQueryLatency records store round-trip latency by operation and collection.
	StoreQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "threads_store_query_latency_seconds",
		Help:    "Document store query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "collection"})

	// RedisErrors counts Redis errors by command.
	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "threads_redis_errors_total",
		Help: "Total number of Redis errors by command",
	}, []string{"command"})

	// CacheHits counts cache reads served from Redis.
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "threads_cache_hits_total",
		Help: "Total number of cache reads served from Redis",
	})

	// CacheMisses counts cache reads that fell through to the store.
	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "threads_cache_misses_total",
		Help: "Total number of cache reads that fell through to the store",
	})

	// CascadeDeletedThreads counts threads removed by cascading deletes.
	CascadeDeletedThreads = promauto.NewCounter(prometheus.CounterOpts{
		Name: "threads_cascade_deleted_total",
		Help: "Total number of threads removed by cascading deletes, descendants included",
	})
)

// TrackQuery returns a function that records query latency when called (e.g. defer).
func TrackQuery(operation, collection string) func() {
	start := time.Now()
	return func() {
		StoreQueryLatency.WithLabelValues(operation, collection).Observe(time.Since(start).Seconds())
	}
}
