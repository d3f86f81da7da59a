package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits counts detail responses served from Redis.
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "portal_cache_hits_total",
			Help: "Total number of portal detail cache hits",
		},
	)

	// CacheMisses counts lookups that fell through to the portal.
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "portal_cache_misses_total",
			Help: "Total number of portal detail cache misses",
		},
	)

	// CacheSize counts bytes written to the cache.
	CacheSize = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "portal_cache_size_bytes",
			Help: "Bytes written to the portal detail cache",
		},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete"
	)
)
