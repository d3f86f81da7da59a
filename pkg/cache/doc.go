// Package cache keeps portal detail responses in Redis.
//
// Harvesting a large broker issues two detail calls per customer and one per
// proposal. When a harvest is interrupted and re-run the same day, cached
// details let the run skip calls it already made. Only successful responses
// with a body are cached; listing pages are never cached because their
// content shifts as the portal paginates.
//
// # Basic Usage
//
//	manager := cache.NewManager(redisClient)
//
//	key := cache.CacheKey{
//		Endpoint:    "/RelacionamentoCliente/Tombamento/clientes/123/produtos",
//		QueryParams: url.Values{"documento": []string{"12345678909"}},
//		Scope:       "Corretora Exemplo",
//	}
//
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// call the portal, then
//		_ = manager.Set(ctx, key, cache.NewEntry(body, 12*time.Hour))
//	}
//
// # Metrics
//
//   - portal_cache_hits_total - Cache hits
//   - portal_cache_misses_total - Cache misses
//   - portal_cache_size_bytes - Bytes written to the cache
//   - portal_cache_errors_total{operation} - Cache operation errors
package cache
