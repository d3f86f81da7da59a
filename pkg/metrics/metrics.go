// Package metrics exposes the Prometheus metrics of portal-sync.
// All metrics are defined in their respective packages (client, session,
// cache, pagination, harvest, syncer) via promauto and land in the default
// registry. This package documents them and serves them over HTTP.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Registry is the registerer every package's metrics are registered with.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer Handler serves.
var Gatherer = prometheus.DefaultGatherer

// shutdownTimeout bounds the graceful stop of the metrics listener.
const shutdownTimeout = 5 * time.Second

// Metrics Documentation
//
// Portal Client Metrics (pkg/client):
//   - portal_requests_total{endpoint, status} (Counter): Calls by endpoint label and HTTP status
//   - portal_request_duration_seconds{endpoint} (Histogram): Call duration including permit wait
//   - portal_errors_total{class} (Counter): Failed calls by class (auth, server, network, decode)
//   - portal_requests_in_flight (Gauge): Calls currently holding a concurrency permit
//   - portal_failure_backoff_seconds{class} (Histogram): Backoff slept after a failure
//
// Session Metrics (pkg/session):
//   - portal_session_unauthorized_total{scope} (Counter): 401 responses seen
//   - portal_session_token_expired{scope} (Gauge): 1 while the token is flagged expired
//
// Cache Metrics (pkg/cache):
//   - portal_cache_hits_total (Counter): Detail responses served from Redis
//   - portal_cache_misses_total (Counter): Detail lookups that went to the portal
//   - portal_cache_size_bytes (Counter): Bytes written to the cache
//   - portal_cache_errors_total{operation} (Counter): Cache operation errors
//
// Pagination Metrics (pkg/pagination):
//   - portal_pages_fetched_total{endpoint, outcome} (Counter): Pages by outcome (page, empty, failed)
//
// Harvest Metrics (pkg/harvest):
//   - harvest_records_total{batch} (Counter): Records written per output batch
//   - harvest_items_dropped_total{workflow, reason} (Counter): Listing items that produced no record
//
// Sync Metrics (pkg/syncer):
//   - sync_records_total{entity, outcome} (Counter): Records by entity and outcome
//     (inserted, updated, unchanged, skipped, cancelled, not_delinquent, failed)
//   - sync_batches_total{entity, result} (Counter): Entity batches committed or aborted
//   - sync_batch_duration_seconds{entity} (Histogram): Duration of one entity batch
//   - sync_files_total{result} (Counter): Harvest files processed, failed or left in place
//
// Example Prometheus Queries:
//
//   # Portal Error Rate
//   rate(portal_errors_total[5m])
//
//   # Expired Token
//   portal_session_token_expired == 1
//
//   # Failed Pages per Listing
//   sum by (endpoint) (portal_pages_fetched_total{outcome="failed"})
//
//   # Sync Failure Ratio
//   sum(rate(sync_records_total{outcome="failed"}[1h])) / sum(rate(sync_records_total[1h]))
//
//   # P95 Portal Latency
//   histogram_quantile(0.95, rate(portal_request_duration_seconds_bucket[5m]))

// Handler returns the HTTP handler for /metrics and /health.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	})
	return mux
}

// Serve listens on addr and serves Handler until ctx is done.
func Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listen: %w", err)
	}
	return serve(ctx, ln)
}

func serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", ln.Addr().String()).Msg("Metrics listener started")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("metrics shutdown: %w", err)
	}
	return nil
}
