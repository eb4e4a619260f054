// Package metrics exposes the Prometheus metrics of the DarkSearch client.
// All metrics are defined in their respective packages (search, proxypool,
// scraper, results, ratelimit) via promauto and registered with the
// default registry.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Handler serves the metrics of the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("Serving metrics")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// Metrics Documentation
//
// Request Metrics (pkg/search):
//   - darksearch_requests_total{outcome} (Counter): Requests by outcome (success, quota_exceeded, status code, network_error, decode_error)
//   - darksearch_request_duration_seconds (Histogram): Request duration
//   - darksearch_errors_total{class} (Counter): Errors by class (rate_limit, client, server, network, decode)
//
// Proxy Metrics (pkg/proxypool):
//   - darksearch_proxies_available (Gauge): Proxies in the pool and not checked out
//   - darksearch_proxy_pool_exhausted_total (Counter): Checkouts that found the pool empty
//
// Worker Metrics (pkg/scraper):
//   - darksearch_workers_active (Gauge): Workers currently running
//   - darksearch_proxy_rotations_total (Counter): Relay swaps after consecutive failures
//
// Result Metrics (pkg/results):
//   - darksearch_results_total (Counter): Results collected
//
// Quota Metrics (pkg/ratelimit):
//   - darksearch_quota_exceeded_total (Counter): 429 answers reported
//   - darksearch_quota_cooldown_waits_total (Counter): Requests delayed by a cooldown
//
// Example Prometheus Queries:
//
//   # Request Error Rate
//   rate(darksearch_errors_total[5m])
//
//   # Quota Pressure
//   increase(darksearch_quota_exceeded_total[10m]) > 0
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(darksearch_request_duration_seconds_bucket[5m]))
//
//   # Results per Minute
//   rate(darksearch_results_total[1m]) * 60
