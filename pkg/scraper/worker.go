package scraper

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Sternrassler/darksearch-client/pkg/proxypool"
	"github.com/Sternrassler/darksearch-client/pkg/search"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for workers.
var (
	proxyRotationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "darksearch_proxy_rotations_total",
		Help: "Total number of relay swaps after consecutive failures",
	})

	workersActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "darksearch_workers_active",
		Help: "Number of workers currently running",
	})
)

// ExitReason tells why a worker stopped.
type ExitReason string

const (
	ExitRunning       ExitReason = "running"
	ExitCompleted     ExitReason = "completed"
	ExitCancelled     ExitReason = "cancelled"
	ExitPoolExhausted ExitReason = "pool_exhausted"
)

// WorkerReport summarizes what a worker did.
type WorkerReport struct {
	ID              int           `json:"id"`
	Range           PageRange     `json:"range"`
	Cursor          int           `json:"cursor"`
	Proxy           string        `json:"proxy,omitempty"`
	PagesFetched    int           `json:"pages_fetched"`
	Items           int           `json:"items"`
	QuotaFaults     int           `json:"quota_faults"`
	TransientFaults int           `json:"transient_faults"`
	Rotations       int           `json:"rotations"`
	Exit            ExitReason    `json:"exit"`
	Duration        time.Duration `json:"duration"`
}

// Worker fetches one PageRange page by page through a relay from the pool.
type Worker struct {
	id    int
	rng   PageRange
	query string

	fetcher PageFetcher
	pool    ProxySource
	sink    Collector
	gate    Gate
	cfg     Config
	logger  zerolog.Logger

	done chan struct{}

	mu     sync.Mutex
	report WorkerReport
}

func newWorker(id int, rng PageRange, query string, d *Dispatcher) *Worker {
	return &Worker{
		id:      id,
		rng:     rng,
		query:   query,
		fetcher: d.fetcher,
		pool:    d.pool,
		sink:    d.sink,
		gate:    d.gate,
		cfg:     d.config,
		logger:  d.logger.With().Int("worker_id", id).Logger(),
		done:    make(chan struct{}),
		report: WorkerReport{
			ID:     id,
			Range:  rng,
			Cursor: rng.Start,
			Exit:   ExitRunning,
		},
	}
}

// ID returns the worker number, starting at 1.
func (w *Worker) ID() int { return w.id }

// Range returns the pages assigned to the worker.
func (w *Worker) Range() PageRange { return w.rng }

// Done is closed when the worker has exited and released its relay.
func (w *Worker) Done() <-chan struct{} { return w.done }

// Report returns a snapshot of the worker's progress.
func (w *Worker) Report() WorkerReport {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.report
}

func (w *Worker) update(fn func(r *WorkerReport)) {
	w.mu.Lock()
	fn(&w.report)
	w.mu.Unlock()
}

// run processes the range until it is exhausted or ctx is cancelled.
func (w *Worker) run(ctx context.Context) {
	start := time.Now()
	workersActive.Inc()
	defer func() {
		workersActive.Dec()
		w.update(func(r *WorkerReport) { r.Duration = time.Since(start) })
		close(w.done)
	}()

	relay, err := w.pool.Checkout()
	if err != nil {
		w.logger.Error().
			Err(err).
			Str("range", w.rng.String()).
			Msg("No relay available, worker halting")
		w.update(func(r *WorkerReport) { r.Exit = ExitPoolExhausted })
		return
	}
	defer func() {
		if err := w.pool.Release(relay); err != nil {
			w.logger.Error().Err(err).Str("proxy", relay.String()).Msg("Failed to release relay")
		}
	}()

	w.update(func(r *WorkerReport) { r.Proxy = relay.String() })
	w.logger.Info().
		Str("proxy", relay.String()).
		Str("range", w.rng.String()).
		Msg("Worker is using proxy")

	cursor := w.rng.Start
	failures := 0
	rotatedAt := 0

	for cursor <= w.rng.End {
		if ctx.Err() != nil {
			w.stop(ExitCancelled, cursor)
			return
		}

		if nextRotation(failures, w.cfg.FailLimit, rotatedAt) {
			relay = w.rotate(relay, failures)
			rotatedAt = failures
		}

		if err := w.gate.Wait(ctx); err != nil {
			w.stop(ExitCancelled, cursor)
			return
		}

		page, err := w.fetcher.FetchPage(ctx, relay, w.query, cursor)
		switch {
		case err == nil:
			n := len(page.Data)
			total := w.sink.Append(page.Data)
			w.logger.Info().
				Int("page", cursor).
				Int("results", n).
				Int("collected", total).
				Msg("Received results")
			w.update(func(r *WorkerReport) {
				r.PagesFetched++
				r.Items += n
				r.Cursor = cursor + 1
			})
			cursor++
			failures = 0
			rotatedAt = 0

		case search.IsQuotaExceeded(err):
			w.logger.Warn().
				Int("page", cursor).
				Str("proxy", relay.String()).
				Msg("API quota exceeded, retrying page")
			w.update(func(r *WorkerReport) { r.QuotaFaults++ })
			w.gate.ReportQuotaExceeded(ctx)

		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			if ctx.Err() != nil {
				w.stop(ExitCancelled, cursor)
				return
			}
			fallthrough

		default:
			failures++
			w.logger.Warn().
				Err(err).
				Int("page", cursor).
				Str("proxy", relay.String()).
				Str("error_class", string(search.ClassOf(err))).
				Int("consecutive_failures", failures).
				Msg("Page fetch failed")
			w.update(func(r *WorkerReport) { r.TransientFaults++ })
		}

		if ctx.Err() != nil {
			w.stop(ExitCancelled, cursor)
			return
		}
		if cursor > w.rng.End {
			break
		}
		if err := pause(ctx, w.cfg.PaceInterval); err != nil {
			w.stop(ExitCancelled, cursor)
			return
		}
	}

	w.stop(ExitCompleted, cursor)
}

// rotate swaps relay for a fresh one. The new relay is checked out before
// the old one goes back, so the worker never picks up its own failing
// relay again. With an empty pool the current relay is kept.
func (w *Worker) rotate(relay proxypool.Proxy, failures int) proxypool.Proxy {
	next, err := w.pool.Checkout()
	if err != nil {
		w.logger.Warn().
			Err(err).
			Str("proxy", relay.String()).
			Int("consecutive_failures", failures).
			Msg("No spare relay to rotate to, keeping current proxy")
		return relay
	}

	if err := w.pool.Release(relay); err != nil {
		w.logger.Error().Err(err).Str("proxy", relay.String()).Msg("Failed to release relay")
	}

	proxyRotationsTotal.Inc()
	w.update(func(r *WorkerReport) {
		r.Rotations++
		r.Proxy = next.String()
	})
	w.logger.Info().
		Str("proxy", next.String()).
		Str("previous_proxy", relay.String()).
		Int("consecutive_failures", failures).
		Msg("Worker is using proxy")
	return next
}

func (w *Worker) stop(reason ExitReason, cursor int) {
	w.update(func(r *WorkerReport) {
		r.Exit = reason
		r.Cursor = cursor
	})

	event := w.logger.Info()
	if reason == ExitCancelled {
		event = w.logger.Warn()
	}
	event.
		Str("exit", string(reason)).
		Int("cursor", cursor).
		Str("range", w.rng.String()).
		Msg("Worker has finished")
}
