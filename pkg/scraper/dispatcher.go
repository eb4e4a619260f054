package scraper

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Sternrassler/darksearch-client/pkg/proxypool"
	"github.com/Sternrassler/darksearch-client/pkg/search"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// PageFetcher is the interface the search client must implement for
// single-page fetching.
type PageFetcher interface {
	// FetchPage fetches one page of query through relay.
	FetchPage(ctx context.Context, relay proxypool.Proxy, query string, page int) (*search.Page, error)
}

// ProxySource hands out relays exclusively.
type ProxySource interface {
	Checkout() (proxypool.Proxy, error)
	Release(p proxypool.Proxy) error
	Available() int
}

// Collector receives the results of every fetched page.
type Collector interface {
	Append(items []search.Result) int
	Len() int
}

// Gate paces requests across all workers of a run.
type Gate interface {
	// Wait blocks until the next request may be sent.
	Wait(ctx context.Context) error

	// ReportQuotaExceeded signals a 429 answer.
	ReportQuotaExceeded(ctx context.Context)
}

type openGate struct{}

func (openGate) Wait(ctx context.Context) error {
	return ctx.Err()
}

func (openGate) ReportQuotaExceeded(context.Context) {}

// StartOption customizes a run.
type StartOption func(*startOptions)

type startOptions struct {
	page int
}

// WithStartPage starts the run at page instead of page 1.
func WithStartPage(page int) StartOption {
	return func(o *startOptions) {
		o.page = page
	}
}

// Dispatcher runs one paginated search over a set of workers.
type Dispatcher struct {
	fetcher PageFetcher
	pool    ProxySource
	sink    Collector
	gate    Gate
	config  Config
	logger  zerolog.Logger
	runID   string

	mu      sync.Mutex
	started bool
	plan    *Plan
	workers []*Worker
	cancel  context.CancelFunc

	active   atomic.Int32
	done     chan struct{}
	doneOnce sync.Once
}

// NewDispatcher creates a dispatcher. gate may be nil to send requests
// without pacing across workers.
func NewDispatcher(fetcher PageFetcher, pool ProxySource, sink Collector, gate Gate, config Config, logger zerolog.Logger) *Dispatcher {
	if gate == nil {
		gate = openGate{}
	}
	runID := uuid.NewString()

	return &Dispatcher{
		fetcher: fetcher,
		pool:    pool,
		sink:    sink,
		gate:    gate,
		config:  config.withDefaults(),
		logger:  logger.With().Str("run_id", runID).Logger(),
		runID:   runID,
		done:    make(chan struct{}),
	}
}

// RunID returns the identifier attached to every log line of the run.
func (d *Dispatcher) RunID() string {
	return d.runID
}

// Start fetches the first page directly, stores its results and spawns
// one worker per non-empty page range. It returns once the workers are
// running; use Done to wait for them.
//
// A 429 on the first page fails with search.ErrQuotaExceeded and no
// worker is started. ctx bounds the whole run.
func (d *Dispatcher) Start(ctx context.Context, query string, opts ...StartOption) error {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return ErrAlreadyStarted
	}
	d.started = true
	d.mu.Unlock()

	o := startOptions{page: 1}
	for _, opt := range opts {
		opt(&o)
	}

	if query == "" {
		d.finish()
		return search.ErrQueryMissing
	}
	if o.page < 1 {
		d.finish()
		return fmt.Errorf("%w (got %d)", search.ErrInvalidPage, o.page)
	}

	logger := d.logger.With().Str("query", query).Logger()
	start := time.Now()

	if err := d.gate.Wait(ctx); err != nil {
		d.finish()
		return fmt.Errorf("wait for first request: %w", err)
	}

	first, err := d.fetcher.FetchPage(ctx, proxypool.Direct(), query, o.page)
	if err != nil {
		d.finish()
		if search.IsQuotaExceeded(err) {
			d.gate.ReportQuotaExceeded(ctx)
			logger.Error().Int("page", o.page).Msg("API quota exceeded, please try again")
		} else {
			logger.Error().
				Err(err).
				Int("page", o.page).
				Str("error_class", string(search.ClassOf(err))).
				Msg("Failed to fetch first page")
		}
		return fmt.Errorf("fetch first page: %w", err)
	}

	if !first.HasBounds() {
		d.finish()
		logger.Error().Int("page", o.page).Msg("First page does not report last_page")
		return fmt.Errorf("fetch first page: %w", &search.Error{
			Class:   search.ClassDecode,
			Message: "missing last_page",
			Err:     search.ErrMalformedResponse,
		})
	}

	collected := d.sink.Append(first.Data)

	ranges := Partition(first.CurrentPage, first.LastPage, d.config.Workers)
	proxies := d.pool.Available()
	plan := &Plan{
		Query:          query,
		Total:          first.Total,
		CurrentPage:    first.CurrentPage,
		LastPage:       first.LastPage,
		FirstPageItems: len(first.Data),
		Proxies:        proxies,
		PagesPerWorker: pagesPerWorker(first.Remaining(), d.config.Workers),
		Ranges:         ranges,
	}
	plan.EstimatedMinutes = estimateMinutes(plan.Remaining(), d.config.QueriesPerMinute, proxies)

	d.logPlan(logger, plan, collected, time.Since(start))

	runCtx, cancel := context.WithCancel(ctx)

	d.mu.Lock()
	d.plan = plan
	d.cancel = cancel
	d.workers = make([]*Worker, 0, len(ranges))
	for i, r := range ranges {
		d.workers = append(d.workers, newWorker(i+1, r, query, d))
	}
	workers := d.workers
	d.mu.Unlock()

	if len(workers) == 0 {
		cancel()
		d.finish()
		logger.Info().
			Int("results", collected).
			Msg("Single page result, no workers needed")
		return nil
	}

	var wg sync.WaitGroup
	for _, w := range workers {
		wg.Add(1)
		d.active.Add(1)
		go func(w *Worker) {
			defer wg.Done()
			defer d.active.Add(-1)
			w.run(runCtx)
		}(w)
	}

	go func() {
		wg.Wait()
		cancel()
		d.finish()
		logger.Info().
			Int("results", d.sink.Len()).
			Dur("duration", time.Since(start)).
			Msg("All workers finished")
	}()

	return nil
}

func (d *Dispatcher) logPlan(logger zerolog.Logger, plan *Plan, collected int, firstFetch time.Duration) {
	logger.Info().
		Int("results", collected).
		Int("total", plan.Total).
		Int("current_page", plan.CurrentPage).
		Int("last_page", plan.LastPage).
		Dur("duration", firstFetch).
		Msg("First page fetched")

	logger.Info().
		Int("proxies", plan.Proxies).
		Int("workers", len(plan.Ranges)).
		Int("pages_per_worker", plan.PagesPerWorker).
		Int("estimated_minutes", plan.EstimatedMinutes).
		Dur("estimated_duration", plan.EstimatedDuration()).
		Msg("Starting parallel page fetch")

	for i, r := range plan.Ranges {
		logger.Debug().
			Int("worker_id", i+1).
			Int("start", r.Start).
			Int("end", r.End).
			Msg("Worker range")
	}
}

func (d *Dispatcher) finish() {
	d.doneOnce.Do(func() { close(d.done) })
}

// Done is closed when every worker has exited. It is closed right away
// when Start failed or there was nothing left to fetch after the first page.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

// Cancel asks every worker to stop. Workers exit after at most one more
// in-flight request. Cancel is safe to call more than once.
func (d *Dispatcher) Cancel() {
	d.mu.Lock()
	cancel := d.cancel
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Active returns the number of workers that have not exited yet.
func (d *Dispatcher) Active() int {
	return int(d.active.Load())
}

// Plan returns how the run was split up, or nil before a successful Start.
func (d *Dispatcher) Plan() *Plan {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.plan
}

// Workers returns the workers of the run.
func (d *Dispatcher) Workers() []*Worker {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*Worker, len(d.workers))
	copy(out, d.workers)
	return out
}

// Reports returns a progress snapshot of every worker.
func (d *Dispatcher) Reports() []WorkerReport {
	workers := d.Workers()
	reports := make([]WorkerReport, len(workers))
	for i, w := range workers {
		reports[i] = w.Report()
	}
	return reports
}
