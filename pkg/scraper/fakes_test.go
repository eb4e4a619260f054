package scraper

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Sternrassler/darksearch-client/pkg/proxypool"
	"github.com/Sternrassler/darksearch-client/pkg/search"
	"github.com/rs/zerolog"
)

func newTestLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).Level(zerolog.Disabled)
}

var (
	errRelayDown = &search.Error{StatusCode: 502, Class: search.ClassServer, Message: "502 Bad Gateway"}
	errQuota     = &search.Error{StatusCode: 429, Class: search.ClassRateLimit, Message: "429 Too Many Requests", Err: search.ErrQuotaExceeded}
)

type fetchCall struct {
	relay string
	page  int
}

// fakeFetcher serves lastPage pages of perPage results each. Errors queued
// per page are returned, in order, before the page succeeds.
type fakeFetcher struct {
	lastPage int
	perPage  int
	delay    time.Duration

	// bare leaves total and last_page out of every page after the first
	bare bool

	mu        sync.Mutex
	faults    map[int][]error
	calls     []fetchCall
	successes map[int]int
}

func newFakeFetcher(lastPage, perPage int) *fakeFetcher {
	return &fakeFetcher{
		lastPage:  lastPage,
		perPage:   perPage,
		faults:    make(map[int][]error),
		successes: make(map[int]int),
	}
}

func (f *fakeFetcher) fail(page int, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faults[page] = append(f.faults[page], errs...)
}

func (f *fakeFetcher) FetchPage(ctx context.Context, relay proxypool.Proxy, query string, page int) (*search.Page, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fetchCall{relay: relay.Key(), page: page})
	var fault error
	if queue := f.faults[page]; len(queue) > 0 {
		fault = queue[0]
		f.faults[page] = queue[1:]
	}
	f.mu.Unlock()

	if f.delay > 0 {
		timer := time.NewTimer(f.delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, &search.Error{Class: search.ClassNetwork, Message: "request failed", Err: ctx.Err()}
		case <-timer.C:
		}
	}

	if fault != nil {
		return nil, fault
	}

	data := make([]search.Result, 0, f.perPage)
	if page <= f.lastPage {
		for i := 0; i < f.perPage; i++ {
			data = append(data, search.Result{
				Title: fmt.Sprintf("p%d-%d", page, i),
				Link:  fmt.Sprintf("http://p%d-%d.onion", page, i),
			})
		}
	}

	f.mu.Lock()
	f.successes[page]++
	f.mu.Unlock()

	if f.bare && page > 1 {
		return &search.Page{CurrentPage: page, Data: data}, nil
	}
	return &search.Page{
		Total:       f.lastPage * f.perPage,
		CurrentPage: page,
		LastPage:    f.lastPage,
		Data:        data,
	}, nil
}

func (f *fakeFetcher) callsFor(page int) []fetchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []fetchCall
	for _, c := range f.calls {
		if c.page == page {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeFetcher) successCount(page int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.successes[page]
}

type countingGate struct {
	waits   atomic.Int32
	reports atomic.Int32
}

func (g *countingGate) Wait(ctx context.Context) error {
	g.waits.Add(1)
	return ctx.Err()
}

func (g *countingGate) ReportQuotaExceeded(context.Context) {
	g.reports.Add(1)
}

type memSink struct {
	mu    sync.Mutex
	items []search.Result
}

func (s *memSink) Append(items []search.Result) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, items...)
	return len(s.items)
}

func (s *memSink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func testPool(t *testing.T, n int) *proxypool.Pool {
	t.Helper()
	proxies := make([]proxypool.Proxy, n)
	for i := range proxies {
		p, err := proxypool.Parse(fmt.Sprintf("http://relay%d.test:8080", i+1))
		if err != nil {
			t.Fatalf("Parse() error = %v", err)
		}
		proxies[i] = p
	}
	return proxypool.New(proxies, newTestLogger())
}

func testConfig(workers, failLimit int) Config {
	return Config{
		Workers:          workers,
		FailLimit:        failLimit,
		PaceInterval:     0,
		QueriesPerMinute: 30,
	}
}

func waitDone(t *testing.T, d *Dispatcher) {
	t.Helper()
	select {
	case <-d.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("dispatcher did not finish, %d workers active", d.Active())
	}
}

func assertConserved(t *testing.T, pool *proxypool.Pool) {
	t.Helper()
	available, inUse := pool.Counts()
	if available+inUse != pool.Size() {
		t.Errorf("available(%d) + in use(%d) != size(%d)", available, inUse, pool.Size())
	}
	if inUse != 0 {
		t.Errorf("%d proxies still checked out after the run", inUse)
	}
}
