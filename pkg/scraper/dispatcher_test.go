package scraper

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/Sternrassler/darksearch-client/pkg/proxypool"
	"github.com/Sternrassler/darksearch-client/pkg/search"
)

func TestDispatcher_Start_InvalidInput(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		opts    []StartOption
		wantErr error
	}{
		{"empty query", "", nil, search.ErrQueryMissing},
		{"page zero", "test", []StartOption{WithStartPage(0)}, search.ErrInvalidPage},
		{"negative page", "test", []StartOption{WithStartPage(-1)}, search.ErrInvalidPage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetcher := newFakeFetcher(3, 2)
			sink := &memSink{}
			d := NewDispatcher(fetcher, testPool(t, 2), sink, nil, testConfig(2, 10), newTestLogger())

			err := d.Start(context.Background(), tt.query, tt.opts...)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Start() error = %v, want %v", err, tt.wantErr)
			}
			if fetcher.callCount() != 0 {
				t.Errorf("%d requests sent for invalid input", fetcher.callCount())
			}
			if len(d.Workers()) != 0 {
				t.Errorf("%d workers spawned for invalid input", len(d.Workers()))
			}
			waitDone(t, d)
		})
	}
}

func TestDispatcher_SinglePage(t *testing.T) {
	fetcher := newFakeFetcher(1, 7)
	sink := &memSink{}
	pool := testPool(t, 3)
	d := NewDispatcher(fetcher, pool, sink, nil, testConfig(5, 10), newTestLogger())

	if err := d.Start(context.Background(), "test"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitDone(t, d)

	if len(d.Workers()) != 0 {
		t.Errorf("Workers = %d, want 0", len(d.Workers()))
	}
	if sink.Len() != 7 {
		t.Errorf("sink.Len() = %d, want 7", sink.Len())
	}
	if fetcher.callCount() != 1 {
		t.Errorf("requests = %d, want 1", fetcher.callCount())
	}
	if pool.Available() != 3 {
		t.Errorf("pool.Available() = %d, want 3", pool.Available())
	}
}

func TestDispatcher_FourPagesTwoWorkers(t *testing.T) {
	fetcher := newFakeFetcher(4, 5)
	sink := &memSink{}
	pool := testPool(t, 2)
	d := NewDispatcher(fetcher, pool, sink, nil, testConfig(2, 10), newTestLogger())

	if err := d.Start(context.Background(), "test"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitDone(t, d)

	plan := d.Plan()
	if plan == nil {
		t.Fatal("Plan() is nil after a successful Start")
	}
	want := []PageRange{{2, 3}, {4, 4}}
	if !reflect.DeepEqual(plan.Ranges, want) {
		t.Errorf("Ranges = %v, want %v", plan.Ranges, want)
	}
	if plan.PagesPerWorker != 2 {
		t.Errorf("PagesPerWorker = %d, want 2", plan.PagesPerWorker)
	}

	if sink.Len() != 20 {
		t.Errorf("sink.Len() = %d, want 20", sink.Len())
	}
	for page := 1; page <= 4; page++ {
		if n := fetcher.successCount(page); n != 1 {
			t.Errorf("page %d fetched %d times, want 1", page, n)
		}
	}

	for _, r := range d.Reports() {
		if r.Exit != ExitCompleted {
			t.Errorf("worker %d exit = %s, want %s", r.ID, r.Exit, ExitCompleted)
		}
		if r.PagesFetched != r.Range.Len() {
			t.Errorf("worker %d fetched %d pages, want %d", r.ID, r.PagesFetched, r.Range.Len())
		}
	}

	// the first request goes out without a relay
	if calls := fetcher.callsFor(1); len(calls) != 1 || calls[0].relay != proxypool.DirectKeyword {
		t.Errorf("first page calls = %v, want one direct call", calls)
	}

	assertConserved(t, pool)
	if d.Active() != 0 {
		t.Errorf("Active() = %d after Done", d.Active())
	}
}

func TestDispatcher_StartPage(t *testing.T) {
	fetcher := newFakeFetcher(6, 1)
	sink := &memSink{}
	d := NewDispatcher(fetcher, testPool(t, 5), sink, nil, testConfig(5, 10), newTestLogger())

	if err := d.Start(context.Background(), "test", WithStartPage(3)); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitDone(t, d)

	want := []PageRange{{4, 4}, {5, 5}, {6, 6}}
	if !reflect.DeepEqual(d.Plan().Ranges, want) {
		t.Errorf("Ranges = %v, want %v", d.Plan().Ranges, want)
	}
	if sink.Len() != 4 {
		t.Errorf("sink.Len() = %d, want 4", sink.Len())
	}
	if len(fetcher.callsFor(1)) != 0 || len(fetcher.callsFor(2)) != 0 {
		t.Error("pages before the start page must not be requested")
	}
}

func TestDispatcher_FirstFetchQuotaExceeded(t *testing.T) {
	fetcher := newFakeFetcher(4, 5)
	fetcher.fail(1, errQuota)
	sink := &memSink{}
	gate := &countingGate{}
	d := NewDispatcher(fetcher, testPool(t, 2), sink, gate, testConfig(2, 10), newTestLogger())

	err := d.Start(context.Background(), "test")
	if !errors.Is(err, search.ErrQuotaExceeded) {
		t.Fatalf("Start() error = %v, want ErrQuotaExceeded", err)
	}
	waitDone(t, d)

	if len(d.Workers()) != 0 {
		t.Errorf("Workers = %d, want 0", len(d.Workers()))
	}
	if sink.Len() != 0 {
		t.Errorf("sink.Len() = %d, want 0", sink.Len())
	}
	if fetcher.callCount() != 1 {
		t.Errorf("requests = %d, want 1 (no retry)", fetcher.callCount())
	}
	if gate.reports.Load() != 1 {
		t.Errorf("gate reports = %d, want 1", gate.reports.Load())
	}
	if d.Plan() != nil {
		t.Error("Plan() should be nil after a failed Start")
	}
}

func TestDispatcher_FirstFetchTransientFailure(t *testing.T) {
	fetcher := newFakeFetcher(4, 5)
	fetcher.fail(1, errRelayDown)
	d := NewDispatcher(fetcher, testPool(t, 2), &memSink{}, nil, testConfig(2, 10), newTestLogger())

	err := d.Start(context.Background(), "test")
	if err == nil {
		t.Fatal("Start() should fail when the first page cannot be fetched")
	}
	if search.ClassOf(err) != search.ClassServer {
		t.Errorf("ClassOf() = %q, want %q", search.ClassOf(err), search.ClassServer)
	}
	if errors.Is(err, search.ErrQuotaExceeded) {
		t.Error("server error must not be reported as quota exceeded")
	}
	waitDone(t, d)
}

func TestDispatcher_AlreadyStarted(t *testing.T) {
	d := NewDispatcher(newFakeFetcher(1, 1), testPool(t, 1), &memSink{}, nil, testConfig(1, 10), newTestLogger())

	if err := d.Start(context.Background(), "test"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := d.Start(context.Background(), "test"); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start() error = %v, want ErrAlreadyStarted", err)
	}
}

func TestDispatcher_ResultCountWithFaults(t *testing.T) {
	fetcher := newFakeFetcher(12, 3)
	fetcher.fail(2, errRelayDown, errRelayDown)
	fetcher.fail(5, errQuota)
	fetcher.fail(9, errRelayDown, errQuota, errRelayDown)
	fetcher.fail(12, errRelayDown)

	sink := &memSink{}
	pool := testPool(t, 6)
	gate := &countingGate{}
	d := NewDispatcher(fetcher, pool, sink, gate, testConfig(3, 2), newTestLogger())

	if err := d.Start(context.Background(), "test"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitDone(t, d)

	if sink.Len() != 36 {
		t.Errorf("sink.Len() = %d, want 36", sink.Len())
	}
	for page := 1; page <= 12; page++ {
		if n := fetcher.successCount(page); n != 1 {
			t.Errorf("page %d succeeded %d times, want 1", page, n)
		}
	}
	if gate.reports.Load() != 2 {
		t.Errorf("gate reports = %d, want 2", gate.reports.Load())
	}

	var items, quota, transient int
	for _, r := range d.Reports() {
		items += r.Items
		quota += r.QuotaFaults
		transient += r.TransientFaults
	}
	if items+3 != sink.Len() {
		t.Errorf("reported items %d + first page 3 != sink %d", items, sink.Len())
	}
	if quota != 2 {
		t.Errorf("quota faults = %d, want 2", quota)
	}
	if transient != 5 {
		t.Errorf("transient faults = %d, want 5", transient)
	}

	assertConserved(t, pool)
}

func TestDispatcher_Cancel(t *testing.T) {
	fetcher := newFakeFetcher(200, 2)
	fetcher.delay = 5 * time.Millisecond
	sink := &memSink{}
	pool := testPool(t, 3)
	cfg := testConfig(3, 10)
	cfg.PaceInterval = 5 * time.Millisecond
	d := NewDispatcher(fetcher, pool, sink, nil, cfg, newTestLogger())

	if err := d.Start(context.Background(), "test"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if d.Active() != 3 {
		t.Errorf("Active() = %d, want 3", d.Active())
	}

	time.Sleep(50 * time.Millisecond)
	d.Cancel()
	d.Cancel()

	select {
	case <-d.Done():
	case <-time.After(time.Second):
		t.Fatal("workers did not stop within 1s of Cancel")
	}

	pages := 0
	for _, r := range d.Reports() {
		if r.Exit != ExitCancelled {
			t.Errorf("worker %d exit = %s, want %s", r.ID, r.Exit, ExitCancelled)
		}
		pages += r.PagesFetched
	}
	if pages >= 199 {
		t.Errorf("%d pages fetched, cancellation had no effect", pages)
	}
	if sink.Len() != (pages+1)*2 {
		t.Errorf("sink.Len() = %d, want %d", sink.Len(), (pages+1)*2)
	}

	assertConserved(t, pool)
}

func TestDispatcher_ParentContextCancelsWorkers(t *testing.T) {
	fetcher := newFakeFetcher(200, 1)
	fetcher.delay = 5 * time.Millisecond
	pool := testPool(t, 2)
	d := NewDispatcher(fetcher, pool, &memSink{}, nil, testConfig(2, 10), newTestLogger())

	ctx, cancel := context.WithCancel(context.Background())
	if err := d.Start(ctx, "test"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	cancel()

	waitDone(t, d)
	assertConserved(t, pool)
}

func TestDispatcher_ProxyConservationDuringRun(t *testing.T) {
	fetcher := newFakeFetcher(40, 1)
	for page := 2; page <= 40; page += 3 {
		fetcher.fail(page, errRelayDown, errRelayDown)
	}
	pool := testPool(t, 6)
	d := NewDispatcher(fetcher, pool, &memSink{}, nil, testConfig(4, 1), newTestLogger())

	if err := d.Start(context.Background(), "test"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	for {
		available, inUse := pool.Counts()
		if available+inUse != pool.Size() {
			t.Fatalf("available(%d) + in use(%d) != size(%d)", available, inUse, pool.Size())
		}
		select {
		case <-d.Done():
			assertConserved(t, pool)
			return
		default:
		}
	}
}

type fetcherFunc func(ctx context.Context, relay proxypool.Proxy, query string, page int) (*search.Page, error)

func (f fetcherFunc) FetchPage(ctx context.Context, relay proxypool.Proxy, query string, page int) (*search.Page, error) {
	return f(ctx, relay, query, page)
}

func TestDispatcher_FirstPageWithoutLastPage(t *testing.T) {
	fetcher := fetcherFunc(func(_ context.Context, _ proxypool.Proxy, _ string, page int) (*search.Page, error) {
		return &search.Page{CurrentPage: page, Data: []search.Result{{Title: "a"}}}, nil
	})
	sink := &memSink{}
	d := NewDispatcher(fetcher, testPool(t, 2), sink, nil, testConfig(2, 10), newTestLogger())

	err := d.Start(context.Background(), "test")
	if !errors.Is(err, search.ErrMalformedResponse) {
		t.Fatalf("Start() error = %v, want ErrMalformedResponse", err)
	}
	if search.ClassOf(err) != search.ClassDecode {
		t.Errorf("ClassOf() = %q, want %q", search.ClassOf(err), search.ClassDecode)
	}
	if sink.Len() != 0 {
		t.Errorf("sink has %d results, want 0", sink.Len())
	}
	waitDone(t, d)
}

func TestDispatcher_WorkerPagesWithoutBounds(t *testing.T) {
	fetcher := newFakeFetcher(6, 3)
	fetcher.bare = true
	sink := &memSink{}
	pool := testPool(t, 2)
	d := NewDispatcher(fetcher, pool, sink, nil, testConfig(2, 10), newTestLogger())

	if err := d.Start(context.Background(), "test"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitDone(t, d)

	if sink.Len() != 18 {
		t.Errorf("sink has %d results, want 18", sink.Len())
	}
	for page := 1; page <= 6; page++ {
		if n := len(fetcher.callsFor(page)); n != 1 {
			t.Errorf("page %d requested %d times, want 1", page, n)
		}
	}
	for _, r := range d.Reports() {
		if r.TransientFaults != 0 || r.Rotations != 0 {
			t.Errorf("worker %d: %d faults, %d rotations, want none", r.ID, r.TransientFaults, r.Rotations)
		}
	}
}
