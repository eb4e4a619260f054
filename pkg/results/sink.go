// Package results collects search results from concurrent workers and
// exports them as a JSON document.
package results

import (
	"sync"

	"github.com/Sternrassler/darksearch-client/pkg/search"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var resultsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "darksearch_results_total",
	Help: "Total number of search results collected",
})

// Sink is an append-only, concurrency-safe collection of results.
// Items of one Append call stay contiguous and in order.
type Sink struct {
	mu    sync.RWMutex
	items []search.Result
}

// NewSink creates an empty sink.
func NewSink() *Sink {
	return &Sink{items: make([]search.Result, 0, 64)}
}

// Append adds items and returns the new length.
func (s *Sink) Append(items []search.Result) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = append(s.items, items...)
	resultsTotal.Add(float64(len(items)))
	return len(s.items)
}

// Len returns the number of collected results.
func (s *Sink) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Snapshot returns a copy of the collected results.
func (s *Sink) Snapshot() []search.Result {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]search.Result, len(s.items))
	copy(out, s.items)
	return out
}
