// Package proxypool manages the relay addresses that workers route their
// search requests through.
//
// A Pool hands out each proxy to at most one holder at a time. Proxies are
// loaded once at startup and only change custodian afterwards; the pool
// never creates or destroys handles.
package proxypool

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var (
	proxiesAvailable = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "darksearch_proxies_available",
		Help: "Number of proxies currently in the pool and not checked out",
	})

	poolExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "darksearch_proxy_pool_exhausted_total",
		Help: "Total number of checkouts that found the proxy pool empty",
	})
)

// Pool is a mutex-guarded set of proxies supporting exclusive checkout.
// Checkout order is LIFO; callers must not rely on any ordering.
type Pool struct {
	mu         sync.Mutex
	available  []Proxy
	checkedOut map[string]Proxy
	size       int
	logger     zerolog.Logger
}

// New creates a pool from the given proxies. Duplicate entries are
// collapsed so the exclusivity invariant holds per relay address.
func New(proxies []Proxy, logger zerolog.Logger) *Pool {
	seen := make(map[string]struct{}, len(proxies))
	available := make([]Proxy, 0, len(proxies))
	for _, p := range proxies {
		if _, dup := seen[p.Key()]; dup {
			logger.Debug().Str("proxy", p.String()).Msg("Skipping duplicate proxy")
			continue
		}
		seen[p.Key()] = struct{}{}
		available = append(available, p)
	}

	proxiesAvailable.Set(float64(len(available)))

	return &Pool{
		available:  available,
		checkedOut: make(map[string]Proxy, len(available)),
		size:       len(available),
		logger:     logger,
	}
}

// Checkout removes one proxy from the pool and hands it to the caller.
// Returns ErrPoolExhausted when every proxy is checked out.
func (p *Pool) Checkout() (Proxy, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.available)
	if n == 0 {
		poolExhaustedTotal.Inc()
		return Proxy{}, ErrPoolExhausted
	}

	proxy := p.available[n-1]
	p.available = p.available[:n-1]
	p.checkedOut[proxy.Key()] = proxy
	proxiesAvailable.Set(float64(len(p.available)))

	return proxy, nil
}

// Release returns a checked-out proxy to the pool.
func (p *Pool) Release(proxy Proxy) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := proxy.Key()
	if _, ok := p.checkedOut[key]; !ok {
		return fmt.Errorf("release %s: %w", proxy, ErrNotCheckedOut)
	}
	delete(p.checkedOut, key)
	p.available = append(p.available, proxy)
	proxiesAvailable.Set(float64(len(p.available)))

	return nil
}

// Available returns the number of proxies ready for checkout.
func (p *Pool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.available)
}

// InUse returns the number of proxies currently checked out.
func (p *Pool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.checkedOut)
}

// Counts returns available and checked-out counts from one consistent view.
func (p *Pool) Counts() (available, inUse int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.available), len(p.checkedOut)
}

// Size returns the number of distinct proxies the pool was created with.
// The two values from Counts always sum to Size.
func (p *Pool) Size() int {
	return p.size
}
