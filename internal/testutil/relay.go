package testutil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// Relay is a forward HTTP proxy that hands requests to a MockSearch
// in-process. It can be switched to failing mode to emulate a dead relay.
type Relay struct {
	server  *httptest.Server
	target  http.Handler
	mu      sync.RWMutex
	failing bool

	requestCount int
}

// NewRelay starts a relay forwarding to target.
func NewRelay(target http.Handler) *Relay {
	relay := &Relay{target: target}
	relay.server = httptest.NewServer(http.HandlerFunc(relay.serve))
	return relay
}

// Addr returns the relay as a "host:port" proxy list entry.
func (r *Relay) Addr() string {
	return strings.TrimPrefix(r.server.URL, "http://")
}

// URL returns the relay as an http:// proxy URL.
func (r *Relay) URL() string {
	return r.server.URL
}

// Close shuts down the relay.
func (r *Relay) Close() {
	r.server.Close()
}

// SetFailing makes the relay answer 502 Bad Gateway to every request.
func (r *Relay) SetFailing(failing bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failing = failing
}

// GetRequestCount returns the number of requests the relay received.
func (r *Relay) GetRequestCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.requestCount
}

func (r *Relay) serve(w http.ResponseWriter, req *http.Request) {
	r.mu.Lock()
	r.requestCount++
	failing := r.failing
	r.mu.Unlock()

	if failing {
		http.Error(w, "relay unavailable", http.StatusBadGateway)
		return
	}

	// HEAD probes from the proxy validator only need a healthy answer
	if req.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}

	r.target.ServeHTTP(w, req)
}
