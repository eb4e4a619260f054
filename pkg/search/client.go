// Package search provides the HTTP client for the DarkSearch query API,
// with per-relay transports and error classification.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/Sternrassler/darksearch-client/pkg/proxypool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for search requests.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "darksearch_requests_total",
		Help: "Total search API requests by outcome",
	}, []string{"outcome"})

	requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "darksearch_request_duration_seconds",
		Help:    "Search API request duration in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "darksearch_errors_total",
		Help: "Total search API errors by class",
	}, []string{"class"})
)

const (
	// DefaultEndpoint is the public DarkSearch API root.
	DefaultEndpoint = "https://darksearch.io/api/"

	// DefaultUserAgent identifies the client in upstream logs.
	DefaultUserAgent = "darksearch-client/0.1.0"

	// maxBodySize bounds how much of a response body is decoded.
	maxBodySize = 10 << 20
)

// Config holds the client configuration.
type Config struct {
	// Endpoint is the API root; "search" is resolved against it.
	Endpoint string

	// UserAgent header sent with every request
	UserAgent string

	// Timeout bounds every request, including connecting through the relay.
	Timeout time.Duration
}

// DefaultConfig returns the configuration for the public API.
func DefaultConfig() Config {
	return Config{
		Endpoint:  DefaultEndpoint,
		UserAgent: DefaultUserAgent,
		Timeout:   30 * time.Second,
	}
}

// Client fetches result pages. It is safe for concurrent use; one
// *http.Client is kept per relay so connections are reused.
type Client struct {
	search *url.URL
	config Config
	logger zerolog.Logger

	mu      sync.Mutex
	clients map[string]*http.Client
}

// New creates a new search client.
func New(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be positive (got %s)", cfg.Timeout)
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}

	base, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("endpoint must be an absolute http(s) URL, got %q", cfg.Endpoint)
	}
	if len(base.Path) == 0 || base.Path[len(base.Path)-1] != '/' {
		base.Path += "/"
	}

	return &Client{
		search:  base.ResolveReference(&url.URL{Path: "search"}),
		config:  cfg,
		logger:  log.With().Str("component", "search-client").Logger(),
		clients: make(map[string]*http.Client),
	}, nil
}

// PageURL returns the request URL for a query page.
func (c *Client) PageURL(query string, page int) string {
	u := *c.search
	u.RawQuery = url.Values{
		"query": []string{query},
		"page":  []string{strconv.Itoa(page)},
	}.Encode()
	return u.String()
}

// FetchPage requests one page of results through relay.
//
// A 429 answer yields an *Error wrapping ErrQuotaExceeded. Every other
// failure yields an *Error with the matching ErrorClass.
func (c *Client) FetchPage(ctx context.Context, relay proxypool.Proxy, query string, page int) (*Page, error) {
	if query == "" {
		return nil, ErrQueryMissing
	}
	if page < 1 {
		return nil, fmt.Errorf("%w (got %d)", ErrInvalidPage, page)
	}

	httpClient, err := c.httpClient(relay)
	if err != nil {
		errorsTotal.WithLabelValues(string(ClassNetwork)).Inc()
		return nil, &Error{Class: ClassNetwork, Message: "build transport", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.PageURL(query, page), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	startTime := time.Now()
	defer func() {
		requestDuration.Observe(time.Since(startTime).Seconds())
	}()

	c.logger.Debug().
		Str("proxy", relay.String()).
		Int("page", page).
		Msg("Executing search request")

	resp, err := httpClient.Do(req)
	if err != nil {
		errorsTotal.WithLabelValues(string(ClassNetwork)).Inc()
		requestsTotal.WithLabelValues("network_error").Inc()
		return nil, &Error{Class: ClassNetwork, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// drain so the connection can be reused
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

		class := classifyStatus(resp.StatusCode)
		errorsTotal.WithLabelValues(string(class)).Inc()

		if class == ClassRateLimit {
			requestsTotal.WithLabelValues("quota_exceeded").Inc()
			return nil, &Error{
				StatusCode: resp.StatusCode,
				Class:      class,
				Message:    resp.Status,
				Err:        ErrQuotaExceeded,
			}
		}

		requestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()
		return nil, &Error{
			StatusCode: resp.StatusCode,
			Class:      class,
			Message:    resp.Status,
		}
	}

	var wire wirePage
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodySize)).Decode(&wire); err != nil {
		errorsTotal.WithLabelValues(string(ClassDecode)).Inc()
		requestsTotal.WithLabelValues("decode_error").Inc()
		return nil, &Error{StatusCode: resp.StatusCode, Class: ClassDecode, Message: "decode response", Err: err}
	}

	requestsTotal.WithLabelValues("success").Inc()
	return wire.toPage(page), nil
}

// httpClient returns the cached client for relay, creating it on first use.
func (c *Client) httpClient(relay proxypool.Proxy) (*http.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if hc, ok := c.clients[relay.Key()]; ok {
		return hc, nil
	}

	transport, err := relay.Transport(c.config.Timeout)
	if err != nil {
		return nil, err
	}
	hc := &http.Client{
		Transport: transport,
		Timeout:   c.config.Timeout,
	}
	c.clients[relay.Key()] = hc
	return hc, nil
}

// Close releases idle connections held by every relay transport.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, hc := range c.clients {
		hc.CloseIdleConnections()
	}
	return nil
}
