package proxypool

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/proxy"
	"golang.org/x/sync/errgroup"
)

// DefaultValidationTarget is probed through each relay before a run.
const DefaultValidationTarget = "https://darksearch.io/"

// Validator probes relays and filters out the ones that cannot reach the target.
type Validator struct {
	target      *url.URL
	timeout     time.Duration
	concurrency int
	logger      zerolog.Logger
}

// NewValidator creates a validator probing target with a per-proxy timeout.
func NewValidator(target string, timeout time.Duration, concurrency int, logger zerolog.Logger) (*Validator, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("parse validation target: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("validation target must be http(s), got %q", target)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if concurrency <= 0 {
		concurrency = 5
	}
	return &Validator{
		target:      u,
		timeout:     timeout,
		concurrency: concurrency,
		logger:      logger,
	}, nil
}

// Validate probes every proxy concurrently and returns the healthy ones in
// input order. Direct handles are always kept.
func (v *Validator) Validate(ctx context.Context, proxies []Proxy) []Proxy {
	if len(proxies) == 0 {
		return proxies
	}

	v.logger.Info().
		Int("count", len(proxies)).
		Int("concurrency", v.concurrency).
		Msg("Validating proxies")

	healthy := make([]bool, len(proxies))
	var g errgroup.Group
	g.SetLimit(v.concurrency)

	for i, p := range proxies {
		g.Go(func() error {
			start := time.Now()
			if err := v.Check(ctx, p); err != nil {
				v.logger.Warn().Err(err).Str("proxy", p.String()).Msg("Proxy failed validation")
				return nil
			}
			v.logger.Debug().
				Str("proxy", p.String()).
				Dur("latency", time.Since(start)).
				Msg("Proxy validated")
			healthy[i] = true
			return nil
		})
	}
	_ = g.Wait()

	out := make([]Proxy, 0, len(proxies))
	for i, ok := range healthy {
		if ok {
			out = append(out, proxies[i])
		}
	}

	v.logger.Info().
		Int("healthy", len(out)).
		Int("rejected", len(proxies)-len(out)).
		Msg("Proxy validation finished")

	return out
}

// Check probes a single proxy.
func (v *Validator) Check(ctx context.Context, p Proxy) error {
	if p.IsDirect() {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	if p.IsSOCKS() {
		return v.checkSOCKS(ctx, p)
	}
	return v.checkHTTP(ctx, p)
}

// checkHTTP sends a HEAD request to the target through the relay.
func (v *Validator) checkHTTP(ctx context.Context, p Proxy) error {
	transport, err := p.Transport(v.timeout)
	if err != nil {
		return err
	}
	defer transport.CloseIdleConnections()

	client := &http.Client{Transport: transport, Timeout: v.timeout}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, v.target.String(), nil)
	if err != nil {
		return fmt.Errorf("create probe request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return fmt.Errorf("received non-successful status code: %d", resp.StatusCode)
	}
	return nil
}

// checkSOCKS opens a TCP connection to the target through the relay.
func (v *Validator) checkSOCKS(ctx context.Context, p Proxy) error {
	d, err := proxy.FromURL(p.URL(), &net.Dialer{Timeout: v.timeout})
	if err != nil {
		return fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
	}
	cd, ok := d.(proxy.ContextDialer)
	if !ok {
		return fmt.Errorf("SOCKS5 dialer does not support contexts")
	}

	conn, err := cd.DialContext(ctx, "tcp", targetAddr(v.target))
	if err != nil {
		return err
	}
	return conn.Close()
}

func targetAddr(u *url.URL) string {
	port := u.Port()
	if port == "" {
		port = "80"
		if u.Scheme == "https" {
			port = "443"
		}
	}
	return net.JoinHostPort(u.Hostname(), port)
}
