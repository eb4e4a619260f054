package proxypool

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/proxy"
)

// DirectKeyword selects no relay at all when used in a proxy list.
const DirectKeyword = "direct"

// Proxy is an opaque relay address. The zero value routes directly.
type Proxy struct {
	u *url.URL
}

// Direct returns the handle that bypasses any relay.
func Direct() Proxy {
	return Proxy{}
}

// Parse converts a proxy list entry into a handle.
//
// Accepted forms: "host:port" (HTTP proxy), "http://…", "https://…",
// "socks5://…", "socks5h://…" and the keyword "direct".
func Parse(raw string) (Proxy, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Proxy{}, fmt.Errorf("%w: empty entry", ErrInvalidProxy)
	}
	if strings.EqualFold(raw, DirectKeyword) {
		return Direct(), nil
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Proxy{}, fmt.Errorf("%w: %v", ErrInvalidProxy, err)
	}

	switch u.Scheme {
	case "http", "https", "socks5", "socks5h":
	default:
		return Proxy{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidProxy, u.Scheme)
	}
	if u.Hostname() == "" || u.Port() == "" {
		return Proxy{}, fmt.Errorf("%w: %q needs host and port", ErrInvalidProxy, raw)
	}

	return Proxy{u: u}, nil
}

// IsDirect reports whether the handle routes without a relay.
func (p Proxy) IsDirect() bool {
	return p.u == nil
}

// IsSOCKS reports whether the relay speaks SOCKS5.
func (p Proxy) IsSOCKS() bool {
	return p.u != nil && strings.HasPrefix(p.u.Scheme, "socks5")
}

// URL returns a copy of the relay URL, nil for direct.
func (p Proxy) URL() *url.URL {
	if p.u == nil {
		return nil
	}
	c := *p.u
	return &c
}

// Key identifies the relay inside a pool.
func (p Proxy) Key() string {
	if p.u == nil {
		return DirectKeyword
	}
	return p.u.String()
}

// String returns the relay address with credentials redacted.
func (p Proxy) String() string {
	if p.u == nil {
		return DirectKeyword
	}
	return p.u.Redacted()
}

// Transport builds an HTTP transport that routes through the relay.
// SOCKS5 relays are dialed through golang.org/x/net/proxy.
func (p Proxy) Transport(dialTimeout time.Duration) (*http.Transport, error) {
	base := http.DefaultTransport.(*http.Transport).Clone()
	base.Proxy = nil

	dialer := &net.Dialer{
		Timeout:   dialTimeout,
		KeepAlive: 30 * time.Second,
	}
	base.DialContext = dialer.DialContext

	switch {
	case p.u == nil:
		return base, nil

	case p.IsSOCKS():
		d, err := proxy.FromURL(p.u, dialer)
		if err != nil {
			return nil, fmt.Errorf("socks5 dialer for %s: %w", p, err)
		}
		cd, ok := d.(proxy.ContextDialer)
		if !ok {
			return nil, fmt.Errorf("socks5 dialer for %s does not support contexts", p)
		}
		base.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			return cd.DialContext(ctx, network, addr)
		}
		return base, nil

	default:
		base.Proxy = http.ProxyURL(p.u)
		return base, nil
	}
}
