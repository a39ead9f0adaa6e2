package latency

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/proxy"
)

// Strategy defines how a single round trip is measured.
type Strategy interface {
	// Name returns the strategy identifier ("tcp" or "http").
	Name() string
	// Measure returns the round-trip time to target in milliseconds,
	// going through the SOCKS5 proxy at proxyAddr. An empty proxyAddr
	// connects directly.
	Measure(ctx context.Context, proxyAddr, target string) (latencyMS int, err error)
}

// NewStrategy creates a Strategy by name. Valid names: "tcp", "http".
func NewStrategy(name string) (Strategy, error) {
	switch name {
	case "http", "":
		return &HTTPStrategy{}, nil
	case "tcp":
		return &TCPStrategy{}, nil
	default:
		return nil, fmt.Errorf("unknown test strategy: %s (available: tcp, http)", name)
	}
}

// dialer returns a context dialer through the SOCKS5 proxy, or a direct
// dialer when proxyAddr is empty.
func dialer(proxyAddr string) (proxy.ContextDialer, error) {
	direct := &net.Dialer{}
	if proxyAddr == "" {
		return direct, nil
	}
	d, err := proxy.SOCKS5("tcp", proxyAddr, nil, direct)
	if err != nil {
		return nil, fmt.Errorf("failed to create socks5 dialer: %w", err)
	}
	cd, ok := d.(proxy.ContextDialer)
	if !ok {
		return nil, fmt.Errorf("socks5 dialer does not support contexts")
	}
	return cd, nil
}

// HTTPStrategy measures a GET of the target through the proxy. It
// validates the whole proxy chain, not only reachability. 2xx and 3xx
// responses count as success; redirects are not followed.
type HTTPStrategy struct{}

func (s *HTTPStrategy) Name() string { return "http" }

func (s *HTTPStrategy) Measure(ctx context.Context, proxyAddr, target string) (int, error) {
	d, err := dialer(proxyAddr)
	if err != nil {
		return 0, err
	}

	transport := &http.Transport{
		DialContext:           d.DialContext,
		DisableKeepAlives:     true,
		ResponseHeaderTimeout: 10 * time.Second,
	}
	defer transport.CloseIdleConnections()

	client := &http.Client{
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("http request failed: %w", err)
	}
	resp.Body.Close()
	elapsed := time.Since(start)

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return 0, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return int(elapsed.Milliseconds()), nil
}

// TCPStrategy measures how long the proxy takes to open a TCP stream to
// the target's host and port. Lighter than HTTP, but it does not prove
// the target answers.
type TCPStrategy struct{}

func (s *TCPStrategy) Name() string { return "tcp" }

func (s *TCPStrategy) Measure(ctx context.Context, proxyAddr, target string) (int, error) {
	address, err := targetAddress(target)
	if err != nil {
		return 0, err
	}
	d, err := dialer(proxyAddr)
	if err != nil {
		return 0, err
	}

	start := time.Now()
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return 0, fmt.Errorf("tcp handshake failed: %w", err)
	}
	elapsed := time.Since(start)
	conn.Close()

	return int(elapsed.Milliseconds()), nil
}

// targetAddress turns a URL into host:port, defaulting the port by scheme.
func targetAddress(target string) (string, error) {
	u, err := url.Parse(target)
	if err != nil || u.Hostname() == "" {
		return "", fmt.Errorf("invalid target url %q", target)
	}
	port := u.Port()
	if port == "" {
		switch u.Scheme {
		case "http":
			port = "80"
		default:
			port = "443"
		}
	}
	return net.JoinHostPort(u.Hostname(), port), nil
}
