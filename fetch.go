package v4vkit

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/net/proxy"
	"golang.org/x/time/rate"
)

// maxFeedSize bounds how much of a response body is read.
const maxFeedSize = 20 << 20

type FetchConfig struct {
	Timeout   time.Duration
	UserAgent string

	// RelayURL is a CORS-style relay prefix such as
	// "https://corsproxy.io/?url=". The escaped feed URL is appended to
	// it. Local URLs never go through the relay.
	RelayURL string

	// SocksProxy is an optional host:port of a SOCKS5 proxy.
	SocksProxy    string
	SocksUser     string
	SocksPassword string

	// RateLimit caps outgoing requests per second. Zero means no limit.
	RateLimit float64
}

// Fetcher retrieves raw feed bytes. It knows nothing about XML, the body is
// handed to the parser as is.
type Fetcher struct {
	cfg     FetchConfig
	client  *http.Client
	limiter *rate.Limiter
}

func NewFetcher(cfg FetchConfig) (*Fetcher, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "v4vkit"
	}

	client, err := newHTTPClient(cfg)
	if err != nil {
		return nil, err
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}

	return &Fetcher{cfg: cfg, client: client, limiter: limiter}, nil
}

// Client exposes the configured HTTP client so the LNURL round trips use
// the same proxy settings as feed fetches.
func (f *Fetcher) Client() *http.Client {
	return f.client
}

func newHTTPClient(cfg FetchConfig) (*http.Client, error) {
	client := &http.Client{
		Timeout: cfg.Timeout,
	}
	if cfg.SocksProxy == "" {
		return client, nil
	}

	var auth *proxy.Auth
	if cfg.SocksUser != "" && cfg.SocksPassword != "" {
		auth = &proxy.Auth{User: cfg.SocksUser, Password: cfg.SocksPassword}
	}

	dialer, err := proxy.SOCKS5("tcp", cfg.SocksProxy, auth, &net.Dialer{
		Timeout:   20 * time.Second,
		KeepAlive: -1,
	})
	if err != nil {
		return nil, fmt.Errorf("socks proxy %s: %w", cfg.SocksProxy, err)
	}

	client.Transport = &http.Transport{
		DialContext: func(ctx context.Context, network,
			addr string) (net.Conn, error) {

			if d, ok := dialer.(proxy.ContextDialer); ok {
				return d.DialContext(ctx, network, addr)
			}
			return dialer.Dial(network, addr)
		},
	}

	return client, nil
}

// Fetch returns the body behind rawURL. Anything that is not an http(s)
// URL is read from disk.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if !strings.HasPrefix(rawURL, "http://") &&
		!strings.HasPrefix(rawURL, "https://") {

		data, err := os.ReadFile(rawURL)
		if err != nil {
			return nil, fmt.Errorf("read feed file: %w", err)
		}
		return data, nil
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	target := f.relayed(rawURL)
	log.Debugf("[fetch] GET %s", target)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "application/rss+xml, application/xml, "+
		"text/xml;q=0.9, */*;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET request error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch %s: %s", rawURL, resp.Status)
	}

	data, err := readFeedBody(resp.Body, maxFeedSize)
	if err != nil {
		return nil, fmt.Errorf("could not read response body: %w", err)
	}
	log.Debugf("[fetch] %s: %d bytes", rawURL, len(data))

	return data, nil
}

// readFeedBody reads at most limit bytes and fails instead of truncating
// a longer body.
func readFeedBody(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, ErrFeedTooLarge
	}

	return data, nil
}

func (f *Fetcher) relayed(rawURL string) string {
	if f.cfg.RelayURL == "" || isLocalURL(rawURL) {
		return rawURL
	}

	return f.cfg.RelayURL + url.QueryEscape(rawURL)
}

func isLocalURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)

	return ip != nil && ip.IsLoopback()
}
