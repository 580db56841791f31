package v4vkit

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFetchHTTP(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter,
		r *http.Request) {

		if r.Header.Get("User-Agent") != "v4vkit" {
			http.Error(w, "bad user agent", http.StatusForbidden)
			return
		}
		if r.URL.Path != "/feed.xml" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(wellFormedFeed))
	}))
	defer server.Close()

	// Loopback URLs bypass the relay.
	fetcher, err := NewFetcher(FetchConfig{
		RelayURL: "https://relay.invalid/?url=",
	})
	require.NoError(t, err)

	data, err := fetcher.Fetch(context.Background(), server.URL+"/feed.xml")
	require.NoError(t, err)
	require.Equal(t, wellFormedFeed, string(data))

	_, err = fetcher.Fetch(context.Background(), server.URL+"/missing")
	require.Error(t, err)
	require.Contains(t, err.Error(), "404")
}

func TestFetchFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.xml")
	require.NoError(t, os.WriteFile(path, []byte(wellFormedFeed), 0o644))

	fetcher, err := NewFetcher(FetchConfig{})
	require.NoError(t, err)

	data, err := fetcher.Fetch(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, wellFormedFeed, string(data))

	_, err = fetcher.Fetch(context.Background(),
		filepath.Join(t.TempDir(), "nope.xml"))
	require.Error(t, err)
}

func TestRelayed(t *testing.T) {
	fetcher, err := NewFetcher(FetchConfig{
		RelayURL: "https://corsproxy.io/?url=",
	})
	require.NoError(t, err)

	require.Equal(t,
		"https://corsproxy.io/?url=https%3A%2F%2Fexample.com%2Ffeed.xml",
		fetcher.relayed("https://example.com/feed.xml"))
	require.Equal(t, "http://localhost:8080/feed.xml",
		fetcher.relayed("http://localhost:8080/feed.xml"))
	require.Equal(t, "http://127.0.0.1/feed.xml",
		fetcher.relayed("http://127.0.0.1/feed.xml"))
	require.Equal(t, "http://[::1]:80/feed.xml",
		fetcher.relayed("http://[::1]:80/feed.xml"))

	direct, err := NewFetcher(FetchConfig{})
	require.NoError(t, err)
	require.Equal(t, "https://example.com/feed.xml",
		direct.relayed("https://example.com/feed.xml"))
}

func TestFetchRateLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter,
		_ *http.Request) {

		_, _ = w.Write([]byte(wellFormedFeed))
	}))
	defer server.Close()

	fetcher, err := NewFetcher(FetchConfig{RateLimit: 0.001})
	require.NoError(t, err)

	// The first request uses the burst, the second would wait far past
	// the deadline.
	_, err = fetcher.Fetch(context.Background(), server.URL)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err = fetcher.Fetch(ctx, server.URL)
	require.Error(t, err)
}

func TestSocksProxyClient(t *testing.T) {
	fetcher, err := NewFetcher(FetchConfig{
		SocksProxy:    "127.0.0.1:9050",
		SocksUser:     "user",
		SocksPassword: "pass",
	})
	require.NoError(t, err)

	transport, ok := fetcher.Client().Transport.(*http.Transport)
	require.True(t, ok)
	require.NotNil(t, transport.DialContext)
}

func TestReadFeedBody(t *testing.T) {
	data, err := readFeedBody(strings.NewReader("12345"), 5)
	require.NoError(t, err)
	require.Equal(t, "12345", string(data))

	_, err = readFeedBody(strings.NewReader("123456"), 5)
	require.ErrorIs(t, err, ErrFeedTooLarge)
	require.Equal(t, "feed exceeds 20 MiB", ErrFeedTooLarge.Error())
}

func TestFetchTooLarge(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter,
		_ *http.Request) {

		_, _ = w.Write(bytes.Repeat([]byte(" "), maxFeedSize+1))
	}))
	defer server.Close()

	fetcher, err := NewFetcher(FetchConfig{})
	require.NoError(t, err)

	_, err = fetcher.Fetch(context.Background(), server.URL+"/feed.xml")
	require.ErrorIs(t, err, ErrFeedTooLarge)
}
