package v4vkit

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func newTestServer(t *testing.T) (*httptest.Server, *httptest.Server) {
	t.Helper()

	s, err := NewServer(&Config{
		ListenAddr: "127.0.0.1:0",
		PublicURL:  "http://localhost:8080",
		Feed:       testFeedConfig(),
	})
	require.NoError(t, err)
	s.now = func() time.Time {
		return time.Date(2024, 2, 5, 12, 0, 0, 0, time.UTC)
	}

	api := httptest.NewServer(s.Handler())
	t.Cleanup(api.Close)

	feeds := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter,
		r *http.Request) {

		switch r.URL.Path {
		case "/feed.xml":
			_, _ = w.Write([]byte(wellFormedFeed))
		case "/broken.xml":
			_, _ = w.Write([]byte(`<rss><channel><title>Broken</title`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(feeds.Close)

	return api, feeds
}

func httpGet(t *testing.T, rawURL string) (int, string) {
	t.Helper()

	resp, err := http.Get(rawURL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, string(body)
}

func TestServerHealth(t *testing.T) {
	api, _ := newTestServer(t)

	status, body := httpGet(t, api.URL+"/health")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "OK", body)
}

func TestServerValidateBody(t *testing.T) {
	api, _ := newTestServer(t)

	resp, err := http.Post(api.URL+"/validate", "application/rss+xml",
		strings.NewReader(wellFormedFeed))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	report := gjson.ParseBytes(body)
	require.True(t, report.Get("isValid").Bool())
	require.EqualValues(t, 2, report.Get("info.itemCount").Int())
	require.Equal(t, "namespace", report.Get("info.lookupStrategy").String())
	require.Equal(t, "channel", report.Get("valueBlocks.0.scope").String())
	require.EqualValues(t, -1, report.Get("valueBlocks.0.episodeIndex").Int())
	require.Equal(t, "chadf@getalby.com",
		report.Get("valueBlocks.0.recipients.0.address").String())
}

func TestServerValidateParseError(t *testing.T) {
	api, _ := newTestServer(t)

	resp, err := http.Post(api.URL+"/validate", "text/xml",
		strings.NewReader(`<!DOCTYPE html><html></html>`))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	report := gjson.ParseBytes(body)
	require.False(t, report.Get("isValid").Bool())
	require.Contains(t, report.Get("errors.0").String(),
		"XML parsing failed")
}

func TestServerValidateTooLarge(t *testing.T) {
	api, _ := newTestServer(t)

	body := bytes.Repeat([]byte(" "), maxFeedSize+1)
	resp, err := http.Post(api.URL+"/validate", "text/xml",
		bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestServerValidateURL(t *testing.T) {
	api, feeds := newTestServer(t)

	status, body := httpGet(t, api.URL+"/validate?url="+
		url.QueryEscape(feeds.URL+"/feed.xml"))
	require.Equal(t, http.StatusOK, status)
	require.True(t, gjson.Get(body, "isValid").Bool())

	status, body = httpGet(t, api.URL+"/validate?url="+
		url.QueryEscape(feeds.URL+"/broken.xml"))
	require.Equal(t, http.StatusUnprocessableEntity, status)
	require.False(t, gjson.Get(body, "isValid").Bool())

	status, body = httpGet(t, api.URL+"/validate?url="+
		url.QueryEscape(feeds.URL+"/missing.xml"))
	require.Equal(t, http.StatusBadGateway, status)
	require.Contains(t, gjson.Get(body, "errors.0").String(), "404")

	status, _ = httpGet(t, api.URL+"/validate")
	require.Equal(t, http.StatusBadRequest, status)

	// Local paths must not be reachable through the API.
	status, _ = httpGet(t, api.URL+"/validate?url=%2Fetc%2Fpasswd")
	require.Equal(t, http.StatusBadRequest, status)
}

func TestServerRecipients(t *testing.T) {
	api, feeds := newTestServer(t)
	feedURL := url.QueryEscape(feeds.URL + "/feed.xml")

	status, body := httpGet(t, api.URL+"/recipients?url="+feedURL)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "channel", gjson.Get(body, "scope").String())
	require.Equal(t, "1000", gjson.Get(body, "suggested").String())
	require.EqualValues(t, 2, gjson.Get(body, "recipients.#").Int())

	status, body = httpGet(t, api.URL+"/recipients?url="+feedURL+
		"&episode=ep-1")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "episode", gjson.Get(body, "scope").String())
	require.Equal(t, "Guest", gjson.Get(body, "recipients.0.name").String())

	status, body = httpGet(t, api.URL+"/recipients?url="+feedURL+
		"&episode=ep-2")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "channel", gjson.Get(body, "scope").String())

	status, _ = httpGet(t, api.URL+"/recipients?url="+feedURL+
		"&episode=nope")
	require.Equal(t, http.StatusNotFound, status)

	status, _ = httpGet(t, api.URL+"/recipients")
	require.Equal(t, http.StatusBadRequest, status)
}

func TestServerFeed(t *testing.T) {
	api, _ := newTestServer(t)

	resp, err := http.Get(api.URL + "/feed.xml")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "application/rss+xml; charset=utf-8",
		resp.Header.Get("Content-Type"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	report, err := ValidateFeed(body)
	require.NoError(t, err)
	require.True(t, report.IsValid)
	require.Empty(t, report.Warnings)
}

func TestServerMethodNotAllowed(t *testing.T) {
	api, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodDelete, api.URL+"/validate", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestServerCachesFeeds(t *testing.T) {
	var hits int32
	feeds := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter,
		_ *http.Request) {

		atomic.AddInt32(&hits, 1)
		_, _ = w.Write([]byte(wellFormedFeed))
	}))
	defer feeds.Close()

	s, err := NewServer(&Config{
		CacheTTL: time.Minute,
		Feed:     testFeedConfig(),
	})
	require.NoError(t, err)

	api := httptest.NewServer(s.Handler())
	defer api.Close()

	feedURL := url.QueryEscape(feeds.URL + "/feed.xml")
	for i := 0; i < 3; i++ {
		status, _ := httpGet(t, api.URL+"/validate?url="+feedURL)
		require.Equal(t, http.StatusOK, status)
	}
	status, _ := httpGet(t, api.URL+"/recipients?url="+feedURL)
	require.Equal(t, http.StatusOK, status)

	require.EqualValues(t, 1, atomic.LoadInt32(&hits))
}

func TestServerQR(t *testing.T) {
	api, _ := newTestServer(t)

	resp, err := http.Get(api.URL + "/lnurl/chadf@getalby.com/qr.png")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "image/png", resp.Header.Get("Content-Type"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(body, []byte("\x89PNG")))

	status, _ := httpGet(t, api.URL+"/lnurl/not-an-address/qr.png")
	require.Equal(t, http.StatusBadRequest, status)
}
