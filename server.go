package v4vkit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/patrickmn/go-cache"
	log "github.com/sirupsen/logrus"
	"github.com/skip2/go-qrcode"
)

// qrSize is the edge length of served QR codes in pixels.
const qrSize = 320

type Config struct {
	// ListenAddr is the address the HTTP server binds to.
	ListenAddr string

	// PublicURL is how clients reach us, used in the banner.
	PublicURL string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// CacheTTL is how long fetched feeds are reused. Zero disables the
	// cache.
	CacheTTL time.Duration

	Feed  FeedConfig
	Fetch FetchConfig
}

// Server exposes validation and extraction over HTTP and serves the test
// feed rendered from config.
type Server struct {
	cfg        *Config
	fetcher    *Fetcher
	router     *mux.Router
	httpServer *http.Server

	// feeds caches fetched feed bodies by URL, nil when disabled.
	feeds *cache.Cache

	now func() time.Time
}

func NewServer(cfg *Config) (*Server, error) {
	fetcher, err := NewFetcher(cfg.Fetch)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:     cfg,
		fetcher: fetcher,
		router:  mux.NewRouter(),
		now:     time.Now,
	}
	if cfg.CacheTTL > 0 {
		s.feeds = cache.New(cfg.CacheTTL, 2*cfg.CacheTTL)
	}

	s.route("/health", s.health, http.MethodGet)
	s.route("/validate", s.validateURL, http.MethodGet)
	s.route("/validate", s.validateBody, http.MethodPost)
	s.route("/recipients", s.recipients, http.MethodGet)
	s.route("/feed.xml", s.feed, http.MethodGet)
	s.route("/lnurl/{address}/qr.png", s.qr, http.MethodGet)

	s.httpServer = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Run() error {
	if err := s.printHello(); err != nil {
		return err
	}

	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	log.Infoln("[api] Shutting down server...")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) printHello() error {
	var b strings.Builder
	for _, r := range s.cfg.Feed.Recipients() {
		if r.Type != RecipientLightning {
			fmt.Fprintf(&b, "- %s: keysend %s\n", r.Name, r.Address)
			continue
		}

		payURL, err := LightningAddressURL(r.Address, false)
		if err != nil {
			return err
		}
		code, err := EncodeLNURL(payURL)
		if err != nil {
			return err
		}
		fmt.Fprintf(&b, "- %s: %s\n  lightning:%s\n  %s/lnurl/%s/qr.png\n",
			r.Name, r.Address, code, s.cfg.PublicURL, r.Address)
	}

	fmt.Printf(
		""+
			"=======================================\n"+
			"Welcome to v4vkit!\n"+
			"Test feed: %s/feed.xml\n"+
			"Validator: %s/validate?url=<feed url>\n"+
			"Recipients:\n%s"+
			"=======================================\n",
		s.cfg.PublicURL, s.cfg.PublicURL, b.String(),
	)

	return nil
}

func (s *Server) route(path string, handler http.HandlerFunc,
	methods ...string) {

	s.router.HandleFunc(path, loggingMiddleware(handler)).
		Methods(methods...)
}

func loggingMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next(w, r)
		log.Debugf("[api] %s %s (%s)", r.Method, r.URL.Path,
			time.Since(start))
	}
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) validateURL(w http.ResponseWriter, r *http.Request) {
	feedURL := r.URL.Query().Get("url")
	if feedURL == "" {
		http.Error(w, "expected 'url' field", http.StatusBadRequest)
		return
	}
	if !isHTTPURL(feedURL) {
		http.Error(w, "'url' must be an http(s) URL",
			http.StatusBadRequest)
		return
	}

	data, err := s.fetchFeed(r.Context(), feedURL)
	if err != nil {
		log.Warnf("[api] fetch %s: %v", feedURL, err)
		writeJSON(w, http.StatusBadGateway, ErrorReport(err))
		return
	}

	s.writeReport(w, data)
}

func (s *Server) fetchFeed(ctx context.Context, feedURL string) ([]byte,
	error) {

	if s.feeds != nil {
		if data, ok := s.feeds.Get(feedURL); ok {
			log.Debugf("[api] cache hit for %s", feedURL)
			return data.([]byte), nil
		}
	}

	data, err := s.fetcher.Fetch(ctx, feedURL)
	if err != nil {
		return nil, err
	}

	if s.feeds != nil {
		s.feeds.SetDefault(feedURL, data)
	}

	return data, nil
}

func (s *Server) validateBody(w http.ResponseWriter, r *http.Request) {
	data, err := readFeedBody(r.Body, maxFeedSize)
	switch {
	case errors.Is(err, ErrFeedTooLarge):
		http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
		return

	case err != nil:
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.writeReport(w, data)
}

func (s *Server) writeReport(w http.ResponseWriter, data []byte) {
	report, err := ValidateFeed(data)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, ErrorReport(err))
		return
	}

	writeJSON(w, http.StatusOK, report)
}

type recipientsResponse struct {
	Scope      Scope            `json:"scope"`
	Suggested  string           `json:"suggested,omitempty"`
	Recipients []ValueRecipient `json:"recipients"`
}

func (s *Server) recipients(w http.ResponseWriter, r *http.Request) {
	feedURL := r.URL.Query().Get("url")
	if !isHTTPURL(feedURL) {
		http.Error(w, "expected an http(s) 'url' field",
			http.StatusBadRequest)
		return
	}

	data, err := s.fetchFeed(r.Context(), feedURL)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	doc, err := ParseDocument(data)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	feed, err := ExtractFeed(doc)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	block, err := feed.BlockFor(r.URL.Query().Get("episode"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if block == nil {
		http.Error(w, "No <podcast:value> block found",
			http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, &recipientsResponse{
		Scope:      block.Scope,
		Suggested:  block.Suggested,
		Recipients: Recipients(*block),
	})
}

func (s *Server) feed(w http.ResponseWriter, _ *http.Request) {
	data, err := RenderFeed(s.cfg.Feed, s.now())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
	_, _ = w.Write(data)
}

// qr serves the LNURL-pay code of a lightning address as a PNG, so test
// wallets can scan it straight off the screen.
func (s *Server) qr(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]

	payURL, err := LightningAddressURL(address, false)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	code, err := EncodeLNURL(payURL)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// Upper case keeps the QR code in alphanumeric mode.
	png, err := qrcode.Encode("LIGHTNING:"+code, qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

func isHTTPURL(s string) bool {
	return strings.HasPrefix(s, "http://") ||
		strings.HasPrefix(s, "https://")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(b)
}
