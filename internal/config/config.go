package config

import (
	"fmt"
	"os"
	"time"

	"github.com/v4vkit/v4vkit"
	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Server  ServerConfig      `yaml:"server"`
	Fetch   FetchConfig       `yaml:"fetch"`
	Lnd     LndConfig         `yaml:"lnd"`
	Payment PaymentConfig     `yaml:"payment"`
	Log     LogConfig         `yaml:"log"`
	Feed    v4vkit.FeedConfig `yaml:"feed"`
}

// ServerConfig holds the validation server configuration
type ServerConfig struct {
	ListenAddr          string `yaml:"listen_addr"`
	PublicURL           string `yaml:"public_url"`
	ReadTimeoutSeconds  int    `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `yaml:"write_timeout_seconds"`

	// CacheSeconds is how long fetched feeds are reused, -1 disables
	// the cache.
	CacheSeconds int `yaml:"cache_seconds"`
}

// FetchConfig holds feed and LNURL fetch configuration
type FetchConfig struct {
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	UserAgent      string `yaml:"user_agent"`
	RelayURL       string `yaml:"relay_url"` // e.g. https://corsproxy.io/?url=
	SocksProxy     string `yaml:"socks_proxy"`
	SocksUser      string `yaml:"socks_user"`
	SocksPassword  string `yaml:"socks_password"`
	NoTLS          bool   `yaml:"no_tls"` // allow plain http LNURL endpoints

	// RequestsPerSecond throttles outgoing fetches, 0 means unlimited.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// LndConfig holds the lnd connection used for payments
type LndConfig struct {
	Address               string `yaml:"address"`
	Network               string `yaml:"network"`
	MacaroonDir           string `yaml:"macaroon_dir"`
	TLSPath               string `yaml:"tls_path"`
	MaxFeeSats            int64  `yaml:"max_fee_sats"`
	PaymentTimeoutSeconds int    `yaml:"payment_timeout_seconds"`
}

// PaymentConfig holds boost defaults
type PaymentConfig struct {
	AppName       string `yaml:"app_name"`
	SenderName    string `yaml:"sender_name"`
	DefaultAmount int64  `yaml:"default_amount_sats"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Load loads configuration from a file. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	// Apply environment variable overrides
	if dir := os.Getenv("V4V_LND_MACAROON_DIR"); dir != "" {
		cfg.Lnd.MacaroonDir = dir
	}
	if tlsPath := os.Getenv("V4V_LND_TLS_PATH"); tlsPath != "" {
		cfg.Lnd.TLSPath = tlsPath
	}
	if relay := os.Getenv("V4V_RELAY_URL"); relay != "" {
		cfg.Fetch.RelayURL = relay
	}

	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8080"
	}
	if c.Server.PublicURL == "" {
		c.Server.PublicURL = "http://localhost:8080"
	}
	if c.Server.ReadTimeoutSeconds == 0 {
		c.Server.ReadTimeoutSeconds = 30
	}
	if c.Server.WriteTimeoutSeconds == 0 {
		c.Server.WriteTimeoutSeconds = 30
	}
	if c.Server.CacheSeconds == 0 {
		c.Server.CacheSeconds = 60
	}
	if c.Fetch.TimeoutSeconds == 0 {
		c.Fetch.TimeoutSeconds = 10
	}
	if c.Fetch.UserAgent == "" {
		c.Fetch.UserAgent = "v4vkit"
	}
	if c.Lnd.Address == "" {
		c.Lnd.Address = "localhost:10009"
	}
	if c.Lnd.Network == "" {
		c.Lnd.Network = "mainnet"
	}
	if c.Lnd.MaxFeeSats == 0 {
		c.Lnd.MaxFeeSats = 10
	}
	if c.Lnd.PaymentTimeoutSeconds == 0 {
		c.Lnd.PaymentTimeoutSeconds = 60
	}
	if c.Payment.AppName == "" {
		c.Payment.AppName = "v4vkit"
	}
	if c.Payment.DefaultAmount == 0 {
		c.Payment.DefaultAmount = 10
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Feed.SuggestedAmount == 0 {
		c.Feed.SuggestedAmount = 1000
	}
}

func (c *Config) validate() error {
	switch c.Lnd.Network {
	case "mainnet", "testnet", "regtest", "simnet", "signet":
	default:
		return fmt.Errorf("lnd.network %q is not one of mainnet, "+
			"testnet, regtest, simnet, signet", c.Lnd.Network)
	}

	if c.Fetch.RequestsPerSecond < 0 {
		return fmt.Errorf("fetch.requests_per_second must not be " +
			"negative")
	}

	if c.Payment.DefaultAmount < 0 {
		return fmt.Errorf("payment.default_amount_sats must not be " +
			"negative")
	}

	for i, addr := range c.Feed.LightningAddresses {
		if !v4vkit.IsLightningAddress(addr) {
			return fmt.Errorf("feed.lightning_addresses[%d]: %q is "+
				"not a lightning address", i, addr)
		}
	}
	for i, key := range c.Feed.NodePubkeys {
		if !v4vkit.IsNodePubkey(key) {
			return fmt.Errorf("feed.node_pubkeys[%d]: %q is not a "+
				"node pubkey", i, key)
		}
	}

	return nil
}

// ServerConfig converts the file settings into the server's config.
func (c *Config) ServerConfig() *v4vkit.Config {
	var cacheTTL time.Duration
	if c.Server.CacheSeconds > 0 {
		cacheTTL = time.Duration(c.Server.CacheSeconds) * time.Second
	}

	return &v4vkit.Config{
		ListenAddr:   c.Server.ListenAddr,
		PublicURL:    c.Server.PublicURL,
		ReadTimeout:  time.Duration(c.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(c.Server.WriteTimeoutSeconds) * time.Second,
		CacheTTL:     cacheTTL,
		Feed:         c.Feed,
		Fetch:        c.FetchConfig(),
	}
}

func (c *Config) FetchConfig() v4vkit.FetchConfig {
	return v4vkit.FetchConfig{
		Timeout:       time.Duration(c.Fetch.TimeoutSeconds) * time.Second,
		UserAgent:     c.Fetch.UserAgent,
		RelayURL:      c.Fetch.RelayURL,
		SocksProxy:    c.Fetch.SocksProxy,
		SocksUser:     c.Fetch.SocksUser,
		SocksPassword: c.Fetch.SocksPassword,
		RateLimit:     c.Fetch.RequestsPerSecond,
	}
}

func (c *Config) LndConfig() v4vkit.LndConfig {
	return v4vkit.LndConfig{
		Address:        c.Lnd.Address,
		Network:        c.Lnd.Network,
		MacaroonDir:    c.Lnd.MacaroonDir,
		TLSPath:        c.Lnd.TLSPath,
		MaxFeeSats:     c.Lnd.MaxFeeSats,
		PaymentTimeout: time.Duration(c.Lnd.PaymentTimeoutSeconds) * time.Second,
	}
}
