package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"pricefeed/internal/logging"
)

// Store kinds.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreRedis  = "redis"
)

type Server struct {
	Addr              string `json:"addr" yaml:"addr"`
	RequestTimeoutSec int    `json:"request_timeout_sec" yaml:"request_timeout_sec"`
	MaxBodyBytes      int64  `json:"max_body_bytes" yaml:"max_body_bytes"`
	MaxBatchSymbols   int    `json:"max_batch_symbols" yaml:"max_batch_symbols"`
}

type Store struct {
	Kind          string `json:"kind" yaml:"kind"`
	Path          string `json:"path" yaml:"path"`
	RedisAddr     string `json:"redis_addr" yaml:"redis_addr"`
	RedisPassword string `json:"redis_password" yaml:"redis_password"`
	RedisDB       int    `json:"redis_db" yaml:"redis_db"`
	RedisPrefix   string `json:"redis_prefix" yaml:"redis_prefix"`
}

type Fetcher struct {
	MaxAttempts      int `json:"max_attempts" yaml:"max_attempts"`
	BaseDelayMS      int `json:"base_delay_ms" yaml:"base_delay_ms"`
	MaxDelayMS       int `json:"max_delay_ms" yaml:"max_delay_ms"`
	TimeoutSec       int `json:"timeout_sec" yaml:"timeout_sec"`
	BatchConcurrency int `json:"batch_concurrency" yaml:"batch_concurrency"`
}

type Cache struct {
	TTLSeconds int `json:"ttl_sec" yaml:"ttl_sec"`
	MaxItems   int `json:"max_items" yaml:"max_items"`
}

// RateLimit throttles one source. Zero values disable the limiter.
type RateLimit struct {
	MaxRequestsPerMinute int `json:"max_requests_per_minute" yaml:"max_requests_per_minute"`
	Burst                int `json:"burst" yaml:"burst"`
	MinRequestIntervalMS int `json:"min_request_interval_ms" yaml:"min_request_interval_ms"`
}

type Yahoo struct {
	Enabled    bool      `json:"enabled" yaml:"enabled"`
	Endpoint   string    `json:"endpoint" yaml:"endpoint"`
	TimeoutSec int       `json:"timeout_sec" yaml:"timeout_sec"`
	RateLimit  RateLimit `json:"rate_limit" yaml:"rate_limit"`
}

type CoinGecko struct {
	Enabled    bool      `json:"enabled" yaml:"enabled"`
	Endpoint   string    `json:"endpoint" yaml:"endpoint"`
	APIKey     string    `json:"api_key" yaml:"api_key"`
	Currency   string    `json:"currency" yaml:"currency"`
	TimeoutSec int       `json:"timeout_sec" yaml:"timeout_sec"`
	RateLimit  RateLimit `json:"rate_limit" yaml:"rate_limit"`
}

type Proxy struct {
	Enabled            bool      `json:"enabled" yaml:"enabled"`
	Endpoint           string    `json:"endpoint" yaml:"endpoint"`
	TimeoutSec         int       `json:"timeout_sec" yaml:"timeout_sec"`
	MaxItemsPerRequest int       `json:"max_items_per_request" yaml:"max_items_per_request"`
	MaxConcurrency     int       `json:"max_concurrency" yaml:"max_concurrency"`
	RateLimit          RateLimit `json:"rate_limit" yaml:"rate_limit"`
}

// Connectivity configures the reachability probe used by long-running
// commands. An empty URL probes the first enabled source's endpoint.
type Connectivity struct {
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	URL         string `json:"url" yaml:"url"`
	IntervalSec int    `json:"interval_sec" yaml:"interval_sec"`
	TimeoutSec  int    `json:"timeout_sec" yaml:"timeout_sec"`
}

type Config struct {
	Log       logging.Config `json:"log" yaml:"log"`
	Server    Server         `json:"server" yaml:"server"`
	Store     Store          `json:"store" yaml:"store"`
	Fetcher   Fetcher        `json:"fetcher" yaml:"fetcher"`
	Cache     Cache          `json:"cache" yaml:"cache"`
	Proxy     Proxy          `json:"proxy" yaml:"proxy"`
	Yahoo     Yahoo          `json:"yahoo" yaml:"yahoo"`
	CoinGecko CoinGecko      `json:"coingecko" yaml:"coingecko"`
	// Connectivity drives the scheduler's online signal.
	Connectivity Connectivity `json:"connectivity" yaml:"connectivity"`
	// Symbols seeds the watch list when nothing else provides one.
	Symbols []string `json:"symbols" yaml:"symbols"`
}

func Default() Config {
	return Config{
		Log:    logging.Default(),
		Server: Server{Addr: ":8080", RequestTimeoutSec: 10, MaxBodyBytes: 1 << 20, MaxBatchSymbols: 200},
		Store:  Store{Kind: StoreFile, Path: defaultStorePath(), RedisPrefix: "pricefeed:"},
		Fetcher: Fetcher{
			MaxAttempts:      3,
			BaseDelayMS:      500,
			MaxDelayMS:       5000,
			TimeoutSec:       10,
			BatchConcurrency: 4,
		},
		Cache: Cache{TTLSeconds: 300, MaxItems: 1000},
		Proxy: Proxy{
			TimeoutSec:         10,
			MaxItemsPerRequest: 50,
			MaxConcurrency:     2,
		},
		Yahoo: Yahoo{
			Enabled:    true,
			Endpoint:   "https://query1.finance.yahoo.com",
			TimeoutSec: 10,
			RateLimit:  RateLimit{MaxRequestsPerMinute: 60, Burst: 5},
		},
		CoinGecko: CoinGecko{
			Enabled:    true,
			Endpoint:   "https://api.coingecko.com",
			Currency:   "USD",
			TimeoutSec: 10,
			RateLimit:  RateLimit{MaxRequestsPerMinute: 30, Burst: 2},
		},
		Connectivity: Connectivity{Enabled: true, IntervalSec: 15, TimeoutSec: 5},
	}
}

func defaultStorePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "pricefeed-store.json"
	}
	return filepath.Join(dir, "pricefeed", "store.json")
}

// Load reads a JSON or YAML config from path, chosen by extension. If path is
// empty it looks for pricefeed.json, pricefeed.yaml or pricefeed.yml in the
// working directory and falls back to defaults. A missing explicit path is not
// an error. Environment variables override the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		for _, p := range []string{"pricefeed.json", "pricefeed.yaml", "pricefeed.yml"} {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := decode(path, b, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func decode(path string, b []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(b, cfg)
	default:
		return json.Unmarshal(b, cfg)
	}
}

// Validate reports the first inconsistent setting.
func (c Config) Validate() error {
	switch c.Store.Kind {
	case StoreMemory:
	case StoreFile:
		if c.Store.Path == "" {
			return errors.New("config: store.path is required for the file store")
		}
	case StoreRedis:
		if c.Store.RedisAddr == "" {
			return errors.New("config: store.redis_addr is required for the redis store")
		}
	default:
		return fmt.Errorf("config: unknown store kind %q", c.Store.Kind)
	}
	if c.Proxy.Enabled && c.Proxy.Endpoint == "" {
		return errors.New("config: proxy.endpoint is required when the proxy is enabled")
	}
	if !c.Proxy.Enabled && !c.Yahoo.Enabled && !c.CoinGecko.Enabled {
		return errors.New("config: no price source enabled")
	}
	if c.Fetcher.MaxAttempts <= 0 {
		return errors.New("config: fetcher.max_attempts must be positive")
	}
	if c.Cache.TTLSeconds <= 0 || c.Cache.MaxItems <= 0 {
		return errors.New("config: cache ttl and max items must be positive")
	}
	return nil
}

func applyEnv(cfg *Config) error {
	var errs []error
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int, floor int) {
		v := os.Getenv(key)
		if v == "" {
			return
		}
		x, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || x < floor {
			errs = append(errs, fmt.Errorf("env %s: invalid value %q", key, v))
			return
		}
		*dst = x
	}
	flag := func(key string, dst *bool) {
		v := os.Getenv(key)
		if v == "" {
			return
		}
		switch strings.ToLower(v) {
		case "1", "true", "yes", "y":
			*dst = true
		case "0", "false", "no", "n":
			*dst = false
		default:
			errs = append(errs, fmt.Errorf("env %s: invalid bool %q", key, v))
		}
	}

	str("PRICEFEED_LOG_LEVEL", &cfg.Log.Level)
	str("PRICEFEED_LOG_FORMAT", &cfg.Log.Format)
	str("PRICEFEED_LOG_OUTPUT", &cfg.Log.Output)
	str("PRICEFEED_LOG_FILE", &cfg.Log.FilePath)

	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Addr = ":" + v
	}
	str("PRICEFEED_ADDR", &cfg.Server.Addr)
	num("PRICEFEED_REQUEST_TIMEOUT_SEC", &cfg.Server.RequestTimeoutSec, 1)

	str("PRICEFEED_STORE", &cfg.Store.Kind)
	str("PRICEFEED_STORE_PATH", &cfg.Store.Path)
	str("PRICEFEED_REDIS_ADDR", &cfg.Store.RedisAddr)
	str("PRICEFEED_REDIS_PASSWORD", &cfg.Store.RedisPassword)
	num("PRICEFEED_REDIS_DB", &cfg.Store.RedisDB, 0)
	str("PRICEFEED_REDIS_PREFIX", &cfg.Store.RedisPrefix)

	num("PRICEFEED_FETCH_MAX_ATTEMPTS", &cfg.Fetcher.MaxAttempts, 1)
	num("PRICEFEED_FETCH_TIMEOUT_SEC", &cfg.Fetcher.TimeoutSec, 1)
	num("PRICEFEED_CACHE_TTL_SEC", &cfg.Cache.TTLSeconds, 1)
	num("PRICEFEED_CACHE_MAX_ITEMS", &cfg.Cache.MaxItems, 1)

	flag("PRICEFEED_YAHOO_ENABLED", &cfg.Yahoo.Enabled)
	str("PRICEFEED_YAHOO_ENDPOINT", &cfg.Yahoo.Endpoint)
	num("PRICEFEED_YAHOO_MAX_RPM", &cfg.Yahoo.RateLimit.MaxRequestsPerMinute, 0)

	flag("PRICEFEED_COINGECKO_ENABLED", &cfg.CoinGecko.Enabled)
	str("PRICEFEED_COINGECKO_ENDPOINT", &cfg.CoinGecko.Endpoint)
	str("PRICEFEED_COINGECKO_API_KEY", &cfg.CoinGecko.APIKey)
	str("PRICEFEED_COINGECKO_CURRENCY", &cfg.CoinGecko.Currency)
	num("PRICEFEED_COINGECKO_MAX_RPM", &cfg.CoinGecko.RateLimit.MaxRequestsPerMinute, 0)

	if v := os.Getenv("PRICEFEED_PROXY_URL"); v != "" {
		cfg.Proxy.Endpoint = v
		cfg.Proxy.Enabled = true
	}
	flag("PRICEFEED_PROXY_ENABLED", &cfg.Proxy.Enabled)
	num("PRICEFEED_PROXY_MAX_ITEMS_PER_REQUEST", &cfg.Proxy.MaxItemsPerRequest, 1)
	num("PRICEFEED_PROXY_MAX_CONCURRENCY", &cfg.Proxy.MaxConcurrency, 1)
	num("PRICEFEED_PROXY_MIN_INTERVAL_MS", &cfg.Proxy.RateLimit.MinRequestIntervalMS, 0)

	flag("PRICEFEED_CONNECTIVITY_ENABLED", &cfg.Connectivity.Enabled)
	str("PRICEFEED_CONNECTIVITY_URL", &cfg.Connectivity.URL)
	num("PRICEFEED_CONNECTIVITY_INTERVAL_SEC", &cfg.Connectivity.IntervalSec, 1)

	if v := os.Getenv("PRICEFEED_SYMBOLS"); v != "" {
		cfg.Symbols = splitCSV(v)
	}
	return errors.Join(errs...)
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
