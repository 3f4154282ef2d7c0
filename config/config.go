package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ProjectDir   string `json:"project_dir"`
	ResultsDir   string `json:"results_dir"`
	DataDir      string `json:"data_dir"`
	DataCacheDir string `json:"data_cache_dir"`

	// Market data providers
	Provider          string        `json:"provider"`
	FallbackProviders []string      `json:"fallback_providers"`
	MaxWorkers        int           `json:"max_workers"`
	RequestTimeout    time.Duration `json:"request_timeout"`
	UserAgent         string        `json:"user_agent"`
	YahooBaseURL      string        `json:"yahoo_base_url"`
	FinnhubBaseURL    string        `json:"finnhub_base_url"`
	OverridesFile     string        `json:"overrides_file"`
	// FXRates adds to or replaces entries of the built-in currency→USD table.
	FXRates map[string]float64 `json:"fx_rates"`

	// Cache
	CacheEnabled bool          `json:"cache_enabled"`
	CacheBackend string        `json:"cache_backend"`
	PriceTTL     time.Duration `json:"price_ttl"`
	ValuationTTL time.Duration `json:"valuation_ttl"`

	// Portfolio construction
	IndexFunds    []string `json:"index_funds"`
	IndexLimit    int      `json:"index_limit"`
	ThemeLimit    int      `json:"theme_limit"`
	USMarketTotal float64  `json:"us_market_total"`
	DefaultCash   float64  `json:"default_cash"`
	Fractional    bool     `json:"fractional"`

	LogLevel string `json:"log_level"`
	Debug    bool   `json:"debug"`

	// Longport API Configuration
	LongportAppKey      string `json:"longport_app_key"`
	LongportAppSecret   string `json:"longport_app_secret"`
	LongportAccessToken string `json:"longport_access_token"`

	FinnhubAPIKey string `json:"finnhub_api_key"`
}

func DefaultConfig() *Config {
	currentDir, _ := os.Getwd()

	cfg := DefaultConfigWithRoot(currentDir)

	// Load environment variables from .env file
	_ = godotenv.Load()

	// Override with environment variables if they exist
	cfg.loadFromEnv()

	return cfg
}

// DefaultConfigWithRoot returns the defaults with every directory under root.
func DefaultConfigWithRoot(root string) *Config {
	return &Config{
		ProjectDir:   root,
		ResultsDir:   filepath.Join(root, "results"),
		DataDir:      filepath.Join(root, "data"),
		DataCacheDir: filepath.Join(root, "data", "cache"),

		Provider:          "yahoo",
		FallbackProviders: []string{"finnhub"},
		MaxWorkers:        20,
		RequestTimeout:    15 * time.Second,
		UserAgent:         "IndexGo/1.0",
		YahooBaseURL:      "https://query2.finance.yahoo.com",
		FinnhubBaseURL:    "https://finnhub.io/api/v1",

		CacheEnabled: true,
		CacheBackend: "memory",
		PriceTTL:     5 * time.Minute,
		ValuationTTL: 24 * time.Hour,

		IndexFunds:    []string{"VOO", "QQQ"},
		IndexLimit:    20,
		ThemeLimit:    10,
		USMarketTotal: 65e12,
		DefaultCash:   10000,
		Fractional:    true,

		LogLevel: "info",
	}
}

func (c *Config) loadFromEnv() {
	if val := os.Getenv("PROJECT_DIR"); val != "" {
		c.ProjectDir = val
	}
	if val := os.Getenv("RESULTS_DIR"); val != "" {
		c.ResultsDir = val
	}
	if val := os.Getenv("DATA_DIR"); val != "" {
		c.DataDir = val
	}
	if val := os.Getenv("DATA_CACHE_DIR"); val != "" {
		c.DataCacheDir = val
	}

	if val := os.Getenv("INDEXGO_PROVIDER"); val != "" {
		c.Provider = val
	}
	if val := os.Getenv("INDEXGO_FALLBACK_PROVIDERS"); val != "" {
		c.FallbackProviders = splitList(val)
	}
	if val := os.Getenv("INDEXGO_MAX_WORKERS"); val != "" {
		if v, err := strconv.Atoi(val); err == nil {
			c.MaxWorkers = v
		}
	}
	if val := os.Getenv("INDEXGO_REQUEST_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.RequestTimeout = d
		}
	}
	if val := os.Getenv("INDEXGO_OVERRIDES_FILE"); val != "" {
		c.OverridesFile = val
	}

	if val := os.Getenv("CACHE_ENABLED"); val != "" {
		if cache, err := strconv.ParseBool(val); err == nil {
			c.CacheEnabled = cache
		}
	}
	if val := os.Getenv("INDEXGO_CACHE_BACKEND"); val != "" {
		c.CacheBackend = val
	}
	if val := os.Getenv("INDEXGO_PRICE_TTL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.PriceTTL = d
		}
	}
	if val := os.Getenv("INDEXGO_VALUATION_TTL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.ValuationTTL = d
		}
	}

	if val := os.Getenv("INDEXGO_INDEX_FUNDS"); val != "" {
		c.IndexFunds = splitList(val)
	}
	if val := os.Getenv("INDEXGO_DEFAULT_CASH"); val != "" {
		if v, err := strconv.ParseFloat(val, 64); err == nil {
			c.DefaultCash = v
		}
	}
	if val := os.Getenv("INDEXGO_FRACTIONAL"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			c.Fractional = enabled
		}
	}

	if val := os.Getenv("INDEXGO_LOG_LEVEL"); val != "" {
		c.LogLevel = val
	}
	if val := os.Getenv("INDEXGO_DEBUG"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			c.Debug = enabled
		}
	}

	if val := os.Getenv("LONGPORT_APP_KEY"); val != "" {
		c.LongportAppKey = val
	}
	if val := os.Getenv("LONGPORT_APP_SECRET"); val != "" {
		c.LongportAppSecret = val
	}
	if val := os.Getenv("LONGPORT_ACCESS_TOKEN"); val != "" {
		c.LongportAccessToken = val
	}
	if val := os.Getenv("INDEXGO_FINNHUB_API_KEY"); val != "" {
		c.FinnhubAPIKey = val
	}
}

func splitList(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Provider) {
	case "yahoo", "finnhub", "longport", "static":
	default:
		return fmt.Errorf("unknown provider %q", c.Provider)
	}
	switch strings.ToLower(c.CacheBackend) {
	case "", "none", "memory", "file", "sqlite":
	default:
		return fmt.Errorf("unknown cache backend %q", c.CacheBackend)
	}
	if c.MaxWorkers < 1 || c.MaxWorkers > 256 {
		return fmt.Errorf("max workers must be between 1 and 256, got %d", c.MaxWorkers)
	}
	if c.IndexLimit < 1 || c.ThemeLimit < 1 {
		return fmt.Errorf("holding limits must be positive")
	}
	if c.DefaultCash < 0 {
		return fmt.Errorf("default cash cannot be negative")
	}
	if c.USMarketTotal <= 0 {
		return fmt.Errorf("us market total must be positive")
	}
	return nil
}

func (c *Config) EnsureDirectories() error {
	dirs := []string{c.ProjectDir, c.ResultsDir, c.DataDir, c.DataCacheDir}
	for _, dir := range dirs {
		path := strings.TrimSpace(dir)
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", path, err)
		}
	}
	return nil
}
