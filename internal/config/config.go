package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"example.com/shopcatalog/internal/catalog"
	"example.com/shopcatalog/internal/domain"
)

type Config struct {
	Port            string
	PostgresDSN     string
	QueueMaxSize    int
	BatchMaxSize    int
	BatchMaxWait    time.Duration
	MaxBodyBytes    int64
	MaxBulkItems    int
	RateLimitPerMin int // 0 disables the read limiter
	APIKeys         map[string]struct{}
	ClockSkew       time.Duration
	FeaturedLimit   int
	ListingKinds    []int // empty = every kind
	LogLevel        string
	LogFile         string
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Port:            "8080",
		QueueMaxSize:    10_000,
		BatchMaxSize:    500,
		BatchMaxWait:    50 * time.Millisecond,
		MaxBodyBytes:    1_048_576,
		MaxBulkItems:    100,
		RateLimitPerMin: 600,
		APIKeys:         map[string]struct{}{},
		ClockSkew:       domain.DefaultClockSkew,
		FeaturedLimit:   catalog.DefaultFeatured,
		ListingKinds:    []int{domain.KindClassifiedListing},
		LogLevel:        "info",
	}
}

// Load builds the configuration in three layers: defaults, the YAML file
// named by CONFIG_FILE (if any), then environment variables. A .env file in
// the working directory is loaded first; existing variables win over it.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return cfg, err
		}
	}
	cfg.mergeEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// yamlConfig mirrors Config with YAML-friendly types.
type yamlConfig struct {
	Port            *string  `yaml:"port"`
	PostgresDSN     *string  `yaml:"postgres_dsn"`
	QueueMaxSize    *int     `yaml:"queue_max_size"`
	BatchMaxSize    *int     `yaml:"batch_max_size"`
	BatchMaxWaitMS  *int     `yaml:"batch_max_wait_ms"`
	MaxBodyBytes    *int64   `yaml:"max_body_bytes"`
	MaxBulkItems    *int     `yaml:"max_bulk_items"`
	RateLimitPerMin *int     `yaml:"rate_limit_per_min"`
	APIKeys         []string `yaml:"api_keys"`
	ClockSkewSec    *int     `yaml:"clock_skew_seconds"`
	FeaturedLimit   *int     `yaml:"featured_limit"`
	ListingKinds    []int    `yaml:"listing_kinds"`
	LogLevel        *string  `yaml:"log_level"`
	LogFile         *string  `yaml:"log_file"`
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("cannot read config file: %w", err)
	}
	var y yamlConfig
	if err := yaml.Unmarshal(data, &y); err != nil {
		return fmt.Errorf("cannot parse YAML: %w", err)
	}

	setIf(&c.Port, y.Port)
	setIf(&c.PostgresDSN, y.PostgresDSN)
	setIf(&c.QueueMaxSize, y.QueueMaxSize)
	setIf(&c.BatchMaxSize, y.BatchMaxSize)
	if y.BatchMaxWaitMS != nil {
		c.BatchMaxWait = time.Duration(*y.BatchMaxWaitMS) * time.Millisecond
	}
	setIf(&c.MaxBodyBytes, y.MaxBodyBytes)
	setIf(&c.MaxBulkItems, y.MaxBulkItems)
	setIf(&c.RateLimitPerMin, y.RateLimitPerMin)
	if len(y.APIKeys) > 0 {
		c.APIKeys = parseKeys(strings.Join(y.APIKeys, ","))
	}
	if y.ClockSkewSec != nil {
		c.ClockSkew = time.Duration(*y.ClockSkewSec) * time.Second
	}
	setIf(&c.FeaturedLimit, y.FeaturedLimit)
	if y.ListingKinds != nil {
		c.ListingKinds = y.ListingKinds
	}
	setIf(&c.LogLevel, y.LogLevel)
	setIf(&c.LogFile, y.LogFile)
	return nil
}

func (c *Config) mergeEnv() {
	c.Port = getString("PORT", c.Port)
	c.PostgresDSN = getString("POSTGRES_DSN", c.PostgresDSN)
	c.QueueMaxSize = getInt("QUEUE_MAX_SIZE", c.QueueMaxSize)
	c.BatchMaxSize = getInt("BATCH_MAX_SIZE", c.BatchMaxSize)
	c.BatchMaxWait = time.Duration(getInt("BATCH_MAX_WAIT_MS", int(c.BatchMaxWait/time.Millisecond))) * time.Millisecond
	c.MaxBodyBytes = int64(getInt("MAX_BODY_BYTES", int(c.MaxBodyBytes)))
	c.MaxBulkItems = getInt("MAX_BULK_ITEMS", c.MaxBulkItems)
	c.RateLimitPerMin = getInt("RATE_LIMIT_PER_MIN", c.RateLimitPerMin)
	if v := os.Getenv("API_KEYS"); v != "" {
		c.APIKeys = parseKeys(v)
	}
	c.ClockSkew = time.Duration(getInt("CLOCK_SKEW_SECONDS", int(c.ClockSkew/time.Second))) * time.Second
	c.FeaturedLimit = getInt("FEATURED_LIMIT", c.FeaturedLimit)
	if v := os.Getenv("LISTING_KINDS"); v != "" {
		c.ListingKinds = parseInts(v, c.ListingKinds)
	}
	c.LogLevel = getString("LOG_LEVEL", c.LogLevel)
	c.LogFile = getString("LOG_FILE", c.LogFile)
}

// Validate rejects settings the service cannot run with.
func (c Config) Validate() error {
	switch {
	case c.Port == "":
		return fmt.Errorf("config: port is required")
	case c.QueueMaxSize <= 0:
		return fmt.Errorf("config: queue_max_size must be positive")
	case c.BatchMaxSize <= 0:
		return fmt.Errorf("config: batch_max_size must be positive")
	case c.BatchMaxWait <= 0:
		return fmt.Errorf("config: batch_max_wait must be positive")
	case c.MaxBulkItems <= 0:
		return fmt.Errorf("config: max_bulk_items must be positive")
	case c.FeaturedLimit < 0:
		return fmt.Errorf("config: featured_limit must be non-negative")
	}
	return nil
}

func parseKeys(csv string) map[string]struct{} {
	csv = strings.TrimSpace(csv)
	if csv == "" {
		return map[string]struct{}{}
	}
	m := make(map[string]struct{})
	for _, k := range strings.Split(csv, ",") {
		k = strings.TrimSpace(k)
		if k != "" {
			m[k] = struct{}{}
		}
	}
	return m
}

// parseInts reads a comma-separated list; any bad item keeps def.
func parseInts(csv string, def []int) []int {
	var out []int
	for _, s := range strings.Split(csv, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return def
		}
		out = append(out, n)
	}
	return out
}

func setIf[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func getString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
