// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default listing seeds for the two storefronts.
const (
	DefaultGlobalURL = "https://ucmeyewear.earth/category/all/87/"
	DefaultKRURL     = "https://ucmeyewear.com/product/list.html?cate_no=87"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Crawler  CrawlerConfig  `mapstructure:"crawler"`
	Database DatabaseConfig `mapstructure:"database"`
	Indexer  IndexerConfig  `mapstructure:"indexer"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Progress ProgressConfig `mapstructure:"progress"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// CrawlerConfig governs frontier pagination and the outbound request policy.
type CrawlerConfig struct {
	GlobalURL      string        `mapstructure:"global_url"`
	KRURL          string        `mapstructure:"kr_url"`
	MaxPages       int           `mapstructure:"max_pages"`
	MinDelay       time.Duration `mapstructure:"min_delay"`
	MaxDelay       time.Duration `mapstructure:"max_delay"`
	ImageMinDelay  time.Duration `mapstructure:"image_min_delay"`
	ImageMaxDelay  time.Duration `mapstructure:"image_max_delay"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RotateEvery    int           `mapstructure:"rotate_every"`
	MaxRPS         float64       `mapstructure:"max_rps"`
}

// DatabaseConfig controls access to Postgres.
type DatabaseConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// IndexerConfig points at the downstream indexing service. An empty URL
// disables the completion notification.
type IndexerConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// ProgressConfig sizes the progress event hub.
type ProgressConfig struct {
	Buffer int `mapstructure:"buffer"`
	Batch  int `mapstructure:"batch"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.read_timeout", 15*time.Second)
	// Write timeout sits outside the 60s per-request handler timeout so the
	// handler deadline is the one clients observe.
	v.SetDefault("server.write_timeout", 90*time.Second)
	v.SetDefault("crawler.global_url", DefaultGlobalURL)
	v.SetDefault("crawler.kr_url", DefaultKRURL)
	v.SetDefault("crawler.max_pages", 200)
	v.SetDefault("crawler.min_delay", 2*time.Second)
	v.SetDefault("crawler.max_delay", 5*time.Second)
	v.SetDefault("crawler.image_min_delay", 500*time.Millisecond)
	v.SetDefault("crawler.image_max_delay", 1500*time.Millisecond)
	v.SetDefault("crawler.request_timeout", 30*time.Second)
	v.SetDefault("crawler.rotate_every", 5)
	v.SetDefault("crawler.max_rps", 1.0)
	v.SetDefault("database.max_conns", 4)
	v.SetDefault("indexer.timeout", 30*time.Second)
	v.SetDefault("logging.development", false)
	v.SetDefault("progress.buffer", 256)
	v.SetDefault("progress.batch", 16)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	for key, seed := range map[string]string{
		"crawler.global_url": c.Crawler.GlobalURL,
		"crawler.kr_url":     c.Crawler.KRURL,
	} {
		parsed, err := url.Parse(seed)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("%s must be an absolute URL", key)
		}
	}
	if c.Crawler.MaxPages <= 0 {
		return fmt.Errorf("crawler.max_pages must be > 0")
	}
	if c.Crawler.MinDelay <= 0 || c.Crawler.MaxDelay < c.Crawler.MinDelay {
		return fmt.Errorf("crawler delay interval must satisfy 0 < min_delay <= max_delay")
	}
	if c.Crawler.ImageMinDelay <= 0 || c.Crawler.ImageMaxDelay < c.Crawler.ImageMinDelay {
		return fmt.Errorf("crawler image delay interval must satisfy 0 < image_min_delay <= image_max_delay")
	}
	if c.Crawler.RequestTimeout <= 0 {
		return fmt.Errorf("crawler.request_timeout must be > 0")
	}
	if c.Crawler.RotateEvery <= 0 {
		return fmt.Errorf("crawler.rotate_every must be > 0")
	}
	if c.Crawler.MaxRPS <= 0 {
		return fmt.Errorf("crawler.max_rps must be > 0")
	}
	if c.Database.MaxConns <= 0 {
		return fmt.Errorf("database.max_conns must be > 0")
	}
	if c.Indexer.URL != "" {
		if _, err := url.Parse(c.Indexer.URL); err != nil {
			return fmt.Errorf("indexer.url must be a valid URL: %w", err)
		}
		if c.Indexer.Timeout <= 0 {
			return fmt.Errorf("indexer.timeout must be > 0")
		}
	}
	if c.Progress.Buffer <= 0 || c.Progress.Batch <= 0 {
		return fmt.Errorf("progress.buffer and progress.batch must be > 0")
	}
	return nil
}
