// Package config loads the command-line client configuration from defaults,
// a YAML file and DARKSEARCH_* environment variables.
package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"time"

	"github.com/Sternrassler/darksearch-client/pkg/logging"
	"github.com/Sternrassler/darksearch-client/pkg/proxypool"
	"github.com/Sternrassler/darksearch-client/pkg/ratelimit"
	"github.com/Sternrassler/darksearch-client/pkg/results"
	"github.com/Sternrassler/darksearch-client/pkg/scraper"
	"github.com/Sternrassler/darksearch-client/pkg/search"
	"github.com/adrg/xdg"
)

// AppName is the application name used for XDG directory paths.
const AppName = "darksearch"

// Config holds all settings of a scraping run except the query itself.
type Config struct {
	Endpoint       string        `yaml:"endpoint"`
	UserAgent      string        `yaml:"user_agent"`
	RequestTimeout time.Duration `yaml:"request_timeout"`

	Workers      int           `yaml:"workers"`
	FailLimit    int           `yaml:"fail_limit"`
	PaceInterval time.Duration `yaml:"pace_interval"`

	QueriesPerMinute int           `yaml:"queries_per_minute"`
	QuotaCooldown    time.Duration `yaml:"quota_cooldown"`

	// ResetQuota clears a cooldown left behind by an earlier run.
	ResetQuota bool `yaml:"reset_quota"`

	ShutdownRounds int           `yaml:"shutdown_rounds"`
	ShutdownWait   time.Duration `yaml:"shutdown_wait"`

	// Proxies lists relays inline; ProxyFile adds one relay per line.
	Proxies           []string      `yaml:"proxies"`
	ProxyFile         string        `yaml:"proxy_file"`
	ValidateProxies   bool          `yaml:"validate_proxies"`
	ValidationTimeout time.Duration `yaml:"validation_timeout"`
	ValidationTarget  string        `yaml:"validation_target"`

	Output string `yaml:"output"`

	// RedisAddr shares the quota cooldown between processes when set.
	RedisAddr   string `yaml:"redis_addr"`
	MetricsAddr string `yaml:"metrics_addr"`

	LogLevel  string `yaml:"log_level"`
	LogPretty bool   `yaml:"log_pretty"`
}

// Default returns the configuration for the public API.
func Default() *Config {
	return &Config{
		Endpoint:          search.DefaultEndpoint,
		UserAgent:         search.DefaultUserAgent,
		RequestTimeout:    30 * time.Second,
		Workers:           scraper.DefaultWorkers,
		FailLimit:         scraper.DefaultFailLimit,
		PaceInterval:      scraper.DefaultPaceInterval,
		QueriesPerMinute:  ratelimit.DefaultQueriesPerMinute,
		QuotaCooldown:     ratelimit.DefaultCooldown,
		ShutdownRounds:    scraper.DefaultShutdownRounds,
		ShutdownWait:      scraper.DefaultShutdownWait,
		ValidationTimeout: 10 * time.Second,
		ValidationTarget:  proxypool.DefaultValidationTarget,
		Output:            results.DefaultOutput,
		LogLevel:          string(logging.LevelInfo),
	}
}

// XDGConfigFile returns the per-user configuration file path.
func XDGConfigFile() string {
	return filepath.Join(xdg.ConfigHome, AppName, "config.yaml")
}

// Validate checks the configuration and returns the first problem found.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidEndpoint, c.Endpoint)
	}
	if c.RequestTimeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.Workers <= 0 {
		return ErrInvalidWorkers
	}
	if c.FailLimit <= 0 {
		return ErrInvalidFailLimit
	}
	if c.PaceInterval < 0 {
		return ErrInvalidPaceInterval
	}
	if c.QueriesPerMinute < 0 {
		return ErrInvalidQuota
	}
	if c.QuotaCooldown <= 0 {
		return ErrInvalidCooldown
	}
	if c.ShutdownRounds <= 0 || c.ShutdownWait <= 0 {
		return ErrInvalidShutdown
	}
	if c.ValidateProxies && c.ValidationTimeout <= 0 {
		return ErrInvalidValidationCfg
	}
	if err := logging.ValidateLevel(logging.LogLevel(c.LogLevel)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidLogLevel, err)
	}
	for _, entry := range c.Proxies {
		if _, err := proxypool.Parse(entry); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidProxy, err)
		}
	}
	return nil
}

// ScraperConfig returns the dispatcher settings.
func (c *Config) ScraperConfig() scraper.Config {
	return scraper.Config{
		Workers:          c.Workers,
		FailLimit:        c.FailLimit,
		PaceInterval:     c.PaceInterval,
		QueriesPerMinute: c.QueriesPerMinute,
	}
}

// SearchConfig returns the HTTP client settings.
func (c *Config) SearchConfig() search.Config {
	return search.Config{
		Endpoint:  c.Endpoint,
		UserAgent: c.UserAgent,
		Timeout:   c.RequestTimeout,
	}
}

// LoggingConfig returns the logger settings.
func (c *Config) LoggingConfig() logging.Config {
	return logging.Config{
		Level:  logging.LogLevel(c.LogLevel),
		Pretty: c.LogPretty,
	}
}

// LoadProxies collects the inline proxies and those of ProxyFile.
func (c *Config) LoadProxies() ([]proxypool.Proxy, error) {
	proxies, err := proxypool.ParseAll(c.Proxies)
	if err != nil {
		return nil, err
	}
	if c.ProxyFile != "" {
		fromFile, err := proxypool.LoadFile(c.ProxyFile)
		if err != nil {
			return nil, err
		}
		proxies = append(proxies, fromFile...)
	}
	return proxies, nil
}
