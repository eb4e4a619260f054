package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the configuration file looked up in the working directory.
const DefaultConfigFile = "darksearch.yaml"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "DARKSEARCH_"

// Load reads a YAML file on top of the defaults. Keys missing from the
// file keep their default value.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// FindFile searches for the configuration file in the following order:
// 1. configPath, if given
// 2. darksearch.yaml in the current directory
// 3. $XDG_CONFIG_HOME/darksearch/config.yaml
//
// Returns the empty string if no file exists.
func FindFile(configPath string) string {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		return ""
	}

	if _, err := os.Stat(DefaultConfigFile); err == nil {
		return DefaultConfigFile
	}

	if path := XDGConfigFile(); path != "" {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// Resolve loads the file FindFile picks (defaults when there is none) and
// applies the environment. An explicit configPath that does not exist is
// an error.
func Resolve(configPath string) (*Config, error) {
	cfg := Default()

	path := FindFile(configPath)
	if configPath != "" && path == "" {
		return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, configPath)
	}
	if path != "" {
		loaded, err := Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides settings from DARKSEARCH_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	strVars := map[string]*string{
		"ENDPOINT":          &c.Endpoint,
		"USER_AGENT":        &c.UserAgent,
		"PROXY_FILE":        &c.ProxyFile,
		"VALIDATION_TARGET": &c.ValidationTarget,
		"OUTPUT":            &c.Output,
		"REDIS_ADDR":        &c.RedisAddr,
		"METRICS_ADDR":      &c.MetricsAddr,
		"LOG_LEVEL":         &c.LogLevel,
	}
	for name, dst := range strVars {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}

	intVars := map[string]*int{
		"WORKERS":            &c.Workers,
		"FAIL_LIMIT":         &c.FailLimit,
		"QUERIES_PER_MINUTE": &c.QueriesPerMinute,
		"SHUTDOWN_ROUNDS":    &c.ShutdownRounds,
	}
	for name, dst := range intVars {
		if v, ok := lookup(EnvPrefix + name); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("parse %s%s: %w", EnvPrefix, name, err)
			}
			*dst = n
		}
	}

	durVars := map[string]*time.Duration{
		"REQUEST_TIMEOUT":    &c.RequestTimeout,
		"PACE_INTERVAL":      &c.PaceInterval,
		"QUOTA_COOLDOWN":     &c.QuotaCooldown,
		"SHUTDOWN_WAIT":      &c.ShutdownWait,
		"VALIDATION_TIMEOUT": &c.ValidationTimeout,
	}
	for name, dst := range durVars {
		if v, ok := lookup(EnvPrefix + name); ok {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("parse %s%s: %w", EnvPrefix, name, err)
			}
			*dst = d
		}
	}

	boolVars := map[string]*bool{
		"VALIDATE_PROXIES": &c.ValidateProxies,
		"RESET_QUOTA":      &c.ResetQuota,
		"LOG_PRETTY":       &c.LogPretty,
	}
	for name, dst := range boolVars {
		if v, ok := lookup(EnvPrefix + name); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("parse %s%s: %w", EnvPrefix, name, err)
			}
			*dst = b
		}
	}

	if v, ok := lookup(EnvPrefix + "PROXIES"); ok {
		c.Proxies = splitList(v)
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
