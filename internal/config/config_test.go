package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Endpoint != "https://darksearch.io/api/" {
		t.Errorf("Endpoint = %q", cfg.Endpoint)
	}
	if cfg.Workers != 5 {
		t.Errorf("Workers = %d, want 5", cfg.Workers)
	}
	if cfg.FailLimit != 10 {
		t.Errorf("FailLimit = %d, want 10", cfg.FailLimit)
	}
	if cfg.PaceInterval != time.Second {
		t.Errorf("PaceInterval = %v, want 1s", cfg.PaceInterval)
	}
	if cfg.QueriesPerMinute != 30 {
		t.Errorf("QueriesPerMinute = %d, want 30", cfg.QueriesPerMinute)
	}
	if cfg.ShutdownRounds != 2 || cfg.ShutdownWait != time.Second {
		t.Errorf("shutdown = %d x %v, want 2 x 1s", cfg.ShutdownRounds, cfg.ShutdownWait)
	}
	if cfg.Output != "results.json" {
		t.Errorf("Output = %q, want results.json", cfg.Output)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default().Validate() error = %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr error
	}{
		{"relative endpoint", func(c *Config) { c.Endpoint = "/api/" }, ErrInvalidEndpoint},
		{"ftp endpoint", func(c *Config) { c.Endpoint = "ftp://darksearch.io/" }, ErrInvalidEndpoint},
		{"zero timeout", func(c *Config) { c.RequestTimeout = 0 }, ErrInvalidTimeout},
		{"zero workers", func(c *Config) { c.Workers = 0 }, ErrInvalidWorkers},
		{"zero fail limit", func(c *Config) { c.FailLimit = 0 }, ErrInvalidFailLimit},
		{"negative pacing", func(c *Config) { c.PaceInterval = -time.Second }, ErrInvalidPaceInterval},
		{"negative quota", func(c *Config) { c.QueriesPerMinute = -1 }, ErrInvalidQuota},
		{"zero cooldown", func(c *Config) { c.QuotaCooldown = 0 }, ErrInvalidCooldown},
		{"zero shutdown rounds", func(c *Config) { c.ShutdownRounds = 0 }, ErrInvalidShutdown},
		{"zero shutdown wait", func(c *Config) { c.ShutdownWait = 0 }, ErrInvalidShutdown},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, ErrInvalidLogLevel},
		{"bad proxy", func(c *Config) { c.Proxies = []string{"ftp://relay:21"} }, ErrInvalidProxy},
		{"validation without timeout", func(c *Config) {
			c.ValidateProxies = true
			c.ValidationTimeout = 0
		}, ErrInvalidValidationCfg},
		{"zero pacing is fine", func(c *Config) { c.PaceInterval = 0 }, nil},
		{"unlimited quota is fine", func(c *Config) { c.QueriesPerMinute = 0 }, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "darksearch.yaml")
	content := `
workers: 3
fail_limit: 4
pace_interval: 250ms
quota_cooldown: 2m
proxies:
  - 127.0.0.1:8080
  - socks5://127.0.0.1:9050
output: out.json
log_level: debug
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Workers != 3 {
		t.Errorf("Workers = %d, want 3", cfg.Workers)
	}
	if cfg.FailLimit != 4 {
		t.Errorf("FailLimit = %d, want 4", cfg.FailLimit)
	}
	if cfg.PaceInterval != 250*time.Millisecond {
		t.Errorf("PaceInterval = %v, want 250ms", cfg.PaceInterval)
	}
	if cfg.QuotaCooldown != 2*time.Minute {
		t.Errorf("QuotaCooldown = %v, want 2m", cfg.QuotaCooldown)
	}
	if len(cfg.Proxies) != 2 {
		t.Errorf("Proxies = %v, want 2 entries", cfg.Proxies)
	}
	if cfg.Output != "out.json" {
		t.Errorf("Output = %q, want out.json", cfg.Output)
	}
	// untouched keys keep their defaults
	if cfg.QueriesPerMinute != 30 {
		t.Errorf("QueriesPerMinute = %d, want default 30", cfg.QueriesPerMinute)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}

	proxies, err := cfg.LoadProxies()
	if err != nil {
		t.Fatalf("LoadProxies() error = %v", err)
	}
	if len(proxies) != 2 || !proxies[1].IsSOCKS() {
		t.Errorf("LoadProxies() = %v", proxies)
	}
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	if _, err := Load(filepath.Join(dir, "missing.yaml")); !errors.Is(err, ErrConfigNotFound) {
		t.Errorf("Load(missing) error = %v, want ErrConfigNotFound", err)
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("workers: [1, 2"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(bad); err == nil {
		t.Error("Load(bad yaml) should fail")
	}
}

func TestFindFile(t *testing.T) {
	dir := t.TempDir()
	explicit := filepath.Join(dir, "custom.yaml")
	if err := os.WriteFile(explicit, []byte("workers: 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if got := FindFile(explicit); got != explicit {
		t.Errorf("FindFile(explicit) = %q, want %q", got, explicit)
	}
	if got := FindFile(filepath.Join(dir, "nope.yaml")); got != "" {
		t.Errorf("FindFile(missing) = %q, want empty", got)
	}
}

func TestResolve_ExplicitMissing(t *testing.T) {
	_, err := Resolve(filepath.Join(t.TempDir(), "nope.yaml"))
	if !errors.Is(err, ErrConfigNotFound) {
		t.Errorf("Resolve() error = %v, want ErrConfigNotFound", err)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"DARKSEARCH_WORKERS":       "8",
		"DARKSEARCH_PACE_INTERVAL": "2s",
		"DARKSEARCH_PROXIES":       "127.0.0.1:8080, direct ,",
		"DARKSEARCH_REDIS_ADDR":    "redis:6379",
		"DARKSEARCH_LOG_PRETTY":    "true",
		"UNRELATED":                "x",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	if err := cfg.ApplyEnv(lookup); err != nil {
		t.Fatalf("ApplyEnv() error = %v", err)
	}

	if cfg.Workers != 8 {
		t.Errorf("Workers = %d, want 8", cfg.Workers)
	}
	if cfg.PaceInterval != 2*time.Second {
		t.Errorf("PaceInterval = %v, want 2s", cfg.PaceInterval)
	}
	if len(cfg.Proxies) != 2 || cfg.Proxies[1] != "direct" {
		t.Errorf("Proxies = %q", cfg.Proxies)
	}
	if cfg.RedisAddr != "redis:6379" {
		t.Errorf("RedisAddr = %q", cfg.RedisAddr)
	}
	if !cfg.LogPretty {
		t.Error("LogPretty should be true")
	}
	if cfg.FailLimit != 10 {
		t.Errorf("FailLimit = %d, want default 10", cfg.FailLimit)
	}
}

func TestApplyEnv_InvalidValues(t *testing.T) {
	tests := map[string]string{
		"DARKSEARCH_WORKERS":          "many",
		"DARKSEARCH_QUOTA_COOLDOWN":   "soon",
		"DARKSEARCH_VALIDATE_PROXIES": "perhaps",
	}

	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			lookup := func(k string) (string, bool) {
				if k == key {
					return value, true
				}
				return "", false
			}
			if err := Default().ApplyEnv(lookup); err == nil {
				t.Errorf("ApplyEnv(%s=%s) should fail", key, value)
			}
		})
	}
}

func TestDerivedConfigs(t *testing.T) {
	cfg := Default()
	cfg.Workers = 7
	cfg.RequestTimeout = 5 * time.Second
	cfg.LogLevel = "warn"

	if sc := cfg.ScraperConfig(); sc.Workers != 7 || sc.FailLimit != 10 {
		t.Errorf("ScraperConfig() = %+v", sc)
	}
	if sc := cfg.SearchConfig(); sc.Timeout != 5*time.Second || sc.Endpoint != cfg.Endpoint {
		t.Errorf("SearchConfig() = %+v", sc)
	}
	if lc := cfg.LoggingConfig(); lc.Level != "warn" {
		t.Errorf("LoggingConfig().Level = %q", lc.Level)
	}
}
