package config

import "errors"

// Configuration validation errors returned by Config.Validate.
var (
	ErrConfigNotFound       = errors.New("configuration file not found")
	ErrInvalidEndpoint      = errors.New("invalid endpoint: must be an absolute http(s) URL")
	ErrInvalidWorkers       = errors.New("invalid workers: must be positive")
	ErrInvalidFailLimit     = errors.New("invalid fail limit: must be positive")
	ErrInvalidPaceInterval  = errors.New("invalid pace interval: must be non-negative")
	ErrInvalidTimeout       = errors.New("invalid request timeout: must be positive")
	ErrInvalidQuota         = errors.New("invalid queries per minute: must be non-negative")
	ErrInvalidCooldown      = errors.New("invalid quota cooldown: must be positive")
	ErrInvalidShutdown      = errors.New("invalid shutdown policy: rounds and wait must be positive")
	ErrInvalidLogLevel      = errors.New("invalid log level")
	ErrInvalidProxy         = errors.New("invalid proxy entry")
	ErrInvalidValidationCfg = errors.New("invalid proxy validation: timeout must be positive")
)
