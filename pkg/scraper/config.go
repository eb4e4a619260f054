package scraper

import (
	"time"

	"github.com/Sternrassler/darksearch-client/pkg/ratelimit"
)

const (
	// DefaultWorkers is the number of concurrent workers per run.
	DefaultWorkers = 5

	// DefaultFailLimit is the number of consecutive failures after which a
	// worker swaps its relay.
	DefaultFailLimit = 10

	// DefaultPaceInterval is the pause after every request of a worker.
	DefaultPaceInterval = time.Second

	// DefaultShutdownRounds is the number of waits after an interrupt.
	DefaultShutdownRounds = 2

	// DefaultShutdownWait is the length of one shutdown round.
	DefaultShutdownWait = time.Second
)

// Config holds dispatcher configuration
type Config struct {
	// Workers is the maximum number of concurrent workers
	Workers int

	// FailLimit triggers a relay swap every FailLimit consecutive failures
	FailLimit int

	// PaceInterval is the pause after every request
	PaceInterval time.Duration

	// QueriesPerMinute is only used to estimate the run time
	QueriesPerMinute int
}

// DefaultConfig returns the configuration matching the public API quota
func DefaultConfig() Config {
	return Config{
		Workers:          DefaultWorkers,
		FailLimit:        DefaultFailLimit,
		PaceInterval:     DefaultPaceInterval,
		QueriesPerMinute: ratelimit.DefaultQueriesPerMinute,
	}
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.FailLimit <= 0 {
		c.FailLimit = DefaultFailLimit
	}
	if c.PaceInterval < 0 {
		c.PaceInterval = 0
	}
	if c.QueriesPerMinute <= 0 {
		c.QueriesPerMinute = ratelimit.DefaultQueriesPerMinute
	}
	return c
}
