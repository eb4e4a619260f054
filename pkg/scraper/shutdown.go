package scraper

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Run is what a Coordinator shuts down. *Dispatcher implements it.
type Run interface {
	Cancel()
	Done() <-chan struct{}
	Active() int
}

// Coordinator waits for a run to finish and turns an interrupt into a
// bounded shutdown: cancel all workers once, then wait up to Rounds times
// RoundWait for them to exit.
type Coordinator struct {
	run    Run
	rounds int
	wait   time.Duration
	logger zerolog.Logger

	cancelOnce sync.Once
}

// NewCoordinator creates a coordinator for run. Non-positive values fall
// back to DefaultShutdownRounds and DefaultShutdownWait.
func NewCoordinator(run Run, rounds int, wait time.Duration, logger zerolog.Logger) *Coordinator {
	if rounds <= 0 {
		rounds = DefaultShutdownRounds
	}
	if wait <= 0 {
		wait = DefaultShutdownWait
	}
	return &Coordinator{
		run:    run,
		rounds: rounds,
		wait:   wait,
		logger: logger,
	}
}

// Run blocks until the run finishes (nil) or a shutdown is triggered by
// interrupt or ctx. A shutdown returns nil when every worker exited in
// time and ErrShutdownTimeout otherwise, leaving the remaining workers
// behind. Each further interrupt during the shutdown ends the current
// round early.
func (c *Coordinator) Run(ctx context.Context, interrupt <-chan os.Signal) error {
	select {
	case <-c.run.Done():
		return nil
	case sig := <-interrupt:
		c.logger.Warn().Str("signal", sig.String()).Msg("Attempting to stop all workers gracefully")
	case <-ctx.Done():
		c.logger.Warn().Err(ctx.Err()).Msg("Context done, stopping all workers")
	}

	c.cancelOnce.Do(c.run.Cancel)

	for round := 1; round <= c.rounds; round++ {
		timer := time.NewTimer(c.wait)
		select {
		case <-c.run.Done():
			timer.Stop()
			c.logger.Info().Int("round", round).Msg("All workers stopped")
			return nil
		case sig := <-interrupt:
			timer.Stop()
			c.logger.Warn().
				Str("signal", sig.String()).
				Int("round", round).
				Int("active", c.run.Active()).
				Msg("Interrupt received again")
		case <-timer.C:
			c.logger.Warn().
				Int("round", round).
				Int("active", c.run.Active()).
				Msg("Workers still active")
		}
	}

	select {
	case <-c.run.Done():
		return nil
	default:
	}

	active := c.run.Active()
	c.logger.Error().Int("active", active).Msg("Shutdown timed out, abandoning workers")
	return fmt.Errorf("%w: %d still running", ErrShutdownTimeout, active)
}
