package ratelimit

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Prometheus metrics for quota gating.
var (
	quotaExceededTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "darksearch_quota_exceeded_total",
		Help: "Total number of 429 quota answers reported to the gate",
	})

	quotaCooldownWaitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "darksearch_quota_cooldown_waits_total",
		Help: "Total number of requests delayed by a quota cooldown",
	})
)

// Gate paces requests of all workers of a run. Every request first waits
// out an active quota cooldown, then takes a token from the bucket.
type Gate struct {
	limiter *rate.Limiter
	tracker *Tracker
	logger  zerolog.Logger
}

// NewGate creates a gate allowing queriesPerMinute requests per minute.
// A non-positive budget disables the token bucket. tracker may be nil,
// in which case quota faults are only counted.
func NewGate(queriesPerMinute int, tracker *Tracker, logger zerolog.Logger) *Gate {
	limit := rate.Inf
	if queriesPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(queriesPerMinute))
	}
	return &Gate{
		limiter: rate.NewLimiter(limit, 1),
		tracker: tracker,
		logger:  logger,
	}
}

// Wait blocks until a request may be sent or ctx is done.
func (g *Gate) Wait(ctx context.Context) error {
	if g.tracker != nil {
		if err := g.waitCooldown(ctx); err != nil {
			return err
		}
	}
	return g.limiter.Wait(ctx)
}

// waitCooldown loops because another worker may extend the cooldown while
// this one sleeps.
func (g *Gate) waitCooldown(ctx context.Context) error {
	for {
		remaining, err := g.tracker.CooldownRemaining(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// an unreachable store must not stall the run
			g.logger.Warn().Err(err).Msg("Failed to read quota state, continuing without cooldown")
			return nil
		}
		if remaining <= 0 {
			return nil
		}

		quotaCooldownWaitsTotal.Inc()
		g.logger.Debug().
			Dur("wait_duration", remaining).
			Msg("Quota cooldown active - delaying request")

		timer := time.NewTimer(remaining)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// ReportQuotaExceeded records a 429 answer and starts the shared cooldown.
func (g *Gate) ReportQuotaExceeded(ctx context.Context) {
	quotaExceededTotal.Inc()
	if g.tracker == nil {
		return
	}
	if err := g.tracker.RecordQuotaExceeded(ctx); err != nil {
		g.logger.Error().Err(err).Msg("Failed to record quota fault")
	}
}
