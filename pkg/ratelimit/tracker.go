package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Tracker records quota faults and reports the resulting cooldown.
// With a Redis client the state is shared by every process using the same
// server; without one it lives in memory.
type Tracker struct {
	redis    *redis.Client
	cooldown time.Duration
	logger   zerolog.Logger

	mu    sync.Mutex
	local QuotaState
}

// NewTracker creates a new quota tracker. redisClient may be nil.
func NewTracker(redisClient *redis.Client, cooldown time.Duration, logger zerolog.Logger) *Tracker {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Tracker{
		redis:    redisClient,
		cooldown: cooldown,
		logger:   logger,
	}
}

// Cooldown returns the back-off applied after each quota fault.
func (t *Tracker) Cooldown() time.Duration {
	return t.cooldown
}

// Shared reports whether the state is kept in Redis.
func (t *Tracker) Shared() bool {
	return t.redis != nil
}

// GetState retrieves the current quota state.
// Returns the zero state if nothing was recorded yet.
func (t *Tracker) GetState(ctx context.Context) (*QuotaState, error) {
	if t.redis == nil {
		t.mu.Lock()
		defer t.mu.Unlock()
		state := t.local
		return &state, nil
	}

	until, err := t.getInt64(ctx, RedisKeyCooldownUntil)
	if err != nil {
		return nil, fmt.Errorf("get cooldown: %w", err)
	}
	hits, err := t.getInt64(ctx, RedisKeyHits)
	if err != nil {
		return nil, fmt.Errorf("get hits: %w", err)
	}
	lastHit, err := t.getInt64(ctx, RedisKeyLastHit)
	if err != nil {
		return nil, fmt.Errorf("get last hit: %w", err)
	}

	state := &QuotaState{Hits: hits}
	if until > 0 {
		state.CooldownUntil = time.UnixMilli(until)
	}
	if lastHit > 0 {
		state.LastHit = time.UnixMilli(lastHit)
	}
	return state, nil
}

// CooldownRemaining returns how long requests still have to wait.
func (t *Tracker) CooldownRemaining(ctx context.Context) (time.Duration, error) {
	state, err := t.GetState(ctx)
	if err != nil {
		return 0, err
	}
	return state.TimeUntilReset(), nil
}

// RecordQuotaExceeded starts (or extends) the cooldown from now.
func (t *Tracker) RecordQuotaExceeded(ctx context.Context) error {
	now := time.Now()
	until := now.Add(t.cooldown)

	if t.redis == nil {
		t.mu.Lock()
		if until.After(t.local.CooldownUntil) {
			t.local.CooldownUntil = until
		}
		t.local.Hits++
		t.local.LastHit = now
		hits := t.local.Hits
		t.mu.Unlock()

		t.logQuotaHit(until, hits)
		return nil
	}

	// the key expires with the cooldown so a stale value never blocks a later run
	pipe := t.redis.TxPipeline()
	pipe.Set(ctx, RedisKeyCooldownUntil, until.UnixMilli(), t.cooldown)
	hitsCmd := pipe.Incr(ctx, RedisKeyHits)
	pipe.Set(ctx, RedisKeyLastHit, now.UnixMilli(), 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store quota state in redis: %w", err)
	}

	t.logQuotaHit(until, hitsCmd.Val())
	return nil
}

// Reset clears the recorded state.
func (t *Tracker) Reset(ctx context.Context) error {
	if t.redis == nil {
		t.mu.Lock()
		t.local = QuotaState{}
		t.mu.Unlock()
		return nil
	}

	if err := t.redis.Del(ctx, RedisKeyCooldownUntil, RedisKeyHits, RedisKeyLastHit).Err(); err != nil {
		return fmt.Errorf("clear quota state in redis: %w", err)
	}
	return nil
}

func (t *Tracker) getInt64(ctx context.Context, key string) (int64, error) {
	v, err := t.redis.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

func (t *Tracker) logQuotaHit(until time.Time, hits int64) {
	t.logger.Warn().
		Time("cooldown_until", until).
		Dur("cooldown", t.cooldown).
		Int64("hits", hits).
		Bool("shared", t.Shared()).
		Msg("API quota exceeded - pausing all workers")
}
