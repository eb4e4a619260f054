// Package ratelimit gates search requests behind a shared token bucket and
// a quota cooldown. After the API answers 429 every worker waits out the
// cooldown before its next request. The cooldown can be shared across
// processes through Redis.
package ratelimit

import (
	"time"
)

// Redis keys for quota state storage.
const (
	RedisKeyCooldownUntil = "darksearch:quota:cooldown_until"
	RedisKeyHits          = "darksearch:quota:hits"
	RedisKeyLastHit       = "darksearch:quota:last_hit"
)

const (
	// DefaultQueriesPerMinute is the request budget of the public API.
	DefaultQueriesPerMinute = 30

	// DefaultCooldown is how long every worker backs off after a 429.
	DefaultCooldown = 60 * time.Second
)

// QuotaState is the quota cooldown as seen by one tracker.
type QuotaState struct {
	// CooldownUntil is the end of the current cooldown, zero when none was recorded.
	CooldownUntil time.Time `json:"cooldown_until"`

	// Hits counts the 429 answers recorded so far.
	Hits int64 `json:"hits"`

	// LastHit is when the most recent 429 was recorded.
	LastHit time.Time `json:"last_hit"`
}

// InCooldown reports whether requests must wait at now.
func (s *QuotaState) InCooldown(now time.Time) bool {
	return now.Before(s.CooldownUntil)
}

// TimeUntilReset returns the duration until the cooldown ends.
// Returns 0 if the cooldown has already passed.
func (s *QuotaState) TimeUntilReset() time.Duration {
	duration := time.Until(s.CooldownUntil)
	if duration < 0 {
		return 0
	}
	return duration
}
