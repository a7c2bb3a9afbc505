// Package resilience provides the deadline circuit breaker guarding the
// official video-search API.
//
// The central type is [DeadlineBreaker], a process-wide flag with an expiry:
// a single quota-exhaustion failure trips the breaker and suppresses further
// calls until the hold duration elapses. This is deliberately simpler than a
// counting closed/open/half-open breaker — search quotas reset on a fixed
// upstream schedule, so probing early only burns more quota.
//
// All methods are safe for concurrent use.
package resilience

import (
	"log/slog"
	"sync"
	"time"
)

// defaultHold is how long the breaker stays down after a trip. Video-search
// quotas reset daily; a few hours keeps the fallback path responsive without
// hammering an exhausted key.
const defaultHold = 6 * time.Hour

// DeadlineBreaker is a trip-until-deadline circuit breaker.
type DeadlineBreaker struct {
	name string
	hold time.Duration
	now  func() time.Time

	mu    sync.Mutex
	until time.Time
}

// BreakerConfig holds tuning knobs for a [DeadlineBreaker].
type BreakerConfig struct {
	// Name is a human-readable label used in log messages.
	Name string

	// Hold is how long the breaker stays down after [DeadlineBreaker.Trip].
	// Default: 6h.
	Hold time.Duration

	// Now overrides the clock. Tests use this; production leaves it nil.
	Now func() time.Time
}

// NewDeadlineBreaker creates a [DeadlineBreaker] with the supplied
// configuration. Zero-value fields are replaced with defaults.
func NewDeadlineBreaker(cfg BreakerConfig) *DeadlineBreaker {
	if cfg.Hold <= 0 {
		cfg.Hold = defaultHold
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &DeadlineBreaker{
		name: cfg.Name,
		hold: cfg.Hold,
		now:  cfg.Now,
	}
}

// Trip marks the protected resource as unavailable until now+hold.
// Re-tripping while already down extends the deadline.
func (b *DeadlineBreaker) Trip() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.until = b.now().Add(b.hold)
	slog.Warn("circuit breaker tripped",
		"name", b.name,
		"until", b.until,
	)
}

// Down reports whether the breaker is currently suppressing calls.
func (b *DeadlineBreaker) Down() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.now().Before(b.until)
}

// Until returns the deadline after which calls resume. The zero time means
// the breaker has never tripped.
func (b *DeadlineBreaker) Until() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.until
}

// Reset clears the breaker immediately.
func (b *DeadlineBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.until = time.Time{}
	slog.Info("circuit breaker manually reset", "name", b.name)
}
