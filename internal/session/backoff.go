package session

import (
	"math"
	"math/rand"
	"time"
)

// NextBackoffDelay returns the reconnect delay for attempt N (1-based).
// Jitter scales the delay into [0.5, 1.5) of its nominal value.
func NextBackoffDelay(cfg BackoffConfig, attempt int, rng *rand.Rand) time.Duration {
	if cfg.InitialDelay <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	if cfg.Multiplier < 1.0 {
		cfg.Multiplier = 1.0
	}
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	if cfg.Jitter {
		f := 0.5
		if rng != nil {
			f = 0.5 + rng.Float64()
		}
		delay *= f
	}
	return time.Duration(delay)
}

// Backoff counts consecutive failures for one node. Not safe for concurrent
// use; each supervisor owns its own.
type Backoff struct {
	cfg      BackoffConfig
	max      int
	attempts int
	rng      *rand.Rand
}

func NewBackoff(cfg Config, rng *rand.Rand) *Backoff {
	return &Backoff{cfg: cfg.Backoff, max: cfg.MaxAttempts, rng: rng}
}

// Next advances the attempt counter. ok is false once MaxAttempts is spent.
func (b *Backoff) Next() (time.Duration, bool) {
	if b.max > 0 && b.attempts >= b.max {
		return 0, false
	}
	b.attempts++
	return NextBackoffDelay(b.cfg, b.attempts, b.rng), true
}

// Reset is called after a connection reaches the open state.
func (b *Backoff) Reset() { b.attempts = 0 }

func (b *Backoff) Attempts() int { return b.attempts }
