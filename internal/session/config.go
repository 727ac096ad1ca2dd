package session

import "time"

// BackoffConfig defines retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines resume and reconnect defaults for every node.
type Config struct {
	Resume        bool
	ResumeTimeout time.Duration
	Backoff       BackoffConfig
	// MaxAttempts caps consecutive reconnects; 0 retries forever.
	MaxAttempts int
}

// DefaultConfig returns the defaults used when no config file overrides them.
func DefaultConfig() Config {
	return Config{
		Resume:        false,
		ResumeTimeout: 60 * time.Second,
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     30 * time.Second,
			Jitter:       true,
		},
		MaxAttempts: 0,
	}
}
