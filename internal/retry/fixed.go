package retry

import "time"

// Default retry bounds shared by fetches and uploads.
const (
	DefaultMaxRetries = 3
	DefaultDelay      = 10 * time.Millisecond
)

// FixedPolicy retries every error up to MaxRetries times with a constant delay.
// It does not classify errors.
type FixedPolicy struct {
	MaxRetries int
	Delay      time.Duration
}

// NewFixedPolicy builds a FixedPolicy. Negative values fall back to zero.
func NewFixedPolicy(maxRetries int, delay time.Duration) *FixedPolicy {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if delay < 0 {
		delay = 0
	}
	return &FixedPolicy{MaxRetries: maxRetries, Delay: delay}
}

// DefaultFixedPolicy returns three retries with a 10ms delay.
func DefaultFixedPolicy() *FixedPolicy {
	return NewFixedPolicy(DefaultMaxRetries, DefaultDelay)
}

// ShouldRetry reports whether another attempt is allowed.
func (p *FixedPolicy) ShouldRetry(err error, attempt int) bool {
	return err != nil && attempt <= p.MaxRetries
}

// Backoff returns the constant delay.
func (p *FixedPolicy) Backoff(int) time.Duration {
	return p.Delay
}
