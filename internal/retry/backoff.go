package retry

import (
	"math"
	"time"

	"github.com/vvka-141/sqlpool/pkg/sqlpool"
)

// ExponentialBackoff doubles the wait after every failed attempt:
// base, 2*base, 4*base and so on, optionally capped.
type ExponentialBackoff struct {
	base        time.Duration
	max         time.Duration // 0 = uncapped
	maxAttempts int
}

var _ sqlpool.BackoffStrategy = (*ExponentialBackoff)(nil)

// BackoffOption configures an ExponentialBackoff.
type BackoffOption func(*ExponentialBackoff)

// WithInitialDelay sets the wait after the first failed attempt.
func WithInitialDelay(d time.Duration) BackoffOption {
	return func(b *ExponentialBackoff) { b.base = d }
}

// WithMaxDelay caps a single wait. Zero disables the cap.
func WithMaxDelay(d time.Duration) BackoffOption {
	return func(b *ExponentialBackoff) { b.max = d }
}

// NewExponentialBackoff allows maxAttempts calls in total; values below 1 are
// raised to 1. The initial delay defaults to sqlpool.DefaultBaseBackoff.
func NewExponentialBackoff(maxAttempts int, opts ...BackoffOption) *ExponentialBackoff {
	b := &ExponentialBackoff{base: sqlpool.DefaultBaseBackoff, maxAttempts: max(maxAttempts, 1)}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// FromPoolOptions builds the reconnect schedule described by PoolOptions.
func FromPoolOptions(o sqlpool.PoolOptions) *ExponentialBackoff {
	return NewExponentialBackoff(o.MaxRetries, WithInitialDelay(o.BaseBackoff), WithMaxDelay(o.MaxBackoff))
}

// NextDelay returns the wait after the zero-based failed attempt.
// Results that would overflow saturate at the cap, or at math.MaxInt64.
func (b *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	limit := time.Duration(math.MaxInt64)
	if b.max > 0 {
		limit = b.max
	}
	if b.base <= 0 {
		return 0
	}
	if attempt < 0 {
		attempt = 0
	}

	d := b.base
	for i := 0; i < attempt; i++ {
		if d > limit/2 {
			return limit
		}
		d *= 2
	}
	return min(d, limit)
}

// MaxAttempts returns the total number of attempts.
func (b *ExponentialBackoff) MaxAttempts() int {
	return b.maxAttempts
}
