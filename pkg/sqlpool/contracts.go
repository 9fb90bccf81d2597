package sqlpool

import "time"

// Logger receives printf-style messages from the pool and the CLI. Every
// implementation is called from many goroutines at once.
//
// Verbose carries per-connection detail and is hidden unless the user asked
// for it. Info and Error are always shown.
type Logger interface {
	Verbose(format string, args ...interface{})
	Info(format string, args ...interface{})
	Error(format string, args ...interface{})
}

// ErrorClassifier decides whether a failed attempt is worth repeating.
type ErrorClassifier interface {
	IsTransient(err error) bool
}

// BackoffStrategy is the retry schedule. NextDelay(i) is the pause after the
// i-th failed attempt, counting from zero. MaxAttempts includes the first
// attempt and is never below one.
type BackoffStrategy interface {
	NextDelay(attempt int) time.Duration
	MaxAttempts() int
}
