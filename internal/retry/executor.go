package retry

import (
	"context"
	"time"

	"github.com/vvka-141/sqlpool/pkg/sqlpool"
)

// Sleeper pauses for d. It returns early with ctx.Err() once ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// TimerSleeper waits on a real timer.
func TimerSleeper(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RetryHook observes a failed attempt right before the pause that follows it.
type RetryHook func(attempt int, err error, delay time.Duration)

// Executor repeats an operation while its errors classify as transient.
// It holds no per-call state; the With* methods return modified copies.
type Executor struct {
	classifier sqlpool.ErrorClassifier
	strategy   sqlpool.BackoffStrategy
	sleep      Sleeper
	onRetry    RetryHook
}

// NewExecutor panics when classifier or strategy is nil.
func NewExecutor(classifier sqlpool.ErrorClassifier, strategy sqlpool.BackoffStrategy) *Executor {
	if classifier == nil || strategy == nil {
		panic("retry: NewExecutor needs a classifier and a strategy")
	}
	return &Executor{classifier: classifier, strategy: strategy, sleep: TimerSleeper}
}

// WithOnRetry returns a copy that calls hook before every pause.
func (e *Executor) WithOnRetry(hook RetryHook) *Executor {
	c := *e
	c.onRetry = hook
	return &c
}

// WithSleeper returns a copy that pauses through s instead of a real timer.
func (e *Executor) WithSleeper(s Sleeper) *Executor {
	c := *e
	c.sleep = s
	return &c
}

// Execute calls op up to MaxAttempts times. A permanent error comes back as
// is, a cancelled wait returns ctx.Err(), and running out of attempts yields
// *sqlpool.ExhaustedRetriesError around the last failure.
func (e *Executor) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := max(e.strategy.MaxAttempts(), 1)

	err := op(ctx)
	for failed := 0; err != nil; failed++ {
		if !e.classifier.IsTransient(err) {
			return err
		}
		if failed+1 >= attempts {
			return &sqlpool.ExhaustedRetriesError{Attempts: attempts, LastErr: err}
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		delay := e.strategy.NextDelay(failed)
		if e.onRetry != nil {
			e.onRetry(failed, err, delay)
		}
		if sleepErr := e.sleep(ctx, delay); sleepErr != nil {
			return sleepErr
		}
		err = op(ctx)
	}
	return nil
}
