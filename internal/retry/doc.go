// Package retry provides automatic retry logic with exponential backoff
// for transient connection failures.
//
// The package supports pluggable error classification and backoff strategies.
// The pool uses it to reopen connections; it has no knowledge of pooling itself.
//
// # Example Usage
//
//	strategy := retry.NewExponentialBackoff(3, retry.WithInitialDelay(time.Second))
//	executor := retry.NewExecutor(retry.NewConnectErrorClassifier(), strategy)
//
//	err := executor.Execute(ctx, func(ctx context.Context) error {
//	    return openConnection(ctx)
//	})
//
// # Attempts
//
// MaxAttempts counts every call of the operation, the first one included.
// With MaxAttempts 3 and an initial delay of 1s the operation runs at most three
// times with sleeps of 1s and 2s in between. When the last attempt fails
// transiently Execute returns *sqlpool.ExhaustedRetriesError wrapping it.
//
// # Thread Safety
//
// Executor instances are safe for concurrent use. WithOnRetry and WithSleeper
// return independent copies.
package retry
