// Package pool keeps live database connections keyed by connection
// fingerprint and hands them out one caller at a time.
//
// Each fingerprint gets a sub-pool, created on first use, with its own lock,
// idle stack and checked-out set. The number of open connections per
// sub-pool (idle, checked out, and being opened) never exceeds
// PoolOptions.MaxPoolSize. There is no wait queue: when every slot is taken
// Checkout fails at once with *sqlpool.PoolExhaustedError.
//
// Network I/O (opening, health checks, closing) never happens while a
// sub-pool lock is held.
//
// # Process identity
//
// A Pool remembers the pid it was built in. If the pid changes (the process
// forked) the first access swaps in an empty registry. Inherited handles are
// dropped, never closed: they share file descriptors with the parent.
package pool
