package sqlpool

import "time"

// CloseReason explains why a connection left the pool.
type CloseReason string

const (
	CloseReasonUnhealthy   CloseReason = "unhealthy"
	CloseReasonBroken      CloseReason = "broken"
	CloseReasonStale       CloseReason = "stale"
	CloseReasonCloseAll    CloseReason = "close_all"
	CloseReasonNoReuse     CloseReason = "no_reuse"
	CloseReasonPoolClosed  CloseReason = "pool_closed"
	CloseReasonOpenAborted CloseReason = "open_aborted"
)

// Observer receives pool and cursor events. Implementations must be safe for
// concurrent use and must not block.
type Observer interface {
	ConnectionOpened(fp Fingerprint, took time.Duration)
	ConnectionClosed(fp Fingerprint, reason CloseReason)
	ConnectRetried(fp Fingerprint, attempt int, delay time.Duration)
	CheckedOut(fp Fingerprint, reused bool)
	CheckedIn(fp Fingerprint)
	HealthCheckFailed(fp Fingerprint)
	PoolExhausted(fp Fingerprint)
	StatementRetried(fp Fingerprint, kind ErrorKind)
	StatementFailed(fp Fingerprint, kind ErrorKind)
}

// NopObserver discards every event.
type NopObserver struct{}

func (NopObserver) ConnectionOpened(Fingerprint, time.Duration) {}
func (NopObserver) ConnectionClosed(Fingerprint, CloseReason) {}
func (NopObserver) ConnectRetried(Fingerprint, int, time.Duration) {}
func (NopObserver) CheckedOut(Fingerprint, bool) {}
func (NopObserver) CheckedIn(Fingerprint) {}
func (NopObserver) HealthCheckFailed(Fingerprint) {}
func (NopObserver) PoolExhausted(Fingerprint) {}
func (NopObserver) StatementRetried(Fingerprint, ErrorKind) {}
func (NopObserver) StatementFailed(Fingerprint, ErrorKind) {}

var _ Observer = NopObserver{}
