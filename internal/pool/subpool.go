package pool

import (
	"sync"

	"github.com/google/uuid"

	"github.com/vvka-141/sqlpool/pkg/sqlpool"
)

// subPool is the bookkeeping for one fingerprint. All fields are guarded by
// mu; the connections themselves are never touched while it is held.
type subPool struct {
	fingerprint sqlpool.Fingerprint
	maxSize     int

	mu         sync.Mutex
	idle       []*sqlpool.PooledConnection
	checkedOut map[uuid.UUID]*sqlpool.PooledConnection
	// open counts idle, checked-out and reserved-but-opening connections.
	open       int
	generation uint64
}

func newSubPool(fp sqlpool.Fingerprint, maxSize int) *subPool {
	return &subPool{
		fingerprint: fp,
		maxSize:     maxSize,
		checkedOut:  make(map[uuid.UUID]*sqlpool.PooledConnection),
	}
}

// popIdle removes the most recently returned idle connection.
func (s *subPool) popIdle() *sqlpool.PooledConnection {
	n := len(s.idle)
	if n == 0 {
		return nil
	}
	conn := s.idle[n-1]
	s.idle[n-1] = nil
	s.idle = s.idle[:n-1]
	return conn
}

// reserve claims a slot for a connection about to be opened.
func (s *subPool) reserve() bool {
	if s.open >= s.maxSize {
		return false
	}
	s.open++
	return true
}

// release gives back a slot whose connection is gone or never materialised.
func (s *subPool) release() {
	if s.open > 0 {
		s.open--
	}
}

// untrack forgets a checked-out connection. It reports whether conn was tracked.
func (s *subPool) untrack(conn *sqlpool.PooledConnection) bool {
	if _, ok := s.checkedOut[conn.ID()]; !ok {
		return false
	}
	delete(s.checkedOut, conn.ID())
	return true
}

func (s *subPool) stats() Stats {
	return Stats{
		Fingerprint: s.fingerprint,
		Idle:        len(s.idle),
		InUse:       len(s.checkedOut),
		Open:        s.open,
		Max:         s.maxSize,
		Generation:  s.generation,
	}
}
