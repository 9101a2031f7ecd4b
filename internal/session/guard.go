package session

import "sync"

// opGuard is a single-flight gate: a caller that loses the race is rejected
// immediately rather than queued. Retry is the caller's decision.
type opGuard struct {
	mu sync.Mutex
}

func (g *opGuard) tryAcquire() bool {
	return g.mu.TryLock()
}

func (g *opGuard) release() {
	g.mu.Unlock()
}
