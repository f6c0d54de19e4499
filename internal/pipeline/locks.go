package pipeline

import (
	"context"
	"sync"
	"time"
)

// candidateLocks serializes the read-append-update sequence per candidate.
// Locks are sharded by candidate id: transitions for distinct candidates
// never contend. Entries are refcounted and dropped once idle so the table
// does not grow with the total candidate population.
type candidateLocks struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

// lockEntry is a channel-based mutex: holding the token in ch means
// holding the lock. A channel (rather than sync.Mutex) allows the bounded
// wait and context cancellation below.
type lockEntry struct {
	ch   chan struct{}
	refs int
}

func newCandidateLocks() *candidateLocks {
	return &candidateLocks{entries: make(map[string]*lockEntry)}
}

// acquire blocks until the candidate's lock is held, the wait elapses, or
// ctx is cancelled. On success it returns a release func that must be
// called exactly once. On timeout it returns ErrLockTimeout.
func (l *candidateLocks) acquire(ctx context.Context, candidateID string, wait time.Duration) (func(), error) {
	l.mu.Lock()
	e, ok := l.entries[candidateID]
	if !ok {
		e = &lockEntry{ch: make(chan struct{}, 1)}
		l.entries[candidateID] = e
	}
	e.refs++
	l.mu.Unlock()

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case e.ch <- struct{}{}:
		return func() {
			<-e.ch
			l.drop(candidateID, e)
		}, nil
	case <-timer.C:
		l.drop(candidateID, e)
		return nil, ErrLockTimeout
	case <-ctx.Done():
		l.drop(candidateID, e)
		return nil, ctx.Err()
	}
}

// drop decrements an entry's refcount and removes it when idle.
func (l *candidateLocks) drop(candidateID string, e *lockEntry) {
	l.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, candidateID)
	}
	l.mu.Unlock()
}
