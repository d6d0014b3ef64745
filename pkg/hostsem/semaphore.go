// Package hostsem provides the counting semaphore with a timed wait that
// the Producer and Callback use to hand off across the decoupling layer
// (spec §4.2 step 4, §5), standing in for the host's
// thread_sem_create/wait/post/destroy primitives.
//
// golang.org/x/sync/semaphore.Weighted was considered and rejected: it
// requires every Release to be paired with a prior Acquire and panics on
// over-release, but here the Callback posts on every successful read
// regardless of whether the Producer happens to be waiting — exactly the
// case a POSIX counting semaphore is built to tolerate. A buffered channel
// saturating at its capacity is the standard idiomatic Go substitute and is
// used instead.
package hostsem

import "time"

// Semaphore is a counting semaphore backed by a buffered channel. Posting
// beyond capacity is a no-op rather than a panic or a block, matching a
// POSIX semaphore's saturating behavior for this use case: the Producer
// only ever needs to know "is there newly freed space", not exactly how
// much accumulated.
type Semaphore struct {
	tokens chan struct{}
}

// New creates a semaphore with the given capacity (at least 1) and initial
// count.
func New(capacity, initial int) *Semaphore {
	if capacity < 1 {
		capacity = 1
	}
	s := &Semaphore{tokens: make(chan struct{}, capacity)}
	for i := 0; i < initial && i < capacity; i++ {
		s.tokens <- struct{}{}
	}
	return s
}

// Wait blocks until Post is called or timeout elapses. Returns true if
// woken by a post, false on timeout.
func (s *Semaphore) Wait(timeout time.Duration) bool {
	select {
	case <-s.tokens:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Post wakes one waiter, or leaves a token available for the next Wait if
// none is currently waiting. Never blocks: if the token channel is already
// full, the post is dropped (the semaphore is already saturated and a
// waiter will find work available regardless).
func (s *Semaphore) Post() {
	select {
	case s.tokens <- struct{}{}:
	default:
	}
}

// Destroy drains any pending tokens. Idempotent and safe to call more than
// once; it does not close the channel, since a goroutine blocked in Wait
// reading from a closed channel would spin.
func (s *Semaphore) Destroy() {
	for {
		select {
		case <-s.tokens:
		default:
			return
		}
	}
}
