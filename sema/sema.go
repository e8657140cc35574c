// Package sema provides the parking facility the fairlock core blocks on: a
// counting wait/signal primitive that keeps its own wait queue and wakes
// exactly one parked caller per signal.
package sema

import (
	"sync"

	"github.com/arf-rpc/fairlock/internal/spin"
)

type waiter struct {
	ready chan struct{}
	next  *waiter
}

var waiterPool = sync.Pool{
	New: func() interface{} { return &waiter{ready: make(chan struct{}, 1)} },
}

// Sema is a counting semaphore with an explicit FIFO wait queue. Signal hands
// a token directly to the queue head when one is parked, so a caller arriving
// concurrently through Wait cannot barge in front of the queue.
//
// The zero value is ready to use with zero tokens.
type Sema struct {
	mu     spin.Lock
	tokens uint32
	head   *waiter
	tail   *waiter
}

func New() *Sema {
	return &Sema{}
}

// Wait consumes one token, parking the caller until a token is available.
// When lifo is set the caller enqueues at the front of the queue instead of
// the back; a woken waiter that lost its race re-enters this way so it does
// not fall behind callers that arrived after it.
func (s *Sema) Wait(lifo bool) {
	s.mu.Acquire()
	if s.tokens > 0 {
		s.tokens--
		s.mu.Release()
		return
	}
	w := waiterPool.Get().(*waiter)
	if lifo {
		w.next = s.head
		s.head = w
		if s.tail == nil {
			s.tail = w
		}
	} else {
		w.next = nil
		if s.tail == nil {
			s.head = w
		} else {
			s.tail.next = w
		}
		s.tail = w
	}
	s.mu.Release()

	<-w.ready
	w.next = nil
	waiterPool.Put(w)
}

// Signal releases one token. If a waiter is parked the token transfers to the
// queue head directly; otherwise it is banked for the next Wait.
func (s *Sema) Signal() {
	s.mu.Acquire()
	w := s.head
	if w == nil {
		s.tokens++
		s.mu.Release()
		return
	}
	s.head = w.next
	if s.head == nil {
		s.tail = nil
	}
	s.mu.Release()

	// ready is buffered, so the handoff never blocks the signaler.
	w.ready <- struct{}{}
}
