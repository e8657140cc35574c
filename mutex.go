// Package fairlock implements a mutual-exclusion lock with two fairness
// modes. In normal mode any ready caller may win a handoff race, which keeps
// latency low under light contention. Once a single waiter has been blocked
// for longer than the starvation threshold the lock switches to starving
// mode, where ownership is handed directly to the longest-waiting caller in
// strict FIFO order. It switches back once the starved queue drains or the
// front waiter's measured wait falls below the threshold again.
package fairlock

import (
	"sync"
	"sync/atomic"

	"github.com/arf-rpc/fairlock/internal/spin"
	"github.com/arf-rpc/fairlock/sema"
	"github.com/go-stdlog/stdlog"
)

const (
	mutexLocked = 1 << iota
	mutexWoken
	mutexStarving
	mutexWaiterShift = iota
)

// Mutex is a starvation-avoiding mutual-exclusion lock. It is not reentrant:
// a holder calling Lock again deadlocks. Create instances with New and share
// them by pointer; duplicating a Mutex by value splits one logical lock into
// two inconsistent ones.
type Mutex struct {
	_ noCopy

	// state packs, low to high: locked bit, woken bit, starving bit, and the
	// waiter count in the remaining bits. All mutation is CAS or add on this
	// single word.
	state atomic.Int32

	queue     *sema.Sema
	clock     Clock
	tracer    Tracer
	logger    stdlog.Logger
	threshold int64
}

var _ sync.Locker = (*Mutex)(nil)

// Lock acquires m, blocking until it is available.
func (m *Mutex) Lock() {
	if m.state.CompareAndSwap(0, mutexLocked) {
		return
	}
	m.lockSlow()
}

// TryLock attempts to acquire m without blocking and reports whether it
// succeeded. It never succeeds while the lock is held or starving mode is
// engaged, even if a waiter is about to be woken.
func (m *Mutex) TryLock() bool {
	old := m.state.Load()
	if old&(mutexLocked|mutexStarving) != 0 {
		return false
	}
	return m.state.CompareAndSwap(old, old|mutexLocked)
}

func (m *Mutex) lockSlow() {
	m.tracer.Contended()

	var waitStart int64
	starving := false
	awoke := false
	iter := 0
	old := m.state.Load()
	for {
		// Spin only in normal mode while the lock is held. In starving mode
		// ownership goes to the queue head, so spinning cannot pay off.
		if old&(mutexLocked|mutexStarving) == mutexLocked && spin.Can(iter) {
			// Claim the woken bit while spinning so Unlock skips waking a
			// parked waiter we would race against anyway.
			if !awoke && old&mutexWoken == 0 && old>>mutexWaiterShift != 0 &&
				m.state.CompareAndSwap(old, old|mutexWoken) {
				awoke = true
			}
			spin.Yield()
			iter++
			old = m.state.Load()
			continue
		}

		next := old
		if old&mutexStarving == 0 {
			next |= mutexLocked
		}
		if old&(mutexLocked|mutexStarving) != 0 {
			next += 1 << mutexWaiterShift
		}
		// Engage starving mode only while a holder exists; Unlock expects a
		// waiter behind the starving bit.
		if starving && old&mutexLocked != 0 {
			next |= mutexStarving
		}
		if awoke {
			if next&mutexWoken == 0 {
				m.fatal(&InconsistentStateError{State: next})
			}
			next &^= mutexWoken
		}

		if m.state.CompareAndSwap(old, next) {
			if old&(mutexLocked|mutexStarving) == 0 {
				break // acquired on the slow path without parking
			}
			if next&mutexStarving != 0 && old&mutexStarving == 0 {
				m.tracer.ModeChange(true, int(next>>mutexWaiterShift))
			}

			// Park. A waiter that already waited re-queues at the front so
			// it does not fall behind callers that arrived while it was out.
			queueLifo := waitStart != 0
			if waitStart == 0 {
				waitStart = m.clock.Now()
			}
			m.queue.Wait(queueLifo)

			starving = starving || m.clock.Now()-waitStart > m.threshold
			old = m.state.Load()
			if old&mutexStarving != 0 {
				// Direct handoff: the releaser signaled us without clearing
				// the starving bit, so the lock is ours. Take it and consume
				// our waiter slot in a single add.
				if old&(mutexLocked|mutexWoken) != 0 || old>>mutexWaiterShift == 0 {
					m.fatal(&InconsistentStateError{State: old})
				}
				delta := int32(mutexLocked - 1<<mutexWaiterShift)
				if !starving || old>>mutexWaiterShift == 1 {
					delta -= mutexStarving
					m.tracer.ModeChange(false, int(old>>mutexWaiterShift)-1)
				}
				m.state.Add(delta)
				break
			}
			// Normal-mode wake: compete again from the top.
			awoke = true
			iter = 0
		} else {
			old = m.state.Load()
		}
	}
}

// Unlock releases m. It is a fatal misuse error, surfaced as a panic with a
// *MisuseError, to call Unlock when m is not locked; the check happens before
// any state change is committed, so misuse never corrupts the lock.
func (m *Mutex) Unlock() {
	if m.state.CompareAndSwap(mutexLocked, 0) {
		return
	}
	m.unlockSlow()
}

func (m *Mutex) unlockSlow() {
	old := m.state.Load()
	for {
		if old&mutexLocked == 0 {
			m.fatal(&MisuseError{Op: "Unlock", Reason: "unlock of unlocked mutex"})
		}
		if m.state.CompareAndSwap(old, old-mutexLocked) {
			old -= mutexLocked
			break
		}
		old = m.state.Load()
	}

	if old&mutexStarving != 0 {
		// Hand the lock to the queue head. The starving bit keeps TryLock
		// and new Lock callers from grabbing it before the waiter wakes; the
		// waiter consumes its own slot on the way out.
		m.queue.Signal()
		return
	}

	for {
		// Nobody to wake, or someone is already awake, spinning with the
		// woken bit, or holding the lock again.
		if old>>mutexWaiterShift == 0 || old&(mutexLocked|mutexWoken|mutexStarving) != 0 {
			return
		}
		next := (old - 1<<mutexWaiterShift) | mutexWoken
		if m.state.CompareAndSwap(old, next) {
			m.queue.Signal()
			return
		}
		old = m.state.Load()
	}
}

func (m *Mutex) fatal(err error) {
	if m.logger != nil {
		m.logger.Error(err, "fatal mutex error")
	}
	panic(err)
}

// noCopy triggers go vet's copylocks check on by-value copies of Mutex.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}
