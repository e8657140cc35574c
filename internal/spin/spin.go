// Package spin holds the active-spin policy shared by the lock slow path,
// plus a minimal test-and-set spinlock for guarding very short critical
// sections where a parking lock would just add scheduler pressure.
package spin

import (
	"runtime"
	"sync/atomic"
)

const (
	activeSpin    = 4
	activeSpinCnt = 30
)

var ncpu = runtime.NumCPU()

// Can reports whether one more active-spin iteration is worthwhile: the
// budget must not be exhausted and more than one execution context must be
// available, so the current holder can make progress while we burn cycles.
// On a uniprocessor spinning never pays off.
func Can(iter int) bool {
	return iter < activeSpin && ncpu > 1 && runtime.GOMAXPROCS(0) > 1
}

// Yield performs one active-spin quantum: a short busy loop followed by a
// scheduler yield so a spinning caller cannot monopolize its thread.
func Yield() {
	pause(activeSpinCnt)
	runtime.Gosched()
}

//go:noinline
func pause(n int) {
	for i := 0; i < n; i++ {
	}
}

// Lock is a test-and-set spinlock. The zero value is unlocked. It must only
// guard critical sections of a few instructions; holders must not block.
type Lock struct {
	v atomic.Uint32
}

func (l *Lock) Acquire() {
	for !l.v.CompareAndSwap(0, 1) {
		runtime.Gosched()
	}
}

func (l *Lock) Release() {
	l.v.Store(0)
}
