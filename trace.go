package fairlock

import (
	"github.com/go-logr/logr"
	"github.com/go-stdlog/stdlog"
)

// Tracer observes lock diagnostics. Implementations must be safe for
// concurrent use and should return quickly; callbacks run on the slow path
// only, never inside a CAS loop.
type Tracer interface {
	// Contended is invoked when a Lock call misses the fast path.
	Contended()
	// ModeChange is invoked when the mutex enters (starving=true) or leaves
	// (starving=false) starving mode, with the waiter count at the
	// transition.
	ModeChange(starving bool, waiters int)
}

type nopTracer struct{}

func (nopTracer) Contended()           {}
func (nopTracer) ModeChange(bool, int) {}

// TracerFromLogger adapts a stdlog.Logger into a Tracer that records mode
// transitions. Fast-path contention events are not logged; they are far too
// frequent to be useful as log lines.
func TracerFromLogger(log stdlog.Logger) Tracer {
	return &stdlogTracer{log: log}
}

type stdlogTracer struct {
	log stdlog.Logger
}

func (t *stdlogTracer) Contended() {}

func (t *stdlogTracer) ModeChange(starving bool, waiters int) {
	t.log.Info("mutex fairness mode changed", "starving", starving, "waiters", waiters)
}

// TracerFromLogr adapts a logr.Logger into a Tracer. Mode transitions log at
// V(1), contention at V(2).
func TracerFromLogr(log logr.Logger) Tracer {
	return &logrTracer{log: log}
}

type logrTracer struct {
	log logr.Logger
}

func (t *logrTracer) Contended() {
	t.log.V(2).Info("mutex contended")
}

func (t *logrTracer) ModeChange(starving bool, waiters int) {
	t.log.V(1).Info("mutex fairness mode changed", "starving", starving, "waiters", waiters)
}
