package fairlock

import (
	"time"

	"github.com/arf-rpc/fairlock/sema"
	"github.com/go-stdlog/stdlog"
)

// DefaultStarvationThreshold is how long a single waiter may be blocked
// before the mutex escalates to starving mode. The default suits typical
// scheduler latencies; hosts with slower scheduling may want a larger value.
const DefaultStarvationThreshold = time.Millisecond

// Clock supplies monotonic time, in nanoseconds, for measuring how long a
// waiter has been blocked. Injected so the starvation transition can be
// driven deterministically in tests.
type Clock interface {
	Now() int64
}

type monotonicClock struct {
	base time.Time
}

func (c monotonicClock) Now() int64 {
	return int64(time.Since(c.base))
}

type Options struct {
	// StarvationThreshold overrides DefaultStarvationThreshold when positive.
	StarvationThreshold time.Duration
	// Logger receives the error report emitted immediately before a fatal
	// misuse panic. Defaults to stdlog.Discard.
	Logger stdlog.Logger
	// Clock overrides the monotonic clock used for wait measurement.
	Clock Clock
	// Tracer observes contention and fairness-mode transitions.
	Tracer Tracer
}

// New returns a ready-to-use Mutex in the idle state. The zero Options value
// selects all defaults.
func New(opts Options) *Mutex {
	m := &Mutex{
		queue:     sema.New(),
		clock:     monotonicClock{base: time.Now()},
		tracer:    nopTracer{},
		logger:    stdlog.Discard,
		threshold: int64(DefaultStarvationThreshold),
	}
	if opts.StarvationThreshold > 0 {
		m.threshold = int64(opts.StarvationThreshold)
	}
	if opts.Logger != nil {
		m.logger = opts.Logger
	}
	if opts.Clock != nil {
		m.clock = opts.Clock
	}
	if opts.Tracer != nil {
		m.tracer = opts.Tracer
	}
	return m
}
