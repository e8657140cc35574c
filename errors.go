package fairlock

import "fmt"

// MisuseError reports a broken API contract, such as unlocking a mutex that
// is not locked. It is surfaced via panic: misuse indicates a serious
// correctness bug in the caller and must never be silently absorbed.
type MisuseError struct {
	Op     string
	Reason string
}

func (m *MisuseError) Error() string {
	return fmt.Sprintf("fairlock: %s: %s", m.Op, m.Reason)
}

// InconsistentStateError reports a state word that violates the lock's
// internal invariants. Seeing one means the lock itself is broken, not the
// caller.
type InconsistentStateError struct {
	State int32
}

func (i *InconsistentStateError) Error() string {
	return fmt.Sprintf("fairlock: inconsistent mutex state %#x", i.State)
}
