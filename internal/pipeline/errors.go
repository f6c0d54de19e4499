package pipeline

import "fmt"

// ─── Sentinel errors ─────────────────────────────────────────────────────────

// ErrNotFound is returned when a candidate id references no pipeline candidate.
var ErrNotFound = fmt.Errorf("candidate not found")

// ErrLockTimeout is returned when the per-candidate transition lock could
// not be acquired within the configured wait. The caller should retry;
// nothing was applied.
var ErrLockTimeout = fmt.Errorf("transition lock not acquired in time")

// ValidationError wraps a user-facing validation message.
type ValidationError struct{ Msg string }

func (e *ValidationError) Error() string { return e.Msg }

// PersistenceError wraps a failed read or append against the candidate
// store. The attempted transition is not applied; retrying the whole
// operation is safe.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *PersistenceError) Unwrap() error { return e.Err }
