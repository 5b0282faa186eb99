package protocol

import "fmt"

// NotFoundError reports an unknown action or batch ID.
// It enables typed error discrimination via errors.As.
type NotFoundError struct {
	Kind string // "action", "batch", "checkpoint", "actor"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// InvalidStateError reports an operation that is not legal for the action's
// current lifecycle state. Local and non-retryable; no state is mutated.
type InvalidStateError struct {
	ActionID string
	Status   ActionStatus
	Op       string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s action %s in status %q", e.Op, e.ActionID, e.Status)
}

// PermissionDeniedError reports trust below the required threshold with no
// override supplied.
type PermissionDeniedError struct {
	ActionID      string
	Type          ActionType
	Trust         float64
	TrustRequired float64
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("permission denied for %s action %s: trust %.2f below required %.2f",
		e.Type, e.ActionID, e.Trust, e.TrustRequired)
}

// NotRollbackableError reports a rollback precondition failure: the action is
// not in a terminal-recoverable status, or it has no checkpoint to restore.
type NotRollbackableError struct {
	ActionID string
	Status   ActionStatus
	Reason   string
}

func (e *NotRollbackableError) Error() string {
	return fmt.Sprintf("action %s (status %q) is not rollbackable: %s", e.ActionID, e.Status, e.Reason)
}

// ExecutionError wraps an external tool or resource failure. The cause is
// opaque to the ledger; it is recorded on the action verbatim.
type ExecutionError struct {
	ActionID string
	Cause    error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution failed for action %s: %v", e.ActionID, e.Cause)
}

func (e *ExecutionError) Unwrap() error { return e.Cause }

// TimeoutError reports an execution that exceeded its bound.
type TimeoutError struct {
	ActionID string
	Limit    string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("execution of action %s exceeded %s", e.ActionID, e.Limit)
}
