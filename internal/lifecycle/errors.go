package lifecycle

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why an action was rejected.
type ErrorKind string

const (
	InvalidTransition  ErrorKind = "INVALID_TRANSITION"
	PreconditionFailed ErrorKind = "PRECONDITION_FAILED"
	Forbidden          ErrorKind = "FORBIDDEN"
	Conflict           ErrorKind = "CONFLICT"
	NotFound           ErrorKind = "NOT_FOUND"
	PersistenceFailure ErrorKind = "PERSISTENCE_FAILURE"
)

// ActionError is returned for every rejected or failed deal action. The deal
// is left exactly as it was before the attempt.
type ActionError struct {
	Kind   ErrorKind
	DealID string
	Status Status
	Action Action
	Fact   Fact
	Err    error
}

func (e *ActionError) Error() string {
	switch e.Kind {
	case InvalidTransition:
		return fmt.Sprintf("action %q is not available in status %s", e.Action, e.Status)
	case PreconditionFailed:
		return fmt.Sprintf("cannot %s: %s", e.Action, e.Fact.Message())
	case Forbidden:
		return fmt.Sprintf("role not permitted to %s", e.Action)
	case Conflict:
		return fmt.Sprintf("deal %s was changed concurrently, reload and retry", e.DealID)
	case NotFound:
		return fmt.Sprintf("deal %s not found", e.DealID)
	default:
		if e.Err != nil {
			return fmt.Sprintf("failed to apply %s: %v", e.Action, e.Err)
		}
		return fmt.Sprintf("failed to apply %s", e.Action)
	}
}

func (e *ActionError) Unwrap() error { return e.Err }

// IsKind reports whether err is an ActionError of kind k.
func IsKind(err error, k ErrorKind) bool {
	var ae *ActionError
	return errors.As(err, &ae) && ae.Kind == k
}
