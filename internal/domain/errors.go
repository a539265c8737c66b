package domain

import "fmt"

// GuardError is a rejected visit transition. The current status is carried so
// callers can surface why the transition was illegal; the visit itself is
// never coerced to satisfy the request.
type GuardError struct {
	Action  string
	Current VisitStatus
}

func (e *GuardError) Error() string {
	switch e.Current {
	case VisitCheckedIn:
		return fmt.Sprintf("cannot %s: visit is already checked in", e.Action)
	case VisitCheckedOut:
		return fmt.Sprintf("cannot %s: visit is already checked out", e.Action)
	case VisitCancelled:
		return fmt.Sprintf("cannot %s: visit is cancelled", e.Action)
	default:
		return fmt.Sprintf("cannot %s: visit status is %q", e.Action, e.Current)
	}
}
