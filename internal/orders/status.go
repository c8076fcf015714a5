package orders

import "fmt"

type Status string

const (
	StatusPlaced    Status = "placed"
	StatusPreparing Status = "preparing"
	StatusReady     Status = "ready"
	StatusFulfilled Status = "fulfilled"
	StatusDelayed   Status = "delayed"
	StatusCancelled Status = "cancelled"
	StatusRefunded  Status = "refunded"
)

var validNext = map[Status]map[Status]bool{
	StatusPlaced:    {StatusPreparing: true, StatusDelayed: true, StatusCancelled: true, StatusRefunded: true},
	StatusPreparing: {StatusReady: true, StatusDelayed: true, StatusCancelled: true, StatusRefunded: true},
	StatusReady:     {StatusFulfilled: true, StatusDelayed: true, StatusCancelled: true, StatusRefunded: true},
	StatusDelayed:   {StatusPreparing: true, StatusReady: true, StatusCancelled: true, StatusRefunded: true},
	StatusFulfilled: {StatusRefunded: true},
	StatusCancelled: {},
	StatusRefunded:  {},
}

func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}

// Terminal statuses have no outgoing transitions.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusRefunded
}

// CanTransition reports whether from -> to is a legal move. A transition to
// the same status is always allowed as an idempotent no-op.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	return validNext[from][to]
}

type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition: %s -> %s", e.From, e.To)
}

// CheckTransition returns an InvalidTransitionError for illegal moves. The
// caller must not apply any side effects when this rejects.
func CheckTransition(from, to Status) error {
	if !CanTransition(from, to) {
		return &InvalidTransitionError{From: from, To: to}
	}
	return nil
}
