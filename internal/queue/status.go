package queue

import "fmt"

// Status is the lifecycle state of a task record.
type Status string

const (
	// StatusQueued tasks wait for a worker.
	StatusQueued Status = "QUEUED"

	// StatusRunning tasks are being processed by the agent.
	StatusRunning Status = "RUNNING"

	// StatusAwaitingResponse tasks wait for a caller reply to a clarification.
	StatusAwaitingResponse Status = "AWAITING_RESPONSE"

	// StatusComplete is terminal.
	StatusComplete Status = "COMPLETE"

	// StatusError is terminal. Output is preserved for diagnosis.
	StatusError Status = "ERROR"
)

// AllStatuses returns every persisted status.
func AllStatuses() []Status {
	return []Status{StatusQueued, StatusRunning, StatusAwaitingResponse, StatusComplete, StatusError}
}

// IsValid reports whether s is a persisted status value.
func (s Status) IsValid() bool {
	switch s {
	case StatusQueued, StatusRunning, StatusAwaitingResponse, StatusComplete, StatusError:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transitions are possible from s.
func (s Status) IsTerminal() bool {
	return s == StatusComplete || s == StatusError
}

// ParseStatus converts s into a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.IsValid() {
		return "", fmt.Errorf("%w: unknown status %q", ErrInvalidInput, s)
	}
	return st, nil
}

// transitions is the state machine: current status to the set of legal next
// statuses. Every mutation in a Store is checked against this table first.
var transitions = map[Status][]Status{
	StatusQueued:           {StatusRunning},
	StatusRunning:          {StatusAwaitingResponse, StatusComplete, StatusError},
	StatusAwaitingResponse: {StatusRunning, StatusQueued},
}

// NextStatuses returns the statuses reachable from s.
func NextStatuses(s Status) []Status {
	next := transitions[s]
	out := make([]Status, len(next))
	copy(out, next)
	return out
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// checkTransition returns a *TransitionError when from -> to is illegal.
func checkTransition(op, taskID string, from, to Status) error {
	if CanTransition(from, to) {
		return nil
	}
	return &TransitionError{Operation: op, TaskID: taskID, From: from, To: to}
}

// ReplyPolicy selects the status a task moves to after a reply.
type ReplyPolicy string

const (
	// ReplyToRunning resumes processing immediately.
	ReplyToRunning ReplyPolicy = "running"

	// ReplyToQueued puts the task back in the queue to wait for a worker.
	ReplyToQueued ReplyPolicy = "queued"
)

// ParseReplyPolicy converts s into a ReplyPolicy. An empty string selects
// ReplyToRunning.
func ParseReplyPolicy(s string) (ReplyPolicy, error) {
	switch ReplyPolicy(s) {
	case "", ReplyToRunning:
		return ReplyToRunning, nil
	case ReplyToQueued:
		return ReplyToQueued, nil
	default:
		return "", fmt.Errorf("unknown reply policy %q (want %q or %q)", s, ReplyToRunning, ReplyToQueued)
	}
}

// target returns the status a replied task moves to.
func (p ReplyPolicy) target() Status {
	if p == ReplyToQueued {
		return StatusQueued
	}
	return StatusRunning
}
