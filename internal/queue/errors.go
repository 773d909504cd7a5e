package queue

import (
	"errors"
	"fmt"
)

// Error kinds surfaced at the store boundary. Callers match them with
// errors.Is; Code maps them to stable wire codes.
var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrInvalidStatus = errors.New("invalid status")
	ErrNotFound      = errors.New("task not found")
	ErrInternal      = errors.New("internal error")
)

// Code is the stable string form of an error kind.
type Code string

const (
	CodeInvalidInput  Code = "INVALID_INPUT"
	CodeInvalidStatus Code = "INVALID_STATUS"
	CodeNotFound      Code = "NOT_FOUND"
	CodeInternal      Code = "INTERNAL"
)

// CodeOf returns the code for err. Unknown errors are INTERNAL; nil is "".
func CodeOf(err error) Code {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidInput):
		return CodeInvalidInput
	case errors.Is(err, ErrInvalidStatus):
		return CodeInvalidStatus
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	default:
		return CodeInternal
	}
}

// TransitionError reports an operation that is illegal for the task's
// current status.
type TransitionError struct {
	Operation string
	TaskID    string
	From      Status
	To        Status
}

func (e *TransitionError) Error() string {
	if e.To == "" {
		return fmt.Sprintf("%s: %s not allowed for task %s in status %s", ErrInvalidStatus, e.Operation, e.TaskID, e.From)
	}
	return fmt.Sprintf("%s: %s cannot move task %s from %s to %s", ErrInvalidStatus, e.Operation, e.TaskID, e.From, e.To)
}

// Unwrap makes TransitionError match ErrInvalidStatus.
func (e *TransitionError) Unwrap() error {
	return ErrInvalidStatus
}
