// Package queue holds task records and enforces the task status state
// machine.
//
// Every mutation goes through a single transition check (CanTransition)
// before any field is touched, and transitions on the same task are
// serialized: an operation attempted against a status that has already moved
// on fails with ErrInvalidStatus instead of overwriting it.
package queue

import (
	"context"

	"github.com/fyrsmithlabs/agentq/internal/tasktype"
)

// Store is the contract any task store backend satisfies.
type Store interface {
	// Namespace returns the logical queue this store serves.
	Namespace() string

	// Enqueue creates a task in QUEUED and returns its id.
	Enqueue(ctx context.Context, req *EnqueueRequest) (string, error)

	// GetItem returns a copy of the task, or ErrNotFound.
	GetItem(ctx context.Context, taskID string) (*Task, error)

	// UpdateStatus applies a transition. Illegal moves fail with a
	// *TransitionError (ErrInvalidStatus).
	UpdateStatus(ctx context.Context, taskID string, status Status, update *StatusUpdate) error

	// SetAwaitingResponse moves a RUNNING task to AWAITING_RESPONSE and
	// stores the clarification and output.
	SetAwaitingResponse(ctx context.Context, taskID string, clarification Clarification, retry *RetryContext, output string) error

	// Reply answers an AWAITING_RESPONSE task and starts a new processing
	// cycle on the same record.
	Reply(ctx context.Context, taskID, replyText string) (*ReplyResult, error)

	// ClaimNext moves the longest-waiting QUEUED task to RUNNING and returns
	// it. It returns nil, nil when nothing is queued.
	ClaimNext(ctx context.Context) (*Task, error)

	// List returns tasks matching filter in creation order.
	List(ctx context.Context, filter ListFilter) ([]*Task, error)
}

// EnqueueRequest holds the parameters for creating a task.
type EnqueueRequest struct {
	TaskGroupID string
	Prompt      string
	TaskType    tasktype.Type
	WorkingDir  string
}

// StatusUpdate carries the optional fields written alongside a transition.
// Nil fields are left untouched.
type StatusUpdate struct {
	Error           *string
	Output          *string
	FilesModified   []string
	VerifiedFiles   []string
	UnverifiedFiles []string
	DurationMS      *int64
}

// ReplyResult reports the transition a reply caused.
type ReplyResult struct {
	TaskID    string `json:"task_id"`
	OldStatus Status `json:"old_status"`
	NewStatus Status `json:"new_status"`
}

// ListFilter narrows List results. Zero values match everything.
type ListFilter struct {
	TaskGroupID string
	Status      Status
}

func (f ListFilter) matches(t *Task) bool {
	if f.TaskGroupID != "" && t.TaskGroupID != f.TaskGroupID {
		return false
	}
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	return true
}
