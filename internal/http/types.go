package http

import (
	"github.com/fyrsmithlabs/agentq/internal/queue"
	"github.com/fyrsmithlabs/agentq/internal/supervisor"
	"github.com/fyrsmithlabs/agentq/internal/tasktype"
	"github.com/fyrsmithlabs/agentq/internal/telemetry"
)

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status    string                  `json:"status"`
	Version   string                  `json:"version,omitempty"`
	Namespace string                  `json:"namespace"`
	Telemetry *telemetry.HealthStatus `json:"telemetry,omitempty"`
}

// CreateTaskRequest is the request body for POST /api/v1/tasks.
type CreateTaskRequest struct {
	TaskGroupID string        `json:"task_group_id" validate:"omitempty,max=128"`
	Prompt      string        `json:"prompt" validate:"required"`
	TaskType    tasktype.Type `json:"task_type" validate:"omitempty,oneof=IMPLEMENTATION READ_INFO REPORT"`
	WorkingDir  string        `json:"working_dir"`
	ProjectID   string        `json:"project_id" validate:"omitempty,max=128"`
}

// TaskResponse is a task as returned by the API.
type TaskResponse struct {
	*queue.Task
	ShowReplyUI bool `json:"show_reply_ui"`
}

func newTaskResponse(t *queue.Task) TaskResponse {
	return TaskResponse{Task: t, ShowReplyUI: t.ShowReplyUI()}
}

// TaskListResponse is the response body for GET /api/v1/task-groups/:id/tasks.
type TaskListResponse struct {
	TaskGroupID string         `json:"task_group_id"`
	Tasks       []TaskResponse `json:"tasks"`
}

// UpdateStatusRequest is the request body for PATCH /api/v1/tasks/:id/status.
type UpdateStatusRequest struct {
	Status          queue.Status `json:"status" validate:"required"`
	Output          *string      `json:"output"`
	Error           *string      `json:"error"`
	FilesModified   []string     `json:"files_modified"`
	VerifiedFiles   []string     `json:"verified_files"`
	UnverifiedFiles []string     `json:"unverified_files"`
	DurationMS      *int64       `json:"duration_ms" validate:"omitempty,min=0"`
}

// SetAwaitingRequest is the request body for POST /api/v1/tasks/:id/awaiting.
type SetAwaitingRequest struct {
	Question string                  `json:"question" validate:"required"`
	Type     queue.ClarificationType `json:"type"`
	Options  []string                `json:"options"`
	Context  string                  `json:"context"`
	Output   string                  `json:"output"`
}

// ReplyRequest is the request body for POST /api/v1/tasks/:id/reply.
type ReplyRequest struct {
	Reply string `json:"reply" validate:"required"`
}

// ReplyResponse reports the transition caused by a reply.
type ReplyResponse struct {
	queue.ReplyResult
	ShowReplyUI bool `json:"show_reply_ui"`

	// Resumed is true when the task was handed to the dispatcher to
	// continue processing.
	Resumed bool `json:"resumed"`
}

// ClassifyRequest is the request body for POST /api/v1/classify.
type ClassifyRequest struct {
	Prompt string `json:"prompt"`
}

// ClassifyResponse is the response body for POST /api/v1/classify.
type ClassifyResponse struct {
	TaskType tasktype.Type `json:"task_type"`
	Rule     string        `json:"rule"`
}

// ComposeRequest is the request body for POST /api/v1/supervisor/compose.
type ComposeRequest struct {
	Prompt      string `json:"prompt"`
	ProjectID   string `json:"project_id" validate:"omitempty,max=128"`
	WithMarkers bool   `json:"with_markers"`
}

// FormatRequest is the request body for POST /api/v1/supervisor/format.
type FormatRequest struct {
	Output    string `json:"output"`
	ProjectID string `json:"project_id" validate:"omitempty,max=128"`
}

// ValidateRequest is the request body for POST /api/v1/supervisor/validate.
type ValidateRequest struct {
	Output    string `json:"output"`
	ProjectID string `json:"project_id" validate:"omitempty,max=128"`
}

// ValidateResponse is the response body for POST /api/v1/supervisor/validate.
type ValidateResponse struct {
	ProjectID string `json:"project_id,omitempty"`
	supervisor.ValidationResult
}
