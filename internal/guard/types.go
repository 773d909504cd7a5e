// Package guard normalizes raw agent results before they reach the task
// store.
//
// A raw result may report BLOCKED, which is never a valid task status. The
// guard turns such results into actionable ones that carry a clarification
// question, and Resolve decides which queue status the orchestration loop
// must persist. Everything here is pure and safe for concurrent use.
package guard

import "github.com/fyrsmithlabs/agentq/internal/tasktype"

// Status is the raw status reported by the executor.
type Status string

const (
	StatusComplete   Status = "COMPLETE"
	StatusIncomplete Status = "INCOMPLETE"
	StatusError      Status = "ERROR"
	StatusBlocked    Status = "BLOCKED"
)

// Blocked reasons reported by the executor. Other values pass through.
const (
	BlockedReasonTimeout           = "TIMEOUT"
	BlockedReasonInteractivePrompt = "INTERACTIVE_PROMPT"
	BlockedReasonPermission        = "PERMISSION_REQUIRED"
)

// ExecutorResult is what the agent invocation layer returns for one run.
type ExecutorResult struct {
	Executed        bool     `json:"executed"`
	Output          string   `json:"output"`
	Error           string   `json:"error,omitempty"`
	FilesModified   []string `json:"files_modified,omitempty"`
	DurationMS      int64    `json:"duration_ms"`
	Status          Status   `json:"status"`
	Cwd             string   `json:"cwd,omitempty"`
	VerifiedFiles   []string `json:"verified_files,omitempty"`
	UnverifiedFiles []string `json:"unverified_files,omitempty"`
	ExecutorBlocked bool     `json:"executor_blocked"`
	BlockedReason   string   `json:"blocked_reason,omitempty"`
	TerminatedBy    string   `json:"terminated_by,omitempty"`
}

// Blocked reports whether the executor signalled a block, either through
// the status or the executor_blocked flag.
func (r ExecutorResult) Blocked() bool {
	return r.Status == StatusBlocked || r.ExecutorBlocked
}

// ExecutorTask is the task as handed to the agent invocation layer.
type ExecutorTask struct {
	ID         string        `json:"id"`
	Prompt     string        `json:"prompt"`
	WorkingDir string        `json:"working_dir"`
	TaskType   tasktype.Type `json:"task_type"`
}
