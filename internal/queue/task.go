package queue

import (
	"strings"
	"time"

	"github.com/fyrsmithlabs/agentq/internal/tasktype"
)

// ClarificationType is a coarse tag describing what a clarification asks for.
type ClarificationType string

const (
	// ClarificationSpecification asks for targets and expected behavior.
	ClarificationSpecification ClarificationType = "specification"

	// ClarificationVerification asks what should be verified or what
	// information is missing.
	ClarificationVerification ClarificationType = "verification"

	// ClarificationAgentQuestion carries a question the agent asked itself.
	ClarificationAgentQuestion ClarificationType = "agent_question"

	// ClarificationGeneric is used when nothing more specific applies.
	ClarificationGeneric ClarificationType = "generic"
)

// Clarification is the question a task is waiting on.
type Clarification struct {
	Question string            `json:"question"`
	Type     ClarificationType `json:"type"`
	Options  []string          `json:"options,omitempty"`
	Context  string            `json:"context,omitempty"`
}

// RetryContext records why a task stopped to ask a question, so the next
// processing cycle can pick up from there.
type RetryContext struct {
	RawStatus     string `json:"raw_status"`
	BlockedReason string `json:"blocked_reason,omitempty"`
	TerminatedBy  string `json:"terminated_by,omitempty"`
	Attempt       int    `json:"attempt"`
}

// Reply is a caller answer appended to a task's processing context.
type Reply struct {
	Question  string    `json:"question,omitempty"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Task is the unit of work and its lifetime state.
type Task struct {
	ID          string `json:"task_id"`
	TaskGroupID string `json:"task_group_id"`
	Namespace   string `json:"namespace"`

	// Prompt and TaskType are fixed at creation.
	Prompt   string        `json:"prompt"`
	TaskType tasktype.Type `json:"task_type"`

	Status        Status         `json:"status"`
	Output        string         `json:"output"`
	Error         *string        `json:"error"`
	Clarification *Clarification `json:"clarification,omitempty"`
	RetryContext  *RetryContext  `json:"retry_context,omitempty"`
	Replies       []Reply        `json:"replies,omitempty"`

	FilesModified   []string `json:"files_modified,omitempty"`
	VerifiedFiles   []string `json:"verified_files,omitempty"`
	UnverifiedFiles []string `json:"unverified_files,omitempty"`
	DurationMS      int64    `json:"duration_ms"`
	WorkingDir      string   `json:"working_dir,omitempty"`

	// Attempt counts processing cycles (entries into RUNNING).
	Attempt int `json:"attempt"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ShowReplyUI reports whether callers should offer a reply box.
func (t *Task) ShowReplyUI() bool {
	return t.Status == StatusAwaitingResponse
}

// ProcessingPrompt returns the prompt for the next processing cycle: the
// original prompt followed by every clarification and the caller's reply.
func (t *Task) ProcessingPrompt() string {
	if len(t.Replies) == 0 {
		return t.Prompt
	}

	var b strings.Builder
	b.WriteString(t.Prompt)
	b.WriteString("\n\n## Clarifications\n")
	for _, r := range t.Replies {
		if r.Question != "" {
			b.WriteString("\nQ: ")
			b.WriteString(r.Question)
		}
		b.WriteString("\nA: ")
		b.WriteString(r.Text)
		b.WriteString("\n")
	}
	return b.String()
}

// Clone returns a deep copy of t.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	if t.Error != nil {
		e := *t.Error
		c.Error = &e
	}
	if t.Clarification != nil {
		cl := *t.Clarification
		cl.Options = cloneStrings(t.Clarification.Options)
		c.Clarification = &cl
	}
	if t.RetryContext != nil {
		rc := *t.RetryContext
		c.RetryContext = &rc
	}
	if t.Replies != nil {
		c.Replies = make([]Reply, len(t.Replies))
		copy(c.Replies, t.Replies)
	}
	c.FilesModified = cloneStrings(t.FilesModified)
	c.VerifiedFiles = cloneStrings(t.VerifiedFiles)
	c.UnverifiedFiles = cloneStrings(t.UnverifiedFiles)
	return &c
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}

// StringPtr returns a pointer to s. Handy for StatusUpdate fields.
func StringPtr(s string) *string {
	return &s
}
