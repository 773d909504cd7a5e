package orchestrator

import "github.com/fyrsmithlabs/agentq/internal/queue"

// Stage is a step in processing one task.
type Stage string

const (
	StageClaimed   Stage = "claimed"
	StageComposed  Stage = "composed"
	StageAgentRun  Stage = "agent_run"
	StageRetry     Stage = "agent_retry"
	StageResolved  Stage = "resolved"
	StagePersisted Stage = "persisted"
	StageFailed    Stage = "failed"
)

// Event reports progress while a task is processed.
type Event struct {
	TaskID  string       `json:"task_id"`
	Stage   Stage        `json:"stage"`
	Status  queue.Status `json:"status,omitempty"`
	Attempt int          `json:"attempt,omitempty"`
	Message string       `json:"message,omitempty"`
}

// EventCallback receives events. It runs on the worker goroutine and must
// not block.
type EventCallback func(Event)

func (d *Dispatcher) emit(ev Event) {
	if d.onEvent != nil {
		d.onEvent(ev)
	}
}
