package guard

import (
	"fmt"

	"github.com/fyrsmithlabs/agentq/internal/queue"
	"github.com/fyrsmithlabs/agentq/internal/tasktype"
)

// Resolution rule names, for logs and metrics.
const (
	RuleComplete        = "complete"
	RuleBlocked         = "blocked"
	RuleIncompleteAwait = "incomplete-awaiting"
	RuleIncompleteError = "incomplete-error"
	RuleExecutorError   = "executor-error"
	RuleUnknownStatus   = "unknown-status"
)

// Resolution is the queue-facing outcome of one agent run.
type Resolution struct {
	// Status is the task status to persist. Never BLOCKED.
	Status queue.Status

	// Result is the guarded executor result.
	Result ExecutorResult

	// Clarification and RetryContext are set when Status is
	// AWAITING_RESPONSE.
	Clarification *queue.Clarification
	RetryContext  *queue.RetryContext

	// Error is set when Status is ERROR.
	Error string

	// Rule names the policy branch that produced this resolution.
	Rule string
}

// Resolve applies the status-conversion policy to a raw result:
//
//   - COMPLETE stays COMPLETE.
//   - BLOCKED (status or executor_blocked flag) is guarded and becomes
//     AWAITING_RESPONSE for every task type.
//   - INCOMPLETE becomes AWAITING_RESPONSE for IMPLEMENTATION and READ_INFO
//     tasks and ERROR for the rest.
//   - ERROR and unknown statuses become ERROR.
//
// Output is carried through verbatim on every ERROR path.
func Resolve(result ExecutorResult, task ExecutorTask) Resolution {
	if result.Blocked() {
		raw := result
		raw.Status = StatusBlocked
		guarded := ApplyBlockedOutputGuard(raw, task)
		return awaiting(result, guarded, task, RuleBlocked)
	}

	switch result.Status {
	case StatusComplete:
		return Resolution{Status: queue.StatusComplete, Result: result, Rule: RuleComplete}

	case StatusIncomplete:
		switch task.TaskType {
		case tasktype.Implementation, tasktype.ReadInfo:
			guarded := result
			guarded.Output = withQuestion(result, task)
			return awaiting(result, guarded, task, RuleIncompleteAwait)
		default:
			return failed(result, RuleIncompleteError, "agent reported INCOMPLETE for a %s task", task.TaskType)
		}

	case StatusError:
		return failed(result, RuleExecutorError, "agent reported ERROR")

	default:
		return failed(result, RuleUnknownStatus, "agent reported unknown status %q", result.Status)
	}
}

func awaiting(raw, guarded ExecutorResult, task ExecutorTask, rule string) Resolution {
	cl := &queue.Clarification{Context: raw.BlockedReason}
	if q := ExtractQuestion(raw.Output); q != "" {
		cl.Question = q
		cl.Type = queue.ClarificationAgentQuestion
	} else {
		cl.Question = SelectFallbackQuestion(raw, task)
		cl.Type = clarificationType(task.TaskType)
	}

	return Resolution{
		Status:        queue.StatusAwaitingResponse,
		Result:        guarded,
		Clarification: cl,
		RetryContext: &queue.RetryContext{
			RawStatus:     string(raw.Status),
			BlockedReason: raw.BlockedReason,
			TerminatedBy:  raw.TerminatedBy,
		},
		Rule: rule,
	}
}

func failed(result ExecutorResult, rule, format string, args ...any) Resolution {
	msg := result.Error
	if msg == "" {
		msg = fmt.Sprintf(format, args...)
	}
	return Resolution{
		Status: queue.StatusError,
		Result: result,
		Error:  msg,
		Rule:   rule,
	}
}

func clarificationType(t tasktype.Type) queue.ClarificationType {
	switch t {
	case tasktype.Implementation:
		return queue.ClarificationSpecification
	case tasktype.ReadInfo:
		return queue.ClarificationVerification
	default:
		return queue.ClarificationGeneric
	}
}
