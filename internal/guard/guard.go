package guard

import (
	"strings"

	"github.com/fyrsmithlabs/agentq/internal/tasktype"
)

// Fallback questions, one per task type. They must stay distinct so logs
// can tell which path produced them.
const (
	ImplementationQuestion = "対象ファイルと期待する動作を教えてください。\n" +
		"Which target files should be changed, and what is the expected behavior?"

	ReadInfoQuestion = "何を検証・確認すればよいですか？不足している情報を教えてください。\n" +
		"What should be verified, and what information is missing?"

	GenericQuestion = "タスクを続行するために追加情報を教えてください。\n" +
		"Could you clarify what is needed to continue this task?"
)

var blockedReasonLeads = map[string]string{
	BlockedReasonTimeout:           "The agent timed out before finishing.",
	BlockedReasonInteractivePrompt: "The agent stopped at an interactive prompt.",
	BlockedReasonPermission:        "The agent needs a permission decision to continue.",
}

// SelectFallbackQuestion picks the clarification question for a blocked
// result that did not ask anything itself. The question depends on the
// task type; a known blocked reason adds a leading sentence.
func SelectFallbackQuestion(result ExecutorResult, task ExecutorTask) string {
	var q string
	switch task.TaskType {
	case tasktype.Implementation:
		q = ImplementationQuestion
	case tasktype.ReadInfo:
		q = ReadInfoQuestion
	default:
		q = GenericQuestion
	}

	if lead, ok := blockedReasonLeads[result.BlockedReason]; ok {
		return lead + "\n" + q
	}
	return q
}

// ApplyBlockedOutputGuard rewrites a BLOCKED result into an INCOMPLETE one
// whose output carries a clarification question.
//
// Non-BLOCKED results are returned unchanged. When the agent already asked
// a question the output is left as is; otherwise the fallback question from
// SelectFallbackQuestion is appended after any existing output.
func ApplyBlockedOutputGuard(result ExecutorResult, task ExecutorTask) ExecutorResult {
	if result.Status != StatusBlocked {
		return result
	}

	guarded := result
	guarded.Status = StatusIncomplete
	guarded.ExecutorBlocked = true
	guarded.Output = withQuestion(result, task)
	return guarded
}

// withQuestion returns result's output guaranteed to contain a question.
func withQuestion(result ExecutorResult, task ExecutorTask) string {
	if ContainsQuestions(result.Output) {
		return result.Output
	}
	fallback := SelectFallbackQuestion(result, task)
	prior := strings.TrimSpace(result.Output)
	if prior == "" {
		return fallback
	}
	return prior + "\n\n" + fallback
}
