package guard

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/agentq/internal/queue"
	"github.com/fyrsmithlabs/agentq/internal/tasktype"
)

func implTask() ExecutorTask {
	return ExecutorTask{ID: "t1", Prompt: "fix login.ts", TaskType: tasktype.Implementation}
}

func TestContainsQuestions(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"Which file should I edit?", true},
		{"どのファイルを修正しますか？", true},
		{"対象を教えてください", true},
		{"この方針でよいでしょうか", true},
		{"これはテストですか", true},
		{"Would you like me to add tests", true},
		{"Could you share the stack trace", true},
		{"should i also update the docs", true},
		{"ＣＡＮ ＹＯＵ confirm", true},
		{"The bug is fixed.", false},
		{"ファイルを更新しました。", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, ContainsQuestions(tt.text))
		})
	}
}

func TestContainsQuestions_Concurrent(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.True(t, ContainsQuestions("ＣＡＮ ＹＯＵ confirm"))
			assert.False(t, ContainsQuestions("The bug is fixed."))
		}()
	}
	wg.Wait()
}

func TestExtractQuestion(t *testing.T) {
	text := "I looked at the code.\nShould I change a.go?\nOr b.go?\n\nDone for now."
	assert.Equal(t, "Or b.go?", ExtractQuestion(text))
	assert.Equal(t, "", ExtractQuestion("No questions here."))
	assert.Equal(t, "", ExtractQuestion(""))
}

func TestApplyBlockedOutputGuard_NonBlockedUnchanged(t *testing.T) {
	for _, status := range []Status{StatusComplete, StatusIncomplete, StatusError, "SOMETHING_ELSE", ""} {
		in := ExecutorResult{
			Executed:      true,
			Status:        status,
			Output:        "out",
			FilesModified: []string{"a.go"},
			BlockedReason: BlockedReasonTimeout,
		}
		assert.Equal(t, in, ApplyBlockedOutputGuard(in, implTask()), status)
	}
}

func TestApplyBlockedOutputGuard_PreservesExistingQuestion(t *testing.T) {
	question := "Which config file should I use？"
	in := ExecutorResult{Status: StatusBlocked, Output: "Working...\n" + question}

	for _, typ := range tasktype.All() {
		got := ApplyBlockedOutputGuard(in, ExecutorTask{TaskType: typ})
		assert.Equal(t, in.Output, got.Output)
		assert.Contains(t, got.Output, question)
		assert.NotContains(t, got.Output, ImplementationQuestion)
		assert.NotContains(t, got.Output, ReadInfoQuestion)
		assert.NotContains(t, got.Output, GenericQuestion)
		assert.NotEqual(t, StatusBlocked, got.Status)
	}
}

func TestApplyBlockedOutputGuard_EmptyImplementation(t *testing.T) {
	got := ApplyBlockedOutputGuard(ExecutorResult{Status: StatusBlocked}, implTask())

	require.NotEmpty(t, got.Output)
	lower := strings.ToLower(got.Output)
	assert.Contains(t, lower, "target files")
	assert.Contains(t, lower, "expected behavior")
	assert.Contains(t, got.Output, "対象ファイル")
	assert.True(t, ContainsQuestions(got.Output))
	assert.Equal(t, StatusIncomplete, got.Status)
	assert.True(t, got.ExecutorBlocked)
}

func TestApplyBlockedOutputGuard_AppendsAfterStatement(t *testing.T) {
	in := ExecutorResult{Status: StatusBlocked, Output: "Analyzed three packages.\n"}
	got := ApplyBlockedOutputGuard(in, ExecutorTask{TaskType: tasktype.ReadInfo})

	assert.True(t, strings.HasPrefix(got.Output, "Analyzed three packages."))
	assert.True(t, strings.HasSuffix(got.Output, ReadInfoQuestion))
}

func TestSelectFallbackQuestion(t *testing.T) {
	blocked := ExecutorResult{Status: StatusBlocked}

	impl := SelectFallbackQuestion(blocked, ExecutorTask{TaskType: tasktype.Implementation})
	read := SelectFallbackQuestion(blocked, ExecutorTask{TaskType: tasktype.ReadInfo})
	report := SelectFallbackQuestion(blocked, ExecutorTask{TaskType: tasktype.Report})

	assert.NotEqual(t, impl, read)
	assert.NotEqual(t, impl, report)
	assert.NotEqual(t, read, report)
	assert.Equal(t, GenericQuestion, SelectFallbackQuestion(blocked, ExecutorTask{}))

	timedOut := SelectFallbackQuestion(ExecutorResult{Status: StatusBlocked, BlockedReason: BlockedReasonTimeout},
		ExecutorTask{TaskType: tasktype.Implementation})
	assert.True(t, strings.HasPrefix(timedOut, "The agent timed out"))
	assert.True(t, strings.HasSuffix(timedOut, ImplementationQuestion))
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name       string
		result     ExecutorResult
		taskType   tasktype.Type
		wantStatus queue.Status
		wantRule   string
	}{
		{"complete", ExecutorResult{Status: StatusComplete, Output: "ok"}, tasktype.Implementation, queue.StatusComplete, RuleComplete},
		{"blocked implementation", ExecutorResult{Status: StatusBlocked}, tasktype.Implementation, queue.StatusAwaitingResponse, RuleBlocked},
		{"blocked read info", ExecutorResult{Status: StatusBlocked}, tasktype.ReadInfo, queue.StatusAwaitingResponse, RuleBlocked},
		{"blocked report", ExecutorResult{Status: StatusBlocked}, tasktype.Report, queue.StatusAwaitingResponse, RuleBlocked},
		{"blocked flag", ExecutorResult{Status: StatusIncomplete, ExecutorBlocked: true, BlockedReason: BlockedReasonTimeout}, tasktype.Report, queue.StatusAwaitingResponse, RuleBlocked},
		{"incomplete implementation", ExecutorResult{Status: StatusIncomplete}, tasktype.Implementation, queue.StatusAwaitingResponse, RuleIncompleteAwait},
		{"incomplete read info", ExecutorResult{Status: StatusIncomplete, Output: "partial analysis"}, tasktype.ReadInfo, queue.StatusAwaitingResponse, RuleIncompleteAwait},
		{"incomplete report", ExecutorResult{Status: StatusIncomplete, Output: "half a report"}, tasktype.Report, queue.StatusError, RuleIncompleteError},
		{"error", ExecutorResult{Status: StatusError, Error: "exit 1", Output: "trace"}, tasktype.Implementation, queue.StatusError, RuleExecutorError},
		{"unknown", ExecutorResult{Status: "WEIRD"}, tasktype.Implementation, queue.StatusError, RuleUnknownStatus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(tt.result, ExecutorTask{ID: "t", TaskType: tt.taskType})
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Equal(t, tt.wantRule, got.Rule)
			assert.NotEqual(t, StatusBlocked, got.Result.Status)

			switch got.Status {
			case queue.StatusAwaitingResponse:
				require.NotNil(t, got.Clarification)
				assert.NotEmpty(t, got.Clarification.Question)
				assert.True(t, ContainsQuestions(got.Result.Output))
				require.NotNil(t, got.RetryContext)
				assert.Equal(t, string(tt.result.Status), got.RetryContext.RawStatus)
			case queue.StatusError:
				assert.NotEmpty(t, got.Error)
				assert.Equal(t, tt.result.Output, got.Result.Output, "output preserved verbatim")
			}
		})
	}
}

func TestResolve_ClarificationSource(t *testing.T) {
	t.Run("agent question", func(t *testing.T) {
		got := Resolve(ExecutorResult{Status: StatusBlocked, Output: "Need input.\nUse Postgres or SQLite?"}, implTask())
		require.NotNil(t, got.Clarification)
		assert.Equal(t, "Use Postgres or SQLite?", got.Clarification.Question)
		assert.Equal(t, queue.ClarificationAgentQuestion, got.Clarification.Type)
	})

	t.Run("fallback by type", func(t *testing.T) {
		got := Resolve(ExecutorResult{Status: StatusIncomplete}, ExecutorTask{TaskType: tasktype.ReadInfo})
		require.NotNil(t, got.Clarification)
		assert.Equal(t, ReadInfoQuestion, got.Clarification.Question)
		assert.Equal(t, queue.ClarificationVerification, got.Clarification.Type)
	})

	t.Run("blocked reason recorded", func(t *testing.T) {
		got := Resolve(ExecutorResult{Status: StatusBlocked, BlockedReason: BlockedReasonTimeout, TerminatedBy: "watchdog"}, implTask())
		require.NotNil(t, got.RetryContext)
		assert.Equal(t, BlockedReasonTimeout, got.RetryContext.BlockedReason)
		assert.Equal(t, "watchdog", got.RetryContext.TerminatedBy)
		assert.Equal(t, BlockedReasonTimeout, got.Clarification.Context)
		assert.Equal(t, queue.ClarificationSpecification, got.Clarification.Type)
	})
}
