package queue

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition_Table(t *testing.T) {
	legal := map[[2]Status]bool{
		{StatusQueued, StatusRunning}:           true,
		{StatusRunning, StatusAwaitingResponse}: true,
		{StatusRunning, StatusComplete}:         true,
		{StatusRunning, StatusError}:            true,
		{StatusAwaitingResponse, StatusRunning}: true,
		{StatusAwaitingResponse, StatusQueued}:  true,
	}

	for _, from := range AllStatuses() {
		for _, to := range AllStatuses() {
			t.Run(fmt.Sprintf("%s->%s", from, to), func(t *testing.T) {
				assert.Equal(t, legal[[2]Status{from, to}], CanTransition(from, to))
			})
		}
	}
}

func TestStatus_Terminal(t *testing.T) {
	assert.True(t, StatusComplete.IsTerminal())
	assert.True(t, StatusError.IsTerminal())
	assert.Empty(t, NextStatuses(StatusComplete))
	assert.Empty(t, NextStatuses(StatusError))
	assert.False(t, StatusAwaitingResponse.IsTerminal())
}

func TestParseStatus(t *testing.T) {
	for _, s := range AllStatuses() {
		got, err := ParseStatus(string(s))
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}

	_, err := ParseStatus("BLOCKED")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestParseReplyPolicy(t *testing.T) {
	p, err := ParseReplyPolicy("")
	require.NoError(t, err)
	assert.Equal(t, ReplyToRunning, p)

	p, err = ParseReplyPolicy("queued")
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, p.target())

	_, err = ParseReplyPolicy("later")
	assert.Error(t, err)
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		err  error
		want Code
	}{
		{nil, ""},
		{fmt.Errorf("%w: x", ErrInvalidInput), CodeInvalidInput},
		{&TransitionError{Operation: "reply", TaskID: "t", From: StatusQueued}, CodeInvalidStatus},
		{fmt.Errorf("wrapped: %w", ErrNotFound), CodeNotFound},
		{errors.New("boom"), CodeInternal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CodeOf(tt.err))
	}
}

func TestTransitionError_Message(t *testing.T) {
	err := &TransitionError{Operation: "update_status", TaskID: "t1", From: StatusComplete, To: StatusRunning}
	assert.Contains(t, err.Error(), "from COMPLETE to RUNNING")

	err = &TransitionError{Operation: "reply", TaskID: "t1", From: StatusQueued}
	assert.Contains(t, err.Error(), "reply not allowed")
}
