package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/agentq/internal/config"
	"github.com/fyrsmithlabs/agentq/internal/guard"
	"github.com/fyrsmithlabs/agentq/internal/tasktype"
)

func TestNewHTTPAgent_RequiresEndpoint(t *testing.T) {
	_, err := NewHTTPAgent("")
	assert.Error(t, err)
}

func TestHTTPAgent_Run(t *testing.T) {
	var got guard.ExecutorTask
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(guard.ExecutorResult{
			Executed:      true,
			Output:        "done",
			Status:        guard.StatusComplete,
			FilesModified: []string{"main.go"},
		})
	}))
	defer srv.Close()

	var token config.Secret
	require.NoError(t, token.UnmarshalText([]byte("s3cret")))

	agent, err := NewHTTPAgent(srv.URL, WithToken(token), WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	task := guard.ExecutorTask{ID: "t1", Prompt: "fix it", WorkingDir: "/tmp/web", TaskType: tasktype.Implementation}
	res, err := agent.Run(context.Background(), task)
	require.NoError(t, err)

	assert.Equal(t, task, got)
	assert.Equal(t, "Bearer s3cret", auth)
	assert.Equal(t, guard.StatusComplete, res.Status)
	assert.Equal(t, "done", res.Output)
	assert.Equal(t, []string{"main.go"}, res.FilesModified)
	assert.GreaterOrEqual(t, res.DurationMS, int64(0))
}

func TestHTTPAgent_Errors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		rejected bool
	}{
		{"client error is rejected", http.StatusUnprocessableEntity, `{"error":"bad task"}`, true},
		{"server error is retryable", http.StatusBadGateway, "upstream down", false},
		{"undecodable body is rejected", http.StatusOK, "not json", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			agent, err := NewHTTPAgent(srv.URL)
			require.NoError(t, err)

			_, err = agent.Run(context.Background(), guard.ExecutorTask{ID: "t1"})
			require.Error(t, err)
			assert.Equal(t, tt.rejected, errors.Is(err, ErrAgentRejected))
		})
	}
}

func TestHTTPAgent_HonorsDeadline(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	agent, err := NewHTTPAgent(srv.URL)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = agent.Run(ctx, guard.ExecutorTask{ID: "t1"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "short", snippet([]byte("  short \n")))
	long := snippet([]byte(strings.Repeat("x", 300)))
	assert.Len(t, long, 203)
	assert.True(t, strings.HasSuffix(long, "..."))
}
