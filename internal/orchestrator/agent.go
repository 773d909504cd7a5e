package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fyrsmithlabs/agentq/internal/config"
	"github.com/fyrsmithlabs/agentq/internal/guard"
)

// Agent runs one task and reports the raw executor result. Implementations
// must honor ctx cancellation and deadlines.
type Agent interface {
	Run(ctx context.Context, task guard.ExecutorTask) (guard.ExecutorResult, error)
}

// AgentFunc adapts a function to Agent.
type AgentFunc func(ctx context.Context, task guard.ExecutorTask) (guard.ExecutorResult, error)

// Run calls f.
func (f AgentFunc) Run(ctx context.Context, task guard.ExecutorTask) (guard.ExecutorResult, error) {
	return f(ctx, task)
}

// ErrAgentRejected marks agent failures that retrying cannot fix.
var ErrAgentRejected = errors.New("agent rejected task")

// maxAgentResponse caps the decoded response body.
const maxAgentResponse = 16 << 20

// HTTPAgent posts the task as JSON to an endpoint that runs the agent and
// answers with an ExecutorResult.
type HTTPAgent struct {
	endpoint string
	token    config.Secret
	client   *http.Client
}

// HTTPAgentOption configures an HTTPAgent.
type HTTPAgentOption func(*HTTPAgent)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) HTTPAgentOption {
	return func(a *HTTPAgent) {
		if c != nil {
			a.client = c
		}
	}
}

// WithToken sends token as a bearer credential.
func WithToken(token config.Secret) HTTPAgentOption {
	return func(a *HTTPAgent) { a.token = token }
}

// NewHTTPAgent creates an agent client for endpoint.
func NewHTTPAgent(endpoint string, opts ...HTTPAgentOption) (*HTTPAgent, error) {
	if endpoint == "" {
		return nil, errors.New("agent endpoint is required")
	}
	a := &HTTPAgent{
		endpoint: endpoint,
		// Per-call deadlines come from the context.
		client: &http.Client{Timeout: 0},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Run posts task and decodes the result. Non-2xx answers are errors; 4xx
// answers wrap ErrAgentRejected.
func (a *HTTPAgent) Run(ctx context.Context, task guard.ExecutorTask) (guard.ExecutorResult, error) {
	var result guard.ExecutorResult

	body, err := json.Marshal(task)
	if err != nil {
		return result, fmt.Errorf("encoding task: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return result, fmt.Errorf("building agent request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if a.token.IsSet() {
		req.Header.Set("Authorization", "Bearer "+a.token.Value())
	}

	start := time.Now()
	resp, err := a.client.Do(req)
	if err != nil {
		return result, fmt.Errorf("calling agent: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxAgentResponse))
	if err != nil {
		return result, fmt.Errorf("reading agent response: %w", err)
	}

	switch {
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return result, fmt.Errorf("%w: status %d: %s", ErrAgentRejected, resp.StatusCode, snippet(raw))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return result, fmt.Errorf("agent returned status %d: %s", resp.StatusCode, snippet(raw))
	}

	if err := json.Unmarshal(raw, &result); err != nil {
		return result, fmt.Errorf("%w: decoding result: %v", ErrAgentRejected, err)
	}
	if result.DurationMS == 0 {
		result.DurationMS = time.Since(start).Milliseconds()
	}
	return result, nil
}

func snippet(b []byte) string {
	const max = 200
	b = bytes.TrimSpace(b)
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
