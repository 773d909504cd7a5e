package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apihttp "github.com/fyrsmithlabs/agentq/internal/http"
)

// client is a thin JSON client for the agentqd API.
type client struct {
	baseURL string
	http    *http.Client
}

func newClient(opts *options) (*client, error) {
	timeout, err := time.ParseDuration(opts.timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid --timeout %q: %w", opts.timeout, err)
	}
	return &client{
		baseURL: strings.TrimRight(opts.serverURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}, nil
}

// apiError is an error response returned by the server.
type apiError struct {
	Status int
	apihttp.ErrorResponse
}

func (e *apiError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("server returned status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}

// do sends in as the JSON body (when non-nil) and decodes the response into
// out (when non-nil). Non-2xx responses become *apiError.
func (c *client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		ae := &apiError{Status: resp.StatusCode}
		if err := json.Unmarshal(raw, &ae.ErrorResponse); err != nil || ae.Message == "" {
			ae.Message = strings.TrimSpace(string(raw))
		}
		return ae
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
