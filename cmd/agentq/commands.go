package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"

	apihttp "github.com/fyrsmithlabs/agentq/internal/http"
	"github.com/fyrsmithlabs/agentq/internal/queue"
	"github.com/fyrsmithlabs/agentq/internal/supervisor"
	"github.com/fyrsmithlabs/agentq/internal/tasktype"
)

func newSubmitCmd(opts *options) *cobra.Command {
	var req apihttp.CreateTaskRequest
	var taskType string

	cmd := &cobra.Command{
		Use:   "submit [prompt|-]",
		Short: "Submit a task to the queue",
		Long: `Submit a task to the queue. The prompt is read from the argument or,
when it is "-" or missing, from stdin.

Examples:
  agentq submit "Add a health endpoint to server.go"
  agentq submit --group release-42 --type REPORT "Summarize open issues"
  cat prompt.md | agentq submit -`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			req.Prompt = prompt
			if taskType != "" {
				t, err := tasktype.Parse(taskType)
				if err != nil {
					return err
				}
				req.TaskType = t
			}

			c, err := newClient(opts)
			if err != nil {
				return err
			}
			var task apihttp.TaskResponse
			if err := c.do(cmd.Context(), http.MethodPost, "/api/v1/tasks", req, &task); err != nil {
				return err
			}
			if opts.asJSON {
				return printJSON(cmd.OutOrStdout(), task)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", task.ID, task.Status, task.TaskType)
			return nil
		},
	}
	cmd.Flags().StringVar(&req.TaskGroupID, "group", "", "task group id (defaults to the task id)")
	cmd.Flags().StringVar(&taskType, "type", "", "task type: IMPLEMENTATION, READ_INFO or REPORT (classified when empty)")
	cmd.Flags().StringVar(&req.WorkingDir, "dir", "", "working directory for the agent")
	cmd.Flags().StringVar(&req.ProjectID, "project", "", "supervisor project id")
	return cmd
}

func newGetCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "get <task-id>",
		Short: "Show a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(opts)
			if err != nil {
				return err
			}
			var task apihttp.TaskResponse
			if err := c.do(cmd.Context(), http.MethodGet, "/api/v1/tasks/"+url.PathEscape(args[0]), nil, &task); err != nil {
				return err
			}
			if opts.asJSON {
				return printJSON(cmd.OutOrStdout(), task)
			}
			printTask(cmd.OutOrStdout(), task)
			return nil
		},
	}
}

func newListCmd(opts *options) *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list <task-group-id>",
		Short: "List the tasks of a task group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/v1/task-groups/" + url.PathEscape(args[0]) + "/tasks"
			if status != "" {
				if _, err := queue.ParseStatus(status); err != nil {
					return err
				}
				path += "?status=" + url.QueryEscape(status)
			}

			c, err := newClient(opts)
			if err != nil {
				return err
			}
			var list apihttp.TaskListResponse
			if err := c.do(cmd.Context(), http.MethodGet, path, nil, &list); err != nil {
				return err
			}
			if opts.asJSON {
				return printJSON(cmd.OutOrStdout(), list)
			}
			for _, t := range list.Tasks {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\n", t.ID, t.Status, t.TaskType, firstLine(t.Prompt))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "only list tasks in this status")
	return cmd
}

func newReplyCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "reply <task-id> [text|-]",
		Short: "Answer a task awaiting a response",
		Long: `Answer the clarification question of a task in AWAITING_RESPONSE.
The reply is read from the second argument or, when it is "-" or
missing, from stdin.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(cmd, args[1:])
			if err != nil {
				return err
			}
			c, err := newClient(opts)
			if err != nil {
				return err
			}
			var res apihttp.ReplyResponse
			path := "/api/v1/tasks/" + url.PathEscape(args[0]) + "/reply"
			if err := c.do(cmd.Context(), http.MethodPost, path, apihttp.ReplyRequest{Reply: text}, &res); err != nil {
				return err
			}
			if opts.asJSON {
				return printJSON(cmd.OutOrStdout(), res)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s -> %s\n", res.TaskID, res.OldStatus, res.NewStatus)
			return nil
		},
	}
}

func newClassifyCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "classify [prompt|-]",
		Short: "Classify a prompt into a task type",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			c, err := newClient(opts)
			if err != nil {
				return err
			}
			var res apihttp.ClassifyResponse
			if err := c.do(cmd.Context(), http.MethodPost, "/api/v1/classify", apihttp.ClassifyRequest{Prompt: prompt}, &res); err != nil {
				return err
			}
			if opts.asJSON {
				return printJSON(cmd.OutOrStdout(), res)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", res.TaskType, res.Rule)
			return nil
		},
	}
}

func newComposeCmd(opts *options) *cobra.Command {
	var req apihttp.ComposeRequest

	cmd := &cobra.Command{
		Use:   "compose [prompt|-]",
		Short: "Show the prompt the agent would receive",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			req.Prompt = prompt
			c, err := newClient(opts)
			if err != nil {
				return err
			}
			var out supervisor.ComposedPrompt
			if err := c.do(cmd.Context(), http.MethodPost, "/api/v1/supervisor/compose", req, &out); err != nil {
				return err
			}
			if opts.asJSON {
				return printJSON(cmd.OutOrStdout(), out)
			}
			fmt.Fprintln(cmd.OutOrStdout(), out.Composed)
			return nil
		},
	}
	cmd.Flags().StringVar(&req.ProjectID, "project", "", "supervisor project id")
	cmd.Flags().BoolVar(&req.WithMarkers, "markers", false, "wrap template sections in component markers")
	return cmd
}

func newValidateCmd(opts *options) *cobra.Command {
	var req apihttp.ValidateRequest

	cmd := &cobra.Command{
		Use:   "validate [file|-]",
		Short: "Check agent output against the supervisor rules",
		Long: `Check agent output against the supervisor rules. Exits non-zero when
the output is invalid.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output, err := readFileOrStdin(cmd, args)
			if err != nil {
				return err
			}
			req.Output = output
			c, err := newClient(opts)
			if err != nil {
				return err
			}
			var res apihttp.ValidateResponse
			if err := c.do(cmd.Context(), http.MethodPost, "/api/v1/supervisor/validate", req, &res); err != nil {
				return err
			}
			if opts.asJSON {
				if err := printJSON(cmd.OutOrStdout(), res); err != nil {
					return err
				}
			} else {
				for _, v := range res.Violations {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", v.Severity, v.Rule, v.Message)
				}
			}
			if !res.Valid {
				return fmt.Errorf("output is invalid (%d violation(s))", len(res.Violations))
			}
			if !opts.asJSON {
				fmt.Fprintln(cmd.OutOrStdout(), "valid")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&req.ProjectID, "project", "", "supervisor project id")
	return cmd
}

func newHealthCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check agentqd server health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(opts)
			if err != nil {
				return err
			}
			var res apihttp.HealthResponse
			if err := c.do(cmd.Context(), http.MethodGet, "/health", nil, &res); err != nil {
				return err
			}
			if opts.asJSON {
				return printJSON(cmd.OutOrStdout(), res)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Server Status: %s\n", res.Status)
			if res.Version != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Version: %s\n", res.Version)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Namespace: %s\n", res.Namespace)
			if res.Telemetry != nil {
				for _, r := range res.Telemetry.Reasons {
					fmt.Fprintf(cmd.OutOrStdout(), "Telemetry: %s\n", r)
				}
			}
			return nil
		},
	}
}

// readInput returns args[0], or stdin when args is empty or "-".
func readInput(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 && args[0] != "-" {
		return args[0], nil
	}
	b, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("failed to read from stdin: %w", err)
	}
	s := strings.TrimSpace(string(b))
	if s == "" {
		return "", fmt.Errorf("no input")
	}
	return s, nil
}

// readFileOrStdin returns the contents of the file named by args[0], or
// stdin when args is empty or "-".
func readFileOrStdin(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 && args[0] != "-" {
		b, err := os.ReadFile(args[0])
		if err != nil {
			return "", fmt.Errorf("failed to read file %s: %w", args[0], err)
		}
		return string(b), nil
	}
	b, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("failed to read from stdin: %w", err)
	}
	return string(b), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printTask(w io.Writer, t apihttp.TaskResponse) {
	fmt.Fprintf(w, "Task:    %s\n", t.ID)
	fmt.Fprintf(w, "Group:   %s\n", t.TaskGroupID)
	fmt.Fprintf(w, "Type:    %s\n", t.TaskType)
	fmt.Fprintf(w, "Status:  %s\n", t.Status)
	fmt.Fprintf(w, "Attempt: %d\n", t.Attempt)
	if t.Clarification != nil {
		fmt.Fprintf(w, "Question: %s\n", t.Clarification.Question)
		for i, o := range t.Clarification.Options {
			fmt.Fprintf(w, "  %d) %s\n", i+1, o)
		}
	}
	if t.Error != nil {
		fmt.Fprintf(w, "Error:   %s\n", *t.Error)
	}
	if t.Output != "" {
		fmt.Fprintf(w, "\n%s\n", t.Output)
	}
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	if len(line) > 60 {
		return line[:57] + "..."
	}
	return line
}
