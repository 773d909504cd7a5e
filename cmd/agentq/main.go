// Package main implements the agentq CLI for manual operations against the
// agentqd HTTP server.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// options are shared by every subcommand.
type options struct {
	serverURL string
	timeout   string
	asJSON    bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "agentq",
		Short: "CLI for agentqd task queue operations",
		Long: `agentq is a command-line interface for the agentqd HTTP server.
It submits tasks, inspects them, answers clarification questions and
exercises the supervisor templates.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.PersistentFlags().StringVar(&opts.serverURL, "server", "http://127.0.0.1:8765", "agentqd server URL")
	root.PersistentFlags().StringVar(&opts.timeout, "timeout", "30s", "request timeout")
	root.PersistentFlags().BoolVar(&opts.asJSON, "json", false, "print raw JSON responses")

	root.AddCommand(
		newSubmitCmd(opts),
		newGetCmd(opts),
		newListCmd(opts),
		newReplyCmd(opts),
		newClassifyCmd(opts),
		newComposeCmd(opts),
		newValidateCmd(opts),
		newHealthCmd(opts),
	)
	return root
}
