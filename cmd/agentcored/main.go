// Package main is the demo CLI for the agent-core runtime: a single binary
// that wires every component (C1-C10) together against Postgres and Redis
// (or an in-process cache when AGENTCORE_REDIS_URL is not set) and drives one session's agent loop to completion, the same
// single-binary shape as the teacher's own cmd/nexus entry point.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "agentcored",
		Short:        "agentcored - standalone agent loop runtime",
		Long:         "agentcored drives agent sessions through the shared loop skeleton against Postgres-backed storage and Redis-backed (or in-process) cache/locking.",
		Version:      fmt.Sprintf("%s (commit %s)", version, commit),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildRunCmd(),
		buildResumeCmd(),
		buildDoctorCmd(),
	)

	return rootCmd
}
