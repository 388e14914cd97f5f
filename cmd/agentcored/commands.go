package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kestrel-run/agentcore/internal/looprunner"
	"github.com/kestrel-run/agentcore/pkg/models"
)

func buildRunCmd() *cobra.Command {
	var (
		configPath string
		userID     string
		goal       string
		autonomous bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Create a session and drive it to completion",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd.Context(), configPath, userID, goal, autonomous)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML/JSON5 configuration file")
	cmd.Flags().StringVarP(&userID, "user", "u", "cli-user", "User id to own the session")
	cmd.Flags().StringVarP(&goal, "goal", "g", "", "The session's goal (required)")
	cmd.Flags().BoolVar(&autonomous, "autonomous", false, "Run the autonomous loop instead of interactive")
	_ = cmd.MarkFlagRequired("goal")

	return cmd
}

func buildResumeCmd() *cobra.Command {
	var (
		configPath string
		sessionID  string
	)

	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Resume a stopped or timed-out session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return resumeSession(cmd.Context(), configPath, sessionID)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML/JSON5 configuration file")
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "Session id to resume (required)")
	_ = cmd.MarkFlagRequired("session")

	return cmd
}

func buildDoctorCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check connectivity to storage and cache, and print executor metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(cmd.Context(), configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML/JSON5 configuration file")
	return cmd
}

func runSession(ctx context.Context, configPath, userID, goal string, autonomous bool) error {
	rt, err := buildRuntime(ctx, configPath, "text")
	if err != nil {
		return err
	}
	defer rt.close()

	kind := models.AgentInteractive
	if autonomous {
		kind = models.AgentAutonomous
	}

	session, err := rt.sessions.Create(ctx, userID, goal, kind)
	if err != nil {
		return fmt.Errorf("agentcored: creating session: %w", err)
	}
	rt.logger.Info("session created", "sessionId", session.ID, "kind", kind)

	result, err := rt.runner.Run(ctx, session, looprunner.Options{
		Tools:               rt.registry.AsSchemaProjections(),
		MaxSteps:            rt.cfg.Loop.MaxSteps,
		Timeout:             rt.cfg.Loop.Timeout(),
		KnowledgeTopK:       rt.cfg.Loop.KnowledgeTopK,
		ConfirmationHandler: stdinConfirmationHandler,
	})
	if err != nil {
		return fmt.Errorf("agentcored: running session: %w", err)
	}

	fmt.Printf("status=%s stepsExecuted=%d canResume=%t\n", result.Status, result.StepsExecuted, result.CanResume)
	if result.FinalResult != "" {
		fmt.Println(result.FinalResult)
	}
	if result.Error != "" {
		fmt.Fprintln(os.Stderr, result.Error)
	}
	return nil
}

func resumeSession(ctx context.Context, configPath, sessionID string) error {
	rt, err := buildRuntime(ctx, configPath, "text")
	if err != nil {
		return err
	}
	defer rt.close()

	session, err := rt.sessions.Get(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("agentcored: loading session: %w", err)
	}
	if err := rt.sessions.UpdateStatus(ctx, session.ID, models.SessionActive); err != nil {
		return fmt.Errorf("agentcored: resuming session: %w", err)
	}

	result, err := rt.runner.Run(ctx, session, looprunner.Options{
		Tools:               rt.registry.AsSchemaProjections(),
		MaxSteps:            rt.cfg.Loop.MaxSteps,
		Timeout:             rt.cfg.Loop.Timeout(),
		KnowledgeTopK:       rt.cfg.Loop.KnowledgeTopK,
		ConfirmationHandler: stdinConfirmationHandler,
	})
	if err != nil {
		return fmt.Errorf("agentcored: running session: %w", err)
	}

	fmt.Printf("status=%s stepsExecuted=%d canResume=%t\n", result.Status, result.StepsExecuted, result.CanResume)
	return nil
}

func runDoctor(ctx context.Context, configPath string) error {
	rt, err := buildRuntime(ctx, configPath, "text")
	if err != nil {
		return err
	}
	defer rt.close()

	// buildRuntime only returns once storagepg.Open has pinged successfully.
	fmt.Println("storage: reachable")

	if rt.redis != nil {
		if err := rt.redis.Ping(ctx).Err(); err != nil {
			fmt.Printf("cache: unreachable (%v)\n", err)
		} else {
			fmt.Println("cache: reachable")
		}
	} else {
		fmt.Println("cache: in-process (AGENTCORE_REDIS_URL not set)")
	}

	snap := rt.metrics.Snapshot()
	fmt.Printf("tool calls: %d (errors: %d)\n", snap.ToolCallsTotal, snap.ToolErrorsTotal)
	fmt.Printf("registered tools: %v\n", rt.registry.Names())
	return nil
}

// stdinConfirmationHandler prompts on the controlling terminal before
// letting an interactive tool call proceed.
func stdinConfirmationHandler(ctx context.Context, preview looprunner.ToolCallPreview) (bool, error) {
	fmt.Printf("Step %d wants to run %q. Proceed? [y/N] ", preview.Step.StepNumber, preview.Step.ToolName)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false, nil
	}
	return strings.EqualFold(strings.TrimSpace(line), "y"), nil
}
