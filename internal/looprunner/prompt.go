package looprunner

import (
	"context"
	"fmt"
	"strings"
)

// DefaultPromptBuilder renders one step's prompt as a goal header, the tool
// catalog, prior step history, and (on step 0 of an autonomous run) the
// knowledge-search hits, followed by the instruction to answer inside a
// <final_output>{JSON}</final_output> envelope.
type DefaultPromptBuilder struct{}

// NewDefaultPromptBuilder returns the prompt renderer used by production
// sessions.
func NewDefaultPromptBuilder() *DefaultPromptBuilder {
	return &DefaultPromptBuilder{}
}

// Build implements PromptBuilder.
func (b *DefaultPromptBuilder) Build(_ context.Context, req PromptRequest) (string, error) {
	if req.Session == nil {
		return "", fmt.Errorf("looprunner: prompt request missing session")
	}

	var sb strings.Builder

	fmt.Fprintf(&sb, "Goal: %s\n", req.Session.Goal)
	if req.AutoRun {
		sb.WriteString("Mode: autonomous\n")
	} else {
		sb.WriteString("Mode: interactive\n")
	}
	fmt.Fprintf(&sb, "Step: %d\n\n", req.StepNumber)

	if len(req.Knowledge) > 0 {
		sb.WriteString("Relevant knowledge:\n")
		for _, k := range req.Knowledge {
			fmt.Fprintf(&sb, "- %s: %s (score %.2f)\n", k.Title, k.Snippet, k.Score)
		}
		sb.WriteString("\n")
	}

	if len(req.Tools) > 0 {
		sb.WriteString("Available tools:\n")
		for _, t := range req.Tools {
			fmt.Fprintf(&sb, "- %s: %s\n", t.Name, t.Description)
			if len(t.Properties) > 0 {
				fmt.Fprintf(&sb, "  params: %s\n", string(t.Properties))
			}
		}
		sb.WriteString("\n")
	}

	if len(req.History) > 0 {
		sb.WriteString("History:\n")
		for _, s := range req.History {
			fmt.Fprintf(&sb, "- step %d: %s", s.StepNumber, s.Action)
			if s.ToolName != "" {
				fmt.Fprintf(&sb, " (%s)", s.ToolName)
			}
			fmt.Fprintf(&sb, " -> %s\n", s.Status)
			if s.ResultSummary != "" {
				fmt.Fprintf(&sb, "  result: %s\n", s.ResultSummary)
			}
			if s.ErrorMessage != "" {
				fmt.Fprintf(&sb, "  error: %s\n", s.ErrorMessage)
			}
		}
		sb.WriteString("\n")
	}

	sb.WriteString("Decide the next action. Respond with exactly one ")
	sb.WriteString("<final_output>{...}</final_output> block containing a JSON object whose ")
	sb.WriteString("\"action\" field is one of CallTool, CallToolsParallel, ForkAutoAgent, AskUser, Plan, or Finish.\n")

	return sb.String(), nil
}
