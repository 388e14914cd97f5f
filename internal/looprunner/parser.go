package looprunner

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/kestrel-run/agentcore/pkg/models"
)

// finalOutputRe pulls the JSON payload out of a <final_output>...</final_output>
// envelope. Matching is non-greedy, so when a response carries more than
// one envelope only the first one's payload is taken.
var finalOutputRe = regexp.MustCompile(`(?s)<final_output>\s*(.*?)\s*</final_output>`)

// codeFenceRe pulls the body out of a ```json ... ``` or bare ``` ... ```
// fence, for models that wrap their envelope in a fence instead of (or
// inside) the final_output tags.
var codeFenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// snakeKeyRe finds a single underscore-separated word boundary, e.g. the
// "_t" in "selected_tool", so it can be rewritten to "T".
var snakeKeyRe = regexp.MustCompile(`_([a-zA-Z0-9])`)

// DefaultResponseParser implements ResponseParser against the
// <final_output>{JSON}</final_output> wire envelope: it extracts the JSON
// payload (tolerating a surrounding code fence, or no envelope at all if the
// whole response is already JSON), normalizes snake_case keys to camelCase
// at every nesting level, then dispatches on the "action" discriminant into
// one of the six concrete models.Action kinds.
type DefaultResponseParser struct{}

// NewDefaultResponseParser returns the wire-envelope parser used by
// production sessions.
func NewDefaultResponseParser() *DefaultResponseParser {
	return &DefaultResponseParser{}
}

// Parse implements ResponseParser.
func (p *DefaultResponseParser) Parse(response string) (models.Action, error) {
	raw := extractJSON(response)
	if raw == "" {
		return nil, fmt.Errorf("looprunner: response contains no final_output payload")
	}

	var generic any
	if err := json.Unmarshal([]byte(raw), &generic); err != nil {
		return nil, fmt.Errorf("looprunner: invalid final_output JSON: %w", err)
	}
	normalized := normalizeKeys(generic)

	normalizedJSON, err := json.Marshal(normalized)
	if err != nil {
		return nil, fmt.Errorf("looprunner: re-marshaling normalized envelope: %w", err)
	}

	var header struct {
		Action models.ActionKind `json:"action"`
	}
	if err := json.Unmarshal(normalizedJSON, &header); err != nil {
		return nil, fmt.Errorf("looprunner: reading action discriminant: %w", err)
	}
	if header.Action == "" {
		return nil, fmt.Errorf("looprunner: final_output missing required \"action\" field")
	}

	return decodeAction(header.Action, normalizedJSON)
}

func decodeAction(kind models.ActionKind, raw []byte) (models.Action, error) {
	switch kind {
	case models.ActionCallTool:
		var a models.CallToolAction
		if err := json.Unmarshal(raw, &a); err != nil {
			return nil, fmt.Errorf("looprunner: decoding CallTool action: %w", err)
		}
		return a, nil
	case models.ActionCallToolsParallel:
		var a models.CallToolsParallelAction
		if err := json.Unmarshal(raw, &a); err != nil {
			return nil, fmt.Errorf("looprunner: decoding CallToolsParallel action: %w", err)
		}
		return a, nil
	case models.ActionForkAutoAgent:
		var a models.ForkAutoAgentAction
		if err := json.Unmarshal(raw, &a); err != nil {
			return nil, fmt.Errorf("looprunner: decoding ForkAutoAgent action: %w", err)
		}
		return a, nil
	case models.ActionAskUser:
		var a models.AskUserAction
		if err := json.Unmarshal(raw, &a); err != nil {
			return nil, fmt.Errorf("looprunner: decoding AskUser action: %w", err)
		}
		return a, nil
	case models.ActionPlan:
		var a models.PlanAction
		if err := json.Unmarshal(raw, &a); err != nil {
			return nil, fmt.Errorf("looprunner: decoding Plan action: %w", err)
		}
		return a, nil
	case models.ActionFinish:
		var a models.FinishAction
		if err := json.Unmarshal(raw, &a); err != nil {
			return nil, fmt.Errorf("looprunner: decoding Finish action: %w", err)
		}
		return a, nil
	default:
		return nil, fmt.Errorf("looprunner: unrecognized action kind %q", kind)
	}
}

// extractJSON finds the JSON object a model response carries, preferring a
// <final_output> envelope, then a code fence, then the trimmed response
// itself if it already looks like a JSON object.
func extractJSON(response string) string {
	if m := finalOutputRe.FindStringSubmatch(response); m != nil {
		return stripFence(m[1])
	}
	if m := codeFenceRe.FindStringSubmatch(response); m != nil {
		return strings.TrimSpace(m[1])
	}
	trimmed := strings.TrimSpace(response)
	if strings.HasPrefix(trimmed, "{") {
		return trimmed
	}
	return ""
}

func stripFence(s string) string {
	if m := codeFenceRe.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(s)
}

// normalizeKeys walks a decoded JSON value, rewriting every snake_case
// object key (e.g. "selected_tool") to camelCase ("selectedTool"). Arrays
// and nested objects are normalized recursively; non-object/array leaves
// pass through unchanged.
func normalizeKeys(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, vv := range val {
			out[snakeToCamel(k)] = normalizeKeys(vv)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, vv := range val {
			out[i] = normalizeKeys(vv)
		}
		return out
	default:
		return val
	}
}

func snakeToCamel(key string) string {
	if !strings.Contains(key, "_") {
		return key
	}
	return snakeKeyRe.ReplaceAllStringFunc(key, func(m string) string {
		return strings.ToUpper(m[1:])
	})
}
