// Package runtimeconfig loads the runtime's tunables from a layered
// YAML/JSON5 document: per-concern config blocks with environment-variable
// interpolation and a $include directive for splitting configuration
// across files, the same layering style the teacher's config loader uses.
package runtimeconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/yosuke-furukawa/json5"
	"gopkg.in/yaml.v3"
)

// LoopConfig tunes the agent loop (C10). Durations are stored in seconds so
// they round-trip through YAML/JSON5 scalars without a custom unmarshaler.
type LoopConfig struct {
	MaxSteps        int `yaml:"maxSteps" json:"maxSteps"`
	TimeoutSeconds  int `yaml:"timeoutSeconds" json:"timeoutSeconds"`
	KnowledgeTopK   int `yaml:"knowledgeTopK" json:"knowledgeTopK"`
}

// Timeout returns TimeoutSeconds as a time.Duration.
func (l LoopConfig) Timeout() time.Duration { return time.Duration(l.TimeoutSeconds) * time.Second }

// ExecutorConfig supplies the async tool executor's (C5) task timeout and
// retry cap. The tool executor (C4) and parallel executor (C6) take their
// timeouts and retries from tool descriptors and per-call requests instead.
type ExecutorConfig struct {
	DefaultTimeoutSeconds int `yaml:"defaultTimeoutSeconds" json:"defaultTimeoutSeconds"`
	MaxRetries            int `yaml:"maxRetries" json:"maxRetries"`
}

// SessionManagerConfig tunes the session manager (C9).
type SessionManagerConfig struct {
	MaxSessionsPerUser   int `yaml:"maxSessionsPerUser" json:"maxSessionsPerUser"`
	StaleAfterSeconds    int `yaml:"staleAfterSeconds" json:"staleAfterSeconds"`
	SweepIntervalSeconds int `yaml:"sweepIntervalSeconds" json:"sweepIntervalSeconds"`
}

// StaleAfter returns StaleAfterSeconds as a time.Duration.
func (s SessionManagerConfig) StaleAfter() time.Duration {
	return time.Duration(s.StaleAfterSeconds) * time.Second
}

// SweepInterval returns SweepIntervalSeconds as a time.Duration.
func (s SessionManagerConfig) SweepInterval() time.Duration {
	return time.Duration(s.SweepIntervalSeconds) * time.Second
}

// ForkConfig tunes the agent-fork subsystem (C7).
type ForkConfig struct {
	MaxDepth             int `yaml:"maxDepth" json:"maxDepth"`
	CompressionThreshold int `yaml:"compressionThreshold" json:"compressionThreshold"`
	DefaultMaxSteps      int `yaml:"defaultMaxSteps" json:"defaultMaxSteps"`
	DefaultTimeoutSec    int `yaml:"defaultTimeoutSec" json:"defaultTimeoutSec"`
}

// Config is the fully resolved set of runtime knobs.
type Config struct {
	Loop           LoopConfig           `yaml:"loop" json:"loop"`
	Executor       ExecutorConfig       `yaml:"executor" json:"executor"`
	SessionManager SessionManagerConfig `yaml:"sessionManager" json:"sessionManager"`
	Fork           ForkConfig           `yaml:"fork" json:"fork"`
}

// Default returns the config all components fall back to absent a file.
func Default() *Config {
	return &Config{
		Loop:           LoopConfig{MaxSteps: 25, TimeoutSeconds: 600, KnowledgeTopK: 5},
		Executor:       ExecutorConfig{DefaultTimeoutSeconds: 30, MaxRetries: 3},
		SessionManager: SessionManagerConfig{MaxSessionsPerUser: 5, StaleAfterSeconds: 1800, SweepIntervalSeconds: 300},
		Fork:           ForkConfig{MaxDepth: 3, CompressionThreshold: 500, DefaultMaxSteps: 20, DefaultTimeoutSec: 300},
	}
}

// Load reads path (YAML or, by extension, JSON5), resolves any top-level
// $include directive (a list of paths, relative to path's directory,
// merged in order before this document's own fields override them),
// expands ${ENV_VAR} references, and decodes the result into Config.
func Load(path string) (*Config, error) {
	merged, err := loadAndMerge(path, make(map[string]bool))
	if err != nil {
		return nil, err
	}

	out, err := yaml.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("runtimeconfig: remarshaling merged document: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(out, cfg); err != nil {
		return nil, fmt.Errorf("runtimeconfig: decoding %s: %w", path, err)
	}
	return cfg, nil
}

func loadAndMerge(path string, seen map[string]bool) (map[string]any, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if seen[abs] {
		return nil, fmt.Errorf("runtimeconfig: circular $include at %s", path)
	}
	seen[abs] = true

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("runtimeconfig: reading %s: %w", path, err)
	}
	expanded := os.ExpandEnv(string(raw))

	doc, err := decodeDocument(path, expanded)
	if err != nil {
		return nil, err
	}

	merged := make(map[string]any)
	if includes, ok := doc["$include"]; ok {
		paths, ok := toStringSlice(includes)
		if !ok {
			return nil, fmt.Errorf("runtimeconfig: $include in %s must be a list of strings", path)
		}
		dir := filepath.Dir(path)
		for _, inc := range paths {
			incPath := inc
			if !filepath.IsAbs(incPath) {
				incPath = filepath.Join(dir, inc)
			}
			included, err := loadAndMerge(incPath, seen)
			if err != nil {
				return nil, err
			}
			mergeInto(merged, included)
		}
	}
	delete(doc, "$include")
	mergeInto(merged, doc)
	return merged, nil
}

func decodeDocument(path, content string) (map[string]any, error) {
	doc := make(map[string]any)
	if filepath.Ext(path) == ".json5" || filepath.Ext(path) == ".json" {
		if err := json5.Unmarshal([]byte(content), &doc); err != nil {
			return nil, fmt.Errorf("runtimeconfig: parsing %s as json5: %w", path, err)
		}
		return doc, nil
	}
	if err := yaml.Unmarshal([]byte(content), &doc); err != nil {
		return nil, fmt.Errorf("runtimeconfig: parsing %s as yaml: %w", path, err)
	}
	return doc, nil
}

// mergeInto shallow-merges src's top-level keys over dst; nested config
// blocks (loop, executor, ...) are whole documents in practice, so a
// shallow merge at the block level matches how the teacher's layered
// config composes per-concern overrides.
func mergeInto(dst, src map[string]any) {
	for k, v := range src {
		dst[k] = v
	}
}

func toStringSlice(v any) ([]string, bool) {
	list, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}
