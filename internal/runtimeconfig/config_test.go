package runtimeconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadPlainYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "base.yaml", `
loop:
  maxSteps: 40
  timeoutSeconds: 120
executor:
  defaultTimeoutSeconds: 15
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Loop.MaxSteps != 40 {
		t.Fatalf("expected maxSteps 40, got %d", cfg.Loop.MaxSteps)
	}
	if cfg.Executor.DefaultTimeoutSeconds != 15 {
		t.Fatalf("expected defaultTimeoutSeconds 15, got %d", cfg.Executor.DefaultTimeoutSeconds)
	}
	// Fields absent from the document keep Default()'s values.
	if cfg.Fork.MaxDepth != 3 {
		t.Fatalf("expected fork.maxDepth default of 3, got %d", cfg.Fork.MaxDepth)
	}
}

func TestLoadResolvesIncludes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "fork.yaml", `
fork:
  maxDepth: 7
`)
	path := writeFile(t, dir, "main.yaml", `
$include:
  - fork.yaml
loop:
  maxSteps: 10
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Fork.MaxDepth != 7 {
		t.Fatalf("expected included fork.maxDepth 7, got %d", cfg.Fork.MaxDepth)
	}
	if cfg.Loop.MaxSteps != 10 {
		t.Fatalf("expected loop.maxSteps 10, got %d", cfg.Loop.MaxSteps)
	}
}

func TestLoadExpandsEnvVars(t *testing.T) {
	dir := t.TempDir()
	os.Setenv("AGENTCORE_TEST_MAX_STEPS", "99")
	defer os.Unsetenv("AGENTCORE_TEST_MAX_STEPS")
	path := writeFile(t, dir, "env.yaml", `
loop:
  maxSteps: ${AGENTCORE_TEST_MAX_STEPS}
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Loop.MaxSteps != 99 {
		t.Fatalf("expected env-expanded maxSteps 99, got %d", cfg.Loop.MaxSteps)
	}
}

func TestLoadDetectsIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "$include: [b.yaml]\n")
	writeFile(t, dir, "b.yaml", "$include: [a.yaml]\n")
	if _, err := Load(filepath.Join(dir, "a.yaml")); err == nil {
		t.Fatal("expected circular $include to be rejected")
	}
}
