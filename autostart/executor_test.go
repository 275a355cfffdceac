package autostart

import (
	"context"
	"strings"
	"testing"
)

// mockRuntime is a fake host.Runtime for testing the executor.
type mockRuntime struct {
	workspace string
	files     map[string]string
	ran       []string
}

func (m *mockRuntime) Initialized() bool     { return true }
func (m *mockRuntime) WorkspacePath() string { return m.workspace }
func (m *mockRuntime) Read(ctx context.Context, path string) (string, error) {
	content, ok := m.files[path]
	if !ok {
		return "", nil
	}
	return content, nil
}
func (m *mockRuntime) Run(ctx context.Context, command string, timeoutSec int, hidden bool) (int, string, error) {
	m.ran = append(m.ran, command)
	if strings.Contains(command, "CONDITION_MET") {
		if strings.Contains(command, "-f package.json") {
			return 0, "CONDITION_MET\n", nil
		}
		return 0, "CONDITION_NOT_MET\n", nil
	}
	return 0, "", nil
}

func TestExecutorRunsCommandsInOrder(t *testing.T) {
	rt := &mockRuntime{
		workspace: "/workspace",
		files: map[string]string{
			"/workspace/widget/.openhands/autostart.yaml": `
autostart:
  enabled: true
  commands:
    - { name: "deps", command: "npm ci", timeout: 300 }
    - { name: "dev",  command: "npm run dev", background: true, condition: "-f package.json" }
`,
		},
	}
	e := NewExecutor(rt, "sess-1", "acme/widget")
	e.Run(context.Background())

	if len(rt.ran) != 3 {
		t.Fatalf("expected 3 commands issued (condition check + 2 runs), got %d: %v", len(rt.ran), rt.ran)
	}
	if rt.ran[0] != "npm ci" {
		t.Fatalf("expected npm ci first, got %q", rt.ran[0])
	}
	if !strings.Contains(rt.ran[1], "[ -f package.json ]") {
		t.Fatalf("expected condition check second, got %q", rt.ran[1])
	}
	wantBg := "nohup npm run dev > /tmp/autostart_dev.log 2>&1 & disown"
	if rt.ran[2] != wantBg {
		t.Fatalf("expected background rewrite %q, got %q", wantBg, rt.ran[2])
	}
}

func TestExecutorSkipsMissingManifest(t *testing.T) {
	rt := &mockRuntime{workspace: "/workspace", files: map[string]string{}}
	e := NewExecutor(rt, "sess-1", "")
	e.Run(context.Background()) // must not panic or block
	if len(rt.ran) != 0 {
		t.Fatalf("expected no commands run, got %v", rt.ran)
	}
}

func TestExecutorSkipsConditionNotMet(t *testing.T) {
	rt := &mockRuntime{
		workspace: "/workspace",
		files: map[string]string{
			"/workspace/.openhands/autostart.yaml": `
startup:
  - { name: "maybe", command: "echo hi", condition: "-f nope.json" }
`,
		},
	}
	e := NewExecutor(rt, "sess-1", "")
	e.Run(context.Background())
	if len(rt.ran) != 1 {
		t.Fatalf("expected only the condition check to run, got %v", rt.ran)
	}
}

func TestParseManifestSkipsCommandlessEntries(t *testing.T) {
	commands, skipped, err := ParseManifest([]byte(`
startup:
  - { name: "ok", command: "echo hi" }
  - { name: "broken" }
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(commands) != 1 || commands[0].Name != "ok" {
		t.Fatalf("expected one parsed command, got %+v", commands)
	}
	if len(skipped) != 1 || skipped[0] != "broken" {
		t.Fatalf("expected 'broken' to be skipped, got %v", skipped)
	}
	if commands[0].Timeout != defaultTimeout {
		t.Fatalf("expected default timeout %d, got %d", defaultTimeout, commands[0].Timeout)
	}
}
