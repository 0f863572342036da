package recovery

import (
	"context"
	"testing"
)

func TestOverrideEnvDeterministic(t *testing.T) {
	env := overrideEnv("restart the worker", map[string]interface{}{
		"timeout_seconds": 120,
		"batch-size":      32,
		"algorithm":       "sampling",
	})

	want := []string{
		"REMEDY_GOAL=restart the worker",
		"REMEDY_OVERRIDE_ALGORITHM=sampling",
		"REMEDY_OVERRIDE_BATCH_SIZE=32",
		"REMEDY_OVERRIDE_TIMEOUT_SECONDS=120",
	}
	if len(env) != len(want) {
		t.Fatalf("env = %v", env)
	}
	for i := range want {
		if env[i] != want[i] {
			t.Errorf("env[%d] = %q, want %q", i, env[i], want[i])
		}
	}
}

func TestCommandExecutorRequiresCommand(t *testing.T) {
	e := &CommandExecutor{}
	if _, err := e.ProcessGoal(context.Background(), "goal", nil); err == nil {
		t.Fatal("expected error with no command configured")
	}
}

func TestCommandExecutorExitCodes(t *testing.T) {
	ctx := context.Background()

	ok := NewCommandExecutor("true")
	result, err := ok.ProcessGoal(ctx, "succeed", nil)
	if err != nil {
		t.Fatalf("ProcessGoal failed: %v", err)
	}
	if !result.Succeeded() {
		t.Errorf("exit 0 reported %q", result.Status)
	}

	bad := NewCommandExecutor("false")
	result, err = bad.ProcessGoal(ctx, "fail", nil)
	if err != nil {
		t.Fatalf("non-zero exit should not be an error: %v", err)
	}
	if result.Succeeded() {
		t.Error("exit 1 reported success")
	}
}

func TestNoopExecutorAlwaysSucceeds(t *testing.T) {
	result, err := NoopExecutor{}.ProcessGoal(context.Background(), "anything", map[string]interface{}{"k": 1})
	if err != nil {
		t.Fatalf("ProcessGoal failed: %v", err)
	}
	if !result.Succeeded() {
		t.Errorf("noop executor reported %q", result.Status)
	}
}

func TestTruncateOutput(t *testing.T) {
	if got := truncateOutput("  short  ", 10); got != "short" {
		t.Errorf("got %q", got)
	}
	if got := truncateOutput("abcdefghij", 4); got != "abcd..." {
		t.Errorf("got %q", got)
	}
}
