package recovery

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"
)

// CommandExecutor runs a configured shell command as the recovery hook.
// The goal and parameter overrides are passed through the environment as
// REMEDY_GOAL and REMEDY_OVERRIDE_<KEY> variables, so the supervised
// workload decides what restart/retry means for itself.
type CommandExecutor struct {
	// Command is the program to run
	Command string
	// Args are fixed arguments passed on every invocation
	Args []string
	// Timeout bounds each invocation; zero means 5 minutes
	Timeout time.Duration
}

// NewCommandExecutor creates an executor for the given command line.
func NewCommandExecutor(command string, args ...string) *CommandExecutor {
	return &CommandExecutor{Command: command, Args: args}
}

// ProcessGoal runs the command once. Exit code zero is success; a
// non-zero exit is a failure result, not an error.
func (e *CommandExecutor) ProcessGoal(ctx context.Context, goal string, overrides map[string]interface{}) (*ExecResult, error) {
	if e.Command == "" {
		return nil, fmt.Errorf("command executor has no command configured")
	}

	timeout := e.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, e.Command, e.Args...)
	cmd.Env = append(os.Environ(), overrideEnv(goal, overrides)...)

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Run(); err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return &ExecResult{Status: "failed", Detail: "command timed out"}, nil
		}
		if _, isExit := err.(*exec.ExitError); isExit {
			return &ExecResult{
				Status: "failed",
				Detail: truncateOutput(out.String(), 500),
			}, nil
		}
		return nil, fmt.Errorf("failed to run recovery command: %w", err)
	}

	return &ExecResult{
		Status: "success",
		Detail: truncateOutput(out.String(), 500),
	}, nil
}

// overrideEnv flattens the goal and overrides into environment variables
// in deterministic order.
func overrideEnv(goal string, overrides map[string]interface{}) []string {
	env := []string{"REMEDY_GOAL=" + goal}
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		name := "REMEDY_OVERRIDE_" + strings.ToUpper(strings.ReplaceAll(k, "-", "_"))
		env = append(env, fmt.Sprintf("%s=%v", name, overrides[k]))
	}
	return env
}

func truncateOutput(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

// NoopExecutor records goals without acting on them. Used when no
// recovery command is configured, so strategies that only adjust
// parameters still complete.
type NoopExecutor struct{}

// ProcessGoal accepts the goal and reports success.
func (NoopExecutor) ProcessGoal(ctx context.Context, goal string, overrides map[string]interface{}) (*ExecResult, error) {
	return &ExecResult{Status: "success", Detail: fmt.Sprintf("no executor configured; recorded goal %q with %d overrides", goal, len(overrides))}, nil
}
