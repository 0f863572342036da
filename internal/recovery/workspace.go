package recovery

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// FSWorkspace applies code fixes to files under a root directory. An
// optional check command verifies the tree after each write.
type FSWorkspace struct {
	// Root confines all reads and writes
	Root string
	// CheckCommand verifies the workspace after a write, e.g. a test
	// runner. Empty disables verification.
	CheckCommand string
	// CheckArgs are passed to CheckCommand
	CheckArgs []string
	// CheckTimeout bounds verification; zero means 2 minutes
	CheckTimeout time.Duration
}

// NewFSWorkspace creates a workspace rooted at dir.
func NewFSWorkspace(dir string) *FSWorkspace {
	return &FSWorkspace{Root: dir}
}

// Read returns the file contents at a location relative to the root.
func (w *FSWorkspace) Read(location string) (string, error) {
	path, err := w.resolve(location)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", location, err)
	}
	return string(data), nil
}

// Write replaces the file contents at a location relative to the root.
func (w *FSWorkspace) Write(location, code string) error {
	path, err := w.resolve(location)
	if err != nil {
		return err
	}
	info, err := os.Stat(path)
	mode := os.FileMode(0644)
	if err == nil {
		mode = info.Mode()
	}
	if err := os.WriteFile(path, []byte(code), mode); err != nil {
		return fmt.Errorf("failed to write %s: %w", location, err)
	}
	return nil
}

// Check runs the configured verification command in the workspace root.
// With no command configured the check passes trivially.
func (w *FSWorkspace) Check(ctx context.Context) error {
	if w.CheckCommand == "" {
		return nil
	}
	timeout := w.CheckTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, w.CheckCommand, w.CheckArgs...)
	cmd.Dir = w.Root
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("workspace check failed: %s", truncateOutput(out.String(), 300))
	}
	return nil
}

// resolve maps a location onto the root, rejecting escapes.
func (w *FSWorkspace) resolve(location string) (string, error) {
	if w.Root == "" {
		return "", fmt.Errorf("workspace has no root configured")
	}
	path := filepath.Join(w.Root, filepath.Clean("/"+location))
	rel, err := filepath.Rel(w.Root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("location %q escapes workspace root", location)
	}
	return path, nil
}
