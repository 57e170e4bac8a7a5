package media

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Runner executes external commands. The assembler uses it for ffmpeg so
// tests can substitute a fake.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

// ExecRunner runs commands with exec.CommandContext.
type ExecRunner struct{}

// Run executes the command and returns combined stdout. Stderr is folded
// into the error, which is where ffmpeg reports its diagnostics.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return "", fmt.Errorf("command %s failed: %w\nstderr: %s", name, err, msg)
		}
		return "", fmt.Errorf("command %s failed: %w", name, err)
	}
	return stdout.String(), nil
}
