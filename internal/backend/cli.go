package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// cliWaitDelay bounds how long a killed command may keep its output pipes
// open through processes it started.
const cliWaitDelay = 250 * time.Millisecond

// RunCLI runs a node command line binary and returns its trimmed stdout.
//
// Any output on stderr fails the call regardless of exit status; a process
// still running when timeout elapses is killed along with its children and
// reported as TimeoutError. A zero timeout means no limit beyond ctx.
func RunCLI(ctx context.Context, path string, args []string, timeout time.Duration) (string, error) {
	name := filepath.Base(path)

	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, path, args...)
	setProcessGroup(cmd)
	cmd.Cancel = func() error { return killProcessGroup(cmd) }
	cmd.WaitDelay = cliWaitDelay
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	if timeout > 0 && errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return "", &TimeoutError{Command: name, Timeout: timeout}
	}
	if ctx.Err() != nil {
		return "", fmt.Errorf("%s: %w", name, ctx.Err())
	}
	if stderr.Len() > 0 {
		return "", &CLIError{Command: name, Stderr: strings.TrimSpace(stderr.String())}
	}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return "", fmt.Errorf("failed to run %s: %w", name, err)
		}
	}

	return strings.TrimSpace(stdout.String()), nil
}
