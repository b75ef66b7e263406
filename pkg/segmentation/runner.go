package segmentation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// DefaultWaitDelay bounds how long a cancelled command may take to exit
// after it was sent SIGTERM
const DefaultWaitDelay = 10 * time.Second

// Result holds the captured output of a command
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// CommandRunner runs an external program to completion
type CommandRunner interface {
	Run(ctx context.Context, program string, args ...string) (*Result, error)
}

// ExecRunner runs commands with os/exec. When ctx is done the command is
// sent SIGTERM, which the docker client forwards to its container, and is
// killed if it has not exited after WaitDelay.
type ExecRunner struct {
	// RedirectToConsole mirrors the command's output to this process's
	// stdout and stderr while still capturing it
	RedirectToConsole bool

	// WaitDelay also bounds the wait for output pipes held open by
	// children of the command; DefaultWaitDelay when zero
	WaitDelay time.Duration
}

// Run implements CommandRunner
func (r ExecRunner) Run(ctx context.Context, program string, args ...string) (*Result, error) {
	cmd := exec.CommandContext(ctx, program, args...)
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = r.WaitDelay
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = DefaultWaitDelay
	}

	var stdoutBuf, stderrBuf bytes.Buffer
	stdout := []io.Writer{&stdoutBuf}
	stderr := []io.Writer{&stderrBuf}
	if r.RedirectToConsole {
		stdout = append(stdout, os.Stdout)
		stderr = append(stderr, os.Stderr)
	}
	cmd.Stdout = io.MultiWriter(stdout...)
	cmd.Stderr = io.MultiWriter(stderr...)

	err := cmd.Run()

	result := &Result{
		Stdout: stdoutBuf.String(),
		Stderr: stderrBuf.String(),
	}
	var exitErr *exec.ExitError
	switch {
	case err != nil && errors.As(err, &exitErr):
		result.ExitCode = exitErr.ExitCode()
	case err != nil:
		result.ExitCode = -1
	}
	if err != nil {
		return result, fmt.Errorf("command execution failed: %w", err)
	}
	return result, nil
}
