package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"syscall"
	"time"
)

const (
	// DefaultExecTimeout bounds a command when the caller passes zero.
	DefaultExecTimeout = 60 * time.Second
	// DefaultOutputCap bounds captured stdout/stderr per stream.
	DefaultOutputCap = 64 * 1024
)

// TimeoutError is returned when a sandboxed command exceeds its wall-clock
// budget. The underlying process group is killed before this is returned.
type TimeoutError struct {
	// Timeout is the budget the command exceeded.
	Timeout time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("command timed out after %s", e.Timeout)
}

// IsTimeout reports whether err is a sandboxed execution timeout.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// ExecResult holds the outcome of a sandboxed command.
type ExecResult struct {
	// ExitCode is the process exit code; -1 if the process was killed.
	ExitCode int
	// Stdout is the captured standard output, capped at the output limit.
	Stdout string
	// Stderr is the captured standard error, capped at the output limit.
	Stderr string
	// Truncated indicates at least one stream exceeded the cap.
	Truncated bool
}

// ExecOptions configures a sandboxed command execution.
type ExecOptions struct {
	// Dir is the working directory; must resolve inside the sandbox.
	Dir string
	// Timeout is the wall-clock budget. Zero means DefaultExecTimeout.
	Timeout time.Duration
	// OutputCap bounds captured bytes per stream. Zero means DefaultOutputCap.
	OutputCap int
}

// Execute runs a shell command with the working directory sandbox-checked
// and a hard timeout that kills the whole process group on expiry. Output
// is capped rather than buffered unbounded.
func (s *Sandbox) Execute(ctx context.Context, command string, opts ExecOptions) (*ExecResult, error) {
	dir := opts.Dir
	if dir == "" {
		dir = s.roots[0]
	}
	resolvedDir, err := s.Resolve(dir)
	if err != nil {
		return nil, err
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultExecTimeout
	}
	outputCap := opts.OutputCap
	if outputCap <= 0 {
		outputCap = DefaultOutputCap
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, "bash", "-c", command)
	cmd.Dir = resolvedDir
	// Run the command in its own process group so the timeout can take
	// down children spawned by the shell, not just the shell itself.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = 5 * time.Second

	stdout := newCapBuffer(outputCap)
	stderr := newCapBuffer(outputCap)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	runErr := cmd.Run()

	result := &ExecResult{
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		Truncated: stdout.truncated || stderr.truncated,
	}

	if execCtx.Err() == context.DeadlineExceeded {
		result.ExitCode = -1
		return result, &TimeoutError{Timeout: timeout}
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return nil, fmt.Errorf("run command: %w", runErr)
	}

	result.ExitCode = 0
	return result, nil
}

// capBuffer captures up to cap bytes and discards the rest.
type capBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func newCapBuffer(limit int) *capBuffer {
	return &capBuffer{limit: limit}
}

// Write implements io.Writer. Writes past the cap are counted as consumed
// so the child process never blocks on a full pipe.
func (b *capBuffer) Write(p []byte) (int, error) {
	remaining := b.limit - b.buf.Len()
	if remaining <= 0 {
		b.truncated = true
		return len(p), nil
	}
	if len(p) > remaining {
		b.buf.Write(p[:remaining])
		b.truncated = true
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}

// String returns the captured output, annotated when truncated.
func (b *capBuffer) String() string {
	if b.truncated {
		return b.buf.String() + "\n... (output truncated)"
	}
	return b.buf.String()
}
