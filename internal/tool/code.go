package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"

	"github.com/openworkhq/openwork/internal/sandbox"
)

// blockedCodePatterns make a snippet unconditionally rejected: the
// interpreter must not reach the host shell, the process table or the
// module loader. Matching is case-insensitive substring.
var blockedCodePatterns = []string{
	"import os",
	"from os import",
	"import subprocess",
	"import shutil",
	"import sys",
	"__builtins__",
	"__import__",
	"globals()",
	"locals()",
	"os.system",
}

// defaultCodeTimeout bounds one snippet execution.
const defaultCodeTimeout = 30 * time.Second

// CodeTool executes Python snippets through the sandbox, for
// calculations and data processing the shell handles poorly. The
// interpreter runs as a sandboxed subprocess with the same timeout and
// output containment as shell commands.
type CodeTool struct {
	sb             *sandbox.Sandbox
	interpreter    string
	defaultTimeout time.Duration
	outputCap      int
}

// CodeOption customizes a CodeTool.
type CodeOption func(*CodeTool)

// WithCodeTimeout overrides the default snippet timeout.
func WithCodeTimeout(d time.Duration) CodeOption {
	return func(t *CodeTool) { t.defaultTimeout = d }
}

// WithCodeOutputCap overrides the per-stream output cap in bytes.
func WithCodeOutputCap(n int) CodeOption {
	return func(t *CodeTool) { t.outputCap = n }
}

// WithCodeInterpreter overrides the interpreter binary (default
// python3).
func WithCodeInterpreter(name string) CodeOption {
	return func(t *CodeTool) { t.interpreter = name }
}

// NewCodeTool creates a code tool bound to the given sandbox.
func NewCodeTool(sb *sandbox.Sandbox, opts ...CodeOption) *CodeTool {
	t := &CodeTool{
		sb:             sb,
		interpreter:    "python3",
		defaultTimeout: defaultCodeTimeout,
		outputCap:      sandbox.DefaultOutputCap,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Schema implements Tool.
func (t *CodeTool) Schema() Schema {
	return Schema{
		Name:        "code",
		Description: "Execute Python code to perform calculations, data processing, or generate outputs",
		Params: []Param{
			{Name: "code", Type: "string", Description: "Python code to execute", Required: true},
			{Name: "working_dir", Type: "string", Description: "Working directory for code execution (optional)"},
			{Name: "timeout", Type: "integer", Description: "Execution timeout in seconds (default 30)"},
		},
	}
}

// Execute implements Tool.
func (t *CodeTool) Execute(ctx context.Context, args json.RawMessage) Result {
	var params struct {
		Code       string `json:"code"`
		WorkingDir string `json:"working_dir"`
		Timeout    int    `json:"timeout"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return Fail("decode arguments: %v", err)
	}

	if reason := t.vet(params.Code); reason != "" {
		return Fail("code rejected: %s", reason)
	}

	timeout := t.defaultTimeout
	if params.Timeout > 0 {
		timeout = time.Duration(params.Timeout) * time.Second
	}

	command := shellquote.Join(t.interpreter, "-c", params.Code)
	res, err := t.sb.Execute(ctx, command, sandbox.ExecOptions{
		Dir:       params.WorkingDir,
		Timeout:   timeout,
		OutputCap: t.outputCap,
	})
	if err != nil {
		if sandbox.IsTimeout(err) {
			return Fail("code execution timed out after %s", timeout)
		}
		return Fail("%v", err)
	}

	if res.ExitCode != 0 {
		return Result{
			Success: false,
			Output:  res.Stdout,
			Error:   fmt.Sprintf("exit code %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr)),
		}
	}
	return Result{Success: true, Output: res.Stdout}
}

// vet rejects empty snippets and snippets matching the blocked
// patterns. Returns the rejection reason, or "" when the code may run.
func (t *CodeTool) vet(code string) string {
	if strings.TrimSpace(code) == "" {
		return "empty code"
	}
	lower := strings.ToLower(code)
	for _, blocked := range blockedCodePatterns {
		if strings.Contains(lower, blocked) {
			return fmt.Sprintf("blocked pattern %q", blocked)
		}
	}
	return ""
}
