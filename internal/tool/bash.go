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

// dangerousCommands are substrings that make a command unconditionally
// rejected regardless of configuration.
var dangerousCommands = []string{
	"rm -rf /",
	"rm -rf ~",
	"dd if=",
	"mkfs",
	":(){ :|:& };:",
	"> /dev/sda",
	"chmod -r 777 /",
}

// defaultBlockedPatterns are rejected unless the operator overrides the
// blocklist in configuration.
var defaultBlockedPatterns = []string{
	"sudo",
	"su ",
	"curl | bash",
	"wget | bash",
	"eval",
}

// BashTool executes shell commands through the sandbox: working
// directory confined to authorized paths, hard timeout, capped output.
type BashTool struct {
	sb              *sandbox.Sandbox
	defaultTimeout  time.Duration
	outputCap       int
	blockedPatterns []string
}

// BashOption customizes a BashTool.
type BashOption func(*BashTool)

// WithBashTimeout overrides the default command timeout.
func WithBashTimeout(d time.Duration) BashOption {
	return func(t *BashTool) { t.defaultTimeout = d }
}

// WithBashOutputCap overrides the per-stream output cap in bytes.
func WithBashOutputCap(n int) BashOption {
	return func(t *BashTool) { t.outputCap = n }
}

// WithBashBlocklist replaces the default blocked command patterns.
func WithBashBlocklist(patterns []string) BashOption {
	return func(t *BashTool) { t.blockedPatterns = patterns }
}

// NewBashTool creates a bash tool bound to the given sandbox.
func NewBashTool(sb *sandbox.Sandbox, opts ...BashOption) *BashTool {
	t := &BashTool{
		sb:              sb,
		defaultTimeout:  sandbox.DefaultExecTimeout,
		outputCap:       sandbox.DefaultOutputCap,
		blockedPatterns: defaultBlockedPatterns,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Schema implements Tool.
func (t *BashTool) Schema() Schema {
	return Schema{
		Name:        "bash",
		Description: "Execute a bash command inside the authorized directories",
		Params: []Param{
			{Name: "command", Type: "string", Description: "The bash command to execute", Required: true},
			{Name: "working_dir", Type: "string", Description: "Working directory for the command (optional)"},
			{Name: "timeout", Type: "integer", Description: "Command timeout in seconds (default 60)"},
		},
	}
}

// Execute implements Tool.
func (t *BashTool) Execute(ctx context.Context, args json.RawMessage) Result {
	var params struct {
		Command    string `json:"command"`
		WorkingDir string `json:"working_dir"`
		Timeout    int    `json:"timeout"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return Fail("decode arguments: %v", err)
	}

	if reason := t.vet(params.Command); reason != "" {
		return Fail("command rejected: %s", reason)
	}

	timeout := t.defaultTimeout
	if params.Timeout > 0 {
		timeout = time.Duration(params.Timeout) * time.Second
	}

	res, err := t.sb.Execute(ctx, params.Command, sandbox.ExecOptions{
		Dir:       params.WorkingDir,
		Timeout:   timeout,
		OutputCap: t.outputCap,
	})
	if err != nil {
		if sandbox.IsTimeout(err) {
			return Fail("command timed out after %s", timeout)
		}
		return Fail("%v", err)
	}

	if res.ExitCode != 0 {
		output := res.Stdout
		if res.Stderr != "" {
			output = fmt.Sprintf("stdout:\n%s\nstderr:\n%s", res.Stdout, res.Stderr)
		}
		return Result{Success: false, Output: output, Error: fmt.Sprintf("exit code %d", res.ExitCode)}
	}
	return Result{Success: true, Output: res.Stdout}
}

// vet rejects commands matching the dangerous or blocked patterns and
// commands that do not parse as shell words. Returns the rejection
// reason, or "" when the command may run.
func (t *BashTool) vet(command string) string {
	trimmed := strings.TrimSpace(command)
	if trimmed == "" {
		return "empty command"
	}
	if _, err := shellquote.Split(trimmed); err != nil {
		return fmt.Sprintf("unparseable command: %v", err)
	}

	lower := strings.ToLower(trimmed)
	for _, dangerous := range dangerousCommands {
		if strings.Contains(lower, dangerous) {
			return fmt.Sprintf("dangerous pattern %q", dangerous)
		}
	}
	for _, blocked := range t.blockedPatterns {
		if strings.Contains(lower, strings.ToLower(blocked)) {
			return fmt.Sprintf("blocked pattern %q", blocked)
		}
	}
	return ""
}
