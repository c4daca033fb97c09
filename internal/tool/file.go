package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/openworkhq/openwork/internal/sandbox"
)

// DefaultReadCap bounds file contents returned to the planner.
const DefaultReadCap = 256 * 1024

// ReadFileTool reads a file inside the sandbox.
type ReadFileTool struct {
	sb *sandbox.Sandbox
	// cap bounds returned bytes; zero means DefaultReadCap.
	cap int
}

// NewReadFileTool creates a read_file tool bound to the given sandbox.
func NewReadFileTool(sb *sandbox.Sandbox) *ReadFileTool {
	return &ReadFileTool{sb: sb}
}

// Schema implements Tool.
func (t *ReadFileTool) Schema() Schema {
	return Schema{
		Name:        "read_file",
		Description: "Read the contents of a file",
		Params: []Param{
			{Name: "path", Type: "string", Description: "Path of the file to read", Required: true},
		},
	}
}

// Execute implements Tool.
func (t *ReadFileTool) Execute(ctx context.Context, args json.RawMessage) Result {
	var params struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return Fail("decode arguments: %v", err)
	}

	resolved, err := t.sb.Resolve(params.Path)
	if err != nil {
		return Fail("%v", err)
	}

	info, err := os.Stat(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return Fail("file not found: %s", params.Path)
		}
		return Fail("stat %s: %v", params.Path, err)
	}
	if info.IsDir() {
		return Fail("not a file: %s", params.Path)
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return Fail("read %s: %v", params.Path, err)
	}

	max := t.cap
	if max <= 0 {
		max = DefaultReadCap
	}
	return Result{Success: true, Output: Truncate(string(data), max)}
}

// WriteFileTool writes a file inside the sandbox, creating parent
// directories as needed.
type WriteFileTool struct {
	sb *sandbox.Sandbox
}

// NewWriteFileTool creates a write_file tool bound to the given sandbox.
func NewWriteFileTool(sb *sandbox.Sandbox) *WriteFileTool {
	return &WriteFileTool{sb: sb}
}

// Schema implements Tool.
func (t *WriteFileTool) Schema() Schema {
	return Schema{
		Name:        "write_file",
		Description: "Write content to a file, creating it and any parent directories",
		Params: []Param{
			{Name: "path", Type: "string", Description: "Path of the file to write", Required: true},
			{Name: "content", Type: "string", Description: "Content to write", Required: true},
		},
	}
}

// Execute implements Tool.
func (t *WriteFileTool) Execute(ctx context.Context, args json.RawMessage) Result {
	var params struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return Fail("decode arguments: %v", err)
	}

	resolved, err := t.sb.Resolve(params.Path)
	if err != nil {
		return Fail("%v", err)
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return Fail("create parent directories: %v", err)
	}
	if err := os.WriteFile(resolved, []byte(params.Content), 0o644); err != nil {
		return Fail("write %s: %v", params.Path, err)
	}

	return Result{Success: true, Output: fmt.Sprintf("Wrote %d bytes to %s", len(params.Content), params.Path)}
}

// ListDirTool lists a directory inside the sandbox.
type ListDirTool struct {
	sb *sandbox.Sandbox
}

// NewListDirTool creates a list_dir tool bound to the given sandbox.
func NewListDirTool(sb *sandbox.Sandbox) *ListDirTool {
	return &ListDirTool{sb: sb}
}

// Schema implements Tool.
func (t *ListDirTool) Schema() Schema {
	return Schema{
		Name:        "list_dir",
		Description: "List the entries of a directory",
		Params: []Param{
			{Name: "path", Type: "string", Description: "Path of the directory to list", Required: true},
		},
	}
}

// Execute implements Tool.
func (t *ListDirTool) Execute(ctx context.Context, args json.RawMessage) Result {
	var params struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return Fail("decode arguments: %v", err)
	}

	resolved, err := t.sb.Resolve(params.Path)
	if err != nil {
		return Fail("%v", err)
	}

	entries, err := os.ReadDir(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return Fail("directory not found: %s", params.Path)
		}
		return Fail("list %s: %v", params.Path, err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var b strings.Builder
	for _, entry := range entries {
		kind := "file"
		if entry.IsDir() {
			kind = "dir"
		}
		fmt.Fprintf(&b, "%-4s %s\n", kind, entry.Name())
	}
	if b.Len() == 0 {
		return Result{Success: true, Output: "(empty directory)"}
	}
	return Result{Success: true, Output: strings.TrimRight(b.String(), "\n")}
}
