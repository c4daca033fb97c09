package tool

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestCodeToolRunsSnippet(t *testing.T) {
	sb, _ := newFileTestSandbox(t)
	tool := NewCodeTool(sb)

	res := tool.Execute(context.Background(), rawArgs(t, map[string]string{"code": "print(2 + 2)"}))
	if !res.Success {
		t.Fatalf("snippet failed: %s", res.Error)
	}
	if !strings.Contains(res.Output, "4") {
		t.Errorf("output = %q", res.Output)
	}
}

func TestCodeToolMultilineSnippet(t *testing.T) {
	sb, _ := newFileTestSandbox(t)
	tool := NewCodeTool(sb)

	code := "x = 10\ny = 20\nprint(x + y)"
	res := tool.Execute(context.Background(), rawArgs(t, map[string]string{"code": code}))
	if !res.Success {
		t.Fatalf("snippet failed: %s", res.Error)
	}
	if !strings.Contains(res.Output, "30") {
		t.Errorf("output = %q", res.Output)
	}
}

func TestCodeToolVet(t *testing.T) {
	sb, _ := newFileTestSandbox(t)
	tool := NewCodeTool(sb)

	cases := []struct {
		name string
		code string
	}{
		{"empty", "   "},
		{"import os", "import os; print(os.getcwd())"},
		{"from os import", "from os import system"},
		{"import subprocess", "import subprocess"},
		{"import sys", "import sys; sys.exit(1)"},
		{"dunder import", "__import__('os')"},
		{"globals", "print(globals())"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := tool.Execute(context.Background(), rawArgs(t, map[string]string{"code": tc.code}))
			if res.Success {
				t.Errorf("code %q was not rejected", tc.code)
			}
			if !strings.Contains(res.Error, "rejected") {
				t.Errorf("error = %q, want rejection", res.Error)
			}
		})
	}
}

func TestCodeToolRuntimeErrorSurfacesStderr(t *testing.T) {
	sb, _ := newFileTestSandbox(t)
	tool := NewCodeTool(sb)

	res := tool.Execute(context.Background(), rawArgs(t, map[string]string{"code": "raise ValueError('boom')"}))
	if res.Success {
		t.Error("raising snippet reported success")
	}
	if !strings.Contains(res.Error, "boom") {
		t.Errorf("error = %q, want interpreter traceback", res.Error)
	}
}

func TestCodeToolSyntaxError(t *testing.T) {
	sb, _ := newFileTestSandbox(t)
	tool := NewCodeTool(sb)

	res := tool.Execute(context.Background(), rawArgs(t, map[string]string{"code": "print("}))
	if res.Success {
		t.Error("syntactically broken snippet reported success")
	}
	if !strings.Contains(res.Error, "exit code") {
		t.Errorf("error = %q", res.Error)
	}
}

func TestCodeToolTimeout(t *testing.T) {
	sb, _ := newFileTestSandbox(t)
	tool := NewCodeTool(sb, WithCodeTimeout(200*time.Millisecond))

	start := time.Now()
	res := tool.Execute(context.Background(), rawArgs(t, map[string]string{"code": "import time\ntime.sleep(10)"}))
	if res.Success {
		t.Error("timed-out snippet reported success")
	}
	if !strings.Contains(res.Error, "timed out") {
		t.Errorf("error = %q", res.Error)
	}
	if elapsed := time.Since(start); elapsed > 6*time.Second {
		t.Errorf("timeout enforcement took %s", elapsed)
	}
}

func TestCodeToolWorkingDir(t *testing.T) {
	sb, root := newFileTestSandbox(t)
	tool := NewCodeTool(sb)

	res := tool.Execute(context.Background(), rawArgs(t, map[string]string{
		"code":        "print('placed')",
		"working_dir": root,
	}))
	if !res.Success {
		t.Fatalf("snippet failed: %s", res.Error)
	}

	res = tool.Execute(context.Background(), rawArgs(t, map[string]string{
		"code":        "print('placed')",
		"working_dir": "/etc",
	}))
	if res.Success {
		t.Error("out-of-scope working directory accepted")
	}
}
