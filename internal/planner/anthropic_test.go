package planner

import (
	"encoding/json"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/openworkhq/openwork/internal/memory"
	"github.com/openworkhq/openwork/internal/tool"
)

// responseFromJSON builds a Message the way the transport layer would,
// through the SDK's own union decoding.
func responseFromJSON(t *testing.T, raw string) *anthropic.Message {
	t.Helper()
	var msg anthropic.Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		t.Fatalf("unmarshal response fixture: %v", err)
	}
	return &msg
}

func TestDecisionFromResponseToolUse(t *testing.T) {
	resp := responseFromJSON(t, `{
		"id": "msg_1", "type": "message", "role": "assistant",
		"model": "claude-sonnet-4-20250514",
		"content": [
			{"type": "text", "text": "Reading the file now."},
			{"type": "tool_use", "id": "tu_1", "name": "read_file", "input": {"path": "/work/main.go"}}
		],
		"stop_reason": "tool_use",
		"usage": {"input_tokens": 10, "output_tokens": 5}
	}`)

	d, err := decisionFromResponse(resp)
	if err != nil {
		t.Fatalf("decisionFromResponse: %v", err)
	}
	if d.Kind != DecisionInvoke || d.Tool != "read_file" {
		t.Errorf("decision = %+v", d)
	}
	if d.Notes != "Reading the file now." {
		t.Errorf("notes = %q, want the text preamble", d.Notes)
	}

	var args struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(d.Args, &args); err != nil {
		t.Fatalf("unmarshal args: %v", err)
	}
	if args.Path != "/work/main.go" {
		t.Errorf("args.Path = %q", args.Path)
	}
}

func TestDecisionFromResponseFinish(t *testing.T) {
	resp := responseFromJSON(t, `{
		"id": "msg_1", "type": "message", "role": "assistant",
		"model": "claude-sonnet-4-20250514",
		"content": [{"type": "text", "text": "All three files are renamed."}],
		"stop_reason": "end_turn",
		"usage": {"input_tokens": 10, "output_tokens": 5}
	}`)

	d, err := decisionFromResponse(resp)
	if err != nil {
		t.Fatalf("decisionFromResponse: %v", err)
	}
	if d.Kind != DecisionFinish || d.Output != "All three files are renamed." {
		t.Errorf("decision = %+v", d)
	}
}

func TestDecisionFromResponseDecompose(t *testing.T) {
	resp := responseFromJSON(t, `{
		"id": "msg_1", "type": "message", "role": "assistant",
		"model": "claude-sonnet-4-20250514",
		"content": [{"type": "tool_use", "id": "tu_1", "name": "spawn_subagents", "input": {
			"subtasks": [
				{"description": "fix module a", "paths": ["/work/a"]},
				{"description": "fix module b"}
			]
		}}],
		"stop_reason": "tool_use",
		"usage": {"input_tokens": 10, "output_tokens": 5}
	}`)

	d, err := decisionFromResponse(resp)
	if err != nil {
		t.Fatalf("decisionFromResponse: %v", err)
	}
	if d.Kind != DecisionDecompose || len(d.Subtasks) != 2 {
		t.Fatalf("decision = %+v", d)
	}
	if d.Subtasks[0].Description != "fix module a" || d.Subtasks[0].Paths[0] != "/work/a" {
		t.Errorf("subtasks[0] = %+v", d.Subtasks[0])
	}
	if len(d.Subtasks[1].Paths) != 0 {
		t.Errorf("subtasks[1] = %+v", d.Subtasks[1])
	}
}

func TestDecisionFromResponseBlocked(t *testing.T) {
	resp := responseFromJSON(t, `{
		"id": "msg_1", "type": "message", "role": "assistant",
		"model": "claude-sonnet-4-20250514",
		"content": [{"type": "tool_use", "id": "tu_1", "name": "report_blocked", "input": {"reason": "no API credentials"}}],
		"stop_reason": "tool_use",
		"usage": {"input_tokens": 10, "output_tokens": 5}
	}`)

	d, err := decisionFromResponse(resp)
	if err != nil {
		t.Fatalf("decisionFromResponse: %v", err)
	}
	if d.Kind != DecisionBlocked || d.Reason != "no API credentials" {
		t.Errorf("decision = %+v", d)
	}
}

func TestDecisionFromResponseMalformedControlTool(t *testing.T) {
	resp := responseFromJSON(t, `{
		"id": "msg_1", "type": "message", "role": "assistant",
		"model": "claude-sonnet-4-20250514",
		"content": [{"type": "tool_use", "id": "tu_1", "name": "spawn_subagents", "input": {"subtasks": "not an array"}}],
		"stop_reason": "tool_use",
		"usage": {"input_tokens": 10, "output_tokens": 5}
	}`)

	_, err := decisionFromResponse(resp)
	if !IsDecisionError(err) {
		t.Errorf("err = %v, want recoverable DecisionError", err)
	}
}

func TestDecisionFromResponseEmptySubtasks(t *testing.T) {
	resp := responseFromJSON(t, `{
		"id": "msg_1", "type": "message", "role": "assistant",
		"model": "claude-sonnet-4-20250514",
		"content": [{"type": "tool_use", "id": "tu_1", "name": "spawn_subagents", "input": {"subtasks": []}}],
		"stop_reason": "tool_use",
		"usage": {"input_tokens": 10, "output_tokens": 5}
	}`)

	if _, err := decisionFromResponse(resp); !IsDecisionError(err) {
		t.Errorf("err = %v, want recoverable DecisionError", err)
	}
}

func TestDecisionFromResponseUnusable(t *testing.T) {
	// max_tokens cutoff with no tool use and no usable end_turn text.
	resp := responseFromJSON(t, `{
		"id": "msg_1", "type": "message", "role": "assistant",
		"model": "claude-sonnet-4-20250514",
		"content": [{"type": "text", "text": "I will"}],
		"stop_reason": "max_tokens",
		"usage": {"input_tokens": 10, "output_tokens": 5}
	}`)

	if _, err := decisionFromResponse(resp); !IsDecisionError(err) {
		t.Errorf("err = %v, want recoverable DecisionError", err)
	}
}

func TestMessagesFromEntriesRoles(t *testing.T) {
	entries := []memory.Entry{
		{Kind: memory.EntryTask, Content: "the task"},
		{Kind: memory.EntryPlanner, Content: "my plan"},
		{Kind: memory.EntryTool, Tool: "bash", Content: "Output: done"},
		{Kind: memory.EntrySystem, Content: "a note"},
	}

	messages := messagesFromEntries(entries)
	if len(messages) != 4 {
		t.Fatalf("got %d messages", len(messages))
	}

	wantRoles := []anthropic.MessageParamRole{
		anthropic.MessageParamRoleUser,
		anthropic.MessageParamRoleAssistant,
		anthropic.MessageParamRoleUser,
		anthropic.MessageParamRoleUser,
	}
	for i, want := range wantRoles {
		if messages[i].Role != want {
			t.Errorf("messages[%d].Role = %s, want %s", i, messages[i].Role, want)
		}
	}
}

func TestToolParamsIncludeControlTools(t *testing.T) {
	schemas := []tool.Schema{
		{Name: "read_file", Description: "read", Params: []tool.Param{
			{Name: "path", Type: "string", Required: true},
		}},
	}

	params := toolParams(schemas)
	if len(params) != 3 {
		t.Fatalf("got %d tool params, want registry tool plus both control tools", len(params))
	}

	names := make([]string, 0, len(params))
	for _, p := range params {
		if p.OfTool == nil {
			t.Fatal("tool param missing OfTool")
		}
		names = append(names, p.OfTool.Name)
	}
	want := []string{"read_file", spawnSubagentsTool, reportBlockedTool}
	for i, n := range want {
		if names[i] != n {
			t.Errorf("names[%d] = %s, want %s", i, names[i], n)
		}
	}

	if req := params[0].OfTool.InputSchema.Required; len(req) != 1 || req[0] != "path" {
		t.Errorf("required = %v", req)
	}
}

func TestTranslateModelForBedrock(t *testing.T) {
	got := translateModelForBedrock(anthropic.ModelClaudeSonnet4_20250514)
	if got != "us.anthropic.claude-sonnet-4-20250514-v1:0" {
		t.Errorf("translated = %s", got)
	}

	custom := anthropic.Model("my-custom-profile")
	if translateModelForBedrock(custom) != custom {
		t.Error("unknown model was rewritten")
	}
}

func TestTokenTracker(t *testing.T) {
	tr := NewTokenTracker()
	tr.Add(100, 20)
	tr.Add(50, 10)

	in, out := tr.Total()
	if in != 150 || out != 30 {
		t.Errorf("totals = %d/%d", in, out)
	}
	if tr.Calls() != 2 {
		t.Errorf("calls = %d", tr.Calls())
	}
}
