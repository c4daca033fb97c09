package models

import (
	"testing"
	"time"
)

func TestTaskStatusValid(t *testing.T) {
	valid := []TaskStatus{
		TaskStatusPending, TaskStatusRunning, TaskStatusThinking,
		TaskStatusExecuting, TaskStatusCompleted, TaskStatusFailed,
		TaskStatusCancelled,
	}
	for _, s := range valid {
		if !s.Valid() {
			t.Errorf("%s.Valid() = false", s)
		}
	}
	if TaskStatus("paused").Valid() {
		t.Error("unknown status reported valid")
	}
}

func TestTaskStatusTerminal(t *testing.T) {
	terminal := map[TaskStatus]bool{
		TaskStatusPending:   false,
		TaskStatusRunning:   false,
		TaskStatusThinking:  false,
		TaskStatusExecuting: false,
		TaskStatusCompleted: true,
		TaskStatusFailed:    true,
		TaskStatusCancelled: true,
	}
	for s, want := range terminal {
		if s.Terminal() != want {
			t.Errorf("%s.Terminal() = %v, want %v", s, s.Terminal(), want)
		}
	}
}

func TestEventKindTerminal(t *testing.T) {
	terminal := map[EventKind]bool{
		EventQueued:    false,
		EventThinking:  false,
		EventExecuting: false,
		EventCompacted: false,
		EventFinished:  true,
		EventError:     true,
	}
	for k, want := range terminal {
		if k.Terminal() != want {
			t.Errorf("%s.Terminal() = %v, want %v", k, k.Terminal(), want)
		}
	}
}

func TestTaskClone(t *testing.T) {
	started := time.Now()
	orig := &Task{
		ID:              "t-1",
		AuthorizedPaths: []string{"/a", "/b"},
		ToolLog:         []ToolInvocation{{Seq: 1, Tool: "bash"}},
		StartedAt:       &started,
	}

	clone := orig.Clone()
	clone.AuthorizedPaths[0] = "/mutated"
	clone.ToolLog[0].Tool = "mutated"
	*clone.StartedAt = clone.StartedAt.Add(time.Hour)

	if orig.AuthorizedPaths[0] != "/a" {
		t.Error("clone shares AuthorizedPaths backing array")
	}
	if orig.ToolLog[0].Tool != "bash" {
		t.Error("clone shares ToolLog backing array")
	}
	if !orig.StartedAt.Equal(started) {
		t.Error("clone shares StartedAt pointer")
	}
}
