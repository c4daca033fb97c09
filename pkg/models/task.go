// Package models defines the core data types shared across openwork.
package models

import "time"

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	// TaskStatusPending indicates the task has not been claimed by a worker.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusRunning indicates the task's agent loop has started.
	TaskStatusRunning TaskStatus = "running"
	// TaskStatusThinking indicates the loop is waiting on a planner decision.
	TaskStatusThinking TaskStatus = "thinking"
	// TaskStatusExecuting indicates the loop is executing a tool.
	TaskStatusExecuting TaskStatus = "executing"
	// TaskStatusCompleted indicates the task finished successfully.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusFailed indicates the task failed.
	TaskStatusFailed TaskStatus = "failed"
	// TaskStatusCancelled indicates the task was cancelled by external request.
	TaskStatusCancelled TaskStatus = "cancelled"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusRunning, TaskStatusThinking,
		TaskStatusExecuting, TaskStatusCompleted, TaskStatusFailed,
		TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal returns true if the status is a terminal lifecycle state.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// Task represents one user-submitted unit of work with its own
// authorization scope and lifecycle.
type Task struct {
	// ID is the unique identifier for this task.
	ID string `json:"id"`
	// Description is the natural-language task given by the user.
	Description string `json:"description"`
	// AuthorizedPaths is the ordered set of absolute directory roots the
	// task's tools may touch. Immutable for the lifetime of the task.
	AuthorizedPaths []string `json:"authorized_paths"`
	// Status is the current lifecycle state of the task.
	Status TaskStatus `json:"status"`
	// Output is the final output produced by the agent, if any.
	Output string `json:"output,omitempty"`
	// Error contains the error message if the task failed.
	Error string `json:"error,omitempty"`
	// ToolLog is the accumulated record of tool invocations.
	ToolLog []ToolInvocation `json:"tool_log,omitempty"`
	// CreatedAt is when the task was submitted.
	CreatedAt time.Time `json:"created_at"`
	// StartedAt is when a worker claimed the task, if it has run.
	StartedAt *time.Time `json:"started_at,omitempty"`
	// CompletedAt is when the task reached a terminal state, if it has.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Clone returns a deep copy of the task, safe to hand to pollers while
// the owning loop keeps mutating the original.
func (t *Task) Clone() *Task {
	c := *t
	c.AuthorizedPaths = append([]string(nil), t.AuthorizedPaths...)
	c.ToolLog = append([]ToolInvocation(nil), t.ToolLog...)
	if t.StartedAt != nil {
		started := *t.StartedAt
		c.StartedAt = &started
	}
	if t.CompletedAt != nil {
		completed := *t.CompletedAt
		c.CompletedAt = &completed
	}
	return &c
}

// ToolInvocation records a single tool call made during a task.
type ToolInvocation struct {
	// Seq is the 1-based position of this invocation within the task.
	Seq int `json:"seq"`
	// Tool is the name of the invoked tool.
	Tool string `json:"tool"`
	// Args is the JSON-encoded argument mapping.
	Args string `json:"args"`
	// Success indicates whether the tool reported success.
	Success bool `json:"success"`
	// Output is the (possibly truncated) tool output.
	Output string `json:"output,omitempty"`
	// Error is the tool error message, if any.
	Error string `json:"error,omitempty"`
	// Timestamp is when the invocation completed.
	Timestamp time.Time `json:"timestamp"`
}

// Subtask describes a decomposed piece of a parent task handed to a
// sub-agent. Its authorized paths must be a subset of the parent's.
type Subtask struct {
	// ID is the unique identifier for this subtask.
	ID string `json:"id"`
	// ParentID is the ID of the task that requested the decomposition.
	ParentID string `json:"parent_id"`
	// Description is the natural-language subtask.
	Description string `json:"description"`
	// AuthorizedPaths is the narrowed path set for the sub-agent.
	AuthorizedPaths []string `json:"authorized_paths"`
}
