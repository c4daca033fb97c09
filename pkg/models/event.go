package models

import "time"

// EventKind identifies the type of a task progress event.
type EventKind string

const (
	// EventQueued signals the task was accepted and is waiting for a worker.
	EventQueued EventKind = "queued"
	// EventThinking signals the loop is waiting on a planner decision.
	EventThinking EventKind = "thinking"
	// EventExecuting signals a tool invocation is starting.
	EventExecuting EventKind = "executing"
	// EventCompacted signals the context store was compacted.
	EventCompacted EventKind = "compacted"
	// EventFinished signals successful terminal completion.
	EventFinished EventKind = "finished"
	// EventError signals terminal failure or cancellation.
	EventError EventKind = "error"
)

// Terminal reports whether the kind ends a task's event stream.
func (k EventKind) Terminal() bool {
	return k == EventFinished || k == EventError
}

// Event is one entry in a task's ordered progress stream.
type Event struct {
	// TaskID identifies the task the event belongs to.
	TaskID string `json:"task_id"`
	// Kind is the event type.
	Kind EventKind `json:"kind"`
	// Tool names the tool for EventExecuting.
	Tool string `json:"tool,omitempty"`
	// Payload carries kind-specific detail: final output for
	// EventFinished, the error for EventError.
	Payload string `json:"payload,omitempty"`
	// Timestamp is when the event was emitted.
	Timestamp time.Time `json:"timestamp"`
}
