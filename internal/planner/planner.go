// Package planner defines the decision capability the agent loop depends
// on and its Anthropic-backed implementation. The planner is pluggable:
// any backend that can map a context snapshot plus tool schemas to one
// structured Decision satisfies the contract.
package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/openworkhq/openwork/internal/memory"
	"github.com/openworkhq/openwork/internal/tool"
)

// DecisionKind discriminates the planner's possible decisions.
type DecisionKind string

const (
	// DecisionInvoke requests one tool invocation.
	DecisionInvoke DecisionKind = "invoke"
	// DecisionFinish declares the task complete with final output.
	DecisionFinish DecisionKind = "finish"
	// DecisionDecompose requests fan-out into subtasks.
	DecisionDecompose DecisionKind = "decompose"
	// DecisionBlocked reports inability to proceed.
	DecisionBlocked DecisionKind = "blocked"
)

// SubtaskRequest is one piece of a requested decomposition.
type SubtaskRequest struct {
	// Description is the natural-language subtask.
	Description string `json:"description"`
	// Paths optionally narrows the authorized paths; empty inherits the
	// parent's full scope.
	Paths []string `json:"paths,omitempty"`
}

// Decision is the planner's structured answer for one iteration.
type Decision struct {
	// Kind discriminates the union.
	Kind DecisionKind
	// Tool and Args are set for DecisionInvoke.
	Tool string
	Args json.RawMessage
	// Output is the final output for DecisionFinish.
	Output string
	// Subtasks are set for DecisionDecompose.
	Subtasks []SubtaskRequest
	// Reason is set for DecisionBlocked.
	Reason string
	// Notes is text the planner produced alongside an invoke or
	// decompose decision. The loop records it so the next call replays
	// it as an assistant turn.
	Notes string
}

// Planner maps a context snapshot and the available tool schemas to one
// Decision. Implementations must be safe for sequential reuse across
// iterations of a single loop.
type Planner interface {
	Decide(ctx context.Context, entries []memory.Entry, schemas []tool.Schema) (*Decision, error)
}

// DecisionError marks a malformed or unusable planner response. It is
// recoverable: the loop feeds it back as context and retries under the
// iteration cap.
type DecisionError struct {
	// Detail describes what was wrong with the response.
	Detail string
}

// Error implements the error interface.
func (e *DecisionError) Error() string {
	return fmt.Sprintf("unusable planner decision: %s", e.Detail)
}

// IsDecisionError reports whether err is a recoverable planner decision
// fault.
func IsDecisionError(err error) bool {
	var de *DecisionError
	return errors.As(err, &de)
}

// ProviderUnavailableError marks a model backend that stayed unreachable
// after retries. It is task-fatal.
type ProviderUnavailableError struct {
	// Err is the last transport error observed.
	Err error
}

// Error implements the error interface.
func (e *ProviderUnavailableError) Error() string {
	return fmt.Sprintf("model provider unavailable: %v", e.Err)
}

// Unwrap exposes the underlying transport error.
func (e *ProviderUnavailableError) Unwrap() error {
	return e.Err
}

// IsProviderUnavailable reports whether err is a fatal provider fault.
func IsProviderUnavailable(err error) bool {
	var pe *ProviderUnavailableError
	return errors.As(err, &pe)
}
