// Package agent implements the per-task decide/act/observe state
// machine. One Loop owns one task's context store and sandbox for the
// duration of a run; everything the loop observes flows back into the
// context store, and everything fatal ends the run with a terminal
// status.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/openworkhq/openwork/internal/memory"
	"github.com/openworkhq/openwork/internal/planner"
	"github.com/openworkhq/openwork/internal/sandbox"
	"github.com/openworkhq/openwork/internal/tool"
	"github.com/openworkhq/openwork/pkg/models"
)

const (
	// DefaultMaxIterations caps planner round-trips per task.
	DefaultMaxIterations = 20
	// DefaultVerifyMaxRetries caps corrective rounds after a failed
	// verification before the output is accepted as-is.
	DefaultVerifyMaxRetries = 2
	// contextToolResultCap bounds the tool output recorded per entry.
	contextToolResultCap = 30000
)

// SubtaskResult is one child outcome returned by a Spawner, in
// submission order.
type SubtaskResult struct {
	// Description is the subtask as requested.
	Description string
	// Status is the child's terminal status.
	Status models.TaskStatus
	// Output is the child's final output when completed.
	Output string
	// Err is the child's error message when failed or cancelled.
	Err string
}

// Spawner runs a decomposition request as concurrent child loops and
// returns their outcomes in request order. A child's failure must not
// affect its siblings.
type Spawner interface {
	Run(ctx context.Context, parentID string, parent *sandbox.Sandbox, depth int, reqs []planner.SubtaskRequest) ([]SubtaskResult, error)
}

// Result is the terminal outcome of one loop run.
type Result struct {
	// Status is completed, failed or cancelled.
	Status models.TaskStatus
	// Output is the final output for completed runs.
	Output string
	// Err is the failure reason for failed runs.
	Err string
	// Iterations is how many planner round-trips were made.
	Iterations int
}

// Config assembles a Loop. Planner, Registry, Sandbox and Store are
// required; the rest default or stay disabled when nil.
type Config struct {
	// TaskID identifies the task the loop runs.
	TaskID string
	// Planner produces one decision per iteration.
	Planner planner.Planner
	// Verifier optionally checks proposed final output; nil disables
	// the verification pass.
	Verifier planner.Verifier
	// Registry holds the tools available to this task.
	Registry *tool.Registry
	// Sandbox is the task's authorization scope.
	Sandbox *sandbox.Sandbox
	// Store is the task's context store, seeded with the description.
	Store *memory.Store
	// Spawner handles decomposition requests; nil rejects them.
	Spawner Spawner
	// Depth is the current decomposition depth, 0 for top-level tasks.
	Depth int
	// MaxDepth bounds nested decomposition.
	MaxDepth int
	// MaxIterations caps planner round-trips. Zero means
	// DefaultMaxIterations.
	MaxIterations int
	// VerifyMaxRetries caps corrective verification rounds. Zero means
	// DefaultVerifyMaxRetries.
	VerifyMaxRetries int
	// Cancelled reports whether external cancellation was requested.
	// Checked at iteration boundaries only; nil means never.
	Cancelled func() bool
	// Emit publishes a progress event; nil discards them.
	Emit func(models.Event)
	// OnStatus mirrors live status transitions to the task owner.
	OnStatus func(models.TaskStatus)
	// OnToolCall records a completed tool invocation in the task log.
	OnToolCall func(models.ToolInvocation)
}

// Loop is the state machine for a single task.
type Loop struct {
	cfg       Config
	toolCalls int
}

// New creates a loop from the given configuration.
func New(cfg Config) *Loop {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.VerifyMaxRetries <= 0 {
		cfg.VerifyMaxRetries = DefaultVerifyMaxRetries
	}
	return &Loop{cfg: cfg}
}

// Run drives the loop to a terminal status. Recoverable faults (bad
// decisions, denied or failed tools) are folded into the context store
// and retried under the iteration cap; only cap exhaustion, explicit
// cancellation, a blocked report, or a dead provider end the run
// unfavorably.
func (l *Loop) Run(ctx context.Context) *Result {
	result := &Result{}
	l.setStatus(models.TaskStatusRunning)

	verifyRetries := 0

	for result.Iterations < l.cfg.MaxIterations {
		if l.isCancelled() {
			return l.terminal(result, models.TaskStatusCancelled, "", "cancelled")
		}
		result.Iterations++

		l.setStatus(models.TaskStatusThinking)
		l.emit(models.Event{Kind: models.EventThinking})

		decision, err := l.cfg.Planner.Decide(ctx, l.cfg.Store.Snapshot(), l.cfg.Registry.Schemas())
		if err != nil {
			if planner.IsDecisionError(err) {
				log.Printf("[agent] task %s iteration %d: %v", l.cfg.TaskID, result.Iterations, err)
				l.cfg.Store.AppendSystemNote(fmt.Sprintf("Your previous response was unusable: %v. Respond with exactly one tool call, or plain text when the task is complete.", err))
				continue
			}
			return l.terminal(result, models.TaskStatusFailed, "", fmt.Sprintf("planner: %v", err))
		}

		// Commentary accompanying a non-final decision is replayed as an
		// assistant turn on the next call.
		if decision.Notes != "" {
			l.cfg.Store.AppendPlanner(decision.Notes)
		}

		switch decision.Kind {
		case planner.DecisionInvoke:
			l.runTool(ctx, decision)

		case planner.DecisionFinish:
			ok, feedback := l.verify(ctx, decision.Output, verifyRetries)
			if !ok {
				verifyRetries++
				l.cfg.Store.AppendSystemNote(fmt.Sprintf("Verification failed: %s. Address this before finishing.", feedback))
				continue
			}
			return l.terminal(result, models.TaskStatusCompleted, decision.Output, "")

		case planner.DecisionDecompose:
			l.runSubtasks(ctx, decision.Subtasks)

		case planner.DecisionBlocked:
			return l.terminal(result, models.TaskStatusFailed, "", fmt.Sprintf("blocked: %s", decision.Reason))

		default:
			l.cfg.Store.AppendSystemNote(fmt.Sprintf("Unsupported decision kind %q; choose a tool call or finish.", decision.Kind))
		}
	}

	return l.terminal(result, models.TaskStatusFailed, "",
		fmt.Sprintf("iteration limit (%d) exceeded", l.cfg.MaxIterations))
}

// runTool dispatches one invocation and folds the outcome into the
// context store and the task's tool log. Failures are observations, not
// loop faults.
func (l *Loop) runTool(ctx context.Context, decision *planner.Decision) {
	l.setStatus(models.TaskStatusExecuting)
	l.emit(models.Event{Kind: models.EventExecuting, Tool: decision.Tool})

	res := l.cfg.Registry.Dispatch(ctx, decision.Tool, decision.Args)

	var observation string
	if res.Success {
		observation = "Output: " + res.Output
	} else {
		observation = "Error: " + res.Error
		if res.Output != "" {
			observation += "\nOutput: " + res.Output
		}
	}
	l.cfg.Store.AppendToolResult(decision.Tool, tool.Truncate(observation, contextToolResultCap))

	l.toolCalls++
	if l.cfg.OnToolCall != nil {
		l.cfg.OnToolCall(models.ToolInvocation{
			Seq:       l.toolCalls,
			Tool:      decision.Tool,
			Args:      string(argsForLog(decision.Args)),
			Success:   res.Success,
			Output:    tool.Truncate(res.Output, contextToolResultCap),
			Error:     res.Error,
			Timestamp: time.Now(),
		})
	}

	if l.cfg.Store.MaybeCompact(ctx) {
		l.emit(models.Event{Kind: models.EventCompacted})
	}
}

// runSubtasks hands a decomposition to the spawner and appends a
// per-child summary so the planner sees partial failure explicitly.
func (l *Loop) runSubtasks(ctx context.Context, reqs []planner.SubtaskRequest) {
	if l.cfg.Spawner == nil {
		l.cfg.Store.AppendSystemNote("Decomposition is not available here; continue with direct tool calls.")
		return
	}
	if l.cfg.MaxDepth > 0 && l.cfg.Depth >= l.cfg.MaxDepth {
		l.cfg.Store.AppendSystemNote(fmt.Sprintf("Decomposition depth limit (%d) reached; continue with direct tool calls.", l.cfg.MaxDepth))
		return
	}

	results, err := l.cfg.Spawner.Run(ctx, l.cfg.TaskID, l.cfg.Sandbox, l.cfg.Depth, reqs)
	if err != nil {
		l.cfg.Store.AppendSystemNote(fmt.Sprintf("Decomposition rejected: %v", err))
		return
	}

	var b strings.Builder
	b.WriteString("Subtask results:\n")
	for i, r := range results {
		switch r.Status {
		case models.TaskStatusCompleted:
			fmt.Fprintf(&b, "%d. Completed: %s\n", i+1, r.Output)
		case models.TaskStatusCancelled:
			fmt.Fprintf(&b, "%d. Cancelled\n", i+1)
		default:
			fmt.Fprintf(&b, "%d. Failed: %s\n", i+1, r.Err)
		}
	}
	l.cfg.Store.AppendSystemNote(strings.TrimRight(b.String(), "\n"))

	if l.cfg.Store.MaybeCompact(ctx) {
		l.emit(models.Event{Kind: models.EventCompacted})
	}
}

// verify runs the optional verification pass on a proposed final
// output. A verifier transport fault accepts the output rather than
// failing a task whose work is already done.
func (l *Loop) verify(ctx context.Context, output string, retries int) (bool, string) {
	if l.cfg.Verifier == nil {
		return true, ""
	}
	if retries >= l.cfg.VerifyMaxRetries {
		log.Printf("[agent] task %s: verification retries exhausted, accepting output", l.cfg.TaskID)
		return true, ""
	}

	ok, feedback, err := l.cfg.Verifier.Verify(ctx, l.cfg.Store.Snapshot(), output)
	if err != nil {
		log.Printf("[agent] task %s: verification unavailable, accepting output: %v", l.cfg.TaskID, err)
		return true, ""
	}
	if !ok {
		log.Printf("[agent] task %s: verification failed: %s", l.cfg.TaskID, feedback)
	}
	return ok, feedback
}

// terminal records the final status and returns the result. Terminal
// events are emitted by the task's owner, not here, so cancellation
// races cannot double-emit.
func (l *Loop) terminal(result *Result, status models.TaskStatus, output, errMsg string) *Result {
	result.Status = status
	result.Output = output
	result.Err = errMsg
	l.setStatus(status)
	return result
}

func (l *Loop) isCancelled() bool {
	return l.cfg.Cancelled != nil && l.cfg.Cancelled()
}

func (l *Loop) setStatus(status models.TaskStatus) {
	if l.cfg.OnStatus != nil {
		l.cfg.OnStatus(status)
	}
}

func (l *Loop) emit(e models.Event) {
	if l.cfg.Emit == nil {
		return
	}
	e.TaskID = l.cfg.TaskID
	e.Timestamp = time.Now()
	l.cfg.Emit(e)
}

// argsForLog normalizes possibly-empty raw arguments for the tool log.
func argsForLog(args json.RawMessage) json.RawMessage {
	if len(args) == 0 {
		return json.RawMessage("{}")
	}
	return args
}
