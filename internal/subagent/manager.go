// Package subagent runs decomposed subtasks as concurrent child agent
// loops. Each child gets an isolated context store seeded only with its
// subtask description and a sandbox narrowed to a subset of the
// parent's authorized paths.
package subagent

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/openworkhq/openwork/internal/agent"
	"github.com/openworkhq/openwork/internal/memory"
	"github.com/openworkhq/openwork/internal/planner"
	"github.com/openworkhq/openwork/internal/sandbox"
	"github.com/openworkhq/openwork/internal/tool"
	"github.com/openworkhq/openwork/pkg/models"
)

const (
	// DefaultFanOut bounds concurrently running children per manager.
	DefaultFanOut = 5
	// DefaultMaxDepth bounds nested decomposition.
	DefaultMaxDepth = 2
	// DefaultChildIterations caps each child's planner round-trips.
	DefaultChildIterations = 10
	// MaxSubtasks bounds one decomposition request.
	MaxSubtasks = 10
	// childOutputCap bounds a child's output in the parent summary.
	childOutputCap = 500
)

// RegistryFactory builds a tool registry bound to a child's narrowed
// sandbox.
type RegistryFactory func(sb *sandbox.Sandbox) (*tool.Registry, error)

// Config assembles a Manager.
type Config struct {
	// Planner backs the child loops.
	Planner planner.Planner
	// NewRegistry builds each child's tool set against its sandbox.
	NewRegistry RegistryFactory
	// FanOut bounds concurrent children. Zero means DefaultFanOut.
	FanOut int64
	// MaxDepth bounds nested decomposition. Zero means DefaultMaxDepth.
	MaxDepth int
	// ChildIterations caps each child's planner round-trips. Zero means
	// DefaultChildIterations.
	ChildIterations int
	// ContextBudget overrides the children's context store budget in
	// bytes; zero keeps the store default.
	ContextBudget int
}

// Manager implements agent.Spawner. One manager is shared by a task
// tree; the fan-out semaphore bounds total concurrent children.
type Manager struct {
	cfg Config
	sem *semaphore.Weighted
}

// NewManager creates a manager from the given configuration.
func NewManager(cfg Config) *Manager {
	if cfg.FanOut <= 0 {
		cfg.FanOut = DefaultFanOut
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultMaxDepth
	}
	if cfg.ChildIterations <= 0 {
		cfg.ChildIterations = DefaultChildIterations
	}
	return &Manager{
		cfg: cfg,
		sem: semaphore.NewWeighted(cfg.FanOut),
	}
}

// MaxDepth returns the configured decomposition depth bound.
func (m *Manager) MaxDepth() int {
	return m.cfg.MaxDepth
}

// Run validates the decomposition request, runs every subtask as a
// concurrent child loop, and returns the outcomes in request order
// regardless of completion order. A child's failure never aborts its
// siblings. The whole request is rejected up front when any subtask
// asks for paths outside the parent's authorized set.
func (m *Manager) Run(ctx context.Context, parentID string, parent *sandbox.Sandbox, depth int, reqs []planner.SubtaskRequest) ([]agent.SubtaskResult, error) {
	if len(reqs) == 0 {
		return nil, fmt.Errorf("no subtasks provided")
	}
	if len(reqs) > MaxSubtasks {
		return nil, fmt.Errorf("maximum %d subtasks allowed, got %d", MaxSubtasks, len(reqs))
	}
	if depth >= m.cfg.MaxDepth {
		return nil, fmt.Errorf("decomposition depth limit (%d) reached", m.cfg.MaxDepth)
	}

	// Narrow all sandboxes before spawning anything: a path outside the
	// parent's scope rejects the whole request with no side effects.
	narrowed := make([]*sandbox.Sandbox, len(reqs))
	for i, req := range reqs {
		sb, err := parent.Narrow(req.Paths)
		if err != nil {
			return nil, fmt.Errorf("subtask %d: %w", i+1, err)
		}
		narrowed[i] = sb
	}

	log.Printf("[subagent] task %s spawning %d subtasks at depth %d", parentID, len(reqs), depth+1)

	results := make([]agent.SubtaskResult, len(reqs))
	var wg sync.WaitGroup
	for i, req := range reqs {
		wg.Add(1)
		go func(i int, req planner.SubtaskRequest, sb *sandbox.Sandbox) {
			defer wg.Done()
			results[i] = m.runChild(ctx, parentID, req, sb, depth+1)
		}(i, req, narrowed[i])
	}
	wg.Wait()

	return results, nil
}

// runChild executes one subtask under the fan-out semaphore.
func (m *Manager) runChild(ctx context.Context, parentID string, req planner.SubtaskRequest, sb *sandbox.Sandbox, depth int) agent.SubtaskResult {
	out := agent.SubtaskResult{Description: req.Description}

	if err := m.sem.Acquire(ctx, 1); err != nil {
		out.Status = models.TaskStatusCancelled
		out.Err = err.Error()
		return out
	}
	defer m.sem.Release(1)

	registry, err := m.cfg.NewRegistry(sb)
	if err != nil {
		out.Status = models.TaskStatusFailed
		out.Err = fmt.Sprintf("build tool registry: %v", err)
		return out
	}

	var storeOpts []memory.Option
	if m.cfg.ContextBudget > 0 {
		storeOpts = append(storeOpts, memory.WithBudget(m.cfg.ContextBudget))
	}

	childID := uuid.NewString()
	loop := agent.New(agent.Config{
		TaskID:        childID,
		Planner:       m.cfg.Planner,
		Registry:      registry,
		Sandbox:       sb,
		Store:         memory.NewStore(req.Description, storeOpts...),
		Spawner:       m,
		Depth:         depth,
		MaxDepth:      m.cfg.MaxDepth,
		MaxIterations: m.cfg.ChildIterations,
	})

	res := loop.Run(ctx)

	out.Status = res.Status
	out.Err = res.Err
	out.Output = res.Output
	if len(out.Output) > childOutputCap {
		out.Output = out.Output[:childOutputCap] + "..."
	}

	log.Printf("[subagent] child %s of %s finished %s after %d iterations", childID, parentID, res.Status, res.Iterations)
	return out
}
