package orchestrator

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openworkhq/openwork/internal/agent"
	"github.com/openworkhq/openwork/internal/memory"
	"github.com/openworkhq/openwork/internal/planner"
	"github.com/openworkhq/openwork/internal/sandbox"
	"github.com/openworkhq/openwork/internal/state"
	"github.com/openworkhq/openwork/internal/subagent"
	"github.com/openworkhq/openwork/pkg/models"
)

const (
	// DefaultWorkers is the number of concurrently running agent loops.
	DefaultWorkers = 3
	// DefaultQueueSize bounds the submission backlog.
	DefaultQueueSize = 100
)

// Config assembles an Orchestrator.
type Config struct {
	// Planner backs every agent loop.
	Planner planner.Planner
	// Verifier optionally checks final outputs; nil disables the pass.
	Verifier planner.Verifier
	// NewRegistry builds the tool set for each task's sandbox.
	NewRegistry subagent.RegistryFactory
	// Store persists task records; nil skips persistence.
	Store state.Store
	// Signals optionally wires out-of-process cancellation; nil
	// disables it.
	Signals *SignalWatcher
	// Workers bounds concurrent agent loops. Zero means DefaultWorkers.
	Workers int
	// QueueSize bounds queued submissions. Zero means DefaultQueueSize.
	QueueSize int
	// MaxIterations caps planner round-trips per task.
	MaxIterations int
	// VerifyMaxRetries caps corrective verification rounds.
	VerifyMaxRetries int
	// FanOut bounds concurrent sub-agents.
	FanOut int64
	// MaxDepth bounds nested decomposition.
	MaxDepth int
	// ChildIterations caps sub-agent planner round-trips.
	ChildIterations int
	// ContextBudget sets the context store budget in bytes; zero keeps
	// the store default.
	ContextBudget int
}

// taskEntry pairs the owned task record with its cancellation flag.
type taskEntry struct {
	mu        sync.Mutex
	task      *models.Task
	cancelled bool
}

// Orchestrator is the top-level task registry: it owns every Task
// record, runs the bounded worker pool, fans out cancellation, and
// publishes each task's event stream.
type Orchestrator struct {
	cfg     Config
	manager *subagent.Manager
	bus     *eventBus

	mu    sync.RWMutex
	tasks map[string]*taskEntry

	queue  chan string
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an orchestrator and starts its worker pool.
func New(cfg Config) *Orchestrator {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}

	ctx, cancel := context.WithCancel(context.Background())

	o := &Orchestrator{
		cfg: cfg,
		manager: subagent.NewManager(subagent.Config{
			Planner:         cfg.Planner,
			NewRegistry:     cfg.NewRegistry,
			FanOut:          cfg.FanOut,
			MaxDepth:        cfg.MaxDepth,
			ChildIterations: cfg.ChildIterations,
			ContextBudget:   cfg.ContextBudget,
		}),
		bus:    newEventBus(),
		tasks:  make(map[string]*taskEntry),
		queue:  make(chan string, cfg.QueueSize),
		ctx:    ctx,
		cancel: cancel,
	}

	if cfg.Signals != nil {
		cfg.Signals.SetCancelHandler(func(taskID string) {
			if err := o.Cancel(taskID); err != nil {
				log.Printf("[orchestrator] signal cancel for unknown task %s", taskID)
			}
		})
	}

	for i := 0; i < cfg.Workers; i++ {
		o.wg.Add(1)
		go o.worker()
	}

	return o
}

// Submit creates a task in pending state and queues it for a worker.
// Excess submissions wait in the queue rather than being rejected.
func (o *Orchestrator) Submit(description string, authorizedPaths []string) (string, error) {
	if o.ctx.Err() != nil {
		return "", fmt.Errorf("orchestrator stopped")
	}
	if description == "" {
		return "", fmt.Errorf("task description is empty")
	}
	// Validate the path set up front so a bad submission fails at the
	// API boundary, not inside a worker.
	if _, err := sandbox.New(authorizedPaths); err != nil {
		return "", err
	}

	task := &models.Task{
		ID:              uuid.NewString(),
		Description:     description,
		AuthorizedPaths: append([]string(nil), authorizedPaths...),
		Status:          models.TaskStatusPending,
		CreatedAt:       time.Now(),
	}

	o.mu.Lock()
	o.tasks[task.ID] = &taskEntry{task: task}
	o.mu.Unlock()

	o.persist(task)
	o.bus.Publish(models.Event{
		TaskID:    task.ID,
		Kind:      models.EventQueued,
		Timestamp: time.Now(),
	})

	select {
	case o.queue <- task.ID:
	case <-o.ctx.Done():
		return "", fmt.Errorf("orchestrator stopped")
	}

	log.Printf("[orchestrator] task %s submitted (%d queued)", task.ID, len(o.queue))
	return task.ID, nil
}

// Cancel requests cooperative cancellation. The flag is observed at the
// task's next iteration boundary; an in-flight tool execution finishes
// first.
func (o *Orchestrator) Cancel(taskID string) error {
	entry, ok := o.entry(taskID)
	if !ok {
		return fmt.Errorf("task %s not found", taskID)
	}
	entry.mu.Lock()
	entry.cancelled = true
	entry.mu.Unlock()
	log.Printf("[orchestrator] cancellation requested for task %s", taskID)
	return nil
}

// Get returns a point-in-time snapshot of the task for polling
// collaborators.
func (o *Orchestrator) Get(taskID string) (*models.Task, error) {
	entry, ok := o.entry(taskID)
	if !ok {
		return nil, fmt.Errorf("task %s not found", taskID)
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.task.Clone(), nil
}

// Subscribe returns the task's ordered event stream. The stream always
// ends with exactly one terminal event.
func (o *Orchestrator) Subscribe(taskID string) (<-chan models.Event, error) {
	if _, ok := o.entry(taskID); !ok {
		return nil, fmt.Errorf("task %s not found", taskID)
	}
	return o.bus.Subscribe(taskID), nil
}

// DroppedEventCount returns the number of events dropped for slow
// observers.
func (o *Orchestrator) DroppedEventCount() uint64 {
	return o.bus.DroppedCount()
}

// Stop shuts down the worker pool and closes all event streams. Queued
// tasks that never ran stay pending in the store. The queue channel is
// never closed, so a racing Submit can at worst enqueue a task no
// worker will pick up.
func (o *Orchestrator) Stop() {
	o.cancel()
	o.wg.Wait()
	o.bus.Close()
}

func (o *Orchestrator) entry(taskID string) (*taskEntry, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	entry, ok := o.tasks[taskID]
	return entry, ok
}

// worker consumes the queue, one agent loop at a time.
func (o *Orchestrator) worker() {
	defer o.wg.Done()
	for {
		select {
		case <-o.ctx.Done():
			return
		case taskID := <-o.queue:
			if o.ctx.Err() != nil {
				return
			}
			o.runTask(taskID)
		}
	}
}

// runTask drives one task to a terminal state. The single worker
// goroutine owns all mutation of the task record and emits the terminal
// event exactly once.
func (o *Orchestrator) runTask(taskID string) {
	entry, ok := o.entry(taskID)
	if !ok {
		return
	}

	if o.isCancelled(entry) {
		o.finish(entry, &agent.Result{Status: models.TaskStatusCancelled, Err: "cancelled"})
		return
	}

	entry.mu.Lock()
	task := entry.task
	started := time.Now()
	task.StartedAt = &started
	paths := append([]string(nil), task.AuthorizedPaths...)
	entry.mu.Unlock()

	sb, err := sandbox.New(paths)
	if err != nil {
		o.finish(entry, &agent.Result{Status: models.TaskStatusFailed, Err: fmt.Sprintf("sandbox: %v", err)})
		return
	}
	registry, err := o.cfg.NewRegistry(sb)
	if err != nil {
		o.finish(entry, &agent.Result{Status: models.TaskStatusFailed, Err: fmt.Sprintf("tool registry: %v", err)})
		return
	}

	var storeOpts []memory.Option
	if o.cfg.ContextBudget > 0 {
		storeOpts = append(storeOpts, memory.WithBudget(o.cfg.ContextBudget))
	}
	if sum, ok := o.cfg.Planner.(memory.Summarizer); ok {
		storeOpts = append(storeOpts, memory.WithSummarizer(sum))
	}

	loop := agent.New(agent.Config{
		TaskID:           taskID,
		Planner:          o.cfg.Planner,
		Verifier:         o.cfg.Verifier,
		Registry:         registry,
		Sandbox:          sb,
		Store:            memory.NewStore(task.Description, storeOpts...),
		Spawner:          o.manager,
		Depth:            0,
		MaxDepth:         o.manager.MaxDepth(),
		MaxIterations:    o.cfg.MaxIterations,
		VerifyMaxRetries: o.cfg.VerifyMaxRetries,
		Cancelled:        func() bool { return o.isCancelled(entry) },
		Emit:             o.bus.Publish,
		OnStatus: func(status models.TaskStatus) {
			entry.mu.Lock()
			entry.task.Status = status
			entry.mu.Unlock()
		},
		OnToolCall: func(inv models.ToolInvocation) {
			entry.mu.Lock()
			entry.task.ToolLog = append(entry.task.ToolLog, inv)
			entry.mu.Unlock()
		},
	})

	log.Printf("[orchestrator] task %s starting", taskID)
	result := loop.Run(o.ctx)
	o.finish(entry, result)
}

// isCancelled folds the per-task flag, the signal watcher, and
// orchestrator shutdown into one cooperative check.
func (o *Orchestrator) isCancelled(entry *taskEntry) bool {
	if o.ctx.Err() != nil {
		return true
	}
	if o.cfg.Signals != nil && o.cfg.Signals.ShouldStop() {
		return true
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.cancelled
}

// finish records the terminal state, persists it, and publishes the
// task's single terminal event.
func (o *Orchestrator) finish(entry *taskEntry, result *agent.Result) {
	entry.mu.Lock()
	task := entry.task
	task.Status = result.Status
	task.Output = result.Output
	task.Error = result.Err
	completed := time.Now()
	task.CompletedAt = &completed
	snapshot := task.Clone()
	entry.mu.Unlock()

	o.persist(snapshot)

	event := models.Event{
		TaskID:    snapshot.ID,
		Timestamp: time.Now(),
	}
	if result.Status == models.TaskStatusCompleted {
		event.Kind = models.EventFinished
		event.Payload = result.Output
	} else {
		event.Kind = models.EventError
		event.Payload = result.Err
	}
	o.bus.Publish(event)

	log.Printf("[orchestrator] task %s finished %s after %d iterations", snapshot.ID, result.Status, result.Iterations)
}

func (o *Orchestrator) persist(task *models.Task) {
	if o.cfg.Store == nil {
		return
	}
	if err := o.cfg.Store.SaveTask(task); err != nil {
		log.Printf("[orchestrator] persist task %s: %v", task.ID, err)
	}
}
