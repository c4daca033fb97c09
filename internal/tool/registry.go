package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
)

// Registry holds the tools available to one agent and dispatches
// planner-requested invocations. Dispatch never panics: an unknown tool
// or invalid arguments come back as a failed Result the planner can
// observe and correct.
type Registry struct {
	mu    sync.RWMutex
	order []string
	tools map[string]Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool under its schema name. Registering a duplicate
// name is a programming error and is rejected.
func (r *Registry) Register(t Tool) error {
	name := t.Schema().Name
	if name == "" {
		return fmt.Errorf("tool has empty schema name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %q already registered", name)
	}
	r.tools[name] = t
	r.order = append(r.order, name)
	return nil
}

// Get returns the named tool, if registered.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Schemas returns all tool schemas in registration order, the order they
// are advertised to the planner.
func (r *Registry) Schemas() []Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	schemas := make([]Schema, 0, len(r.order))
	for _, name := range r.order {
		schemas = append(schemas, r.tools[name].Schema())
	}
	return schemas
}

// Dispatch validates the arguments against the tool's schema and runs
// it. Unknown tools and schema violations yield a failed Result; only a
// ctx already cancelled before execution is surfaced as an error.
func (r *Registry) Dispatch(ctx context.Context, name string, args json.RawMessage) Result {
	t, ok := r.Get(name)
	if !ok {
		log.Printf("[tool] dispatch of unknown tool %q", name)
		return Fail("unknown tool: %s", name)
	}

	if err := ValidateArgs(t.Schema(), args); err != nil {
		return Fail("invalid arguments for %s: %v", name, err)
	}

	if err := ctx.Err(); err != nil {
		return Fail("tool %s not executed: %v", name, err)
	}

	return t.Execute(ctx, args)
}
