// Package tool defines the capability surface exposed to the planner:
// the Tool interface, parameter schemas, and the Registry that dispatches
// planner-requested invocations. A tool receives its authority explicitly
// (a sandbox handle) and never reaches outside it.
package tool

import (
	"context"
	"encoding/json"
	"fmt"
)

// Param describes a single tool parameter.
type Param struct {
	// Name is the parameter key as it appears in the argument object.
	Name string `json:"name"`
	// Type is the JSON type: "string", "integer", "number", "boolean"
	// or "object".
	Type string `json:"type"`
	// Description tells the planner what the parameter means.
	Description string `json:"description"`
	// Required marks the parameter as mandatory.
	Required bool `json:"required"`
	// Enum restricts the accepted values when non-empty.
	Enum []string `json:"enum,omitempty"`
}

// Schema is the machine-readable description of a tool, handed to the
// planner so it can construct valid invocations.
type Schema struct {
	// Name is the unique tool identifier.
	Name string `json:"name"`
	// Description tells the planner when to use the tool.
	Description string `json:"description"`
	// Params are the accepted parameters.
	Params []Param `json:"params"`
}

// Result is the outcome of a tool execution. A failed execution is a
// normal result with Success false, not a Go error; Go errors are
// reserved for infrastructure faults.
type Result struct {
	// Success indicates the tool accomplished its operation.
	Success bool `json:"success"`
	// Output is the textual output fed back to the planner.
	Output string `json:"output,omitempty"`
	// Error describes the failure when Success is false.
	Error string `json:"error,omitempty"`
}

// Fail builds a failed result from a formatted message.
func Fail(format string, args ...any) Result {
	return Result{Success: false, Error: fmt.Sprintf(format, args...)}
}

// Tool is a capability the agent can exercise. Execute must honor ctx
// cancellation and must not panic; failures are reported in the Result.
type Tool interface {
	// Schema returns the tool's invocation schema.
	Schema() Schema
	// Execute runs the tool with JSON-encoded arguments.
	Execute(ctx context.Context, args json.RawMessage) Result
}

// ValidateArgs checks a JSON argument object against the schema: the
// object must decode, every required parameter must be present, and
// present parameters must carry the declared JSON type.
func ValidateArgs(schema Schema, args json.RawMessage) error {
	decoded := map[string]any{}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &decoded); err != nil {
			return fmt.Errorf("arguments are not a JSON object: %w", err)
		}
	}

	for _, p := range schema.Params {
		value, present := decoded[p.Name]
		if !present {
			if p.Required {
				return fmt.Errorf("missing required parameter %q", p.Name)
			}
			continue
		}
		if err := checkType(p, value); err != nil {
			return err
		}
	}
	return nil
}

func checkType(p Param, value any) error {
	switch p.Type {
	case "string":
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("parameter %q must be a string", p.Name)
		}
		if len(p.Enum) > 0 {
			for _, allowed := range p.Enum {
				if s == allowed {
					return nil
				}
			}
			return fmt.Errorf("parameter %q must be one of %v", p.Name, p.Enum)
		}
	case "integer", "number":
		// JSON numbers decode to float64.
		if _, ok := value.(float64); !ok {
			return fmt.Errorf("parameter %q must be a number", p.Name)
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("parameter %q must be a boolean", p.Name)
		}
	case "object":
		if _, ok := value.(map[string]any); !ok {
			return fmt.Errorf("parameter %q must be an object", p.Name)
		}
	}
	return nil
}

// Truncate caps s at max bytes, annotating the cut. Tools use it to keep
// planner-bound output within the context budget.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "\n... (output truncated)"
}
