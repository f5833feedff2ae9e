// Package tools defines the tools available to the agent.
package tools

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnknownTool is returned when a tool name does not resolve.
var ErrUnknownTool = errors.New("unknown tool")

// ErrDuplicateTool is returned when a tool name is registered twice.
var ErrDuplicateTool = errors.New("duplicate tool")

// Handler executes a tool call. The returned string is fed back to the
// model verbatim, so handlers format their output for model
// consumption rather than for humans.
type Handler func(ctx context.Context, args map[string]any) (string, error)

// Tool represents a callable tool. Parameters holds a JSON schema
// object describing the accepted arguments.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
	Handler     Handler        `json:"-"`
}

// ExecError wraps a handler failure with the tool that produced it.
type ExecError struct {
	Tool string
	Err  error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("tool %s: %v", e.Tool, e.Err)
}

func (e *ExecError) Unwrap() error { return e.Err }

// Registry holds the available tools. Registration happens once at
// startup; after that the registry is read-only and safe for
// concurrent use.
type Registry struct {
	names []string
	tools map[string]*Tool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]*Tool),
	}
}

// Register adds a tool. Names must be unique.
func (r *Registry) Register(t *Tool) error {
	if t.Name == "" {
		return errors.New("tool name is empty")
	}
	if _, exists := r.tools[t.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, t.Name)
	}
	r.names = append(r.names, t.Name)
	r.tools[t.Name] = t
	return nil
}

// MustRegister registers a tool and panics on error. Intended for
// startup wiring where a duplicate name is a programming mistake.
func (r *Registry) MustRegister(t *Tool) {
	if err := r.Register(t); err != nil {
		panic(err)
	}
}

// Resolve looks up a tool by name.
func (r *Registry) Resolve(name string) (*Tool, error) {
	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return t, nil
}

// List returns all tools in registration order.
func (r *Registry) List() []*Tool {
	out := make([]*Tool, 0, len(r.names))
	for _, name := range r.names {
		out = append(out, r.tools[name])
	}
	return out
}

// Specs returns the tool descriptors in the wire form the chat
// completions API expects, in registration order.
func (r *Registry) Specs() []map[string]any {
	out := make([]map[string]any, 0, len(r.names))
	for _, name := range r.names {
		t := r.tools[name]
		out = append(out, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.Parameters,
			},
		})
	}
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int { return len(r.names) }

// Execute runs a tool by name. Handler failures come back as an
// ExecError naming the tool; unknown names return ErrUnknownTool.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (string, error) {
	t, err := r.Resolve(name)
	if err != nil {
		return "", err
	}
	out, err := t.Handler(ctx, args)
	if err != nil {
		return "", &ExecError{Tool: name, Err: err}
	}
	return out, nil
}
