package tool

import (
	"errors"
	"fmt"

	"github.com/hupe1980/agentloop/model"
)

// Registry errors.
var (
	// ErrDuplicateTool is returned when registering a name that already exists.
	ErrDuplicateTool = errors.New("duplicate tool name")
	// ErrToolNotFound is returned when looking up an unregistered name.
	ErrToolNotFound = errors.New("tool not found")
)

// Registry is a closed mapping of unique tool names to tools. Duplicate names
// are rejected at registration, not at late lookup, and Definitions preserves
// registration order so the model always sees a deterministic tool listing.
//
// A Registry is built once during agent construction and treated as read-only
// afterwards; it is not safe to register tools while a run is in flight.
type Registry struct {
	tools map[string]Tool
	order []string
}

// NewRegistry constructs a registry from the given tools, failing on the
// first duplicate name.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a tool, rejecting duplicate names.
func (r *Registry) Register(t Tool) error {
	name := t.Name()
	if name == "" {
		return errors.New("tool name must not be empty")
	}
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, name)
	}
	r.tools[name] = t
	r.order = append(r.order, name)
	return nil
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (Tool, error) {
	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return t, nil
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Len returns the number of registered tools.
func (r *Registry) Len() int { return len(r.order) }

// Definitions returns the wire-level schema objects exposed to the model, in
// registration order.
func (r *Registry) Definitions() []model.ToolDefinition {
	defs := make([]model.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		defs = append(defs, model.ToolDefinition{
			Type: "function",
			Function: model.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return defs
}
