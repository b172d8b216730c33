package tools

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sashabaranov/go-openai"
)

// ErrDuplicateTool is returned when a tool name is registered twice.
var ErrDuplicateTool = errors.New("tool already registered")

// Registry holds the callable tools keyed by exact name. Registration order is kept so
// tool definitions are presented to the model deterministically.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

// Register adds a tool.
func (r *Registry) Register(tool Tool) error {
	if tool.Name == "" {
		return errors.New("tool name is required")
	}
	if tool.Invoke == nil {
		return fmt.Errorf("tool %s has no invoke function", tool.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[tool.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, tool.Name)
	}
	r.tools[tool.Name] = tool
	r.order = append(r.order, tool.Name)
	return nil
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// List returns all registered tools in registration order.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ts := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		ts = append(ts, r.tools[name])
	}
	return ts
}

// IsAuthoritative reports whether name is a registered priority source.
func (r *Registry) IsAuthoritative(name string) bool {
	tool, ok := r.Get(name)
	return ok && tool.Authoritative
}

// Definitions returns the tool-binding declaration handed to the Responder.
func (r *Registry) Definitions() []openai.Tool {
	list := r.List()
	defs := make([]openai.Tool, 0, len(list))
	for _, t := range list {
		params := t.Parameters
		if len(params) == 0 {
			params = emptySchema
		}
		defs = append(defs, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		})
	}
	return defs
}
