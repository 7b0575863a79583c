// Package tools holds the tool catalogue offered to the language model and the
// dispatcher that executes a single named tool call against it.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
)

// Handler executes a tool with validated arguments and returns a JSON-encodable output.
type Handler func(ctx context.Context, args Arguments) (any, error)

// Definition is the public description of a tool, as served by GET /tools.
type Definition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type tool struct {
	def     Definition
	schema  *jsonschema.Resolved
	handler Handler
}

// Registry maps tool names to definitions and handlers. It is filled at startup and
// read-only afterwards.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*tool
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*tool)}
}

// Register adds a tool. The parameter schema is compiled once here.
func (r *Registry) Register(def Definition, handler Handler) error {
	if def.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if handler == nil {
		return fmt.Errorf("tool %s: handler is required", def.Name)
	}
	if def.Parameters == nil {
		def.Parameters = map[string]any{"type": "object", "properties": map[string]any{}}
	}

	schema, err := compileSchema(def.Parameters)
	if err != nil {
		return fmt.Errorf("tool %s: invalid parameter schema: %w", def.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[def.Name]; exists {
		return fmt.Errorf("tool %s already registered", def.Name)
	}
	r.tools[def.Name] = &tool{def: def, schema: schema, handler: handler}
	r.order = append(r.order, def.Name)
	return nil
}

// Definitions returns every tool in registration order.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].def)
	}
	return out
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

func (r *Registry) lookup(name string) (*tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

func compileSchema(params map[string]any) (*jsonschema.Resolved, error) {
	data, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	var s jsonschema.Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return s.Resolve(nil)
}
