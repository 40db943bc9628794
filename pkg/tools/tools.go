// Package tools holds the function-tool registry the session advertises
// to the LLM and dispatches calls against. Grounded on
// services/tools/tools.go's Register/Lookup/List/Remove registry shape;
// unlike that teacher package this one does not depend on
// github.com/chriscow/minds for schema types (see DESIGN.md) — parameter
// schemas are plain JSON Schema held as map[string]any and validated with
// encoding/json.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Result is the explicit {ok,value}|{err,kind,message} outcome of a tool
// invocation, per spec.md §9's "exception-for-control-flow" design note.
type Result struct {
	OK      bool   `json:"ok"`
	Value   any    `json:"value,omitempty"`
	ErrKind string `json:"error_kind,omitempty"`
	Message string `json:"message,omitempty"`
}

// Handler executes a tool call. params is the raw JSON arguments object
// the LLM produced; it has already passed schema validation.
type Handler func(ctx context.Context, params json.RawMessage) (Result, error)

// Tool is a single function tool: its LLM-facing declaration plus the
// handler that runs when the LLM calls it.
type Tool struct {
	Name        string
	Description string
	// Parameters is a JSON Schema object describing the call's arguments.
	Parameters map[string]any
	Handler    Handler
}

// Definition is the subset of Tool the LLM adapter serializes into the
// provider's tool-schema format.
type Definition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Registry holds the tools available to a session, keyed by name.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds or replaces a tool.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name] = t
}

// Lookup returns the named tool, if registered.
func (r *Registry) Lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Remove deletes a tool from the registry.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Names returns the registered tool names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}

// Definitions serializes the registry into the LLM-facing tool schema
// list, in no particular order (the LLM adapter does not rely on order).
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]Definition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, Definition{Name: t.Name, Description: t.Description, Parameters: t.Parameters})
	}
	return defs
}

// Dispatch validates params against the tool's schema and invokes its
// handler. It never panics: handler panics are recovered and surfaced as
// an error Result, matching spec.md §8 ("the tool dispatcher ... never
// panics").
func (r *Registry) Dispatch(ctx context.Context, name string, rawArgs string) (result Result, err error) {
	t, ok := r.Lookup(name)
	if !ok {
		return Result{OK: false, ErrKind: "unknown_tool", Message: fmt.Sprintf("unknown tool %q", name)}, nil
	}

	var args json.RawMessage
	if rawArgs == "" {
		args = json.RawMessage("{}")
	} else {
		args = json.RawMessage(rawArgs)
	}

	if err := validateAgainstSchema(args, t.Parameters); err != nil {
		return Result{OK: false, ErrKind: "invalid_params", Message: err.Error()}, nil
	}

	defer func() {
		if p := recover(); p != nil {
			result = Result{OK: false, ErrKind: "panic", Message: fmt.Sprintf("tool %q panicked: %v", name, p)}
			err = nil
		}
	}()

	return t.Handler(ctx, args)
}

// validateAgainstSchema checks args is valid JSON and, when the schema
// declares required properties, that each is present. This is a
// deliberately narrow JSON-Schema subset (object/required/properties)
// sufficient for the voice-agent tool set; it is not a general-purpose
// validator.
func validateAgainstSchema(args json.RawMessage, schema map[string]any) error {
	var decoded map[string]any
	if err := json.Unmarshal(args, &decoded); err != nil {
		return fmt.Errorf("arguments are not a JSON object: %w", err)
	}

	if schema == nil {
		return nil
	}

	required, _ := schema["required"].([]any)
	for _, r := range required {
		key, ok := r.(string)
		if !ok {
			continue
		}
		if _, present := decoded[key]; !present {
			return fmt.Errorf("missing required parameter %q", key)
		}
	}
	return nil
}
