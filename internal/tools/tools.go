// Package tools implements C6: the fixed set of tools the agent
// orchestrator exposes to the model. Each tool's execute() returns a
// human-readable string formatted so internal/citation can re-extract
// `[path:line-line]` markers, and never throws across the boundary — a
// malformed-argument or execution failure becomes an `Error: ...` string
// result, per spec.md §4.6. Grounded on digitallysavvy-go-ai's
// pkg/provider/types/tool.go shape (name/description/schema/execute) and
// on the teacher's retrieval/document packages for the underlying
// lookups.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Tool is the contract the agent orchestrator calls through.
type Tool struct {
	Name        string
	Description string
	Schema      json.RawMessage
	Execute     func(ctx context.Context, repositoryID, argumentsJSON string) string

	compiled *jsonschema.Schema
}

// Catalog is the fixed set of tools available to a repository-scoped
// conversation.
type Catalog struct {
	tools map[string]*Tool
	order []string
}

// NewCatalog builds a Catalog from tools, compiling each tool's JSON
// schema up front so argument validation never fails lazily mid-request.
func NewCatalog(tools ...*Tool) (*Catalog, error) {
	c := &Catalog{tools: make(map[string]*Tool, len(tools))}
	compiler := jsonschema.NewCompiler()
	for _, t := range tools {
		if len(t.Schema) > 0 {
			res, err := jsonschema.UnmarshalJSON(bytes.NewReader(t.Schema))
			if err != nil {
				return nil, fmt.Errorf("tool %s: parse schema: %w", t.Name, err)
			}
			if err := compiler.AddResource(t.Name+".json", res); err != nil {
				return nil, fmt.Errorf("tool %s: add schema resource: %w", t.Name, err)
			}
			schema, err := compiler.Compile(t.Name + ".json")
			if err != nil {
				return nil, fmt.Errorf("tool %s: compile schema: %w", t.Name, err)
			}
			t.compiled = schema
		}
		c.tools[t.Name] = t
		c.order = append(c.order, t.Name)
	}
	return c, nil
}

// Get looks up a tool by name.
func (c *Catalog) Get(name string) (*Tool, bool) {
	t, ok := c.tools[name]
	return t, ok
}

// Names returns tool names in registration order.
func (c *Catalog) Names() []string {
	return append([]string(nil), c.order...)
}

// Run validates argumentsJSON against the tool's schema (when present)
// and executes it, converting any validation failure into the tool's
// Error: contract rather than returning a Go error.
func (t *Tool) Run(ctx context.Context, repositoryID, argumentsJSON string) string {
	if t.compiled != nil {
		var args any
		if argumentsJSON == "" {
			args = map[string]any{}
		} else if err := json.Unmarshal([]byte(argumentsJSON), &args); err != nil {
			return "Error: malformed arguments JSON: " + err.Error()
		}
		if err := t.compiled.Validate(args); err != nil {
			return "Error: arguments failed schema validation: " + err.Error()
		}
	}
	return t.Execute(ctx, repositoryID, argumentsJSON)
}
