package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/hupe1980/teammesh/code"
	"github.com/hupe1980/teammesh/core"
	"github.com/hupe1980/teammesh/internal/util"
)

// ParamSpec declares one parameter of a custom tool.
type ParamSpec struct {
	Name        string `json:"name" yaml:"name"`
	Type        string `json:"type" yaml:"type"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Required    bool   `json:"required,omitempty" yaml:"required,omitempty"`
}

// CustomToolDefinition is a user-defined tool stored outside the agent
// configuration and referenced as "custom:<id>".
type CustomToolDefinition struct {
	ID                      string      `json:"id" yaml:"id"`
	Name                    string      `json:"name" yaml:"name"`
	Description             string      `json:"description" yaml:"description"`
	Params                  []ParamSpec `json:"params,omitempty" yaml:"params,omitempty"`
	RequiredCredentialNames []string    `json:"requiredCredentialNames,omitempty" yaml:"required_credentials,omitempty"`
	// Script is an expr-lang expression. It sees args, credentials and user.
	Script string `json:"script" yaml:"script"`
}

// ToolName returns the function name exposed to models.
func (d *CustomToolDefinition) ToolName() string {
	n := d.Name
	if n == "" {
		n = d.ID
	}
	return sanitizeName(n)
}

// CustomRegistry resolves custom tool definitions by id.
type CustomRegistry interface {
	GetCustomTool(ctx context.Context, id string) (*CustomToolDefinition, bool, error)
}

// InMemoryRegistry is a map backed CustomRegistry.
type InMemoryRegistry struct {
	mu   sync.RWMutex
	defs map[string]CustomToolDefinition
}

// NewInMemoryRegistry returns a registry seeded with defs.
func NewInMemoryRegistry(defs ...CustomToolDefinition) *InMemoryRegistry {
	r := &InMemoryRegistry{defs: map[string]CustomToolDefinition{}}
	for _, d := range defs {
		r.Put(d)
	}
	return r
}

// Put stores def under its id.
func (r *InMemoryRegistry) Put(def CustomToolDefinition) {
	r.mu.Lock()
	r.defs[def.ID] = def
	r.mu.Unlock()
}

// GetCustomTool implements CustomRegistry.
func (r *InMemoryRegistry) GetCustomTool(_ context.Context, id string) (*CustomToolDefinition, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.defs[id]
	if !ok {
		return nil, false, nil
	}
	return &d, true, nil
}

// CustomToolsKey is the DataStore key under which StoreRegistry keeps
// definitions.
const CustomToolsKey = "custom-tools"

// StoreRegistry persists custom tool definitions as JSON records in a
// core.DataStore, one record per id.
type StoreRegistry struct {
	store core.DataStore
}

// NewStoreRegistry returns a registry over store.
func NewStoreRegistry(store core.DataStore) *StoreRegistry {
	return &StoreRegistry{store: store}
}

// Put writes def, replacing any definition with the same id.
func (r *StoreRegistry) Put(ctx context.Context, def CustomToolDefinition) error {
	raw, err := json.Marshal(def)
	if err != nil {
		return err
	}
	_, err = r.store.StoreData(ctx, core.Record{
		Key:     CustomToolsKey,
		Content: string(raw),
		Meta:    core.Meta{Meta1: def.ID},
	}, false)
	return err
}

// GetCustomTool implements CustomRegistry.
func (r *StoreRegistry) GetCustomTool(ctx context.Context, id string) (*CustomToolDefinition, bool, error) {
	rec, ok, err := r.store.GetDataSingle(ctx, CustomToolsKey, core.Meta{Meta1: id})
	if err != nil || !ok {
		return nil, false, err
	}

	var def CustomToolDefinition
	if err := json.Unmarshal([]byte(rec.Content), &def); err != nil {
		return nil, false, fmt.Errorf("decode custom tool %q: %w", id, err)
	}
	return &def, true, nil
}

var paramTypes = map[string]string{
	"string":  "string",
	"str":     "string",
	"text":    "string",
	"number":  "number",
	"float":   "number",
	"double":  "number",
	"integer": "integer",
	"int":     "integer",
	"boolean": "boolean",
	"bool":    "boolean",
	"array":   "array",
	"list":    "array",
	"object":  "object",
	"dict":    "object",
	"map":     "object",
	"json":    "object",
}

// ParamsSchema converts declarative params into the runtime JSON schema.
// Params with an unrecognized type accept any value.
func ParamsSchema(params []ParamSpec) map[string]any {
	props := make(map[string]any, len(params))
	required := make([]string, 0, len(params))

	for _, p := range params {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			continue
		}

		typ, ok := paramTypes[strings.ToLower(strings.TrimSpace(p.Type))]
		if !ok {
			props[name] = util.AnySchema(p.Description)
		} else {
			s := map[string]any{"type": typ}
			if p.Description != "" {
				s["description"] = p.Description
			}
			props[name] = s
		}

		if p.Required {
			required = append(required, name)
		}
	}

	return objectSchema(props, required...)
}

// NewCustomTool builds the runtime tool for def. creds holds the resolved
// credentials the script may read.
func NewCustomTool(def *CustomToolDefinition, creds map[string]string, executor code.Executor) Tool {
	name := def.ToolName()

	return NewFunctionTool(
		name,
		def.Description,
		ParamsSchema(def.Params),
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			if strings.TrimSpace(def.Script) == "" || executor == nil {
				return nil, NewToolError(name, "custom tool has no executable logic", CodeNotConfigured)
			}

			credentials := make(map[string]any, len(creds))
			for k, v := range creds {
				credentials[k] = v
			}

			return executor.Execute(tc.Context(), def.Script, map[string]any{
				"args":        args,
				"credentials": credentials,
				"user":        tc.UserID(),
			})
		},
	)
}

func sanitizeName(s string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	return sb.String()
}
