package tool

import (
	"fmt"

	"github.com/hupe1980/teammesh/contextset"
	"github.com/hupe1980/teammesh/core"
)

// Context-set tool names.
const (
	AddContextSetTool    = "add_context_set"
	EditContextSetTool   = "edit_context_set"
	DeleteContextSetTool = "delete_context_set"
	ClearContextSetTool  = "clear_context_set"
)

// ContextEditTools lists the tools that mutate shared context sets.
var ContextEditTools = []string{AddContextSetTool, EditContextSetTool, DeleteContextSetTool, ClearContextSetTool}

type addContextSetArgs struct {
	Title     string   `json:"title" description:"Name of the context set"`
	Text      string   `json:"text" description:"Full text of the context set"`
	VisibleTo []string `json:"visible_to,omitempty" description:"Agent names that may see the set"`
}

type editContextSetArgs struct {
	Name      string   `json:"name" description:"Current name of the context set"`
	NewText   *string  `json:"new_text,omitempty" description:"Replacement text"`
	NewName   *string  `json:"new_name,omitempty" description:"New name"`
	VisibleTo []string `json:"visible_to,omitempty" description:"Agent names that may see the set"`
}

type contextSetNameArgs struct {
	Name string `json:"name" description:"Name of the context set"`
}

// ContextSetTools returns the four context-set tools, each limited to one
// call per agent turn.
func ContextSetTools() []Tool {
	return []Tool{
		OncePerTurn(newAddContextSetTool()),
		OncePerTurn(newEditContextSetTool()),
		OncePerTurn(newDeleteContextSetTool()),
		OncePerTurn(newClearContextSetTool()),
	}
}

func newAddContextSetTool() *FunctionTool {
	return NewFunctionToolFromStruct(
		AddContextSetTool,
		"Create or overwrite a named context set shared with the team. Sets are visible only to you unless you list other agents in visible_to.",
		addContextSetArgs{},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			title := stringArg(args, "title")
			if title == "" {
				return nil, NewToolError(AddContextSetTool, "title must not be empty", CodeValidation)
			}

			text, _ := args["text"].(string)
			visibleTo := stringSliceArg(args, "visible_to")
			all := tc.AllAgentNames()

			tc.UpdateContextSets(func(sets []core.ContextContainer) ([]core.ContextContainer, bool) {
				return contextset.Add(sets, tc.AgentName(), all, title, text, visibleTo...), true
			})

			tc.Record(core.RoleAssistant, fmt.Sprintf("saved context set %q", title))

			return fmt.Sprintf("Context set %q saved.", title), nil
		},
	)
}

func newEditContextSetTool() *FunctionTool {
	return NewFunctionToolFromStruct(
		EditContextSetTool,
		"Edit an existing context set: replace its text, rename it, or change who can see it.",
		editContextSetArgs{},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			name := stringArg(args, "name")
			opts := contextset.EditOptions{
				NewText: optionalString(args, "new_text"),
				NewName: optionalString(args, "new_name"),
			}
			if visible := stringSliceArg(args, "visible_to"); len(visible) > 0 {
				opts.VisibleTo = visible
			}
			all := tc.AllAgentNames()

			ok := tc.UpdateContextSets(func(sets []core.ContextContainer) ([]core.ContextContainer, bool) {
				return contextset.Edit(sets, all, name, opts)
			})
			if !ok {
				return nil, NewToolError(EditContextSetTool, fmt.Sprintf("context set %q not found", name), CodeNotFound)
			}

			tc.Record(core.RoleAssistant, fmt.Sprintf("edited context set %q", name))

			return fmt.Sprintf("Context set %q updated.", name), nil
		},
	)
}

func newDeleteContextSetTool() *FunctionTool {
	return NewFunctionToolFromStruct(
		DeleteContextSetTool,
		"Delete a context set.",
		contextSetNameArgs{},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			name := stringArg(args, "name")

			ok := tc.UpdateContextSets(func(sets []core.ContextContainer) ([]core.ContextContainer, bool) {
				return contextset.Delete(sets, name)
			})
			if !ok {
				return nil, NewToolError(DeleteContextSetTool, fmt.Sprintf("context set %q not found", name), CodeNotFound)
			}

			tc.Record(core.RoleAssistant, fmt.Sprintf("deleted context set %q", name))

			return fmt.Sprintf("Context set %q deleted.", name), nil
		},
	)
}

func newClearContextSetTool() *FunctionTool {
	return NewFunctionToolFromStruct(
		ClearContextSetTool,
		"Remove all text from a context set but keep the set.",
		contextSetNameArgs{},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			name := stringArg(args, "name")

			ok := tc.UpdateContextSets(func(sets []core.ContextContainer) ([]core.ContextContainer, bool) {
				return contextset.Clear(sets, name)
			})
			if !ok {
				return nil, NewToolError(ClearContextSetTool, fmt.Sprintf("context set %q not found", name), CodeNotFound)
			}

			tc.Record(core.RoleAssistant, fmt.Sprintf("cleared context set %q", name))

			return fmt.Sprintf("Context set %q cleared.", name), nil
		},
	)
}
