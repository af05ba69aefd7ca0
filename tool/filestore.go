package tool

import (
	"fmt"
	"path"
	"strings"

	"github.com/hupe1980/teammesh/core"
)

// NewFileStoreTool returns the file_store tool: plain-text files shared by
// a user's team, keyed by a slash separated path.
func NewFileStoreTool() Tool {
	const name = "file_store"

	return NewFunctionTool(
		name,
		"Read and write text files shared with your team. Operations: write, read, list, delete.",
		objectSchema(map[string]any{
			"operation": map[string]any{"type": "string", "enum": []string{"write", "read", "list", "delete"}},
			"path":      prop("string", "File path, e.g. notes/plan.md"),
			"content":   prop("string", "File content for write"),
		}, "operation"),
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			store, err := tc.Store()
			if err != nil {
				return nil, &ToolError{Tool: name, Message: err.Error(), Code: CodeNotConfigured, Err: err}
			}

			key := core.FileNamespace(tc.UserID(), tc.TeamName())
			ctx := tc.Context()
			op := stringArg(args, "operation")

			if op == "list" {
				recs, err := store.GetDataMany(ctx, key, core.Meta{}, 0)
				if err != nil {
					return nil, err
				}
				paths := make([]string, 0, len(recs))
				for _, r := range recs {
					paths = append(paths, r.Meta.Meta1)
				}
				return paths, nil
			}

			p := cleanPath(stringArg(args, "path"))
			if p == "" {
				return nil, NewToolError(name, "path must not be empty", CodeValidation)
			}

			switch op {
			case "write":
				content, _ := args["content"].(string)
				if _, err := store.StoreData(ctx, core.Record{
					Key:     key,
					Content: content,
					Meta:    core.Meta{Meta1: p},
				}, false); err != nil {
					return nil, err
				}
				return fmt.Sprintf("Wrote %d bytes to %s.", len(content), p), nil

			case "read":
				rec, ok, err := store.GetDataSingle(ctx, key, core.Meta{Meta1: p})
				if err != nil {
					return nil, err
				}
				if !ok {
					return nil, NewToolError(name, fmt.Sprintf("file %q not found", p), CodeNotFound)
				}
				return rec.Content, nil

			case "delete":
				rec, ok, err := store.GetDataSingle(ctx, key, core.Meta{Meta1: p})
				if err != nil {
					return nil, err
				}
				if !ok {
					return nil, NewToolError(name, fmt.Sprintf("file %q not found", p), CodeNotFound)
				}
				if err := store.DeleteData(ctx, rec.ID); err != nil {
					return nil, err
				}
				return fmt.Sprintf("Deleted %s.", p), nil
			}

			return nil, NewToolError(name, "unknown operation", CodeValidation)
		},
	)
}

func cleanPath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	p = strings.TrimPrefix(path.Clean("/"+p), "/")
	if p == "." {
		return ""
	}
	return p
}
