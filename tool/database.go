package tool

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/teammesh/core"
)

// Row is one record returned by the database tool.
type Row struct {
	ID        string    `json:"id"`
	Data      any       `json:"data"`
	Label     string    `json:"label,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewDatabaseTool returns the database tool. Tables are namespaced per user
// and team; rows are JSON documents stored through core.DataStore.
func NewDatabaseTool() Tool {
	const name = "database"

	return NewFunctionTool(
		name,
		"Store and query structured records in named tables. Operations: insert, list, get, delete.",
		objectSchema(map[string]any{
			"operation": map[string]any{"type": "string", "enum": []string{"insert", "list", "get", "delete"}},
			"table":     prop("string", "Table name"),
			"data":      prop("object", "Row data for insert"),
			"label":     prop("string", "Optional label used to filter rows"),
			"id":        prop("string", "Row id for get and delete"),
			"limit":     prop("integer", "Maximum rows for list (default 20)"),
		}, "operation", "table"),
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			store, err := tc.Store()
			if err != nil {
				return nil, &ToolError{Tool: name, Message: err.Error(), Code: CodeNotConfigured, Err: err}
			}

			table := stringArg(args, "table")
			if table == "" {
				return nil, NewToolError(name, "table must not be empty", CodeValidation)
			}

			key := core.DatabaseNamespace(tc.UserID(), tc.TeamName(), table)
			ctx := tc.Context()

			switch stringArg(args, "operation") {
			case "insert":
				data, ok := args["data"]
				if !ok {
					return nil, NewToolError(name, "insert requires data", CodeValidation)
				}
				raw, err := json.Marshal(data)
				if err != nil {
					return nil, err
				}
				id, err := store.StoreData(ctx, core.Record{
					Key:     key,
					Content: string(raw),
					Meta:    core.Meta{Meta1: stringArg(args, "label")},
				}, true)
				if err != nil {
					return nil, err
				}
				return map[string]any{"id": id}, nil

			case "list":
				recs, err := store.GetDataMany(ctx, key, core.Meta{Meta1: stringArg(args, "label")}, intArg(args, "limit", 20))
				if err != nil {
					return nil, err
				}
				rows := make([]Row, 0, len(recs))
				for _, r := range recs {
					rows = append(rows, toRow(r))
				}
				return rows, nil

			case "get":
				id := stringArg(args, "id")
				recs, err := store.GetDataMany(ctx, key, core.Meta{}, 0)
				if err != nil {
					return nil, err
				}
				for _, r := range recs {
					if r.ID == id {
						return toRow(r), nil
					}
				}
				return nil, NewToolError(name, fmt.Sprintf("row %q not found in %q", id, table), CodeNotFound)

			case "delete":
				id := stringArg(args, "id")
				if err := store.DeleteData(ctx, id); err != nil {
					if errors.Is(err, core.ErrNotFound) {
						return nil, NewToolError(name, fmt.Sprintf("row %q not found", id), CodeNotFound)
					}
					return nil, err
				}
				return map[string]any{"deleted": id}, nil
			}

			return nil, NewToolError(name, "unknown operation", CodeValidation)
		},
	)
}

func toRow(r core.Record) Row {
	row := Row{ID: r.ID, Label: r.Meta.Meta1, CreatedAt: r.CreatedAt}
	if err := json.Unmarshal([]byte(r.Content), &row.Data); err != nil {
		row.Data = r.Content
	}
	return row
}
