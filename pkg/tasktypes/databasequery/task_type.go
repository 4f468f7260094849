// Package databasequery provides the database_query task type.
package databasequery

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/dukex/taskflow/pkg/datasource"
	"github.com/dukex/taskflow/pkg/models"
	"github.com/dukex/taskflow/pkg/protocol"
	"github.com/dukex/taskflow/pkg/validation"
)

const Name = "database_query"

var ErrNoDataSource = errors.New("no data source configured")

// TaskType runs raw SQL or a structured select against a datasource.Querier.
type TaskType struct {
	querier datasource.Querier
}

// New creates the task type. A nil querier makes every execution fail.
func New(querier datasource.Querier) *TaskType {
	return &TaskType{querier: querier}
}

func (t *TaskType) Name() string {
	return Name
}

func (t *TaskType) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "Raw SQL statement. Positional parameters are taken from params",
			},
			"params": map[string]any{
				"type":        "array",
				"description": "Positional parameters for query",
			},
			"table": map[string]any{
				"type":        "string",
				"description": "Table to select from when query is not given",
			},
			"columns": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
			"where": map[string]any{
				"type":        "object",
				"description": "Equality filters, column to value",
			},
			"limit": map[string]any{
				"type":    "integer",
				"minimum": 1,
			},
		},
	}
}

func (t *TaskType) Validate(config map[string]any) protocol.ValidationResult {
	errs := validation.Schema(t.Schema(), config)

	var warnings []string

	query := protocol.ConfigString(config, "query")
	table := protocol.ConfigString(config, "table")

	switch {
	case query == "" && table == "":
		errs = append(errs, "either query or table is required")
	case query != "" && table != "":
		errs = append(errs, "query and table are mutually exclusive")
	}

	if isWrite(query) {
		warnings = append(warnings, "query modifies data")
	}

	if t.querier == nil {
		warnings = append(warnings, ErrNoDataSource.Error())
	}

	return protocol.NewValidationResult(errs, warnings)
}

func (t *TaskType) EstimateResources(map[string]any) []models.ResourceRequirement {
	return []models.ResourceRequirement{
		{Type: models.ResourceTypeCustom, Amount: 1, Unit: "db-connection"},
	}
}

func (t *TaskType) Execute(ctx context.Context, config map[string]any, execCtx protocol.ExecutionContext) protocol.Result {
	if t.querier == nil {
		return protocol.Failed(ErrNoDataSource.Error())
	}

	query, args, err := t.build(config)
	if err != nil {
		return protocol.Failed(err.Error())
	}

	execCtx.Log().DebugContext(ctx, "Running database query", "module", Name, "query", query)

	if isWrite(query) {
		affected, err := t.querier.Exec(ctx, query, args...)
		if err != nil {
			return protocol.Failed(err.Error())
		}

		return protocol.Succeeded(map[string]any{"rowsAffected": affected, "count": 0, "rows": []any{}})
	}

	rows, err := t.querier.Query(ctx, query, args...)
	if err != nil {
		return protocol.Failed(err.Error())
	}

	out := make([]any, len(rows))
	for i, row := range rows {
		out[i] = row
	}

	return protocol.Succeeded(map[string]any{"rows": out, "count": len(rows)})
}

func (t *TaskType) build(config map[string]any) (string, []any, error) {
	if query := protocol.ConfigString(config, "query"); query != "" {
		params, _ := config["params"].([]any)

		return query, params, nil
	}

	table := protocol.ConfigString(config, "table")
	if table == "" {
		return "", nil, errors.New("either query or table is required")
	}

	columns := []string{"*"}
	if raw, ok := config["columns"].([]any); ok && len(raw) > 0 {
		columns = columns[:0]
		for _, c := range raw {
			columns = append(columns, fmt.Sprint(c))
		}
	} else if cols, ok := config["columns"].([]string); ok && len(cols) > 0 {
		columns = cols
	}

	builder := squirrel.Select(columns...).From(table).PlaceholderFormat(t.querier.Placeholder())

	if where := protocol.ConfigMap(config, "where"); len(where) > 0 {
		keys := make([]string, 0, len(where))
		for key := range where {
			keys = append(keys, key)
		}

		sort.Strings(keys)

		for _, key := range keys {
			builder = builder.Where(squirrel.Eq{key: where[key]})
		}
	}

	if limit := protocol.ConfigInt(config, "limit", 0); limit > 0 {
		builder = builder.Limit(uint64(limit))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("failed to build query: %w", err)
	}

	return query, args, nil
}

func isWrite(query string) bool {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return false
	}

	switch strings.ToUpper(fields[0]) {
	case "INSERT", "UPDATE", "DELETE", "CREATE", "DROP", "ALTER", "TRUNCATE", "REPLACE":
		return true
	default:
		return false
	}
}
