package tools

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"dwagent/pkg/taxonomy"
)

const (
	// ToolExecuteWarehouseQuery runs a single SQL statement against the warehouse.
	ToolExecuteWarehouseQuery = "execute_warehouse_query"
	// ToolValidateWarehouseConnection probes connectivity and catalog visibility.
	ToolValidateWarehouseConnection = "validate_warehouse_connection"

	maxResultRows = 200
)

func init() {
	Register(ToolMeta{Name: ToolExecuteWarehouseQuery, Category: CategoryWarehouse}, func(deps Deps) (Tool, error) {
		if deps.WarehouseDB == nil {
			return nil, fmt.Errorf("warehouse tools require a database handle")
		}
		return &ExecuteQueryTool{db: deps.WarehouseDB}, nil
	})
	Register(ToolMeta{Name: ToolValidateWarehouseConnection, Category: CategoryWarehouse}, func(deps Deps) (Tool, error) {
		if deps.WarehouseDB == nil {
			return nil, fmt.Errorf("warehouse tools require a database handle")
		}
		return &ValidateConnectionTool{db: deps.WarehouseDB, database: deps.DefaultDatabase}, nil
	})
}

// ExecuteQueryTool runs exactly one SQL statement against the warehouse.
// Structural statements must carry fully qualified identifiers so the call
// never depends on session context.
type ExecuteQueryTool struct {
	db *sql.DB
}

func (t *ExecuteQueryTool) Name() string { return ToolExecuteWarehouseQuery }

// Definition returns the tool definition for LLM.
func (t *ExecuteQueryTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolExecuteWarehouseQuery,
		Description: "Execute exactly one SQL statement against the warehouse. DDL and DML must use fully qualified DATABASE.SCHEMA.OBJECT identifiers; USE is rejected. Multi-statement payloads are rejected.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"sql": {
					Type:        "string",
					Description: "A single SQL statement. A trailing semicolon is allowed.",
				},
			},
			Required: []string{"sql"},
		},
	}
}

// Validate checks the statement without touching the warehouse. The gateway
// calls this before dispatch so malformed payloads never consume an attempt.
func (t *ExecuteQueryTool) Validate(args map[string]any) error {
	raw, ok := args["sql"].(string)
	if !ok || strings.TrimSpace(raw) == "" {
		return taxonomy.Validationf("sql is required and must be a non-empty string")
	}
	stmt, err := ValidateSingleStatement(raw)
	if err != nil {
		return err
	}
	return ValidateQualifiedIdentifiers(stmt)
}

// Exec executes the tool with the given arguments.
func (t *ExecuteQueryTool) Exec(ctx context.Context, args map[string]any) (map[string]any, error) {
	raw, _ := args["sql"].(string)
	stmt, err := ValidateSingleStatement(raw)
	if err != nil {
		return nil, err
	}
	if err := ValidateQualifiedIdentifiers(stmt); err != nil {
		return nil, err
	}

	if IsReadOnlyStatement(stmt) {
		return t.query(ctx, stmt)
	}
	return t.exec(ctx, stmt)
}

func (t *ExecuteQueryTool) query(ctx context.Context, stmt string) (map[string]any, error) {
	rows, err := t.db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, classifyWarehouseError(err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, classifyWarehouseError(err)
	}

	var results []map[string]any
	truncated := false
	for rows.Next() {
		if len(results) >= maxResultRows {
			truncated = true
			break
		}
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, classifyWarehouseError(err)
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyWarehouseError(err)
	}

	return map[string]any{
		"columns":   columns,
		"rows":      results,
		"row_count": len(results),
		"truncated": truncated,
	}, nil
}

func (t *ExecuteQueryTool) exec(ctx context.Context, stmt string) (map[string]any, error) {
	result, err := t.db.ExecContext(ctx, stmt)
	if err != nil {
		return nil, classifyWarehouseError(err)
	}
	affected, _ := result.RowsAffected()
	return map[string]any{
		"rows_affected": affected,
	}, nil
}

// ValidateConnectionTool pings the warehouse and probes catalog visibility.
// Its payload carries completion facts for the infrastructure phase.
type ValidateConnectionTool struct {
	db       *sql.DB
	database string
}

func (t *ValidateConnectionTool) Name() string { return ToolValidateWarehouseConnection }

// Definition returns the tool definition for LLM.
func (t *ValidateConnectionTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolValidateWarehouseConnection,
		Description: "Validate warehouse connectivity and check whether the target database exists. Read-only; safe to call repeatedly.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"database": {
					Type:        "string",
					Description: "Database name to check. Defaults to the configured target database.",
				},
			},
		},
	}
}

// Exec executes the tool with the given arguments.
func (t *ValidateConnectionTool) Exec(ctx context.Context, args map[string]any) (map[string]any, error) {
	database := t.database
	if v, ok := args["database"].(string); ok && v != "" {
		database = v
	}

	if err := t.db.PingContext(ctx); err != nil {
		return map[string]any{
			"connected": false,
			"error":     err.Error(),
			KeyFacts: map[string]bool{
				"connection_validated": false,
			},
		}, nil
	}

	exists, err := t.databaseExists(ctx, database)
	if err != nil {
		return nil, classifyWarehouseError(err)
	}

	return map[string]any{
		"connected":       true,
		"database":        database,
		"database_exists": exists,
		KeyFacts: map[string]bool{
			"connection_validated": true,
			"database_exists":      exists,
		},
	}, nil
}

func (t *ValidateConnectionTool) databaseExists(ctx context.Context, database string) (bool, error) {
	if database == "" {
		return false, nil
	}
	var count int
	err := t.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM information_schema.schemata WHERE UPPER(catalog_name) = UPPER(?)",
		database,
	).Scan(&count)
	if err != nil {
		// Some engines expose databases rather than schemata at the top level.
		if err2 := t.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM information_schema.databases WHERE UPPER(database_name) = UPPER(?)",
			database,
		).Scan(&count); err2 != nil {
			return false, err
		}
	}
	return count > 0, nil
}

// classifyWarehouseError maps driver errors onto the retry taxonomy. Syntax
// and constraint errors will fail the same way on retry; connectivity errors
// are worth another attempt.
func classifyWarehouseError(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "syntax"),
		strings.Contains(msg, "no such table"),
		strings.Contains(msg, "no such column"),
		strings.Contains(msg, "constraint"),
		strings.Contains(msg, "already exists"),
		strings.Contains(msg, "does not exist"):
		return taxonomy.NewErrorWithCause(taxonomy.ErrorTypeSemantic, err, "warehouse rejected statement")
	case strings.Contains(msg, "connection"),
		strings.Contains(msg, "timeout"),
		strings.Contains(msg, "busy"),
		strings.Contains(msg, "locked"),
		strings.Contains(msg, "temporarily"):
		return taxonomy.NewErrorWithCause(taxonomy.ErrorTypeTransient, err, "warehouse unavailable")
	default:
		return taxonomy.NewErrorWithCause(taxonomy.ErrorTypeSemantic, err, "warehouse error")
	}
}
