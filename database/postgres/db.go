package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

const tableName = "file_meta"

type columnInfo struct {
	name       string
	dataType   string
	isNullable bool
}

var fileMetaTableSchema = map[string]columnInfo{
	"id":          {"id", "uuid", false},
	"internal_id": {"internal_id", "text", true},
	"owner_id":    {"owner_id", "uuid", true},
	"title":       {"title", "text", false},
	"size":        {"size", "bigint", false},
	"format":      {"format", "text", true},
	"created_at":  {"created_at", "timestamp with time zone", false},
	"deleted_at":  {"deleted_at", "timestamp with time zone", true},
	"is_deleted":  {"is_deleted", "boolean", false},
}

// ValidateSchema checks the live file_meta columns against the expected schema.
func ValidateSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if err := validateTableSchema(ctx, pool, tableName, fileMetaTableSchema); err != nil {
		return fmt.Errorf("validate schema %s: %w", tableName, err)
	}
	return nil
}

func validateTableSchema(ctx context.Context, pool *pgxpool.Pool, table string, expectedSchema map[string]columnInfo) error {
	exists, err := tableExists(ctx, pool, table)
	if err != nil {
		return fmt.Errorf("validate table schema: %w", err)
	}

	if !exists {
		return fmt.Errorf("validate table schema: table %s does not exist", table)
	}

	query := `
		SELECT column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1
		ORDER BY ordinal_position
	`

	rows, err := pool.Query(ctx, query, table)
	if err != nil {
		return fmt.Errorf("validate table schema: query columns: %w", err)
	}
	defer rows.Close()

	actualColumns := make(map[string]columnInfo)
	for rows.Next() {
		var name, dataType, nullable string
		if err := rows.Scan(&name, &dataType, &nullable); err != nil {
			return fmt.Errorf("validate table schema: scan column: %w", err)
		}
		actualColumns[name] = columnInfo{
			name:       name,
			dataType:   strings.ToLower(dataType),
			isNullable: nullable == "YES",
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("validate table schema: rows error: %w", err)
	}

	return compareColumns(table, expectedSchema, actualColumns)
}

func compareColumns(table string, expected, actual map[string]columnInfo) error {
	var missingColumns []string
	var mismatchedColumns []string

	for colName, want := range expected {
		got, exists := actual[colName]
		if !exists {
			missingColumns = append(missingColumns, colName)
			continue
		}

		if got.dataType != want.dataType {
			mismatchedColumns = append(mismatchedColumns,
				fmt.Sprintf("%s: expected %s, got %s", colName, want.dataType, got.dataType))
		}

		if got.isNullable != want.isNullable {
			mismatchedColumns = append(mismatchedColumns,
				fmt.Sprintf("%s: expected nullable=%v, got nullable=%v", colName, want.isNullable, got.isNullable))
		}
	}

	if len(missingColumns) == 0 && len(mismatchedColumns) == 0 {
		return nil
	}

	var errMsg strings.Builder
	fmt.Fprintf(&errMsg, "table %s schema validation failed:\n", table)

	if len(missingColumns) > 0 {
		fmt.Fprintf(&errMsg, "  missing columns: %s\n", strings.Join(missingColumns, ", "))
	}

	if len(mismatchedColumns) > 0 {
		fmt.Fprintf(&errMsg, "  mismatched columns:\n")
		for _, msg := range mismatchedColumns {
			fmt.Fprintf(&errMsg, "    - %s\n", msg)
		}
	}

	return errors.New(errMsg.String())
}

func tableExists(ctx context.Context, pool *pgxpool.Pool, table string) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS (
			SELECT 1
			FROM information_schema.tables
			WHERE table_schema = current_schema()
			AND table_name = $1
		)
	`
	err := pool.QueryRow(ctx, query, table).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check table exists: %w", err)
	}
	return exists, nil
}
