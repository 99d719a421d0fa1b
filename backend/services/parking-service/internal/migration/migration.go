// Package migration applies the embedded parking schema.
package migration

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
)

//go:embed schema.sql
var schema string

// Schema returns the DDL applied by Apply.
func Schema() string {
	return schema
}

// Apply creates missing tables and indexes. Statements are idempotent.
func Apply(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migration: apply schema: %w", err)
	}
	return nil
}
