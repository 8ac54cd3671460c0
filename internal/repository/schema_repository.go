package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// SchemaRepository inspects the live database schema.
type SchemaRepository struct {
	db *sqlx.DB
}

// NewSchemaRepository constructs a SchemaRepository.
func NewSchemaRepository(db *sqlx.DB) *SchemaRepository {
	return &SchemaRepository{db: db}
}

// HasColumn reports whether table has column in the current schema.
func (r *SchemaRepository) HasColumn(ctx context.Context, table, column string) (bool, error) {
	const query = `SELECT EXISTS (
SELECT 1 FROM information_schema.columns
WHERE table_schema = current_schema() AND table_name = $1 AND column_name = $2)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, table, column); err != nil {
		return false, fmt.Errorf("probe column %s.%s: %w", table, column, err)
	}
	return exists, nil
}
