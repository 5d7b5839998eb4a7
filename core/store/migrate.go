package store

import (
	"context"
	_ "embed"
	"fmt"
)

//go:embed schema.sql
var schemaSQL string

// Migrate applies the full schema idempotently. There is no migration
// history table: every statement is a CREATE ... IF NOT EXISTS, which is
// sufficient for a single-binary deployment. Schema changes that need to
// touch existing rows will need a real migration tool when the day comes.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}
