package database

import (
	"context"
	"database/sql"
	"fmt"
)

// Reset wipes all rows but keeps the schema, so a running devserver can be
// reseeded in place.
func Reset(ctx context.Context, db *sql.DB) error {
	if err := WithTx(ctx, db, func(tx *sql.Tx) error {
		tables := []string{
			"help_request_articles",
			"help_requests",
			"help_lists",
			"articles",
			"units",
			"users",
		}
		for _, t := range tables {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+t); err != nil {
				return fmt.Errorf("reset table %s: %w", t, err)
			}
		}
		return nil
	}); err != nil {
		return err
	}
	_, _ = db.ExecContext(ctx, "VACUUM")
	return nil
}
