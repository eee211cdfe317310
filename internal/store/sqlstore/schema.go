package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
)

// migrate creates the engines table if it does not already exist.
func migrate(ctx context.Context, db *sql.DB) error {
	const stmt = `CREATE TABLE IF NOT EXISTS engines (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		engine_type TEXT NOT NULL,
		version TEXT NOT NULL,
		configs TEXT NOT NULL,
		state TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		create_time TEXT NOT NULL
	);`

	if _, err := db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("create engines table: %w", err)
	}
	return nil
}
