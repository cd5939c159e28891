package db

import (
	"database/sql"
	"fmt"
)

// migrations is a list of SQL statements applied in order after schema creation.
// Each migration must be idempotent. Append new migrations at the end.
var migrations = []string{
	// Migration 1: lookups of a request's ledger postings when rendering
	// stock cards and reconciling returns.
	`CREATE INDEX IF NOT EXISTS idx_ledger_entries_reference
	     ON ledger_entries(reason, reference_id)`,
	// Migration 2: request lists filtered by status.
	`CREATE INDEX IF NOT EXISTS idx_requests_status
	     ON requests(status, id)`,
}

func migrate(db *sql.DB) error {
	for i, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("running migration %d: %w", i+1, err)
		}
	}
	return nil
}
