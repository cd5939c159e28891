package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/atkgudang/persediaan/internal/model"
)

// RecordStatusChange appends a workflow transition to the audit history.
func RecordStatusChange(ctx context.Context, q Querier, c model.StatusChange) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO status_history (entity_type, entity_id, from_status, to_status, actor_id, note, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.EntityType, c.EntityID, nullString(c.FromStatus), c.ToStatus, c.ActorID, nullString(c.Note), c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("recording status change: %w", err)
	}
	return nil
}

// ListStatusHistory returns the transitions of one entity, oldest first.
func ListStatusHistory(ctx context.Context, q Querier, entityType string, entityID int64) ([]model.StatusChange, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, entity_type, entity_id, from_status, to_status, actor_id, note, created_at
		 FROM status_history WHERE entity_type = ? AND entity_id = ?
		 ORDER BY id`, entityType, entityID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing status history: %w", err)
	}
	defer rows.Close()

	var changes []model.StatusChange
	for rows.Next() {
		var c model.StatusChange
		var from, note sql.NullString
		if err := rows.Scan(&c.ID, &c.EntityType, &c.EntityID, &from, &c.ToStatus, &c.ActorID, &note, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning status change: %w", err)
		}
		c.FromStatus = from.String
		c.Note = note.String
		changes = append(changes, c)
	}
	return changes, rows.Err()
}

// nullString stores empty strings as NULL.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
