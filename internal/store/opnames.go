package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/atkgudang/persediaan/internal/model"
)

const opnameColumns = `id, number, status, note, created_by, counted_by, counted_at, approved_by, approved_at,
	created_at, updated_at`

// InsertOpname creates a draft stock count header and returns its ID.
func InsertOpname(ctx context.Context, q Querier, number, note string, createdBy int64, at time.Time) (int64, error) {
	result, err := q.ExecContext(ctx,
		`INSERT INTO stock_opnames (number, status, note, created_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		number, model.OpnameDraft, nullString(note), createdBy, at, at,
	)
	if err != nil {
		return 0, fmt.Errorf("creating opname: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting opname id: %w", err)
	}
	return id, nil
}

// InsertOpnameLine adds an item with its frozen system quantity.
func InsertOpnameLine(ctx context.Context, q Querier, opnameID, itemID int64, systemQuantity int) (int64, error) {
	result, err := q.ExecContext(ctx,
		`INSERT INTO stock_opname_lines (opname_id, item_id, system_quantity) VALUES (?, ?, ?)`,
		opnameID, itemID, systemQuantity,
	)
	if err != nil {
		return 0, fmt.Errorf("creating opname line: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting opname line id: %w", err)
	}
	return id, nil
}

// GetOpname returns a stock count with its lines.
func GetOpname(ctx context.Context, q Querier, id int64) (*model.StockOpname, error) {
	row := q.QueryRowContext(ctx, `SELECT `+opnameColumns+` FROM stock_opnames WHERE id = ?`, id)
	o, err := scanOpname(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting opname: %w", err)
	}

	rows, err := q.QueryContext(ctx,
		`SELECT l.id, l.opname_id, l.item_id, l.system_quantity, l.counted_quantity, l.variance, i.name, i.unit
		 FROM stock_opname_lines l
		 JOIN items i ON i.id = l.item_id
		 WHERE l.opname_id = ?
		 ORDER BY l.id`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("listing opname lines: %w", err)
	}
	defer rows.Close()

	o.Lines = []model.OpnameLine{}
	for rows.Next() {
		var l model.OpnameLine
		if err := rows.Scan(&l.ID, &l.OpnameID, &l.ItemID, &l.SystemQuantity, &l.CountedQuantity, &l.Variance,
			&l.ItemName, &l.Unit); err != nil {
			return nil, fmt.Errorf("scanning opname line: %w", err)
		}
		o.Lines = append(o.Lines, l)
	}
	return o, rows.Err()
}

// ListOpnames returns stock count headers, newest first, optionally by status.
func ListOpnames(ctx context.Context, q Querier, status model.OpnameStatus) ([]model.StockOpname, error) {
	var rows *sql.Rows
	var err error

	if status != "" {
		rows, err = q.QueryContext(ctx,
			`SELECT `+opnameColumns+` FROM stock_opnames WHERE status = ? ORDER BY id DESC`, status)
	} else {
		rows, err = q.QueryContext(ctx,
			`SELECT `+opnameColumns+` FROM stock_opnames ORDER BY id DESC`)
	}
	if err != nil {
		return nil, fmt.Errorf("listing opnames: %w", err)
	}
	defer rows.Close()

	var opnames []model.StockOpname
	for rows.Next() {
		o, err := scanOpname(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning opname: %w", err)
		}
		o.Lines = []model.OpnameLine{}
		opnames = append(opnames, *o)
	}
	return opnames, rows.Err()
}

// SetCountedQuantity records the physical count and variance of a line.
func SetCountedQuantity(ctx context.Context, q Querier, lineID int64, counted, variance int) error {
	_, err := q.ExecContext(ctx,
		`UPDATE stock_opname_lines SET counted_quantity = ?, variance = ? WHERE id = ?`,
		counted, variance, lineID)
	if err != nil {
		return fmt.Errorf("setting counted quantity: %w", err)
	}
	return nil
}

// UpdateOpnameStatus moves a stock count between statuses. It fails with
// ErrInvalidTransition if the count is no longer in from.
func UpdateOpnameStatus(ctx context.Context, q Querier, id int64, from, to model.OpnameStatus, actorID int64, at time.Time) error {
	var set string
	switch to {
	case model.OpnameCounted:
		set = `counted_by = ?, counted_at = ?`
	case model.OpnameApproved:
		set = `approved_by = ?, approved_at = ?`
	default:
		return fmt.Errorf("no stamp columns for opname status %q", to)
	}

	result, err := q.ExecContext(ctx,
		`UPDATE stock_opnames SET status = ?, updated_at = ?, `+set+` WHERE id = ? AND status = ?`,
		to, at, actorID, at, id, from,
	)
	if err != nil {
		return fmt.Errorf("updating opname status: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking opname status update: %w", err)
	}
	if n != 1 {
		return &TransitionError{Entity: model.EntityOpname, ID: id, From: string(from), Action: string(to)}
	}
	return nil
}

func scanOpname(row rowScanner) (*model.StockOpname, error) {
	o := &model.StockOpname{}
	var note sql.NullString
	err := row.Scan(&o.ID, &o.Number, &o.Status, &note, &o.CreatedBy, &o.CountedBy, &o.CountedAt,
		&o.ApprovedBy, &o.ApprovedAt, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	o.Note = note.String
	return o, nil
}
