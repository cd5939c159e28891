package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/atkgudang/persediaan/internal/model"
)

const purchaseColumns = `id, number, supplier, status, note, created_by, received_by, received_at,
	completed_by, completed_at, created_at, updated_at`

// InsertPurchase creates a draft purchase header and returns its ID.
func InsertPurchase(ctx context.Context, q Querier, number, supplier, note string, createdBy int64, at time.Time) (int64, error) {
	result, err := q.ExecContext(ctx,
		`INSERT INTO purchases (number, supplier, status, note, created_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		number, nullString(supplier), model.PurchaseDraft, nullString(note), createdBy, at, at,
	)
	if err != nil {
		return 0, fmt.Errorf("creating purchase: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting purchase id: %w", err)
	}
	return id, nil
}

// InsertPurchaseLine adds an ordered item to a purchase.
func InsertPurchaseLine(ctx context.Context, q Querier, purchaseID, itemID int64, ordered int) (int64, error) {
	result, err := q.ExecContext(ctx,
		`INSERT INTO purchase_lines (purchase_id, item_id, quantity_ordered) VALUES (?, ?, ?)`,
		purchaseID, itemID, ordered,
	)
	if err != nil {
		return 0, fmt.Errorf("creating purchase line: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting purchase line id: %w", err)
	}
	return id, nil
}

// GetPurchase returns a purchase with its lines.
func GetPurchase(ctx context.Context, q Querier, id int64) (*model.Purchase, error) {
	row := q.QueryRowContext(ctx, `SELECT `+purchaseColumns+` FROM purchases WHERE id = ?`, id)
	p, err := scanPurchase(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting purchase: %w", err)
	}

	rows, err := q.QueryContext(ctx,
		`SELECT l.id, l.purchase_id, l.item_id, l.quantity_ordered, l.quantity_received, i.name, i.unit
		 FROM purchase_lines l
		 JOIN items i ON i.id = l.item_id
		 WHERE l.purchase_id = ?
		 ORDER BY l.id`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("listing purchase lines: %w", err)
	}
	defer rows.Close()

	p.Lines = []model.PurchaseLine{}
	for rows.Next() {
		var l model.PurchaseLine
		if err := rows.Scan(&l.ID, &l.PurchaseID, &l.ItemID, &l.QuantityOrdered, &l.QuantityReceived,
			&l.ItemName, &l.Unit); err != nil {
			return nil, fmt.Errorf("scanning purchase line: %w", err)
		}
		p.Lines = append(p.Lines, l)
	}
	return p, rows.Err()
}

// ListPurchases returns purchase headers, newest first, optionally by status.
func ListPurchases(ctx context.Context, q Querier, status model.PurchaseStatus) ([]model.Purchase, error) {
	var rows *sql.Rows
	var err error

	if status != "" {
		rows, err = q.QueryContext(ctx,
			`SELECT `+purchaseColumns+` FROM purchases WHERE status = ? ORDER BY id DESC`, status)
	} else {
		rows, err = q.QueryContext(ctx,
			`SELECT `+purchaseColumns+` FROM purchases ORDER BY id DESC`)
	}
	if err != nil {
		return nil, fmt.Errorf("listing purchases: %w", err)
	}
	defer rows.Close()

	var purchases []model.Purchase
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning purchase: %w", err)
		}
		p.Lines = []model.PurchaseLine{}
		purchases = append(purchases, *p)
	}
	return purchases, rows.Err()
}

// SetReceivedQuantity records quantity_received for a purchase line.
func SetReceivedQuantity(ctx context.Context, q Querier, lineID int64, quantity int) error {
	_, err := q.ExecContext(ctx,
		`UPDATE purchase_lines SET quantity_received = ? WHERE id = ?`, quantity, lineID)
	if err != nil {
		return fmt.Errorf("setting received quantity: %w", err)
	}
	return nil
}

// UpdatePurchaseStatus moves a purchase between statuses. It fails with
// ErrInvalidTransition if the purchase is no longer in from.
func UpdatePurchaseStatus(ctx context.Context, q Querier, id int64, from, to model.PurchaseStatus, actorID int64, at time.Time) error {
	var set string
	switch to {
	case model.PurchaseReceived:
		set = `received_by = ?, received_at = ?`
	case model.PurchaseCompleted:
		set = `completed_by = ?, completed_at = ?`
	default:
		return fmt.Errorf("no stamp columns for purchase status %q", to)
	}

	result, err := q.ExecContext(ctx,
		`UPDATE purchases SET status = ?, updated_at = ?, `+set+` WHERE id = ? AND status = ?`,
		to, at, actorID, at, id, from,
	)
	if err != nil {
		return fmt.Errorf("updating purchase status: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking purchase status update: %w", err)
	}
	if n != 1 {
		return &TransitionError{Entity: model.EntityPurchase, ID: id, From: string(from), Action: string(to)}
	}
	return nil
}

func scanPurchase(row rowScanner) (*model.Purchase, error) {
	p := &model.Purchase{}
	var supplier, note sql.NullString
	err := row.Scan(&p.ID, &p.Number, &supplier, &p.Status, &note, &p.CreatedBy, &p.ReceivedBy, &p.ReceivedAt,
		&p.CompletedBy, &p.CompletedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Supplier = supplier.String
	p.Note = note.String
	return p, nil
}
