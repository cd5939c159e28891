package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/atkgudang/persediaan/internal/model"
)

// LedgerPost describes one stock mutation.
type LedgerPost struct {
	ItemID          int64
	Delta           int
	Reason          model.LedgerReason
	ReferenceID     int64
	ReferenceNumber string
	ActorID         *int64
	Note            string
	At              time.Time
}

// PostLedger appends an entry to the item's ledger. It is the only mutator of
// stock. The caller runs it inside a transaction while holding the item's
// critical section; the balance is recomputed from the log and the post is
// rejected with a *StockError if it would go negative. Nothing is written on
// rejection.
func PostLedger(ctx context.Context, q Querier, p LedgerPost) (*model.LedgerEntry, error) {
	if p.Delta == 0 {
		return nil, fmt.Errorf("ledger delta must be non-zero")
	}
	if !p.Reason.Valid() {
		return nil, fmt.Errorf("unknown ledger reason %q", p.Reason)
	}
	if p.At.IsZero() {
		p.At = time.Now().UTC()
	}

	balance, err := SumLedger(ctx, q, p.ItemID)
	if err != nil {
		return nil, err
	}
	after := balance + p.Delta
	if after < 0 {
		return nil, &StockError{ItemID: p.ItemID, Available: balance, Delta: p.Delta}
	}

	result, err := q.ExecContext(ctx,
		`INSERT INTO ledger_entries
		     (item_id, delta, balance_after, reason, reference_id, reference_number, actor_id, note, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ItemID, p.Delta, after, p.Reason, p.ReferenceID, p.ReferenceNumber, p.ActorID, nullString(p.Note), p.At,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting ledger entry: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting ledger entry id: %w", err)
	}

	// Keep the materialised balance in step within the same transaction.
	_, err = q.ExecContext(ctx,
		`INSERT INTO ledger_balances (item_id, balance, last_entry_id) VALUES (?, ?, ?)
		 ON CONFLICT (item_id) DO UPDATE SET balance = excluded.balance, last_entry_id = excluded.last_entry_id`,
		p.ItemID, after, id,
	)
	if err != nil {
		return nil, fmt.Errorf("updating cached balance: %w", err)
	}

	return &model.LedgerEntry{
		ID:              id,
		ItemID:          p.ItemID,
		Delta:           p.Delta,
		BalanceAfter:    after,
		Reason:          p.Reason,
		ReferenceID:     p.ReferenceID,
		ReferenceNumber: p.ReferenceNumber,
		ActorID:         p.ActorID,
		Note:            p.Note,
		CreatedAt:       p.At,
	}, nil
}

// SumLedger returns the sum of all deltas posted for an item.
func SumLedger(ctx context.Context, q Querier, itemID int64) (int, error) {
	var sum int
	err := q.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(delta), 0) FROM ledger_entries WHERE item_id = ?`, itemID,
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("summing ledger: %w", err)
	}
	return sum, nil
}

// CurrentBalance returns the item's stock. The cached balance is used only
// when it covers the newest entry; otherwise the log is summed.
func CurrentBalance(ctx context.Context, q Querier, itemID int64) (int, error) {
	var balance, lastEntry, newest int64
	err := q.QueryRowContext(ctx,
		`SELECT b.balance, b.last_entry_id,
		        (SELECT COALESCE(MAX(id), 0) FROM ledger_entries WHERE item_id = b.item_id)
		 FROM ledger_balances b WHERE b.item_id = ?`, itemID,
	).Scan(&balance, &lastEntry, &newest)
	if err == sql.ErrNoRows {
		return SumLedger(ctx, q, itemID)
	}
	if err != nil {
		return 0, fmt.Errorf("reading cached balance: %w", err)
	}
	if lastEntry != newest {
		return SumLedger(ctx, q, itemID)
	}
	return int(balance), nil
}

// BalanceBefore returns the item's balance from all entries created before t.
func BalanceBefore(ctx context.Context, q Querier, itemID int64, t time.Time) (int, error) {
	var sum int
	err := q.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(delta), 0) FROM ledger_entries WHERE item_id = ? AND created_at < ?`,
		itemID, t.UTC(),
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("summing ledger before %s: %w", t.Format(time.RFC3339), err)
	}
	return sum, nil
}

// LedgerHistory returns an item's entries in creation order. A zero from or to
// leaves that side of the range open; to is exclusive.
func LedgerHistory(ctx context.Context, q Querier, itemID int64, from, to time.Time) ([]model.LedgerEntry, error) {
	query := `SELECT id, item_id, delta, balance_after, reason, reference_id, reference_number,
	                 actor_id, note, created_at
	          FROM ledger_entries
	          WHERE item_id = ?`
	args := []any{itemID}

	if !from.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, from.UTC())
	}
	if !to.IsZero() {
		query += ` AND created_at < ?`
		args = append(args, to.UTC())
	}

	query += ` ORDER BY id`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing ledger history: %w", err)
	}
	defer rows.Close()

	return scanLedgerEntries(rows)
}

// ListReferenceEntries returns the entries a workflow entity posted for the given reason.
func ListReferenceEntries(ctx context.Context, q Querier, reason model.LedgerReason, referenceID int64) ([]model.LedgerEntry, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, item_id, delta, balance_after, reason, reference_id, reference_number,
		        actor_id, note, created_at
		 FROM ledger_entries
		 WHERE reason = ? AND reference_id = ?
		 ORDER BY id`, reason, referenceID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing reference entries: %w", err)
	}
	defer rows.Close()

	return scanLedgerEntries(rows)
}

func scanLedgerEntries(rows *sql.Rows) ([]model.LedgerEntry, error) {
	var entries []model.LedgerEntry
	for rows.Next() {
		var e model.LedgerEntry
		var note sql.NullString
		if err := rows.Scan(&e.ID, &e.ItemID, &e.Delta, &e.BalanceAfter, &e.Reason, &e.ReferenceID,
			&e.ReferenceNumber, &e.ActorID, &note, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning ledger entry: %w", err)
		}
		e.Note = note.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ListBalances returns the ledger-derived balance of every active item.
func ListBalances(ctx context.Context, q Querier) ([]model.ItemBalance, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT i.id, i.name, i.unit, i.minimum_stock,
		        COALESCE((SELECT SUM(e.delta) FROM ledger_entries e WHERE e.item_id = i.id), 0)
		 FROM items i
		 WHERE i.deleted_at IS NULL
		 ORDER BY i.name, i.id`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing balances: %w", err)
	}
	defer rows.Close()

	var balances []model.ItemBalance
	for rows.Next() {
		var b model.ItemBalance
		if err := rows.Scan(&b.ItemID, &b.ItemName, &b.Unit, &b.MinimumStock, &b.Balance); err != nil {
			return nil, fmt.Errorf("scanning balance: %w", err)
		}
		balances = append(balances, b)
	}
	return balances, rows.Err()
}

// ReconcileBalances recomputes every cached balance from the ledger and
// returns the ids of items whose cache had drifted.
func ReconcileBalances(ctx context.Context, db *sql.DB) ([]int64, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT e.item_id, SUM(e.delta), MAX(e.id), b.balance, b.last_entry_id
		 FROM ledger_entries e
		 LEFT JOIN ledger_balances b ON b.item_id = e.item_id
		 GROUP BY e.item_id
		 ORDER BY e.item_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("comparing balances: %w", err)
	}

	type drift struct {
		itemID  int64
		balance int
		lastID  int64
	}
	var drifted []drift
	for rows.Next() {
		var d drift
		var cached, cachedLast sql.NullInt64
		if err := rows.Scan(&d.itemID, &d.balance, &d.lastID, &cached, &cachedLast); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning balance comparison: %w", err)
		}
		if !cached.Valid || cached.Int64 != int64(d.balance) || cachedLast.Int64 != d.lastID {
			drifted = append(drifted, d)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("comparing balances: %w", err)
	}
	rows.Close()

	var repaired []int64
	for _, d := range drifted {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO ledger_balances (item_id, balance, last_entry_id) VALUES (?, ?, ?)
			 ON CONFLICT (item_id) DO UPDATE SET balance = excluded.balance, last_entry_id = excluded.last_entry_id`,
			d.itemID, d.balance, d.lastID,
		)
		if err != nil {
			return nil, fmt.Errorf("repairing balance of item %d: %w", d.itemID, err)
		}
		repaired = append(repaired, d.itemID)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing reconciliation: %w", err)
	}
	return repaired, nil
}
