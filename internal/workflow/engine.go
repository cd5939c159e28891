// Package workflow runs the request, purchase and stock-count state machines
// on top of the item ledger.
//
// Every operation that changes stock takes the entity's lock, then the locks
// of the items it touches, then runs one SQL transaction. A failed operation
// leaves no status change and no ledger entry behind.
package workflow

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/atkgudang/persediaan/internal/lock"
	"github.com/atkgudang/persediaan/internal/model"
	"github.com/atkgudang/persediaan/internal/store"
)

// Engine coordinates workflow transitions and ledger posts.
type Engine struct {
	DB    *sql.DB
	Locks lock.Locker
	Log   *slog.Logger
	Now   func() time.Time
}

// New returns an engine. A nil locker uses an in-process one and a nil logger
// uses slog.Default().
func New(db *sql.DB, locks lock.Locker, log *slog.Logger) *Engine {
	if locks == nil {
		locks = lock.NewLocal()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		DB:    db,
		Locks: locks,
		Log:   log,
		Now:   time.Now,
	}
}

func (e *Engine) now() time.Time {
	return e.Now().UTC()
}

// run holds keys for the duration of one transaction. fn's error aborts the
// transaction; the locks are released before run returns.
func (e *Engine) run(ctx context.Context, keys []string, fn func(tx *sql.Tx) error) error {
	if len(keys) > 0 {
		unlock, err := e.Locks.Lock(ctx, keys...)
		if err != nil {
			return err
		}
		defer unlock()
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// itemKeys returns the lock keys for a set of items.
func itemKeys(ids ...int64) []string {
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, lock.ItemKey(id))
	}
	return keys
}

// checkItems verifies every item exists and has not been deleted.
func checkItems(ctx context.Context, q store.Querier, ids []int64) error {
	for _, id := range ids {
		item, err := store.GetItem(ctx, q, id)
		if err != nil {
			return err
		}
		if item == nil || item.DeletedAt != nil {
			return fmt.Errorf("item %d: %w", id, store.ErrNotFound)
		}
	}
	return nil
}

// uniqueItems rejects empty line sets and lines naming the same item twice.
func uniqueItems(ids []int64) error {
	if len(ids) == 0 {
		return fmt.Errorf("at least one line is required: %w", store.ErrInvalidInput)
	}
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			return fmt.Errorf("item %d listed twice: %w", id, store.ErrInvalidInput)
		}
		seen[id] = true
	}
	return nil
}

// unknownLines reports ids in given that are not in known.
func unknownLines[V any](given map[int64]V, known []int64) error {
	var extra []int64
	for id := range given {
		if !slices.Contains(known, id) {
			extra = append(extra, id)
		}
	}
	if len(extra) == 0 {
		return nil
	}
	slices.Sort(extra)
	return fmt.Errorf("lines %v do not belong to this document: %w", extra, store.ErrInvalidInput)
}

func (e *Engine) recordTransition(ctx context.Context, tx *sql.Tx, entity string, id int64, from, to string, actorID int64, note string, at time.Time) error {
	return store.RecordStatusChange(ctx, tx, model.StatusChange{
		EntityType: entity,
		EntityID:   id,
		FromStatus: from,
		ToStatus:   to,
		ActorID:    &actorID,
		Note:       note,
		CreatedAt:  at,
	})
}

// CurrentBalance returns an item's ledger-derived stock.
func (e *Engine) CurrentBalance(ctx context.Context, itemID int64) (int, error) {
	item, err := store.GetItem(ctx, e.DB, itemID)
	if err != nil {
		return 0, err
	}
	if item == nil {
		return 0, fmt.Errorf("item %d: %w", itemID, store.ErrNotFound)
	}
	return store.CurrentBalance(ctx, e.DB, itemID)
}

// LedgerHistory returns an item's ledger entries created in [from, to). Zero
// times leave that bound open.
func (e *Engine) LedgerHistory(ctx context.Context, itemID int64, from, to time.Time) ([]model.LedgerEntry, error) {
	item, err := store.GetItem(ctx, e.DB, itemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, fmt.Errorf("item %d: %w", itemID, store.ErrNotFound)
	}
	entries, err := store.LedgerHistory(ctx, e.DB, itemID, from, to)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []model.LedgerEntry{}
	}
	return entries, nil
}

// StatusHistory returns the recorded transitions of a workflow entity.
func (e *Engine) StatusHistory(ctx context.Context, entity string, id int64) ([]model.StatusChange, error) {
	changes, err := store.ListStatusHistory(ctx, e.DB, entity, id)
	if err != nil {
		return nil, err
	}
	if changes == nil {
		changes = []model.StatusChange{}
	}
	return changes, nil
}

// ReconcileBalances rebuilds drifted cached balances from the ledger.
func (e *Engine) ReconcileBalances(ctx context.Context) ([]int64, error) {
	repaired, err := store.ReconcileBalances(ctx, e.DB)
	if err != nil {
		return nil, err
	}
	if len(repaired) > 0 {
		e.Log.Warn("repaired cached balances", "items", repaired)
	}
	return repaired, nil
}
