package workflow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"

	"github.com/atkgudang/persediaan/internal/lock"
	"github.com/atkgudang/persediaan/internal/model"
	"github.com/atkgudang/persediaan/internal/store"
)

// CreateOpname opens a stock count and freezes each item's current balance
// as its system quantity. An empty itemIDs counts every active item.
func (e *Engine) CreateOpname(ctx context.Context, actorID int64, itemIDs []int64, note string) (*model.StockOpname, error) {
	if len(itemIDs) == 0 {
		items, err := store.ListItems(ctx, e.DB, "")
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			itemIDs = append(itemIDs, item.ID)
		}
		if len(itemIDs) == 0 {
			return nil, fmt.Errorf("no items to count: %w", store.ErrInvalidInput)
		}
	}
	if err := uniqueItems(itemIDs); err != nil {
		return nil, err
	}
	itemIDs = slices.Clone(itemIDs)
	slices.Sort(itemIDs)

	at := e.now()
	var id int64
	var number string

	err := e.run(ctx, itemKeys(itemIDs...), func(tx *sql.Tx) error {
		if err := checkItems(ctx, tx, itemIDs); err != nil {
			return err
		}

		var err error
		number, err = store.NextNumber(ctx, tx, store.PrefixOpname)
		if err != nil {
			return err
		}
		id, err = store.InsertOpname(ctx, tx, number, note, actorID, at)
		if err != nil {
			return err
		}
		for _, itemID := range itemIDs {
			balance, err := store.CurrentBalance(ctx, tx, itemID)
			if err != nil {
				return err
			}
			if _, err := store.InsertOpnameLine(ctx, tx, id, itemID, balance); err != nil {
				return err
			}
		}
		return e.recordTransition(ctx, tx, model.EntityOpname, id, "", string(model.OpnameDraft), actorID, note, at)
	})
	if err != nil {
		return nil, err
	}

	e.Log.Info("opname created", "number", number, "items", len(itemIDs), "actor", actorID)
	return e.GetOpname(ctx, id)
}

// RecordCount stores the physical count of every line and its variance
// against the frozen system quantity.
func (e *Engine) RecordCount(ctx context.Context, id, actorID int64, counted map[int64]int) (*model.StockOpname, error) {
	o, err := e.GetOpname(ctx, id)
	if err != nil {
		return nil, err
	}

	err = e.run(ctx, []string{lock.EntityKey(model.EntityOpname, id)}, func(tx *sql.Tx) error {
		cur, err := store.GetOpname(ctx, tx, id)
		if err != nil {
			return err
		}
		if cur.Status != model.OpnameDraft {
			return &store.TransitionError{Entity: model.EntityOpname, ID: id, From: string(cur.Status), Action: "count"}
		}
		if err := unknownLines(counted, opnameLineIDs(cur)); err != nil {
			return err
		}

		var bad []error
		for _, l := range cur.Lines {
			qty, ok := counted[l.ID]
			if !ok {
				bad = append(bad, fmt.Errorf("line %d (%s) was not counted: %w", l.ID, l.ItemName, store.ErrInvalidInput))
				continue
			}
			if qty < 0 {
				bad = append(bad, fmt.Errorf("line %d: counted quantity %d: %w", l.ID, qty, store.ErrInvalidInput))
				continue
			}
			if err := store.SetCountedQuantity(ctx, tx, l.ID, qty, qty-l.SystemQuantity); err != nil {
				return err
			}
		}
		if len(bad) > 0 {
			return errors.Join(bad...)
		}

		at := e.now()
		if err := store.UpdateOpnameStatus(ctx, tx, id, model.OpnameDraft, model.OpnameCounted, actorID, at); err != nil {
			return err
		}
		return e.recordTransition(ctx, tx, model.EntityOpname, id,
			string(model.OpnameDraft), string(model.OpnameCounted), actorID, "", at)
	})
	if err != nil {
		return nil, err
	}

	e.Log.Info("opname counted", "number", o.Number, "actor", actorID)
	return e.GetOpname(ctx, id)
}

// ApproveOpname posts every non-zero variance to the ledger. If any item's
// balance moved since the snapshot the approval fails with ErrStaleSnapshot
// and nothing is posted.
func (e *Engine) ApproveOpname(ctx context.Context, id, approverID int64) (*model.StockOpname, error) {
	o, err := e.GetOpname(ctx, id)
	if err != nil {
		return nil, err
	}

	keys := []string{lock.EntityKey(model.EntityOpname, id)}
	for _, l := range o.Lines {
		keys = append(keys, lock.ItemKey(l.ItemID))
	}

	posted := 0
	err = e.run(ctx, keys, func(tx *sql.Tx) error {
		cur, err := store.GetOpname(ctx, tx, id)
		if err != nil {
			return err
		}
		if cur.Status != model.OpnameCounted {
			return &store.TransitionError{Entity: model.EntityOpname, ID: id, From: string(cur.Status), Action: "approve"}
		}

		var stale []error
		for _, l := range cur.Lines {
			live, err := store.CurrentBalance(ctx, tx, l.ItemID)
			if err != nil {
				return err
			}
			if live != l.SystemQuantity {
				stale = append(stale, &store.SnapshotError{ItemID: l.ItemID, SystemQuantity: l.SystemQuantity, LiveQuantity: live})
			}
		}
		if len(stale) > 0 {
			return errors.Join(stale...)
		}

		at := e.now()
		for _, l := range cur.Lines {
			if l.VarianceValue() == 0 {
				continue
			}
			_, err := store.PostLedger(ctx, tx, store.LedgerPost{
				ItemID:          l.ItemID,
				Delta:           l.VarianceValue(),
				Reason:          model.ReasonOpnameAdjustment,
				ReferenceID:     cur.ID,
				ReferenceNumber: cur.Number,
				ActorID:         &approverID,
				At:              at,
			})
			if err != nil {
				return err
			}
			posted++
		}

		if err := store.UpdateOpnameStatus(ctx, tx, id, model.OpnameCounted, model.OpnameApproved, approverID, at); err != nil {
			return err
		}
		return e.recordTransition(ctx, tx, model.EntityOpname, id,
			string(model.OpnameCounted), string(model.OpnameApproved), approverID, "", at)
	})
	if err != nil {
		return nil, err
	}

	e.Log.Info("opname approved", "number", o.Number, "adjustments", posted, "actor", approverID)
	return e.GetOpname(ctx, id)
}

// GetOpname returns a stock count with its lines.
func (e *Engine) GetOpname(ctx context.Context, id int64) (*model.StockOpname, error) {
	o, err := store.GetOpname(ctx, e.DB, id)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, fmt.Errorf("opname %d: %w", id, store.ErrNotFound)
	}
	return o, nil
}

// ListOpnames returns stock count headers, optionally by status.
func (e *Engine) ListOpnames(ctx context.Context, status model.OpnameStatus) ([]model.StockOpname, error) {
	opnames, err := store.ListOpnames(ctx, e.DB, status)
	if err != nil {
		return nil, err
	}
	if opnames == nil {
		opnames = []model.StockOpname{}
	}
	return opnames, nil
}

func opnameLineIDs(o *model.StockOpname) []int64 {
	ids := make([]int64, 0, len(o.Lines))
	for _, l := range o.Lines {
		ids = append(ids, l.ID)
	}
	return ids
}
