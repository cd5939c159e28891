package workflow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/atkgudang/persediaan/internal/lock"
	"github.com/atkgudang/persediaan/internal/model"
	"github.com/atkgudang/persediaan/internal/store"
)

// PurchaseLineInput is one item ordered in a new purchase.
type PurchaseLineInput struct {
	ItemID   int64
	Quantity int
}

// CreatePurchase opens a draft purchase.
func (e *Engine) CreatePurchase(ctx context.Context, actorID int64, supplier string, lines []PurchaseLineInput, note string) (*model.Purchase, error) {
	ids := make([]int64, 0, len(lines))
	for _, l := range lines {
		if l.Quantity <= 0 {
			return nil, fmt.Errorf("item %d: quantity must be positive: %w", l.ItemID, store.ErrInvalidInput)
		}
		ids = append(ids, l.ItemID)
	}
	if err := uniqueItems(ids); err != nil {
		return nil, err
	}

	at := e.now()
	var id int64
	var number string

	err := e.run(ctx, nil, func(tx *sql.Tx) error {
		if err := checkItems(ctx, tx, ids); err != nil {
			return err
		}

		var err error
		number, err = store.NextNumber(ctx, tx, store.PrefixPurchase)
		if err != nil {
			return err
		}
		id, err = store.InsertPurchase(ctx, tx, number, supplier, note, actorID, at)
		if err != nil {
			return err
		}
		for _, l := range lines {
			if _, err := store.InsertPurchaseLine(ctx, tx, id, l.ItemID, l.Quantity); err != nil {
				return err
			}
		}
		return e.recordTransition(ctx, tx, model.EntityPurchase, id, "", string(model.PurchaseDraft), actorID, note, at)
	})
	if err != nil {
		return nil, err
	}

	e.Log.Info("purchase created", "number", number, "lines", len(lines), "actor", actorID)
	return e.GetPurchase(ctx, id)
}

// ReceivePurchase records what arrived. Lines missing from received get their
// ordered quantity. Stock is not touched until the purchase is completed.
func (e *Engine) ReceivePurchase(ctx context.Context, id, actorID int64, received map[int64]int) (*model.Purchase, error) {
	p, err := e.GetPurchase(ctx, id)
	if err != nil {
		return nil, err
	}

	err = e.run(ctx, []string{lock.EntityKey(model.EntityPurchase, id)}, func(tx *sql.Tx) error {
		cur, err := store.GetPurchase(ctx, tx, id)
		if err != nil {
			return err
		}
		if cur.Status != model.PurchaseDraft {
			return &store.TransitionError{Entity: model.EntityPurchase, ID: id, From: string(cur.Status), Action: "receive"}
		}
		if err := unknownLines(received, purchaseLineIDs(cur)); err != nil {
			return err
		}

		for _, l := range cur.Lines {
			qty, ok := received[l.ID]
			if !ok {
				qty = l.QuantityOrdered
			}
			if qty < 0 {
				return fmt.Errorf("line %d: received quantity %d: %w", l.ID, qty, store.ErrInvalidInput)
			}
			if err := store.SetReceivedQuantity(ctx, tx, l.ID, qty); err != nil {
				return err
			}
		}

		at := e.now()
		if err := store.UpdatePurchaseStatus(ctx, tx, id, model.PurchaseDraft, model.PurchaseReceived, actorID, at); err != nil {
			return err
		}
		return e.recordTransition(ctx, tx, model.EntityPurchase, id,
			string(model.PurchaseDraft), string(model.PurchaseReceived), actorID, "", at)
	})
	if err != nil {
		return nil, err
	}

	e.Log.Info("purchase received", "number", p.Number, "actor", actorID)
	return e.GetPurchase(ctx, id)
}

// CompletePurchase credits the received quantities to stock. Completing an
// already completed purchase posts nothing and returns the purchase together
// with ErrAlreadyCompleted.
func (e *Engine) CompletePurchase(ctx context.Context, id, actorID int64) (*model.Purchase, error) {
	p, err := e.GetPurchase(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Status == model.PurchaseCompleted {
		return p, store.ErrAlreadyCompleted
	}

	keys := []string{lock.EntityKey(model.EntityPurchase, id)}
	for _, l := range p.Lines {
		keys = append(keys, lock.ItemKey(l.ItemID))
	}

	posted := 0
	err = e.run(ctx, keys, func(tx *sql.Tx) error {
		cur, err := store.GetPurchase(ctx, tx, id)
		if err != nil {
			return err
		}
		switch cur.Status {
		case model.PurchaseCompleted:
			return store.ErrAlreadyCompleted
		case model.PurchaseReceived:
		default:
			return &store.TransitionError{Entity: model.EntityPurchase, ID: id, From: string(cur.Status), Action: "complete"}
		}

		at := e.now()
		for _, l := range cur.Lines {
			if l.Received() == 0 {
				continue
			}
			_, err := store.PostLedger(ctx, tx, store.LedgerPost{
				ItemID:          l.ItemID,
				Delta:           l.Received(),
				Reason:          model.ReasonPurchaseReceipt,
				ReferenceID:     cur.ID,
				ReferenceNumber: cur.Number,
				ActorID:         &actorID,
				At:              at,
			})
			if err != nil {
				return err
			}
			posted++
		}

		if err := store.UpdatePurchaseStatus(ctx, tx, id, model.PurchaseReceived, model.PurchaseCompleted, actorID, at); err != nil {
			return err
		}
		return e.recordTransition(ctx, tx, model.EntityPurchase, id,
			string(model.PurchaseReceived), string(model.PurchaseCompleted), actorID, "", at)
	})
	if errors.Is(err, store.ErrAlreadyCompleted) {
		p, gerr := e.GetPurchase(ctx, id)
		if gerr != nil {
			return nil, gerr
		}
		return p, err
	}
	if err != nil {
		return nil, err
	}

	e.Log.Info("purchase completed", "number", p.Number, "entries", posted, "actor", actorID)
	return e.GetPurchase(ctx, id)
}

// GetPurchase returns a purchase with its lines.
func (e *Engine) GetPurchase(ctx context.Context, id int64) (*model.Purchase, error) {
	p, err := store.GetPurchase(ctx, e.DB, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("purchase %d: %w", id, store.ErrNotFound)
	}
	return p, nil
}

// ListPurchases returns purchase headers, optionally by status.
func (e *Engine) ListPurchases(ctx context.Context, status model.PurchaseStatus) ([]model.Purchase, error) {
	purchases, err := store.ListPurchases(ctx, e.DB, status)
	if err != nil {
		return nil, err
	}
	if purchases == nil {
		purchases = []model.Purchase{}
	}
	return purchases, nil
}

func purchaseLineIDs(p *model.Purchase) []int64 {
	ids := make([]int64, 0, len(p.Lines))
	for _, l := range p.Lines {
		ids = append(ids, l.ID)
	}
	return ids
}
