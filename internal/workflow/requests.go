package workflow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/atkgudang/persediaan/internal/lock"
	"github.com/atkgudang/persediaan/internal/model"
	"github.com/atkgudang/persediaan/internal/store"
)

// RequestLineInput is one item asked for in a new request.
type RequestLineInput struct {
	ItemID   int64
	Quantity int
}

// DistributeLine sets jumlah_diberikan for one request detail.
type DistributeLine struct {
	DetailID int64
	Quantity int
}

// ReturnLine sends part of a distributed detail back to stock.
type ReturnLine struct {
	DetailID int64
	Quantity int
}

// CreateRequest files a pending request. Each line is checked against the
// current balance, but nothing is reserved until distribution.
func (e *Engine) CreateRequest(ctx context.Context, requesterID int64, lines []RequestLineInput, note string) (*model.Request, error) {
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

		var short []error
		for _, l := range lines {
			balance, err := store.CurrentBalance(ctx, tx, l.ItemID)
			if err != nil {
				return err
			}
			if l.Quantity > balance {
				short = append(short, &store.StockError{ItemID: l.ItemID, Available: balance, Delta: -l.Quantity})
			}
		}
		if len(short) > 0 {
			return errors.Join(short...)
		}

		var err error
		number, err = store.NextNumber(ctx, tx, store.PrefixRequest)
		if err != nil {
			return err
		}
		id, err = store.InsertRequest(ctx, tx, number, requesterID, note, at)
		if err != nil {
			return err
		}
		for _, l := range lines {
			if _, err := store.InsertRequestDetail(ctx, tx, id, l.ItemID, l.Quantity); err != nil {
				return err
			}
		}
		return e.recordTransition(ctx, tx, model.EntityRequest, id, "", string(model.RequestPending), requesterID, note, at)
	})
	if err != nil {
		return nil, err
	}

	e.Log.Info("request created", "number", number, "lines", len(lines), "actor", requesterID)
	return e.GetRequest(ctx, id)
}

// ApproveL1 records the first approval.
func (e *Engine) ApproveL1(ctx context.Context, id, approverID int64) (*model.Request, error) {
	return e.advanceRequest(ctx, id, approverID, model.ActionApproveL1, "", false, nil)
}

// ApproveL2 records the second approval.
func (e *Engine) ApproveL2(ctx context.Context, id, approverID int64) (*model.Request, error) {
	return e.advanceRequest(ctx, id, approverID, model.ActionApproveL2, "", false, nil)
}

// ApproveL3 records the final approval and fixes jumlah_disetujui per detail.
// Details missing from approved get their requested quantity.
func (e *Engine) ApproveL3(ctx context.Context, id, approverID int64, approved map[int64]int) (*model.Request, error) {
	return e.advanceRequest(ctx, id, approverID, model.ActionApproveL3, "", false,
		func(ctx context.Context, tx *sql.Tx, r *model.Request) error {
			if err := unknownLines(approved, detailIDs(r)); err != nil {
				return err
			}

			var bad []error
			for _, d := range r.Details {
				qty, ok := approved[d.ID]
				if !ok {
					qty = d.JumlahDiminta
				}
				if qty < 0 || qty > d.JumlahDiminta {
					bad = append(bad, &store.QuantityError{
						Kind:     store.ErrInvalidApprovedQuantity,
						LineID:   d.ID,
						Quantity: qty,
						Limit:    d.JumlahDiminta,
					})
					continue
				}
				if err := store.SetApprovedQuantity(ctx, tx, d.ID, qty); err != nil {
					return err
				}
			}
			return errors.Join(bad...)
		})
}

// Reject ends a request before final approval.
func (e *Engine) Reject(ctx context.Context, id, approverID int64, reason string) (*model.Request, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, fmt.Errorf("rejection reason is required: %w", store.ErrInvalidInput)
	}
	return e.advanceRequest(ctx, id, approverID, model.ActionReject, reason, false,
		func(ctx context.Context, tx *sql.Tx, r *model.Request) error {
			return store.SetRejectionReason(ctx, tx, r.ID, reason)
		})
}

// Distribute hands out an approved request and deducts stock. Details
// missing from lines get their approved quantity. If any item lacks stock
// nothing is posted and the request stays ApprovedL3.
func (e *Engine) Distribute(ctx context.Context, id, actorID int64, lines []DistributeLine) (*model.Request, error) {
	given := make(map[int64]int, len(lines))
	for _, l := range lines {
		if _, dup := given[l.DetailID]; dup {
			return nil, fmt.Errorf("detail %d listed twice: %w", l.DetailID, store.ErrInvalidInput)
		}
		given[l.DetailID] = l.Quantity
	}

	return e.advanceRequest(ctx, id, actorID, model.ActionDistribute, "", true,
		func(ctx context.Context, tx *sql.Tx, r *model.Request) error {
			if err := unknownLines(given, detailIDs(r)); err != nil {
				return err
			}

			quantities := make([]int, len(r.Details))
			var bad []error
			for i, d := range r.Details {
				qty, ok := given[d.ID]
				if !ok {
					qty = d.Approved()
				}
				if qty < 0 || qty > d.Approved() {
					bad = append(bad, &store.QuantityError{
						Kind:     store.ErrInvalidDistributedQuantity,
						LineID:   d.ID,
						Quantity: qty,
						Limit:    d.Approved(),
					})
				}
				quantities[i] = qty
			}
			if len(bad) > 0 {
				return errors.Join(bad...)
			}

			at := e.now()
			var short []error
			for i, d := range r.Details {
				if quantities[i] > 0 {
					_, err := store.PostLedger(ctx, tx, store.LedgerPost{
						ItemID:          d.ItemID,
						Delta:           -quantities[i],
						Reason:          model.ReasonRequestDistribution,
						ReferenceID:     r.ID,
						ReferenceNumber: r.Number,
						ActorID:         &actorID,
						At:              at,
					})
					var se *store.StockError
					if errors.As(err, &se) {
						short = append(short, se)
						continue
					}
					if err != nil {
						return err
					}
				}
				if err := store.SetGivenQuantity(ctx, tx, d.ID, quantities[i]); err != nil {
					return err
				}
			}
			return errors.Join(short...)
		})
}

// ConfirmReceive records that the requester has the goods. Stock was already
// deducted at distribution.
func (e *Engine) ConfirmReceive(ctx context.Context, id, requesterID int64) (*model.Request, error) {
	return e.advanceRequest(ctx, id, requesterID, model.ActionReceive, "", false, nil)
}

// ReturnItems puts unused goods from a received request back into stock.
// The request stays Received.
func (e *Engine) ReturnItems(ctx context.Context, id, actorID int64, lines []ReturnLine) (*model.Request, error) {
	returned := make(map[int64]int, len(lines))
	for _, l := range lines {
		if _, dup := returned[l.DetailID]; dup {
			return nil, fmt.Errorf("detail %d listed twice: %w", l.DetailID, store.ErrInvalidInput)
		}
		returned[l.DetailID] = l.Quantity
	}
	if len(returned) == 0 {
		return nil, fmt.Errorf("at least one line is required: %w", store.ErrInvalidInput)
	}

	r, err := e.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}

	keys := []string{lock.EntityKey(model.EntityRequest, id)}
	keys = append(keys, itemKeys(requestItemIDs(r)...)...)

	total := 0
	err = e.run(ctx, keys, func(tx *sql.Tx) error {
		cur, err := store.GetRequest(ctx, tx, id)
		if err != nil {
			return err
		}
		if cur.Status != model.RequestReceived {
			return &store.TransitionError{Entity: model.EntityRequest, ID: id, From: string(cur.Status), Action: "return"}
		}
		if err := unknownLines(returned, detailIDs(cur)); err != nil {
			return err
		}

		var bad []error
		for _, d := range cur.Details {
			qty, ok := returned[d.ID]
			if ok && (qty <= 0 || qty > d.Returnable()) {
				bad = append(bad, &store.QuantityError{
					Kind:     store.ErrInvalidReturnQuantity,
					LineID:   d.ID,
					Quantity: qty,
					Limit:    d.Returnable(),
				})
			}
		}
		if len(bad) > 0 {
			return errors.Join(bad...)
		}

		at := e.now()
		for _, d := range cur.Details {
			qty, ok := returned[d.ID]
			if !ok {
				continue
			}
			_, err := store.PostLedger(ctx, tx, store.LedgerPost{
				ItemID:          d.ItemID,
				Delta:           qty,
				Reason:          model.ReasonRequestReturn,
				ReferenceID:     cur.ID,
				ReferenceNumber: cur.Number,
				ActorID:         &actorID,
				At:              at,
			})
			if err != nil {
				return err
			}
			if err := store.AddReturnedQuantity(ctx, tx, d.ID, qty); err != nil {
				return err
			}
			total += qty
		}

		status := string(model.RequestReceived)
		return e.recordTransition(ctx, tx, model.EntityRequest, id, status, status, actorID,
			fmt.Sprintf("returned %d units", total), at)
	})
	if err != nil {
		return nil, err
	}

	e.Log.Info("request items returned", "number", r.Number, "units", total, "actor", actorID)
	return e.GetRequest(ctx, id)
}

// GetRequest returns a request with its details.
func (e *Engine) GetRequest(ctx context.Context, id int64) (*model.Request, error) {
	r, err := store.GetRequest(ctx, e.DB, id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, fmt.Errorf("request %d: %w", id, store.ErrNotFound)
	}
	return r, nil
}

// ListRequests returns request headers matching f.
func (e *Engine) ListRequests(ctx context.Context, f store.RequestFilter) ([]model.Request, error) {
	requests, err := store.ListRequests(ctx, e.DB, f)
	if err != nil {
		return nil, err
	}
	if requests == nil {
		requests = []model.Request{}
	}
	return requests, nil
}

type requestApply func(ctx context.Context, tx *sql.Tx, r *model.Request) error

// advanceRequest performs one transition from the table in model. apply runs
// inside the transaction before the status changes; withItems also takes the
// locks of the request's items.
func (e *Engine) advanceRequest(ctx context.Context, id, actorID int64, action model.RequestAction, note string, withItems bool, apply requestApply) (*model.Request, error) {
	r, err := e.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}

	keys := []string{lock.EntityKey(model.EntityRequest, id)}
	if withItems {
		keys = append(keys, itemKeys(requestItemIDs(r)...)...)
	}

	var from, to model.RequestStatus
	err = e.run(ctx, keys, func(tx *sql.Tx) error {
		cur, err := store.GetRequest(ctx, tx, id)
		if err != nil {
			return err
		}
		next, ok := model.NextRequestStatus(cur.Status, action)
		if !ok {
			return &store.TransitionError{Entity: model.EntityRequest, ID: id, From: string(cur.Status), Action: string(action)}
		}

		if apply != nil {
			if err := apply(ctx, tx, cur); err != nil {
				return err
			}
		}

		at := e.now()
		if err := store.UpdateRequestStatus(ctx, tx, id, cur.Status, next, actorID, at); err != nil {
			return err
		}
		from, to = cur.Status, next
		return e.recordTransition(ctx, tx, model.EntityRequest, id, string(from), string(to), actorID, note, at)
	})
	if err != nil {
		return nil, err
	}

	e.Log.Info("request transition", "number", r.Number, "from", from, "status", to, "actor", actorID)
	return e.GetRequest(ctx, id)
}

func detailIDs(r *model.Request) []int64 {
	ids := make([]int64, 0, len(r.Details))
	for _, d := range r.Details {
		ids = append(ids, d.ID)
	}
	return ids
}

func requestItemIDs(r *model.Request) []int64 {
	ids := make([]int64, 0, len(r.Details))
	for _, d := range r.Details {
		ids = append(ids, d.ItemID)
	}
	return ids
}
