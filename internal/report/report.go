// Package report assembles the data behind printed stock documents. It does
// not render anything.
package report

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atkgudang/persediaan/internal/model"
	"github.com/atkgudang/persediaan/internal/store"
)

// StockCard is the ledger of one item over a period.
type StockCard struct {
	Item           model.Item          `json:"item"`
	From           *time.Time          `json:"from,omitempty"`
	To             *time.Time          `json:"to,omitempty"`
	OpeningBalance int                 `json:"opening_balance"`
	Entries        []model.LedgerEntry `json:"entries"`
	TotalIn        int                 `json:"total_in"`
	TotalOut       int                 `json:"total_out"`
	ClosingBalance int                 `json:"closing_balance"`
}

// BuildStockCard collects an item's entries in [from, to). Zero times leave
// that bound open.
func BuildStockCard(ctx context.Context, db *sql.DB, itemID int64, from, to time.Time) (*StockCard, error) {
	item, err := store.GetItem(ctx, db, itemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, fmt.Errorf("item %d: %w", itemID, store.ErrNotFound)
	}
	if !from.IsZero() && !to.IsZero() && !from.Before(to) {
		return nil, fmt.Errorf("period start must be before its end: %w", store.ErrInvalidInput)
	}

	card := &StockCard{Item: *item, Entries: []model.LedgerEntry{}}
	if !from.IsZero() {
		f := from.UTC()
		card.From = &f
		card.OpeningBalance, err = store.BalanceBefore(ctx, db, itemID, from)
		if err != nil {
			return nil, err
		}
	}
	if !to.IsZero() {
		t := to.UTC()
		card.To = &t
	}

	entries, err := store.LedgerHistory(ctx, db, itemID, from, to)
	if err != nil {
		return nil, err
	}
	if entries != nil {
		card.Entries = entries
	}

	card.ClosingBalance = card.OpeningBalance
	for _, e := range card.Entries {
		if e.Delta > 0 {
			card.TotalIn += e.Delta
		} else {
			card.TotalOut -= e.Delta
		}
		card.ClosingBalance += e.Delta
	}
	return card, nil
}

// Reconciliation summarises an approved stock count.
type Reconciliation struct {
	Opname        model.StockOpname    `json:"opname"`
	Lines         []ReconciliationLine `json:"lines"`
	TotalSystem   int                  `json:"total_system"`
	TotalCounted  int                  `json:"total_counted"`
	TotalSurplus  int                  `json:"total_surplus"`
	TotalShortage int                  `json:"total_shortage"`
	Accuracy      decimal.Decimal      `json:"accuracy_percent"`
}

// ReconciliationLine is one counted item.
type ReconciliationLine struct {
	ItemID          int64           `json:"item_id"`
	ItemName        string          `json:"item_name"`
	Unit            string          `json:"unit"`
	SystemQuantity  int             `json:"system_quantity"`
	CountedQuantity int             `json:"counted_quantity"`
	Variance        int             `json:"variance"`
	VariancePercent decimal.Decimal `json:"variance_percent"`
}

var hundred = decimal.NewFromInt(100)

// variancePercent is variance relative to the system quantity, rounded to two
// places. A count found where the system expected nothing is reported as 100%.
func variancePercent(system, variance int) decimal.Decimal {
	if variance == 0 {
		return decimal.Zero
	}
	if system == 0 {
		return hundred
	}
	return decimal.NewFromInt(int64(variance)).
		Mul(hundred).
		Div(decimal.NewFromInt(int64(system))).
		Round(2)
}

// BuildReconciliation returns the reconciliation of an approved stock count.
func BuildReconciliation(ctx context.Context, db *sql.DB, opnameID int64) (*Reconciliation, error) {
	o, err := store.GetOpname(ctx, db, opnameID)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, fmt.Errorf("opname %d: %w", opnameID, store.ErrNotFound)
	}
	if o.Status != model.OpnameApproved {
		return nil, &store.TransitionError{Entity: model.EntityOpname, ID: o.ID, From: string(o.Status), Action: "report"}
	}

	r := &Reconciliation{Opname: *o, Lines: make([]ReconciliationLine, 0, len(o.Lines))}
	matched := 0
	for _, l := range o.Lines {
		counted := 0
		if l.CountedQuantity != nil {
			counted = *l.CountedQuantity
		}
		v := l.VarianceValue()

		r.Lines = append(r.Lines, ReconciliationLine{
			ItemID:          l.ItemID,
			ItemName:        l.ItemName,
			Unit:            l.Unit,
			SystemQuantity:  l.SystemQuantity,
			CountedQuantity: counted,
			Variance:        v,
			VariancePercent: variancePercent(l.SystemQuantity, v),
		})

		r.TotalSystem += l.SystemQuantity
		r.TotalCounted += counted
		switch {
		case v > 0:
			r.TotalSurplus += v
		case v < 0:
			r.TotalShortage -= v
		default:
			matched++
		}
	}

	r.Accuracy = hundred
	if len(o.Lines) > 0 {
		r.Accuracy = decimal.NewFromInt(int64(matched)).
			Mul(hundred).
			Div(decimal.NewFromInt(int64(len(o.Lines)))).
			Round(2)
	}
	return r, nil
}
