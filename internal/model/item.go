package model

import "time"

// Item is a stockable catalog entry. Its quantity is never stored here; it is
// derived from the ledger.
type Item struct {
	ID           int64      `json:"id"`
	Name         string     `json:"name"`
	Unit         string     `json:"unit"`
	MinimumStock int        `json:"minimum_stock"`
	Description  string     `json:"description,omitempty"`
	ImageMime    string     `json:"image_mime,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}

// ItemBalance is an item together with its ledger-derived quantity.
type ItemBalance struct {
	ItemID       int64  `json:"item_id"`
	ItemName     string `json:"item_name"`
	Unit         string `json:"unit"`
	MinimumStock int    `json:"minimum_stock"`
	Balance      int    `json:"balance"`
}

// BelowMinimum reports whether the balance has dropped under the item's minimum stock.
func (b ItemBalance) BelowMinimum() bool {
	return b.Balance < b.MinimumStock
}
