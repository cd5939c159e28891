package model

import "time"

// OpnameStatus is the state of a physical stock count.
type OpnameStatus string

// Opname statuses.
const (
	OpnameDraft    OpnameStatus = "draft"
	OpnameCounted  OpnameStatus = "counted"
	OpnameApproved OpnameStatus = "approved"
)

// StockOpname is a physical count reconciled against the ledger.
type StockOpname struct {
	ID         int64        `json:"id"`
	Number     string       `json:"number"`
	Status     OpnameStatus `json:"status"`
	Note       string       `json:"note,omitempty"`
	CreatedBy  *int64       `json:"created_by,omitempty"`
	CountedBy  *int64       `json:"counted_by,omitempty"`
	CountedAt  *time.Time   `json:"counted_at,omitempty"`
	ApprovedBy *int64       `json:"approved_by,omitempty"`
	ApprovedAt *time.Time   `json:"approved_at,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
	Lines      []OpnameLine `json:"lines"`
}

// OpnameLine holds the frozen system quantity and the physical count of one item.
type OpnameLine struct {
	ID              int64 `json:"id"`
	OpnameID        int64 `json:"opname_id"`
	ItemID          int64 `json:"item_id"`
	SystemQuantity  int   `json:"system_quantity"`
	CountedQuantity *int  `json:"counted_quantity,omitempty"`
	Variance        *int  `json:"variance,omitempty"`

	// Joined fields (not always populated).
	ItemName string `json:"item_name,omitempty"`
	Unit     string `json:"unit,omitempty"`
}

// VarianceValue returns the recorded variance, or zero before counting.
func (l OpnameLine) VarianceValue() int {
	if l.Variance == nil {
		return 0
	}
	return *l.Variance
}
