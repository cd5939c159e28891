package model

import "time"

// PurchaseStatus is the state of an incoming purchase.
type PurchaseStatus string

// Purchase statuses.
const (
	PurchaseDraft     PurchaseStatus = "draft"
	PurchaseReceived  PurchaseStatus = "received"
	PurchaseCompleted PurchaseStatus = "completed"
)

// Purchase is an incoming stock order.
type Purchase struct {
	ID          int64          `json:"id"`
	Number      string         `json:"number"`
	Supplier    string         `json:"supplier,omitempty"`
	Status      PurchaseStatus `json:"status"`
	Note        string         `json:"note,omitempty"`
	CreatedBy   *int64         `json:"created_by,omitempty"`
	ReceivedBy  *int64         `json:"received_by,omitempty"`
	ReceivedAt  *time.Time     `json:"received_at,omitempty"`
	CompletedBy *int64         `json:"completed_by,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	Lines       []PurchaseLine `json:"lines"`
}

// PurchaseLine is one ordered item.
type PurchaseLine struct {
	ID               int64 `json:"id"`
	PurchaseID       int64 `json:"purchase_id"`
	ItemID           int64 `json:"item_id"`
	QuantityOrdered  int   `json:"quantity_ordered"`
	QuantityReceived *int  `json:"quantity_received,omitempty"`

	// Joined fields (not always populated).
	ItemName string `json:"item_name,omitempty"`
	Unit     string `json:"unit,omitempty"`
}

// Received returns the received quantity, or zero before receipt.
func (l PurchaseLine) Received() int {
	if l.QuantityReceived == nil {
		return 0
	}
	return *l.QuantityReceived
}
