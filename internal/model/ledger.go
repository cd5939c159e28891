package model

import "time"

// LedgerReason classifies why a ledger entry was posted.
type LedgerReason string

// Ledger reasons.
const (
	ReasonRequestDistribution LedgerReason = "request_distribution"
	ReasonPurchaseReceipt     LedgerReason = "purchase_receipt"
	ReasonOpnameAdjustment    LedgerReason = "opname_adjustment"
	ReasonRequestReturn       LedgerReason = "request_return"
)

// Valid reports whether r is one of the known ledger reasons.
func (r LedgerReason) Valid() bool {
	switch r {
	case ReasonRequestDistribution, ReasonPurchaseReceipt, ReasonOpnameAdjustment, ReasonRequestReturn:
		return true
	}
	return false
}

// LedgerEntry is one immutable signed quantity change on an item's stock card.
type LedgerEntry struct {
	ID              int64        `json:"id"`
	ItemID          int64        `json:"item_id"`
	Delta           int          `json:"delta"`
	BalanceAfter    int          `json:"balance_after"`
	Reason          LedgerReason `json:"reason"`
	ReferenceID     int64        `json:"reference_id"`
	ReferenceNumber string       `json:"reference_number"`
	ActorID         *int64       `json:"actor_id,omitempty"`
	Note            string       `json:"note,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
}
