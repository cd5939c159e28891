package store

import (
	"errors"
	"fmt"
)

// Domain errors. Callers match them with errors.Is; the typed errors below
// carry the details and unwrap to one of these.
var (
	ErrNotFound                   = errors.New("not found")
	ErrInvalidInput               = errors.New("invalid input")
	ErrInvalidTransition          = errors.New("invalid transition")
	ErrInsufficientStock          = errors.New("insufficient stock")
	ErrInvalidApprovedQuantity    = errors.New("invalid approved quantity")
	ErrInvalidDistributedQuantity = errors.New("invalid distributed quantity")
	ErrInvalidReturnQuantity      = errors.New("invalid return quantity")
	ErrAlreadyCompleted           = errors.New("already completed")
	ErrStaleSnapshot              = errors.New("stale snapshot")
)

// StockError reports a change that would drive an item's balance negative.
type StockError struct {
	ItemID    int64
	Available int
	Delta     int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock for item %d: have %d, need %d", e.ItemID, e.Available, -e.Delta)
}

func (e *StockError) Unwrap() error { return ErrInsufficientStock }

// TransitionError reports a state-machine violation.
type TransitionError struct {
	Entity string
	ID     int64
	From   string
	Action string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition: %s %d cannot %s from %s", e.Entity, e.ID, e.Action, e.From)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// QuantityError reports a line quantity outside its allowed range.
type QuantityError struct {
	Kind     error
	LineID   int64
	Quantity int
	Limit    int
}

func (e *QuantityError) Error() string {
	return fmt.Sprintf("%v: line %d has %d, allowed 0..%d", e.Kind, e.LineID, e.Quantity, e.Limit)
}

func (e *QuantityError) Unwrap() error { return e.Kind }

// SnapshotError reports ledger activity on an item between an opname's
// snapshot and its approval.
type SnapshotError struct {
	ItemID         int64
	SystemQuantity int
	LiveQuantity   int
}

func (e *SnapshotError) Error() string {
	return fmt.Sprintf("stale snapshot for item %d: counted against %d, ledger now %d",
		e.ItemID, e.SystemQuantity, e.LiveQuantity)
}

func (e *SnapshotError) Unwrap() error { return ErrStaleSnapshot }
