package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/atkgudang/persediaan/internal/model"
	"github.com/atkgudang/persediaan/internal/store"
)

func TestPurchaseLifecycle(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	x := seedItem(t, e, "Amplop", 0)

	p, err := e.CreatePurchase(ctx, warehouse, "CV Sumber", []PurchaseLineInput{{ItemID: x.ID, Quantity: 5}}, "")
	if err != nil {
		t.Fatalf("CreatePurchase: %v", err)
	}
	if p.Number != "PB-00000001" || p.Status != model.PurchaseDraft {
		t.Fatalf("unexpected new purchase: %s %s", p.Number, p.Status)
	}

	p, err = e.ReceivePurchase(ctx, p.ID, warehouse, map[int64]int{p.Lines[0].ID: 5})
	if err != nil {
		t.Fatalf("ReceivePurchase: %v", err)
	}
	if p.Status != model.PurchaseReceived || p.Lines[0].Received() != 5 {
		t.Fatalf("expected Received with 5, got %s %d", p.Status, p.Lines[0].Received())
	}
	if got := balance(t, e, x.ID); got != 0 {
		t.Fatalf("receipt must not post, balance %d", got)
	}

	p, err = e.CompletePurchase(ctx, p.ID, warehouse)
	if err != nil {
		t.Fatalf("CompletePurchase: %v", err)
	}
	if p.Status != model.PurchaseCompleted || p.CompletedAt == nil {
		t.Fatalf("expected Completed, got %s", p.Status)
	}
	if got := balance(t, e, x.ID); got != 5 {
		t.Fatalf("expected balance 5, got %d", got)
	}
}

func TestCompletePurchaseIsIdempotent(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	x := seedItem(t, e, "Amplop", 0)
	p, _ := e.CreatePurchase(ctx, warehouse, "", []PurchaseLineInput{{ItemID: x.ID, Quantity: 5}}, "")
	e.ReceivePurchase(ctx, p.ID, warehouse, nil)
	e.CompletePurchase(ctx, p.ID, warehouse)
	entries := countEntries(t, e)

	again, err := e.CompletePurchase(ctx, p.ID, warehouse)
	if !errors.Is(err, store.ErrAlreadyCompleted) {
		t.Fatalf("expected ErrAlreadyCompleted, got %v", err)
	}
	if again == nil || again.Status != model.PurchaseCompleted {
		t.Fatalf("expected completed purchase alongside the signal, got %+v", again)
	}
	if countEntries(t, e) != entries || balance(t, e, x.ID) != 5 {
		t.Fatal("repeated completion must not post again")
	}
}

func TestPurchaseInvalidTransitions(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	x := seedItem(t, e, "Amplop", 0)
	p, _ := e.CreatePurchase(ctx, warehouse, "", []PurchaseLineInput{{ItemID: x.ID, Quantity: 5}}, "")

	if _, err := e.CompletePurchase(ctx, p.ID, warehouse); !errors.Is(err, store.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition completing a draft, got %v", err)
	}

	e.ReceivePurchase(ctx, p.ID, warehouse, nil)
	if _, err := e.ReceivePurchase(ctx, p.ID, warehouse, nil); !errors.Is(err, store.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition receiving twice, got %v", err)
	}

	if _, err := e.CompletePurchase(ctx, 999, warehouse); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestReceivePurchaseQuantities(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	a := seedItem(t, e, "Pena", 0)
	b := seedItem(t, e, "Map", 0)
	p, _ := e.CreatePurchase(ctx, warehouse, "", []PurchaseLineInput{
		{ItemID: a.ID, Quantity: 10},
		{ItemID: b.ID, Quantity: 4},
	}, "")

	if _, err := e.ReceivePurchase(ctx, p.ID, warehouse, map[int64]int{p.Lines[0].ID: -1}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for negative receipt, got %v", err)
	}

	// Nothing arrived for b.
	p, err := e.ReceivePurchase(ctx, p.ID, warehouse, map[int64]int{p.Lines[1].ID: 0})
	if err != nil {
		t.Fatalf("ReceivePurchase: %v", err)
	}
	if p.Lines[0].Received() != 10 || p.Lines[1].QuantityReceived == nil || p.Lines[1].Received() != 0 {
		t.Fatalf("unexpected received quantities: %+v", p.Lines)
	}

	e.CompletePurchase(ctx, p.ID, warehouse)
	entries, _ := store.ListReferenceEntries(ctx, e.DB, model.ReasonPurchaseReceipt, p.ID)
	if len(entries) != 1 || entries[0].ItemID != a.ID {
		t.Errorf("expected a single entry for the received line, got %+v", entries)
	}
	if balance(t, e, b.ID) != 0 {
		t.Error("zero-quantity line must not post")
	}
}

func TestCreatePurchaseValidation(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	x := seedItem(t, e, "Pena", 0)

	if _, err := e.CreatePurchase(ctx, warehouse, "", nil, ""); !errors.Is(err, store.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for empty purchase, got %v", err)
	}
	if _, err := e.CreatePurchase(ctx, warehouse, "", []PurchaseLineInput{{ItemID: x.ID, Quantity: -2}}, ""); !errors.Is(err, store.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for negative quantity, got %v", err)
	}
	if _, err := e.CreatePurchase(ctx, warehouse, "", []PurchaseLineInput{{ItemID: 404, Quantity: 1}}, ""); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown item, got %v", err)
	}

	// Failed creations do not consume numbers.
	p, err := e.CreatePurchase(ctx, warehouse, "", []PurchaseLineInput{{ItemID: x.ID, Quantity: 1}}, "")
	if err != nil {
		t.Fatal(err)
	}
	if p.Number != "PB-00000001" {
		t.Errorf("expected PB-00000001, got %s", p.Number)
	}
}
