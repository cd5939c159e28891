package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/atkgudang/persediaan/internal/db"
	"github.com/atkgudang/persediaan/internal/model"
)

func post(t *testing.T, q Querier, itemID int64, delta int, at time.Time) *model.LedgerEntry {
	t.Helper()
	e, err := PostLedger(context.Background(), q, LedgerPost{
		ItemID:          itemID,
		Delta:           delta,
		Reason:          model.ReasonPurchaseReceipt,
		ReferenceID:     1,
		ReferenceNumber: "PB-00000001",
		At:              at,
	})
	if err != nil {
		t.Fatalf("PostLedger(%d): %v", delta, err)
	}
	return e
}

func TestPostLedgerTracksBalance(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	item, _ := CreateItem(ctx, database, "Pena", "pcs", 0, "")
	now := time.Now().UTC()

	post(t, database, item.ID, 10, now)
	e := post(t, database, item.ID, -4, now)
	if e.BalanceAfter != 6 {
		t.Errorf("expected balance_after 6, got %d", e.BalanceAfter)
	}

	balance, err := CurrentBalance(ctx, database, item.ID)
	if err != nil {
		t.Fatalf("CurrentBalance: %v", err)
	}
	sum, _ := SumLedger(ctx, database, item.ID)
	if balance != 6 || sum != 6 {
		t.Errorf("expected balance and sum 6, got %d and %d", balance, sum)
	}
}

func TestPostLedgerRejectsNegativeBalance(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	item, _ := CreateItem(ctx, database, "Pena", "pcs", 0, "")
	post(t, database, item.ID, 3, time.Now().UTC())

	_, err := PostLedger(ctx, database, LedgerPost{
		ItemID:          item.ID,
		Delta:           -5,
		Reason:          model.ReasonRequestDistribution,
		ReferenceID:     1,
		ReferenceNumber: "REQ-00000001",
	})
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	var se *StockError
	if !errors.As(err, &se) || se.Available != 3 {
		t.Errorf("expected StockError with available 3, got %v", err)
	}

	entries, _ := LedgerHistory(ctx, database, item.ID, time.Time{}, time.Time{})
	if len(entries) != 1 {
		t.Errorf("rejected post must not write an entry, got %d entries", len(entries))
	}
}

func TestPostLedgerValidatesInput(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	item, _ := CreateItem(ctx, database, "Pena", "pcs", 0, "")

	if _, err := PostLedger(ctx, database, LedgerPost{ItemID: item.ID, Delta: 0, Reason: model.ReasonPurchaseReceipt}); err == nil {
		t.Error("expected error for zero delta")
	}
	if _, err := PostLedger(ctx, database, LedgerPost{ItemID: item.ID, Delta: 1, Reason: "gift"}); err == nil {
		t.Error("expected error for unknown reason")
	}
}

func TestCurrentBalanceFallsBackWhenCacheIsStale(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	item, _ := CreateItem(ctx, database, "Map", "pcs", 0, "")
	post(t, database, item.ID, 7, time.Now().UTC())

	// Corrupt the cache without touching the log.
	if _, err := database.Exec(`UPDATE ledger_balances SET balance = 99, last_entry_id = 0 WHERE item_id = ?`, item.ID); err != nil {
		t.Fatal(err)
	}

	balance, err := CurrentBalance(ctx, database, item.ID)
	if err != nil {
		t.Fatalf("CurrentBalance: %v", err)
	}
	if balance != 7 {
		t.Errorf("expected ledger sum 7, got %d", balance)
	}

	repaired, err := ReconcileBalances(ctx, database)
	if err != nil {
		t.Fatalf("ReconcileBalances: %v", err)
	}
	if len(repaired) != 1 || repaired[0] != item.ID {
		t.Errorf("expected item %d repaired, got %v", item.ID, repaired)
	}

	again, _ := ReconcileBalances(ctx, database)
	if len(again) != 0 {
		t.Errorf("expected nothing to repair on second pass, got %v", again)
	}
}

func TestLedgerHistoryRange(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	item, _ := CreateItem(ctx, database, "Amplop", "pak", 0, "")
	day := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	post(t, database, item.ID, 5, day)
	post(t, database, item.ID, 5, day.Add(24*time.Hour))
	post(t, database, item.ID, -2, day.Add(48*time.Hour))

	opening, err := BalanceBefore(ctx, database, item.ID, day.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("BalanceBefore: %v", err)
	}
	if opening != 5 {
		t.Errorf("expected opening 5, got %d", opening)
	}

	entries, err := LedgerHistory(ctx, database, item.ID, day.Add(24*time.Hour), day.Add(48*time.Hour))
	if err != nil {
		t.Fatalf("LedgerHistory: %v", err)
	}
	if len(entries) != 1 || entries[0].Delta != 5 {
		t.Errorf("expected the single +5 entry on day two, got %+v", entries)
	}
}

func TestListBalances(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	pen, _ := CreateItem(ctx, database, "Pena", "pcs", 10, "")
	CreateItem(ctx, database, "Map", "pcs", 0, "")
	post(t, database, pen.ID, 4, time.Now().UTC())

	balances, err := ListBalances(ctx, database)
	if err != nil {
		t.Fatalf("ListBalances: %v", err)
	}
	if len(balances) != 2 {
		t.Fatalf("expected 2 balances, got %d", len(balances))
	}
	for _, b := range balances {
		if b.ItemID == pen.ID && (b.Balance != 4 || !b.BelowMinimum()) {
			t.Errorf("unexpected pen balance: %+v", b)
		}
	}
}
