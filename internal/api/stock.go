package api

import (
	"log/slog"
	"net/http"

	"github.com/atkgudang/persediaan/internal/model"
	"github.com/atkgudang/persediaan/internal/store"
	"github.com/atkgudang/persediaan/internal/workflow"
)

// StockHandler serves warehouse-wide balance queries and maintenance.
type StockHandler struct {
	Engine *workflow.Engine
}

type stockRow struct {
	model.ItemBalance
	Low bool `json:"below_minimum"`
}

// List handles GET /api/stock. ?low=1 keeps only items under their minimum.
func (h *StockHandler) List(w http.ResponseWriter, r *http.Request) {
	balances, err := store.ListBalances(r.Context(), h.Engine.DB)
	if err != nil {
		writeError(w, r, err, "list stock")
		return
	}

	lowOnly := r.URL.Query().Get("low") == "1"
	rows := []stockRow{}
	for _, b := range balances {
		if lowOnly && !b.BelowMinimum() {
			continue
		}
		rows = append(rows, stockRow{ItemBalance: b, Low: b.BelowMinimum()})
	}
	jsonResponse(w, http.StatusOK, rows)
}

// Reconcile handles POST /api/ledger/reconcile.
func (h *StockHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	repaired, err := h.Engine.ReconcileBalances(r.Context())
	if err != nil {
		writeError(w, r, err, "reconcile balances")
		return
	}
	if repaired == nil {
		repaired = []int64{}
	}

	slog.Info("balances reconciled", "user", GetClaims(r.Context()).Username, "repaired", len(repaired))
	jsonResponse(w, http.StatusOK, map[string]any{"repaired_items": repaired})
}
