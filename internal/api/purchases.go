package api

import (
	"errors"
	"net/http"

	"github.com/atkgudang/persediaan/internal/model"
	"github.com/atkgudang/persediaan/internal/store"
	"github.com/atkgudang/persediaan/internal/workflow"
)

// PurchasesHandler handles incoming stock purchases.
type PurchasesHandler struct {
	Engine *workflow.Engine
}

type createPurchaseBody struct {
	Supplier string `json:"supplier" validate:"max=200"`
	Note     string `json:"note" validate:"max=2000"`
	Lines    []struct {
		ItemID   int64 `json:"item_id" validate:"required,gt=0"`
		Quantity int   `json:"quantity" validate:"required,gt=0"`
	} `json:"lines" validate:"required,min=1,dive"`
}

type receivePurchaseBody struct {
	Lines []struct {
		LineID   int64 `json:"line_id" validate:"required,gt=0"`
		Quantity int   `json:"quantity" validate:"gte=0"`
	} `json:"lines" validate:"dive"`
}

// Create handles POST /api/purchases.
func (h *PurchasesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var body createPurchaseBody
	if !bind(w, r, &body) {
		return
	}

	lines := make([]workflow.PurchaseLineInput, len(body.Lines))
	for i, l := range body.Lines {
		lines[i] = workflow.PurchaseLineInput{ItemID: l.ItemID, Quantity: l.Quantity}
	}

	p, err := h.Engine.CreatePurchase(r.Context(), GetClaims(r.Context()).UserID, body.Supplier, lines, body.Note)
	if err != nil {
		writeError(w, r, err, "create purchase")
		return
	}
	jsonResponse(w, http.StatusCreated, p)
}

// List handles GET /api/purchases?status=.
func (h *PurchasesHandler) List(w http.ResponseWriter, r *http.Request) {
	purchases, err := h.Engine.ListPurchases(r.Context(), model.PurchaseStatus(r.URL.Query().Get("status")))
	if err != nil {
		writeError(w, r, err, "list purchases")
		return
	}
	jsonResponse(w, http.StatusOK, purchases)
}

// Get handles GET /api/purchases/{id}.
func (h *PurchasesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "purchase")
	if !ok {
		return
	}

	p, err := h.Engine.GetPurchase(r.Context(), id)
	if err != nil {
		writeError(w, r, err, "get purchase")
		return
	}
	history, err := h.Engine.StatusHistory(r.Context(), model.EntityPurchase, id)
	if err != nil {
		writeError(w, r, err, "get purchase history")
		return
	}
	jsonResponse(w, http.StatusOK, map[string]any{
		"purchase": p,
		"history":  history,
	})
}

// Receive handles POST /api/purchases/{id}/receive. Lines left out are
// received at the ordered quantity.
func (h *PurchasesHandler) Receive(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "purchase")
	if !ok {
		return
	}
	var body receivePurchaseBody
	if !bind(w, r, &body) {
		return
	}

	received := make(map[int64]int, len(body.Lines))
	for _, l := range body.Lines {
		received[l.LineID] = l.Quantity
	}

	p, err := h.Engine.ReceivePurchase(r.Context(), id, GetClaims(r.Context()).UserID, received)
	if err != nil {
		writeError(w, r, err, "receive purchase")
		return
	}
	jsonResponse(w, http.StatusOK, p)
}

// Complete handles POST /api/purchases/{id}/complete. Completing twice is
// not an error: the second call reports already_completed and posts nothing.
func (h *PurchasesHandler) Complete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "purchase")
	if !ok {
		return
	}

	p, err := h.Engine.CompletePurchase(r.Context(), id, GetClaims(r.Context()).UserID)
	if errors.Is(err, store.ErrAlreadyCompleted) {
		if p == nil {
			p, err = h.Engine.GetPurchase(r.Context(), id)
			if err != nil {
				writeError(w, r, err, "get purchase")
				return
			}
		}
		jsonResponse(w, http.StatusOK, map[string]any{
			"purchase":          p,
			"already_completed": true,
		})
		return
	}
	if err != nil {
		writeError(w, r, err, "complete purchase")
		return
	}
	jsonResponse(w, http.StatusOK, map[string]any{
		"purchase":          p,
		"already_completed": false,
	})
}
