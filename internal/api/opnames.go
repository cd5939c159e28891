package api

import (
	"net/http"

	"github.com/atkgudang/persediaan/internal/model"
	"github.com/atkgudang/persediaan/internal/report"
	"github.com/atkgudang/persediaan/internal/workflow"
)

// OpnamesHandler handles physical stock counts.
type OpnamesHandler struct {
	Engine *workflow.Engine
}

type createOpnameBody struct {
	ItemIDs []int64 `json:"item_ids" validate:"dive,gt=0"`
	Note    string  `json:"note" validate:"max=2000"`
}

type countOpnameBody struct {
	Lines []struct {
		LineID          int64 `json:"line_id" validate:"required,gt=0"`
		CountedQuantity int   `json:"counted_quantity" validate:"gte=0"`
	} `json:"lines" validate:"required,min=1,dive"`
}

// Create handles POST /api/opnames. An empty item list counts every active
// item.
func (h *OpnamesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var body createOpnameBody
	if !bind(w, r, &body) {
		return
	}

	o, err := h.Engine.CreateOpname(r.Context(), GetClaims(r.Context()).UserID, body.ItemIDs, body.Note)
	if err != nil {
		writeError(w, r, err, "create opname")
		return
	}
	jsonResponse(w, http.StatusCreated, o)
}

// List handles GET /api/opnames?status=.
func (h *OpnamesHandler) List(w http.ResponseWriter, r *http.Request) {
	opnames, err := h.Engine.ListOpnames(r.Context(), model.OpnameStatus(r.URL.Query().Get("status")))
	if err != nil {
		writeError(w, r, err, "list opnames")
		return
	}
	jsonResponse(w, http.StatusOK, opnames)
}

// Get handles GET /api/opnames/{id}.
func (h *OpnamesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "opname")
	if !ok {
		return
	}

	o, err := h.Engine.GetOpname(r.Context(), id)
	if err != nil {
		writeError(w, r, err, "get opname")
		return
	}
	history, err := h.Engine.StatusHistory(r.Context(), model.EntityOpname, id)
	if err != nil {
		writeError(w, r, err, "get opname history")
		return
	}
	jsonResponse(w, http.StatusOK, map[string]any{
		"opname":  o,
		"history": history,
	})
}

// Count handles POST /api/opnames/{id}/count.
func (h *OpnamesHandler) Count(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "opname")
	if !ok {
		return
	}
	var body countOpnameBody
	if !bind(w, r, &body) {
		return
	}

	counted := make(map[int64]int, len(body.Lines))
	for _, l := range body.Lines {
		counted[l.LineID] = l.CountedQuantity
	}

	o, err := h.Engine.RecordCount(r.Context(), id, GetClaims(r.Context()).UserID, counted)
	if err != nil {
		writeError(w, r, err, "record count")
		return
	}
	jsonResponse(w, http.StatusOK, o)
}

// Approve handles POST /api/opnames/{id}/approve.
func (h *OpnamesHandler) Approve(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "opname")
	if !ok {
		return
	}

	o, err := h.Engine.ApproveOpname(r.Context(), id, GetClaims(r.Context()).UserID)
	if err != nil {
		writeError(w, r, err, "approve opname")
		return
	}
	jsonResponse(w, http.StatusOK, o)
}

// Report handles GET /api/opnames/{id}/report.
func (h *OpnamesHandler) Report(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "opname")
	if !ok {
		return
	}

	rec, err := report.BuildReconciliation(r.Context(), h.Engine.DB, id)
	if err != nil {
		writeError(w, r, err, "build reconciliation")
		return
	}
	jsonResponse(w, http.StatusOK, rec)
}
