package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/atkgudang/persediaan/internal/auth"
	"github.com/atkgudang/persediaan/internal/model"
	"github.com/atkgudang/persediaan/internal/store"
	"github.com/atkgudang/persediaan/internal/workflow"
)

// RequestsHandler handles the supplies request workflow.
type RequestsHandler struct {
	Engine *workflow.Engine
}

type createRequestBody struct {
	Note  string `json:"note" validate:"max=2000"`
	Lines []struct {
		ItemID   int64 `json:"item_id" validate:"required,gt=0"`
		Quantity int   `json:"quantity" validate:"required,gt=0"`
	} `json:"lines" validate:"required,min=1,dive"`
}

// detailLines sets a quantity per request detail. Quantity 0 is allowed for
// approval and distribution.
type detailLines struct {
	Lines []struct {
		DetailID int64 `json:"detail_id" validate:"required,gt=0"`
		Quantity int   `json:"quantity" validate:"gte=0"`
	} `json:"lines" validate:"dive"`
}

type rejectBody struct {
	Reason string `json:"reason" validate:"required,max=2000"`
}

type returnBody struct {
	Lines []struct {
		DetailID int64 `json:"detail_id" validate:"required,gt=0"`
		Quantity int   `json:"quantity" validate:"required,gt=0"`
	} `json:"lines" validate:"required,min=1,dive"`
}

// seesAllRequests reports whether the caller works the approval chain and
// may see other people's requests.
func seesAllRequests(c *auth.Claims) bool {
	return c.Can(model.CapApproveL1) || c.Can(model.CapApproveL2) ||
		c.Can(model.CapApproveL3) || c.Can(model.CapDistribute)
}

// Create handles POST /api/requests.
func (h *RequestsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var body createRequestBody
	if !bind(w, r, &body) {
		return
	}

	lines := make([]workflow.RequestLineInput, len(body.Lines))
	for i, l := range body.Lines {
		lines[i] = workflow.RequestLineInput{ItemID: l.ItemID, Quantity: l.Quantity}
	}

	req, err := h.Engine.CreateRequest(r.Context(), GetClaims(r.Context()).UserID, lines, body.Note)
	if err != nil {
		writeError(w, r, err, "create request")
		return
	}
	jsonResponse(w, http.StatusCreated, req)
}

// List handles GET /api/requests?status=&requester_id=. Callers outside the
// approval chain only see their own requests.
func (h *RequestsHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	q := r.URL.Query()

	f := store.RequestFilter{Status: model.RequestStatus(q.Get("status"))}
	if s := q.Get("requester_id"); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			jsonError(w, http.StatusBadRequest, "invalid requester id")
			return
		}
		f.RequesterID = id
	}
	if !seesAllRequests(claims) {
		f.RequesterID = claims.UserID
	}

	reqs, err := h.Engine.ListRequests(r.Context(), f)
	if err != nil {
		writeError(w, r, err, "list requests")
		return
	}
	jsonResponse(w, http.StatusOK, reqs)
}

// load fetches a request the caller may see. Others' requests are reported
// as missing.
func (h *RequestsHandler) load(w http.ResponseWriter, r *http.Request) (*model.Request, bool) {
	id, ok := pathID(w, r, "id", "request")
	if !ok {
		return nil, false
	}
	req, err := h.Engine.GetRequest(r.Context(), id)
	if err != nil {
		writeError(w, r, err, "get request")
		return nil, false
	}
	claims := GetClaims(r.Context())
	if req.RequesterID != claims.UserID && !seesAllRequests(claims) {
		jsonError(w, http.StatusNotFound, "request not found")
		return nil, false
	}
	return req, true
}

// Get handles GET /api/requests/{id}.
func (h *RequestsHandler) Get(w http.ResponseWriter, r *http.Request) {
	req, ok := h.load(w, r)
	if !ok {
		return
	}

	history, err := h.Engine.StatusHistory(r.Context(), model.EntityRequest, req.ID)
	if err != nil {
		writeError(w, r, err, "get request history")
		return
	}
	jsonResponse(w, http.StatusOK, map[string]any{
		"request": req,
		"history": history,
	})
}

// transition runs a request operation that only needs the id and actor.
func (h *RequestsHandler) transition(op func(ctx context.Context, id, actorID int64) (*model.Request, error), what string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id", "request")
		if !ok {
			return
		}
		req, err := op(r.Context(), id, GetClaims(r.Context()).UserID)
		if err != nil {
			writeError(w, r, err, what)
			return
		}
		jsonResponse(w, http.StatusOK, req)
	}
}

// ApproveL1 handles POST /api/requests/{id}/approve-l1.
func (h *RequestsHandler) ApproveL1(w http.ResponseWriter, r *http.Request) {
	h.transition(h.Engine.ApproveL1, "approve request")(w, r)
}

// ApproveL2 handles POST /api/requests/{id}/approve-l2.
func (h *RequestsHandler) ApproveL2(w http.ResponseWriter, r *http.Request) {
	h.transition(h.Engine.ApproveL2, "approve request")(w, r)
}

// ApproveL3 handles POST /api/requests/{id}/approve-l3. Lines left out are
// approved at the requested quantity.
func (h *RequestsHandler) ApproveL3(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "request")
	if !ok {
		return
	}
	var body detailLines
	if !bind(w, r, &body) {
		return
	}

	approved := make(map[int64]int, len(body.Lines))
	for _, l := range body.Lines {
		approved[l.DetailID] = l.Quantity
	}

	req, err := h.Engine.ApproveL3(r.Context(), id, GetClaims(r.Context()).UserID, approved)
	if err != nil {
		writeError(w, r, err, "approve request")
		return
	}
	jsonResponse(w, http.StatusOK, req)
}

// rejectCapability is the approval level that may reject a request in each
// state.
var rejectCapability = map[model.RequestStatus]model.Capability{
	model.RequestPending:    model.CapApproveL1,
	model.RequestApprovedL1: model.CapApproveL2,
	model.RequestApprovedL2: model.CapApproveL3,
}

// Reject handles POST /api/requests/{id}/reject. Only the approver due to
// act next may reject.
func (h *RequestsHandler) Reject(w http.ResponseWriter, r *http.Request) {
	req, ok := h.load(w, r)
	if !ok {
		return
	}
	var body rejectBody
	if !bind(w, r, &body) {
		return
	}

	claims := GetClaims(r.Context())
	if capability, ok := rejectCapability[req.Status]; ok && !claims.Can(capability) {
		jsonError(w, http.StatusForbidden, "insufficient permissions")
		return
	}
	if !seesAllRequests(claims) {
		jsonError(w, http.StatusForbidden, "insufficient permissions")
		return
	}

	req, err := h.Engine.Reject(r.Context(), req.ID, claims.UserID, body.Reason)
	if err != nil {
		writeError(w, r, err, "reject request")
		return
	}
	jsonResponse(w, http.StatusOK, req)
}

// Distribute handles POST /api/requests/{id}/distribute. Lines left out are
// handed over at the approved quantity.
func (h *RequestsHandler) Distribute(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "request")
	if !ok {
		return
	}
	var body detailLines
	if !bind(w, r, &body) {
		return
	}

	lines := make([]workflow.DistributeLine, len(body.Lines))
	for i, l := range body.Lines {
		lines[i] = workflow.DistributeLine{DetailID: l.DetailID, Quantity: l.Quantity}
	}

	req, err := h.Engine.Distribute(r.Context(), id, GetClaims(r.Context()).UserID, lines)
	if err != nil {
		writeError(w, r, err, "distribute request")
		return
	}
	jsonResponse(w, http.StatusOK, req)
}

// Receive handles POST /api/requests/{id}/receive. Only the requester (or an
// admin) confirms receipt.
func (h *RequestsHandler) Receive(w http.ResponseWriter, r *http.Request) {
	req, ok := h.load(w, r)
	if !ok {
		return
	}
	claims := GetClaims(r.Context())
	if req.RequesterID != claims.UserID && claims.Role != model.RoleAdmin {
		jsonError(w, http.StatusForbidden, "only the requester can confirm receipt")
		return
	}

	req, err := h.Engine.ConfirmReceive(r.Context(), req.ID, claims.UserID)
	if err != nil {
		writeError(w, r, err, "confirm receipt")
		return
	}
	jsonResponse(w, http.StatusOK, req)
}

// Return handles POST /api/requests/{id}/return, by the requester or the
// warehouse taking the goods back.
func (h *RequestsHandler) Return(w http.ResponseWriter, r *http.Request) {
	req, ok := h.load(w, r)
	if !ok {
		return
	}
	claims := GetClaims(r.Context())
	if req.RequesterID != claims.UserID && !claims.Can(model.CapDistribute) {
		jsonError(w, http.StatusForbidden, "insufficient permissions")
		return
	}

	var body returnBody
	if !bind(w, r, &body) {
		return
	}
	lines := make([]workflow.ReturnLine, len(body.Lines))
	for i, l := range body.Lines {
		lines[i] = workflow.ReturnLine{DetailID: l.DetailID, Quantity: l.Quantity}
	}

	req, err := h.Engine.ReturnItems(r.Context(), req.ID, claims.UserID, lines)
	if err != nil {
		writeError(w, r, err, "return items")
		return
	}
	jsonResponse(w, http.StatusOK, req)
}
