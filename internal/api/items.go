package api

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/atkgudang/persediaan/internal/imaging"
	"github.com/atkgudang/persediaan/internal/model"
	"github.com/atkgudang/persediaan/internal/report"
	"github.com/atkgudang/persediaan/internal/store"
	"github.com/atkgudang/persediaan/internal/workflow"
)

// ItemsHandler handles the item catalog and per-item stock queries.
type ItemsHandler struct {
	Engine *workflow.Engine
}

type itemRequest struct {
	Name         string `json:"name" validate:"required,max=200"`
	Unit         string `json:"unit" validate:"required,max=32"`
	MinimumStock int    `json:"minimum_stock" validate:"gte=0"`
	Description  string `json:"description" validate:"max=2000"`
}

func (h *ItemsHandler) db() *sql.DB { return h.Engine.DB }

// List handles GET /api/items.
func (h *ItemsHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := store.ListItems(r.Context(), h.db(), r.URL.Query().Get("search"))
	if err != nil {
		writeError(w, r, err, "list items")
		return
	}
	if items == nil {
		items = []model.Item{}
	}
	jsonResponse(w, http.StatusOK, items)
}

// Create handles POST /api/items.
func (h *ItemsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req itemRequest
	if !bind(w, r, &req) {
		return
	}

	item, err := store.CreateItem(r.Context(), h.db(), req.Name, req.Unit, req.MinimumStock, req.Description)
	if err != nil {
		writeError(w, r, err, "create item")
		return
	}

	slog.Info("item created", "user", GetClaims(r.Context()).Username, "item", item.Name)
	jsonResponse(w, http.StatusCreated, item)
}

// activeItem loads an item that has not been deleted, writing a 404 otherwise.
func (h *ItemsHandler) activeItem(w http.ResponseWriter, r *http.Request) (*model.Item, bool) {
	id, ok := pathID(w, r, "id", "item")
	if !ok {
		return nil, false
	}
	item, err := store.GetItem(r.Context(), h.db(), id)
	if err != nil {
		writeError(w, r, err, "get item")
		return nil, false
	}
	if item == nil || item.DeletedAt != nil {
		jsonError(w, http.StatusNotFound, "item not found")
		return nil, false
	}
	return item, true
}

// Get handles GET /api/items/{id}. Deleted items are still returned so old
// documents can resolve them.
func (h *ItemsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "item")
	if !ok {
		return
	}

	item, err := store.GetItem(r.Context(), h.db(), id)
	if err != nil {
		writeError(w, r, err, "get item")
		return
	}
	if item == nil {
		jsonError(w, http.StatusNotFound, "item not found")
		return
	}

	balance, err := h.Engine.CurrentBalance(r.Context(), id)
	if err != nil {
		writeError(w, r, err, "get item balance")
		return
	}

	jsonResponse(w, http.StatusOK, map[string]any{
		"item":    item,
		"balance": balance,
	})
}

// Update handles PUT /api/items/{id}.
func (h *ItemsHandler) Update(w http.ResponseWriter, r *http.Request) {
	item, ok := h.activeItem(w, r)
	if !ok {
		return
	}

	var req itemRequest
	if !bind(w, r, &req) {
		return
	}

	if err := store.UpdateItem(r.Context(), h.db(), item.ID, req.Name, req.Unit, req.MinimumStock, req.Description); err != nil {
		writeError(w, r, err, "update item")
		return
	}

	item, _ = store.GetItem(r.Context(), h.db(), item.ID)
	jsonResponse(w, http.StatusOK, item)
}

// Delete handles DELETE /api/items/{id}.
func (h *ItemsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	item, ok := h.activeItem(w, r)
	if !ok {
		return
	}

	if err := store.DeleteItem(r.Context(), h.db(), item.ID); err != nil {
		writeError(w, r, err, "delete item")
		return
	}

	slog.Info("item deleted", "user", GetClaims(r.Context()).Username, "item", item.Name)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "item deleted"})
}

// UploadImage handles PUT /api/items/{id}/image.
func (h *ItemsHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	item, ok := h.activeItem(w, r)
	if !ok {
		return
	}

	// Leave room for multipart framing around the file itself.
	r.Body = http.MaxBytesReader(w, r.Body, imaging.MaxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(imaging.MaxUploadBytes); err != nil {
		jsonError(w, http.StatusBadRequest, "file too large or invalid multipart form")
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "image file required")
		return
	}
	defer file.Close()

	photo, err := imaging.NormalizePhoto(file)
	if err != nil {
		switch {
		case errors.Is(err, imaging.ErrTooLarge):
			jsonError(w, http.StatusRequestEntityTooLarge, err.Error())
		default:
			jsonError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	if err := store.SetItemImage(r.Context(), h.db(), item.ID, photo.Data, photo.MIME); err != nil {
		writeError(w, r, err, "save image")
		return
	}

	jsonResponse(w, http.StatusOK, map[string]any{
		"message": "image uploaded",
		"width":   photo.Width,
		"height":  photo.Height,
	})
}

// GetImage handles GET /api/items/{id}/image. ?size=thumb returns a small
// rendition for lists.
func (h *ItemsHandler) GetImage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "item")
	if !ok {
		return
	}

	data, mime, err := store.GetItemImage(r.Context(), h.db(), id)
	if err != nil {
		writeError(w, r, err, "get image")
		return
	}
	if data == nil {
		jsonError(w, http.StatusNotFound, "no image")
		return
	}

	if r.URL.Query().Get("size") == "thumb" {
		thumb, err := imaging.Thumbnail(data, imaging.ThumbnailDimension)
		if err != nil {
			writeError(w, r, err, "render thumbnail")
			return
		}
		data, mime = thumb.Data, thumb.MIME
	}

	w.Header().Set("Content-Type", mime)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Write(data)
}

// Balance handles GET /api/items/{id}/balance.
func (h *ItemsHandler) Balance(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "item")
	if !ok {
		return
	}

	balance, err := h.Engine.CurrentBalance(r.Context(), id)
	if err != nil {
		writeError(w, r, err, "get balance")
		return
	}
	jsonResponse(w, http.StatusOK, map[string]any{"item_id": id, "balance": balance})
}

// Ledger handles GET /api/items/{id}/ledger?from=&to=.
func (h *ItemsHandler) Ledger(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "item")
	if !ok {
		return
	}
	from, to, ok := parseRange(w, r)
	if !ok {
		return
	}

	entries, err := h.Engine.LedgerHistory(r.Context(), id, from, to)
	if err != nil {
		writeError(w, r, err, "get ledger")
		return
	}
	jsonResponse(w, http.StatusOK, entries)
}

// StockCard handles GET /api/items/{id}/stock-card?from=&to=.
func (h *ItemsHandler) StockCard(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "item")
	if !ok {
		return
	}
	from, to, ok := parseRange(w, r)
	if !ok {
		return
	}

	card, err := report.BuildStockCard(r.Context(), h.db(), id, from, to)
	if err != nil {
		writeError(w, r, err, "build stock card")
		return
	}
	jsonResponse(w, http.StatusOK, card)
}

const dateLayout = "2006-01-02"

// parseRange reads the from/to query parameters as RFC 3339 timestamps or
// plain dates. A plain "to" date includes that whole day.
func parseRange(w http.ResponseWriter, r *http.Request) (from, to time.Time, ok bool) {
	q := r.URL.Query()
	var err error
	if from, _, err = parseTime(q.Get("from")); err != nil {
		jsonError(w, http.StatusBadRequest, fmt.Sprintf("invalid from: %v", err))
		return from, to, false
	}
	var dateOnly bool
	if to, dateOnly, err = parseTime(q.Get("to")); err != nil {
		jsonError(w, http.StatusBadRequest, fmt.Sprintf("invalid to: %v", err))
		return from, to, false
	}
	if dateOnly {
		to = to.AddDate(0, 0, 1)
	}
	return from, to, true
}

func parseTime(s string) (time.Time, bool, error) {
	if s == "" {
		return time.Time{}, false, nil
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t.UTC(), true, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("want %s or RFC 3339", dateLayout)
	}
	return t.UTC(), false, nil
}
