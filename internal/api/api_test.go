package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/atkgudang/persediaan/internal/auth"
	"github.com/atkgudang/persediaan/internal/db"
	"github.com/atkgudang/persediaan/internal/model"
	"github.com/atkgudang/persediaan/internal/store"
	"github.com/atkgudang/persediaan/internal/workflow"
)

const testJWTSecret = "test-secret"

type testEnv struct {
	server *httptest.Server
	db     *sql.DB
	users  map[string]*model.User
	tokens map[string]string
}

// setupTestServer starts the API with one user per role. The admin's token
// comes from the login endpoint, the others are signed directly.
func setupTestServer(t *testing.T) *testEnv {
	t.Helper()
	database := db.NewTestDB(t)
	engine := workflow.New(database, nil, nil)
	server := httptest.NewServer(LoggingMiddleware(NewRouter(engine, testJWTSecret)))
	t.Cleanup(server.Close)

	env := &testEnv{
		server: server,
		db:     database,
		users:  map[string]*model.User{},
		tokens: map[string]string{},
	}

	ctx := context.Background()
	hash, err := auth.HashPassword("password")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	roles := []string{
		model.RoleAdmin, model.RoleHead, model.RoleManager,
		model.RoleSupervisor, model.RoleWarehouse, model.RoleStaff,
	}
	for _, role := range roles {
		u, err := store.CreateUser(ctx, database, role, hash, role)
		if err != nil {
			t.Fatalf("CreateUser(%s): %v", role, err)
		}
		env.users[role] = u
		if role == model.RoleAdmin {
			continue
		}
		token, err := auth.GenerateToken(testJWTSecret, u)
		if err != nil {
			t.Fatalf("GenerateToken(%s): %v", role, err)
		}
		env.tokens[role] = token
	}

	var login loginResponse
	status := env.do(t, "POST", "/api/auth/login", "", map[string]string{
		"username": model.RoleAdmin, "password": "password",
	}, &login)
	if status != http.StatusOK {
		t.Fatalf("login failed: %d", status)
	}
	if login.Token == "" {
		t.Fatal("empty token from login")
	}
	env.tokens[model.RoleAdmin] = login.Token
	return env
}

// do sends a JSON request and decodes the response into out when non-nil.
func (env *testEnv) do(t *testing.T, method, path, token string, body, out any) int {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, env.server.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("%s %s: decoding %d response: %v", method, path, resp.StatusCode, err)
		}
	}
	return resp.StatusCode
}

// stockedItem creates an item and brings qty units in through a purchase.
func (env *testEnv) stockedItem(t *testing.T, name string, minimum, qty int) int64 {
	t.Helper()
	wh := env.tokens[model.RoleWarehouse]

	var item model.Item
	if status := env.do(t, "POST", "/api/items", wh, map[string]any{
		"name": name, "unit": "pcs", "minimum_stock": minimum,
	}, &item); status != http.StatusCreated {
		t.Fatalf("create item: %d", status)
	}
	if qty == 0 {
		return item.ID
	}

	var p model.Purchase
	if status := env.do(t, "POST", "/api/purchases", wh, map[string]any{
		"supplier": "CV Sumber Makmur",
		"lines":    []map[string]any{{"item_id": item.ID, "quantity": qty}},
	}, &p); status != http.StatusCreated {
		t.Fatalf("create purchase: %d", status)
	}
	if status := env.do(t, "POST", fmt.Sprintf("/api/purchases/%d/receive", p.ID), wh, nil, nil); status != http.StatusOK {
		t.Fatalf("receive purchase: %d", status)
	}
	if status := env.do(t, "POST", fmt.Sprintf("/api/purchases/%d/complete", p.ID), wh, nil, nil); status != http.StatusOK {
		t.Fatalf("complete purchase: %d", status)
	}
	return item.ID
}

func (env *testEnv) balance(t *testing.T, itemID int64) int {
	t.Helper()
	var out struct {
		Balance int `json:"balance"`
	}
	if status := env.do(t, "GET", fmt.Sprintf("/api/items/%d/balance", itemID), env.tokens[model.RoleStaff], nil, &out); status != http.StatusOK {
		t.Fatalf("get balance: %d", status)
	}
	return out.Balance
}

func TestLoginEndpoint(t *testing.T) {
	env := setupTestServer(t)

	status := env.do(t, "POST", "/api/auth/login", "", map[string]string{
		"username": model.RoleAdmin, "password": "wrong",
	}, nil)
	if status != http.StatusUnauthorized {
		t.Errorf("expected 401 for bad password, got %d", status)
	}

	var body struct {
		Error  string            `json:"error"`
		Fields map[string]string `json:"fields"`
	}
	status = env.do(t, "POST", "/api/auth/login", "", map[string]string{"username": "admin"}, &body)
	if status != http.StatusBadRequest {
		t.Errorf("expected 400 for missing password, got %d", status)
	}
	if body.Fields["password"] != "required" {
		t.Errorf("expected password field error, got %+v", body)
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	env := setupTestServer(t)
	token := env.tokens[model.RoleAdmin]

	if status := env.do(t, "POST", "/api/auth/logout", token, nil, nil); status != http.StatusOK {
		t.Fatalf("logout: %d", status)
	}
	if status := env.do(t, "GET", "/api/items", token, nil, nil); status != http.StatusUnauthorized {
		t.Errorf("expected 401 with revoked token, got %d", status)
	}
}

func TestChangePassword(t *testing.T) {
	env := setupTestServer(t)
	token := env.tokens[model.RoleStaff]

	status := env.do(t, "PUT", "/api/auth/password", token, map[string]string{
		"current_password": "wrong", "new_password": "newpassword",
	}, nil)
	if status != http.StatusUnauthorized {
		t.Errorf("expected 401 for wrong current password, got %d", status)
	}

	status = env.do(t, "PUT", "/api/auth/password", token, map[string]string{
		"current_password": "password", "new_password": "newpassword",
	}, nil)
	if status != http.StatusOK {
		t.Fatalf("change password: %d", status)
	}

	status = env.do(t, "POST", "/api/auth/login", "", map[string]string{
		"username": model.RoleStaff, "password": "newpassword",
	}, nil)
	if status != http.StatusOK {
		t.Errorf("expected login with new password, got %d", status)
	}
}

func TestUnauthenticatedAccess(t *testing.T) {
	env := setupTestServer(t)

	for _, path := range []string{"/api/items", "/api/stock", "/api/requests"} {
		if status := env.do(t, "GET", path, "", nil, nil); status != http.StatusUnauthorized {
			t.Errorf("GET %s: expected 401, got %d", path, status)
		}
	}
	if status := env.do(t, "GET", "/api/items", "not-a-token", nil, nil); status != http.StatusUnauthorized {
		t.Errorf("expected 401 for garbage token, got %d", status)
	}
}

func TestRoleBasedAccess(t *testing.T) {
	env := setupTestServer(t)
	staff := env.tokens[model.RoleStaff]

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   any
	}{
		{"staff creates item", "POST", "/api/items", staff, map[string]any{"name": "Pen", "unit": "pcs"}},
		{"staff lists users", "GET", "/api/users", staff, nil},
		{"staff approves", "POST", "/api/requests/1/approve-l1", staff, nil},
		{"supervisor approves l2", "POST", "/api/requests/1/approve-l2", env.tokens[model.RoleSupervisor], nil},
		{"manager distributes", "POST", "/api/requests/1/distribute", env.tokens[model.RoleManager], nil},
		{"warehouse approves opname", "POST", "/api/opnames/1/approve", env.tokens[model.RoleWarehouse], nil},
		{"head reconciles ledger", "POST", "/api/ledger/reconcile", env.tokens[model.RoleHead], nil},
		{"staff opens purchase", "POST", "/api/purchases", staff, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if status := env.do(t, tt.method, tt.path, tt.token, tt.body, nil); status != http.StatusForbidden {
				t.Errorf("expected 403, got %d", status)
			}
		})
	}
}

func TestUsersAPI(t *testing.T) {
	env := setupTestServer(t)
	admin := env.tokens[model.RoleAdmin]

	var u model.User
	status := env.do(t, "POST", "/api/users", admin, map[string]string{
		"username": "budi", "password": "password123", "role": model.RoleSupervisor,
	}, &u)
	if status != http.StatusCreated {
		t.Fatalf("create user: %d", status)
	}

	if status := env.do(t, "POST", "/api/users", admin, map[string]string{
		"username": "eka", "password": "password123", "role": "owner",
	}, nil); status != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown role, got %d", status)
	}

	if status := env.do(t, "PUT", fmt.Sprintf("/api/users/%d", u.ID), admin, map[string]string{
		"role": model.RoleManager,
	}, &u); status != http.StatusOK || u.Role != model.RoleManager {
		t.Errorf("update role: status %d, role %q", status, u.Role)
	}

	if status := env.do(t, "DELETE", fmt.Sprintf("/api/users/%d", env.users[model.RoleAdmin].ID), admin, nil, nil); status != http.StatusBadRequest {
		t.Errorf("expected 400 for self-deletion, got %d", status)
	}
	if status := env.do(t, "DELETE", fmt.Sprintf("/api/users/%d", u.ID), admin, nil, nil); status != http.StatusOK {
		t.Errorf("delete user: %d", status)
	}
	if status := env.do(t, "DELETE", fmt.Sprintf("/api/users/%d", u.ID), admin, nil, nil); status != http.StatusNotFound {
		t.Errorf("expected 404 deleting twice, got %d", status)
	}
}

func TestItemsAPIFlow(t *testing.T) {
	env := setupTestServer(t)
	wh := env.tokens[model.RoleWarehouse]

	var item model.Item
	if status := env.do(t, "POST", "/api/items", wh, map[string]any{
		"name": "Kertas HVS A4", "unit": "rim", "minimum_stock": 5,
	}, &item); status != http.StatusCreated {
		t.Fatalf("create item: %d", status)
	}

	if status := env.do(t, "POST", "/api/items", wh, map[string]any{
		"name": "No unit", "minimum_stock": -1,
	}, nil); status != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid item, got %d", status)
	}

	var items []model.Item
	if status := env.do(t, "GET", "/api/items?search=HVS", env.tokens[model.RoleStaff], nil, &items); status != http.StatusOK {
		t.Fatalf("list items: %d", status)
	}
	if len(items) != 1 {
		t.Errorf("expected 1 item, got %d", len(items))
	}

	if status := env.do(t, "PUT", fmt.Sprintf("/api/items/%d", item.ID), wh, map[string]any{
		"name": "Kertas HVS A4 80gsm", "unit": "rim", "minimum_stock": 10,
	}, &item); status != http.StatusOK || item.MinimumStock != 10 {
		t.Errorf("update item: status %d, minimum %d", status, item.MinimumStock)
	}

	if status := env.do(t, "DELETE", fmt.Sprintf("/api/items/%d", item.ID), wh, nil, nil); status != http.StatusOK {
		t.Fatalf("delete item: %d", status)
	}
	if status := env.do(t, "PUT", fmt.Sprintf("/api/items/%d", item.ID), wh, map[string]any{
		"name": "x", "unit": "rim",
	}, nil); status != http.StatusNotFound {
		t.Errorf("expected 404 updating deleted item, got %d", status)
	}
	if status := env.do(t, "GET", "/api/items/999/balance", wh, nil, nil); status != http.StatusNotFound {
		t.Errorf("expected 404 for unknown item balance, got %d", status)
	}
	if status := env.do(t, "GET", "/api/items/abc", wh, nil, nil); status != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed id, got %d", status)
	}
}

func TestItemImageUpload(t *testing.T) {
	env := setupTestServer(t)
	itemID := env.stockedItem(t, "Stapler", 0, 0)

	img := image.NewRGBA(image.Rect(0, 0, 400, 200))
	for x := 0; x < 400; x++ {
		for y := 0; y < 200; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: 80, B: 160, A: 255})
		}
	}
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, _ := mw.CreateFormFile("image", "stapler.png")
	if err := png.Encode(part, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	mw.Close()

	req, _ := http.NewRequest("PUT", fmt.Sprintf("%s/api/items/%d/image", env.server.URL, itemID), &buf)
	req.Header.Set("Authorization", "Bearer "+env.tokens[model.RoleWarehouse])
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for upload, got %d", resp.StatusCode)
	}

	for _, path := range []string{"image", "image?size=thumb"} {
		req, _ := http.NewRequest("GET", fmt.Sprintf("%s/api/items/%d/%s", env.server.URL, itemID, path), nil)
		req.Header.Set("Authorization", "Bearer "+env.tokens[model.RoleStaff])
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("get %s: %v", path, err)
		}
		decoded, _, err := image.Decode(resp.Body)
		resp.Body.Close()
		if err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
		if ct := resp.Header.Get("Content-Type"); ct != "image/jpeg" {
			t.Errorf("%s: expected image/jpeg, got %q", path, ct)
		}
		if path != "image" && decoded.Bounds().Dx() > 160 {
			t.Errorf("thumbnail too wide: %d", decoded.Bounds().Dx())
		}
	}
}

func TestRequestWorkflowAPI(t *testing.T) {
	env := setupTestServer(t)
	itemID := env.stockedItem(t, "Pulpen", 2, 10)
	staff := env.tokens[model.RoleStaff]

	var req model.Request
	if status := env.do(t, "POST", "/api/requests", staff, map[string]any{
		"note":  "for the front desk",
		"lines": []map[string]any{{"item_id": itemID, "quantity": 4}},
	}, &req); status != http.StatusCreated {
		t.Fatalf("create request: %d", status)
	}
	if req.Status != model.RequestPending || req.Number != "REQ-00000001" {
		t.Fatalf("unexpected request: %+v", req)
	}
	base := fmt.Sprintf("/api/requests/%d", req.ID)

	// Out of order: L2 before L1.
	if status := env.do(t, "POST", base+"/approve-l2", env.tokens[model.RoleManager], nil, nil); status != http.StatusConflict {
		t.Errorf("expected 409 for L2 on pending, got %d", status)
	}

	steps := []struct {
		role string
		path string
		body any
		want model.RequestStatus
	}{
		{model.RoleSupervisor, "/approve-l1", nil, model.RequestApprovedL1},
		{model.RoleManager, "/approve-l2", nil, model.RequestApprovedL2},
		{model.RoleHead, "/approve-l3", map[string]any{
			"lines": []map[string]any{{"detail_id": req.Details[0].ID, "quantity": 3}},
		}, model.RequestApprovedL3},
		{model.RoleWarehouse, "/distribute", nil, model.RequestDistributed},
		{model.RoleStaff, "/receive", nil, model.RequestReceived},
	}
	for _, s := range steps {
		if status := env.do(t, "POST", base+s.path, env.tokens[s.role], s.body, &req); status != http.StatusOK {
			t.Fatalf("%s by %s: %d", s.path, s.role, status)
		}
		if req.Status != s.want {
			t.Fatalf("%s: expected %s, got %s", s.path, s.want, req.Status)
		}
	}

	if got := req.Details[0].Given(); got != 3 {
		t.Errorf("expected 3 given, got %d", got)
	}
	if got := env.balance(t, itemID); got != 7 {
		t.Errorf("expected balance 7, got %d", got)
	}

	if status := env.do(t, "POST", base+"/return", staff, map[string]any{
		"lines": []map[string]any{{"detail_id": req.Details[0].ID, "quantity": 1}},
	}, &req); status != http.StatusOK {
		t.Fatalf("return: %d", status)
	}
	if got := env.balance(t, itemID); got != 8 {
		t.Errorf("expected balance 8 after return, got %d", got)
	}

	var detail struct {
		Request model.Request        `json:"request"`
		History []model.StatusChange `json:"history"`
	}
	if status := env.do(t, "GET", base, staff, nil, &detail); status != http.StatusOK {
		t.Fatalf("get request: %d", status)
	}
	// Created, five transitions and the return.
	if len(detail.History) != 7 {
		t.Errorf("expected 7 history rows, got %d", len(detail.History))
	}

	var entries []model.LedgerEntry
	if status := env.do(t, "GET", fmt.Sprintf("/api/items/%d/ledger", itemID), staff, nil, &entries); status != http.StatusOK {
		t.Fatalf("get ledger: %d", status)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 ledger entries, got %d", len(entries))
	}
	if entries[1].Reason != model.ReasonRequestDistribution || entries[1].ReferenceNumber != "REQ-00000001" {
		t.Errorf("unexpected distribution entry: %+v", entries[1])
	}
}

func TestRequestErrorsAPI(t *testing.T) {
	env := setupTestServer(t)
	itemID := env.stockedItem(t, "Tinta", 0, 5)
	otherID := env.stockedItem(t, "Map", 0, 1)
	staff := env.tokens[model.RoleStaff]

	var body struct {
		Error   string   `json:"error"`
		Details []string `json:"details"`
	}
	status := env.do(t, "POST", "/api/requests", staff, map[string]any{
		"lines": []map[string]any{
			{"item_id": itemID, "quantity": 99999},
			{"item_id": otherID, "quantity": 2},
		},
	}, &body)
	if status != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for insufficient stock, got %d", status)
	}
	if len(body.Details) != 2 {
		t.Errorf("expected both short lines reported, got %+v", body)
	}

	if status := env.do(t, "POST", "/api/requests", staff, map[string]any{"lines": []any{}}, nil); status != http.StatusBadRequest {
		t.Errorf("expected 400 for empty request, got %d", status)
	}
	if status := env.do(t, "POST", "/api/requests", staff, map[string]any{
		"lines": []map[string]any{{"item_id": 4242, "quantity": 1}},
	}, nil); status != http.StatusNotFound {
		t.Errorf("expected 404 for unknown item, got %d", status)
	}
	if status := env.do(t, "POST", "/api/requests/4242/approve-l1", env.tokens[model.RoleSupervisor], nil, nil); status != http.StatusNotFound {
		t.Errorf("expected 404 for unknown request, got %d", status)
	}

	var req model.Request
	env.do(t, "POST", "/api/requests", staff, map[string]any{
		"lines": []map[string]any{{"item_id": itemID, "quantity": 2}},
	}, &req)
	base := fmt.Sprintf("/api/requests/%d", req.ID)

	// The manager is not the approver due on a pending request.
	if status := env.do(t, "POST", base+"/reject", env.tokens[model.RoleManager], map[string]string{"reason": "no"}, nil); status != http.StatusForbidden {
		t.Errorf("expected 403 for out-of-turn reject, got %d", status)
	}
	if status := env.do(t, "POST", base+"/reject", env.tokens[model.RoleSupervisor], map[string]string{}, nil); status != http.StatusBadRequest {
		t.Errorf("expected 400 for reject without reason, got %d", status)
	}
	if status := env.do(t, "POST", base+"/reject", env.tokens[model.RoleSupervisor], map[string]string{"reason": "budget"}, &req); status != http.StatusOK {
		t.Fatalf("reject: %d", status)
	}
	if req.Status != model.RequestRejected || req.RejectionReason != "budget" {
		t.Errorf("unexpected rejected request: %+v", req)
	}
	if status := env.do(t, "POST", base+"/approve-l1", env.tokens[model.RoleSupervisor], nil, nil); status != http.StatusConflict {
		t.Errorf("expected 409 approving a rejected request, got %d", status)
	}
}

func TestApproveL3QuantityAPI(t *testing.T) {
	env := setupTestServer(t)
	itemID := env.stockedItem(t, "Spidol", 0, 10)

	var req model.Request
	env.do(t, "POST", "/api/requests", env.tokens[model.RoleStaff], map[string]any{
		"lines": []map[string]any{{"item_id": itemID, "quantity": 2}},
	}, &req)
	base := fmt.Sprintf("/api/requests/%d", req.ID)
	env.do(t, "POST", base+"/approve-l1", env.tokens[model.RoleSupervisor], nil, nil)
	env.do(t, "POST", base+"/approve-l2", env.tokens[model.RoleManager], nil, nil)

	status := env.do(t, "POST", base+"/approve-l3", env.tokens[model.RoleHead], map[string]any{
		"lines": []map[string]any{{"detail_id": req.Details[0].ID, "quantity": 5}},
	}, nil)
	if status != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 approving more than requested, got %d", status)
	}
}

func TestRequestVisibility(t *testing.T) {
	env := setupTestServer(t)
	itemID := env.stockedItem(t, "Amplop", 0, 10)

	var mine model.Request
	env.do(t, "POST", "/api/requests", env.tokens[model.RoleStaff], map[string]any{
		"lines": []map[string]any{{"item_id": itemID, "quantity": 1}},
	}, &mine)
	var theirs model.Request
	env.do(t, "POST", "/api/requests", env.tokens[model.RoleWarehouse], map[string]any{
		"lines": []map[string]any{{"item_id": itemID, "quantity": 1}},
	}, &theirs)

	var list []model.Request
	if status := env.do(t, "GET", "/api/requests", env.tokens[model.RoleStaff], nil, &list); status != http.StatusOK {
		t.Fatalf("list: %d", status)
	}
	if len(list) != 1 || list[0].ID != mine.ID {
		t.Errorf("staff should only see their own request, got %+v", list)
	}
	if status := env.do(t, "GET", fmt.Sprintf("/api/requests/%d", theirs.ID), env.tokens[model.RoleStaff], nil, nil); status != http.StatusNotFound {
		t.Errorf("expected 404 for someone else's request, got %d", status)
	}

	if status := env.do(t, "GET", "/api/requests?status=pending", env.tokens[model.RoleSupervisor], nil, &list); status != http.StatusOK {
		t.Fatalf("list as supervisor: %d", status)
	}
	if len(list) != 2 {
		t.Errorf("supervisor should see 2 pending requests, got %d", len(list))
	}
}

func TestPurchaseCompleteTwice(t *testing.T) {
	env := setupTestServer(t)
	itemID := env.stockedItem(t, "Lakban", 0, 0)
	wh := env.tokens[model.RoleWarehouse]

	var p model.Purchase
	env.do(t, "POST", "/api/purchases", wh, map[string]any{
		"lines": []map[string]any{{"item_id": itemID, "quantity": 6}},
	}, &p)
	base := fmt.Sprintf("/api/purchases/%d", p.ID)

	if status := env.do(t, "POST", base+"/complete", wh, nil, nil); status != http.StatusConflict {
		t.Errorf("expected 409 completing a draft, got %d", status)
	}
	if status := env.do(t, "POST", base+"/receive", wh, map[string]any{
		"lines": []map[string]any{{"line_id": p.Lines[0].ID, "quantity": 5}},
	}, nil); status != http.StatusOK {
		t.Fatalf("receive: %d", status)
	}

	var out struct {
		Purchase         model.Purchase `json:"purchase"`
		AlreadyCompleted bool           `json:"already_completed"`
	}
	if status := env.do(t, "POST", base+"/complete", wh, nil, &out); status != http.StatusOK || out.AlreadyCompleted {
		t.Fatalf("first complete: status %d, %+v", status, out)
	}
	if status := env.do(t, "POST", base+"/complete", wh, nil, &out); status != http.StatusOK || !out.AlreadyCompleted {
		t.Fatalf("second complete: status %d, %+v", status, out)
	}
	if out.Purchase.Status != model.PurchaseCompleted {
		t.Errorf("expected completed purchase, got %s", out.Purchase.Status)
	}
	if got := env.balance(t, itemID); got != 5 {
		t.Errorf("expected balance 5, got %d", got)
	}
}

func TestOpnameAPIFlow(t *testing.T) {
	env := setupTestServer(t)
	itemID := env.stockedItem(t, "Klip", 0, 8)
	wh := env.tokens[model.RoleWarehouse]

	var o model.StockOpname
	if status := env.do(t, "POST", "/api/opnames", wh, map[string]any{
		"item_ids": []int64{itemID},
	}, &o); status != http.StatusCreated {
		t.Fatalf("create opname: %d", status)
	}
	base := fmt.Sprintf("/api/opnames/%d", o.ID)

	if status := env.do(t, "GET", base+"/report", wh, nil, nil); status != http.StatusConflict {
		t.Errorf("expected 409 for report before approval, got %d", status)
	}
	if status := env.do(t, "POST", base+"/count", wh, map[string]any{
		"lines": []map[string]any{{"line_id": o.Lines[0].ID, "counted_quantity": 6}},
	}, &o); status != http.StatusOK {
		t.Fatalf("count: %d", status)
	}
	if o.Lines[0].VarianceValue() != -2 {
		t.Errorf("expected variance -2, got %d", o.Lines[0].VarianceValue())
	}
	if status := env.do(t, "POST", base+"/approve", env.tokens[model.RoleHead], nil, &o); status != http.StatusOK {
		t.Fatalf("approve: %d", status)
	}
	if got := env.balance(t, itemID); got != 6 {
		t.Errorf("expected balance 6, got %d", got)
	}

	var rec struct {
		TotalShortage int    `json:"total_shortage"`
		Accuracy      string `json:"accuracy_percent"`
	}
	if status := env.do(t, "GET", base+"/report", wh, nil, &rec); status != http.StatusOK {
		t.Fatalf("report: %d", status)
	}
	if rec.TotalShortage != 2 || rec.Accuracy != "0" {
		t.Errorf("unexpected reconciliation: %+v", rec)
	}
}

func TestOpnameStaleSnapshotAPI(t *testing.T) {
	env := setupTestServer(t)
	itemID := env.stockedItem(t, "Penggaris", 0, 4)
	wh := env.tokens[model.RoleWarehouse]

	var o model.StockOpname
	env.do(t, "POST", "/api/opnames", wh, map[string]any{"item_ids": []int64{itemID}}, &o)
	env.do(t, "POST", fmt.Sprintf("/api/opnames/%d/count", o.ID), wh, map[string]any{
		"lines": []map[string]any{{"line_id": o.Lines[0].ID, "counted_quantity": 4}},
	}, nil)

	// Stock moves after the snapshot.
	var p model.Purchase
	env.do(t, "POST", "/api/purchases", wh, map[string]any{
		"lines": []map[string]any{{"item_id": itemID, "quantity": 1}},
	}, &p)
	env.do(t, "POST", fmt.Sprintf("/api/purchases/%d/receive", p.ID), wh, nil, nil)
	env.do(t, "POST", fmt.Sprintf("/api/purchases/%d/complete", p.ID), wh, nil, nil)

	status := env.do(t, "POST", fmt.Sprintf("/api/opnames/%d/approve", o.ID), env.tokens[model.RoleHead], nil, nil)
	if status != http.StatusConflict {
		t.Errorf("expected 409 for stale snapshot, got %d", status)
	}
	if got := env.balance(t, itemID); got != 5 {
		t.Errorf("expected balance 5, got %d", got)
	}
}

func TestStockListAndReconcile(t *testing.T) {
	env := setupTestServer(t)
	low := env.stockedItem(t, "Isolasi", 10, 3)
	env.stockedItem(t, "Gunting", 1, 4)

	var rows []struct {
		ItemID       int64 `json:"item_id"`
		Balance      int   `json:"balance"`
		BelowMinimum bool  `json:"below_minimum"`
	}
	if status := env.do(t, "GET", "/api/stock?low=1", env.tokens[model.RoleStaff], nil, &rows); status != http.StatusOK {
		t.Fatalf("stock: %d", status)
	}
	if len(rows) != 1 || rows[0].ItemID != low || !rows[0].BelowMinimum {
		t.Errorf("expected only the low item, got %+v", rows)
	}

	if _, err := env.db.Exec(`UPDATE ledger_balances SET balance = 99 WHERE item_id = ?`, low); err != nil {
		t.Fatalf("corrupt cache: %v", err)
	}
	var out struct {
		Repaired []int64 `json:"repaired_items"`
	}
	if status := env.do(t, "POST", "/api/ledger/reconcile", env.tokens[model.RoleAdmin], nil, &out); status != http.StatusOK {
		t.Fatalf("reconcile: %d", status)
	}
	if len(out.Repaired) != 1 || out.Repaired[0] != low {
		t.Errorf("expected item %d repaired, got %v", low, out.Repaired)
	}
	if got := env.balance(t, low); got != 3 {
		t.Errorf("expected balance 3 after reconcile, got %d", got)
	}
}

func TestStockCardAPI(t *testing.T) {
	env := setupTestServer(t)
	itemID := env.stockedItem(t, "Binder", 0, 6)

	var card struct {
		OpeningBalance int `json:"opening_balance"`
		TotalIn        int `json:"total_in"`
		ClosingBalance int `json:"closing_balance"`
	}
	if status := env.do(t, "GET", fmt.Sprintf("/api/items/%d/stock-card", itemID), env.tokens[model.RoleStaff], nil, &card); status != http.StatusOK {
		t.Fatalf("stock card: %d", status)
	}
	if card.OpeningBalance != 0 || card.TotalIn != 6 || card.ClosingBalance != 6 {
		t.Errorf("unexpected stock card: %+v", card)
	}

	if status := env.do(t, "GET", fmt.Sprintf("/api/items/%d/stock-card?from=yesterday", itemID), env.tokens[model.RoleStaff], nil, nil); status != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed date, got %d", status)
	}
	if status := env.do(t, "GET", fmt.Sprintf("/api/items/%d/stock-card?from=2026-03-01&to=2026-02-01", itemID), env.tokens[model.RoleStaff], nil, nil); status != http.StatusBadRequest {
		t.Errorf("expected 400 for inverted range, got %d", status)
	}
}

func TestRequestIDHeader(t *testing.T) {
	env := setupTestServer(t)

	resp, err := http.Get(env.server.URL + "/api/items")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.Header.Get(RequestIDHeader) == "" {
		t.Error("expected a generated request id")
	}

	req, _ := http.NewRequest("GET", env.server.URL+"/api/items", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if got := resp.Header.Get(RequestIDHeader); got != "abc-123" {
		t.Errorf("expected client request id echoed, got %q", got)
	}
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("item 1: %w", store.ErrNotFound), http.StatusNotFound},
		{&store.TransitionError{Entity: "request", ID: 1, From: "pending", Action: "distribute"}, http.StatusConflict},
		{&store.SnapshotError{ItemID: 1}, http.StatusConflict},
		{&store.StockError{ItemID: 1, Delta: -3}, http.StatusUnprocessableEntity},
		{&store.QuantityError{Kind: store.ErrInvalidReturnQuantity}, http.StatusUnprocessableEntity},
		{store.ErrInvalidInput, http.StatusBadRequest},
		{io.ErrUnexpectedEOF, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := errorStatus(tt.err); got != tt.want {
			t.Errorf("errorStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestValidationFieldNames(t *testing.T) {
	env := setupTestServer(t)

	var body struct {
		Fields map[string]string `json:"fields"`
	}
	status := env.do(t, "POST", "/api/requests", env.tokens[model.RoleStaff], map[string]any{
		"lines": []map[string]any{{"item_id": 1, "quantity": 0}},
	}, &body)
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", status)
	}
	found := false
	for field := range body.Fields {
		if strings.HasPrefix(field, "lines[0].quantity") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected lines[0].quantity in %v", body.Fields)
	}
}
