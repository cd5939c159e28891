package api

import (
	"net/http"

	"github.com/atkgudang/persediaan/internal/model"
	"github.com/atkgudang/persediaan/internal/workflow"
)

// NewRouter creates the API router with all endpoints registered.
func NewRouter(engine *workflow.Engine, jwtSecret string) http.Handler {
	mux := http.NewServeMux()

	authHandler := &AuthHandler{DB: engine.DB, JWTSecret: jwtSecret}
	usersHandler := &UsersHandler{DB: engine.DB}
	itemsHandler := &ItemsHandler{Engine: engine}
	stockHandler := &StockHandler{Engine: engine}
	requestsHandler := &RequestsHandler{Engine: engine}
	purchasesHandler := &PurchasesHandler{Engine: engine}
	opnamesHandler := &OpnamesHandler{Engine: engine}

	authMW := AuthMiddleware(jwtSecret, engine.DB)
	authed := func(h http.HandlerFunc) http.Handler {
		return authMW(h)
	}
	can := func(capability model.Capability, h http.HandlerFunc) http.Handler {
		return authMW(RequireCapability(capability)(h))
	}

	// Public: login.
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)

	mux.Handle("PUT /api/auth/password", authed(authHandler.ChangePassword))
	mux.Handle("POST /api/auth/logout", authed(authHandler.Logout))

	// Users.
	mux.Handle("GET /api/users", can(model.CapManageUsers, usersHandler.List))
	mux.Handle("POST /api/users", can(model.CapManageUsers, usersHandler.Create))
	mux.Handle("GET /api/users/{id}", can(model.CapManageUsers, usersHandler.Get))
	mux.Handle("PUT /api/users/{id}", can(model.CapManageUsers, usersHandler.Update))
	mux.Handle("PUT /api/users/{id}/password", can(model.CapManageUsers, usersHandler.ResetPassword))
	mux.Handle("DELETE /api/users/{id}", can(model.CapManageUsers, usersHandler.Delete))

	// Items: read (all roles), write (warehouse).
	mux.Handle("GET /api/items", authed(itemsHandler.List))
	mux.Handle("POST /api/items", can(model.CapManageItems, itemsHandler.Create))
	mux.Handle("GET /api/items/{id}", authed(itemsHandler.Get))
	mux.Handle("PUT /api/items/{id}", can(model.CapManageItems, itemsHandler.Update))
	mux.Handle("DELETE /api/items/{id}", can(model.CapManageItems, itemsHandler.Delete))
	mux.Handle("PUT /api/items/{id}/image", can(model.CapManageItems, itemsHandler.UploadImage))
	mux.Handle("GET /api/items/{id}/image", authed(itemsHandler.GetImage))
	mux.Handle("GET /api/items/{id}/balance", authed(itemsHandler.Balance))
	mux.Handle("GET /api/items/{id}/ledger", authed(itemsHandler.Ledger))
	mux.Handle("GET /api/items/{id}/stock-card", authed(itemsHandler.StockCard))

	// Stock overview and cache maintenance.
	mux.Handle("GET /api/stock", authed(stockHandler.List))
	mux.Handle("POST /api/ledger/reconcile", can(model.CapReconcileStock, stockHandler.Reconcile))

	// Requests. Reject, receive and return check the caller per request.
	mux.Handle("POST /api/requests", can(model.CapRequest, requestsHandler.Create))
	mux.Handle("GET /api/requests", authed(requestsHandler.List))
	mux.Handle("GET /api/requests/{id}", authed(requestsHandler.Get))
	mux.Handle("POST /api/requests/{id}/approve-l1", can(model.CapApproveL1, requestsHandler.ApproveL1))
	mux.Handle("POST /api/requests/{id}/approve-l2", can(model.CapApproveL2, requestsHandler.ApproveL2))
	mux.Handle("POST /api/requests/{id}/approve-l3", can(model.CapApproveL3, requestsHandler.ApproveL3))
	mux.Handle("POST /api/requests/{id}/reject", authed(requestsHandler.Reject))
	mux.Handle("POST /api/requests/{id}/distribute", can(model.CapDistribute, requestsHandler.Distribute))
	mux.Handle("POST /api/requests/{id}/receive", authed(requestsHandler.Receive))
	mux.Handle("POST /api/requests/{id}/return", authed(requestsHandler.Return))

	// Purchases (warehouse).
	mux.Handle("POST /api/purchases", can(model.CapPurchase, purchasesHandler.Create))
	mux.Handle("GET /api/purchases", authed(purchasesHandler.List))
	mux.Handle("GET /api/purchases/{id}", authed(purchasesHandler.Get))
	mux.Handle("POST /api/purchases/{id}/receive", can(model.CapPurchase, purchasesHandler.Receive))
	mux.Handle("POST /api/purchases/{id}/complete", can(model.CapPurchase, purchasesHandler.Complete))

	// Stock counts: counted by the warehouse, approved by the head.
	mux.Handle("POST /api/opnames", can(model.CapOpnameCount, opnamesHandler.Create))
	mux.Handle("GET /api/opnames", authed(opnamesHandler.List))
	mux.Handle("GET /api/opnames/{id}", authed(opnamesHandler.Get))
	mux.Handle("POST /api/opnames/{id}/count", can(model.CapOpnameCount, opnamesHandler.Count))
	mux.Handle("POST /api/opnames/{id}/approve", can(model.CapOpnameApprove, opnamesHandler.Approve))
	mux.Handle("GET /api/opnames/{id}/report", authed(opnamesHandler.Report))

	return mux
}
