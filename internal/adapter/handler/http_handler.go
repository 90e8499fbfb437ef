package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/com2u/Pickup/internal/core/domain"
	"github.com/com2u/Pickup/internal/core/service"
	"github.com/com2u/Pickup/internal/port"
)

// HTTPHandler maps the JSON API onto the core services. All request
// bodies are decoded into typed structs and validated here, before
// anything reaches the core.
type HTTPHandler struct {
	auth     *service.AuthService
	catalog  *service.CatalogService
	orders   *service.OrderService
	ledger   *service.LedgerService
	delivery *service.DeliveryService
	cache    port.CacheRepository
	hub      *Hub
	log      *zap.Logger
}

func NewHTTPHandler(
	auth *service.AuthService,
	catalog *service.CatalogService,
	orders *service.OrderService,
	ledger *service.LedgerService,
	delivery *service.DeliveryService,
	cache port.CacheRepository,
	hub *Hub,
	log *zap.Logger,
) *HTTPHandler {
	return &HTTPHandler{
		auth:     auth,
		catalog:  catalog,
		orders:   orders,
		ledger:   ledger,
		delivery: delivery,
		cache:    cache,
		hub:      hub,
		log:      log,
	}
}

// Router builds the route table. CORS is applied by the caller around
// the returned router.
func (h *HTTPHandler) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", h.healthCheck).Methods("GET")
	r.HandleFunc("/ws", h.hub.ServeWS)

	// The WebSocket upgrade needs the raw ResponseWriter, so request
	// logging wraps only the API subtree.
	api := r.PathPrefix("/api").Subrouter()
	api.Use(RequestLogger(h.log))
	api.HandleFunc("/auth/login", h.login).Methods("POST")

	authed := api.NewRoute().Subrouter()
	authed.Use(h.requireAuth, h.idempotencyGuard)

	authed.HandleFunc("/auth/me", h.currentUser).Methods("GET")
	authed.HandleFunc("/auth/register", h.register).Methods("POST")
	authed.HandleFunc("/auth/users", h.listUsers).Methods("GET")
	authed.HandleFunc("/auth/users/{id:[0-9]+}/password", h.changePassword).Methods("POST")
	authed.HandleFunc("/auth/users/{id:[0-9]+}", h.deleteUser).Methods("DELETE")

	authed.HandleFunc("/items", h.listItems).Methods("GET")
	authed.HandleFunc("/items", h.createItem).Methods("POST")
	authed.HandleFunc("/items/{id:[0-9]+}", h.updateItem).Methods("PUT")
	authed.HandleFunc("/items/{id:[0-9]+}", h.deleteItem).Methods("DELETE")

	authed.HandleFunc("/orders", h.listOrders).Methods("GET")
	authed.HandleFunc("/orders", h.createOrder).Methods("POST")
	authed.HandleFunc("/orders/batch", h.applyBatch).Methods("POST")
	authed.HandleFunc("/orders/confirm-delivery", h.confirmDelivery).Methods("POST")
	authed.HandleFunc("/orders/balances", h.balances).Methods("GET")
	authed.HandleFunc("/orders/balance-history", h.balanceHistory).Methods("GET")
	authed.HandleFunc("/orders/balance-correction", h.balanceCorrection).Methods("POST")

	return r
}

// ---- auth ----

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type userResponse struct {
	ID        int64      `json:"id"`
	Username  string     `json:"username"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

type loginResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

func (h *HTTPHandler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	token, user, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Token: token,
		User:  newUserResponse(user, true),
	})
}

func (h *HTTPHandler) currentUser(w http.ResponseWriter, r *http.Request) {
	ident, _ := identityFrom(r.Context())
	user, err := h.auth.CurrentUser(r.Context(), ident)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(user, true))
}

func (h *HTTPHandler) register(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	ident, _ := identityFrom(r.Context())
	user, err := h.auth.Register(r.Context(), ident, req.Username, req.Password)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newUserResponse(user, true))
}

func (h *HTTPHandler) listUsers(w http.ResponseWriter, r *http.Request) {
	ident, _ := identityFrom(r.Context())
	users, err := h.auth.ListUsers(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	// created_at is only exposed to privileged callers.
	resp := make([]userResponse, 0, len(users))
	for i := range users {
		resp = append(resp, newUserResponse(&users[i], ident.IsPrivileged))
	}
	writeJSON(w, http.StatusOK, resp)
}

type passwordRequest struct {
	Password string `json:"password"`
}

func (h *HTTPHandler) changePassword(w http.ResponseWriter, r *http.Request) {
	targetID, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	var req passwordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Password == "" {
		writeError(w, http.StatusBadRequest, "password is required")
		return
	}

	ident, _ := identityFrom(r.Context())
	if err := h.auth.ChangePassword(r.Context(), ident, targetID, req.Password); err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeMessage(w, "Password updated successfully")
}

func (h *HTTPHandler) deleteUser(w http.ResponseWriter, r *http.Request) {
	targetID, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	ident, _ := identityFrom(r.Context())
	if err := h.auth.DeleteUser(r.Context(), ident, targetID); err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeMessage(w, "User deleted successfully")
}

// ---- items ----

type itemRequest struct {
	Name  string   `json:"name"`
	Price *float64 `json:"price"`
}

type itemResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Price     float64   `json:"price"`
	CreatedAt time.Time `json:"created_at"`
}

func newItemResponse(item *domain.Item) itemResponse {
	return itemResponse{
		ID:        item.ID,
		Name:      item.Name,
		Price:     item.Price.Float64(),
		CreatedAt: item.CreatedAt,
	}
}

func (h *HTTPHandler) listItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.catalog.ListItems(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	resp := make([]itemResponse, 0, len(items))
	for i := range items {
		resp = append(resp, newItemResponse(&items[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *HTTPHandler) createItem(w http.ResponseWriter, r *http.Request) {
	name, price, ok := decodeItemRequest(w, r)
	if !ok {
		return
	}
	item, err := h.catalog.CreateItem(r.Context(), name, price)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newItemResponse(item))
}

func (h *HTTPHandler) updateItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid item id")
		return
	}
	name, price, ok := decodeItemRequest(w, r)
	if !ok {
		return
	}
	item, err := h.catalog.UpdateItem(r.Context(), id, name, price)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newItemResponse(item))
}

func (h *HTTPHandler) deleteItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid item id")
		return
	}
	if err := h.catalog.DeleteItem(r.Context(), id); err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeMessage(w, "Item deleted successfully")
}

func decodeItemRequest(w http.ResponseWriter, r *http.Request) (string, domain.Cents, bool) {
	var req itemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return "", 0, false
	}
	if req.Name == "" || req.Price == nil || !domain.IsFiniteAmount(*req.Price) {
		writeError(w, http.StatusBadRequest, "name and price are required")
		return "", 0, false
	}
	return req.Name, domain.CentsFromFloat(*req.Price), true
}

// ---- orders ----

type orderRequest struct {
	ItemID   int64 `json:"itemId"`
	Quantity *int  `json:"quantity"`
}

type batchOrderRequest struct {
	UserID   int64 `json:"userId"`
	ItemID   int64 `json:"itemId"`
	Quantity int   `json:"quantity"`
}

type batchRequest struct {
	Orders []batchOrderRequest `json:"orders"`
}

type orderViewResponse struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	ItemID    int64     `json:"item_id"`
	Quantity  int       `json:"quantity"`
	CreatedAt time.Time `json:"created_at"`
	ItemName  string    `json:"item_name"`
	Username  string    `json:"username"`
}

func newOrderViewResponse(o *domain.OpenOrderView) orderViewResponse {
	return orderViewResponse{
		ID:        o.ID,
		UserID:    o.UserID,
		ItemID:    o.ItemID,
		Quantity:  o.Quantity,
		CreatedAt: o.CreatedAt,
		ItemName:  o.ItemName,
		Username:  o.Username,
	}
}

func (h *HTTPHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListOrders(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	resp := make([]orderViewResponse, 0, len(orders))
	for i := range orders {
		resp = append(resp, newOrderViewResponse(&orders[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *HTTPHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ItemID == 0 || req.Quantity == nil {
		writeError(w, http.StatusBadRequest, "valid item ID and quantity are required")
		return
	}

	ident, _ := identityFrom(r.Context())
	if err := h.orders.PlaceOrder(r.Context(), ident, req.ItemID, *req.Quantity); err != nil {
		h.writeServiceError(w, err)
		return
	}

	// Return the stored reservation joined with names.
	orders, err := h.orders.ListOrders(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	for i := range orders {
		if orders[i].UserID == ident.UserID && orders[i].ItemID == req.ItemID {
			writeJSON(w, http.StatusCreated, newOrderViewResponse(&orders[i]))
			return
		}
	}
	writeJSON(w, http.StatusCreated, nil)
}

func (h *HTTPHandler) applyBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "orders must be an array")
		return
	}

	batch := make([]domain.OrderMutation, 0, len(req.Orders))
	for _, o := range req.Orders {
		batch = append(batch, domain.OrderMutation{
			UserID:   o.UserID,
			ItemID:   o.ItemID,
			Quantity: o.Quantity,
		})
	}

	ident, _ := identityFrom(r.Context())
	if err := h.orders.ApplyBatch(r.Context(), ident, batch); err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeMessage(w, "Orders updated successfully")
}

// ---- settlement and ledger ----

type confirmDeliveryRequest struct {
	UserID     int64              `json:"userId"`
	UserTotals map[string]float64 `json:"userTotals"`
}

type settlementResponse struct {
	Ref              string             `json:"ref"`
	DeliveringUserID int64              `json:"delivering_user_id"`
	UserTotals       map[string]float64 `json:"user_totals"`
	Total            float64            `json:"total"`
	SettledAt        time.Time          `json:"settled_at"`
}

func (h *HTTPHandler) confirmDelivery(w http.ResponseWriter, r *http.Request) {
	var req confirmDeliveryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == 0 {
		writeError(w, http.StatusBadRequest, "user ID is required")
		return
	}

	ident, _ := identityFrom(r.Context())
	settlement, err := h.delivery.ConfirmDelivery(r.Context(), ident, req.UserID, req.UserTotals)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	totals := make(map[string]float64, len(settlement.Totals))
	for _, t := range settlement.Totals {
		totals[t.Username] = t.Amount.Float64()
	}
	writeJSON(w, http.StatusOK, settlementResponse{
		Ref:              settlement.Ref.String(),
		DeliveringUserID: settlement.DeliveringUserID,
		UserTotals:       totals,
		Total:            settlement.Total.Float64(),
		SettledAt:        settlement.SettledAt,
	})
}

type balanceResponse struct {
	ID             int64   `json:"id"`
	Username       string  `json:"username"`
	CurrentBalance float64 `json:"current_balance"`
}

func (h *HTTPHandler) balances(w http.ResponseWriter, r *http.Request) {
	balances, err := h.ledger.Balances(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	resp := make([]balanceResponse, 0, len(balances))
	for _, b := range balances {
		resp = append(resp, balanceResponse{
			ID:             b.UserID,
			Username:       b.Username,
			CurrentBalance: b.Balance.Float64(),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type historyEntryResponse struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	Amount      float64   `json:"amount"`
	Description string    `json:"description"`
	EntryRef    string    `json:"entry_ref"`
	CreatedAt   time.Time `json:"created_at"`
	Username    string    `json:"username"`
}

func (h *HTTPHandler) balanceHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.ledger.History(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	resp := make([]historyEntryResponse, 0, len(history))
	for _, e := range history {
		resp = append(resp, historyEntryResponse{
			ID:          e.ID,
			UserID:      e.UserID,
			Amount:      e.Amount.Float64(),
			Description: e.Description,
			EntryRef:    e.EntryRef.String(),
			CreatedAt:   e.CreatedAt,
			Username:    e.Username,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type correctionRequest struct {
	UserID      int64    `json:"userId"`
	Amount      *float64 `json:"amount"`
	Description string   `json:"description"`
}

func (h *HTTPHandler) balanceCorrection(w http.ResponseWriter, r *http.Request) {
	var req correctionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == 0 || req.Amount == nil || !domain.IsFiniteAmount(*req.Amount) || req.Description == "" {
		writeError(w, http.StatusBadRequest, "user ID, amount, and description are required")
		return
	}

	entry, err := h.ledger.PostCorrection(r.Context(), req.UserID, domain.CentsFromFloat(*req.Amount), req.Description)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, historyEntryResponse{
		ID:          entry.ID,
		UserID:      entry.UserID,
		Amount:      entry.Amount.Float64(),
		Description: entry.Description,
		EntryRef:    entry.EntryRef.String(),
		CreatedAt:   entry.CreatedAt,
	})
}

func (h *HTTPHandler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ---- helpers ----

func newUserResponse(u *domain.User, withCreatedAt bool) userResponse {
	resp := userResponse{ID: u.ID, Username: u.Username}
	if withCreatedAt {
		createdAt := u.CreatedAt
		resp.CreatedAt = &createdAt
	}
	return resp
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
}

func (h *HTTPHandler) writeServiceError(w http.ResponseWriter, err error) {
	cause := err
	// A batch failure maps to the status of its underlying cause while
	// keeping the request index in the message.
	var be *domain.BatchError
	if errors.As(err, &be) {
		cause = be.Err
	}

	status := statusFor(cause)
	message := err.Error()
	if errors.Is(cause, domain.ErrInvalidCredentials) {
		message = "Invalid credentials"
	}
	if status == http.StatusInternalServerError {
		message = "Internal server error"
		h.log.Error("request failed", zap.Error(err))
	}
	writeError(w, status, message)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrInvalidItem),
		errors.Is(err, domain.ErrUsernameTaken),
		errors.Is(err, domain.ErrNothingToSettle):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden),
		errors.Is(err, domain.ErrAdminProtected):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrUserNotFound),
		errors.Is(err, domain.ErrItemNotFound),
		errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrDuplicateRequest):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeMessage(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusOK, messageResponse{Message: message})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
