package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/stockledger/api/middleware"
	"github.com/angelmondragon/stockledger/internal/adjustments"
	cartsvc "github.com/angelmondragon/stockledger/internal/cart"
	"github.com/angelmondragon/stockledger/internal/movements"
	"github.com/angelmondragon/stockledger/internal/stats"
	"github.com/angelmondragon/stockledger/pkg/config"
	"github.com/angelmondragon/stockledger/pkg/db/models"
	"github.com/angelmondragon/stockledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger/pkg/errors"
	"github.com/angelmondragon/stockledger/pkg/pagination"
)

func withRoute(req *http.Request, params map[string]string) *http.Request {
	rc := chi.NewRouteContext()
	for k, v := range params {
		rc.URLParams.Add(k, v)
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}

func asUser(req *http.Request, userID uuid.UUID, role enums.ActorRole) *http.Request {
	ctx := middleware.WithUserID(req.Context(), userID.String())
	ctx = middleware.WithRole(ctx, string(role))
	return req.WithContext(ctx)
}

func decodeData(t *testing.T, resp *httptest.ResponseRecorder, dest any) {
	t.Helper()
	envelope := struct {
		Data any `json:"data"`
	}{Data: dest}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func errorCode(t *testing.T, resp *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	return payload.Error.Code
}

type stubCart struct {
	cart       *cartsvc.CartDTO
	err        error
	customerID uuid.UUID
	variantID  uuid.UUID
	itemID     uuid.UUID
	quantity   int
}

func (s *stubCart) GetCart(_ context.Context, storeID, customerID uuid.UUID) (*cartsvc.CartDTO, error) {
	s.customerID = customerID
	return s.cart, s.err
}

func (s *stubCart) AddItem(_ context.Context, storeID, customerID, variantID uuid.UUID, quantity int) (*cartsvc.CartDTO, error) {
	s.customerID, s.variantID, s.quantity = customerID, variantID, quantity
	return s.cart, s.err
}

func (s *stubCart) UpdateQuantity(_ context.Context, storeID, customerID, itemID uuid.UUID, quantity int) (*cartsvc.CartDTO, error) {
	s.customerID, s.itemID, s.quantity = customerID, itemID, quantity
	return s.cart, s.err
}

func (s *stubCart) RemoveItem(_ context.Context, storeID, customerID, itemID uuid.UUID) (*cartsvc.CartDTO, error) {
	s.customerID, s.itemID = customerID, itemID
	return s.cart, s.err
}

func (s *stubCart) ReleaseCart(context.Context, uuid.UUID, time.Time, string) (*cartsvc.ReleaseResult, error) {
	return nil, errors.New("not used")
}

func TestCartFetchAnonymousReturnsEmptyCart(t *testing.T) {
	storeID := uuid.New()
	svc := &stubCart{err: errors.New("should not be called")}

	req := withRoute(httptest.NewRequest(http.MethodGet, "/cart", nil), map[string]string{"storeId": storeID.String()})
	resp := httptest.NewRecorder()
	CartFetch(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var body map[string]any
	decodeData(t, resp, &body)
	items, ok := body["orderItems"].([]any)
	if !ok || len(items) != 0 {
		t.Fatalf("expected empty orderItems, got %v", body["orderItems"])
	}
}

func TestCartAddItem(t *testing.T) {
	storeID, userID, variantID := uuid.New(), uuid.New(), uuid.New()
	svc := &stubCart{cart: &cartsvc.CartDTO{StoreID: storeID, OrderItems: []cartsvc.OrderItemDTO{{VariantID: variantID, Quantity: 2}}, TotalQuantity: 2}}

	body := `{"variantId":"` + variantID.String() + `","quantity":2}`
	req := withRoute(httptest.NewRequest(http.MethodPost, "/cart", strings.NewReader(body)), map[string]string{"storeId": storeID.String()})
	req = asUser(req, userID, enums.ActorRoleCustomer)
	resp := httptest.NewRecorder()
	CartAddItem(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.customerID != userID || svc.variantID != variantID || svc.quantity != 2 {
		t.Fatalf("unexpected service call %+v", svc)
	}
	var cart cartsvc.CartDTO
	decodeData(t, resp, &cart)
	if cart.TotalQuantity != 2 {
		t.Fatalf("expected total 2 got %d", cart.TotalQuantity)
	}
}

func TestCartAddItemErrors(t *testing.T) {
	storeID := uuid.New()
	tests := []struct {
		name   string
		body   string
		user   bool
		svcErr error
		status int
	}{
		{"no session", `{"variantId":"` + uuid.NewString() + `","quantity":1}`, false, nil, http.StatusUnauthorized},
		{"zero quantity", `{"variantId":"` + uuid.NewString() + `","quantity":0}`, true, nil, http.StatusBadRequest},
		{"insufficient", `{"variantId":"` + uuid.NewString() + `","quantity":3}`, true, pkgerrors.New(pkgerrors.CodeInsufficientStock, "only 2 available"), http.StatusBadRequest},
		{"no stock item", `{"variantId":"` + uuid.NewString() + `","quantity":1}`, true, pkgerrors.New(pkgerrors.CodeNotFound, "stock item not found"), http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubCart{err: tt.svcErr}
			req := withRoute(httptest.NewRequest(http.MethodPost, "/cart", strings.NewReader(tt.body)), map[string]string{"storeId": storeID.String()})
			if tt.user {
				req = asUser(req, uuid.New(), enums.ActorRoleCustomer)
			}
			resp := httptest.NewRecorder()
			CartAddItem(svc, nil).ServeHTTP(resp, req)
			if resp.Code != tt.status {
				t.Fatalf("expected %d got %d", tt.status, resp.Code)
			}
		})
	}
}

func TestCartUpdateAndRemove(t *testing.T) {
	storeID, userID, itemID := uuid.New(), uuid.New(), uuid.New()
	svc := &stubCart{cart: cartsvc.EmptyCart(storeID, &userID)}

	body := `{"itemId":"` + itemID.String() + `","quantity":5}`
	req := withRoute(httptest.NewRequest(http.MethodPatch, "/cart", strings.NewReader(body)), map[string]string{"storeId": storeID.String()})
	resp := httptest.NewRecorder()
	CartUpdateItem(svc, nil).ServeHTTP(resp, asUser(req, userID, enums.ActorRoleCustomer))
	if resp.Code != http.StatusOK || svc.itemID != itemID || svc.quantity != 5 {
		t.Fatalf("update: status %d, call %+v", resp.Code, svc)
	}

	req = withRoute(httptest.NewRequest(http.MethodDelete, "/cart", nil), map[string]string{"storeId": storeID.String()})
	resp = httptest.NewRecorder()
	CartRemoveItem(svc, nil).ServeHTTP(resp, asUser(req, userID, enums.ActorRoleCustomer))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without itemId, got %d", resp.Code)
	}

	other := uuid.New()
	req = withRoute(httptest.NewRequest(http.MethodDelete, "/cart?itemId="+other.String(), nil), map[string]string{"storeId": storeID.String()})
	resp = httptest.NewRecorder()
	CartRemoveItem(svc, nil).ServeHTTP(resp, asUser(req, userID, enums.ActorRoleCustomer))
	if resp.Code != http.StatusOK || svc.itemID != other {
		t.Fatalf("remove: status %d, item %s", resp.Code, svc.itemID)
	}
}

type stubRecorder struct {
	input  adjustments.RecordInput
	result *adjustments.Result
	err    error
}

func (s *stubRecorder) RecordMovement(_ context.Context, input adjustments.RecordInput) (*adjustments.Result, error) {
	s.input = input
	return s.result, s.err
}

func TestStockMovementCreate(t *testing.T) {
	storeID, stockItemID, userID := uuid.New(), uuid.New(), uuid.New()
	svc := &stubRecorder{result: &adjustments.Result{
		StockItem: &models.StockItem{ID: stockItemID, Count: 10},
		Movement:  &models.StockMovement{StockItemID: stockItemID, Type: enums.MovementReceived, Quantity: 10},
	}}

	body := `{"stockItemId":"` + stockItemID.String() + `","quantity":10,"type":"received","reason":"  PO-1  "}`
	req := withRoute(httptest.NewRequest(http.MethodPost, "/stock-movements", strings.NewReader(body)), map[string]string{"storeId": storeID.String()})
	resp := httptest.NewRecorder()
	StockMovementCreate(svc, nil).ServeHTTP(resp, asUser(req, userID, enums.ActorRoleStaff))

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.input.StoreID != storeID || svc.input.Type != enums.MovementReceived || svc.input.Reason != "PO-1" {
		t.Fatalf("unexpected input %+v", svc.input)
	}
	if svc.input.Actor == nil || svc.input.Actor.UserID != userID {
		t.Fatalf("expected actor from context, got %+v", svc.input.Actor)
	}
	var result struct {
		StockItem struct {
			Count int `json:"count"`
		} `json:"stockItem"`
		Flagged bool `json:"flagged"`
	}
	decodeData(t, resp, &result)
	if result.StockItem.Count != 10 || result.Flagged {
		t.Fatalf("unexpected body %+v", result)
	}
}

func TestStockMovementCreateRejectsZeroQuantity(t *testing.T) {
	svc := &stubRecorder{}
	body := `{"stockItemId":"` + uuid.NewString() + `","quantity":0,"type":"received"}`
	req := withRoute(httptest.NewRequest(http.MethodPost, "/stock-movements", strings.NewReader(body)), map[string]string{"storeId": uuid.NewString()})
	resp := httptest.NewRecorder()
	StockMovementCreate(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if code := errorCode(t, resp); code != string(pkgerrors.CodeValidation) {
		t.Fatalf("expected validation code, got %s", code)
	}
}

type stubLister struct {
	params pagination.Params
}

func (s *stubLister) ListByStockItem(_ context.Context, storeID, stockItemID uuid.UUID, params pagination.Params) (pagination.Page[models.StockMovement], error) {
	s.params = params
	return pagination.Page[models.StockMovement]{Items: []models.StockMovement{{StockItemID: stockItemID}}, NextCursor: "next"}, nil
}

func TestStockMovementList(t *testing.T) {
	lister := &stubLister{}
	stockItemID := uuid.New()
	req := withRoute(httptest.NewRequest(http.MethodGet, "/stock-movements?stockItemId="+stockItemID.String()+"&limit=10&cursor=abc", nil), map[string]string{"storeId": uuid.NewString()})
	resp := httptest.NewRecorder()
	StockMovementList(lister, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if lister.params.Limit != 10 || lister.params.Cursor != "abc" {
		t.Fatalf("unexpected params %+v", lister.params)
	}
	var page pagination.Page[models.StockMovement]
	decodeData(t, resp, &page)
	if len(page.Items) != 1 || page.NextCursor != "next" {
		t.Fatalf("unexpected page %+v", page)
	}
}

type stubReconciler struct {
	item  *models.StockItem
	drift movements.Drift
}

func (s stubReconciler) Reconcile(context.Context, uuid.UUID) (*models.StockItem, movements.Drift, error) {
	return s.item, s.drift, nil
}

func TestStockItemReconciliation(t *testing.T) {
	storeID := uuid.New()
	item := &models.StockItem{ID: uuid.New(), StoreID: storeID, Count: 5, Reserved: 1}
	rec := stubReconciler{item: item, drift: movements.Drift{
		Stored: movements.Balance{Count: 5, Reserved: 1},
		Ledger: movements.Balance{Count: 4, Reserved: 1},
	}}

	req := withRoute(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"storeId": storeID.String(), "stockItemId": item.ID.String()})
	resp := httptest.NewRecorder()
	StockItemReconciliation(rec, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var body reconciliationResponse
	decodeData(t, resp, &body)
	if body.Consistent || body.LedgerCount != 4 || body.Count != 5 {
		t.Fatalf("unexpected reconciliation %+v", body)
	}

	req = withRoute(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"storeId": uuid.NewString(), "stockItemId": item.ID.String()})
	resp = httptest.NewRecorder()
	StockItemReconciliation(rec, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for another store's item, got %d", resp.Code)
	}
}

type stubOpener struct {
	input adjustments.OpenInput
}

func (s *stubOpener) OpenStockItem(_ context.Context, input adjustments.OpenInput) (*models.StockItem, error) {
	s.input = input
	return &models.StockItem{ID: uuid.New(), StoreID: input.StoreID, VariantID: input.VariantID, Count: input.Count}, nil
}

func TestStockItemCreate(t *testing.T) {
	opener := &stubOpener{}
	storeID, variantID := uuid.New(), uuid.New()
	body := `{"variantId":"` + variantID.String() + `","count":7,"lowStockAlert":2}`
	req := withRoute(httptest.NewRequest(http.MethodPost, "/stock-items", strings.NewReader(body)), map[string]string{"storeId": storeID.String()})
	resp := httptest.NewRecorder()
	StockItemCreate(opener, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if opener.input.Count != 7 || opener.input.LowStockAlert == nil || *opener.input.LowStockAlert != 2 {
		t.Fatalf("unexpected input %+v", opener.input)
	}
}

type stubStats struct {
	query stats.WindowQuery
	err   error
}

func (s *stubStats) StoreStats(_ context.Context, storeID uuid.UUID, q stats.WindowQuery) (*stats.Stats, error) {
	s.query = q
	if s.err != nil {
		return nil, s.err
	}
	return &stats.Stats{StoreID: storeID, Count: 3}, nil
}

func TestStoreStats(t *testing.T) {
	svc := &stubStats{}
	req := withRoute(httptest.NewRequest(http.MethodGet, "/stats?from=2026-01-01&to=2026-02-01", nil), map[string]string{"storeId": uuid.NewString()})
	resp := httptest.NewRecorder()
	StoreStats(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if svc.query.From == nil || svc.query.To == nil || svc.query.From.Month() != 1 {
		t.Fatalf("unexpected query %+v", svc.query)
	}

	req = withRoute(httptest.NewRequest(http.MethodGet, "/stats?from=yesterday", nil), map[string]string{"storeId": uuid.NewString()})
	resp = httptest.NewRecorder()
	StoreStats(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

type stubFlags struct {
	status     *enums.InventoryFlagStatus
	resolvedBy uuid.UUID
}

func (s *stubFlags) List(_ context.Context, storeID uuid.UUID, status *enums.InventoryFlagStatus) ([]models.InventoryFlag, error) {
	s.status = status
	return []models.InventoryFlag{{StoreID: storeID, Kind: enums.FlagNegativeAvailable}}, nil
}

func (s *stubFlags) Resolve(_ context.Context, storeID, flagID, resolvedBy uuid.UUID) (*models.InventoryFlag, error) {
	s.resolvedBy = resolvedBy
	return &models.InventoryFlag{ID: flagID, StoreID: storeID, Status: enums.FlagStatusResolved, ResolvedBy: &resolvedBy}, nil
}

func TestInventoryFlags(t *testing.T) {
	svc := &stubFlags{}
	storeID := uuid.New()

	req := withRoute(httptest.NewRequest(http.MethodGet, "/inventory-flags?status=open", nil), map[string]string{"storeId": storeID.String()})
	resp := httptest.NewRecorder()
	InventoryFlagList(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusOK || svc.status == nil || *svc.status != enums.FlagStatusOpen {
		t.Fatalf("list: status %d, filter %v", resp.Code, svc.status)
	}

	req = withRoute(httptest.NewRequest(http.MethodGet, "/inventory-flags?status=maybe", nil), map[string]string{"storeId": storeID.String()})
	resp = httptest.NewRecorder()
	InventoryFlagList(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad status, got %d", resp.Code)
	}

	userID := uuid.New()
	req = withRoute(httptest.NewRequest(http.MethodPost, "/resolve", nil), map[string]string{"storeId": storeID.String(), "flagId": uuid.NewString()})
	resp = httptest.NewRecorder()
	InventoryFlagResolve(svc, nil).ServeHTTP(resp, asUser(req, userID, enums.ActorRoleManager))
	if resp.Code != http.StatusOK || svc.resolvedBy != userID {
		t.Fatalf("resolve: status %d, resolvedBy %s", resp.Code, svc.resolvedBy)
	}
}

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

func TestHealthReady(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "dev"}}

	resp := httptest.NewRecorder()
	HealthReady(cfg, nil, map[string]Pinger{"db": stubPinger{}, "redis": stubPinger{}}).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	HealthReady(cfg, nil, map[string]Pinger{"db": stubPinger{}, "redis": stubPinger{err: errors.New("down")}}).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	HealthLive(cfg).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if resp.Code != http.StatusOK || resp.Header().Get("X-StockLedger-Env") != "dev" {
		t.Fatalf("unexpected live response %d", resp.Code)
	}
}
