package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockledger/internal/adjustments"
	"github.com/angelmondragon/stockledger/internal/cart"
	"github.com/angelmondragon/stockledger/internal/dbtest"
	"github.com/angelmondragon/stockledger/internal/flags"
	"github.com/angelmondragon/stockledger/internal/movements"
	"github.com/angelmondragon/stockledger/internal/stats"
	"github.com/angelmondragon/stockledger/internal/stockitems"
	pkgAuth "github.com/angelmondragon/stockledger/pkg/auth"
	"github.com/angelmondragon/stockledger/pkg/config"
	"github.com/angelmondragon/stockledger/pkg/db"
	"github.com/angelmondragon/stockledger/pkg/db/models"
	"github.com/angelmondragon/stockledger/pkg/enums"
	"github.com/angelmondragon/stockledger/pkg/keylock"
	"github.com/angelmondragon/stockledger/pkg/metrics"
	"github.com/angelmondragon/stockledger/pkg/outbox"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type harness struct {
	handler http.Handler
	conn    *gorm.DB
	cfg     *config.Config
	storeID uuid.UUID
}

func newHarness(t *testing.T) harness {
	t.Helper()
	conn := dbtest.Open(t)
	client := db.Wrap(conn)
	reg := prometheus.NewRegistry()
	m := metrics.NewInventoryMetrics(reg)
	events := outbox.NewService(outbox.NewRepository(conn), nil)
	locks := keylock.New()

	flagSvc, err := flags.NewService(flags.NewRepository(conn), client, events, m, nil)
	require.NoError(t, err)
	items := stockitems.NewRepository(conn)
	moves := movements.NewRepository(conn)

	cartSvc, err := cart.NewService(cart.ServiceParams{
		Carts: cart.NewRepository(conn), StockItems: items, Movements: moves,
		Tx: client, Events: events, Flags: flagSvc, Locks: locks, Metrics: m,
	})
	require.NoError(t, err)
	adjSvc, err := adjustments.NewService(adjustments.ServiceParams{
		StockItems: items, Movements: moves, Tx: client, Events: events,
		Flags: flagSvc, Locks: locks, Metrics: m,
	})
	require.NoError(t, err)
	statsSvc, err := stats.NewService(stats.ServiceParams{Items: items, Movements: moves})
	require.NoError(t, err)

	cfg := &config.Config{
		App: config.AppConfig{Env: "dev"},
		JWT: config.JWTConfig{Secret: "test-secret", Issuer: "stockledger", ExpirationMinutes: 30},
	}
	handler := NewRouter(cfg, nil, Infra{DB: stubPinger{}, Gatherer: reg}, Services{
		Cart:        cartSvc,
		Adjustments: adjSvc,
		Movements:   moves,
		Reconciler:  movements.NewReconciler(items, moves),
		Stats:       statsSvc,
		Flags:       flagSvc,
	})
	return harness{handler: handler, conn: conn, cfg: cfg, storeID: uuid.New()}
}

func (h harness) token(t *testing.T, role enums.ActorRole, storeID uuid.UUID) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(h.cfg.JWT, time.Now(), pkgAuth.AccessTokenPayload{
		UserID: uuid.New(), StoreID: &storeID, Role: role,
	})
	require.NoError(t, err)
	return token
}

func (h harness) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	h.handler.ServeHTTP(resp, req)
	return resp
}

func (h harness) storePath(suffix string) string {
	return "/api/v1/stores/" + h.storeID.String() + suffix
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/health/live", "", "").Code)
	assert.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/health/ready", "", "").Code)
	assert.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/metrics", "", "").Code)
}

func TestAnonymousCartIsEmpty(t *testing.T) {
	h := newHarness(t)

	resp := h.do(t, http.MethodGet, h.storePath("/cart"), "", "")
	require.Equal(t, http.StatusOK, resp.Code)
	var body struct {
		Data struct {
			OrderItems []any `json:"orderItems"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.NotNil(t, body.Data.OrderItems)
	assert.Empty(t, body.Data.OrderItems)
}

func TestAuthAndRoleGates(t *testing.T) {
	h := newHarness(t)
	customer := h.token(t, enums.ActorRoleCustomer, h.storeID)
	otherStore := h.token(t, enums.ActorRoleStaff, uuid.New())

	assert.Equal(t, http.StatusUnauthorized, h.do(t, http.MethodPost, h.storePath("/cart"), "", `{"variantId":"`+uuid.NewString()+`","quantity":1}`).Code)
	assert.Equal(t, http.StatusForbidden, h.do(t, http.MethodPost, h.storePath("/stock-movements"), customer, `{"stockItemId":"`+uuid.NewString()+`","quantity":1,"type":"received"}`).Code)
	assert.Equal(t, http.StatusForbidden, h.do(t, http.MethodGet, h.storePath("/stats"), otherStore, "").Code)
	assert.Equal(t, http.StatusBadRequest, h.do(t, http.MethodGet, "/api/v1/stores/not-a-uuid/cart", "", "").Code)
}

func TestReserveThroughTheAPI(t *testing.T) {
	h := newHarness(t)
	staff := h.token(t, enums.ActorRoleStaff, h.storeID)
	customer := h.token(t, enums.ActorRoleCustomer, h.storeID)

	variant := &models.Variant{StoreID: h.storeID, SKU: "SKU-API", Name: "Mug", Price: decimal.NewFromInt(9)}
	require.NoError(t, h.conn.Create(variant).Error)

	resp := h.do(t, http.MethodPost, h.storePath("/stock-items"), staff, `{"variantId":"`+variant.ID.String()+`","count":3}`)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	var created struct {
		Data models.StockItem `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.Equal(t, 3, created.Data.Count)

	resp = h.do(t, http.MethodPost, h.storePath("/cart"), customer, `{"variantId":"`+variant.ID.String()+`","quantity":2}`)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	resp = h.do(t, http.MethodPost, h.storePath("/cart"), customer, `{"variantId":"`+variant.ID.String()+`","quantity":2}`)
	assert.Equal(t, http.StatusBadRequest, resp.Code, "only one unit left to reserve")

	resp = h.do(t, http.MethodPost, h.storePath("/stock-movements"), staff,
		`{"stockItemId":"`+created.Data.ID.String()+`","quantity":4,"type":"received","reason":"PO-9"}`)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	resp = h.do(t, http.MethodGet, h.storePath("/stock-items/"+created.Data.ID.String()+"/reconciliation"), staff, "")
	require.Equal(t, http.StatusOK, resp.Code)
	var rec struct {
		Data struct {
			Count      int  `json:"count"`
			Reserved   int  `json:"reserved"`
			Consistent bool `json:"consistent"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rec))
	assert.Equal(t, 7, rec.Data.Count)
	assert.Equal(t, 2, rec.Data.Reserved)
	assert.True(t, rec.Data.Consistent)

	resp = h.do(t, http.MethodGet, h.storePath("/stock-movements?stockItemId="+created.Data.ID.String()), staff, "")
	require.Equal(t, http.StatusOK, resp.Code)
	var page struct {
		Data struct {
			Items []models.StockMovement `json:"items"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&page))
	assert.Len(t, page.Data.Items, 3, "opening correction, reservation, receipt")

	assert.Equal(t, http.StatusOK, h.do(t, http.MethodGet, h.storePath("/stats?preset=7d"), staff, "").Code)
	assert.Equal(t, http.StatusOK, h.do(t, http.MethodGet, h.storePath("/inventory-flags?status=open"), staff, "").Code)
}
