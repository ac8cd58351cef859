package cart

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockledger/internal/dbtest"
	"github.com/angelmondragon/stockledger/internal/flags"
	"github.com/angelmondragon/stockledger/internal/movements"
	"github.com/angelmondragon/stockledger/internal/stockitems"
	"github.com/angelmondragon/stockledger/pkg/db"
	"github.com/angelmondragon/stockledger/pkg/db/models"
	"github.com/angelmondragon/stockledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger/pkg/errors"
	"github.com/angelmondragon/stockledger/pkg/keylock"
	"github.com/angelmondragon/stockledger/pkg/metrics"
	"github.com/angelmondragon/stockledger/pkg/outbox"
)

type fixture struct {
	conn    *gorm.DB
	svc     Service
	items   stockitems.Repository
	moves   movements.Repository
	storeID uuid.UUID
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	return newFixtureWith(t, keylock.New(), nil)
}

// newFixtureWith lets a test share the locker and wrap the stock item
// repository the service sees.
func newFixtureWith(t *testing.T, locks *keylock.Locker, wrap func(stockitems.Repository) stockitems.Repository) fixture {
	t.Helper()
	conn := dbtest.Open(t)
	client := db.Wrap(conn)
	events := outbox.NewService(outbox.NewRepository(conn), nil)
	m := metrics.NewInventoryMetrics(prometheus.NewRegistry())

	flagSvc, err := flags.NewService(flags.NewRepository(conn), client, events, m, nil)
	require.NoError(t, err)

	items := stockitems.NewRepository(conn)
	moves := movements.NewRepository(conn)
	seen := items
	if wrap != nil {
		seen = wrap(items)
	}
	svc, err := NewService(ServiceParams{
		Carts:      NewRepository(conn),
		StockItems: seen,
		Movements:  moves,
		Tx:         client,
		Events:     events,
		Flags:      flagSvc,
		Locks:      locks,
		Metrics:    m,
	})
	require.NoError(t, err)

	return fixture{conn: conn, svc: svc, items: items, moves: moves, storeID: uuid.New()}
}

// seedStock creates a variant and its stock item with an opening received
// movement so the ledger folds to the seeded count.
func (f fixture) seedStock(t *testing.T, count int) (*models.Variant, *models.StockItem) {
	t.Helper()
	ctx := context.Background()
	variant := &models.Variant{StoreID: f.storeID, SKU: "SKU-" + uuid.NewString()[:8], Name: "Tee", Price: decimal.NewFromInt(12)}
	require.NoError(t, f.conn.Create(variant).Error)

	item := &models.StockItem{VariantID: variant.ID, StoreID: f.storeID, Count: count}
	require.NoError(t, f.items.Create(ctx, item))
	if count > 0 {
		require.NoError(t, f.moves.Append(ctx, &models.StockMovement{
			StockItemID: item.ID,
			VariantID:   variant.ID,
			StoreID:     f.storeID,
			Type:        enums.MovementReceived,
			Quantity:    count,
			Reason:      "opening balance",
		}))
	}
	return variant, item
}

func (f fixture) reload(t *testing.T, id uuid.UUID) *models.StockItem {
	t.Helper()
	item, err := f.items.GetByID(context.Background(), id)
	require.NoError(t, err)
	return item
}

func (f fixture) movementsOf(t *testing.T, id uuid.UUID, typ enums.MovementType) []models.StockMovement {
	t.Helper()
	var rows []models.StockMovement
	require.NoError(t, f.conn.Where("stock_item_id = ? AND type = ?", id, typ).Order("created_at ASC").Find(&rows).Error)
	return rows
}

func (f fixture) assertInvariants(t *testing.T, id uuid.UUID) {
	t.Helper()
	item := f.reload(t, id)
	assert.GreaterOrEqual(t, item.Count, 0)
	assert.GreaterOrEqual(t, item.Reserved, 0)
	assert.GreaterOrEqual(t, item.Available(), 0)

	_, drift, err := movements.NewReconciler(f.items, f.moves).Reconcile(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, drift.Consistent(), "ledger fold %+v != stored %+v", drift.Ledger, drift.Stored)
}

func TestAddItemReservesStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	variant, item := f.seedStock(t, 10)
	customerID := uuid.New()

	cart, err := f.svc.AddItem(ctx, f.storeID, customerID, variant.ID, 2)
	require.NoError(t, err)
	require.Len(t, cart.OrderItems, 1)
	assert.Equal(t, 2, cart.OrderItems[0].Quantity)
	assert.True(t, decimal.NewFromInt(12).Equal(cart.OrderItems[0].UnitPrice))
	assert.Equal(t, enums.OrderStatusCart, cart.Status)

	cart, err = f.svc.AddItem(ctx, f.storeID, customerID, variant.ID, 1)
	require.NoError(t, err)
	require.Len(t, cart.OrderItems, 1, "adding the same variant grows the existing line")
	assert.Equal(t, 3, cart.OrderItems[0].Quantity)
	assert.Equal(t, 3, cart.TotalQuantity)

	stored := f.reload(t, item.ID)
	assert.Equal(t, 10, stored.Count)
	assert.Equal(t, 3, stored.Reserved)

	reserved := f.movementsOf(t, item.ID, enums.MovementReserved)
	require.Len(t, reserved, 2)
	assert.Equal(t, 2, reserved[0].Quantity)
	assert.Equal(t, ReservationReason, reserved[0].Reason)
	require.NotNil(t, reserved[0].OriginatorID)
	assert.Equal(t, *cart.ID, *reserved[0].OriginatorID)

	var events int64
	require.NoError(t, f.conn.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventStockReserved).Count(&events).Error)
	assert.EqualValues(t, 2, events)

	f.assertInvariants(t, item.ID)
}

func TestAddItemInsufficientStockLeavesNoTrace(t *testing.T) {
	f := newFixture(t)
	variant, item := f.seedStock(t, 2)

	_, err := f.svc.AddItem(context.Background(), f.storeID, uuid.New(), variant.ID, 3)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock))

	assert.Equal(t, 0, f.reload(t, item.ID).Reserved)
	assert.Empty(t, f.movementsOf(t, item.ID, enums.MovementReserved))

	var orders int64
	require.NoError(t, f.conn.Model(&models.Order{}).Count(&orders).Error)
	assert.Zero(t, orders, "cart created in the failed unit must roll back")
}

func TestAddItemRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	variant, _ := f.seedStock(t, 5)

	_, err := f.svc.AddItem(ctx, f.storeID, uuid.New(), variant.ID, 0)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.AddItem(ctx, f.storeID, uuid.Nil, variant.ID, 1)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))

	_, err = f.svc.AddItem(ctx, f.storeID, uuid.New(), uuid.New(), 1)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

// The test database has a single connection, so these two adds are also
// serialized by the pool; the outcome shows the guarded update refusing the
// second reservation.
func TestConcurrentAddsDoNotOversell(t *testing.T) {
	f := newFixture(t)
	variant, item := f.seedStock(t, 5)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.AddItem(context.Background(), f.storeID, uuid.New(), variant.ID, 3)
		}(i)
	}
	wg.Wait()

	successes, insufficient := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock):
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, insufficient)
	assert.Equal(t, 3, f.reload(t, item.ID).Reserved)
	f.assertInvariants(t, item.ID)
}

func TestUpdateQuantityBeyondAvailableLeavesStateUnchanged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	variant, item := f.seedStock(t, 4)
	customerID := uuid.New()

	cart, err := f.svc.AddItem(ctx, f.storeID, customerID, variant.ID, 2)
	require.NoError(t, err)
	lineID := cart.OrderItems[0].ID

	_, err = f.svc.UpdateQuantity(ctx, f.storeID, customerID, lineID, 5)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock))

	assert.Equal(t, 2, f.reload(t, item.ID).Reserved)
	cart, err = f.svc.GetCart(ctx, f.storeID, customerID)
	require.NoError(t, err)
	assert.Equal(t, 2, cart.OrderItems[0].Quantity)
	assert.Len(t, f.movementsOf(t, item.ID, enums.MovementReserved), 1)
}

func TestUpdateQuantityGrowsAndShrinks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	variant, item := f.seedStock(t, 10)
	customerID := uuid.New()

	cart, err := f.svc.AddItem(ctx, f.storeID, customerID, variant.ID, 2)
	require.NoError(t, err)
	lineID := cart.OrderItems[0].ID

	cart, err = f.svc.UpdateQuantity(ctx, f.storeID, customerID, lineID, 6)
	require.NoError(t, err)
	assert.Equal(t, 6, cart.OrderItems[0].Quantity)
	assert.Equal(t, 6, f.reload(t, item.ID).Reserved)

	cart, err = f.svc.UpdateQuantity(ctx, f.storeID, customerID, lineID, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, cart.OrderItems[0].Quantity)
	assert.Equal(t, 1, f.reload(t, item.ID).Reserved)

	unreserved := f.movementsOf(t, item.ID, enums.MovementUnreserved)
	require.Len(t, unreserved, 1)
	assert.Equal(t, -5, unreserved[0].Quantity)
	assert.Equal(t, 5, unreserved[0].Magnitude())

	_, err = f.svc.UpdateQuantity(ctx, f.storeID, customerID, lineID, 1)
	require.NoError(t, err, "unchanged quantity is a no-op")
	assert.Len(t, f.movementsOf(t, item.ID, enums.MovementUnreserved), 1)

	_, err = f.svc.UpdateQuantity(ctx, f.storeID, customerID, lineID, 0)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.UpdateQuantity(ctx, f.storeID, uuid.New(), lineID, 2)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound), "another customer cannot touch the line")

	f.assertInvariants(t, item.ID)
}

func TestRemoveItemReleasesReservation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	variant, item := f.seedStock(t, 10)
	customerID := uuid.New()

	cart, err := f.svc.AddItem(ctx, f.storeID, customerID, variant.ID, 4)
	require.NoError(t, err)
	before := f.reload(t, item.ID).Reserved

	cart, err = f.svc.RemoveItem(ctx, f.storeID, customerID, cart.OrderItems[0].ID)
	require.NoError(t, err)
	assert.Empty(t, cart.OrderItems)

	after := f.reload(t, item.ID)
	assert.Equal(t, before-4, after.Reserved)
	assert.Equal(t, 10, after.Count)

	unreserved := f.movementsOf(t, item.ID, enums.MovementUnreserved)
	require.Len(t, unreserved, 1)
	assert.Equal(t, 4, unreserved[0].Magnitude())

	var released int64
	require.NoError(t, f.conn.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventStockReleased).Count(&released).Error)
	assert.EqualValues(t, 1, released)

	f.assertInvariants(t, item.ID)
}

func TestRemoveItemUnderflowIsRejectedAndFlagged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	variant, item := f.seedStock(t, 10)
	customerID := uuid.New()

	cart, err := f.svc.AddItem(ctx, f.storeID, customerID, variant.ID, 4)
	require.NoError(t, err)
	require.NoError(t, f.conn.Model(&models.StockItem{}).Where("id = ?", item.ID).Update("reserved", 1).Error)

	_, err = f.svc.RemoveItem(ctx, f.storeID, customerID, cart.OrderItems[0].ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConsistency))

	assert.Equal(t, 1, f.reload(t, item.ID).Reserved, "underflow must not clamp")
	assert.Empty(t, f.movementsOf(t, item.ID, enums.MovementUnreserved))

	cart, err = f.svc.GetCart(ctx, f.storeID, customerID)
	require.NoError(t, err)
	assert.Len(t, cart.OrderItems, 1, "line survives the rolled back unit")

	var flagged []models.InventoryFlag
	require.NoError(t, f.conn.Where("stock_item_id = ?", item.ID).Find(&flagged).Error)
	require.Len(t, flagged, 1)
	assert.Equal(t, enums.FlagReservationUnderflow, flagged[0].Kind)
}

func TestRemoveItemUnknownLine(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.RemoveItem(context.Background(), f.storeID, uuid.New(), uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestReleaseCartExpiresOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tee, teeItem := f.seedStock(t, 10)
	mug, mugItem := f.seedStock(t, 3)
	customerID := uuid.New()

	_, err := f.svc.AddItem(ctx, f.storeID, customerID, tee.ID, 4)
	require.NoError(t, err)
	cart, err := f.svc.AddItem(ctx, f.storeID, customerID, mug.ID, 3)
	require.NoError(t, err)

	res, err := f.svc.ReleaseCart(ctx, *cart.ID, time.Time{}, "")
	require.NoError(t, err)
	assert.Equal(t, 2, res.ReleasedItems)
	assert.Equal(t, 7, res.ReleasedUnits)

	assert.Equal(t, 0, f.reload(t, teeItem.ID).Reserved)
	assert.Equal(t, 0, f.reload(t, mugItem.ID).Reserved)

	var order models.Order
	require.NoError(t, f.conn.Where("id = ?", *cart.ID).First(&order).Error)
	assert.Equal(t, enums.OrderStatusExpired, order.Status)

	_, err = f.svc.ReleaseCart(ctx, *cart.ID, time.Time{}, "")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	empty, err := f.svc.GetCart(ctx, f.storeID, customerID)
	require.NoError(t, err)
	assert.Empty(t, empty.OrderItems)

	f.assertInvariants(t, teeItem.ID)
	f.assertInvariants(t, mugItem.ID)
}

func TestReleaseCartSkipsCartUsedSinceCutoff(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	variant, item := f.seedStock(t, 5)
	customerID := uuid.New()

	listedAt := time.Now().UTC().Add(-time.Minute)
	cart, err := f.svc.AddItem(ctx, f.storeID, customerID, variant.ID, 2)
	require.NoError(t, err)

	_, err = f.svc.ReleaseCart(ctx, *cart.ID, listedAt, "")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	assert.Equal(t, 2, f.reload(t, item.ID).Reserved)

	var order models.Order
	require.NoError(t, f.conn.Where("id = ?", *cart.ID).First(&order).Error)
	assert.Equal(t, enums.OrderStatusCart, order.Status)
	assert.Empty(t, f.movementsOf(t, item.ID, enums.MovementUnreserved))

	res, err := f.svc.ReleaseCart(ctx, *cart.ID, time.Now().UTC().Add(time.Minute), "")
	require.NoError(t, err)
	assert.Equal(t, 2, res.ReleasedUnits)
	assert.Equal(t, 0, f.reload(t, item.ID).Reserved)
	f.assertInvariants(t, item.ID)
}

// pausingItems blocks the first LockByID until release is closed.
type pausingItems struct {
	stockitems.Repository
	once    *sync.Once
	entered chan struct{}
	release chan struct{}
}

func (p pausingItems) WithTx(tx *gorm.DB) stockitems.Repository {
	p.Repository = p.Repository.WithTx(tx)
	return p
}

func (p pausingItems) LockByID(ctx context.Context, id uuid.UUID) (*models.StockItem, error) {
	first := false
	p.once.Do(func() { first = true })
	if first {
		close(p.entered)
		<-p.release
	}
	return p.Repository.LockByID(ctx, id)
}

func TestAddItemHoldsStockKeyForWholeUnitOfWork(t *testing.T) {
	locks := keylock.New()
	gate := pausingItems{once: &sync.Once{}, entered: make(chan struct{}), release: make(chan struct{})}
	f := newFixtureWith(t, locks, func(inner stockitems.Repository) stockitems.Repository {
		gate.Repository = inner
		return gate
	})
	variant, item := f.seedStock(t, 4)

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.AddItem(context.Background(), f.storeID, uuid.New(), variant.ID, 3)
		done <- err
	}()

	select {
	case <-gate.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("add never reached the row lock")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := locks.Lock(ctx, stockitems.LockKey(item.ID))
	assert.ErrorIs(t, err, context.DeadlineExceeded, "stock key must stay held while the row is locked")

	close(gate.release)
	require.NoError(t, <-done)

	unlock, err := locks.Lock(context.Background(), stockitems.LockKey(item.ID))
	require.NoError(t, err)
	unlock()

	_, err = f.svc.AddItem(context.Background(), f.storeID, uuid.New(), variant.ID, 3)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock))
	assert.Equal(t, 3, f.reload(t, item.ID).Reserved)
	f.assertInvariants(t, item.ID)
}

func TestGetCartAnonymousIsEmpty(t *testing.T) {
	f := newFixture(t)
	cart, err := f.svc.GetCart(context.Background(), f.storeID, uuid.Nil)
	require.NoError(t, err)
	assert.NotNil(t, cart.OrderItems)
	assert.Empty(t, cart.OrderItems)
	assert.Nil(t, cart.ID)
}

func TestListIdleCarts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	variant, _ := f.seedStock(t, 5)

	cart, err := f.svc.AddItem(ctx, f.storeID, uuid.New(), variant.ID, 1)
	require.NoError(t, err)

	repo := NewRepository(f.conn)
	idle, err := repo.ListIdleCarts(ctx, time.Now().UTC().Add(time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, idle, 1)
	assert.Equal(t, *cart.ID, idle[0].ID)

	idle, err = repo.ListIdleCarts(ctx, time.Now().UTC().Add(-time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, idle)
}
