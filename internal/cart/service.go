package cart

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockledger/internal/flags"
	"github.com/angelmondragon/stockledger/internal/movements"
	"github.com/angelmondragon/stockledger/internal/stockitems"
	"github.com/angelmondragon/stockledger/pkg/db"
	"github.com/angelmondragon/stockledger/pkg/db/models"
	"github.com/angelmondragon/stockledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger/pkg/errors"
	"github.com/angelmondragon/stockledger/pkg/keylock"
	"github.com/angelmondragon/stockledger/pkg/logger"
	"github.com/angelmondragon/stockledger/pkg/metrics"
	"github.com/angelmondragon/stockledger/pkg/outbox"
	"github.com/angelmondragon/stockledger/pkg/outbox/payloads"
)

const (
	// ReservationReason is recorded on movements written by cart mutations.
	ReservationReason = "cart reservation"
	// ReleaseReason is recorded when a customer removes or shrinks a line.
	ReleaseReason = "cart release"

	openCartIndex      = "ux_orders_open_cart"
	originatorTypeCart = "order"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type flagRaiser interface {
	RaiseDetached(ctx context.Context, input flags.RaiseInput) (*models.InventoryFlag, error)
}

// Service holds stock for open carts. Each mutation is one unit of work that
// moves the stock item's reserved counter, appends the matching ledger row and
// changes the cart line, or changes nothing.
type Service interface {
	GetCart(ctx context.Context, storeID, customerID uuid.UUID) (*CartDTO, error)
	AddItem(ctx context.Context, storeID, customerID, variantID uuid.UUID, quantity int) (*CartDTO, error)
	UpdateQuantity(ctx context.Context, storeID, customerID, itemID uuid.UUID, quantity int) (*CartDTO, error)
	RemoveItem(ctx context.Context, storeID, customerID, itemID uuid.UUID) (*CartDTO, error)
	ReleaseCart(ctx context.Context, orderID uuid.UUID, idleBefore time.Time, reason string) (*ReleaseResult, error)
}

// ServiceParams bundles the dependencies required to build a cart service.
type ServiceParams struct {
	Carts             CartRepository
	StockItems        stockitems.Repository
	Movements         movements.Repository
	Tx                txRunner
	Events            eventEmitter
	Flags             flagRaiser
	Locks             *keylock.Locker
	Metrics           *metrics.InventoryMetrics
	Logger            *logger.Logger
	LowStockThreshold int
}

type service struct {
	carts     CartRepository
	items     stockitems.Repository
	movements movements.Repository
	tx        txRunner
	events    eventEmitter
	flags     flagRaiser
	locks     *keylock.Locker
	metrics   *metrics.InventoryMetrics
	logg      *logger.Logger
	threshold int
}

// NewService builds a cart service backed by the provided stack.
func NewService(params ServiceParams) (Service, error) {
	if params.Carts == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if params.StockItems == nil {
		return nil, fmt.Errorf("stock item repository required")
	}
	if params.Movements == nil {
		return nil, fmt.Errorf("movement repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Events == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Flags == nil {
		return nil, fmt.Errorf("flag raiser required")
	}
	locks := params.Locks
	if locks == nil {
		locks = keylock.New()
	}
	threshold := params.LowStockThreshold
	if threshold <= 0 {
		threshold = stockitems.DefaultLowStockThreshold
	}
	return &service{
		carts:     params.Carts,
		items:     params.StockItems,
		movements: params.Movements,
		tx:        params.Tx,
		events:    params.Events,
		flags:     params.Flags,
		locks:     locks,
		metrics:   params.Metrics,
		logg:      params.Logger,
		threshold: threshold,
	}, nil
}

// CartLockKey serializes mutations of one customer's open cart.
func CartLockKey(storeID, customerID uuid.UUID) string {
	return "cart:" + storeID.String() + ":" + customerID.String()
}

func (s *service) GetCart(ctx context.Context, storeID, customerID uuid.UUID) (*CartDTO, error) {
	if storeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "store id is required")
	}
	if customerID == uuid.Nil {
		return EmptyCart(storeID, nil), nil
	}
	order, err := s.carts.FindOpenCart(ctx, storeID, customerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return EmptyCart(storeID, &customerID), nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	return newCartDTO(order), nil
}

// AddItem reserves quantity more units of the variant in the customer's open
// cart, creating the cart on first use.
func (s *service) AddItem(ctx context.Context, storeID, customerID, variantID uuid.UUID, quantity int) (*CartDTO, error) {
	if err := requireIDs(storeID, customerID); err != nil {
		return nil, err
	}
	if variantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "variant id is required")
	}
	if quantity < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}

	stock, err := s.items.GetByVariantStore(ctx, variantID, storeID)
	if err != nil {
		return nil, err
	}
	variant, err := s.items.GetVariant(ctx, storeID, variantID)
	if err != nil {
		return nil, err
	}

	unlock, err := s.locks.LockAll(ctx, CartLockKey(storeID, customerID), stockitems.LockKey(stock.ID))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire cart lock")
	}
	defer unlock()

	var result *CartDTO
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		carts := s.carts.WithTx(tx)
		items := s.items.WithTx(tx)

		order, err := s.findOrCreateCart(ctx, carts, storeID, customerID)
		if err != nil {
			return err
		}

		locked, err := items.LockByID(ctx, stock.ID)
		if err != nil {
			return err
		}
		if locked.Available() < quantity {
			return insufficientStock(locked, quantity)
		}

		updated, err := items.ApplyDelta(ctx, locked.ID, stockitems.Delta{
			Reserved:          quantity,
			RequireAvailable:  true,
			LowStockThreshold: s.threshold,
		})
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeConsistency) {
				return insufficientStock(locked, quantity)
			}
			return err
		}

		movement, err := s.appendReservation(ctx, tx, updated, order.ID, quantity, ReservationReason)
		if err != nil {
			return err
		}

		line, err := carts.FindItemByVariant(ctx, order.ID, variantID)
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			line = &models.OrderItem{
				OrderID:     order.ID,
				VariantID:   variantID,
				StockItemID: updated.ID,
				Quantity:    quantity,
				UnitPrice:   variant.Price,
			}
			if err := carts.CreateItem(ctx, line); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create cart item")
			}
		case err != nil:
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart item")
		default:
			line.Quantity += quantity
			if err := carts.UpdateItemQuantity(ctx, line.ID, line.Quantity); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cart item")
			}
		}

		if err := s.emitReserved(ctx, tx, updated, order.ID, line.ID, movement.ID, quantity); err != nil {
			return err
		}

		result, err = s.refresh(ctx, carts, order.ID)
		return err
	})
	s.observe("add_item", err)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// UpdateQuantity sets a cart line to quantity, reserving or releasing the
// difference.
func (s *service) UpdateQuantity(ctx context.Context, storeID, customerID, itemID uuid.UUID, quantity int) (*CartDTO, error) {
	if err := requireIDs(storeID, customerID); err != nil {
		return nil, err
	}
	if itemID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item id is required")
	}
	if quantity < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}

	line, err := s.lookupLine(ctx, storeID, customerID, itemID)
	if err != nil {
		return nil, err
	}

	unlock, err := s.locks.LockAll(ctx, CartLockKey(storeID, customerID), stockitems.LockKey(line.StockItemID))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire cart lock")
	}
	defer unlock()

	var (
		result     *CartDTO
		underflow  *models.StockItem
		releaseQty int
	)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		carts := s.carts.WithTx(tx)
		items := s.items.WithTx(tx)

		order, current, err := s.reloadLine(ctx, carts, storeID, customerID, itemID)
		if err != nil {
			return err
		}

		diff := quantity - current.Quantity
		if diff == 0 {
			result, err = s.refresh(ctx, carts, order.ID)
			return err
		}

		locked, err := items.LockByID(ctx, current.StockItemID)
		if err != nil {
			return err
		}
		if diff > 0 && locked.Available() < diff {
			return insufficientStock(locked, diff)
		}

		updated, err := items.ApplyDelta(ctx, locked.ID, stockitems.Delta{
			Reserved:          diff,
			RequireAvailable:  diff > 0,
			LowStockThreshold: s.threshold,
		})
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeConsistency) {
				if diff > 0 {
					return insufficientStock(locked, diff)
				}
				underflow = locked
				releaseQty = -diff
			}
			return err
		}

		reason := ReservationReason
		if diff < 0 {
			reason = ReleaseReason
		}
		movement, err := s.appendReservation(ctx, tx, updated, order.ID, diff, reason)
		if err != nil {
			return err
		}

		if err := carts.UpdateItemQuantity(ctx, current.ID, quantity); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cart item")
		}

		if diff > 0 {
			err = s.emitReserved(ctx, tx, updated, order.ID, current.ID, movement.ID, diff)
		} else {
			err = s.emitReleased(ctx, tx, updated, order.ID, current.ID, movement.ID, -diff, reason)
		}
		if err != nil {
			return err
		}

		result, err = s.refresh(ctx, carts, order.ID)
		return err
	})
	if underflow != nil {
		s.reportUnderflow(ctx, *underflow, line.OrderID, releaseQty, err)
	}
	s.observe("update_quantity", err)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RemoveItem releases a cart line's reservation and deletes the line. A
// reserved counter that cannot cover the line is a consistency error: nothing
// is written and the stock item is flagged.
func (s *service) RemoveItem(ctx context.Context, storeID, customerID, itemID uuid.UUID) (*CartDTO, error) {
	if err := requireIDs(storeID, customerID); err != nil {
		return nil, err
	}
	if itemID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item id is required")
	}

	line, err := s.lookupLine(ctx, storeID, customerID, itemID)
	if err != nil {
		return nil, err
	}

	unlock, err := s.locks.LockAll(ctx, CartLockKey(storeID, customerID), stockitems.LockKey(line.StockItemID))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire cart lock")
	}
	defer unlock()

	var (
		result    *CartDTO
		underflow *models.StockItem
	)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		carts := s.carts.WithTx(tx)

		order, current, err := s.reloadLine(ctx, carts, storeID, customerID, itemID)
		if err != nil {
			return err
		}

		updated, movementID, err := s.releaseLine(ctx, tx, order.ID, current, ReleaseReason)
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeConsistency) && updated != nil {
				underflow = updated
			}
			return err
		}

		if err := carts.DeleteItem(ctx, current.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete cart item")
		}
		if err := s.emitReleased(ctx, tx, updated, order.ID, current.ID, movementID, current.Quantity, ReleaseReason); err != nil {
			return err
		}

		result, err = s.refresh(ctx, carts, order.ID)
		return err
	})
	if underflow != nil {
		s.reportUnderflow(ctx, *underflow, line.OrderID, line.Quantity, err)
	}
	s.observe("remove_item", err)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ReleaseCart releases every line of an open cart and marks it expired.
// When idleBefore is set, a cart touched at or after it is left alone with a
// state conflict; the check is repeated under lock.
func (s *service) ReleaseCart(ctx context.Context, orderID uuid.UUID, idleBefore time.Time, reason string) (*ReleaseResult, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if reason == "" {
		reason = "cart expired"
	}

	order, err := s.carts.FindByID(ctx, orderID)
	if err != nil {
		return nil, mapCartLookup(err, "cart not found")
	}
	if err := releasable(order, idleBefore); err != nil {
		return nil, err
	}

	keys := []string{CartLockKey(order.StoreID, order.CustomerID)}
	keys = append(keys, stockKeys(order.Items)...)
	unlock, err := s.locks.LockAll(ctx, keys...)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire cart lock")
	}
	defer unlock()

	result := &ReleaseResult{OrderID: orderID}
	var (
		underflow     *models.StockItem
		underflowLine models.OrderItem
	)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		carts := s.carts.WithTx(tx)

		fresh, err := carts.FindByID(ctx, orderID)
		if err != nil {
			return mapCartLookup(err, "cart not found")
		}
		if err := releasable(fresh, idleBefore); err != nil {
			return err
		}

		result.ReleasedItems, result.ReleasedUnits = 0, 0
		for i := range fresh.Items {
			line := fresh.Items[i]
			updated, movementID, err := s.releaseLine(ctx, tx, fresh.ID, &line, reason)
			if err != nil {
				if pkgerrors.IsCode(err, pkgerrors.CodeConsistency) && updated != nil {
					underflow = updated
					underflowLine = line
				}
				return err
			}
			if err := s.emitReleased(ctx, tx, updated, fresh.ID, line.ID, movementID, line.Quantity, reason); err != nil {
				return err
			}
			result.ReleasedItems++
			result.ReleasedUnits += line.Quantity
		}

		changed, err := carts.UpdateStatus(ctx, fresh.ID, enums.OrderStatusCart, enums.OrderStatusExpired)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "expire cart")
		}
		if !changed {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order is not an open cart")
		}

		return s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventCartExpired,
			AggregateType: enums.AggregateOrder,
			AggregateID:   fresh.ID,
			Data: payloads.CartExpiredEvent{
				OrderID:       fresh.ID,
				StoreID:       fresh.StoreID,
				CustomerID:    fresh.CustomerID,
				ReleasedItems: result.ReleasedItems,
				ReleasedUnits: result.ReleasedUnits,
			},
		})
	})
	if underflow != nil {
		s.reportUnderflow(ctx, *underflow, orderID, underflowLine.Quantity, err)
	}
	s.observe("release_cart", err)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func releasable(order *models.Order, idleBefore time.Time) error {
	if order.Status != enums.OrderStatusCart {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order is not an open cart")
	}
	if !idleBefore.IsZero() && !order.UpdatedAt.Before(idleBefore) {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "cart was used since it went idle")
	}
	return nil
}

// releaseLine gives back a line's reservation and records the unreserved
// movement. On a consistency error the stock item as read under lock is
// returned alongside the error.
func (s *service) releaseLine(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, line *models.OrderItem, reason string) (*models.StockItem, uuid.UUID, error) {
	items := s.items.WithTx(tx)
	locked, err := items.LockByID(ctx, line.StockItemID)
	if err != nil {
		return nil, uuid.Nil, err
	}
	updated, err := items.ApplyDelta(ctx, locked.ID, stockitems.Delta{
		Reserved:          -line.Quantity,
		LowStockThreshold: s.threshold,
	})
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeConsistency) {
			return locked, uuid.Nil, err
		}
		return nil, uuid.Nil, err
	}
	movement, err := s.appendReservation(ctx, tx, updated, orderID, -line.Quantity, reason)
	if err != nil {
		return nil, uuid.Nil, err
	}
	return updated, movement.ID, nil
}

func (s *service) findOrCreateCart(ctx context.Context, carts CartRepository, storeID, customerID uuid.UUID) (*models.Order, error) {
	order, err := carts.FindOpenCart(ctx, storeID, customerID)
	if err == nil {
		return order, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	order = &models.Order{StoreID: storeID, CustomerID: customerID}
	if err := carts.CreateCart(ctx, order); err != nil {
		if db.IsUniqueViolation(err, openCartIndex) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "cart was created concurrently; retry")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create cart")
	}
	return order, nil
}

func (s *service) lookupLine(ctx context.Context, storeID, customerID, itemID uuid.UUID) (*models.OrderItem, error) {
	order, err := s.carts.FindOpenCart(ctx, storeID, customerID)
	if err != nil {
		return nil, mapCartLookup(err, "cart item not found")
	}
	line, err := s.carts.FindItem(ctx, order.ID, itemID)
	if err != nil {
		return nil, mapCartLookup(err, "cart item not found")
	}
	return line, nil
}

func (s *service) reloadLine(ctx context.Context, carts CartRepository, storeID, customerID, itemID uuid.UUID) (*models.Order, *models.OrderItem, error) {
	order, err := carts.FindOpenCart(ctx, storeID, customerID)
	if err != nil {
		return nil, nil, mapCartLookup(err, "cart item not found")
	}
	line, err := carts.FindItem(ctx, order.ID, itemID)
	if err != nil {
		return nil, nil, mapCartLookup(err, "cart item not found")
	}
	return order, line, nil
}

// appendReservation writes a reserved (delta > 0) or unreserved (delta < 0)
// movement and touches the cart.
func (s *service) appendReservation(ctx context.Context, tx *gorm.DB, item *models.StockItem, orderID uuid.UUID, delta int, reason string) (*models.StockMovement, error) {
	typ := enums.MovementReserved
	magnitude := delta
	if delta < 0 {
		typ = enums.MovementUnreserved
		magnitude = -delta
	}
	signed, err := typ.SignedDelta(magnitude)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid reservation quantity")
	}

	originatorID := orderID
	originatorType := originatorTypeCart
	movement := &models.StockMovement{
		StockItemID:    item.ID,
		VariantID:      item.VariantID,
		StoreID:        item.StoreID,
		Type:           typ,
		Quantity:       signed,
		Reason:         reason,
		OriginatorID:   &originatorID,
		OriginatorType: &originatorType,
	}
	if err := s.movements.WithTx(tx).Append(ctx, movement); err != nil {
		return nil, err
	}
	s.metrics.IncMovement(string(typ))

	if err := s.carts.WithTx(tx).Touch(ctx, orderID, movement.CreatedAt); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "touch cart")
	}
	return movement, nil
}

func (s *service) emitReserved(ctx context.Context, tx *gorm.DB, item *models.StockItem, orderID, lineID, movementID uuid.UUID, quantity int) error {
	return s.events.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventStockReserved,
		AggregateType: enums.AggregateStockItem,
		AggregateID:   item.ID,
		Data: payloads.StockReservedEvent{
			StockItemID: item.ID,
			VariantID:   item.VariantID,
			StoreID:     item.StoreID,
			OrderID:     orderID,
			OrderItemID: lineID,
			MovementID:  movementID,
			Quantity:    quantity,
			Levels:      levels(item),
		},
	})
}

func (s *service) emitReleased(ctx context.Context, tx *gorm.DB, item *models.StockItem, orderID, lineID, movementID uuid.UUID, quantity int, reason string) error {
	return s.events.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventStockReleased,
		AggregateType: enums.AggregateStockItem,
		AggregateID:   item.ID,
		Data: payloads.StockReleasedEvent{
			StockItemID: item.ID,
			VariantID:   item.VariantID,
			StoreID:     item.StoreID,
			OrderID:     orderID,
			OrderItemID: lineID,
			MovementID:  movementID,
			Quantity:    quantity,
			Reason:      reason,
			Levels:      levels(item),
		},
	})
}

func (s *service) refresh(ctx context.Context, carts CartRepository, orderID uuid.UUID) (*CartDTO, error) {
	order, err := carts.FindByID(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload cart")
	}
	return newCartDTO(order), nil
}

// reportUnderflow runs after the failed unit of work has rolled back.
func (s *service) reportUnderflow(ctx context.Context, item models.StockItem, orderID uuid.UUID, quantity int, cause error) {
	if s.logg != nil {
		logCtx := s.logg.WithStockItemID(ctx, item.ID.String())
		logCtx = s.logg.WithFields(logCtx, map[string]any{
			"order_id":  orderID.String(),
			"reserved":  item.Reserved,
			"requested": quantity,
		})
		s.logg.Error(logCtx, "reservation underflow", cause)
	}
	if _, err := s.flags.RaiseDetached(ctx, flags.RaiseInput{
		Item: item,
		Kind: enums.FlagReservationUnderflow,
		Details: map[string]any{
			"orderId":         orderID.String(),
			"releaseQuantity": quantity,
		},
	}); err != nil && s.logg != nil {
		s.logg.Error(ctx, "failed to flag reservation underflow", err)
	}
}

func (s *service) observe(operation string, err error) {
	outcome := "ok"
	switch {
	case err == nil:
	case pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock):
		outcome = "insufficient_stock"
	case pkgerrors.IsCode(err, pkgerrors.CodeConsistency):
		outcome = "consistency_error"
	case pkgerrors.IsCode(err, pkgerrors.CodeValidation), pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
		outcome = "rejected"
	default:
		outcome = "error"
	}
	s.metrics.ObserveReservation(operation, outcome)
}

func insufficientStock(item *models.StockItem, requested int) error {
	return pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock").
		WithDetails(map[string]any{
			"stockItemId": item.ID.String(),
			"available":   item.Available(),
			"requested":   requested,
		})
}

func levels(item *models.StockItem) payloads.StockLevels {
	return payloads.StockLevels{
		Count:     item.Count,
		Reserved:  item.Reserved,
		Available: item.Available(),
	}
}

func requireIDs(storeID, customerID uuid.UUID) error {
	if storeID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "store id is required")
	}
	if customerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "customer session required")
	}
	return nil
}

func mapCartLookup(err error, notFound string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, notFound)
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
}

// stockKeys returns one lock key per distinct stock item, sorted so every
// caller acquires them in the same order.
func stockKeys(lines []models.OrderItem) []string {
	seen := make(map[uuid.UUID]struct{}, len(lines))
	keys := make([]string, 0, len(lines))
	for _, line := range lines {
		if _, ok := seen[line.StockItemID]; ok {
			continue
		}
		seen[line.StockItemID] = struct{}{}
		keys = append(keys, stockitems.LockKey(line.StockItemID))
	}
	sort.Strings(keys)
	return keys
}
