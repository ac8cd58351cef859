// Package adjustments records direct inventory changes that are not driven by
// cart activity: receiving, shipment, returns, damage, transfers and corrections.
package adjustments

import (
	"context"
	"fmt"

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

// OpeningReason is recorded on the correction that seeds a new stock item.
const OpeningReason = "opening balance"

const stockItemUniqueIndex = "ux_stock_items_variant_store"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type flagRaiser interface {
	Raise(ctx context.Context, tx *gorm.DB, input flags.RaiseInput) (*models.InventoryFlag, error)
}

// RecordInput describes one count-affecting movement.
type RecordInput struct {
	StoreID        uuid.UUID
	StockItemID    uuid.UUID
	VariantID      *uuid.UUID
	Type           enums.MovementType
	Quantity       int
	Reason         string
	OriginatorID   *uuid.UUID
	OriginatorType *string
	Actor          *outbox.ActorRef
}

// Result is the state after a recorded movement. Flagged is set when the
// movement left the item with negative availability.
type Result struct {
	StockItem *models.StockItem     `json:"stockItem"`
	Movement  *models.StockMovement `json:"movement"`
	Flagged   bool                  `json:"flagged"`
}

// OpenInput creates the stock item for a variant in a store.
type OpenInput struct {
	StoreID       uuid.UUID
	VariantID     uuid.UUID
	Count         int
	LowStockAlert *int
	OriginatorID  *uuid.UUID
}

type Service interface {
	RecordMovement(ctx context.Context, input RecordInput) (*Result, error)
	OpenStockItem(ctx context.Context, input OpenInput) (*models.StockItem, error)
}

type ServiceParams struct {
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

func NewService(params ServiceParams) (Service, error) {
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

// RecordMovement applies the type's signed delta to the item's count and
// appends the movement. Decreasing types are not checked against available
// stock: the movement is committed and a negative result is flagged. A count
// that would drop below zero is rejected.
func (s *service) RecordMovement(ctx context.Context, input RecordInput) (*Result, error) {
	if input.StoreID == uuid.Nil || input.StockItemID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "store id and stock item id are required")
	}
	if !input.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid movement type").
			WithDetails(map[string]any{"allowed": enums.MovementTypes()})
	}
	if input.Type.IsReservation() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reservation movements are recorded by cart operations")
	}
	signed, err := input.Type.SignedDelta(input.Quantity)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid movement quantity")
	}

	item, err := s.items.GetByID(ctx, input.StockItemID)
	if err != nil {
		return nil, err
	}
	if item.StoreID != input.StoreID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "stock item not found")
	}
	if input.VariantID != nil && *input.VariantID != item.VariantID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stock item does not belong to variant")
	}

	unlock, err := s.locks.Lock(ctx, stockitems.LockKey(item.ID))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire stock lock")
	}
	defer unlock()

	result := &Result{}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		items := s.items.WithTx(tx)
		if _, err := items.LockByID(ctx, item.ID); err != nil {
			return err
		}
		updated, err := items.ApplyDelta(ctx, item.ID, stockitems.Delta{
			Count:             signed,
			LowStockThreshold: s.threshold,
		})
		if err != nil {
			return err
		}

		movement := &models.StockMovement{
			StockItemID:    updated.ID,
			VariantID:      updated.VariantID,
			StoreID:        updated.StoreID,
			Type:           input.Type,
			Quantity:       signed,
			Reason:         input.Reason,
			OriginatorID:   input.OriginatorID,
			OriginatorType: input.OriginatorType,
		}
		if err := s.movements.WithTx(tx).Append(ctx, movement); err != nil {
			return err
		}

		if err := s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventStockMovementRecorded,
			AggregateType: enums.AggregateStockItem,
			AggregateID:   updated.ID,
			Actor:         input.Actor,
			Data: payloads.StockMovementRecordedEvent{
				MovementID:     movement.ID,
				StockItemID:    updated.ID,
				VariantID:      updated.VariantID,
				StoreID:        updated.StoreID,
				Type:           movement.Type,
				Quantity:       movement.Quantity,
				Reason:         movement.Reason,
				OriginatorID:   movement.OriginatorID,
				OriginatorType: movement.OriginatorType,
				Levels: payloads.StockLevels{
					Count:     updated.Count,
					Reserved:  updated.Reserved,
					Available: updated.Available(),
				},
			},
		}); err != nil {
			return err
		}

		if updated.Available() < 0 {
			movementID := movement.ID
			if _, err := s.flags.Raise(ctx, tx, flags.RaiseInput{
				Item:       *updated,
				Kind:       enums.FlagNegativeAvailable,
				MovementID: &movementID,
				Details: map[string]any{
					"movementType": movement.Type,
					"quantity":     movement.Quantity,
				},
			}); err != nil {
				return err
			}
			result.Flagged = true
		}

		result.StockItem = updated
		result.Movement = movement
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncMovement(string(input.Type))
	return result, nil
}

// OpenStockItem creates the variant's stock item. A non-zero opening count is
// written as a correction so the ledger folds to the stored count.
func (s *service) OpenStockItem(ctx context.Context, input OpenInput) (*models.StockItem, error) {
	if input.StoreID == uuid.Nil || input.VariantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "store id and variant id are required")
	}
	if input.Count < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "opening count must be non-negative")
	}
	if input.LowStockAlert != nil && *input.LowStockAlert < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "low stock alert must be non-negative")
	}
	if _, err := s.items.GetVariant(ctx, input.StoreID, input.VariantID); err != nil {
		return nil, err
	}

	var created *models.StockItem
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		items := s.items.WithTx(tx)
		item := &models.StockItem{
			VariantID:     input.VariantID,
			StoreID:       input.StoreID,
			LowStockAlert: input.LowStockAlert,
		}
		if err := items.Create(ctx, item); err != nil {
			if db.IsUniqueViolation(err, stockItemUniqueIndex) {
				return pkgerrors.New(pkgerrors.CodeConflict, "stock item already exists for variant")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create stock item")
		}
		created = item
		if input.Count == 0 {
			return nil
		}

		updated, err := items.ApplyDelta(ctx, item.ID, stockitems.Delta{
			Count:             input.Count,
			LowStockThreshold: s.threshold,
		})
		if err != nil {
			return err
		}
		originatorType := "staff"
		if input.OriginatorID == nil {
			originatorType = "system"
		}
		if err := s.movements.WithTx(tx).Append(ctx, &models.StockMovement{
			StockItemID:    item.ID,
			VariantID:      item.VariantID,
			StoreID:        item.StoreID,
			Type:           enums.MovementCorrection,
			Quantity:       input.Count,
			Reason:         OpeningReason,
			OriginatorID:   input.OriginatorID,
			OriginatorType: &originatorType,
		}); err != nil {
			return err
		}
		created = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.logg != nil {
		logCtx := s.logg.WithStockItemID(ctx, created.ID.String())
		s.logg.Info(s.logg.WithField(logCtx, "count", created.Count), "stock item opened")
	}
	return created, nil
}
