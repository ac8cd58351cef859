// Package flags records stock item states that need operator review.
package flags

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockledger/pkg/db/models"
	"github.com/angelmondragon/stockledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger/pkg/errors"
	"github.com/angelmondragon/stockledger/pkg/logger"
	"github.com/angelmondragon/stockledger/pkg/metrics"
	"github.com/angelmondragon/stockledger/pkg/outbox"
	"github.com/angelmondragon/stockledger/pkg/outbox/payloads"
)

const defaultListLimit = 100

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// RaiseInput describes a flag to record against a stock item.
type RaiseInput struct {
	Item       models.StockItem
	Kind       enums.InventoryFlagKind
	MovementID *uuid.UUID
	Details    map[string]any
}

// Service raises, lists and resolves inventory flags.
type Service interface {
	Raise(ctx context.Context, tx *gorm.DB, input RaiseInput) (*models.InventoryFlag, error)
	RaiseDetached(ctx context.Context, input RaiseInput) (*models.InventoryFlag, error)
	List(ctx context.Context, storeID uuid.UUID, status *enums.InventoryFlagStatus) ([]models.InventoryFlag, error)
	Resolve(ctx context.Context, storeID, flagID, resolvedBy uuid.UUID) (*models.InventoryFlag, error)
	HasOpen(ctx context.Context, stockItemID uuid.UUID, kind enums.InventoryFlagKind) (bool, error)
}

type service struct {
	repo    Repository
	tx      txRunner
	events  eventEmitter
	metrics *metrics.InventoryMetrics
	logg    *logger.Logger
	now     func() time.Time
}

func NewService(repo Repository, tx txRunner, events eventEmitter, m *metrics.InventoryMetrics, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("flag repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if events == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &service{
		repo:    repo,
		tx:      tx,
		events:  events,
		metrics: m,
		logg:    logg,
		now:     time.Now,
	}, nil
}

// Raise stores the flag and its outbox event inside tx.
func (s *service) Raise(ctx context.Context, tx *gorm.DB, input RaiseInput) (*models.InventoryFlag, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if !input.Kind.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid inventory flag kind")
	}
	if input.Item.ID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stock item is required")
	}

	details, err := json.Marshal(input.detailsWithLevels())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode flag details")
	}
	flag := &models.InventoryFlag{
		StoreID:     input.Item.StoreID,
		StockItemID: input.Item.ID,
		Kind:        input.Kind,
		Status:      enums.FlagStatusOpen,
		MovementID:  input.MovementID,
		Details:     details,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.repo.WithTx(tx).Create(ctx, flag); err != nil {
		return nil, err
	}

	if err := s.events.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventInventoryFlagRaised,
		AggregateType: enums.AggregateInventoryFlag,
		AggregateID:   flag.ID,
		Data: payloads.InventoryFlagRaisedEvent{
			FlagID:      flag.ID,
			StockItemID: input.Item.ID,
			StoreID:     input.Item.StoreID,
			Kind:        input.Kind,
			MovementID:  input.MovementID,
			Levels: payloads.StockLevels{
				Count:     input.Item.Count,
				Reserved:  input.Item.Reserved,
				Available: input.Item.Available(),
			},
		},
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit inventory flag event")
	}

	s.metrics.IncFlag(string(input.Kind))
	if s.logg != nil {
		logCtx := s.logg.WithStockItemID(ctx, input.Item.ID.String())
		logCtx = s.logg.WithFields(logCtx, map[string]any{
			"flag_id":   flag.ID.String(),
			"flag_kind": input.Kind,
			"count":     input.Item.Count,
			"reserved":  input.Item.Reserved,
		})
		s.logg.Warn(logCtx, "inventory flag raised")
	}
	return flag, nil
}

// RaiseDetached records a flag in its own transaction, for callers whose
// unit of work has already rolled back.
func (s *service) RaiseDetached(ctx context.Context, input RaiseInput) (*models.InventoryFlag, error) {
	var flag *models.InventoryFlag
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		flag, err = s.Raise(ctx, tx, input)
		return err
	})
	if err != nil {
		return nil, err
	}
	return flag, nil
}

func (s *service) List(ctx context.Context, storeID uuid.UUID, status *enums.InventoryFlagStatus) ([]models.InventoryFlag, error) {
	if storeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "store id is required")
	}
	return s.repo.List(ctx, storeID, status, defaultListLimit)
}

func (s *service) Resolve(ctx context.Context, storeID, flagID, resolvedBy uuid.UUID) (*models.InventoryFlag, error) {
	if storeID == uuid.Nil || flagID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "store id and flag id are required")
	}
	flag, err := s.repo.GetByID(ctx, storeID, flagID)
	if err != nil {
		return nil, err
	}
	if flag.Status == enums.FlagStatusResolved {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "inventory flag already resolved")
	}

	at := s.now().UTC()
	updated, err := s.repo.MarkResolved(ctx, flagID, resolvedBy, at)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "inventory flag already resolved")
	}
	flag.Status = enums.FlagStatusResolved
	flag.ResolvedBy = &resolvedBy
	flag.ResolvedAt = &at
	return flag, nil
}

func (in RaiseInput) detailsWithLevels() map[string]any {
	out := map[string]any{
		"count":     in.Item.Count,
		"reserved":  in.Item.Reserved,
		"available": in.Item.Available(),
	}
	for k, v := range in.Details {
		out[k] = v
	}
	return out
}

// HasOpen reports whether an unresolved flag of kind exists for the item.
func (s *service) HasOpen(ctx context.Context, stockItemID uuid.UUID, kind enums.InventoryFlagKind) (bool, error) {
	open, err := s.repo.HasOpen(ctx, stockItemID, kind)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check open flags")
	}
	return open, nil
}
