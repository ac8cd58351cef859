package flags

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockledger/internal/repo"
	"github.com/angelmondragon/stockledger/pkg/db/models"
	"github.com/angelmondragon/stockledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger/pkg/errors"
)

// Repository persists inventory flags.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, flag *models.InventoryFlag) error
	GetByID(ctx context.Context, storeID, id uuid.UUID) (*models.InventoryFlag, error)
	List(ctx context.Context, storeID uuid.UUID, status *enums.InventoryFlagStatus, limit int) ([]models.InventoryFlag, error)
	HasOpen(ctx context.Context, stockItemID uuid.UUID, kind enums.InventoryFlagKind) (bool, error)
	MarkResolved(ctx context.Context, id, resolvedBy uuid.UUID, at time.Time) (bool, error)
}

type repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: repo.NewBase(tx)}
}

func (r *repository) Create(ctx context.Context, flag *models.InventoryFlag) error {
	if err := r.DB(ctx).Create(flag).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create inventory flag")
	}
	return nil
}

func (r *repository) GetByID(ctx context.Context, storeID, id uuid.UUID) (*models.InventoryFlag, error) {
	var flag models.InventoryFlag
	err := r.DB(ctx).Where("id = ? AND store_id = ?", id, storeID).First(&flag).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "inventory flag not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load inventory flag")
	}
	return &flag, nil
}

func (r *repository) List(ctx context.Context, storeID uuid.UUID, status *enums.InventoryFlagStatus, limit int) ([]models.InventoryFlag, error) {
	q := r.DB(ctx).Where("store_id = ?", storeID).Order("created_at DESC").Order("id DESC")
	if status != nil {
		q = q.Where("status = ?", *status)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []models.InventoryFlag
	if err := q.Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list inventory flags")
	}
	return rows, nil
}

func (r *repository) HasOpen(ctx context.Context, stockItemID uuid.UUID, kind enums.InventoryFlagKind) (bool, error) {
	var count int64
	if err := r.DB(ctx).Model(&models.InventoryFlag{}).
		Where("stock_item_id = ? AND kind = ? AND status = ?", stockItemID, kind, enums.FlagStatusOpen).
		Count(&count).Error; err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count open inventory flags")
	}
	return count > 0, nil
}

// MarkResolved flips an open flag to resolved and reports whether a row changed.
func (r *repository) MarkResolved(ctx context.Context, id, resolvedBy uuid.UUID, at time.Time) (bool, error) {
	res := r.DB(ctx).Model(&models.InventoryFlag{}).
		Where("id = ? AND status = ?", id, enums.FlagStatusOpen).
		Updates(map[string]any{
			"status":      enums.FlagStatusResolved,
			"resolved_by": resolvedBy,
			"resolved_at": at,
		})
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "resolve inventory flag")
	}
	return res.RowsAffected > 0, nil
}
