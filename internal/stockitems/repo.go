package stockitems

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/stockledger/internal/repo"
	"github.com/angelmondragon/stockledger/pkg/db/models"
	"github.com/angelmondragon/stockledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger/pkg/errors"
)

// DefaultLowStockThreshold applies to items without their own low-stock alert.
const DefaultLowStockThreshold = 5

// Repository is the only write path for StockItem rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, item *models.StockItem) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.StockItem, error)
	GetByVariantStore(ctx context.Context, variantID, storeID uuid.UUID) (*models.StockItem, error)
	LockByID(ctx context.Context, id uuid.UUID) (*models.StockItem, error)
	ApplyDelta(ctx context.Context, id uuid.UUID, delta Delta) (*models.StockItem, error)
	ListByStore(ctx context.Context, storeID uuid.UUID) ([]ValuedItem, error)
	ListIDsAfter(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error)
	GetVariant(ctx context.Context, storeID, variantID uuid.UUID) (*models.Variant, error)
}

// LockKey serializes read-check-write sequences on one stock item within
// the process.
func LockKey(stockItemID uuid.UUID) string {
	return "stock:" + stockItemID.String()
}

// Delta is a signed change to a stock item's counters.
type Delta struct {
	Count    int
	Reserved int
	// RequireAvailable rejects results where count - reserved drops below zero.
	RequireAvailable bool
	// LowStockThreshold is used when the item carries no threshold of its own.
	LowStockThreshold int
}

// ValuedItem is a stock item joined with its variant's cost price.
type ValuedItem struct {
	models.StockItem
	CostPrice decimal.Decimal `gorm:"column:cost_price"`
}

type repository struct {
	repo.Base
}

// NewRepository returns a stock item repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: repo.NewBase(tx)}
}

func (r *repository) Create(ctx context.Context, item *models.StockItem) error {
	if item.StockStatus == "" {
		item.StockStatus = enums.StockStatusFor(item.Available(), item.Threshold(DefaultLowStockThreshold))
	}
	return r.DB(ctx).Create(item).Error
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*models.StockItem, error) {
	var item models.StockItem
	if err := r.DB(ctx).Where("id = ?", id).First(&item).Error; err != nil {
		return nil, mapLookupError(err)
	}
	return &item, nil
}

func (r *repository) GetByVariantStore(ctx context.Context, variantID, storeID uuid.UUID) (*models.StockItem, error) {
	var item models.StockItem
	if err := r.DB(ctx).
		Where("variant_id = ? AND store_id = ?", variantID, storeID).
		First(&item).Error; err != nil {
		return nil, mapLookupError(err)
	}
	return &item, nil
}

// LockByID re-reads the row holding a row lock until the enclosing
// transaction ends. sqlite has no row locks and serializes writers instead.
func (r *repository) LockByID(ctx context.Context, id uuid.UUID) (*models.StockItem, error) {
	q := r.DB(ctx)
	if r.Dialect() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var item models.StockItem
	if err := q.Where("id = ?", id).First(&item).Error; err != nil {
		return nil, mapLookupError(err)
	}
	return &item, nil
}

// ApplyDelta adds both deltas in a single guarded UPDATE. A guard miss means
// the write would break count >= 0, reserved >= 0 or (when required)
// available >= 0, and is reported as a consistency error.
func (r *repository) ApplyDelta(ctx context.Context, id uuid.UUID, delta Delta) (*models.StockItem, error) {
	q := r.DB(ctx).Model(&models.StockItem{}).
		Where("id = ?", id).
		Where("count + ? >= 0", delta.Count).
		Where("reserved + ? >= 0", delta.Reserved)
	if delta.RequireAvailable {
		q = q.Where("(count + ?) - (reserved + ?) >= 0", delta.Count, delta.Reserved)
	}

	res := q.Updates(map[string]any{
		"count":    gorm.Expr("count + ?", delta.Count),
		"reserved": gorm.Expr("reserved + ?", delta.Reserved),
	})
	if res.Error != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "apply stock delta")
	}

	current, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if res.RowsAffected == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeConsistency, "stock delta would break inventory invariants").
			WithDetails(map[string]any{
				"stockItemId":   id.String(),
				"count":         current.Count,
				"reserved":      current.Reserved,
				"countDelta":    delta.Count,
				"reservedDelta": delta.Reserved,
			})
	}

	status := enums.StockStatusFor(current.Available(), current.Threshold(delta.LowStockThreshold))
	if status != current.StockStatus {
		if err := r.DB(ctx).Model(&models.StockItem{}).
			Where("id = ?", id).
			Update("stock_status", status).Error; err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update stock status")
		}
		current.StockStatus = status
	}
	return current, nil
}

func (r *repository) ListByStore(ctx context.Context, storeID uuid.UUID) ([]ValuedItem, error) {
	var items []ValuedItem
	err := r.DB(ctx).
		Table("stock_items").
		Select("stock_items.*, COALESCE(variants.cost_price, 0) AS cost_price").
		Joins("LEFT JOIN variants ON variants.id = stock_items.variant_id").
		Where("stock_items.store_id = ?", storeID).
		Order("stock_items.created_at ASC").
		Scan(&items).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stock items")
	}
	return items, nil
}

func (r *repository) ListIDsAfter(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	q := r.DB(ctx).Model(&models.StockItem{}).Order("id ASC").Limit(limit)
	if after != uuid.Nil {
		q = q.Where("id > ?", after)
	}
	if err := q.Pluck("id", &ids).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stock item ids")
	}
	return ids, nil
}

func (r *repository) GetVariant(ctx context.Context, storeID, variantID uuid.UUID) (*models.Variant, error) {
	var variant models.Variant
	err := r.DB(ctx).Where("id = ? AND store_id = ?", variantID, storeID).First(&variant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "variant not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load variant")
	}
	return &variant, nil
}

func mapLookupError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "stock item not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load stock item")
}
