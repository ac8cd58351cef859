package movements

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockledger/internal/repo"
	"github.com/angelmondragon/stockledger/pkg/db/models"
	"github.com/angelmondragon/stockledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger/pkg/errors"
	"github.com/angelmondragon/stockledger/pkg/pagination"
)

// Repository is the append-only store for stock movements. It deliberately
// exposes no update or delete operations.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Append(ctx context.Context, movement *models.StockMovement) error
	ListByStockItem(ctx context.Context, storeID, stockItemID uuid.UUID, params pagination.Params) (pagination.Page[models.StockMovement], error)
	TotalsByType(ctx context.Context, stockItemID uuid.UUID) ([]TypeTotal, error)
	SumMagnitude(ctx context.Context, storeID uuid.UUID, types []enums.MovementType, from, to time.Time) (int, error)
}

// TypeTotal is the signed sum of a stock item's movements of one type.
type TypeTotal struct {
	Type  enums.MovementType `gorm:"column:type"`
	Total int                `gorm:"column:total"`
}

type repository struct {
	repo.Base
	now func() time.Time
}

// NewRepository returns a movement repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db), now: time.Now}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: repo.NewBase(tx), now: r.now}
}

func (r *repository) Append(ctx context.Context, movement *models.StockMovement) error {
	if movement == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "movement is required")
	}
	if !movement.Type.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid movement type")
	}
	if movement.Quantity == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "movement quantity must be non-zero")
	}
	if movement.CreatedAt.IsZero() {
		at, err := r.stamp(ctx)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read ledger clock")
		}
		movement.CreatedAt = at
	}
	if err := r.DB(ctx).Create(movement).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append stock movement")
	}
	return nil
}

// stamp reads the timestamp for a new movement. On postgres it is the
// database's wall clock at insert time, so rows appended under the stock item
// row lock sort in commit order whichever process wrote them. sqlite runs
// in a single process and uses the local clock.
func (r *repository) stamp(ctx context.Context) (time.Time, error) {
	if r.Dialect() != "postgres" {
		return r.now().UTC(), nil
	}
	var at time.Time
	if err := r.DB(ctx).Raw("SELECT clock_timestamp()").Row().Scan(&at); err != nil {
		return time.Time{}, err
	}
	return at.UTC(), nil
}

func (r *repository) ListByStockItem(ctx context.Context, storeID, stockItemID uuid.UUID, params pagination.Params) (pagination.Page[models.StockMovement], error) {
	var page pagination.Page[models.StockMovement]

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return page, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	q := r.DB(ctx).
		Where("store_id = ? AND stock_item_id = ?", storeID, stockItemID).
		Order("created_at ASC").
		Order("id ASC").
		Limit(pagination.LimitWithBuffer(params.Limit))
	if cursor != nil {
		q = q.Where("((created_at > ?) OR (created_at = ? AND id > ?))", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var rows []models.StockMovement
	if err := q.Find(&rows).Error; err != nil {
		return page, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stock movements")
	}

	limit := pagination.NormalizeLimit(params.Limit)
	if len(rows) > limit {
		last := rows[limit-1]
		page.NextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
		rows = rows[:limit]
	}
	page.Items = rows
	return page, nil
}

func (r *repository) TotalsByType(ctx context.Context, stockItemID uuid.UUID) ([]TypeTotal, error) {
	var totals []TypeTotal
	if err := r.DB(ctx).
		Model(&models.StockMovement{}).
		Select("type, SUM(quantity) AS total").
		Where("stock_item_id = ?", stockItemID).
		Group("type").
		Scan(&totals).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum stock movements")
	}
	return totals, nil
}

// SumMagnitude totals |quantity| for the store's movements of the given types
// created in [from, to).
func (r *repository) SumMagnitude(ctx context.Context, storeID uuid.UUID, types []enums.MovementType, from, to time.Time) (int, error) {
	var total int64
	if err := r.DB(ctx).
		Model(&models.StockMovement{}).
		Select("COALESCE(SUM(ABS(quantity)), 0)").
		Where("store_id = ? AND type IN ?", storeID, types).
		Where("created_at >= ? AND created_at < ?", from.UTC(), to.UTC()).
		Scan(&total).Error; err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum movement window")
	}
	return int(total), nil
}
