package cart

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockledger/internal/repo"
	"github.com/angelmondragon/stockledger/pkg/db/models"
	"github.com/angelmondragon/stockledger/pkg/enums"
)

// Repository persists carts, which are orders in the cart status, and their items.
type Repository struct {
	repo.Base
}

// NewRepository constructs a cart repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// WithTx binds the repository to a transaction.
func (r *Repository) WithTx(tx *gorm.DB) CartRepository {
	if tx == nil {
		return r
	}
	return &Repository{Base: repo.NewBase(tx)}
}

// FindOpenCart loads the customer's open cart for the store with its items.
func (r *Repository) FindOpenCart(ctx context.Context, storeID, customerID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.DB(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC").Order("id ASC") }).
		Where("store_id = ? AND customer_id = ? AND status = ?", storeID, customerID, enums.OrderStatusCart).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// FindByID loads an order with its items regardless of status.
func (r *Repository) FindByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.DB(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC").Order("id ASC") }).
		Where("id = ?", orderID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// CreateCart inserts a new order in the cart status.
func (r *Repository) CreateCart(ctx context.Context, order *models.Order) error {
	order.Status = enums.OrderStatusCart
	return r.DB(ctx).Omit("Items").Create(order).Error
}

// FindItem loads an item that belongs to the given order.
func (r *Repository) FindItem(ctx context.Context, orderID, itemID uuid.UUID) (*models.OrderItem, error) {
	var item models.OrderItem
	if err := r.DB(ctx).Where("id = ? AND order_id = ?", itemID, orderID).First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// FindItemByVariant loads the order's line for a variant.
func (r *Repository) FindItemByVariant(ctx context.Context, orderID, variantID uuid.UUID) (*models.OrderItem, error) {
	var item models.OrderItem
	if err := r.DB(ctx).Where("order_id = ? AND variant_id = ?", orderID, variantID).First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *Repository) CreateItem(ctx context.Context, item *models.OrderItem) error {
	return r.DB(ctx).Create(item).Error
}

func (r *Repository) UpdateItemQuantity(ctx context.Context, itemID uuid.UUID, quantity int) error {
	return r.DB(ctx).Model(&models.OrderItem{}).Where("id = ?", itemID).Update("quantity", quantity).Error
}

func (r *Repository) DeleteItem(ctx context.Context, itemID uuid.UUID) error {
	return r.DB(ctx).Where("id = ?", itemID).Delete(&models.OrderItem{}).Error
}

// Touch bumps the cart's updated_at, which drives idle expiry.
func (r *Repository) Touch(ctx context.Context, orderID uuid.UUID, at time.Time) error {
	return r.DB(ctx).Model(&models.Order{}).Where("id = ?", orderID).Update("updated_at", at).Error
}

// UpdateStatus moves an order between statuses and reports whether it was
// still in the expected status.
func (r *Repository) UpdateStatus(ctx context.Context, orderID uuid.UUID, from, to enums.OrderStatus) (bool, error) {
	res := r.DB(ctx).Model(&models.Order{}).
		Where("id = ? AND status = ?", orderID, from).
		Update("status", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ListIdleCarts returns open carts not touched since idleSince, oldest first.
func (r *Repository) ListIdleCarts(ctx context.Context, idleSince time.Time, limit int) ([]models.Order, error) {
	var rows []models.Order
	q := r.DB(ctx).
		Where("status = ? AND updated_at < ?", enums.OrderStatusCart, idleSince).
		Order("updated_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
