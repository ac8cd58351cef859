package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockledger/pkg/enums"
)

// Order is a customer order. While Status is cart it is the customer's open
// cart for the store; at most one such row exists per (customer, store).
type Order struct {
	ID         uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	StoreID    uuid.UUID         `gorm:"column:store_id;type:uuid;not null;index:ix_orders_customer_store_status,priority:2"`
	CustomerID uuid.UUID         `gorm:"column:customer_id;type:uuid;not null;index:ix_orders_customer_store_status,priority:1"`
	Status     enums.OrderStatus `gorm:"column:status;type:text;not null;default:'cart';index:ix_orders_customer_store_status,priority:3"`
	Items      []OrderItem       `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt  time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}

// OrderItem is a line of an order. While the order is a cart its quantity is
// held in the referenced stock item's reserved counter.
type OrderItem struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	OrderID     uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index"`
	VariantID   uuid.UUID       `gorm:"column:variant_id;type:uuid;not null"`
	StockItemID uuid.UUID       `gorm:"column:stock_item_id;type:uuid;not null"`
	Quantity    int             `gorm:"column:quantity;not null"`
	UnitPrice   decimal.Decimal `gorm:"column:unit_price;type:numeric(12,2);not null;default:0"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (i *OrderItem) BeforeCreate(*gorm.DB) error {
	ensureID(&i.ID)
	return nil
}
