package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockledger/pkg/enums"
)

// StockMovement is an immutable ledger row. Quantity is the signed delta that
// was applied to the counter its type affects.
type StockMovement struct {
	ID             uuid.UUID          `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	StockItemID    uuid.UUID          `gorm:"column:stock_item_id;type:uuid;not null;index:ix_stock_movements_item_created,priority:1" json:"stockItemId"`
	VariantID      uuid.UUID          `gorm:"column:variant_id;type:uuid;not null" json:"variantId"`
	StoreID        uuid.UUID          `gorm:"column:store_id;type:uuid;not null;index:ix_stock_movements_store_created,priority:1" json:"storeId"`
	Type           enums.MovementType `gorm:"column:type;type:text;not null" json:"type"`
	Quantity       int                `gorm:"column:quantity;not null" json:"quantity"`
	Reason         string             `gorm:"column:reason;not null" json:"reason"`
	OriginatorID   *uuid.UUID         `gorm:"column:originator_id;type:uuid" json:"originatorId,omitempty"`
	OriginatorType *string            `gorm:"column:originator_type" json:"originatorType,omitempty"`
	CreatedAt      time.Time          `gorm:"column:created_at;autoCreateTime;index:ix_stock_movements_item_created,priority:2;index:ix_stock_movements_store_created,priority:2" json:"createdAt"`
}

func (m *StockMovement) BeforeCreate(*gorm.DB) error {
	ensureID(&m.ID)
	return nil
}

// Magnitude returns the absolute quantity moved.
func (m StockMovement) Magnitude() int {
	if m.Quantity < 0 {
		return -m.Quantity
	}
	return m.Quantity
}
