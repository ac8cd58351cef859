package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockledger/pkg/enums"
)

// InventoryFlag records a stock item state that needs operator review.
type InventoryFlag struct {
	ID          uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	StoreID     uuid.UUID                 `gorm:"column:store_id;type:uuid;not null;index" json:"storeId"`
	StockItemID uuid.UUID                 `gorm:"column:stock_item_id;type:uuid;not null;index" json:"stockItemId"`
	Kind        enums.InventoryFlagKind   `gorm:"column:kind;type:text;not null" json:"kind"`
	Status      enums.InventoryFlagStatus `gorm:"column:status;type:text;not null;default:'open'" json:"status"`
	MovementID  *uuid.UUID                `gorm:"column:movement_id;type:uuid" json:"movementId,omitempty"`
	Details     json.RawMessage           `gorm:"column:details;type:jsonb" json:"details"`
	ResolvedBy  *uuid.UUID                `gorm:"column:resolved_by;type:uuid" json:"resolvedBy,omitempty"`
	ResolvedAt  *time.Time                `gorm:"column:resolved_at" json:"resolvedAt,omitempty"`
	CreatedAt   time.Time                 `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
}

func (f *InventoryFlag) BeforeCreate(*gorm.DB) error {
	ensureID(&f.ID)
	return nil
}
