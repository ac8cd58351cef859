package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockledger/pkg/enums"
)

// StockItem holds the on-hand count and reserved quantity for a variant in a store.
type StockItem struct {
	ID            uuid.UUID         `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	VariantID     uuid.UUID         `gorm:"column:variant_id;type:uuid;not null;uniqueIndex:ux_stock_items_variant_store" json:"variantId"`
	StoreID       uuid.UUID         `gorm:"column:store_id;type:uuid;not null;uniqueIndex:ux_stock_items_variant_store" json:"storeId"`
	Count         int               `gorm:"column:count;not null;default:0" json:"count"`
	Reserved      int               `gorm:"column:reserved;not null;default:0" json:"reserved"`
	StockStatus   enums.StockStatus `gorm:"column:stock_status;type:text;not null;default:'out_of_stock'" json:"stockStatus"`
	LowStockAlert *int              `gorm:"column:low_stock_alert" json:"lowStockAlert,omitempty"`
	CreatedAt     time.Time         `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt     time.Time         `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (s *StockItem) BeforeCreate(*gorm.DB) error {
	ensureID(&s.ID)
	return nil
}

// Available is the quantity that can still be reserved.
func (s StockItem) Available() int {
	return s.Count - s.Reserved
}

// Threshold returns the item's low-stock threshold, falling back to def.
func (s StockItem) Threshold(def int) int {
	if s.LowStockAlert != nil {
		return *s.LowStockAlert
	}
	return def
}
