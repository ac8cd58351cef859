package payloads

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/stockledger/pkg/enums"
)

// StockLevels is the post-write snapshot attached to stock events.
type StockLevels struct {
	Count     int `json:"count"`
	Reserved  int `json:"reserved"`
	Available int `json:"available"`
}

// StockReservedEvent is emitted when a cart mutation grows a reservation.
type StockReservedEvent struct {
	StockItemID uuid.UUID   `json:"stockItemId"`
	VariantID   uuid.UUID   `json:"variantId"`
	StoreID     uuid.UUID   `json:"storeId"`
	OrderID     uuid.UUID   `json:"orderId"`
	OrderItemID uuid.UUID   `json:"orderItemId"`
	MovementID  uuid.UUID   `json:"movementId"`
	Quantity    int         `json:"quantity"`
	Levels      StockLevels `json:"levels"`
}

// StockReleasedEvent is emitted when a cart mutation shrinks or drops a reservation.
type StockReleasedEvent struct {
	StockItemID uuid.UUID   `json:"stockItemId"`
	VariantID   uuid.UUID   `json:"variantId"`
	StoreID     uuid.UUID   `json:"storeId"`
	OrderID     uuid.UUID   `json:"orderId"`
	OrderItemID uuid.UUID   `json:"orderItemId"`
	MovementID  uuid.UUID   `json:"movementId"`
	Quantity    int         `json:"quantity"`
	Reason      string      `json:"reason"`
	Levels      StockLevels `json:"levels"`
}

// StockMovementRecordedEvent is emitted for every count-affecting movement.
type StockMovementRecordedEvent struct {
	MovementID     uuid.UUID          `json:"movementId"`
	StockItemID    uuid.UUID          `json:"stockItemId"`
	VariantID      uuid.UUID          `json:"variantId"`
	StoreID        uuid.UUID          `json:"storeId"`
	Type           enums.MovementType `json:"type"`
	Quantity       int                `json:"quantity"`
	Reason         string             `json:"reason"`
	OriginatorID   *uuid.UUID         `json:"originatorId,omitempty"`
	OriginatorType *string            `json:"originatorType,omitempty"`
	Levels         StockLevels        `json:"levels"`
}

// InventoryFlagRaisedEvent notifies operators about a stock item needing review.
type InventoryFlagRaisedEvent struct {
	FlagID      uuid.UUID               `json:"flagId"`
	StockItemID uuid.UUID               `json:"stockItemId"`
	StoreID     uuid.UUID               `json:"storeId"`
	Kind        enums.InventoryFlagKind `json:"kind"`
	MovementID  *uuid.UUID              `json:"movementId,omitempty"`
	Levels      StockLevels             `json:"levels"`
}

// CartExpiredEvent is emitted when an idle cart is released.
type CartExpiredEvent struct {
	OrderID       uuid.UUID `json:"orderId"`
	StoreID       uuid.UUID `json:"storeId"`
	CustomerID    uuid.UUID `json:"customerId"`
	ReleasedItems int       `json:"releasedItems"`
	ReleasedUnits int       `json:"releasedUnits"`
}
