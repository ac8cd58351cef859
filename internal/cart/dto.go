package cart

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/stockledger/pkg/db/models"
	"github.com/angelmondragon/stockledger/pkg/enums"
)

// CartDTO is the API view of a customer's open cart.
type CartDTO struct {
	ID            *uuid.UUID        `json:"id,omitempty"`
	StoreID       uuid.UUID         `json:"storeId"`
	CustomerID    *uuid.UUID        `json:"customerId,omitempty"`
	Status        enums.OrderStatus `json:"status,omitempty"`
	OrderItems    []OrderItemDTO    `json:"orderItems"`
	TotalQuantity int               `json:"totalQuantity"`
}

// OrderItemDTO is a single reserved cart line.
type OrderItemDTO struct {
	ID          uuid.UUID       `json:"id"`
	VariantID   uuid.UUID       `json:"variantId"`
	StockItemID uuid.UUID       `json:"stockItemId"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
}

// EmptyCart is returned when the caller has no open cart.
func EmptyCart(storeID uuid.UUID, customerID *uuid.UUID) *CartDTO {
	return &CartDTO{StoreID: storeID, CustomerID: customerID, OrderItems: []OrderItemDTO{}}
}

func newCartDTO(order *models.Order) *CartDTO {
	id := order.ID
	customerID := order.CustomerID
	dto := &CartDTO{
		ID:         &id,
		StoreID:    order.StoreID,
		CustomerID: &customerID,
		Status:     order.Status,
		OrderItems: make([]OrderItemDTO, 0, len(order.Items)),
	}
	for _, item := range order.Items {
		dto.OrderItems = append(dto.OrderItems, OrderItemDTO{
			ID:          item.ID,
			VariantID:   item.VariantID,
			StockItemID: item.StockItemID,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
		})
		dto.TotalQuantity += item.Quantity
	}
	return dto
}

// ReleaseResult summarises a released cart.
type ReleaseResult struct {
	OrderID       uuid.UUID `json:"orderId"`
	ReleasedItems int       `json:"releasedItems"`
	ReleasedUnits int       `json:"releasedUnits"`
}
