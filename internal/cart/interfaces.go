package cart

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockledger/pkg/db/models"
	"github.com/angelmondragon/stockledger/pkg/enums"
)

// CartRepository defines the persistence surface required by the cart service.
type CartRepository interface {
	WithTx(tx *gorm.DB) CartRepository
	FindOpenCart(ctx context.Context, storeID, customerID uuid.UUID) (*models.Order, error)
	FindByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	CreateCart(ctx context.Context, order *models.Order) error
	FindItem(ctx context.Context, orderID, itemID uuid.UUID) (*models.OrderItem, error)
	FindItemByVariant(ctx context.Context, orderID, variantID uuid.UUID) (*models.OrderItem, error)
	CreateItem(ctx context.Context, item *models.OrderItem) error
	UpdateItemQuantity(ctx context.Context, itemID uuid.UUID, quantity int) error
	DeleteItem(ctx context.Context, itemID uuid.UUID) error
	Touch(ctx context.Context, orderID uuid.UUID, at time.Time) error
	UpdateStatus(ctx context.Context, orderID uuid.UUID, from, to enums.OrderStatus) (bool, error)
	ListIdleCarts(ctx context.Context, idleSince time.Time, limit int) ([]models.Order, error)
}
