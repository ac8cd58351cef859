package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/angelmondragon/stockledger/internal/adjustments"
	"github.com/angelmondragon/stockledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger/pkg/errors"
	"github.com/angelmondragon/stockledger/pkg/kafka"
	"github.com/angelmondragon/stockledger/pkg/logger"
)

const (
	consumerName   = "fulfillment"
	originatorType = "fulfillment"
)

// Event is a shipment or return reported by the fulfillment system.
type Event struct {
	EventID     uuid.UUID          `json:"eventId"`
	StoreID     uuid.UUID          `json:"storeId"`
	StockItemID uuid.UUID          `json:"stockItemId"`
	VariantID   *uuid.UUID         `json:"variantId,omitempty"`
	Type        enums.MovementType `json:"type"`
	Quantity    int                `json:"quantity"`
	OrderID     *uuid.UUID         `json:"orderId,omitempty"`
}

type movementRecorder interface {
	RecordMovement(ctx context.Context, input adjustments.RecordInput) (*adjustments.Result, error)
}

type idempotencyChecker interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Delete(ctx context.Context, consumer string, eventID uuid.UUID) error
}

// Consumer turns fulfillment events into ledger movements, once per event id.
type Consumer struct {
	recorder movementRecorder
	manager  idempotencyChecker
	logg     *logger.Logger
}

func NewConsumer(recorder movementRecorder, manager idempotencyChecker, logg *logger.Logger) (*Consumer, error) {
	if recorder == nil {
		return nil, fmt.Errorf("adjustment service required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{recorder: recorder, manager: manager, logg: logg}, nil
}

// Handle is a kafka.Handler. Malformed or rejected events return
// kafka.ErrSkip so they are committed; infrastructure failures are retried.
func (c *Consumer) Handle(ctx context.Context, m kafkago.Message) error {
	event, err := kafka.Decode[Event](m.Value)
	if err != nil {
		c.logg.Error(ctx, "undecodable fulfillment event", err)
		return kafka.ErrSkip
	}
	return c.Process(ctx, event)
}

// Process records the movement for one event.
func (c *Consumer) Process(ctx context.Context, event Event) error {
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"event_id":      event.EventID.String(),
		"movement_type": event.Type,
		"quantity":      event.Quantity,
	})
	logCtx = c.logg.WithStoreID(logCtx, event.StoreID.String())
	logCtx = c.logg.WithStockItemID(logCtx, event.StockItemID.String())

	if err := validate(event); err != nil {
		c.logg.Warn(c.logg.WithField(logCtx, "error", err.Error()), "fulfillment event rejected")
		return kafka.ErrSkip
	}

	already, err := c.manager.CheckAndMarkProcessed(ctx, consumerName, event.EventID)
	if err != nil {
		return fmt.Errorf("idempotency check: %w", err)
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		return nil
	}

	origin := originatorType
	res, err := c.recorder.RecordMovement(ctx, adjustments.RecordInput{
		StoreID:        event.StoreID,
		StockItemID:    event.StockItemID,
		VariantID:      event.VariantID,
		Type:           event.Type,
		Quantity:       event.Quantity,
		Reason:         reason(event),
		OriginatorID:   event.OrderID,
		OriginatorType: &origin,
	})
	if err != nil {
		if permanent(err) {
			// The marker stays so redeliveries are not re-attempted.
			c.logg.Error(logCtx, "fulfillment movement rejected", err)
			return kafka.ErrSkip
		}
		if delErr := c.manager.Delete(ctx, consumerName, event.EventID); delErr != nil {
			c.logg.Error(logCtx, "failed to clear idempotency marker", delErr)
		}
		return err
	}

	logCtx = c.logg.WithFields(logCtx, map[string]any{
		"movement_id": res.Movement.ID.String(),
		"flagged":     res.Flagged,
	})
	c.logg.Info(logCtx, "fulfillment movement recorded")
	return nil
}

func validate(event Event) error {
	switch {
	case event.EventID == uuid.Nil:
		return errors.New("event id missing")
	case event.StoreID == uuid.Nil || event.StockItemID == uuid.Nil:
		return errors.New("store and stock item ids are required")
	case event.Type != enums.MovementShipped && event.Type != enums.MovementReturned:
		return fmt.Errorf("unsupported movement type %q", event.Type)
	case event.Quantity <= 0:
		return errors.New("quantity must be positive")
	}
	return nil
}

func reason(event Event) string {
	parts := []string{"fulfillment", string(event.Type)}
	if event.OrderID != nil {
		parts = append(parts, "order", event.OrderID.String())
	}
	return strings.Join(parts, " ")
}

func permanent(err error) bool {
	for _, code := range []pkgerrors.Code{
		pkgerrors.CodeValidation,
		pkgerrors.CodeNotFound,
		pkgerrors.CodeConsistency,
	} {
		if pkgerrors.IsCode(err, code) {
			return true
		}
	}
	return false
}
