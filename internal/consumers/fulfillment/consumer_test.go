package fulfillment

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/angelmondragon/stockledger/internal/adjustments"
	"github.com/angelmondragon/stockledger/pkg/db/models"
	"github.com/angelmondragon/stockledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger/pkg/errors"
	"github.com/angelmondragon/stockledger/pkg/kafka"
	"github.com/angelmondragon/stockledger/pkg/logger"
)

func TestConsumerRecordsShipment(t *testing.T) {
	recorder := &fakeRecorder{}
	manager := &fakeIdempotency{}
	consumer := mustConsumer(t, recorder, manager)

	orderID := uuid.New()
	event := newEvent(enums.MovementShipped, 3)
	event.OrderID = &orderID

	if err := consumer.Handle(context.Background(), message(t, event)); err != nil {
		t.Fatalf("Handle() error: %v", err)
	}
	if len(recorder.inputs) != 1 {
		t.Fatalf("expected one movement, got %d", len(recorder.inputs))
	}
	input := recorder.inputs[0]
	if input.Type != enums.MovementShipped || input.Quantity != 3 {
		t.Fatalf("unexpected movement %+v", input)
	}
	if input.OriginatorType == nil || *input.OriginatorType != "fulfillment" {
		t.Fatalf("expected fulfillment originator, got %v", input.OriginatorType)
	}
	if input.OriginatorID == nil || *input.OriginatorID != orderID {
		t.Fatalf("expected order as originator")
	}
	if want := "fulfillment shipped order " + orderID.String(); input.Reason != want {
		t.Fatalf("expected reason %q, got %q", want, input.Reason)
	}
}

func TestConsumerIsIdempotent(t *testing.T) {
	recorder := &fakeRecorder{}
	manager := &fakeIdempotency{}
	consumer := mustConsumer(t, recorder, manager)
	event := newEvent(enums.MovementReturned, 1)

	for i := 0; i < 2; i++ {
		if err := consumer.Process(context.Background(), event); err != nil {
			t.Fatalf("Process() error: %v", err)
		}
	}
	if len(recorder.inputs) != 1 {
		t.Fatalf("expected duplicate delivery to be ignored, recorded %d", len(recorder.inputs))
	}
}

func TestConsumerSkipsInvalidEvents(t *testing.T) {
	recorder := &fakeRecorder{}
	consumer := mustConsumer(t, recorder, &fakeIdempotency{})

	cases := map[string]Event{
		"damaged type":  newEvent(enums.MovementDamaged, 1),
		"zero quantity": newEvent(enums.MovementShipped, 0),
		"no event id":   func() Event { e := newEvent(enums.MovementShipped, 1); e.EventID = uuid.Nil; return e }(),
	}
	for name, event := range cases {
		if err := consumer.Process(context.Background(), event); !errors.Is(err, kafka.ErrSkip) {
			t.Fatalf("%s: expected ErrSkip, got %v", name, err)
		}
	}
	if err := consumer.Handle(context.Background(), kafkago.Message{Value: []byte("not json")}); !errors.Is(err, kafka.ErrSkip) {
		t.Fatalf("expected undecodable message to be skipped, got %v", err)
	}
	if len(recorder.inputs) != 0 {
		t.Fatalf("expected no movements, got %d", len(recorder.inputs))
	}
}

func TestConsumerKeepsMarkerForRejectedMovement(t *testing.T) {
	recorder := &fakeRecorder{err: pkgerrors.New(pkgerrors.CodeConsistency, "stock count would go negative")}
	manager := &fakeIdempotency{}
	consumer := mustConsumer(t, recorder, manager)

	err := consumer.Process(context.Background(), newEvent(enums.MovementShipped, 50))
	if !errors.Is(err, kafka.ErrSkip) {
		t.Fatalf("expected ErrSkip, got %v", err)
	}
	if manager.deletes != 0 {
		t.Fatalf("expected marker kept, deleted %d", manager.deletes)
	}
}

func TestConsumerClearsMarkerOnTransientFailure(t *testing.T) {
	recorder := &fakeRecorder{err: pkgerrors.New(pkgerrors.CodeDependency, "db unavailable")}
	manager := &fakeIdempotency{}
	consumer := mustConsumer(t, recorder, manager)
	event := newEvent(enums.MovementShipped, 1)

	err := consumer.Process(context.Background(), event)
	if err == nil || errors.Is(err, kafka.ErrSkip) {
		t.Fatalf("expected retryable error, got %v", err)
	}
	if manager.deletes != 1 {
		t.Fatalf("expected marker cleared for retry, deleted %d", manager.deletes)
	}

	recorder.err = nil
	if err := consumer.Process(context.Background(), event); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if len(recorder.inputs) != 2 {
		t.Fatalf("expected retry to reach the recorder, got %d calls", len(recorder.inputs))
	}
}

func mustConsumer(t *testing.T, recorder *fakeRecorder, manager *fakeIdempotency) *Consumer {
	t.Helper()
	consumer, err := NewConsumer(recorder, manager, logger.New(logger.Options{ServiceName: "test", Output: io.Discard}))
	if err != nil {
		t.Fatalf("NewConsumer() error: %v", err)
	}
	return consumer
}

func newEvent(kind enums.MovementType, qty int) Event {
	return Event{
		EventID:     uuid.New(),
		StoreID:     uuid.New(),
		StockItemID: uuid.New(),
		Type:        kind,
		Quantity:    qty,
	}
}

func message(t *testing.T, event Event) kafkago.Message {
	t.Helper()
	raw, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return kafkago.Message{Key: []byte(event.StockItemID.String()), Value: raw}
}

type fakeRecorder struct {
	inputs []adjustments.RecordInput
	err    error
}

func (f *fakeRecorder) RecordMovement(ctx context.Context, input adjustments.RecordInput) (*adjustments.Result, error) {
	f.inputs = append(f.inputs, input)
	if f.err != nil {
		return nil, f.err
	}
	return &adjustments.Result{
		StockItem: &models.StockItem{ID: input.StockItemID},
		Movement:  &models.StockMovement{ID: uuid.New(), Type: input.Type},
	}, nil
}

type fakeIdempotency struct {
	seen    map[uuid.UUID]bool
	deletes int
}

func (f *fakeIdempotency) CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	if f.seen == nil {
		f.seen = map[uuid.UUID]bool{}
	}
	if f.seen[eventID] {
		return true, nil
	}
	f.seen[eventID] = true
	return false, nil
}

func (f *fakeIdempotency) Delete(ctx context.Context, consumer string, eventID uuid.UUID) error {
	f.deletes++
	delete(f.seen, eventID)
	return nil
}
