package enums

import "fmt"

// MovementType classifies a stock movement ledger row.
type MovementType string

const (
	MovementReceived    MovementType = "received"
	MovementShipped     MovementType = "shipped"
	MovementReturned    MovementType = "returned"
	MovementTransferIn  MovementType = "transfer_in"
	MovementTransferOut MovementType = "transfer_out"
	MovementDamaged     MovementType = "damaged"
	MovementAdjustment  MovementType = "adjustment"
	MovementCorrection  MovementType = "correction"
	MovementReserved    MovementType = "reserved"
	MovementUnreserved  MovementType = "unreserved"
)

// Counter names the StockItem column a movement type mutates.
type Counter string

const (
	CounterCount    Counter = "count"
	CounterReserved Counter = "reserved"
)

// Direction is the sign a movement type applies to its counter.
// DirectionExplicit types carry their sign in the quantity itself.
type Direction int

const (
	DirectionExplicit Direction = 0
	DirectionIncrease Direction = 1
	DirectionDecrease Direction = -1
)

type movementEffect struct {
	counter   Counter
	direction Direction
}

var movementEffects = map[MovementType]movementEffect{
	MovementReceived:    {CounterCount, DirectionIncrease},
	MovementShipped:     {CounterCount, DirectionDecrease},
	MovementReturned:    {CounterCount, DirectionIncrease},
	MovementTransferIn:  {CounterCount, DirectionIncrease},
	MovementTransferOut: {CounterCount, DirectionDecrease},
	MovementDamaged:     {CounterCount, DirectionDecrease},
	MovementAdjustment:  {CounterCount, DirectionExplicit},
	MovementCorrection:  {CounterCount, DirectionExplicit},
	MovementReserved:    {CounterReserved, DirectionIncrease},
	MovementUnreserved:  {CounterReserved, DirectionDecrease},
}

var validMovementTypes = []MovementType{
	MovementReceived,
	MovementShipped,
	MovementReturned,
	MovementTransferIn,
	MovementTransferOut,
	MovementDamaged,
	MovementAdjustment,
	MovementCorrection,
	MovementReserved,
	MovementUnreserved,
}

// StockInTypes are the movement types summed as inbound stock.
var StockInTypes = []MovementType{MovementReceived, MovementReturned, MovementTransferIn}

// StockOutTypes are the movement types summed as outbound stock.
var StockOutTypes = []MovementType{MovementShipped, MovementDamaged, MovementTransferOut}

// String implements fmt.Stringer.
func (m MovementType) String() string {
	return string(m)
}

// IsValid reports whether the value is a known MovementType.
func (m MovementType) IsValid() bool {
	_, ok := movementEffects[m]
	return ok
}

// Effect returns the counter the type mutates and the sign it applies.
func (m MovementType) Effect() (Counter, Direction) {
	effect := movementEffects[m]
	return effect.counter, effect.direction
}

// IsReservation reports whether the type moves the reserved counter.
func (m MovementType) IsReservation() bool {
	counter, _ := m.Effect()
	return counter == CounterReserved
}

// SignedDelta converts a caller-supplied quantity into the signed delta the
// type applies to its counter. Directional types ignore the caller's sign.
func (m MovementType) SignedDelta(quantity int) (int, error) {
	if !m.IsValid() {
		return 0, fmt.Errorf("invalid movement type %q", m)
	}
	if quantity == 0 {
		return 0, fmt.Errorf("movement quantity must be non-zero")
	}
	_, direction := m.Effect()
	if direction == DirectionExplicit {
		return quantity, nil
	}
	if quantity < 0 {
		quantity = -quantity
	}
	return int(direction) * quantity, nil
}

// MovementTypes returns every known movement type in declaration order.
func MovementTypes() []MovementType {
	out := make([]MovementType, len(validMovementTypes))
	copy(out, validMovementTypes)
	return out
}

// ParseMovementType converts raw input into a MovementType.
func ParseMovementType(value string) (MovementType, error) {
	for _, candidate := range validMovementTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid movement type %q", value)
}
