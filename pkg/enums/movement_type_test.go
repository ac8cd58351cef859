package enums

import "testing"

func TestMovementTypeEffects(t *testing.T) {
	cases := []struct {
		typ       MovementType
		counter   Counter
		direction Direction
	}{
		{MovementReceived, CounterCount, DirectionIncrease},
		{MovementShipped, CounterCount, DirectionDecrease},
		{MovementReturned, CounterCount, DirectionIncrease},
		{MovementTransferIn, CounterCount, DirectionIncrease},
		{MovementTransferOut, CounterCount, DirectionDecrease},
		{MovementDamaged, CounterCount, DirectionDecrease},
		{MovementAdjustment, CounterCount, DirectionExplicit},
		{MovementCorrection, CounterCount, DirectionExplicit},
		{MovementReserved, CounterReserved, DirectionIncrease},
		{MovementUnreserved, CounterReserved, DirectionDecrease},
	}
	if len(cases) != len(MovementTypes()) {
		t.Fatalf("effect table covers %d types, enum has %d", len(cases), len(MovementTypes()))
	}
	for _, tc := range cases {
		counter, direction := tc.typ.Effect()
		if counter != tc.counter || direction != tc.direction {
			t.Fatalf("%s: expected (%s,%d) got (%s,%d)", tc.typ, tc.counter, tc.direction, counter, direction)
		}
	}
}

func TestSignedDelta(t *testing.T) {
	cases := []struct {
		typ  MovementType
		qty  int
		want int
	}{
		{MovementReceived, 10, 10},
		{MovementReceived, -10, 10},
		{MovementShipped, 10, -10},
		{MovementShipped, -10, -10},
		{MovementDamaged, 3, -3},
		{MovementAdjustment, -4, -4},
		{MovementCorrection, 7, 7},
		{MovementReserved, 2, 2},
		{MovementUnreserved, 2, -2},
	}
	for _, tc := range cases {
		got, err := tc.typ.SignedDelta(tc.qty)
		if err != nil {
			t.Fatalf("%s(%d): unexpected error %v", tc.typ, tc.qty, err)
		}
		if got != tc.want {
			t.Fatalf("%s(%d): expected %d got %d", tc.typ, tc.qty, tc.want, got)
		}
	}
}

func TestSignedDeltaRejectsZeroAndUnknown(t *testing.T) {
	if _, err := MovementReceived.SignedDelta(0); err == nil {
		t.Fatal("expected zero quantity to be rejected")
	}
	if _, err := MovementType("teleported").SignedDelta(1); err == nil {
		t.Fatal("expected unknown type to be rejected")
	}
}

func TestParseMovementType(t *testing.T) {
	got, err := ParseMovementType("transfer_out")
	if err != nil || got != MovementTransferOut {
		t.Fatalf("unexpected parse result %q %v", got, err)
	}
	if _, err := ParseMovementType("TRANSFER_OUT"); err == nil {
		t.Fatal("expected case-sensitive parse to fail")
	}
	if !MovementUnreserved.IsReservation() || MovementCorrection.IsReservation() {
		t.Fatal("reservation classification mismatch")
	}
}
