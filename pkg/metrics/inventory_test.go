package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestInventoryMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewInventoryMetrics(reg)

	m.ObserveReservation("add_item", "ok")
	m.ObserveReservation("add_item", "insufficient_stock")
	m.ObserveReservation("add_item", "insufficient_stock")
	m.IncMovement("received")
	m.IncFlag("negative_available")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "stockledger_inventory_reservation_operations_total", "outcome", "insufficient_stock"); err != nil || got != 2 {
		t.Fatalf("expected 2 insufficient outcomes, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "stockledger_inventory_movements_total", "type", "received"); err != nil || got != 1 {
		t.Fatalf("expected 1 received movement, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "stockledger_inventory_flags_total", "kind", "negative_available"); err != nil || got != 1 {
		t.Fatalf("expected 1 flag, got %f (%v)", got, err)
	}
}

func TestInventoryMetricsNilSafe(t *testing.T) {
	var m *InventoryMetrics
	m.ObserveReservation("remove_item", "ok")
	m.IncMovement("shipped")
	NewInventoryMetrics(nil).IncFlag("ledger_drift")
}
