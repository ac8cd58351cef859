package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// InventoryMetrics counts reservation outcomes, ledger writes and flags.
type InventoryMetrics struct {
	reservations *prometheus.CounterVec
	movements    *prometheus.CounterVec
	flags        *prometheus.CounterVec
}

// NewInventoryMetrics registers the inventory metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewInventoryMetrics(reg prometheus.Registerer) *InventoryMetrics {
	if reg == nil {
		return &InventoryMetrics{}
	}
	reservations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "inventory",
		Name:      "reservation_operations_total",
		Help:      "Cart reservation operations by operation and outcome.",
	}, []string{"operation", "outcome"})
	movements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "inventory",
		Name:      "movements_total",
		Help:      "Stock movements appended to the ledger by type.",
	}, []string{"type"})
	flags := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "inventory",
		Name:      "flags_total",
		Help:      "Inventory flags raised for operator review by kind.",
	}, []string{"kind"})
	reg.MustRegister(reservations, movements, flags)
	return &InventoryMetrics{
		reservations: reservations,
		movements:    movements,
		flags:        flags,
	}
}

// ObserveReservation records the outcome of a cart reservation operation.
func (m *InventoryMetrics) ObserveReservation(operation, outcome string) {
	if m == nil || m.reservations == nil {
		return
	}
	m.reservations.WithLabelValues(normalizeLabel(operation), normalizeLabel(outcome)).Inc()
}

// IncMovement counts an appended ledger row.
func (m *InventoryMetrics) IncMovement(movementType string) {
	if m == nil || m.movements == nil {
		return
	}
	m.movements.WithLabelValues(normalizeLabel(movementType)).Inc()
}

// IncFlag counts a raised inventory flag.
func (m *InventoryMetrics) IncFlag(kind string) {
	if m == nil || m.flags == nil {
		return
	}
	m.flags.WithLabelValues(normalizeLabel(kind)).Inc()
}
