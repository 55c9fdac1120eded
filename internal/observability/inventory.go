package observability

import "github.com/prometheus/client_golang/prometheus"

// InventoryMetrics mencatat aktivitas ledger stok.
type InventoryMetrics struct {
	movements    *prometheus.CounterVec
	reservations *prometheus.CounterVec
	alertEvents  *prometheus.CounterVec
	txRetries    *prometheus.CounterVec
}

// NewInventoryMetrics mendaftarkan metrik inventory pada registerer.
func NewInventoryMetrics(registerer prometheus.Registerer) *InventoryMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	movements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_inventory_movements_total",
		Help: "Stock movements appended to the ledger by type.",
	}, []string{"type"})
	reservations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_inventory_reservations_total",
		Help: "Reservation operations by outcome.",
	}, []string{"outcome"})
	alertEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_inventory_alert_events_total",
		Help: "Low-stock alert state changes by event type.",
	}, []string{"event"})
	txRetries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_inventory_tx_retries_total",
		Help: "Ledger transactions retried after a concurrency conflict.",
	}, []string{"operation"})
	registerer.MustRegister(movements, reservations, alertEvents, txRetries)
	return &InventoryMetrics{
		movements:    movements,
		reservations: reservations,
		alertEvents:  alertEvents,
		txRetries:    txRetries,
	}
}

// MovementRecorded menambah hitungan movement per tipe.
func (m *InventoryMetrics) MovementRecorded(movementType string) {
	if m == nil {
		return
	}
	m.movements.WithLabelValues(movementType).Inc()
}

// ReservationOutcome menambah hitungan hasil operasi reservasi.
func (m *InventoryMetrics) ReservationOutcome(outcome string) {
	if m == nil {
		return
	}
	m.reservations.WithLabelValues(outcome).Inc()
}

// AlertEvent menambah hitungan event alert.
func (m *InventoryMetrics) AlertEvent(event string) {
	if m == nil {
		return
	}
	m.alertEvents.WithLabelValues(event).Inc()
}

// TxRetried menambah hitungan retry transaksi.
func (m *InventoryMetrics) TxRetried(operation string) {
	if m == nil {
		return
	}
	m.txRetries.WithLabelValues(operation).Inc()
}
