package inventory

// ReservationStatus is the lifecycle state of a reservation.
type ReservationStatus string

const (
	ReservationActive             ReservationStatus = "ACTIVE"
	ReservationPartiallyFulfilled ReservationStatus = "PARTIALLY_FULFILLED"
	ReservationFulfilled          ReservationStatus = "FULFILLED"
	ReservationReleased           ReservationStatus = "RELEASED"
	ReservationExpired            ReservationStatus = "EXPIRED"
)

var reservationTransitions = map[ReservationStatus][]ReservationStatus{
	ReservationActive: {
		ReservationPartiallyFulfilled, ReservationFulfilled, ReservationReleased, ReservationExpired,
	},
	ReservationPartiallyFulfilled: {
		ReservationPartiallyFulfilled, ReservationFulfilled, ReservationReleased, ReservationExpired,
	},
}

// CanTransition reports whether the reservation may move to next.
func (s ReservationStatus) CanTransition(next ReservationStatus) bool {
	return contains(reservationTransitions[s], next)
}

// IsTerminal reports whether no further transition is allowed.
func (s ReservationStatus) IsTerminal() bool {
	return len(reservationTransitions[s]) == 0
}

// AdjustmentStatus is the approval state of an adjustment.
type AdjustmentStatus string

const (
	AdjustmentPending  AdjustmentStatus = "PENDING"
	AdjustmentApproved AdjustmentStatus = "APPROVED"
	AdjustmentRejected AdjustmentStatus = "REJECTED"
)

var adjustmentTransitions = map[AdjustmentStatus][]AdjustmentStatus{
	AdjustmentPending: {AdjustmentApproved, AdjustmentRejected},
}

func (s AdjustmentStatus) CanTransition(next AdjustmentStatus) bool {
	return contains(adjustmentTransitions[s], next)
}

func (s AdjustmentStatus) IsTerminal() bool {
	return len(adjustmentTransitions[s]) == 0
}

// AlertStatus is the state of a low-stock alert.
type AlertStatus string

const (
	AlertActive   AlertStatus = "ACTIVE"
	AlertResolved AlertStatus = "RESOLVED"
	AlertIgnored  AlertStatus = "IGNORED"
)

var alertTransitions = map[AlertStatus][]AlertStatus{
	AlertActive: {AlertResolved, AlertIgnored},
}

func (s AlertStatus) CanTransition(next AlertStatus) bool {
	return contains(alertTransitions[s], next)
}

func (s AlertStatus) IsTerminal() bool {
	return len(alertTransitions[s]) == 0
}

func contains[T comparable](items []T, want T) bool {
	for _, item := range items {
		if item == want {
			return true
		}
	}
	return false
}
