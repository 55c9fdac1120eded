package inventory

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	autoResolveNote    = "stock replenished above reorder point"
	clearedResolveNote = "reorder point cleared"
)

// AlertEngine keeps at most one ACTIVE low-stock alert per stock level.
type AlertEngine struct {
	clock func() time.Time
}

// Evaluate compares level against its reorder point and raises, refreshes or
// auto-resolves the pair's ACTIVE alert. It returns the event to publish after
// commit, or nil when nothing changed.
func (e AlertEngine) Evaluate(ctx context.Context, tx TxRepository, level StockLevel) (*AlertEvent, error) {
	now := e.clock()
	current, err := tx.GetActiveAlertForUpdate(ctx, level.Key())
	if level.ReorderPoint == nil {
		if errors.Is(err, ErrAlertNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return e.autoResolve(ctx, tx, current, now, clearedResolveNote)
	}
	reorderPoint := *level.ReorderPoint
	available := level.Available()

	switch {
	case errors.Is(err, ErrAlertNotFound):
		if available > reorderPoint {
			return nil, nil
		}
		alert := Alert{
			ID:             uuid.New(),
			VariantID:      level.VariantID,
			LocationID:     level.LocationID,
			CurrentQty:     available,
			ReorderPoint:   reorderPoint,
			RecommendedQty: recommendedQuantity(level),
			Status:         AlertActive,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := tx.InsertAlert(ctx, alert); err != nil {
			return nil, err
		}
		return &AlertEvent{Type: EventAlertRaised, Alert: alert, OccurredAt: now}, nil
	case err != nil:
		return nil, err
	}

	if available > reorderPoint {
		return e.autoResolve(ctx, tx, current, now, autoResolveNote)
	}

	recommended := recommendedQuantity(level)
	if current.CurrentQty == available && current.ReorderPoint == reorderPoint && current.RecommendedQty == recommended {
		return nil, nil
	}
	current.CurrentQty = available
	current.ReorderPoint = reorderPoint
	current.RecommendedQty = recommended
	current.UpdatedAt = now
	if err := tx.UpdateAlert(ctx, current); err != nil {
		return nil, err
	}
	return &AlertEvent{Type: EventAlertUpdated, Alert: current, OccurredAt: now}, nil
}

func (e AlertEngine) autoResolve(ctx context.Context, tx TxRepository, alert Alert, now time.Time, note string) (*AlertEvent, error) {
	alert.Status = AlertResolved
	alert.ResolvedAt = &now
	alert.Notes = note
	alert.UpdatedAt = now
	if err := tx.UpdateAlert(ctx, alert); err != nil {
		return nil, err
	}
	return &AlertEvent{Type: EventAlertResolved, Alert: alert, OccurredAt: now}, nil
}

// recommendedQuantity is the configured reorder quantity, or enough to bring
// available back to twice the reorder point.
func recommendedQuantity(level StockLevel) int64 {
	if level.ReorderQuantity != nil && *level.ReorderQuantity > 0 {
		return *level.ReorderQuantity
	}
	if level.ReorderPoint == nil {
		return 0
	}
	recommended := 2*(*level.ReorderPoint) - level.Available()
	if recommended < 0 {
		return 0
	}
	return recommended
}

// close moves an ACTIVE alert into a terminal status by hand.
func (e AlertEngine) close(ctx context.Context, tx TxRepository, id uuid.UUID, status AlertStatus, by, notes string) (Alert, error) {
	alert, err := tx.GetAlertForUpdate(ctx, id)
	if err != nil {
		return Alert{}, err
	}
	if !alert.Status.CanTransition(status) {
		return Alert{}, ErrAlertClosed
	}
	now := e.clock()
	alert.Status = status
	alert.ResolvedBy = by
	alert.ResolvedAt = &now
	alert.Notes = notes
	alert.UpdatedAt = now
	if err := tx.UpdateAlert(ctx, alert); err != nil {
		return Alert{}, err
	}
	return alert, nil
}

// ResolveAlert closes an ACTIVE alert by hand, even while stock is still low.
func (s *Service) ResolveAlert(ctx context.Context, id uuid.UUID, resolvedBy, notes string) (Alert, error) {
	return s.closeAlert(ctx, "resolve_alert", id, AlertResolved, resolvedBy, notes)
}

// IgnoreAlert dismisses an ACTIVE alert. A later write that still finds stock
// at or below the reorder point raises a fresh alert.
func (s *Service) IgnoreAlert(ctx context.Context, id uuid.UUID, ignoredBy, notes string) (Alert, error) {
	return s.closeAlert(ctx, "ignore_alert", id, AlertIgnored, ignoredBy, notes)
}

func (s *Service) closeAlert(ctx context.Context, op string, id uuid.UUID, status AlertStatus, by, notes string) (Alert, error) {
	by = strings.TrimSpace(by)
	if by == "" {
		return Alert{}, ErrActorRequired
	}
	var alert Alert
	_, err := s.execute(ctx, op, func(ctx context.Context, sc *txScope) error {
		var err error
		alert, err = s.alerts.close(ctx, sc.tx, id, status, by, strings.TrimSpace(notes))
		if err != nil {
			return err
		}
		sc.events = append(sc.events, AlertEvent{Type: EventAlertResolved, Alert: alert, OccurredAt: sc.now})
		return nil
	})
	if err != nil {
		return Alert{}, err
	}
	s.audit(ctx, "inventory:"+op, "stock_alert", alert.ID.String(), map[string]any{"status": alert.Status})
	return alert, nil
}

// ListActiveAlerts returns ACTIVE alerts, optionally for one location.
func (s *Service) ListActiveAlerts(ctx context.Context, locationID *uuid.UUID) ([]Alert, error) {
	return s.repo.ListAlerts(ctx, AlertFilter{Status: AlertActive, LocationID: locationID})
}

func (s *Service) ListAlerts(ctx context.Context, filter AlertFilter) ([]Alert, error) {
	return s.repo.ListAlerts(ctx, filter)
}

func (s *Service) GetAlert(ctx context.Context, id uuid.UUID) (Alert, error) {
	return s.repo.GetAlert(ctx, id)
}
