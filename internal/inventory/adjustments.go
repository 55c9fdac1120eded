package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// ApprovalModule tags adjustment entries in the approval history.
const ApprovalModule = "STOCK_ADJ"

// SubmitAdjustment stages a count correction as PENDING. The ledger is not
// touched until approval.
func (s *Service) SubmitAdjustment(ctx context.Context, input SubmitAdjustmentInput) (Adjustment, error) {
	if input.VariantID == uuid.Nil {
		return Adjustment{}, ErrVariantRequired
	}
	if input.ExpectedQty < 0 || input.ActualQty < 0 {
		return Adjustment{}, fmt.Errorf("inventory: counted quantities must be >= 0: %w", shared.ErrValidation)
	}
	input.SubmittedBy = strings.TrimSpace(input.SubmittedBy)
	if input.SubmittedBy == "" {
		return Adjustment{}, ErrActorRequired
	}
	if input.Reason == "" {
		input.Reason = ReasonCycleCount
	}
	if !input.Reason.Valid() {
		return Adjustment{}, fmt.Errorf("inventory: unknown adjustment reason %q: %w", input.Reason, shared.ErrValidation)
	}
	if _, err := s.location(ctx, input.LocationID, false); err != nil {
		return Adjustment{}, err
	}

	var adj Adjustment
	_, err := s.execute(ctx, "submit_adjustment", func(ctx context.Context, sc *txScope) error {
		number, err := NextNumber(ctx, sc.tx, PrefixAdjustment, sc.now)
		if err != nil {
			return err
		}
		adj = Adjustment{
			ID:          uuid.New(),
			Number:      number,
			LocationID:  input.LocationID,
			VariantID:   input.VariantID,
			ExpectedQty: input.ExpectedQty,
			ActualQty:   input.ActualQty,
			Delta:       input.ActualQty - input.ExpectedQty,
			Reason:      input.Reason,
			Status:      AdjustmentPending,
			SubmittedBy: input.SubmittedBy,
			Notes:       input.Notes,
			CreatedAt:   sc.now,
		}
		return sc.tx.InsertAdjustment(ctx, adj)
	})
	if err != nil {
		return Adjustment{}, err
	}
	s.recordApproval(ctx, adj.ID, input.SubmittedBy, shared.ApprovalSubmit, input.Notes)
	s.audit(ctx, "inventory:adjustment_submit", "stock_adjustment", adj.ID.String(), map[string]any{
		"number": adj.Number, "delta": adj.Delta, "reason": adj.Reason,
	})
	return adj, nil
}

// ApproveAdjustment applies the recorded delta to on-hand quantity. The delta
// fixed at submission is used as is, not recomputed from the live level.
func (s *Service) ApproveAdjustment(ctx context.Context, id uuid.UUID, approvedBy string) (Adjustment, error) {
	approvedBy = strings.TrimSpace(approvedBy)
	if approvedBy == "" {
		return Adjustment{}, ErrActorRequired
	}
	var adj Adjustment
	_, err := s.execute(ctx, "approve_adjustment", func(ctx context.Context, sc *txScope) error {
		var err error
		adj, err = sc.tx.GetAdjustmentForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !adj.Status.CanTransition(AdjustmentApproved) {
			return ErrAdjustmentClosed
		}
		key := StockKey{VariantID: adj.VariantID, LocationID: adj.LocationID}
		if adj.Delta != 0 {
			if _, err := s.apply(ctx, sc, key, adj.Delta, 0); err != nil {
				return err
			}
			if _, err := s.record(ctx, sc, singleLocation(Movement{
				VariantID:  adj.VariantID,
				Type:       MovementAdjustment,
				Quantity:   adj.Delta,
				Reference:  Reference{Type: "ADJUSTMENT", ID: adj.ID.String(), Number: adj.Number},
				DocumentNo: adj.Number,
				ActorID:    approvedBy,
				Note:       string(adj.Reason),
			}, adj.LocationID)); err != nil {
				return err
			}
		}
		counted := sc.now
		if _, err := s.ledger.Update(ctx, sc.tx, key, func(l *StockLevel) {
			l.LastCountedAt = &counted
		}); err != nil {
			return err
		}
		adj.Status = AdjustmentApproved
		adj.ApprovedBy = approvedBy
		adj.ApprovedAt = &counted
		return sc.tx.UpdateAdjustment(ctx, adj)
	})
	if err != nil {
		return Adjustment{}, err
	}
	s.recordApproval(ctx, adj.ID, approvedBy, shared.ApprovalApprove, "")
	s.audit(ctx, "inventory:adjustment_approve", "stock_adjustment", adj.ID.String(), map[string]any{
		"number": adj.Number, "delta": adj.Delta,
	})
	return adj, nil
}

// RejectAdjustment closes a PENDING adjustment without ledger effect.
func (s *Service) RejectAdjustment(ctx context.Context, id uuid.UUID, rejectedBy, notes string) (Adjustment, error) {
	rejectedBy = strings.TrimSpace(rejectedBy)
	if rejectedBy == "" {
		return Adjustment{}, ErrActorRequired
	}
	var adj Adjustment
	_, err := s.execute(ctx, "reject_adjustment", func(ctx context.Context, sc *txScope) error {
		var err error
		adj, err = sc.tx.GetAdjustmentForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !adj.Status.CanTransition(AdjustmentRejected) {
			return ErrAdjustmentClosed
		}
		now := sc.now
		adj.Status = AdjustmentRejected
		adj.ApprovedBy = rejectedBy
		adj.ApprovedAt = &now
		if notes = strings.TrimSpace(notes); notes != "" {
			if adj.Notes != "" {
				adj.Notes += "\n"
			}
			adj.Notes += "rejected: " + notes
		}
		return sc.tx.UpdateAdjustment(ctx, adj)
	})
	if err != nil {
		return Adjustment{}, err
	}
	s.recordApproval(ctx, adj.ID, rejectedBy, shared.ApprovalReject, notes)
	s.audit(ctx, "inventory:adjustment_reject", "stock_adjustment", adj.ID.String(), map[string]any{
		"number": adj.Number,
	})
	return adj, nil
}

func (s *Service) GetAdjustment(ctx context.Context, id uuid.UUID) (Adjustment, error) {
	return s.repo.GetAdjustment(ctx, id)
}

func (s *Service) ListAdjustments(ctx context.Context, filter AdjustmentFilter) ([]Adjustment, int, error) {
	filter.Page, filter.PerPage = shared.NormalizePage(filter.Page, filter.PerPage)
	return s.repo.ListAdjustments(ctx, filter)
}

// AdjustmentApprovals returns the approval history of an adjustment.
func (s *Service) AdjustmentApprovals(ctx context.Context, id uuid.UUID) ([]shared.ApprovalLog, error) {
	if _, err := s.repo.GetAdjustment(ctx, id); err != nil {
		return nil, err
	}
	if s.ports.Approvals == nil {
		return []shared.ApprovalLog{}, nil
	}
	return s.ports.Approvals.List(ctx, ApprovalModule, id)
}

func (s *Service) recordApproval(ctx context.Context, ref uuid.UUID, actor string, action shared.ApprovalAction, note string) {
	if s.ports.Approvals == nil {
		return
	}
	err := s.ports.Approvals.Record(ctx, shared.ApprovalLog{
		Module:  ApprovalModule,
		RefID:   ref,
		ActorID: actor,
		Action:  action,
		Note:    note,
	})
	if err != nil {
		s.logger.Warn("approval record failed", slog.String("ref_id", ref.String()), slog.Any("error", err))
	}
}
