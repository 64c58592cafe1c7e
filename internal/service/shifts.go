package service

import (
	"context"
	"errors"
	"fmt"

	"aynpos/backend/internal/domain"
	"aynpos/backend/internal/ledger"
)

// OpenShift starts the single global cash shift. The opening float usually
// carries over from the previous close; callers can pass a different count.
func (s *Service) OpenShift(ctx context.Context, openingCashCents int64) (*domain.CashShift, error) {
	if openingCashCents < 0 {
		return nil, ledger.ErrInvalidInput
	}
	shift, err := s.repo.OpenShift(ctx, domain.CashShift{
		OpenedBy:         actorName(ctx),
		OpeningCashCents: openingCashCents,
	})
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "shift.open", "shift", shift.ID, fmt.Sprintf("opening %d cents", openingCashCents))
	s.log.Info("shift opened", "shift", shift.ID, "opening_cents", openingCashCents)
	return shift, nil
}

// SuggestedOpeningCash returns the counted cash from the last closed shift,
// or zero when no shift has been closed yet.
func (s *Service) SuggestedOpeningCash(ctx context.Context) (int64, error) {
	counted, err := s.repo.LastClosedShiftCash(ctx)
	if errors.Is(err, ledger.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return counted, nil
}

// CurrentShift returns the open shift with its live cash totals folded in.
func (s *Service) CurrentShift(ctx context.Context) (*domain.CashShift, error) {
	shift, err := s.repo.GetOpenShift(ctx)
	if err != nil {
		return nil, err
	}
	totals, err := s.repo.GetShiftCashTotals(ctx, shift.ID)
	if err != nil {
		return nil, err
	}
	shift.TotalSalesCents = totals.TotalSalesCents
	shift.CashSalesCents = totals.CashSalesCents
	shift.CardSalesCents = totals.CardSalesCents
	shift.MobileSalesCents = totals.MobileSalesCents
	shift.CashRefundsCents = totals.CashRefundsCents
	shift.CashExpensesCents = totals.CashExpensesCents
	shift.ExpectedCashCents = shift.OpeningCashCents + totals.CashSalesCents - totals.CashRefundsCents - totals.CashExpensesCents
	return shift, nil
}

// CloseShift reconciles the drawer. Sales totals per payment method are
// recomputed from the ledger and persisted with the final figures. The
// difference between counted and expected cash is recorded, never
// rejected: the drawer must always close, balanced or not.
func (s *Service) CloseShift(ctx context.Context, countedCashCents int64, notes string) (*domain.CashShift, error) {
	if countedCashCents < 0 {
		return nil, ledger.ErrInvalidInput
	}

	shift, err := s.repo.GetOpenShift(ctx)
	if err != nil {
		return nil, err
	}
	totals, err := s.repo.GetShiftCashTotals(ctx, shift.ID)
	if err != nil {
		return nil, err
	}

	expected := shift.OpeningCashCents + totals.CashSalesCents - totals.CashRefundsCents - totals.CashExpensesCents
	closed, err := s.repo.CloseShift(ctx, domain.CashShift{
		ID:                shift.ID,
		ClosedBy:          actorName(ctx),
		CountedCashCents:  countedCashCents,
		ExpectedCashCents: expected,
		DifferenceCents:   countedCashCents - expected,
		TotalSalesCents:   totals.TotalSalesCents,
		CashSalesCents:    totals.CashSalesCents,
		CardSalesCents:    totals.CardSalesCents,
		MobileSalesCents:  totals.MobileSalesCents,
		CashRefundsCents:  totals.CashRefundsCents,
		CashExpensesCents: totals.CashExpensesCents,
		Notes:             notes,
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.ShiftsClosed.Inc()
	}
	s.logAudit(ctx, "shift.close", "shift", closed.ID,
		fmt.Sprintf("counted %d expected %d diff %d", closed.CountedCashCents, closed.ExpectedCashCents, closed.DifferenceCents))
	s.log.Info("shift closed",
		"shift", closed.ID, "expected_cents", closed.ExpectedCashCents,
		"counted_cents", closed.CountedCashCents, "difference_cents", closed.DifferenceCents)
	return closed, nil
}

// RecordBankTransfer moves cash from the drawer to a bank account. It counts
// as a cash expense in drawer reconciliation and fails when the drawer does
// not hold enough cash.
func (s *Service) RecordBankTransfer(ctx context.Context, amountCents int64, bankAccount string, reference string) (*domain.BankTransfer, error) {
	if amountCents <= 0 {
		return nil, ledger.ErrInvalidInput
	}
	shift, err := s.repo.GetOpenShift(ctx)
	if err != nil {
		return nil, err
	}
	transfer, err := s.repo.RecordBankTransfer(ctx, domain.BankTransfer{
		ShiftID:     shift.ID,
		AmountCents: amountCents,
		BankAccount: bankAccount,
		Reference:   reference,
		RecordedBy:  actorName(ctx),
	})
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "shift.bank_transfer", "shift", shift.ID,
		fmt.Sprintf("%d cents to %s (%s)", amountCents, bankAccount, reference))
	return transfer, nil
}

// AdjustDrawer corrects the opening float of the open shift, for example
// after a miscount discovered mid-shift. Admin and manager only.
func (s *Service) AdjustDrawer(ctx context.Context, deltaCents int64, note string) (*domain.CashShift, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || (actor.Role != domain.RoleAdmin && actor.Role != domain.RoleManager) {
		return nil, ErrForbidden
	}
	if deltaCents == 0 {
		return nil, ledger.ErrInvalidInput
	}
	shift, err := s.repo.GetOpenShift(ctx)
	if err != nil {
		return nil, err
	}
	adjusted, err := s.repo.AdjustShiftCash(ctx, shift.ID, deltaCents, note, actor.Username)
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "shift.adjust", "shift", shift.ID, fmt.Sprintf("%+d cents: %s", deltaCents, note))
	return adjusted, nil
}

func (s *Service) ListShifts(ctx context.Context, limit int) ([]domain.CashShift, error) {
	return s.repo.ListShifts(ctx, limit)
}
