package service

import (
	"context"
	"fmt"

	"aynpos/backend/internal/domain"
	"aynpos/backend/internal/ledger"
)

// RecordPartialPayment applies an installment against a credit sale. The
// ledger keeps every installment as its own append-only row; the sale's
// remaining balance reaches zero exactly when the installments sum to the
// sale total, at which point the sale flips to paid.
func (s *Service) RecordPartialPayment(ctx context.Context, saleID string, amountCents int64, method string) (*domain.PartialPayment, error) {
	if saleID == "" || amountCents <= 0 {
		return nil, ledger.ErrInvalidInput
	}
	if !domain.ValidPaymentMethod(method) || method == domain.PaymentCredit {
		return nil, ledger.ErrInvalidInput
	}

	payment, err := s.repo.RecordPartialPayment(ctx, domain.PartialPayment{
		SaleID:        saleID,
		AmountCents:   amountCents,
		PaymentMethod: method,
		ReceivedBy:    actorName(ctx),
	})
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "payment.installment", "sale", saleID,
		fmt.Sprintf("%d cents via %s, %d remaining", amountCents, method, payment.RemainingAfterCents))
	s.log.Info("installment recorded",
		"sale", saleID, "amount_cents", amountCents, "remaining_cents", payment.RemainingAfterCents)
	return payment, nil
}

func (s *Service) ListOutstandingSales(ctx context.Context, limit int) ([]domain.Sale, error) {
	return s.repo.ListOutstandingSales(ctx, limit)
}

func (s *Service) ListPartialPayments(ctx context.Context, saleID string) ([]domain.PartialPayment, error) {
	if saleID == "" {
		return nil, ledger.ErrInvalidInput
	}
	return s.repo.ListPartialPayments(ctx, saleID)
}
