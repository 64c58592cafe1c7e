package service

import (
	"errors"
	"testing"

	"aynpos/backend/internal/domain"
	"aynpos/backend/internal/ledger"
)

func newCreditSale(t *testing.T, svc *Service) *domain.Sale {
	t.Helper()
	sale, err := svc.CompleteSale(cashierCtx(), domain.CheckoutRequest{
		PaymentMethod: domain.PaymentCredit,
		TaxExempt:     true,
		CustomerPhone: "555-0202",
		CustomerName:  "Rania",
		Items:         []domain.CartItem{{ProductID: "prod-cheesecake", Qty: 2}},
	})
	if err != nil {
		t.Fatalf("credit checkout failed: %v", err)
	}
	return sale
}

func TestInstallmentsFlipSaleToPaid(t *testing.T) {
	svc := newTestService()
	openTestShift(t, svc, 0)
	ctx := cashierCtx()
	sale := newCreditSale(t, svc)

	first, err := svc.RecordPartialPayment(ctx, sale.ID, 800, domain.PaymentCash)
	if err != nil {
		t.Fatalf("first installment failed: %v", err)
	}
	if first.RemainingAfterCents != 500 {
		t.Fatalf("expected 500 cents remaining, got %d", first.RemainingAfterCents)
	}

	second, err := svc.RecordPartialPayment(ctx, sale.ID, 500, domain.PaymentCard)
	if err != nil {
		t.Fatalf("second installment failed: %v", err)
	}
	if second.RemainingAfterCents != 0 {
		t.Fatalf("expected 0 remaining, got %d", second.RemainingAfterCents)
	}

	settled, err := svc.GetSale(ctx, sale.ID)
	if err != nil {
		t.Fatalf("get sale failed: %v", err)
	}
	if settled.PaymentStatus != domain.PaymentStatusPaid {
		t.Fatalf("expected paid status once balance hits zero, got %s", settled.PaymentStatus)
	}

	outstanding, err := svc.ListOutstandingSales(ctx, 10)
	if err != nil {
		t.Fatalf("list outstanding failed: %v", err)
	}
	for _, s := range outstanding {
		if s.ID == sale.ID {
			t.Fatalf("settled sale must leave the outstanding list")
		}
	}
}

func TestInstallmentCannotExceedBalance(t *testing.T) {
	svc := newTestService()
	openTestShift(t, svc, 0)
	sale := newCreditSale(t, svc)

	_, err := svc.RecordPartialPayment(cashierCtx(), sale.ID, sale.TotalCents+1, domain.PaymentCash)
	if !errors.Is(err, ledger.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for overpayment, got %v", err)
	}
}

func TestInstallmentRejectsCreditMethod(t *testing.T) {
	svc := newTestService()
	openTestShift(t, svc, 0)
	sale := newCreditSale(t, svc)

	_, err := svc.RecordPartialPayment(cashierCtx(), sale.ID, 100, domain.PaymentCredit)
	if !errors.Is(err, ledger.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput paying credit with credit, got %v", err)
	}
}

func TestInstallmentOnPaidSaleConflicts(t *testing.T) {
	svc := newTestService()
	openTestShift(t, svc, 0)
	ctx := cashierCtx()

	sale, err := svc.CompleteSale(ctx, domain.CheckoutRequest{
		PaymentMethod:     domain.PaymentCash,
		CashReceivedCents: 1000,
		TaxExempt:         true,
		Items:             []domain.CartItem{{ProductID: "prod-water", Qty: 1}},
	})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	_, err = svc.RecordPartialPayment(ctx, sale.ID, 100, domain.PaymentCash)
	if err == nil {
		t.Fatalf("expected installment on a paid sale to fail")
	}
}
