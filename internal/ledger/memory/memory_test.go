package memory

import (
	"context"
	"errors"
	"testing"

	"aynpos/backend/internal/domain"
	"aynpos/backend/internal/ledger"
)

func TestCreateSaleIdempotencyReturnsExisting(t *testing.T) {
	store := NewSeeded()
	ctx := context.Background()

	shift, err := store.OpenShift(ctx, domain.CashShift{OpenedBy: "admin"})
	if err != nil {
		t.Fatalf("open shift failed: %v", err)
	}

	sale := domain.Sale{
		ReceiptNumber:  "RCP-TEST-1",
		IdempotencyKey: "same-key",
		ShiftID:        shift.ID,
		PaymentMethod:  domain.PaymentCash,
		PaymentStatus:  domain.PaymentStatusPaid,
		TotalCents:     150,
		Lines: []domain.SaleLine{
			{ProductID: "prod-water", Name: "Mineral Water", UnitPriceCents: 150, Qty: 1, OriginalQty: 1},
		},
	}
	deductions := []domain.StockHistoryEntry{
		{ProductID: "prod-water", ChangeType: domain.StockChangeSale, QtyChange: -1, RecordedBy: "admin"},
	}

	first, err := store.CreateSale(ctx, sale, deductions, "")
	if err != nil {
		t.Fatalf("first create failed: %v", err)
	}

	replay := sale
	replay.ReceiptNumber = "RCP-TEST-2"
	second, err := store.CreateSale(ctx, replay, deductions, "")
	if err != nil {
		t.Fatalf("replayed create failed: %v", err)
	}
	if second.ID != first.ID || second.ReceiptNumber != first.ReceiptNumber {
		t.Fatalf("replay must return the committed sale, got %s vs %s", second.ID, first.ID)
	}

	product, err := store.GetProductByID(ctx, "prod-water")
	if err != nil {
		t.Fatalf("get product failed: %v", err)
	}
	if product.StockQty != 95 {
		t.Fatalf("replay must not deduct stock twice, got %v", product.StockQty)
	}
}

func TestShiftCashTotalsIncludeInstallments(t *testing.T) {
	store := NewSeeded()
	ctx := context.Background()

	shift, err := store.OpenShift(ctx, domain.CashShift{OpenedBy: "admin", OpeningCashCents: 1000})
	if err != nil {
		t.Fatalf("open shift failed: %v", err)
	}

	credit, err := store.CreateSale(ctx, domain.Sale{
		ReceiptNumber:         "RCP-CREDIT-1",
		ShiftID:               shift.ID,
		PaymentMethod:         domain.PaymentCredit,
		PaymentStatus:         domain.PaymentStatusPartial,
		TotalCents:            1000,
		RemainingBalanceCents: 1000,
		Lines: []domain.SaleLine{
			{ProductID: "prod-shisha", Name: "Shisha Session", UnitPriceCents: 1000, Qty: 1, OriginalQty: 1},
		},
	}, nil, "")
	if err != nil {
		t.Fatalf("credit sale failed: %v", err)
	}

	if _, err := store.RecordPartialPayment(ctx, domain.PartialPayment{
		SaleID:        credit.ID,
		AmountCents:   400,
		PaymentMethod: domain.PaymentCash,
		ReceivedBy:    "cashier",
	}); err != nil {
		t.Fatalf("installment failed: %v", err)
	}
	// Card installments never enter the drawer.
	if _, err := store.RecordPartialPayment(ctx, domain.PartialPayment{
		SaleID:        credit.ID,
		AmountCents:   300,
		PaymentMethod: domain.PaymentCard,
		ReceivedBy:    "cashier",
	}); err != nil {
		t.Fatalf("card installment failed: %v", err)
	}

	totals, err := store.GetShiftCashTotals(ctx, shift.ID)
	if err != nil {
		t.Fatalf("totals failed: %v", err)
	}
	if totals.CashSalesCents != 400 {
		t.Fatalf("expected only the cash installment in the drawer, got %d", totals.CashSalesCents)
	}
}

func TestCloseShiftTwiceConflicts(t *testing.T) {
	store := NewSeeded()
	ctx := context.Background()

	shift, err := store.OpenShift(ctx, domain.CashShift{OpenedBy: "admin"})
	if err != nil {
		t.Fatalf("open shift failed: %v", err)
	}
	if _, err := store.CloseShift(ctx, domain.CashShift{ID: shift.ID, ClosedBy: "admin"}); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	_, err = store.CloseShift(ctx, domain.CashShift{ID: shift.ID, ClosedBy: "admin"})
	if !errors.Is(err, ledger.ErrConflict) {
		t.Fatalf("expected ErrConflict on double close, got %v", err)
	}
}

func TestAdjustShiftCashAppendsNote(t *testing.T) {
	store := NewSeeded()
	ctx := context.Background()

	shift, err := store.OpenShift(ctx, domain.CashShift{OpenedBy: "admin", OpeningCashCents: 1000})
	if err != nil {
		t.Fatalf("open shift failed: %v", err)
	}

	adjusted, err := store.AdjustShiftCash(ctx, shift.ID, -200, "note shortfall", "admin")
	if err != nil {
		t.Fatalf("adjust failed: %v", err)
	}
	if adjusted.OpeningCashCents != 800 {
		t.Fatalf("expected opening float at 800, got %d", adjusted.OpeningCashCents)
	}
	if adjusted.Notes == "" {
		t.Fatalf("expected the adjustment note to be recorded")
	}
}

func TestSeedUsersArePresent(t *testing.T) {
	store := NewSeeded()
	ctx := context.Background()

	for _, username := range []string{"admin", "cashier"} {
		user, err := store.GetUserByUsername(ctx, username)
		if err != nil {
			t.Fatalf("expected seeded user %s, got %v", username, err)
		}
		if !user.Active || user.PasswordHash == "" {
			t.Fatalf("seeded user %s is not usable: %+v", username, user)
		}
	}
}

func TestApplyRefundAccumulatesRepeatedLines(t *testing.T) {
	store := NewSeeded()
	ctx := context.Background()

	sale, err := store.CreateSale(ctx, domain.Sale{
		ReceiptNumber: "RCP-DUP-1",
		PaymentMethod: domain.PaymentCash,
		PaymentStatus: domain.PaymentStatusPaid,
		TotalCents:    300,
		SubtotalCents: 300,
		Lines: []domain.SaleLine{
			{ProductID: "prod-water", Name: "Mineral Water", UnitPriceCents: 150, Qty: 2, OriginalQty: 2},
		},
	}, nil, "")
	if err != nil {
		t.Fatalf("create sale failed: %v", err)
	}

	_, err = store.ApplyRefund(ctx, domain.Refund{
		SaleID:        sale.ID,
		Type:          domain.RefundTypeFull,
		PaymentMethod: domain.PaymentCash,
		SubtotalCents: 600,
		TotalCents:    600,
		Lines: []domain.RefundLine{
			{ProductID: "prod-water", Name: "Mineral Water", UnitPriceCents: 150, Qty: 2},
			{ProductID: "prod-water", Name: "Mineral Water", UnitPriceCents: 150, Qty: 2},
		},
	})
	if !errors.Is(err, ledger.ErrConflict) {
		t.Fatalf("repeated lines past the remaining quantity must conflict, got %v", err)
	}

	stored, err := store.FindSaleByID(ctx, sale.ID)
	if err != nil {
		t.Fatalf("find sale failed: %v", err)
	}
	if stored.Lines[0].RefundedQty != 0 {
		t.Fatalf("a rejected refund must not touch the line, got %v", stored.Lines[0].RefundedQty)
	}
}

func TestCreateSaleConsumesHeldOrder(t *testing.T) {
	store := NewSeeded()
	ctx := context.Background()

	held, err := store.SaveUnpaidOrder(ctx, domain.UnpaidOrder{
		Label: "table 2",
		Items: []domain.CartItem{{ProductID: "prod-water", Qty: 1}},
	})
	if err != nil {
		t.Fatalf("hold failed: %v", err)
	}

	if _, err := store.CreateSale(ctx, domain.Sale{
		ReceiptNumber: "RCP-HELD-1",
		PaymentMethod: domain.PaymentCash,
		PaymentStatus: domain.PaymentStatusPaid,
		TotalCents:    150,
		Lines: []domain.SaleLine{
			{ProductID: "prod-water", Name: "Mineral Water", UnitPriceCents: 150, Qty: 1, OriginalQty: 1},
		},
	}, nil, held.ID); err != nil {
		t.Fatalf("create sale failed: %v", err)
	}

	orders, err := store.ListUnpaidOrders(ctx)
	if err != nil {
		t.Fatalf("list held orders failed: %v", err)
	}
	for _, o := range orders {
		if o.ID == held.ID {
			t.Fatalf("held order must be consumed by the sale write")
		}
	}
}
