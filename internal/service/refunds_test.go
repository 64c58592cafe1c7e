package service

import (
	"errors"
	"testing"

	"aynpos/backend/internal/domain"
	"aynpos/backend/internal/ledger"
)

func TestRefundRequiresManagerOrAdmin(t *testing.T) {
	svc := newTestService()
	openTestShift(t, svc, 0)

	sale, err := svc.CompleteSale(cashierCtx(), domain.CheckoutRequest{
		PaymentMethod:     domain.PaymentCash,
		CashReceivedCents: 1000,
		TaxExempt:         true,
		Items:             []domain.CartItem{{ProductID: "prod-water", Qty: 1}},
	})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	_, err = svc.RefundSale(cashierCtx(), domain.RefundRequest{SaleID: sale.ID, Reason: "damaged"})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for cashier refund, got %v", err)
	}
}

func TestFullRefundRestoresStock(t *testing.T) {
	svc := newTestService()
	openTestShift(t, svc, 0)
	ctx := adminCtx()

	sale, err := svc.CompleteSale(ctx, domain.CheckoutRequest{
		PaymentMethod:     domain.PaymentCash,
		CashReceivedCents: 1000,
		TaxExempt:         true,
		Items:             []domain.CartItem{{ProductID: "prod-water", Qty: 2}},
	})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	refund, err := svc.RefundSale(ctx, domain.RefundRequest{SaleID: sale.ID, Reason: "customer return"})
	if err != nil {
		t.Fatalf("refund failed: %v", err)
	}
	if refund.Type != domain.RefundTypeFull {
		t.Fatalf("expected full refund, got %s", refund.Type)
	}
	if refund.TotalCents != sale.TotalCents {
		t.Fatalf("full refund total %d should match sale total %d", refund.TotalCents, sale.TotalCents)
	}

	product, err := svc.GetProduct(ctx, "prod-water")
	if err != nil {
		t.Fatalf("get product failed: %v", err)
	}
	if product.StockQty != 96 {
		t.Fatalf("expected stock restored to 96, got %v", product.StockQty)
	}

	refunded, err := svc.GetSale(ctx, sale.ID)
	if err != nil {
		t.Fatalf("get sale failed: %v", err)
	}
	if refunded.RefundID == "" || refunded.RefundedAt == nil {
		t.Fatalf("expected sale to be marked refunded, got %+v", refunded)
	}
}

func TestPartialRefundProratesTax(t *testing.T) {
	svc := newTestService()
	openTestShift(t, svc, 0)
	ctx := adminCtx()

	sale, err := svc.CompleteSale(ctx, domain.CheckoutRequest{
		PaymentMethod:  domain.PaymentCard,
		TaxRatePercent: 10,
		Items:          []domain.CartItem{{ProductID: "prod-cheesecake", Qty: 2}},
	})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	if sale.SubtotalCents != 1300 || sale.TaxCents != 130 {
		t.Fatalf("unexpected sale totals: %+v", sale)
	}

	refund, err := svc.RefundSale(ctx, domain.RefundRequest{
		SaleID: sale.ID,
		Reason: "one slice returned",
		Items:  []domain.RefundItemRequest{{ProductID: "prod-cheesecake", Qty: 1}},
	})
	if err != nil {
		t.Fatalf("refund failed: %v", err)
	}
	if refund.Type != domain.RefundTypePartial {
		t.Fatalf("expected partial refund, got %s", refund.Type)
	}
	if refund.SubtotalCents != 650 {
		t.Fatalf("expected 650 cents refund subtotal, got %d", refund.SubtotalCents)
	}
	if refund.TaxCents != 65 {
		t.Fatalf("expected prorated 65 cents tax, got %d", refund.TaxCents)
	}
	if refund.TotalCents != 715 {
		t.Fatalf("expected 715 cents refund total, got %d", refund.TotalCents)
	}

	remaining, err := svc.RemainingRefundable(ctx, sale.ID)
	if err != nil {
		t.Fatalf("remaining refundable failed: %v", err)
	}
	if remaining["prod-cheesecake"] != 1 {
		t.Fatalf("expected 1 slice still refundable, got %v", remaining["prod-cheesecake"])
	}
}

func TestSecondPartialRefundCompletesTheSale(t *testing.T) {
	svc := newTestService()
	openTestShift(t, svc, 0)
	ctx := adminCtx()

	sale, err := svc.CompleteSale(ctx, domain.CheckoutRequest{
		PaymentMethod:  domain.PaymentCard,
		TaxRatePercent: 10,
		Items:          []domain.CartItem{{ProductID: "prod-cheesecake", Qty: 2}},
	})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	if _, err := svc.RefundSale(ctx, domain.RefundRequest{
		SaleID: sale.ID,
		Items:  []domain.RefundItemRequest{{ProductID: "prod-cheesecake", Qty: 1}},
	}); err != nil {
		t.Fatalf("first refund failed: %v", err)
	}

	second, err := svc.RefundSale(ctx, domain.RefundRequest{
		SaleID: sale.ID,
		Items:  []domain.RefundItemRequest{{ProductID: "prod-cheesecake", Qty: 1}},
	})
	if err != nil {
		t.Fatalf("second refund failed: %v", err)
	}
	if second.Type != domain.RefundTypeFull {
		t.Fatalf("refunding the last remaining unit is a full refund, got %s", second.Type)
	}

	// Both partial refunds together must return exactly the sale total.
	if 715+second.TotalCents != sale.TotalCents {
		t.Fatalf("refund totals drifted: 715 + %d != %d", second.TotalCents, sale.TotalCents)
	}
}

func TestRefundExhaustedQuantitiesConflict(t *testing.T) {
	svc := newTestService()
	openTestShift(t, svc, 0)
	ctx := adminCtx()

	sale, err := svc.CompleteSale(ctx, domain.CheckoutRequest{
		PaymentMethod:     domain.PaymentCash,
		CashReceivedCents: 1000,
		TaxExempt:         true,
		Items:             []domain.CartItem{{ProductID: "prod-water", Qty: 1}},
	})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	if _, err := svc.RefundSale(ctx, domain.RefundRequest{SaleID: sale.ID}); err != nil {
		t.Fatalf("refund failed: %v", err)
	}

	_, err = svc.RefundSale(ctx, domain.RefundRequest{SaleID: sale.ID})
	if !errors.Is(err, ledger.ErrConflict) {
		t.Fatalf("expected ErrConflict on re-refund, got %v", err)
	}
}

func TestRefundOverRemainingConflict(t *testing.T) {
	svc := newTestService()
	openTestShift(t, svc, 0)
	ctx := adminCtx()

	sale, err := svc.CompleteSale(ctx, domain.CheckoutRequest{
		PaymentMethod:     domain.PaymentCash,
		CashReceivedCents: 1000,
		TaxExempt:         true,
		Items:             []domain.CartItem{{ProductID: "prod-water", Qty: 2}},
	})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	_, err = svc.RefundSale(ctx, domain.RefundRequest{
		SaleID: sale.ID,
		Items:  []domain.RefundItemRequest{{ProductID: "prod-water", Qty: 3}},
	})
	if !errors.Is(err, ledger.ErrConflict) {
		t.Fatalf("expected ErrConflict for over-refund, got %v", err)
	}
}

func TestRefundServiceProductLeavesStockAlone(t *testing.T) {
	svc := newTestService()
	openTestShift(t, svc, 0)
	ctx := adminCtx()

	sale, err := svc.CompleteSale(ctx, domain.CheckoutRequest{
		PaymentMethod:     domain.PaymentCash,
		CashReceivedCents: 5000,
		TaxExempt:         true,
		Items:             []domain.CartItem{{ProductID: "prod-shisha", Qty: 1}},
	})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	if _, err := svc.RefundSale(ctx, domain.RefundRequest{SaleID: sale.ID}); err != nil {
		t.Fatalf("refund failed: %v", err)
	}

	history, err := svc.ListStockHistory(ctx, "prod-shisha", 10)
	if err != nil {
		t.Fatalf("stock history failed: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("service refund must not touch stock, got %d rows", len(history))
	}
}

func TestRefundCombinesRepeatedItems(t *testing.T) {
	svc := newTestService()
	openTestShift(t, svc, 0)
	ctx := adminCtx()

	sale, err := svc.CompleteSale(ctx, domain.CheckoutRequest{
		PaymentMethod:     domain.PaymentCash,
		CashReceivedCents: 1000,
		TaxExempt:         true,
		Items:             []domain.CartItem{{ProductID: "prod-water", Qty: 2}},
	})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	refund, err := svc.RefundSale(ctx, domain.RefundRequest{
		SaleID: sale.ID,
		Reason: "customer return",
		Items: []domain.RefundItemRequest{
			{ProductID: "prod-water", Qty: 1},
			{ProductID: "prod-water", Qty: 1},
		},
	})
	if err != nil {
		t.Fatalf("refund failed: %v", err)
	}
	if refund.Type != domain.RefundTypeFull {
		t.Fatalf("combined quantities cover the sale, expected full refund, got %s", refund.Type)
	}
	if len(refund.Lines) != 1 || refund.Lines[0].Qty != 2 {
		t.Fatalf("expected one combined refund line of qty 2, got %+v", refund.Lines)
	}
	if refund.SubtotalCents != 300 {
		t.Fatalf("expected 300 refunded, got %d", refund.SubtotalCents)
	}

	product, err := svc.GetProduct(ctx, "prod-water")
	if err != nil {
		t.Fatalf("get product failed: %v", err)
	}
	if product.StockQty != 96 {
		t.Fatalf("expected stock restored exactly once, got %v", product.StockQty)
	}
}

func TestRefundRepeatedItemsOverRemainingConflict(t *testing.T) {
	svc := newTestService()
	openTestShift(t, svc, 0)
	ctx := adminCtx()

	sale, err := svc.CompleteSale(ctx, domain.CheckoutRequest{
		PaymentMethod:     domain.PaymentCash,
		CashReceivedCents: 1000,
		TaxExempt:         true,
		Items:             []domain.CartItem{{ProductID: "prod-water", Qty: 2}},
	})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	_, err = svc.RefundSale(ctx, domain.RefundRequest{
		SaleID: sale.ID,
		Reason: "customer return",
		Items: []domain.RefundItemRequest{
			{ProductID: "prod-water", Qty: 2},
			{ProductID: "prod-water", Qty: 2},
		},
	})
	if !errors.Is(err, ledger.ErrConflict) {
		t.Fatalf("repeated items past the remaining quantity must conflict, got %v", err)
	}

	remaining, err := svc.RemainingRefundable(ctx, sale.ID)
	if err != nil {
		t.Fatalf("remaining lookup failed: %v", err)
	}
	if remaining["prod-water"] != 2 {
		t.Fatalf("a rejected refund must leave the sale untouched, got %v", remaining["prod-water"])
	}
}
