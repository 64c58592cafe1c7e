package service

import (
	"context"
	"errors"
	"testing"

	"aynpos/backend/internal/cache"
	"aynpos/backend/internal/domain"
	"aynpos/backend/internal/ledger"
	"aynpos/backend/internal/ledger/memory"
)

func newTestService() *Service {
	return New(memory.NewSeeded(), cache.NoopReportCache{}, nil, nil, 10)
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{
		ID:       "user-admin",
		Username: "admin",
		Role:     domain.RoleAdmin,
	})
}

func cashierCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{
		ID:       "user-cashier",
		Username: "cashier",
		Role:     domain.RoleCashier,
	})
}

func openTestShift(t *testing.T, svc *Service, openingCents int64) *domain.CashShift {
	t.Helper()
	shift, err := svc.OpenShift(adminCtx(), openingCents)
	if err != nil {
		t.Fatalf("open shift failed: %v", err)
	}
	return shift
}

func TestCompleteSaleRequiresOpenShift(t *testing.T) {
	svc := newTestService()

	_, err := svc.CompleteSale(cashierCtx(), domain.CheckoutRequest{
		PaymentMethod:     domain.PaymentCash,
		CashReceivedCents: 1000,
		TaxExempt:         true,
		Items:             []domain.CartItem{{ProductID: "prod-water", Qty: 1}},
	})
	if !errors.Is(err, ledger.ErrNoOpenShift) {
		t.Fatalf("expected ErrNoOpenShift, got %v", err)
	}
}

func TestCompleteSaleCashTotalsAndChange(t *testing.T) {
	svc := newTestService()
	openTestShift(t, svc, 10000)

	sale, err := svc.CompleteSale(cashierCtx(), domain.CheckoutRequest{
		PaymentMethod:     domain.PaymentCash,
		CashReceivedCents: 500,
		TaxExempt:         true,
		Items:             []domain.CartItem{{ProductID: "prod-water", Qty: 2}},
	})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	if sale.SubtotalCents != 300 || sale.TotalCents != 300 {
		t.Fatalf("expected subtotal and total 300, got %d and %d", sale.SubtotalCents, sale.TotalCents)
	}
	if sale.ChangeCents != 200 {
		t.Fatalf("expected 200 cents change, got %d", sale.ChangeCents)
	}
	if sale.PaymentStatus != domain.PaymentStatusPaid {
		t.Fatalf("expected paid status, got %s", sale.PaymentStatus)
	}
}

func TestCompleteSaleAppliesDefaultTax(t *testing.T) {
	svc := newTestService()
	openTestShift(t, svc, 0)

	sale, err := svc.CompleteSale(cashierCtx(), domain.CheckoutRequest{
		PaymentMethod:     domain.PaymentCash,
		CashReceivedCents: 5000,
		Items:             []domain.CartItem{{ProductID: "prod-cheesecake", Qty: 2}},
	})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	if sale.TaxRatePercent != 10 {
		t.Fatalf("expected default 10%% tax rate, got %v", sale.TaxRatePercent)
	}
	if sale.TaxCents != 130 {
		t.Fatalf("expected 130 cents tax on a 1300 subtotal, got %d", sale.TaxCents)
	}
	if sale.TotalCents != 1430 {
		t.Fatalf("expected 1430 total, got %d", sale.TotalCents)
	}
}

func TestCompleteSaleDiscountBeforeTax(t *testing.T) {
	svc := newTestService()
	openTestShift(t, svc, 0)

	sale, err := svc.CompleteSale(cashierCtx(), domain.CheckoutRequest{
		PaymentMethod:   domain.PaymentCard,
		DiscountPercent: 50,
		TaxRatePercent:  10,
		Items:           []domain.CartItem{{ProductID: "prod-cheesecake", Qty: 2}},
	})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	if sale.DiscountCents != 650 {
		t.Fatalf("expected 650 cents discount, got %d", sale.DiscountCents)
	}
	if sale.TaxCents != 65 {
		t.Fatalf("expected tax on the discounted base, got %d", sale.TaxCents)
	}
	if sale.TotalCents != 715 {
		t.Fatalf("expected 715 total, got %d", sale.TotalCents)
	}
}

func TestCompleteSaleIdempotency(t *testing.T) {
	svc := newTestService()
	openTestShift(t, svc, 0)

	req := domain.CheckoutRequest{
		IdempotencyKey:    "idem-repeat",
		PaymentMethod:     domain.PaymentCash,
		CashReceivedCents: 1000,
		TaxExempt:         true,
		Items:             []domain.CartItem{{ProductID: "prod-water", Qty: 1}},
	}
	first, err := svc.CompleteSale(cashierCtx(), req)
	if err != nil {
		t.Fatalf("first checkout failed: %v", err)
	}
	second, err := svc.CompleteSale(cashierCtx(), req)
	if err != nil {
		t.Fatalf("replayed checkout failed: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected the original sale back, got %s and %s", first.ID, second.ID)
	}

	product, err := svc.GetProduct(cashierCtx(), "prod-water")
	if err != nil {
		t.Fatalf("get product failed: %v", err)
	}
	if product.StockQty != 95 {
		t.Fatalf("replay must not deduct stock twice, got qty %v", product.StockQty)
	}
}

func TestCompleteSaleRecipeDeductsIngredients(t *testing.T) {
	svc := newTestService()
	openTestShift(t, svc, 0)
	ctx := cashierCtx()

	_, err := svc.CompleteSale(ctx, domain.CheckoutRequest{
		PaymentMethod:     domain.PaymentCash,
		CashReceivedCents: 5000,
		TaxExempt:         true,
		Items:             []domain.CartItem{{ProductID: "prod-latte", Qty: 3}},
	})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	milk, err := svc.GetProduct(ctx, "raw-milk")
	if err != nil {
		t.Fatalf("get milk failed: %v", err)
	}
	if milk.StockQty != 39.4 {
		t.Fatalf("expected milk at 39.4 after 3 lattes, got %v", milk.StockQty)
	}
	beans, err := svc.GetProduct(ctx, "raw-beans")
	if err != nil {
		t.Fatalf("get beans failed: %v", err)
	}
	if beans.StockQty != 11.94 {
		t.Fatalf("expected beans at 11.94 after 3 lattes, got %v", beans.StockQty)
	}

	history, err := svc.ListStockHistory(ctx, "raw-milk", 10)
	if err != nil {
		t.Fatalf("stock history failed: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected one milk deduction row, got %d", len(history))
	}
	if history[0].ChangeType != domain.StockChangeSale {
		t.Fatalf("expected a sale-typed deduction, got %s", history[0].ChangeType)
	}
}

func TestCompleteSaleRejectsRawMaterialInCart(t *testing.T) {
	svc := newTestService()
	openTestShift(t, svc, 0)

	_, err := svc.CompleteSale(cashierCtx(), domain.CheckoutRequest{
		PaymentMethod:     domain.PaymentCash,
		CashReceivedCents: 100000,
		TaxExempt:         true,
		Items:             []domain.CartItem{{ProductID: "raw-milk", Qty: 1}},
	})
	if !errors.Is(err, ledger.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for raw material in cart, got %v", err)
	}
}

func TestCompleteSaleServiceProductSkipsStock(t *testing.T) {
	svc := newTestService()
	openTestShift(t, svc, 0)
	ctx := cashierCtx()

	_, err := svc.CompleteSale(ctx, domain.CheckoutRequest{
		PaymentMethod:     domain.PaymentCash,
		CashReceivedCents: 5000,
		TaxExempt:         true,
		Items:             []domain.CartItem{{ProductID: "prod-shisha", Qty: 2}},
	})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	history, err := svc.ListStockHistory(ctx, "prod-shisha", 10)
	if err != nil {
		t.Fatalf("stock history failed: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("service products must not produce stock movement, got %d rows", len(history))
	}
}

func TestCreditSaleRecordsDownPayment(t *testing.T) {
	svc := newTestService()
	openTestShift(t, svc, 0)
	ctx := cashierCtx()

	sale, err := svc.CompleteSale(ctx, domain.CheckoutRequest{
		PaymentMethod:    domain.PaymentCredit,
		TaxExempt:        true,
		DownPaymentCents: 200,
		CustomerPhone:    "555-0101",
		CustomerName:     "Amal",
		Items:            []domain.CartItem{{ProductID: "prod-cheesecake", Qty: 1}},
	})
	if err != nil {
		t.Fatalf("credit checkout failed: %v", err)
	}
	if sale.PaymentStatus != domain.PaymentStatusPartial {
		t.Fatalf("expected partial status, got %s", sale.PaymentStatus)
	}
	if sale.RemainingBalanceCents != 450 {
		t.Fatalf("expected 450 cents remaining after down payment, got %d", sale.RemainingBalanceCents)
	}

	payments, err := svc.ListPartialPayments(ctx, sale.ID)
	if err != nil {
		t.Fatalf("list payments failed: %v", err)
	}
	if len(payments) != 1 || payments[0].AmountCents != 200 {
		t.Fatalf("expected one 200-cent down payment row, got %+v", payments)
	}
}

func TestCreditSaleRequiresCustomerPhone(t *testing.T) {
	svc := newTestService()
	openTestShift(t, svc, 0)

	_, err := svc.CompleteSale(cashierCtx(), domain.CheckoutRequest{
		PaymentMethod: domain.PaymentCredit,
		TaxExempt:     true,
		Items:         []domain.CartItem{{ProductID: "prod-water", Qty: 1}},
	})
	if !errors.Is(err, ledger.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput without customer phone, got %v", err)
	}
}

func TestCompleteSaleRejectsInsufficientCash(t *testing.T) {
	svc := newTestService()
	openTestShift(t, svc, 0)

	_, err := svc.CompleteSale(cashierCtx(), domain.CheckoutRequest{
		PaymentMethod:     domain.PaymentCash,
		CashReceivedCents: 100,
		TaxExempt:         true,
		Items:             []domain.CartItem{{ProductID: "prod-water", Qty: 2}},
	})
	if !errors.Is(err, ledger.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput when tendered cash is short, got %v", err)
	}
}

func TestCompleteSaleMergesRepeatedCartItems(t *testing.T) {
	svc := newTestService()
	openTestShift(t, svc, 0)
	ctx := cashierCtx()

	sale, err := svc.CompleteSale(ctx, domain.CheckoutRequest{
		PaymentMethod:     domain.PaymentCash,
		CashReceivedCents: 1000,
		TaxExempt:         true,
		Items: []domain.CartItem{
			{ProductID: "prod-water", Qty: 1},
			{ProductID: "prod-water", Qty: 2},
		},
	})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	if len(sale.Lines) != 1 {
		t.Fatalf("expected one line per product, got %d", len(sale.Lines))
	}
	if sale.Lines[0].Qty != 3 || sale.Lines[0].OriginalQty != 3 {
		t.Fatalf("expected merged quantity 3, got %v", sale.Lines[0].Qty)
	}
	if sale.SubtotalCents != 450 {
		t.Fatalf("expected subtotal 450, got %d", sale.SubtotalCents)
	}

	product, err := svc.GetProduct(ctx, "prod-water")
	if err != nil {
		t.Fatalf("get product failed: %v", err)
	}
	if product.StockQty != 93 {
		t.Fatalf("expected stock deducted once for 3 units, got %v", product.StockQty)
	}
}

func TestCompleteSaleEmptyRecipeFallsBackToOwnStock(t *testing.T) {
	svc := newTestService()
	openTestShift(t, svc, 0)
	ctx := adminCtx()

	// The flag can go stale if recipe rows are removed out of band.
	bottled, err := svc.CreateProduct(ctx, domain.Product{
		Name:       "Bottled Juice",
		Type:       domain.ProductTypeItem,
		PriceCents: 400,
		StockQty:   5,
		HasRecipe:  true,
	})
	if err != nil {
		t.Fatalf("create product failed: %v", err)
	}

	if _, err := svc.CompleteSale(ctx, domain.CheckoutRequest{
		PaymentMethod:     domain.PaymentCash,
		CashReceivedCents: 1000,
		TaxExempt:         true,
		Items:             []domain.CartItem{{ProductID: bottled.ID, Qty: 2}},
	}); err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	product, err := svc.GetProduct(ctx, bottled.ID)
	if err != nil {
		t.Fatalf("get product failed: %v", err)
	}
	if product.StockQty != 3 {
		t.Fatalf("expected own stock deducted to 3, got %v", product.StockQty)
	}
}
