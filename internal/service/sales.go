package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"aynpos/backend/internal/domain"
	"aynpos/backend/internal/ledger"
	"aynpos/backend/internal/xid"
)

func roundCents(v float64) int64 {
	return int64(math.Round(v))
}

func receiptNumber(now time.Time) string {
	return "RCP-" + now.UTC().Format("20060102-150405") + "-" + xid.New("n")[len("n-"):]
}

// CompleteSale validates the cart, snapshots prices, computes totals and
// hands the ledger one atomic write covering the sale row, its lines and
// every stock deduction. Requests carrying an idempotency key that was
// already committed return the original sale unchanged.
func (s *Service) CompleteSale(ctx context.Context, req domain.CheckoutRequest) (*domain.Sale, error) {
	if len(req.Items) == 0 || !domain.ValidPaymentMethod(req.PaymentMethod) {
		return nil, ledger.ErrInvalidInput
	}
	if req.DiscountPercent < 0 || req.DiscountPercent > 100 {
		return nil, ledger.ErrInvalidInput
	}
	if req.TaxRatePercent < 0 || req.TaxRatePercent > 100 {
		return nil, ledger.ErrInvalidInput
	}
	// Merge repeated cart entries into one line per product. Refund
	// accounting tracks remaining quantity per product, so a sale must
	// never carry two lines for the same one.
	cart := make([]domain.CartItem, 0, len(req.Items))
	cartIndex := make(map[string]int, len(req.Items))
	for _, item := range req.Items {
		if item.ProductID == "" || item.Qty <= 0 {
			return nil, ledger.ErrInvalidInput
		}
		if i, ok := cartIndex[item.ProductID]; ok {
			cart[i].Qty += item.Qty
			continue
		}
		cartIndex[item.ProductID] = len(cart)
		cart = append(cart, item)
	}

	if req.IdempotencyKey != "" {
		existing, err := s.repo.FindSaleByIdempotency(ctx, req.IdempotencyKey)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, ledger.ErrNotFound) {
			return nil, err
		}
	}

	shift, err := s.repo.GetOpenShift(ctx)
	if err != nil {
		return nil, err
	}

	// Snapshot prices and plan stock movement before touching the ledger.
	lines := make([]domain.SaleLine, 0, len(cart))
	deductions := make([]domain.StockHistoryEntry, 0, len(cart))
	cashier := actorName(ctx)
	var subtotal int64

	for _, item := range cart {
		product, err := s.repo.GetProductByID(ctx, item.ProductID)
		if err != nil {
			return nil, err
		}
		if !product.Active || product.Type == domain.ProductTypeRawMaterial {
			return nil, ledger.ErrInvalidInput
		}

		lines = append(lines, domain.SaleLine{
			ID:             xid.New("line"),
			ProductID:      product.ID,
			Name:           product.Name,
			Category:       product.Category,
			UnitPriceCents: product.PriceCents,
			Qty:            item.Qty,
			OriginalQty:    item.Qty,
		})
		subtotal += roundCents(float64(product.PriceCents) * item.Qty)

		var recipe []domain.RecipeLine
		if product.HasRecipe {
			recipe, err = s.repo.GetRecipe(ctx, product.ID)
			if err != nil {
				return nil, err
			}
		}
		// A recipe flag with no ingredient rows falls back to deducting the
		// product's own stock.
		switch {
		case len(recipe) > 0:
			for _, ingredient := range recipe {
				deductions = append(deductions, domain.StockHistoryEntry{
					ProductID:  ingredient.RawMaterialID,
					ChangeType: domain.StockChangeSale,
					QtyChange:  -ingredient.QtyPerUnit * item.Qty,
					Note:       product.Name,
					RecordedBy: cashier,
				})
			}
		case product.Type == domain.ProductTypeItem:
			deductions = append(deductions, domain.StockHistoryEntry{
				ProductID:  product.ID,
				ChangeType: domain.StockChangeSale,
				QtyChange:  -item.Qty,
				RecordedBy: cashier,
			})
		}
	}

	taxRate := req.TaxRatePercent
	if taxRate == 0 && !req.TaxExempt {
		taxRate = s.defaultTaxRate
	}
	if req.TaxExempt {
		taxRate = 0
	}
	discount := roundCents(float64(subtotal) * req.DiscountPercent / 100)
	taxBase := subtotal - discount
	tax := roundCents(float64(taxBase) * taxRate / 100)
	total := taxBase + tax

	now := time.Now().UTC()
	sale := domain.Sale{
		ID:              xid.New("sale"),
		ReceiptNumber:   receiptNumber(now),
		IdempotencyKey:  req.IdempotencyKey,
		ShiftID:         shift.ID,
		Cashier:         cashier,
		CustomerPhone:   req.CustomerPhone,
		CustomerName:    req.CustomerName,
		SubtotalCents:   subtotal,
		DiscountPercent: req.DiscountPercent,
		DiscountCents:   discount,
		TaxRatePercent:  taxRate,
		TaxCents:        tax,
		TotalCents:      total,
		PaymentMethod:   req.PaymentMethod,
		PaymentStatus:   domain.PaymentStatusPaid,
		Lines:           lines,
	}

	switch req.PaymentMethod {
	case domain.PaymentCash:
		if req.CashReceivedCents < total {
			return nil, ledger.ErrInvalidInput
		}
		sale.CashReceivedCents = req.CashReceivedCents
		sale.ChangeCents = req.CashReceivedCents - total
	case domain.PaymentCredit:
		if req.CustomerPhone == "" {
			return nil, ledger.ErrInvalidInput
		}
		if req.DownPaymentCents < 0 || req.DownPaymentCents > total {
			return nil, ledger.ErrInvalidInput
		}
		sale.PaymentStatus = domain.PaymentStatusPartial
		sale.RemainingBalanceCents = total
	}

	created, err := s.repo.CreateSale(ctx, sale, deductions, req.UnpaidOrderID)
	if err != nil {
		if s.metrics != nil {
			s.metrics.SaleErrors.Inc()
		}
		return nil, err
	}

	// A credit down payment is an append-only ledger entry like any later
	// installment, so drawer totals and the payment trail stay consistent.
	if req.PaymentMethod == domain.PaymentCredit && req.DownPaymentCents > 0 {
		if _, err := s.repo.RecordPartialPayment(ctx, domain.PartialPayment{
			SaleID:        created.ID,
			AmountCents:   req.DownPaymentCents,
			PaymentMethod: domain.PaymentCash,
			ReceivedBy:    cashier,
		}); err != nil {
			s.log.Error("down payment recording failed", "sale", created.ID, "err", err)
		} else {
			created.RemainingBalanceCents = total - req.DownPaymentCents
			if created.RemainingBalanceCents == 0 {
				created.PaymentStatus = domain.PaymentStatusPaid
			}
		}
	}

	if s.metrics != nil {
		s.metrics.SalesCompleted.WithLabelValues(created.PaymentMethod).Inc()
	}
	s.invalidateDailyReport(ctx, created.CreatedAt)
	s.logAudit(ctx, "sale.complete", "sale", created.ID,
		fmt.Sprintf("%s %d cents", created.PaymentMethod, created.TotalCents))
	s.log.Info("sale completed",
		"sale", created.ID, "receipt", created.ReceiptNumber,
		"total_cents", created.TotalCents, "method", created.PaymentMethod)
	return created, nil
}

func (s *Service) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	if id == "" {
		return nil, ledger.ErrInvalidInput
	}
	return s.repo.FindSaleByID(ctx, id)
}

func (s *Service) ListSales(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.Sale, error) {
	if to.IsZero() {
		to = time.Now().UTC().Add(time.Minute)
	}
	return s.repo.ListSales(ctx, from, to, limit)
}
