package service

import (
	"context"
	"fmt"
	"time"

	"aynpos/backend/internal/domain"
	"aynpos/backend/internal/ledger"
	"aynpos/backend/internal/xid"
)

// RefundSale reverses part or all of a completed sale. Tax on the refunded
// amount is prorated with the original sale's realized tax-to-subtotal
// ratio, never a freshly applied rate, so repeated partial refunds do not
// accumulate rounding drift. Only admins and managers may approve refunds.
func (s *Service) RefundSale(ctx context.Context, req domain.RefundRequest) (*domain.Refund, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || (actor.Role != domain.RoleAdmin && actor.Role != domain.RoleManager) {
		return nil, ErrForbidden
	}
	if req.SaleID == "" {
		return nil, ledger.ErrInvalidInput
	}

	sale, err := s.repo.FindSaleByID(ctx, req.SaleID)
	if err != nil {
		return nil, err
	}

	lineByProduct := make(map[string]domain.SaleLine, len(sale.Lines))
	for _, line := range sale.Lines {
		lineByProduct[line.ProductID] = line
	}

	// An empty item list means "refund everything that remains".
	items := req.Items
	if len(items) == 0 {
		for _, line := range sale.Lines {
			if remaining := line.OriginalQty - line.RefundedQty; remaining > 0 {
				items = append(items, domain.RefundItemRequest{ProductID: line.ProductID, Qty: remaining})
			}
		}
	}
	if len(items) == 0 {
		return nil, ledger.ErrConflict
	}

	// A request may repeat a product. Quantities are combined first so the
	// remaining-quantity ceiling applies to the sum, not to each entry.
	combined := make([]domain.RefundItemRequest, 0, len(items))
	itemIndex := make(map[string]int, len(items))
	for _, item := range items {
		if item.ProductID == "" || item.Qty <= 0 {
			return nil, ledger.ErrInvalidInput
		}
		if i, ok := itemIndex[item.ProductID]; ok {
			combined[i].Qty += item.Qty
			continue
		}
		itemIndex[item.ProductID] = len(combined)
		combined = append(combined, item)
	}
	items = combined

	fullRefund := true
	var refundSubtotal int64
	refundLines := make([]domain.RefundLine, 0, len(items))
	for _, item := range items {
		line, ok := lineByProduct[item.ProductID]
		if !ok {
			return nil, ledger.ErrNotFound
		}
		remaining := line.OriginalQty - line.RefundedQty
		if item.Qty > remaining {
			return nil, ledger.ErrConflict
		}
		if item.Qty < remaining {
			fullRefund = false
		}
		refundSubtotal += roundCents(float64(line.UnitPriceCents) * item.Qty)
		refundLines = append(refundLines, domain.RefundLine{
			ProductID:      line.ProductID,
			Name:           line.Name,
			UnitPriceCents: line.UnitPriceCents,
			Qty:            item.Qty,
		})
	}
	// Lines the request did not touch also make this a partial refund.
	if fullRefund {
		for _, line := range sale.Lines {
			if line.OriginalQty-line.RefundedQty <= 0 {
				continue
			}
			touched := false
			for _, item := range items {
				if item.ProductID == line.ProductID {
					touched = true
					break
				}
			}
			if !touched {
				fullRefund = false
				break
			}
		}
	}

	var refundTax int64
	if sale.SubtotalCents > 0 {
		refundTax = roundCents(float64(refundSubtotal) * float64(sale.TaxCents) / float64(sale.SubtotalCents))
	}

	refundType := domain.RefundTypePartial
	if fullRefund {
		refundType = domain.RefundTypeFull
	}

	shiftID := ""
	if shift, err := s.repo.GetOpenShift(ctx); err == nil {
		shiftID = shift.ID
	}

	refund := domain.Refund{
		ID:            xid.New("refund"),
		SaleID:        sale.ID,
		Type:          refundType,
		ShiftID:       shiftID,
		RefundedBy:    actor.Username,
		Reason:        req.Reason,
		SubtotalCents: refundSubtotal,
		TaxCents:      refundTax,
		TotalCents:    refundSubtotal + refundTax,
		PaymentMethod: sale.PaymentMethod,
		Lines:         refundLines,
	}

	applied, err := s.repo.ApplyRefund(ctx, refund)
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RefundsApplied.Inc()
	}
	s.invalidateDailyReport(ctx, applied.CreatedAt)
	s.logAudit(ctx, "refund.apply", "sale", sale.ID,
		fmt.Sprintf("%s %d cents (%s)", applied.Type, applied.TotalCents, req.Reason))
	s.log.Info("refund applied",
		"refund", applied.ID, "sale", sale.ID,
		"total_cents", applied.TotalCents, "type", applied.Type)
	return applied, nil
}

func (s *Service) ListRefunds(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.Refund, error) {
	if to.IsZero() {
		to = time.Now().UTC().Add(time.Minute)
	}
	return s.repo.ListRefunds(ctx, from, to, limit)
}

// RemainingRefundable reports, per product, how much of a sale can still be
// refunded. Used by the register UI before submitting a refund.
func (s *Service) RemainingRefundable(ctx context.Context, saleID string) (map[string]float64, error) {
	sale, err := s.repo.FindSaleByID(ctx, saleID)
	if err != nil {
		return nil, err
	}
	remaining := make(map[string]float64, len(sale.Lines))
	for _, line := range sale.Lines {
		remaining[line.ProductID] = line.OriginalQty - line.RefundedQty
	}
	return remaining, nil
}
