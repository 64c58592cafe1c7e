// Package memory is an in-memory ledger.Repository used for dev mode and
// tests. It mirrors the semantics of the postgres store, including the
// single-open-shift rule and clamp-at-zero stock deduction.
package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"aynpos/backend/internal/domain"
	"aynpos/backend/internal/ledger"
	"aynpos/backend/internal/xid"
)

type Store struct {
	mu              sync.RWMutex
	products        map[string]domain.Product
	recipesByProd   map[string][]domain.RecipeLine
	salesByID       map[string]*domain.Sale
	salesByIdem     map[string]*domain.Sale
	refundsByID     map[string]domain.Refund
	payments        map[string][]domain.PartialPayment
	stockHistory    []domain.StockHistoryEntry
	shiftsByID      map[string]domain.CashShift
	openShiftID     string
	transfers       []domain.BankTransfer
	customers       map[string]domain.Customer
	unpaidByID      map[string]domain.UnpaidOrder
	auditLogs       []domain.AuditLog
	usersByUsername map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory accounts for dev/demo mode.
// Credentials come from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD. If
// unset, hardcoded dev defaults are used with a warning. The in-memory store
// is never selected when DATABASE_URL is set.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"cashier", cashierPwd, domain.RoleCashier},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			ID:           xid.New("user"),
			Username:     u.username,
			PasswordHash: string(hash),
			Role:         u.role,
			Active:       true,
			CreatedAt:    now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	now := time.Now().UTC()
	products := []domain.Product{
		{ID: "prod-espresso", Name: "Espresso", Category: "coffee", Type: domain.ProductTypeItem, PriceCents: 300, CostCents: 80, StockQty: 200, HasRecipe: true, Active: true},
		{ID: "prod-latte", Name: "Latte", Category: "coffee", Type: domain.ProductTypeItem, PriceCents: 450, CostCents: 120, StockQty: 200, HasRecipe: true, Active: true},
		{ID: "prod-cheesecake", Name: "Cheesecake Slice", Category: "dessert", Type: domain.ProductTypeItem, PriceCents: 650, CostCents: 250, StockQty: 24, Active: true},
		{ID: "prod-water", Name: "Mineral Water", Category: "beverage", Type: domain.ProductTypeItem, PriceCents: 150, CostCents: 40, StockQty: 96, Active: true},
		{ID: "prod-shisha", Name: "Shisha Session", Category: "lounge", Type: domain.ProductTypeService, PriceCents: 1500, Active: true},
		{ID: "raw-milk", Name: "Milk (L)", Category: "raw", Type: domain.ProductTypeRawMaterial, CostCents: 120, StockQty: 40, Active: true},
		{ID: "raw-beans", Name: "Coffee Beans (kg)", Category: "raw", Type: domain.ProductTypeRawMaterial, CostCents: 2200, StockQty: 12, Active: true},
	}
	productMap := make(map[string]domain.Product, len(products))
	for _, p := range products {
		p.CreatedAt = now
		p.UpdatedAt = now
		productMap[p.ID] = p
	}

	recipes := map[string][]domain.RecipeLine{
		"prod-espresso": {
			{ID: xid.New("recipe"), ProductID: "prod-espresso", RawMaterialID: "raw-beans", QtyPerUnit: 0.018},
		},
		"prod-latte": {
			{ID: xid.New("recipe"), ProductID: "prod-latte", RawMaterialID: "raw-milk", QtyPerUnit: 0.2},
			{ID: xid.New("recipe"), ProductID: "prod-latte", RawMaterialID: "raw-beans", QtyPerUnit: 0.02},
		},
	}

	return &Store{
		products:        productMap,
		recipesByProd:   recipes,
		salesByID:       make(map[string]*domain.Sale),
		salesByIdem:     make(map[string]*domain.Sale),
		refundsByID:     make(map[string]domain.Refund),
		payments:        make(map[string][]domain.PartialPayment),
		stockHistory:    make([]domain.StockHistoryEntry, 0, 128),
		shiftsByID:      make(map[string]domain.CashShift),
		transfers:       make([]domain.BankTransfer, 0, 16),
		customers:       make(map[string]domain.Customer),
		unpaidByID:      make(map[string]domain.UnpaidOrder),
		auditLogs:       make([]domain.AuditLog, 0, 128),
		usersByUsername: seedUsers(),
	}
}

func (s *Store) ListProducts(_ context.Context, includeInactive bool) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if !p.Active && !includeInactive {
			continue
		}
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Category == b.Category {
			return strings.Compare(a.Name, b.Name)
		}
		return strings.Compare(a.Category, b.Category)
	})
	return products, nil
}

func (s *Store) GetProductByID(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	out := p
	return &out, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	if _, exists := s.products[product.ID]; exists {
		return nil, ledger.ErrConflict
	}
	now := time.Now().UTC()
	product.Active = true
	product.CreatedAt = now
	product.UpdatedAt = now
	s.products[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.products[product.ID]
	if !exists {
		return nil, ledger.ErrNotFound
	}
	product.CreatedAt = current.CreatedAt
	product.UpdatedAt = time.Now().UTC()
	s.products[product.ID] = product
	updated := product
	return &updated, nil
}

func (s *Store) DeactivateProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.products[id]
	if !exists {
		return ledger.ErrNotFound
	}
	p.Active = false
	p.UpdatedAt = time.Now().UTC()
	s.products[id] = p
	return nil
}

func (s *Store) SetRecipe(_ context.Context, productID string, lines []domain.RecipeLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, exists := s.products[productID]
	if !exists {
		return ledger.ErrNotFound
	}
	seen := map[string]bool{}
	for i := range lines {
		raw, ok := s.products[lines[i].RawMaterialID]
		if !ok {
			return ledger.ErrNotFound
		}
		if raw.Type != domain.ProductTypeRawMaterial {
			return ledger.ErrInvalidInput
		}
		if seen[lines[i].RawMaterialID] {
			return ledger.ErrConflict
		}
		seen[lines[i].RawMaterialID] = true
		lines[i].ProductID = productID
		if lines[i].ID == "" {
			lines[i].ID = xid.New("recipe")
		}
	}
	s.recipesByProd[productID] = slices.Clone(lines)
	product.HasRecipe = len(lines) > 0
	product.UpdatedAt = time.Now().UTC()
	s.products[productID] = product
	return nil
}

func (s *Store) GetRecipe(_ context.Context, productID string) ([]domain.RecipeLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, exists := s.products[productID]; !exists {
		return nil, ledger.ErrNotFound
	}
	return slices.Clone(s.recipesByProd[productID]), nil
}

// applyStockChange mutates product stock under the write lock and records a
// history row. Deductions clamp at zero; the recorded qty_change is the
// requested delta so shrinkage stays visible in the trail.
func (s *Store) applyStockChange(entry domain.StockHistoryEntry, now time.Time) (*domain.Product, error) {
	p, exists := s.products[entry.ProductID]
	if !exists {
		return nil, ledger.ErrNotFound
	}
	entry.QtyBefore = p.StockQty
	after := p.StockQty + entry.QtyChange
	if after < 0 {
		after = 0
	}
	entry.QtyAfter = after
	p.StockQty = after
	p.UpdatedAt = now
	s.products[entry.ProductID] = p

	if entry.ID == "" {
		entry.ID = xid.New("stk")
	}
	entry.CreatedAt = now
	s.stockHistory = append(s.stockHistory, entry)
	out := p
	return &out, nil
}

func (s *Store) AdjustStock(_ context.Context, entry domain.StockHistoryEntry) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ProductID == "" || entry.QtyChange == 0 {
		return nil, ledger.ErrInvalidInput
	}
	return s.applyStockChange(entry, time.Now().UTC())
}

func (s *Store) ListStockHistory(_ context.Context, productID string, limit int) ([]domain.StockHistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.StockHistoryEntry, 0, limit)
	for i := len(s.stockHistory) - 1; i >= 0; i-- {
		if productID != "" && s.stockHistory[i].ProductID != productID {
			continue
		}
		out = append(out, s.stockHistory[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// CreateSale writes the sale, its stock movements and the held-order
// cleanup as one mutation under the write lock.
func (s *Store) CreateSale(_ context.Context, sale domain.Sale, deductions []domain.StockHistoryEntry, unpaidOrderID string) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sale.IdempotencyKey != "" {
		if existing, ok := s.salesByIdem[sale.IdempotencyKey]; ok {
			out := *existing
			return &out, nil
		}
	}
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if _, exists := s.salesByID[sale.ID]; exists {
		return nil, ledger.ErrConflict
	}
	for _, d := range deductions {
		if _, ok := s.products[d.ProductID]; !ok {
			return nil, ledger.ErrNotFound
		}
	}

	now := time.Now().UTC()
	sale.CreatedAt = now
	for _, d := range deductions {
		d.ReferenceID = sale.ID
		if _, err := s.applyStockChange(d, now); err != nil {
			return nil, err
		}
	}

	if sale.CustomerPhone != "" {
		c, ok := s.customers[sale.CustomerPhone]
		if !ok {
			c = domain.Customer{Phone: sale.CustomerPhone, CreatedAt: now}
		}
		if sale.CustomerName != "" {
			c.Name = sale.CustomerName
		}
		c.TotalSpentCents += sale.TotalCents
		c.VisitCount++
		visited := now
		c.LastVisit = &visited
		s.customers[sale.CustomerPhone] = c
	}

	if unpaidOrderID != "" {
		delete(s.unpaidByID, unpaidOrderID)
	}

	stored := sale
	s.salesByID[sale.ID] = &stored
	if sale.IdempotencyKey != "" {
		s.salesByIdem[sale.IdempotencyKey] = &stored
	}
	out := stored
	return &out, nil
}

func (s *Store) FindSaleByID(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.salesByID[id]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	out := *sale
	out.Lines = slices.Clone(sale.Lines)
	return &out, nil
}

func (s *Store) FindSaleByIdempotency(_ context.Context, key string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.salesByIdem[key]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	out := *sale
	out.Lines = slices.Clone(sale.Lines)
	return &out, nil
}

func (s *Store) ListSales(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Sale, 0, limit)
	for _, sale := range s.salesByID {
		if sale.CreatedAt.Before(from) || !sale.CreatedAt.Before(to) {
			continue
		}
		cp := *sale
		cp.Lines = slices.Clone(sale.Lines)
		out = append(out, cp)
	}
	slices.SortFunc(out, func(a, b domain.Sale) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ApplyRefund revalidates the requested quantities against the sale lines
// under the write lock. Quantities already claimed by an earlier refund make
// the request fail with ErrConflict rather than over-refund.
func (s *Store) ApplyRefund(_ context.Context, refund domain.Refund) (*domain.Refund, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.salesByID[refund.SaleID]
	if !ok {
		return nil, ledger.ErrNotFound
	}

	lineByProduct := make(map[string]*domain.SaleLine, len(sale.Lines))
	for i := range sale.Lines {
		lineByProduct[sale.Lines[i].ProductID] = &sale.Lines[i]
	}
	requested := make(map[string]float64, len(refund.Lines))
	for _, rl := range refund.Lines {
		line, ok := lineByProduct[rl.ProductID]
		if !ok {
			return nil, ledger.ErrNotFound
		}
		requested[rl.ProductID] += rl.Qty
		if rl.Qty <= 0 || requested[rl.ProductID] > line.OriginalQty-line.RefundedQty {
			return nil, ledger.ErrConflict
		}
	}

	now := time.Now().UTC()
	refund.CreatedAt = now
	if refund.ID == "" {
		refund.ID = xid.New("refund")
	}
	for i := range refund.Lines {
		refund.Lines[i].RefundID = refund.ID
		if refund.Lines[i].ID == "" {
			refund.Lines[i].ID = xid.New("refitem")
		}
		line := lineByProduct[refund.Lines[i].ProductID]
		line.RefundedQty += refund.Lines[i].Qty
		line.Qty = line.OriginalQty - line.RefundedQty

		if p, ok := s.products[refund.Lines[i].ProductID]; ok && p.Type != domain.ProductTypeService {
			if _, err := s.applyStockChange(domain.StockHistoryEntry{
				ProductID:   p.ID,
				ChangeType:  domain.StockChangeRefund,
				QtyChange:   refund.Lines[i].Qty,
				ReferenceID: refund.ID,
				RecordedBy:  refund.RefundedBy,
			}, now); err != nil {
				return nil, err
			}
		}
	}

	sale.RefundID = refund.ID
	sale.RefundedAt = &now
	s.refundsByID[refund.ID] = refund

	out := refund
	out.Lines = slices.Clone(refund.Lines)
	return &out, nil
}

func (s *Store) ListRefunds(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.Refund, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Refund, 0, limit)
	for _, r := range s.refundsByID {
		if r.CreatedAt.Before(from) || !r.CreatedAt.Before(to) {
			continue
		}
		cp := r
		cp.Lines = slices.Clone(r.Lines)
		out = append(out, cp)
	}
	slices.SortFunc(out, func(a, b domain.Refund) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) RecordPartialPayment(_ context.Context, payment domain.PartialPayment) (*domain.PartialPayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.salesByID[payment.SaleID]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	if sale.PaymentStatus != domain.PaymentStatusPartial {
		return nil, ledger.ErrConflict
	}
	if payment.AmountCents <= 0 || payment.AmountCents > sale.RemainingBalanceCents {
		return nil, ledger.ErrInvalidInput
	}

	now := time.Now().UTC()
	if payment.ID == "" {
		payment.ID = xid.New("pay")
	}
	payment.CreatedAt = now
	sale.RemainingBalanceCents -= payment.AmountCents
	if sale.RemainingBalanceCents == 0 {
		sale.PaymentStatus = domain.PaymentStatusPaid
	}
	payment.RemainingAfterCents = sale.RemainingBalanceCents
	s.payments[payment.SaleID] = append(s.payments[payment.SaleID], payment)

	out := payment
	return &out, nil
}

func (s *Store) ListOutstandingSales(_ context.Context, limit int) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Sale, 0, limit)
	for _, sale := range s.salesByID {
		if sale.PaymentStatus != domain.PaymentStatusPartial {
			continue
		}
		cp := *sale
		cp.Lines = slices.Clone(sale.Lines)
		out = append(out, cp)
	}
	slices.SortFunc(out, func(a, b domain.Sale) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ListPartialPayments(_ context.Context, saleID string) ([]domain.PartialPayment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.salesByID[saleID]; !ok {
		return nil, ledger.ErrNotFound
	}
	return slices.Clone(s.payments[saleID]), nil
}

func (s *Store) OpenShift(_ context.Context, shift domain.CashShift) (*domain.CashShift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.openShiftID != "" {
		return nil, ledger.ErrShiftAlreadyOpen
	}
	if shift.ID == "" {
		shift.ID = xid.New("shift")
	}
	shift.Status = domain.ShiftStatusOpen
	shift.OpenedAt = time.Now().UTC()
	s.shiftsByID[shift.ID] = shift
	s.openShiftID = shift.ID
	out := shift
	return &out, nil
}

func (s *Store) GetOpenShift(_ context.Context) (*domain.CashShift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.openShiftID == "" {
		return nil, ledger.ErrNoOpenShift
	}
	shift := s.shiftsByID[s.openShiftID]
	out := shift
	return &out, nil
}

// shiftCashTotalsLocked recomputes drawer movement from ledger rows. Cash
// partial payments received after the shift opened count as cash sales.
func (s *Store) shiftCashTotalsLocked(shiftID string) (*domain.ShiftCashTotals, error) {
	shift, ok := s.shiftsByID[shiftID]
	if !ok {
		return nil, ledger.ErrNotFound
	}

	totals := domain.ShiftCashTotals{}
	for _, sale := range s.salesByID {
		if sale.ShiftID != shiftID {
			continue
		}
		totals.TotalSalesCents += sale.TotalCents
		switch sale.PaymentMethod {
		case domain.PaymentCash:
			totals.CashSalesCents += sale.TotalCents
		case domain.PaymentCard:
			totals.CardSalesCents += sale.TotalCents
		case domain.PaymentMobile:
			totals.MobileSalesCents += sale.TotalCents
		}
	}
	for _, list := range s.payments {
		for _, p := range list {
			if p.PaymentMethod == domain.PaymentCash && !p.CreatedAt.Before(shift.OpenedAt) {
				if shift.ClosedAt == nil || p.CreatedAt.Before(*shift.ClosedAt) {
					totals.CashSalesCents += p.AmountCents
				}
			}
		}
	}
	for _, r := range s.refundsByID {
		if r.ShiftID == shiftID && r.PaymentMethod == domain.PaymentCash {
			totals.CashRefundsCents += r.TotalCents
		}
	}
	for _, t := range s.transfers {
		if t.ShiftID == shiftID {
			totals.CashExpensesCents += t.AmountCents
		}
	}
	return &totals, nil
}

func (s *Store) GetShiftCashTotals(_ context.Context, shiftID string) (*domain.ShiftCashTotals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shiftCashTotalsLocked(shiftID)
}

func (s *Store) CloseShift(_ context.Context, shift domain.CashShift) (*domain.CashShift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.shiftsByID[shift.ID]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	if current.Status != domain.ShiftStatusOpen {
		return nil, ledger.ErrConflict
	}

	now := time.Now().UTC()
	current.Status = domain.ShiftStatusClosed
	current.ClosedBy = shift.ClosedBy
	current.ClosedAt = &now
	current.CountedCashCents = shift.CountedCashCents
	current.ExpectedCashCents = shift.ExpectedCashCents
	current.DifferenceCents = shift.DifferenceCents
	current.TotalSalesCents = shift.TotalSalesCents
	current.CashSalesCents = shift.CashSalesCents
	current.CardSalesCents = shift.CardSalesCents
	current.MobileSalesCents = shift.MobileSalesCents
	current.CashRefundsCents = shift.CashRefundsCents
	current.CashExpensesCents = shift.CashExpensesCents
	current.Notes = shift.Notes
	s.shiftsByID[current.ID] = current
	if s.openShiftID == current.ID {
		s.openShiftID = ""
	}
	out := current
	return &out, nil
}

// RecordBankTransfer moves cash out of the drawer. The transfer is rejected
// when it exceeds the cash currently attributable to the open shift.
func (s *Store) RecordBankTransfer(_ context.Context, transfer domain.BankTransfer) (*domain.BankTransfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	shift, ok := s.shiftsByID[transfer.ShiftID]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	if shift.Status != domain.ShiftStatusOpen {
		return nil, ledger.ErrConflict
	}
	totals, err := s.shiftCashTotalsLocked(transfer.ShiftID)
	if err != nil {
		return nil, err
	}
	available := shift.OpeningCashCents + totals.CashSalesCents - totals.CashRefundsCents - totals.CashExpensesCents
	if transfer.AmountCents <= 0 {
		return nil, ledger.ErrInvalidInput
	}
	if transfer.AmountCents > available {
		return nil, ledger.ErrInsufficientCash
	}
	if transfer.ID == "" {
		transfer.ID = xid.New("xfer")
	}
	transfer.CreatedAt = time.Now().UTC()
	s.transfers = append(s.transfers, transfer)
	out := transfer
	return &out, nil
}

func (s *Store) AdjustShiftCash(_ context.Context, shiftID string, deltaCents int64, note string, by string) (*domain.CashShift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	shift, ok := s.shiftsByID[shiftID]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	if shift.Status != domain.ShiftStatusOpen {
		return nil, ledger.ErrConflict
	}
	shift.OpeningCashCents += deltaCents
	if note != "" {
		if shift.Notes != "" {
			shift.Notes += "; "
		}
		shift.Notes += by + ": " + note
	}
	s.shiftsByID[shiftID] = shift
	out := shift
	return &out, nil
}

func (s *Store) LastClosedShiftCash(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *domain.CashShift
	for id := range s.shiftsByID {
		shift := s.shiftsByID[id]
		if shift.Status != domain.ShiftStatusClosed || shift.ClosedAt == nil {
			continue
		}
		if latest == nil || shift.ClosedAt.After(*latest.ClosedAt) {
			cp := shift
			latest = &cp
		}
	}
	if latest == nil {
		return 0, ledger.ErrNotFound
	}
	return latest.CountedCashCents, nil
}

func (s *Store) ListShifts(_ context.Context, limit int) ([]domain.CashShift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.CashShift, 0, len(s.shiftsByID))
	for _, shift := range s.shiftsByID {
		out = append(out, shift)
	}
	slices.SortFunc(out, func(a, b domain.CashShift) int {
		return b.OpenedAt.Compare(a.OpenedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) GetCustomer(_ context.Context, phone string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.customers[phone]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	out := c
	return &out, nil
}

func (s *Store) ListCustomers(_ context.Context, limit int) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b domain.Customer) int {
		if a.TotalSpentCents == b.TotalSpentCents {
			return strings.Compare(a.Phone, b.Phone)
		}
		if a.TotalSpentCents > b.TotalSpentCents {
			return -1
		}
		return 1
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) SaveUnpaidOrder(_ context.Context, order domain.UnpaidOrder) (*domain.UnpaidOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if order.ID == "" {
		order.ID = xid.New("hold")
	}
	order.CreatedAt = time.Now().UTC()
	s.unpaidByID[order.ID] = order
	out := order
	return &out, nil
}

func (s *Store) ListUnpaidOrders(_ context.Context) ([]domain.UnpaidOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.UnpaidOrder, 0, len(s.unpaidByID))
	for _, o := range s.unpaidByID {
		out = append(out, o)
	}
	slices.SortFunc(out, func(a, b domain.UnpaidOrder) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out, nil
}

func (s *Store) DeleteUnpaidOrder(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.unpaidByID[id]; !ok {
		return ledger.ErrNotFound
	}
	delete(s.unpaidByID, id)
	return nil
}

func (s *Store) GetDailyReport(_ context.Context, day time.Time) (*domain.DailyReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)

	report := domain.DailyReport{
		Date:            dayStart.Format("2006-01-02"),
		ByPaymentMethod: map[string]int64{},
	}
	qtyByProduct := map[string]*domain.ProductSales{}

	for _, sale := range s.salesByID {
		if sale.CreatedAt.Before(dayStart) || !sale.CreatedAt.Before(dayEnd) {
			continue
		}
		report.SalesCount++
		report.GrossSalesCents += sale.TotalCents
		report.TaxCollectedCents += sale.TaxCents
		report.DiscountCents += sale.DiscountCents
		report.ByPaymentMethod[sale.PaymentMethod] += sale.TotalCents
		for _, line := range sale.Lines {
			ps, ok := qtyByProduct[line.ProductID]
			if !ok {
				ps = &domain.ProductSales{ProductID: line.ProductID, Name: line.Name}
				qtyByProduct[line.ProductID] = ps
			}
			ps.QtySold += line.OriginalQty
			ps.RevenueCents += int64(line.OriginalQty * float64(line.UnitPriceCents))
		}
	}
	for _, r := range s.refundsByID {
		if r.CreatedAt.Before(dayStart) || !r.CreatedAt.Before(dayEnd) {
			continue
		}
		report.RefundsCount++
		report.RefundTotalCents += r.TotalCents
	}
	report.NetSalesCents = report.GrossSalesCents - report.RefundTotalCents

	top := make([]domain.ProductSales, 0, len(qtyByProduct))
	for _, ps := range qtyByProduct {
		top = append(top, *ps)
	}
	slices.SortFunc(top, func(a, b domain.ProductSales) int {
		if a.RevenueCents == b.RevenueCents {
			return strings.Compare(a.ProductID, b.ProductID)
		}
		if a.RevenueCents > b.RevenueCents {
			return -1
		}
		return 1
	})
	if len(top) > 10 {
		top = top[:10]
	}
	report.TopProducts = top
	return &report, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry.ID = int64(len(s.auditLogs) + 1)
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.AuditLog, 0, limit)
	for i := len(s.auditLogs) - 1; i >= 0; i-- {
		e := s.auditLogs[i]
		if e.CreatedAt.Before(from) || !e.CreatedAt.Before(to) {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.Username == "" || user.PasswordHash == "" {
		return ledger.ErrInvalidInput
	}
	if _, exists := s.usersByUsername[user.Username]; exists {
		return ledger.ErrConflict
	}
	if user.ID == "" {
		user.ID = xid.New("user")
	}
	user.Active = true
	user.CreatedAt = time.Now().UTC()
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.usersByUsername[username]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	out := u
	return &out, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, u := range s.usersByUsername {
		out = append(out, u)
	}
	slices.SortFunc(out, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return out, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.usersByUsername[username]
	if !ok {
		return ledger.ErrNotFound
	}
	u.PasswordHash = passwordHash
	s.usersByUsername[username] = u
	return nil
}
