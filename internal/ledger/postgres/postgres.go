// Package postgres is the production ledger.Repository. Sale, refund and
// drawer mutations run in serializable transactions with row locks so two
// terminals cannot double-spend stock or over-refund a sale.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"aynpos/backend/internal/domain"
	"aynpos/backend/internal/ledger"
	"aynpos/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// DB exposes the underlying handle for migration tooling.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Close() error {
	return s.db.Close()
}

const productColumns = `id, name, category, type, price_cents, cost_cents, stock_qty, has_recipe, active, created_at, updated_at`

func scanProduct(row interface{ Scan(...any) error }) (*domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Name, &p.Category, &p.Type, &p.PriceCents, &p.CostCents,
		&p.StockQty, &p.HasRecipe, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) ListProducts(ctx context.Context, includeInactive bool) ([]domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products`
	if !includeInactive {
		query += ` WHERE active = true`
	}
	query += ` ORDER BY category, name`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProductByID(ctx context.Context, id string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ledger.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	product.Active = true
	now := time.Now().UTC()
	product.CreatedAt = now
	product.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, category, type, price_cents, cost_cents, stock_qty, has_recipe, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, product.ID, product.Name, product.Category, product.Type, product.PriceCents, product.CostCents,
		product.StockQty, product.HasRecipe, product.Active, product.CreatedAt, product.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ledger.ErrConflict
		}
		return nil, err
	}
	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, category = $3, type = $4, price_cents = $5, cost_cents = $6, active = $7, updated_at = now()
		WHERE id = $1
	`, product.ID, product.Name, product.Category, product.Type, product.PriceCents, product.CostCents, product.Active)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, ledger.ErrNotFound
	}
	return s.GetProductByID(ctx, product.ID)
}

func (s *Store) DeactivateProduct(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products SET active = false, updated_at = now() WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

func (s *Store) SetRecipe(ctx context.Context, productID string, lines []domain.RecipeLine) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var productType string
	err = tx.QueryRowContext(ctx, `SELECT type FROM products WHERE id = $1 FOR UPDATE`, productID).Scan(&productType)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ledger.ErrNotFound
		}
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM product_recipes WHERE product_id = $1`, productID); err != nil {
		return err
	}
	for _, line := range lines {
		var rawType string
		err = tx.QueryRowContext(ctx, `SELECT type FROM products WHERE id = $1`, line.RawMaterialID).Scan(&rawType)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ledger.ErrNotFound
			}
			return err
		}
		if rawType != domain.ProductTypeRawMaterial {
			return ledger.ErrInvalidInput
		}
		if line.ID == "" {
			line.ID = xid.New("recipe")
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO product_recipes (id, product_id, raw_material_id, qty_per_unit)
			VALUES ($1,$2,$3,$4)
		`, line.ID, productID, line.RawMaterialID, line.QtyPerUnit)
		if err != nil {
			if isUniqueViolation(err) {
				return ledger.ErrConflict
			}
			return err
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE products SET has_recipe = $2, updated_at = now() WHERE id = $1
	`, productID, len(lines) > 0)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) GetRecipe(ctx context.Context, productID string) ([]domain.RecipeLine, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, productID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, ledger.ErrNotFound
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, raw_material_id, qty_per_unit
		FROM product_recipes
		WHERE product_id = $1
		ORDER BY raw_material_id
	`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := make([]domain.RecipeLine, 0, 4)
	for rows.Next() {
		var line domain.RecipeLine
		if err := rows.Scan(&line.ID, &line.ProductID, &line.RawMaterialID, &line.QtyPerUnit); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// applyStockChangeTx deducts or restores stock for one product inside an open
// transaction. Deductions clamp at zero while the history row keeps the
// requested delta.
func applyStockChangeTx(ctx context.Context, tx *sql.Tx, entry domain.StockHistoryEntry, now time.Time) (*domain.Product, error) {
	var before float64
	err := tx.QueryRowContext(ctx, `
		SELECT stock_qty FROM products WHERE id = $1 FOR UPDATE
	`, entry.ProductID).Scan(&before)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ledger.ErrNotFound
		}
		return nil, err
	}

	after := before + entry.QtyChange
	if after < 0 {
		after = 0
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE products SET stock_qty = $2, updated_at = now() WHERE id = $1
	`, entry.ProductID, after)
	if err != nil {
		return nil, err
	}

	if entry.ID == "" {
		entry.ID = xid.New("stk")
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO stock_history (id, product_id, change_type, qty_change, qty_before, qty_after, reference_id, note, recorded_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, entry.ID, entry.ProductID, entry.ChangeType, entry.QtyChange, before, after,
		entry.ReferenceID, entry.Note, entry.RecordedBy, now)
	if err != nil {
		return nil, err
	}

	return &domain.Product{ID: entry.ProductID, StockQty: after}, nil
}

func (s *Store) AdjustStock(ctx context.Context, entry domain.StockHistoryEntry) (*domain.Product, error) {
	if entry.ProductID == "" || entry.QtyChange == 0 {
		return nil, ledger.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := applyStockChangeTx(ctx, tx, entry, time.Now().UTC()); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetProductByID(ctx, entry.ProductID)
}

func (s *Store) ListStockHistory(ctx context.Context, productID string, limit int) ([]domain.StockHistoryEntry, error) {
	if limit < 1 {
		limit = 50
	}
	query := `
		SELECT id, product_id, change_type, qty_change, qty_before, qty_after, reference_id, note, recorded_by, created_at
		FROM stock_history
	`
	args := []any{}
	if productID != "" {
		query += ` WHERE product_id = $1`
		args = append(args, productID)
	}
	query += ` ORDER BY created_at DESC LIMIT ` + strconv.Itoa(limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.StockHistoryEntry, 0, limit)
	for rows.Next() {
		var e domain.StockHistoryEntry
		if err := rows.Scan(&e.ID, &e.ProductID, &e.ChangeType, &e.QtyChange, &e.QtyBefore, &e.QtyAfter,
			&e.ReferenceID, &e.Note, &e.RecordedBy, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CreateSale writes the sale row, its lines, every stock movement and the
// held-order cleanup in one serializable transaction.
func (s *Store) CreateSale(ctx context.Context, sale domain.Sale, deductions []domain.StockHistoryEntry, unpaidOrderID string) (*domain.Sale, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	sale.CreatedAt = now

	for _, d := range deductions {
		d.ReferenceID = sale.ID
		if _, err := applyStockChangeTx(ctx, tx, d, now); err != nil {
			return nil, err
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sales (
			id, receipt_number, idempotency_key, shift_id, cashier, customer_phone,
			subtotal_cents, discount_percent, discount_cents, tax_rate_percent, tax_cents,
			total_cents, payment_method, cash_received_cents, change_cents,
			payment_status, remaining_balance_cents, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
	`, sale.ID, sale.ReceiptNumber, nullIfEmpty(sale.IdempotencyKey), nullIfEmpty(sale.ShiftID),
		sale.Cashier, nullIfEmpty(sale.CustomerPhone), sale.SubtotalCents, sale.DiscountPercent,
		sale.DiscountCents, sale.TaxRatePercent, sale.TaxCents, sale.TotalCents, sale.PaymentMethod,
		sale.CashReceivedCents, sale.ChangeCents, sale.PaymentStatus, sale.RemainingBalanceCents, sale.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) && sale.IdempotencyKey != "" {
			existing, lookupErr := s.FindSaleByIdempotency(ctx, sale.IdempotencyKey)
			if lookupErr == nil {
				return existing, nil
			}
		}
		if isUniqueViolation(err) {
			return nil, ledger.ErrConflict
		}
		return nil, err
	}

	for _, line := range sale.Lines {
		if line.ID == "" {
			line.ID = xid.New("line")
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sale_items (id, sale_id, product_id, name, category, unit_price_cents, qty, original_qty, refunded_qty)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,0)
		`, line.ID, sale.ID, line.ProductID, line.Name, line.Category, line.UnitPriceCents, line.Qty, line.OriginalQty)
		if err != nil {
			return nil, err
		}
	}

	if sale.CustomerPhone != "" {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO customers (phone, name, total_spent_cents, visit_count, last_visit, created_at)
			VALUES ($1,$2,$3,1,$4,$4)
			ON CONFLICT (phone) DO UPDATE SET
				name = CASE WHEN EXCLUDED.name <> '' THEN EXCLUDED.name ELSE customers.name END,
				total_spent_cents = customers.total_spent_cents + EXCLUDED.total_spent_cents,
				visit_count = customers.visit_count + 1,
				last_visit = EXCLUDED.last_visit
		`, sale.CustomerPhone, sale.CustomerName, sale.TotalCents, now)
		if err != nil {
			return nil, err
		}
	}

	if unpaidOrderID != "" {
		if _, err := tx.ExecContext(ctx, `DELETE FROM unpaid_orders WHERE id = $1`, unpaidOrderID); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created := sale
	return &created, nil
}

const saleColumns = `id, receipt_number, COALESCE(idempotency_key, ''), COALESCE(shift_id, ''), cashier,
	COALESCE(customer_phone, ''), subtotal_cents, discount_percent, discount_cents, tax_rate_percent,
	tax_cents, total_cents, payment_method, cash_received_cents, change_cents, payment_status,
	remaining_balance_cents, COALESCE(refund_id, ''), refunded_at, created_at`

func scanSale(row interface{ Scan(...any) error }) (*domain.Sale, error) {
	var sale domain.Sale
	var refundedAt sql.NullTime
	err := row.Scan(&sale.ID, &sale.ReceiptNumber, &sale.IdempotencyKey, &sale.ShiftID, &sale.Cashier,
		&sale.CustomerPhone, &sale.SubtotalCents, &sale.DiscountPercent, &sale.DiscountCents,
		&sale.TaxRatePercent, &sale.TaxCents, &sale.TotalCents, &sale.PaymentMethod,
		&sale.CashReceivedCents, &sale.ChangeCents, &sale.PaymentStatus,
		&sale.RemainingBalanceCents, &sale.RefundID, &refundedAt, &sale.CreatedAt)
	if err != nil {
		return nil, err
	}
	if refundedAt.Valid {
		at := refundedAt.Time.UTC()
		sale.RefundedAt = &at
	}
	return &sale, nil
}

func (s *Store) loadSaleLines(ctx context.Context, saleIDs []string) (map[string][]domain.SaleLine, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sale_id, product_id, name, category, unit_price_cents, qty, original_qty, refunded_qty
		FROM sale_items
		WHERE sale_id = ANY($1)
		ORDER BY id
	`, saleIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[string][]domain.SaleLine, len(saleIDs))
	for rows.Next() {
		var line domain.SaleLine
		if err := rows.Scan(&line.ID, &line.SaleID, &line.ProductID, &line.Name, &line.Category,
			&line.UnitPriceCents, &line.Qty, &line.OriginalQty, &line.RefundedQty); err != nil {
			return nil, err
		}
		byID[line.SaleID] = append(byID[line.SaleID], line)
	}
	return byID, rows.Err()
}

func (s *Store) FindSaleByID(ctx context.Context, id string) (*domain.Sale, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1`, id)
	sale, err := scanSale(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ledger.ErrNotFound
		}
		return nil, err
	}
	lines, err := s.loadSaleLines(ctx, []string{sale.ID})
	if err != nil {
		return nil, err
	}
	sale.Lines = lines[sale.ID]
	return sale, nil
}

func (s *Store) FindSaleByIdempotency(ctx context.Context, key string) (*domain.Sale, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+saleColumns+` FROM sales WHERE idempotency_key = $1`, key)
	sale, err := scanSale(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ledger.ErrNotFound
		}
		return nil, err
	}
	lines, err := s.loadSaleLines(ctx, []string{sale.ID})
	if err != nil {
		return nil, err
	}
	sale.Lines = lines[sale.ID]
	return sale, nil
}

func (s *Store) ListSales(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.Sale, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, limit)
	ids := make([]string, 0, limit)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, *sale)
		ids = append(ids, sale.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return sales, nil
	}

	lines, err := s.loadSaleLines(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range sales {
		sales[i].Lines = lines[sales[i].ID]
	}
	return sales, nil
}

// ApplyRefund locks the sale and its lines, then revalidates the requested
// quantities against what earlier refunds already claimed. A request that
// no longer fits fails with ErrConflict.
func (s *Store) ApplyRefund(ctx context.Context, refund domain.Refund) (*domain.Refund, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var saleID string
	err = tx.QueryRowContext(ctx, `SELECT id FROM sales WHERE id = $1 FOR UPDATE`, refund.SaleID).Scan(&saleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ledger.ErrNotFound
		}
		return nil, err
	}

	lineRows, err := tx.QueryContext(ctx, `
		SELECT id, product_id, original_qty, refunded_qty
		FROM sale_items
		WHERE sale_id = $1
		FOR UPDATE
	`, refund.SaleID)
	if err != nil {
		return nil, err
	}
	type lineState struct {
		id       string
		original float64
		refunded float64
	}
	lines := make(map[string]lineState, 8)
	for lineRows.Next() {
		var st lineState
		var productID string
		if err := lineRows.Scan(&st.id, &productID, &st.original, &st.refunded); err != nil {
			_ = lineRows.Close()
			return nil, err
		}
		lines[productID] = st
	}
	if err := lineRows.Err(); err != nil {
		_ = lineRows.Close()
		return nil, err
	}
	_ = lineRows.Close()

	requested := make(map[string]float64, len(refund.Lines))
	for _, rl := range refund.Lines {
		st, ok := lines[rl.ProductID]
		if !ok {
			return nil, ledger.ErrNotFound
		}
		requested[rl.ProductID] += rl.Qty
		if rl.Qty <= 0 || requested[rl.ProductID] > st.original-st.refunded {
			return nil, ledger.ErrConflict
		}
	}

	now := time.Now().UTC()
	if refund.ID == "" {
		refund.ID = xid.New("refund")
	}
	refund.CreatedAt = now

	_, err = tx.ExecContext(ctx, `
		INSERT INTO refunds (id, sale_id, refund_type, shift_id, refunded_by, reason, subtotal_cents, tax_cents, total_cents, payment_method, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, refund.ID, refund.SaleID, refund.Type, nullIfEmpty(refund.ShiftID), refund.RefundedBy, refund.Reason,
		refund.SubtotalCents, refund.TaxCents, refund.TotalCents, refund.PaymentMethod, refund.CreatedAt)
	if err != nil {
		return nil, err
	}

	for i := range refund.Lines {
		rl := &refund.Lines[i]
		rl.RefundID = refund.ID
		if rl.ID == "" {
			rl.ID = xid.New("refitem")
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO refund_items (id, refund_id, product_id, name, unit_price_cents, qty)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, rl.ID, refund.ID, rl.ProductID, rl.Name, rl.UnitPriceCents, rl.Qty)
		if err != nil {
			return nil, err
		}

		st := lines[rl.ProductID]
		_, err = tx.ExecContext(ctx, `
			UPDATE sale_items
			SET refunded_qty = refunded_qty + $2, qty = original_qty - (refunded_qty + $2)
			WHERE id = $1
		`, st.id, rl.Qty)
		if err != nil {
			return nil, err
		}

		var productType string
		err = tx.QueryRowContext(ctx, `SELECT type FROM products WHERE id = $1`, rl.ProductID).Scan(&productType)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		if err == nil && productType != domain.ProductTypeService {
			if _, err := applyStockChangeTx(ctx, tx, domain.StockHistoryEntry{
				ProductID:   rl.ProductID,
				ChangeType:  domain.StockChangeRefund,
				QtyChange:   rl.Qty,
				ReferenceID: refund.ID,
				RecordedBy:  refund.RefundedBy,
			}, now); err != nil {
				return nil, err
			}
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE sales SET refund_id = $2, refunded_at = $3 WHERE id = $1
	`, refund.SaleID, refund.ID, now)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	applied := refund
	return &applied, nil
}

func (s *Store) ListRefunds(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.Refund, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sale_id, refund_type, COALESCE(shift_id, ''), refunded_by, reason, subtotal_cents, tax_cents, total_cents, payment_method, created_at
		FROM refunds
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	refunds := make([]domain.Refund, 0, limit)
	ids := make([]string, 0, limit)
	for rows.Next() {
		var r domain.Refund
		if err := rows.Scan(&r.ID, &r.SaleID, &r.Type, &r.ShiftID, &r.RefundedBy, &r.Reason,
			&r.SubtotalCents, &r.TaxCents, &r.TotalCents, &r.PaymentMethod, &r.CreatedAt); err != nil {
			return nil, err
		}
		refunds = append(refunds, r)
		ids = append(ids, r.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return refunds, nil
	}

	itemRows, err := s.db.QueryContext(ctx, `
		SELECT id, refund_id, product_id, name, unit_price_cents, qty
		FROM refund_items
		WHERE refund_id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer itemRows.Close()

	byRefund := make(map[string][]domain.RefundLine, len(ids))
	for itemRows.Next() {
		var rl domain.RefundLine
		if err := itemRows.Scan(&rl.ID, &rl.RefundID, &rl.ProductID, &rl.Name, &rl.UnitPriceCents, &rl.Qty); err != nil {
			return nil, err
		}
		byRefund[rl.RefundID] = append(byRefund[rl.RefundID], rl)
	}
	if err := itemRows.Err(); err != nil {
		return nil, err
	}
	for i := range refunds {
		refunds[i].Lines = byRefund[refunds[i].ID]
	}
	return refunds, nil
}

func (s *Store) RecordPartialPayment(ctx context.Context, payment domain.PartialPayment) (*domain.PartialPayment, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var status string
	var remaining int64
	err = tx.QueryRowContext(ctx, `
		SELECT payment_status, remaining_balance_cents FROM sales WHERE id = $1 FOR UPDATE
	`, payment.SaleID).Scan(&status, &remaining)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ledger.ErrNotFound
		}
		return nil, err
	}
	if status != domain.PaymentStatusPartial {
		return nil, ledger.ErrConflict
	}
	if payment.AmountCents <= 0 || payment.AmountCents > remaining {
		return nil, ledger.ErrInvalidInput
	}

	remaining -= payment.AmountCents
	status = domain.PaymentStatusPartial
	if remaining == 0 {
		status = domain.PaymentStatusPaid
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE sales SET remaining_balance_cents = $2, payment_status = $3 WHERE id = $1
	`, payment.SaleID, remaining, status)
	if err != nil {
		return nil, err
	}

	if payment.ID == "" {
		payment.ID = xid.New("pay")
	}
	payment.CreatedAt = time.Now().UTC()
	payment.RemainingAfterCents = remaining
	_, err = tx.ExecContext(ctx, `
		INSERT INTO partial_payments (id, sale_id, amount_cents, payment_method, remaining_after_cents, received_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, payment.ID, payment.SaleID, payment.AmountCents, payment.PaymentMethod,
		payment.RemainingAfterCents, payment.ReceivedBy, payment.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	recorded := payment
	return &recorded, nil
}

func (s *Store) ListOutstandingSales(ctx context.Context, limit int) ([]domain.Sale, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE payment_status = 'partial'
		ORDER BY created_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, limit)
	ids := make([]string, 0, limit)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, *sale)
		ids = append(ids, sale.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return sales, nil
	}
	lines, err := s.loadSaleLines(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range sales {
		sales[i].Lines = lines[sales[i].ID]
	}
	return sales, nil
}

func (s *Store) ListPartialPayments(ctx context.Context, saleID string) ([]domain.PartialPayment, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM sales WHERE id = $1)`, saleID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, ledger.ErrNotFound
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sale_id, amount_cents, payment_method, remaining_after_cents, received_by, created_at
		FROM partial_payments
		WHERE sale_id = $1
		ORDER BY created_at ASC
	`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]domain.PartialPayment, 0, 8)
	for rows.Next() {
		var p domain.PartialPayment
		if err := rows.Scan(&p.ID, &p.SaleID, &p.AmountCents, &p.PaymentMethod,
			&p.RemainingAfterCents, &p.ReceivedBy, &p.CreatedAt); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

const shiftColumns = `id, opened_by, opened_at, opening_cash_cents, status, COALESCE(closed_by, ''),
	closed_at, COALESCE(counted_cash_cents, 0), COALESCE(expected_cash_cents, 0), COALESCE(difference_cents, 0),
	total_sales_cents, cash_sales_cents, card_sales_cents, mobile_sales_cents,
	cash_refunds_cents, cash_expenses_cents, notes`

func scanShift(row interface{ Scan(...any) error }) (*domain.CashShift, error) {
	var shift domain.CashShift
	var closedAt sql.NullTime
	err := row.Scan(&shift.ID, &shift.OpenedBy, &shift.OpenedAt, &shift.OpeningCashCents, &shift.Status,
		&shift.ClosedBy, &closedAt, &shift.CountedCashCents, &shift.ExpectedCashCents, &shift.DifferenceCents,
		&shift.TotalSalesCents, &shift.CashSalesCents, &shift.CardSalesCents, &shift.MobileSalesCents,
		&shift.CashRefundsCents, &shift.CashExpensesCents, &shift.Notes)
	if err != nil {
		return nil, err
	}
	if closedAt.Valid {
		at := closedAt.Time.UTC()
		shift.ClosedAt = &at
	}
	return &shift, nil
}

func (s *Store) OpenShift(ctx context.Context, shift domain.CashShift) (*domain.CashShift, error) {
	if shift.ID == "" {
		shift.ID = xid.New("shift")
	}
	shift.Status = domain.ShiftStatusOpen
	shift.OpenedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cash_shifts (id, opened_by, opened_at, opening_cash_cents, status)
		VALUES ($1,$2,$3,$4,$5)
	`, shift.ID, shift.OpenedBy, shift.OpenedAt, shift.OpeningCashCents, shift.Status)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ledger.ErrShiftAlreadyOpen
		}
		return nil, err
	}
	opened := shift
	return &opened, nil
}

func (s *Store) GetOpenShift(ctx context.Context) (*domain.CashShift, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+shiftColumns+` FROM cash_shifts WHERE status = 'open'`)
	shift, err := scanShift(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ledger.ErrNoOpenShift
		}
		return nil, err
	}
	return shift, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func shiftCashTotals(ctx context.Context, q queryer, shiftID string) (*domain.ShiftCashTotals, error) {
	var openedAt time.Time
	var closedAt sql.NullTime
	err := q.QueryRowContext(ctx, `
		SELECT opened_at, closed_at FROM cash_shifts WHERE id = $1
	`, shiftID).Scan(&openedAt, &closedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ledger.ErrNotFound
		}
		return nil, err
	}
	closeBound := time.Now().UTC().Add(time.Hour)
	if closedAt.Valid {
		closeBound = closedAt.Time
	}

	totals := domain.ShiftCashTotals{}
	err = q.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(total_cents), 0)::bigint,
			COALESCE(SUM(total_cents) FILTER (WHERE payment_method = 'cash'), 0)::bigint,
			COALESCE(SUM(total_cents) FILTER (WHERE payment_method = 'card'), 0)::bigint,
			COALESCE(SUM(total_cents) FILTER (WHERE payment_method = 'mobile'), 0)::bigint
		FROM sales
		WHERE shift_id = $1
	`, shiftID).Scan(&totals.TotalSalesCents, &totals.CashSalesCents, &totals.CardSalesCents, &totals.MobileSalesCents)
	if err != nil {
		return nil, err
	}

	var cashPayments int64
	err = q.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount_cents), 0)
		FROM partial_payments
		WHERE payment_method = 'cash' AND created_at >= $1 AND created_at < $2
	`, openedAt, closeBound).Scan(&cashPayments)
	if err != nil {
		return nil, err
	}
	totals.CashSalesCents += cashPayments

	err = q.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(total_cents), 0)
		FROM refunds
		WHERE shift_id = $1 AND payment_method = 'cash'
	`, shiftID).Scan(&totals.CashRefundsCents)
	if err != nil {
		return nil, err
	}

	err = q.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount_cents), 0)
		FROM bank_transfers
		WHERE shift_id = $1
	`, shiftID).Scan(&totals.CashExpensesCents)
	if err != nil {
		return nil, err
	}
	return &totals, nil
}

func (s *Store) GetShiftCashTotals(ctx context.Context, shiftID string) (*domain.ShiftCashTotals, error) {
	return shiftCashTotals(ctx, s.db, shiftID)
}

func (s *Store) CloseShift(ctx context.Context, shift domain.CashShift) (*domain.CashShift, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE cash_shifts
		SET status = 'closed', closed_by = $2, closed_at = $3, counted_cash_cents = $4,
			expected_cash_cents = $5, difference_cents = $6, total_sales_cents = $7,
			cash_sales_cents = $8, card_sales_cents = $9, mobile_sales_cents = $10,
			cash_refunds_cents = $11, cash_expenses_cents = $12, notes = $13
		WHERE id = $1 AND status = 'open'
	`, shift.ID, shift.ClosedBy, now, shift.CountedCashCents, shift.ExpectedCashCents,
		shift.DifferenceCents, shift.TotalSalesCents, shift.CashSalesCents, shift.CardSalesCents,
		shift.MobileSalesCents, shift.CashRefundsCents, shift.CashExpensesCents, shift.Notes)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		if _, err := s.getShiftByID(ctx, shift.ID); err != nil {
			return nil, err
		}
		return nil, ledger.ErrConflict
	}
	return s.getShiftByID(ctx, shift.ID)
}

func (s *Store) getShiftByID(ctx context.Context, id string) (*domain.CashShift, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+shiftColumns+` FROM cash_shifts WHERE id = $1`, id)
	shift, err := scanShift(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ledger.ErrNotFound
		}
		return nil, err
	}
	return shift, nil
}

func (s *Store) RecordBankTransfer(ctx context.Context, transfer domain.BankTransfer) (*domain.BankTransfer, error) {
	if transfer.AmountCents <= 0 {
		return nil, ledger.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var status string
	var openingCash int64
	err = tx.QueryRowContext(ctx, `
		SELECT status, opening_cash_cents FROM cash_shifts WHERE id = $1 FOR UPDATE
	`, transfer.ShiftID).Scan(&status, &openingCash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ledger.ErrNotFound
		}
		return nil, err
	}
	if status != domain.ShiftStatusOpen {
		return nil, ledger.ErrConflict
	}

	totals, err := shiftCashTotals(ctx, tx, transfer.ShiftID)
	if err != nil {
		return nil, err
	}
	available := openingCash + totals.CashSalesCents - totals.CashRefundsCents - totals.CashExpensesCents
	if transfer.AmountCents > available {
		return nil, ledger.ErrInsufficientCash
	}

	if transfer.ID == "" {
		transfer.ID = xid.New("xfer")
	}
	transfer.CreatedAt = time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO bank_transfers (id, shift_id, amount_cents, bank_account, reference, recorded_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, transfer.ID, transfer.ShiftID, transfer.AmountCents, transfer.BankAccount, transfer.Reference, transfer.RecordedBy, transfer.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	recorded := transfer
	return &recorded, nil
}

func (s *Store) AdjustShiftCash(ctx context.Context, shiftID string, deltaCents int64, note string, by string) (*domain.CashShift, error) {
	annotation := ""
	if note != "" {
		annotation = by + ": " + note
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE cash_shifts
		SET opening_cash_cents = opening_cash_cents + $2,
			notes = CASE WHEN notes = '' OR $3 = '' THEN notes || $3 ELSE notes || '; ' || $3 END
		WHERE id = $1 AND status = 'open'
	`, shiftID, deltaCents, annotation)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		if _, err := s.getShiftByID(ctx, shiftID); err != nil {
			return nil, err
		}
		return nil, ledger.ErrConflict
	}
	return s.getShiftByID(ctx, shiftID)
}

func (s *Store) LastClosedShiftCash(ctx context.Context) (int64, error) {
	var counted int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(counted_cash_cents, 0)
		FROM cash_shifts
		WHERE status = 'closed'
		ORDER BY closed_at DESC
		LIMIT 1
	`).Scan(&counted)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ledger.ErrNotFound
		}
		return 0, err
	}
	return counted, nil
}

func (s *Store) ListShifts(ctx context.Context, limit int) ([]domain.CashShift, error) {
	if limit < 1 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+shiftColumns+`
		FROM cash_shifts
		ORDER BY opened_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	shifts := make([]domain.CashShift, 0, limit)
	for rows.Next() {
		shift, err := scanShift(rows)
		if err != nil {
			return nil, err
		}
		shifts = append(shifts, *shift)
	}
	return shifts, rows.Err()
}

func (s *Store) GetCustomer(ctx context.Context, phone string) (*domain.Customer, error) {
	var c domain.Customer
	var lastVisit sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT phone, name, total_spent_cents, visit_count, last_visit, created_at
		FROM customers
		WHERE phone = $1
	`, phone).Scan(&c.Phone, &c.Name, &c.TotalSpentCents, &c.VisitCount, &lastVisit, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ledger.ErrNotFound
		}
		return nil, err
	}
	if lastVisit.Valid {
		at := lastVisit.Time.UTC()
		c.LastVisit = &at
	}
	return &c, nil
}

func (s *Store) ListCustomers(ctx context.Context, limit int) ([]domain.Customer, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT phone, name, total_spent_cents, visit_count, last_visit, created_at
		FROM customers
		ORDER BY total_spent_cents DESC, phone
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, limit)
	for rows.Next() {
		var c domain.Customer
		var lastVisit sql.NullTime
		if err := rows.Scan(&c.Phone, &c.Name, &c.TotalSpentCents, &c.VisitCount, &lastVisit, &c.CreatedAt); err != nil {
			return nil, err
		}
		if lastVisit.Valid {
			at := lastVisit.Time.UTC()
			c.LastVisit = &at
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

func (s *Store) SaveUnpaidOrder(ctx context.Context, order domain.UnpaidOrder) (*domain.UnpaidOrder, error) {
	if order.ID == "" {
		order.ID = xid.New("hold")
	}
	order.CreatedAt = time.Now().UTC()
	cartJSON, err := json.Marshal(order.Items)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO unpaid_orders (id, label, customer_phone, cart_json, total_cents, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, order.ID, order.Label, nullIfEmpty(order.CustomerPhone), cartJSON, order.TotalCents, order.CreatedBy, order.CreatedAt)
	if err != nil {
		return nil, err
	}
	saved := order
	return &saved, nil
}

func (s *Store) ListUnpaidOrders(ctx context.Context) ([]domain.UnpaidOrder, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, label, COALESCE(customer_phone, ''), cart_json, total_cents, created_by, created_at
		FROM unpaid_orders
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]domain.UnpaidOrder, 0, 16)
	for rows.Next() {
		var o domain.UnpaidOrder
		var cartJSON []byte
		if err := rows.Scan(&o.ID, &o.Label, &o.CustomerPhone, &cartJSON, &o.TotalCents, &o.CreatedBy, &o.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(cartJSON, &o.Items); err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (s *Store) DeleteUnpaidOrder(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM unpaid_orders WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

func (s *Store) GetDailyReport(ctx context.Context, day time.Time) (*domain.DailyReport, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)

	report := domain.DailyReport{
		Date:            dayStart.Format("2006-01-02"),
		ByPaymentMethod: map[string]int64{},
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(total_cents), 0), COALESCE(SUM(tax_cents), 0), COALESCE(SUM(discount_cents), 0)
		FROM sales
		WHERE created_at >= $1 AND created_at < $2
	`, dayStart, dayEnd).Scan(&report.SalesCount, &report.GrossSalesCents, &report.TaxCollectedCents, &report.DiscountCents)
	if err != nil {
		return nil, err
	}

	methodRows, err := s.db.QueryContext(ctx, `
		SELECT payment_method, COALESCE(SUM(total_cents), 0)
		FROM sales
		WHERE created_at >= $1 AND created_at < $2
		GROUP BY payment_method
	`, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}
	for methodRows.Next() {
		var method string
		var total int64
		if err := methodRows.Scan(&method, &total); err != nil {
			_ = methodRows.Close()
			return nil, err
		}
		report.ByPaymentMethod[method] = total
	}
	if err := methodRows.Err(); err != nil {
		_ = methodRows.Close()
		return nil, err
	}
	_ = methodRows.Close()

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(total_cents), 0)
		FROM refunds
		WHERE created_at >= $1 AND created_at < $2
	`, dayStart, dayEnd).Scan(&report.RefundsCount, &report.RefundTotalCents)
	if err != nil {
		return nil, err
	}
	report.NetSalesCents = report.GrossSalesCents - report.RefundTotalCents

	topRows, err := s.db.QueryContext(ctx, `
		SELECT si.product_id, si.name, SUM(si.original_qty), SUM(si.original_qty * si.unit_price_cents)::bigint
		FROM sale_items si
		JOIN sales s ON s.id = si.sale_id
		WHERE s.created_at >= $1 AND s.created_at < $2
		GROUP BY si.product_id, si.name
		ORDER BY SUM(si.original_qty * si.unit_price_cents) DESC
		LIMIT 10
	`, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}
	defer topRows.Close()

	for topRows.Next() {
		var ps domain.ProductSales
		if err := topRows.Scan(&ps.ProductID, &ps.Name, &ps.QtySold, &ps.RevenueCents); err != nil {
			return nil, err
		}
		report.TopProducts = append(report.TopProducts, ps)
	}
	if err := topRows.Err(); err != nil {
		return nil, err
	}
	return &report, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (actor, action, entity, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, entry.Actor, entry.Action, entry.Entity, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor, action, entity, entity_id, detail, created_at
		FROM audit_logs
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var e domain.AuditLog
		if err := rows.Scan(&e.ID, &e.Actor, &e.Action, &e.Entity, &e.EntityID, &e.Detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, e)
	}
	return logs, rows.Err()
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.PasswordHash == "" {
		return ledger.ErrInvalidInput
	}
	if user.ID == "" {
		user.ID = xid.New("user")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, password_hash, role, active, created_at)
		VALUES ($1,$2,$3,$4,true,now())
	`, user.ID, user.Username, user.PasswordHash, user.Role)
	if err != nil {
		if isUniqueViolation(err) {
			return ledger.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error) {
	var u domain.UserAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, role, active, created_at
		FROM users
		WHERE username = $1
	`, username).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.Active, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ledger.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, password_hash, role, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var u domain.UserAccount
		if err := rows.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.Active, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, passwordHash string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password_hash = $2 WHERE username = $1
	`, username, passwordHash)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

