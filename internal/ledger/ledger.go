// Package ledger defines the persistence contract for the sale and refund
// ledger plus the sentinel errors every store implementation maps to.
package ledger

import (
	"context"
	"errors"
	"time"

	"aynpos/backend/internal/domain"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrConflict         = errors.New("conflict")
	ErrShiftAlreadyOpen = errors.New("a cash shift is already open")
	ErrNoOpenShift      = errors.New("no open cash shift")
	ErrInsufficientCash = errors.New("insufficient cash in drawer")
)

type Repository interface {
	// Catalog.
	ListProducts(ctx context.Context, includeInactive bool) ([]domain.Product, error)
	GetProductByID(ctx context.Context, id string) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeactivateProduct(ctx context.Context, id string) error

	// Recipes.
	SetRecipe(ctx context.Context, productID string, lines []domain.RecipeLine) error
	GetRecipe(ctx context.Context, productID string) ([]domain.RecipeLine, error)

	// Inventory.
	AdjustStock(ctx context.Context, entry domain.StockHistoryEntry) (*domain.Product, error)
	ListStockHistory(ctx context.Context, productID string, limit int) ([]domain.StockHistoryEntry, error)

	// Sales.
	CreateSale(ctx context.Context, sale domain.Sale, deductions []domain.StockHistoryEntry, unpaidOrderID string) (*domain.Sale, error)
	FindSaleByID(ctx context.Context, id string) (*domain.Sale, error)
	FindSaleByIdempotency(ctx context.Context, key string) (*domain.Sale, error)
	ListSales(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.Sale, error)

	// Refunds.
	ApplyRefund(ctx context.Context, refund domain.Refund) (*domain.Refund, error)
	ListRefunds(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.Refund, error)

	// Credit sales.
	RecordPartialPayment(ctx context.Context, payment domain.PartialPayment) (*domain.PartialPayment, error)
	ListOutstandingSales(ctx context.Context, limit int) ([]domain.Sale, error)
	ListPartialPayments(ctx context.Context, saleID string) ([]domain.PartialPayment, error)

	// Cash shifts.
	OpenShift(ctx context.Context, shift domain.CashShift) (*domain.CashShift, error)
	GetOpenShift(ctx context.Context) (*domain.CashShift, error)
	GetShiftCashTotals(ctx context.Context, shiftID string) (*domain.ShiftCashTotals, error)
	CloseShift(ctx context.Context, shift domain.CashShift) (*domain.CashShift, error)
	RecordBankTransfer(ctx context.Context, transfer domain.BankTransfer) (*domain.BankTransfer, error)
	AdjustShiftCash(ctx context.Context, shiftID string, deltaCents int64, note string, by string) (*domain.CashShift, error)
	LastClosedShiftCash(ctx context.Context) (int64, error)
	ListShifts(ctx context.Context, limit int) ([]domain.CashShift, error)

	// Customers.
	GetCustomer(ctx context.Context, phone string) (*domain.Customer, error)
	ListCustomers(ctx context.Context, limit int) ([]domain.Customer, error)

	// Unpaid orders.
	SaveUnpaidOrder(ctx context.Context, order domain.UnpaidOrder) (*domain.UnpaidOrder, error)
	ListUnpaidOrders(ctx context.Context) ([]domain.UnpaidOrder, error)
	DeleteUnpaidOrder(ctx context.Context, id string) error

	// Reporting.
	GetDailyReport(ctx context.Context, day time.Time) (*domain.DailyReport, error)

	// Audit.
	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	// Users.
	CreateUser(ctx context.Context, user domain.UserAccount) error
	GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error)
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, passwordHash string) error
}
