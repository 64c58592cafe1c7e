// Package service holds the business rules: checkout totals, refund
// proration, drawer reconciliation and the audit trail. Every mutating
// operation validates its input, delegates the atomic write to the ledger
// repository and records an audit entry.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"aynpos/backend/internal/cache"
	"aynpos/backend/internal/domain"
	"aynpos/backend/internal/ledger"
	"aynpos/backend/internal/metrics"
	"aynpos/backend/internal/xid"
)

// ErrForbidden is returned when the acting user's role does not allow the
// requested operation.
var ErrForbidden = errors.New("forbidden")

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo           ledger.Repository
	reports        cache.ReportCache
	log            *slog.Logger
	metrics        *metrics.Metrics
	defaultTaxRate float64
}

func New(repo ledger.Repository, reports cache.ReportCache, log *slog.Logger, m *metrics.Metrics, defaultTaxRate float64) *Service {
	if reports == nil {
		reports = cache.NoopReportCache{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		repo:           repo,
		reports:        reports,
		log:            log,
		metrics:        m,
		defaultTaxRate: defaultTaxRate,
	}
}

func (s *Service) logAudit(ctx context.Context, action string, entity string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}
	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		Actor:    actor.Username,
		Action:   action,
		Entity:   entity,
		EntityID: entityID,
		Detail:   detail,
	}); err != nil {
		s.log.Warn("audit log write failed", "action", action, "err", err)
	}
}

func actorName(ctx context.Context) string {
	if actor, ok := ActorFromContext(ctx); ok {
		return actor.Username
	}
	return "system"
}

func (s *Service) ListProducts(ctx context.Context, includeInactive bool) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx, includeInactive)
}

func (s *Service) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	if id == "" {
		return nil, ledger.ErrInvalidInput
	}
	return s.repo.GetProductByID(ctx, id)
}

func validProductType(t string) bool {
	switch t {
	case domain.ProductTypeItem, domain.ProductTypeService, domain.ProductTypeRawMaterial:
		return true
	}
	return false
}

func (s *Service) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || !validProductType(product.Type) {
		return nil, ledger.ErrInvalidInput
	}
	if product.PriceCents < 0 || product.CostCents < 0 || product.StockQty < 0 {
		return nil, ledger.ErrInvalidInput
	}
	if product.Type != domain.ProductTypeRawMaterial && product.PriceCents < 1 {
		return nil, ledger.ErrInvalidInput
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "product.create", "product", created.ID, created.Name)
	return created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" || product.Name == "" || !validProductType(product.Type) {
		return nil, ledger.ErrInvalidInput
	}
	if product.PriceCents < 0 || product.CostCents < 0 {
		return nil, ledger.ErrInvalidInput
	}

	updated, err := s.repo.UpdateProduct(ctx, product)
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "product.update", "product", updated.ID, updated.Name)
	return updated, nil
}

func (s *Service) DeactivateProduct(ctx context.Context, id string) error {
	if id == "" {
		return ledger.ErrInvalidInput
	}
	if err := s.repo.DeactivateProduct(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "product.deactivate", "product", id, "")
	return nil
}

func (s *Service) SetRecipe(ctx context.Context, productID string, lines []domain.RecipeLine) error {
	if productID == "" {
		return ledger.ErrInvalidInput
	}
	seen := map[string]bool{}
	for _, line := range lines {
		if line.RawMaterialID == "" || line.QtyPerUnit <= 0 {
			return ledger.ErrInvalidInput
		}
		if seen[line.RawMaterialID] {
			return ledger.ErrConflict
		}
		seen[line.RawMaterialID] = true
	}
	if err := s.repo.SetRecipe(ctx, productID, lines); err != nil {
		return err
	}
	s.logAudit(ctx, "recipe.set", "product", productID, fmt.Sprintf("%d ingredients", len(lines)))
	return nil
}

func (s *Service) GetRecipe(ctx context.Context, productID string) ([]domain.RecipeLine, error) {
	if productID == "" {
		return nil, ledger.ErrInvalidInput
	}
	return s.repo.GetRecipe(ctx, productID)
}

// AdjustStock records a manual or damage correction. Sale and refund
// movements are written by their own flows and cannot be injected here.
func (s *Service) AdjustStock(ctx context.Context, productID string, qtyChange float64, changeType string, note string) (*domain.Product, error) {
	if productID == "" || qtyChange == 0 {
		return nil, ledger.ErrInvalidInput
	}
	if changeType != domain.StockChangeManual && changeType != domain.StockChangeDamaged {
		return nil, ledger.ErrInvalidInput
	}

	product, err := s.repo.AdjustStock(ctx, domain.StockHistoryEntry{
		ProductID:  productID,
		ChangeType: changeType,
		QtyChange:  qtyChange,
		Note:       note,
		RecordedBy: actorName(ctx),
	})
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "stock.adjust", "product", productID, fmt.Sprintf("%+.3f (%s)", qtyChange, changeType))
	return product, nil
}

func (s *Service) ListStockHistory(ctx context.Context, productID string, limit int) ([]domain.StockHistoryEntry, error) {
	return s.repo.ListStockHistory(ctx, productID, limit)
}

func (s *Service) GetCustomer(ctx context.Context, phone string) (*domain.Customer, error) {
	if phone == "" {
		return nil, ledger.ErrInvalidInput
	}
	return s.repo.GetCustomer(ctx, phone)
}

func (s *Service) ListCustomers(ctx context.Context, limit int) ([]domain.Customer, error) {
	return s.repo.ListCustomers(ctx, limit)
}

func (s *Service) SaveUnpaidOrder(ctx context.Context, order domain.UnpaidOrder) (*domain.UnpaidOrder, error) {
	if len(order.Items) == 0 {
		return nil, ledger.ErrInvalidInput
	}
	for _, item := range order.Items {
		if item.ProductID == "" || item.Qty <= 0 {
			return nil, ledger.ErrInvalidInput
		}
	}
	order.CreatedBy = actorName(ctx)

	var total int64
	for _, item := range order.Items {
		product, err := s.repo.GetProductByID(ctx, item.ProductID)
		if err != nil {
			return nil, err
		}
		total += roundCents(float64(product.PriceCents) * item.Qty)
	}
	order.TotalCents = total

	saved, err := s.repo.SaveUnpaidOrder(ctx, order)
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "order.hold", "unpaid_order", saved.ID, saved.Label)
	return saved, nil
}

func (s *Service) ListUnpaidOrders(ctx context.Context) ([]domain.UnpaidOrder, error) {
	return s.repo.ListUnpaidOrders(ctx)
}

func (s *Service) DeleteUnpaidOrder(ctx context.Context, id string) error {
	if id == "" {
		return ledger.ErrInvalidInput
	}
	if err := s.repo.DeleteUnpaidOrder(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "order.discard", "unpaid_order", id, "")
	return nil
}

func (s *Service) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	return s.repo.ListAuditLogs(ctx, from, to, limit)
}

func validRole(role string) bool {
	switch role {
	case domain.RoleAdmin, domain.RoleManager, domain.RoleCashier:
		return true
	}
	return false
}

func (s *Service) CreateUser(ctx context.Context, username string, password string, role string) error {
	if actor, ok := ActorFromContext(ctx); !ok || actor.Role != domain.RoleAdmin {
		return ErrForbidden
	}
	if username == "" || len(password) < 8 || !validRole(role) {
		return ledger.ErrInvalidInput
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if err := s.repo.CreateUser(ctx, domain.UserAccount{
		ID:           xid.New("user"),
		Username:     username,
		PasswordHash: string(hash),
		Role:         role,
	}); err != nil {
		return err
	}
	s.logAudit(ctx, "user.create", "user", username, role)
	return nil
}

func (s *Service) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	if actor, ok := ActorFromContext(ctx); !ok || actor.Role != domain.RoleAdmin {
		return nil, ErrForbidden
	}
	return s.repo.ListUsers(ctx)
}

func (s *Service) ChangePassword(ctx context.Context, username string, password string) error {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return ErrForbidden
	}
	if actor.Role != domain.RoleAdmin && actor.Username != username {
		return ErrForbidden
	}
	if len(password) < 8 {
		return ledger.ErrInvalidInput
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if err := s.repo.UpdateUserPassword(ctx, username, string(hash)); err != nil {
		return err
	}
	s.logAudit(ctx, "user.password", "user", username, "")
	return nil
}
