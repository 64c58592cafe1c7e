// Package domain holds the wire and storage models for the point-of-sale
// ledger: catalog, sales, refunds, partial payments, cash shifts and the
// stock movement trail.
package domain

import "time"

// Product types.
const (
	ProductTypeItem        = "item"
	ProductTypeService     = "service"
	ProductTypeRawMaterial = "raw_material"
)

// Payment methods accepted at checkout.
const (
	PaymentCash   = "cash"
	PaymentCard   = "card"
	PaymentMobile = "mobile"
	PaymentCredit = "credit"
)

// Sale payment status.
const (
	PaymentStatusPaid    = "paid"
	PaymentStatusPartial = "partial"
)

// Cash shift status.
const (
	ShiftStatusOpen   = "open"
	ShiftStatusClosed = "closed"
)

// Refund classification.
const (
	RefundTypeFull    = "full"
	RefundTypePartial = "partial"
)

// Stock history change types.
const (
	StockChangeSale    = "sale"
	StockChangeRefund  = "refund"
	StockChangeManual  = "manual"
	StockChangeDamaged = "damaged"
)

// User roles.
const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleCashier = "cashier"
)

type Product struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Category   string    `json:"category"`
	Type       string    `json:"type"`
	PriceCents int64     `json:"priceCents"`
	CostCents  int64     `json:"costCents"`
	StockQty   float64   `json:"stockQty"`
	HasRecipe  bool      `json:"hasRecipe"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// RecipeLine maps one raw material consumed per unit of a finished product.
type RecipeLine struct {
	ID            string  `json:"id"`
	ProductID     string  `json:"productId"`
	RawMaterialID string  `json:"rawMaterialId"`
	QtyPerUnit    float64 `json:"qtyPerUnit"`
}

type CartItem struct {
	ProductID string  `json:"productId"`
	Qty       float64 `json:"qty"`
}

type CheckoutRequest struct {
	IdempotencyKey    string     `json:"idempotencyKey,omitempty"`
	Items             []CartItem `json:"items"`
	PaymentMethod     string     `json:"paymentMethod"`
	CashReceivedCents int64      `json:"cashReceivedCents,omitempty"`
	DiscountPercent   float64    `json:"discountPercent,omitempty"`
	TaxRatePercent    float64    `json:"taxRatePercent,omitempty"`
	TaxExempt         bool       `json:"taxExempt,omitempty"`
	DownPaymentCents  int64      `json:"downPaymentCents,omitempty"`
	CustomerPhone     string     `json:"customerPhone,omitempty"`
	CustomerName      string     `json:"customerName,omitempty"`
	UnpaidOrderID     string     `json:"unpaidOrderId,omitempty"`
}

type SaleLine struct {
	ID             string  `json:"id"`
	SaleID         string  `json:"saleId"`
	ProductID      string  `json:"productId"`
	Name           string  `json:"name"`
	Category       string  `json:"category"`
	UnitPriceCents int64   `json:"unitPriceCents"`
	Qty            float64 `json:"qty"`
	OriginalQty    float64 `json:"originalQty"`
	RefundedQty    float64 `json:"refundedQty"`
}

type Sale struct {
	ID                    string     `json:"id"`
	ReceiptNumber         string     `json:"receiptNumber"`
	IdempotencyKey        string     `json:"idempotencyKey,omitempty"`
	ShiftID               string     `json:"shiftId,omitempty"`
	Cashier               string     `json:"cashier"`
	CustomerPhone         string     `json:"customerPhone,omitempty"`
	CustomerName          string     `json:"customerName,omitempty"`
	SubtotalCents         int64      `json:"subtotalCents"`
	DiscountPercent       float64    `json:"discountPercent"`
	DiscountCents         int64      `json:"discountCents"`
	TaxRatePercent        float64    `json:"taxRatePercent"`
	TaxCents              int64      `json:"taxCents"`
	TotalCents            int64      `json:"totalCents"`
	PaymentMethod         string     `json:"paymentMethod"`
	CashReceivedCents     int64      `json:"cashReceivedCents"`
	ChangeCents           int64      `json:"changeCents"`
	PaymentStatus         string     `json:"paymentStatus"`
	RemainingBalanceCents int64      `json:"remainingBalanceCents"`
	RefundID              string     `json:"refundId,omitempty"`
	RefundedAt            *time.Time `json:"refundedAt,omitempty"`
	CreatedAt             time.Time  `json:"createdAt"`
	Lines                 []SaleLine `json:"lines,omitempty"`
}

type RefundItemRequest struct {
	ProductID string  `json:"productId"`
	Qty       float64 `json:"qty"`
}

type RefundRequest struct {
	SaleID string              `json:"saleId"`
	Reason string              `json:"reason,omitempty"`
	Items  []RefundItemRequest `json:"items,omitempty"` // empty means full refund of what remains
}

type RefundLine struct {
	ID             string  `json:"id"`
	RefundID       string  `json:"refundId"`
	ProductID      string  `json:"productId"`
	Name           string  `json:"name"`
	UnitPriceCents int64   `json:"unitPriceCents"`
	Qty            float64 `json:"qty"`
}

type Refund struct {
	ID            string       `json:"id"`
	SaleID        string       `json:"saleId"`
	Type          string       `json:"type"`
	ShiftID       string       `json:"shiftId,omitempty"`
	RefundedBy    string       `json:"refundedBy"`
	Reason        string       `json:"reason,omitempty"`
	SubtotalCents int64        `json:"subtotalCents"`
	TaxCents      int64        `json:"taxCents"`
	TotalCents    int64        `json:"totalCents"`
	PaymentMethod string       `json:"paymentMethod"`
	CreatedAt     time.Time    `json:"createdAt"`
	Lines         []RefundLine `json:"lines,omitempty"`
}

type PartialPayment struct {
	ID                  string    `json:"id"`
	SaleID              string    `json:"saleId"`
	AmountCents         int64     `json:"amountCents"`
	PaymentMethod       string    `json:"paymentMethod"`
	RemainingAfterCents int64     `json:"remainingAfterCents"`
	ReceivedBy          string    `json:"receivedBy"`
	CreatedAt           time.Time `json:"createdAt"`
}

type StockHistoryEntry struct {
	ID          string    `json:"id"`
	ProductID   string    `json:"productId"`
	ChangeType  string    `json:"changeType"`
	QtyChange   float64   `json:"qtyChange"`
	QtyBefore   float64   `json:"qtyBefore"`
	QtyAfter    float64   `json:"qtyAfter"`
	ReferenceID string    `json:"referenceId,omitempty"`
	Note        string    `json:"note,omitempty"`
	RecordedBy  string    `json:"recordedBy"`
	CreatedAt   time.Time `json:"createdAt"`
}

type CashShift struct {
	ID                string     `json:"id"`
	OpenedBy          string     `json:"openedBy"`
	OpenedAt          time.Time  `json:"openedAt"`
	OpeningCashCents  int64      `json:"openingCashCents"`
	Status            string     `json:"status"`
	ClosedBy          string     `json:"closedBy,omitempty"`
	ClosedAt          *time.Time `json:"closedAt,omitempty"`
	CountedCashCents  int64      `json:"countedCashCents"`
	ExpectedCashCents int64      `json:"expectedCashCents"`
	DifferenceCents   int64      `json:"differenceCents"`
	TotalSalesCents   int64      `json:"totalSalesCents"`
	CashSalesCents    int64      `json:"cashSalesCents"`
	CardSalesCents    int64      `json:"cardSalesCents"`
	MobileSalesCents  int64      `json:"mobileSalesCents"`
	CashRefundsCents  int64      `json:"cashRefundsCents"`
	CashExpensesCents int64      `json:"cashExpensesCents"`
	Notes             string     `json:"notes,omitempty"`
}

// ShiftCashTotals is the live money movement of an open shift, recomputed
// from the ledger rather than carried as a running counter. Only the cash
// figures enter drawer reconciliation; card and mobile are reporting totals.
type ShiftCashTotals struct {
	TotalSalesCents   int64 `json:"totalSalesCents"`
	CashSalesCents    int64 `json:"cashSalesCents"`
	CardSalesCents    int64 `json:"cardSalesCents"`
	MobileSalesCents  int64 `json:"mobileSalesCents"`
	CashRefundsCents  int64 `json:"cashRefundsCents"`
	CashExpensesCents int64 `json:"cashExpensesCents"`
}

type BankTransfer struct {
	ID          string    `json:"id"`
	ShiftID     string    `json:"shiftId"`
	AmountCents int64     `json:"amountCents"`
	BankAccount string    `json:"bankAccount,omitempty"`
	Reference   string    `json:"reference,omitempty"`
	RecordedBy  string    `json:"recordedBy"`
	CreatedAt   time.Time `json:"createdAt"`
}

type Customer struct {
	Phone           string     `json:"phone"`
	Name            string     `json:"name"`
	TotalSpentCents int64      `json:"totalSpentCents"`
	VisitCount      int64      `json:"visitCount"`
	LastVisit       *time.Time `json:"lastVisit,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

type UnpaidOrder struct {
	ID            string     `json:"id"`
	Label         string     `json:"label"`
	CustomerPhone string     `json:"customerPhone,omitempty"`
	Items         []CartItem `json:"items"`
	TotalCents    int64      `json:"totalCents"`
	CreatedBy     string     `json:"createdBy"`
	CreatedAt     time.Time  `json:"createdAt"`
}

type AuditLog struct {
	ID        int64     `json:"id"`
	Actor     string    `json:"actor"`
	Action    string    `json:"action"`
	Entity    string    `json:"entity,omitempty"`
	EntityID  string    `json:"entityId,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type UserAccount struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Actor is the authenticated principal attached to request contexts.
type Actor struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token string `json:"token"`
	User  Actor  `json:"user"`
}

// DailyReport aggregates one calendar day of ledger activity.
type DailyReport struct {
	Date              string           `json:"date"`
	SalesCount        int64            `json:"salesCount"`
	GrossSalesCents   int64            `json:"grossSalesCents"`
	RefundsCount      int64            `json:"refundsCount"`
	RefundTotalCents  int64            `json:"refundTotalCents"`
	NetSalesCents     int64            `json:"netSalesCents"`
	TaxCollectedCents int64            `json:"taxCollectedCents"`
	DiscountCents     int64            `json:"discountCents"`
	ByPaymentMethod   map[string]int64 `json:"byPaymentMethod"`
	TopProducts       []ProductSales   `json:"topProducts,omitempty"`
}

type ProductSales struct {
	ProductID    string  `json:"productId"`
	Name         string  `json:"name"`
	QtySold      float64 `json:"qtySold"`
	RevenueCents int64   `json:"revenueCents"`
}

// ValidPaymentMethod reports whether m is one of the accepted tender types.
func ValidPaymentMethod(m string) bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentMobile, PaymentCredit:
		return true
	}
	return false
}
