package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a catalog entry. Deleted products stay in the table so
// historical order items keep resolving.
type Product struct {
	ID        int64           `db:"id" json:"id"`
	Name      string          `db:"name" json:"name"`
	Barcode   *string         `db:"barcode" json:"barcode,omitempty"`
	Price     decimal.Decimal `db:"price" json:"price"`
	Unit      string          `db:"unit" json:"unit"`
	Stock     int             `db:"stock" json:"stock"`
	IsDeleted bool            `db:"is_deleted" json:"isDeleted"`
	CreatedAt time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time       `db:"updated_at" json:"updatedAt"`
}

// ProductFilter narrows product listings.
type ProductFilter struct {
	Query          string
	IncludeDeleted bool
	Page           Page
}

// CartLine is a client-held line priced at add time.
type CartLine struct {
	ProductID int64           `json:"productId"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// Subtotal returns quantity × price.
func (l CartLine) Subtotal() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Promotion is a promo code with a validity window and an optional usage cap.
type Promotion struct {
	ID             int64           `db:"id" json:"id"`
	Code           string          `db:"code" json:"code"`
	Description    string          `db:"description" json:"description"`
	DiscountType   string          `db:"discount_type" json:"discountType"`
	DiscountValue  decimal.Decimal `db:"discount_value" json:"discountValue"`
	StartDate      time.Time       `db:"start_date" json:"startDate"`
	EndDate        time.Time       `db:"end_date" json:"endDate"`
	MinOrderAmount decimal.Decimal `db:"min_order_amount" json:"minOrderAmount"`
	UsageLimit     int             `db:"usage_limit" json:"usageLimit"`
	UsedCount      int             `db:"used_count" json:"usedCount"`
	Status         string          `db:"status" json:"status"`
	CreatedAt      time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updatedAt"`
}

// PromotionFilter narrows promotion listings.
type PromotionFilter struct {
	Status string
	Page   Page
}

// Order is the header of a sale. It owns its items and its payment.
type Order struct {
	ID             int64           `db:"id" json:"id"`
	CustomerID     *int64          `db:"customer_id" json:"customerId,omitempty"`
	UserID         *int64          `db:"user_id" json:"userId,omitempty"`
	PromoID        *int64          `db:"promo_id" json:"promoId,omitempty"`
	Status         string          `db:"status" json:"status"`
	PaymentMethod  string          `db:"payment_method" json:"paymentMethod"`
	Subtotal       decimal.Decimal `db:"subtotal" json:"subtotal"`
	DiscountAmount decimal.Decimal `db:"discount_amount" json:"discountAmount"`
	TotalAmount    decimal.Decimal `db:"total_amount" json:"totalAmount"`
	IdempotencyKey *string         `db:"idempotency_key" json:"-"`
	OrderDate      time.Time       `db:"order_date" json:"orderDate"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updatedAt"`
}

// OrderFilter narrows order listings.
type OrderFilter struct {
	Status string
	UserID *int64
	Page   Page
}

// OrderItem snapshots the unit price at order time.
type OrderItem struct {
	ID        int64           `db:"id" json:"id"`
	OrderID   int64           `db:"order_id" json:"orderId"`
	ProductID int64           `db:"product_id" json:"productId"`
	Quantity  int             `db:"quantity" json:"quantity"`
	Price     decimal.Decimal `db:"price" json:"price"`
	Subtotal  decimal.Decimal `db:"subtotal" json:"subtotal"`
}

// Payment is the single payment record of an order.
type Payment struct {
	ID           int64           `db:"id" json:"id"`
	OrderID      int64           `db:"order_id" json:"orderId"`
	Amount       decimal.Decimal `db:"amount" json:"amount"`
	Method       string          `db:"method" json:"method"`
	Status       string          `db:"status" json:"status"`
	RequestID    string          `db:"request_id" json:"requestId"`
	ProviderTxID *string         `db:"provider_tx_id" json:"providerTxId,omitempty"`
	PayURL       *string         `db:"pay_url" json:"payUrl,omitempty"`
	PaymentDate  time.Time       `db:"payment_date" json:"paymentDate"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updatedAt"`
}

// User is a console/cashier account.
type User struct {
	ID           int64     `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	PasswordHash string    `db:"password_hash" json:"-"`
	FullName     string    `db:"full_name" json:"fullName"`
	Role         string    `db:"role" json:"role"`
	IsActive     bool      `db:"is_active" json:"isActive"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}

// InventoryTransaction is one row of the stock ledger.
type InventoryTransaction struct {
	ID        int64     `db:"id" json:"id"`
	ProductID int64     `db:"product_id" json:"productId"`
	Quantity  int       `db:"quantity" json:"quantity"`
	Type      string    `db:"type" json:"type"`
	OrderID   *int64    `db:"order_id" json:"orderId,omitempty"`
	Note      string    `db:"note" json:"note"`
	UserID    *int64    `db:"user_id" json:"userId,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// InventoryFilter narrows ledger listings.
type InventoryFilter struct {
	ProductID *int64
	Page      Page
}

// Page is a 1-based page request.
type Page struct {
	Page     int
	PageSize int
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Normalize clamps the page to sane bounds.
func (p Page) Normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		p.PageSize = MaxPageSize
	}
	return p
}

// Offset returns the row offset of the page.
func (p Page) Offset() int {
	p = p.Normalize()
	return (p.Page - 1) * p.PageSize
}

// Order statuses
const (
	OrderStatusPending   = "pending"
	OrderStatusPaid      = "paid"
	OrderStatusCancelled = "cancelled"
)

// Payment statuses
const (
	PaymentStatusPending = "pending"
	PaymentStatusSuccess = "success"
	PaymentStatusFailed  = "failed"
)

// Payment methods
const (
	PaymentMethodCash         = "cash"
	PaymentMethodCard         = "card"
	PaymentMethodBankTransfer = "bank_transfer"
	PaymentMethodEWallet      = "e-wallet"
	PaymentMethodMoMo         = "momo"
	PaymentMethodVNPay        = "vnpay"
)

// IsGatewayMethod reports whether the method settles through an external redirect and callback.
func IsGatewayMethod(method string) bool {
	return method == PaymentMethodMoMo || method == PaymentMethodVNPay
}

// IsPaymentMethod reports whether method is one of the supported payment methods.
func IsPaymentMethod(method string) bool {
	switch method {
	case PaymentMethodCash, PaymentMethodCard, PaymentMethodBankTransfer,
		PaymentMethodEWallet, PaymentMethodMoMo, PaymentMethodVNPay:
		return true
	}
	return false
}

// Discount types
const (
	DiscountTypePercentage = "percentage"
	DiscountTypeFixed      = "fixed"
)

// Promotion statuses
const (
	PromotionStatusActive   = "active"
	PromotionStatusInactive = "inactive"
)

// User roles
const (
	RoleAdmin = "admin"
	RoleStaff = "staff"
)

// Inventory transaction types
const (
	InventoryTypeStockIn = "stock_in"
	InventoryTypeSale    = "sale"
	InventoryTypeRestock = "restock"
)
