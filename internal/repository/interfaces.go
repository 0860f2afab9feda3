package repository

import (
	"context"
	"time"

	"pos-service/internal/models"
)

// ProductRepository is the catalog store.
type ProductRepository interface {
	ListProducts(ctx context.Context, filter models.ProductFilter) ([]models.Product, int, error)
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
	GetProductByBarcode(ctx context.Context, barcode string) (*models.Product, error)
	GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error)
	CreateProduct(ctx context.Context, product *models.Product) error
	UpdateProduct(ctx context.Context, product *models.Product) error
	SoftDeleteProduct(ctx context.Context, id int64) error
	ListInventoryTransactions(ctx context.Context, filter models.InventoryFilter) ([]models.InventoryTransaction, int, error)
}

type PromotionRepository interface {
	ListPromotions(ctx context.Context, filter models.PromotionFilter) ([]models.Promotion, int, error)
	GetPromotionByID(ctx context.Context, id int64) (*models.Promotion, error)
	GetPromotionByCode(ctx context.Context, code string) (*models.Promotion, error)
	CreatePromotion(ctx context.Context, promo *models.Promotion) error
	UpdatePromotion(ctx context.Context, promo *models.Promotion) error
}

type OrderRepository interface {
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error)
	GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error)
	ListOrders(ctx context.Context, filter models.OrderFilter) ([]models.Order, int, error)
	ListPendingOrdersBefore(ctx context.Context, before time.Time, limit int) ([]models.Order, error)
	GetPaymentByOrderID(ctx context.Context, orderID int64) (*models.Payment, error)
	GetPaymentByRequestID(ctx context.Context, requestID string) (*models.Payment, error)
}

type UserRepository interface {
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
}

// Tx is the set of writes that must share one transaction. Every conditional
// update reports a zero-rows result through a sentinel error.
type Tx interface {
	// DecrementStock fails with ErrInsufficientStock when stock < quantity
	// or the product is deleted.
	DecrementStock(ctx context.Context, productID int64, quantity int) error
	IncrementStock(ctx context.Context, productID int64, quantity int) error
	// ReservePromotionUsage fails with ErrUsageLimitReached when the cap is hit.
	ReservePromotionUsage(ctx context.Context, promoID int64) error
	ReleasePromotionUsage(ctx context.Context, promoID int64) error

	CreateOrder(ctx context.Context, order *models.Order) error
	CreateOrderItem(ctx context.Context, item *models.OrderItem) error
	CreatePayment(ctx context.Context, payment *models.Payment) error
	CreateInventoryTransaction(ctx context.Context, entry *models.InventoryTransaction) error

	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error)
	GetPaymentByOrderID(ctx context.Context, orderID int64) (*models.Payment, error)
	GetPaymentByRequestID(ctx context.Context, requestID string) (*models.Payment, error)

	// TransitionOrderStatus fails with ErrStatusConflict unless the order is in from.
	TransitionOrderStatus(ctx context.Context, orderID int64, from, to string) error
	// TransitionPaymentStatus fails with ErrStatusConflict unless the payment is in from.
	TransitionPaymentStatus(ctx context.Context, paymentID int64, from, to string, providerTxID *string) error
	UpdatePaymentRequest(ctx context.Context, paymentID int64, requestID string, payURL *string) error
}

// Repository is everything the service layer needs from persistence.
type Repository interface {
	ProductRepository
	PromotionRepository
	OrderRepository
	UserRepository

	// WithTx runs fn in a transaction, committing when fn returns nil.
	WithTx(ctx context.Context, fn func(tx Tx) error) error
	Ping(ctx context.Context) error
}
