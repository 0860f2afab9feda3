package store

import (
	"context"
	"fmt"
	"time"

	"pos-service/internal/models"
	"pos-service/internal/repository"

	"github.com/jmoiron/sqlx"
)

const orderColumns = `id, customer_id, user_id, promo_id, status, payment_method, subtotal,
	discount_amount, total_amount, idempotency_key, order_date, updated_at`

const paymentColumns = `id, order_id, amount, method, status, request_id, provider_tx_id, pay_url,
	payment_date, updated_at`

// CreateOrder creates a new order
func (s *queries) CreateOrder(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (customer_id, user_id, promo_id, status, payment_method, subtotal,
			discount_amount, total_amount, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, order_date, updated_at`

	err := sqlx.GetContext(ctx, s.q, order, query,
		order.CustomerID, order.UserID, order.PromoID, order.Status, order.PaymentMethod,
		order.Subtotal, order.DiscountAmount, order.TotalAmount, order.IdempotencyKey)
	if isUniqueViolation(err) {
		return repository.ErrDuplicate
	}
	return err
}

// GetOrderByID retrieves an order by ID
func (s *queries) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := sqlx.GetContext(ctx, s.q, &order, "SELECT "+orderColumns+" FROM orders WHERE id = $1", id)
	if err != nil {
		return nil, notFound(err)
	}
	return &order, nil
}

// GetOrderByIdempotencyKey retrieves an order by idempotency key
func (s *queries) GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	var order models.Order
	err := sqlx.GetContext(ctx, s.q, &order, "SELECT "+orderColumns+" FROM orders WHERE idempotency_key = $1", key)
	if err != nil {
		return nil, notFound(err)
	}
	return &order, nil
}

func (s *queries) ListOrders(ctx context.Context, filter models.OrderFilter) ([]models.Order, int, error) {
	page := filter.Page.Normalize()

	clause := " WHERE 1=1"
	var args []interface{}
	if filter.Status != "" {
		args = append(args, filter.Status)
		clause += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.UserID != nil {
		args = append(args, *filter.UserID)
		clause += fmt.Sprintf(" AND user_id = $%d", len(args))
	}

	var total int
	if err := sqlx.GetContext(ctx, s.q, &total, "SELECT COUNT(*) FROM orders"+clause, args...); err != nil {
		return nil, 0, err
	}

	args = append(args, page.PageSize, page.Offset())
	query := fmt.Sprintf("SELECT %s FROM orders%s ORDER BY order_date DESC, id DESC LIMIT $%d OFFSET $%d",
		orderColumns, clause, len(args)-1, len(args))

	orders := []models.Order{}
	if err := sqlx.SelectContext(ctx, s.q, &orders, query, args...); err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// ListPendingOrdersBefore returns the oldest pending orders placed before the cutoff.
func (s *queries) ListPendingOrdersBefore(ctx context.Context, before time.Time, limit int) ([]models.Order, error) {
	orders := []models.Order{}
	err := sqlx.SelectContext(ctx, s.q, &orders,
		"SELECT "+orderColumns+" FROM orders WHERE status = $1 AND order_date < $2 ORDER BY order_date LIMIT $3",
		models.OrderStatusPending, before, limit)
	return orders, err
}

// TransitionOrderStatus moves an order from one status to another, or reports a conflict.
func (s *queries) TransitionOrderStatus(ctx context.Context, orderID int64, from, to string) error {
	res, err := s.q.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3",
		to, orderID, from)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	return affected(res, repository.ErrStatusConflict)
}

// CreateOrderItem creates a new order item
func (s *queries) CreateOrderItem(ctx context.Context, item *models.OrderItem) error {
	query := `
		INSERT INTO order_items (order_id, product_id, quantity, price, subtotal)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	return sqlx.GetContext(ctx, s.q, &item.ID, query,
		item.OrderID, item.ProductID, item.Quantity, item.Price, item.Subtotal)
}

// GetOrderItemsByOrderID retrieves all items for an order
func (s *queries) GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	items := []models.OrderItem{}
	err := sqlx.SelectContext(ctx, s.q, &items,
		"SELECT id, order_id, product_id, quantity, price, subtotal FROM order_items WHERE order_id = $1 ORDER BY id",
		orderID)
	return items, err
}

// CreatePayment creates a new payment record
func (s *queries) CreatePayment(ctx context.Context, payment *models.Payment) error {
	query := `
		INSERT INTO payments (order_id, amount, method, status, request_id, provider_tx_id, pay_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, payment_date, updated_at`

	err := sqlx.GetContext(ctx, s.q, payment, query,
		payment.OrderID, payment.Amount, payment.Method, payment.Status, payment.RequestID,
		payment.ProviderTxID, payment.PayURL)
	if isUniqueViolation(err) {
		return repository.ErrDuplicate
	}
	return err
}

// GetPaymentByOrderID retrieves payment for an order
func (s *queries) GetPaymentByOrderID(ctx context.Context, orderID int64) (*models.Payment, error) {
	var payment models.Payment
	err := sqlx.GetContext(ctx, s.q, &payment,
		"SELECT "+paymentColumns+" FROM payments WHERE order_id = $1", orderID)
	if err != nil {
		return nil, notFound(err)
	}
	return &payment, nil
}

// GetPaymentByRequestID resolves a gateway reference back to its payment.
func (s *queries) GetPaymentByRequestID(ctx context.Context, requestID string) (*models.Payment, error) {
	var payment models.Payment
	err := sqlx.GetContext(ctx, s.q, &payment,
		"SELECT "+paymentColumns+" FROM payments WHERE request_id = $1", requestID)
	if err != nil {
		return nil, notFound(err)
	}
	return &payment, nil
}

// TransitionPaymentStatus moves a payment between statuses, setting the provider id when given.
func (s *queries) TransitionPaymentStatus(ctx context.Context, paymentID int64, from, to string, providerTxID *string) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE payments SET status = $1, provider_tx_id = COALESCE($2, provider_tx_id),
			payment_date = NOW(), updated_at = NOW()
		WHERE id = $3 AND status = $4`,
		to, providerTxID, paymentID, from)
	if err != nil {
		return fmt.Errorf("failed to update payment status: %w", err)
	}
	return affected(res, repository.ErrStatusConflict)
}

// UpdatePaymentRequest records a new gateway attempt on a pending payment.
func (s *queries) UpdatePaymentRequest(ctx context.Context, paymentID int64, requestID string, payURL *string) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE payments SET request_id = $1, pay_url = $2, updated_at = NOW()
		WHERE id = $3 AND status = $4`,
		requestID, payURL, paymentID, models.PaymentStatusPending)
	if err != nil {
		return fmt.Errorf("failed to update payment request: %w", err)
	}
	return affected(res, repository.ErrStatusConflict)
}

func (s *queries) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	err := sqlx.GetContext(ctx, s.q, &user, `
		SELECT id, username, password_hash, full_name, role, is_active, created_at
		FROM users WHERE username = $1`, username)
	if err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}
