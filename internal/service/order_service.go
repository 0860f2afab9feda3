package service

import (
	"context"
	"errors"

	"pos-service/internal/gateway"
	"pos-service/internal/models"
	"pos-service/internal/repository"
	"pos-service/internal/util"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

// OrderService is the read side of orders plus the entry points that
// delegate to the checkout orchestrator.
type OrderService struct {
	repo         repository.Repository
	orchestrator *CheckoutOrchestrator
}

// NewOrderService creates a new order service
func NewOrderService(repo repository.Repository, orchestrator *CheckoutOrchestrator) *OrderService {
	return &OrderService{repo: repo, orchestrator: orchestrator}
}

// CreateOrder runs a checkout.
func (s *OrderService) CreateOrder(ctx context.Context, req *CheckoutRequest) (*CheckoutResult, error) {
	return s.orchestrator.Checkout(ctx, req)
}

// GetOrder retrieves an order with its items and payment.
func (s *OrderService) GetOrder(ctx context.Context, orderID int64) (*OrderDetail, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GetOrder", attribute.Int64("order.id", orderID))
	defer span.End()

	order, err := s.repo.GetOrderByID(ctx, orderID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFoundError("order", orderID)
	}
	if err != nil {
		return nil, util.RecordSpanError(span, internalError("failed to get order", err))
	}
	return loadOrderDetail(ctx, s.repo, order)
}

func (s *OrderService) ListOrders(ctx context.Context, filter models.OrderFilter) ([]models.Order, int, error) {
	if filter.Status != "" {
		switch filter.Status {
		case models.OrderStatusPending, models.OrderStatusPaid, models.OrderStatusCancelled:
		default:
			return nil, 0, validationError("unknown order status %q", filter.Status)
		}
	}
	orders, total, err := s.repo.ListOrders(ctx, filter)
	if err != nil {
		return nil, 0, internalError("failed to list orders", err)
	}
	return orders, total, nil
}

// CancelOrder cancels a pending order on behalf of a user.
func (s *OrderService) CancelOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	return s.orchestrator.CancelPendingOrder(ctx, orderID, CancelReasonManual)
}

// GetPayment returns the payment record of an order.
func (s *OrderService) GetPayment(ctx context.Context, orderID int64) (*models.Payment, error) {
	payment, err := s.repo.GetPaymentByOrderID(ctx, orderID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFoundError("payment", orderID)
	}
	if err != nil {
		return nil, internalError("failed to get payment", err)
	}
	return payment, nil
}

// CreateGatewayPayment issues a new redirect URL for a pending gateway order.
func (s *OrderService) CreateGatewayPayment(ctx context.Context, orderID int64, method string, amount *decimal.Decimal, returnURL, clientIP string) (*gateway.PaymentResponse, error) {
	return s.orchestrator.InitiateGatewayPayment(ctx, orderID, method, amount, returnURL, clientIP)
}

// HandleCallback applies a verified gateway callback.
func (s *OrderService) HandleCallback(ctx context.Context, cb *gateway.CallbackResult) (*ReconcileResult, error) {
	return s.orchestrator.ReconcilePayment(ctx, cb)
}
