package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pos-service/internal/gateway"
	"pos-service/internal/models"
	"pos-service/internal/repository"
	"pos-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// CheckoutState tracks how far a checkout attempt got.
type CheckoutState string

const (
	StateStarted           CheckoutState = "started"
	StatePriced            CheckoutState = "priced"
	StatePromotionReserved CheckoutState = "promotion_reserved"
	StateOrderPersisted    CheckoutState = "order_persisted"
	StatePaymentInitiated  CheckoutState = "payment_initiated"
	StateCompleted         CheckoutState = "completed"
	StateFailed            CheckoutState = "failed"
)

// EventPublisher receives order lifecycle events after they are committed.
type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
	PublishOrderPaid(ctx context.Context, event *models.OrderPaidEvent) error
	PublishOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error
}

// GatewayResolver returns the gateway for a payment method.
type GatewayResolver interface {
	Get(method string) (gateway.Gateway, error)
}

type CheckoutItem struct {
	ProductID int64 `json:"productId" binding:"required,gt=0"`
	Quantity  int   `json:"quantity" binding:"required,gt=0"`
}

type CheckoutRequest struct {
	CustomerID     *int64         `json:"customerId"`
	UserID         *int64         `json:"userId"`
	PromoID        *int64         `json:"promoId"`
	PromoCode      string         `json:"promoCode"`
	PaymentMethod  string         `json:"paymentMethod" binding:"required,payment_method"`
	Items          []CheckoutItem `json:"orderItems" binding:"required,min=1,dive"`
	IdempotencyKey string         `json:"idempotencyKey"`
	ReturnURL      string         `json:"returnUrl"`
	ClientIP       string         `json:"-"`
}

// OrderDetail is an order with everything it owns.
type OrderDetail struct {
	Order   *models.Order      `json:"order"`
	Items   []models.OrderItem `json:"items"`
	Payment *models.Payment    `json:"payment,omitempty"`
}

type CheckoutResult struct {
	OrderDetail
	Totals   *Totals       `json:"totals,omitempty"`
	State    CheckoutState `json:"state"`
	PayURL   string        `json:"payUrl,omitempty"`
	Replayed bool          `json:"replayed"`
}

type CheckoutOptions struct {
	// PaymentTimeout bounds a single gateway create call.
	PaymentTimeout time.Duration
}

// CheckoutOrchestrator sequences pricing, promotion reservation, order
// persistence and payment initiation.
type CheckoutOrchestrator struct {
	repo      repository.Repository
	pricing   *PricingEngine
	validator *PromotionValidator
	gateways  GatewayResolver
	events    EventPublisher
	opts      CheckoutOptions
}

func NewCheckoutOrchestrator(
	repo repository.Repository,
	pricing *PricingEngine,
	validator *PromotionValidator,
	gateways GatewayResolver,
	events EventPublisher,
	opts CheckoutOptions,
) *CheckoutOrchestrator {
	if events == nil {
		events = NopPublisher{}
	}
	if opts.PaymentTimeout <= 0 {
		opts.PaymentTimeout = 15 * time.Second
	}
	return &CheckoutOrchestrator{
		repo:      repo,
		pricing:   pricing,
		validator: validator,
		gateways:  gateways,
		events:    events,
		opts:      opts,
	}
}

// Checkout turns a cart into a persisted order and starts its payment. When a
// gateway call fails the order is kept pending and the returned result is
// non-nil alongside a KindPaymentGateway error.
func (o *CheckoutOrchestrator) Checkout(ctx context.Context, req *CheckoutRequest) (*CheckoutResult, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutOrchestrator.Checkout",
		attribute.String("payment.method", req.PaymentMethod),
		attribute.Int("items", len(req.Items)))
	defer span.End()

	start := time.Now()
	util.CheckoutsStartedTotal.Inc()
	logger := util.LoggerFromContext(ctx)

	result, err := o.checkout(ctx, req)
	util.CheckoutLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		util.CheckoutsFailedTotal.WithLabelValues(string(KindOf(err))).Inc()
		state := StateFailed
		if result != nil {
			state = result.State
		}
		logger.Warn("Checkout failed",
			zap.String("state", string(state)),
			zap.String("payment_method", req.PaymentMethod),
			zap.Error(err))
		return result, util.RecordSpanError(span, err)
	}
	if !result.Replayed {
		util.CheckoutsCompletedTotal.WithLabelValues(req.PaymentMethod).Inc()
	}
	return result, nil
}

func (o *CheckoutOrchestrator) checkout(ctx context.Context, req *CheckoutRequest) (*CheckoutResult, error) {
	logger := util.LoggerFromContext(ctx)

	if err := validateCheckoutRequest(req); err != nil {
		return nil, err
	}

	if req.IdempotencyKey != "" {
		existing, err := o.repo.GetOrderByIdempotencyKey(ctx, req.IdempotencyKey)
		if err == nil {
			logger.Info("Duplicate checkout request detected",
				zap.String("idempotency_key", req.IdempotencyKey),
				zap.Int64("order_id", existing.ID))
			return o.replay(ctx, existing)
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, internalError("failed to check idempotency", err)
		}
	}

	lines, err := o.buildCartLines(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	promo, err := o.resolvePromotion(ctx, req)
	if err != nil {
		return nil, err
	}

	totals, err := o.pricing.ComputeTotals(lines, promo)
	if err != nil {
		return nil, err
	}
	if totals.Promotion.Code == PromotionRejected {
		details := map[string]interface{}{"code": promo.Code}
		if totals.Promotion.Shortfall != nil {
			details["shortfall"] = *totals.Promotion.Shortfall
		}
		util.PromotionsRejectedTotal.WithLabelValues(totals.Promotion.Reason).Inc()
		return nil, promotionRejected(totals.Promotion.Reason, details)
	}

	var gw gateway.Gateway
	if models.IsGatewayMethod(req.PaymentMethod) {
		if gw, err = o.resolveGateway(req.PaymentMethod); err != nil {
			return nil, err
		}
	}

	order := &models.Order{
		CustomerID:     req.CustomerID,
		UserID:         req.UserID,
		Status:         models.OrderStatusPending,
		PaymentMethod:  req.PaymentMethod,
		Subtotal:       totals.Subtotal,
		DiscountAmount: totals.DiscountAmount,
		TotalAmount:    totals.Total,
	}
	if promo != nil {
		order.PromoID = &promo.ID
	}
	if req.IdempotencyKey != "" {
		key := req.IdempotencyKey
		order.IdempotencyKey = &key
	}

	state := StatePriced
	var items []models.OrderItem
	var payment *models.Payment

	err = o.repo.WithTx(ctx, func(tx repository.Tx) error {
		if promo != nil {
			if err := tx.ReservePromotionUsage(ctx, promo.ID); err != nil {
				return err
			}
			state = StatePromotionReserved
		}

		if err := tx.CreateOrder(ctx, order); err != nil {
			return err
		}

		items = make([]models.OrderItem, 0, len(lines))
		for _, line := range lines {
			if err := tx.DecrementStock(ctx, line.ProductID, line.Quantity); err != nil {
				if errors.Is(err, repository.ErrInsufficientStock) {
					return &Error{Kind: KindInsufficientStock, Reason: "insufficient stock", Err: err,
						Details: map[string]interface{}{"productId": line.ProductID, "requested": line.Quantity}}
				}
				return err
			}

			item := &models.OrderItem{
				OrderID:   order.ID,
				ProductID: line.ProductID,
				Quantity:  line.Quantity,
				Price:     line.Price,
				Subtotal:  line.Subtotal(),
			}
			if err := tx.CreateOrderItem(ctx, item); err != nil {
				return err
			}
			items = append(items, *item)

			orderID := order.ID
			if err := tx.CreateInventoryTransaction(ctx, &models.InventoryTransaction{
				ProductID: line.ProductID,
				Quantity:  -line.Quantity,
				Type:      models.InventoryTypeSale,
				OrderID:   &orderID,
				Note:      fmt.Sprintf("order #%d", order.ID),
				UserID:    req.UserID,
			}); err != nil {
				return err
			}
		}

		payment = &models.Payment{
			OrderID:   order.ID,
			Amount:    order.TotalAmount,
			Method:    req.PaymentMethod,
			Status:    models.PaymentStatusPending,
			RequestID: uuid.New().String(),
		}
		return tx.CreatePayment(ctx, payment)
	})
	if err != nil {
		if state == StatePromotionReserved {
			util.CompensationsTotal.WithLabelValues("release_promotion").Inc()
			logger.Warn("Checkout rolled back, promotion usage released",
				zap.Int64("promo_id", promo.ID),
				zap.Error(err))
		}
		if order.IdempotencyKey != nil && errors.Is(err, repository.ErrDuplicate) {
			if existing, gerr := o.repo.GetOrderByIdempotencyKey(ctx, *order.IdempotencyKey); gerr == nil {
				return o.replay(ctx, existing)
			}
		}
		return nil, fromRepository("failed to persist order", err)
	}

	result := &CheckoutResult{
		OrderDetail: OrderDetail{Order: order, Items: items, Payment: payment},
		Totals:      totals,
		State:       StateOrderPersisted,
	}
	logger.Info("Order created",
		zap.Int64("order_id", order.ID),
		zap.String("total", order.TotalAmount.String()),
		zap.String("payment_method", order.PaymentMethod))

	o.publish(ctx, models.EventTypeOrderCreated, o.events.PublishOrderCreated(ctx, &models.OrderCreatedEvent{
		BaseEvent:      models.NewBaseEvent(models.EventTypeOrderCreated),
		OrderID:        order.ID,
		UserID:         order.UserID,
		PromoID:        order.PromoID,
		PaymentMethod:  order.PaymentMethod,
		DiscountAmount: order.DiscountAmount,
		TotalAmount:    order.TotalAmount,
		Items:          models.ItemsToEventData(items),
	}))

	if gw == nil {
		if err := o.settleSync(ctx, result); err != nil {
			return result, err
		}
		return result, nil
	}

	resp, err := o.startGatewayPayment(ctx, gw, order, payment, req.ReturnURL, req.ClientIP)
	if err != nil {
		return result, err
	}
	result.PayURL = resp.PayURL
	result.State = StatePaymentInitiated
	return result, nil
}

func validateCheckoutRequest(req *CheckoutRequest) error {
	if len(req.Items) == 0 {
		return ErrEmptyCart
	}
	if !models.IsPaymentMethod(req.PaymentMethod) {
		return validationError("unsupported payment method %q", req.PaymentMethod)
	}
	for i, it := range req.Items {
		if it.Quantity <= 0 || it.ProductID <= 0 {
			return &Error{Kind: KindValidation, Reason: ErrInvalidLine.Reason,
				Details: map[string]interface{}{"line": i}}
		}
	}
	return nil
}

// buildCartLines snapshots live catalog prices. Deleted products cannot be sold.
func (o *CheckoutOrchestrator) buildCartLines(ctx context.Context, items []CheckoutItem) ([]models.CartLine, error) {
	ids := make([]int64, 0, len(items))
	seen := make(map[int64]bool, len(items))
	for _, it := range items {
		if !seen[it.ProductID] {
			seen[it.ProductID] = true
			ids = append(ids, it.ProductID)
		}
	}

	products, err := o.repo.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, internalError("failed to load products", err)
	}
	byID := make(map[int64]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	lines := make([]models.CartLine, 0, len(items))
	for _, it := range items {
		p, ok := byID[it.ProductID]
		if !ok || p.IsDeleted {
			return nil, notFoundError("product", it.ProductID)
		}
		lines = append(lines, models.CartLine{ProductID: p.ID, Quantity: it.Quantity, Price: p.Price})
	}
	return lines, nil
}

func (o *CheckoutOrchestrator) resolvePromotion(ctx context.Context, req *CheckoutRequest) (*models.Promotion, error) {
	switch {
	case req.PromoID != nil:
		promo, err := o.repo.GetPromotionByID(ctx, *req.PromoID)
		if errors.Is(err, repository.ErrNotFound) {
			util.PromotionsRejectedTotal.WithLabelValues(ReasonCodeNotFound).Inc()
			return nil, promotionRejected(ReasonCodeNotFound, map[string]interface{}{"promoId": *req.PromoID})
		}
		if err != nil {
			return nil, internalError("failed to load promotion", err)
		}
		return promo, nil
	case req.PromoCode != "":
		promo, err := o.validator.Lookup(ctx, req.PromoCode)
		if err != nil {
			return nil, err
		}
		if promo == nil {
			util.PromotionsRejectedTotal.WithLabelValues(ReasonCodeNotFound).Inc()
			return nil, promotionRejected(ReasonCodeNotFound, map[string]interface{}{"code": req.PromoCode})
		}
		return promo, nil
	}
	return nil, nil
}

func (o *CheckoutOrchestrator) resolveGateway(method string) (gateway.Gateway, error) {
	if o.gateways == nil {
		return nil, newError(KindPaymentGateway, "payment gateway not configured", gateway.ErrUnsupportedMethod)
	}
	gw, err := o.gateways.Get(method)
	if err != nil {
		return nil, newError(KindPaymentGateway, "payment gateway not configured", err)
	}
	return gw, nil
}

// settleSync confirms an in-store payment in a second short transaction.
func (o *CheckoutOrchestrator) settleSync(ctx context.Context, result *CheckoutResult) error {
	order, payment := result.Order, result.Payment
	err := o.repo.WithTx(ctx, func(tx repository.Tx) error {
		if err := tx.TransitionPaymentStatus(ctx, payment.ID, models.PaymentStatusPending, models.PaymentStatusSuccess, nil); err != nil {
			return err
		}
		return tx.TransitionOrderStatus(ctx, order.ID, models.OrderStatusPending, models.OrderStatusPaid)
	})
	if err != nil {
		return fromRepository("failed to settle payment", err)
	}

	order.Status = models.OrderStatusPaid
	payment.Status = models.PaymentStatusSuccess
	result.State = StateCompleted
	util.OrdersPaidTotal.Inc()

	o.publishPaid(ctx, order, payment)
	return nil
}

// startGatewayPayment calls the provider outside any transaction, then
// records the redirect on the still-pending payment.
func (o *CheckoutOrchestrator) startGatewayPayment(
	ctx context.Context,
	gw gateway.Gateway,
	order *models.Order,
	payment *models.Payment,
	returnURL, clientIP string,
) (*gateway.PaymentResponse, error) {
	logger := util.LoggerFromContext(ctx)

	callCtx, cancel := context.WithTimeout(ctx, o.opts.PaymentTimeout)
	defer cancel()

	start := time.Now()
	resp, err := gw.CreatePayment(callCtx, gateway.PaymentRequest{
		OrderID:   order.ID,
		RequestID: payment.RequestID,
		Amount:    payment.Amount,
		OrderInfo: fmt.Sprintf("Thanh toan don hang #%d", order.ID),
		ReturnURL: returnURL,
		ClientIP:  clientIP,
	})
	util.GatewayLatency.WithLabelValues(gw.Method()).Observe(time.Since(start).Seconds())
	if err != nil {
		util.GatewayRequestsTotal.WithLabelValues(gw.Method(), "error").Inc()
		logger.Error("Payment gateway request failed, order left pending",
			zap.Int64("order_id", order.ID),
			zap.String("method", gw.Method()),
			zap.Error(err))
		return nil, &Error{Kind: KindPaymentGateway, Reason: "payment gateway request failed", Err: err,
			Details: map[string]interface{}{"orderId": order.ID}}
	}
	util.GatewayRequestsTotal.WithLabelValues(gw.Method(), "ok").Inc()

	payURL := resp.PayURL
	err = o.repo.WithTx(ctx, func(tx repository.Tx) error {
		return tx.UpdatePaymentRequest(ctx, payment.ID, payment.RequestID, &payURL)
	})
	if err != nil {
		return nil, fromRepository("failed to record payment request", err)
	}
	payment.PayURL = &payURL

	logger.Info("Payment initiated",
		zap.Int64("order_id", order.ID),
		zap.String("method", gw.Method()),
		zap.String("request_id", payment.RequestID))
	return resp, nil
}

func (o *CheckoutOrchestrator) replay(ctx context.Context, order *models.Order) (*CheckoutResult, error) {
	detail, err := loadOrderDetail(ctx, o.repo, order)
	if err != nil {
		return nil, err
	}

	result := &CheckoutResult{OrderDetail: *detail, Replayed: true}
	switch {
	case order.Status == models.OrderStatusPaid:
		result.State = StateCompleted
	case order.Status == models.OrderStatusCancelled:
		result.State = StateFailed
	case detail.Payment != nil && detail.Payment.PayURL != nil:
		result.State = StatePaymentInitiated
		result.PayURL = *detail.Payment.PayURL
	default:
		result.State = StateOrderPersisted
	}
	return result, nil
}

func loadOrderDetail(ctx context.Context, repo repository.OrderRepository, order *models.Order) (*OrderDetail, error) {
	items, err := repo.GetOrderItemsByOrderID(ctx, order.ID)
	if err != nil {
		return nil, internalError("failed to load order items", err)
	}
	payment, err := repo.GetPaymentByOrderID(ctx, order.ID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, internalError("failed to load payment", err)
	}
	return &OrderDetail{Order: order, Items: items, Payment: payment}, nil
}

// InitiateGatewayPayment issues a fresh redirect for a pending gateway order.
// The previous request id stops being accepted by callbacks.
func (o *CheckoutOrchestrator) InitiateGatewayPayment(ctx context.Context, orderID int64, method string, amount *decimal.Decimal, returnURL, clientIP string) (*gateway.PaymentResponse, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutOrchestrator.InitiateGatewayPayment",
		attribute.Int64("order.id", orderID),
		attribute.String("payment.method", method))
	defer span.End()

	if !models.IsGatewayMethod(method) {
		return nil, validationError("payment method %q does not use a gateway", method)
	}

	order, err := o.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, fromRepository("order not found", err)
	}
	if order.Status != models.OrderStatusPending {
		return nil, &Error{Kind: KindConflict, Reason: "order is not pending",
			Details: map[string]interface{}{"status": order.Status}}
	}
	payment, err := o.repo.GetPaymentByOrderID(ctx, orderID)
	if err != nil {
		return nil, fromRepository("payment not found", err)
	}
	if payment.Method != method {
		return nil, validationError("order %d is paid with %s", orderID, payment.Method)
	}
	if amount != nil && !amount.Equal(payment.Amount) {
		return nil, &Error{Kind: KindValidation, Reason: "amount does not match order total",
			Details: map[string]interface{}{"expected": payment.Amount}}
	}

	gw, err := o.resolveGateway(method)
	if err != nil {
		return nil, util.RecordSpanError(span, err)
	}

	// the new request id must be stored before the provider can call back with it
	payment.RequestID = uuid.New().String()
	payment.PayURL = nil
	err = o.repo.WithTx(ctx, func(tx repository.Tx) error {
		return tx.UpdatePaymentRequest(ctx, payment.ID, payment.RequestID, nil)
	})
	if err != nil {
		return nil, util.RecordSpanError(span, fromRepository("failed to record payment request", err))
	}

	resp, err := o.startGatewayPayment(ctx, gw, order, payment, returnURL, clientIP)
	if err != nil {
		return nil, util.RecordSpanError(span, err)
	}
	return resp, nil
}

func (o *CheckoutOrchestrator) publish(ctx context.Context, event string, err error) {
	if err != nil {
		util.LoggerFromContext(ctx).Error("Failed to publish event",
			zap.String("event", event),
			zap.Error(err))
	}
}

func (o *CheckoutOrchestrator) publishPaid(ctx context.Context, order *models.Order, payment *models.Payment) {
	event := &models.OrderPaidEvent{
		BaseEvent: models.NewBaseEvent(models.EventTypeOrderPaid),
		OrderID:   order.ID,
		PaymentID: payment.ID,
		Method:    payment.Method,
		Amount:    payment.Amount,
	}
	if payment.ProviderTxID != nil {
		event.TxID = *payment.ProviderTxID
	}
	o.publish(ctx, models.EventTypeOrderPaid, o.events.PublishOrderPaid(ctx, event))
}

// NopPublisher discards events.
type NopPublisher struct{}

func (NopPublisher) PublishOrderCreated(context.Context, *models.OrderCreatedEvent) error {
	return nil
}

func (NopPublisher) PublishOrderPaid(context.Context, *models.OrderPaidEvent) error {
	return nil
}

func (NopPublisher) PublishOrderCancelled(context.Context, *models.OrderCancelledEvent) error {
	return nil
}
