package service

import (
	"context"
	"errors"
	"fmt"

	"pos-service/internal/gateway"
	"pos-service/internal/models"
	"pos-service/internal/repository"
	"pos-service/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Cancellation reasons. They double as metric labels.
const (
	CancelReasonManual        = "manual"
	CancelReasonTimeout       = "timeout"
	CancelReasonPaymentFailed = "payment_failed"
)

type ReconcileOutcome string

const (
	ReconcileApplied   ReconcileOutcome = "applied"
	ReconcileDuplicate ReconcileOutcome = "duplicate"
	// ReconcileLateSuccess is a success callback for an order that was already cancelled.
	ReconcileLateSuccess ReconcileOutcome = "late_success"
)

type ReconcileResult struct {
	Outcome       ReconcileOutcome `json:"outcome"`
	OrderID       int64            `json:"orderId"`
	OrderStatus   string           `json:"orderStatus"`
	PaymentStatus string           `json:"paymentStatus"`
}

// cancellation records what cancelInTx undid, for logging after commit.
type cancellation struct {
	order         *models.Order
	items         []models.OrderItem
	promoReleased bool
	paymentFailed bool
}

// ReconcilePayment applies a verified gateway callback. Replays of an already
// settled payment are acknowledged without side effects.
func (o *CheckoutOrchestrator) ReconcilePayment(ctx context.Context, cb *gateway.CallbackResult) (*ReconcileResult, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutOrchestrator.ReconcilePayment",
		attribute.String("payment.method", cb.Method),
		attribute.String("payment.request_id", cb.RequestID),
		attribute.Bool("payment.success", cb.Success))
	defer span.End()

	logger := util.LoggerFromContext(ctx).With(
		zap.String("method", cb.Method),
		zap.String("request_id", cb.RequestID),
		zap.String("tx_id", cb.TxID))

	payment, err := o.repo.GetPaymentByRequestID(ctx, cb.RequestID)
	if err != nil {
		util.PaymentCallbacksTotal.WithLabelValues(cb.Method, "unknown").Inc()
		return nil, util.RecordSpanError(span, fromRepository("payment not found", err))
	}
	if payment.Method != cb.Method {
		util.PaymentCallbacksTotal.WithLabelValues(cb.Method, "rejected").Inc()
		return nil, validationError("callback method %s does not match payment method %s", cb.Method, payment.Method)
	}
	expected := gateway.SettlementAmount(payment.Method, payment.Amount)
	if !cb.Amount.Equal(expected) {
		util.PaymentCallbacksTotal.WithLabelValues(cb.Method, "rejected").Inc()
		logger.Warn("Callback amount mismatch",
			zap.String("expected", expected.String()),
			zap.String("got", cb.Amount.String()))
		return nil, &Error{Kind: KindValidation, Reason: "amount mismatch",
			Details: map[string]interface{}{"expected": expected, "got": cb.Amount}}
	}

	result := &ReconcileResult{OrderID: payment.OrderID}
	var cancelled *cancellation
	var paidOrder *models.Order
	var paidPayment *models.Payment

	err = o.repo.WithTx(ctx, func(tx repository.Tx) error {
		p, err := tx.GetPaymentByRequestID(ctx, cb.RequestID)
		if err != nil {
			return err
		}
		order, err := tx.GetOrderByID(ctx, p.OrderID)
		if err != nil {
			return err
		}

		if p.Status != models.PaymentStatusPending {
			result.Outcome = ReconcileDuplicate
			if cb.Success && p.Status == models.PaymentStatusFailed {
				result.Outcome = ReconcileLateSuccess
			}
			result.OrderStatus, result.PaymentStatus = order.Status, p.Status
			return nil
		}

		if cb.Success {
			var txID *string
			if cb.TxID != "" {
				id := cb.TxID
				txID = &id
			}
			if err := tx.TransitionPaymentStatus(ctx, p.ID, models.PaymentStatusPending, models.PaymentStatusSuccess, txID); err != nil {
				return err
			}
			if err := tx.TransitionOrderStatus(ctx, order.ID, models.OrderStatusPending, models.OrderStatusPaid); err != nil {
				return err
			}
			p.Status, p.ProviderTxID = models.PaymentStatusSuccess, txID
			order.Status = models.OrderStatusPaid
			paidOrder, paidPayment = order, p
		} else {
			c, err := o.cancelInTx(ctx, tx, order, p, CancelReasonPaymentFailed)
			if err != nil {
				return err
			}
			cancelled = c
		}

		result.Outcome = ReconcileApplied
		result.OrderStatus, result.PaymentStatus = order.Status, p.Status
		return nil
	})
	if err != nil {
		util.PaymentCallbacksTotal.WithLabelValues(cb.Method, "error").Inc()
		return nil, util.RecordSpanError(span, fromRepository("failed to reconcile payment", err))
	}

	util.PaymentCallbacksTotal.WithLabelValues(cb.Method, string(result.Outcome)).Inc()

	switch {
	case result.Outcome == ReconcileDuplicate:
		logger.Info("Duplicate payment callback ignored", zap.Int64("order_id", result.OrderID))
	case result.Outcome == ReconcileLateSuccess:
		logger.Warn("Success callback for a cancelled order, manual refund required",
			zap.Int64("order_id", result.OrderID))
	case paidOrder != nil:
		util.OrdersPaidTotal.Inc()
		logger.Info("Order paid", zap.Int64("order_id", paidOrder.ID))
		o.publishPaid(ctx, paidOrder, paidPayment)
	case cancelled != nil:
		o.afterCancel(ctx, cancelled, CancelReasonPaymentFailed)
	}

	return result, nil
}

// CancelPendingOrder cancels a pending order and compensates its stock and
// promotion usage. Orders in any other status yield a KindConflict error.
func (o *CheckoutOrchestrator) CancelPendingOrder(ctx context.Context, orderID int64, reason string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutOrchestrator.CancelPendingOrder",
		attribute.Int64("order.id", orderID),
		attribute.String("reason", reason))
	defer span.End()

	var c *cancellation
	err := o.repo.WithTx(ctx, func(tx repository.Tx) error {
		order, err := tx.GetOrderByID(ctx, orderID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return notFoundError("order", orderID)
			}
			return err
		}
		if order.Status != models.OrderStatusPending {
			return &Error{Kind: KindConflict, Reason: "order is not pending",
				Details: map[string]interface{}{"status": order.Status}}
		}
		c, err = o.cancelInTx(ctx, tx, order, nil, reason)
		return err
	})
	if err != nil {
		return nil, util.RecordSpanError(span, fromRepository("failed to cancel order", err))
	}

	o.afterCancel(ctx, c, reason)
	return c.order, nil
}

// cancelInTx moves order to cancelled and applies every compensation inside tx.
func (o *CheckoutOrchestrator) cancelInTx(ctx context.Context, tx repository.Tx, order *models.Order, payment *models.Payment, reason string) (*cancellation, error) {
	logger := util.LoggerFromContext(ctx)

	if err := tx.TransitionOrderStatus(ctx, order.ID, models.OrderStatusPending, models.OrderStatusCancelled); err != nil {
		return nil, err
	}
	order.Status = models.OrderStatusCancelled
	c := &cancellation{order: order}

	items, err := tx.GetOrderItemsByOrderID(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	c.items = items

	orderID := order.ID
	for _, item := range items {
		if err := tx.IncrementStock(ctx, item.ProductID, item.Quantity); err != nil {
			return nil, fmt.Errorf("restock product %d: %w", item.ProductID, err)
		}
		if err := tx.CreateInventoryTransaction(ctx, &models.InventoryTransaction{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Type:      models.InventoryTypeRestock,
			OrderID:   &orderID,
			Note:      fmt.Sprintf("order #%d cancelled: %s", order.ID, reason),
		}); err != nil {
			return nil, err
		}
	}

	if order.PromoID != nil {
		err := tx.ReleasePromotionUsage(ctx, *order.PromoID)
		switch {
		case err == nil:
			c.promoReleased = true
		case errors.Is(err, repository.ErrStatusConflict):
			logger.Warn("Promotion usage already at zero, nothing to release",
				zap.Int64("order_id", order.ID),
				zap.Int64("promo_id", *order.PromoID))
		default:
			return nil, err
		}
	}

	if payment == nil {
		payment, err = tx.GetPaymentByOrderID(ctx, order.ID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
	}
	if payment != nil && payment.Status == models.PaymentStatusPending {
		if err := tx.TransitionPaymentStatus(ctx, payment.ID, models.PaymentStatusPending, models.PaymentStatusFailed, nil); err != nil {
			return nil, err
		}
		payment.Status = models.PaymentStatusFailed
		c.paymentFailed = true
	}

	return c, nil
}

func (o *CheckoutOrchestrator) afterCancel(ctx context.Context, c *cancellation, reason string) {
	logger := util.LoggerFromContext(ctx)

	util.OrdersCancelledTotal.WithLabelValues(reason).Inc()
	for _, item := range c.items {
		util.CompensationsTotal.WithLabelValues("restock").Inc()
		logger.Warn("Compensation applied: restock",
			zap.Int64("order_id", c.order.ID),
			zap.Int64("product_id", item.ProductID),
			zap.Int("quantity", item.Quantity))
	}
	if c.promoReleased {
		util.CompensationsTotal.WithLabelValues("release_promotion").Inc()
		logger.Warn("Compensation applied: promotion usage released",
			zap.Int64("order_id", c.order.ID),
			zap.Int64("promo_id", *c.order.PromoID))
	}
	if c.paymentFailed {
		util.CompensationsTotal.WithLabelValues("fail_payment").Inc()
	}
	logger.Info("Order cancelled",
		zap.Int64("order_id", c.order.ID),
		zap.String("reason", reason))

	o.publish(ctx, models.EventTypeOrderCancelled, o.events.PublishOrderCancelled(ctx, &models.OrderCancelledEvent{
		BaseEvent: models.NewBaseEvent(models.EventTypeOrderCancelled),
		OrderID:   c.order.ID,
		Reason:    reason,
		Items:     models.ItemsToEventData(c.items),
	}))
}
