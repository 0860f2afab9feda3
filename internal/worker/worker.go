package worker

import (
	"context"

	"pos-service/internal/broker"
	"pos-service/internal/gateway"
	"pos-service/internal/models"
	"pos-service/internal/service"
	"pos-service/internal/util"

	"go.uber.org/zap"
)

// PaymentReconciler applies a verified gateway result.
type PaymentReconciler interface {
	ReconcilePayment(ctx context.Context, cb *gateway.CallbackResult) (*service.ReconcileResult, error)
}

// CacheInvalidator drops cached catalog entries whose stock moved.
type CacheInvalidator interface {
	InvalidateProducts(ctx context.Context, ids ...int64)
}

// OrderWorker consumes the order events topic.
type OrderWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
}

// NewOrderWorker creates a new order worker. catalog may be nil.
func NewOrderWorker(consumer *broker.Consumer, reconciler PaymentReconciler, catalog CacheInvalidator) *OrderWorker {
	return &OrderWorker{
		consumer:     consumer,
		eventHandler: newEventHandler(reconciler, catalog),
	}
}

func newEventHandler(reconciler PaymentReconciler, catalog CacheInvalidator) *broker.EventHandler {
	eventHandler := broker.NewEventHandler()
	eventHandler.OnPaymentResult(func(ctx context.Context, event *models.PaymentResultEvent, success bool) error {
		return handlePaymentResult(ctx, reconciler, event, success)
	})
	if catalog != nil {
		eventHandler.OnStockChanged(func(ctx context.Context, ids []int64) {
			catalog.InvalidateProducts(ctx, ids...)
		})
	}
	return eventHandler
}

// handlePaymentResult returns an error only for failures worth retrying; the
// consumer then retries the same message until it applies.
func handlePaymentResult(ctx context.Context, reconciler PaymentReconciler, event *models.PaymentResultEvent, success bool) error {
	logger := util.LoggerFromContext(ctx)

	res, err := reconciler.ReconcilePayment(ctx, &gateway.CallbackResult{
		Method:    event.Method,
		RequestID: event.RequestID,
		TxID:      event.TxID,
		Amount:    event.Amount,
		Success:   success,
		Message:   event.Message,
	})
	if err != nil {
		if service.KindOf(err) == service.KindInternal {
			return err
		}
		logger.Warn("Relayed payment result rejected",
			zap.String("request_id", event.RequestID),
			zap.Error(err))
		return nil
	}

	logger.Info("Relayed payment result applied",
		zap.String("request_id", event.RequestID),
		zap.Int64("order_id", res.OrderID),
		zap.String("outcome", string(res.Outcome)))
	return nil
}

// Start starts the worker
func (w *OrderWorker) Start(ctx context.Context) error {
	util.GetLogger().Info("Starting order worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *OrderWorker) Stop() error {
	util.GetLogger().Info("Stopping order worker")
	return w.consumer.Close()
}
