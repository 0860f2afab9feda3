package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"pos-service/internal/models"
	"pos-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

func orderKey(orderID int64) string {
	return fmt.Sprintf("order-%d", orderID)
}

// PublishOrderCreated publishes OrderCreated event
func (ep *EventPublisher) PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishOrderPaid publishes OrderPaid event
func (ep *EventPublisher) PublishOrderPaid(ctx context.Context, event *models.OrderPaidEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishOrderCancelled publishes OrderCancelled event
func (ep *EventPublisher) PublishOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishPaymentResult relays a gateway result. Success selects the event type.
func (ep *EventPublisher) PublishPaymentResult(ctx context.Context, event *models.PaymentResultEvent) error {
	return ep.producer.PublishEvent(ctx, "payment-"+event.RequestID, event)
}

// EventHandler handles incoming events
type EventHandler struct {
	onPaymentResult func(context.Context, *models.PaymentResultEvent, bool) error
	onStockChanged  func(context.Context, []int64)
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// OnPaymentResult registers a handler for PAYMENT_SUCCESS / PAYMENT_FAILED events.
func (eh *EventHandler) OnPaymentResult(handler func(ctx context.Context, event *models.PaymentResultEvent, success bool) error) {
	eh.onPaymentResult = handler
}

// OnStockChanged registers a handler called with the products touched by an
// ORDER_CREATED or ORDER_CANCELLED event.
func (eh *EventHandler) OnStockChanged(handler func(ctx context.Context, productIDs []int64)) {
	eh.onStockChanged = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		// poison message: log and let the consumer commit it
		util.GetLogger().Error("Dropping undecodable message", zap.ByteString("key", msg.Key), zap.Error(err))
		return nil
	}

	logger := util.GetLogger().With(
		zap.String("event_type", baseEvent.EventType),
		zap.String("event_id", baseEvent.EventID))
	ctx = util.WithLogger(ctx, logger)
	logger.Debug("Handling event")

	switch baseEvent.EventType {
	case models.EventTypePaymentSuccess, models.EventTypePaymentFailed:
		if eh.onPaymentResult == nil {
			return nil
		}
		var event models.PaymentResultEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			return fmt.Errorf("failed to unmarshal %s event: %w", baseEvent.EventType, err)
		}
		return eh.onPaymentResult(ctx, &event, baseEvent.EventType == models.EventTypePaymentSuccess)

	case models.EventTypeOrderCreated:
		var event models.OrderCreatedEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			return fmt.Errorf("failed to unmarshal OrderCreated event: %w", err)
		}
		eh.stockChanged(ctx, event.Items)

	case models.EventTypeOrderCancelled:
		var event models.OrderCancelledEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			return fmt.Errorf("failed to unmarshal OrderCancelled event: %w", err)
		}
		eh.stockChanged(ctx, event.Items)

	case models.EventTypeOrderPaid:
		// nothing to do locally

	default:
		logger.Warn("Unhandled event type")
	}

	return nil
}

func (eh *EventHandler) stockChanged(ctx context.Context, items []models.OrderItemData) {
	if eh.onStockChanged == nil || len(items) == 0 {
		return
	}
	ids := make([]int64, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	eh.onStockChanged(ctx, ids)
}
