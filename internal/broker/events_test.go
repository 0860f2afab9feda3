package broker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"pos-service/internal/models"
	"pos-service/internal/util"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func newTestPublisher() (*EventPublisher, *fakeWriter) {
	w := &fakeWriter{}
	return NewEventPublisher(&Producer{writer: w, logger: util.GetLogger()}), w
}

func TestPublishOrderEventsAreKeyedByOrder(t *testing.T) {
	pub, w := newTestPublisher()
	ctx := context.Background()

	require.NoError(t, pub.PublishOrderCreated(ctx, &models.OrderCreatedEvent{
		BaseEvent:   models.NewBaseEvent(models.EventTypeOrderCreated),
		OrderID:     42,
		TotalAmount: decimal.RequireFromString("90000"),
	}))
	require.NoError(t, pub.PublishOrderCancelled(ctx, &models.OrderCancelledEvent{
		BaseEvent: models.NewBaseEvent(models.EventTypeOrderCancelled),
		OrderID:   42,
		Reason:    "timeout",
	}))

	require.Len(t, w.msgs, 2)
	assert.Equal(t, "order-42", string(w.msgs[0].Key))
	assert.Equal(t, "order-42", string(w.msgs[1].Key))

	var decoded models.OrderCreatedEvent
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &decoded))
	assert.Equal(t, models.EventTypeOrderCreated, decoded.EventType)
	assert.True(t, decoded.TotalAmount.Equal(decimal.RequireFromString("90000")))
}

func TestPublishWrapsWriterError(t *testing.T) {
	pub, w := newTestPublisher()
	w.err = errors.New("broker down")

	err := pub.PublishOrderPaid(context.Background(), &models.OrderPaidEvent{OrderID: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
}

func message(t *testing.T, event interface{}) kafka.Message {
	t.Helper()
	b, err := json.Marshal(event)
	require.NoError(t, err)
	return kafka.Message{Value: b}
}

func TestHandleMessageRoutesPaymentResults(t *testing.T) {
	h := NewEventHandler()
	var got *models.PaymentResultEvent
	var success bool
	h.OnPaymentResult(func(_ context.Context, e *models.PaymentResultEvent, ok bool) error {
		got, success = e, ok
		return nil
	})
	ctx := context.Background()

	require.NoError(t, h.HandleMessage(ctx, message(t, &models.PaymentResultEvent{
		BaseEvent: models.NewBaseEvent(models.EventTypePaymentSuccess),
		Method:    models.PaymentMethodMoMo,
		RequestID: "req-1",
		Amount:    decimal.NewFromInt(150000),
	})))
	require.NotNil(t, got)
	assert.True(t, success)
	assert.Equal(t, "req-1", got.RequestID)

	require.NoError(t, h.HandleMessage(ctx, message(t, &models.PaymentResultEvent{
		BaseEvent: models.NewBaseEvent(models.EventTypePaymentFailed),
		RequestID: "req-2",
	})))
	assert.False(t, success)
	assert.Equal(t, "req-2", got.RequestID)

	h.OnPaymentResult(func(context.Context, *models.PaymentResultEvent, bool) error {
		return errors.New("db down")
	})
	assert.Error(t, h.HandleMessage(ctx, message(t, &models.PaymentResultEvent{
		BaseEvent: models.NewBaseEvent(models.EventTypePaymentSuccess),
	})))
}

func TestHandleMessageReportsStockChanges(t *testing.T) {
	h := NewEventHandler()
	var touched []int64
	h.OnStockChanged(func(_ context.Context, ids []int64) { touched = append(touched, ids...) })
	ctx := context.Background()

	require.NoError(t, h.HandleMessage(ctx, message(t, &models.OrderCreatedEvent{
		BaseEvent: models.NewBaseEvent(models.EventTypeOrderCreated),
		OrderID:   1,
		Items:     []models.OrderItemData{{ProductID: 3, Quantity: 1}, {ProductID: 5, Quantity: 2}},
	})))
	require.NoError(t, h.HandleMessage(ctx, message(t, &models.OrderCancelledEvent{
		BaseEvent: models.NewBaseEvent(models.EventTypeOrderCancelled),
		OrderID:   1,
		Items:     []models.OrderItemData{{ProductID: 3, Quantity: 1}},
	})))
	require.NoError(t, h.HandleMessage(ctx, message(t, &models.OrderPaidEvent{
		BaseEvent: models.NewBaseEvent(models.EventTypeOrderPaid),
		OrderID:   1,
	})))

	assert.Equal(t, []int64{3, 5, 3}, touched)
}

func TestHandleMessageSkipsUndecodable(t *testing.T) {
	h := NewEventHandler()
	assert.NoError(t, h.HandleMessage(context.Background(), kafka.Message{Value: []byte("{not json")}))
}
