package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeOrderCreated   = "ORDER_CREATED"
	EventTypeOrderPaid      = "ORDER_PAID"
	EventTypeOrderCancelled = "ORDER_CANCELLED"
	EventTypePaymentSuccess = "PAYMENT_SUCCESS"
	EventTypePaymentFailed  = "PAYMENT_FAILED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// NewBaseEvent stamps a fresh event id and time.
func NewBaseEvent(eventType string) BaseEvent {
	return BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
	}
}

// OrderCreatedEvent published when an order and its stock effect are committed
type OrderCreatedEvent struct {
	BaseEvent
	OrderID        int64           `json:"order_id"`
	UserID         *int64          `json:"user_id,omitempty"`
	PromoID        *int64          `json:"promo_id,omitempty"`
	PaymentMethod  string          `json:"payment_method"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	Items          []OrderItemData `json:"items"`
}

// OrderPaidEvent published when payment is confirmed
type OrderPaidEvent struct {
	BaseEvent
	OrderID   int64           `json:"order_id"`
	PaymentID int64           `json:"payment_id"`
	Method    string          `json:"method"`
	Amount    decimal.Decimal `json:"amount"`
	TxID      string          `json:"tx_id,omitempty"`
}

// OrderCancelledEvent published when an order is cancelled and compensated
type OrderCancelledEvent struct {
	BaseEvent
	OrderID int64           `json:"order_id"`
	Reason  string          `json:"reason"`
	Items   []OrderItemData `json:"items"`
}

// PaymentResultEvent carries a gateway result relayed through the broker
// (PAYMENT_SUCCESS / PAYMENT_FAILED). RequestID is the gateway order reference.
type PaymentResultEvent struct {
	BaseEvent
	Method    string          `json:"method"`
	RequestID string          `json:"request_id"`
	TxID      string          `json:"tx_id"`
	Amount    decimal.Decimal `json:"amount"`
	Message   string          `json:"message,omitempty"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// ItemsToEventData converts order items into their event form.
func ItemsToEventData(items []OrderItem) []OrderItemData {
	out := make([]OrderItemData, 0, len(items))
	for _, it := range items {
		out = append(out, OrderItemData{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.Price,
		})
	}
	return out
}
