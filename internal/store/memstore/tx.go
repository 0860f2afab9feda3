package memstore

import (
	"context"
	"time"

	"pos-service/internal/models"
	"pos-service/internal/repository"
)

// view operates on state without locking; callers hold Store.mu.
type view struct {
	st  *state
	now func() time.Time
}

var _ repository.Tx = (*view)(nil)
var _ repository.Repository = (*Store)(nil)

func (v *view) DecrementStock(ctx context.Context, productID int64, quantity int) error {
	p, ok := v.st.products[productID]
	if !ok || p.IsDeleted || p.Stock < quantity {
		return repository.ErrInsufficientStock
	}
	p.Stock -= quantity
	p.UpdatedAt = v.now()
	v.st.products[productID] = p
	return nil
}

func (v *view) IncrementStock(ctx context.Context, productID int64, quantity int) error {
	p, ok := v.st.products[productID]
	if !ok {
		return repository.ErrNotFound
	}
	p.Stock += quantity
	p.UpdatedAt = v.now()
	v.st.products[productID] = p
	return nil
}

func (v *view) ReservePromotionUsage(ctx context.Context, promoID int64) error {
	p, ok := v.st.promotions[promoID]
	if !ok {
		return repository.ErrNotFound
	}
	if p.UsageLimit > 0 && p.UsedCount >= p.UsageLimit {
		return repository.ErrUsageLimitReached
	}
	p.UsedCount++
	p.UpdatedAt = v.now()
	v.st.promotions[promoID] = p
	return nil
}

func (v *view) ReleasePromotionUsage(ctx context.Context, promoID int64) error {
	p, ok := v.st.promotions[promoID]
	if !ok || p.UsedCount == 0 {
		return repository.ErrStatusConflict
	}
	p.UsedCount--
	p.UpdatedAt = v.now()
	v.st.promotions[promoID] = p
	return nil
}

func (v *view) CreateOrder(ctx context.Context, order *models.Order) error {
	if order.IdempotencyKey != nil {
		for _, o := range v.st.orders {
			if o.IdempotencyKey != nil && *o.IdempotencyKey == *order.IdempotencyKey {
				return repository.ErrDuplicate
			}
		}
	}
	v.st.seq.order++
	order.ID = v.st.seq.order
	order.OrderDate = v.now()
	order.UpdatedAt = order.OrderDate
	v.st.orders[order.ID] = *order
	return nil
}

func (v *view) CreateOrderItem(ctx context.Context, item *models.OrderItem) error {
	if _, ok := v.st.orders[item.OrderID]; !ok {
		return repository.ErrNotFound
	}
	v.st.seq.item++
	item.ID = v.st.seq.item
	v.st.items[item.OrderID] = append(v.st.items[item.OrderID], *item)
	return nil
}

func (v *view) CreatePayment(ctx context.Context, payment *models.Payment) error {
	if _, ok := v.st.payments[payment.OrderID]; ok {
		return repository.ErrDuplicate
	}
	for _, p := range v.st.payments {
		if p.RequestID == payment.RequestID {
			return repository.ErrDuplicate
		}
	}
	v.st.seq.payment++
	payment.ID = v.st.seq.payment
	payment.PaymentDate = v.now()
	payment.UpdatedAt = payment.PaymentDate
	v.st.payments[payment.OrderID] = *payment
	return nil
}

func (v *view) CreateInventoryTransaction(ctx context.Context, entry *models.InventoryTransaction) error {
	v.st.seq.ledger++
	entry.ID = v.st.seq.ledger
	entry.CreatedAt = v.now()
	v.st.ledger = append(v.st.ledger, *entry)
	return nil
}

func (v *view) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	o, ok := v.st.orders[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &o, nil
}

func (v *view) GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	return append([]models.OrderItem{}, v.st.items[orderID]...), nil
}

func (v *view) GetPaymentByOrderID(ctx context.Context, orderID int64) (*models.Payment, error) {
	p, ok := v.st.payments[orderID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (v *view) GetPaymentByRequestID(ctx context.Context, requestID string) (*models.Payment, error) {
	for _, p := range v.st.payments {
		if p.RequestID == requestID {
			return &p, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (v *view) TransitionOrderStatus(ctx context.Context, orderID int64, from, to string) error {
	o, ok := v.st.orders[orderID]
	if !ok || o.Status != from {
		return repository.ErrStatusConflict
	}
	o.Status = to
	o.UpdatedAt = v.now()
	v.st.orders[orderID] = o
	return nil
}

func (v *view) TransitionPaymentStatus(ctx context.Context, paymentID int64, from, to string, providerTxID *string) error {
	for orderID, p := range v.st.payments {
		if p.ID != paymentID {
			continue
		}
		if p.Status != from {
			return repository.ErrStatusConflict
		}
		p.Status = to
		if providerTxID != nil {
			p.ProviderTxID = providerTxID
		}
		p.PaymentDate = v.now()
		p.UpdatedAt = p.PaymentDate
		v.st.payments[orderID] = p
		return nil
	}
	return repository.ErrStatusConflict
}

func (v *view) UpdatePaymentRequest(ctx context.Context, paymentID int64, requestID string, payURL *string) error {
	for orderID, p := range v.st.payments {
		if p.ID != paymentID {
			continue
		}
		if p.Status != models.PaymentStatusPending {
			return repository.ErrStatusConflict
		}
		p.RequestID = requestID
		p.PayURL = payURL
		p.UpdatedAt = v.now()
		v.st.payments[orderID] = p
		return nil
	}
	return repository.ErrStatusConflict
}
