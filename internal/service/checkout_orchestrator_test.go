package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"pos-service/internal/gateway"
	"pos-service/internal/models"
	"pos-service/internal/repository"
	"pos-service/internal/store/memstore"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGateway struct {
	method string
	err    error
	// onCreate runs inside CreatePayment, standing in for a provider that
	// calls back before the create call returns.
	onCreate func(req gateway.PaymentRequest)

	mu    sync.Mutex
	calls []gateway.PaymentRequest
}

func (g *fakeGateway) Method() string { return g.method }

func (g *fakeGateway) CreatePayment(ctx context.Context, req gateway.PaymentRequest) (*gateway.PaymentResponse, error) {
	g.mu.Lock()
	g.calls = append(g.calls, req)
	g.mu.Unlock()
	if g.onCreate != nil {
		g.onCreate(req)
	}
	if g.err != nil {
		return nil, g.err
	}
	return &gateway.PaymentResponse{RequestID: req.RequestID, PayURL: "https://pay.test/" + req.RequestID}, nil
}

func (g *fakeGateway) ParseCallback(map[string]string) (*gateway.CallbackResult, error) {
	return nil, errors.New("not used")
}

type recordingPublisher struct {
	mu        sync.Mutex
	created   []*models.OrderCreatedEvent
	paid      []*models.OrderPaidEvent
	cancelled []*models.OrderCancelledEvent
}

func (p *recordingPublisher) PublishOrderCreated(_ context.Context, e *models.OrderCreatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.created = append(p.created, e)
	return nil
}

func (p *recordingPublisher) PublishOrderPaid(_ context.Context, e *models.OrderPaidEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paid = append(p.paid, e)
	return nil
}

func (p *recordingPublisher) PublishOrderCancelled(_ context.Context, e *models.OrderCancelledEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelled = append(p.cancelled, e)
	return nil
}

type fixture struct {
	store  *memstore.Store
	orch   *CheckoutOrchestrator
	events *recordingPublisher
	vnpay  *fakeGateway
	momo   *fakeGateway
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memstore.New()
	events := &recordingPublisher{}
	vnpay := &fakeGateway{method: models.PaymentMethodVNPay}
	momo := &fakeGateway{method: models.PaymentMethodMoMo}

	orch := NewCheckoutOrchestrator(
		store,
		NewPricingEngine(fixedClock),
		NewPromotionValidator(store),
		gateway.NewRegistry(vnpay, momo),
		events,
		CheckoutOptions{},
	)
	return &fixture{store: store, orch: orch, events: events, vnpay: vnpay, momo: momo}
}

func (f *fixture) product(t *testing.T, price string, stock int) *models.Product {
	t.Helper()
	p := &models.Product{Name: "Item", Price: d(price), Unit: "pcs", Stock: stock}
	require.NoError(t, f.store.CreateProduct(context.Background(), p))
	return p
}

func (f *fixture) promo(t *testing.T, p *models.Promotion) *models.Promotion {
	t.Helper()
	require.NoError(t, f.store.CreatePromotion(context.Background(), p))
	return p
}

func (f *fixture) stock(t *testing.T, id int64) int {
	t.Helper()
	p, err := f.store.GetProductByID(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

func (f *fixture) usedCount(t *testing.T, id int64) int {
	t.Helper()
	p, err := f.store.GetPromotionByID(context.Background(), id)
	require.NoError(t, err)
	return p.UsedCount
}

func TestCheckoutCashCompletesImmediately(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "50000", 10)

	res, err := f.orch.Checkout(ctx, &CheckoutRequest{
		PaymentMethod: models.PaymentMethodCash,
		Items:         []CheckoutItem{{ProductID: p.ID, Quantity: 2}},
	})
	require.NoError(t, err)

	assert.Equal(t, StateCompleted, res.State)
	assert.Equal(t, models.OrderStatusPaid, res.Order.Status)
	assert.Equal(t, models.PaymentStatusSuccess, res.Payment.Status)
	assert.True(t, res.Order.TotalAmount.Equal(d("100000")))
	require.Len(t, res.Items, 1)
	assert.True(t, res.Items[0].Price.Equal(d("50000")))
	assert.Equal(t, 8, f.stock(t, p.ID))

	stored, err := f.store.GetOrderByID(ctx, res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPaid, stored.Status)

	assert.Len(t, f.events.created, 1)
	assert.Len(t, f.events.paid, 1)

	ledger, total, err := f.store.ListInventoryTransactions(ctx, models.InventoryFilter{ProductID: &p.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, -2, ledger[0].Quantity)
	assert.Equal(t, models.InventoryTypeSale, ledger[0].Type)
}

func TestCheckoutAppliesPromotionAndReservesUsage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "50000", 10)
	promo := f.promo(t, activePromo("WELCOME10", models.DiscountTypePercentage, "10", "0"))

	res, err := f.orch.Checkout(ctx, &CheckoutRequest{
		PaymentMethod: models.PaymentMethodCard,
		PromoCode:     "WELCOME10",
		Items:         []CheckoutItem{{ProductID: p.ID, Quantity: 2}},
	})
	require.NoError(t, err)

	assert.True(t, res.Order.DiscountAmount.Equal(d("10000")))
	assert.True(t, res.Order.TotalAmount.Equal(d("90000")))
	require.NotNil(t, res.Order.PromoID)
	assert.Equal(t, promo.ID, *res.Order.PromoID)
	assert.Equal(t, 1, f.usedCount(t, promo.ID))
}

func TestCheckoutRejectedPromotionAbortsWithoutSideEffects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "100000", 10)
	promo := f.promo(t, activePromo("FLAT50", models.DiscountTypeFixed, "50000", "500000"))

	req := &CheckoutRequest{
		PaymentMethod: models.PaymentMethodCash,
		PromoCode:     "FLAT50",
		Items:         []CheckoutItem{{ProductID: p.ID, Quantity: 3}},
	}
	_, err := f.orch.Checkout(ctx, req)
	require.Error(t, err)
	assert.Equal(t, KindPromotionRejected, KindOf(err))

	var se *Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, ReasonBelowMinimum, se.Reason)
	assert.True(t, se.Details["shortfall"].(decimal.Decimal).Equal(d("200000")))

	assert.Equal(t, 10, f.stock(t, p.ID))
	assert.Zero(t, f.usedCount(t, promo.ID))
	_, total, err := f.store.ListOrders(ctx, models.OrderFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)

	// resubmitting without the code goes through at full price
	req.PromoCode = ""
	res, err := f.orch.Checkout(ctx, req)
	require.NoError(t, err)
	assert.True(t, res.Order.DiscountAmount.IsZero())
	assert.True(t, res.Order.TotalAmount.Equal(d("300000")))
}

func TestCheckoutUnknownPromotionCode(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "1000", 1)

	_, err := f.orch.Checkout(context.Background(), &CheckoutRequest{
		PaymentMethod: models.PaymentMethodCash,
		PromoCode:     "NOPE",
		Items:         []CheckoutItem{{ProductID: p.ID, Quantity: 1}},
	})
	assert.ErrorIs(t, err, &Error{Kind: KindPromotionRejected, Reason: ReasonCodeNotFound})
}

func TestCheckoutValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "1000", 1)

	_, err := f.orch.Checkout(ctx, &CheckoutRequest{PaymentMethod: models.PaymentMethodCash})
	assert.ErrorIs(t, err, ErrEmptyCart)

	_, err = f.orch.Checkout(ctx, &CheckoutRequest{
		PaymentMethod: "bitcoin",
		Items:         []CheckoutItem{{ProductID: p.ID, Quantity: 1}},
	})
	assert.Equal(t, KindValidation, KindOf(err))

	_, err = f.orch.Checkout(ctx, &CheckoutRequest{
		PaymentMethod: models.PaymentMethodCash,
		Items:         []CheckoutItem{{ProductID: p.ID, Quantity: 0}},
	})
	assert.ErrorIs(t, err, ErrInvalidLine)
}

func TestCheckoutRejectsDeletedProduct(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "1000", 5)
	require.NoError(t, f.store.SoftDeleteProduct(ctx, p.ID))

	_, err := f.orch.Checkout(ctx, &CheckoutRequest{
		PaymentMethod: models.PaymentMethodCash,
		Items:         []CheckoutItem{{ProductID: p.ID, Quantity: 1}},
	})
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestCheckoutInsufficientStockReleasesPromotion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	plenty := f.product(t, "1000", 10)
	scarce := f.product(t, "1000", 1)
	promo := f.promo(t, activePromo("ONE", models.DiscountTypeFixed, "100", "0"))

	_, err := f.orch.Checkout(ctx, &CheckoutRequest{
		PaymentMethod: models.PaymentMethodCash,
		PromoCode:     "ONE",
		Items: []CheckoutItem{
			{ProductID: plenty.ID, Quantity: 3},
			{ProductID: scarce.ID, Quantity: 2},
		},
	})
	require.Error(t, err)
	assert.Equal(t, KindInsufficientStock, KindOf(err))
	assert.ErrorIs(t, err, repository.ErrInsufficientStock)

	assert.Equal(t, 10, f.stock(t, plenty.ID))
	assert.Equal(t, 1, f.stock(t, scarce.ID))
	assert.Zero(t, f.usedCount(t, promo.ID))
	assert.Empty(t, f.events.created)
}

func TestConcurrentCheckoutsForLastUnit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "1000", 1)
	promo := f.promo(t, activePromo("ANY", models.DiscountTypeFixed, "100", "0"))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.orch.Checkout(ctx, &CheckoutRequest{
				PaymentMethod: models.PaymentMethodCash,
				PromoCode:     "ANY",
				Items:         []CheckoutItem{{ProductID: p.ID, Quantity: 1}},
			})
		}(i)
	}
	wg.Wait()

	var ok, short int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case KindOf(err) == KindInsufficientStock:
			short++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, short)
	assert.Zero(t, f.stock(t, p.ID))
	assert.Equal(t, 1, f.usedCount(t, promo.ID))
}

func TestConcurrentReservationsRespectUsageLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "1000", 100)
	limited := activePromo("LIMIT5", models.DiscountTypeFixed, "100", "0")
	limited.UsageLimit = 5
	promo := f.promo(t, limited)

	const attempts = 20
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.orch.Checkout(ctx, &CheckoutRequest{
				PaymentMethod: models.PaymentMethodCash,
				PromoCode:     "LIMIT5",
				Items:         []CheckoutItem{{ProductID: p.ID, Quantity: 1}},
			})
		}(i)
	}
	wg.Wait()

	var ok, rejected int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		require.Equal(t, KindPromotionRejected, KindOf(err), err)
		rejected++
	}
	assert.Equal(t, 5, ok)
	assert.Equal(t, attempts-5, rejected)
	assert.Equal(t, 5, f.usedCount(t, promo.ID))
	assert.Equal(t, 95, f.stock(t, p.ID))
}

func TestCheckoutIdempotencyKeyReplays(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "1000", 10)

	req := &CheckoutRequest{
		PaymentMethod:  models.PaymentMethodCash,
		IdempotencyKey: "till-1-0001",
		Items:          []CheckoutItem{{ProductID: p.ID, Quantity: 1}},
	}
	first, err := f.orch.Checkout(ctx, req)
	require.NoError(t, err)
	second, err := f.orch.Checkout(ctx, req)
	require.NoError(t, err)

	assert.True(t, second.Replayed)
	assert.Equal(t, first.Order.ID, second.Order.ID)
	assert.Equal(t, StateCompleted, second.State)
	assert.Equal(t, 9, f.stock(t, p.ID))
}

func gatewayOrder(t *testing.T, f *fixture, method string, promoCode string) (*CheckoutResult, *models.Product) {
	t.Helper()
	p := f.product(t, "75000", 5)
	res, err := f.orch.Checkout(context.Background(), &CheckoutRequest{
		PaymentMethod: method,
		PromoCode:     promoCode,
		Items:         []CheckoutItem{{ProductID: p.ID, Quantity: 2}},
	})
	require.NoError(t, err)
	return res, p
}

func TestGatewayOrderStaysPendingUntilCallback(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, _ := gatewayOrder(t, f, models.PaymentMethodVNPay, "")

	assert.Equal(t, StatePaymentInitiated, res.State)
	assert.Equal(t, models.OrderStatusPending, res.Order.Status)
	assert.Equal(t, "https://pay.test/"+res.Payment.RequestID, res.PayURL)
	require.Len(t, f.vnpay.calls, 1)
	assert.True(t, f.vnpay.calls[0].Amount.Equal(d("150000")))

	cb := &gateway.CallbackResult{
		Method:    models.PaymentMethodVNPay,
		RequestID: res.Payment.RequestID,
		TxID:      "14012345",
		Amount:    d("150000"),
		Success:   true,
		Code:      "00",
	}
	out, err := f.orch.ReconcilePayment(ctx, cb)
	require.NoError(t, err)
	assert.Equal(t, ReconcileApplied, out.Outcome)
	assert.Equal(t, models.OrderStatusPaid, out.OrderStatus)

	again, err := f.orch.ReconcilePayment(ctx, cb)
	require.NoError(t, err)
	assert.Equal(t, ReconcileDuplicate, again.Outcome)

	payment, err := f.store.GetPaymentByOrderID(ctx, res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusSuccess, payment.Status)
	require.NotNil(t, payment.ProviderTxID)
	assert.Equal(t, "14012345", *payment.ProviderTxID)
	assert.Len(t, f.events.paid, 1)
}

func TestFailedCallbackCancelsAndCompensatesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	promo := f.promo(t, activePromo("TEN", models.DiscountTypePercentage, "10", "0"))
	res, p := gatewayOrder(t, f, models.PaymentMethodMoMo, "TEN")

	assert.Equal(t, 3, f.stock(t, p.ID))
	assert.Equal(t, 1, f.usedCount(t, promo.ID))

	cb := &gateway.CallbackResult{
		Method:    models.PaymentMethodMoMo,
		RequestID: res.Payment.RequestID,
		Amount:    res.Payment.Amount,
		Success:   false,
		Code:      "1006",
	}
	for i := 0; i < 2; i++ {
		_, err := f.orch.ReconcilePayment(ctx, cb)
		require.NoError(t, err)
	}

	order, err := f.store.GetOrderByID(ctx, res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, order.Status)
	assert.Equal(t, 5, f.stock(t, p.ID))
	assert.Zero(t, f.usedCount(t, promo.ID))
	assert.Len(t, f.events.cancelled, 1)

	// a success arriving after cancellation is acknowledged but changes nothing
	cb.Success = true
	late, err := f.orch.ReconcilePayment(ctx, cb)
	require.NoError(t, err)
	assert.Equal(t, ReconcileLateSuccess, late.Outcome)
	assert.Equal(t, models.OrderStatusCancelled, late.OrderStatus)
	assert.Equal(t, 5, f.stock(t, p.ID))
}

func TestMoMoCallbackForFractionalTotalSettles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.promo(t, activePromo("TEN", models.DiscountTypePercentage, "10", "0"))
	p := f.product(t, "99999", 5)

	res, err := f.orch.Checkout(ctx, &CheckoutRequest{
		PaymentMethod: models.PaymentMethodMoMo,
		PromoCode:     "TEN",
		Items:         []CheckoutItem{{ProductID: p.ID, Quantity: 1}},
	})
	require.NoError(t, err)
	assert.True(t, res.Order.TotalAmount.Equal(d("89999.1")))

	// MoMo charges and echoes whole dong
	out, err := f.orch.ReconcilePayment(ctx, &gateway.CallbackResult{
		Method:    models.PaymentMethodMoMo,
		RequestID: res.Payment.RequestID,
		Amount:    d("89999"),
		Success:   true,
		Code:      "0",
	})
	require.NoError(t, err)
	assert.Equal(t, ReconcileApplied, out.Outcome)
	assert.Equal(t, models.OrderStatusPaid, out.OrderStatus)
}

func TestCallbackAmountMismatchIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, _ := gatewayOrder(t, f, models.PaymentMethodVNPay, "")

	_, err := f.orch.ReconcilePayment(ctx, &gateway.CallbackResult{
		Method:    models.PaymentMethodVNPay,
		RequestID: res.Payment.RequestID,
		Amount:    d("1"),
		Success:   true,
	})
	assert.Equal(t, KindValidation, KindOf(err))

	order, err := f.store.GetOrderByID(ctx, res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, order.Status)

	_, err = f.orch.ReconcilePayment(ctx, &gateway.CallbackResult{Method: models.PaymentMethodVNPay, RequestID: "unknown"})
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestGatewayFailureLeavesOrderPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.momo.err = errors.New("connection refused")
	p := f.product(t, "1000", 5)

	res, err := f.orch.Checkout(ctx, &CheckoutRequest{
		PaymentMethod: models.PaymentMethodMoMo,
		Items:         []CheckoutItem{{ProductID: p.ID, Quantity: 1}},
	})
	require.Error(t, err)
	assert.Equal(t, KindPaymentGateway, KindOf(err))
	require.NotNil(t, res)
	assert.Equal(t, StateOrderPersisted, res.State)

	order, err := f.store.GetOrderByID(ctx, res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Equal(t, 4, f.stock(t, p.ID))

	// retry through the payment endpoint once the gateway recovers
	f.momo.err = nil
	resp, err := f.orch.InitiateGatewayPayment(ctx, res.Order.ID, models.PaymentMethodMoMo, nil, "", "")
	require.NoError(t, err)
	assert.NotEqual(t, res.Payment.RequestID, resp.RequestID)

	payment, err := f.store.GetPaymentByOrderID(ctx, res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, resp.RequestID, payment.RequestID)
	require.NotNil(t, payment.PayURL)
	assert.Equal(t, resp.PayURL, *payment.PayURL)
}

func TestReinitiatedRequestIDIsKnownBeforeProviderReturns(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, _ := gatewayOrder(t, f, models.PaymentMethodVNPay, "")

	var early *ReconcileResult
	var earlyErr error
	f.vnpay.onCreate = func(req gateway.PaymentRequest) {
		early, earlyErr = f.orch.ReconcilePayment(ctx, &gateway.CallbackResult{
			Method:    models.PaymentMethodVNPay,
			RequestID: req.RequestID,
			Amount:    req.Amount,
			Success:   true,
			Code:      "00",
		})
	}

	_, err := f.orch.InitiateGatewayPayment(ctx, res.Order.ID, models.PaymentMethodVNPay, nil, "", "")
	require.NoError(t, earlyErr)
	require.NotNil(t, early)
	assert.Equal(t, ReconcileApplied, early.Outcome)

	// the order was paid while the provider call was in flight
	assert.Equal(t, KindConflict, KindOf(err))
	order, err := f.store.GetOrderByID(ctx, res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPaid, order.Status)

	_, err = f.orch.ReconcilePayment(ctx, &gateway.CallbackResult{
		Method:    models.PaymentMethodVNPay,
		RequestID: res.Payment.RequestID,
		Amount:    res.Payment.Amount,
		Success:   true,
	})
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestInitiateGatewayPaymentGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, _ := gatewayOrder(t, f, models.PaymentMethodVNPay, "")

	_, err := f.orch.InitiateGatewayPayment(ctx, res.Order.ID, models.PaymentMethodCash, nil, "", "")
	assert.Equal(t, KindValidation, KindOf(err))

	_, err = f.orch.InitiateGatewayPayment(ctx, res.Order.ID, models.PaymentMethodMoMo, nil, "", "")
	assert.Equal(t, KindValidation, KindOf(err))

	wrong := d("1")
	_, err = f.orch.InitiateGatewayPayment(ctx, res.Order.ID, models.PaymentMethodVNPay, &wrong, "", "")
	assert.Equal(t, KindValidation, KindOf(err))

	_, err = f.orch.CancelPendingOrder(ctx, res.Order.ID, CancelReasonManual)
	require.NoError(t, err)
	_, err = f.orch.InitiateGatewayPayment(ctx, res.Order.ID, models.PaymentMethodVNPay, nil, "", "")
	assert.Equal(t, KindConflict, KindOf(err))
}

func TestCancelPendingOrderCompensates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	promo := f.promo(t, activePromo("TEN", models.DiscountTypePercentage, "10", "0"))
	res, p := gatewayOrder(t, f, models.PaymentMethodVNPay, "TEN")

	order, err := f.orch.CancelPendingOrder(ctx, res.Order.ID, CancelReasonTimeout)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, order.Status)
	assert.Equal(t, 5, f.stock(t, p.ID))
	assert.Zero(t, f.usedCount(t, promo.ID))

	payment, err := f.store.GetPaymentByOrderID(ctx, res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFailed, payment.Status)

	require.Len(t, f.events.cancelled, 1)
	assert.Equal(t, CancelReasonTimeout, f.events.cancelled[0].Reason)

	ledger, _, err := f.store.ListInventoryTransactions(ctx, models.InventoryFilter{ProductID: &p.ID})
	require.NoError(t, err)
	require.Len(t, ledger, 2)
	assert.Equal(t, models.InventoryTypeRestock, ledger[0].Type)
	assert.Equal(t, 2, ledger[0].Quantity)

	_, err = f.orch.CancelPendingOrder(ctx, res.Order.ID, CancelReasonTimeout)
	assert.Equal(t, KindConflict, KindOf(err))
	assert.Equal(t, 5, f.stock(t, p.ID))

	_, err = f.orch.CancelPendingOrder(ctx, 9999, CancelReasonManual)
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestCancelPaidOrderIsConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "1000", 5)

	res, err := f.orch.Checkout(ctx, &CheckoutRequest{
		PaymentMethod: models.PaymentMethodBankTransfer,
		Items:         []CheckoutItem{{ProductID: p.ID, Quantity: 1}},
	})
	require.NoError(t, err)

	_, err = f.orch.CancelPendingOrder(ctx, res.Order.ID, CancelReasonManual)
	assert.Equal(t, KindConflict, KindOf(err))
	assert.Equal(t, 4, f.stock(t, p.ID))
}
