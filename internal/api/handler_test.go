package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"pos-service/internal/auth"
	"pos-service/internal/gateway"
	"pos-service/internal/models"
	"pos-service/internal/service"
	"pos-service/internal/store/memstore"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	t      *testing.T
	router *gin.Engine
	store  *memstore.Store
	momo   *gateway.MoMo
	vnpay  *gateway.VNPay

	momoResult int
	relay      *recordingRelay

	adminToken string
	staffToken string
}

type recordingRelay struct {
	events []*models.PaymentResultEvent
}

func (r *recordingRelay) PublishPaymentResult(_ context.Context, e *models.PaymentResultEvent) error {
	r.events = append(r.events, e)
	return nil
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ts := &testServer{t: t, store: memstore.New(), relay: &recordingRelay{}}

	momoAPI := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"orderId":    req["orderId"],
			"requestId":  req["requestId"],
			"resultCode": ts.momoResult,
			"message":    "ok",
			"payUrl":     "https://test-payment.momo.vn/pay?o=" + req["orderId"].(string),
		})
	}))
	t.Cleanup(momoAPI.Close)

	ts.momo = gateway.NewMoMo(gateway.MoMoConfig{
		Endpoint:    momoAPI.URL,
		PartnerCode: "MOMOTEST",
		AccessKey:   "access",
		SecretKey:   "momo-secret",
	}, momoAPI.Client())
	ts.vnpay = gateway.NewVNPay(gateway.VNPayConfig{
		PayURL:     "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html",
		TmnCode:    "TMNTEST",
		HashSecret: "vnpay-secret",
	}, nil)
	registry := gateway.NewRegistry(ts.momo, ts.vnpay)

	hash, err := auth.HashPassword("pw")
	require.NoError(t, err)
	ts.store.AddUser(models.User{Username: "admin", PasswordHash: hash, Role: models.RoleAdmin, IsActive: true})
	ts.store.AddUser(models.User{Username: "cashier", PasswordHash: hash, Role: models.RoleStaff, IsActive: true})

	authSvc := auth.NewService(ts.store, auth.NewTokenManager("test-key", time.Hour, nil), nil)
	validator := service.NewPromotionValidator(ts.store)
	orchestrator := service.NewCheckoutOrchestrator(ts.store, service.NewPricingEngine(nil), validator, registry, nil, service.CheckoutOptions{})

	handler := NewHandler(Deps{
		Auth:       authSvc,
		Catalog:    service.NewCatalogService(ts.store, nil),
		Promotions: service.NewPromotionService(ts.store, validator, nil),
		Orders:     service.NewOrderService(ts.store, orchestrator),
		Gateways:   registry,
		Relay:      ts.relay,
		Readiness:  map[string]Pinger{"store": ts.store},
	})
	ts.router = gin.New()
	handler.SetupRoutes(ts.router)

	ts.adminToken = ts.login("admin")
	ts.staffToken = ts.login("cashier")
	return ts
}

func (ts *testServer) do(method, path, token string, body interface{}, headers ...string) (*httptest.ResponseRecorder, envelope) {
	ts.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(ts.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &env)
	}
	return w, env
}

func (ts *testServer) login(username string) string {
	ts.t.Helper()
	w, env := ts.do(http.MethodPost, "/api/v1/auth/login", "", gin.H{"username": username, "password": "pw"})
	require.Equal(ts.t, http.StatusOK, w.Code, w.Body.String())
	var res struct {
		Token string `json:"token"`
	}
	require.NoError(ts.t, json.Unmarshal(env.Data, &res))
	return res.Token
}

func (ts *testServer) createProduct(name string, price int64, stock int) models.Product {
	ts.t.Helper()
	w, env := ts.do(http.MethodPost, "/api/v1/products", ts.adminToken,
		gin.H{"name": name, "price": price, "stock": stock})
	require.Equal(ts.t, http.StatusCreated, w.Code, w.Body.String())
	var p models.Product
	require.NoError(ts.t, json.Unmarshal(env.Data, &p))
	return p
}

type checkoutData struct {
	Order    models.Order       `json:"order"`
	Payment  *models.Payment    `json:"payment"`
	Items    []models.OrderItem `json:"items"`
	State    string             `json:"state"`
	PayURL   string             `json:"payUrl"`
	Replayed bool               `json:"replayed"`
}

func (ts *testServer) checkout(body gin.H, headers ...string) (*httptest.ResponseRecorder, envelope, checkoutData) {
	ts.t.Helper()
	w, env := ts.do(http.MethodPost, "/api/v1/orders/create", ts.staffToken, body, headers...)
	var data checkoutData
	if w.Code < 300 {
		require.NoError(ts.t, json.Unmarshal(env.Data, &data))
	}
	return w, env, data
}

func TestHealthAndReady(t *testing.T) {
	ts := newTestServer(t)

	w, _ := ts.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = ts.do(http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"store":"ok"`)

	w, env := ts.do(http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, http.StatusNotFound, env.Status)
}

func TestAuthGuards(t *testing.T) {
	ts := newTestServer(t)

	w, env := ts.do(http.MethodGet, "/api/v1/products", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, http.StatusUnauthorized, env.Status)

	w, _ = ts.do(http.MethodGet, "/api/v1/products", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = ts.do(http.MethodPost, "/api/v1/products", ts.staffToken, gin.H{"name": "x", "price": 1})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = ts.do(http.MethodPost, "/api/v1/auth/login", "", gin.H{"username": "admin", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = ts.do(http.MethodPost, "/api/v1/auth/logout", ts.staffToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = ts.do(http.MethodGet, "/api/v1/products", ts.staffToken, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestProductEndpoints(t *testing.T) {
	ts := newTestServer(t)

	w, env := ts.do(http.MethodPost, "/api/v1/products", ts.adminToken, gin.H{"name": "Bad", "price": -5})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, string(env.Data), "ProductInput.Price")

	w, _ = ts.do(http.MethodPost, "/api/v1/products", ts.adminToken,
		gin.H{"name": "Coffee", "barcode": "8934563138165", "price": 25000, "stock": 5})
	require.Equal(t, http.StatusCreated, w.Code)

	w, env = ts.do(http.MethodGet, "/api/v1/products/barcode/8934563138165", ts.staffToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var p models.Product
	require.NoError(t, json.Unmarshal(env.Data, &p))
	assert.Equal(t, "Coffee", p.Name)
	assert.True(t, p.Price.Equal(decimal.NewFromInt(25000)))

	w, _ = ts.do(http.MethodPost, "/api/v1/products", ts.adminToken,
		gin.H{"name": "Dup", "barcode": "8934563138165", "price": 1})
	assert.Equal(t, http.StatusConflict, w.Code)

	w, env = ts.do(http.MethodGet, "/api/v1/products?page=1&pageSize=10", ts.staffToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Total    int `json:"total"`
		Page     int `json:"page"`
		PageSize int `json:"pageSize"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Equal(t, 1, list.Total)
	assert.Equal(t, 10, list.PageSize)

	w, _ = ts.do(http.MethodPost, "/api/v1/inventory/stock-in", ts.adminToken, gin.H{"productId": p.ID, "quantity": 7})
	assert.Equal(t, http.StatusCreated, w.Code)

	w, _ = ts.do(http.MethodDelete, "/api/v1/products/"+itoa(p.ID), ts.adminToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = ts.do(http.MethodGet, "/api/v1/products/barcode/8934563138165", ts.staffToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = ts.do(http.MethodGet, "/api/v1/products/abc", ts.staffToken, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEnvelopeShape(t *testing.T) {
	ts := newTestServer(t)
	p := ts.createProduct("Salt", 8000, 3)

	decode := func(w *httptest.ResponseRecorder) map[string]interface{} {
		var raw map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
		return raw
	}

	w, _ := ts.do(http.MethodGet, "/api/v1/products", ts.adminToken, nil)
	raw := decode(w)
	assert.Equal(t, float64(http.StatusOK), raw["status"])
	assert.Contains(t, raw, "message")
	list, ok := raw["data"].(map[string]interface{})
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"data", "total", "page", "pageSize"}, keys(list))

	w, _ = ts.do(http.MethodGet, "/api/v1/products/"+itoa(p.ID), ts.adminToken, nil)
	raw = decode(w)
	assert.Equal(t, float64(http.StatusOK), raw["status"])
	assert.IsType(t, "", raw["message"])
	assert.Contains(t, raw, "data")

	w, _ = ts.do(http.MethodGet, "/api/v1/products/999", ts.adminToken, nil)
	raw = decode(w)
	assert.Equal(t, float64(http.StatusNotFound), raw["status"])
	assert.NotEmpty(t, raw["message"])
}

func keys(m map[string]interface{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestCashCheckoutAndIdempotentReplay(t *testing.T) {
	ts := newTestServer(t)
	p := ts.createProduct("Tea", 50000, 10)

	body := gin.H{"paymentMethod": "cash", "orderItems": []gin.H{{"productId": p.ID, "quantity": 2}}}
	w, env, data := ts.checkout(body, "Idempotency-Key", "till-7-0001")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, http.StatusCreated, env.Status)
	assert.Equal(t, models.OrderStatusPaid, data.Order.Status)
	assert.True(t, data.Order.TotalAmount.Equal(decimal.NewFromInt(100000)))
	require.NotNil(t, data.Order.UserID)

	w, _, again := ts.checkout(body, "Idempotency-Key", "till-7-0001")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, again.Replayed)
	assert.Equal(t, data.Order.ID, again.Order.ID)

	w, env = ts.do(http.MethodGet, "/api/v1/orders/"+itoa(data.Order.ID), ts.staffToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"items"`)

	w, _ = ts.do(http.MethodPost, "/api/v1/orders/"+itoa(data.Order.ID)+"/cancel", ts.staffToken, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCheckoutErrorMapping(t *testing.T) {
	ts := newTestServer(t)
	p := ts.createProduct("Rice", 100000, 1)

	now := time.Now()
	w, _ := ts.do(http.MethodPost, "/api/v1/promotions", ts.adminToken, gin.H{
		"code":           "FLAT50",
		"discountType":   "fixed",
		"discountValue":  50000,
		"minOrderAmount": 500000,
		"startDate":      now.Add(-time.Hour).Format(time.RFC3339),
		"endDate":        now.Add(time.Hour).Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w, env, _ := ts.checkout(gin.H{"paymentMethod": "cash", "promoCode": "FLAT50",
		"orderItems": []gin.H{{"productId": p.ID, "quantity": 1}}})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, service.ReasonBelowMinimum, env.Message)
	assert.Contains(t, string(env.Data), `"shortfall":"400000"`)

	w, _, _ = ts.checkout(gin.H{"paymentMethod": "cash", "orderItems": []gin.H{{"productId": p.ID, "quantity": 2}}})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w, _, _ = ts.checkout(gin.H{"paymentMethod": "cash", "orderItems": []gin.H{{"productId": 999, "quantity": 1}}})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, env, _ = ts.checkout(gin.H{"paymentMethod": "bitcoin", "orderItems": []gin.H{{"productId": p.ID, "quantity": 1}}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, string(env.Data), "payment_method")

	w, _, _ = ts.checkout(gin.H{"paymentMethod": "cash", "orderItems": []gin.H{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = ts.do(http.MethodPost, "/api/v1/promotions/validate", ts.staffToken, gin.H{"promoCode": "FLAT50", "orderAmount": 600000})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, string(env.Data), `"valid":true`)

	w, env = ts.do(http.MethodPost, "/api/v1/promotions/validate", ts.staffToken, gin.H{"promoCode": "FLAT50", "orderAmount": 100000})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, service.ReasonBelowMinimum, env.Message)
	assert.Contains(t, string(env.Data), `"shortfall":"400000"`)

	w, env = ts.do(http.MethodPost, "/api/v1/promotions/validate", ts.staffToken, gin.H{"code": "FLAT50", "orderAmount": 600000})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"valid":true`)

	w, _ = ts.do(http.MethodPost, "/api/v1/promotions/validate", ts.staffToken, gin.H{"orderAmount": 600000})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func vnpayIPN(ts *testServer, requestID string, amount decimal.Decimal, code string) url.Values {
	params := map[string]string{
		"vnp_TmnCode":           "TMNTEST",
		"vnp_TxnRef":            requestID,
		"vnp_Amount":            amount.Mul(decimal.NewFromInt(100)).StringFixed(0),
		"vnp_ResponseCode":      code,
		"vnp_TransactionStatus": code,
		"vnp_TransactionNo":     "14012345",
		"vnp_OrderInfo":         "Thanh toan don hang",
	}
	q := url.Values{}
	for k, v := range params {
		q.Set(k, v)
	}
	q.Set("vnp_SecureHash", ts.vnpay.SignParams(params))
	return q
}

func TestVNPayCheckoutAndIPN(t *testing.T) {
	ts := newTestServer(t)
	p := ts.createProduct("Milk", 75000, 5)

	w, _, data := ts.checkout(gin.H{"paymentMethod": "vnpay", "orderItems": []gin.H{{"productId": p.ID, "quantity": 2}}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, models.OrderStatusPending, data.Order.Status)
	assert.Contains(t, data.PayURL, "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html?")
	require.NotNil(t, data.Payment)

	q := vnpayIPN(ts, data.Payment.RequestID, data.Order.TotalAmount, "00")
	tampered := url.Values{}
	for k, v := range q {
		tampered[k] = v
	}
	tampered.Set("vnp_Amount", "100")

	w, _ = ts.do(http.MethodGet, "/api/v1/payments/vnpay/callback?"+tampered.Encode(), "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"RspCode":"97"`)

	w, _ = ts.do(http.MethodGet, "/api/v1/payments/vnpay/callback?"+q.Encode(), "", nil)
	assert.Contains(t, w.Body.String(), `"RspCode":"00"`)

	w, _ = ts.do(http.MethodGet, "/api/v1/payments/vnpay/callback?"+q.Encode(), "", nil)
	assert.Contains(t, w.Body.String(), `"RspCode":"02"`)

	unknown := vnpayIPN(ts, "missing", data.Order.TotalAmount, "00")
	w, _ = ts.do(http.MethodGet, "/api/v1/payments/vnpay/callback?"+unknown.Encode(), "", nil)
	assert.Contains(t, w.Body.String(), `"RspCode":"01"`)

	w, env := ts.do(http.MethodGet, "/api/v1/payments/order/"+itoa(data.Order.ID), ts.staffToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var payment models.Payment
	require.NoError(t, json.Unmarshal(env.Data, &payment))
	assert.Equal(t, models.PaymentStatusSuccess, payment.Status)
}

func momoIPN(ts *testServer, requestID string, amount decimal.Decimal, resultCode int) map[string]interface{} {
	params := map[string]string{
		"partnerCode":  "MOMOTEST",
		"orderId":      requestID,
		"requestId":    requestID,
		"amount":       amount.StringFixed(0),
		"orderInfo":    "Thanh toan don hang",
		"orderType":    "momo_wallet",
		"transId":      "2870001",
		"resultCode":   itoa(int64(resultCode)),
		"message":      "ok",
		"payType":      "qr",
		"responseTime": "1717214400000",
		"extraData":    "",
	}
	body := map[string]interface{}{
		"signature":    ts.momo.SignIPN(params),
		"amount":       amount.IntPart(),
		"resultCode":   resultCode,
		"transId":      2870001,
		"responseTime": 1717214400000,
	}
	for k, v := range params {
		if _, ok := body[k]; !ok {
			body[k] = v
		}
	}
	return body
}

func TestMoMoCheckoutFailureCallbackRestocks(t *testing.T) {
	ts := newTestServer(t)
	p := ts.createProduct("Bread", 20000, 3)

	w, _, data := ts.checkout(gin.H{"paymentMethod": "momo", "orderItems": []gin.H{{"productId": p.ID, "quantity": 3}}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, data.PayURL, "https://test-payment.momo.vn/pay")

	bad := momoIPN(ts, data.Payment.RequestID, data.Order.TotalAmount, 1006)
	bad["signature"] = "deadbeef"
	w, _ = ts.do(http.MethodPost, "/api/v1/payments/momo/callback", "", bad)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = ts.do(http.MethodPost, "/api/v1/payments/momo/callback", "", momoIPN(ts, data.Payment.RequestID, data.Order.TotalAmount, 1006))
	assert.Equal(t, http.StatusNoContent, w.Code)

	order, err := ts.store.GetOrderByID(context.Background(), data.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, order.Status)
	product, err := ts.store.GetProductByID(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, product.Stock)
}

func TestGatewayErrorReturns502AndOrderStaysPending(t *testing.T) {
	ts := newTestServer(t)
	p := ts.createProduct("Eggs", 30000, 4)
	ts.momoResult = 99

	w, env, _ := ts.checkout(gin.H{"paymentMethod": "momo", "orderItems": []gin.H{{"productId": p.ID, "quantity": 1}}})
	require.Equal(t, http.StatusBadGateway, w.Code)
	var details struct {
		OrderID int64 `json:"orderId"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &details))
	require.NotZero(t, details.OrderID)

	order, err := ts.store.GetOrderByID(context.Background(), details.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, order.Status)

	ts.momoResult = 0
	w, env = ts.do(http.MethodPost, "/api/v1/payments/momo/create", ts.staffToken, gin.H{"orderId": details.OrderID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, string(env.Data), "payUrl")

	w, _ = ts.do(http.MethodPost, "/api/v1/payments/vnpay/create", ts.staffToken, gin.H{"orderId": details.OrderID})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = ts.do(http.MethodPost, "/api/v1/orders/"+itoa(details.OrderID)+"/cancel", ts.staffToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
