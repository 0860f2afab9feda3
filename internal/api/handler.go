package api

import (
	"context"
	"net/http"
	"time"

	"pos-service/internal/auth"
	"pos-service/internal/gateway"
	"pos-service/internal/models"
	"pos-service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pinger is a dependency checked by the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PaymentRelay hands a verified callback to the event bus when it cannot be
// applied right away; the consumer worker retries it.
type PaymentRelay interface {
	PublishPaymentResult(ctx context.Context, event *models.PaymentResultEvent) error
}

type Deps struct {
	Auth       *auth.Service
	Catalog    *service.CatalogService
	Promotions *service.PromotionService
	Orders     *service.OrderService
	Gateways   *gateway.Registry
	// Relay is optional.
	Relay     PaymentRelay
	Readiness map[string]Pinger
}

// Handler contains HTTP handlers
type Handler struct {
	auth       *auth.Service
	catalog    *service.CatalogService
	promotions *service.PromotionService
	orders     *service.OrderService
	gateways   *gateway.Registry
	relay      PaymentRelay
	readiness  map[string]Pinger
}

// NewHandler creates a new HTTP handler
func NewHandler(deps Deps) *Handler {
	registerValidators()
	return &Handler{
		auth:       deps.Auth,
		catalog:    deps.Catalog,
		promotions: deps.Promotions,
		orders:     deps.Orders,
		gateways:   deps.Gateways,
		relay:      deps.Relay,
		readiness:  deps.Readiness,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(requestLogger())
	router.Use(recovery())
	router.Use(prometheusMiddleware())

	router.NoRoute(func(c *gin.Context) {
		abortWith(c, http.StatusNotFound, "route not found", nil)
	})

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")

	// gateway callbacks are authenticated by their signatures
	v1.POST("/auth/login", h.login)
	v1.POST("/payments/momo/callback", h.momoCallback)
	v1.GET("/payments/vnpay/callback", h.vnpayCallback)

	authed := v1.Group("")
	authed.Use(requireAuth(h.auth))
	admin := requireRole(models.RoleAdmin)
	{
		authed.POST("/auth/logout", h.logout)

		authed.GET("/products", h.listProducts)
		authed.GET("/products/:id", h.getProduct)
		authed.GET("/products/barcode/:barcode", h.getProductByBarcode)
		authed.POST("/products", admin, h.createProduct)
		authed.PUT("/products/:id", admin, h.updateProduct)
		authed.DELETE("/products/:id", admin, h.deleteProduct)

		authed.POST("/inventory/stock-in", admin, h.stockIn)
		authed.GET("/inventory/transactions", h.listInventoryTransactions)

		authed.GET("/promotions", h.listPromotions)
		authed.GET("/promotions/:id", h.getPromotion)
		authed.POST("/promotions/validate", h.validatePromotion)
		authed.POST("/promotions", admin, h.createPromotion)
		authed.PUT("/promotions/:id", admin, h.updatePromotion)
		authed.DELETE("/promotions/:id", admin, h.deactivatePromotion)

		authed.POST("/orders/create", h.createOrder)
		authed.GET("/orders", h.listOrders)
		authed.GET("/orders/:id", h.getOrder)
		authed.POST("/orders/:id/cancel", h.cancelOrder)

		authed.POST("/payments/momo/create", h.createGatewayPayment(models.PaymentMethodMoMo))
		authed.POST("/payments/vnpay/create", h.createGatewayPayment(models.PaymentMethodVNPay))
		authed.GET("/payments/order/:orderId", h.getPayment)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every dependency and reports 503 if any is down.
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := make(map[string]string, len(h.readiness))
	ready := true
	for name, p := range h.readiness {
		if err := p.Ping(ctx); err != nil {
			checks[name] = err.Error()
			ready = false
			continue
		}
		checks[name] = "ok"
	}

	code, status := http.StatusOK, "ready"
	if !ready {
		code, status = http.StatusServiceUnavailable, "not ready"
	}
	c.JSON(code, gin.H{
		"status": status,
		"checks": checks,
		"time":   time.Now().Unix(),
	})
}
