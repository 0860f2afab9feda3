package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"pos-service/internal/gateway"
	"pos-service/internal/models"
	"pos-service/internal/service"
	"pos-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type createPaymentRequest struct {
	OrderID   int64            `json:"orderId" binding:"required,gt=0"`
	Amount    *decimal.Decimal `json:"amount"`
	ReturnURL string           `json:"returnUrl"`
}

// VNPay IPN response codes.
const (
	vnpayConfirmed        = "00"
	vnpayOrderNotFound    = "01"
	vnpayAlreadyConfirmed = "02"
	vnpayInvalidAmount    = "04"
	vnpayInvalidSignature = "97"
	vnpayUnknownError     = "99"
)

func (h *Handler) createGatewayPayment(method string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createPaymentRequest
		if !bindJSON(c, &req) {
			return
		}

		resp, err := h.orders.CreateGatewayPayment(c.Request.Context(), req.OrderID, method, req.Amount, req.ReturnURL, c.ClientIP())
		if err != nil {
			respondError(c, err)
			return
		}
		respond(c, http.StatusOK, "payment created", resp)
	}
}

func (h *Handler) getPayment(c *gin.Context) {
	orderID, ok := idParam(c, "orderId")
	if !ok {
		return
	}
	payment, err := h.orders.GetPayment(c.Request.Context(), orderID)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "", payment)
}

// momoCallback handles the MoMo IPN. MoMo expects 204 once the result is recorded.
func (h *Handler) momoCallback(c *gin.Context) {
	logger := util.LoggerFromContext(c.Request.Context())

	var body map[string]interface{}
	dec := json.NewDecoder(c.Request.Body)
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		abortWith(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}

	params := make(map[string]string, len(body))
	for k, v := range body {
		if v != nil {
			params[k] = fmt.Sprint(v)
		}
	}

	cb, err := h.parseCallback(models.PaymentMethodMoMo, params)
	if err != nil {
		logger.Warn("Rejected MoMo callback", zap.Error(err))
		abortWith(c, http.StatusBadRequest, "invalid callback", nil)
		return
	}

	if _, err := h.orders.HandleCallback(c.Request.Context(), cb); err != nil {
		if service.KindOf(err) == service.KindInternal && h.relayCallback(c, cb) {
			c.Status(http.StatusNoContent)
			return
		}
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// vnpayCallback handles the VNPay IPN, which always answers 200 with an RspCode.
func (h *Handler) vnpayCallback(c *gin.Context) {
	logger := util.LoggerFromContext(c.Request.Context())

	params := make(map[string]string)
	for k, v := range c.Request.URL.Query() {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}

	cb, err := h.parseCallback(models.PaymentMethodVNPay, params)
	if err != nil {
		logger.Warn("Rejected VNPay callback", zap.Error(err))
		if errors.Is(err, gateway.ErrInvalidSignature) {
			vnpayReply(c, vnpayInvalidSignature, "Invalid signature")
			return
		}
		vnpayReply(c, vnpayUnknownError, "Invalid request")
		return
	}

	res, err := h.orders.HandleCallback(c.Request.Context(), cb)
	if err != nil {
		switch service.KindOf(err) {
		case service.KindNotFound:
			vnpayReply(c, vnpayOrderNotFound, "Order not found")
		case service.KindValidation:
			vnpayReply(c, vnpayInvalidAmount, "Invalid amount")
		default:
			if h.relayCallback(c, cb) {
				vnpayReply(c, vnpayConfirmed, "Confirm Success")
				return
			}
			vnpayReply(c, vnpayUnknownError, "Unknown error")
		}
		return
	}

	if res.Outcome != service.ReconcileApplied {
		vnpayReply(c, vnpayAlreadyConfirmed, "Order already confirmed")
		return
	}
	vnpayReply(c, vnpayConfirmed, "Confirm Success")
}

func vnpayReply(c *gin.Context, code, message string) {
	c.JSON(http.StatusOK, gin.H{"RspCode": code, "Message": message})
}

func (h *Handler) parseCallback(method string, params map[string]string) (*gateway.CallbackResult, error) {
	gw, err := h.gateways.Get(method)
	if err != nil {
		return nil, err
	}
	return gw.ParseCallback(params)
}

// relayCallback queues a verified result for the consumer worker. It reports
// whether the result was handed off.
func (h *Handler) relayCallback(c *gin.Context, cb *gateway.CallbackResult) bool {
	if h.relay == nil {
		return false
	}
	eventType := models.EventTypePaymentFailed
	if cb.Success {
		eventType = models.EventTypePaymentSuccess
	}

	err := h.relay.PublishPaymentResult(c.Request.Context(), &models.PaymentResultEvent{
		BaseEvent: models.NewBaseEvent(eventType),
		Method:    cb.Method,
		RequestID: cb.RequestID,
		TxID:      cb.TxID,
		Amount:    cb.Amount,
		Message:   cb.Message,
	})
	logger := util.LoggerFromContext(c.Request.Context())
	if err != nil {
		logger.Error("Failed to relay payment result", zap.String("request_id", cb.RequestID), zap.Error(err))
		return false
	}
	logger.Warn("Payment result relayed for retry", zap.String("request_id", cb.RequestID))
	return true
}
