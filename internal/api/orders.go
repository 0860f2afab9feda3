package api

import (
	"net/http"
	"strconv"

	"pos-service/internal/models"
	"pos-service/internal/service"

	"github.com/gin-gonic/gin"
)

// createOrder handles checkout
func (h *Handler) createOrder(c *gin.Context) {
	var req service.CheckoutRequest
	if !bindJSON(c, &req) {
		return
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}
	req.UserID = userIDFrom(c)
	req.ClientIP = c.ClientIP()

	res, err := h.orders.CreateOrder(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	if res.Replayed {
		respond(c, http.StatusOK, "order already exists", res)
		return
	}
	respond(c, http.StatusCreated, "order created", res)
}

func (h *Handler) listOrders(c *gin.Context) {
	page := pageFromQuery(c)
	filter := models.OrderFilter{Status: c.Query("status"), Page: page}
	if raw := c.Query("userId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			abortWith(c, http.StatusBadRequest, "invalid userId", nil)
			return
		}
		filter.UserID = &id
	}

	orders, total, err := h.orders.ListOrders(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	respondList(c, page, total, orders)
}

// getOrder handles get order by ID
func (h *Handler) getOrder(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	detail, err := h.orders.GetOrder(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "", detail)
}

func (h *Handler) cancelOrder(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	order, err := h.orders.CancelOrder(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "order cancelled", order)
}
