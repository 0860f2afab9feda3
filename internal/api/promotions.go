package api

import (
	"net/http"

	"pos-service/internal/models"
	"pos-service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// validatePromotionRequest takes the code as promoCode, matching checkout;
// code is still read for older clients.
type validatePromotionRequest struct {
	PromoCode   string          `json:"promoCode" binding:"required_without=Code"`
	Code        string          `json:"code"`
	OrderAmount decimal.Decimal `json:"orderAmount" binding:"gte=0"`
}

func (r *validatePromotionRequest) code() string {
	if r.PromoCode != "" {
		return r.PromoCode
	}
	return r.Code
}

func (h *Handler) listPromotions(c *gin.Context) {
	page := pageFromQuery(c)
	filter := models.PromotionFilter{Status: c.Query("status"), Page: page}

	promos, total, err := h.promotions.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	respondList(c, page, total, promos)
}

func (h *Handler) getPromotion(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	promo, err := h.promotions.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "", promo)
}

func (h *Handler) createPromotion(c *gin.Context) {
	var in service.PromotionInput
	if !bindJSON(c, &in) {
		return
	}
	promo, err := h.promotions.Create(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, "promotion created", promo)
}

func (h *Handler) updatePromotion(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var in service.PromotionInput
	if !bindJSON(c, &in) {
		return
	}
	promo, err := h.promotions.Update(c.Request.Context(), id, in)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "promotion updated", promo)
}

func (h *Handler) deactivatePromotion(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	promo, err := h.promotions.Deactivate(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "promotion deactivated", promo)
}

// validatePromotion answers with 200 whether or not the code applies; the
// reason is in the body.
func (h *Handler) validatePromotion(c *gin.Context) {
	var req validatePromotionRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.promotions.Validate(c.Request.Context(), req.code(), req.OrderAmount)
	if err != nil {
		respondError(c, err)
		return
	}
	message := "promotion applies"
	if !res.Valid {
		message = res.Reason
	}
	respond(c, http.StatusOK, message, res)
}
