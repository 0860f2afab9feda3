package api

import (
	"net/http"
	"strconv"

	"pos-service/internal/models"
	"pos-service/internal/service"

	"github.com/gin-gonic/gin"
)

func (h *Handler) listProducts(c *gin.Context) {
	page := pageFromQuery(c)
	filter := models.ProductFilter{Query: c.Query("q"), Page: page}

	products, total, err := h.catalog.ListProducts(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	respondList(c, page, total, products)
}

func (h *Handler) getProduct(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	product, err := h.catalog.GetProduct(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "", product)
}

func (h *Handler) getProductByBarcode(c *gin.Context) {
	product, err := h.catalog.GetProductByBarcode(c.Request.Context(), c.Param("barcode"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "", product)
}

func (h *Handler) createProduct(c *gin.Context) {
	var in service.ProductInput
	if !bindJSON(c, &in) {
		return
	}
	product, err := h.catalog.CreateProduct(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, "product created", product)
}

func (h *Handler) updateProduct(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var in service.ProductInput
	if !bindJSON(c, &in) {
		return
	}
	product, err := h.catalog.UpdateProduct(c.Request.Context(), id, in)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "product updated", product)
}

func (h *Handler) deleteProduct(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.catalog.DeleteProduct(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "product deleted", nil)
}

func (h *Handler) stockIn(c *gin.Context) {
	var req service.StockInRequest
	if !bindJSON(c, &req) {
		return
	}
	req.UserID = userIDFrom(c)

	entry, err := h.catalog.StockIn(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, "stock received", entry)
}

func (h *Handler) listInventoryTransactions(c *gin.Context) {
	page := pageFromQuery(c)
	filter := models.InventoryFilter{Page: page}
	if raw := c.Query("productId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			abortWith(c, http.StatusBadRequest, "invalid productId", nil)
			return
		}
		filter.ProductID = &id
	}

	entries, total, err := h.catalog.ListInventoryTransactions(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	respondList(c, page, total, entries)
}
