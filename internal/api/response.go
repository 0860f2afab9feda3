package api

import (
	"errors"
	"net/http"
	"strconv"

	"pos-service/internal/auth"
	"pos-service/internal/models"
	"pos-service/internal/service"
	"pos-service/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Envelope is the body of every JSON response.
// Status repeats the HTTP status code.
type Envelope struct {
	Status  int         `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// ListData is the data of a paginated response.
type ListData struct {
	Data     interface{} `json:"data"`
	Total    int         `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"pageSize"`
}

func newEnvelope(code int, message string, data interface{}) Envelope {
	if message == "" {
		message = http.StatusText(code)
	}
	return Envelope{Status: code, Message: message, Data: data}
}

func respond(c *gin.Context, code int, message string, data interface{}) {
	c.JSON(code, newEnvelope(code, message, data))
}

func respondList(c *gin.Context, page models.Page, total int, data interface{}) {
	page = page.Normalize()
	respond(c, http.StatusOK, "", ListData{Data: data, Total: total, Page: page.Page, PageSize: page.PageSize})
}

func abortWith(c *gin.Context, code int, message string, data interface{}) {
	c.AbortWithStatusJSON(code, newEnvelope(code, message, data))
}

// statusFor maps a service error kind to its HTTP status.
func statusFor(kind service.Kind) int {
	switch kind {
	case service.KindValidation:
		return http.StatusBadRequest
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindPromotionRejected, service.KindInsufficientStock:
		return http.StatusUnprocessableEntity
	case service.KindConflict:
		return http.StatusConflict
	case service.KindPaymentGateway:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err with the envelope. Internal causes are logged, never returned.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		abortWith(c, http.StatusUnauthorized, err.Error(), nil)
		return
	case errors.Is(err, auth.ErrInactiveUser):
		abortWith(c, http.StatusForbidden, err.Error(), nil)
		return
	}

	var se *service.Error
	if !errors.As(err, &se) {
		util.LoggerFromContext(c.Request.Context()).Error("Unhandled error", zap.Error(err))
		abortWith(c, http.StatusInternalServerError, "internal server error", nil)
		return
	}

	code := statusFor(se.Kind)
	if code == http.StatusInternalServerError {
		util.LoggerFromContext(c.Request.Context()).Error("Request failed",
			zap.String("reason", se.Reason),
			zap.Error(se.Err))
		abortWith(c, code, "internal server error", nil)
		return
	}

	data := gin.H{"kind": se.Kind}
	for k, v := range se.Details {
		data[k] = v
	}
	abortWith(c, code, se.Reason, data)
}

func pageFromQuery(c *gin.Context) models.Page {
	page, _ := strconv.Atoi(c.Query("page"))
	size, _ := strconv.Atoi(c.Query("pageSize"))
	return models.Page{Page: page, PageSize: size}.Normalize()
}

func idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		abortWith(c, http.StatusBadRequest, "invalid "+name, nil)
		return 0, false
	}
	return id, true
}
