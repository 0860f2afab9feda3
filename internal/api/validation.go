package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"sync"

	"pos-service/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var registerOnce sync.Once

// registerValidators teaches gin's validator about decimals and the domain enums.
func registerValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
			if d, ok := field.Interface().(decimal.Decimal); ok {
				f, _ := d.Float64()
				return f
			}
			return nil
		}, decimal.Decimal{})

		_ = v.RegisterValidation("payment_method", func(fl validator.FieldLevel) bool {
			return models.IsPaymentMethod(fl.Field().String())
		})
		_ = v.RegisterValidation("discount_type", func(fl validator.FieldLevel) bool {
			switch fl.Field().String() {
			case models.DiscountTypePercentage, models.DiscountTypeFixed:
				return true
			}
			return false
		})
	})
}

// bindJSON binds and validates the body, writing a 400 with per-field errors on failure.
func bindJSON(c *gin.Context, out interface{}) bool {
	err := c.ShouldBindJSON(out)
	if err == nil {
		return true
	}

	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		fields := make(map[string]string, len(ve))
		for _, fe := range ve {
			fields[fe.Namespace()] = fe.Tag()
		}
		abortWith(c, http.StatusBadRequest, "validation failed", gin.H{"fields": fields})
		return false
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syntaxErr), errors.As(err, &typeErr):
		abortWith(c, http.StatusBadRequest, "invalid request body", gin.H{"error": err.Error()})
	default:
		abortWith(c, http.StatusBadRequest, "invalid request body", nil)
	}
	return false
}
