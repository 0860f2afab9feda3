package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"pos-service/internal/models"
	"pos-service/internal/repository"
	"pos-service/internal/util"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

// Rejection reasons, checked in this order.
const (
	ReasonCodeNotFound      = "code not found"
	ReasonInactive          = "inactive"
	ReasonNotYetStarted     = "not yet started"
	ReasonExpired           = "expired"
	ReasonBelowMinimum      = "below minimum order amount"
	ReasonUsageLimitReached = "usage limit reached"
)

// ValidationResult is the outcome of a promotion pre-check. Shortfall is set
// only for ReasonBelowMinimum.
type ValidationResult struct {
	Valid          bool              `json:"valid"`
	Reason         string            `json:"reason,omitempty"`
	Promotion      *models.Promotion `json:"promotion,omitempty"`
	Shortfall      *decimal.Decimal  `json:"shortfall,omitempty"`
	DiscountAmount decimal.Decimal   `json:"discountAmount"`
}

// CheckPromotion applies the applicability rules to p for the given order
// amount. It returns an empty reason when p applies.
func CheckPromotion(p *models.Promotion, amount decimal.Decimal, now time.Time) (string, decimal.Decimal) {
	switch {
	case p == nil:
		return ReasonCodeNotFound, decimal.Zero
	case p.Status != models.PromotionStatusActive:
		return ReasonInactive, decimal.Zero
	case now.Before(p.StartDate):
		return ReasonNotYetStarted, decimal.Zero
	case now.After(p.EndDate):
		return ReasonExpired, decimal.Zero
	case amount.LessThan(p.MinOrderAmount):
		return ReasonBelowMinimum, p.MinOrderAmount.Sub(amount)
	case p.UsageLimit > 0 && p.UsedCount >= p.UsageLimit:
		return ReasonUsageLimitReached, decimal.Zero
	}
	return "", decimal.Zero
}

// PromotionValidator answers "would this code apply to this amount". It never
// changes usage counts.
type PromotionValidator struct {
	promotions repository.PromotionRepository
}

func NewPromotionValidator(promotions repository.PromotionRepository) *PromotionValidator {
	return &PromotionValidator{promotions: promotions}
}

// Lookup resolves a code. A missing code is reported as (nil, nil).
func (v *PromotionValidator) Lookup(ctx context.Context, code string) (*models.Promotion, error) {
	promo, err := v.promotions.GetPromotionByCode(ctx, code)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, internalError("failed to load promotion", err)
	}
	return promo, nil
}

// Validate checks code against orderAmount at now.
func (v *PromotionValidator) Validate(ctx context.Context, code string, orderAmount decimal.Decimal, now time.Time) (*ValidationResult, error) {
	ctx, span := util.StartSpan(ctx, "PromotionValidator.Validate", attribute.String("promo.code", code))
	defer span.End()

	code = strings.TrimSpace(code)
	if code == "" {
		return nil, validationError("promo code is required")
	}
	if orderAmount.IsNegative() {
		return nil, validationError("order amount must not be negative")
	}

	promo, err := v.Lookup(ctx, code)
	if err != nil {
		return nil, util.RecordSpanError(span, err)
	}

	reason, shortfall := CheckPromotion(promo, orderAmount, now)
	if reason != "" {
		util.PromotionsRejectedTotal.WithLabelValues(reason).Inc()
		res := &ValidationResult{Valid: false, Reason: reason, Promotion: promo}
		if reason == ReasonBelowMinimum {
			res.Shortfall = &shortfall
		}
		return res, nil
	}

	return &ValidationResult{
		Valid:          true,
		Promotion:      promo,
		DiscountAmount: DiscountFor(promo, orderAmount),
	}, nil
}
