package service

import (
	"time"

	"pos-service/internal/models"

	"github.com/shopspring/decimal"
)

type PromotionOutcomeCode string

const (
	PromotionNone     PromotionOutcomeCode = "none"
	PromotionApplied  PromotionOutcomeCode = "applied"
	PromotionRejected PromotionOutcomeCode = "rejected"
)

// PromotionOutcome tells the caller what happened to the supplied promotion.
type PromotionOutcome struct {
	Code      PromotionOutcomeCode `json:"code"`
	Reason    string               `json:"reason,omitempty"`
	Shortfall *decimal.Decimal     `json:"shortfall,omitempty"`
}

// Totals is the priced cart. Total = Subtotal - DiscountAmount, never negative.
type Totals struct {
	Subtotal       decimal.Decimal  `json:"subtotal"`
	DiscountAmount decimal.Decimal  `json:"discountAmount"`
	Total          decimal.Decimal  `json:"total"`
	Promotion      PromotionOutcome `json:"promotion"`
}

var hundred = decimal.NewFromInt(100)

// PricingEngine turns cart lines plus an optional promotion into totals.
type PricingEngine struct {
	now func() time.Time
}

// NewPricingEngine returns an engine reading time from now, or the wall clock if nil.
func NewPricingEngine(now func() time.Time) *PricingEngine {
	if now == nil {
		now = time.Now
	}
	return &PricingEngine{now: now}
}

// ComputeTotals prices lines. A promotion that does not apply yields a zero
// discount and a rejected outcome rather than an error.
func (e *PricingEngine) ComputeTotals(lines []models.CartLine, promo *models.Promotion) (*Totals, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	subtotal := decimal.Zero
	for i, line := range lines {
		if line.Quantity <= 0 {
			return nil, &Error{Kind: KindValidation, Reason: ErrInvalidLine.Reason,
				Details: map[string]interface{}{"line": i, "field": "quantity"}}
		}
		if line.Price.IsNegative() {
			return nil, &Error{Kind: KindValidation, Reason: ErrInvalidLine.Reason,
				Details: map[string]interface{}{"line": i, "field": "price"}}
		}
		subtotal = subtotal.Add(line.Subtotal())
	}

	totals := &Totals{
		Subtotal:       subtotal,
		DiscountAmount: decimal.Zero,
		Total:          subtotal,
		Promotion:      PromotionOutcome{Code: PromotionNone},
	}
	if promo == nil {
		return totals, nil
	}

	if reason, shortfall := CheckPromotion(promo, subtotal, e.now()); reason != "" {
		totals.Promotion = PromotionOutcome{Code: PromotionRejected, Reason: reason}
		if reason == ReasonBelowMinimum {
			totals.Promotion.Shortfall = &shortfall
		}
		return totals, nil
	}

	totals.DiscountAmount = DiscountFor(promo, subtotal)
	totals.Total = subtotal.Sub(totals.DiscountAmount)
	totals.Promotion = PromotionOutcome{Code: PromotionApplied}
	return totals, nil
}

// DiscountFor computes the discount promo grants on subtotal, clamped to [0, subtotal].
// Percentage discounts are rounded half-up to 2 decimals.
func DiscountFor(promo *models.Promotion, subtotal decimal.Decimal) decimal.Decimal {
	var discount decimal.Decimal
	switch promo.DiscountType {
	case models.DiscountTypePercentage:
		discount = subtotal.Mul(promo.DiscountValue).Div(hundred).Round(2)
	case models.DiscountTypeFixed:
		discount = promo.DiscountValue
	default:
		return decimal.Zero
	}

	if discount.IsNegative() {
		return decimal.Zero
	}
	if discount.GreaterThan(subtotal) {
		return subtotal
	}
	return discount
}
