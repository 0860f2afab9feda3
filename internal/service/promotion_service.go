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
	"go.uber.org/zap"
)

type PromotionInput struct {
	Code           string          `json:"code" binding:"required,max=50"`
	Description    string          `json:"description" binding:"max=500"`
	DiscountType   string          `json:"discountType" binding:"required,discount_type"`
	DiscountValue  decimal.Decimal `json:"discountValue" binding:"gt=0"`
	StartDate      time.Time       `json:"startDate" binding:"required"`
	EndDate        time.Time       `json:"endDate" binding:"required"`
	MinOrderAmount decimal.Decimal `json:"minOrderAmount" binding:"gte=0"`
	UsageLimit     int             `json:"usageLimit" binding:"gte=0"`
	Status         string          `json:"status" binding:"omitempty,oneof=active inactive"`
}

// PromotionService manages promotion records. Usage counts are only touched
// by checkout and cancellation.
type PromotionService struct {
	repo      repository.Repository
	validator *PromotionValidator
	now       func() time.Time
	logger    *zap.Logger
}

func NewPromotionService(repo repository.Repository, validator *PromotionValidator, now func() time.Time) *PromotionService {
	if now == nil {
		now = time.Now
	}
	return &PromotionService{
		repo:      repo,
		validator: validator,
		now:       now,
		logger:    util.GetLogger(),
	}
}

func (s *PromotionService) List(ctx context.Context, filter models.PromotionFilter) ([]models.Promotion, int, error) {
	promos, total, err := s.repo.ListPromotions(ctx, filter)
	if err != nil {
		return nil, 0, internalError("failed to list promotions", err)
	}
	return promos, total, nil
}

func (s *PromotionService) Get(ctx context.Context, id int64) (*models.Promotion, error) {
	promo, err := s.repo.GetPromotionByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFoundError("promotion", id)
	}
	if err != nil {
		return nil, internalError("failed to get promotion", err)
	}
	return promo, nil
}

func (s *PromotionService) Create(ctx context.Context, in PromotionInput) (*models.Promotion, error) {
	promo, err := promotionFromInput(in)
	if err != nil {
		return nil, err
	}
	if err := s.repo.CreatePromotion(ctx, promo); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, newError(KindConflict, "promotion code already exists", err)
		}
		return nil, internalError("failed to create promotion", err)
	}

	s.logger.Info("Promotion created", zap.Int64("promo_id", promo.ID), zap.String("code", promo.Code))
	return promo, nil
}

func (s *PromotionService) Update(ctx context.Context, id int64, in PromotionInput) (*models.Promotion, error) {
	promo, err := promotionFromInput(in)
	if err != nil {
		return nil, err
	}
	promo.ID = id

	current, err := s.repo.GetPromotionByID(ctx, id)
	if err != nil {
		return nil, fromRepository("promotion not found", err)
	}
	if promo.UsageLimit > 0 && promo.UsageLimit < current.UsedCount {
		return nil, &Error{Kind: KindValidation, Reason: "usage limit below current usage",
			Details: map[string]interface{}{"usedCount": current.UsedCount}}
	}

	if err := s.repo.UpdatePromotion(ctx, promo); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, newError(KindConflict, "promotion code already exists", err)
		}
		return nil, fromRepository("promotion not found", err)
	}
	return promo, nil
}

// Deactivate is the delete operation: promotions referenced by orders are kept.
func (s *PromotionService) Deactivate(ctx context.Context, id int64) (*models.Promotion, error) {
	promo, err := s.repo.GetPromotionByID(ctx, id)
	if err != nil {
		return nil, fromRepository("promotion not found", err)
	}
	promo.Status = models.PromotionStatusInactive
	if err := s.repo.UpdatePromotion(ctx, promo); err != nil {
		return nil, fromRepository("promotion not found", err)
	}
	s.logger.Info("Promotion deactivated", zap.Int64("promo_id", id))
	return promo, nil
}

// Validate pre-checks a code for an order amount at the current time.
func (s *PromotionService) Validate(ctx context.Context, code string, orderAmount decimal.Decimal) (*ValidationResult, error) {
	return s.validator.Validate(ctx, code, orderAmount, s.now())
}

func promotionFromInput(in PromotionInput) (*models.Promotion, error) {
	code := strings.TrimSpace(in.Code)
	if code == "" {
		return nil, validationError("code is required")
	}
	switch in.DiscountType {
	case models.DiscountTypePercentage:
		if !in.DiscountValue.IsPositive() || in.DiscountValue.GreaterThan(hundred) {
			return nil, validationError("percentage discount must be in (0, 100]")
		}
	case models.DiscountTypeFixed:
		if !in.DiscountValue.IsPositive() {
			return nil, validationError("fixed discount must be positive")
		}
	default:
		return nil, validationError("unknown discount type %q", in.DiscountType)
	}
	if in.EndDate.Before(in.StartDate) {
		return nil, validationError("endDate must not be before startDate")
	}
	if in.MinOrderAmount.IsNegative() {
		return nil, validationError("minOrderAmount must not be negative")
	}
	if in.UsageLimit < 0 {
		return nil, validationError("usageLimit must not be negative")
	}
	status := in.Status
	if status == "" {
		status = models.PromotionStatusActive
	}

	return &models.Promotion{
		Code:           code,
		Description:    in.Description,
		DiscountType:   in.DiscountType,
		DiscountValue:  in.DiscountValue,
		StartDate:      in.StartDate,
		EndDate:        in.EndDate,
		MinOrderAmount: in.MinOrderAmount,
		UsageLimit:     in.UsageLimit,
		Status:         status,
	}, nil
}
