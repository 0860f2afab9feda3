package store

import (
	"context"
	"fmt"

	"pos-service/internal/models"
	"pos-service/internal/repository"

	"github.com/jmoiron/sqlx"
)

const promotionColumns = `id, code, description, discount_type, discount_value, start_date, end_date,
	min_order_amount, usage_limit, used_count, status, created_at, updated_at`

func (s *queries) ListPromotions(ctx context.Context, filter models.PromotionFilter) ([]models.Promotion, int, error) {
	page := filter.Page.Normalize()

	clause := ""
	var args []interface{}
	if filter.Status != "" {
		args = append(args, filter.Status)
		clause = " WHERE status = $1"
	}

	var total int
	if err := sqlx.GetContext(ctx, s.q, &total, "SELECT COUNT(*) FROM promotions"+clause, args...); err != nil {
		return nil, 0, err
	}

	args = append(args, page.PageSize, page.Offset())
	query := fmt.Sprintf("SELECT %s FROM promotions%s ORDER BY id DESC LIMIT $%d OFFSET $%d",
		promotionColumns, clause, len(args)-1, len(args))

	promos := []models.Promotion{}
	if err := sqlx.SelectContext(ctx, s.q, &promos, query, args...); err != nil {
		return nil, 0, err
	}
	return promos, total, nil
}

func (s *queries) GetPromotionByID(ctx context.Context, id int64) (*models.Promotion, error) {
	var promo models.Promotion
	err := sqlx.GetContext(ctx, s.q, &promo, "SELECT "+promotionColumns+" FROM promotions WHERE id = $1", id)
	if err != nil {
		return nil, notFound(err)
	}
	return &promo, nil
}

// GetPromotionByCode is an exact, case-sensitive lookup.
func (s *queries) GetPromotionByCode(ctx context.Context, code string) (*models.Promotion, error) {
	var promo models.Promotion
	err := sqlx.GetContext(ctx, s.q, &promo, "SELECT "+promotionColumns+" FROM promotions WHERE code = $1", code)
	if err != nil {
		return nil, notFound(err)
	}
	return &promo, nil
}

func (s *queries) CreatePromotion(ctx context.Context, promo *models.Promotion) error {
	query := `
		INSERT INTO promotions (code, description, discount_type, discount_value, start_date, end_date,
			min_order_amount, usage_limit, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, used_count, created_at, updated_at`

	err := sqlx.GetContext(ctx, s.q, promo, query,
		promo.Code, promo.Description, promo.DiscountType, promo.DiscountValue, promo.StartDate,
		promo.EndDate, promo.MinOrderAmount, promo.UsageLimit, promo.Status)
	if isUniqueViolation(err) {
		return repository.ErrDuplicate
	}
	return err
}

// UpdatePromotion rewrites the editable fields. used_count is owned by reservations.
func (s *queries) UpdatePromotion(ctx context.Context, promo *models.Promotion) error {
	query := `
		UPDATE promotions SET code = $1, description = $2, discount_type = $3, discount_value = $4,
			start_date = $5, end_date = $6, min_order_amount = $7, usage_limit = $8, status = $9,
			updated_at = NOW()
		WHERE id = $10
		RETURNING used_count, created_at, updated_at`

	err := sqlx.GetContext(ctx, s.q, promo, query,
		promo.Code, promo.Description, promo.DiscountType, promo.DiscountValue, promo.StartDate,
		promo.EndDate, promo.MinOrderAmount, promo.UsageLimit, promo.Status, promo.ID)
	if isUniqueViolation(err) {
		return repository.ErrDuplicate
	}
	return notFound(err)
}

// ReservePromotionUsage consumes one usage slot atomically.
func (s *queries) ReservePromotionUsage(ctx context.Context, promoID int64) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE promotions SET used_count = used_count + 1, updated_at = NOW()
		WHERE id = $1 AND (usage_limit = 0 OR used_count < usage_limit)`,
		promoID)
	if err != nil {
		return fmt.Errorf("failed to reserve promotion usage: %w", err)
	}
	return affected(res, repository.ErrUsageLimitReached)
}

// ReleasePromotionUsage returns a slot taken by ReservePromotionUsage.
func (s *queries) ReleasePromotionUsage(ctx context.Context, promoID int64) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE promotions SET used_count = used_count - 1, updated_at = NOW()
		WHERE id = $1 AND used_count > 0`,
		promoID)
	if err != nil {
		return fmt.Errorf("failed to release promotion usage: %w", err)
	}
	return affected(res, repository.ErrStatusConflict)
}
