package service

import (
	"context"
	"errors"
	"strings"

	"pos-service/internal/models"
	"pos-service/internal/repository"
	"pos-service/internal/util"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ProductCache is a best-effort read-through cache. Misses return (nil, nil).
type ProductCache interface {
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	GetProductByBarcode(ctx context.Context, barcode string) (*models.Product, error)
	SetProduct(ctx context.Context, product *models.Product) error
	InvalidateProduct(ctx context.Context, id int64, barcodes ...string) error
}

type ProductInput struct {
	Name    string          `json:"name" binding:"required,max=255"`
	Barcode *string         `json:"barcode" binding:"omitempty,max=64"`
	Price   decimal.Decimal `json:"price" binding:"gte=0"`
	Unit    string          `json:"unit" binding:"max=32"`
	Stock   int             `json:"stock" binding:"gte=0"`
}

type StockInRequest struct {
	ProductID int64  `json:"productId" binding:"required,gt=0"`
	Quantity  int    `json:"quantity" binding:"required,gt=0"`
	Note      string `json:"note" binding:"max=255"`
	UserID    *int64 `json:"-"`
}

// CatalogService manages products and the stock ledger.
type CatalogService struct {
	repo   repository.Repository
	cache  ProductCache
	logger *zap.Logger
}

// NewCatalogService creates a catalog service. cache may be nil.
func NewCatalogService(repo repository.Repository, cache ProductCache) *CatalogService {
	return &CatalogService{
		repo:   repo,
		cache:  cache,
		logger: util.GetLogger(),
	}
}

func (s *CatalogService) ListProducts(ctx context.Context, filter models.ProductFilter) ([]models.Product, int, error) {
	products, total, err := s.repo.ListProducts(ctx, filter)
	if err != nil {
		return nil, 0, internalError("failed to list products", err)
	}
	return products, total, nil
}

// GetProduct returns any product by id, including soft-deleted ones so
// historical order items still resolve.
func (s *CatalogService) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.GetProduct", attribute.Int64("product.id", id))
	defer span.End()

	if cached := s.fromCache(ctx, func() (*models.Product, error) { return s.cache.GetProduct(ctx, id) }); cached != nil {
		return cached, nil
	}

	product, err := s.repo.GetProductByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFoundError("product", id)
	}
	if err != nil {
		return nil, util.RecordSpanError(span, internalError("failed to get product", err))
	}
	s.toCache(ctx, product)
	return product, nil
}

// GetProductByBarcode is the scanner lookup. Deleted products are never returned.
func (s *CatalogService) GetProductByBarcode(ctx context.Context, barcode string) (*models.Product, error) {
	barcode = strings.TrimSpace(barcode)
	if barcode == "" {
		return nil, validationError("barcode is required")
	}

	cached := s.fromCache(ctx, func() (*models.Product, error) { return s.cache.GetProductByBarcode(ctx, barcode) })
	if cached != nil && !cached.IsDeleted && cached.Barcode != nil && *cached.Barcode == barcode {
		return cached, nil
	}

	product, err := s.repo.GetProductByBarcode(ctx, barcode)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFoundError("product", barcode)
	}
	if err != nil {
		return nil, internalError("failed to get product", err)
	}
	s.toCache(ctx, product)
	return product, nil
}

func (s *CatalogService) CreateProduct(ctx context.Context, in ProductInput) (*models.Product, error) {
	if err := validateProductInput(&in); err != nil {
		return nil, err
	}

	product := &models.Product{
		Name:    in.Name,
		Barcode: in.Barcode,
		Price:   in.Price,
		Unit:    in.Unit,
		Stock:   in.Stock,
	}
	if err := s.repo.CreateProduct(ctx, product); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, newError(KindConflict, "barcode already exists", err)
		}
		return nil, internalError("failed to create product", err)
	}

	s.logger.Info("Product created", zap.Int64("product_id", product.ID), zap.String("name", product.Name))
	return product, nil
}

// UpdateProduct edits catalog fields. Stock only moves through the ledger.
func (s *CatalogService) UpdateProduct(ctx context.Context, id int64, in ProductInput) (*models.Product, error) {
	if err := validateProductInput(&in); err != nil {
		return nil, err
	}

	current, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return nil, fromRepository("product not found", err)
	}

	product := &models.Product{ID: id, Name: in.Name, Barcode: in.Barcode, Price: in.Price, Unit: in.Unit}
	if err := s.repo.UpdateProduct(ctx, product); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, newError(KindConflict, "barcode already exists", err)
		}
		return nil, fromRepository("product not found", err)
	}

	s.invalidate(ctx, current)
	return product, nil
}

// DeleteProduct soft-deletes; past order items keep their reference.
func (s *CatalogService) DeleteProduct(ctx context.Context, id int64) error {
	current, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return fromRepository("product not found", err)
	}
	if err := s.repo.SoftDeleteProduct(ctx, id); err != nil {
		return fromRepository("product not found", err)
	}

	s.invalidate(ctx, current)
	s.logger.Info("Product soft-deleted", zap.Int64("product_id", id))
	return nil
}

// StockIn adds received goods and records the ledger row in one transaction.
func (s *CatalogService) StockIn(ctx context.Context, req StockInRequest) (*models.InventoryTransaction, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.StockIn", attribute.Int64("product.id", req.ProductID))
	defer span.End()

	if req.Quantity <= 0 {
		return nil, validationError("quantity must be positive")
	}

	product, err := s.repo.GetProductByID(ctx, req.ProductID)
	if err != nil {
		return nil, fromRepository("product not found", err)
	}
	if product.IsDeleted {
		return nil, notFoundError("product", req.ProductID)
	}

	entry := &models.InventoryTransaction{
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
		Type:      models.InventoryTypeStockIn,
		Note:      req.Note,
		UserID:    req.UserID,
	}
	err = s.repo.WithTx(ctx, func(tx repository.Tx) error {
		if err := tx.IncrementStock(ctx, req.ProductID, req.Quantity); err != nil {
			return err
		}
		return tx.CreateInventoryTransaction(ctx, entry)
	})
	if err != nil {
		return nil, util.RecordSpanError(span, fromRepository("failed to record stock-in", err))
	}

	s.invalidate(ctx, product)
	s.logger.Info("Stock received",
		zap.Int64("product_id", req.ProductID),
		zap.Int("quantity", req.Quantity))
	return entry, nil
}

func (s *CatalogService) ListInventoryTransactions(ctx context.Context, filter models.InventoryFilter) ([]models.InventoryTransaction, int, error) {
	entries, total, err := s.repo.ListInventoryTransactions(ctx, filter)
	if err != nil {
		return nil, 0, internalError("failed to list inventory transactions", err)
	}
	return entries, total, nil
}

// InvalidateProducts drops cache entries after stock moved elsewhere (orders).
func (s *CatalogService) InvalidateProducts(ctx context.Context, ids ...int64) {
	if s.cache == nil {
		return
	}
	for _, id := range ids {
		if err := s.cache.InvalidateProduct(ctx, id); err != nil {
			s.logger.Warn("Failed to invalidate product cache", zap.Int64("product_id", id), zap.Error(err))
		}
	}
}

func (s *CatalogService) fromCache(ctx context.Context, get func() (*models.Product, error)) *models.Product {
	if s.cache == nil {
		return nil
	}
	p, err := get()
	if err != nil {
		s.logger.Warn("Product cache read failed (continuing with DB)", zap.Error(err))
		return nil
	}
	return p
}

func (s *CatalogService) toCache(ctx context.Context, p *models.Product) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetProduct(ctx, p); err != nil {
		s.logger.Warn("Failed to cache product", zap.Int64("product_id", p.ID), zap.Error(err))
	}
}

func (s *CatalogService) invalidate(ctx context.Context, p *models.Product) {
	if s.cache == nil {
		return
	}
	var barcodes []string
	if p.Barcode != nil {
		barcodes = append(barcodes, *p.Barcode)
	}
	if err := s.cache.InvalidateProduct(ctx, p.ID, barcodes...); err != nil {
		s.logger.Warn("Failed to invalidate product cache", zap.Int64("product_id", p.ID), zap.Error(err))
	}
}

func validateProductInput(in *ProductInput) error {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return validationError("name is required")
	}
	if in.Price.IsNegative() {
		return validationError("price must not be negative")
	}
	if in.Stock < 0 {
		return validationError("stock must not be negative")
	}
	if in.Barcode != nil {
		b := strings.TrimSpace(*in.Barcode)
		if b == "" {
			in.Barcode = nil
		} else {
			in.Barcode = &b
		}
	}
	if in.Unit == "" {
		in.Unit = "pcs"
	}
	return nil
}
