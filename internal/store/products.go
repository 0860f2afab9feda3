package store

import (
	"context"
	"fmt"
	"strings"

	"pos-service/internal/models"
	"pos-service/internal/repository"

	"github.com/jmoiron/sqlx"
)

const productColumns = "id, name, barcode, price, unit, stock, is_deleted, created_at, updated_at"

// ListProducts returns a page of products matching the filter and the total count.
func (s *queries) ListProducts(ctx context.Context, filter models.ProductFilter) ([]models.Product, int, error) {
	page := filter.Page.Normalize()

	var where []string
	var args []interface{}
	if !filter.IncludeDeleted {
		where = append(where, "is_deleted = FALSE")
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		args = append(args, "%"+q+"%", q)
		where = append(where, fmt.Sprintf("(name ILIKE $%d OR barcode = $%d)", len(args)-1, len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := sqlx.GetContext(ctx, s.q, &total, "SELECT COUNT(*) FROM products"+clause, args...); err != nil {
		return nil, 0, err
	}

	args = append(args, page.PageSize, page.Offset())
	query := fmt.Sprintf("SELECT %s FROM products%s ORDER BY id LIMIT $%d OFFSET $%d",
		productColumns, clause, len(args)-1, len(args))

	products := []models.Product{}
	if err := sqlx.SelectContext(ctx, s.q, &products, query, args...); err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

// GetProductByID retrieves a product by ID, deleted or not
func (s *queries) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := sqlx.GetContext(ctx, s.q, &product,
		"SELECT "+productColumns+" FROM products WHERE id = $1", id)
	if err != nil {
		return nil, notFound(err)
	}
	return &product, nil
}

// GetProductByBarcode retrieves a live product by barcode
func (s *queries) GetProductByBarcode(ctx context.Context, barcode string) (*models.Product, error) {
	var product models.Product
	err := sqlx.GetContext(ctx, s.q, &product,
		"SELECT "+productColumns+" FROM products WHERE barcode = $1 AND is_deleted = FALSE", barcode)
	if err != nil {
		return nil, notFound(err)
	}
	return &product, nil
}

// GetProductsByIDs retrieves multiple products by IDs
func (s *queries) GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error) {
	if len(ids) == 0 {
		return []models.Product{}, nil
	}

	query, args, err := sqlx.In("SELECT "+productColumns+" FROM products WHERE id IN (?)", ids)
	if err != nil {
		return nil, err
	}
	query = s.q.Rebind(query)

	var products []models.Product
	err = sqlx.SelectContext(ctx, s.q, &products, query, args...)
	return products, err
}

func (s *queries) CreateProduct(ctx context.Context, product *models.Product) error {
	query := `
		INSERT INTO products (name, barcode, price, unit, stock)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, is_deleted, created_at, updated_at`

	err := sqlx.GetContext(ctx, s.q, product, query,
		product.Name, product.Barcode, product.Price, product.Unit, product.Stock)
	if isUniqueViolation(err) {
		return repository.ErrDuplicate
	}
	return err
}

// UpdateProduct updates catalog fields. Stock is only changed through the ledger.
func (s *queries) UpdateProduct(ctx context.Context, product *models.Product) error {
	query := `
		UPDATE products SET name = $1, barcode = $2, price = $3, unit = $4, updated_at = NOW()
		WHERE id = $5 AND is_deleted = FALSE
		RETURNING stock, created_at, updated_at`

	err := sqlx.GetContext(ctx, s.q, product, query,
		product.Name, product.Barcode, product.Price, product.Unit, product.ID)
	if isUniqueViolation(err) {
		return repository.ErrDuplicate
	}
	return notFound(err)
}

// SoftDeleteProduct flags the product; order items keep referencing it.
func (s *queries) SoftDeleteProduct(ctx context.Context, id int64) error {
	res, err := s.q.ExecContext(ctx,
		"UPDATE products SET is_deleted = TRUE, updated_at = NOW() WHERE id = $1 AND is_deleted = FALSE", id)
	if err != nil {
		return err
	}
	return affected(res, repository.ErrNotFound)
}

// DecrementStock is a single conditional update; zero rows means not enough stock.
func (s *queries) DecrementStock(ctx context.Context, productID int64, quantity int) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE products SET stock = stock - $1, updated_at = NOW()
		WHERE id = $2 AND stock >= $1 AND is_deleted = FALSE`,
		quantity, productID)
	if err != nil {
		return fmt.Errorf("failed to decrement stock: %w", err)
	}
	return affected(res, repository.ErrInsufficientStock)
}

// IncrementStock adds stock back (stock-in or restock compensation).
func (s *queries) IncrementStock(ctx context.Context, productID int64, quantity int) error {
	res, err := s.q.ExecContext(ctx,
		"UPDATE products SET stock = stock + $1, updated_at = NOW() WHERE id = $2",
		quantity, productID)
	if err != nil {
		return fmt.Errorf("failed to increment stock: %w", err)
	}
	return affected(res, repository.ErrNotFound)
}

func (s *queries) CreateInventoryTransaction(ctx context.Context, entry *models.InventoryTransaction) error {
	query := `
		INSERT INTO inventory_transactions (product_id, quantity, type, order_id, note, user_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	return sqlx.GetContext(ctx, s.q, entry, query,
		entry.ProductID, entry.Quantity, entry.Type, entry.OrderID, entry.Note, entry.UserID)
}

func (s *queries) ListInventoryTransactions(ctx context.Context, filter models.InventoryFilter) ([]models.InventoryTransaction, int, error) {
	page := filter.Page.Normalize()

	clause := ""
	var args []interface{}
	if filter.ProductID != nil {
		args = append(args, *filter.ProductID)
		clause = " WHERE product_id = $1"
	}

	var total int
	if err := sqlx.GetContext(ctx, s.q, &total, "SELECT COUNT(*) FROM inventory_transactions"+clause, args...); err != nil {
		return nil, 0, err
	}

	args = append(args, page.PageSize, page.Offset())
	query := fmt.Sprintf(`
		SELECT id, product_id, quantity, type, order_id, note, user_id, created_at
		FROM inventory_transactions%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		clause, len(args)-1, len(args))

	entries := []models.InventoryTransaction{}
	if err := sqlx.SelectContext(ctx, s.q, &entries, query, args...); err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}
