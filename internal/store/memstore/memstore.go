// Package memstore is an in-memory repository used for local runs and tests.
// Transactions hold the write lock for their whole duration and restore a
// snapshot when the callback fails.
package memstore

import (
	"context"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"pos-service/internal/models"
	"pos-service/internal/repository"
)

type sequences struct {
	product, promotion, order, item, payment, ledger, user int64
}

type state struct {
	products   map[int64]models.Product
	promotions map[int64]models.Promotion
	orders     map[int64]models.Order
	items      map[int64][]models.OrderItem
	payments   map[int64]models.Payment
	ledger     []models.InventoryTransaction
	users      map[string]models.User
	seq        sequences
}

func (st *state) clone() *state {
	items := make(map[int64][]models.OrderItem, len(st.items))
	for k, v := range st.items {
		items[k] = append([]models.OrderItem(nil), v...)
	}
	return &state{
		products:   maps.Clone(st.products),
		promotions: maps.Clone(st.promotions),
		orders:     maps.Clone(st.orders),
		items:      items,
		payments:   maps.Clone(st.payments),
		ledger:     append([]models.InventoryTransaction(nil), st.ledger...),
		users:      maps.Clone(st.users),
		seq:        st.seq,
	}
}

type Store struct {
	mu sync.RWMutex
	st *state
	// now is swappable so tests can control timestamps.
	now func() time.Time
}

func New() *Store {
	return &Store{
		st: &state{
			products:   make(map[int64]models.Product),
			promotions: make(map[int64]models.Promotion),
			orders:     make(map[int64]models.Order),
			items:      make(map[int64][]models.OrderItem),
			payments:   make(map[int64]models.Payment),
			users:      make(map[string]models.User),
		},
		now: func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the timestamp source.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// AddUser registers an account. PasswordHash must already be a bcrypt hash.
func (s *Store) AddUser(user models.User) models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.seq.user++
	user.ID = s.st.seq.user
	user.CreatedAt = s.now()
	s.st.users[user.Username] = user
	return user
}

func (s *Store) Ping(ctx context.Context) error {
	return nil
}

func (s *Store) view() *view {
	return &view{st: s.st, now: s.now}
}

// WithTx runs fn with exclusive access and rolls every change back if fn fails.
func (s *Store) WithTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	if err := fn(s.view()); err != nil {
		*s.st = *snapshot
		return err
	}
	return nil
}

func (s *Store) ListProducts(ctx context.Context, filter models.ProductFilter) ([]models.Product, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := strings.ToLower(strings.TrimSpace(filter.Query))
	var out []models.Product
	for _, p := range s.st.products {
		if p.IsDeleted && !filter.IncludeDeleted {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(p.Name), q) && (p.Barcode == nil || *p.Barcode != filter.Query) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return paginate(out, filter.Page)
}

func (s *Store) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.st.products[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (s *Store) GetProductByBarcode(ctx context.Context, barcode string) (*models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.st.products {
		if !p.IsDeleted && p.Barcode != nil && *p.Barcode == barcode {
			return &p, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *Store) GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.Product{}
	for _, id := range ids {
		if p, ok := s.st.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Store) CreateProduct(ctx context.Context, product *models.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.Barcode != nil && s.barcodeTaken(*product.Barcode, 0) {
		return repository.ErrDuplicate
	}
	s.st.seq.product++
	product.ID = s.st.seq.product
	product.IsDeleted = false
	product.CreatedAt = s.now()
	product.UpdatedAt = product.CreatedAt
	s.st.products[product.ID] = *product
	return nil
}

func (s *Store) UpdateProduct(ctx context.Context, product *models.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.st.products[product.ID]
	if !ok || current.IsDeleted {
		return repository.ErrNotFound
	}
	if product.Barcode != nil && s.barcodeTaken(*product.Barcode, product.ID) {
		return repository.ErrDuplicate
	}
	current.Name = product.Name
	current.Barcode = product.Barcode
	current.Price = product.Price
	current.Unit = product.Unit
	current.UpdatedAt = s.now()
	s.st.products[product.ID] = current
	*product = current
	return nil
}

func (s *Store) barcodeTaken(barcode string, exceptID int64) bool {
	for _, p := range s.st.products {
		if p.ID != exceptID && p.Barcode != nil && *p.Barcode == barcode {
			return true
		}
	}
	return false
}

func (s *Store) SoftDeleteProduct(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.st.products[id]
	if !ok || p.IsDeleted {
		return repository.ErrNotFound
	}
	p.IsDeleted = true
	p.UpdatedAt = s.now()
	s.st.products[id] = p
	return nil
}

func (s *Store) ListInventoryTransactions(ctx context.Context, filter models.InventoryFilter) ([]models.InventoryTransaction, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.InventoryTransaction
	for i := len(s.st.ledger) - 1; i >= 0; i-- {
		e := s.st.ledger[i]
		if filter.ProductID != nil && e.ProductID != *filter.ProductID {
			continue
		}
		out = append(out, e)
	}
	return paginate(out, filter.Page)
}

func (s *Store) ListPromotions(ctx context.Context, filter models.PromotionFilter) ([]models.Promotion, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Promotion
	for _, p := range s.st.promotions {
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return paginate(out, filter.Page)
}

func (s *Store) GetPromotionByID(ctx context.Context, id int64) (*models.Promotion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.st.promotions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (s *Store) GetPromotionByCode(ctx context.Context, code string) (*models.Promotion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.st.promotions {
		if p.Code == code {
			return &p, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *Store) CreatePromotion(ctx context.Context, promo *models.Promotion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.codeTaken(promo.Code, 0) {
		return repository.ErrDuplicate
	}
	s.st.seq.promotion++
	promo.ID = s.st.seq.promotion
	promo.UsedCount = 0
	promo.CreatedAt = s.now()
	promo.UpdatedAt = promo.CreatedAt
	s.st.promotions[promo.ID] = *promo
	return nil
}

func (s *Store) UpdatePromotion(ctx context.Context, promo *models.Promotion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.st.promotions[promo.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if s.codeTaken(promo.Code, promo.ID) {
		return repository.ErrDuplicate
	}
	promo.UsedCount = current.UsedCount
	promo.CreatedAt = current.CreatedAt
	promo.UpdatedAt = s.now()
	s.st.promotions[promo.ID] = *promo
	return nil
}

func (s *Store) codeTaken(code string, exceptID int64) bool {
	for _, p := range s.st.promotions {
		if p.ID != exceptID && p.Code == code {
			return true
		}
	}
	return false
}

func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().GetOrderByID(ctx, id)
}

func (s *Store) GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, o := range s.st.orders {
		if o.IdempotencyKey != nil && *o.IdempotencyKey == key {
			return &o, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *Store) GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().GetOrderItemsByOrderID(ctx, orderID)
}

func (s *Store) ListOrders(ctx context.Context, filter models.OrderFilter) ([]models.Order, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Order
	for _, o := range s.st.orders {
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		if filter.UserID != nil && (o.UserID == nil || *o.UserID != *filter.UserID) {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return paginate(out, filter.Page)
}

func (s *Store) ListPendingOrdersBefore(ctx context.Context, before time.Time, limit int) ([]models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []models.Order{}
	for _, o := range s.st.orders {
		if o.Status == models.OrderStatusPending && o.OrderDate.Before(before) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderDate.Before(out[j].OrderDate) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) GetPaymentByOrderID(ctx context.Context, orderID int64) (*models.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().GetPaymentByOrderID(ctx, orderID)
}

func (s *Store) GetPaymentByRequestID(ctx context.Context, requestID string) (*models.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().GetPaymentByRequestID(ctx, requestID)
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.st.users[username]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func paginate[T any](rows []T, page models.Page) ([]T, int, error) {
	page = page.Normalize()
	total := len(rows)
	start := page.Offset()
	if start > total {
		start = total
	}
	end := start + page.PageSize
	if end > total {
		end = total
	}
	out := make([]T, 0, end-start)
	out = append(out, rows[start:end]...)
	return out, total, nil
}
