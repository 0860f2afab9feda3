package redisclient

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"pos-service/internal/models"
	"pos-service/internal/util"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

//go:embed scripts/release_lock.lua
var releaseLockScript string

//go:embed scripts/extend_lock.lua
var extendLockScript string

const defaultProductTTL = 30 * time.Second

type Client struct {
	rdb           *redis.Client
	releaseScript *redis.Script
	extendScript  *redis.Script
	productTTL    time.Duration
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{
		rdb:           rdb,
		releaseScript: redis.NewScript(releaseLockScript),
		extendScript:  redis.NewScript(extendLockScript),
		productTTL:    defaultProductTTL,
	}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func productKey(id int64) string {
	return fmt.Sprintf("product:%d", id)
}

func barcodeKey(barcode string) string {
	return "product:barcode:" + barcode
}

// GetProduct returns a cached product, or (nil, nil) on a miss.
func (c *Client) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	data, err := c.rdb.Get(ctx, productKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var product models.Product
	if err := json.Unmarshal(data, &product); err != nil {
		util.GetLogger().Warn("Dropping undecodable cached product", zap.Int64("product_id", id), zap.Error(err))
		_ = c.rdb.Del(ctx, productKey(id)).Err()
		return nil, nil
	}
	return &product, nil
}

// GetProductByBarcode follows the barcode index to the product entry.
func (c *Client) GetProductByBarcode(ctx context.Context, barcode string) (*models.Product, error) {
	raw, err := c.rdb.Get(ctx, barcodeKey(barcode)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, nil
	}
	return c.GetProduct(ctx, id)
}

func (c *Client) SetProduct(ctx context.Context, product *models.Product) error {
	data, err := json.Marshal(product)
	if err != nil {
		return fmt.Errorf("failed to marshal product: %w", err)
	}

	pipe := c.rdb.Pipeline()
	pipe.Set(ctx, productKey(product.ID), data, c.productTTL)
	if product.Barcode != nil {
		pipe.Set(ctx, barcodeKey(*product.Barcode), product.ID, c.productTTL)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// InvalidateProduct drops the product entry and any barcode index entries given.
func (c *Client) InvalidateProduct(ctx context.Context, id int64, barcodes ...string) error {
	keys := []string{productKey(id)}
	for _, b := range barcodes {
		if b != "" {
			keys = append(keys, barcodeKey(b))
		}
	}
	return c.rdb.Del(ctx, keys...).Err()
}

func revokedKey(jti string) string {
	return "revoked:" + jti
}

// RevokeToken blacklists a token id until it would have expired anyway.
func (c *Client) RevokeToken(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return c.rdb.Set(ctx, revokedKey(jti), 1, ttl).Err()
}

func (c *Client) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := c.rdb.Exists(ctx, revokedKey(jti)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// AcquireLock takes a distributed lock and returns the owner token needed to release it.
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (string, bool, error) {
	token := uuid.New().String()
	ok, err := c.rdb.SetNX(ctx, "lock:"+lockKey, token, ttl).Result()
	if err != nil || !ok {
		return "", false, err
	}
	return token, true, nil
}

// ExtendLock pushes the expiry of a lock still owned by token.
func (c *Client) ExtendLock(ctx context.Context, lockKey, token string, ttl time.Duration) (bool, error) {
	n, err := c.extendScript.Run(ctx, c.rdb, []string{"lock:" + lockKey}, token, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("extend lock script failed: %w", err)
	}
	return n == 1, nil
}

// ReleaseLock deletes the lock if token still owns it.
func (c *Client) ReleaseLock(ctx context.Context, lockKey, token string) error {
	if _, err := c.releaseScript.Run(ctx, c.rdb, []string{"lock:" + lockKey}, token).Result(); err != nil {
		return fmt.Errorf("release lock script failed: %w", err)
	}
	return nil
}
