package redisclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"storefront/internal/cart"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// maxTxRetries bounds optimistic retries when a watched cart key changes
// under us.
const maxTxRetries = 5

var ErrCartContention = errors.New("cart update conflicted too many times")

type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client and verifies the connection
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

	return &Client{rdb: rdb}, nil
}

// NewClientWithRedis wraps an existing go-redis client.
func NewClientWithRedis(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func cartKey(owner string) string {
	return fmt.Sprintf("cart:%s", owner)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func readCart(ctx context.Context, cmd getter, key string) (*cart.Cart, error) {
	raw, err := cmd.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return cart.New(), nil
	}
	if err != nil {
		return nil, err
	}

	c := cart.New()
	if err := json.Unmarshal(raw, c); err != nil {
		return nil, fmt.Errorf("corrupt cart %s: %w", key, err)
	}
	if c.Items == nil {
		c.Items = []cart.Item{}
	}
	return c, nil
}

// GetCart returns the stored cart, or an empty one.
func (c *Client) GetCart(ctx context.Context, owner string) (*cart.Cart, error) {
	return readCart(ctx, c.rdb, cartKey(owner))
}

// UpdateCart loads the cart, applies fn and writes it back inside a
// WATCH/MULTI transaction, refreshing the TTL. An error from fn aborts
// without writing.
func (c *Client) UpdateCart(ctx context.Context, owner string, ttl time.Duration, fn func(*cart.Cart) error) (*cart.Cart, error) {
	key := cartKey(owner)
	var result *cart.Cart

	txf := func(tx *redis.Tx) error {
		current, err := readCart(ctx, tx, key)
		if err != nil {
			return err
		}
		if err := fn(current); err != nil {
			return err
		}
		raw, err := json.Marshal(current)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, ttl)
			return nil
		})
		if err == nil {
			result = current
		}
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := c.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return result, nil
	}
	return nil, ErrCartContention
}

// DeleteCart removes the stored cart.
func (c *Client) DeleteCart(ctx context.Context, owner string) error {
	return c.rdb.Del(ctx, cartKey(owner)).Err()
}

// MergeCarts folds the cart stored under from into the one under to and
// deletes from, atomically.
func (c *Client) MergeCarts(ctx context.Context, from, to string, ttl time.Duration) (*cart.Cart, error) {
	fromKey, toKey := cartKey(from), cartKey(to)
	var result *cart.Cart

	txf := func(tx *redis.Tx) error {
		src, err := readCart(ctx, tx, fromKey)
		if err != nil {
			return err
		}
		dst, err := readCart(ctx, tx, toKey)
		if err != nil {
			return err
		}
		if src.IsEmpty() {
			result = dst
			return nil
		}
		dst.Merge(src)
		raw, err := json.Marshal(dst)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, toKey, raw, ttl)
			pipe.Del(ctx, fromKey)
			return nil
		})
		if err == nil {
			result = dst
		}
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := c.rdb.Watch(ctx, txf, fromKey, toKey)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return result, nil
	}
	return nil, ErrCartContention
}

// SetIdempotencyKey stores an idempotency key with TTL. It returns false if
// the key already existed.
func (c *Client) SetIdempotencyKey(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("idempotency:%s", key), "1", ttl).Result()
}

// CheckIdempotencyKey checks if an idempotency key exists
func (c *Client) CheckIdempotencyKey(ctx context.Context, key string) (bool, error) {
	result, err := c.rdb.Exists(ctx, fmt.Sprintf("idempotency:%s", key)).Result()
	if err != nil {
		return false, err
	}
	return result > 0, nil
}

// AcquireLock acquires a distributed lock. The returned token must be passed
// to ReleaseLock; an empty token means the lock is held by someone else.
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	ok, err := c.rdb.SetNX(ctx, fmt.Sprintf("lock:%s", lockKey), token, ttl).Result()
	if err != nil || !ok {
		return "", err
	}
	return token, nil
}

// ReleaseLock releases the lock only if it is still held with token.
func (c *Client) ReleaseLock(ctx context.Context, lockKey, token string) error {
	key := fmt.Sprintf("lock:%s", lockKey)
	err := c.rdb.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		if current != token {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return nil
	}
	return err
}
