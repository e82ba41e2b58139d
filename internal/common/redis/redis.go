package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"github.com/hamedsh/walletledger/internal/common/config"
	"github.com/hamedsh/walletledger/internal/common/logger"
)

// Client wraps the redis connection with the small cache surface the wallet
// service uses. Redis is a read-side accelerator only; the database stays the
// source of truth for balances and idempotency.
type Client struct {
	rdb    *goredis.Client
	logger *logger.Logger
}

func Connect(cfg config.RedisConfig, log *logger.Logger) (*Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Host + ":" + cfg.Port,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Infof("Connected to Redis on %s:%s", cfg.Host, cfg.Port)
	return &Client{rdb: rdb, logger: log}, nil
}

func balanceKey(walletUUID string) string {
	return "wallet:balance:" + walletUUID
}

func idempotencyKey(key string) string {
	return "idempotency:tx:" + key
}

// CacheWalletBalance stores a wallet balance for fast GET responses.
func (c *Client) CacheWalletBalance(ctx context.Context, walletUUID string, balance int64, ttl time.Duration) error {
	return c.rdb.Set(ctx, balanceKey(walletUUID), balance, ttl).Err()
}

// GetCachedWalletBalance returns the cached balance and whether it was found.
func (c *Client) GetCachedWalletBalance(ctx context.Context, walletUUID string) (int64, bool, error) {
	val, err := c.rdb.Get(ctx, balanceKey(walletUUID)).Result()
	if err == goredis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get cached balance: %w", err)
	}

	balance, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt cached balance %q: %w", val, err)
	}
	return balance, true, nil
}

func (c *Client) InvalidateWalletBalance(ctx context.Context, walletUUID string) {
	if err := c.rdb.Del(ctx, balanceKey(walletUUID)).Err(); err != nil {
		c.logger.Warnf("Failed to invalidate balance cache for %s: %v", walletUUID, err)
	}
}

// CacheIdempotentTransaction remembers which transaction a key resolved to,
// so replays skip the database lookup.
func (c *Client) CacheIdempotentTransaction(ctx context.Context, key string, transactionID int64, ttl time.Duration) error {
	return c.rdb.Set(ctx, idempotencyKey(key), transactionID, ttl).Err()
}

// GetIdempotentTransaction returns the transaction id stored for key, if any.
func (c *Client) GetIdempotentTransaction(ctx context.Context, key string) (int64, bool, error) {
	val, err := c.rdb.Get(ctx, idempotencyKey(key)).Result()
	if err == goredis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get idempotency cache: %w", err)
	}

	id, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt idempotency cache %q: %w", val, err)
	}
	return id, true, nil
}

func (c *Client) FlushDB(ctx context.Context) error {
	return c.rdb.FlushDB(ctx).Err()
}

func (c *Client) Close() error {
	return c.rdb.Close()
}
