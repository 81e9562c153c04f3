// Package cache is a side, non-authoritative cache of terminal payment
// statuses. The ledger's compare-and-swap stays the source of truth; a cache
// miss or failure only costs an extra ledger read.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/kiranik/storefront/internal/models"
	"github.com/redis/go-redis/v9"
)

const statusKeyPrefix = "order_status:"

// StatusCache caches terminal order statuses in redis
type StatusCache struct {
	client *redis.Client
	ttl    time.Duration
}

// New creates new StatusCache instance and checks connectivity
func New(addr, password string, db int, ttl time.Duration) (*StatusCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &StatusCache{client: client, ttl: ttl}, nil
}

// GetStatus returns cached status for gateway order id
func (c *StatusCache) GetStatus(ctx context.Context, gatewayOrderID string) (string, bool) {
	val, err := c.client.Get(ctx, statusKeyPrefix+gatewayOrderID).Result()
	if err != nil {
		return "", false
	}
	return val, true
}

// SetStatus caches status if it is terminal; best effort
func (c *StatusCache) SetStatus(ctx context.Context, gatewayOrderID, status string) {
	if !models.PaymentStatusTerminal(status) {
		return
	}
	c.client.Set(ctx, statusKeyPrefix+gatewayOrderID, status, c.ttl)
}

// Close closes redis connection
func (c *StatusCache) Close() error {
	return c.client.Close()
}
