package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"crowdtest/internal/model"
)

// Cache holds wallet balances in Redis keyed by account id. Entries carry
// no TTL; writers invalidate after every committed balance change and the
// service warms entries back up on the next read.
type Cache struct {
	client *redis.Client
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func balanceKey(accountID string) string {
	return fmt.Sprintf("balance:%s", accountID)
}

func (c *Cache) Balance(ctx context.Context, accountID string) (int64, error) {
	val, err := c.client.Get(ctx, balanceKey(accountID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, model.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("redis get balance: %w", err)
	}
	return val, nil
}

func (c *Cache) SetBalance(ctx context.Context, accountID string, balance int64) error {
	if err := c.client.Set(ctx, balanceKey(accountID), balance, 0).Err(); err != nil {
		return fmt.Errorf("redis set balance: %w", err)
	}
	return nil
}

func (c *Cache) Invalidate(ctx context.Context, accountIDs ...string) error {
	if len(accountIDs) == 0 {
		return nil
	}
	keys := make([]string, len(accountIDs))
	for i, id := range accountIDs {
		keys[i] = balanceKey(id)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del balance: %w", err)
	}
	return nil
}
