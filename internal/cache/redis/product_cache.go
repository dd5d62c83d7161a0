package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/vladislavdragonenkov/commerce-core/internal/domain"
)

// deleteByPatternScript удаляет ключи по маске server-side: SCAN с
// COUNT=100 вместо блокирующего KEYS.
var deleteByPatternScript = goredis.NewScript(`
local cursor = "0"
local deleted = 0
repeat
    local result = redis.call("SCAN", cursor, "MATCH", ARGV[1], "COUNT", 100)
    cursor = result[1]
    for _, key in ipairs(result[2]) do
        redis.call("DEL", key)
        deleted = deleted + 1
    end
until cursor == "0"
return deleted
`)

// ProductCache — read-through кэш листингов и деталей товара поверх Redis.
type ProductCache struct {
	client *goredis.Client
}

// NewProductCache создаёт кэш товаров.
func NewProductCache(client *goredis.Client) *ProductCache {
	return &ProductCache{client: client}
}

// Get возвращает значение и признак попадания.
func (c *ProductCache) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("cache get %s: %w", key, err)
	}
	return value, true, nil
}

// Set записывает значение с TTL.
func (c *ProductCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

// Delete удаляет перечисленные ключи.
func (c *ProductCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cache delete: %w", err)
	}
	return nil
}

// DeletePattern удаляет ключи по маске через Lua-скрипт со SCAN.
func (c *ProductCache) DeletePattern(ctx context.Context, pattern string) error {
	if err := deleteByPatternScript.Run(ctx, c.client, nil, pattern).Err(); err != nil {
		return fmt.Errorf("cache delete pattern %s: %w", pattern, err)
	}
	return nil
}

var _ domain.ProductCache = (*ProductCache)(nil)
