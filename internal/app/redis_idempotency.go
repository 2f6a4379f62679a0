/**
 * @description
 * Redis-backed settlement idempotency. Authorization callers may tag each
 * request with the underlying transaction reference; when Redis is configured,
 * a SETNX-with-TTL guard drops duplicate settlements for the same reference so
 * a retried request cannot double-debit the sponsor. Without Redis the service
 * still decides correctly and deduplication stays the caller's responsibility.
 *
 * @dependencies
 * - github.com/redis/go-redis/v9: The Redis client library.
 */

package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// SettlementIdempotencyCache records settled transaction references.
type SettlementIdempotencyCache interface {
	// MarkSettled records the reference and reports whether this caller won
	// the claim. A false result means the reference was already settled.
	MarkSettled(ctx context.Context, sponsorAddress, txRef string) (bool, error)
	// Release drops a claim whose settlement did not commit, so a retry with
	// the same reference can settle.
	Release(ctx context.Context, sponsorAddress, txRef string) error
}

// RedisSettlementCache implements SettlementIdempotencyCache on Redis.
type RedisSettlementCache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisSettlementCache builds a cache with the given key prefix and TTL.
func NewRedisSettlementCache(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisSettlementCache {
	trimmedPrefix := strings.TrimSpace(prefix)
	if trimmedPrefix == "" {
		trimmedPrefix = "sponsorship:settled"
	}
	trimmedPrefix = strings.TrimSuffix(trimmedPrefix, ":")
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	return &RedisSettlementCache{client: client, prefix: trimmedPrefix, ttl: ttl}
}

func (c *RedisSettlementCache) MarkSettled(ctx context.Context, sponsorAddress, txRef string) (bool, error) {
	if c == nil || c.client == nil {
		return true, nil
	}
	won, err := c.client.SetNX(ctx, c.key(sponsorAddress, txRef), 1, c.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("settlement idempotency check failed: %w", err)
	}
	return won, nil
}

func (c *RedisSettlementCache) Release(ctx context.Context, sponsorAddress, txRef string) error {
	if c == nil || c.client == nil {
		return nil
	}
	if err := c.client.Del(ctx, c.key(sponsorAddress, txRef)).Err(); err != nil {
		return fmt.Errorf("settlement idempotency release failed: %w", err)
	}
	return nil
}

func (c *RedisSettlementCache) key(sponsorAddress, txRef string) string {
	return fmt.Sprintf("%s:%s:%s", c.prefix, strings.ToLower(sponsorAddress), txRef)
}
