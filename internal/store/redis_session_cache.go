/**
 * @description
 * Cache of last-known-good auth sessions. The session validator purges a
 * user's entry strictly before attempting a token refresh so a poisoned
 * token is never replayed, and the repair flow's hard reset wipes it too.
 */
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stormwellnessclub/member-portal/internal/domain"
)

// sessionCacheTTL keeps cached sessions short-lived; the provider remains the
// source of truth.
const sessionCacheTTL = 30 * time.Minute

// RedisSessionCache stores validated session token pairs per user.
type RedisSessionCache struct {
	client redis.UniversalClient
}

// NewRedisSessionCache creates a new session cache.
func NewRedisSessionCache(client redis.UniversalClient) *RedisSessionCache {
	return &RedisSessionCache{client: client}
}

func sessionKey(userID string) string {
	return fmt.Sprintf("portal:session:v1:%s", userID)
}

// Put caches a validated session for the user.
func (c *RedisSessionCache) Put(ctx context.Context, userID string, session domain.Session) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, sessionKey(userID), payload, sessionCacheTTL).Err()
}

// Get returns the cached session, or nil when absent.
func (c *RedisSessionCache) Get(ctx context.Context, userID string) (*domain.Session, error) {
	raw, err := c.client.Get(ctx, sessionKey(userID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	var session domain.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, nil
	}
	return &session, nil
}

// Purge removes the cached session. Safe to call repeatedly.
func (c *RedisSessionCache) Purge(ctx context.Context, userID string) error {
	return c.client.Del(ctx, sessionKey(userID)).Err()
}
