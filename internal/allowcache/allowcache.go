// Package allowcache provides an optional Redis-backed TTL cache of
// caller-pushed custom allow/deny pattern overrides, keyed by
// environment, for internal/allowdeny to consult alongside its static
// Config.
//
// Grounded directly on internal/vault/vault.go: sessionKey/Store/
// LookupAll's pipeline-then-expire, hash-per-scope shape, reused here
// with environment in place of session id.
package allowcache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vura/sentinel/pkg/piitypes"
)

const defaultTTL = 30 * time.Minute

// Cache stores per-environment allow/deny pattern overrides in Redis.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// New creates a Cache connected to addr.
func New(addr, password string, db int) *Cache {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	return &Cache{client: client, ttl: defaultTTL}
}

// NewWithClient builds a Cache from an existing client, for tests.
func NewWithClient(client *redis.Client) *Cache {
	return &Cache{client: client, ttl: defaultTTL}
}

func scopeKey(environment string) string {
	return fmt.Sprintf("sentinel:allowdeny:%s", environment)
}

// PutAllow stores the allow pattern list for a type within an
// environment scope, refreshing the scope's TTL.
func (c *Cache) PutAllow(ctx context.Context, environment string, t piitypes.PIIType, patterns []string) error {
	return c.put(ctx, environment, "allow:"+string(t), patterns)
}

// PutDeny stores the deny pattern list for a type within an environment scope.
func (c *Cache) PutDeny(ctx context.Context, environment string, t piitypes.PIIType, patterns []string) error {
	return c.put(ctx, environment, "deny:"+string(t), patterns)
}

func (c *Cache) put(ctx context.Context, environment, field string, patterns []string) error {
	data, err := json.Marshal(patterns)
	if err != nil {
		return fmt.Errorf("marshal patterns: %w", err)
	}
	key := scopeKey(environment)
	pipe := c.client.Pipeline()
	pipe.HSet(ctx, key, field, data)
	pipe.Expire(ctx, key, c.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

// Load retrieves all allow/deny overrides for an environment scope.
func (c *Cache) Load(ctx context.Context, environment string) (allow, deny map[piitypes.PIIType][]string, err error) {
	raw, err := c.client.HGetAll(ctx, scopeKey(environment)).Result()
	if err != nil {
		return nil, nil, err
	}
	allow = make(map[piitypes.PIIType][]string)
	deny = make(map[piitypes.PIIType][]string)
	for field, data := range raw {
		var patterns []string
		if err := json.Unmarshal([]byte(data), &patterns); err != nil {
			return nil, nil, fmt.Errorf("unmarshal patterns for %s: %w", field, err)
		}
		switch {
		case len(field) > 6 && field[:6] == "allow:":
			allow[piitypes.PIIType(field[6:])] = patterns
		case len(field) > 5 && field[:5] == "deny:":
			deny[piitypes.PIIType(field[5:])] = patterns
		}
	}
	return allow, deny, nil
}

// Clear removes all overrides for an environment scope.
func (c *Cache) Clear(ctx context.Context, environment string) error {
	return c.client.Del(ctx, scopeKey(environment)).Err()
}

// SetTTL configures the TTL applied to each environment scope.
func (c *Cache) SetTTL(ttl time.Duration) { c.ttl = ttl }

// Close shuts down the underlying Redis client.
func (c *Cache) Close() error { return c.client.Close() }
