package mpesa

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	tokenKeyPrefix = "mpesa:token:v1:"
	// tokenExpiryMargin keeps a cached token from being used right before
	// Daraja expires it.
	tokenExpiryMargin = 60 * time.Second
)

// TokenCache stores bearer tokens under keys built by tokenCacheKey.
type TokenCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, token string, ttl time.Duration) error
}

// tokenCacheKey scopes a token to the environment, the app and the consumer
// key, so instances with different credentials never share a token.
// Format: mpesa:token:v1:<env>:<app>:<sha256(consumerKey)[:12]>.
func tokenCacheKey(env string, app AppType, consumerKey string) string {
	sum := sha256.Sum256([]byte(consumerKey))
	return tokenKeyPrefix + env + ":" + string(app) + ":" + hex.EncodeToString(sum[:])[:12]
}

// RedisTokenCache keeps tokens in Redis so every replica shares them.
type RedisTokenCache struct {
	client *redis.Client
}

// NewRedisTokenCache returns nil when client is nil so callers can pass the
// result straight to NewCredentialManager.
func NewRedisTokenCache(client *redis.Client) TokenCache {
	if client == nil {
		return nil
	}
	return &RedisTokenCache{client: client}
}

func (r *RedisTokenCache) Get(ctx context.Context, key string) (string, bool, error) {
	token, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return token, true, nil
}

func (r *RedisTokenCache) Set(ctx context.Context, key, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return r.client.Set(ctx, key, token, ttl).Err()
}

// cacheTTL derives how long a token may be reused from Daraja's expires_in.
func cacheTTL(expiresIn flexInt) time.Duration {
	if !expiresIn.Set {
		return 0
	}
	ttl := time.Duration(expiresIn.Value)*time.Second - tokenExpiryMargin
	if ttl <= 0 {
		return 0
	}
	return ttl
}
