// Package cache provides a Redis-backed response cache for completion
// results. Identical requests within the TTL are served from the cache
// instead of calling the provider again.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/modelgate/modelgate/internal/providers"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// DefaultTTL is how long cached completions stay valid when the
// configuration does not say otherwise.
const DefaultTTL = time.Hour

const keyPrefix = "modelgate:completion:"

// CachedResponse is the stored completion payload.
type CachedResponse struct {
	Text   string               `json:"text"`
	Tokens providers.TokenUsage `json:"tokens"`
	Cost   float64              `json:"cost"`
	Model  string               `json:"model"`
}

// ResponseCache stores completion results in Redis. A nil
// *ResponseCache is valid and never hits or stores, so callers need no
// enabled checks.
type ResponseCache struct {
	client *redis.Client
	ttl    time.Duration
}

// New connects to Redis at url. An empty url disables caching and
// returns nil without error.
func New(url string, ttl time.Duration) (*ResponseCache, error) {
	if url == "" {
		return nil, nil
	}
	opts, errParse := redis.ParseURL(url)
	if errParse != nil {
		return nil, fmt.Errorf("cache: invalid redis URL: %w", errParse)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if errPing := client.Ping(ctx).Err(); errPing != nil {
		return nil, fmt.Errorf("cache: connect to redis: %w", errPing)
	}

	if ttl <= 0 {
		ttl = DefaultTTL
	}
	log.WithField("ttl", ttl).Info("response cache connected")
	return &ResponseCache{client: client, ttl: ttl}, nil
}

// Key derives the cache key for one generation request. The hash covers
// everything that changes the completion; user identity is excluded so
// identical requests share entries only within the same provider+model.
func Key(provider, model, prompt, systemPrompt string, maxTokens int, temperature float64) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s|%d|%.4f", provider, model, prompt, systemPrompt, maxTokens, temperature)
	return keyPrefix + hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached response for key, or nil on a miss. Redis
// failures degrade to a miss and are logged, never surfaced.
func (c *ResponseCache) Get(ctx context.Context, key string) *CachedResponse {
	if c == nil {
		return nil
	}
	data, errGet := c.client.Get(ctx, key).Bytes()
	if errGet != nil {
		if !errors.Is(errGet, redis.Nil) {
			log.WithError(errGet).Warn("cache: get failed")
		}
		return nil
	}
	var resp CachedResponse
	if errDecode := json.Unmarshal(data, &resp); errDecode != nil {
		log.WithError(errDecode).Warn("cache: corrupt entry dropped")
		c.Delete(ctx, key)
		return nil
	}
	return &resp
}

// Put stores a response under key for the configured TTL. Best effort.
func (c *ResponseCache) Put(ctx context.Context, key string, resp *CachedResponse) {
	if c == nil || resp == nil {
		return
	}
	data, errEncode := json.Marshal(resp)
	if errEncode != nil {
		log.WithError(errEncode).Warn("cache: encode failed")
		return
	}
	if errSet := c.client.Set(ctx, key, data, c.ttl).Err(); errSet != nil {
		log.WithError(errSet).Warn("cache: put failed")
	}
}

// Delete removes one entry.
func (c *ResponseCache) Delete(ctx context.Context, key string) {
	if c == nil {
		return
	}
	if errDel := c.client.Del(ctx, key).Err(); errDel != nil {
		log.WithError(errDel).Warn("cache: delete failed")
	}
}

// Close releases the Redis connection.
func (c *ResponseCache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}
