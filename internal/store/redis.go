package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "captran:"

// RedisMemory shares a translation memory between processes through Redis.
type RedisMemory struct {
	client    *redis.Client
	ttl       time.Duration
	keyPrefix string
}

type RedisConfig struct {
	URL       string        `mapstructure:"url"`
	TTL       time.Duration `mapstructure:"ttl"`
	KeyPrefix string        `mapstructure:"key_prefix"`
}

// NewRedisMemory connects to Redis and verifies the connection.
func NewRedisMemory(ctx context.Context, cfg RedisConfig) (*RedisMemory, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to reach redis: %w", err)
	}

	return NewRedisMemoryFromClient(client, cfg.TTL, cfg.KeyPrefix), nil
}

// NewRedisMemoryFromClient wraps an existing client.
func NewRedisMemoryFromClient(client *redis.Client, ttl time.Duration, keyPrefix string) *RedisMemory {
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	if ttl < 0 {
		ttl = 0
	}
	return &RedisMemory{
		client:    client,
		ttl:       ttl,
		keyPrefix: keyPrefix,
	}
}

// Key returns the Redis key for one memory entry.
func (m *RedisMemory) Key(text, lang, model string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + normalizeText(text)))
	return m.keyPrefix + lang + ":" + hex.EncodeToString(sum[:])
}

func (m *RedisMemory) Lookup(ctx context.Context, text, lang, model string) (string, bool, error) {
	val, err := m.client.Get(ctx, m.Key(text, lang, model)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (m *RedisMemory) Remember(ctx context.Context, text, lang, model, translated string) error {
	return m.client.Set(ctx, m.Key(text, lang, model), translated, m.ttl).Err()
}

func (m *RedisMemory) Ping(ctx context.Context) error {
	return m.client.Ping(ctx).Err()
}

func (m *RedisMemory) Close() error {
	return m.client.Close()
}

var _ Memory = (*RedisMemory)(nil)
