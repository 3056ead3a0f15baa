// Package store provides persistent session.Store backends.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sweetpotato0/adaptive-rag/message"
	"github.com/sweetpotato0/adaptive-rag/session"
)

// RedisStore keeps each thread as a Redis list of JSON-encoded messages.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ session.Store = (*RedisStore)(nil)

// RedisConfig holds Redis configuration for sessions.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	// TTL is refreshed on every append. Zero keeps threads forever.
	TTL time.Duration
}

// DefaultRedisConfig returns the local development settings.
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:   "localhost:6379",
		Prefix: "adaptive-rag:session:",
		TTL:    24 * time.Hour,
	}
}

// NewRedisStore creates a new Redis-based session store.
func NewRedisStore(config *RedisConfig) *RedisStore {
	if config == nil {
		config = DefaultRedisConfig()
	}
	prefix := config.Prefix
	if prefix == "" {
		prefix = DefaultRedisConfig().Prefix
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	return &RedisStore{
		client: client,
		prefix: prefix,
		ttl:    config.TTL,
	}
}

// Append implements session.Store.
func (s *RedisStore) Append(ctx context.Context, threadID string, msgs ...*message.Message) error {
	if threadID == "" {
		return fmt.Errorf("thread id cannot be empty")
	}
	values := make([]any, 0, len(msgs))
	for _, msg := range msgs {
		if msg == nil {
			continue
		}
		raw, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}
		values = append(values, raw)
	}
	if len(values) == 0 {
		return nil
	}

	key := s.threadKey(threadID)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, values...)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append messages: %w", err)
	}
	return nil
}

// Messages implements session.Store.
func (s *RedisStore) Messages(ctx context.Context, threadID string) ([]*message.Message, error) {
	raws, err := s.client.LRange(ctx, s.threadKey(threadID), 0, -1).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}

	msgs := make([]*message.Message, 0, len(raws))
	for _, raw := range raws {
		var msg message.Message
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			return nil, fmt.Errorf("failed to decode message: %w", err)
		}
		msgs = append(msgs, &msg)
	}
	return msgs, nil
}

// Delete implements session.Store.
func (s *RedisStore) Delete(ctx context.Context, threadID string) error {
	if err := s.client.Del(ctx, s.threadKey(threadID)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Close closes the underlying Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks if Redis connection is alive.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) threadKey(threadID string) string {
	return s.prefix + threadID
}
