package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// DefaultTTL is how long an idle conversation survives in Redis. It is
// refreshed on every load.
const DefaultTTL = 40 * time.Minute

// RedisStore persists conversation records in Redis with a sliding TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects to Redis from a URL and verifies the connection.
func NewRedisStore(ctx context.Context, redisURL string, ttl time.Duration) (*RedisStore, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("redis URL is required")
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}, nil
}

func conversationKey(conversationID string) string {
	return "conversation:" + conversationID
}

// Load fetches a record and refreshes its TTL.
func (s *RedisStore) Load(ctx context.Context, conversationID string) (*Record, error) {
	data, err := s.client.Get(ctx, conversationKey(conversationID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get conversation record: %w", err)
	}

	var rec Record
	if err := sonic.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conversation record: %w", err)
	}

	if err := s.client.Expire(ctx, conversationKey(conversationID), s.ttl).Err(); err != nil {
		log.Warn().Err(err).Str("conversation_id", conversationID).Msg("failed to refresh conversation TTL")
	}
	return &rec, nil
}

// Save writes a record with the configured TTL.
func (s *RedisStore) Save(ctx context.Context, conversationID string, rec *Record) error {
	data, err := sonic.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation record: %w", err)
	}

	if err := s.client.Set(ctx, conversationKey(conversationID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set conversation record: %w", err)
	}
	return nil
}

// Delete removes a conversation record.
func (s *RedisStore) Delete(ctx context.Context, conversationID string) error {
	if err := s.client.Del(ctx, conversationKey(conversationID)).Err(); err != nil {
		return fmt.Errorf("failed to delete conversation record: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
