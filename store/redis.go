package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRosterSource implements RosterSource on top of Redis sets.
// Each class roster is a set of principal IDs stored at prefix+classID.
type RedisRosterSource struct {
	client *redis.Client
	prefix string
}

var _ RosterSource = (*RedisRosterSource)(nil)

// NewRedisRosterSource creates a roster source from a Redis client and a key prefix.
// prefix typically ends with a colon.
func NewRedisRosterSource(client *redis.Client, keyPrefix string) *RedisRosterSource {
	if keyPrefix == "" {
		keyPrefix = "rollcall:roster:"
	}
	return &RedisRosterSource{
		client: client,
		prefix: keyPrefix,
	}
}

// RedisConfig contains configuration options for Redis.
type RedisConfig struct {
	// Addr is the Redis server address (e.g., "localhost:6379")
	Addr string

	// Password is the Redis password (empty for no auth)
	Password string

	// DB is the Redis database number (0-15)
	DB int

	// KeyPrefix is prepended to all roster keys (default: "rollcall:roster:").
	KeyPrefix string
}

// NewRedisRosterSourceFromConfig connects to Redis and verifies the connection.
func NewRedisRosterSourceFromConfig(cfg RedisConfig) (*RedisRosterSource, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis: failed to connect: %w", err)
	}

	return NewRedisRosterSource(client, cfg.KeyPrefix), nil
}

// Key returns the Redis key holding the roster of classID.
func (r *RedisRosterSource) Key(classID string) string {
	return r.prefix + classID
}

// Roster returns the members of the class roster set.
func (r *RedisRosterSource) Roster(ctx context.Context, classID string) ([]string, error) {
	members, err := r.client.SMembers(ctx, r.Key(classID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: failed to read roster: %w", err)
	}
	return members, nil
}

// Set replaces the roster of a class atomically (useful for seeding and tests).
func (r *RedisRosterSource) Set(ctx context.Context, classID string, principals []string) error {
	key := r.Key(classID)

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(principals) > 0 {
			members := make([]interface{}, len(principals))
			for i, p := range principals {
				members[i] = p
			}
			pipe.SAdd(ctx, key, members...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: failed to write roster: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (r *RedisRosterSource) Close() error {
	return r.client.Close()
}
