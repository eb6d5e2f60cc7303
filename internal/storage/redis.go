package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/maneesh/safeupload/internal/models"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultVerdictTTL is used when the cache is created without a TTL
	DefaultVerdictTTL = 24 * time.Hour
)

// RedisClient caches verdicts keyed by artifact kind and content key
type RedisClient struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient initializes a new Redis client
func NewRedisClient(addr, password string, db int, ttl time.Duration) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// Test the connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	if ttl <= 0 {
		ttl = DefaultVerdictTTL
	}
	return &RedisClient{client: client, ttl: ttl}, nil
}

// Close closes the Redis connection
func (rc *RedisClient) Close() error {
	return rc.client.Close()
}

func verdictKey(kind models.Kind, key string) string {
	return fmt.Sprintf("verdict:%s:%s", kind, key)
}

// GetVerdict looks up a cached verdict. ok is false on a miss.
func (rc *RedisClient) GetVerdict(ctx context.Context, kind models.Kind, key string) (v models.Verdict, ok bool, err error) {
	ctx, span := tracer.Start(ctx, "redis.get_verdict",
		trace.WithAttributes(
			attribute.String("kind", string(kind)),
			attribute.String("cache_key", key),
		),
	)
	defer span.End()

	n, err := rc.client.Get(ctx, verdictKey(kind, key)).Int()
	if err == redis.Nil {
		span.SetAttributes(attribute.String("cache_status", "miss"))
		return 0, false, nil // Cache miss, not an error
	} else if err != nil {
		span.RecordError(err)
		return 0, false, fmt.Errorf("failed to get from cache: %w", err)
	}

	v = models.Verdict(n)
	switch v {
	case models.Safe, models.Unsafe, models.Unreadable:
	default:
		return 0, false, fmt.Errorf("unexpected cached verdict %d", n)
	}

	span.SetAttributes(attribute.String("cache_status", "hit"))
	return v, true, nil
}

// SetVerdict stores a verdict with the configured TTL
func (rc *RedisClient) SetVerdict(ctx context.Context, kind models.Kind, key string, v models.Verdict) error {
	ctx, span := tracer.Start(ctx, "redis.set_verdict",
		trace.WithAttributes(
			attribute.String("kind", string(kind)),
			attribute.String("verdict", v.Label()),
		),
	)
	defer span.End()

	if err := rc.client.Set(ctx, verdictKey(kind, key), int(v), rc.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to set cache: %w", err)
	}

	span.SetAttributes(attribute.Int64("ttl_seconds", int64(rc.ttl.Seconds())))
	return nil
}
