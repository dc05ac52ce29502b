package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/idan5353/video-threat-detection/pkg/models"
)

// Registry tracks live realtime connections. Implementations must be safe
// for concurrent use; every operation is idempotent.
type Registry interface {
	Register(ctx context.Context, connectionID string) error
	Deregister(ctx context.Context, connectionID string) error
	List(ctx context.Context) ([]models.Connection, error)
}

// Counter is a fixed-window counter used for rate limiting.
type Counter interface {
	IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error)
}

// RedisRegistry implements Registry and Counter using go-redis/v9.
type RedisRegistry struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisRegistry creates a new RedisRegistry from a Redis URL.
func NewRedisRegistry(redisURL string) (*RedisRegistry, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisRegistry{client: redis.NewClient(opts), now: time.Now}, nil
}

func (r *RedisRegistry) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisRegistry) Close() error {
	return r.client.Close()
}

// Register upserts connectionID. Re-registering refreshes its timestamp.
func (r *RedisRegistry) Register(ctx context.Context, connectionID string) error {
	stamp := r.now().UTC().Format(time.RFC3339Nano)
	if err := r.client.HSet(ctx, ConnectionsKey, connectionID, stamp).Err(); err != nil {
		return fmt.Errorf("register connection %s: %w", connectionID, err)
	}
	return nil
}

// Deregister removes connectionID; removing an unknown id is not an error.
func (r *RedisRegistry) Deregister(ctx context.Context, connectionID string) error {
	if err := r.client.HDel(ctx, ConnectionsKey, connectionID).Err(); err != nil {
		return fmt.Errorf("deregister connection %s: %w", connectionID, err)
	}
	return nil
}

// List returns every registered connection, oldest first.
func (r *RedisRegistry) List(ctx context.Context) ([]models.Connection, error) {
	entries, err := r.client.HGetAll(ctx, ConnectionsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}

	conns := make([]models.Connection, 0, len(entries))
	for id, stamp := range entries {
		at, err := time.Parse(time.RFC3339Nano, stamp)
		if err != nil {
			slog.Warn("connection has unparseable registration time", "connection_id", id, "value", stamp)
		}
		conns = append(conns, models.Connection{ConnectionID: id, RegisteredAt: at})
	}
	sort.Slice(conns, func(i, j int) bool {
		if conns[i].RegisteredAt.Equal(conns[j].RegisteredAt) {
			return conns[i].ConnectionID < conns[j].ConnectionID
		}
		return conns[i].RegisteredAt.Before(conns[j].RegisteredAt)
	})
	return conns, nil
}

func (r *RedisRegistry) IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error) {
	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, expiry)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

var (
	_ Registry = (*RedisRegistry)(nil)
	_ Counter  = (*RedisRegistry)(nil)
)
