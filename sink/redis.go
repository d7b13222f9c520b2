package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/zoobzio/batchq"
)

// Pusher is the part of a Redis client the Redis sink needs. *redis.Client
// and *redis.ClusterClient satisfy it.
type Pusher interface {
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
}

// Redis appends each batch to a list with a single RPUSH.
type Redis struct {
	client Pusher
	key    string
	logger *zap.Logger
}

var _ batchq.Consumer[string] = (*Redis)(nil)

// NewRedis creates a Redis sink appending to key.
func NewRedis(client Pusher, key string, logger *zap.Logger) *Redis {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Redis{client: client, key: key, logger: logger}
}

// RedisOptions configures NewRedisClient.
type RedisOptions struct {
	Host     string
	Port     int
	Password string
	Database int
	PoolSize int
}

// NewRedisClient connects to Redis and verifies the connection with PING.
func NewRedisClient(ctx context.Context, opts RedisOptions) (*redis.Client, error) {
	addr := opts.Host
	if opts.Port > 0 {
		addr = fmt.Sprintf("%s:%d", addr, opts.Port)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: opts.Password,
		DB:       opts.Database,
		PoolSize: opts.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "sink: ping redis %s", addr)
	}
	return client, nil
}

// ConsumeBatch implements batchq.Consumer.
func (r *Redis) ConsumeBatch(ctx context.Context, items []string) (bool, error) {
	values := make([]interface{}, len(items))
	for i, item := range items {
		values[i] = item
	}

	n, err := r.client.RPush(ctx, r.key, values...).Result()
	if err != nil {
		return false, errors.Wrapf(err, "sink: rpush %d items to %s", len(items), r.key)
	}

	r.logger.Debug("batch pushed", zap.String("key", r.key), zap.Int("size", len(items)), zap.Int64("length", n))
	return true, nil
}
