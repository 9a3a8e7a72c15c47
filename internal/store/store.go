// Package store persists listener queues. Backends: in-memory, SQLite and Redis.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"plexvoice/internal/core"
)

// Backend is a QueueStore that can be health-checked and closed.
type Backend interface {
	core.QueueStore
	Ping(ctx context.Context) error
	Close() error
}

// Open creates the backend selected by config.Backend.
func Open(ctx context.Context, config *core.QueueConfig, logger *zap.Logger) (Backend, error) {
	switch config.Backend {
	case core.BackendMemory:
		return NewMemoryStore(), nil
	case core.BackendSQLite:
		return NewSQLiteStore(ctx, config.SQLitePath, logger.Named("sqlite"))
	case core.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     config.RedisAddr,
			Password: config.RedisPassword,
			DB:       config.RedisDB,
		})

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", config.RedisAddr, err)
		}

		return NewRedisStore(client, config.TTL, logger.Named("redis")), nil
	default:
		return nil, fmt.Errorf("unknown queue backend %q", config.Backend)
	}
}
