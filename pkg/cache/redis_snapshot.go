package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisSnapshot keeps the snapshot under a single redis key with no expiry.
type RedisSnapshot struct {
	client *redis.Client
	key    string
	logger *zap.Logger
}

func NewRedisSnapshot(client *redis.Client, key string, logger *zap.Logger) *RedisSnapshot {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisSnapshot{client: client, key: key, logger: logger}
}

func (r *RedisSnapshot) Load(ctx context.Context) (*Snapshot, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		r.logger.Error("failed to read cache snapshot", zap.String("key", r.key), zap.Error(err))
		return nil, fmt.Errorf("read snapshot %s: %w", r.key, err)
	}
	return decodeSnapshot(data)
}

func (r *RedisSnapshot) Save(ctx context.Context, snap *Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := r.client.Set(ctx, r.key, data, 0).Err(); err != nil {
		r.logger.Error("failed to write cache snapshot", zap.String("key", r.key), zap.Error(err))
		return fmt.Errorf("write snapshot %s: %w", r.key, err)
	}
	return nil
}
