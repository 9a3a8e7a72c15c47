package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"plexvoice/internal/core"
)

const (
	queueKeyPrefix = "plexvoice:queue:"

	fieldTracks  = "tracks"
	fieldIndex   = "index"
	fieldShuffle = "shuffle"
)

// updateIndexScript sets the index only when the queue exists, so a late index update never
// creates a partial record. A positive TTL in ARGV[2] (ms) is refreshed.
var updateIndexScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
redis.call('HSET', KEYS[1], 'index', ARGV[1])
local ttl = tonumber(ARGV[2])
if ttl > 0 then
	redis.call('PEXPIRE', KEYS[1], ttl)
end
return 1
`)

// RedisStore keeps each queue in a hash with tracks, index and shuffle fields.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisStore creates a store on client. A ttl of zero keeps queues until they are replaced.
func NewRedisStore(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisStore {
	return &RedisStore{
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

// QueueKey returns the Redis key holding the listener's queue.
func QueueKey(listenerID string) string {
	return queueKeyPrefix + listenerID
}

func (s *RedisStore) Save(ctx context.Context, state *core.QueueState) error {
	if err := state.Validate(); err != nil {
		return err
	}

	tracks, err := json.Marshal(state.Tracks)
	if err != nil {
		return fmt.Errorf("failed to marshal queue tracks: %w", err)
	}

	key := QueueKey(state.ListenerID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key,
			fieldTracks, string(tracks),
			fieldIndex, state.CurrentIndex,
			fieldShuffle, state.Shuffle)
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save queue: %w", err)
	}

	s.logger.Debug("Saved queue",
		zap.String("listenerID", state.ListenerID),
		zap.Int("tracks", len(state.Tracks)),
		zap.Int("index", state.CurrentIndex))
	return nil
}

func (s *RedisStore) Get(ctx context.Context, listenerID string) (*core.QueueState, error) {
	fields, err := s.client.HGetAll(ctx, QueueKey(listenerID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load queue: %w", err)
	}
	if len(fields) == 0 {
		return nil, core.ErrNoQueue
	}

	state := &core.QueueState{ListenerID: listenerID}
	if err := json.Unmarshal([]byte(fields[fieldTracks]), &state.Tracks); err != nil {
		return nil, fmt.Errorf("failed to unmarshal queue tracks: %w", err)
	}

	state.CurrentIndex, err = strconv.Atoi(fields[fieldIndex])
	if err != nil {
		return nil, fmt.Errorf("invalid queue index %q: %w", fields[fieldIndex], err)
	}

	// go-redis writes booleans as "1" / "0".
	state.Shuffle, _ = strconv.ParseBool(fields[fieldShuffle])
	return state, nil
}

// UpdateIndex writes only the index field, atomically with the existence check.
func (s *RedisStore) UpdateIndex(ctx context.Context, listenerID string, index int) error {
	if err := validateIndex(index); err != nil {
		return err
	}

	updated, err := updateIndexScript.Run(ctx, s.client,
		[]string{QueueKey(listenerID)}, index, s.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("failed to update queue index: %w", err)
	}
	if updated == 0 {
		return core.ErrNoQueue
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
