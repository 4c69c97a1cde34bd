package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const (
	redisValueField   = "value"
	redisVersionField = "version"
	redisDeletedField = "deleted"
)

// RedisStore keeps each record in a hash of {value, version}.
// Conditional writes use WATCH/MULTI optimistic transactions. A deleted
// record leaves a {version, deleted} tombstone so its version never repeats.
type RedisStore struct {
	client redis.UniversalClient
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// ConnectRedis opens a client and verifies the connection.
func ConnectRedis(ctx context.Context, addr, password string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (*Item, error) {
	fields, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}
	if len(fields) == 0 || fields[redisDeletedField] != "" {
		return nil, nil
	}

	version, err := strconv.ParseInt(fields[redisVersionField], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt version for %s: %w", key, err)
	}
	return &Item{
		Key:     key,
		Value:   json.RawMessage(fields[redisValueField]),
		Version: version,
	}, nil
}

func (s *RedisStore) Put(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, redisValueField, data)
		pipe.HDel(ctx, key, redisDeletedField)
		pipe.HIncrBy(ctx, key, redisVersionField, 1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to put %s: %w", key, err)
	}
	return nil
}

// Delete replaces a live record with a tombstone. A concurrent writer makes
// the transaction fail; it is retried against the new state.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	tombstone := func(tx *redis.Tx) error {
		state, err := tx.HMGet(ctx, key, redisVersionField, redisDeletedField).Result()
		if err != nil {
			return err
		}
		if state[0] == nil || state[1] != nil {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HDel(ctx, key, redisValueField)
			pipe.HSet(ctx, key, redisDeletedField, 1)
			pipe.HIncrBy(ctx, key, redisVersionField, 1)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < DefaultMaxAttempts; attempt++ {
		err := s.client.Watch(ctx, tombstone, key)
		if err == nil {
			return nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return fmt.Errorf("failed to delete %s: %w", key, err)
		}
	}
	return fmt.Errorf("failed to delete %s: %w", key, ErrContention)
}

func (s *RedisStore) CompareAndSwap(ctx context.Context, key string, value any, expectedVersion int64) (int64, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return 0, err
	}

	var next int64
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		state, err := tx.HMGet(ctx, key, redisVersionField, redisDeletedField).Result()
		if err != nil {
			return err
		}
		var current int64
		if v, ok := state[0].(string); ok {
			if current, err = strconv.ParseInt(v, 10, 64); err != nil {
				return fmt.Errorf("corrupt version for %s: %w", key, err)
			}
		}
		live := state[0] != nil && state[1] == nil
		switch {
		case expectedVersion == 0 && live:
			return ErrVersionConflict
		case expectedVersion != 0 && (!live || current != expectedVersion):
			return ErrVersionConflict
		}

		next = current + 1
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, redisValueField, data, redisVersionField, next)
			pipe.HDel(ctx, key, redisDeletedField)
			return nil
		})
		return err
	}, key)

	switch {
	case err == nil:
		return next, nil
	case errors.Is(err, ErrVersionConflict), errors.Is(err, redis.TxFailedErr):
		return 0, ErrVersionConflict
	default:
		return 0, fmt.Errorf("failed to swap %s: %w", key, err)
	}
}
