package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/agentos-dev/agentkernel/pkg/contracts"
	"github.com/redis/go-redis/v9"
)

// RedisStateStore keeps state documents as strings under
// <prefix>state:<key> and event logs as lists under <prefix>events:<run>.
type RedisStateStore struct {
	client *redis.Client
	prefix string
}

var _ StateStore = (*RedisStateStore)(nil)

// NewRedisStateStore creates a store backed by Redis.
func NewRedisStateStore(addr, password string, db int, prefix string) *RedisStateStore {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewRedisStateStoreWithClient(rdb, prefix)
}

// NewRedisStateStoreWithClient wraps an existing client.
func NewRedisStateStoreWithClient(client *redis.Client, prefix string) *RedisStateStore {
	return &RedisStateStore{client: client, prefix: prefix}
}

// Ping checks connectivity.
func (s *RedisStateStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStateStore) stateKey(key string) string { return s.prefix + "state:" + key }

func (s *RedisStateStore) eventsKey(runID string) string { return s.prefix + "events:" + runID }

// PutState implements StateStore.
func (s *RedisStateStore) PutState(ctx context.Context, key string, value any) error {
	if err := checkKey("state key", key); err != nil {
		return err
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode state %s: %w", key, err)
	}
	if err := s.client.Set(ctx, s.stateKey(key), data, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// GetState implements StateStore.
func (s *RedisStateStore) GetState(ctx context.Context, key string, dst any) (bool, error) {
	if err := checkKey("state key", key); err != nil {
		return false, err
	}
	data, err := s.client.Get(ctx, s.stateKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("decode state %s: %w", key, err)
	}
	return true, nil
}

// AppendEvent implements StateStore.
func (s *RedisStateStore) AppendEvent(ctx context.Context, runID string, ev contracts.Event) error {
	if err := CheckRunID(runID); err != nil {
		return err
	}
	line, err := encodeEvent(ev)
	if err != nil {
		return err
	}
	if err := s.client.RPush(ctx, s.eventsKey(runID), line).Err(); err != nil {
		return fmt.Errorf("redis rpush %s: %w", runID, err)
	}
	return nil
}

// Events implements StateStore.
func (s *RedisStateStore) Events(ctx context.Context, runID string) ([]contracts.Event, error) {
	if err := CheckRunID(runID); err != nil {
		return nil, err
	}
	lines, err := s.client.LRange(ctx, s.eventsKey(runID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange %s: %w", runID, err)
	}
	events := make([]contracts.Event, 0, len(lines))
	for _, line := range lines {
		ev, err := decodeEvent([]byte(line))
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

// Keys implements StateStore.
func (s *RedisStateStore) Keys(ctx context.Context) ([]string, error) {
	pattern := s.stateKey("*")
	keys := []string{}
	iter := s.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), s.stateKey("")))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

// Close closes the client.
func (s *RedisStateStore) Close() error {
	return s.client.Close()
}
