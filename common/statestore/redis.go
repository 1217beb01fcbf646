package statestore

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/flowforge/engine/common/value"
)

//go:embed join_arrive.lua
var joinArriveScript string

// RedisStore backs the StateStore SPI with Redis, using an embedded Lua
// script for JoinArrive so the initialize-then-decrement sequence is a
// single atomic round trip no matter how many worker processes race on
// it — grounded directly on the teacher's sdk.ApplyDelta Lua-script
// pattern, re-keyed per (instance, join node index) instead of one global
// per-run counter.
type RedisStore struct {
	redis *redis.Client
	join  *redis.Script
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{redis: client, join: redis.NewScript(joinArriveScript)}
}

func instanceKey(id string) string   { return "instance:" + id }
func statusKey(id string) string     { return "instance:" + id + ":status" }
func varsKey(id string) string       { return "instance:" + id + ":vars" }
func joinKey(id string, idx int) string {
	return fmt.Sprintf("join:%s:%d", id, idx)
}

func (s *RedisStore) CreateInstance(ctx context.Context, instanceID, blueprintID string) error {
	ok, err := s.redis.SetNX(ctx, instanceKey(instanceID), blueprintID, 0).Result()
	if err != nil {
		return fmt.Errorf("statestore: create instance: %w", err)
	}
	if !ok {
		return fmt.Errorf("statestore: instance %q already exists", instanceID)
	}
	return s.redis.Set(ctx, statusKey(instanceID), string(StatusRunning), 0).Err()
}

func (s *RedisStore) GetVar(ctx context.Context, instanceID, name string) (value.Value, bool, error) {
	raw, err := s.redis.HGet(ctx, varsKey(instanceID), name).Result()
	if err == redis.Nil {
		return value.Null(), false, nil
	}
	if err != nil {
		return value.Null(), false, fmt.Errorf("statestore: get var: %w", err)
	}
	v, err := value.FromJSON([]byte(raw))
	if err != nil {
		return value.Null(), false, fmt.Errorf("statestore: decode var %q: %w", name, err)
	}
	return v, true, nil
}

func (s *RedisStore) SetVar(ctx context.Context, instanceID, name string, v value.Value) error {
	data, err := v.MarshalJSON()
	if err != nil {
		return fmt.Errorf("statestore: encode var %q: %w", name, err)
	}
	return s.redis.HSet(ctx, varsKey(instanceID), name, string(data)).Err()
}

func (s *RedisStore) GetVarsSnapshot(ctx context.Context, instanceID string) (map[string]value.Value, error) {
	raw, err := s.redis.HGetAll(ctx, varsKey(instanceID)).Result()
	if err != nil {
		return nil, fmt.Errorf("statestore: snapshot vars: %w", err)
	}
	out := make(map[string]value.Value, len(raw))
	for k, data := range raw {
		v, err := value.FromJSON([]byte(data))
		if err != nil {
			return nil, fmt.Errorf("statestore: decode var %q: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}

func (s *RedisStore) JoinArrive(ctx context.Context, instanceID string, joinNodeIndex int, expect int) (JoinResult, error) {
	key := joinKey(instanceID, joinNodeIndex)
	result, err := s.join.Run(ctx, s.redis, []string{key}, expect).Result()
	if err != nil {
		return JoinResult{}, fmt.Errorf("statestore: join arrive: %w", err)
	}
	remaining, ok := result.(int64)
	if !ok {
		return JoinResult{}, fmt.Errorf("statestore: unexpected join_arrive result type %T", result)
	}
	return JoinResult{Remaining: remaining, HitZero: remaining == 0}, nil
}

func (s *RedisStore) SetStatus(ctx context.Context, instanceID string, status Status) error {
	return s.redis.Set(ctx, statusKey(instanceID), string(status), 0).Err()
}

func (s *RedisStore) GetStatus(ctx context.Context, instanceID string) (Status, error) {
	raw, err := s.redis.Get(ctx, statusKey(instanceID)).Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("statestore: get status: %w", err)
	}
	return Status(raw), nil
}
