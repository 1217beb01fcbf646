package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redisclient "github.com/flowforge/engine/common/redis"
	"github.com/flowforge/engine/common/task"
)

// RedisQueue backs a TaskQueue with a single Redis list, grounded on the
// client's PushToList/BlockingPopList wrappers (RPush/BLPop), giving FIFO
// ordering within one producer/consumer pair and safe fan-out across any
// number of worker processes sharing the same key.
type RedisQueue struct {
	client *redisclient.Client
	key    string
}

func NewRedisQueue(client *redisclient.Client, key string) *RedisQueue {
	return &RedisQueue{client: client, key: key}
}

func (q *RedisQueue) Push(ctx context.Context, t task.Task) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("queue: marshal task: %w", err)
	}
	return q.client.PushToList(ctx, q.key, string(data))
}

func (q *RedisQueue) Pop(ctx context.Context, timeout time.Duration) (task.Task, bool, error) {
	result, err := q.client.BlockingPopList(ctx, timeout, q.key)
	if err != nil {
		return task.Task{}, false, fmt.Errorf("queue: pop: %w", err)
	}
	if len(result) < 2 {
		// BLPop timed out: go-redis returns redis.Nil, which the client
		// wrapper already translates into a non-error empty result.
		return task.Task{}, false, nil
	}

	var t task.Task
	if err := json.Unmarshal([]byte(result[1]), &t); err != nil {
		return task.Task{}, false, fmt.Errorf("queue: decode task: %w", err)
	}
	return t, true, nil
}

func (q *RedisQueue) Len(ctx context.Context) (int, error) {
	n, err := q.client.GetUnderlying().LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("queue: len: %w", err)
	}
	return int(n), nil
}
