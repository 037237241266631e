package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"backend-escapevim/internal/activity"

	"github.com/redis/go-redis/v9"
)

const (
	QueueKey = "outbox:activities"
	DeadKey  = "outbox:activities:dead"
)

// Entry is a finished activity waiting to be stored.
type Entry struct {
	Activity  activity.Activity `json:"activity"`
	Attempts  int               `json:"attempts"`
	LastError string            `json:"last_error,omitempty"`
	QueuedAt  time.Time         `json:"queued_at"`
}

// Queue is a FIFO of pending entries plus a dead list for entries that ran
// out of attempts.
type Queue interface {
	Push(ctx context.Context, e Entry) error
	Pop(ctx context.Context) (Entry, bool, error)
	Len(ctx context.Context) (int64, error)
	Bury(ctx context.Context, e Entry) error
	Dead(ctx context.Context) ([]Entry, error)
}

// NewQueue returns a Redis-backed queue, or an in-memory one when rdb is nil.
func NewQueue(rdb *redis.Client) Queue {
	if rdb == nil {
		return NewMemoryQueue()
	}
	return NewRedisQueue(rdb)
}

type RedisQueue struct {
	rdb *redis.Client
}

func NewRedisQueue(rdb *redis.Client) *RedisQueue {
	return &RedisQueue{rdb: rdb}
}

func (q *RedisQueue) Push(ctx context.Context, e Entry) error {
	return q.push(ctx, QueueKey, e)
}

func (q *RedisQueue) Bury(ctx context.Context, e Entry) error {
	return q.push(ctx, DeadKey, e)
}

func (q *RedisQueue) Pop(ctx context.Context) (Entry, bool, error) {
	raw, err := q.rdb.LPop(ctx, QueueKey).Result()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("pop outbox entry: %w", err)
	}
	var e Entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return Entry{}, false, fmt.Errorf("decode outbox entry: %w", err)
	}
	return e, true, nil
}

func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, QueueKey).Result()
}

func (q *RedisQueue) Dead(ctx context.Context) ([]Entry, error) {
	raws, err := q.rdb.LRange(ctx, DeadKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read dead entries: %w", err)
	}
	out := make([]Entry, 0, len(raws))
	for _, raw := range raws {
		var e Entry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("decode dead entry: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}

func (q *RedisQueue) push(ctx context.Context, key string, e Entry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode outbox entry: %w", err)
	}
	if err := q.rdb.RPush(ctx, key, b).Err(); err != nil {
		return fmt.Errorf("push outbox entry: %w", err)
	}
	return nil
}

// MemoryQueue keeps entries in process memory; they are lost on restart.
type MemoryQueue struct {
	mu      sync.Mutex
	pending []Entry
	dead    []Entry
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

func (q *MemoryQueue) Push(_ context.Context, e Entry) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, e)
	return nil
}

func (q *MemoryQueue) Pop(_ context.Context) (Entry, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return Entry{}, false, nil
	}
	e := q.pending[0]
	q.pending = q.pending[1:]
	return e, true, nil
}

func (q *MemoryQueue) Len(_ context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.pending)), nil
}

func (q *MemoryQueue) Bury(_ context.Context, e Entry) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.dead = append(q.dead, e)
	return nil
}

func (q *MemoryQueue) Dead(_ context.Context) ([]Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Entry{}, q.dead...), nil
}
