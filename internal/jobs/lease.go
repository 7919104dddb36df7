package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Locker выдаёт аренду на один тик задачи, чтобы при нескольких репликах
// задачу выполняла только одна.
type Locker interface {
	// Acquire возвращает false, если аренду уже держит другая реплика.
	Acquire(ctx context.Context, job string) (bool, error)
}

// RedisLocker — аренда через SET NX с TTL. Аренда не снимается явно,
// а истекает сама, поэтому TTL должен быть меньше интервала задачи.
type RedisLocker struct {
	client *redis.Client
	owner  string
	ttl    time.Duration
}

// NewRedisLocker создаёт аренду. owner — идентификатор реплики.
func NewRedisLocker(client *redis.Client, owner string, ttl time.Duration) *RedisLocker {
	return &RedisLocker{client: client, owner: owner, ttl: ttl}
}

func leaseKey(job string) string {
	return "efhc:jobs:" + job
}

func (l *RedisLocker) Acquire(ctx context.Context, job string) (bool, error) {
	ok, err := l.client.SetNX(ctx, leaseKey(job), l.owner, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("ошибка аренды задачи %s: %w", job, err)
	}
	return ok, nil
}

// LocalLocker всегда выдаёт аренду (одна реплика).
type LocalLocker struct{}

func (LocalLocker) Acquire(context.Context, string) (bool, error) { return true, nil }
