package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/usecase"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

// Redis の分散ロック。スケジューラを複数台で動かしても1台だけが処理する
type RedsyncLocker struct {
	rs     *redsync.Redsync
	prefix string
}

func NewRedis(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr})
}

func NewRedsyncLocker(rdb *redis.Client, prefix string) *RedsyncLocker {
	return &RedsyncLocker{rs: redsync.New(goredis.NewPool(rdb)), prefix: prefix}
}

func (l *RedsyncLocker) Lock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	m := l.rs.NewMutex(
		l.prefix+key,
		redsync.WithExpiry(ttl),
		// 1回だけ試す。取れなければ他が処理中
		redsync.WithTries(1),
	)
	if err := m.LockContext(ctx); err != nil {
		var taken *redsync.ErrTaken
		if errors.Is(err, redsync.ErrFailed) || errors.As(err, &taken) {
			return nil, usecase.ErrLockNotAcquired
		}
		return nil, fmt.Errorf("redsync lock %s: %w", key, err)
	}
	return func(ctx context.Context) error {
		if _, err := m.UnlockContext(ctx); err != nil {
			return fmt.Errorf("redsync unlock %s: %w", key, err)
		}
		return nil
	}, nil
}
