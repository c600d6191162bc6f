package lock

import (
	"context"
	"sync"
	"time"

	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/usecase"
)

// プロセス内だけのロック（Redis がないとき）
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]time.Time
	now  func() time.Time
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: map[string]time.Time{}, now: time.Now}
}

func (l *LocalLocker) Lock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if exp, ok := l.held[key]; ok && now.Before(exp) {
		return nil, usecase.ErrLockNotAcquired
	}
	exp := now.Add(ttl)
	l.held[key] = exp

	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		// 期限切れ後に他が取ったロックは消さない
		if cur, ok := l.held[key]; ok && cur.Equal(exp) {
			delete(l.held, key)
		}
		return nil
	}, nil
}
