package redisclient

import (
	"context"
	"sync"
	"time"
)

// LocalLocker is a keyed mutex for single-process deployments and tests.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*localLock
	wait  time.Duration
}

type localLock struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker(wait time.Duration) *LocalLocker {
	return &LocalLocker{
		locks: make(map[string]*localLock),
		wait:  wait,
	}
}

func (l *LocalLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	lk := l.ref(key)
	defer l.unref(key, lk)

	timer := time.NewTimer(l.wait)
	defer timer.Stop()

	select {
	case lk.ch <- struct{}{}:
	case <-timer.C:
		return ErrLockNotAcquired
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-lk.ch }()

	return fn(ctx)
}

func (l *LocalLocker) ref(key string) *localLock {
	l.mu.Lock()
	defer l.mu.Unlock()

	lk, ok := l.locks[key]
	if !ok {
		lk = &localLock{ch: make(chan struct{}, 1)}
		l.locks[key] = lk
	}
	lk.refs++
	return lk
}

func (l *LocalLocker) unref(key string, lk *localLock) {
	l.mu.Lock()
	defer l.mu.Unlock()

	lk.refs--
	if lk.refs == 0 {
		delete(l.locks, key)
	}
}
