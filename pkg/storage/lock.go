package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// keyedMutex serializes writers per model identity.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

// Lock acquires the mutex for key and returns its release function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// fileLock guards schema setup of a sqlite store against concurrent
// processes opening the same file.
type fileLock struct {
	mu sync.Mutex
	fl *flock.Flock
}

func newFileLock(path string) *fileLock {
	return &fileLock{fl: flock.New(path)}
}

func (l *fileLock) acquire(ctx context.Context) (func(), error) {
	l.mu.Lock()
	locked, err := l.fl.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil || !locked {
		l.mu.Unlock()
		if err == nil {
			err = ctx.Err()
		}
		return nil, fmt.Errorf("acquire lock %s: %w", l.fl.Path(), err)
	}
	return func() {
		_ = l.fl.Unlock()
		l.mu.Unlock()
	}, nil
}
