// Package runner serializes work per key and bounds how many keys run at
// once.
package runner

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

type keyLock struct {
	ch   chan struct{}
	refs int
}

// Runner runs at most one function per key at a time and at most
// maxConcurrent functions overall.
type Runner struct {
	sem *semaphore.Weighted

	mu    sync.Mutex
	locks map[string]*keyLock
}

// New creates a runner. maxConcurrent below 1 is treated as 1.
func New(maxConcurrent int) *Runner {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Runner{
		sem:   semaphore.NewWeighted(int64(maxConcurrent)),
		locks: make(map[string]*keyLock),
	}
}

// Do waits for the key and for a concurrency slot, then calls fn. Waiting
// stops with ctx.Err() when ctx is done.
func (r *Runner) Do(ctx context.Context, key string, fn func(context.Context) error) error {
	l := r.acquire(key)
	defer r.release(key, l)

	select {
	case l.ch <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-l.ch }()

	if err := r.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer r.sem.Release(1)

	return fn(ctx)
}

func (r *Runner) acquire(key string) *keyLock {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[key]
	if !ok {
		l = &keyLock{ch: make(chan struct{}, 1)}
		r.locks[key] = l
	}
	l.refs++
	return l
}

func (r *Runner) release(key string, l *keyLock) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(r.locks, key)
	}
}

// Keys returns the number of keys with running or waiting work.
func (r *Runner) Keys() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locks)
}
