package runner

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestDoSerializesPerKey(t *testing.T) {
	r := New(8)
	var active, maxActive int32
	var order []int
	var mu sync.Mutex

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := r.Do(context.Background(), "conv", func(context.Context) error {
				n := atomic.AddInt32(&active, 1)
				for {
					m := atomic.LoadInt32(&maxActive)
					if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				atomic.AddInt32(&active, -1)
				return nil
			})
			if err != nil {
				t.Errorf("Do: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if maxActive != 1 {
		t.Fatalf("same key ran %d functions concurrently", maxActive)
	}
	if len(order) != 20 {
		t.Fatalf("ran %d functions, want 20", len(order))
	}
	if r.Keys() != 0 {
		t.Errorf("idle keys not released: %d", r.Keys())
	}
}

func TestDoBoundsConcurrency(t *testing.T) {
	r := New(2)
	var active, maxActive int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.Do(context.Background(), string(rune('a'+i)), func(context.Context) error {
				n := atomic.AddInt32(&active, 1)
				for {
					m := atomic.LoadInt32(&maxActive)
					if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				atomic.AddInt32(&active, -1)
				return nil
			})
		}(i)
	}
	wg.Wait()
	if maxActive > 2 {
		t.Fatalf("ran %d keys at once, limit is 2", maxActive)
	}
}

func TestDoDifferentKeysRunInParallel(t *testing.T) {
	r := New(2)
	release := make(chan struct{})
	started := make(chan struct{}, 2)

	var wg sync.WaitGroup
	for _, key := range []string{"a", "b"} {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			r.Do(context.Background(), key, func(context.Context) error {
				started <- struct{}{}
				<-release
				return nil
			})
		}(key)
	}
	for i := 0; i < 2; i++ {
		select {
		case <-started:
		case <-time.After(time.Second):
			t.Fatal("independent keys did not run in parallel")
		}
	}
	close(release)
	wg.Wait()
}

func TestDoRespectsCancellationWhileWaiting(t *testing.T) {
	r := New(4)
	hold := make(chan struct{})
	go r.Do(context.Background(), "conv", func(context.Context) error {
		<-hold
		return nil
	})
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	called := false
	err := r.Do(ctx, "conv", func(context.Context) error {
		called = true
		return nil
	})
	close(hold)

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if called {
		t.Error("function ran despite cancelled wait")
	}
}

func TestDoReturnsFunctionError(t *testing.T) {
	boom := errors.New("boom")
	if err := New(1).Do(context.Background(), "k", func(context.Context) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}
