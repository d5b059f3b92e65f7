package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func trackMax(current, max *int32) func() {
	return func() {
		val := atomic.AddInt32(current, 1)
		for {
			prev := atomic.LoadInt32(max)
			if val <= prev || atomic.CompareAndSwapInt32(max, prev, val) {
				break
			}
		}
		time.Sleep(50 * time.Millisecond)
		atomic.AddInt32(current, -1)
	}
}

func TestPoolConcurrencyLimit(t *testing.T) {
	pool := New(2)

	var current, max int32
	work := trackMax(&current, &max)

	for i := 0; i < 4; i++ {
		if err := pool.Submit(work); err != nil {
			t.Fatalf("submit failed: %v", err)
		}
	}

	_ = pool.Shutdown(context.Background())
	if max > 2 {
		t.Fatalf("expected max concurrency <= 2, got %d", max)
	}
}

func TestPoolSubmitAfterShutdown(t *testing.T) {
	pool := New(1)
	_ = pool.Shutdown(context.Background())
	if err := pool.Submit(func() {}); !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("expected ErrPoolClosed after shutdown, got %v", err)
	}
}

func TestPoolSubmitWaitReturnsTaskError(t *testing.T) {
	pool := New(1)
	defer func() {
		_ = pool.Shutdown(context.Background())
	}()

	want := errors.New("boom")
	if err := pool.SubmitWait(func() error { return want }); !errors.Is(err, want) {
		t.Fatalf("expected task error, got %v", err)
	}
}

func TestPoolSubmitWaitRecoversPanic(t *testing.T) {
	pool := New(1)
	defer func() {
		_ = pool.Shutdown(context.Background())
	}()

	err := pool.SubmitWait(func() error { panic("bad chunk") })
	if err == nil {
		t.Fatal("expected error from panicking task")
	}
	if err := pool.SubmitWait(func() error { return nil }); err != nil {
		t.Fatalf("pool unusable after panic: %v", err)
	}
}

func TestPoolSubmitWaitContextTimeout(t *testing.T) {
	pool := New(1)
	defer func() {
		_ = pool.Shutdown(context.Background())
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := pool.SubmitWaitContext(ctx, func() error {
		time.Sleep(100 * time.Millisecond)
		return nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context deadline exceeded, got %v", err)
	}
}

func TestLimiterCapsConcurrency(t *testing.T) {
	limiter := NewLimiter(3)
	var current, max int32
	work := trackMax(&current, &max)

	done := make(chan struct{})
	for i := 0; i < 9; i++ {
		go func() {
			_ = limiter.Do(context.Background(), func(context.Context) error {
				work()
				return nil
			})
			done <- struct{}{}
		}()
	}
	for i := 0; i < 9; i++ {
		<-done
	}

	if max > 3 {
		t.Fatalf("expected max concurrency <= 3, got %d", max)
	}
}

func TestLimiterReleasesOnError(t *testing.T) {
	limiter := NewLimiter(1)
	want := errors.New("upstream down")

	for i := 0; i < 3; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		err := limiter.Do(ctx, func(context.Context) error { return want })
		cancel()
		if !errors.Is(err, want) {
			t.Fatalf("attempt %d: expected upstream error, got %v", i, err)
		}
	}
}

func TestLimiterHonoursContext(t *testing.T) {
	limiter := NewLimiter(1)
	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = limiter.Do(context.Background(), func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := limiter.Do(ctx, func(context.Context) error { return nil })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded while limiter is full, got %v", err)
	}
}
