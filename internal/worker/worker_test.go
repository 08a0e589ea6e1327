package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/stormsignal/weather-notify/internal/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestPool_ProcessesAllSubmitted(t *testing.T) {
	var processed atomic.Int64
	processor := func(ctx context.Context, sub models.Subscription) {
		processed.Add(1)
	}

	pool := NewPool(2, 10, processor)
	pool.Start(context.Background())

	for i := 0; i < 5; i++ {
		pool.Submit(models.Subscription{ID: "sub"})
	}
	pool.Drain()

	if processed.Load() != 5 {
		t.Errorf("expected 5 jobs processed, got %d", processed.Load())
	}
}

func TestPool_ConcurrentSubmit(t *testing.T) {
	var processed atomic.Int64
	processor := func(ctx context.Context, sub models.Subscription) {
		processed.Add(1)
	}

	pool := NewPool(4, 100, processor)
	pool.Start(context.Background())

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			pool.Submit(models.Subscription{ID: "sub"})
		}
		close(done)
	}()

	<-done
	pool.Drain()

	if processed.Load() != 100 {
		t.Errorf("expected 100 jobs processed, got %d", processed.Load())
	}
}

func TestPool_PanicIsolatedPerSubscriber(t *testing.T) {
	var processed atomic.Int64
	processor := func(ctx context.Context, sub models.Subscription) {
		if sub.ID == "bad" {
			panic("send exploded")
		}
		processed.Add(1)
	}

	pool := NewPool(2, 10, processor)
	pool.Start(context.Background())

	pool.Submit(models.Subscription{ID: "ok1"})
	pool.Submit(models.Subscription{ID: "bad"})
	pool.Submit(models.Subscription{ID: "ok2"})
	pool.Drain()

	if processed.Load() != 2 {
		t.Errorf("expected 2 healthy jobs processed, got %d", processed.Load())
	}
}

func TestPool_DrainWaitsForInFlightWork(t *testing.T) {
	var processed atomic.Int64
	processor := func(ctx context.Context, sub models.Subscription) {
		time.Sleep(10 * time.Millisecond)
		processed.Add(1)
	}

	pool := NewPool(2, 50, processor)
	pool.Start(context.Background())

	for i := 0; i < 20; i++ {
		pool.Submit(models.Subscription{ID: "sub"})
	}

	done := make(chan struct{})
	go func() {
		pool.Drain()
		close(done)
	}()

	select {
	case <-done:
		if processed.Load() != 20 {
			t.Errorf("expected all 20 jobs done after Drain, got %d", processed.Load())
		}
	case <-time.After(5 * time.Second):
		t.Fatal("pool.Drain() timed out")
	}
}
