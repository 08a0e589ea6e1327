package worker

import (
	"context"
	"log/slog"
	"sync"

	"github.com/stormsignal/weather-notify/internal/models"
)

// ProcessFunc handles notification work for one subscription. Any
// panic inside it is contained to that subscriber: one hung or broken
// send must never block the rest of the cycle.
type ProcessFunc func(ctx context.Context, sub models.Subscription)

// Pool fans per-subscriber notification work out across a bounded set
// of goroutines. A pool lives for one dispatch cycle: Start, Submit
// every subscription, then Drain to wait for completion.
type Pool struct {
	numWorkers int
	jobs       chan models.Subscription
	processor  ProcessFunc
	wg         sync.WaitGroup
}

func NewPool(numWorkers int, bufferSize int, processor ProcessFunc) *Pool {
	return &Pool{
		numWorkers: numWorkers,
		jobs:       make(chan models.Subscription, bufferSize),
		processor:  processor,
	}
}

func (p *Pool) Start(ctx context.Context) {
	for i := 1; i <= p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()

	for sub := range p.jobs {
		p.process(ctx, sub)
	}
}

func (p *Pool) process(ctx context.Context, sub models.Subscription) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in subscriber notification", "subscription", sub.ID, "panic", r)
		}
	}()
	p.processor(ctx, sub)
}

func (p *Pool) Submit(sub models.Subscription) {
	p.jobs <- sub
}

// Drain closes the queue and blocks until every submitted job has
// finished.
func (p *Pool) Drain() {
	close(p.jobs)
	p.wg.Wait()
}
