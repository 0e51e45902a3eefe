package scraper

import (
	"context"
	"sync"
	"time"
)

// workerPool runs source jobs with bounded concurrency. Job starts are
// spaced at least stagger apart.
type workerPool struct {
	semaphore chan struct{}
	stagger   time.Duration
	wg        sync.WaitGroup

	mu        sync.Mutex
	lastStart time.Time
}

func newWorkerPool(maxWorkers int, stagger time.Duration) *workerPool {
	return &workerPool{
		semaphore: make(chan struct{}, max(maxWorkers, 1)),
		stagger:   stagger,
	}
}

// Submit blocks until a slot is free or ctx is done. A job that never got
// a slot is not run and Submit reports false.
func (p *workerPool) Submit(ctx context.Context, job func()) bool {
	select {
	case p.semaphore <- struct{}{}:
	case <-ctx.Done():
		return false
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() { <-p.semaphore }()

		p.waitStagger(ctx)
		job()
	}()
	return true
}

func (p *workerPool) Wait() {
	p.wg.Wait()
}

func (p *workerPool) waitStagger(ctx context.Context) {
	if p.stagger <= 0 {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.lastStart.IsZero() {
		if wait := p.stagger - time.Since(p.lastStart); wait > 0 {
			t := time.NewTimer(wait)
			select {
			case <-t.C:
			case <-ctx.Done():
				t.Stop()
			}
		}
	}
	p.lastStart = time.Now()
}
