package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

var ErrPoolClosed = errors.New("scheduler: worker pool closed")
var ErrPoolSaturated = errors.New("scheduler: worker pool queue full")

// Job is a unit of blocking work.
type Job func(ctx context.Context)

// Pool runs jobs on a fixed number of worker goroutines. Submit never
// blocks; a full queue is reported as ErrPoolSaturated.
type Pool struct {
	size  int
	jobs  chan Job
	group *errgroup.Group

	mu      sync.RWMutex
	closed  bool
	started bool
}

// NewPool creates a pool with size workers and a queue of depth jobs.
func NewPool(size, depth int) *Pool {
	if size <= 0 {
		size = 4
	}
	if depth <= 0 {
		depth = 1024
	}
	g := &errgroup.Group{}
	g.SetLimit(size)
	return &Pool{
		size:  size,
		jobs:  make(chan Job, depth),
		group: g,
	}
}

// Start launches the workers. Jobs receive ctx.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true
	for i := 0; i < p.size; i++ {
		p.group.Go(func() error {
			for job := range p.jobs {
				runJob(ctx, job)
			}
			return nil
		})
	}
}

func runJob(ctx context.Context, job Job) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("worker job panicked", "panic", r)
		}
	}()
	job(ctx)
}

// Submit queues a job.
func (p *Pool) Submit(job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.jobs <- job:
		return nil
	default:
		return ErrPoolSaturated
	}
}

// Close stops accepting jobs, lets queued jobs finish and waits for the
// workers.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.jobs)
	started := p.started
	p.mu.Unlock()

	if !started {
		return nil
	}
	return p.group.Wait()
}

// Pending returns the number of queued jobs.
func (p *Pool) Pending() int { return len(p.jobs) }
