package scheduler

import (
	"context"
	"time"
)

// Config sizes the scheduler.
type Config struct {
	TickRateHz int // world ticks per second
	Workers    int // concurrent blocking jobs
	QueueDepth int // queued jobs before Submit fails
}

// Scheduler pairs the world loop with the worker pool.
type Scheduler struct {
	World *World
	Pool  *Pool
	Keys  KeyedMutex
}

// New creates a scheduler. Call Run to start it.
func New(cfg Config) *Scheduler {
	return &Scheduler{
		World: NewWorld(cfg.TickRateHz),
		Pool:  NewPool(cfg.Workers, cfg.QueueDepth),
	}
}

// Run starts the workers and drives the world loop until ctx is done. Queued
// jobs are drained before it returns.
func (s *Scheduler) Run(ctx context.Context) error {
	workCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.Pool.Start(workCtx)

	err := s.World.Run(ctx)

	_ = s.Pool.Close()
	cancel()
	return err
}

// Async runs job on a worker.
func (s *Scheduler) Async(job Job) error {
	return s.Pool.Submit(job)
}

// Dispatch runs work on a worker and delivers its result to then on the
// world. If the pool refuses the job, then runs on the world with the error.
func Dispatch[T any](s *Scheduler, work func(ctx context.Context) (T, error), then func(T, error)) {
	err := s.Pool.Submit(func(ctx context.Context) {
		v, err := work(ctx)
		if then != nil {
			s.World.Post(func() { then(v, err) })
		}
	})
	if err != nil && then != nil {
		var zero T
		s.World.Post(func() { then(zero, err) })
	}
}

// Every submits job to the pool at each interval until ctx is done. A
// saturated pool skips the round.
func (s *Scheduler) Every(ctx context.Context, interval time.Duration, job Job) {
	if interval <= 0 {
		return
	}
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.World.Done():
				return
			case <-t.C:
				_ = s.Pool.Submit(job)
			}
		}
	}()
}
