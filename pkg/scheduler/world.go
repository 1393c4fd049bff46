// Package scheduler implements the two execution contexts moderation code
// runs on: a single world goroutine that owns live game state, and a bounded
// worker pool for blocking I/O.
//
// Work moves between them explicitly. Workers never touch live state; they
// post a continuation back to the world. The world never blocks on I/O; it
// dispatches to the pool.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// ErrStopped is returned by Call when the world loop exits first.
var ErrStopped = errors.New("scheduler: world stopped")

type delayedTask struct {
	due uint64
	seq uint64
	fn  func()
}

// World runs posted tasks one at a time, in post order, on a single goroutine.
type World struct {
	tickRate int

	mu      sync.Mutex
	queue   []func()
	delayed []delayedTask
	seq     uint64

	wake    chan struct{}
	stop    chan struct{}
	stopped chan struct{}
	once    sync.Once

	tick atomic.Uint64
}

// NewWorld creates a world loop ticking at tickRateHz (default 20).
func NewWorld(tickRateHz int) *World {
	if tickRateHz <= 0 {
		tickRateHz = 20
	}
	return &World{
		tickRate: tickRateHz,
		wake:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// Post appends fn to the world queue. It never blocks, so workers may post
// freely.
func (w *World) Post(fn func()) {
	if fn == nil {
		return
	}
	w.mu.Lock()
	w.queue = append(w.queue, fn)
	w.mu.Unlock()
	w.signal()
}

// Later runs fn on the world after the given number of ticks.
func (w *World) Later(ticks int, fn func()) {
	if ticks <= 0 {
		w.Post(fn)
		return
	}
	w.mu.Lock()
	w.seq++
	w.delayed = append(w.delayed, delayedTask{due: w.tick.Load() + uint64(ticks), seq: w.seq, fn: fn})
	w.mu.Unlock()
}

// Call runs fn on the world and waits for it. It must not be called from the
// world goroutine.
func (w *World) Call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	w.Post(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-w.stopped:
		return ErrStopped
	}
}

// Tick returns the number of ticks elapsed.
func (w *World) Tick() uint64 { return w.tick.Load() }

// TickInterval returns the wall-clock length of one tick.
func (w *World) TickInterval() time.Duration {
	return time.Second / time.Duration(w.tickRate)
}

func (w *World) signal() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Run drives the loop until ctx is done or Stop is called.
func (w *World) Run(ctx context.Context) error {
	defer close(w.stopped)

	ticker := time.NewTicker(w.TickInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.drain()
			return ctx.Err()
		case <-w.stop:
			w.drain()
			return nil
		case <-w.wake:
			w.drain()
		case <-ticker.C:
			w.advance()
			w.drain()
		}
	}
}

// Stop ends Run after the current batch.
func (w *World) Stop() {
	w.once.Do(func() { close(w.stop) })
}

// Done is closed once Run has returned.
func (w *World) Done() <-chan struct{} { return w.stopped }

func (w *World) drain() {
	for {
		w.mu.Lock()
		batch := w.queue
		w.queue = nil
		w.mu.Unlock()
		if len(batch) == 0 {
			return
		}
		for _, fn := range batch {
			w.run(fn)
		}
	}
}

func (w *World) advance() {
	now := w.tick.Add(1)

	w.mu.Lock()
	var due []delayedTask
	kept := w.delayed[:0]
	for _, d := range w.delayed {
		if d.due <= now {
			due = append(due, d)
		} else {
			kept = append(kept, d)
		}
	}
	w.delayed = kept
	w.mu.Unlock()

	sort.Slice(due, func(i, j int) bool {
		if due[i].due != due[j].due {
			return due[i].due < due[j].due
		}
		return due[i].seq < due[j].seq
	})
	for _, d := range due {
		w.run(d.fn)
	}
}

func (w *World) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("world task panicked", "panic", r)
		}
	}()
	fn()
}
