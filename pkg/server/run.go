package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Run starts the world loop, the workers and the background jobs and blocks
// until ctx is cancelled. The store is closed after the queued work drains.
func (s *Server) Run(ctx context.Context) error {
	settings := s.Settings()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := s.sched.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	// Refresh the mute cache of online players so mutes written by other
	// servers sharing the database show up without a relog.
	if settings.Gate.RefreshInterval > 0 {
		s.sched.Every(gctx, settings.Gate.RefreshInterval, s.gate.RefreshOnline)
	}

	if settings.Bridge.Addr != "" {
		g.Go(func() error { return s.serveBridge(gctx, settings.Bridge.Addr, settings.Bridge.Token) })
	}

	s.metrics.Serve(gctx, settings.Metrics.Addr)
	if settings.Metrics.LogInterval > 0 {
		s.metrics.StartPeriodicLog(settings.Metrics.LogInterval, gctx.Done())
	}

	slog.Info("moderation server running",
		"driver", settings.Storage.Driver,
		"workers", settings.Workers.Size,
		"tick_rate", settings.World.TickRate,
		"metrics", settings.Metrics.Addr,
		"bridge", settings.Bridge.Addr,
	)

	err := g.Wait()
	slog.Info("shutting down...")
	s.metrics.LogSummary()
	if cerr := s.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// Close releases the store. It is safe to call more than once.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		closer, ok := s.store.(io.Closer)
		if !ok {
			return
		}
		if cerr := closer.Close(); cerr != nil {
			err = fmt.Errorf("server: close store: %w", cerr)
		}
	})
	return err
}

// WaitReady blocks until the world loop has processed a task or ctx ends.
func (s *Server) WaitReady(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.sched.World.Call(ctx, func() {})
}
