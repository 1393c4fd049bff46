// Package notify delivers moderation events to external channels.
//
// An Event names a category (routing) and a template key (formatting) plus
// placeholder values. Sinks decide where it goes: a Kafka topic consumed by
// a chat bot, the process log, or several at once.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/NicolasHaas/gomoderate/pkg/render"
)

// Categories used by the moderation engine.
const (
	CategoryPunishments = "punishments"
	CategoryGameMode    = "gamemode"
	CategoryReports     = "reports"
)

// Event is one notification request.
type Event struct {
	Category     string
	Template     string
	Placeholders render.Vars
	At           time.Time
}

// Sink receives notification events. Emit may block on I/O and must only be
// called off the world goroutine.
type Sink interface {
	Emit(ctx context.Context, ev Event) error
}

// Multi fans an event out to every sink and joins their errors.
type Multi []Sink

func (m Multi) Emit(ctx context.Context, ev Event) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Emit(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards events.
type Nop struct{}

func (Nop) Emit(context.Context, Event) error { return nil }

// LogSink writes rendered events to a structured logger.
type LogSink struct {
	Logger    *slog.Logger
	Templates *Catalog
}

func (s LogSink) Emit(_ context.Context, ev Event) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attrs := []any{"category", ev.Category, "template", ev.Template}
	if s.Templates != nil {
		if embed, ok := s.Templates.Render(ev); ok {
			attrs = append(attrs, "title", embed.Title, "description", embed.Description)
		}
	}
	for k, v := range ev.Placeholders {
		attrs = append(attrs, k, v)
	}
	logger.Info("moderation notification", attrs...)
	return nil
}
