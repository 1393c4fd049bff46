// Package server hosts the moderation components inside a game server.
//
// The host calls Join, Leave, Chat, Command and GameModeChanged from its own
// goroutines. Server moves each call onto the world goroutine where needed,
// so the punishment engine and the session directory only ever see world
// calls.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/NicolasHaas/gomoderate/pkg/config"
	"github.com/NicolasHaas/gomoderate/pkg/datastore"
	"github.com/NicolasHaas/gomoderate/pkg/gate"
	"github.com/NicolasHaas/gomoderate/pkg/metrics"
	"github.com/NicolasHaas/gomoderate/pkg/model"
	"github.com/NicolasHaas/gomoderate/pkg/notify"
	"github.com/NicolasHaas/gomoderate/pkg/punish"
	"github.com/NicolasHaas/gomoderate/pkg/rank"
	"github.com/NicolasHaas/gomoderate/pkg/rbac"
	"github.com/NicolasHaas/gomoderate/pkg/scheduler"
)

// Config holds server configuration.
type Config struct {
	Settings   *config.Config
	ConfigPath string // re-read by Reload; empty disables reloading
}

// Dependencies holds external dependencies for the server.
// Server assumes ownership of Store and will Close() it on shutdown.
type Dependencies struct {
	Store   datastore.DataProviderFactory
	Sink    notify.Sink     // nil disables notifications
	Catalog *notify.Catalog // replaced on reload when set

	// Optional host integrations. When nil the static tables from the
	// config file are used.
	Capabilities rank.CapabilityChecker
	Groups       rank.GroupProvider

	Console io.Writer // defaults to os.Stdout
	Clock   func() time.Time
}

// Server wires the moderation components together.
type Server struct {
	cfg      Config
	mu       sync.Mutex // guards settings
	settings *config.Config

	store     datastore.DataProviderFactory
	sched     *scheduler.Scheduler
	sessions  *SessionManager
	metrics   *metrics.Metrics
	registry  *rank.Registry
	grants    *rbac.Grants
	groups    *rank.StaticGroups // nil when the host supplies groups
	gate      *gate.Gate
	engine    *punish.Engine
	console   *Console
	catalog   *notify.Catalog
	log       *slog.Logger
	closeOnce sync.Once
}

// New creates a new Server instance.
func New(cfg Config, deps Dependencies) (*Server, error) {
	if deps.Store == nil {
		return nil, errors.New("server: missing store dependency")
	}
	settings := cfg.Settings
	if settings == nil {
		settings = config.Default()
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}
	ladder, err := settings.Ladder()
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}
	if deps.Console == nil {
		deps.Console = os.Stdout
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}

	s := &Server{
		cfg:      cfg,
		settings: settings,
		store:    deps.Store,
		sched:    scheduler.New(settings.Scheduler()),
		metrics:  metrics.New(),
		registry: rank.NewRegistry(ladder),
		grants:   rbac.NewGrants(settings.Grants()),
		console:  NewConsole(deps.Console),
		catalog:  deps.Catalog,
		log:      slog.Default().With("component", "server"),
	}
	s.sessions = NewSessionManager(s.metrics)

	var caps rank.CapabilityChecker = s.grants
	if deps.Capabilities != nil {
		caps = deps.Capabilities
	}
	groups := deps.Groups
	if groups == nil {
		s.groups = rank.NewStaticGroups(settings.GroupAssignments())
		groups = s.groups
	}

	s.gate = gate.New(gate.Deps{
		Store:     deps.Store,
		Scheduler: s.sched,
		Metrics:   s.metrics,
		Clock:     deps.Clock,
		Logger:    slog.Default().With("component", "gate"),
	}, settings.GateSettings())

	s.engine = punish.New(punish.Deps{
		Store:     deps.Store,
		Scheduler: s.sched,
		Ranks:     rank.NewResolver(s.registry, caps, groups),
		Caps:      caps,
		Directory: s.sessions,
		Console:   s.console,
		Sink:      deps.Sink,
		Gate:      s.gate,
		Metrics:   s.metrics,
		Clock:     deps.Clock,
		Logger:    slog.Default().With("component", "punish"),
	}, settings.Engine())

	return s, nil
}

// Sessions returns the session manager.
func (s *Server) Sessions() *SessionManager { return s.sessions }

// Metrics returns the server metrics.
func (s *Server) Metrics() *metrics.Metrics { return s.metrics }

// Engine returns the punishment engine.
func (s *Server) Engine() *punish.Engine { return s.engine }

// Gate returns the enforcement gate.
func (s *Server) Gate() *gate.Gate { return s.gate }

// Scheduler returns the world/worker scheduler.
func (s *Server) Scheduler() *scheduler.Scheduler { return s.sched }

// Settings returns the active configuration.
func (s *Server) Settings() *config.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// Join checks a connecting player against the ban records and, if allowed,
// registers their session. It blocks on the store and must be called from
// the host's login goroutine, never from the world.
func (s *Server) Join(ctx context.Context, sess model.Session, conn Conn) gate.Decision {
	d := s.gate.CheckLogin(ctx, gate.Attempt{ID: sess.ID, Name: sess.Name, IP: sess.IP})
	if !d.Allowed {
		s.log.Info("login denied", "player", sess.Name, "id", sess.ID, "ip", sess.IP)
		return d
	}
	if sess.JoinedAt.IsZero() {
		sess.JoinedAt = s.engine.Now()
	}
	p := &sess
	err := s.sched.World.Call(ctx, func() {
		s.sessions.Add(p, conn)
		s.engine.PlayerJoined(p.Identity(p.JoinedAt))
	})
	if err != nil {
		// the world is gone; the player never became visible
		s.gate.Forget(sess.ID)
		return gate.Decision{Message: gate.UnavailableMessage}
	}
	s.log.Info("player joined", "player", sess.Name, "id", sess.ID)
	return d
}

// Leave drops a player's session and cached state.
func (s *Server) Leave(id uuid.UUID) {
	s.sched.World.Post(func() {
		if sess, ok := s.sessions.Remove(id); ok {
			s.log.Info("player left", "player", sess.Name, "id", id)
		}
	})
	s.gate.Forget(id)
}

// Chat decides whether a chat line from id may be delivered. Denied and held
// lines are answered to the player with the decision's message.
func (s *Server) Chat(ctx context.Context, id uuid.UUID) (gate.Decision, error) {
	var d gate.Decision
	err := s.sched.World.Call(ctx, func() {
		d = s.gate.CheckChat(id)
		if !d.Allowed && d.Message != "" {
			s.sessions.Send(id, d.Message)
		}
	})
	return d, err
}

// Command runs a chat command for an online player. The line may start with
// a slash. Handled is false for commands the engine does not know.
func (s *Server) Command(ctx context.Context, id uuid.UUID, line string) (punish.Reply, error) {
	name, args := splitCommand(line)
	var reply punish.Reply
	err := s.sched.World.Call(ctx, func() {
		sess, ok := s.sessions.LookupID(id)
		if !ok {
			reply = punish.Reply{}
			return
		}
		s.engine.LogCommand(id, strings.TrimSpace(line), sess.World)
		reply = s.engine.ExecuteLine(model.Issuer{ID: id, Name: sess.Name}, name, args)
		if reply.Text != "" {
			s.sessions.Send(id, reply.Text)
		}
	})
	return reply, err
}

// ConsoleCommand runs a command as the console.
func (s *Server) ConsoleCommand(ctx context.Context, line string) (punish.Reply, error) {
	name, args := splitCommand(line)
	var reply punish.Reply
	err := s.sched.World.Call(ctx, func() {
		reply = s.engine.ExecuteLine(model.Console(), name, args)
		if reply.Text != "" {
			s.console.Print(reply.Text)
		}
	})
	return reply, err
}

// GameModeChanged records a game mode switch for an online player.
func (s *Server) GameModeChanged(id uuid.UUID, mode string) {
	s.sched.World.Post(func() {
		var name, from, world string
		ok := s.sessions.Update(id, func(sess *model.Session) {
			name, from, world = sess.Name, sess.GameMode, sess.World
			sess.GameMode = mode
		})
		if !ok || strings.EqualFold(from, mode) {
			return
		}
		s.engine.LogGameModeChange(id, name, from, mode, world)
	})
}

func splitCommand(line string) (string, []string) {
	fields := strings.Fields(strings.TrimPrefix(strings.TrimSpace(line), "/"))
	if len(fields) == 0 {
		return "", nil
	}
	return strings.ToLower(fields[0]), fields[1:]
}

// Reload re-reads the config file and swaps the rank ladder, grants,
// templates and engine and gate settings. In-flight commands finish with
// the settings they started with.
func (s *Server) Reload() error {
	if s.cfg.ConfigPath == "" {
		return errors.New("server: no config file to reload")
	}
	settings, err := config.Load(s.cfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("server: reload: %w", err)
	}
	return s.apply(settings)
}

func (s *Server) apply(settings *config.Config) error {
	ladder, err := settings.Ladder()
	if err != nil {
		return fmt.Errorf("server: reload: %w", err)
	}
	if s.catalog != nil {
		if err := s.catalog.Replace(settings.Routing()); err != nil {
			return fmt.Errorf("server: reload: %w", err)
		}
	}
	s.registry.Swap(ladder)
	s.grants.Replace(settings.Grants())
	if s.groups != nil {
		s.groups.Replace(settings.GroupAssignments())
	}
	s.engine.Reload(settings.Engine())
	s.gate.Reload(settings.GateSettings())

	s.mu.Lock()
	s.settings = settings
	s.mu.Unlock()
	s.log.Info("configuration reloaded", "ranks", ladder.Len(), "mode", ladder.Mode())
	return nil
}
