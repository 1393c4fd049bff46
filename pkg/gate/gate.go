// Package gate answers "may this player log in" and "may this player chat"
// against the persisted punishment records.
//
// Login checks run on the host's login goroutine and query the store
// directly. Chat checks run on the world goroutine and only read an
// in-memory cache of active mutes; a miss schedules a load on a worker and
// holds the message until it completes.
package gate

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/NicolasHaas/gomoderate/pkg/datastore"
	"github.com/NicolasHaas/gomoderate/pkg/metrics"
	"github.com/NicolasHaas/gomoderate/pkg/model"
	"github.com/NicolasHaas/gomoderate/pkg/render"
	"github.com/NicolasHaas/gomoderate/pkg/scheduler"
)

// Attempt describes a connecting player.
type Attempt struct {
	ID   uuid.UUID
	Name string
	IP   string
}

// Decision is the outcome of a check. Message is shown to the player when
// Allowed is false.
type Decision struct {
	Allowed    bool
	Held       bool // chat only: state was not loaded yet
	Message    string
	Punishment *model.Punishment
	NameBan    *model.NameBan
}

var allow = Decision{Allowed: true}

// Config holds the reloadable gate settings.
type Config struct {
	AppealURL      string
	Templates      render.Templates
	StorageTimeout time.Duration
	// FailOpen lets logins through when the store cannot be reached.
	FailOpen bool
}

// UnavailableMessage is shown when a login could not be checked.
const UnavailableMessage = "Could not verify your account right now. Please reconnect in a moment."

// Deps are the gate's collaborators.
type Deps struct {
	Store     datastore.DataProviderFactory
	Scheduler *scheduler.Scheduler
	Metrics   *metrics.Metrics
	Clock     func() time.Time
	Logger    *slog.Logger
}

type entry struct {
	mute    *model.Punishment
	loaded  bool
	loading bool
	gen     uint64
}

// Gate enforces bans at login and mutes in chat.
type Gate struct {
	deps Deps
	cfg  atomic.Pointer[Config]
	log  *slog.Logger

	mu    sync.Mutex
	cache map[uuid.UUID]*entry
}

// New creates a gate.
func New(deps Deps, cfg Config) *Gate {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	g := &Gate{deps: deps, log: deps.Logger, cache: make(map[uuid.UUID]*entry)}
	g.Reload(cfg)
	return g
}

// Reload swaps the gate settings.
func (g *Gate) Reload(cfg Config) {
	if cfg.StorageTimeout <= 0 {
		cfg.StorageTimeout = 5 * time.Second
	}
	if cfg.AppealURL == "" {
		cfg.AppealURL = render.DefaultAppealURL
	}
	cfg.Templates = cfg.Templates.Merge(render.DefaultTemplates())
	g.cfg.Store(&cfg)
}

func (g *Gate) config() *Config { return g.cfg.Load() }

// CheckLogin looks for an active ban on the player, their address or their
// name. It blocks on the store and must not run on the world goroutine. An
// allowed login primes the chat cache for the player.
func (g *Gate) CheckLogin(ctx context.Context, a Attempt) Decision {
	cfg := g.config()
	if m := g.deps.Metrics; m != nil {
		m.LoginsChecked.Add(1)
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.StorageTimeout)
	defer cancel()

	now := g.deps.Clock()
	store := g.deps.Store.NonTx()

	ban, err := store.ActiveBan(ctx, a.ID, a.IP, now)
	if err != nil {
		return g.unavailable(cfg, a, err)
	}
	if ban != nil {
		g.denied()
		return Decision{Message: cfg.Templates.BanScreenFor(ban, now, cfg.AppealURL), Punishment: ban}
	}

	if a.Name != "" {
		nb, err := store.ActiveNameBan(ctx, a.Name, now)
		if err != nil {
			return g.unavailable(cfg, a, err)
		}
		if nb != nil {
			g.denied()
			return Decision{Message: cfg.Templates.NameBanScreenFor(nb, now, cfg.AppealURL), NameBan: nb}
		}
	}

	if a.ID != uuid.Nil {
		g.mu.Lock()
		gen := g.entryLocked(a.ID).gen
		g.mu.Unlock()
		mute, err := store.ActiveMute(ctx, a.ID, now)
		if err != nil {
			g.log.Warn("could not prime mute cache", "player", a.ID, "err", err)
		} else {
			g.store(a.ID, gen, mute)
		}
	}
	return allow
}

func (g *Gate) denied() {
	if m := g.deps.Metrics; m != nil {
		m.LoginsDenied.Add(1)
	}
}

func (g *Gate) unavailable(cfg *Config, a Attempt, err error) Decision {
	if m := g.deps.Metrics; m != nil {
		m.StorageErrors.Add(1)
	}
	g.log.Error("login check failed", "player", a.ID, "name", a.Name, "fail_open", cfg.FailOpen, "err", err)
	if cfg.FailOpen {
		return allow
	}
	g.denied()
	return Decision{Message: UnavailableMessage}
}

// CheckChat decides whether a chat message may be delivered. It never
// touches the store and must run on the world goroutine.
func (g *Gate) CheckChat(id uuid.UUID) Decision {
	cfg := g.config()
	now := g.deps.Clock()

	g.mu.Lock()
	e, ok := g.cache[id]
	if !ok || !e.loaded {
		g.mu.Unlock()
		g.load(id)
		if m := g.deps.Metrics; m != nil {
			m.ChatHeld.Add(1)
		}
		return Decision{Held: true, Message: cfg.Templates.ChatHold}
	}
	mute := e.mute
	if mute != nil && !mute.ActiveAt(now) {
		// expired since it was cached
		e.mute, mute = nil, nil
	}
	g.mu.Unlock()

	if mute == nil {
		return allow
	}
	if m := g.deps.Metrics; m != nil {
		m.ChatDenied.Add(1)
	}
	return Decision{Message: cfg.Templates.MuteNoticeFor(mute, now), Punishment: mute}
}

// Invalidate marks a tracked player's cached state stale and reloads it.
// Chat from the player is held until the reload completes. Players the gate
// does not track are ignored.
func (g *Gate) Invalidate(id uuid.UUID) {
	g.mu.Lock()
	e, ok := g.cache[id]
	if ok {
		e.gen++
		e.loaded = false
	}
	g.mu.Unlock()
	if ok {
		g.load(id)
	}
}

// Forget drops a player's cached state, usually on quit.
func (g *Gate) Forget(id uuid.UUID) {
	g.mu.Lock()
	delete(g.cache, id)
	g.mu.Unlock()
}

// Tracked returns the number of players with cached state.
func (g *Gate) Tracked() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.cache)
}

// RefreshOnline reloads the mute state of every tracked player. It blocks on
// the store; run it on a worker.
func (g *Gate) RefreshOnline(ctx context.Context) {
	g.mu.Lock()
	ids := make(map[uuid.UUID]uint64, len(g.cache))
	for id, e := range g.cache {
		ids[id] = e.gen
	}
	g.mu.Unlock()

	for id, gen := range ids {
		if ctx.Err() != nil {
			return
		}
		if err := g.fetch(ctx, id, gen); err != nil {
			g.log.Warn("mute refresh failed", "player", id, "err", err)
		}
	}
}

// entryLocked returns the entry for id, creating it. g.mu must be held.
func (g *Gate) entryLocked(id uuid.UUID) *entry {
	e, ok := g.cache[id]
	if !ok {
		e = &entry{}
		g.cache[id] = e
	}
	return e
}

// store installs a loaded mute unless the entry was invalidated or forgotten
// since gen was read.
func (g *Gate) store(id uuid.UUID, gen uint64, mute *model.Punishment) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.cache[id]
	if !ok || e.gen != gen {
		return false
	}
	e.mute = mute
	e.loaded = true
	return true
}

func (g *Gate) fetch(ctx context.Context, id uuid.UUID, gen uint64) error {
	ctx, cancel := context.WithTimeout(ctx, g.config().StorageTimeout)
	defer cancel()
	mute, err := g.deps.Store.NonTx().ActiveMute(ctx, id, g.deps.Clock())
	if err != nil {
		if m := g.deps.Metrics; m != nil {
			m.StorageErrors.Add(1)
		}
		return err
	}
	g.store(id, gen, mute)
	return nil
}

// load schedules one background load for id. Concurrent calls coalesce; a
// load that finishes after an invalidation schedules another.
func (g *Gate) load(id uuid.UUID) {
	g.mu.Lock()
	e := g.entryLocked(id)
	if e.loading {
		g.mu.Unlock()
		return
	}
	e.loading = true
	gen := e.gen
	g.mu.Unlock()

	err := g.deps.Scheduler.Async(func(ctx context.Context) {
		err := g.fetch(ctx, id, gen)

		g.mu.Lock()
		e, ok := g.cache[id]
		again := false
		if ok {
			e.loading = false
			again = err == nil && !e.loaded
		}
		g.mu.Unlock()

		if err != nil {
			g.log.Warn("mute load failed", "player", id, "err", err)
		}
		if again {
			g.load(id)
		}
	})
	if err != nil {
		g.mu.Lock()
		if e, ok := g.cache[id]; ok {
			e.loading = false
		}
		g.mu.Unlock()
		g.log.Warn("mute load not scheduled", "player", id, "err", err)
	}
}
