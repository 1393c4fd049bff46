// Package punish turns moderation commands into persisted records and their
// in-game effects.
//
// Execute runs on the world goroutine. Cheap checks (capability, rank of two
// online players) happen inline; everything that touches the record store is
// dispatched to a worker while holding the target's key lock, and the
// in-game effects are applied by a continuation posted back to the world.
// Nothing is enforced unless the record was written first.
package punish

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/NicolasHaas/gomoderate/pkg/datastore"
	"github.com/NicolasHaas/gomoderate/pkg/metrics"
	"github.com/NicolasHaas/gomoderate/pkg/model"
	"github.com/NicolasHaas/gomoderate/pkg/notify"
	"github.com/NicolasHaas/gomoderate/pkg/rank"
	"github.com/NicolasHaas/gomoderate/pkg/rbac"
	"github.com/NicolasHaas/gomoderate/pkg/render"
	"github.com/NicolasHaas/gomoderate/pkg/scheduler"
)

// Directory is the host's view of connected players. All methods are called
// on the world goroutine only.
type Directory interface {
	Lookup(name string) (*model.Session, bool)
	LookupID(id uuid.UUID) (*model.Session, bool)
	Online() []*model.Session
	Disconnect(id uuid.UUID, message string)
	Send(id uuid.UUID, message string)
}

// Console receives replies for commands issued from the console.
type Console interface {
	Print(text string)
}

// Invalidator drops cached punishment state for a player.
type Invalidator interface {
	Invalidate(id uuid.UUID)
}

// OfflinePolicy decides what happens when an offline target's rank cannot be
// verified.
type OfflinePolicy string

const (
	OfflineDeny  OfflinePolicy = "deny"
	OfflineAllow OfflinePolicy = "allow"
)

// Config holds the reloadable engine settings.
type Config struct {
	DefaultReason  string
	AppealURL      string
	StorageTimeout time.Duration
	NotifyTimeout  time.Duration
	RankTimeout    time.Duration // bounds rank lookups made on the world goroutine
	OfflinePolicy  OfflinePolicy
	Capabilities   map[string]string // command name -> capability
	Templates      render.Templates
}

// DefaultConfig returns the built-in settings.
func DefaultConfig() Config {
	return Config{
		DefaultReason:  "No reason provided",
		AppealURL:      render.DefaultAppealURL,
		StorageTimeout: 5 * time.Second,
		NotifyTimeout:  10 * time.Second,
		RankTimeout:    250 * time.Millisecond,
		OfflinePolicy:  OfflineDeny,
		Capabilities:   rbac.DefaultCommandCapabilities(),
		Templates:      render.DefaultTemplates(),
	}
}

// Deps are the engine's collaborators.
type Deps struct {
	Store     datastore.DataProviderFactory
	Scheduler *scheduler.Scheduler
	Ranks     *rank.Resolver
	Caps      rbac.Checker
	Directory Directory
	Console   Console
	Sink      notify.Sink      // nil disables notifications
	Gate      Invalidator      // optional
	Metrics   *metrics.Metrics // optional
	Clock     func() time.Time // defaults to time.Now
	Logger    *slog.Logger
}

// Engine executes moderation commands.
type Engine struct {
	deps Deps
	cfg  atomic.Pointer[Config]
	log  *slog.Logger
}

// New creates an engine.
func New(deps Deps, cfg Config) *Engine {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Sink == nil {
		deps.Sink = notify.Nop{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	e := &Engine{deps: deps, log: deps.Logger}
	e.Reload(cfg)
	return e
}

// Reload swaps the engine settings. In-flight commands keep the settings they
// started with.
func (e *Engine) Reload(cfg Config) {
	d := DefaultConfig()
	if cfg.DefaultReason == "" {
		cfg.DefaultReason = d.DefaultReason
	}
	if cfg.AppealURL == "" {
		cfg.AppealURL = d.AppealURL
	}
	if cfg.StorageTimeout <= 0 {
		cfg.StorageTimeout = d.StorageTimeout
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = d.NotifyTimeout
	}
	if cfg.RankTimeout <= 0 {
		cfg.RankTimeout = d.RankTimeout
	}
	if cfg.OfflinePolicy != OfflineAllow {
		cfg.OfflinePolicy = OfflineDeny
	}
	if cfg.Capabilities == nil {
		cfg.Capabilities = d.Capabilities
	}
	cfg.Templates = cfg.Templates.Merge(d.Templates)
	e.cfg.Store(&cfg)
}

func (e *Engine) config() *Config { return e.cfg.Load() }

func (e *Engine) now() time.Time { return e.deps.Clock() }

// Reply is the synchronous answer to a command. Text is set when the command
// was answered inline, usually because it was rejected. Done receives the
// final outcome exactly once: nil once enforced, or the error that aborted it.
type Reply struct {
	Handled bool
	Text    string
	Done    <-chan error
}

// Wait blocks until the command has finished or ctx is done. It must not be
// called from the world goroutine.
func (r Reply) Wait(ctx context.Context) error {
	if r.Done == nil {
		return nil
	}
	select {
	case err := <-r.Done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func finished(err error) <-chan error {
	ch := make(chan error, 1)
	ch <- err
	return ch
}

// ExecuteLine parses and executes a command. Unknown commands are reported as
// not handled so the host can try other handlers.
func (e *Engine) ExecuteLine(issuer model.Issuer, name string, args []string) Reply {
	if UsageFor(name) == "" {
		return Reply{Handled: false, Done: finished(nil)}
	}
	cmd, err := Parse(name, args)
	if err != nil {
		return e.reject(issuer, name, err)
	}
	return e.Execute(issuer, cmd)
}

// Execute runs cmd for issuer. Must be called on the world goroutine.
func (e *Engine) Execute(issuer model.Issuer, cmd Command) Reply {
	cfg := e.config()

	if !issuer.IsConsole() {
		if msg := rbac.RequireCapability(e.deps.Caps, issuer.ID, cfg.Capabilities[cmd.Name()]); msg != "" {
			return e.reject(issuer, cmd.Name(), Authority(msg))
		}
	}

	switch c := cmd.(type) {
	case Ban:
		return e.ban(issuer, cfg, c)
	case Mute:
		return e.mute(issuer, cfg, c)
	case Kick:
		return e.kick(issuer, cfg, c)
	case Warn:
		return e.warn(issuer, cfg, c)
	case Unban:
		return e.unban(issuer, cfg, c)
	case Unmute:
		return e.unmute(issuer, cfg, c)
	case History:
		return e.history(issuer, cfg, c)
	case Alts:
		return e.alts(issuer, cfg, c)
	case Note:
		return e.note(issuer, cfg, c)
	case Report:
		return e.report(issuer, cfg, c)
	case NameBan:
		return e.nameBan(issuer, cfg, c)
	default:
		return e.reject(issuer, cmd.Name(), Usage("Unknown command."))
	}
}

// reject answers inline with err's user text.
func (e *Engine) reject(issuer model.Issuer, name string, err error) Reply {
	e.count(err)
	e.log.Debug("moderation command rejected", "command", name, "issuer", issuer.DisplayName(), "err", err)
	return Reply{Handled: true, Text: UserText(err), Done: finished(err)}
}

func (e *Engine) count(err error) {
	m := e.deps.Metrics
	if m == nil {
		return
	}
	switch KindOf(err) {
	case KindStorage:
		m.StorageErrors.Add(1)
	case KindNotification:
		m.NotifyFailures.Add(1)
	default:
		m.CommandsDenied.Add(1)
	}
}

// reply delivers text to whoever issued a command.
func (e *Engine) reply(issuer model.Issuer, text string) {
	if text == "" {
		return
	}
	if issuer.IsConsole() {
		if e.deps.Console != nil {
			e.deps.Console.Print(text)
		}
		return
	}
	e.deps.Directory.Send(issuer.ID, text)
}

// async runs work on a worker under the storage timeout and hands the result
// to finish on the world. Errors are reported to the issuer and logged; the
// returned Reply's Done fires after finish or the error report.
func async[T any](e *Engine, issuer model.Issuer, name string, cfg *Config, work func(ctx context.Context) (T, error), finish func(T) string) Reply {
	done := make(chan error, 1)
	scheduler.Dispatch(e.deps.Scheduler,
		func(ctx context.Context) (T, error) {
			ctx, cancel := context.WithTimeout(ctx, cfg.StorageTimeout)
			defer cancel()
			return work(ctx)
		},
		func(v T, err error) {
			if err != nil {
				err = classify(err)
				e.count(err)
				if KindOf(err) == KindStorage {
					e.log.Error("moderation command failed", "command", name, "issuer", issuer.DisplayName(), "err", err)
				}
				e.reply(issuer, UserText(err))
				done <- err
				return
			}
			e.reply(issuer, finish(v))
			done <- nil
		})
	return Reply{Handled: true, Done: done}
}

// classify maps non-engine errors onto the taxonomy.
func classify(err error) error {
	var pe *Error
	if errors.As(err, &pe) {
		return err
	}
	if errors.Is(err, scheduler.ErrPoolSaturated) || errors.Is(err, scheduler.ErrPoolClosed) {
		return &Error{Kind: KindStorage, Message: msgBusy, Cause: err}
	}
	return Storage(err)
}

// locked runs fn while holding the serialization key for a target.
func (e *Engine) locked(key string, fn func() error) error {
	unlock := e.deps.Scheduler.Keys.Lock(key)
	defer unlock()
	return fn()
}

func playerKey(id uuid.UUID) string { return "player:" + id.String() }

// target is what the world step learned about a player target.
type target struct {
	name   string
	online *model.Session // nil if offline
	rank   *model.StaffRank
}

// issuerRank is the executor's rank, resolved on the world for player issuers.
func (e *Engine) issuerRank(issuer model.Issuer) *model.StaffRank {
	if issuer.IsConsole() || e.deps.Ranks == nil {
		return nil
	}
	return e.liveRank(issuer.ID)
}

// liveRank resolves an online player's rank on the world goroutine. A group
// provider that does not answer within RankTimeout counts as no rank.
func (e *Engine) liveRank(id uuid.UUID) *model.StaffRank {
	ctx, cancel := context.WithTimeout(context.Background(), e.config().RankTimeout)
	defer cancel()
	return e.deps.Ranks.Resolve(ctx, id)
}

// checkOnline applies the rank rule when both issuer and target are online.
// It returns the issuer's rank for a later offline check.
func (e *Engine) checkOnline(issuer model.Issuer, name string) (target, *model.StaffRank, error) {
	t := target{name: name}
	if sess, ok := e.deps.Directory.Lookup(name); ok {
		t.online = sess
		t.name = sess.Name
	}
	if issuer.IsConsole() {
		return t, nil, nil
	}
	exec := e.issuerRank(issuer)
	if t.online != nil {
		if t.online.ID == issuer.ID {
			return t, exec, Authority("You cannot punish yourself.")
		}
		if e.deps.Ranks != nil {
			t.rank = e.liveRank(t.online.ID)
		}
		if !rank.CanPunish(exec, t.rank) {
			return t, exec, Authority(msgHigherRank)
		}
	}
	return t, exec, nil
}

// resolve finds the target's identity: the online session first, else the
// identity cache. Runs on a worker.
func (e *Engine) resolve(ctx context.Context, t target) (model.PlayerIdentity, error) {
	if t.online != nil {
		return t.online.Identity(e.now()), nil
	}
	ident, err := e.deps.Store.NonTx().IdentityByName(ctx, t.name)
	if err != nil {
		return model.PlayerIdentity{}, Storage(err)
	}
	if ident == nil {
		return model.PlayerIdentity{}, Resolution(msgNotFound)
	}
	return *ident, nil
}

// checkOffline applies the rank rule to a target that was offline when the
// command was issued. Runs on a worker.
func (e *Engine) checkOffline(ctx context.Context, issuer model.Issuer, exec *model.StaffRank, cfg *Config, t target, id uuid.UUID) error {
	if issuer.IsConsole() || t.online != nil {
		return nil
	}
	if id == issuer.ID {
		return Authority("You cannot punish yourself.")
	}
	if e.deps.Ranks == nil {
		return nil
	}
	targetRank, err := e.deps.Ranks.ResolveOffline(ctx, id)
	if err != nil {
		if cfg.OfflinePolicy == OfflineAllow {
			e.log.Warn("offline rank unverifiable, allowed by policy", "target", id, "issuer", issuer.DisplayName(), "err", err)
			return nil
		}
		return &Error{Kind: KindAuthority, Message: msgUnverifiable, Cause: err}
	}
	if !rank.CanPunish(exec, targetRank) {
		return Authority(msgHigherRank)
	}
	return nil
}

// emit hands exactly one event to the sink on a worker. Failures are logged
// and counted, never reported to the issuer.
func (e *Engine) emit(cfg *Config, category, template string, vars render.Vars) {
	ev := notify.Event{Category: category, Template: template, Placeholders: vars, At: e.now()}
	err := e.deps.Scheduler.Async(func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, cfg.NotifyTimeout)
		defer cancel()
		if err := e.deps.Sink.Emit(ctx, ev); err != nil {
			e.notifyFailed(ev, err)
		}
	})
	if err != nil {
		e.notifyFailed(ev, err)
	}
}

func (e *Engine) notifyFailed(ev notify.Event, err error) {
	err = Notification(err)
	e.count(err)
	e.log.Warn("notification failed", "category", ev.Category, "template", ev.Template, "err", err)
}

// broadcast sends a rendered broadcast to every online player and the console.
func (e *Engine) broadcast(cfg *Config, action string, vars render.Vars) {
	msg := cfg.Templates.Broadcast(action, vars)
	if msg == "" {
		return
	}
	for _, s := range e.deps.Directory.Online() {
		e.deps.Directory.Send(s.ID, msg)
	}
	if e.deps.Console != nil {
		e.deps.Console.Print(msg)
	}
}

func (e *Engine) invalidate(id uuid.UUID) {
	if e.deps.Gate != nil && id != uuid.Nil {
		e.deps.Gate.Invalidate(id)
	}
}

// punishmentVars are the placeholders shared by broadcasts and notifications.
func punishmentVars(p *model.Punishment, now time.Time) render.Vars {
	return render.Vars{
		"player":    p.TargetName,
		"staff":     p.StaffName,
		"reason":    p.Reason,
		"type":      string(p.Type),
		"duration":  render.Length(p),
		"expires":   render.Expires(p, now),
		"appeal_id": p.AppealID,
	}
}

func newAppealID() string {
	return uuid.NewString()[:8]
}

// reasonOr returns reason, or the configured default when it is empty.
func reasonOr(cfg *Config, reason string) string {
	if strings.TrimSpace(reason) == "" {
		return cfg.DefaultReason
	}
	return reason
}

// stamp fills the issuer and time fields of a new record.
func (e *Engine) stamp(p *model.Punishment, issuer model.Issuer, d time.Duration) {
	p.Staff = issuer.ID
	p.StaffName = issuer.DisplayName()
	p.CreatedAt = e.now()
	p.Type = model.TypeFor(d)
	if d > 0 {
		p.ExpiresAt = p.CreatedAt.Add(d)
	}
}
