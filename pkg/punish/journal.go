package punish

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/NicolasHaas/gomoderate/pkg/model"
	"github.com/NicolasHaas/gomoderate/pkg/notify"
	"github.com/NicolasHaas/gomoderate/pkg/render"
)

// background writes to the store on a worker. Failures are logged only;
// audit and identity writes never block or fail the player action that
// caused them.
func (e *Engine) background(what string, fn func(ctx context.Context) error) {
	cfg := e.config()
	err := e.deps.Scheduler.Async(func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, cfg.StorageTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			e.count(Storage(err))
			e.log.Error("background write failed", "what", what, "err", err)
		}
	})
	if err != nil {
		e.log.Warn("background write dropped", "what", what, "err", err)
	}
}

// PlayerJoined refreshes the identity cache for a player who just connected.
func (e *Engine) PlayerJoined(identity model.PlayerIdentity) {
	if identity.ID == uuid.Nil {
		return
	}
	if identity.LastSeen.IsZero() {
		identity.LastSeen = e.now()
	}
	if identity.FirstSeen.IsZero() {
		identity.FirstSeen = identity.LastSeen
	}
	e.background("identity", func(ctx context.Context) error {
		return e.deps.Store.NonTx().UpsertIdentity(ctx, identity)
	})
}

// LogCommand appends a command to the audit log.
func (e *Engine) LogCommand(player uuid.UUID, command, world string) {
	entry := &model.CommandLogEntry{Player: player, Command: command, World: world, CreatedAt: e.now()}
	e.background("command log", func(ctx context.Context) error {
		return e.deps.Store.NonTx().LogCommand(ctx, entry)
	})
}

// LogGameModeChange appends a game mode switch to the audit log and emits a
// gamemode notification once it is written.
func (e *Engine) LogGameModeChange(player uuid.UUID, name, from, to, world string) {
	cfg := e.config()
	change := &model.GameModeChange{Player: player, From: from, To: to, World: world, CreatedAt: e.now()}
	e.background("gamemode log", func(ctx context.Context) error {
		if err := e.deps.Store.NonTx().LogGameModeChange(ctx, change); err != nil {
			return err
		}
		vars := render.Vars{"player": name, "from": from, "to": to, "world": world}
		ev := notify.Event{Category: notify.CategoryGameMode, Template: "gamemode", Placeholders: vars, At: change.CreatedAt}
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.NotifyTimeout)
		defer cancel()
		if err := e.deps.Sink.Emit(nctx, ev); err != nil {
			e.notifyFailed(ev, err)
		}
		return nil
	})
}

// Now exposes the engine clock to hosts and the gate.
func (e *Engine) Now() time.Time { return e.now() }
