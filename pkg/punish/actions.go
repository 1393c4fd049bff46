package punish

import (
	"context"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/NicolasHaas/gomoderate/pkg/model"
	"github.com/NicolasHaas/gomoderate/pkg/notify"
	"github.com/NicolasHaas/gomoderate/pkg/rank"
	"github.com/NicolasHaas/gomoderate/pkg/render"
)

// enforced runs the side effects every new punishment shares.
func (e *Engine) enforced(cfg *Config, action string, p *model.Punishment, now time.Time) {
	e.deps.Metrics.Punished(p.Kind)
	vars := punishmentVars(p, now)
	e.broadcast(cfg, action, vars)
	e.invalidate(p.Target)
	e.emit(cfg, notify.CategoryPunishments, action, vars)
}

// ---- Ban ----

func (e *Engine) ban(issuer model.Issuer, cfg *Config, c Ban) Reply {
	reason := reasonOr(cfg, c.Reason)
	if c.Target.Scoped() {
		return e.banAddress(issuer, cfg, c, reason)
	}
	t, exec, err := e.checkOnline(issuer, c.Target.Name)
	if err != nil {
		return e.reject(issuer, c.Name(), err)
	}

	return async(e, issuer, c.Name(), cfg,
		func(ctx context.Context) (*model.Punishment, error) {
			ident, err := e.resolve(ctx, t)
			if err != nil {
				return nil, err
			}
			p := &model.Punishment{Target: ident.ID, TargetName: ident.Name, Reason: reason, AppealID: newAppealID()}
			return p, e.locked(playerKey(ident.ID), func() error {
				if err := e.checkOffline(ctx, issuer, exec, cfg, t, ident.ID); err != nil {
					return err
				}
				e.stamp(p, issuer, c.Duration)
				if err := e.deps.Store.NonTx().CreateBan(ctx, p); err != nil {
					return Storage(err)
				}
				return nil
			})
		},
		func(p *model.Punishment) string {
			now := e.now()
			if _, ok := e.deps.Directory.LookupID(p.Target); ok {
				e.deps.Directory.Disconnect(p.Target, cfg.Templates.BanScreenFor(p, now, cfg.AppealURL))
			}
			e.enforced(cfg, "ban", p, now)
			return fmt.Sprintf("Banned %s (%s). Appeal ID: %s", p.TargetName, render.Length(p), p.AppealID)
		})
}

// banAddress bans an address or range. Every online player on it who the
// issuer may not punish blocks the ban.
func (e *Engine) banAddress(issuer model.Issuer, cfg *Config, c Ban, reason string) Reply {
	affected := e.onAddress(c.Target)
	if !issuer.IsConsole() {
		exec := e.issuerRank(issuer)
		for _, s := range affected {
			var tr *model.StaffRank
			if e.deps.Ranks != nil {
				tr = e.liveRank(s.ID)
			}
			if s.ID == issuer.ID || !rank.CanPunish(exec, tr) {
				return e.reject(issuer, c.Name(), Authority(msgHigherRank))
			}
		}
	}

	return async(e, issuer, c.Name(), cfg,
		func(ctx context.Context) (*model.Punishment, error) {
			p := &model.Punishment{IP: c.Target.IP, IPRange: c.Target.Range, TargetName: c.Target.String(), Reason: reason, AppealID: newAppealID()}
			return p, e.locked("addr:"+c.Target.String(), func() error {
				e.stamp(p, issuer, c.Duration)
				if err := e.deps.Store.NonTx().CreateBan(ctx, p); err != nil {
					return Storage(err)
				}
				return nil
			})
		},
		func(p *model.Punishment) string {
			now := e.now()
			screen := cfg.Templates.BanScreenFor(p, now, cfg.AppealURL)
			// re-read: players may have joined while the record was written
			for _, s := range e.onAddress(c.Target) {
				e.deps.Directory.Disconnect(s.ID, screen)
			}
			e.enforced(cfg, "ban", p, now)
			return fmt.Sprintf("Banned %s (%s). Appeal ID: %s", p.TargetName, render.Length(p), p.AppealID)
		})
}

// onAddress lists online sessions whose address falls under t.
func (e *Engine) onAddress(t Target) []*model.Session {
	var out []*model.Session
	for _, s := range e.deps.Directory.Online() {
		if matchesAddress(t, s.IP) {
			out = append(out, s)
		}
	}
	return out
}

func matchesAddress(t Target, ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	if t.Range != "" {
		p, err := netip.ParsePrefix(t.Range)
		return err == nil && p.Contains(addr)
	}
	want, err := netip.ParseAddr(t.IP)
	return err == nil && want.Unmap() == addr
}

// ---- Mute ----

func (e *Engine) mute(issuer model.Issuer, cfg *Config, c Mute) Reply {
	reason := reasonOr(cfg, c.Reason)
	t, exec, err := e.checkOnline(issuer, c.Target.Name)
	if err != nil {
		return e.reject(issuer, c.Name(), err)
	}

	return async(e, issuer, c.Name(), cfg,
		func(ctx context.Context) (*model.Punishment, error) {
			ident, err := e.resolve(ctx, t)
			if err != nil {
				return nil, err
			}
			p := &model.Punishment{Target: ident.ID, TargetName: ident.Name, Reason: reason}
			return p, e.locked(playerKey(ident.ID), func() error {
				if err := e.checkOffline(ctx, issuer, exec, cfg, t, ident.ID); err != nil {
					return err
				}
				e.stamp(p, issuer, c.Duration)
				if err := e.deps.Store.NonTx().CreateMute(ctx, p); err != nil {
					return Storage(err)
				}
				return nil
			})
		},
		func(p *model.Punishment) string {
			now := e.now()
			if _, ok := e.deps.Directory.LookupID(p.Target); ok {
				e.deps.Directory.Send(p.Target, cfg.Templates.MuteNoticeFor(p, now))
			}
			e.enforced(cfg, "mute", p, now)
			return fmt.Sprintf("Muted %s (%s).", p.TargetName, render.Length(p))
		})
}

// ---- Kick ----

func (e *Engine) kick(issuer model.Issuer, cfg *Config, c Kick) Reply {
	reason := reasonOr(cfg, c.Reason)
	t, _, err := e.checkOnline(issuer, c.Target)
	if err != nil {
		return e.reject(issuer, c.Name(), err)
	}
	if t.online == nil {
		return e.reject(issuer, c.Name(), Resolution(msgNotOnline))
	}
	sess := t.online

	return async(e, issuer, c.Name(), cfg,
		func(ctx context.Context) (*model.Punishment, error) {
			p := &model.Punishment{Target: sess.ID, TargetName: sess.Name, Reason: reason}
			return p, e.locked(playerKey(sess.ID), func() error {
				e.stamp(p, issuer, 0)
				if err := e.deps.Store.NonTx().CreateKick(ctx, p); err != nil {
					return Storage(err)
				}
				return nil
			})
		},
		func(p *model.Punishment) string {
			now := e.now()
			if _, ok := e.deps.Directory.LookupID(p.Target); ok {
				e.deps.Directory.Disconnect(p.Target, render.Apply(cfg.Templates.KickScreen, punishmentVars(p, now)))
			}
			e.enforced(cfg, "kick", p, now)
			return fmt.Sprintf("Kicked %s.", p.TargetName)
		})
}

// ---- Warn ----

type warnResult struct {
	p      *model.Punishment
	active int
}

func (e *Engine) warn(issuer model.Issuer, cfg *Config, c Warn) Reply {
	reason := reasonOr(cfg, c.Reason)
	t, exec, err := e.checkOnline(issuer, c.Target)
	if err != nil {
		return e.reject(issuer, c.Name(), err)
	}

	return async(e, issuer, c.Name(), cfg,
		func(ctx context.Context) (warnResult, error) {
			ident, err := e.resolve(ctx, t)
			if err != nil {
				return warnResult{}, err
			}
			res := warnResult{p: &model.Punishment{Target: ident.ID, TargetName: ident.Name, Reason: reason}}
			err = e.locked(playerKey(ident.ID), func() error {
				if err := e.checkOffline(ctx, issuer, exec, cfg, t, ident.ID); err != nil {
					return err
				}
				e.stamp(res.p, issuer, c.Duration)

				tx, err := e.deps.Store.Tx(ctx)
				if err != nil {
					return Storage(err)
				}
				defer func() { _ = tx.Rollback() }()
				if err := tx.CreateWarning(ctx, res.p); err != nil {
					return Storage(err)
				}
				n, err := tx.CountActiveWarnings(ctx, ident.ID, res.p.CreatedAt)
				if err != nil {
					return Storage(err)
				}
				if err := tx.Commit(); err != nil {
					return Storage(err)
				}
				res.active = n
				return nil
			})
			return res, err
		},
		func(r warnResult) string {
			now := e.now()
			p := r.p
			if _, ok := e.deps.Directory.LookupID(p.Target); ok {
				e.deps.Directory.Send(p.Target, render.Apply(cfg.Templates.WarnNotice, punishmentVars(p, now)))
			}
			e.enforced(cfg, "warn", p, now)
			return fmt.Sprintf("Warned %s (%d active warnings).", p.TargetName, r.active)
		})
}

// ---- Unban / Unmute ----

type revokeResult struct {
	id    uuid.UUID
	name  string
	count int64
}

func (e *Engine) revoked(cfg *Config, issuer model.Issuer, action string, r revokeResult, reason string) {
	if m := e.deps.Metrics; m != nil {
		m.Revocations.Add(1)
	}
	vars := render.Vars{"player": r.name, "staff": issuer.DisplayName(), "reason": reason}
	e.broadcast(cfg, action, vars)
	e.invalidate(r.id)
	e.emit(cfg, notify.CategoryPunishments, action, vars)
}

func (e *Engine) unban(issuer model.Issuer, cfg *Config, c Unban) Reply {
	reason := reasonOr(cfg, c.Reason)
	rev := model.Revocation{By: issuer.ID, Reason: reason}
	t := target{name: c.Target.Name}
	if !c.Target.Scoped() {
		if s, ok := e.deps.Directory.Lookup(c.Target.Name); ok {
			t.online, t.name = s, s.Name
		}
	}

	return async(e, issuer, c.Name(), cfg,
		func(ctx context.Context) (revokeResult, error) {
			store := e.deps.Store.NonTx()
			res := revokeResult{name: c.Target.String()}

			if c.Target.Scoped() {
				err := e.locked("addr:"+c.Target.String(), func() error {
					n, err := store.RevokeBans(ctx, uuid.Nil, c.Target.String(), e.now(), rev)
					res.count = n
					return err
				})
				if err != nil {
					return res, Storage(err)
				}
			} else {
				ident, err := e.resolve(ctx, t)
				found := err == nil
				if err != nil && KindOf(err) != KindResolution {
					return res, err
				}
				if found {
					res.id, res.name = ident.ID, ident.Name
					err = e.locked(playerKey(ident.ID), func() error {
						n, err := store.RevokeBans(ctx, ident.ID, "", e.now(), rev)
						res.count = n
						return err
					})
					if err != nil {
						return res, Storage(err)
					}
				}
				n, err := store.RevokeNameBans(ctx, res.name)
				if err != nil {
					return res, Storage(err)
				}
				res.count += n
				if !found && n == 0 {
					return res, Resolution(msgNotFound)
				}
			}
			if res.count == 0 {
				return res, Resolution(res.name + " is not banned.")
			}
			return res, nil
		},
		func(r revokeResult) string {
			e.revoked(cfg, issuer, "unban", r, reason)
			return fmt.Sprintf("Unbanned %s.", r.name)
		})
}

func (e *Engine) unmute(issuer model.Issuer, cfg *Config, c Unmute) Reply {
	reason := reasonOr(cfg, c.Reason)
	rev := model.Revocation{By: issuer.ID, Reason: reason}
	t := target{name: c.Target}
	if s, ok := e.deps.Directory.Lookup(c.Target); ok {
		t.online, t.name = s, s.Name
	}

	return async(e, issuer, c.Name(), cfg,
		func(ctx context.Context) (revokeResult, error) {
			ident, err := e.resolve(ctx, t)
			if err != nil {
				return revokeResult{}, err
			}
			res := revokeResult{id: ident.ID, name: ident.Name}
			err = e.locked(playerKey(ident.ID), func() error {
				n, err := e.deps.Store.NonTx().RevokeMutes(ctx, ident.ID, e.now(), rev)
				res.count = n
				return err
			})
			if err != nil {
				return res, Storage(err)
			}
			if res.count == 0 {
				return res, Resolution(res.name + " is not muted.")
			}
			return res, nil
		},
		func(r revokeResult) string {
			e.revoked(cfg, issuer, "unmute", r, reason)
			if _, ok := e.deps.Directory.LookupID(r.id); ok {
				e.deps.Directory.Send(r.id, "You are no longer muted.")
			}
			return fmt.Sprintf("Unmuted %s.", r.name)
		})
}

// ---- Name bans ----

func (e *Engine) nameBan(issuer model.Issuer, cfg *Config, c NameBan) Reply {
	reason := reasonOr(cfg, c.Reason)
	if _, _, err := e.checkOnline(issuer, c.Player); err != nil {
		return e.reject(issuer, c.Name(), err)
	}

	return async(e, issuer, c.Name(), cfg,
		func(ctx context.Context) (*model.NameBan, error) {
			b := &model.NameBan{Name: c.Player, Staff: issuer.ID, Reason: reason, Type: model.TypeFor(c.Duration)}
			return b, e.locked("name:"+strings.ToLower(c.Player), func() error {
				b.CreatedAt = e.now()
				if c.Duration > 0 {
					b.ExpiresAt = b.CreatedAt.Add(c.Duration)
				}
				if err := e.deps.Store.NonTx().CreateNameBan(ctx, b); err != nil {
					return Storage(err)
				}
				return nil
			})
		},
		func(b *model.NameBan) string {
			now := e.now()
			screen := cfg.Templates.NameBanScreenFor(b, now, cfg.AppealURL)
			for _, s := range e.deps.Directory.Online() {
				if strings.EqualFold(s.Name, b.Name) {
					e.deps.Directory.Disconnect(s.ID, screen)
				}
			}
			if m := e.deps.Metrics; m != nil {
				m.Bans.Add(1)
			}
			p := model.Punishment{TargetName: b.Name, StaffName: issuer.DisplayName(), Reason: b.Reason, Type: b.Type, CreatedAt: b.CreatedAt, ExpiresAt: b.ExpiresAt}
			vars := punishmentVars(&p, now)
			e.broadcast(cfg, "banname", vars)
			e.emit(cfg, notify.CategoryPunishments, "banname", vars)
			return fmt.Sprintf("Banned the name %s (%s).", b.Name, render.Length(&p))
		})
}
