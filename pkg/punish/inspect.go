package punish

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/NicolasHaas/gomoderate/pkg/model"
	"github.com/NicolasHaas/gomoderate/pkg/notify"
	"github.com/NicolasHaas/gomoderate/pkg/render"
)

// lookupTarget is the world step shared by read-only commands.
func (e *Engine) lookupTarget(name string) target {
	t := target{name: name}
	if s, ok := e.deps.Directory.Lookup(name); ok {
		t.online, t.name = s, s.Name
	}
	return t
}

// ---- History ----

type historyResult struct {
	name    string
	entries []model.HistoryEntry
}

func (e *Engine) history(issuer model.Issuer, cfg *Config, c History) Reply {
	t := e.lookupTarget(c.Target)
	return async(e, issuer, c.Name(), cfg,
		func(ctx context.Context) (historyResult, error) {
			ident, err := e.resolve(ctx, t)
			if err != nil {
				return historyResult{}, err
			}
			entries, err := e.deps.Store.NonTx().History(ctx, ident.ID)
			if err != nil {
				return historyResult{}, Storage(err)
			}
			return historyResult{name: ident.Name, entries: entries}, nil
		},
		func(r historyResult) string {
			return formatHistory(r.name, r.entries, e.now())
		})
}

func formatHistory(name string, entries []model.HistoryEntry, now time.Time) string {
	if len(entries) == 0 {
		return fmt.Sprintf("%s has a clean history.", name)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "History of %s (%d entries):", name, len(entries))
	for _, h := range entries {
		staff := h.StaffName
		if staff == "" {
			staff = model.UnknownName
		}
		fmt.Fprintf(&b, "\n  %s #%d %s by %s: %s",
			strings.ToUpper(h.Kind.String()), h.ID,
			humanize.RelTime(h.CreatedAt, now, "ago", "from now"),
			staff, h.Reason)
		switch h.Kind {
		case model.KindBan, model.KindMute, model.KindWarning:
			p := model.Punishment{Active: h.Active, CreatedAt: h.CreatedAt, ExpiresAt: h.ExpiresAt}
			switch {
			case p.ActiveAt(now):
				fmt.Fprintf(&b, " [active, expires: %s]", render.Expires(&p, now))
			case h.Active:
				b.WriteString(" [expired]")
			default:
				b.WriteString(" [revoked]")
			}
		}
	}
	return b.String()
}

// ---- Alts ----

type alt struct {
	name   string
	banned bool
}

type altsResult struct {
	name string
	ip   string
	alts []alt
}

func (e *Engine) alts(issuer model.Issuer, cfg *Config, c Alts) Reply {
	t := e.lookupTarget(c.Target)
	return async(e, issuer, c.Name(), cfg,
		func(ctx context.Context) (altsResult, error) {
			ident, err := e.resolve(ctx, t)
			if err != nil {
				return altsResult{}, err
			}
			res := altsResult{name: ident.Name, ip: ident.IP}
			if ident.IP == "" {
				return res, nil
			}
			store := e.deps.Store.NonTx()
			others, err := store.IdentitiesByIP(ctx, ident.IP)
			if err != nil {
				return res, Storage(err)
			}
			now := e.now()
			for _, o := range others {
				if o.ID == ident.ID {
					continue
				}
				ban, err := store.ActiveBan(ctx, o.ID, "", now)
				if err != nil {
					return res, Storage(err)
				}
				res.alts = append(res.alts, alt{name: o.Name, banned: ban != nil})
			}
			return res, nil
		},
		func(r altsResult) string {
			if r.ip == "" {
				return fmt.Sprintf("No known address for %s.", r.name)
			}
			if len(r.alts) == 0 {
				return fmt.Sprintf("No alts found for %s.", r.name)
			}
			names := make([]string, 0, len(r.alts))
			for _, a := range r.alts {
				if a.banned {
					names = append(names, a.name+" [BANNED]")
				} else {
					names = append(names, a.name)
				}
			}
			return fmt.Sprintf("Alts of %s (%s): %s", r.name, r.ip, strings.Join(names, ", "))
		})
}

// ---- Notes ----

func (e *Engine) note(issuer model.Issuer, cfg *Config, c Note) Reply {
	t := e.lookupTarget(c.Target)
	return async(e, issuer, c.Name(), cfg,
		func(ctx context.Context) (string, error) {
			ident, err := e.resolve(ctx, t)
			if err != nil {
				return "", err
			}
			n := &model.Note{Target: ident.ID, Staff: issuer.ID, StaffName: issuer.DisplayName(), Message: c.Message, CreatedAt: e.now()}
			if err := e.deps.Store.NonTx().CreateNote(ctx, n); err != nil {
				return "", Storage(err)
			}
			return ident.Name, nil
		},
		func(name string) string {
			return fmt.Sprintf("Note added to %s.", name)
		})
}

// ---- Reports ----

func (e *Engine) report(issuer model.Issuer, cfg *Config, c Report) Reply {
	t := e.lookupTarget(c.Target)
	if t.online != nil && t.online.ID == issuer.ID {
		return e.reject(issuer, c.Name(), Usage("You cannot report yourself."))
	}
	var reporterLoc, reportedLoc string
	if s, ok := e.deps.Directory.LookupID(issuer.ID); ok && issuer.ID != uuid.Nil {
		reporterLoc = s.World
	}
	if t.online != nil {
		reportedLoc = t.online.World
	}

	return async(e, issuer, c.Name(), cfg,
		func(ctx context.Context) (*model.Report, error) {
			ident, err := e.resolve(ctx, t)
			if err != nil {
				return nil, err
			}
			r := &model.Report{
				Reporter:     issuer.ID,
				Reported:     ident.ID,
				ReportedName: ident.Name,
				Reason:       c.Reason,
				ReporterLoc:  reporterLoc,
				ReportedLoc:  reportedLoc,
				CreatedAt:    e.now(),
			}
			if err := e.deps.Store.NonTx().CreateReport(ctx, r); err != nil {
				return nil, Storage(err)
			}
			return r, nil
		},
		func(r *model.Report) string {
			e.emit(cfg, notify.CategoryReports, "report", render.Vars{
				"id":       fmt.Sprint(r.ID),
				"player":   r.ReportedName,
				"reporter": issuer.DisplayName(),
				"reason":   r.Reason,
				"world":    r.ReportedLoc,
			})
			return fmt.Sprintf("Report #%d against %s was submitted. Thank you.", r.ID, r.ReportedName)
		})
}
