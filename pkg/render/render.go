// Package render fills {placeholder} message templates.
package render

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/NicolasHaas/gomoderate/pkg/duration"
	"github.com/NicolasHaas/gomoderate/pkg/model"
)

// Vars maps placeholder names (without braces) to values.
type Vars map[string]string

// Apply replaces every {name} in text with vars[name]. Unknown placeholders
// are left as they are.
func Apply(text string, vars Vars) string {
	if text == "" || len(vars) == 0 {
		return text
	}
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		pairs = append(pairs, "{"+k+"}", vars[k])
	}
	return strings.NewReplacer(pairs...).Replace(text)
}

// Never is shown for punishments without an expiry.
const Never = "Never"

// DefaultAppealURL is shown on ban screens when no appeal URL is configured.
const DefaultAppealURL = "https://discord.gg/"

// PermanentLabel is shown as the duration of a punishment without expiry.
const PermanentLabel = "Permanent"

// Expires renders the time left on p at now, or "Never". The remainder is
// rounded up to the second so a fresh 1d ban reads "1d 0h".
func Expires(p *model.Punishment, now time.Time) string {
	if p.Permanent() {
		return Never
	}
	d := p.Remaining(now)
	if r := d % time.Second; r != 0 && d < math.MaxInt64-time.Second {
		d += time.Second - r
	}
	return duration.Format(d)
}

// Length renders the full length of p, or "Permanent".
func Length(p *model.Punishment) string {
	if p.Permanent() {
		return PermanentLabel
	}
	return duration.Format(p.ExpiresAt.Sub(p.CreatedAt))
}

// Templates holds the player-facing message formats.
type Templates struct {
	BanScreen  string            `yaml:"ban-screen"`
	KickScreen string            `yaml:"kick-screen"`
	MuteNotice string            `yaml:"mute-notice"`
	WarnNotice string            `yaml:"warn-notice"`
	ChatHold   string            `yaml:"chat-hold"`
	Broadcasts map[string]string `yaml:"broadcasts"`
}

// DefaultTemplates returns the built-in message formats.
func DefaultTemplates() Templates {
	return Templates{
		BanScreen: "You are banned from this server.\n\n" +
			"Reason: {reason}\n" +
			"Expires: {expires}\n\n" +
			"Appeal ID: {appeal_id}\n" +
			"Appeal at: {appeal_url}",
		KickScreen: "You were kicked from the server.\nReason: {reason}",
		MuteNotice: "You are muted. Reason: {reason} (expires: {expires})",
		WarnNotice: "You have been warned by {staff}: {reason}",
		ChatHold:   "Your chat status is still loading, please try again in a moment.",
		Broadcasts: map[string]string{
			"ban":     "{player} was banned by {staff}: {reason}",
			"mute":    "{player} was muted by {staff}: {reason}",
			"kick":    "{player} was kicked by {staff}: {reason}",
			"warn":    "{player} was warned by {staff}: {reason}",
			"unban":   "",
			"unmute":  "",
			"banname": "",
		},
	}
}

// Merge fills empty fields of t from defaults. Broadcast keys explicitly set
// to "" stay disabled.
func (t Templates) Merge(defaults Templates) Templates {
	if t.BanScreen == "" {
		t.BanScreen = defaults.BanScreen
	}
	if t.KickScreen == "" {
		t.KickScreen = defaults.KickScreen
	}
	if t.MuteNotice == "" {
		t.MuteNotice = defaults.MuteNotice
	}
	if t.WarnNotice == "" {
		t.WarnNotice = defaults.WarnNotice
	}
	if t.ChatHold == "" {
		t.ChatHold = defaults.ChatHold
	}
	merged := make(map[string]string, len(defaults.Broadcasts))
	for k, v := range defaults.Broadcasts {
		merged[k] = v
	}
	for k, v := range t.Broadcasts {
		merged[k] = v
	}
	t.Broadcasts = merged
	return t
}

// Broadcast renders the broadcast for action, or "" if disabled.
func (t Templates) Broadcast(action string, vars Vars) string {
	return Apply(t.Broadcasts[action], vars)
}

// BanScreenFor renders the disconnect text for an active ban.
func (t Templates) BanScreenFor(p *model.Punishment, now time.Time, appealURL string) string {
	return Apply(t.BanScreen, Vars{
		"reason":     p.Reason,
		"expires":    Expires(p, now),
		"appeal_id":  p.AppealID,
		"appeal_url": appealURL,
	})
}

// NameBanScreenFor renders the disconnect text for a banned name.
func (t Templates) NameBanScreenFor(b *model.NameBan, now time.Time, appealURL string) string {
	p := model.Punishment{Reason: b.Reason, ExpiresAt: b.ExpiresAt, Active: true}
	return t.BanScreenFor(&p, now, appealURL)
}

// MuteNoticeFor renders the message shown to a muted player.
func (t Templates) MuteNoticeFor(p *model.Punishment, now time.Time) string {
	return Apply(t.MuteNotice, Vars{"reason": p.Reason, "expires": Expires(p, now)})
}
