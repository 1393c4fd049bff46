package punish

import (
	"net/netip"
	"strings"
	"time"

	"github.com/NicolasHaas/gomoderate/pkg/duration"
)

// Command is one parsed moderation request. The set of implementations is
// closed; Engine.Execute switches over all of them.
type Command interface {
	Name() string
	command()
}

// Target is the subject of a command. Exactly one of Name, IP or Range is set.
type Target struct {
	Name  string
	IP    string // exact address ban
	Range string // CIDR ban
}

// ParseTarget classifies token as a player name, an address or a prefix.
func ParseTarget(token string) Target {
	if p, err := netip.ParsePrefix(token); err == nil {
		return Target{Range: p.Masked().String()}
	}
	if a, err := netip.ParseAddr(token); err == nil {
		return Target{IP: a.Unmap().String()}
	}
	return Target{Name: token}
}

// Scoped reports whether the target is an address or range instead of a player.
func (t Target) Scoped() bool { return t.IP != "" || t.Range != "" }

func (t Target) String() string {
	switch {
	case t.Range != "":
		return t.Range
	case t.IP != "":
		return t.IP
	default:
		return t.Name
	}
}

type (
	Ban struct {
		Target   Target
		Duration time.Duration // zero = permanent
		Reason   string
		Temp     bool
	}
	Mute struct {
		Target   Target
		Duration time.Duration
		Reason   string
		Temp     bool
	}
	Kick struct {
		Target string
		Reason string
	}
	Warn struct {
		Target   string
		Duration time.Duration // zero = never expires
		Reason   string
	}
	Unban struct {
		Target Target
		Reason string
	}
	Unmute struct {
		Target string
		Reason string
	}
	History struct{ Target string }
	Alts    struct{ Target string }
	Note    struct {
		Target  string
		Message string
	}
	Report struct {
		Target string
		Reason string
	}
	NameBan struct {
		Player   string
		Duration time.Duration
		Reason   string
	}
)

func (c Ban) Name() string {
	if c.Temp {
		return "tempban"
	}
	return "ban"
}

func (c Mute) Name() string {
	if c.Temp {
		return "tempmute"
	}
	return "mute"
}

func (Kick) Name() string    { return "kick" }
func (Warn) Name() string    { return "warn" }
func (Unban) Name() string   { return "unban" }
func (Unmute) Name() string  { return "unmute" }
func (History) Name() string { return "history" }
func (Alts) Name() string    { return "alts" }
func (Note) Name() string    { return "note" }
func (Report) Name() string  { return "report" }
func (NameBan) Name() string { return "banname" }

func (Ban) command()     {}
func (Mute) command()    {}
func (Kick) command()    {}
func (Warn) command()    {}
func (Unban) command()   {}
func (Unmute) command()  {}
func (History) command() {}
func (Alts) command()    {}
func (Note) command()    {}
func (Report) command()  {}
func (NameBan) command() {}

// Commands lists every name Parse accepts.
var Commands = []string{
	"ban", "tempban", "mute", "tempmute", "kick", "warn",
	"unban", "unmute", "history", "alts", "note", "report", "banname",
}

var usage = map[string]string{
	"ban":      "Usage: /ban <player|ip|cidr> [time] [reason]",
	"tempban":  "Usage: /tempban <player|ip|cidr> <time> [reason]",
	"mute":     "Usage: /mute <player> [time] [reason]",
	"tempmute": "Usage: /tempmute <player> <time> [reason]",
	"kick":     "Usage: /kick <player> [reason]",
	"warn":     "Usage: /warn <player> [time] [reason]",
	"unban":    "Usage: /unban <player|ip|cidr> [reason]",
	"unmute":   "Usage: /unmute <player> [reason]",
	"history":  "Usage: /history <player>",
	"alts":     "Usage: /alts <player>",
	"note":     "Usage: /note <player> <message>",
	"report":   "Usage: /report <player> <reason>",
	"banname":  "Usage: /banname <name> [time] [reason]",
}

// UsageFor returns the usage line for a command name.
func UsageFor(name string) string { return usage[strings.ToLower(name)] }

// Parse turns a command name and its whitespace-split arguments into a
// Command. Unknown names and malformed arguments yield a usage *Error. An
// empty reason is left empty; the engine fills in the configured default.
func Parse(name string, args []string) (Command, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	u, ok := usage[name]
	if !ok {
		return nil, Usage("Unknown command: " + name)
	}
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		return nil, Usage(u)
	}
	target := args[0]

	switch name {
	case "ban", "tempban", "mute", "tempmute", "warn", "banname":
		d, reason := splitDuration(args[1:])
		temp := name == "tempban" || name == "tempmute"
		if temp && d <= 0 {
			return nil, Usage(u)
		}
		switch name {
		case "ban", "tempban":
			return Ban{Target: ParseTarget(target), Duration: d, Reason: reason, Temp: temp}, nil
		case "mute", "tempmute":
			t := ParseTarget(target)
			if t.Scoped() {
				return nil, Usage(u)
			}
			return Mute{Target: t, Duration: d, Reason: reason, Temp: temp}, nil
		case "warn":
			return Warn{Target: target, Duration: d, Reason: reason}, nil
		default:
			return NameBan{Player: target, Duration: d, Reason: reason}, nil
		}
	case "kick":
		return Kick{Target: target, Reason: joinReason(args[1:])}, nil
	case "unban":
		return Unban{Target: ParseTarget(target), Reason: joinReason(args[1:])}, nil
	case "unmute":
		return Unmute{Target: target, Reason: joinReason(args[1:])}, nil
	case "history":
		return History{Target: target}, nil
	case "alts":
		return Alts{Target: target}, nil
	case "note", "report":
		text := joinReason(args[1:])
		if text == "" {
			return nil, Usage(u)
		}
		if name == "note" {
			return Note{Target: target, Message: text}, nil
		}
		return Report{Target: target, Reason: text}, nil
	}
	return nil, Usage(u)
}

// splitDuration takes a leading duration token off rest. Only a token that
// starts with a digit counts, so "2fast" parses as a duration of zero and is
// consumed; a reason cannot start with a digit.
func splitDuration(rest []string) (time.Duration, string) {
	if len(rest) > 0 && duration.LooksLikeDuration(rest[0]) {
		return duration.Parse(rest[0]), joinReason(rest[1:])
	}
	return 0, joinReason(rest)
}

func joinReason(parts []string) string {
	return strings.TrimSpace(strings.Join(parts, " "))
}
