// Package rbac provides capability checks for moderation commands.
package rbac

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Default capabilities per command. Hosts may remap them in config.
const (
	CapPunish  = "moderation.punish"
	CapRevoke  = "moderation.revoke"
	CapInspect = "moderation.inspect"
	CapReport  = "moderation.report"
)

// DefaultCommandCapabilities maps each command name to the capability it
// requires.
func DefaultCommandCapabilities() map[string]string {
	return map[string]string{
		"ban":      CapPunish,
		"tempban":  CapPunish,
		"mute":     CapPunish,
		"tempmute": CapPunish,
		"kick":     CapPunish,
		"warn":     CapPunish,
		"banname":  CapPunish,
		"unban":    CapRevoke,
		"unmute":   CapRevoke,
		"history":  CapInspect,
		"alts":     CapInspect,
		"note":     CapInspect,
		"report":   CapReport,
	}
}

// Grants is a static capability table keyed by player. It answers for every
// player, so it never reports a rank as unverifiable.
type Grants struct {
	mu       sync.RWMutex
	byPlayer map[uuid.UUID]map[string]bool
}

// NewGrants builds a table from player -> capabilities.
func NewGrants(grants map[uuid.UUID][]string) *Grants {
	g := &Grants{}
	g.Replace(grants)
	return g
}

// Replace swaps the whole table.
func (g *Grants) Replace(grants map[uuid.UUID][]string) {
	table := make(map[uuid.UUID]map[string]bool, len(grants))
	for id, caps := range grants {
		set := make(map[string]bool, len(caps))
		for _, c := range caps {
			set[strings.ToLower(strings.TrimSpace(c))] = true
		}
		table[id] = set
	}
	g.mu.Lock()
	g.byPlayer = table
	g.mu.Unlock()
}

// HasCapability checks if a player holds a capability. "*" grants everything.
func (g *Grants) HasCapability(id uuid.UUID, capability string) (bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	set, ok := g.byPlayer[id]
	if !ok {
		return false, nil
	}
	return set["*"] || set[strings.ToLower(capability)], nil
}

// Checker is anything that can answer capability questions.
type Checker interface {
	HasCapability(id uuid.UUID, capability string) (bool, error)
}

// RequireCapability returns a denial message if the player lacks the
// capability, or an empty string if allowed. Errors deny.
func RequireCapability(c Checker, id uuid.UUID, capability string) string {
	if capability == "" {
		return ""
	}
	if c != nil {
		if ok, err := c.HasCapability(id, capability); err == nil && ok {
			return ""
		}
	}
	return "No permission."
}
