// Package rank resolves staff ranks and decides who may punish whom.
//
// A Ladder is an immutable, tier-ordered set of ranks. It is built either
// from built-in ranks (each tied to a capability string) or from group ranks
// (looked up by the external group provider). The active ladder lives in a
// Registry and is swapped wholesale on reload.
package rank

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/NicolasHaas/gomoderate/pkg/model"
)

// Mode selects where rank membership comes from.
type Mode int

const (
	ModeBuiltin Mode = iota // capability strings checked highest tier first
	ModeGroups              // external group provider
)

func (m Mode) String() string {
	switch m {
	case ModeBuiltin:
		return "builtin"
	case ModeGroups:
		return "groups"
	default:
		return "unknown"
	}
}

// ParseMode converts a config value to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "builtin", "":
		return ModeBuiltin, nil
	case "groups", "luckperms":
		return ModeGroups, nil
	default:
		return 0, fmt.Errorf("unknown rank mode %q (valid: builtin, groups)", s)
	}
}

var ErrDuplicateTier = errors.New("duplicate rank tier")
var ErrDuplicateRank = errors.New("duplicate rank id")
var ErrMissingPermission = errors.New("builtin rank needs a permission")

// Ladder is an immutable set of ranks ordered by descending tier.
type Ladder struct {
	mode  Mode
	ranks []model.StaffRank
	byID  map[string]int // lower-cased id -> index into ranks
}

// NewLadder validates ranks and builds a ladder. Tiers must be unique. In
// builtin mode every rank must name a permission.
func NewLadder(mode Mode, ranks []model.StaffRank) (*Ladder, error) {
	l := &Ladder{
		mode:  mode,
		ranks: make([]model.StaffRank, 0, len(ranks)),
		byID:  make(map[string]int, len(ranks)),
	}
	tiers := make(map[int]string, len(ranks))
	for _, r := range ranks {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		if mode == ModeBuiltin && r.Permission == "" {
			return nil, fmt.Errorf("rank %q: %w", r.ID, ErrMissingPermission)
		}
		if other, ok := tiers[r.Tier]; ok {
			return nil, fmt.Errorf("ranks %q and %q share tier %d: %w", other, r.ID, r.Tier, ErrDuplicateTier)
		}
		key := strings.ToLower(r.ID)
		if _, ok := l.byID[key]; ok {
			return nil, fmt.Errorf("rank %q: %w", r.ID, ErrDuplicateRank)
		}
		tiers[r.Tier] = r.ID
		l.byID[key] = -1
		l.ranks = append(l.ranks, r)
	}

	sort.Slice(l.ranks, func(i, j int) bool { return l.ranks[i].Tier > l.ranks[j].Tier })
	for i, r := range l.ranks {
		l.byID[strings.ToLower(r.ID)] = i
	}
	return l, nil
}

// Mode returns the ladder's resolution mode.
func (l *Ladder) Mode() Mode { return l.mode }

// Len returns the number of ranks.
func (l *Ladder) Len() int { return len(l.ranks) }

// Ranks returns a copy of the ranks, highest tier first.
func (l *Ladder) Ranks() []model.StaffRank {
	out := make([]model.StaffRank, len(l.ranks))
	copy(out, l.ranks)
	return out
}

// Lookup finds a rank by id or group name, case-insensitive.
func (l *Ladder) Lookup(id string) (*model.StaffRank, bool) {
	i, ok := l.byID[strings.ToLower(strings.TrimSpace(id))]
	if !ok {
		return nil, false
	}
	r := l.ranks[i]
	return &r, true
}
