package rank

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/NicolasHaas/gomoderate/pkg/model"
)

// ErrUnverifiable is returned when a provider cannot answer for a player,
// usually because the player is offline.
var ErrUnverifiable = errors.New("rank: cannot verify rank")

// CapabilityChecker answers capability questions for a player. It may return
// ErrUnverifiable for players it has no data about.
type CapabilityChecker interface {
	HasCapability(id uuid.UUID, capability string) (bool, error)
}

// GroupProvider is the external group/permission system. Lookups for online
// players run on the world goroutine under a short deadline, so
// implementations should answer them from memory and must honour ctx.
type GroupProvider interface {
	PrimaryGroup(ctx context.Context, id uuid.UUID) (string, error)
	Groups(ctx context.Context, id uuid.UUID) ([]string, error)
}

// Resolver maps players to ranks on the active ladder.
type Resolver struct {
	registry *Registry
	caps     CapabilityChecker
	groups   GroupProvider // nil when no group provider is installed
}

// NewResolver creates a resolver. groups may be nil.
func NewResolver(registry *Registry, caps CapabilityChecker, groups GroupProvider) *Resolver {
	return &Resolver{registry: registry, caps: caps, groups: groups}
}

// Registry returns the ladder registry backing the resolver.
func (r *Resolver) Registry() *Registry { return r.registry }

// Resolve returns the player's rank, or nil if they have none. Any provider
// failure resolves to nil.
func (r *Resolver) Resolve(ctx context.Context, id uuid.UUID) *model.StaffRank {
	rk, err := r.ResolveOffline(ctx, id)
	if err != nil {
		slog.Debug("rank resolution failed closed", "player", id, "err", err)
		return nil
	}
	return rk
}

// ResolveOffline is Resolve but reports why a rank could not be determined.
// A nil rank with a nil error means the player verifiably holds no rank.
func (r *Resolver) ResolveOffline(ctx context.Context, id uuid.UUID) (*model.StaffRank, error) {
	l := r.registry.Ladder()
	if l == nil || l.Len() == 0 {
		return nil, nil
	}
	switch l.Mode() {
	case ModeGroups:
		return r.resolveGroups(ctx, l, id)
	default:
		return r.resolveBuiltin(l, id)
	}
}

func (r *Resolver) resolveBuiltin(l *Ladder, id uuid.UUID) (*model.StaffRank, error) {
	if r.caps == nil {
		return nil, ErrUnverifiable
	}
	for _, rk := range l.ranks {
		ok, err := r.caps.HasCapability(id, rk.Permission)
		if err != nil {
			return nil, err
		}
		if ok {
			found := rk
			return &found, nil
		}
	}
	return nil, nil
}

func (r *Resolver) resolveGroups(ctx context.Context, l *Ladder, id uuid.UUID) (*model.StaffRank, error) {
	if r.groups == nil {
		return nil, ErrUnverifiable
	}

	primary, err := r.groups.PrimaryGroup(ctx, id)
	if err != nil {
		return nil, err
	}
	if rk, ok := l.Lookup(primary); ok {
		return rk, nil
	}

	names, err := r.groups.Groups(ctx, id)
	if err != nil {
		return nil, err
	}
	var best *model.StaffRank
	for _, name := range names {
		rk, ok := l.Lookup(strings.TrimSpace(name))
		if !ok {
			continue
		}
		if best == nil || rk.Tier > best.Tier {
			best = rk
		}
	}
	return best, nil
}

// CanPunish reports whether a player holding executor may punish a player
// holding target. Nil means "no rank".
func CanPunish(executor, target *model.StaffRank) bool {
	if executor == nil {
		return false
	}
	if target == nil {
		return true
	}
	return executor.Tier > target.Tier
}
