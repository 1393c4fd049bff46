// Package model defines the core moderation domain types.
package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNoTarget = errors.New("punishment needs a player, ip or ip range")
var ErrReasonEmpty = errors.New("punishment reason must not be empty")
var ErrPermanentExpiry = errors.New("permanent punishment must not expire")
var ErrTemporaryExpiry = errors.New("temporary punishment must expire after it was created")

// Kind distinguishes the punishment tables.
type Kind int

const (
	KindBan Kind = iota
	KindMute
	KindKick
	KindWarning
	KindNote
)

func (k Kind) String() string {
	switch k {
	case KindBan:
		return "ban"
	case KindMute:
		return "mute"
	case KindKick:
		return "kick"
	case KindWarning:
		return "warning"
	case KindNote:
		return "note"
	default:
		return "unknown"
	}
}

// Type is TEMPORARY or PERMANENT, stored verbatim.
type Type string

const (
	Temporary Type = "TEMPORARY"
	Permanent Type = "PERMANENT"
)

// Revocation records who lifted a punishment and why.
type Revocation struct {
	By     uuid.UUID `json:"by"` // uuid.Nil = console
	Reason string    `json:"reason"`
}

// Punishment is a ban, mute, kick or warning record.
type Punishment struct {
	ID         int64       `json:"id"`
	Kind       Kind        `json:"kind"`
	Target     uuid.UUID   `json:"target"` // uuid.Nil for ip scoped bans
	TargetName string      `json:"target_name"`
	IP         string      `json:"ip,omitempty"`
	IPRange    string      `json:"ip_range,omitempty"` // CIDR
	Staff      uuid.UUID   `json:"staff"`              // uuid.Nil = console
	StaffName  string      `json:"staff_name"`
	Reason     string      `json:"reason"`
	Type       Type        `json:"type"`
	CreatedAt  time.Time   `json:"created_at"`
	ExpiresAt  time.Time   `json:"expires_at"` // zero = never
	Active     bool        `json:"active"`
	Revocation *Revocation `json:"revocation,omitempty"`
	AppealID   string      `json:"appeal_id,omitempty"`
}

// Permanent reports whether the punishment never expires.
func (p *Punishment) Permanent() bool {
	return p.ExpiresAt.IsZero()
}

// ActiveAt reports whether the punishment is in effect at t.
func (p *Punishment) ActiveAt(t time.Time) bool {
	if !p.Active {
		return false
	}
	return p.Permanent() || p.ExpiresAt.After(t)
}

// Remaining returns the time left at t, or zero if permanent or expired.
func (p *Punishment) Remaining(t time.Time) time.Duration {
	if p.Permanent() {
		return 0
	}
	d := p.ExpiresAt.Sub(t)
	if d < 0 {
		return 0
	}
	return d
}

// Validate checks the record before it is written.
func (p *Punishment) Validate() error {
	if p.Target == uuid.Nil && p.IP == "" && p.IPRange == "" {
		return ErrNoTarget
	}
	if p.Reason == "" {
		return ErrReasonEmpty
	}
	switch p.Type {
	case Permanent:
		if !p.ExpiresAt.IsZero() {
			return ErrPermanentExpiry
		}
	case Temporary:
		if p.ExpiresAt.IsZero() || !p.ExpiresAt.After(p.CreatedAt) {
			return ErrTemporaryExpiry
		}
	default:
		return errors.New("punishment type must be TEMPORARY or PERMANENT")
	}
	return nil
}

// TypeFor returns PERMANENT for a zero duration and TEMPORARY otherwise.
func TypeFor(d time.Duration) Type {
	if d <= 0 {
		return Permanent
	}
	return Temporary
}
