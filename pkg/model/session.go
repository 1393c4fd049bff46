package model

import (
	"time"

	"github.com/google/uuid"
)

// Session represents a connected player (in-memory only).
type Session struct {
	ID       uuid.UUID
	Name     string
	IP       string
	World    string
	GameMode string
	JoinedAt time.Time

	// Session-scoped toggles owned by the session manager.
	Vanished  bool
	StaffChat bool
}

// Identity returns the cacheable part of the session.
func (s *Session) Identity(now time.Time) PlayerIdentity {
	return PlayerIdentity{
		ID:        s.ID,
		Name:      s.Name,
		IP:        s.IP,
		FirstSeen: now,
		LastSeen:  now,
	}
}
