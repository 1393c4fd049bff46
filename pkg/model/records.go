package model

import (
	"time"

	"github.com/google/uuid"
)

// Note is a staff-only remark attached to a player.
type Note struct {
	ID        int64     `json:"id"`
	Target    uuid.UUID `json:"target"`
	Staff     uuid.UUID `json:"staff"`
	StaffName string    `json:"staff_name"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// ReportStatus tracks a report through triage.
type ReportStatus string

const (
	ReportOpen   ReportStatus = "OPEN"
	ReportClosed ReportStatus = "CLOSED"
)

// Report is a player complaint about another player.
type Report struct {
	ID           int64        `json:"id"`
	Reporter     uuid.UUID    `json:"reporter"`
	Reported     uuid.UUID    `json:"reported"`
	ReportedName string       `json:"reported_name"`
	Reason       string       `json:"reason"`
	Status       ReportStatus `json:"status"`
	AssignedTo   uuid.UUID    `json:"assigned_to"`
	ReporterLoc  string       `json:"reporter_loc,omitempty"`
	ReportedLoc  string       `json:"reported_loc,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	ClosedAt     time.Time    `json:"closed_at"`
	CloseComment string       `json:"close_comment,omitempty"`
}

// GameModeChange is one audit entry for a game mode switch.
type GameModeChange struct {
	ID        int64     `json:"id"`
	Player    uuid.UUID `json:"player"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	World     string    `json:"world"`
	CreatedAt time.Time `json:"created_at"`
}

// CommandLogEntry is one audited command invocation.
type CommandLogEntry struct {
	ID        int64     `json:"id"`
	Player    uuid.UUID `json:"player"`
	Command   string    `json:"command"`
	World     string    `json:"world"`
	CreatedAt time.Time `json:"created_at"`
}

// NameBan blocks a player name regardless of UUID.
type NameBan struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Staff     uuid.UUID `json:"staff"`
	Reason    string    `json:"reason"`
	Type      Type      `json:"type"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Active    bool      `json:"active"`
}

// ActiveAt reports whether the name ban is in effect at t.
func (n *NameBan) ActiveAt(t time.Time) bool {
	return n.Active && (n.ExpiresAt.IsZero() || n.ExpiresAt.After(t))
}

// HistoryEntry is one row of a player's merged moderation history.
type HistoryEntry struct {
	Kind      Kind      `json:"kind"`
	ID        int64     `json:"id"`
	Reason    string    `json:"reason"`
	Staff     uuid.UUID `json:"staff"`
	StaffName string    `json:"staff_name"`
	Type      Type      `json:"type,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Active    bool      `json:"active"`
}
