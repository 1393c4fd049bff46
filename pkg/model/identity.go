package model

import (
	"time"

	"github.com/google/uuid"
)

// ConsoleName is shown wherever the console issued an action.
const ConsoleName = "CONSOLE"

// UnknownName is used when an identity has never been seen.
const UnknownName = "Unknown"

// PlayerIdentity is the cached last-known name and address of a player.
// It never carries authority.
type PlayerIdentity struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	IP        string    `json:"ip"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// Issuer is whoever requested a moderation command.
type Issuer struct {
	ID   uuid.UUID // uuid.Nil for the console
	Name string
}

// Console returns the console issuer.
func Console() Issuer {
	return Issuer{ID: uuid.Nil, Name: ConsoleName}
}

// IsConsole reports whether the issuer bypasses authority checks.
func (i Issuer) IsConsole() bool {
	return i.ID == uuid.Nil
}

// DisplayName returns the name used in messages.
func (i Issuer) DisplayName() string {
	if i.IsConsole() {
		return ConsoleName
	}
	return i.Name
}
