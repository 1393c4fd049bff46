package datastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/NicolasHaas/gomoderate/pkg/model"
)

// ---- Players ----

// UpsertIdentity records the player's latest name and address. first_join
// keeps the value from the first insert.
func (s *baseProvider) UpsertIdentity(ctx context.Context, identity model.PlayerIdentity) error {
	if identity.ID == uuid.Nil {
		return fmt.Errorf("datastore: upsert identity: %w", model.ErrNoTarget)
	}
	_, err := s.exec(ctx,
		`INSERT INTO players (uuid, name, ip, first_join, last_join) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (uuid) DO UPDATE SET name = excluded.name, ip = excluded.ip, last_join = excluded.last_join`,
		identity.ID.String(), identity.Name, nullString(identity.IP),
		toMillis(identity.FirstSeen), toMillis(identity.LastSeen),
	)
	if err != nil {
		return fmt.Errorf("datastore: upsert identity: %w", err)
	}
	return nil
}

const identityColumns = "uuid, name, ip, first_join, last_join"

func scanIdentity(row rowScanner) (*model.PlayerIdentity, error) {
	var (
		id, name          string
		ip                sql.NullString
		firstJoin, lastJn int64
	)
	if err := row.Scan(&id, &name, &ip, &firstJoin, &lastJn); err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("bad player uuid %q: %w", id, err)
	}
	return &model.PlayerIdentity{
		ID:        parsed,
		Name:      name,
		IP:        ip.String,
		FirstSeen: fromMillis(firstJoin),
		LastSeen:  fromMillis(lastJn),
	}, nil
}

// IdentityByID returns the cached identity, or nil if never seen.
func (s *baseProvider) IdentityByID(ctx context.Context, id uuid.UUID) (*model.PlayerIdentity, error) {
	ident, err := scanIdentity(s.queryRow(ctx, "SELECT "+identityColumns+" FROM players WHERE uuid = ?", id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("datastore: identity by id: %w", err)
	}
	return ident, nil
}

// IdentityByName returns the most recently seen player using name,
// case-insensitive, or nil if none.
func (s *baseProvider) IdentityByName(ctx context.Context, name string) (*model.PlayerIdentity, error) {
	ident, err := scanIdentity(s.queryRow(ctx,
		"SELECT "+identityColumns+" FROM players WHERE lower(name) = ? ORDER BY last_join DESC LIMIT 1",
		strings.ToLower(strings.TrimSpace(name)),
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("datastore: identity by name: %w", err)
	}
	return ident, nil
}

// IdentitiesByIP returns every player last seen from ip.
func (s *baseProvider) IdentitiesByIP(ctx context.Context, ip string) ([]model.PlayerIdentity, error) {
	if ip == "" {
		return nil, nil
	}
	rows, err := s.query(ctx, "SELECT "+identityColumns+" FROM players WHERE ip = ? ORDER BY last_join DESC", ip)
	if err != nil {
		return nil, fmt.Errorf("datastore: identities by ip: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.PlayerIdentity
	for rows.Next() {
		ident, err := scanIdentity(rows)
		if err != nil {
			return nil, fmt.Errorf("datastore: scan identity: %w", err)
		}
		out = append(out, *ident)
	}
	return out, rows.Err()
}

// PlayerName returns the last known name, or "Unknown".
func (s *baseProvider) PlayerName(ctx context.Context, id uuid.UUID) (string, error) {
	if id == uuid.Nil {
		return model.ConsoleName, nil
	}
	ident, err := s.IdentityByID(ctx, id)
	if err != nil {
		return "", err
	}
	if ident == nil {
		return model.UnknownName, nil
	}
	return ident.Name, nil
}
