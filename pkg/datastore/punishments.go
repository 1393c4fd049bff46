package datastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/google/uuid"

	"github.com/NicolasHaas/gomoderate/pkg/model"
)

// Active lookups: the most recently created active, unexpired row wins and
// the higher id breaks ties.
const activeOrder = " ORDER BY created DESC, id DESC"

// ---- Bans ----

// CreateBan inserts a ban and sets its ID.
func (s *baseProvider) CreateBan(ctx context.Context, ban *model.Punishment) error {
	if err := ban.Validate(); err != nil {
		return fmt.Errorf("datastore: create ban: %w", err)
	}
	id, err := s.insert(ctx,
		`INSERT INTO bans (player_uuid, player_name, ip, ip_range, staff_uuid, staff_name, reason, type, created, expires, active, appeal_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?)`,
		targetText(ban.Target), nullString(ban.TargetName), nullString(ban.IP), nullString(ban.IPRange),
		staffText(ban.Staff), nullString(ban.StaffName), ban.Reason, string(ban.Type),
		toMillis(ban.CreatedAt), toMillis(ban.ExpiresAt), nullString(ban.AppealID),
	)
	if err != nil {
		return fmt.Errorf("datastore: create ban: %w", err)
	}
	ban.ID = id
	ban.Kind = model.KindBan
	ban.Active = true
	return nil
}

// ActiveBan returns the ban in effect at `at` for the player, their exact
// address, or any range containing that address. Nil if none.
func (s *baseProvider) ActiveBan(ctx context.Context, target uuid.UUID, ip string, at time.Time) (*model.Punishment, error) {
	now := at.UnixMilli()
	uid := ""
	if target != uuid.Nil {
		uid = target.String()
	}

	direct, err := scanPunishment(s.queryRow(ctx,
		"SELECT "+banColumns+` FROM bans
		WHERE active = 1 AND (expires = 0 OR expires > ?)
		AND ((? <> '' AND player_uuid = ?) OR (? <> '' AND ip = ?))`+activeOrder+" LIMIT 1",
		now, uid, uid, ip, ip,
	), model.KindBan)
	if errors.Is(err, sql.ErrNoRows) {
		direct = nil
	} else if err != nil {
		return nil, fmt.Errorf("datastore: active ban: %w", err)
	}

	ranged, err := s.activeRangeBan(ctx, ip, now)
	if err != nil {
		return nil, err
	}
	return newer(direct, ranged), nil
}

func (s *baseProvider) activeRangeBan(ctx context.Context, ip string, now int64) (*model.Punishment, error) {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return nil, nil
	}
	rows, err := s.query(ctx,
		"SELECT "+banColumns+` FROM bans
		WHERE active = 1 AND (expires = 0 OR expires > ?) AND ip_range IS NOT NULL AND ip_range <> ''`+activeOrder,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("datastore: active range ban: %w", err)
	}
	bans, err := scanPunishments(rows, model.KindBan)
	if err != nil {
		return nil, fmt.Errorf("datastore: scan range ban: %w", err)
	}
	for i := range bans {
		prefix, err := netip.ParsePrefix(bans[i].IPRange)
		if err != nil {
			continue
		}
		if prefix.Contains(addr.Unmap()) {
			return &bans[i], nil
		}
	}
	return nil, nil
}

// newer picks the most recently created record, then the higher id.
func newer(a, b *model.Punishment) *model.Punishment {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case a.CreatedAt.After(b.CreatedAt):
		return a
	case b.CreatedAt.After(a.CreatedAt):
		return b
	case a.ID >= b.ID:
		return a
	default:
		return b
	}
}

// RevokeBans deactivates every ban in effect at `at` for the player or
// address (exact or range). It returns the number of rows revoked.
func (s *baseProvider) RevokeBans(ctx context.Context, target uuid.UUID, ip string, at time.Time, revocation model.Revocation) (int64, error) {
	uid := ""
	if target != uuid.Nil {
		uid = target.String()
	}
	res, err := s.exec(ctx,
		`UPDATE bans SET active = 0, unban_staff = ?, unban_reason = ?
		WHERE active = 1 AND (expires = 0 OR expires > ?)
		AND ((? <> '' AND player_uuid = ?) OR (? <> '' AND (ip = ? OR ip_range = ?)))`,
		staffText(revocation.By), revocation.Reason, at.UnixMilli(), uid, uid, ip, ip, ip,
	)
	if err != nil {
		return 0, fmt.Errorf("datastore: revoke bans: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("datastore: revoke bans: %w", err)
	}
	return n, nil
}

// ListBans returns all bans for a player, newest first.
func (s *baseProvider) ListBans(ctx context.Context, target uuid.UUID) ([]model.Punishment, error) {
	rows, err := s.query(ctx, "SELECT "+banColumns+" FROM bans WHERE player_uuid = ?"+activeOrder, target.String())
	if err != nil {
		return nil, fmt.Errorf("datastore: list bans: %w", err)
	}
	out, err := scanPunishments(rows, model.KindBan)
	if err != nil {
		return nil, fmt.Errorf("datastore: scan ban: %w", err)
	}
	return out, nil
}

// ---- Mutes ----

// CreateMute inserts a mute and sets its ID.
func (s *baseProvider) CreateMute(ctx context.Context, mute *model.Punishment) error {
	if mute.Target == uuid.Nil {
		return fmt.Errorf("datastore: create mute: %w", model.ErrNoTarget)
	}
	if err := mute.Validate(); err != nil {
		return fmt.Errorf("datastore: create mute: %w", err)
	}
	id, err := s.insert(ctx,
		`INSERT INTO mutes (player_uuid, player_name, staff_uuid, staff_name, reason, type, created, expires, active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1)`,
		mute.Target.String(), nullString(mute.TargetName), staffText(mute.Staff), nullString(mute.StaffName),
		mute.Reason, string(mute.Type), toMillis(mute.CreatedAt), toMillis(mute.ExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("datastore: create mute: %w", err)
	}
	mute.ID = id
	mute.Kind = model.KindMute
	mute.Active = true
	return nil
}

// ActiveMute returns the mute in effect at `at`, or nil.
func (s *baseProvider) ActiveMute(ctx context.Context, target uuid.UUID, at time.Time) (*model.Punishment, error) {
	p, err := scanPunishment(s.queryRow(ctx,
		"SELECT "+muteColumns+` FROM mutes
		WHERE player_uuid = ? AND active = 1 AND (expires = 0 OR expires > ?)`+activeOrder+" LIMIT 1",
		target.String(), at.UnixMilli(),
	), model.KindMute)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("datastore: active mute: %w", err)
	}
	return p, nil
}

// RevokeMutes deactivates every mute in effect at `at` for the player.
func (s *baseProvider) RevokeMutes(ctx context.Context, target uuid.UUID, at time.Time, revocation model.Revocation) (int64, error) {
	res, err := s.exec(ctx,
		`UPDATE mutes SET active = 0, unmute_staff = ?, unmute_reason = ?
		WHERE player_uuid = ? AND active = 1 AND (expires = 0 OR expires > ?)`,
		staffText(revocation.By), revocation.Reason, target.String(), at.UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("datastore: revoke mutes: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("datastore: revoke mutes: %w", err)
	}
	return n, nil
}

// ListMutes returns all mutes for a player, newest first.
func (s *baseProvider) ListMutes(ctx context.Context, target uuid.UUID) ([]model.Punishment, error) {
	rows, err := s.query(ctx, "SELECT "+muteColumns+" FROM mutes WHERE player_uuid = ?"+activeOrder, target.String())
	if err != nil {
		return nil, fmt.Errorf("datastore: list mutes: %w", err)
	}
	out, err := scanPunishments(rows, model.KindMute)
	if err != nil {
		return nil, fmt.Errorf("datastore: scan mute: %w", err)
	}
	return out, nil
}

// ---- Kicks ----

// CreateKick records a kick. Kicks have no duration.
func (s *baseProvider) CreateKick(ctx context.Context, kick *model.Punishment) error {
	if kick.Target == uuid.Nil {
		return fmt.Errorf("datastore: create kick: %w", model.ErrNoTarget)
	}
	if kick.Reason == "" {
		return fmt.Errorf("datastore: create kick: %w", model.ErrReasonEmpty)
	}
	id, err := s.insert(ctx,
		`INSERT INTO kicks (player_uuid, player_name, staff_uuid, staff_name, reason, created) VALUES (?, ?, ?, ?, ?, ?)`,
		kick.Target.String(), nullString(kick.TargetName), staffText(kick.Staff), nullString(kick.StaffName),
		kick.Reason, toMillis(kick.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("datastore: create kick: %w", err)
	}
	kick.ID = id
	kick.Kind = model.KindKick
	kick.Type = model.Permanent
	return nil
}

// ListKicks returns all kicks for a player, newest first.
func (s *baseProvider) ListKicks(ctx context.Context, target uuid.UUID) ([]model.Punishment, error) {
	rows, err := s.query(ctx, "SELECT "+kickColumns+" FROM kicks WHERE player_uuid = ?"+activeOrder, target.String())
	if err != nil {
		return nil, fmt.Errorf("datastore: list kicks: %w", err)
	}
	out, err := scanPunishments(rows, model.KindKick)
	if err != nil {
		return nil, fmt.Errorf("datastore: scan kick: %w", err)
	}
	return out, nil
}

// ---- Warnings ----

// CreateWarning inserts a warning and sets its ID.
func (s *baseProvider) CreateWarning(ctx context.Context, warning *model.Punishment) error {
	if warning.Target == uuid.Nil {
		return fmt.Errorf("datastore: create warning: %w", model.ErrNoTarget)
	}
	if err := warning.Validate(); err != nil {
		return fmt.Errorf("datastore: create warning: %w", err)
	}
	id, err := s.insert(ctx,
		`INSERT INTO warnings (player_uuid, player_name, staff_uuid, staff_name, reason, type, created, expires, active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1)`,
		warning.Target.String(), nullString(warning.TargetName), staffText(warning.Staff), nullString(warning.StaffName),
		warning.Reason, string(warning.Type), toMillis(warning.CreatedAt), toMillis(warning.ExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("datastore: create warning: %w", err)
	}
	warning.ID = id
	warning.Kind = model.KindWarning
	warning.Active = true
	return nil
}

// RevokeWarning deactivates one warning. It reports whether a row changed.
func (s *baseProvider) RevokeWarning(ctx context.Context, id int64, revocation model.Revocation) (bool, error) {
	res, err := s.exec(ctx,
		"UPDATE warnings SET active = 0, remove_staff = ?, remove_reason = ? WHERE id = ? AND active = 1",
		staffText(revocation.By), revocation.Reason, id,
	)
	if err != nil {
		return false, fmt.Errorf("datastore: revoke warning: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("datastore: revoke warning: %w", err)
	}
	return n > 0, nil
}

// ListWarnings returns all warnings for a player, newest first.
func (s *baseProvider) ListWarnings(ctx context.Context, target uuid.UUID) ([]model.Punishment, error) {
	rows, err := s.query(ctx, "SELECT "+warningColumns+" FROM warnings WHERE player_uuid = ?"+activeOrder, target.String())
	if err != nil {
		return nil, fmt.Errorf("datastore: list warnings: %w", err)
	}
	out, err := scanPunishments(rows, model.KindWarning)
	if err != nil {
		return nil, fmt.Errorf("datastore: scan warning: %w", err)
	}
	return out, nil
}

// CountActiveWarnings counts warnings in effect at `at`.
func (s *baseProvider) CountActiveWarnings(ctx context.Context, target uuid.UUID, at time.Time) (int, error) {
	var n int
	err := s.queryRow(ctx,
		"SELECT COUNT(*) FROM warnings WHERE player_uuid = ? AND active = 1 AND (expires = 0 OR expires > ?)",
		target.String(), at.UnixMilli(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("datastore: count warnings: %w", err)
	}
	return n, nil
}
