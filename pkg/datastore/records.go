package datastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/NicolasHaas/gomoderate/pkg/model"
)

// ---- Notes ----

// CreateNote attaches a staff note to a player.
func (s *baseProvider) CreateNote(ctx context.Context, note *model.Note) error {
	if note.Target == uuid.Nil {
		return fmt.Errorf("datastore: create note: %w", model.ErrNoTarget)
	}
	if strings.TrimSpace(note.Message) == "" {
		return fmt.Errorf("datastore: create note: %w", model.ErrReasonEmpty)
	}
	id, err := s.insert(ctx,
		"INSERT INTO notes (player_uuid, staff_uuid, staff_name, message, created) VALUES (?, ?, ?, ?, ?)",
		note.Target.String(), staffText(note.Staff), nullString(note.StaffName), note.Message, toMillis(note.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("datastore: create note: %w", err)
	}
	note.ID = id
	return nil
}

// ListNotes returns a player's notes, newest first.
func (s *baseProvider) ListNotes(ctx context.Context, target uuid.UUID) ([]model.Note, error) {
	rows, err := s.query(ctx,
		"SELECT id, player_uuid, staff_uuid, staff_name, message, created FROM notes WHERE player_uuid = ?"+activeOrder,
		target.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("datastore: list notes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var notes []model.Note
	for rows.Next() {
		var (
			n             model.Note
			player, staff string
			staffName     sql.NullString
			created       int64
		)
		if err := rows.Scan(&n.ID, &player, &staff, &staffName, &n.Message, &created); err != nil {
			return nil, fmt.Errorf("datastore: scan note: %w", err)
		}
		n.Target, _ = uuid.Parse(player)
		n.Staff = parseStaff(staff)
		n.StaffName = staffName.String
		n.CreatedAt = fromMillis(created)
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

// ---- Reports ----

// CreateReport files an OPEN report.
func (s *baseProvider) CreateReport(ctx context.Context, report *model.Report) error {
	if report.Reported == uuid.Nil {
		return fmt.Errorf("datastore: create report: %w", model.ErrNoTarget)
	}
	if strings.TrimSpace(report.Reason) == "" {
		return fmt.Errorf("datastore: create report: %w", model.ErrReasonEmpty)
	}
	id, err := s.insert(ctx,
		`INSERT INTO reports (reporter_uuid, reported_uuid, reported_name, reason, status, reporter_loc, reported_loc, created)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		staffText(report.Reporter), report.Reported.String(), nullString(report.ReportedName), report.Reason,
		string(model.ReportOpen), nullString(report.ReporterLoc), nullString(report.ReportedLoc), toMillis(report.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("datastore: create report: %w", err)
	}
	report.ID = id
	report.Status = model.ReportOpen
	return nil
}

// ListOpenReports returns up to limit open reports, oldest first.
func (s *baseProvider) ListOpenReports(ctx context.Context, limit int) ([]model.Report, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.query(ctx,
		`SELECT id, reporter_uuid, reported_uuid, reported_name, reason, status, assigned_to, reporter_loc, reported_loc, created, closed_at, close_comment
		FROM reports WHERE status = ? ORDER BY created ASC, id ASC LIMIT ?`,
		string(model.ReportOpen), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("datastore: list reports: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Report
	for rows.Next() {
		var (
			r                                        model.Report
			reporter, reported, status               string
			reportedName, assigned, rLoc, dLoc, note sql.NullString
			created, closed                          int64
		)
		if err := rows.Scan(&r.ID, &reporter, &reported, &reportedName, &r.Reason, &status,
			&assigned, &rLoc, &dLoc, &created, &closed, &note); err != nil {
			return nil, fmt.Errorf("datastore: scan report: %w", err)
		}
		r.Reporter = parseStaff(reporter)
		r.Reported, _ = uuid.Parse(reported)
		r.ReportedName = reportedName.String
		r.Status = model.ReportStatus(status)
		r.AssignedTo = parseStaff(assigned.String)
		r.ReporterLoc = rLoc.String
		r.ReportedLoc = dLoc.String
		r.CreatedAt = fromMillis(created)
		r.ClosedAt = fromMillis(closed)
		r.CloseComment = note.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// CloseReport marks an open report closed. It reports whether a row changed.
func (s *baseProvider) CloseReport(ctx context.Context, id int64, by uuid.UUID, comment string, at time.Time) (bool, error) {
	res, err := s.exec(ctx,
		"UPDATE reports SET status = ?, assigned_to = ?, close_comment = ?, closed_at = ? WHERE id = ? AND status = ?",
		string(model.ReportClosed), staffText(by), nullString(comment), toMillis(at), id, string(model.ReportOpen),
	)
	if err != nil {
		return false, fmt.Errorf("datastore: close report: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("datastore: close report: %w", err)
	}
	return n > 0, nil
}

// ---- Audit logs ----

// LogGameModeChange appends a game mode audit entry.
func (s *baseProvider) LogGameModeChange(ctx context.Context, change *model.GameModeChange) error {
	id, err := s.insert(ctx,
		"INSERT INTO gamemode_log (player_uuid, from_mode, to_mode, world, created) VALUES (?, ?, ?, ?, ?)",
		change.Player.String(), change.From, change.To, nullString(change.World), toMillis(change.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("datastore: log gamemode: %w", err)
	}
	change.ID = id
	return nil
}

// LogCommand appends a command audit entry.
func (s *baseProvider) LogCommand(ctx context.Context, entry *model.CommandLogEntry) error {
	id, err := s.insert(ctx,
		"INSERT INTO command_log (player_uuid, command, world, created) VALUES (?, ?, ?, ?)",
		staffText(entry.Player), entry.Command, nullString(entry.World), toMillis(entry.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("datastore: log command: %w", err)
	}
	entry.ID = id
	return nil
}

// ListCommands returns a player's most recent commands, newest first.
func (s *baseProvider) ListCommands(ctx context.Context, player uuid.UUID, limit int) ([]model.CommandLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.query(ctx,
		"SELECT id, player_uuid, command, world, created FROM command_log WHERE player_uuid = ?"+activeOrder+" LIMIT ?",
		staffText(player), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("datastore: list commands: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.CommandLogEntry
	for rows.Next() {
		var (
			e       model.CommandLogEntry
			pid     string
			world   sql.NullString
			created int64
		)
		if err := rows.Scan(&e.ID, &pid, &e.Command, &world, &created); err != nil {
			return nil, fmt.Errorf("datastore: scan command: %w", err)
		}
		e.Player = parseStaff(pid)
		e.World = world.String
		e.CreatedAt = fromMillis(created)
		out = append(out, e)
	}
	return out, rows.Err()
}

// ---- Name bans ----

// CreateNameBan inserts a name ban and sets its ID.
func (s *baseProvider) CreateNameBan(ctx context.Context, ban *model.NameBan) error {
	name := strings.TrimSpace(ban.Name)
	if name == "" {
		return fmt.Errorf("datastore: create name ban: %w", model.ErrNoTarget)
	}
	if ban.Reason == "" {
		return fmt.Errorf("datastore: create name ban: %w", model.ErrReasonEmpty)
	}
	if ban.Type == "" {
		ban.Type = model.Permanent
		if !ban.ExpiresAt.IsZero() {
			ban.Type = model.Temporary
		}
	}
	id, err := s.insert(ctx,
		"INSERT INTO name_bans (name, staff_uuid, reason, type, created, expires, active) VALUES (?, ?, ?, ?, ?, ?, 1)",
		name, staffText(ban.Staff), ban.Reason, string(ban.Type), toMillis(ban.CreatedAt), toMillis(ban.ExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("datastore: create name ban: %w", err)
	}
	ban.ID = id
	ban.Name = name
	ban.Active = true
	return nil
}

// ActiveNameBan returns the name ban in effect at `at`, case-insensitive.
func (s *baseProvider) ActiveNameBan(ctx context.Context, name string, at time.Time) (*model.NameBan, error) {
	var (
		b                model.NameBan
		staff, typ       string
		created, expires int64
		active           int
	)
	err := s.queryRow(ctx,
		`SELECT id, name, staff_uuid, reason, type, created, expires, active FROM name_bans
		WHERE lower(name) = ? AND active = 1 AND (expires = 0 OR expires > ?)`+activeOrder+" LIMIT 1",
		strings.ToLower(strings.TrimSpace(name)), at.UnixMilli(),
	).Scan(&b.ID, &b.Name, &staff, &b.Reason, &typ, &created, &expires, &active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("datastore: active name ban: %w", err)
	}
	b.Staff = parseStaff(staff)
	b.Type = model.Type(typ)
	b.CreatedAt = fromMillis(created)
	b.ExpiresAt = fromMillis(expires)
	b.Active = active == 1
	return &b, nil
}

// RevokeNameBans deactivates all name bans for name.
func (s *baseProvider) RevokeNameBans(ctx context.Context, name string) (int64, error) {
	res, err := s.exec(ctx, "UPDATE name_bans SET active = 0 WHERE lower(name) = ? AND active = 1",
		strings.ToLower(strings.TrimSpace(name)))
	if err != nil {
		return 0, fmt.Errorf("datastore: revoke name bans: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("datastore: revoke name bans: %w", err)
	}
	return n, nil
}
