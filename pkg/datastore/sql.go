package datastore

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/NicolasHaas/gomoderate/pkg/model"
)

// Dialect selects placeholder style and driver.
type Dialect int

const (
	SQLite Dialect = iota
	Postgres
)

func (d Dialect) String() string {
	if d == Postgres {
		return "postgres"
	}
	return "sqlite"
}

// ParseDialect converts a driver name from config.
func ParseDialect(driver string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite", "sqlite3", "":
		return SQLite, nil
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	default:
		return 0, fmt.Errorf("datastore: unknown driver %q (valid: sqlite, postgres)", driver)
	}
}

func (d Dialect) driverName() string {
	if d == Postgres {
		return "pgx"
	}
	return "sqlite"
}

// consoleText is how the console issuer is stored in staff columns.
const consoleText = "CONSOLE"

type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type baseProvider struct {
	DB
	dialect Dialect
}

func (p *baseProvider) Dialect() Dialect {
	return p.dialect
}

func (p *baseProvider) Close() error {
	return nil
}

func (p *baseProvider) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return p.ExecContext(ctx, p.rebind(query), args...)
}

func (p *baseProvider) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return p.QueryContext(ctx, p.rebind(query), args...)
}

func (p *baseProvider) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return p.QueryRowContext(ctx, p.rebind(query), args...)
}

// insert runs an INSERT ... RETURNING id and returns the new id.
func (p *baseProvider) insert(ctx context.Context, query string, args ...any) (int64, error) {
	var id int64
	if err := p.queryRow(ctx, query+" RETURNING id", args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// rebind rewrites ? placeholders as $1, $2, ... for PostgreSQL. Queries in
// this package never contain a literal question mark.
func (p *baseProvider) rebind(query string) string {
	if p.dialect != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

type nonTxProvider struct {
	baseProvider
}

type txProvider struct {
	baseProvider
	tx *sql.Tx
}

func (c *txProvider) Rollback() error {
	return c.tx.Rollback()
}

func (c *txProvider) Commit() error {
	return c.tx.Commit()
}

// ProviderFactory provides database access for all moderation records.
type ProviderFactory struct {
	DB      *sql.DB
	dialect Dialect
}

func (sf ProviderFactory) NonTx() DataStore {
	return &nonTxProvider{
		baseProvider: baseProvider{
			DB:      sf.DB,
			dialect: sf.dialect,
		},
	}
}

func (sf ProviderFactory) Tx(ctx context.Context) (DataStoreTx, error) {
	tx, err := sf.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}

	return &txProvider{
		baseProvider: baseProvider{
			DB:      tx,
			dialect: sf.dialect,
		},
		tx: tx,
	}, nil
}

// Dialect returns the backing database dialect.
func (sf *ProviderFactory) Dialect() Dialect {
	return sf.dialect
}

// Options configures Open.
type Options struct {
	Driver       string // "sqlite" or "postgres"
	DSN          string // file path for sqlite, connection URL for postgres
	MaxOpenConns int    // 0 = driver default
}

// NewProviderFactory opens (or creates) a SQLite database and runs migrations.
func NewProviderFactory(dbPath string) (*ProviderFactory, error) {
	return Open(context.Background(), Options{Driver: "sqlite", DSN: dbPath})
}

// Open connects to the configured database and applies pending migrations.
func Open(ctx context.Context, opts Options) (*ProviderFactory, error) {
	dialect, err := ParseDialect(opts.Driver)
	if err != nil {
		return nil, err
	}
	dsn := opts.DSN
	if dialect == SQLite {
		dsn = sqliteDSN(dsn)
	}

	db, err := sql.Open(dialect.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("datastore: open DB: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("datastore: ping: %w", err)
	}

	if err := migrateUp(dialect, dsn); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &ProviderFactory{DB: db, dialect: dialect}, nil
}

// sqliteDSN attaches per-connection pragmas so every pooled connection
// waits on locks instead of failing with SQLITE_BUSY.
func sqliteDSN(path string) string {
	if strings.Contains(path, "_pragma=") {
		return path
	}
	if !strings.HasPrefix(path, "file:") {
		path = "file:" + path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_txlock=immediate"
}

// Close closes the database connection pool.
func (sf *ProviderFactory) Close() error {
	if sf.DB == nil {
		return nil
	}
	return sf.DB.Close()
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func staffText(id uuid.UUID) string {
	if id == uuid.Nil {
		return consoleText
	}
	return id.String()
}

func parseStaff(s string) uuid.UUID {
	if s == "" || s == consoleText {
		return uuid.Nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil
	}
	return id
}

func targetText(id uuid.UUID) any {
	if id == uuid.Nil {
		return nil
	}
	return id.String()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type rowScanner interface {
	Scan(dest ...any) error
}

// Punishment tables are read through a uniform column list so one scanner
// serves bans, mutes, kicks and warnings.
const (
	banColumns     = "id, player_uuid, player_name, ip, ip_range, staff_uuid, staff_name, reason, type, created, expires, active, unban_staff, unban_reason, appeal_id"
	muteColumns    = "id, player_uuid, player_name, NULL, NULL, staff_uuid, staff_name, reason, type, created, expires, active, unmute_staff, unmute_reason, NULL"
	warningColumns = "id, player_uuid, player_name, NULL, NULL, staff_uuid, staff_name, reason, type, created, expires, active, remove_staff, remove_reason, NULL"
	kickColumns    = "id, player_uuid, player_name, NULL, NULL, staff_uuid, staff_name, reason, 'PERMANENT', created, 0, 0, NULL, NULL, NULL"
)

func scanPunishment(row rowScanner, kind model.Kind) (*model.Punishment, error) {
	var (
		p                                   model.Punishment
		target, targetName, ip, ipRange     sql.NullString
		staff                               string
		staffName, revokedBy, revokedReason sql.NullString
		appealID                            sql.NullString
		typ                                 string
		created, expires                    int64
		active                              int
	)
	if err := row.Scan(&p.ID, &target, &targetName, &ip, &ipRange, &staff, &staffName,
		&p.Reason, &typ, &created, &expires, &active, &revokedBy, &revokedReason, &appealID); err != nil {
		return nil, err
	}
	p.Kind = kind
	if target.Valid {
		if id, err := uuid.Parse(target.String); err == nil {
			p.Target = id
		}
	}
	p.TargetName = targetName.String
	p.IP = ip.String
	p.IPRange = ipRange.String
	p.Staff = parseStaff(staff)
	p.StaffName = staffName.String
	if p.StaffName == "" && p.Staff == uuid.Nil {
		p.StaffName = model.ConsoleName
	}
	p.Type = model.Type(typ)
	p.CreatedAt = fromMillis(created)
	p.ExpiresAt = fromMillis(expires)
	p.Active = active == 1
	if revokedBy.Valid {
		p.Revocation = &model.Revocation{By: parseStaff(revokedBy.String), Reason: revokedReason.String}
	}
	p.AppealID = appealID.String
	return &p, nil
}

func scanPunishments(rows *sql.Rows, kind model.Kind) ([]model.Punishment, error) {
	defer func() { _ = rows.Close() }()

	var out []model.Punishment
	for rows.Next() {
		p, err := scanPunishment(rows, kind)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}
