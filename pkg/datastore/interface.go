package datastore

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/NicolasHaas/gomoderate/pkg/model"
)

type DataProviderFactory interface {
	NonTx() DataStore
	Tx(context.Context) (DataStoreTx, error)
}

type DataStoreTx interface {
	DataStore
	Rollback() error
	Commit() error
}

// DataStore defines the persistence interface for moderation records.
// The SQL implementation serves both SQLite and PostgreSQL.
type DataStore interface {
	ConfigReadProvider

	IdentityReadProvider
	IdentityWriteProvider

	BanReadProvider
	BanWriteProvider

	MuteReadProvider
	MuteWriteProvider

	KickReadProvider
	KickWriteProvider

	WarningReadProvider
	WarningWriteProvider

	NoteProvider
	ReportProvider
	AuditProvider
	NameBanProvider
	HistoryProvider
}

// Compile-time check: *ProviderFactory implements DataProviderFactory.
var _ DataProviderFactory = (*ProviderFactory)(nil)

type ConfigReadProvider interface {
	Dialect() Dialect
	Close() error
}

type IdentityReadProvider interface {
	IdentityByID(ctx context.Context, id uuid.UUID) (*model.PlayerIdentity, error)
	IdentityByName(ctx context.Context, name string) (*model.PlayerIdentity, error)
	IdentitiesByIP(ctx context.Context, ip string) ([]model.PlayerIdentity, error)
	PlayerName(ctx context.Context, id uuid.UUID) (string, error)
}

type IdentityWriteProvider interface {
	UpsertIdentity(ctx context.Context, identity model.PlayerIdentity) error
}

type BanReadProvider interface {
	ActiveBan(ctx context.Context, target uuid.UUID, ip string, at time.Time) (*model.Punishment, error)
	ListBans(ctx context.Context, target uuid.UUID) ([]model.Punishment, error)
}

type BanWriteProvider interface {
	CreateBan(ctx context.Context, ban *model.Punishment) error
	RevokeBans(ctx context.Context, target uuid.UUID, ip string, at time.Time, revocation model.Revocation) (int64, error)
}

type MuteReadProvider interface {
	ActiveMute(ctx context.Context, target uuid.UUID, at time.Time) (*model.Punishment, error)
	ListMutes(ctx context.Context, target uuid.UUID) ([]model.Punishment, error)
}

type MuteWriteProvider interface {
	CreateMute(ctx context.Context, mute *model.Punishment) error
	RevokeMutes(ctx context.Context, target uuid.UUID, at time.Time, revocation model.Revocation) (int64, error)
}

type KickReadProvider interface {
	ListKicks(ctx context.Context, target uuid.UUID) ([]model.Punishment, error)
}

type KickWriteProvider interface {
	CreateKick(ctx context.Context, kick *model.Punishment) error
}

type WarningReadProvider interface {
	ListWarnings(ctx context.Context, target uuid.UUID) ([]model.Punishment, error)
	CountActiveWarnings(ctx context.Context, target uuid.UUID, at time.Time) (int, error)
}

type WarningWriteProvider interface {
	CreateWarning(ctx context.Context, warning *model.Punishment) error
	RevokeWarning(ctx context.Context, id int64, revocation model.Revocation) (bool, error)
}

type NoteProvider interface {
	CreateNote(ctx context.Context, note *model.Note) error
	ListNotes(ctx context.Context, target uuid.UUID) ([]model.Note, error)
}

type ReportProvider interface {
	CreateReport(ctx context.Context, report *model.Report) error
	ListOpenReports(ctx context.Context, limit int) ([]model.Report, error)
	CloseReport(ctx context.Context, id int64, by uuid.UUID, comment string, at time.Time) (bool, error)
}

type AuditProvider interface {
	LogGameModeChange(ctx context.Context, change *model.GameModeChange) error
	LogCommand(ctx context.Context, entry *model.CommandLogEntry) error
	ListCommands(ctx context.Context, player uuid.UUID, limit int) ([]model.CommandLogEntry, error)
}

type NameBanProvider interface {
	CreateNameBan(ctx context.Context, ban *model.NameBan) error
	ActiveNameBan(ctx context.Context, name string, at time.Time) (*model.NameBan, error)
	RevokeNameBans(ctx context.Context, name string) (int64, error)
}

type HistoryProvider interface {
	History(ctx context.Context, target uuid.UUID) ([]model.HistoryEntry, error)
}
