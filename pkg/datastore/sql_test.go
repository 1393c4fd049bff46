package datastore_test

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"

	"github.com/NicolasHaas/gomoderate/pkg/datastore"
	"github.com/NicolasHaas/gomoderate/pkg/model"
)

var t0 = time.UnixMilli(1_700_000_000_000).UTC()

func NewTestSqlConn(t *testing.T) (*datastore.ProviderFactory, error) {
	t.Helper()

	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	st, err := datastore.NewProviderFactory(dbPath)
	if err != nil {
		return nil, fmt.Errorf("store_test: failed to open db: %w", err)
	}

	t.Cleanup(func() {
		if err := st.Close(); err != nil {
			t.Logf("error closing database: %v", err)
		}
	})

	return st, nil
}

func mustStore(t *testing.T) *datastore.ProviderFactory {
	t.Helper()
	st, err := NewTestSqlConn(t)
	if err != nil {
		t.Fatalf("failed to open test connection: %v", err)
	}
	return st
}

func TestDialect(t *testing.T) {
	store := mustStore(t)
	if got := store.NonTx().Dialect(); got != datastore.SQLite {
		t.Errorf("Dialect() = %v, want sqlite", got)
	}

	for in, want := range map[string]datastore.Dialect{"": datastore.SQLite, "sqlite": datastore.SQLite, "PostgreSQL": datastore.Postgres, "pgx": datastore.Postgres} {
		got, err := datastore.ParseDialect(in)
		if err != nil || got != want {
			t.Errorf("ParseDialect(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := datastore.ParseDialect("mysql"); err == nil {
		t.Error("ParseDialect(mysql) should fail")
	}
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	ctx := context.Background()

	first, err := datastore.NewProviderFactory(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	id := uuid.New()
	if err := first.NonTx().UpsertIdentity(ctx, model.PlayerIdentity{ID: id, Name: "Alice", FirstSeen: t0, LastSeen: t0}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	_ = first.Close()

	second, err := datastore.NewProviderFactory(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = second.Close() }()

	got, err := second.NonTx().IdentityByID(ctx, id)
	if err != nil || got == nil || got.Name != "Alice" {
		t.Fatalf("IdentityByID after reopen = %+v, %v", got, err)
	}
}

func TestUpsertIdentity(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	type tcase struct {
		first, second model.PlayerIdentity
		want          model.PlayerIdentity
	}

	id := uuid.New()
	tcases := map[string]tcase{
		"first_join_preserved": {
			first:  model.PlayerIdentity{ID: id, Name: "Alice", IP: "10.0.0.1", FirstSeen: t0, LastSeen: t0},
			second: model.PlayerIdentity{ID: id, Name: "Alice2", IP: "10.0.0.2", FirstSeen: t0.Add(time.Hour), LastSeen: t0.Add(time.Hour)},
			want:   model.PlayerIdentity{ID: id, Name: "Alice2", IP: "10.0.0.2", FirstSeen: t0, LastSeen: t0.Add(time.Hour)},
		},
	}

	fn := func(tc tcase) func(*testing.T) {
		return func(t *testing.T) {
			t.Parallel()
			store := mustStore(t).NonTx()

			if err := store.UpsertIdentity(ctx, tc.first); err != nil {
				t.Fatalf("first upsert: %v", err)
			}
			if err := store.UpsertIdentity(ctx, tc.second); err != nil {
				t.Fatalf("second upsert: %v", err)
			}

			got, err := store.IdentityByID(ctx, tc.want.ID)
			if err != nil {
				t.Fatalf("IdentityByID: %v", err)
			}
			if diff := cmp.Diff(&tc.want, got); diff != "" {
				t.Errorf("IdentityByID mismatch (-want +got):\n%s", diff)
			}

			byName, err := store.IdentityByName(ctx, "ALICE2")
			if err != nil || byName == nil || byName.ID != tc.want.ID {
				t.Errorf("IdentityByName = %+v, %v", byName, err)
			}
		}
	}

	for name, tc := range tcases {
		t.Run(name, fn(tc))
	}
}

func TestIdentityLookups(t *testing.T) {
	ctx := context.Background()
	store := mustStore(t).NonTx()

	alice, alt, other := uuid.New(), uuid.New(), uuid.New()
	for _, p := range []model.PlayerIdentity{
		{ID: alice, Name: "Alice", IP: "10.0.0.1", FirstSeen: t0, LastSeen: t0},
		{ID: alt, Name: "AliceAlt", IP: "10.0.0.1", FirstSeen: t0, LastSeen: t0.Add(time.Minute)},
		{ID: other, Name: "Bob", IP: "10.0.0.9", FirstSeen: t0, LastSeen: t0},
	} {
		if err := store.UpsertIdentity(ctx, p); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	sameIP, err := store.IdentitiesByIP(ctx, "10.0.0.1")
	if err != nil {
		t.Fatalf("IdentitiesByIP: %v", err)
	}
	ids := []uuid.UUID{}
	for _, p := range sameIP {
		ids = append(ids, p.ID)
	}
	if diff := cmp.Diff([]uuid.UUID{alt, alice}, ids); diff != "" {
		t.Errorf("IdentitiesByIP mismatch (-want +got):\n%s", diff)
	}

	missing, err := store.IdentityByName(ctx, "nobody")
	if err != nil || missing != nil {
		t.Errorf("IdentityByName(nobody) = %+v, %v", missing, err)
	}

	name, err := store.PlayerName(ctx, uuid.New())
	if err != nil || name != model.UnknownName {
		t.Errorf("PlayerName(unknown) = %q, %v", name, err)
	}
	name, err = store.PlayerName(ctx, uuid.Nil)
	if err != nil || name != model.ConsoleName {
		t.Errorf("PlayerName(console) = %q, %v", name, err)
	}
}

func TestCreateBan(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	type tcase struct {
		ban       model.Punishment
		expectErr bool
	}

	tcases := map[string]tcase{
		"permanent_player_ban": {
			ban: model.Punishment{Target: uuid.New(), TargetName: "Alice", Staff: uuid.New(), StaffName: "Mod",
				Reason: "Griefing", Type: model.Permanent, CreatedAt: t0, AppealID: "abcd1234"},
		},
		"temporary_console_ban": {
			ban: model.Punishment{Target: uuid.New(), Reason: "Spam", Type: model.Temporary,
				CreatedAt: t0, ExpiresAt: t0.Add(24 * time.Hour)},
		},
		"ip_range_ban": {
			ban: model.Punishment{IPRange: "10.1.0.0/16", Reason: "Botnet", Type: model.Permanent, CreatedAt: t0},
		},
		"missing_target": {
			ban:       model.Punishment{Reason: "x", Type: model.Permanent, CreatedAt: t0},
			expectErr: true,
		},
		"temporary_without_expiry": {
			ban:       model.Punishment{Target: uuid.New(), Reason: "x", Type: model.Temporary, CreatedAt: t0},
			expectErr: true,
		},
	}

	fn := func(tc tcase) func(*testing.T) {
		return func(t *testing.T) {
			t.Parallel()
			store := mustStore(t).NonTx()

			ban := tc.ban
			err := store.CreateBan(ctx, &ban)
			if tc.expectErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("CreateBan: %v", err)
			}
			if ban.ID == 0 {
				t.Fatal("CreateBan did not assign an id")
			}

			got, err := store.ActiveBan(ctx, tc.ban.Target, "10.1.2.3", t0.Add(time.Minute))
			if err != nil {
				t.Fatalf("ActiveBan: %v", err)
			}
			want := tc.ban
			want.Kind = model.KindBan
			want.Active = true
			if want.Staff == uuid.Nil {
				want.StaffName = model.ConsoleName
			}
			if diff := cmp.Diff(&want, got, cmpopts.IgnoreFields(model.Punishment{}, "ID")); diff != "" {
				t.Errorf("ActiveBan mismatch (-want +got):\n%s", diff)
			}
		}
	}

	for name, tc := range tcases {
		t.Run(name, fn(tc))
	}
}

func TestActiveBan(t *testing.T) {
	ctx := context.Background()
	store := mustStore(t).NonTx()

	perm := uuid.New()
	temp := uuid.New()
	revoked := uuid.New()

	seed := []model.Punishment{
		{Target: perm, Reason: "perm", Type: model.Permanent, CreatedAt: t0},
		{Target: temp, Reason: "temp", Type: model.Temporary, CreatedAt: t0, ExpiresAt: t0.Add(time.Hour)},
		{Target: revoked, Reason: "revoked", Type: model.Permanent, CreatedAt: t0},
		{IP: "192.168.1.50", Reason: "ip", Type: model.Permanent, CreatedAt: t0},
		{IPRange: "172.16.0.0/12", Reason: "range", Type: model.Permanent, CreatedAt: t0},
	}
	for i := range seed {
		if err := store.CreateBan(ctx, &seed[i]); err != nil {
			t.Fatalf("seed %d: %v", i, err)
		}
	}
	if _, err := store.RevokeBans(ctx, revoked, "", t0, model.Revocation{Reason: "appeal"}); err != nil {
		t.Fatalf("RevokeBans: %v", err)
	}

	type tcase struct {
		target     uuid.UUID
		ip         string
		at         time.Time
		wantReason string // empty = no ban
	}
	tcases := map[string]tcase{
		"permanent":              {target: perm, at: t0.Add(1000 * time.Hour), wantReason: "perm"},
		"temporary_before":       {target: temp, at: t0.Add(59 * time.Minute), wantReason: "temp"},
		"temporary_at_expiry":    {target: temp, at: t0.Add(time.Hour)},
		"temporary_after":        {target: temp, at: t0.Add(2 * time.Hour)},
		"revoked":                {target: revoked, at: t0},
		"exact_ip":               {target: uuid.New(), ip: "192.168.1.50", at: t0, wantReason: "ip"},
		"range_match":            {target: uuid.New(), ip: "172.20.4.4", at: t0, wantReason: "range"},
		"range_miss":             {target: uuid.New(), ip: "8.8.8.8", at: t0},
		"unknown_player_no_ip":   {target: uuid.New(), at: t0},
		"unparseable_ip_ignored": {target: uuid.New(), ip: "not-an-ip", at: t0},
	}

	for name, tc := range tcases {
		t.Run(name, func(t *testing.T) {
			got, err := store.ActiveBan(ctx, tc.target, tc.ip, tc.at)
			if err != nil {
				t.Fatalf("ActiveBan: %v", err)
			}
			gotReason := ""
			if got != nil {
				gotReason = got.Reason
			}
			if gotReason != tc.wantReason {
				t.Errorf("ActiveBan reason = %q, want %q", gotReason, tc.wantReason)
			}
		})
	}
}

func TestActiveBanMostRecentWins(t *testing.T) {
	ctx := context.Background()
	factory := mustStore(t)
	store := factory.NonTx()
	target := uuid.New()

	// Same created timestamp: the higher id must win every time.
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ban := model.Punishment{Target: target, Reason: fmt.Sprintf("ban-%d", i), Type: model.Permanent, CreatedAt: t0}
			if i%2 == 1 {
				ban.Type = model.Temporary
				ban.ExpiresAt = t0.Add(time.Hour)
			}
			errs <- store.CreateBan(ctx, &ban)
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent CreateBan: %v", err)
		}
	}

	all, err := store.ListBans(ctx, target)
	if err != nil {
		t.Fatalf("ListBans: %v", err)
	}
	if len(all) != 8 {
		t.Fatalf("ListBans returned %d rows, want 8", len(all))
	}
	var maxID int64
	for _, b := range all {
		if b.ID > maxID {
			maxID = b.ID
		}
	}

	for i := 0; i < 20; i++ {
		got, err := store.ActiveBan(ctx, target, "", t0.Add(time.Minute))
		if err != nil {
			t.Fatalf("ActiveBan: %v", err)
		}
		if got == nil || got.ID != maxID {
			t.Fatalf("ActiveBan = %+v, want id %d", got, maxID)
		}
	}

	// A later ban beats every earlier one regardless of id order.
	later := model.Punishment{Target: target, Reason: "later", Type: model.Permanent, CreatedAt: t0.Add(time.Second)}
	if err := store.CreateBan(ctx, &later); err != nil {
		t.Fatalf("CreateBan: %v", err)
	}
	got, err := store.ActiveBan(ctx, target, "", t0.Add(time.Minute))
	if err != nil || got == nil || got.Reason != "later" {
		t.Fatalf("ActiveBan = %+v, %v; want later", got, err)
	}
}

func TestRevokeBans(t *testing.T) {
	ctx := context.Background()
	store := mustStore(t).NonTx()
	target := uuid.New()
	staff := uuid.New()

	for _, b := range []model.Punishment{
		{Target: target, Reason: "a", Type: model.Permanent, CreatedAt: t0},
		{Target: target, Reason: "b", Type: model.Temporary, CreatedAt: t0, ExpiresAt: t0.Add(time.Hour)},
		{Target: target, Reason: "expired", Type: model.Temporary, CreatedAt: t0, ExpiresAt: t0.Add(time.Second)},
	} {
		b := b
		if err := store.CreateBan(ctx, &b); err != nil {
			t.Fatalf("CreateBan: %v", err)
		}
	}

	n, err := store.RevokeBans(ctx, target, "", t0.Add(time.Minute), model.Revocation{By: staff, Reason: "appeal accepted"})
	if err != nil {
		t.Fatalf("RevokeBans: %v", err)
	}
	if n != 2 {
		t.Errorf("RevokeBans revoked %d rows, want 2", n)
	}

	active, err := store.ActiveBan(ctx, target, "", t0.Add(time.Minute))
	if err != nil || active != nil {
		t.Fatalf("ActiveBan after revoke = %+v, %v", active, err)
	}

	all, err := store.ListBans(ctx, target)
	if err != nil {
		t.Fatalf("ListBans: %v", err)
	}
	revoked := 0
	for _, b := range all {
		if b.Revocation != nil {
			revoked++
			want := &model.Revocation{By: staff, Reason: "appeal accepted"}
			if diff := cmp.Diff(want, b.Revocation); diff != "" {
				t.Errorf("revocation mismatch (-want +got):\n%s", diff)
			}
		}
	}
	if revoked != 2 {
		t.Errorf("found %d revoked rows, want 2", revoked)
	}

	again, err := store.RevokeBans(ctx, target, "", t0.Add(time.Minute), model.Revocation{Reason: "again"})
	if err != nil || again != 0 {
		t.Errorf("second RevokeBans = %d, %v; want 0", again, err)
	}
}

func TestMutes(t *testing.T) {
	ctx := context.Background()
	store := mustStore(t).NonTx()
	target := uuid.New()

	mute := model.Punishment{Target: target, Reason: "spam", Type: model.Temporary, CreatedAt: t0, ExpiresAt: t0.Add(10 * time.Minute)}
	if err := store.CreateMute(ctx, &mute); err != nil {
		t.Fatalf("CreateMute: %v", err)
	}

	got, err := store.ActiveMute(ctx, target, t0.Add(time.Minute))
	if err != nil || got == nil {
		t.Fatalf("ActiveMute = %+v, %v", got, err)
	}
	want := mute
	want.StaffName = model.ConsoleName
	if diff := cmp.Diff(&want, got); diff != "" {
		t.Errorf("ActiveMute mismatch (-want +got):\n%s", diff)
	}

	expired, err := store.ActiveMute(ctx, target, t0.Add(11*time.Minute))
	if err != nil || expired != nil {
		t.Errorf("ActiveMute after expiry = %+v, %v", expired, err)
	}

	n, err := store.RevokeMutes(ctx, target, t0.Add(time.Minute), model.Revocation{Reason: "ok"})
	if err != nil || n != 1 {
		t.Fatalf("RevokeMutes = %d, %v", n, err)
	}
	after, err := store.ActiveMute(ctx, target, t0.Add(time.Minute))
	if err != nil || after != nil {
		t.Errorf("ActiveMute after revoke = %+v, %v", after, err)
	}

	list, err := store.ListMutes(ctx, target)
	if err != nil || len(list) != 1 || list[0].Active {
		t.Errorf("ListMutes = %+v, %v", list, err)
	}
}

func TestKicksAndWarnings(t *testing.T) {
	ctx := context.Background()
	factory := mustStore(t)
	store := factory.NonTx()
	target := uuid.New()

	kick := model.Punishment{Target: target, Reason: "afk", CreatedAt: t0}
	if err := store.CreateKick(ctx, &kick); err != nil {
		t.Fatalf("CreateKick: %v", err)
	}
	kicks, err := store.ListKicks(ctx, target)
	if err != nil || len(kicks) != 1 || kicks[0].Kind != model.KindKick || kicks[0].Reason != "afk" {
		t.Fatalf("ListKicks = %+v, %v", kicks, err)
	}

	tx, err := factory.Tx(ctx)
	if err != nil {
		t.Fatalf("Tx: %v", err)
	}
	for _, w := range []model.Punishment{
		{Target: target, Reason: "w1", Type: model.Permanent, CreatedAt: t0},
		{Target: target, Reason: "w2", Type: model.Temporary, CreatedAt: t0, ExpiresAt: t0.Add(time.Minute)},
	} {
		w := w
		if err := tx.CreateWarning(ctx, &w); err != nil {
			_ = tx.Rollback()
			t.Fatalf("CreateWarning: %v", err)
		}
	}
	count, err := tx.CountActiveWarnings(ctx, target, t0)
	if err != nil {
		_ = tx.Rollback()
		t.Fatalf("CountActiveWarnings: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if count != 2 {
		t.Errorf("CountActiveWarnings = %d, want 2", count)
	}

	later, err := store.CountActiveWarnings(ctx, target, t0.Add(time.Hour))
	if err != nil || later != 1 {
		t.Errorf("CountActiveWarnings after expiry = %d, %v; want 1", later, err)
	}

	warnings, err := store.ListWarnings(ctx, target)
	if err != nil || len(warnings) != 2 {
		t.Fatalf("ListWarnings = %+v, %v", warnings, err)
	}
	ok, err := store.RevokeWarning(ctx, warnings[0].ID, model.Revocation{Reason: "mistake"})
	if err != nil || !ok {
		t.Errorf("RevokeWarning = %v, %v", ok, err)
	}
	ok, err = store.RevokeWarning(ctx, warnings[0].ID, model.Revocation{Reason: "mistake"})
	if err != nil || ok {
		t.Errorf("second RevokeWarning = %v, %v; want false", ok, err)
	}
}

func TestTxRollback(t *testing.T) {
	ctx := context.Background()
	factory := mustStore(t)
	target := uuid.New()

	tx, err := factory.Tx(ctx)
	if err != nil {
		t.Fatalf("Tx: %v", err)
	}
	ban := model.Punishment{Target: target, Reason: "x", Type: model.Permanent, CreatedAt: t0}
	if err := tx.CreateBan(ctx, &ban); err != nil {
		t.Fatalf("CreateBan: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	got, err := factory.NonTx().ActiveBan(ctx, target, "", t0)
	if err != nil || got != nil {
		t.Errorf("ActiveBan after rollback = %+v, %v", got, err)
	}
}

func TestNotesReportsAndAudit(t *testing.T) {
	ctx := context.Background()
	store := mustStore(t).NonTx()
	target := uuid.New()
	staff := uuid.New()

	note := model.Note{Target: target, Staff: staff, StaffName: "Mod", Message: "watch for xray", CreatedAt: t0}
	if err := store.CreateNote(ctx, &note); err != nil {
		t.Fatalf("CreateNote: %v", err)
	}
	notes, err := store.ListNotes(ctx, target)
	if err != nil {
		t.Fatalf("ListNotes: %v", err)
	}
	if diff := cmp.Diff([]model.Note{note}, notes); diff != "" {
		t.Errorf("ListNotes mismatch (-want +got):\n%s", diff)
	}

	report := model.Report{Reporter: uuid.New(), Reported: target, ReportedName: "Alice", Reason: "flying", CreatedAt: t0}
	if err := store.CreateReport(ctx, &report); err != nil {
		t.Fatalf("CreateReport: %v", err)
	}
	open, err := store.ListOpenReports(ctx, 10)
	if err != nil || len(open) != 1 || open[0].Status != model.ReportOpen {
		t.Fatalf("ListOpenReports = %+v, %v", open, err)
	}
	closed, err := store.CloseReport(ctx, report.ID, staff, "handled", t0.Add(time.Hour))
	if err != nil || !closed {
		t.Fatalf("CloseReport = %v, %v", closed, err)
	}
	open, err = store.ListOpenReports(ctx, 10)
	if err != nil || len(open) != 0 {
		t.Errorf("ListOpenReports after close = %+v, %v", open, err)
	}

	if err := store.LogGameModeChange(ctx, &model.GameModeChange{Player: target, From: "SURVIVAL", To: "CREATIVE", World: "world", CreatedAt: t0}); err != nil {
		t.Fatalf("LogGameModeChange: %v", err)
	}
	for i, cmd := range []string{"/spawn", "/home"} {
		entry := model.CommandLogEntry{Player: target, Command: cmd, World: "world", CreatedAt: t0.Add(time.Duration(i) * time.Second)}
		if err := store.LogCommand(ctx, &entry); err != nil {
			t.Fatalf("LogCommand: %v", err)
		}
	}
	cmds, err := store.ListCommands(ctx, target, 10)
	if err != nil {
		t.Fatalf("ListCommands: %v", err)
	}
	got := []string{}
	for _, c := range cmds {
		got = append(got, c.Command)
	}
	if diff := cmp.Diff([]string{"/home", "/spawn"}, got); diff != "" {
		t.Errorf("ListCommands mismatch (-want +got):\n%s", diff)
	}
}

func TestNameBans(t *testing.T) {
	ctx := context.Background()
	store := mustStore(t).NonTx()

	ban := model.NameBan{Name: "Notch", Reason: "impersonation", CreatedAt: t0}
	if err := store.CreateNameBan(ctx, &ban); err != nil {
		t.Fatalf("CreateNameBan: %v", err)
	}
	if ban.Type != model.Permanent {
		t.Errorf("Type = %s, want PERMANENT", ban.Type)
	}

	got, err := store.ActiveNameBan(ctx, "notch", t0.Add(time.Hour))
	if err != nil || got == nil || got.Reason != "impersonation" {
		t.Fatalf("ActiveNameBan = %+v, %v", got, err)
	}

	n, err := store.RevokeNameBans(ctx, "NOTCH")
	if err != nil || n != 1 {
		t.Fatalf("RevokeNameBans = %d, %v", n, err)
	}
	got, err = store.ActiveNameBan(ctx, "Notch", t0.Add(time.Hour))
	if err != nil || got != nil {
		t.Errorf("ActiveNameBan after revoke = %+v, %v", got, err)
	}
}

func TestHistory(t *testing.T) {
	ctx := context.Background()
	store := mustStore(t).NonTx()
	target := uuid.New()

	ban := model.Punishment{Target: target, Reason: "ban", Type: model.Permanent, CreatedAt: t0.Add(4 * time.Second)}
	mute := model.Punishment{Target: target, Reason: "mute", Type: model.Permanent, CreatedAt: t0.Add(3 * time.Second)}
	kick := model.Punishment{Target: target, Reason: "kick", CreatedAt: t0.Add(2 * time.Second)}
	warn := model.Punishment{Target: target, Reason: "warn", Type: model.Permanent, CreatedAt: t0.Add(time.Second)}
	note := model.Note{Target: target, Message: "note", CreatedAt: t0}

	if err := store.CreateBan(ctx, &ban); err != nil {
		t.Fatal(err)
	}
	if err := store.CreateMute(ctx, &mute); err != nil {
		t.Fatal(err)
	}
	if err := store.CreateKick(ctx, &kick); err != nil {
		t.Fatal(err)
	}
	if err := store.CreateWarning(ctx, &warn); err != nil {
		t.Fatal(err)
	}
	if err := store.CreateNote(ctx, &note); err != nil {
		t.Fatal(err)
	}

	history, err := store.History(ctx, target)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	kinds := []model.Kind{}
	for _, h := range history {
		kinds = append(kinds, h.Kind)
	}
	want := []model.Kind{model.KindBan, model.KindMute, model.KindKick, model.KindWarning, model.KindNote}
	if diff := cmp.Diff(want, kinds); diff != "" {
		t.Errorf("History order mismatch (-want +got):\n%s", diff)
	}

	empty, err := store.History(ctx, uuid.New())
	if err != nil || len(empty) != 0 {
		t.Errorf("History(unknown) = %+v, %v", empty, err)
	}
}
