package server

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/NicolasHaas/gomoderate/pkg/config"
	"github.com/NicolasHaas/gomoderate/pkg/datastore"
	"github.com/NicolasHaas/gomoderate/pkg/model"
	"github.com/NicolasHaas/gomoderate/pkg/notify"
)

type recordingConn struct {
	mu           sync.Mutex
	sent         []string
	disconnected string
}

func (c *recordingConn) Send(message string) {
	c.mu.Lock()
	c.sent = append(c.sent, message)
	c.mu.Unlock()
}

func (c *recordingConn) Disconnect(message string) {
	c.mu.Lock()
	c.disconnected = message
	c.mu.Unlock()
}

func (c *recordingConn) kicked() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnected
}

func (c *recordingConn) received(substr string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range c.sent {
		if strings.Contains(m, substr) {
			return true
		}
	}
	return false
}

type recordingSink struct {
	mu     sync.Mutex
	events []notify.Event
}

func (s *recordingSink) Emit(_ context.Context, ev notify.Event) error {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
	return nil
}

func (s *recordingSink) count(category string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, ev := range s.events {
		if ev.Category == category {
			n++
		}
	}
	return n
}

type testServer struct {
	*Server
	sink *recordingSink
}

func newTestServer(t *testing.T, settings *config.Config, path string) *testServer {
	t.Helper()
	st, err := datastore.NewProviderFactory(filepath.Join(t.TempDir(), "moderation.db"))
	if err != nil {
		t.Fatalf("NewProviderFactory: %v", err)
	}
	if settings == nil {
		settings = config.Default()
	}
	settings.Gate.RefreshInterval = -1

	sink := &recordingSink{}
	out := &bytes.Buffer{}
	srv, err := New(Config{Settings: settings, ConfigPath: path}, Dependencies{
		Store:   st,
		Sink:    sink,
		Console: &lockedWriter{w: out},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Run: %v", err)
		}
	})
	if err := srv.WaitReady(context.Background()); err != nil {
		t.Fatalf("WaitReady: %v", err)
	}
	return &testServer{Server: srv, sink: sink}
}

type lockedWriter struct {
	mu sync.Mutex
	w  *bytes.Buffer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

func (ts *testServer) join(t *testing.T, name string) (uuid.UUID, *recordingConn) {
	t.Helper()
	conn := &recordingConn{}
	id := OfflineID(name)
	d := ts.Join(context.Background(), model.Session{ID: id, Name: name, IP: "203.0.113.10", World: "world", GameMode: "survival"}, conn)
	if !d.Allowed {
		t.Fatalf("Join %s refused: %s", name, d.Message)
	}
	return id, conn
}

func (ts *testServer) exec(t *testing.T, line string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	reply, err := ts.ConsoleCommand(ctx, line)
	if err != nil {
		t.Fatalf("ConsoleCommand %q: %v", line, err)
	}
	if err := reply.Wait(ctx); err != nil {
		t.Fatalf("%q failed: %v", line, err)
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestJoin_BannedPlayerIsRefused(t *testing.T) {
	ts := newTestServer(t, nil, "")
	_, conn := ts.join(t, "Alice")

	ts.exec(t, "ban Alice 1d Griefing")
	if msg := conn.kicked(); !strings.Contains(msg, "Griefing") {
		t.Fatalf("expected ban screen on disconnect, got %q", msg)
	}
	if ts.Sessions().Count() != 0 {
		t.Fatalf("banned player still online")
	}
	eventually(t, "punishment event", func() bool {
		return ts.sink.count(notify.CategoryPunishments) == 1
	})

	d := ts.Join(context.Background(), model.Session{ID: OfflineID("Alice"), Name: "Alice", IP: "203.0.113.10"}, &recordingConn{})
	if d.Allowed || d.Punishment == nil {
		t.Fatalf("expected login to be refused, got %+v", d)
	}
}

func TestChat_MutedPlayerIsBlocked(t *testing.T) {
	ts := newTestServer(t, nil, "")
	id, conn := ts.join(t, "Bob")

	d, err := ts.Chat(context.Background(), id)
	if err != nil || !d.Allowed {
		t.Fatalf("expected chat allowed before mute: %+v %v", d, err)
	}

	ts.exec(t, "mute Bob Spam")
	eventually(t, "mute to reach the chat cache", func() bool {
		d, err := ts.Chat(context.Background(), id)
		return err == nil && !d.Allowed && !d.Held
	})
	if !conn.received("Spam") {
		t.Fatalf("muted player did not receive the mute notice")
	}
}

func TestCommand_PlayerWithoutPermission(t *testing.T) {
	ts := newTestServer(t, nil, "")
	ts.join(t, "Bob")
	carol, conn := ts.join(t, "Carol")

	reply, err := ts.Command(context.Background(), carol, "/ban Bob")
	if err != nil {
		t.Fatalf("Command: %v", err)
	}
	if !reply.Handled || reply.Text != "No permission." {
		t.Fatalf("unexpected reply %+v", reply)
	}
	if !conn.received("No permission.") {
		t.Fatalf("issuer did not receive the denial")
	}

	reply, err = ts.Command(context.Background(), carol, "/spawn")
	if err != nil || reply.Handled {
		t.Fatalf("unknown command should not be handled: %+v %v", reply, err)
	}
}

func TestCommand_GrantedStaff(t *testing.T) {
	settings := config.Default()
	settings.Staff = map[string][]string{
		OfflineID("Mod").String(): {"moderation.punish", "moderation.rank.moderator"},
	}
	ts := newTestServer(t, settings, "")
	_, target := ts.join(t, "Bob")
	mod, _ := ts.join(t, "Mod")

	reply, err := ts.Command(context.Background(), mod, "kick Bob go away")
	if err != nil {
		t.Fatalf("Command: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := reply.Wait(ctx); err != nil {
		t.Fatalf("kick failed: %v", err)
	}
	if target.kicked() == "" {
		t.Fatalf("target was not disconnected")
	}
}

func TestGameModeChanged_EmitsEvent(t *testing.T) {
	ts := newTestServer(t, nil, "")
	id, _ := ts.join(t, "Dave")

	ts.GameModeChanged(id, "creative")
	ts.GameModeChanged(id, "creative") // unchanged, ignored
	eventually(t, "gamemode event", func() bool {
		return ts.sink.count(notify.CategoryGameMode) == 1
	})

	sess, ok := ts.Sessions().LookupID(id)
	if !ok || sess.GameMode != "creative" {
		t.Fatalf("session game mode not updated: %+v", sess)
	}
}

func TestLeave(t *testing.T) {
	ts := newTestServer(t, nil, "")
	id, _ := ts.join(t, "Erin")
	if ts.Metrics().OnlinePlayers.Load() != 1 {
		t.Fatalf("online gauge not updated")
	}

	ts.Leave(id)
	if err := ts.WaitReady(context.Background()); err != nil {
		t.Fatalf("WaitReady: %v", err)
	}
	if ts.Sessions().Count() != 0 || ts.Metrics().OnlinePlayers.Load() != 0 {
		t.Fatalf("session not removed")
	}
	if ts.Gate().Tracked() != 0 {
		t.Fatalf("gate still tracks the player")
	}
}

func TestServeConsole(t *testing.T) {
	ts := newTestServer(t, nil, "")
	in := strings.NewReader("join Frank 198.51.100.2\njoin Gina\nwho\nhistory Frank\nfly\n")
	if err := ts.ServeConsole(context.Background(), in); err != nil {
		t.Fatalf("ServeConsole: %v", err)
	}
	eventually(t, "history reply", func() bool {
		return strings.Contains(ts.output(), "Frank has a clean history.")
	})
	out := ts.output()
	for _, want := range []string{"Frank joined.", "2 online: Frank, Gina", "Unknown command."} {
		if !strings.Contains(out, want) {
			t.Errorf("console output missing %q:\n%s", want, out)
		}
	}
}

func (ts *testServer) output() string {
	w := ts.Server.console.out.(*lockedWriter)
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.w.String()
}

func TestReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "moderation.yaml")
	if err := os.WriteFile(path, []byte("punishments:\n  appeal-url: https://old.example\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	settings, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	ts := newTestServer(t, settings, path)

	staff := OfflineID("Helen").String()
	data := "punishments:\n  appeal-url: https://new.example\nstaff:\n  " + staff + ": [\"*\"]\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := ts.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if got := ts.Settings().Punishments.AppealURL; got != "https://new.example" {
		t.Fatalf("appeal url not reloaded: %q", got)
	}
	if ok, _ := ts.grants.HasCapability(OfflineID("Helen"), "moderation.punish"); !ok {
		t.Fatalf("grants not reloaded")
	}

	if err := os.WriteFile(path, []byte("ranks:\n  mode: ladder\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := ts.Reload(); err == nil {
		t.Fatalf("expected invalid config to be rejected")
	}
	if got := ts.Settings().Punishments.AppealURL; got != "https://new.example" {
		t.Fatalf("failed reload replaced settings: %q", got)
	}
}
