package rbac

import (
	"testing"

	"github.com/google/uuid"
)

func TestGrants(t *testing.T) {
	admin := uuid.New()
	helper := uuid.New()
	g := NewGrants(map[uuid.UUID][]string{
		admin:  {"*"},
		helper: {" Moderation.Inspect "},
	})

	tests := []struct {
		name string
		id   uuid.UUID
		cap  string
		want bool
	}{
		{"wildcard", admin, CapPunish, true},
		{"explicit grant normalised", helper, CapInspect, true},
		{"missing grant", helper, CapPunish, false},
		{"unknown player", uuid.New(), CapInspect, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := g.HasCapability(tt.id, tt.cap)
			if err != nil {
				t.Fatalf("HasCapability: %v", err)
			}
			if got != tt.want {
				t.Errorf("HasCapability(%s) = %v, want %v", tt.cap, got, tt.want)
			}
		})
	}
}

func TestRequireCapability(t *testing.T) {
	id := uuid.New()
	g := NewGrants(map[uuid.UUID][]string{id: {CapPunish}})

	if msg := RequireCapability(g, id, CapPunish); msg != "" {
		t.Errorf("expected allow, got %q", msg)
	}
	if msg := RequireCapability(g, id, CapRevoke); msg != "No permission." {
		t.Errorf("expected denial, got %q", msg)
	}
	if msg := RequireCapability(nil, id, CapPunish); msg == "" {
		t.Error("nil checker must deny")
	}
	if msg := RequireCapability(nil, id, ""); msg != "" {
		t.Error("empty capability must allow")
	}
}

func TestGrantsReplace(t *testing.T) {
	id := uuid.New()
	g := NewGrants(map[uuid.UUID][]string{id: {CapPunish}})
	g.Replace(nil)
	if ok, _ := g.HasCapability(id, CapPunish); ok {
		t.Error("grant survived Replace")
	}
}

func TestDefaultCommandCapabilities(t *testing.T) {
	caps := DefaultCommandCapabilities()
	for _, cmd := range []string{"ban", "tempban", "mute", "tempmute", "kick", "warn", "unban", "unmute", "history", "alts"} {
		if caps[cmd] == "" {
			t.Errorf("command %q has no capability", cmd)
		}
	}
}
