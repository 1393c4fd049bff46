package model

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestPunishmentValidate(t *testing.T) {
	created := time.UnixMilli(1_700_000_000_000)
	target := uuid.New()

	tests := []struct {
		name    string
		p       Punishment
		wantErr bool
	}{
		{"permanent player ban", Punishment{Target: target, Reason: "x", Type: Permanent, CreatedAt: created}, false},
		{"temporary player ban", Punishment{Target: target, Reason: "x", Type: Temporary, CreatedAt: created, ExpiresAt: created.Add(time.Hour)}, false},
		{"ip only", Punishment{IP: "10.0.0.1", Reason: "x", Type: Permanent, CreatedAt: created}, false},
		{"range only", Punishment{IPRange: "10.0.0.0/24", Reason: "x", Type: Permanent, CreatedAt: created}, false},
		{"no target", Punishment{Reason: "x", Type: Permanent}, true},
		{"empty reason", Punishment{Target: target, Type: Permanent}, true},
		{"permanent with expiry", Punishment{Target: target, Reason: "x", Type: Permanent, ExpiresAt: created}, true},
		{"temporary without expiry", Punishment{Target: target, Reason: "x", Type: Temporary, CreatedAt: created}, true},
		{"temporary expiring in past", Punishment{Target: target, Reason: "x", Type: Temporary, CreatedAt: created, ExpiresAt: created.Add(-time.Second)}, true},
		{"unknown type", Punishment{Target: target, Reason: "x", Type: "SOMETIMES"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.p.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPunishmentActiveAt(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)

	tests := []struct {
		name string
		p    Punishment
		at   time.Time
		want bool
	}{
		{"permanent active", Punishment{Active: true}, now, true},
		{"revoked", Punishment{Active: false}, now, false},
		{"temporary before expiry", Punishment{Active: true, ExpiresAt: now.Add(time.Minute)}, now, true},
		{"temporary at expiry", Punishment{Active: true, ExpiresAt: now}, now, false},
		{"temporary after expiry", Punishment{Active: true, ExpiresAt: now}, now.Add(time.Second), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.p.ActiveAt(tt.at); got != tt.want {
				t.Errorf("ActiveAt() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPunishmentRemaining(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	p := Punishment{Active: true, ExpiresAt: now.Add(90 * time.Minute)}
	if got := p.Remaining(now); got != 90*time.Minute {
		t.Errorf("Remaining() = %v, want 90m", got)
	}
	if got := p.Remaining(now.Add(2 * time.Hour)); got != 0 {
		t.Errorf("Remaining() after expiry = %v, want 0", got)
	}
	perm := Punishment{Active: true}
	if got := perm.Remaining(now); got != 0 {
		t.Errorf("Remaining() permanent = %v, want 0", got)
	}
}

func TestStaffRankValidate(t *testing.T) {
	r := StaffRank{ID: " helper ", Tier: 1}
	if err := r.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
	if r.ID != "helper" || r.DisplayName != "helper" || r.DisplayColor != DefaultDisplayColor {
		t.Errorf("defaults not applied: %+v", r)
	}

	bad := StaffRank{ID: "x", Tier: -1}
	if err := bad.Validate(); err == nil {
		t.Error("expected error for negative tier")
	}
	empty := StaffRank{}
	if err := empty.Validate(); err != ErrRankIDEmpty {
		t.Errorf("Validate() = %v, want %v", err, ErrRankIDEmpty)
	}
}

func TestIssuer(t *testing.T) {
	if !Console().IsConsole() {
		t.Error("Console() should be console")
	}
	p := Issuer{ID: uuid.New(), Name: "mod"}
	if p.IsConsole() {
		t.Error("player issuer reported as console")
	}
	if p.DisplayName() != "mod" || Console().DisplayName() != ConsoleName {
		t.Error("unexpected display names")
	}
}

func TestTypeFor(t *testing.T) {
	if TypeFor(0) != Permanent || TypeFor(-time.Second) != Permanent || TypeFor(time.Second) != Temporary {
		t.Error("TypeFor mismatch")
	}
}
