// Package metrics tracks moderation runtime statistics.
package metrics

import (
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/NicolasHaas/gomoderate/pkg/model"
)

// Metrics tracks moderation statistics.
// All counters use atomic operations for lock-free concurrent access.
type Metrics struct {
	startTime time.Time

	// Punishment counters
	Bans        atomic.Int64 // bans persisted (player, ip and name)
	Mutes       atomic.Int64 // mutes persisted
	Kicks       atomic.Int64 // kicks persisted
	Warnings    atomic.Int64 // warnings persisted
	Revocations atomic.Int64 // unban/unmute requests that lifted something

	// Command outcomes
	CommandsDenied atomic.Int64 // usage, authority and resolution failures
	StorageErrors  atomic.Int64 // record store failures
	NotifyFailures atomic.Int64 // notification sink failures

	// Gate counters
	LoginsChecked atomic.Int64 // login checks run
	LoginsDenied  atomic.Int64 // logins refused by an active ban
	ChatDenied    atomic.Int64 // chat messages blocked by a mute
	ChatHeld      atomic.Int64 // chat messages held on a cache miss

	// Population
	OnlinePlayers atomic.Int64 // sessions currently tracked
}

// New creates a new Metrics instance with the start time set to now.
func New() *Metrics {
	return &Metrics{
		startTime: time.Now(),
	}
}

// Punished bumps the counter for kind.
func (m *Metrics) Punished(kind model.Kind) {
	if m == nil {
		return
	}
	switch kind {
	case model.KindBan:
		m.Bans.Add(1)
	case model.KindMute:
		m.Mutes.Add(1)
	case model.KindKick:
		m.Kicks.Add(1)
	case model.KindWarning:
		m.Warnings.Add(1)
	}
}

// Inc adds one to c when m is non-nil. It lets callers treat a nil
// *Metrics as "metrics disabled".
func (m *Metrics) Inc(c func(*Metrics) *atomic.Int64) {
	if m == nil {
		return
	}
	c(m).Add(1)
}

// Snapshot is a point-in-time view of all metrics as a serializable struct.
type Snapshot struct {
	Uptime        string `json:"uptime"`
	UptimeSeconds int64  `json:"uptime_seconds"`

	Bans        int64 `json:"bans"`
	Mutes       int64 `json:"mutes"`
	Kicks       int64 `json:"kicks"`
	Warnings    int64 `json:"warnings"`
	Revocations int64 `json:"revocations"`

	CommandsDenied int64 `json:"commands_denied"`
	StorageErrors  int64 `json:"storage_errors"`
	NotifyFailures int64 `json:"notify_failures"`

	LoginsChecked int64 `json:"logins_checked"`
	LoginsDenied  int64 `json:"logins_denied"`
	ChatDenied    int64 `json:"chat_denied"`
	ChatHeld      int64 `json:"chat_held"`

	OnlinePlayers int64 `json:"online_players"`
}

// Snapshot returns a read-consistent snapshot of all metrics.
func (m *Metrics) Snapshot() Snapshot {
	uptime := time.Since(m.startTime)
	return Snapshot{
		Uptime:         uptime.Truncate(time.Second).String(),
		UptimeSeconds:  int64(uptime.Seconds()),
		Bans:           m.Bans.Load(),
		Mutes:          m.Mutes.Load(),
		Kicks:          m.Kicks.Load(),
		Warnings:       m.Warnings.Load(),
		Revocations:    m.Revocations.Load(),
		CommandsDenied: m.CommandsDenied.Load(),
		StorageErrors:  m.StorageErrors.Load(),
		NotifyFailures: m.NotifyFailures.Load(),
		LoginsChecked:  m.LoginsChecked.Load(),
		LoginsDenied:   m.LoginsDenied.Load(),
		ChatDenied:     m.ChatDenied.Load(),
		ChatHeld:       m.ChatHeld.Load(),
		OnlinePlayers:  m.OnlinePlayers.Load(),
	}
}

// JSON returns the metrics snapshot as a JSON string.
func (m *Metrics) JSON() string {
	data, err := json.MarshalIndent(m.Snapshot(), "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// LogSummary writes a periodic metrics summary to the logger.
func (m *Metrics) LogSummary() {
	s := m.Snapshot()
	slog.Info("metrics",
		"uptime", s.Uptime,
		"online", s.OnlinePlayers,
		"bans", s.Bans,
		"mutes", s.Mutes,
		"kicks", s.Kicks,
		"warnings", s.Warnings,
		"logins_denied", s.LoginsDenied,
		"chat_denied", s.ChatDenied,
		"storage_errors", s.StorageErrors,
		"notify_failures", s.NotifyFailures,
	)
}

// StartPeriodicLog starts a goroutine that logs metrics every interval.
// It stops when the done channel is closed.
func (m *Metrics) StartPeriodicLog(interval time.Duration, done <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				m.LogSummary()
			}
		}
	}()
}
