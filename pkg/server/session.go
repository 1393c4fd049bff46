package server

import (
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/NicolasHaas/gomoderate/pkg/metrics"
	"github.com/NicolasHaas/gomoderate/pkg/model"
)

// Conn is the host's handle for one connected player.
type Conn interface {
	Send(message string)
	Disconnect(message string)
}

type sessionEntry struct {
	session *model.Session
	conn    Conn
}

// SessionManager tracks online players. It implements punish.Directory.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*sessionEntry
	metrics  *metrics.Metrics
}

// NewSessionManager creates a new session manager. m may be nil.
func NewSessionManager(m *metrics.Metrics) *SessionManager {
	return &SessionManager{
		sessions: make(map[uuid.UUID]*sessionEntry),
		metrics:  m,
	}
}

// Add registers a connected player, replacing any previous session with the
// same id.
func (sm *SessionManager) Add(s *model.Session, conn Conn) {
	sm.mu.Lock()
	sm.sessions[s.ID] = &sessionEntry{session: s, conn: conn}
	n := len(sm.sessions)
	sm.mu.Unlock()
	sm.gauge(n)
}

// Remove drops a session and returns it.
func (sm *SessionManager) Remove(id uuid.UUID) (*model.Session, bool) {
	sm.mu.Lock()
	e, ok := sm.sessions[id]
	delete(sm.sessions, id)
	n := len(sm.sessions)
	sm.mu.Unlock()
	sm.gauge(n)
	if !ok {
		return nil, false
	}
	return e.session, true
}

func (sm *SessionManager) gauge(n int) {
	if sm.metrics != nil {
		sm.metrics.OnlinePlayers.Store(int64(n))
	}
}

// Lookup finds an online player by name, ignoring case.
func (sm *SessionManager) Lookup(name string) (*model.Session, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	for _, e := range sm.sessions {
		if strings.EqualFold(e.session.Name, name) {
			return e.session, true
		}
	}
	return nil, false
}

// LookupID finds an online player by id.
func (sm *SessionManager) LookupID(id uuid.UUID) (*model.Session, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	e, ok := sm.sessions[id]
	if !ok {
		return nil, false
	}
	return e.session, true
}

// Online returns all sessions sorted by name (snapshot).
func (sm *SessionManager) Online() []*model.Session {
	sm.mu.RLock()
	result := make([]*model.Session, 0, len(sm.sessions))
	for _, e := range sm.sessions {
		result = append(result, e.session)
	}
	sm.mu.RUnlock()
	sort.Slice(result, func(i, j int) bool {
		return strings.ToLower(result[i].Name) < strings.ToLower(result[j].Name)
	})
	return result
}

// Count returns the number of active sessions.
func (sm *SessionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// Disconnect kicks the player with message and drops the session.
func (sm *SessionManager) Disconnect(id uuid.UUID, message string) {
	sm.mu.RLock()
	e, ok := sm.sessions[id]
	sm.mu.RUnlock()
	if !ok {
		return
	}
	if e.conn != nil {
		e.conn.Disconnect(message)
	}
	sm.Remove(id)
}

// Send delivers a chat line to one player.
func (sm *SessionManager) Send(id uuid.UUID, message string) {
	sm.mu.RLock()
	e, ok := sm.sessions[id]
	sm.mu.RUnlock()
	if ok && e.conn != nil {
		e.conn.Send(message)
	}
}

// Update applies fn to a session under the lock. It reports whether the
// player was online.
func (sm *SessionManager) Update(id uuid.UUID, fn func(s *model.Session)) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	e, ok := sm.sessions[id]
	if ok {
		fn(e.session)
	}
	return ok
}
