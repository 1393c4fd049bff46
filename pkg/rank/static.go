package rank

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// StaticGroups is a GroupProvider backed by a fixed table, used when no
// external permission system is attached. The first group listed for a
// player is their primary group. Players missing from the table are
// unverifiable.
type StaticGroups struct {
	mu       sync.RWMutex
	byPlayer map[uuid.UUID][]string
}

// NewStaticGroups builds a provider from player -> groups.
func NewStaticGroups(groups map[uuid.UUID][]string) *StaticGroups {
	s := &StaticGroups{}
	s.Replace(groups)
	return s
}

// Replace swaps the whole table.
func (s *StaticGroups) Replace(groups map[uuid.UUID][]string) {
	table := make(map[uuid.UUID][]string, len(groups))
	for id, g := range groups {
		table[id] = append([]string(nil), g...)
	}
	s.mu.Lock()
	s.byPlayer = table
	s.mu.Unlock()
}

func (s *StaticGroups) lookup(id uuid.UUID) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.byPlayer[id]
	if !ok {
		return nil, ErrUnverifiable
	}
	return g, nil
}

// PrimaryGroup implements GroupProvider.
func (s *StaticGroups) PrimaryGroup(_ context.Context, id uuid.UUID) (string, error) {
	g, err := s.lookup(id)
	if err != nil || len(g) == 0 {
		return "", err
	}
	return g[0], nil
}

// Groups implements GroupProvider.
func (s *StaticGroups) Groups(_ context.Context, id uuid.UUID) ([]string, error) {
	g, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), g...), nil
}
