package datastore

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/NicolasHaas/gomoderate/pkg/model"
)

// History merges every record kept for a player, newest first.
func (s *baseProvider) History(ctx context.Context, target uuid.UUID) ([]model.HistoryEntry, error) {
	var out []model.HistoryEntry

	lists := []func(context.Context, uuid.UUID) ([]model.Punishment, error){
		s.ListBans, s.ListMutes, s.ListKicks, s.ListWarnings,
	}
	for _, list := range lists {
		records, err := list(ctx, target)
		if err != nil {
			return nil, err
		}
		for _, p := range records {
			out = append(out, model.HistoryEntry{
				Kind:      p.Kind,
				ID:        p.ID,
				Reason:    p.Reason,
				Staff:     p.Staff,
				StaffName: p.StaffName,
				Type:      p.Type,
				CreatedAt: p.CreatedAt,
				ExpiresAt: p.ExpiresAt,
				Active:    p.Active,
			})
		}
	}

	notes, err := s.ListNotes(ctx, target)
	if err != nil {
		return nil, err
	}
	for _, n := range notes {
		out = append(out, model.HistoryEntry{
			Kind:      model.KindNote,
			ID:        n.ID,
			Reason:    n.Message,
			Staff:     n.Staff,
			StaffName: n.StaffName,
			CreatedAt: n.CreatedAt,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}
