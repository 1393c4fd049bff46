package model

import (
	"errors"
	"fmt"
	"strings"
)

var ErrRankIDEmpty = errors.New("rank id must not be empty")
var ErrRankTierNegative = errors.New("rank tier must not be negative")

// StaffRank is one step on the staff ladder. Higher Tier means more authority.
type StaffRank struct {
	ID           string `json:"id" yaml:"id"`
	Tier         int    `json:"tier" yaml:"tier"`
	DisplayName  string `json:"display_name" yaml:"display-name"`
	DisplayColor string `json:"display_color" yaml:"display-color"`
	Permission   string `json:"permission,omitempty" yaml:"permission"` // empty in groups mode
}

// DefaultDisplayColor is used when a rank does not configure a colour.
const DefaultDisplayColor = "#FFFFFF"

// Validate checks the rank fields and fills in display defaults.
func (r *StaffRank) Validate() error {
	r.ID = strings.TrimSpace(r.ID)
	if r.ID == "" {
		return ErrRankIDEmpty
	}
	if r.Tier < 0 {
		return fmt.Errorf("rank %q: %w", r.ID, ErrRankTierNegative)
	}
	if r.DisplayName == "" {
		r.DisplayName = r.ID
	}
	if r.DisplayColor == "" {
		r.DisplayColor = DefaultDisplayColor
	}
	return nil
}

func (r *StaffRank) String() string {
	if r == nil {
		return "none"
	}
	return fmt.Sprintf("%s(%d)", r.ID, r.Tier)
}
