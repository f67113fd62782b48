package assessment

import (
	"github.com/jonathan/values-report/internal/catalog"
)

// Snapshot is a read-only view of a State, shaped for JSON responses.
type Snapshot struct {
	SessionID     string                `json:"session_id"`
	Stage         Stage                 `json:"stage"`
	Path          Path                  `json:"path,omitempty"`
	Current       *catalog.ValueItem    `json:"current,omitempty"`
	Sorted        int                   `json:"sorted"`
	Total         int                   `json:"total"`
	Buckets       *Buckets              `json:"buckets,omitempty"`
	VeryImportant []catalog.ValueItem   `json:"very_important,omitempty"`
	TopTen        []catalog.ValueItem   `json:"top_ten,omitempty"`
	Ranked        []catalog.RankedValue `json:"ranked,omitempty"`
	Slots         []*catalog.ValueItem  `json:"slots,omitempty"`
	TopFive       []catalog.RankedValue `json:"top_five,omitempty"`
}

// Snapshot captures the current state. The returned value shares nothing with
// the State.
func (s *State) Snapshot() Snapshot {
	snap := Snapshot{
		SessionID: s.sessionID,
		Stage:     s.stage,
	}
	if p, ok := s.Path(); ok {
		snap.Path = p
	}

	switch s.flow.(type) {
	case *sortFlow:
		if cur, ok := s.Current(); ok {
			snap.Current = &cur
		}
		snap.Sorted, snap.Total = s.Progress()
		buckets := s.Buckets()
		snap.Buckets = &buckets
		snap.VeryImportant = s.VeryImportant()
		snap.TopTen = s.TopTen()
		snap.Ranked = s.Ranked()
	case *directFlow:
		snap.Slots = s.Slots()
	}

	if top, err := s.TopFive(); err == nil {
		snap.TopFive = top
	}
	return snap
}
