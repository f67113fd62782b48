package assessment

import (
	"github.com/jonathan/values-report/internal/catalog"
)

// directFlow holds five rank slots filled by search-and-assign.
type directFlow struct {
	slots [TopFiveSize]*catalog.ValueItem
}

func (f *directFlow) path() Path { return PathDirect }

func (f *directFlow) slotOf(id string) int {
	for i, v := range f.slots {
		if v != nil && v.ID == id {
			return i
		}
	}
	return -1
}

func (f *directFlow) emptyRanks() []int {
	var missing []int
	for i, v := range f.slots {
		if v == nil {
			missing = append(missing, i+1)
		}
	}
	return missing
}

func (f *directFlow) rankedValues() []catalog.RankedValue {
	out := make([]catalog.RankedValue, 0, TopFiveSize)
	for i, v := range f.slots {
		if v != nil {
			out = append(out, catalog.RankedValue{Value: *v, Rank: i + 1})
		}
	}
	return out
}

func (s *State) directFlowAt(action string) (*directFlow, error) {
	if err := s.requireStage(StageDirectSelection, action); err != nil {
		return nil, err
	}
	df, ok := s.flow.(*directFlow)
	if !ok {
		return nil, reject(ErrWrongStage, "cannot %s on the %s path", action, s.flow.path())
	}
	return df, nil
}

// Assign puts a value into the slot for rank. If the value already occupies
// another slot it is moved, so each value appears at most once.
func (s *State) Assign(valueID string, rank int) error {
	df, err := s.directFlowAt("assign values")
	if err != nil {
		return err
	}
	if rank < 1 || rank > TopFiveSize {
		return reject(ErrInvalidRank, "rank %d is out of range 1..%d", rank, TopFiveSize)
	}
	item, err := s.catalog.Lookup(valueID)
	if err != nil {
		return reject(ErrUnknownValue, "value %q does not exist", valueID)
	}

	if prev := df.slotOf(valueID); prev >= 0 {
		df.slots[prev] = nil
	}
	df.slots[rank-1] = &item
	return nil
}

// Clear empties the slot for rank. Clearing an empty slot is a no-op.
func (s *State) Clear(rank int) error {
	df, err := s.directFlowAt("clear a rank")
	if err != nil {
		return err
	}
	if rank < 1 || rank > TopFiveSize {
		return reject(ErrInvalidRank, "rank %d is out of range 1..%d", rank, TopFiveSize)
	}
	df.slots[rank-1] = nil
	return nil
}

// Slots returns the five direct-entry slots indexed by rank-1; empty slots
// are nil.
func (s *State) Slots() []*catalog.ValueItem {
	df, ok := s.flow.(*directFlow)
	if !ok {
		return nil
	}
	out := make([]*catalog.ValueItem, TopFiveSize)
	for i, v := range df.slots {
		if v != nil {
			item := *v
			out[i] = &item
		}
	}
	return out
}

// Search looks up candidate values for direct entry.
func (s *State) Search(query string) ([]catalog.ValueItem, error) {
	if _, err := s.directFlowAt("search values"); err != nil {
		return nil, err
	}
	return s.catalog.Search(query, DirectSearchLimit), nil
}
