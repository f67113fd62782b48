package assessment

import (
	"github.com/jonathan/values-report/internal/catalog"
)

// Bucket is an importance category assigned while sorting.
type Bucket string

// Importance buckets.
const (
	BucketVery     Bucket = "very"
	BucketSomewhat Bucket = "somewhat"
	BucketNot      Bucket = "not"
)

// ParseBucket converts user input into a Bucket.
func ParseBucket(s string) (Bucket, error) {
	switch Bucket(s) {
	case BucketVery, BucketSomewhat, BucketNot:
		return Bucket(s), nil
	default:
		return "", reject(ErrInvalidBucket, "unknown importance %q: choose %q, %q or %q", s, BucketVery, BucketSomewhat, BucketNot)
	}
}

// Buckets holds categorized values in the order they were sorted.
type Buckets struct {
	Very     []catalog.ValueItem `json:"very"`
	Somewhat []catalog.ValueItem `json:"somewhat"`
	Not      []catalog.ValueItem `json:"not"`
}

func (b Buckets) clone() Buckets {
	return Buckets{
		Very:     cloneItems(b.Very),
		Somewhat: cloneItems(b.Somewhat),
		Not:      cloneItems(b.Not),
	}
}

type sortFlow struct {
	queue         []catalog.ValueItem
	next          int
	buckets       Buckets
	placed        map[string]Bucket
	veryImportant []catalog.ValueItem
	topTen        []catalog.ValueItem
	ranked        []catalog.ValueItem
}

func newSortFlow(queue []catalog.ValueItem) *sortFlow {
	return &sortFlow{
		queue:  queue,
		placed: make(map[string]Bucket, len(queue)),
	}
}

func (f *sortFlow) path() Path { return PathSort }

func (f *sortFlow) done() bool { return f.next >= len(f.queue) }

func (f *sortFlow) snapshot() {
	f.veryImportant = cloneItems(f.buckets.Very)
	if f.veryImportant == nil {
		f.veryImportant = []catalog.ValueItem{}
	}
}

func (f *sortFlow) rankedValues() []catalog.RankedValue {
	out := make([]catalog.RankedValue, len(f.ranked))
	for i, item := range f.ranked {
		out[i] = catalog.RankedValue{Value: item, Rank: i + 1}
	}
	return out
}

// sortFlowAt returns the sort payload when the state is at stage.
func (s *State) sortFlowAt(stage Stage, action string) (*sortFlow, error) {
	if err := s.requireStage(stage, action); err != nil {
		return nil, err
	}
	sf, ok := s.flow.(*sortFlow)
	if !ok {
		return nil, reject(ErrWrongStage, "cannot %s on the %s path", action, s.flow.path())
	}
	return sf, nil
}

// Current returns the next value waiting to be categorized.
func (s *State) Current() (catalog.ValueItem, bool) {
	sf, err := s.sortFlowAt(StageSorting, "sort")
	if err != nil || sf.done() {
		return catalog.ValueItem{}, false
	}
	return sf.queue[sf.next], true
}

// Progress reports how many values have been categorized out of the total.
func (s *State) Progress() (done, total int) {
	sf, ok := s.flow.(*sortFlow)
	if !ok {
		return 0, 0
	}
	return sf.next, len(sf.queue)
}

// Categorize places the current value into a bucket and advances. When the
// last value is placed, the "very important" bucket is snapshotted and the
// assessment moves to ten-selection.
func (s *State) Categorize(valueID string, bucket Bucket) error {
	sf, err := s.sortFlowAt(StageSorting, "categorize values")
	if err != nil {
		return err
	}
	if _, err := ParseBucket(string(bucket)); err != nil {
		return err
	}
	if !s.catalog.Contains(valueID) {
		return reject(ErrUnknownValue, "value %q does not exist", valueID)
	}
	if prev, ok := sf.placed[valueID]; ok {
		return reject(ErrAlreadyCategorized, "value %q was already marked %q", valueID, prev)
	}
	current := sf.queue[sf.next]
	if current.ID != valueID {
		return reject(ErrOutOfOrder, "value %q is not the one being sorted; categorize %q first", valueID, current.ID)
	}

	switch bucket {
	case BucketVery:
		sf.buckets.Very = append(sf.buckets.Very, current)
	case BucketSomewhat:
		sf.buckets.Somewhat = append(sf.buckets.Somewhat, current)
	case BucketNot:
		sf.buckets.Not = append(sf.buckets.Not, current)
	}
	sf.placed[valueID] = bucket
	sf.next++

	if sf.done() {
		sf.snapshot()
		s.stage = StageTenSelection
	}
	return nil
}

// Buckets returns a copy of the categorized values.
func (s *State) Buckets() Buckets {
	sf, ok := s.flow.(*sortFlow)
	if !ok {
		return Buckets{}
	}
	return sf.buckets.clone()
}

// VeryImportant returns the snapshot taken when sorting completed.
func (s *State) VeryImportant() []catalog.ValueItem {
	sf, ok := s.flow.(*sortFlow)
	if !ok {
		return nil
	}
	return cloneItems(sf.veryImportant)
}

// SelectTen adds a very-important value to the top ten. An eleventh selection
// is rejected with ErrCapacityExceeded and leaves the ten unchanged.
func (s *State) SelectTen(valueID string) error {
	sf, err := s.sortFlowAt(StageTenSelection, "select top-ten values")
	if err != nil {
		return err
	}
	if indexOf(sf.veryImportant, valueID) < 0 {
		return s.ineligible(valueID, "very important values")
	}
	if indexOf(sf.topTen, valueID) >= 0 {
		return reject(ErrAlreadySelected, "value %q is already selected", valueID)
	}
	if len(sf.topTen) >= TopTenSize {
		return reject(ErrCapacityExceeded, "you can only select %d values; deselect one before selecting another", TopTenSize)
	}
	sf.topTen = append(cloneItems(sf.topTen), sf.veryImportant[indexOf(sf.veryImportant, valueID)])
	return nil
}

// DeselectTen removes a value from the top ten, preserving the order of the rest.
func (s *State) DeselectTen(valueID string) error {
	sf, err := s.sortFlowAt(StageTenSelection, "deselect top-ten values")
	if err != nil {
		return err
	}
	i := indexOf(sf.topTen, valueID)
	if i < 0 {
		return reject(ErrNotSelected, "value %q is not selected", valueID)
	}
	sf.topTen = removeAt(sf.topTen, i)
	return nil
}

// ToggleTen selects an unselected value or deselects a selected one.
func (s *State) ToggleTen(valueID string) error {
	sf, err := s.sortFlowAt(StageTenSelection, "select top-ten values")
	if err != nil {
		return err
	}
	if indexOf(sf.topTen, valueID) >= 0 {
		return s.DeselectTen(valueID)
	}
	return s.SelectTen(valueID)
}

// ConfirmTen moves to ranking once exactly ten values are selected.
func (s *State) ConfirmTen() error {
	sf, err := s.sortFlowAt(StageTenSelection, "confirm the top ten")
	if err != nil {
		return err
	}
	if len(sf.veryImportant) < TopTenSize {
		return reject(ErrNotEnoughCandidates,
			"you marked %d values as very important; at least %d are needed to continue", len(sf.veryImportant), TopTenSize)
	}
	if len(sf.topTen) != TopTenSize {
		return reject(ErrIncomplete, "please select exactly %d values; you've selected %d", TopTenSize, len(sf.topTen))
	}
	s.stage = StageRanking
	return nil
}

// TopTen returns the current top-ten selection in selection order.
func (s *State) TopTen() []catalog.ValueItem {
	sf, ok := s.flow.(*sortFlow)
	if !ok {
		return nil
	}
	return cloneItems(sf.topTen)
}

// SelectRanked appends a top-ten value to the ranking at the next rank.
func (s *State) SelectRanked(valueID string) error {
	sf, err := s.sortFlowAt(StageRanking, "rank values")
	if err != nil {
		return err
	}
	i := indexOf(sf.topTen, valueID)
	if i < 0 {
		return s.ineligible(valueID, "top ten")
	}
	if indexOf(sf.ranked, valueID) >= 0 {
		return reject(ErrAlreadySelected, "value %q is already ranked", valueID)
	}
	if len(sf.ranked) >= TopFiveSize {
		return reject(ErrCapacityExceeded, "you can only select %d values; deselect one before selecting another", TopFiveSize)
	}
	sf.ranked = append(cloneItems(sf.ranked), sf.topTen[i])
	return nil
}

// RemoveRanked drops a value from the ranking; later values move up so ranks
// stay dense.
func (s *State) RemoveRanked(valueID string) error {
	sf, err := s.sortFlowAt(StageRanking, "remove ranked values")
	if err != nil {
		return err
	}
	i := indexOf(sf.ranked, valueID)
	if i < 0 {
		return reject(ErrNotSelected, "value %q is not ranked", valueID)
	}
	sf.ranked = removeAt(sf.ranked, i)
	return nil
}

// ToggleRanked ranks an unranked value or removes a ranked one.
func (s *State) ToggleRanked(valueID string) error {
	sf, err := s.sortFlowAt(StageRanking, "rank values")
	if err != nil {
		return err
	}
	if indexOf(sf.ranked, valueID) >= 0 {
		return s.RemoveRanked(valueID)
	}
	return s.SelectRanked(valueID)
}

// MoveRanked moves a ranked value to toRank, shifting the values between its
// old and new positions, the way a drag-and-drop reorder does.
func (s *State) MoveRanked(valueID string, toRank int) error {
	sf, err := s.sortFlowAt(StageRanking, "reorder ranked values")
	if err != nil {
		return err
	}
	from := indexOf(sf.ranked, valueID)
	if from < 0 {
		return reject(ErrNotSelected, "value %q is not ranked", valueID)
	}
	if toRank < 1 || toRank > len(sf.ranked) {
		return reject(ErrInvalidRank, "rank %d is out of range 1..%d", toRank, len(sf.ranked))
	}

	moved := sf.ranked[from]
	reordered := removeAt(sf.ranked, from)
	to := toRank - 1
	reordered = append(reordered[:to], append([]catalog.ValueItem{moved}, reordered[to:]...)...)
	sf.ranked = reordered
	return nil
}

// Ranked returns the current ranking with dense ranks 1..N.
func (s *State) Ranked() []catalog.RankedValue {
	sf, ok := s.flow.(*sortFlow)
	if !ok {
		return nil
	}
	return sf.rankedValues()
}
