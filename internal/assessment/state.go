// Package assessment implements the staged values assessment a user walks
// through before a report is generated.
//
// A State moves strictly forward:
//
//	Unauthenticated -> PathSelection -> DirectSelection ------------------------> Finalized
//	                                 \-> Sorting -> TenSelection -> Ranking ---/
//
// Every operation is synchronous and either applies completely or returns a
// *Rejection and leaves the state untouched. A State is not safe for concurrent
// use; callers serialize access per session.
package assessment

import (
	"math/rand/v2"

	"github.com/jonathan/values-report/internal/catalog"
)

// Stage identifies where a session is in the assessment.
type Stage string

// Stages in forward order.
const (
	StageUnauthenticated Stage = "unauthenticated"
	StagePathSelection   Stage = "path_selection"
	StageDirectSelection Stage = "direct_selection"
	StageSorting         Stage = "sorting"
	StageTenSelection    Stage = "ten_selection"
	StageRanking         Stage = "ranking"
	StageFinalized       Stage = "finalized"
)

// Path is the branch chosen at the path-selection point.
type Path string

// Supported paths.
const (
	PathDirect Path = "direct"
	PathSort   Path = "sort"
)

// ParsePath converts user input into a Path.
func ParsePath(s string) (Path, error) {
	switch Path(s) {
	case PathDirect, PathSort:
		return Path(s), nil
	default:
		return "", reject(ErrInvalidPath, "unknown path %q: choose %q or %q", s, PathDirect, PathSort)
	}
}

// Cardinalities of each selection stage.
const (
	TopTenSize        = 10
	TopFiveSize       = 5
	DirectSearchLimit = 10
)

// flow is the path-specific payload of a State. The concrete type is the
// branch tag: *sortFlow or *directFlow.
type flow interface {
	path() Path
}

// State is one session's in-progress assessment.
type State struct {
	catalog   *catalog.Catalog
	sessionID string
	stage     Stage
	flow      flow
	topFive   []catalog.RankedValue
}

// New returns an unauthenticated assessment over the given catalog.
func New(c *catalog.Catalog) *State {
	return &State{
		catalog: c,
		stage:   StageUnauthenticated,
	}
}

// Stage returns the current stage.
func (s *State) Stage() Stage {
	return s.stage
}

// SessionID returns the session handle bound by Authorize.
func (s *State) SessionID() string {
	return s.sessionID
}

// Path returns the chosen path, if any.
func (s *State) Path() (Path, bool) {
	if s.flow == nil {
		return "", false
	}
	return s.flow.path(), true
}

// Authorize binds the assessment to a session and opens path selection.
func (s *State) Authorize(sessionID string) error {
	if err := s.requireStage(StageUnauthenticated, "authorize"); err != nil {
		return err
	}
	if sessionID == "" {
		return reject(ErrMissingSession, "a session id is required to start an assessment")
	}
	s.sessionID = sessionID
	s.stage = StagePathSelection
	return nil
}

// ChoosePath enters the direct-entry or sorting branch. The sort branch
// queues the whole catalog in an order drawn from rng (nil uses the global
// source).
func (s *State) ChoosePath(p Path, rng *rand.Rand) error {
	if err := s.requireStage(StagePathSelection, "choose a path"); err != nil {
		return err
	}

	switch p {
	case PathDirect:
		s.flow = &directFlow{}
		s.stage = StageDirectSelection
	case PathSort:
		sf := newSortFlow(s.catalog.Shuffle(rng))
		s.flow = sf
		s.stage = StageSorting
		if sf.done() {
			sf.snapshot()
			s.stage = StageTenSelection
		}
	default:
		return reject(ErrInvalidPath, "unknown path %q: choose %q or %q", p, PathDirect, PathSort)
	}
	return nil
}

// Finalize freezes the ranked five. It is legal from Ranking with exactly
// five ranked values, or from DirectSelection with every slot filled.
func (s *State) Finalize() ([]catalog.RankedValue, error) {
	var ranked []catalog.RankedValue

	switch f := s.flow.(type) {
	case *sortFlow:
		if err := s.requireStage(StageRanking, "finalize"); err != nil {
			return nil, err
		}
		if len(f.ranked) != TopFiveSize {
			return nil, reject(ErrIncomplete, "please select exactly %d values; you've selected %d", TopFiveSize, len(f.ranked))
		}
		ranked = f.rankedValues()
	case *directFlow:
		if err := s.requireStage(StageDirectSelection, "finalize"); err != nil {
			return nil, err
		}
		if missing := f.emptyRanks(); len(missing) > 0 {
			return nil, reject(ErrIncomplete, "please select all %d values before submitting; empty ranks: %v", TopFiveSize, missing)
		}
		ranked = f.rankedValues()
	case nil:
		return nil, reject(ErrWrongStage, "cannot finalize during %s stage", s.stage)
	}

	s.topFive = ranked
	s.stage = StageFinalized
	return s.TopFive()
}

// TopFive returns a copy of the finalized ranking.
func (s *State) TopFive() ([]catalog.RankedValue, error) {
	if s.stage != StageFinalized {
		return nil, reject(ErrWrongStage, "the assessment is not finalized (stage %s)", s.stage)
	}
	out := make([]catalog.RankedValue, len(s.topFive))
	copy(out, s.topFive)
	return out, nil
}

func (s *State) requireStage(want Stage, action string) error {
	if s.stage != want {
		return reject(ErrWrongStage, "cannot %s during %s stage", action, s.stage)
	}
	return nil
}

// ineligible explains why id cannot be used when it is missing from pool.
func (s *State) ineligible(id, pool string) error {
	if !s.catalog.Contains(id) {
		return reject(ErrUnknownValue, "value %q does not exist", id)
	}
	return reject(ErrNotEligible, "value %q is not in your %s", id, pool)
}

func indexOf(items []catalog.ValueItem, id string) int {
	for i, item := range items {
		if item.ID == id {
			return i
		}
	}
	return -1
}

func removeAt(items []catalog.ValueItem, i int) []catalog.ValueItem {
	out := make([]catalog.ValueItem, 0, len(items)-1)
	out = append(out, items[:i]...)
	return append(out, items[i+1:]...)
}

func cloneItems(items []catalog.ValueItem) []catalog.ValueItem {
	if items == nil {
		return nil
	}
	out := make([]catalog.ValueItem, len(items))
	copy(out, items)
	return out
}
