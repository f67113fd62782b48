package server

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/jonathan/values-report/internal/assessment"
	"github.com/jonathan/values-report/internal/catalog"
)

// registry holds the in-progress assessment of every live session. Each entry
// carries its own lock so sessions never wait on one another.
type registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	catalog *catalog.Catalog
	ttl     time.Duration
	now     func() time.Time
	rng     func() *rand.Rand // shuffle source for the sort path; nil result uses the global source
}

type entry struct {
	mu       sync.Mutex
	state    *assessment.State
	lastUsed time.Time
}

func newRegistry(c *catalog.Catalog, ttl time.Duration) *registry {
	return &registry{
		entries: make(map[string]*entry),
		catalog: c,
		ttl:     ttl,
		now:     time.Now,
		rng:     func() *rand.Rand { return nil },
	}
}

// with runs fn on the session's assessment while holding its lock, creating
// the assessment on first use.
func (r *registry) with(sessionID string, fn func(*assessment.State) error) error {
	e, err := r.acquire(sessionID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.state)
}

func (r *registry) acquire(sessionID string) (*entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.pruneLocked(now)

	e, ok := r.entries[sessionID]
	if !ok {
		state := assessment.New(r.catalog)
		if err := state.Authorize(sessionID); err != nil {
			return nil, err
		}
		e = &entry{state: state}
		r.entries[sessionID] = e
	}
	e.lastUsed = now
	return e, nil
}

// pruneLocked drops assessments idle for longer than the ttl.
func (r *registry) pruneLocked(now time.Time) {
	for id, e := range r.entries {
		if now.Sub(e.lastUsed) > r.ttl {
			delete(r.entries, id)
		}
	}
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
