// Package catalog holds the immutable set of personal values that users sort,
// select and rank during an assessment.
package catalog

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"

	"github.com/jonathan/values-report/internal/schemas"
)

//go:embed values.json
var defaultValues []byte

//go:embed catalog.schema.json
var catalogSchema []byte

// ValueItem is a single assessable personal value.
type ValueItem struct {
	ID               string `json:"id"`
	Text             string `json:"text"`
	Description      string `json:"description"`
	SchwartzCategory string `json:"schwartz_category"`
	GouveiaCategory  string `json:"gouveia_category"`
}

// RankedValue pairs a value with its 1-based rank among the final five.
type RankedValue struct {
	Value ValueItem `json:"value"`
	Rank  int       `json:"rank"`
}

// Selection is the persisted form of a ranked value: only the id and rank.
type Selection struct {
	ValueID string `json:"id" validate:"required"`
	Rank    int    `json:"rank" validate:"min=1,max=5"`
}

// document is the on-disk shape of values.json
type document struct {
	Version int         `json:"version"`
	Values  []ValueItem `json:"values"`
}

// Catalog is a read-only, ordered collection of values indexed by id.
// A Catalog is safe for concurrent use because nothing mutates it after Load.
type Catalog struct {
	items []ValueItem
	index map[string]int
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
	defaultErr     error
)

// Default returns the process-wide catalog built from the embedded values.json.
// It panics if the embedded document is invalid, which is a build defect.
func Default() *Catalog {
	defaultOnce.Do(func() {
		defaultCatalog, defaultErr = Load(defaultValues)
	})
	if defaultErr != nil {
		panic(fmt.Sprintf("embedded catalog is invalid: %v", defaultErr))
	}
	return defaultCatalog
}

// Load builds a catalog from a JSON document, validating it against the
// catalog schema and rejecting duplicate ids.
func Load(data []byte) (*Catalog, error) {
	schema, err := schemas.Compile("catalog.schema.json", catalogSchema)
	if err != nil {
		return nil, &LoadError{Message: "invalid catalog schema", Cause: err}
	}
	if err := schema.Validate("values.json", data); err != nil {
		return nil, &LoadError{Message: "catalog document failed validation", Cause: err}
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &LoadError{Message: "failed to parse catalog document", Cause: err}
	}

	return New(doc.Values)
}

// New builds a catalog from items in the given order.
func New(items []ValueItem) (*Catalog, error) {
	c := &Catalog{
		items: make([]ValueItem, len(items)),
		index: make(map[string]int, len(items)),
	}
	copy(c.items, items)

	for i, item := range c.items {
		if item.ID == "" {
			return nil, &LoadError{Message: fmt.Sprintf("value at position %d has an empty id", i)}
		}
		if _, dup := c.index[item.ID]; dup {
			return nil, &LoadError{Message: fmt.Sprintf("duplicate value id %q", item.ID)}
		}
		c.index[item.ID] = i
	}

	return c, nil
}

// Len returns the number of values in the catalog.
func (c *Catalog) Len() int {
	return len(c.items)
}

// Items returns a copy of every value in catalog order.
func (c *Catalog) Items() []ValueItem {
	out := make([]ValueItem, len(c.items))
	copy(out, c.items)
	return out
}

// Contains reports whether id is part of the catalog.
func (c *Catalog) Contains(id string) bool {
	_, ok := c.index[id]
	return ok
}

// Lookup returns the value with the exact id, or a *NotFoundError.
func (c *Catalog) Lookup(id string) (ValueItem, error) {
	i, ok := c.index[id]
	if !ok {
		return ValueItem{}, &NotFoundError{ID: id}
	}
	return c.items[i], nil
}

// Shuffle returns every value exactly once in uniformly random order.
// A nil rng uses the runtime's global source.
func (c *Catalog) Shuffle(rng *rand.Rand) []ValueItem {
	out := c.Items()
	swap := func(i, j int) { out[i], out[j] = out[j], out[i] }
	if rng == nil {
		rand.Shuffle(len(out), swap)
	} else {
		rng.Shuffle(len(out), swap)
	}
	return out
}

// Search returns up to limit values whose label or description contains
// query, case-insensitively, in catalog order. A blank query matches nothing.
func (c *Catalog) Search(query string, limit int) []ValueItem {
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" || limit <= 0 {
		return nil
	}

	var results []ValueItem
	for _, item := range c.items {
		if strings.Contains(strings.ToLower(item.Text), needle) ||
			strings.Contains(strings.ToLower(item.Description), needle) {
			results = append(results, item)
			if len(results) == limit {
				break
			}
		}
	}
	return results
}

// Resolve maps persisted selections back to catalog values. Any unknown id
// fails the whole resolution.
func (c *Catalog) Resolve(selections []Selection) ([]RankedValue, error) {
	ranked := make([]RankedValue, 0, len(selections))
	for _, sel := range selections {
		item, err := c.Lookup(sel.ValueID)
		if err != nil {
			return nil, err
		}
		ranked = append(ranked, RankedValue{Value: item, Rank: sel.Rank})
	}
	return ranked, nil
}

// SortByRank returns a copy of ranked ordered by ascending rank.
func SortByRank(ranked []RankedValue) []RankedValue {
	sorted := make([]RankedValue, len(ranked))
	copy(sorted, ranked)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Rank < sorted[j].Rank
	})
	return sorted
}

// Format renders ranked values as "{rank}. {text} - {description}" lines in
// ascending rank order, the listing handed to content synthesis.
func Format(ranked []RankedValue) string {
	lines := make([]string, 0, len(ranked))
	for _, rv := range SortByRank(ranked) {
		lines = append(lines, fmt.Sprintf("%d. %s - %s", rv.Rank, rv.Value.Text, rv.Value.Description))
	}
	return strings.Join(lines, "\n")
}

// Selections strips ranked values down to their persisted (id, rank) form.
func Selections(ranked []RankedValue) []Selection {
	out := make([]Selection, 0, len(ranked))
	for _, rv := range SortByRank(ranked) {
		out = append(out, Selection{ValueID: rv.Value.ID, Rank: rv.Rank})
	}
	return out
}
