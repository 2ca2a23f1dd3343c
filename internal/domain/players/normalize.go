// Package players merges upstream ranking lists into one record per player and
// orders those records for emission.
package players

import (
	"fmt"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/okian/rankindex/internal/domain/model"
)

// Normalizer accumulates category lists into per-player records.
// It is not safe for concurrent use.
type Normalizer struct {
	records map[string]*model.PlayerRecord
	lower   cases.Caser
}

// NewNormalizer returns an empty Normalizer. sizeHint pre-sizes the record set.
func NewNormalizer(sizeHint int) *Normalizer {
	if sizeHint < 0 {
		sizeHint = 0
	}
	return &Normalizer{
		records: make(map[string]*model.PlayerRecord, sizeHint),
		lower:   cases.Lower(language.Und),
	}
}

// Add merges one ranked list. Positions are assigned 1, 2, 3, ... in input
// order. A name repeated within the same list keeps its last position.
func (n *Normalizer) Add(list model.CategoryList) error {
	if list.Category < 0 || list.Category >= model.NumCategories {
		return fmt.Errorf("%w: %d", ErrUnknownCategory, int(list.Category))
	}
	for i, e := range list.Entries {
		rec, ok := n.records[e.Name]
		if !ok {
			rec = &model.PlayerRecord{DisplayName: e.Name, SortKey: n.lower.String(e.Name)}
			n.records[e.Name] = rec
		}
		rec.Ranks[list.Category] = model.RankInfo{Value: e.Value, Position: uint32(i + 1)}
	}
	return nil
}

// Len returns the number of distinct players seen so far.
func (n *Normalizer) Len() int { return len(n.records) }

// Records returns the accumulated records in unspecified order.
func (n *Normalizer) Records() []model.PlayerRecord {
	out := make([]model.PlayerRecord, 0, len(n.records))
	for _, rec := range n.records {
		out = append(out, *rec)
	}
	return out
}

// Normalize merges every list of ds and returns the records sorted by key.
func Normalize(ds model.Dataset) ([]model.PlayerRecord, error) {
	hint := 0
	for _, l := range ds.Lists {
		hint = max(hint, len(l.Entries))
	}
	n := NewNormalizer(hint)
	for _, l := range ds.Lists {
		if err := n.Add(l); err != nil {
			return nil, err
		}
	}
	recs := n.Records()
	Sort(recs)
	return recs, nil
}
