package vectorindex

import (
	"errors"
	"fmt"
	"sort"
)

var ErrDimensionMismatch = errors.New("vector dimension mismatch")

type Entry struct {
	DocID  string
	Text   string
	Vector []float64
}

type Match struct {
	DocID    string
	Text     string
	Distance float64
	Score    float64
}

// Index is an exact nearest-neighbour index over the entries it was built
// with. It is immutable after New and safe for concurrent queries.
type Index struct {
	entries []Entry
	metric  Metric
}

func New(entries []Entry, metric Metric) *Index {
	if metric.Distance == nil {
		metric = Cosine
	}
	return &Index{entries: entries, metric: metric}
}

func (idx *Index) Len() int {
	return len(idx.entries)
}

// Query returns at most maxResults entries ordered by ascending distance.
// Equal distances keep insertion order. Every entry must have the length of
// vector, otherwise Query fails with ErrDimensionMismatch.
func (idx *Index) Query(vector []float64, maxResults int) ([]Match, error) {
	if maxResults <= 0 || len(idx.entries) == 0 {
		return []Match{}, nil
	}
	matches := make([]Match, 0, len(idx.entries))
	for _, entry := range idx.entries {
		if len(entry.Vector) != len(vector) {
			return nil, fmt.Errorf("%w: query has %d dimensions, segment of %s has %d",
				ErrDimensionMismatch, len(vector), entry.DocID, len(entry.Vector))
		}
		d := idx.metric.Distance(vector, entry.Vector)
		matches = append(matches, Match{
			DocID:    entry.DocID,
			Text:     entry.Text,
			Distance: d,
			Score:    idx.metric.Score(d),
		})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Distance < matches[j].Distance
	})
	if maxResults < len(matches) {
		matches = matches[:maxResults]
	}
	return matches, nil
}
