package graph

import (
	"maps"
	"slices"
	"time"

	"github.com/starford/commentnet/internal/models"
)

// Occurrence is one raw interaction folded into an edge.
type Occurrence struct {
	Date   time.Time
	Time   string
	Weight int
}

func compareOccurrences(a, b Occurrence) int {
	if c := a.Date.Compare(b.Date); c != 0 {
		return c
	}
	switch {
	case a.Time < b.Time:
		return -1
	case a.Time > b.Time:
		return 1
	}
	return 0
}

// Edge connects two authors. A raw edge carries exactly one occurrence; a collapsed
// edge carries every occurrence of its pair in chronological order and Weight is
// their count.
type Edge struct {
	Source      string
	Target      string
	Weight      int
	Attrs       map[string]any
	Occurrences []Occurrence
}

func newRawEdge(rec models.EdgeRecord) *Edge {
	w := rec.Weight
	if w <= 0 {
		w = 1
	}
	return &Edge{
		Source:      rec.Source,
		Target:      rec.Target,
		Weight:      w,
		Attrs:       maps.Clone(rec.Attrs),
		Occurrences: []Occurrence{{Date: rec.Date, Time: rec.Time, Weight: w}},
	}
}

// First returns the earliest occurrence.
func (e *Edge) First() Occurrence {
	if len(e.Occurrences) == 0 {
		return Occurrence{}
	}
	return e.Occurrences[0]
}

// Last returns the latest occurrence.
func (e *Edge) Last() Occurrence {
	if len(e.Occurrences) == 0 {
		return Occurrence{}
	}
	return e.Occurrences[len(e.Occurrences)-1]
}

// Attr returns the attribute stored under key.
func (e *Edge) Attr(key string) (any, bool) {
	v, ok := e.Attrs[key]
	return v, ok
}

// CountIn returns how many occurrences fall in r.
func (e *Edge) CountIn(r models.DateRange) int {
	n := 0
	for _, o := range e.Occurrences {
		if r.Contains(o.Date) {
			n++
		}
	}
	return n
}

// Clone returns a deep copy of e.
func (e *Edge) Clone() *Edge {
	c := *e
	c.Attrs = maps.Clone(e.Attrs)
	c.Occurrences = slices.Clone(e.Occurrences)
	return &c
}

// records expands e back into one edge record per occurrence. Attributes are written
// on the earliest record only, which is where a reload will look for them.
func (e *Edge) records() []models.EdgeRecord {
	out := make([]models.EdgeRecord, len(e.Occurrences))
	for i, o := range e.Occurrences {
		out[i] = models.EdgeRecord{Source: e.Source, Target: e.Target, Date: o.Date, Time: o.Time, Weight: o.Weight}
	}
	if len(out) > 0 {
		out[0].Attrs = maps.Clone(e.Attrs)
	}
	return out
}
