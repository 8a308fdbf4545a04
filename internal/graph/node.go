package graph

import (
	"maps"
	"slices"
	"sort"
	"time"

	"github.com/starford/commentnet/internal/apperr"
	"github.com/starford/commentnet/internal/models"
	"github.com/starford/commentnet/internal/parser"
)

// CorpusStats summarises the comments of one author.
type CorpusStats struct {
	Comments   int
	Tokens     int
	Vocabulary map[string]int // token -> frequency
	ByType     map[string]int // comment "type" attribute -> count
	First      time.Time
	Last       time.Time
}

func (s CorpusStats) clone() CorpusStats {
	s.Vocabulary = maps.Clone(s.Vocabulary)
	s.ByType = maps.Clone(s.ByType)
	return s
}

// StatsQuery selects the comments a CorpusStats call aggregates.
// The zero value asks for the whole ledger, which is the only cached query.
type StatsQuery struct {
	Window *models.DateRange
	Boards []string
	Force  bool
}

func (q StatsQuery) unrestricted() bool {
	return q.Window == nil && len(q.Boards) == 0
}

// Node is one author: an id and its comment ledger.
type Node struct {
	id       string
	comments []models.Comment
	sorted   bool

	stats      CorpusStats
	cacheValid bool
	// computations counts full-ledger aggregations; tests use it to observe the cache.
	computations int
}

// NewNode returns an author with an empty ledger.
func NewNode(id string) *Node {
	return &Node{id: id, sorted: true}
}

// ID returns the author id.
func (n *Node) ID() string { return n.id }

// AddComment parses date (YYYY-MM-DD) and clock (HH:MM[:SS] or empty) and appends the
// comment to the ledger. A malformed field returns a FormatError and nothing is added.
func (n *Node) AddComment(date, clock, text string, attrs map[string]any) error {
	d, err := parser.ParseDate(date)
	if err != nil {
		return &apperr.FormatError{Source: n.id, Field: "date", Err: err}
	}
	t, err := parser.ParseTime(clock)
	if err != nil {
		return &apperr.FormatError{Source: n.id, Field: "time", Err: err}
	}
	n.Append(models.Comment{Date: d, Time: t, Text: text, Attrs: maps.Clone(attrs)})
	return nil
}

// Append adds already-parsed comments to the ledger.
func (n *Node) Append(cs ...models.Comment) {
	if len(cs) == 0 {
		return
	}
	for _, c := range cs {
		if n.sorted && len(n.comments) > 0 && c.Before(n.comments[len(n.comments)-1]) {
			n.sorted = false
		}
		n.comments = append(n.comments, c)
	}
	n.cacheValid = false
}

// CommentCount returns the ledger size.
func (n *Node) CommentCount() int { return len(n.comments) }

// Comments returns the ledger in chronological order. The slice is a copy.
func (n *Node) Comments() []models.Comment {
	n.ensureSorted()
	out := make([]models.Comment, len(n.comments))
	for i, c := range n.comments {
		out[i] = c.Clone()
	}
	return out
}

// CorpusStats aggregates vocabulary and counts over the ledger. A query without window
// and boards is served from the cache unless Force is set or the ledger changed since
// it was computed; restricted queries are always computed fresh and never cached.
func (n *Node) CorpusStats(q StatsQuery) CorpusStats {
	if !q.unrestricted() {
		n.ensureSorted()
		return n.aggregate(q.Window, q.Boards)
	}
	if n.cacheValid && !q.Force {
		return n.stats.clone()
	}
	n.ensureSorted()
	n.stats = n.aggregate(nil, nil)
	n.cacheValid = true
	n.computations++
	return n.stats.clone()
}

// Freeze sorts the ledger and warms the stats cache, after which unforced reads do
// not write to the node.
func (n *Node) Freeze() {
	if !n.cacheValid {
		n.CorpusStats(StatsQuery{})
	}
}

func (n *Node) ensureSorted() {
	if n.sorted {
		return
	}
	slices.SortStableFunc(n.comments, compareComments)
	n.sorted = true
}

func (n *Node) aggregate(window *models.DateRange, boards []string) CorpusStats {
	s := CorpusStats{Vocabulary: map[string]int{}, ByType: map[string]int{}}

	lo, hi := 0, len(n.comments)
	if window != nil {
		if window.Empty() {
			return s
		}
		lo = sort.Search(len(n.comments), func(i int) bool { return !n.comments[i].Date.Before(window.Start) })
		hi = sort.Search(len(n.comments), func(i int) bool { return !n.comments[i].Date.Before(window.End) })
	}

	for _, c := range n.comments[lo:hi] {
		if len(boards) > 0 && !slices.Contains(boards, c.Board()) {
			continue
		}
		if s.Comments == 0 {
			s.First = c.Date
		}
		s.Last = c.Date
		s.Comments++
		if t := c.Type(); t != "" {
			s.ByType[t]++
		}
		for _, tok := range parser.Tokenize(c.Text) {
			s.Vocabulary[tok]++
			s.Tokens++
		}
	}
	return s
}

func compareComments(a, b models.Comment) int {
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
