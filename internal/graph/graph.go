// Package graph builds the author interaction graph: nodes carrying comment ledgers,
// a raw multigraph of interactions, and its collapse into a weighted simple graph.
package graph

import (
	"fmt"
	"iter"

	"github.com/starford/commentnet/internal/apperr"
	"github.com/starford/commentnet/internal/models"
)

// Multiplicity tells whether a graph still holds one edge per interaction.
type Multiplicity string

const (
	Multi  Multiplicity = "multi"
	Simple Multiplicity = "simple"
)

// Graph is a set of authors and the edges between them. It is not safe for concurrent
// mutation; after Freeze it only serves reads and may be shared between goroutines.
type Graph struct {
	directed     bool
	multiplicity Multiplicity

	nodes map[string]*Node
	order []*Node
	edges []*Edge

	frozen  bool
	degrees map[string]int
}

// New returns an empty multigraph.
func New(directed bool) *Graph {
	return &Graph{
		directed:     directed,
		multiplicity: Multi,
		nodes:        make(map[string]*Node),
	}
}

func (g *Graph) Directed() bool             { return g.directed }
func (g *Graph) Multiplicity() Multiplicity { return g.multiplicity }
func (g *Graph) Frozen() bool               { return g.frozen }
func (g *Graph) NumNodes() int              { return len(g.order) }
func (g *Graph) NumEdges() int              { return len(g.edges) }

// AddNode inserts n. Node ids are unique within a graph.
func (g *Graph) AddNode(n *Node) error {
	if g.frozen {
		return fmt.Errorf("add node %q: %w", n.ID(), apperr.ErrReadOnly)
	}
	if _, ok := g.nodes[n.ID()]; ok {
		return fmt.Errorf("add node %q: %w", n.ID(), apperr.ErrConflict)
	}
	g.addNode(n)
	return nil
}

func (g *Graph) addNode(n *Node) {
	g.nodes[n.ID()] = n
	g.order = append(g.order, n)
}

// Node looks up an author by id.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// AddEdge appends a raw interaction. Both endpoints must already be in the graph and
// the graph must not have been collapsed.
func (g *Graph) AddEdge(rec models.EdgeRecord) error {
	if g.frozen {
		return fmt.Errorf("add edge %s -> %s: %w", rec.Source, rec.Target, apperr.ErrReadOnly)
	}
	if g.multiplicity != Multi {
		return fmt.Errorf("add edge %s -> %s: graph is collapsed: %w", rec.Source, rec.Target, apperr.ErrConflict)
	}
	if _, ok := g.nodes[rec.Source]; !ok {
		return fmt.Errorf("add edge: %w", apperr.IntegrityWarning{Source: rec.Source, Target: rec.Target, Reason: apperr.ReasonUnknownSource}.Err())
	}
	if _, ok := g.nodes[rec.Target]; !ok {
		return fmt.Errorf("add edge: %w", apperr.IntegrityWarning{Source: rec.Source, Target: rec.Target, Reason: apperr.ReasonUnknownTarget}.Err())
	}
	g.edges = append(g.edges, newRawEdge(rec))
	return nil
}

// AllNodes yields nodes in insertion order. The sequence can be ranged over repeatedly.
func (g *Graph) AllNodes() iter.Seq[*Node] {
	return func(yield func(*Node) bool) {
		for _, n := range g.order {
			if !yield(n) {
				return
			}
		}
	}
}

// AllEdges yields edges in insertion order. The sequence can be ranged over repeatedly.
func (g *Graph) AllEdges() iter.Seq[*Edge] {
	return func(yield func(*Edge) bool) {
		for _, e := range g.edges {
			if !yield(e) {
				return
			}
		}
	}
}

// Degree returns the number of edges incident to id; a self loop counts twice.
func (g *Graph) Degree(id string) int {
	if g.degrees != nil {
		return g.degrees[id]
	}
	d := 0
	for _, e := range g.edges {
		if e.Source == id {
			d++
		}
		if e.Target == id {
			d++
		}
	}
	return d
}

// Incident returns the edges touching id, in insertion order.
func (g *Graph) Incident(id string) []*Edge {
	var out []*Edge
	for _, e := range g.edges {
		if e.Source == id || e.Target == id {
			out = append(out, e)
		}
	}
	return out
}

// CountEdgesIn returns the number of interactions dated inside r. Collapsing does not
// change the result because collapsed edges keep their occurrences.
func (g *Graph) CountEdgesIn(r models.DateRange) int {
	if r.Empty() {
		return 0
	}
	n := 0
	for _, e := range g.edges {
		n += e.CountIn(r)
	}
	return n
}

// Freeze makes the graph read-only. Node ledgers are sorted and their stats cached so
// that concurrent readers never write.
func (g *Graph) Freeze() {
	if g.frozen {
		return
	}
	for _, n := range g.order {
		n.Freeze()
	}
	g.degrees = g.degreeMap()
	g.frozen = true
}

func (g *Graph) degreeMap() map[string]int {
	deg := make(map[string]int, len(g.order))
	for _, e := range g.edges {
		deg[e.Source]++
		deg[e.Target]++
	}
	return deg
}

// clone copies the graph structure. Nodes are shared, edges are copied.
func (g *Graph) clone() *Graph {
	c := New(g.directed)
	c.multiplicity = g.multiplicity
	for _, n := range g.order {
		c.addNode(n)
	}
	c.edges = make([]*Edge, len(g.edges))
	for i, e := range g.edges {
		c.edges[i] = e.Clone()
	}
	return c
}
