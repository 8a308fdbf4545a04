package graph

import (
	"fmt"

	"github.com/starford/commentnet/internal/apperr"
)

// PruneReport counts what Prune removed.
type PruneReport struct {
	Rounds       int
	EdgesRemoved int
	NodesRemoved int
}

// Prune removes edges and nodes rejected by any criterion until nothing changes.
// A round drops rejected edges first, then nodes that a criterion rejects or that lost
// their last edge during this call, together with their incident edges. Nodes that
// were already isolated are only removed by a criterion such as min_degree.
// Running Prune again with the same criteria removes nothing.
func (g *Graph) Prune(criteria ...Criterion) (PruneReport, error) {
	var rep PruneReport
	if g.frozen {
		return rep, fmt.Errorf("prune: %w", apperr.ErrReadOnly)
	}
	if len(criteria) == 0 {
		return rep, nil
	}

	deg := g.degreeMap()
	connected := make(map[string]bool, len(deg))
	for id, d := range deg {
		if d > 0 {
			connected[id] = true
		}
	}

	for {
		rep.Rounds++
		removed := 0

		kept := g.edges[:0]
		for _, e := range g.edges {
			if keepEdge(criteria, e) {
				kept = append(kept, e)
				continue
			}
			deg[e.Source]--
			deg[e.Target]--
			removed++
		}
		clear(g.edges[len(kept):])
		g.edges = kept
		rep.EdgesRemoved += removed

		drop := make(map[string]bool)
		for _, n := range g.order {
			d := deg[n.ID()]
			if (connected[n.ID()] && d == 0) || !keepNode(criteria, n, d) {
				drop[n.ID()] = true
			}
		}
		if len(drop) > 0 {
			g.removeNodes(drop, deg)
			rep.NodesRemoved += len(drop)
		}

		if removed == 0 && len(drop) == 0 {
			return rep, nil
		}
	}
}

func (g *Graph) removeNodes(drop map[string]bool, deg map[string]int) {
	kept := g.edges[:0]
	for _, e := range g.edges {
		if drop[e.Source] || drop[e.Target] {
			deg[e.Source]--
			deg[e.Target]--
			continue
		}
		kept = append(kept, e)
	}
	clear(g.edges[len(kept):])
	g.edges = kept

	order := g.order[:0]
	for _, n := range g.order {
		if drop[n.ID()] {
			delete(g.nodes, n.ID())
			delete(deg, n.ID())
			continue
		}
		order = append(order, n)
	}
	clear(g.order[len(order):])
	g.order = order
}

func keepEdge(criteria []Criterion, e *Edge) bool {
	for _, c := range criteria {
		if !c.KeepEdge(e) {
			return false
		}
	}
	return true
}

func keepNode(criteria []Criterion, n *Node, degree int) bool {
	for _, c := range criteria {
		if !c.KeepNode(n, degree) {
			return false
		}
	}
	return true
}
