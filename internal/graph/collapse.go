package graph

import (
	"fmt"
	"slices"

	"github.com/starford/commentnet/internal/apperr"
)

type pairKey struct{ a, b string }

func (g *Graph) key(source, target string) pairKey {
	if !g.directed && target < source {
		return pairKey{target, source}
	}
	return pairKey{source, target}
}

// Collapse merges every group of edges sharing an endpoint pair into one edge weighted
// by the number of raw edges in the group.
// For undirected graphs the pair is unordered and the merged edge is stored with the
// lexicographically smaller id as Source. The merged edge keeps only the attributes
// named in keep, each taken from the earliest edge of the group that defines it;
// edges with equal date and time are ordered as they were inserted.
func (g *Graph) Collapse(keep []string) error {
	if g.frozen {
		return fmt.Errorf("collapse: %w", apperr.ErrReadOnly)
	}

	groups := make(map[pairKey][]*Edge)
	var keys []pairKey
	for _, e := range g.edges {
		k := g.key(e.Source, e.Target)
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], e)
	}

	merged := make([]*Edge, 0, len(keys))
	for _, k := range keys {
		merged = append(merged, mergeGroup(k, groups[k], keep))
	}
	g.edges = merged
	g.multiplicity = Simple
	return nil
}

func mergeGroup(k pairKey, members []*Edge, keep []string) *Edge {
	slices.SortStableFunc(members, func(x, y *Edge) int {
		return compareOccurrences(x.First(), y.First())
	})

	e := &Edge{Source: k.a, Target: k.b}
	for _, m := range members {
		e.Occurrences = append(e.Occurrences, m.Occurrences...)
	}
	slices.SortStableFunc(e.Occurrences, compareOccurrences)
	// Weight counts interactions; per-record weights stay on the occurrences.
	e.Weight = len(e.Occurrences)

	for _, attr := range keep {
		for _, m := range members {
			if v, ok := m.Attrs[attr]; ok {
				if e.Attrs == nil {
					e.Attrs = make(map[string]any, len(keep))
				}
				e.Attrs[attr] = v
				break
			}
		}
	}
	return e
}
