package api

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"github.com/starford/commentnet/internal/apperr"
	"github.com/starford/commentnet/internal/graph"
	"github.com/starford/commentnet/internal/index"
	"github.com/starford/commentnet/internal/models"
	"github.com/starford/commentnet/internal/parser"
)

var (
	// ErrNoBuild is returned before the first graph has been published.
	ErrNoBuild = errors.New("no graph built yet")
	// ErrNoIndex is returned by Search when no SQLite index is configured.
	ErrNoIndex = errors.New("search index not configured")
)

// Node list orderings.
const (
	SortID       = "id"
	SortDegree   = "degree"
	SortComments = "comments"
)

// Service answers API queries from the current snapshot and, for search, the SQLite index.
type Service struct {
	snap *graph.Snapshot
	idx  index.GraphIndex
}

// NewService creates a new API service. idx may be nil.
func NewService(snap *graph.Snapshot, idx index.GraphIndex) *Service {
	return &Service{snap: snap, idx: idx}
}

func (s *Service) current() (*graph.Build, error) {
	b := s.snap.Load()
	if b == nil {
		return nil, ErrNoBuild
	}
	return b, nil
}

func (s *Service) node(id string) (*graph.Build, *graph.Node, error) {
	b, err := s.current()
	if err != nil {
		return nil, nil, err
	}
	n, ok := b.Graph.Node(id)
	if !ok {
		return nil, nil, fmt.Errorf("node %q: %w", id, apperr.ErrNotFound)
	}
	return b, n, nil
}

// ListNodes returns one page of nodes in the requested order.
func (s *Service) ListNodes(limit, offset int, sortBy string) ([]NodeSummary, int, error) {
	b, err := s.current()
	if err != nil {
		return nil, 0, err
	}
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	all := make([]NodeSummary, 0, b.Graph.NumNodes())
	for n := range b.Graph.AllNodes() {
		all = append(all, NodeSummary{ID: n.ID(), Comments: n.CommentCount(), Degree: b.Graph.Degree(n.ID())})
	}
	switch sortBy {
	case SortDegree:
		slices.SortStableFunc(all, func(x, y NodeSummary) int { return cmp.Or(cmp.Compare(y.Degree, x.Degree), cmp.Compare(x.ID, y.ID)) })
	case SortComments:
		slices.SortStableFunc(all, func(x, y NodeSummary) int { return cmp.Or(cmp.Compare(y.Comments, x.Comments), cmp.Compare(x.ID, y.ID)) })
	case SortID, "":
		slices.SortFunc(all, func(x, y NodeSummary) int { return cmp.Compare(x.ID, y.ID) })
	default:
		return nil, 0, &apperr.ConfigError{Field: "sort", Err: fmt.Errorf("unknown order %q", sortBy)}
	}

	total := len(all)
	if offset > total {
		offset = total
	}
	end := min(offset+limit, total)
	return all[offset:end], total, nil
}

// GetNode returns a node and its incident edges, heaviest first.
func (s *Service) GetNode(id string) (*NodeDetail, error) {
	b, n, err := s.node(id)
	if err != nil {
		return nil, err
	}
	st := n.CorpusStats(graph.StatsQuery{})
	d := &NodeDetail{
		NodeSummary: NodeSummary{ID: n.ID(), Comments: st.Comments, Degree: b.Graph.Degree(id)},
		Edges:       edgeDTOs(b.Graph.Incident(id)),
	}
	if st.Comments > 0 {
		d.First, d.Last = parser.FormatDate(st.First), parser.FormatDate(st.Last)
	}
	return d, nil
}

// NodeStats returns corpus statistics for a node, restricted to window and boards when given.
func (s *Service) NodeStats(id string, window *models.DateRange, boards []string) (*StatsResponse, error) {
	_, n, err := s.node(id)
	if err != nil {
		return nil, err
	}
	st := n.CorpusStats(graph.StatsQuery{Window: window, Boards: boards})
	resp := &StatsResponse{
		ID:         id,
		Comments:   st.Comments,
		Tokens:     st.Tokens,
		Vocabulary: st.Vocabulary,
		ByType:     st.ByType,
	}
	if st.Comments > 0 {
		resp.First, resp.Last = parser.FormatDate(st.First), parser.FormatDate(st.Last)
	}
	return resp, nil
}

// TopEdges returns the limit heaviest edges and the total edge count.
func (s *Service) TopEdges(limit int) ([]EdgeDTO, int, error) {
	b, err := s.current()
	if err != nil {
		return nil, 0, err
	}
	if limit <= 0 {
		limit = 50
	}
	edges := slices.Collect(b.Graph.AllEdges())
	total := len(edges)
	sortEdges(edges)
	return edgeDTOs(edges[:min(limit, total)]), total, nil
}

// CountEdges counts interactions dated inside r.
func (s *Service) CountEdges(r models.DateRange) (int, error) {
	b, err := s.current()
	if err != nil {
		return 0, err
	}
	return b.Graph.CountEdgesIn(r), nil
}

// Build describes the snapshot being served.
func (s *Service) Build() (*BuildResponse, error) {
	b, err := s.current()
	if err != nil {
		return nil, err
	}
	rep := b.Report
	return &BuildResponse{
		ID:               b.ID,
		BuiltAt:          b.BuiltAt,
		Nodes:            b.Graph.NumNodes(),
		Edges:            b.Graph.NumEdges(),
		RawEdges:         rep.RawEdges,
		DroppedUnknown:   rep.DroppedUnknown,
		DroppedSelfLoop:  rep.DroppedSelfLoop,
		DroppedWindow:    rep.DroppedWindow,
		DroppedCondition: rep.DroppedCondition,
		PrunedEdges:      rep.Prune.EdgesRemoved,
		PrunedNodes:      rep.Prune.NodesRemoved,
		Warnings:         len(rep.Warnings),
	}, nil
}

// Search finds comments containing query in the SQLite index.
func (s *Service) Search(query string, limit int) ([]SearchResult, error) {
	if s.idx == nil {
		return nil, ErrNoIndex
	}
	hits, err := s.idx.Search(query, limit)
	if err != nil {
		return nil, err
	}
	out := make([]SearchResult, len(hits))
	for i, h := range hits {
		out[i] = SearchResult{NodeID: h.NodeID, Date: h.Date, Snippet: h.Snippet}
	}
	return out, nil
}

func sortEdges(edges []*graph.Edge) {
	slices.SortStableFunc(edges, func(a, b *graph.Edge) int {
		return cmp.Or(
			cmp.Compare(b.Weight, a.Weight),
			cmp.Compare(a.Source, b.Source),
			cmp.Compare(a.Target, b.Target),
		)
	})
}

func edgeDTOs(edges []*graph.Edge) []EdgeDTO {
	sorted := slices.Clone(edges)
	sortEdges(sorted)
	out := make([]EdgeDTO, len(sorted))
	for i, e := range sorted {
		out[i] = EdgeDTO{
			Source: e.Source,
			Target: e.Target,
			Weight: e.Weight,
			First:  parser.FormatDate(e.First().Date),
			Last:   parser.FormatDate(e.Last().Date),
			Attrs:  e.Attrs,
		}
	}
	return out
}
