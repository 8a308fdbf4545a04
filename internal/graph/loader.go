package graph

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/starford/commentnet/internal/apperr"
	"github.com/starford/commentnet/internal/metrics"
	"github.com/starford/commentnet/internal/models"
	"github.com/starford/commentnet/internal/records"
	"github.com/starford/commentnet/internal/storage"
)

// Drop reasons for edges filtered before collapse, beyond the integrity reasons.
const (
	ReasonWindow    = "window"
	ReasonCondition = "condition"
)

// LoadOptions configures a graph build.
type LoadOptions struct {
	NodePath string
	EdgePath string

	// Window keeps only edges dated inside it. Nil keeps every edge.
	Window *models.DateRange
	// Condition filters edges after the window. Nil keeps every edge.
	Condition       EdgeCondition
	EdgeAttrsToKeep []string
	Criteria        []Criterion
	Directed        bool
	// Strict turns integrity warnings into errors.
	Strict bool

	Logger    *slog.Logger
	Metrics   *metrics.Collector
	OnWarning func(apperr.IntegrityWarning)
}

// Validate checks the options without touching the corpus.
func (o *LoadOptions) Validate() error {
	if o.NodePath == "" {
		return &apperr.ConfigError{Field: "node_path", Err: errors.New("required")}
	}
	if o.EdgePath == "" {
		return &apperr.ConfigError{Field: "edge_path", Err: errors.New("required")}
	}
	return o.validateReduce()
}

func (o *LoadOptions) validateReduce() error {
	if o.Window != nil && o.Window.Empty() {
		return &apperr.ConfigError{Field: "window", Err: fmt.Errorf("end must be after start, got %s", o.Window)}
	}
	for i, c := range o.Criteria {
		if c == nil {
			return &apperr.ConfigError{Field: fmt.Sprintf("criteria[%d]", i), Err: errors.New("nil criterion")}
		}
	}
	return nil
}

func (o *LoadOptions) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.New(slog.DiscardHandler)
}

// Report summarises a build.
type Report struct {
	NodesLoaded      int
	RawEdges         int
	DroppedUnknown   int
	DroppedSelfLoop  int
	DroppedWindow    int
	DroppedCondition int
	MultiEdges       int
	CollapsedEdges   int
	Prune            PruneReport
	Warnings         []apperr.IntegrityWarning
	Duration         time.Duration
}

// LoadMGraph reads the corpus, filters and collapses the interactions, prunes the
// result and returns it frozen.
func LoadMGraph(ctx context.Context, store storage.Provider, opts LoadOptions) (*Graph, Report, error) {
	start := time.Now()
	g, rep, err := loadMGraph(ctx, store, opts)
	rep.Duration = time.Since(start)
	opts.Metrics.ObserveLoad(err, rep.Duration)
	if err != nil {
		return nil, rep, err
	}
	opts.Metrics.SetGraphSize(g.NumNodes(), g.NumEdges())
	opts.logger().Info("loader: graph ready",
		slog.Int("nodes", g.NumNodes()),
		slog.Int("edges", g.NumEdges()),
		slog.Int("raw_edges", rep.RawEdges),
		slog.Int("warnings", len(rep.Warnings)),
		slog.Duration("duration", rep.Duration),
	)
	return g, rep, nil
}

func loadMGraph(ctx context.Context, store storage.Provider, opts LoadOptions) (*Graph, Report, error) {
	mg, rep, err := BuildMultigraph(ctx, store, opts)
	if err != nil {
		return nil, rep, err
	}
	if err := ctx.Err(); err != nil {
		return nil, rep, err
	}
	if err := reduce(mg, opts, &rep); err != nil {
		return nil, rep, err
	}
	mg.Freeze()
	return mg, rep, nil
}

// BuildMultigraph reads the corpus into a multigraph holding one edge per surviving
// interaction. Edges with an unknown or identical endpoint are reported as integrity
// warnings; edges outside the window or rejected by the condition are counted and
// dropped. A malformed record aborts the build.
func BuildMultigraph(ctx context.Context, store storage.Provider, opts LoadOptions) (*Graph, Report, error) {
	var rep Report
	if err := opts.Validate(); err != nil {
		return nil, rep, err
	}
	log := opts.logger()

	nodeFile, err := store.Open(opts.NodePath)
	if err != nil {
		return nil, rep, err
	}
	defer nodeFile.Close()
	edgeFile, err := store.Open(opts.EdgePath)
	if err != nil {
		return nil, rep, err
	}
	defer edgeFile.Close()

	g := New(opts.Directed)
	if err := readNodes(g, records.NewNodeReader(nodeFile, opts.NodePath)); err != nil {
		return nil, rep, err
	}
	rep.NodesLoaded = g.NumNodes()
	log.Debug("loader: nodes read", slog.Int("nodes", rep.NodesLoaded))

	if err := ctx.Err(); err != nil {
		return nil, rep, err
	}

	er := records.NewEdgeReader(edgeFile, opts.EdgePath)
	for {
		rec, err := er.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, rep, err
		}
		rep.RawEdges++

		if w, ok := checkEndpoints(g, rec, rep.RawEdges); ok {
			if opts.Strict {
				return nil, rep, w.Err()
			}
			if w.Reason == apperr.ReasonSelfLoop {
				rep.DroppedSelfLoop++
			} else {
				rep.DroppedUnknown++
			}
			rep.Warnings = append(rep.Warnings, w)
			log.Warn("loader: edge dropped",
				slog.Int("record", w.Record),
				slog.String("source", w.Source),
				slog.String("target", w.Target),
				slog.String("reason", w.Reason),
			)
			if opts.OnWarning != nil {
				opts.OnWarning(w)
			}
			continue
		}

		if opts.Window != nil && !opts.Window.Contains(rec.Date) {
			rep.DroppedWindow++
			continue
		}

		e := newRawEdge(rec)
		if opts.Condition != nil && !opts.Condition(e, g.nodes[e.Source], g.nodes[e.Target]) {
			rep.DroppedCondition++
			continue
		}
		g.edges = append(g.edges, e)
	}
	rep.MultiEdges = g.NumEdges()

	m := opts.Metrics
	m.AddRawEdges(rep.RawEdges)
	m.AddDropped("unknown_endpoint", rep.DroppedUnknown)
	m.AddDropped(apperr.ReasonSelfLoop, rep.DroppedSelfLoop)
	m.AddDropped(ReasonWindow, rep.DroppedWindow)
	m.AddDropped(ReasonCondition, rep.DroppedCondition)

	log.Info("loader: multigraph built",
		slog.Int("nodes", rep.NodesLoaded),
		slog.Int("raw_edges", rep.RawEdges),
		slog.Int("kept", rep.MultiEdges),
		slog.Int("dropped_unknown", rep.DroppedUnknown),
		slog.Int("dropped_self_loop", rep.DroppedSelfLoop),
		slog.Int("dropped_window", rep.DroppedWindow),
		slog.Int("dropped_condition", rep.DroppedCondition),
	)
	return g, rep, nil
}

// readNodes adds every node record to g. A repeated id extends the existing ledger.
func readNodes(g *Graph, nr *records.NodeReader) error {
	for {
		rec, err := nr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		n, ok := g.nodes[rec.ID]
		if !ok {
			n = NewNode(rec.ID)
			g.addNode(n)
		}
		n.Append(rec.Comments...)
	}
}

func checkEndpoints(g *Graph, rec models.EdgeRecord, index int) (apperr.IntegrityWarning, bool) {
	w := apperr.IntegrityWarning{Record: index, Source: rec.Source, Target: rec.Target}
	switch {
	case g.nodes[rec.Source] == nil:
		w.Reason = apperr.ReasonUnknownSource
	case g.nodes[rec.Target] == nil:
		w.Reason = apperr.ReasonUnknownTarget
	case rec.Source == rec.Target:
		w.Reason = apperr.ReasonSelfLoop
	default:
		return w, false
	}
	return w, true
}

// Reduce collapses and prunes a copy of the multigraph mg; mg itself is not modified.
// The returned graph is not frozen.
func Reduce(mg *Graph, opts LoadOptions) (*Graph, Report, error) {
	rep := Report{NodesLoaded: mg.NumNodes(), MultiEdges: mg.NumEdges()}
	if err := opts.validateReduce(); err != nil {
		return nil, rep, err
	}
	g := mg.clone()
	if err := reduce(g, opts, &rep); err != nil {
		return nil, rep, err
	}
	return g, rep, nil
}

func reduce(g *Graph, opts LoadOptions, rep *Report) error {
	if err := g.Collapse(opts.EdgeAttrsToKeep); err != nil {
		return err
	}
	rep.CollapsedEdges = g.NumEdges()

	pr, err := g.Prune(opts.Criteria...)
	if err != nil {
		return err
	}
	rep.Prune = pr
	opts.Metrics.AddPruned(pr.EdgesRemoved, pr.NodesRemoved)

	opts.logger().Info("loader: graph reduced",
		slog.Int("collapsed_edges", rep.CollapsedEdges),
		slog.Int("pruned_edges", pr.EdgesRemoved),
		slog.Int("pruned_nodes", pr.NodesRemoved),
		slog.Int("rounds", pr.Rounds),
	)
	return nil
}

// Save writes g as a node file and an edge file that LoadMGraph can read back.
// Collapsed edges are expanded into one record per occurrence.
func Save(store storage.Provider, g *Graph, nodePath, edgePath string) error {
	err := store.Create(nodePath, func(w io.Writer) error {
		nw := records.NewNodeWriter(w)
		for n := range g.AllNodes() {
			if err := nw.Write(records.NodeRecord{ID: n.ID(), Comments: n.Comments()}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save nodes: %w", err)
	}

	err = store.Create(edgePath, func(w io.Writer) error {
		ew := records.NewEdgeWriter(w)
		for e := range g.AllEdges() {
			for _, rec := range e.records() {
				if err := ew.Write(rec); err != nil {
					return err
				}
			}
		}
		return ew.Close()
	})
	if err != nil {
		return fmt.Errorf("save edges: %w", err)
	}
	return nil
}
