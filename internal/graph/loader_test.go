package graph_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/commentnet/internal/apperr"
	"github.com/starford/commentnet/internal/graph"
	"github.com/starford/commentnet/internal/metrics"
	"github.com/starford/commentnet/internal/models"
	"github.com/starford/commentnet/internal/records"
	"github.com/starford/commentnet/internal/testutil"
)

func opts() graph.LoadOptions {
	return graph.LoadOptions{NodePath: testutil.NodeFile, EdgePath: testutil.EdgeFile}
}

func edgeSet(g *graph.Graph) map[[2]string]int {
	out := make(map[[2]string]int)
	for e := range g.AllEdges() {
		out[[2]string{e.Source, e.Target}] = e.Weight
	}
	return out
}

func TestLoadMGraph_WindowScenario(t *testing.T) {
	_, store := testutil.TestCorpus(t)
	testutil.WriteNodes(t, store, testutil.NodeFile, testutil.Authors("A", "B")...)
	testutil.WriteEdges(t, store, testutil.EdgeFile,
		testutil.Reply(t, "A", "B", "2020-01-05", map[string]any{"note": "later"}),
		testutil.Reply(t, "A", "B", "2020-01-01", map[string]any{"note": "first"}),
		testutil.Reply(t, "B", "A", "2020-02-01", map[string]any{"note": "outside"}),
	)

	o := opts()
	w := models.NewDateRange(testutil.Day(t, "2020-01-01"), testutil.Day(t, "2020-01-31"))
	o.Window = &w
	o.EdgeAttrsToKeep = []string{"note"}

	g, rep, err := graph.LoadMGraph(context.Background(), store, o)
	require.NoError(t, err)
	assert.True(t, g.Frozen())
	assert.Equal(t, graph.Simple, g.Multiplicity())
	assert.Equal(t, map[[2]string]int{{"A", "B"}: 2}, edgeSet(g))

	var e *graph.Edge
	for x := range g.AllEdges() {
		e = x
	}
	assert.Equal(t, map[string]any{"note": "first"}, e.Attrs)

	assert.Equal(t, 2, rep.NodesLoaded)
	assert.Equal(t, 3, rep.RawEdges)
	assert.Equal(t, 1, rep.DroppedWindow)
	assert.Equal(t, 2, rep.MultiEdges)
	assert.Equal(t, 1, rep.CollapsedEdges)
}

func TestLoadMGraph_PruneScenario(t *testing.T) {
	_, store := testutil.TestCorpus(t)
	testutil.WriteNodes(t, store, testutil.NodeFile, testutil.Authors("A", "B", "C")...)
	testutil.WriteEdges(t, store, testutil.EdgeFile,
		testutil.Reply(t, "A", "B", "2020-01-01", nil),
		testutil.Reply(t, "B", "A", "2020-01-02", nil),
		testutil.Reply(t, "C", "B", "2020-01-03", nil),
	)

	o := opts()
	o.Criteria = []graph.Criterion{graph.MinWeight(2)}
	g, rep, err := graph.LoadMGraph(context.Background(), store, o)
	require.NoError(t, err)

	_, ok := g.Node("C")
	assert.False(t, ok)
	assert.Equal(t, 2, g.NumNodes())
	assert.Equal(t, 1, rep.Prune.EdgesRemoved)
	assert.Equal(t, 1, rep.Prune.NodesRemoved)
}

func TestLoadMGraph_IntegrityWarnings(t *testing.T) {
	_, store := testutil.TestCorpus(t)
	testutil.WriteNodes(t, store, testutil.NodeFile, testutil.Authors("A", "B")...)
	testutil.WriteEdges(t, store, testutil.EdgeFile,
		testutil.Reply(t, "A", "B", "2020-01-01", nil),
		testutil.Reply(t, "ghost", "B", "2020-01-01", nil),
		testutil.Reply(t, "A", "ghost", "2020-01-01", nil),
		testutil.Reply(t, "A", "A", "2020-01-01", nil),
	)

	var seen []apperr.IntegrityWarning
	o := opts()
	o.OnWarning = func(w apperr.IntegrityWarning) { seen = append(seen, w) }

	g, rep, err := graph.LoadMGraph(context.Background(), store, o)
	require.NoError(t, err)
	assert.Equal(t, 1, g.NumEdges())
	assert.Equal(t, 2, rep.DroppedUnknown)
	assert.Equal(t, 1, rep.DroppedSelfLoop)
	require.Len(t, rep.Warnings, 3)
	assert.Equal(t, rep.Warnings, seen)
	assert.Equal(t, apperr.IntegrityWarning{Record: 2, Source: "ghost", Target: "B", Reason: apperr.ReasonUnknownSource}, seen[0])
	assert.Equal(t, apperr.ReasonUnknownTarget, seen[1].Reason)
	assert.Equal(t, apperr.ReasonSelfLoop, seen[2].Reason)

	o.Strict = true
	g, _, err = graph.LoadMGraph(context.Background(), store, o)
	assert.ErrorIs(t, err, apperr.ErrIntegrity)
	assert.Nil(t, g)
}

func TestLoadMGraph_ConfigErrorBeforeIO(t *testing.T) {
	_, store := testutil.TestCorpus(t)

	o := opts()
	w := models.NewDateRange(testutil.Day(t, "2020-02-01"), testutil.Day(t, "2020-01-01"))
	o.Window = &w
	_, _, err := graph.LoadMGraph(context.Background(), store, o)
	assert.ErrorIs(t, err, apperr.ErrConfiguration)
	assert.NotErrorIs(t, err, apperr.ErrIO)

	_, _, err = graph.LoadMGraph(context.Background(), store, graph.LoadOptions{EdgePath: "x"})
	assert.ErrorIs(t, err, apperr.ErrConfiguration)
}

func TestLoadMGraph_MissingFile(t *testing.T) {
	_, store := testutil.TestCorpus(t)
	testutil.WriteNodes(t, store, testutil.NodeFile, testutil.Authors("A")...)

	_, _, err := graph.LoadMGraph(context.Background(), store, opts())
	assert.ErrorIs(t, err, apperr.ErrIO)
	var ioe *apperr.IOError
	require.ErrorAs(t, err, &ioe)
	assert.Equal(t, testutil.EdgeFile, ioe.Path)
}

func TestLoadMGraph_FormatErrorAborts(t *testing.T) {
	_, store := testutil.TestCorpus(t)
	testutil.WriteNodes(t, store, testutil.NodeFile, testutil.Authors("A", "B")...)
	require.NoError(t, store.Create(testutil.EdgeFile, func(w io.Writer) error {
		_, err := w.Write([]byte("not an edge file at all"))
		return err
	}))

	g, _, err := graph.LoadMGraph(context.Background(), store, opts())
	assert.ErrorIs(t, err, apperr.ErrFormat)
	assert.Nil(t, g)
}

func TestLoadMGraph_MalformedNodeAborts(t *testing.T) {
	_, store := testutil.TestCorpus(t)
	require.NoError(t, store.Create(testutil.NodeFile, func(w io.Writer) error {
		_, err := w.Write([]byte(`{"id":"A","comments":[{"date":"2020/01/01","text":"x"}]}` + "\n"))
		return err
	}))
	testutil.WriteEdges(t, store, testutil.EdgeFile)

	_, _, err := graph.LoadMGraph(context.Background(), store, opts())
	assert.ErrorIs(t, err, apperr.ErrFormat)
}

func TestLoadMGraph_ConditionAndRepeatedNodes(t *testing.T) {
	_, store := testutil.TestCorpus(t)
	testutil.WriteNodes(t, store, testutil.NodeFile,
		records.NodeRecord{ID: "A", Comments: []models.Comment{{Date: testutil.Day(t, "2020-01-02"), Text: "b"}}},
		records.NodeRecord{ID: "B"},
		records.NodeRecord{ID: "A", Comments: []models.Comment{{Date: testutil.Day(t, "2020-01-01"), Text: "a"}}},
	)
	testutil.WriteEdges(t, store, testutil.EdgeFile,
		testutil.Reply(t, "A", "B", "2020-01-01", map[string]any{"board": "Gossiping"}),
		testutil.Reply(t, "A", "B", "2020-01-02", map[string]any{"board": "Stock"}),
	)

	cond, err := graph.CompileCondition(`attrs.board == "Gossiping" && source_comments == 2`)
	require.NoError(t, err)
	o := opts()
	o.Condition = cond

	g, rep, err := graph.LoadMGraph(context.Background(), store, o)
	require.NoError(t, err)
	assert.Equal(t, 2, g.NumNodes())
	assert.Equal(t, 1, rep.DroppedCondition)
	assert.Equal(t, map[[2]string]int{{"A", "B"}: 1}, edgeSet(g))

	a, ok := g.Node("A")
	require.True(t, ok)
	comments := a.Comments()
	require.Len(t, comments, 2)
	assert.Equal(t, "a", comments[0].Text)
}

func TestLoadMGraph_Cancelled(t *testing.T) {
	_, store := testutil.TestCorpus(t)
	testutil.WriteNodes(t, store, testutil.NodeFile, testutil.Authors("A")...)
	testutil.WriteEdges(t, store, testutil.EdgeFile)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := graph.LoadMGraph(ctx, store, opts())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoadMGraph_Metrics(t *testing.T) {
	_, store := testutil.TestCorpus(t)
	testutil.WriteNodes(t, store, testutil.NodeFile, testutil.Authors("A", "B")...)
	testutil.WriteEdges(t, store, testutil.EdgeFile, testutil.Reply(t, "A", "B", "2020-01-01", nil))

	m := metrics.NewCollector("commentnet")
	o := opts()
	o.Metrics = m
	_, _, err := graph.LoadMGraph(context.Background(), store, o)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), `commentnet_loads_total{status="success"} 1`)
	assert.Contains(t, rec.Body.String(), "commentnet_raw_edges_total 1")
	assert.Contains(t, rec.Body.String(), "commentnet_graph_edges 1")
}

func TestReduce_LeavesMultigraphIntact(t *testing.T) {
	_, store := testutil.TestCorpus(t)
	testutil.WriteNodes(t, store, testutil.NodeFile, testutil.Authors("A", "B", "C")...)
	testutil.WriteEdges(t, store, testutil.EdgeFile,
		testutil.Reply(t, "A", "B", "2020-01-01", nil),
		testutil.Reply(t, "A", "B", "2020-01-02", nil),
		testutil.Reply(t, "B", "C", "2020-01-03", nil),
	)
	mg, _, err := graph.BuildMultigraph(context.Background(), store, opts())
	require.NoError(t, err)
	assert.Equal(t, graph.Multi, mg.Multiplicity())

	o := opts()
	o.Criteria = []graph.Criterion{graph.MinWeight(2)}
	g, rep, err := graph.Reduce(mg, o)
	require.NoError(t, err)
	assert.Equal(t, 2, g.NumNodes())
	assert.Equal(t, 1, rep.Prune.NodesRemoved)

	assert.Equal(t, 3, mg.NumNodes())
	assert.Equal(t, 3, mg.NumEdges())
	assert.Equal(t, graph.Multi, mg.Multiplicity())
}

func TestSave_RoundTrip(t *testing.T) {
	_, store := testutil.TestCorpus(t)
	testutil.WriteNodes(t, store, testutil.NodeFile,
		records.NodeRecord{ID: "A", Comments: []models.Comment{{Date: testutil.Day(t, "2020-01-01"), Time: "10:00:00", Text: "hello", Attrs: map[string]any{"type": "pos"}}}},
		records.NodeRecord{ID: "B"},
		records.NodeRecord{ID: "C"},
		records.NodeRecord{ID: "D"},
	)
	testutil.WriteEdges(t, store, testutil.EdgeFile,
		testutil.Reply(t, "B", "A", "2020-01-03", map[string]any{"tag": "late"}),
		testutil.Reply(t, "A", "B", "2020-01-01", map[string]any{"tag": "early", "board": "Gossiping"}),
		testutil.Reply(t, "C", "A", "2020-01-02", nil),
		models.EdgeRecord{Source: "C", Target: "B", Date: testutil.Day(t, "2020-01-04"), Weight: 4},
	)

	o := opts()
	o.EdgeAttrsToKeep = []string{"tag", "board"}
	g, _, err := graph.LoadMGraph(context.Background(), store, o)
	require.NoError(t, err)

	require.NoError(t, graph.Save(store, g, "out/nodes.jsonl", "out/edges.bin"))

	o.NodePath, o.EdgePath = "out/nodes.jsonl", "out/edges.bin"
	again, _, err := graph.LoadMGraph(context.Background(), store, o)
	require.NoError(t, err)

	var ids, idsAgain []string
	for n := range g.AllNodes() {
		ids = append(ids, n.ID())
	}
	for n := range again.AllNodes() {
		idsAgain = append(idsAgain, n.ID())
	}
	assert.Equal(t, ids, idsAgain)
	assert.Equal(t, edgeSet(g), edgeSet(again))
	// The weight-4 record still counts as one interaction.
	assert.Equal(t, 1, edgeSet(again)[[2]string{"B", "C"}])

	for e := range g.AllEdges() {
		var match *graph.Edge
		for x := range again.AllEdges() {
			if x.Source == e.Source && x.Target == e.Target {
				match = x
			}
		}
		require.NotNil(t, match)
		assert.Equal(t, e.Attrs, match.Attrs)
		assert.Equal(t, e.Occurrences, match.Occurrences)
	}

	a, _ := again.Node("A")
	assert.Equal(t, 1, a.CorpusStats(graph.StatsQuery{}).ByType["pos"])
}
