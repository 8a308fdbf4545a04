package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/commentnet/internal/apperr"
	"github.com/starford/commentnet/internal/graph"
	"github.com/starford/commentnet/internal/index"
	"github.com/starford/commentnet/internal/models"
	"github.com/starford/commentnet/internal/records"
	"github.com/starford/commentnet/internal/sse"
	"github.com/starford/commentnet/internal/storage"
	"github.com/starford/commentnet/internal/testutil"
)

// testApp writes a small corpus and returns a config building it into a temp workspace.
func testApp(t *testing.T) (*Config, *storage.FS) {
	t.Helper()
	work := t.TempDir()
	t.Chdir(work)

	root, store := testutil.TestCorpus(t)
	testutil.WriteNodes(t, store, testutil.NodeFile,
		records.NodeRecord{ID: "alice", Comments: []models.Comment{
			{Date: testutil.Day(t, "2020-01-02"), Time: "10:00:00", Text: "hello world", Attrs: map[string]any{"board": "news", "type": "pos"}},
			{Date: testutil.Day(t, "2020-02-01"), Text: "later", Attrs: map[string]any{"board": "misc", "type": "neu"}},
		}},
		records.NodeRecord{ID: "bob"},
		records.NodeRecord{ID: "carol"},
	)
	testutil.WriteEdges(t, store, testutil.EdgeFile,
		testutil.Reply(t, "alice", "bob", "2020-01-02", nil),
		testutil.Reply(t, "bob", "alice", "2020-01-03", nil),
		testutil.Reply(t, "alice", "carol", "2020-01-04", nil),
		testutil.Reply(t, "ghost", "carol", "2020-01-05", nil),
	)

	cfg := NewDefaultConfig()
	cfg.Corpus = CorpusConfig{Root: root, Nodes: testutil.NodeFile, Edges: testutil.EdgeFile}
	cfg.Export = ExportConfig{
		Nodes:  "out/nodes.jsonl",
		Edges:  "out/edges.bin",
		SQLite: filepath.Join(work, "graph.db"),
	}
	cfg.Prune.Criteria = []graph.CriterionSpec{{Name: graph.CriterionMinWeight, Value: 2}}
	return cfg, store
}

func quiet() Option {
	return WithLogger(slog.New(slog.DiscardHandler))
}

func latestBuild(t *testing.T, path string) *index.BuildRow {
	t.Helper()
	db, err := index.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	b, err := db.LatestBuild()
	if err != nil {
		t.Fatalf("LatestBuild: %v", err)
	}
	return b
}

func TestBuild_ExportsAndSkipsWhenUnchanged(t *testing.T) {
	cfg, store := testApp(t)
	ctx := context.Background()

	if err := Build(ctx, false, WithConfig(cfg), quiet()); err != nil {
		t.Fatalf("Build: %v", err)
	}
	first := latestBuild(t, cfg.Export.SQLite)
	if first.Nodes != 2 || first.Edges != 1 || first.RawEdges != 4 || first.Warnings != 1 {
		t.Errorf("build row = %+v", first)
	}

	out, err := storage.NewFS(".")
	if err != nil {
		t.Fatal(err)
	}
	r, err := out.Open(cfg.Export.Edges)
	if err != nil {
		t.Fatalf("edge export missing: %v", err)
	}
	er := records.NewEdgeReader(r, cfg.Export.Edges)
	n := 0
	for {
		if _, err := er.Next(); err != nil {
			break
		}
		n++
	}
	r.Close()
	if n != 2 {
		t.Errorf("exported edge records = %d, want 2", n)
	}

	// Unchanged inputs: no new build.
	if err := Build(ctx, false, WithConfig(cfg), quiet()); err != nil {
		t.Fatalf("second Build: %v", err)
	}
	if got := latestBuild(t, cfg.Export.SQLite); got.ID != first.ID {
		t.Errorf("unchanged inputs rebuilt: %s != %s", got.ID, first.ID)
	}

	// Forced.
	if err := Build(ctx, true, WithConfig(cfg), quiet()); err != nil {
		t.Fatalf("forced Build: %v", err)
	}
	if got := latestBuild(t, cfg.Export.SQLite); got.ID == first.ID {
		t.Error("forced build did not record a new build")
	}

	// Changed inputs.
	testutil.WriteEdges(t, store, testutil.EdgeFile,
		testutil.Reply(t, "alice", "bob", "2020-01-02", nil),
		testutil.Reply(t, "bob", "alice", "2020-01-03", nil),
		testutil.Reply(t, "carol", "alice", "2020-01-06", nil),
		testutil.Reply(t, "alice", "carol", "2020-01-07", nil),
	)
	if err := Build(ctx, false, WithConfig(cfg), quiet()); err != nil {
		t.Fatalf("Build after change: %v", err)
	}
	if got := latestBuild(t, cfg.Export.SQLite); got.Edges != 2 || got.Nodes != 3 {
		t.Errorf("rebuilt row = %+v", got)
	}
}

func TestBuild_InvalidConfigBeforeIO(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Corpus.Root = filepath.Join(t.TempDir(), "does-not-exist")
	cfg.Window = WindowConfig{Start: "2020-02-01", End: "2020-01-01"}

	err := Build(context.Background(), false, WithConfig(cfg), quiet())
	if !errors.Is(err, apperr.ErrConfiguration) {
		t.Fatalf("err = %v, want configuration error", err)
	}
}

func TestBuild_StrictIntegrity(t *testing.T) {
	cfg, _ := testApp(t)
	cfg.Integrity.Strict = true

	err := Build(context.Background(), true, WithConfig(cfg), quiet())
	if !errors.Is(err, apperr.ErrIntegrity) {
		t.Fatalf("err = %v, want integrity error", err)
	}
}

func TestStats(t *testing.T) {
	cfg, _ := testApp(t)
	cfg.Export = ExportConfig{}

	var buf bytes.Buffer
	req := StatsRequest{Nodes: []string{"alice"}}
	if err := Stats(context.Background(), req, WithConfig(cfg), WithOutput(&buf), quiet()); err != nil {
		t.Fatalf("Stats: %v", err)
	}
	var got nodeStats
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	if got.Comments != 2 || got.Tokens != 3 || got.First != "2020-01-02" || got.Last != "2020-02-01" {
		t.Errorf("stats = %+v", got)
	}

	buf.Reset()
	w := models.NewDateRange(testutil.Day(t, "2020-01-01"), testutil.Day(t, "2020-01-31"))
	req = StatsRequest{Window: &w, Force: true}
	if err := Stats(context.Background(), req, WithConfig(cfg), WithOutput(&buf), quiet()); err != nil {
		t.Fatalf("Stats: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %d, want one per author", len(lines))
	}
	if err := json.Unmarshal([]byte(lines[0]), &got); err != nil {
		t.Fatal(err)
	}
	if got.ID != "alice" || got.Comments != 1 || got.ByType["pos"] != 1 {
		t.Errorf("windowed stats = %+v", got)
	}

	err := Stats(context.Background(), StatsRequest{Nodes: []string{"nobody"}}, WithConfig(cfg), WithOutput(&buf), quiet())
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want not found", err)
	}
}

func TestStats_IgnoresExportTargets(t *testing.T) {
	cfg, _ := testApp(t)
	// Nothing listens here; building would fail on Verify.
	cfg.Export.Neo4j = Neo4jConfig{URI: "neo4j://127.0.0.1:1", User: "neo4j", Password: "x"}
	cfg.Export.SQLite = filepath.Join(t.TempDir(), "missing", "graph.db")

	var buf bytes.Buffer
	req := StatsRequest{Nodes: []string{"bob"}}
	if err := Stats(context.Background(), req, WithConfig(cfg), WithOutput(&buf), quiet()); err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if !strings.Contains(buf.String(), `"id":"bob"`) {
		t.Errorf("output = %q", buf.String())
	}
	if _, err := os.Stat(filepath.Dir(cfg.Export.SQLite)); !os.IsNotExist(err) {
		t.Errorf("stats created the sqlite directory: %v", err)
	}
}

func TestServer_Rebuild(t *testing.T) {
	cfg, store := testApp(t)
	cfg.Export = ExportConfig{}
	ctx := context.Background()
	logger := slog.New(slog.DiscardHandler)

	p, err := openPipeline(ctx, cfg, logger, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close(ctx)

	broker := sse.NewBroker(time.Millisecond)
	defer broker.Close()
	events := broker.Subscribe()
	srv := &server{p: p, snap: &graph.Snapshot{}, broker: broker, logger: logger}

	if err := srv.initial(ctx); err != nil {
		t.Fatalf("initial: %v", err)
	}
	first := srv.snap.Load()
	if first == nil || first.Graph.NumEdges() != 1 {
		t.Fatalf("initial snapshot = %+v", first)
	}

	// Touched but identical.
	srv.rebuild(ctx, []string{testutil.EdgeFile})
	if srv.snap.Load() != first {
		t.Error("unchanged inputs replaced the snapshot")
	}
	expectEvent(t, events, "build.skipped")

	// Broken edge file keeps the old snapshot.
	if err := store.Create(testutil.EdgeFile, func(w io.Writer) error {
		_, err := w.Write([]byte("garbage"))
		return err
	}); err != nil {
		t.Fatal(err)
	}
	srv.rebuild(ctx, []string{testutil.EdgeFile})
	if srv.snap.Load() != first {
		t.Error("failed rebuild replaced the snapshot")
	}
	expectEvent(t, events, "build.failed")

	testutil.WriteEdges(t, store, testutil.EdgeFile,
		testutil.Reply(t, "alice", "bob", "2020-01-02", nil),
		testutil.Reply(t, "bob", "alice", "2020-01-03", nil),
		testutil.Reply(t, "carol", "alice", "2020-01-06", nil),
		testutil.Reply(t, "alice", "carol", "2020-01-07", nil),
	)
	srv.rebuild(ctx, []string{testutil.EdgeFile})
	if got := srv.snap.Load(); got == first || got.Graph.NumEdges() != 2 {
		t.Errorf("rebuilt snapshot = %+v", got)
	}
	expectEvent(t, events, "build.rebuilt")
}

func expectEvent(t *testing.T, events <-chan []byte, kind string) {
	t.Helper()
	select {
	case raw := <-events:
		if !strings.HasPrefix(string(raw), "event: "+kind+"\n") {
			t.Errorf("event = %q, want %s", raw, kind)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", kind)
	}
}
