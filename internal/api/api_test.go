package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/starford/commentnet/internal/graph"
	"github.com/starford/commentnet/internal/models"
	"github.com/starford/commentnet/internal/testutil"
)

func testGraph(t *testing.T) *graph.Graph {
	t.Helper()
	g := graph.New(false)
	for _, id := range []string{"alice", "bob", "carol", "dave/x"} {
		if err := g.AddNode(graph.NewNode(id)); err != nil {
			t.Fatal(err)
		}
	}
	alice, _ := g.Node("alice")
	if err := alice.AddComment("2020-01-02", "10:00", "hello world", map[string]any{"board": "news", "type": "pos"}); err != nil {
		t.Fatal(err)
	}
	if err := alice.AddComment("2020-02-10", "", "hello again", map[string]any{"board": "misc", "type": "neg"}); err != nil {
		t.Fatal(err)
	}

	for _, rec := range []models.EdgeRecord{
		testutil.Reply(t, "alice", "bob", "2020-01-02", nil),
		testutil.Reply(t, "bob", "alice", "2020-01-05", nil),
		testutil.Reply(t, "alice", "carol", "2020-01-20", nil),
		testutil.Reply(t, "carol", "dave/x", "2020-03-01", nil),
	} {
		if err := g.AddEdge(rec); err != nil {
			t.Fatal(err)
		}
	}
	if err := g.Collapse(nil); err != nil {
		t.Fatal(err)
	}
	return g
}

// testEnv sets up a snapshot holding a small collapsed graph and a router over it.
// A non-empty authToken enables token mode.
func testEnv(t *testing.T, authToken string) (*graph.Snapshot, http.Handler) {
	t.Helper()
	snap := &graph.Snapshot{}
	snap.Swap(graph.NewBuild(testGraph(t), graph.Report{RawEdges: 4}, nil))
	return snap, NewRouter(NewService(snap, nil), authToken != "", authToken, nil)
}

func get(t *testing.T, h http.Handler, target string, out any) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if out != nil && w.Code == http.StatusOK {
		if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
			t.Fatalf("decode %s: %v (body %s)", target, err, w.Body.String())
		}
	}
	return w.Code
}

func TestListNodes(t *testing.T) {
	_, router := testEnv(t, "")

	var resp NodeListResponse
	if code := get(t, router, "/nodes?sort=degree&limit=2", &resp); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if resp.Total != 4 {
		t.Errorf("total = %d, want 4", resp.Total)
	}
	if len(resp.Nodes) != 2 {
		t.Fatalf("page = %d, want 2", len(resp.Nodes))
	}
	// alice and carol both have degree 2; ties break on id.
	if resp.Nodes[0].ID != "alice" || resp.Nodes[1].ID != "carol" {
		t.Errorf("order = %s, %s", resp.Nodes[0].ID, resp.Nodes[1].ID)
	}

	resp = NodeListResponse{}
	get(t, router, "/nodes?offset=3", &resp)
	if len(resp.Nodes) != 1 || resp.Nodes[0].ID != "dave/x" {
		t.Errorf("offset page = %+v", resp.Nodes)
	}

	if code := get(t, router, "/nodes?sort=bogus", nil); code != http.StatusBadRequest {
		t.Errorf("unknown sort status = %d, want 400", code)
	}
}

func TestGetNode(t *testing.T) {
	_, router := testEnv(t, "")

	var node NodeDetail
	if code := get(t, router, "/nodes/alice", &node); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if node.Comments != 2 || node.Degree != 2 {
		t.Errorf("node = %+v", node.NodeSummary)
	}
	if node.First != "2020-01-02" || node.Last != "2020-02-10" {
		t.Errorf("span = %s..%s", node.First, node.Last)
	}
	if len(node.Edges) != 2 || node.Edges[0].Weight != 2 || node.Edges[0].Target != "bob" {
		t.Errorf("edges = %+v", node.Edges)
	}

	if code := get(t, router, "/nodes/dave%2Fx", &node); code != http.StatusOK {
		t.Errorf("escaped id status = %d", code)
	}
	if code := get(t, router, "/nodes/nobody", nil); code != http.StatusNotFound {
		t.Errorf("missing status = %d, want 404", code)
	}
}

func TestNodeStats(t *testing.T) {
	_, router := testEnv(t, "")

	var all StatsResponse
	if code := get(t, router, "/nodes/alice/stats", &all); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if all.Comments != 2 || all.Tokens != 4 || all.Vocabulary["hello"] != 2 {
		t.Errorf("stats = %+v", all)
	}

	var jan StatsResponse
	get(t, router, "/nodes/alice/stats?start=2020-01-01&end=2020-02-01", &jan)
	if jan.Comments != 1 || jan.ByType["pos"] != 1 {
		t.Errorf("windowed stats = %+v", jan)
	}

	var misc StatsResponse
	get(t, router, "/nodes/alice/stats?board=misc", &misc)
	if misc.Comments != 1 || misc.Vocabulary["again"] != 1 {
		t.Errorf("board stats = %+v", misc)
	}

	if code := get(t, router, "/nodes/alice/stats?start=2020-01-01", nil); code != http.StatusBadRequest {
		t.Errorf("half window status = %d, want 400", code)
	}
	if code := get(t, router, "/nodes/alice/stats?start=2020-01-01&end=nope", nil); code != http.StatusBadRequest {
		t.Errorf("bad date status = %d, want 400", code)
	}
}

func TestEdges(t *testing.T) {
	_, router := testEnv(t, "")

	var list EdgeListResponse
	if code := get(t, router, "/edges?limit=1", &list); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if list.Total != 3 || len(list.Edges) != 1 {
		t.Fatalf("list = %+v", list)
	}
	if e := list.Edges[0]; e.Source != "alice" || e.Target != "bob" || e.First != "2020-01-02" || e.Last != "2020-01-05" {
		t.Errorf("top edge = %+v", e)
	}

	var count EdgeCountResponse
	get(t, router, "/edges/count?start=2020-01-01&end=2020-02-01", &count)
	if count.Count != 3 {
		t.Errorf("count = %d, want 3", count.Count)
	}

	count = EdgeCountResponse{}
	get(t, router, "/edges/count?start=2020-02-01&end=2020-01-01", &count)
	if count.Count != 0 {
		t.Errorf("inverted window count = %d, want 0", count.Count)
	}

	if code := get(t, router, "/edges/count", nil); code != http.StatusBadRequest {
		t.Errorf("missing window status = %d, want 400", code)
	}
}

func TestBuildAndNoBuild(t *testing.T) {
	snap, router := testEnv(t, "")

	var b BuildResponse
	if code := get(t, router, "/build", &b); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if b.ID == "" || b.Nodes != 4 || b.Edges != 3 || b.RawEdges != 4 {
		t.Errorf("build = %+v", b)
	}
	if time.Since(b.BuiltAt) > time.Minute {
		t.Errorf("built_at = %v", b.BuiltAt)
	}

	snap.Swap(nil)
	if code := get(t, router, "/nodes", nil); code != http.StatusServiceUnavailable {
		t.Errorf("no build status = %d, want 503", code)
	}
}

func TestSearchWithoutIndex(t *testing.T) {
	_, router := testEnv(t, "")

	if code := get(t, router, "/search", nil); code != http.StatusBadRequest {
		t.Errorf("missing q status = %d, want 400", code)
	}
	if code := get(t, router, "/search?q=hello", nil); code != http.StatusServiceUnavailable {
		t.Errorf("no index status = %d, want 503", code)
	}
}

func TestSearchWithIndex(t *testing.T) {
	db := testutil.TestDB(t)
	snap := &graph.Snapshot{}
	b := graph.NewBuild(testGraph(t), graph.Report{}, nil)
	snap.Swap(b)
	if err := db.ReplaceGraph(b); err != nil {
		t.Fatal(err)
	}
	router := NewRouter(NewService(snap, db), false, "", nil)

	var resp SearchResponse
	if code := get(t, router, "/search?q=again", &resp); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if len(resp.Results) != 1 || resp.Results[0].NodeID != "alice" || resp.Results[0].Date != "2020-02-10" {
		t.Errorf("results = %+v", resp.Results)
	}
}

func TestAuthTokenMode(t *testing.T) {
	_, router := testEnv(t, "secret")

	if code := get(t, router, "/nodes", nil); code != http.StatusUnauthorized {
		t.Fatalf("no token status = %d, want 401", code)
	}

	req := httptest.NewRequest(http.MethodGet, "/nodes", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token status = %d, want 401", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/nodes", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("valid token status = %d, want 200", w.Code)
	}
}
