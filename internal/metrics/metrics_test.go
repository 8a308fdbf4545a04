package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, c *Collector) string {
	t.Helper()
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestCollector_Counts(t *testing.T) {
	c := NewCollector("commentnet")

	c.ObserveLoad(nil, 20*time.Millisecond)
	c.ObserveLoad(errors.New("boom"), time.Millisecond)
	c.AddRawEdges(5)
	c.AddDropped("window", 2)
	c.AddDropped("window", 0)
	c.AddPruned(3, 1)
	c.SetGraphSize(4, 7)

	body := scrape(t, c)
	for _, line := range []string{
		`commentnet_loads_total{status="success"} 1`,
		`commentnet_loads_total{status="failure"} 1`,
		`commentnet_raw_edges_total 5`,
		`commentnet_edges_dropped_total{reason="window"} 2`,
		`commentnet_edges_pruned_total 3`,
		`commentnet_nodes_pruned_total 1`,
		`commentnet_graph_nodes 4`,
		`commentnet_graph_edges 7`,
		`commentnet_load_duration_seconds_count 2`,
	} {
		assert.Contains(t, body, line)
	}
}

func TestCollector_NilIsNoop(t *testing.T) {
	var c *Collector
	c.ObserveLoad(nil, time.Second)
	c.AddRawEdges(1)
	c.AddDropped("window", 1)
	c.AddPruned(1, 1)
	c.SetGraphSize(1, 1)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCollector_Independent(t *testing.T) {
	a := NewCollector("commentnet")
	b := NewCollector("commentnet")
	a.AddRawEdges(2)

	assert.Contains(t, scrape(t, a), "commentnet_raw_edges_total 2")
	assert.Contains(t, scrape(t, b), "commentnet_raw_edges_total 0")
}
