// Package metrics exposes Prometheus instruments for the graph build pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Load outcomes.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Collector holds the pipeline instruments on a private registry.
// A nil *Collector is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	Loads        *prometheus.CounterVec
	LoadDuration prometheus.Histogram
	RawEdges     prometheus.Counter
	EdgesDropped *prometheus.CounterVec
	EdgesPruned  prometheus.Counter
	NodesPruned  prometheus.Counter
	GraphNodes   prometheus.Gauge
	GraphEdges   prometheus.Gauge
}

// NewCollector creates the instruments under namespace and registers them.
func NewCollector(namespace string) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		Loads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "loads_total",
				Help:      "Total number of graph builds",
			},
			[]string{"status"},
		),
		LoadDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "load_duration_seconds",
				Help:      "Graph build duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
		RawEdges: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "raw_edges_total",
				Help:      "Total number of edge records read",
			},
		),
		EdgesDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "edges_dropped_total",
				Help:      "Total number of edge records dropped before collapse",
			},
			[]string{"reason"},
		),
		EdgesPruned: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "edges_pruned_total",
				Help:      "Total number of collapsed edges removed by pruning",
			},
		),
		NodesPruned: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "nodes_pruned_total",
				Help:      "Total number of nodes removed by pruning",
			},
		),
		GraphNodes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "graph_nodes",
				Help:      "Nodes in the most recent graph",
			},
		),
		GraphEdges: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "graph_edges",
				Help:      "Edges in the most recent graph",
			},
		),
	}

	c.registry.MustRegister(
		c.Loads,
		c.LoadDuration,
		c.RawEdges,
		c.EdgesDropped,
		c.EdgesPruned,
		c.NodesPruned,
		c.GraphNodes,
		c.GraphEdges,
	)
	return c
}

// Registry returns the registry the instruments live in.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveLoad records one build.
func (c *Collector) ObserveLoad(err error, d time.Duration) {
	if c == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusFailure
	}
	c.Loads.WithLabelValues(status).Inc()
	c.LoadDuration.Observe(d.Seconds())
}

// AddRawEdges counts edge records read from the corpus.
func (c *Collector) AddRawEdges(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.RawEdges.Add(float64(n))
}

// AddDropped counts edge records dropped for reason.
func (c *Collector) AddDropped(reason string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.EdgesDropped.WithLabelValues(reason).Add(float64(n))
}

// AddPruned counts what a prune pass removed.
func (c *Collector) AddPruned(edges, nodes int) {
	if c == nil {
		return
	}
	c.EdgesPruned.Add(float64(edges))
	c.NodesPruned.Add(float64(nodes))
}

// SetGraphSize records the size of the graph now being served.
func (c *Collector) SetGraphSize(nodes, edges int) {
	if c == nil {
		return
	}
	c.GraphNodes.Set(float64(nodes))
	c.GraphEdges.Set(float64(edges))
}
