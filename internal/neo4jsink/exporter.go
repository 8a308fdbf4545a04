// Package neo4jsink exports a finished interaction graph to Neo4j.
package neo4jsink

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/starford/commentnet/internal/graph"
	"github.com/starford/commentnet/internal/parser"
)

// DefaultBatchSize is the number of rows sent per UNWIND statement.
const DefaultBatchSize = 500

const mergeAuthors = `
	UNWIND $rows AS row
	MERGE (a:Author {id: row.id})
	SET a.comments = row.comments`

const mergeInteractions = `
	UNWIND $rows AS row
	MATCH (s:Author {id: row.source})
	MATCH (t:Author {id: row.target})
	MERGE (s)-[r:INTERACTED]->(t)
	SET r += row.props`

// Exporter writes graphs into a Neo4j database.
type Exporter struct {
	driver    neo4j.DriverWithContext
	database  string
	batchSize int
	logger    *slog.Logger
}

// NewExporter connects to uri with basic auth. database may be empty for the server default.
func NewExporter(uri, user, password, database string, logger *slog.Logger) (*Exporter, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j: create driver: %w", err)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Exporter{driver: driver, database: database, batchSize: DefaultBatchSize, logger: logger}, nil
}

// Verify checks that the server is reachable with the configured credentials.
func (e *Exporter) Verify(ctx context.Context) error {
	if err := e.driver.VerifyConnectivity(ctx); err != nil {
		return fmt.Errorf("neo4j: verify connectivity: %w", err)
	}
	return nil
}

// Close releases the driver.
func (e *Exporter) Close(ctx context.Context) error {
	return e.driver.Close(ctx)
}

// Export merges every node as an :Author and every edge as an :INTERACTED relationship.
// Existing relationships between the same pair are overwritten, not accumulated.
func (e *Exporter) Export(ctx context.Context, g *graph.Graph) error {
	session := e.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: e.database,
	})
	defer session.Close(ctx)

	authors := authorRows(g)
	for _, batch := range chunk(authors, e.batchSize) {
		if err := e.write(ctx, session, mergeAuthors, batch); err != nil {
			return fmt.Errorf("neo4j: merge authors: %w", err)
		}
	}
	edges := edgeRows(g)
	for _, batch := range chunk(edges, e.batchSize) {
		if err := e.write(ctx, session, mergeInteractions, batch); err != nil {
			return fmt.Errorf("neo4j: merge interactions: %w", err)
		}
	}

	e.logger.Info("graph exported to neo4j",
		slog.Int("authors", len(authors)),
		slog.Int("interactions", len(edges)),
	)
	return nil
}

func (e *Exporter) write(ctx context.Context, session neo4j.SessionWithContext, query string, rows []map[string]any) error {
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, map[string]any{"rows": rows})
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	return err
}

func authorRows(g *graph.Graph) []map[string]any {
	rows := make([]map[string]any, 0, g.NumNodes())
	for n := range g.AllNodes() {
		rows = append(rows, map[string]any{
			"id":       n.ID(),
			"comments": int64(n.CommentCount()),
		})
	}
	return rows
}

func edgeRows(g *graph.Graph) []map[string]any {
	rows := make([]map[string]any, 0, g.NumEdges())
	for e := range g.AllEdges() {
		props := map[string]any{
			"weight":   int64(e.Weight),
			"first":    parser.FormatDate(e.First().Date),
			"last":     parser.FormatDate(e.Last().Date),
			"directed": g.Directed(),
		}
		// Relationship properties must be primitives or arrays of them.
		for k, v := range e.Attrs {
			props["attr_"+k] = property(v)
		}
		rows = append(rows, map[string]any{
			"source": e.Source,
			"target": e.Target,
			"props":  props,
		})
	}
	return rows
}

func property(v any) any {
	switch x := v.(type) {
	case string, bool, int64, float64:
		return x
	case int:
		return int64(x)
	case float32:
		return float64(x)
	case nil:
		return ""
	default:
		return fmt.Sprint(x)
	}
}

func chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = DefaultBatchSize
	}
	var out [][]T
	for len(items) > size {
		out = append(out, items[:size])
		items = items[size:]
	}
	if len(items) > 0 {
		out = append(out, items)
	}
	return out
}
