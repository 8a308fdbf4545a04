package index

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/starford/commentnet/internal/apperr"
	"github.com/starford/commentnet/internal/graph"
	"github.com/starford/commentnet/internal/parser"
)

// BuildRow represents a row in the builds table.
type BuildRow struct {
	ID        string
	BuiltAt   time.Time
	Checksums map[string]string
	Nodes     int
	Edges     int
	RawEdges  int
	Warnings  int
}

// NodeRow represents a row in the nodes table.
type NodeRow struct {
	ID       string
	Comments int
	Tokens   int
	Degree   int
	First    string
	Last     string
}

// EdgeRow represents a row in the edges table.
type EdgeRow struct {
	Source string
	Target string
	Weight int
	First  string
	Last   string
	Attrs  map[string]any
}

// SearchResult represents one comment matching a search.
type SearchResult struct {
	NodeID  string
	Date    string
	Snippet string
}

// ReplaceGraph records b in the build history and replaces the materialised graph with
// b.Graph, all within one transaction. The graph must be frozen.
func (db *DB) ReplaceGraph(b *graph.Build) error {
	g := b.Graph
	if !g.Frozen() {
		return fmt.Errorf("index: replace graph: graph is not frozen")
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	sums, _ := json.Marshal(b.Checksums)
	_, err = tx.Exec(`
		INSERT INTO builds (id, built_at, checksums, nodes, edges, raw_edges, warnings)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, b.ID, b.BuiltAt, string(sums), g.NumNodes(), g.NumEdges(), b.Report.RawEdges, len(b.Report.Warnings))
	if err != nil {
		return fmt.Errorf("index: insert build: %w", err)
	}

	for _, table := range []string{"edges", "comments", "nodes"} {
		if _, err := tx.Exec(`DELETE FROM ` + table); err != nil {
			return fmt.Errorf("index: clear %s: %w", table, err)
		}
	}
	if err := ftsClear(tx); err != nil {
		return err
	}

	if err := insertNodes(tx, g); err != nil {
		return err
	}
	if err := insertEdges(tx, g); err != nil {
		return err
	}
	return tx.Commit()
}

func insertNodes(tx *sql.Tx, g *graph.Graph) error {
	nodeStmt, err := tx.Prepare(`
		INSERT INTO nodes (id, comments, tokens, degree, first_date, last_date)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("index: prepare node insert: %w", err)
	}
	defer nodeStmt.Close()

	commentStmt, err := tx.Prepare(`INSERT INTO comments (node_id, date, time, board, body) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("index: prepare comment insert: %w", err)
	}
	defer commentStmt.Close()

	for n := range g.AllNodes() {
		s := n.CorpusStats(graph.StatsQuery{})
		var first, last string
		if s.Comments > 0 {
			first, last = parser.FormatDate(s.First), parser.FormatDate(s.Last)
		}
		if _, err := nodeStmt.Exec(n.ID(), s.Comments, s.Tokens, g.Degree(n.ID()), first, last); err != nil {
			return fmt.Errorf("index: insert node %s: %w", n.ID(), err)
		}
		for _, c := range n.Comments() {
			date := parser.FormatDate(c.Date)
			if _, err := commentStmt.Exec(n.ID(), date, c.Time, c.Board(), c.Text); err != nil {
				return fmt.Errorf("index: insert comment: %w", err)
			}
			if err := ftsInsert(tx, n.ID(), date, c.Text); err != nil {
				return err
			}
		}
	}
	return nil
}

func insertEdges(tx *sql.Tx, g *graph.Graph) error {
	stmt, err := tx.Prepare(`
		INSERT INTO edges (source, target, weight, first_date, last_date, attrs)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(source, target) DO UPDATE SET
			weight     = edges.weight + excluded.weight,
			first_date = min(edges.first_date, excluded.first_date),
			last_date  = max(edges.last_date, excluded.last_date)
	`)
	if err != nil {
		return fmt.Errorf("index: prepare edge insert: %w", err)
	}
	defer stmt.Close()

	for e := range g.AllEdges() {
		attrs := []byte("{}")
		if len(e.Attrs) > 0 {
			if attrs, err = json.Marshal(e.Attrs); err != nil {
				return fmt.Errorf("index: encode attrs %s -> %s: %w", e.Source, e.Target, err)
			}
		}
		first, last := parser.FormatDate(e.First().Date), parser.FormatDate(e.Last().Date)
		if _, err := stmt.Exec(e.Source, e.Target, e.Weight, first, last, string(attrs)); err != nil {
			return fmt.Errorf("index: insert edge %s -> %s: %w", e.Source, e.Target, err)
		}
	}
	return nil
}

// LatestBuild returns the most recently recorded build.
func (db *DB) LatestBuild() (*BuildRow, error) {
	var (
		b    BuildRow
		sums string
	)
	err := db.conn.QueryRow(`
		SELECT id, built_at, checksums, nodes, edges, raw_edges, warnings
		FROM builds ORDER BY rowid DESC LIMIT 1
	`).Scan(&b.ID, &b.BuiltAt, &sums, &b.Nodes, &b.Edges, &b.RawEdges, &b.Warnings)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: latest build: %w", apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("index: latest build: %w", err)
	}
	if err := json.Unmarshal([]byte(sums), &b.Checksums); err != nil {
		return nil, fmt.Errorf("index: decode checksums: %w", err)
	}
	return &b, nil
}

// Node returns the materialised row for one author.
func (db *DB) Node(id string) (*NodeRow, error) {
	var n NodeRow
	err := db.conn.QueryRow(`
		SELECT id, comments, tokens, degree, first_date, last_date FROM nodes WHERE id = ?
	`, id).Scan(&n.ID, &n.Comments, &n.Tokens, &n.Degree, &n.First, &n.Last)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: node %q: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("index: node %q: %w", id, err)
	}
	return &n, nil
}

// Neighbors returns the edges touching id, heaviest first.
func (db *DB) Neighbors(id string) ([]EdgeRow, error) {
	rows, err := db.conn.Query(`
		SELECT source, target, weight, first_date, last_date, attrs
		FROM edges
		WHERE source = ? OR target = ?
		ORDER BY weight DESC, source, target
	`, id, id)
	if err != nil {
		return nil, fmt.Errorf("index: neighbors: %w", err)
	}
	return scanEdges(rows)
}

// TopEdges returns the limit heaviest edges.
func (db *DB) TopEdges(limit int) ([]EdgeRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(`
		SELECT source, target, weight, first_date, last_date, attrs
		FROM edges
		ORDER BY weight DESC, source, target
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("index: top edges: %w", err)
	}
	return scanEdges(rows)
}

func scanEdges(rows *sql.Rows) ([]EdgeRow, error) {
	defer rows.Close()
	var out []EdgeRow
	for rows.Next() {
		var (
			e     EdgeRow
			attrs string
		)
		if err := rows.Scan(&e.Source, &e.Target, &e.Weight, &e.First, &e.Last, &attrs); err != nil {
			return nil, err
		}
		if attrs != "{}" {
			if err := json.Unmarshal([]byte(attrs), &e.Attrs); err != nil {
				return nil, fmt.Errorf("index: decode attrs: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Counts returns the number of materialised nodes and edges.
func (db *DB) Counts() (nodes, edges int, err error) {
	err = db.conn.QueryRow(`SELECT (SELECT count(*) FROM nodes), (SELECT count(*) FROM edges)`).Scan(&nodes, &edges)
	if err != nil {
		return 0, 0, fmt.Errorf("index: counts: %w", err)
	}
	return nodes, edges, nil
}
