// Package index materialises a finished graph into SQLite, with optional FTS5 search over
// comment text, and watches the corpus files a graph was built from.
package index

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS builds (
	id         TEXT PRIMARY KEY,
	built_at   DATETIME NOT NULL,
	checksums  TEXT NOT NULL DEFAULT '{}',
	nodes      INTEGER NOT NULL DEFAULT 0,
	edges      INTEGER NOT NULL DEFAULT 0,
	raw_edges  INTEGER NOT NULL DEFAULT 0,
	warnings   INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS nodes (
	id         TEXT PRIMARY KEY,
	comments   INTEGER NOT NULL DEFAULT 0,
	tokens     INTEGER NOT NULL DEFAULT 0,
	degree     INTEGER NOT NULL DEFAULT 0,
	first_date TEXT NOT NULL DEFAULT '',
	last_date  TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS edges (
	source     TEXT NOT NULL,
	target     TEXT NOT NULL,
	weight     INTEGER NOT NULL,
	first_date TEXT NOT NULL,
	last_date  TEXT NOT NULL,
	attrs      TEXT NOT NULL DEFAULT '{}',
	UNIQUE(source, target)
);

CREATE INDEX IF NOT EXISTS idx_edges_source ON edges(source);
CREATE INDEX IF NOT EXISTS idx_edges_target ON edges(target);
CREATE INDEX IF NOT EXISTS idx_edges_weight ON edges(weight);

CREATE TABLE IF NOT EXISTS comments (
	node_id TEXT NOT NULL,
	date    TEXT NOT NULL,
	time    TEXT NOT NULL DEFAULT '',
	board   TEXT NOT NULL DEFAULT '',
	body    TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_comments_node ON comments(node_id);
`

// DB wraps a sql.DB with index-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("index: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply core schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply fts schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
