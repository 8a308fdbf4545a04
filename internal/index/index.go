package index

import "github.com/starford/commentnet/internal/graph"

// GraphIndex is the read/write surface of the SQLite materialisation.
// Consumers should depend on this interface rather than the concrete *DB type.
type GraphIndex interface {
	ReplaceGraph(b *graph.Build) error
	LatestBuild() (*BuildRow, error)
	Node(id string) (*NodeRow, error)
	Neighbors(id string) ([]EdgeRow, error)
	TopEdges(limit int) ([]EdgeRow, error)
	Counts() (nodes, edges int, err error)
	Search(query string, limit int) ([]SearchResult, error)
	Close() error
}

// Verify *DB satisfies GraphIndex at compile time.
var _ GraphIndex = (*DB)(nil)
