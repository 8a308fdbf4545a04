// Package testutil provides shared test helpers for setting up corpora and databases.
package testutil

import (
	"io"
	"os"
	"testing"
	"time"

	"github.com/starford/commentnet/internal/index"
	"github.com/starford/commentnet/internal/models"
	"github.com/starford/commentnet/internal/records"
	"github.com/starford/commentnet/internal/storage"
)

// Corpus file names used by the fixtures.
const (
	NodeFile = "nodes.jsonl"
	EdgeFile = "edges.bin"
)

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "commentnet-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestCorpus creates a temporary corpus directory with a storage provider.
func TestCorpus(t *testing.T) (string, *storage.FS) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, store
}

// Day parses a YYYY-MM-DD date or fails the test.
func Day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse(models.DateLayout, s)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

// WriteNodes writes a node file at path.
func WriteNodes(t *testing.T, store storage.Provider, path string, recs ...records.NodeRecord) {
	t.Helper()
	err := store.Create(path, func(w io.Writer) error {
		nw := records.NewNodeWriter(w)
		for _, r := range recs {
			if err := nw.Write(r); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

// WriteEdges writes an edge file at path.
func WriteEdges(t *testing.T, store storage.Provider, path string, recs ...models.EdgeRecord) {
	t.Helper()
	err := store.Create(path, func(w io.Writer) error {
		ew := records.NewEdgeWriter(w)
		for _, r := range recs {
			if err := ew.Write(r); err != nil {
				return err
			}
		}
		return ew.Close()
	})
	if err != nil {
		t.Fatal(err)
	}
}

// Authors returns node records with no comments for each id.
func Authors(ids ...string) []records.NodeRecord {
	out := make([]records.NodeRecord, len(ids))
	for i, id := range ids {
		out[i] = records.NodeRecord{ID: id}
	}
	return out
}

// Reply builds a weight-1 edge record on date with optional attributes.
func Reply(t *testing.T, source, target, date string, attrs map[string]any) models.EdgeRecord {
	t.Helper()
	return models.EdgeRecord{Source: source, Target: target, Date: Day(t, date), Weight: 1, Attrs: attrs}
}
