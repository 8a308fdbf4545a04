package graph

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Build is a frozen graph together with how it was produced.
type Build struct {
	ID      string
	BuiltAt time.Time
	Graph   *Graph
	Report  Report
	// Checksums of the corpus files the graph was built from, keyed by path.
	Checksums map[string]string
}

// NewBuild freezes g and wraps it with a fresh build id.
func NewBuild(g *Graph, rep Report, checksums map[string]string) *Build {
	g.Freeze()
	return &Build{
		ID:        uuid.NewString(),
		BuiltAt:   time.Now().UTC(),
		Graph:     g,
		Report:    rep,
		Checksums: checksums,
	}
}

// Snapshot publishes the current build to concurrent readers without locking.
type Snapshot struct {
	current atomic.Pointer[Build]
}

// Load returns the current build, or nil before the first Swap.
func (s *Snapshot) Load() *Build {
	return s.current.Load()
}

// Swap publishes b and returns the build it replaced.
func (s *Snapshot) Swap(b *Build) *Build {
	return s.current.Swap(b)
}
