// Package storage defines the corpus file-system abstraction.
package storage

import (
	"io"
	"time"
)

// FileMeta describes one corpus file.
type FileMeta struct {
	Path      string
	Size      int64
	Checksum  string
	UpdatedAt time.Time
}

// Provider is the interface for corpus file operations. Paths are relative to the
// corpus root.
type Provider interface {
	// Open returns a reader over the file at path.
	Open(path string) (io.ReadCloser, error)
	// Create atomically replaces path with whatever write produces.
	Create(path string, write func(w io.Writer) error) error
	// Stat returns size, modification time and content checksum of path.
	Stat(path string) (FileMeta, error)
	// Abs resolves path to an absolute file-system path.
	Abs(path string) (string, error)
}
