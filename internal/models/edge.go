package models

import (
	"maps"
	"time"
)

// EdgeRecord is one raw interaction between two authors as stored in the edge file.
type EdgeRecord struct {
	Source string
	Target string
	Date   time.Time
	Time   string
	Weight int
	Attrs  map[string]any
}

// Clone returns a copy of r with its own attribute map.
func (r EdgeRecord) Clone() EdgeRecord {
	r.Attrs = maps.Clone(r.Attrs)
	return r
}
