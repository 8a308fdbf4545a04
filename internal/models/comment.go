// Package models defines the plain data types shared by the corpus codecs and the graph.
package models

import (
	"maps"
	"time"
)

// Comment is one entry of an author's comment ledger.
type Comment struct {
	Date  time.Time
	Time  string // normalised HH:MM:SS, empty when unknown
	Text  string
	Attrs map[string]any
}

// Board returns the "board" attribute, or empty string.
func (c Comment) Board() string {
	s, _ := c.Attrs["board"].(string)
	return s
}

// Type returns the "type" attribute (pos, neg, neu on the board corpus), or empty string.
func (c Comment) Type() string {
	s, _ := c.Attrs["type"].(string)
	return s
}

// Before reports whether c sorts strictly before o chronologically.
func (c Comment) Before(o Comment) bool {
	if !c.Date.Equal(o.Date) {
		return c.Date.Before(o.Date)
	}
	return c.Time < o.Time
}

// Clone returns a copy of c with its own attribute map.
func (c Comment) Clone() Comment {
	c.Attrs = maps.Clone(c.Attrs)
	return c
}
