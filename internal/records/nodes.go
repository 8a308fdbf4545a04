// Package records encodes and decodes the node-record and edge-record corpus files.
//
// Node records are JSON Lines, one author per line, so new ledgers can be appended
// without rewriting the file. Edge records are a compact binary stream of
// length-delimited protobuf-wire messages.
package records

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/starford/commentnet/internal/apperr"
	"github.com/starford/commentnet/internal/models"
	"github.com/starford/commentnet/internal/parser"
)

// NodeRecord is one line of the node file: an author id and (part of) its ledger.
type NodeRecord struct {
	ID       string
	Comments []models.Comment
}

type nodeLine struct {
	ID       string        `json:"id"`
	Comments []commentLine `json:"comments"`
}

type commentLine struct {
	Date  string         `json:"date"`
	Time  string         `json:"time,omitempty"`
	Text  string         `json:"text"`
	Attrs map[string]any `json:"attrs,omitempty"`
}

// NodeReader reads node records line by line.
type NodeReader struct {
	r      *bufio.Reader
	source string
	line   int
}

// NewNodeReader returns a reader over r; source names the input in errors.
func NewNodeReader(r io.Reader, source string) *NodeReader {
	return &NodeReader{r: bufio.NewReaderSize(r, 64<<10), source: source}
}

// Next returns the next record, or io.EOF when the input is exhausted.
// Blank lines are skipped.
func (nr *NodeReader) Next() (NodeRecord, error) {
	for {
		raw, err := nr.r.ReadBytes('\n')
		if len(raw) == 0 && err != nil {
			if errors.Is(err, io.EOF) {
				return NodeRecord{}, io.EOF
			}
			return NodeRecord{}, &apperr.IOError{Path: nr.source, Err: err}
		}
		nr.line++
		if err != nil && !errors.Is(err, io.EOF) {
			return NodeRecord{}, &apperr.IOError{Path: nr.source, Err: err}
		}
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 {
			continue
		}
		return nr.decode(raw)
	}
}

func (nr *NodeReader) decode(raw []byte) (NodeRecord, error) {
	var nl nodeLine
	if err := json.Unmarshal(raw, &nl); err != nil {
		return NodeRecord{}, nr.formatErr("", err)
	}
	if nl.ID == "" {
		return NodeRecord{}, nr.formatErr("id", fmt.Errorf("missing node id"))
	}
	rec := NodeRecord{ID: nl.ID, Comments: make([]models.Comment, 0, len(nl.Comments))}
	for i, cl := range nl.Comments {
		d, err := parser.ParseDate(cl.Date)
		if err != nil {
			return NodeRecord{}, nr.formatErr(fmt.Sprintf("comments[%d].date", i), err)
		}
		clock, err := parser.ParseTime(cl.Time)
		if err != nil {
			return NodeRecord{}, nr.formatErr(fmt.Sprintf("comments[%d].time", i), err)
		}
		rec.Comments = append(rec.Comments, models.Comment{
			Date:  d,
			Time:  clock,
			Text:  cl.Text,
			Attrs: cl.Attrs,
		})
	}
	return rec, nil
}

func (nr *NodeReader) formatErr(field string, err error) error {
	return &apperr.FormatError{Source: nr.source, Record: nr.line, Field: field, Err: err}
}

// NodeWriter writes node records as JSON Lines.
type NodeWriter struct {
	enc *json.Encoder
}

// NewNodeWriter returns a writer emitting one JSON object per line to w.
func NewNodeWriter(w io.Writer) *NodeWriter {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &NodeWriter{enc: enc}
}

// Write appends one record.
func (nw *NodeWriter) Write(rec NodeRecord) error {
	nl := nodeLine{ID: rec.ID, Comments: make([]commentLine, len(rec.Comments))}
	for i, c := range rec.Comments {
		nl.Comments[i] = commentLine{
			Date:  parser.FormatDate(c.Date),
			Time:  c.Time,
			Text:  c.Text,
			Attrs: c.Attrs,
		}
	}
	if err := nw.enc.Encode(nl); err != nil {
		return fmt.Errorf("records: encode node %s: %w", rec.ID, err)
	}
	return nil
}
