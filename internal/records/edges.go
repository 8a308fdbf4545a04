package records

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/starford/commentnet/internal/apperr"
	"github.com/starford/commentnet/internal/models"
	"github.com/starford/commentnet/internal/parser"
)

// EdgeMagic prefixes every edge file.
var EdgeMagic = []byte("CNEDGE1\n")

// maxEdgeRecord bounds a single encoded record.
const maxEdgeRecord = 16 << 20

// Edge message field numbers.
const (
	fieldSource protowire.Number = 1
	fieldTarget protowire.Number = 2
	fieldDate   protowire.Number = 3
	fieldTime   protowire.Number = 4
	fieldWeight protowire.Number = 5
	fieldAttr   protowire.Number = 6

	fieldAttrKey   protowire.Number = 1
	fieldAttrValue protowire.Number = 2
)

// EdgeReader decodes raw edge records.
type EdgeReader struct {
	r      *bufio.Reader
	source string
	n      int
	header bool
	buf    []byte
}

// NewEdgeReader returns a reader over r; source names the input in errors.
func NewEdgeReader(r io.Reader, source string) *EdgeReader {
	return &EdgeReader{r: bufio.NewReaderSize(r, 64<<10), source: source}
}

// Next returns the next record, or io.EOF when the input is exhausted.
// An empty input holds zero records.
func (er *EdgeReader) Next() (models.EdgeRecord, error) {
	if !er.header {
		if err := er.readHeader(); err != nil {
			return models.EdgeRecord{}, err
		}
		er.header = true
	}

	size, err := binary.ReadUvarint(er.r)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return models.EdgeRecord{}, io.EOF
		}
		return models.EdgeRecord{}, er.formatErr(er.n+1, "length", err)
	}
	er.n++
	if size > maxEdgeRecord {
		return models.EdgeRecord{}, er.formatErr(er.n, "length", fmt.Errorf("record of %d bytes exceeds limit", size))
	}
	if cap(er.buf) < int(size) {
		er.buf = make([]byte, size)
	}
	buf := er.buf[:size]
	if _, err := io.ReadFull(er.r, buf); err != nil {
		return models.EdgeRecord{}, er.formatErr(er.n, "", fmt.Errorf("truncated record: %w", err))
	}

	rec, field, err := decodeEdge(buf)
	if err != nil {
		return models.EdgeRecord{}, er.formatErr(er.n, field, err)
	}
	return rec, nil
}

func (er *EdgeReader) readHeader() error {
	head := make([]byte, len(EdgeMagic))
	n, err := io.ReadFull(er.r, head)
	switch {
	case n == 0 && errors.Is(err, io.EOF):
		return io.EOF
	case err != nil:
		return er.formatErr(0, "header", fmt.Errorf("short header: %w", err))
	case !bytes.Equal(head, EdgeMagic):
		return er.formatErr(0, "header", fmt.Errorf("not an edge file"))
	}
	return nil
}

func (er *EdgeReader) formatErr(record int, field string, err error) error {
	return &apperr.FormatError{Source: er.source, Record: record, Field: field, Err: err}
}

func decodeEdge(b []byte) (models.EdgeRecord, string, error) {
	rec := models.EdgeRecord{Weight: 1}
	var date, clock string
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return rec, "", protowire.ParseError(n)
		}
		b = b[n:]

		switch {
		case typ == protowire.BytesType && (num == fieldSource || num == fieldTarget || num == fieldDate || num == fieldTime):
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return rec, fieldName(num), protowire.ParseError(n)
			}
			b = b[n:]
			switch num {
			case fieldSource:
				rec.Source = v
			case fieldTarget:
				rec.Target = v
			case fieldDate:
				date = v
			case fieldTime:
				clock = v
			}

		case num == fieldWeight && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return rec, "weight", protowire.ParseError(n)
			}
			b = b[n:]
			if v == 0 || v > 1<<31 {
				return rec, "weight", fmt.Errorf("weight %d out of range", v)
			}
			rec.Weight = int(v)

		case num == fieldAttr && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return rec, "attrs", protowire.ParseError(n)
			}
			b = b[n:]
			key, val, err := decodeAttr(v)
			if err != nil {
				return rec, "attrs", err
			}
			if rec.Attrs == nil {
				rec.Attrs = make(map[string]any)
			}
			rec.Attrs[key] = val

		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return rec, "", protowire.ParseError(n)
			}
			b = b[n:]
		}
	}

	if rec.Source == "" {
		return rec, "source", fmt.Errorf("missing source id")
	}
	if rec.Target == "" {
		return rec, "target", fmt.Errorf("missing target id")
	}
	d, err := parser.ParseDate(date)
	if err != nil {
		return rec, "date", err
	}
	rec.Date = d
	if rec.Time, err = parser.ParseTime(clock); err != nil {
		return rec, "time", err
	}
	return rec, "", nil
}

func decodeAttr(b []byte) (string, any, error) {
	var key string
	var raw []byte
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return "", nil, protowire.ParseError(n)
		}
		b = b[n:]
		switch {
		case num == fieldAttrKey && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return "", nil, protowire.ParseError(n)
			}
			key, b = v, b[n:]
		case num == fieldAttrValue && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return "", nil, protowire.ParseError(n)
			}
			raw, b = v, b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return "", nil, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	if key == "" {
		return "", nil, fmt.Errorf("attribute without key")
	}
	if len(raw) == 0 {
		return key, nil, nil
	}
	var val any
	if err := json.Unmarshal(raw, &val); err != nil {
		return "", nil, fmt.Errorf("attribute %q: %w", key, err)
	}
	return key, val, nil
}

func fieldName(num protowire.Number) string {
	switch num {
	case fieldSource:
		return "source"
	case fieldTarget:
		return "target"
	case fieldDate:
		return "date"
	case fieldTime:
		return "time"
	}
	return ""
}

// EdgeWriter encodes raw edge records.
type EdgeWriter struct {
	w      io.Writer
	header bool
	msg    []byte
	frame  []byte
}

// NewEdgeWriter returns a writer emitting edge records to w.
func NewEdgeWriter(w io.Writer) *EdgeWriter {
	return &EdgeWriter{w: w}
}

// Write appends one record. Weight 0 is written as the default weight 1.
func (ew *EdgeWriter) Write(rec models.EdgeRecord) error {
	if err := ew.writeHeader(); err != nil {
		return err
	}

	m := ew.msg[:0]
	m = protowire.AppendTag(m, fieldSource, protowire.BytesType)
	m = protowire.AppendString(m, rec.Source)
	m = protowire.AppendTag(m, fieldTarget, protowire.BytesType)
	m = protowire.AppendString(m, rec.Target)
	m = protowire.AppendTag(m, fieldDate, protowire.BytesType)
	m = protowire.AppendString(m, parser.FormatDate(rec.Date))
	if rec.Time != "" {
		m = protowire.AppendTag(m, fieldTime, protowire.BytesType)
		m = protowire.AppendString(m, rec.Time)
	}
	if rec.Weight > 1 {
		m = protowire.AppendTag(m, fieldWeight, protowire.VarintType)
		m = protowire.AppendVarint(m, uint64(rec.Weight))
	}

	keys := make([]string, 0, len(rec.Attrs))
	for k := range rec.Attrs {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		raw, err := json.Marshal(rec.Attrs[k])
		if err != nil {
			return fmt.Errorf("records: encode attribute %q: %w", k, err)
		}
		var entry []byte
		entry = protowire.AppendTag(entry, fieldAttrKey, protowire.BytesType)
		entry = protowire.AppendString(entry, k)
		entry = protowire.AppendTag(entry, fieldAttrValue, protowire.BytesType)
		entry = protowire.AppendBytes(entry, raw)
		m = protowire.AppendTag(m, fieldAttr, protowire.BytesType)
		m = protowire.AppendBytes(m, entry)
	}
	ew.msg = m

	ew.frame = binary.AppendUvarint(ew.frame[:0], uint64(len(m)))
	if _, err := ew.w.Write(ew.frame); err != nil {
		return fmt.Errorf("records: write edge: %w", err)
	}
	if _, err := ew.w.Write(m); err != nil {
		return fmt.Errorf("records: write edge: %w", err)
	}
	return nil
}

// Close writes the file header if no record has been written, so that an empty
// edge set still produces a valid edge file.
func (ew *EdgeWriter) Close() error {
	return ew.writeHeader()
}

func (ew *EdgeWriter) writeHeader() error {
	if ew.header {
		return nil
	}
	if _, err := ew.w.Write(EdgeMagic); err != nil {
		return fmt.Errorf("records: write header: %w", err)
	}
	ew.header = true
	return nil
}
