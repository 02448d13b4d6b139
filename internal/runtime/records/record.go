// Package records defines the decoded event-log record consumed by the
// reconstruction pipeline, together with its JSON Lines and message codecs.
package records

import (
	"fmt"
	"io"
	"time"

	"github.com/drblury/scriptflow/internal/runtime/jsoncodec"
)

// Record is one already-decoded log record: a kind discriminator, an untyped
// positional payload, and the record creation time.
type Record struct {
	EventID int       `json:"event_id"`
	Created time.Time `json:"created"`
	Fields  []any     `json:"fields"`
	// Source optionally labels the stream the record was read from.
	Source string `json:"source,omitempty"`
}

// Field returns the positional field at index i.
func (r Record) Field(i int) (any, bool) {
	if i < 0 || i >= len(r.Fields) {
		return nil, false
	}
	return r.Fields[i], true
}

// Decode parses one JSON-encoded record.
func Decode(data []byte) (Record, error) {
	var rec Record
	if err := jsoncodec.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("decode record: %w", err)
	}
	return rec, nil
}

// Encode serialises a record as JSON.
func Encode(rec Record) ([]byte, error) {
	return jsoncodec.Marshal(rec)
}

// ReadJSONL decodes a JSON Lines stream, one record per non-blank line.
// Records without a Source are labelled with source.
func ReadJSONL(r io.Reader, source string) ([]Record, error) {
	var out []Record
	err := jsoncodec.EachLine(r, func(lineNo int, line []byte) error {
		rec, err := Decode(line)
		if err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
		if rec.Source == "" {
			rec.Source = source
		}
		out = append(out, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// WriteJSONL encodes records one per line.
func WriteJSONL(w io.Writer, recs []Record) error {
	for _, rec := range recs {
		if err := jsoncodec.Encode(w, rec); err != nil {
			return err
		}
	}
	return nil
}
