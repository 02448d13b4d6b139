// Package classify maps decoded records onto typed semantic events. It is the
// only place that inspects raw positional payloads; everything downstream
// works on Event.
package classify

import (
	"encoding/json"
	stderrors "errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/drblury/scriptflow/internal/runtime/errors"
	"github.com/drblury/scriptflow/internal/runtime/records"
)

// Kind is the semantic kind of a record.
type Kind int

const (
	KindUnrecognized Kind = iota
	KindFragment
	KindContext
	KindStart
)

func (k Kind) String() string {
	switch k {
	case KindFragment:
		return "fragment"
	case KindContext:
		return "context"
	case KindStart:
		return "start"
	default:
		return "unrecognized"
	}
}

// Event is the classified view of one record. Only the payload fields that
// belong to Kind are populated.
type Event struct {
	Kind          Kind
	EventID       int
	CorrelationID string

	// Fragment payload.
	Sequence   int
	Total      int
	Content    string
	SourceName string

	// Context payload.
	ContextInfo string

	// Start payload.
	StartTime time.Time

	// Issues lists fields that were absent or malformed. The matching payload
	// field is left at its zero value.
	Issues []*errors.MalformedFieldError
}

// MaxFragments bounds fragment indices and declared totals. Larger values
// are reported as malformed.
const MaxFragments = 100000

// DefaultDisplayName is the name used for a correlation ID that never
// carried a source name.
func DefaultDisplayName(correlationID string) string {
	return "Fragment_" + correlationID
}

// Classifier extracts events using a fixed set of positional schemas.
type Classifier struct {
	schemas Schemas
}

// New returns a classifier for the given schemas.
func New(schemas Schemas) *Classifier {
	return &Classifier{schemas: schemas}
}

// Default returns a classifier using DefaultSchemas.
func Default() *Classifier {
	return New(DefaultSchemas())
}

// Classify is Default().Classify(rec).
func Classify(rec records.Record) Event {
	return Default().Classify(rec)
}

// Classify maps one record to an event. It has no side effects and never
// fails: malformed fields are reported through Event.Issues.
func (c *Classifier) Classify(rec records.Record) Event {
	p := &parser{rec: rec}
	ev := Event{EventID: rec.EventID}

	switch rec.EventID {
	case c.schemas.Fragment.EventID:
		s := c.schemas.Fragment
		ev.Kind = KindFragment
		ev.Sequence = p.positiveInt("MessageNumber", s.Sequence)
		ev.Total = p.positiveInt("MessageTotal", s.Total)
		ev.Content = p.text("ScriptBlockText", s.Content, true)
		ev.CorrelationID = p.correlationID("ScriptBlockId", s.CorrelationID)
		ev.SourceName = p.text("Path", s.SourceName, false)
	case c.schemas.Context.EventID:
		s := c.schemas.Context
		ev.Kind = KindContext
		ev.ContextInfo = p.text("ContextInfo", s.ContextInfo, true)
		ev.CorrelationID = p.correlationID("ScriptBlockId", s.CorrelationID)
	case c.schemas.Start.EventID:
		s := c.schemas.Start
		ev.Kind = KindStart
		ev.CorrelationID = p.correlationID("ScriptBlockId", s.CorrelationID)
		if rec.Created.IsZero() {
			p.issue("Created", -1, "missing creation timestamp")
		} else {
			ev.StartTime = rec.Created
		}
	default:
		ev.Kind = KindUnrecognized
		return ev
	}

	ev.Issues = p.issues
	return ev
}

type parser struct {
	rec    records.Record
	issues []*errors.MalformedFieldError
}

func (p *parser) issue(field string, index int, reason string) {
	p.issues = append(p.issues, &errors.MalformedFieldError{
		EventID: p.rec.EventID,
		Field:   field,
		Index:   index,
		Reason:  reason,
	})
}

func (p *parser) value(field string, index int, required bool) (any, bool) {
	v, ok := p.rec.Field(index)
	if !ok || v == nil {
		if required {
			p.issue(field, index, "missing")
		}
		return nil, false
	}
	return v, true
}

// text reads a string field. Optional fields only raise an issue when present
// with the wrong type.
func (p *parser) text(field string, index int, required bool) string {
	v, ok := p.value(field, index, required)
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		p.issue(field, index, "not a string")
		return ""
	}
	return s
}

func (p *parser) correlationID(field string, index int) string {
	v, ok := p.value(field, index, true)
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		p.issue(field, index, "not a string")
		return ""
	}
	s = strings.TrimSpace(s)
	if s == "" {
		p.issue(field, index, "empty")
	}
	return s
}

func (p *parser) positiveInt(field string, index int) int {
	v, ok := p.value(field, index, true)
	if !ok {
		return 0
	}
	n, reason := fragmentNumber(v)
	if reason != "" {
		p.issue(field, index, reason)
		return 0
	}
	return n
}

// fragmentNumber reads a fragment index or total. Every accepted shape is
// held to [1, MaxFragments]; the reason is empty on success.
func fragmentNumber(v any) (int, string) {
	n, reason := toInt64(v)
	switch {
	case reason != "":
		return 0, reason
	case n <= 0:
		return 0, "not positive"
	case n > MaxFragments:
		return 0, "out of range"
	}
	return int(n), ""
}

// toInt64 accepts JSON numbers, json.Number and numeric strings.
func toInt64(v any) (int64, string) {
	switch n := v.(type) {
	case int:
		return int64(n), ""
	case int64:
		return n, ""
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) || n != math.Trunc(n) {
			return 0, "not an integer"
		}
		if n > math.MaxInt64 || n < math.MinInt64 {
			return 0, "out of range"
		}
		return int64(n), ""
	case json.Number:
		return parseInt64(string(n))
	case string:
		return parseInt64(strings.TrimSpace(n))
	default:
		return 0, "not an integer"
	}
}

func parseInt64(s string) (int64, string) {
	i, err := strconv.ParseInt(s, 10, 64)
	if err == nil {
		return i, ""
	}
	if stderrors.Is(err, strconv.ErrRange) {
		return 0, "out of range"
	}
	return 0, "not an integer"
}
