// Package aggregate folds classified events into one accumulator per
// correlation ID.
//
// Field update rules, applied in arrival order:
//
//   - fragment: Fragments[Sequence] = Content (last write wins per key),
//     TotalFragments = Total, DisplayName = SourceName when non-empty
//   - context: ContextInfo = ContextInfo (last write wins)
//   - start: StartTime = StartTime (last write wins)
//
// Payload values the classifier could not extract are treated as absent and
// never overwrite an earlier value. Unrecognized and correlation-less events
// are counted in Stats and otherwise ignored.
package aggregate

import (
	"sort"
	"time"

	"github.com/drblury/scriptflow/internal/runtime/classify"
	"github.com/drblury/scriptflow/internal/runtime/errors"
)

// Accumulator collects everything seen for one correlation ID.
type Accumulator struct {
	CorrelationID  string
	Fragments      map[int]string
	TotalFragments int
	DisplayName    string
	ContextInfo    *string
	StartTime      *time.Time
}

func newAccumulator(correlationID string) *Accumulator {
	return &Accumulator{
		CorrelationID: correlationID,
		Fragments:     make(map[int]string),
		DisplayName:   classify.DefaultDisplayName(correlationID),
	}
}

// Keys returns the fragment sequence numbers in ascending numeric order.
func (a *Accumulator) Keys() []int {
	keys := make([]int, 0, len(a.Fragments))
	for k := range a.Fragments {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

// Stats counts events by how the aggregator treated them.
type Stats struct {
	Events       int
	Fragments    int
	Contexts     int
	Starts       int
	Unrecognized int
	// Discarded counts recognized events without a correlation ID.
	Discarded int
}

// Issue is a malformed field reported by the classifier, tagged with the
// correlation ID of its event (empty when the ID itself was unreadable).
type Issue struct {
	CorrelationID string
	Err           *errors.MalformedFieldError
}

// Set owns the accumulators of one stream in first-sighting order.
type Set struct {
	order  []string
	byID   map[string]*Accumulator
	stats  Stats
	issues []Issue
}

func newSet() *Set {
	return &Set{byID: make(map[string]*Accumulator)}
}

// Len returns the number of correlation IDs.
func (s *Set) Len() int { return len(s.order) }

// Get returns the accumulator for correlationID.
func (s *Set) Get(correlationID string) (*Accumulator, bool) {
	acc, ok := s.byID[correlationID]
	return acc, ok
}

// IDs returns correlation IDs in the order they were first seen.
func (s *Set) IDs() []string {
	return append([]string(nil), s.order...)
}

// All returns the accumulators in the order their IDs were first seen.
func (s *Set) All() []*Accumulator {
	out := make([]*Accumulator, len(s.order))
	for i, id := range s.order {
		out[i] = s.byID[id]
	}
	return out
}

// Stats returns event counters for the stream.
func (s *Set) Stats() Stats { return s.stats }

// Issues returns malformed fields in arrival order.
func (s *Set) Issues() []Issue {
	return append([]Issue(nil), s.issues...)
}

func (s *Set) getOrCreate(correlationID string) *Accumulator {
	if acc, ok := s.byID[correlationID]; ok {
		return acc
	}
	acc := newAccumulator(correlationID)
	s.byID[correlationID] = acc
	s.order = append(s.order, correlationID)
	return acc
}

// Aggregator builds a Set incrementally. It is not safe for concurrent use;
// one aggregator serves one stream.
type Aggregator struct {
	set *Set
}

// New returns an empty aggregator.
func New() *Aggregator {
	return &Aggregator{set: newSet()}
}

// Add folds one event into the set.
func (a *Aggregator) Add(ev classify.Event) error {
	if a.set == nil {
		return errors.ErrAggregatorClosed
	}
	s := a.set
	s.stats.Events++

	for _, issue := range ev.Issues {
		s.issues = append(s.issues, Issue{CorrelationID: ev.CorrelationID, Err: issue})
	}

	if ev.Kind == classify.KindUnrecognized {
		s.stats.Unrecognized++
		return nil
	}
	if ev.CorrelationID == "" {
		s.stats.Discarded++
		return nil
	}

	acc := s.getOrCreate(ev.CorrelationID)
	switch ev.Kind {
	case classify.KindFragment:
		s.stats.Fragments++
		if ev.Sequence > 0 {
			acc.Fragments[ev.Sequence] = ev.Content
		}
		if ev.Total > 0 {
			acc.TotalFragments = ev.Total
		}
		if ev.SourceName != "" {
			acc.DisplayName = ev.SourceName
		}
	case classify.KindContext:
		s.stats.Contexts++
		if ev.ContextInfo != "" {
			info := ev.ContextInfo
			acc.ContextInfo = &info
		}
	case classify.KindStart:
		s.stats.Starts++
		if !ev.StartTime.IsZero() {
			started := ev.StartTime
			acc.StartTime = &started
		}
	}
	return nil
}

// Finish hands the set off to the caller. The aggregator cannot be used
// afterwards; further calls return errors.ErrAggregatorClosed.
func (a *Aggregator) Finish() (*Set, error) {
	if a.set == nil {
		return nil, errors.ErrAggregatorClosed
	}
	set := a.set
	a.set = nil
	return set, nil
}

// Aggregate folds events in a single pass.
func Aggregate(events []classify.Event) *Set {
	agg := New()
	for _, ev := range events {
		_ = agg.Add(ev)
	}
	set, _ := agg.Finish()
	return set
}
