package errors

import (
	sterrors "errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrConfigRequired    = sterrors.New("scriptflow: configuration is required")
	ErrLoggerRequired    = sterrors.New("scriptflow: logger is required")
	ErrSinkRequired      = sterrors.New("scriptflow: artifact sink is required")
	ErrSourceRequired    = sterrors.New("scriptflow: record source is required")
	ErrPublisherRequired = sterrors.New("scriptflow: publisher is required")
	ErrTopicRequired     = sterrors.New("scriptflow: topic is required")
	ErrServiceRequired   = sterrors.New("scriptflow: service is required")
	ErrAggregatorClosed  = sterrors.New("scriptflow: aggregator already finished")

	// Error taxonomy. Every typed error below unwraps to one of these.
	ErrMalformedRecordField = sterrors.New("scriptflow: malformed record field")
	ErrIncompleteArtifact   = sterrors.New("scriptflow: incomplete artifact")
	ErrNoContent            = sterrors.New("scriptflow: no content")
	ErrSinkWrite            = sterrors.New("scriptflow: sink write failure")
	ErrSourceUnavailable    = sterrors.New("scriptflow: source unavailable")
	ErrUnprocessableRecord  = sterrors.New("scriptflow: unprocessable record")
	ErrIdentifierExhausted  = sterrors.New("scriptflow: no free artifact identifier")
	ErrNotClaimed           = sterrors.New("scriptflow: identifier was not claimed")
)

// ConfigValidationError wraps the joined validation errors of a Config.
type ConfigValidationError struct {
	Err error
}

func (e ConfigValidationError) Error() string {
	return "scriptflow: invalid configuration: " + e.Err.Error()
}

func (e ConfigValidationError) Unwrap() error { return e.Err }

// NewConfigValidationError returns nil when err is nil.
func NewConfigValidationError(err error) error {
	if err == nil {
		return nil
	}
	return ConfigValidationError{Err: err}
}

// MalformedFieldError describes a positional record field that was absent or
// had the wrong shape. The classifier records it and leaves the field empty.
type MalformedFieldError struct {
	EventID int
	Field   string
	Index   int
	Reason  string
}

func (e *MalformedFieldError) Error() string {
	return fmt.Sprintf("scriptflow: event %d field %s (#%d): %s", e.EventID, e.Field, e.Index, e.Reason)
}

func (e *MalformedFieldError) Unwrap() error { return ErrMalformedRecordField }

// IncompleteArtifactError reports the fragment indices absent from
// [1, Total] for one correlation ID. Total is zero when no fragment carried a
// readable total.
type IncompleteArtifactError struct {
	CorrelationID string
	Total         int
	Missing       []int
	// MissingRanges, when set, covers every gap and takes precedence over
	// Missing in the message.
	MissingRanges []IntRange
}

func (e *IncompleteArtifactError) Error() string {
	if e.Total <= 0 {
		return fmt.Sprintf("scriptflow: artifact %s incomplete: fragment total unknown", e.CorrelationID)
	}
	missing := JoinInts(e.Missing)
	if len(e.MissingRanges) > 0 {
		missing = FormatRanges(e.MissingRanges)
	}
	return fmt.Sprintf("scriptflow: artifact %s incomplete: missing fragment(s) %s of %d",
		e.CorrelationID, missing, e.Total)
}

func (e *IncompleteArtifactError) Unwrap() error { return ErrIncompleteArtifact }

// NoContentError is returned for a correlation ID that has neither fragments
// nor context information.
type NoContentError struct {
	CorrelationID string
}

func (e *NoContentError) Error() string {
	return fmt.Sprintf("scriptflow: correlation %s has no fragments and no context", e.CorrelationID)
}

func (e *NoContentError) Unwrap() error { return ErrNoContent }

// SinkWriteError is reported per artifact; it never aborts a stream.
type SinkWriteError struct {
	Identifier string
	Err        error
}

func (e *SinkWriteError) Error() string {
	if e.Identifier == "" {
		return "scriptflow: sink write failed: " + e.Err.Error()
	}
	return fmt.Sprintf("scriptflow: sink write %s failed: %v", e.Identifier, e.Err)
}

func (e *SinkWriteError) Unwrap() []error { return []error{ErrSinkWrite, e.Err} }

// SourceError is fatal for the stream it names and for no other.
type SourceError struct {
	Source string
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("scriptflow: source %s unavailable: %v", e.Source, e.Err)
}

func (e *SourceError) Unwrap() []error { return []error{ErrSourceUnavailable, e.Err} }

// UnprocessableRecordError marks a transport message whose payload is not a
// record. It is routed to the poison queue when one is configured.
type UnprocessableRecordError struct {
	MessageUUID string
	Err         error
}

func (e *UnprocessableRecordError) Error() string {
	return fmt.Sprintf("scriptflow: message %s is not a record: %v", e.MessageUUID, e.Err)
}

func (e *UnprocessableRecordError) Unwrap() []error { return []error{ErrUnprocessableRecord, e.Err} }

// JoinInts renders indices as "1, 2, 10".
func JoinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ", ")
}

// IntRange is the closed interval [Lo, Hi].
type IntRange struct {
	Lo, Hi int
}

// Len is the number of integers in r.
func (r IntRange) Len() int { return r.Hi - r.Lo + 1 }

// FormatRanges renders ranges as "2, 5-9, 12".
func FormatRanges(ranges []IntRange) string {
	parts := make([]string, len(ranges))
	for i, r := range ranges {
		if r.Lo == r.Hi {
			parts[i] = strconv.Itoa(r.Lo)
		} else {
			parts[i] = strconv.Itoa(r.Lo) + "-" + strconv.Itoa(r.Hi)
		}
	}
	return strings.Join(parts, ", ")
}
