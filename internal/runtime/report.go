package runtime

import (
	"context"
	"errors"
	"time"

	reconstructpkg "github.com/drblury/scriptflow/internal/runtime/reconstruct"
)

// StreamStatus summarises how a stream ended.
type StreamStatus string

const (
	StreamCompleted StreamStatus = "completed"
	StreamFailed    StreamStatus = "failed"
	StreamCancelled StreamStatus = "cancelled"
)

// WarningKind names a non-fatal per-correlation diagnostic.
type WarningKind string

const (
	WarningIncomplete     WarningKind = "incomplete"
	WarningNoContent      WarningKind = "no_content"
	WarningMalformedField WarningKind = "malformed_field"
	WarningOutOfRange     WarningKind = "out_of_range"
)

// Warning is a diagnostic that did not stop the stream.
type Warning struct {
	Kind          WarningKind
	CorrelationID string
	Err           error
}

// EmittedArtifact describes one artifact handed to the sink.
type EmittedArtifact struct {
	ID            string
	CorrelationID string
	DisplayName   string
	Verdict       reconstructpkg.Verdict
	Fragments     int
}

// ArtifactFailure records a correlation ID whose artifact could not be
// built or written.
type ArtifactFailure struct {
	CorrelationID string
	Identifier    string
	Err           error
}

// StreamReport is the outcome of processing one stream.
type StreamReport struct {
	Source    string
	RunID     string
	StartedAt time.Time
	Duration  time.Duration

	Records      int
	Fragments    int
	Contexts     int
	Starts       int
	Unrecognized int
	// Discarded counts recognized records without a usable correlation ID.
	Discarded int

	Artifacts []EmittedArtifact
	Warnings  []Warning
	Failures  []ArtifactFailure

	// Err is set when the stream could not be processed at all.
	Err error
}

// Status reports completed, failed or cancelled.
func (r *StreamReport) Status() StreamStatus {
	switch {
	case r.Err == nil:
		return StreamCompleted
	case errors.Is(r.Err, context.Canceled), errors.Is(r.Err, context.DeadlineExceeded):
		return StreamCancelled
	default:
		return StreamFailed
	}
}

// WarningsOf returns the warnings of one kind.
func (r *StreamReport) WarningsOf(kind WarningKind) []Warning {
	var out []Warning
	for _, w := range r.Warnings {
		if w.Kind == kind {
			out = append(out, w)
		}
	}
	return out
}

func (r *StreamReport) warn(kind WarningKind, correlationID string, err error) {
	r.Warnings = append(r.Warnings, Warning{Kind: kind, CorrelationID: correlationID, Err: err})
}
