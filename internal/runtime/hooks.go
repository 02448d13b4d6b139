package runtime

import (
	"context"
	"time"

	loggingpkg "github.com/drblury/scriptflow/internal/runtime/logging"
)

// StreamContext provides information about a stream run to hooks.
type StreamContext struct {
	// Stream is the source name of the stream.
	Stream string
	// RunID identifies this processing run of the stream.
	RunID string
	// Context is the context the stream is processed under.
	Context context.Context
	// StartedAt is when processing started.
	StartedAt time.Time
	// Duration is how long processing took (only set in OnStreamDone and OnStreamError).
	Duration time.Duration
	// Report is the final report (only set in OnStreamDone and OnStreamError).
	Report *StreamReport
}

// StreamHooks defines callbacks for stream lifecycle events.
// All hooks are optional - nil hooks are simply not called.
type StreamHooks struct {
	// OnStreamStart is called before the stream's records are read.
	OnStreamStart func(ctx StreamContext)

	// OnStreamDone is called when every correlation ID of the stream has been
	// handled. Per-artifact failures do not turn this into OnStreamError.
	OnStreamDone func(ctx StreamContext)

	// OnStreamError is called when the stream could not be processed, for
	// example because its source was unreadable or the context was cancelled.
	OnStreamError func(ctx StreamContext, err error)

	// OnArtifact is called after each artifact is accepted by the sink.
	OnArtifact func(ctx StreamContext, artifact EmittedArtifact)
}

// Merge combines two StreamHooks, creating a new StreamHooks that calls both.
// The hooks from 'other' are called after the hooks from 'h'.
func (h StreamHooks) Merge(other StreamHooks) StreamHooks {
	return StreamHooks{
		OnStreamStart: chainStreamHooks(h.OnStreamStart, other.OnStreamStart),
		OnStreamDone:  chainStreamHooks(h.OnStreamDone, other.OnStreamDone),
		OnStreamError: chainErrorHooks(h.OnStreamError, other.OnStreamError),
		OnArtifact:    chainArtifactHooks(h.OnArtifact, other.OnArtifact),
	}
}

func chainStreamHooks(a, b func(StreamContext)) func(StreamContext) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx StreamContext) {
		a(ctx)
		b(ctx)
	}
}

func chainErrorHooks(a, b func(StreamContext, error)) func(StreamContext, error) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx StreamContext, err error) {
		a(ctx, err)
		b(ctx, err)
	}
}

func chainArtifactHooks(a, b func(StreamContext, EmittedArtifact)) func(StreamContext, EmittedArtifact) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx StreamContext, artifact EmittedArtifact) {
		a(ctx, artifact)
		b(ctx, artifact)
	}
}

// LoggingHooks returns pre-built hooks that log stream lifecycle events at
// debug level.
func LoggingHooks(logger loggingpkg.ServiceLogger) StreamHooks {
	return StreamHooks{
		OnStreamStart: func(ctx StreamContext) {
			logger.Debug("Stream started", loggingpkg.LogFields{
				"stream": ctx.Stream,
				"run_id": ctx.RunID,
			})
		},
		OnStreamDone: func(ctx StreamContext) {
			logger.Debug("Stream completed", loggingpkg.LogFields{
				"stream":      ctx.Stream,
				"run_id":      ctx.RunID,
				"duration_ms": ctx.Duration.Milliseconds(),
			})
		},
		OnStreamError: func(ctx StreamContext, err error) {
			logger.Error("Stream aborted", err, loggingpkg.LogFields{
				"stream":      ctx.Stream,
				"run_id":      ctx.RunID,
				"duration_ms": ctx.Duration.Milliseconds(),
			})
		},
		OnArtifact: func(ctx StreamContext, artifact EmittedArtifact) {
			logger.Debug("Artifact written", loggingpkg.LogFields{
				"stream":      ctx.Stream,
				"artifact_id": artifact.ID,
				"verdict":     artifact.Verdict.String(),
			})
		},
	}
}

// AlertingHooks returns pre-built hooks that trigger alerts on stream errors.
func AlertingHooks(alertFunc func(ctx StreamContext, err error)) StreamHooks {
	return StreamHooks{
		OnStreamError: alertFunc,
	}
}
