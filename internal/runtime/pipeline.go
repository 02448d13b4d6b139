package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	aggregatepkg "github.com/drblury/scriptflow/internal/runtime/aggregate"
	classifypkg "github.com/drblury/scriptflow/internal/runtime/classify"
	emitpkg "github.com/drblury/scriptflow/internal/runtime/emit"
	errspkg "github.com/drblury/scriptflow/internal/runtime/errors"
	idspkg "github.com/drblury/scriptflow/internal/runtime/ids"
	loggingpkg "github.com/drblury/scriptflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/scriptflow/internal/runtime/metadata"
	reconstructpkg "github.com/drblury/scriptflow/internal/runtime/reconstruct"
	recordspkg "github.com/drblury/scriptflow/internal/runtime/records"
)

const tracerName = "github.com/drblury/scriptflow"

// PipelineDependencies holds the optional collaborators of a Pipeline.
// Leave fields nil to use the defaults.
type PipelineDependencies struct {
	Classifier *classifypkg.Classifier
	Metrics    *PipelineMetrics
	Hooks      StreamHooks
	Tracer     trace.Tracer
}

// Pipeline reconstructs the artifacts of one stream at a time: classify,
// aggregate, reconstruct and emit, strictly in that order. A Pipeline holds
// no per-stream state, so Batch runs one instance on many streams at once.
type Pipeline struct {
	emitter    *emitpkg.Emitter
	format     reconstructpkg.Format
	logger     loggingpkg.ServiceLogger
	classifier *classifypkg.Classifier
	metrics    *PipelineMetrics
	hooks      StreamHooks
	tracer     trace.Tracer
}

// NewPipeline returns a pipeline writing artifacts of the given format to sink.
func NewPipeline(sink emitpkg.Sink, format reconstructpkg.Format, log loggingpkg.ServiceLogger, deps PipelineDependencies) (*Pipeline, error) {
	if log == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	emitter, err := emitpkg.NewEmitter(sink)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		emitter:    emitter,
		format:     format,
		logger:     log,
		classifier: deps.Classifier,
		metrics:    deps.Metrics,
		hooks:      deps.Hooks,
		tracer:     deps.Tracer,
	}
	if p.classifier == nil {
		p.classifier = classifypkg.Default()
	}
	if p.tracer == nil {
		p.tracer = otel.Tracer(tracerName)
	}
	return p, nil
}

// Emitter exposes the emitter so callers can tune MaxCollisions.
func (p *Pipeline) Emitter() *emitpkg.Emitter { return p.emitter }

// ProcessStream reads src and reconstructs its artifacts. Failing to read
// src fails this stream only; the error is carried in the report.
func (p *Pipeline) ProcessStream(ctx context.Context, src Source) StreamReport {
	if src == nil {
		return StreamReport{RunID: idspkg.NewRunID(), StartedAt: time.Now(), Err: errspkg.ErrSourceRequired}
	}
	return p.run(ctx, src.Name(), src.Records)
}

// ProcessRecords reconstructs the artifacts of records already in memory.
// Service mode uses it when a stream is closed.
func (p *Pipeline) ProcessRecords(ctx context.Context, stream string, recs []recordspkg.Record) StreamReport {
	return p.run(ctx, stream, func(context.Context) ([]recordspkg.Record, error) {
		return recs, nil
	})
}

func (p *Pipeline) run(ctx context.Context, stream string, load func(context.Context) ([]recordspkg.Record, error)) StreamReport {
	report := StreamReport{
		Source:    stream,
		RunID:     idspkg.NewRunID(),
		StartedAt: time.Now(),
	}

	ctx, span := p.tracer.Start(ctx, "ProcessStream", trace.WithAttributes(
		attribute.String("scriptflow.stream", stream),
		attribute.String("scriptflow.run_id", report.RunID),
	))
	defer span.End()

	log := p.logger.With(loggingpkg.LogFields{"stream": stream, "run_id": report.RunID})
	streamCtx := StreamContext{Stream: stream, RunID: report.RunID, Context: ctx, StartedAt: report.StartedAt}
	if p.hooks.OnStreamStart != nil {
		p.hooks.OnStreamStart(streamCtx)
	}

	recs, err := load(ctx)
	if err == nil {
		err = p.process(ctx, log, recs, &report)
	}
	report.Duration = time.Since(report.StartedAt)
	report.Err = err

	span.SetAttributes(
		attribute.Int("scriptflow.records", report.Records),
		attribute.Int("scriptflow.artifacts", len(report.Artifacts)),
	)
	p.metrics.ObserveStream(&report)

	streamCtx.Duration = report.Duration
	streamCtx.Report = &report
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error("Stream failed", err, loggingpkg.LogFields{"status": string(report.Status())})
		if p.hooks.OnStreamError != nil {
			p.hooks.OnStreamError(streamCtx, err)
		}
		return report
	}

	log.Info("Stream processed", loggingpkg.LogFields{
		"records":     report.Records,
		"artifacts":   len(report.Artifacts),
		"warnings":    len(report.Warnings),
		"failures":    len(report.Failures),
		"duration_ms": report.Duration.Milliseconds(),
	})
	if p.hooks.OnStreamDone != nil {
		p.hooks.OnStreamDone(streamCtx)
	}
	return report
}

func (p *Pipeline) process(ctx context.Context, log loggingpkg.ServiceLogger, recs []recordspkg.Record, report *StreamReport) error {
	report.Records = len(recs)

	agg := aggregatepkg.New()
	for _, rec := range recs {
		if err := agg.Add(p.classifier.Classify(rec)); err != nil {
			return err
		}
	}
	set, err := agg.Finish()
	if err != nil {
		return err
	}

	stats := set.Stats()
	report.Fragments = stats.Fragments
	report.Contexts = stats.Contexts
	report.Starts = stats.Starts
	report.Unrecognized = stats.Unrecognized
	report.Discarded = stats.Discarded
	p.metrics.ObserveRecords(stats)

	for _, issue := range set.Issues() {
		report.warn(WarningMalformedField, issue.CorrelationID, issue.Err)
		p.metrics.ObserveWarning(WarningMalformedField)
		log.Warn("Malformed record field", loggingpkg.LogFields{
			"correlation_id": issue.CorrelationID,
			"event_id":       issue.Err.EventID,
			"field":          issue.Err.Field,
			"index":          issue.Err.Index,
			"reason":         issue.Err.Reason,
		})
	}

	for _, acc := range set.All() {
		if err := ctx.Err(); err != nil {
			return err
		}
		p.emitArtifact(ctx, log, acc, report)
	}
	return nil
}

func (p *Pipeline) emitArtifact(ctx context.Context, log loggingpkg.ServiceLogger, acc *aggregatepkg.Accumulator, report *StreamReport) {
	log = log.With(loggingpkg.LogFields{"correlation_id": acc.CorrelationID})

	art, err := reconstructpkg.Reconstruct(acc, reconstructpkg.Options{Format: p.format})
	if err != nil {
		var noContent *errspkg.NoContentError
		if errors.As(err, &noContent) {
			report.warn(WarningNoContent, acc.CorrelationID, err)
			p.metrics.ObserveWarning(WarningNoContent)
			log.Warn("Correlation has no content", nil)
			return
		}
		report.Failures = append(report.Failures, ArtifactFailure{CorrelationID: acc.CorrelationID, Err: err})
		log.Error("Reconstruction failed", err, nil)
		return
	}

	if err := art.Incomplete(); err != nil {
		report.warn(WarningIncomplete, acc.CorrelationID, err)
		p.metrics.ObserveWarning(WarningIncomplete)
		log.Warn("Artifact incomplete", loggingpkg.LogFields{
			"total":         art.Total,
			"missing":       errspkg.FormatRanges(art.MissingRanges),
			"missing_count": art.MissingCount,
		})
	}
	if len(art.OutOfRange) > 0 {
		err := fmt.Errorf("fragment(s) %s exceed declared total %d", errspkg.JoinInts(art.OutOfRange), art.Total)
		report.warn(WarningOutOfRange, acc.CorrelationID, err)
		p.metrics.ObserveWarning(WarningOutOfRange)
		log.Warn("Fragments out of range", loggingpkg.LogFields{
			"total":        art.Total,
			"out_of_range": errspkg.JoinInts(art.OutOfRange),
		})
	}

	ctx, span := p.tracer.Start(ctx, "EmitArtifact", trace.WithAttributes(
		attribute.String("scriptflow.correlation_id", art.CorrelationID),
		attribute.String("scriptflow.verdict", art.Verdict.String()),
	))
	defer span.End()

	md := metadatapkg.New(
		metadatapkg.KeyStream, report.Source,
		metadatapkg.KeyCorrelationID, art.CorrelationID,
		metadatapkg.KeyVerdict, art.Verdict.String(),
	)
	id, err := p.emitter.Emit(emitpkg.WithMetadata(ctx, md), art.CorrelationID, art.DisplayName, art.Body(), art.Format)
	if id != "" {
		emitted := EmittedArtifact{
			ID:            id,
			CorrelationID: art.CorrelationID,
			DisplayName:   art.DisplayName,
			Verdict:       art.Verdict,
			Fragments:     len(art.Present),
		}
		report.Artifacts = append(report.Artifacts, emitted)
		p.metrics.ObserveArtifact(emitted)
		span.SetAttributes(attribute.String("scriptflow.artifact_id", id))
		log.Debug("Artifact emitted", loggingpkg.LogFields{"artifact_id": id, "verdict": art.Verdict.String()})
		if p.hooks.OnArtifact != nil {
			p.hooks.OnArtifact(StreamContext{Stream: report.Source, RunID: report.RunID, Context: ctx, StartedAt: report.StartedAt}, emitted)
		}
	}
	if err != nil {
		failure := ArtifactFailure{CorrelationID: art.CorrelationID, Err: err}
		var writeErr *errspkg.SinkWriteError
		if errors.As(err, &writeErr) {
			failure.Identifier = writeErr.Identifier
		}
		report.Failures = append(report.Failures, failure)
		p.metrics.ObserveSinkFailure()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error("Artifact write failed", err, loggingpkg.LogFields{"artifact_id": failure.Identifier})
	}
}
