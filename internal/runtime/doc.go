/*
Package runtime wires the scriptflow reconstruction stages into runnable
batch and service modes.

# Architecture Overview

Decoded event log records flow through four stages, each in its own
sub-package:

  - classify: maps a record to a fragment, context or start event using the
    positional field schemas, and reports malformed fields without failing.
  - aggregate: groups classified events into one accumulator per correlation
    ID, in first-seen order.
  - reconstruct: orders fragments by sequence number, concatenates their
    content and decides the verdict (complete or incomplete).
  - emit: derives the artifact identifier, claims a collision-free name on
    the sink and writes the body.

The Pipeline in this package drives those stages for one record stream and
produces a StreamReport. Streams never share an accumulator, so two hosts
reusing a correlation ID produce two artifacts (the second gets a _1 suffix).

# Package Structure

## Pipeline (pipeline.go, report.go)

ProcessStream loads a Source and reconstructs every correlation it contains.
Warnings (incomplete, no_content, malformed_field, out_of_range) and sink
failures are collected on the report instead of aborting the stream.

## Batch (batch.go, sources.go)

Batch runs one pipeline over many sources with bounded parallelism.
DiscoverSources expands directories into their JSONL files.

## Service (service.go, middleware.go, publisher.go)

The Service consumes records from a Watermill topic, buffers them per
stream and reconstructs a stream when its end-of-stream marker arrives.
The default middleware chain adds logging, tracing, Prometheus metrics,
retries, poison queue forwarding and panic recovery.

## Sinks (sinks.go)

OpenSink builds the configured artifact sink (file, sqlite, postgres,
publisher or memory) plus optional mirrors.

## Observability (hooks.go, metrics.go, status.go)

StreamHooks observe stream and artifact lifecycle events. PipelineMetrics
exports Prometheus counters. The status API serves processed stream
summaries on /api/streams.

# Sub-packages

  - config/: environment configuration with validation
  - errors/: sentinel errors and typed errors
  - ids/: ULID generation for run and message IDs
  - jsoncodec/: JSON marshaling backed by sonic
  - logging/: logger interface and adapters
  - metadata/: message metadata keys and helpers
  - records/: the decoded record type and its JSONL and message codecs
  - transport/: pub/sub transports (channel, Kafka, RabbitMQ, NATS, HTTP, io, AWS)

# Usage Example

	sink := emit.NewMemorySink()
	p, err := runtime.NewPipeline(sink, reconstruct.FormatScript, logger, runtime.PipelineDependencies{})
	if err != nil {
		return err
	}
	report := p.ProcessStream(ctx, runtime.NewFileSource("host-1.jsonl"))
*/
package runtime
