// Package scriptflow reconstructs script block artifacts from decoded event
// log records. Large scripts are logged as numbered fragments that share a
// correlation ID; scriptflow classifies each record, groups fragments per
// correlation, orders and concatenates them, and writes every artifact under
// a collision-free name (abc_run.ps1, abc_run_1.ps1, ...).
//
// Pipeline processes one record stream and returns a StreamReport listing
// the artifacts written, the warnings raised (incomplete, no_content,
// malformed_field, out_of_range) and any per-artifact sink failures. Batch
// runs a pipeline over many JSONL sources with bounded parallelism.
//
// Service hosts the same pipeline on a Watermill router. It reads the
// transport (Kafka, RabbitMQ, AWS SNS/SQS, NATS, HTTP, I/O, or Go Channels)
// from Config, buffers records per stream, and reconstructs a stream when its
// end-of-stream marker arrives. PublishRecords feeds a stream onto the record
// topic.
//
// # Sinks
//
// Artifacts go to a directory (file), a SQLite or PostgreSQL table, a
// Watermill topic (publisher), or process memory. Config.MirrorSinks copies
// every artifact to additional sinks after the primary write succeeds.
//
// # Middleware
//
// The default service middleware chain includes structured logging,
// OpenTelemetry tracing, Prometheus metrics, retry with exponential backoff,
// poison queue forwarding for undecodable records, and panic recovery.
// Custom middleware can be added via ServiceDependencies.Middlewares.
//
// # Hooks
//
// StreamHooks provides OnStreamStart, OnStreamDone, OnStreamError and
// OnArtifact callbacks for logging, metrics collection, and alerting around
// stream processing.
package scriptflow
