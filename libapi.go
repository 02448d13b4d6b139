package scriptflow

import (
	runtimepkg "github.com/drblury/scriptflow/internal/runtime"
	aggregatepkg "github.com/drblury/scriptflow/internal/runtime/aggregate"
	classifypkg "github.com/drblury/scriptflow/internal/runtime/classify"
	configpkg "github.com/drblury/scriptflow/internal/runtime/config"
	emitpkg "github.com/drblury/scriptflow/internal/runtime/emit"
	errspkg "github.com/drblury/scriptflow/internal/runtime/errors"
	idspkg "github.com/drblury/scriptflow/internal/runtime/ids"
	jsoncodec "github.com/drblury/scriptflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/scriptflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/scriptflow/internal/runtime/metadata"
	reconstructpkg "github.com/drblury/scriptflow/internal/runtime/reconstruct"
	recordspkg "github.com/drblury/scriptflow/internal/runtime/records"
	transportpkg "github.com/drblury/scriptflow/internal/runtime/transport"
)

type (
	Config                = configpkg.Config
	ConfigValidationError = errspkg.ConfigValidationError

	// Records and classification
	Record         = recordspkg.Record
	Event          = classifypkg.Event
	EventKind      = classifypkg.Kind
	Classifier     = classifypkg.Classifier
	Schemas        = classifypkg.Schemas
	FragmentSchema = classifypkg.FragmentSchema
	ContextSchema  = classifypkg.ContextSchema
	StartSchema    = classifypkg.StartSchema

	// Aggregation and reconstruction
	Accumulator        = aggregatepkg.Accumulator
	AccumulatorSet     = aggregatepkg.Set
	Aggregator         = aggregatepkg.Aggregator
	Artifact           = reconstructpkg.Artifact
	ReconstructOptions = reconstructpkg.Options
	Verdict            = reconstructpkg.Verdict
	Format             = reconstructpkg.Format

	// Emission
	Sink           = emitpkg.Sink
	Emitter        = emitpkg.Emitter
	MemorySink     = emitpkg.MemorySink
	FileSink       = emitpkg.FileSink
	SQLSink        = emitpkg.SQLSink
	PublisherSink  = emitpkg.PublisherSink
	TeeSink        = emitpkg.TeeSink
	StoredArtifact = emitpkg.StoredArtifact
	OpenedSink     = runtimepkg.OpenedSink

	// Pipeline and batch mode
	Pipeline             = runtimepkg.Pipeline
	PipelineDependencies = runtimepkg.PipelineDependencies
	Source               = runtimepkg.Source
	FileSource           = runtimepkg.FileSource
	SliceSource          = runtimepkg.SliceSource
	Batch                = runtimepkg.Batch
	BatchReport          = runtimepkg.BatchReport
	StreamReport         = runtimepkg.StreamReport
	StreamStatus         = runtimepkg.StreamStatus
	Warning              = runtimepkg.Warning
	WarningKind          = runtimepkg.WarningKind
	EmittedArtifact      = runtimepkg.EmittedArtifact
	ArtifactFailure      = runtimepkg.ArtifactFailure

	// Service mode
	Service                = runtimepkg.Service
	ServiceDependencies    = runtimepkg.ServiceDependencies
	ServiceStatus          = runtimepkg.ServiceStatus
	StreamSummary          = runtimepkg.StreamSummary
	Transport              = transportpkg.Transport
	TransportFactory       = transportpkg.Factory
	TransportFactoryFunc   = transportpkg.FactoryFunc
	MiddlewareBuilder      = runtimepkg.MiddlewareBuilder
	MiddlewareRegistration = runtimepkg.MiddlewareRegistration
	RetryMiddlewareConfig  = runtimepkg.RetryMiddlewareConfig

	// Stream lifecycle hooks
	StreamContext = runtimepkg.StreamContext
	StreamHooks   = runtimepkg.StreamHooks

	// Pipeline metrics
	PipelineMetrics  = runtimepkg.PipelineMetrics
	PipelineSnapshot = runtimepkg.PipelineSnapshot

	Metadata = metadatapkg.Metadata

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger

	// Typed errors
	MalformedFieldError      = errspkg.MalformedFieldError
	IncompleteArtifactError  = errspkg.IncompleteArtifactError
	NoContentError           = errspkg.NoContentError
	SinkWriteError           = errspkg.SinkWriteError
	SourceError              = errspkg.SourceError
	UnprocessableRecordError = errspkg.UnprocessableRecordError
)

var (
	LoadConfig     = configpkg.Load
	ValidateConfig = configpkg.ValidateConfig

	// Stages
	NewClassifier         = classifypkg.New
	DefaultClassifier     = classifypkg.Default
	DefaultSchemas        = classifypkg.DefaultSchemas
	Classify              = classifypkg.Classify
	DefaultDisplayName    = classifypkg.DefaultDisplayName
	NewAggregator         = aggregatepkg.New
	Aggregate             = aggregatepkg.Aggregate
	Reconstruct           = reconstructpkg.Reconstruct
	ParseFormat           = reconstructpkg.ParseFormat
	NewEmitter            = emitpkg.NewEmitter
	ArtifactBaseName      = emitpkg.BaseName
	ArtifactCandidateName = emitpkg.Candidate

	// Sinks
	NewMemorySink         = emitpkg.NewMemorySink
	NewFileSink           = emitpkg.NewFileSink
	OpenSQLiteSink        = emitpkg.OpenSQLite
	OpenPostgresSink      = emitpkg.OpenPostgres
	NewPublisherSink      = emitpkg.NewPublisherSink
	NewTeeSink            = emitpkg.NewTeeSink
	DecodeArtifactMessage = emitpkg.DecodeArtifactMessage
	WithArtifactMetadata  = emitpkg.WithMetadata
	OpenSink              = runtimepkg.OpenSink
	DefaultTransport      = transportpkg.DefaultFactory
	TransportNames        = transportpkg.Names
	NewRecordMessage      = recordspkg.NewMessage
	EndOfStreamMessage    = recordspkg.EndOfStreamMessage
	RecordFromMessage     = recordspkg.FromMessage
	ReadRecordsJSONL      = recordspkg.ReadJSONL
	WriteRecordsJSONL     = recordspkg.WriteJSONL

	// Pipeline and batch mode
	NewPipeline     = runtimepkg.NewPipeline
	NewBatch        = runtimepkg.NewBatch
	NewFileSource   = runtimepkg.NewFileSource
	NewSliceSource  = runtimepkg.NewSliceSource
	DiscoverSources = runtimepkg.DiscoverSources
	Summarize       = runtimepkg.Summarize

	// Service mode
	NewService            = runtimepkg.NewService
	PublishRecords        = runtimepkg.PublishRecords
	PublishSource         = runtimepkg.PublishSource
	DefaultMiddlewares    = runtimepkg.DefaultMiddlewares
	LogMessagesMiddleware = runtimepkg.LogMessagesMiddleware
	TracerMiddleware      = runtimepkg.TracerMiddleware
	MetricsMiddleware     = runtimepkg.MetricsMiddleware
	RetryMiddleware       = runtimepkg.RetryMiddleware
	PoisonQueueMiddleware = runtimepkg.PoisonQueueMiddleware
	RecovererMiddleware   = runtimepkg.RecovererMiddleware

	// Stream lifecycle hooks
	LoggingHooks  = runtimepkg.LoggingHooks
	AlertingHooks = runtimepkg.AlertingHooks

	// Pipeline metrics
	NewPipelineMetrics = runtimepkg.NewPipelineMetrics
	ServeMetrics       = runtimepkg.ServeMetrics

	Marshal       = jsoncodec.Marshal
	MarshalIndent = jsoncodec.MarshalIndent
	Unmarshal     = jsoncodec.Unmarshal
	Encode        = jsoncodec.Encode

	ErrConfigRequired       = errspkg.ErrConfigRequired
	ErrLoggerRequired       = errspkg.ErrLoggerRequired
	ErrSinkRequired         = errspkg.ErrSinkRequired
	ErrSourceRequired       = errspkg.ErrSourceRequired
	ErrPublisherRequired    = errspkg.ErrPublisherRequired
	ErrTopicRequired        = errspkg.ErrTopicRequired
	ErrServiceRequired      = errspkg.ErrServiceRequired
	ErrMalformedRecordField = errspkg.ErrMalformedRecordField
	ErrIncompleteArtifact   = errspkg.ErrIncompleteArtifact
	ErrNoContent            = errspkg.ErrNoContent
	ErrSinkWrite            = errspkg.ErrSinkWrite
	ErrSourceUnavailable    = errspkg.ErrSourceUnavailable
	ErrUnprocessableRecord  = errspkg.ErrUnprocessableRecord
	ErrIdentifierExhausted  = errspkg.ErrIdentifierExhausted

	NewSlogServiceLogger      = loggingpkg.NewSlogServiceLogger
	NewWatermillServiceLogger = loggingpkg.NewWatermillServiceLogger
	NewLogger                 = loggingpkg.NewLogger
	DiscardLogger             = loggingpkg.Discard

	NewMetadata = metadatapkg.New

	CreateULID = idspkg.CreateULID
)

// DefaultMaxCollisions bounds the suffixes tried for one artifact base name.
const DefaultMaxCollisions = emitpkg.DefaultMaxCollisions

// ContextOnlyPlaceholder is the body line of artifacts that have context but
// no script block fragments.
const ContextOnlyPlaceholder = reconstructpkg.ContextOnlyPlaceholder

// Output formats.
const (
	FormatText   = reconstructpkg.FormatText
	FormatScript = reconstructpkg.FormatScript
)

// Artifact verdicts.
const (
	VerdictComplete   = reconstructpkg.VerdictComplete
	VerdictIncomplete = reconstructpkg.VerdictIncomplete
)

// Event kinds produced by the classifier.
const (
	KindUnrecognized = classifypkg.KindUnrecognized
	KindFragment     = classifypkg.KindFragment
	KindContext      = classifypkg.KindContext
	KindStart        = classifypkg.KindStart
)

// Report warning kinds.
const (
	WarningIncomplete     = runtimepkg.WarningIncomplete
	WarningNoContent      = runtimepkg.WarningNoContent
	WarningMalformedField = runtimepkg.WarningMalformedField
	WarningOutOfRange     = runtimepkg.WarningOutOfRange
)

// Metadata keys carried on record and artifact messages.
const (
	MetadataKeyStream        = metadatapkg.KeyStream
	MetadataKeyEndOfStream   = metadatapkg.KeyEndOfStream
	MetadataKeyCorrelationID = metadatapkg.KeyCorrelationID
	MetadataKeyArtifactID    = metadatapkg.KeyArtifactID
	MetadataKeyVerdict       = metadatapkg.KeyVerdict
)
