package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/plugin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	classifypkg "github.com/drblury/scriptflow/internal/runtime/classify"
	configpkg "github.com/drblury/scriptflow/internal/runtime/config"
	emitpkg "github.com/drblury/scriptflow/internal/runtime/emit"
	errspkg "github.com/drblury/scriptflow/internal/runtime/errors"
	loggingpkg "github.com/drblury/scriptflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/scriptflow/internal/runtime/metadata"
	reconstructpkg "github.com/drblury/scriptflow/internal/runtime/reconstruct"
	recordspkg "github.com/drblury/scriptflow/internal/runtime/records"
	transportpkg "github.com/drblury/scriptflow/internal/runtime/transport"
)

// RecordHandlerName is the router handler consuming Config.RecordTopic.
const RecordHandlerName = "scriptflow_records"

var routerRun = func(router *message.Router, ctx context.Context) error {
	return router.Run(ctx)
}

// ServiceDependencies holds the optional collaborators that the Service can use.
// Leave fields nil to build them from the configuration.
type ServiceDependencies struct {
	// Sink overrides Config.Sink. The caller keeps ownership of it.
	Sink                      emitpkg.Sink
	Classifier                *classifypkg.Classifier
	Metrics                   *PipelineMetrics
	Hooks                     StreamHooks
	Middlewares               []MiddlewareRegistration // Appended after the default middleware chain.
	DisableDefaultMiddlewares bool                     // Skips registering the default middleware chain when true.
	TransportFactory          transportpkg.Factory
	Tracer                    trace.Tracer
}

// Service consumes records from Config.RecordTopic and reconstructs each
// stream once its end-of-stream marker arrives.
type Service struct {
	Conf   *configpkg.Config
	Logger loggingpkg.ServiceLogger

	transport  transportpkg.Transport
	publisher  message.Publisher
	subscriber message.Subscriber
	router     *message.Router
	tracer     trace.Tracer

	pipeline *Pipeline
	metrics  *PipelineMetrics
	sink     *OpenedSink

	streamsMu sync.Mutex
	streams   map[string][]recordspkg.Record

	reportsMu sync.Mutex
	reports   []StreamReport

	httpServers   map[int]*http.ServeMux
	httpServersMu sync.Mutex
}

// NewService constructs a Service for the supplied configuration. Call Start
// to consume records.
func NewService(conf *configpkg.Config, log loggingpkg.ServiceLogger, ctx context.Context, deps ServiceDependencies) (*Service, error) {
	if conf == nil {
		return nil, errspkg.ErrConfigRequired
	}
	if log == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	if conf.RecordTopic == "" {
		return nil, errspkg.ErrTopicRequired
	}
	format, err := reconstructpkg.ParseFormat(conf.OutputFormat)
	if err != nil {
		return nil, errspkg.NewConfigValidationError(err)
	}

	wmLogger := loggingpkg.NewWatermillAdapter(log)
	log.Info("Creating reconstruction service", loggingpkg.LogFields{
		"pubsub_system": conf.PubSubSystem,
		"record_topic":  conf.RecordTopic,
		"config":        conf,
	})

	s := &Service{
		Conf:    conf,
		Logger:  log,
		tracer:  deps.Tracer,
		metrics: deps.Metrics,
		streams: make(map[string][]recordspkg.Record),
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer(tracerName)
	}

	factory := deps.TransportFactory
	if factory == nil {
		factory = transportpkg.DefaultFactory()
	}
	s.transport, err = factory.Build(ctx, conf, wmLogger)
	if err != nil {
		return nil, err
	}
	s.publisher = s.transport.Publisher
	s.subscriber = s.transport.Subscriber

	sink := deps.Sink
	if sink == nil {
		s.sink, err = OpenSink(ctx, conf, s.publisher)
		if err != nil {
			_ = s.transport.Close()
			return nil, err
		}
		sink = s.sink.Sink
	}

	if s.metrics == nil && conf.MetricsEnabled {
		s.metrics = NewPipelineMetrics(prometheus.DefaultRegisterer)
	}
	if s.metrics != nil {
		if err := s.metrics.Register(); err != nil {
			_ = s.closeResources()
			return nil, err
		}
	}

	s.pipeline, err = NewPipeline(sink, format, log, PipelineDependencies{
		Classifier: deps.Classifier,
		Metrics:    s.metrics,
		Hooks:      deps.Hooks,
		Tracer:     s.tracer,
	})
	if err != nil {
		_ = s.closeResources()
		return nil, err
	}

	s.router, err = message.NewRouter(message.RouterConfig{}, wmLogger)
	if err != nil {
		_ = s.closeResources()
		return nil, err
	}
	s.router.AddPlugin(plugin.SignalsHandler)

	if err := s.registerConfiguredMiddlewares(deps); err != nil {
		_ = s.closeResources()
		return nil, err
	}

	s.router.AddNoPublisherHandler(RecordHandlerName, conf.RecordTopic, s.subscriber, s.handleRecord)
	s.registerStatusAPI()
	return s, nil
}

// Start runs the router until ctx is cancelled, then processes streams that
// never received their end-of-stream marker.
func (s *Service) Start(ctx context.Context) error {
	s.startHTTPServers(ctx)
	err := routerRun(s.router, ctx)

	if flushed := s.Flush(context.WithoutCancel(ctx)); len(flushed) > 0 {
		s.Logger.Info("Flushed open streams on shutdown", loggingpkg.LogFields{"streams": len(flushed)})
	}
	return err
}

// Running is closed once the router has subscribed to the record topic.
func (s *Service) Running() chan struct{} {
	return s.router.Running()
}

// Publisher returns the transport publisher, for example to feed records
// with PublishRecords.
func (s *Service) Publisher() message.Publisher { return s.publisher }

// Pipeline returns the pipeline closed streams are handed to.
func (s *Service) Pipeline() *Pipeline { return s.pipeline }

// Reports returns the reports of every stream processed so far.
func (s *Service) Reports() []StreamReport {
	s.reportsMu.Lock()
	defer s.reportsMu.Unlock()
	return append([]StreamReport(nil), s.reports...)
}

// OpenStreams lists streams with buffered records and no end marker yet.
func (s *Service) OpenStreams() []string {
	s.streamsMu.Lock()
	defer s.streamsMu.Unlock()
	names := make([]string, 0, len(s.streams))
	for name := range s.streams {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Flush reconstructs every open stream as if its end marker had arrived.
func (s *Service) Flush(ctx context.Context) []StreamReport {
	var out []StreamReport
	for _, stream := range s.OpenStreams() {
		out = append(out, s.closeStream(ctx, stream))
	}
	return out
}

// Close stops the router and releases the transport and any sink the
// service opened itself.
func (s *Service) Close() error {
	var errs []error
	if s.router != nil {
		errs = append(errs, s.router.Close())
	}
	errs = append(errs, s.closeResources())
	return errors.Join(errs...)
}

func (s *Service) closeResources() error {
	var errs []error
	errs = append(errs, s.transport.Close())
	if s.sink != nil {
		errs = append(errs, s.sink.Close())
	}
	return errors.Join(errs...)
}

func (s *Service) handleRecord(msg *message.Message) error {
	md := metadatapkg.FromWatermill(msg.Metadata)
	stream := md.Stream()

	if md.EndOfStream() {
		s.closeStream(msg.Context(), stream)
		return nil
	}

	rec, err := recordspkg.FromMessage(msg)
	if err != nil {
		if s.Conf.PoisonQueue != "" {
			return err
		}
		s.Logger.Warn("Dropping undecodable record", loggingpkg.LogFields{
			"message_uuid": msg.UUID,
			"stream":       stream,
			"error":        err.Error(),
		})
		return nil
	}
	if rec.Source == "" {
		rec.Source = stream
	}

	s.streamsMu.Lock()
	s.streams[stream] = append(s.streams[stream], rec)
	s.streamsMu.Unlock()
	return nil
}

func (s *Service) closeStream(ctx context.Context, stream string) StreamReport {
	s.streamsMu.Lock()
	recs := s.streams[stream]
	delete(s.streams, stream)
	s.streamsMu.Unlock()

	report := s.pipeline.ProcessRecords(ctx, stream, recs)

	s.reportsMu.Lock()
	s.reports = append(s.reports, report)
	s.reportsMu.Unlock()
	return report
}

func (s *Service) registerConfiguredMiddlewares(deps ServiceDependencies) error {
	var defaults []MiddlewareRegistration
	if !deps.DisableDefaultMiddlewares {
		defaults = DefaultMiddlewares()
	}
	registrations := make([]MiddlewareRegistration, 0, len(defaults)+len(deps.Middlewares))
	registrations = append(registrations, defaults...)
	registrations = append(registrations, deps.Middlewares...)

	for _, reg := range registrations {
		if err := s.RegisterMiddleware(reg); err != nil {
			name := reg.Name
			if name == "" {
				name = "anonymous_middleware"
			}
			return fmt.Errorf("failed to register middleware %s: %w", name, err)
		}
	}
	return nil
}

// RegisterHTTPHandler mounts handler on the HTTP server for port, which is
// started together with the router.
func (s *Service) RegisterHTTPHandler(port int, pattern string, handler http.Handler) {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	if s.httpServers == nil {
		s.httpServers = make(map[int]*http.ServeMux)
	}

	mux, ok := s.httpServers[port]
	if !ok {
		mux = http.NewServeMux()
		s.httpServers[port] = mux
	}

	mux.Handle(pattern, handler)
}

func (s *Service) startHTTPServers(ctx context.Context) {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	for port, mux := range s.httpServers {
		go serveHTTP(ctx, fmt.Sprintf(":%d", port), mux, s.Logger)
	}
}

// serveHTTP listens on addr until ctx is cancelled.
func serveHTTP(ctx context.Context, addr string, handler http.Handler, log loggingpkg.ServiceLogger) {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Info("Starting HTTP server", loggingpkg.LogFields{"address": addr})
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("Failed to start HTTP server", err, loggingpkg.LogFields{"address": addr})
	}
}
