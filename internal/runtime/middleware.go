package runtime

import (
	"errors"
	"time"

	"github.com/ThreeDotsLabs/watermill/components/metrics"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	errspkg "github.com/drblury/scriptflow/internal/runtime/errors"
	loggingpkg "github.com/drblury/scriptflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/scriptflow/internal/runtime/metadata"
)

const (
	defaultRetryAttempts    = 3
	defaultRetryInitialWait = 500 * time.Millisecond
	defaultRetryMaxWait     = 8 * time.Second

	routerMetricsNamespace = "scriptflow"
	consumeRecordSpan      = "scriptflow.consume_record"
)

// MiddlewareBuilder creates a record handler middleware once the Service's
// router, publisher and tracer exist. A nil middleware with a nil error means
// "not configured, skip".
type MiddlewareBuilder func(*Service) (message.HandlerMiddleware, error)

// MiddlewareRegistration names a record handler middleware. Exactly one of
// Middleware or Builder is used; Middleware wins when both are set.
type MiddlewareRegistration struct {
	Name       string
	Middleware message.HandlerMiddleware
	Builder    MiddlewareBuilder
}

func (reg MiddlewareRegistration) resolve(s *Service) (message.HandlerMiddleware, error) {
	if reg.Middleware != nil {
		return reg.Middleware, nil
	}
	if reg.Builder == nil {
		return nil, errors.New("middleware registration requires Middleware or Builder")
	}
	return reg.Builder(s)
}

// RetryMiddlewareConfig tunes redelivery of a failed record message. Zero
// values take the package defaults; RetryIf defaults to "anything but an
// undecodable record".
type RetryMiddlewareConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	RetryIf         func(error) bool
}

func (cfg RetryMiddlewareConfig) withDefaults() RetryMiddlewareConfig {
	out := cfg
	if out.MaxRetries <= 0 {
		out.MaxRetries = defaultRetryAttempts
	}
	if out.InitialInterval <= 0 {
		out.InitialInterval = defaultRetryInitialWait
	}
	if out.MaxInterval <= 0 {
		out.MaxInterval = defaultRetryMaxWait
	}
	if out.RetryIf == nil {
		out.RetryIf = isRetryable
	}
	return out
}

// DefaultMiddlewares is the chain NewService installs unless
// ServiceDependencies.DisableDefaultMiddlewares is set. The first entry is
// outermost: retry sees whatever the poison queue did not swallow, and the
// recoverer turns handler panics into retryable errors.
func DefaultMiddlewares() []MiddlewareRegistration {
	return []MiddlewareRegistration{
		LogMessagesMiddleware(nil),
		TracerMiddleware(),
		MetricsMiddleware(),
		RetryMiddleware(RetryMiddlewareConfig{}),
		PoisonQueueMiddleware(nil),
		RecovererMiddleware(),
	}
}

// LogMessagesMiddleware debug-logs each record message before it is handled.
// A nil logger falls back to the Service logger.
func LogMessagesMiddleware(logger loggingpkg.ServiceLogger) MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "log_messages",
		Builder: func(s *Service) (message.HandlerMiddleware, error) {
			l := logger
			if l == nil {
				l = s.Logger
			}
			if l == nil {
				return nil, errors.New("log messages middleware requires a logger")
			}
			return recordLogger(l), nil
		},
	}
}

// TracerMiddleware opens one span per consumed record message.
func TracerMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "tracer",
		Builder: func(s *Service) (message.HandlerMiddleware, error) {
			return tracerMiddleware(s.tracer), nil
		},
	}
}

// MetricsMiddleware records Watermill router metrics in the default
// Prometheus registry and serves them on Config.MetricsPort. Disabled unless
// Config.MetricsEnabled.
func MetricsMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "metrics",
		Builder: func(s *Service) (message.HandlerMiddleware, error) {
			if !s.Conf.MetricsEnabled {
				return nil, nil
			}
			builder := metrics.NewPrometheusMetricsBuilder(prometheus.DefaultRegisterer, routerMetricsNamespace, s.Conf.PubSubSystem)
			builder.AddPrometheusRouterMetrics(s.router)
			if s.Conf.MetricsPort > 0 {
				s.RegisterHTTPHandler(s.Conf.MetricsPort, "/metrics", promhttp.Handler())
			}
			return builder.NewRouterMiddleware().Middleware, nil
		},
	}
}

// RetryMiddleware redelivers a record message to the handler with
// exponential backoff while cfg.RetryIf accepts the error.
func RetryMiddleware(cfg RetryMiddlewareConfig) MiddlewareRegistration {
	policy := cfg.withDefaults()
	retry := middleware.Retry{
		MaxRetries:      policy.MaxRetries,
		InitialInterval: policy.InitialInterval,
		MaxInterval:     policy.MaxInterval,
		ShouldRetry: func(params middleware.RetryParams) bool {
			return policy.RetryIf(params.Err)
		},
	}
	return MiddlewareRegistration{Name: "retry", Middleware: retry.Middleware}
}

// PoisonQueueMiddleware diverts record messages whose handler error matches
// filter to Config.PoisonQueue and acks them. filter defaults to undecodable
// records only. Skipped when no poison queue is configured.
func PoisonQueueMiddleware(filter func(error) bool) MiddlewareRegistration {
	if filter == nil {
		filter = isUnprocessable
	}
	return MiddlewareRegistration{
		Name: "poison_queue",
		Builder: func(s *Service) (message.HandlerMiddleware, error) {
			topic := s.Conf.PoisonQueue
			if topic == "" {
				return nil, nil
			}
			if s.publisher == nil {
				return nil, errspkg.ErrPublisherRequired
			}
			return middleware.PoisonQueueWithFilter(s.publisher, topic, filter)
		},
	}
}

// RecovererMiddleware turns a handler panic into an error.
func RecovererMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{Name: "recoverer", Middleware: middleware.Recoverer}
}

// RegisterMiddleware resolves reg against s and adds it to the record router.
// Registrations that resolve to nil are skipped.
func (s *Service) RegisterMiddleware(reg MiddlewareRegistration) error {
	if s.router == nil {
		return errors.New("router is not initialised")
	}
	mw, err := reg.resolve(s)
	if err != nil {
		return err
	}
	if mw != nil {
		s.router.AddMiddleware(mw)
	}
	return nil
}

func isUnprocessable(err error) bool {
	var unprocessable *errspkg.UnprocessableRecordError
	return errors.As(err, &unprocessable)
}

func isRetryable(err error) bool {
	return !isUnprocessable(err)
}

func recordLogger(logger loggingpkg.ServiceLogger) message.HandlerMiddleware {
	return func(next message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			md := metadatapkg.FromWatermill(msg.Metadata)
			logger.Debug("Processing record message", loggingpkg.LogFields{
				"message_uuid":  msg.UUID,
				"stream":        md.Stream(),
				"topic":         message.SubscribeTopicFromCtx(msg.Context()),
				"payload_bytes": len(msg.Payload),
				"payload":       string(msg.Payload),
			})
			return next(msg)
		}
	}
}

func tracerMiddleware(tracer trace.Tracer) message.HandlerMiddleware {
	return func(next message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			ctx, span := tracer.Start(msg.Context(), consumeRecordSpan, trace.WithSpanKind(trace.SpanKindConsumer))
			defer span.End()
			span.SetAttributes(
				attribute.String("messaging.message.id", msg.UUID),
				attribute.String("messaging.destination.name", message.SubscribeTopicFromCtx(ctx)),
				attribute.String("scriptflow.stream", metadatapkg.FromWatermill(msg.Metadata).Stream()),
				attribute.Int("scriptflow.record.bytes", len(msg.Payload)),
			)
			msg.SetContext(ctx)

			produced, err := next(msg)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
			return produced, err
		}
	}
}
