// Package transport builds the Watermill publisher/subscriber pair scriptflow
// consumes records from (service mode) and publishes artifacts to.
package transport

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/scriptflow/internal/runtime/config"
)

// Transport combines a publisher and subscriber pair produced by a factory.
type Transport struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
}

// Close closes both sides, returning the first error.
func (t Transport) Close() error {
	var firstErr error
	if t.Publisher != nil {
		firstErr = t.Publisher.Close()
	}
	if t.Subscriber != nil && any(t.Subscriber) != any(t.Publisher) {
		if err := t.Subscriber.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Factory abstracts how scriptflow initialises message transports.
type Factory interface {
	Build(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (Transport, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (Transport, error)

func (f FactoryFunc) Build(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (Transport, error) {
	return f(ctx, conf, logger)
}

type builder func(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (Transport, error)

var builders = map[string]builder{
	"channel": func(_ context.Context, conf *config.Config, logger watermill.LoggerAdapter) (Transport, error) {
		return channelTransport(conf, logger)
	},
	"kafka": func(_ context.Context, conf *config.Config, logger watermill.LoggerAdapter) (Transport, error) {
		return kafkaTransport(conf, logger)
	},
	"rabbitmq": func(_ context.Context, conf *config.Config, logger watermill.LoggerAdapter) (Transport, error) {
		return rabbitTransport(conf, logger)
	},
	"nats": func(_ context.Context, conf *config.Config, logger watermill.LoggerAdapter) (Transport, error) {
		return natsTransport(conf, logger)
	},
	"http": func(_ context.Context, conf *config.Config, logger watermill.LoggerAdapter) (Transport, error) {
		return httpTransport(conf, logger)
	},
	"io": func(_ context.Context, conf *config.Config, logger watermill.LoggerAdapter) (Transport, error) {
		return ioTransport(conf, logger)
	},
	"aws": awsTransport,
}

// Names lists the built-in transports, sorted.
func Names() []string {
	names := make([]string, 0, len(builders))
	for name := range builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultFactory returns the built-in transport factory. An empty
// PubSubSystem (and "gochannel") selects the in-process channel transport.
func DefaultFactory() Factory {
	return FactoryFunc(build)
}

func build(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (Transport, error) {
	if conf == nil {
		return Transport{}, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = watermill.NopLogger{}
	}

	name := strings.ToLower(strings.TrimSpace(conf.PubSubSystem))
	switch name {
	case "", "gochannel":
		name = "channel"
	}

	b, ok := builders[name]
	if !ok {
		return Transport{}, fmt.Errorf("unknown transport: %q (supported: %v)", conf.PubSubSystem, Names())
	}
	return b(ctx, conf, logger)
}
