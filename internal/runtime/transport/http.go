package transport

import (
	"context"
	"errors"
	nethttp "net/http"
	"strings"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-http/v2/pkg/http"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/scriptflow/internal/runtime/config"
)

var (
	HTTPPublisherFactory = func(cfg http.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
		return http.NewPublisher(cfg, logger)
	}
	HTTPSubscriberFactory = func(addr string, cfg http.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
		return http.NewSubscriber(addr, cfg, logger)
	}
)

// httpServer is the part of *http.Subscriber that serves incoming POSTs.
type httpServer interface {
	StartHTTPServer() error
}

// httpTopicURL is base + "/" + topic with no doubled or missing slash.
func httpTopicURL(base, topic string) string {
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(topic, "/")
}

// httpTransport POSTs each record message to HTTPPublisherURL/{topic} and
// accepts them on HTTPServerAddress/{topic}.
func httpTransport(conf *config.Config, logger watermill.LoggerAdapter) (Transport, error) {
	base := conf.HTTPPublisherURL
	pub, err := HTTPPublisherFactory(http.PublisherConfig{
		MarshalMessageFunc: func(topic string, msg *message.Message) (*nethttp.Request, error) {
			return http.DefaultMarshalMessageFunc(httpTopicURL(base, topic), msg)
		},
	}, logger)
	if err != nil {
		return Transport{}, err
	}

	sub, err := HTTPSubscriberFactory(conf.HTTPServerAddress, http.SubscriberConfig{
		UnmarshalMessageFunc: http.DefaultUnmarshalMessageFunc,
	}, logger)
	if err != nil {
		return Transport{}, err
	}
	if srv, ok := sub.(httpServer); ok {
		sub = &serveOnSubscribe{Subscriber: sub, server: srv, addr: conf.HTTPServerAddress, logger: logger}
	}
	return Transport{Publisher: pub, Subscriber: sub}, nil
}

// serveOnSubscribe starts the subscriber's HTTP server after the first topic
// route exists. Routes added after the server starts are not served.
type serveOnSubscribe struct {
	message.Subscriber
	server httpServer
	addr   string
	logger watermill.LoggerAdapter
	start  sync.Once
}

func (s *serveOnSubscribe) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	messages, err := s.Subscriber.Subscribe(ctx, topic)
	if err != nil {
		return nil, err
	}
	s.start.Do(func() { go s.serve() })
	return messages, nil
}

func (s *serveOnSubscribe) serve() {
	err := s.server.StartHTTPServer()
	if err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
		s.logger.Error("HTTP record endpoint stopped", err, watermill.LogFields{"address": s.addr})
	}
}
