package transport

import (
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"

	"github.com/drblury/scriptflow/internal/runtime/config"
)

const (
	natsClientName = "scriptflow"
	// natsQueueGroup makes replicas of a service share one record subject
	// instead of each reconstructing every stream.
	natsQueueGroup     = "scriptflow"
	natsReconnectDelay = 2 * time.Second
)

var (
	NATSPublisherFactory = func(cfg nats.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
		return nats.NewPublisher(cfg, logger)
	}
	NATSSubscriberFactory = func(cfg nats.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
		return nats.NewSubscriber(cfg, logger)
	}
)

// natsOptions reconnect forever, so a server restart pauses a long record
// stream instead of ending it.
func natsOptions() []natsgo.Option {
	return []natsgo.Option{
		natsgo.Name(natsClientName),
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(natsReconnectDelay),
	}
}

// natsTransport uses core NATS subjects named after the record and artifact
// topics.
func natsTransport(conf *config.Config, logger watermill.LoggerAdapter) (Transport, error) {
	codec := &nats.NATSMarshaler{}

	pub, err := NATSPublisherFactory(nats.PublisherConfig{
		URL:         conf.NATSURL,
		NatsOptions: natsOptions(),
		Marshaler:   codec,
	}, logger)
	if err != nil {
		return Transport{}, err
	}
	sub, err := NATSSubscriberFactory(nats.SubscriberConfig{
		URL:              conf.NATSURL,
		NatsOptions:      natsOptions(),
		Unmarshaler:      codec,
		QueueGroupPrefix: natsQueueGroup,
	}, logger)
	if err != nil {
		_ = pub.Close()
		return Transport{}, err
	}
	return Transport{Publisher: pub, Subscriber: sub}, nil
}
