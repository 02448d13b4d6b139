package transport

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/scriptflow/internal/runtime/config"
)

// amqpQueueSuffix is appended to a topic to name the durable queue a
// scriptflow service binds to that topic's exchange.
const amqpQueueSuffix = "-scriptflow"

var (
	AmqpConnectionFactory = func(cfg amqp.ConnectionConfig, logger watermill.LoggerAdapter) (*amqp.ConnectionWrapper, error) {
		return amqp.NewConnection(cfg, logger)
	}
	AmqpPublisherFactory = func(cfg amqp.Config, logger watermill.LoggerAdapter, conn *amqp.ConnectionWrapper) (message.Publisher, error) {
		return amqp.NewPublisherWithConnection(cfg, logger, conn)
	}
	AmqpSubscriberFactory = func(cfg amqp.Config, logger watermill.LoggerAdapter, conn *amqp.ConnectionWrapper) (message.Subscriber, error) {
		return amqp.NewSubscriberWithConnection(cfg, logger, conn)
	}
)

// rabbitTransport shares one reconnecting AMQP connection between the record
// publisher and subscriber. Topics map to durable fanout exchanges so several
// services can each keep their own queue.
func rabbitTransport(conf *config.Config, logger watermill.LoggerAdapter) (Transport, error) {
	conn, err := AmqpConnectionFactory(amqp.ConnectionConfig{
		AmqpURI:   conf.RabbitMQURL,
		Reconnect: amqp.DefaultReconnectConfig(),
	}, logger)
	if err != nil {
		return Transport{}, err
	}

	topology := recordTopology(conf.RabbitMQURL)
	pub, err := AmqpPublisherFactory(topology, logger, conn)
	if err != nil {
		return Transport{}, err
	}
	sub, err := AmqpSubscriberFactory(topology, logger, conn)
	if err != nil {
		_ = pub.Close()
		return Transport{}, err
	}
	return Transport{Publisher: pub, Subscriber: sub}, nil
}

func recordTopology(uri string) amqp.Config {
	return amqp.NewDurablePubSubConfig(uri, amqp.GenerateQueueNameTopicNameWithSuffix(amqpQueueSuffix))
}
