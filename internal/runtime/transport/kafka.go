package transport

import (
	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/scriptflow/internal/runtime/config"
	"github.com/drblury/scriptflow/internal/runtime/metadata"
)

var (
	KafkaPublisherFactory = func(cfg kafka.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
		return kafka.NewPublisher(cfg, logger)
	}
	KafkaSubscriberFactory = func(cfg kafka.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
		return kafka.NewSubscriber(cfg, logger)
	}
)

// streamPartitionKey keys every record of a stream to the same partition, so
// a consumer sees a stream's records in publish order.
func streamPartitionKey(_ string, msg *message.Message) (string, error) {
	return metadata.FromWatermill(msg.Metadata).Stream(), nil
}

func kafkaTransport(conf *config.Config, logger watermill.LoggerAdapter) (Transport, error) {
	codec := kafka.NewWithPartitioningMarshaler(streamPartitionKey)

	pub, err := KafkaPublisherFactory(kafka.PublisherConfig{
		Brokers:               conf.KafkaBrokers,
		Marshaler:             codec,
		OverwriteSaramaConfig: withClientID(kafka.DefaultSaramaSyncPublisherConfig(), conf.KafkaClientID),
	}, logger)
	if err != nil {
		return Transport{}, err
	}

	// A fresh consumer group starts at the oldest offset and so replays
	// records published before it joined.
	sub, err := KafkaSubscriberFactory(kafka.SubscriberConfig{
		Brokers:               conf.KafkaBrokers,
		Unmarshaler:           codec,
		ConsumerGroup:         conf.KafkaConsumerGroup,
		OverwriteSaramaConfig: withClientID(kafka.DefaultSaramaSubscriberConfig(), conf.KafkaClientID),
	}, logger)
	if err != nil {
		_ = pub.Close()
		return Transport{}, err
	}
	return Transport{Publisher: pub, Subscriber: sub}, nil
}

func withClientID(cfg *sarama.Config, clientID string) *sarama.Config {
	if clientID != "" {
		cfg.ClientID = clientID
	}
	return cfg
}
