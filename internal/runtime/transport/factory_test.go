package transport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/scriptflow/internal/runtime/config"
	"github.com/drblury/scriptflow/internal/runtime/logging"
)

func testLogger() watermill.LoggerAdapter {
	return logging.NewWatermillAdapter(logging.NewSlogServiceLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func TestNames(t *testing.T) {
	assert.Equal(t, []string{"aws", "channel", "http", "io", "kafka", "nats", "rabbitmq"}, Names())
}

func TestDefaultFactoryNilConfig(t *testing.T) {
	_, err := DefaultFactory().Build(context.Background(), nil, testLogger())
	assert.ErrorContains(t, err, "config is required")
}

func TestDefaultFactoryUnknownTransport(t *testing.T) {
	_, err := DefaultFactory().Build(context.Background(), &config.Config{PubSubSystem: "carrier-pigeon"}, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown transport: "carrier-pigeon"`)
}

func TestDefaultFactoryChannelRoundTrip(t *testing.T) {
	for _, name := range []string{"", "channel", "GoChannel"} {
		t.Run(name, func(t *testing.T) {
			tr, err := DefaultFactory().Build(context.Background(), &config.Config{PubSubSystem: name}, nil)
			require.NoError(t, err)
			defer tr.Close()

			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			messages, err := tr.Subscriber.Subscribe(ctx, "records")
			require.NoError(t, err)

			require.NoError(t, tr.Publisher.Publish("records", message.NewMessage(watermill.NewUUID(), []byte("payload"))))

			select {
			case received := <-messages:
				received.Ack()
				assert.Equal(t, "payload", string(received.Payload))
			case <-ctx.Done():
				t.Fatal("timed out waiting for message")
			}
		})
	}
}

func TestDefaultFactoryDispatchesByName(t *testing.T) {
	orig := NATSPublisherFactory
	t.Cleanup(func() { NATSPublisherFactory = orig })
	NATSPublisherFactory = func(_ nats.PublisherConfig, _ watermill.LoggerAdapter) (message.Publisher, error) {
		return nil, errors.New("nats selected")
	}

	_, err := DefaultFactory().Build(context.Background(), &config.Config{PubSubSystem: " NATS "}, testLogger())
	assert.EqualError(t, err, "nats selected")
}

func TestFactoryFunc(t *testing.T) {
	want := Transport{Publisher: &testPublisher{}, Subscriber: &testSubscriber{}}
	f := FactoryFunc(func(context.Context, *config.Config, watermill.LoggerAdapter) (Transport, error) {
		return want, nil
	})
	got, err := f.Build(context.Background(), &config.Config{}, nil)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestTransportCloseClosesBothSides(t *testing.T) {
	pub, sub := &testPublisher{}, &testSubscriber{}
	require.NoError(t, Transport{Publisher: pub, Subscriber: sub}.Close())
	assert.True(t, pub.closed)
	assert.True(t, sub.closed)

	assert.NoError(t, Transport{}.Close())
}
