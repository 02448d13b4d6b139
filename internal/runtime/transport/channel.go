package transport

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/drblury/scriptflow/internal/runtime/config"
)

// channelBuffer is the per-subscriber backlog of record messages held while
// the handler is busy with an earlier stream.
const channelBuffer = 256

// GoChannelFactory returns the same in-process pub/sub for both sides.
var GoChannelFactory = func(cfg gochannel.Config, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber) {
	ps := gochannel.NewGoChannel(cfg, logger)
	return ps, ps
}

// channelTransport keeps records inside the process. Used by tests and by
// embedders that publish records themselves.
func channelTransport(_ *config.Config, logger watermill.LoggerAdapter) (Transport, error) {
	pub, sub := GoChannelFactory(gochannel.Config{OutputChannelBuffer: channelBuffer}, logger)
	return Transport{Publisher: pub, Subscriber: sub}, nil
}
