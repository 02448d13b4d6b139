package transport

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
)

type testPublisher struct {
	closed bool
}

func (p *testPublisher) Publish(string, ...*message.Message) error { return nil }

func (p *testPublisher) Close() error {
	p.closed = true
	return nil
}

type testSubscriber struct {
	closed bool
}

func (s *testSubscriber) Subscribe(context.Context, string) (<-chan *message.Message, error) {
	ch := make(chan *message.Message)
	close(ch)
	return ch, nil
}

func (s *testSubscriber) Close() error {
	s.closed = true
	return nil
}
