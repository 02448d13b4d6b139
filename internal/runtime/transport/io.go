package transport

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/scriptflow/internal/runtime/config"
	"github.com/drblury/scriptflow/internal/runtime/jsoncodec"
)

// DefaultIOFile is the journal the io transport uses when Config.IOFile is empty.
const DefaultIOFile = "scriptflow-messages.jsonl"

const ioReadBuffer = 64 * 1024

// ioPollInterval is the wait at end of journal before looking for appended lines.
var ioPollInterval = 100 * time.Millisecond

var (
	IOPublisherFactory = func(filePath string, logger watermill.LoggerAdapter) (message.Publisher, error) {
		return &journalPublisher{path: filePath, logger: logger}, nil
	}
	IOSubscriberFactory = func(filePath string, logger watermill.LoggerAdapter) (message.Subscriber, error) {
		return &journalSubscriber{path: filePath, logger: logger}, nil
	}
)

// ioTransport keeps every topic in one append-only JSONL journal. It needs no
// broker, so a batch of record messages can be replayed from disk.
func ioTransport(conf *config.Config, logger watermill.LoggerAdapter) (Transport, error) {
	path := conf.IOFile
	if path == "" {
		path = DefaultIOFile
	}

	pub, err := IOPublisherFactory(path, logger)
	if err != nil {
		return Transport{}, err
	}
	sub, err := IOSubscriberFactory(path, logger)
	if err != nil {
		_ = pub.Close()
		return Transport{}, err
	}
	return Transport{Publisher: pub, Subscriber: sub}, nil
}

// journalEntry is one line of the journal.
type journalEntry struct {
	Topic    string            `json:"topic"`
	UUID     string            `json:"uuid"`
	Metadata map[string]string `json:"metadata"`
	Payload  []byte            `json:"payload"`
}

func (e journalEntry) message() *message.Message {
	msg := message.NewMessage(e.UUID, e.Payload)
	if e.Metadata != nil {
		msg.Metadata = e.Metadata
	}
	return msg
}

type journalPublisher struct {
	path   string
	logger watermill.LoggerAdapter
	mu     sync.Mutex
}

// Publish appends messages to the journal as a single buffered write.
func (p *journalPublisher) Publish(topic string, messages ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	f, err := os.OpenFile(p.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	for _, msg := range messages {
		entry := journalEntry{Topic: topic, UUID: msg.UUID, Metadata: msg.Metadata, Payload: msg.Payload}
		if err := jsoncodec.Encode(w, entry); err != nil {
			_ = f.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func (p *journalPublisher) Close() error { return nil }

type journalSubscriber struct {
	path   string
	logger watermill.LoggerAdapter
}

// Subscribe follows the journal from its first line and hands out entries for
// topic one at a time. A nacked message is redelivered before the next line
// is read.
func (s *journalSubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	f, err := os.OpenFile(s.path, os.O_RDONLY|os.O_CREATE, 0o600)
	if err != nil {
		return nil, err
	}

	out := make(chan *message.Message)
	t := &journalTail{
		reader: bufio.NewReaderSize(f, ioReadBuffer),
		topic:  topic,
		path:   s.path,
		logger: s.logger,
	}
	go func() {
		defer close(out)
		defer f.Close()
		t.run(ctx, out)
	}()
	return out, nil
}

func (s *journalSubscriber) Close() error { return nil }

type journalTail struct {
	reader  *bufio.Reader
	partial []byte
	topic   string
	path    string
	logger  watermill.LoggerAdapter
}

func (t *journalTail) run(ctx context.Context, out chan<- *message.Message) {
	for ctx.Err() == nil {
		entry, ok := t.next(ctx)
		if !ok {
			return
		}
		if entry.Topic != t.topic {
			continue
		}
		if !t.deliver(ctx, out, entry) {
			return
		}
	}
}

// next blocks until a complete journal line decodes. Undecodable lines are
// logged and skipped.
func (t *journalTail) next(ctx context.Context) (journalEntry, bool) {
	for {
		chunk, err := t.reader.ReadBytes('\n')
		t.partial = append(t.partial, chunk...)
		switch {
		case errors.Is(err, io.EOF):
			select {
			case <-ctx.Done():
				return journalEntry{}, false
			case <-time.After(ioPollInterval):
			}
			continue
		case err != nil:
			t.logger.Error("Could not read message journal", err, watermill.LogFields{"file": t.path})
			return journalEntry{}, false
		}

		line := t.partial
		t.partial = nil
		var entry journalEntry
		if err := jsoncodec.Unmarshal(line, &entry); err != nil {
			t.logger.Error("Skipping corrupt journal line", err, watermill.LogFields{"file": t.path})
			continue
		}
		return entry, true
	}
}

func (t *journalTail) deliver(ctx context.Context, out chan<- *message.Message, entry journalEntry) bool {
	for attempt := 1; ; attempt++ {
		msg := entry.message()
		msg.SetContext(ctx)
		select {
		case out <- msg:
		case <-ctx.Done():
			return false
		}
		select {
		case <-msg.Acked():
			return true
		case <-msg.Nacked():
			t.logger.Info("Redelivering nacked journal message", watermill.LogFields{"uuid": msg.UUID, "attempt": attempt})
		case <-ctx.Done():
			return false
		}
	}
}
