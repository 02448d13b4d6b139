package runtime

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/require"

	classifypkg "github.com/drblury/scriptflow/internal/runtime/classify"
	emitpkg "github.com/drblury/scriptflow/internal/runtime/emit"
	loggingpkg "github.com/drblury/scriptflow/internal/runtime/logging"
	reconstructpkg "github.com/drblury/scriptflow/internal/runtime/reconstruct"
	recordspkg "github.com/drblury/scriptflow/internal/runtime/records"
)

func newTestLogger() loggingpkg.ServiceLogger {
	return loggingpkg.NewSlogServiceLogger(slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug})))
}

// newBufferedLogger returns a logger writing JSON lines into the returned buffer.
func newBufferedLogger() (loggingpkg.ServiceLogger, *syncBuffer) {
	buf := &syncBuffer{}
	return loggingpkg.NewSlogServiceLogger(loggingpkg.NewLogger(buf, "debug", "json")), buf
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func fragmentRecord(seq, total int, content, id, path string) recordspkg.Record {
	fields := []any{float64(seq), float64(total), content, id}
	if path != "" {
		fields = append(fields, path)
	}
	return recordspkg.Record{EventID: classifypkg.EventScriptBlock, Fields: fields}
}

func contextRecord(info, id string) recordspkg.Record {
	return recordspkg.Record{
		EventID: classifypkg.EventModuleLogging,
		Fields:  []any{info, "", "", id},
	}
}

func startRecord(id string, created time.Time) recordspkg.Record {
	return recordspkg.Record{
		EventID: classifypkg.EventScriptBlockStart,
		Created: created,
		Fields:  []any{id, "runspace"},
	}
}

func newTestPipeline(t *testing.T, sink emitpkg.Sink, deps PipelineDependencies) *Pipeline {
	t.Helper()
	p, err := NewPipeline(sink, reconstructpkg.FormatScript, newTestLogger(), deps)
	require.NoError(t, err)
	return p
}

func writeJSONLFile(t *testing.T, dir, name string, recs []recordspkg.Record) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, recordspkg.WriteJSONL(f, recs))
	return path
}

type testPublisher struct {
	mu        sync.Mutex
	published []*message.Message
	topics    []string
	err       error
}

func (p *testPublisher) Publish(topic string, messages ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	for _, msg := range messages {
		p.topics = append(p.topics, topic)
		p.published = append(p.published, msg)
	}
	return nil
}

func (p *testPublisher) Close() error { return nil }

func (p *testPublisher) Messages() []*message.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*message.Message(nil), p.published...)
}

type testSubscriber struct {
	err error
}

func (s *testSubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	if s.err != nil {
		return nil, s.err
	}
	ch := make(chan *message.Message)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

func (s *testSubscriber) Close() error { return nil }

// erroringSource fails every read.
type erroringSource struct {
	name string
	err  error
}

func (e *erroringSource) Name() string { return e.name }

func (e *erroringSource) Records(context.Context) ([]recordspkg.Record, error) {
	return nil, e.err
}

func testTime() time.Time {
	return time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
}
