package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"

	configpkg "github.com/drblury/scriptflow/internal/runtime/config"
	emitpkg "github.com/drblury/scriptflow/internal/runtime/emit"
	errspkg "github.com/drblury/scriptflow/internal/runtime/errors"
)

// OpenedSink is the sink described by a Config together with everything
// that must be closed when it is no longer used.
type OpenedSink struct {
	Sink    emitpkg.Sink
	closers []io.Closer
}

// Close releases database handles held by the sink.
func (o *OpenedSink) Close() error {
	if o == nil {
		return nil
	}
	var errs []error
	for _, c := range o.closers {
		errs = append(errs, c.Close())
	}
	o.closers = nil
	return errors.Join(errs...)
}

// OpenSink builds conf.Sink, wrapped in a TeeSink when conf.MirrorSinks is
// set. publisher is only needed by the "publisher" sink.
func OpenSink(ctx context.Context, conf *configpkg.Config, publisher message.Publisher) (*OpenedSink, error) {
	if conf == nil {
		return nil, errspkg.ErrConfigRequired
	}

	opened := &OpenedSink{}
	primary, err := openSink(ctx, conf, conf.Sink, publisher, opened)
	if err != nil {
		_ = opened.Close()
		return nil, err
	}
	if len(conf.MirrorSinks) == 0 {
		opened.Sink = primary
		return opened, nil
	}

	mirrors := make([]emitpkg.Sink, 0, len(conf.MirrorSinks))
	for _, kind := range conf.MirrorSinks {
		if strings.TrimSpace(kind) == "" {
			continue
		}
		mirror, err := openSink(ctx, conf, kind, publisher, opened)
		if err != nil {
			_ = opened.Close()
			return nil, fmt.Errorf("mirror %s: %w", kind, err)
		}
		mirrors = append(mirrors, mirror)
	}
	opened.Sink = emitpkg.NewTeeSink(primary, mirrors...)
	return opened, nil
}

func openSink(ctx context.Context, conf *configpkg.Config, kind string, publisher message.Publisher, opened *OpenedSink) (emitpkg.Sink, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case configpkg.SinkFile:
		sink, err := emitpkg.NewFileSink(conf.OutputDir)
		if err != nil {
			return nil, err
		}
		return sink, nil
	case configpkg.SinkSQLite:
		sink, err := emitpkg.OpenSQLite(ctx, conf.SQLiteFile)
		if err != nil {
			return nil, err
		}
		opened.closers = append(opened.closers, sink)
		return sink, nil
	case configpkg.SinkPostgres:
		sink, err := emitpkg.OpenPostgres(ctx, conf.PostgresURL)
		if err != nil {
			return nil, err
		}
		opened.closers = append(opened.closers, sink)
		return sink, nil
	case configpkg.SinkPublisher:
		sink, err := emitpkg.NewPublisherSink(publisher, conf.ArtifactTopic)
		if err != nil {
			return nil, err
		}
		return sink, nil
	case configpkg.SinkMemory:
		return emitpkg.NewMemorySink(), nil
	case "":
		return nil, errspkg.ErrSinkRequired
	default:
		return nil, fmt.Errorf("unsupported sink %q", kind)
	}
}
