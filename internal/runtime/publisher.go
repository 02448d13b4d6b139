package runtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"

	errspkg "github.com/drblury/scriptflow/internal/runtime/errors"
	metadatapkg "github.com/drblury/scriptflow/internal/runtime/metadata"
	recordspkg "github.com/drblury/scriptflow/internal/runtime/records"
)

// PublishRecords replays recs onto topic as one stream and closes it with an
// end-of-stream marker, so a Service reconstructs them together.
func PublishRecords(ctx context.Context, publisher message.Publisher, topic, stream string, recs []recordspkg.Record) error {
	if publisher == nil {
		return errspkg.ErrPublisherRequired
	}
	if topic == "" {
		return errspkg.ErrTopicRequired
	}
	if stream == "" {
		stream = metadatapkg.DefaultStream
	}

	for i, rec := range recs {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg, err := recordspkg.NewMessage(rec, stream)
		if err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
		msg.SetContext(ctx)
		if err := publisher.Publish(topic, msg); err != nil {
			return fmt.Errorf("publish record %d: %w", i, err)
		}
	}

	end := recordspkg.EndOfStreamMessage(stream)
	end.SetContext(ctx)
	if err := publisher.Publish(topic, end); err != nil {
		return fmt.Errorf("publish end of stream: %w", err)
	}
	return nil
}

// PublishSource reads src and replays it with PublishRecords under the
// source name.
func PublishSource(ctx context.Context, publisher message.Publisher, topic string, src Source) error {
	if src == nil {
		return errspkg.ErrSourceRequired
	}
	recs, err := src.Records(ctx)
	if err != nil {
		return err
	}
	return PublishRecords(ctx, publisher, topic, src.Name(), recs)
}

// PublishRecords replays recs onto the service's record topic.
func (s *Service) PublishRecords(ctx context.Context, stream string, recs []recordspkg.Record) error {
	if s == nil {
		return errors.New("service is nil")
	}
	return PublishRecords(ctx, s.publisher, s.Conf.RecordTopic, stream, recs)
}
