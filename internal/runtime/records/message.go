package records

import (
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/scriptflow/internal/runtime/errors"
	"github.com/drblury/scriptflow/internal/runtime/ids"
	"github.com/drblury/scriptflow/internal/runtime/metadata"
)

// NewMessage wraps a record in a Watermill message tagged with its stream.
func NewMessage(rec Record, stream string) (*message.Message, error) {
	payload, err := Encode(rec)
	if err != nil {
		return nil, err
	}
	msg := message.NewMessage(ids.CreateULID(), payload)
	msg.Metadata.Set(metadata.KeyStream, stream)
	return msg, nil
}

// EndOfStreamMessage closes stream. It carries no record.
func EndOfStreamMessage(stream string) *message.Message {
	msg := message.NewMessage(ids.CreateULID(), nil)
	metadata.Apply(msg, metadata.New(
		metadata.KeyStream, stream,
		metadata.KeyEndOfStream, "true",
	))
	return msg
}

// FromMessage decodes the record carried by msg. A message that does not hold
// a record yields an *errors.UnprocessableRecordError.
func FromMessage(msg *message.Message) (Record, error) {
	rec, err := Decode(msg.Payload)
	if err != nil {
		return Record{}, &errors.UnprocessableRecordError{MessageUUID: msg.UUID, Err: err}
	}
	return rec, nil
}
