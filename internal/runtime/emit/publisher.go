package emit

import (
	"context"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/drblury/scriptflow/internal/runtime/errors"
	"github.com/drblury/scriptflow/internal/runtime/ids"
	"github.com/drblury/scriptflow/internal/runtime/metadata"
)

var protoJSONMarshalOptions = protojson.MarshalOptions{
	EmitUnpopulated: true,
}

type metadataKey struct{}

// WithMetadata attaches message metadata that sinks publishing artifacts
// copy onto the outgoing message.
func WithMetadata(ctx context.Context, md metadata.Metadata) context.Context {
	return context.WithValue(ctx, metadataKey{}, md)
}

// MetadataFrom returns metadata attached with WithMetadata.
func MetadataFrom(ctx context.Context) metadata.Metadata {
	md, _ := ctx.Value(metadataKey{}).(metadata.Metadata)
	return md
}

// PublisherSink publishes each artifact as a protojson-encoded
// google.protobuf.Struct onto a Watermill topic. Claims are tracked in
// process, so the identifier namespace is only unique per sink instance.
type PublisherSink struct {
	publisher message.Publisher
	topic     string

	mu      sync.Mutex
	claimed map[string]struct{}
}

// NewPublisherSink returns a sink publishing to topic.
func NewPublisherSink(publisher message.Publisher, topic string) (*PublisherSink, error) {
	if publisher == nil {
		return nil, errors.ErrPublisherRequired
	}
	if topic == "" {
		return nil, errors.ErrTopicRequired
	}
	return &PublisherSink{publisher: publisher, topic: topic, claimed: make(map[string]struct{})}, nil
}

func (p *PublisherSink) Claim(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.claimed[id]; ok {
		return false, nil
	}
	p.claimed[id] = struct{}{}
	return true, nil
}

func (p *PublisherSink) Write(ctx context.Context, id string, body []byte, executable bool) error {
	msg, err := NewArtifactMessage(id, body, executable, MetadataFrom(ctx))
	if err != nil {
		return err
	}
	msg.SetContext(ctx)
	return p.publisher.Publish(p.topic, msg)
}

func (p *PublisherSink) Release(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.claimed, id)
	return nil
}

// NewArtifactMessage encodes an artifact as a Watermill message.
func NewArtifactMessage(id string, body []byte, executable bool, md metadata.Metadata) (*message.Message, error) {
	payload, err := structpb.NewStruct(map[string]any{
		"identifier": id,
		"body":       string(body),
		"executable": executable,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build artifact payload: %w", err)
	}
	data, err := protoJSONMarshalOptions.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal artifact payload: %w", err)
	}

	msg := message.NewMessage(ids.CreateULID(), data)
	msg.Metadata = metadata.ToWatermill(md.With(metadata.KeyArtifactID, id))
	return msg, nil
}

// DecodeArtifactMessage reverses NewArtifactMessage.
func DecodeArtifactMessage(msg *message.Message) (StoredArtifact, error) {
	var payload structpb.Struct
	if err := protojson.Unmarshal(msg.Payload, &payload); err != nil {
		return StoredArtifact{}, err
	}
	fields := payload.GetFields()
	return StoredArtifact{
		ID:         fields["identifier"].GetStringValue(),
		Body:       []byte(fields["body"].GetStringValue()),
		Executable: fields["executable"].GetBoolValue(),
		written:    true,
	}, nil
}
