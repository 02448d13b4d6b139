package metadata

import (
	"maps"

	"github.com/ThreeDotsLabs/watermill/message"
)

// FromWatermill returns a detached copy of a record message's metadata. The
// result is never nil.
func FromWatermill(md message.Metadata) Metadata {
	out := make(Metadata, len(md))
	maps.Copy(out, md)
	return out
}

// ToWatermill returns md as Watermill message metadata, ready to assign to
// msg.Metadata. The result is never nil.
func ToWatermill(md Metadata) message.Metadata {
	out := make(message.Metadata, len(md))
	maps.Copy(out, md)
	return out
}

// Apply stamps md onto msg. Keys already on msg are replaced.
func Apply(msg *message.Message, md Metadata) {
	if msg.Metadata == nil {
		msg.Metadata = make(message.Metadata, len(md))
	}
	maps.Copy(msg.Metadata, md)
}
