package metadata

import "strings"

// Message metadata keys understood by scriptflow.
const (
	// KeyStream names the record stream a message belongs to. Records of one
	// stream are reconstructed together.
	KeyStream = "scriptflow_stream"
	// KeyEndOfStream set to "true" closes the stream and triggers reconstruction.
	KeyEndOfStream = "scriptflow_end_of_stream"
	// KeyCorrelationID and KeyArtifactID annotate published artifacts.
	KeyCorrelationID = "scriptflow_correlation_id"
	KeyArtifactID    = "scriptflow_artifact_id"
	// KeyVerdict carries "complete" or "incomplete" on published artifacts.
	KeyVerdict = "scriptflow_verdict"
)

// DefaultStream is used for records that arrive without KeyStream.
const DefaultStream = "default"

// Metadata represents the headers carried alongside a record or artifact message.
type Metadata map[string]string

func (m Metadata) cloneWithExtra(extra int) Metadata {
	size := len(m) + extra
	if size <= 0 {
		return Metadata{}
	}

	cloned := make(Metadata, size)
	for k, v := range m {
		cloned[k] = v
	}
	return cloned
}

// Clone returns a shallow copy of the metadata map.
func (m Metadata) Clone() Metadata {
	return m.cloneWithExtra(0)
}

// With returns a cloned metadata map containing the provided key/value pair.
func (m Metadata) With(key, value string) Metadata {
	cloned := m.cloneWithExtra(1)
	cloned[key] = value
	return cloned
}

// WithAll returns a cloned metadata map containing the supplied entries.
func (m Metadata) WithAll(entries Metadata) Metadata {
	cloned := m.cloneWithExtra(len(entries))
	for k, v := range entries {
		cloned[k] = v
	}
	return cloned
}

// Stream returns the stream name, or DefaultStream when absent.
func (m Metadata) Stream() string {
	if s := strings.TrimSpace(m[KeyStream]); s != "" {
		return s
	}
	return DefaultStream
}

// EndOfStream reports whether the message closes its stream.
func (m Metadata) EndOfStream() bool {
	return strings.EqualFold(strings.TrimSpace(m[KeyEndOfStream]), "true")
}

// New constructs a Metadata map from alternating key/value pairs.
func New(pairs ...string) Metadata {
	md := make(Metadata, len(pairs)/2)
	for i := 0; i < len(pairs)-1; i += 2 {
		md[pairs[i]] = pairs[i+1]
	}
	return md
}
