// Package emit resolves collision-free artifact identifiers and hands the
// final bytes to a sink.
package emit

import (
	"context"
	stderrors "errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/drblury/scriptflow/internal/runtime/errors"
	"github.com/drblury/scriptflow/internal/runtime/reconstruct"
)

// DefaultMaxCollisions bounds the suffix search for one base identifier.
const DefaultMaxCollisions = 10000

// maxBaseLength keeps identifiers within common file name limits once the
// suffix and extension are added.
const maxBaseLength = 200

// Sink stores artifacts under identifiers it hands out.
//
// Claim atomically reserves id and reports false when id is already taken.
// Concurrent pipelines share a sink only through Claim, so it must be atomic
// across every writer of the namespace (processes included, where the sink
// is shared between processes).
type Sink interface {
	Claim(ctx context.Context, id string) (bool, error)
	Write(ctx context.Context, id string, body []byte, executable bool) error
}

// Releaser is implemented by sinks that can drop a claim whose write failed.
type Releaser interface {
	Release(ctx context.Context, id string) error
}

// Emitter writes artifacts to a sink under identifiers of the form
// "{correlationId}_{displayName}[_N]{ext}".
type Emitter struct {
	sink Sink
	// MaxCollisions bounds the suffix search. Zero means DefaultMaxCollisions.
	MaxCollisions int
}

// NewEmitter returns an emitter bound to sink.
func NewEmitter(sink Sink) (*Emitter, error) {
	if sink == nil {
		return nil, errors.ErrSinkRequired
	}
	return &Emitter{sink: sink}, nil
}

// Sink returns the sink artifacts are written to.
func (e *Emitter) Sink() Sink { return e.sink }

// Emit claims the first free identifier in the sequence base, base_1,
// base_2, ... and writes body under it. Any failure is returned as an
// *errors.SinkWriteError. When only a mirror of a TeeSink failed, the
// identifier is returned together with the error.
func (e *Emitter) Emit(ctx context.Context, correlationID, displayName string, body []byte, format reconstruct.Format) (string, error) {
	base := BaseName(correlationID, displayName)
	ext := format.Extension()

	limit := e.MaxCollisions
	if limit <= 0 {
		limit = DefaultMaxCollisions
	}

	for n := 0; n <= limit; n++ {
		id := Candidate(base, n, ext)
		ok, err := e.sink.Claim(ctx, id)
		if err != nil {
			return "", &errors.SinkWriteError{Identifier: id, Err: err}
		}
		if !ok {
			continue
		}
		if err := e.sink.Write(ctx, id, body, format.Executable()); err != nil {
			var mirrorErr *MirrorError
			if stderrors.As(err, &mirrorErr) {
				return id, &errors.SinkWriteError{Identifier: id, Err: err}
			}
			if r, canRelease := e.sink.(Releaser); canRelease {
				if relErr := r.Release(ctx, id); relErr != nil {
					err = stderrors.Join(err, fmt.Errorf("release claim %s: %w", id, relErr))
				}
			}
			return "", &errors.SinkWriteError{Identifier: id, Err: err}
		}
		return id, nil
	}
	return "", &errors.SinkWriteError{Identifier: base + ext, Err: errors.ErrIdentifierExhausted}
}

// Candidate returns the n-th identifier for base: n == 0 is the bare name.
func Candidate(base string, n int, ext string) string {
	if n == 0 {
		return base + ext
	}
	return base + "_" + strconv.Itoa(n) + ext
}

// BaseName builds "{correlationId}_{displayName}" as a single safe path
// segment. Only the leaf of a path-like display name is used, and a script
// extension on it is dropped since the format decides the extension.
func BaseName(correlationID, displayName string) string {
	base := SanitizeSegment(correlationID) + "_" + SanitizeSegment(displayLeaf(displayName))
	return truncate(base, maxBaseLength)
}

func displayLeaf(name string) string {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	lower := strings.ToLower(name)
	for _, ext := range []string{".ps1", ".psm1", ".psd1", ".txt"} {
		if strings.HasSuffix(lower, ext) && len(name) > len(ext) {
			return name[:len(name)-len(ext)]
		}
	}
	return name
}

// SanitizeSegment replaces every character outside [A-Za-z0-9._-] with '_'
// and strips leading dots. An empty result becomes "_".
func SanitizeSegment(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.TrimLeft(b.String(), ".")
	if out == "" {
		return "_"
	}
	return out
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	s = s[:max]
	for !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}
