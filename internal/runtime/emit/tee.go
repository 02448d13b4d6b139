package emit

import (
	"context"
	"errors"
	"fmt"
)

// TeeSink claims identifiers on a primary sink and mirrors every write to
// secondary sinks. Mirrors accept whatever the primary claimed; a mirror that
// already holds the identifier is overwritten where it supports that.
type TeeSink struct {
	primary Sink
	mirrors []Sink
}

// NewTeeSink returns a sink writing to primary and then each mirror.
func NewTeeSink(primary Sink, mirrors ...Sink) *TeeSink {
	return &TeeSink{primary: primary, mirrors: mirrors}
}

func (t *TeeSink) Claim(ctx context.Context, id string) (bool, error) {
	return t.primary.Claim(ctx, id)
}

func (t *TeeSink) Write(ctx context.Context, id string, body []byte, executable bool) error {
	if err := t.primary.Write(ctx, id, body, executable); err != nil {
		return err
	}
	var errs []error
	for i, m := range t.mirrors {
		if _, err := m.Claim(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("mirror %d claim: %w", i, err))
			continue
		}
		if err := m.Write(ctx, id, body, executable); err != nil {
			errs = append(errs, fmt.Errorf("mirror %d: %w", i, err))
		}
	}
	if len(errs) > 0 {
		return &MirrorError{Err: errors.Join(errs...)}
	}
	return nil
}

// MirrorError reports mirror failures after the primary write succeeded. The
// artifact exists under its identifier on the primary sink.
type MirrorError struct {
	Err error
}

func (e *MirrorError) Error() string { return "mirror write failed: " + e.Err.Error() }

func (e *MirrorError) Unwrap() error { return e.Err }

func (t *TeeSink) Release(ctx context.Context, id string) error {
	if r, ok := t.primary.(Releaser); ok {
		return r.Release(ctx, id)
	}
	return nil
}
