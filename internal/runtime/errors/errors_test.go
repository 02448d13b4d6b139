package errors

import (
	"errors"
	"testing"
)

func TestSentinelErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{"ErrConfigRequired", ErrConfigRequired, "scriptflow: configuration is required"},
		{"ErrLoggerRequired", ErrLoggerRequired, "scriptflow: logger is required"},
		{"ErrSinkRequired", ErrSinkRequired, "scriptflow: artifact sink is required"},
		{"ErrSourceRequired", ErrSourceRequired, "scriptflow: record source is required"},
		{"ErrPublisherRequired", ErrPublisherRequired, "scriptflow: publisher is required"},
		{"ErrTopicRequired", ErrTopicRequired, "scriptflow: topic is required"},
		{"ErrMalformedRecordField", ErrMalformedRecordField, "scriptflow: malformed record field"},
		{"ErrIncompleteArtifact", ErrIncompleteArtifact, "scriptflow: incomplete artifact"},
		{"ErrNoContent", ErrNoContent, "scriptflow: no content"},
		{"ErrSinkWrite", ErrSinkWrite, "scriptflow: sink write failure"},
		{"ErrSourceUnavailable", ErrSourceUnavailable, "scriptflow: source unavailable"},
		{"ErrUnprocessableRecord", ErrUnprocessableRecord, "scriptflow: unprocessable record"},
		{"ErrIdentifierExhausted", ErrIdentifierExhausted, "scriptflow: no free artifact identifier"},
		{"ErrNotClaimed", ErrNotClaimed, "scriptflow: identifier was not claimed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", got, tt.wantMsg)
			}
		})
	}
}

func TestConfigValidationError(t *testing.T) {
	inner := errors.New("invalid port")
	err := ConfigValidationError{Err: inner}

	want := "scriptflow: invalid configuration: invalid port"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if unwrapped := err.Unwrap(); unwrapped != inner {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, inner)
	}
}

func TestNewConfigValidationError(t *testing.T) {
	t.Run("nil error returns nil", func(t *testing.T) {
		if err := NewConfigValidationError(nil); err != nil {
			t.Errorf("NewConfigValidationError(nil) = %v, want nil", err)
		}
	})

	t.Run("errors.Is works with wrapped error", func(t *testing.T) {
		inner := errors.New("specific error")
		err := NewConfigValidationError(inner)

		var cfgErr ConfigValidationError
		if !errors.As(err, &cfgErr) {
			t.Fatalf("expected ConfigValidationError, got %T", err)
		}
		if !errors.Is(err, inner) {
			t.Error("errors.Is should match wrapped error")
		}
	})
}

func TestTaxonomyUnwrapsToSentinels(t *testing.T) {
	cause := errors.New("disk full")
	tests := []struct {
		name     string
		err      error
		sentinel error
		wantMsg  string
	}{
		{
			name:     "malformed field",
			err:      &MalformedFieldError{EventID: 4104, Field: "MessageNumber", Index: 0, Reason: "missing"},
			sentinel: ErrMalformedRecordField,
			wantMsg:  "scriptflow: event 4104 field MessageNumber (#0): missing",
		},
		{
			name:     "incomplete",
			err:      &IncompleteArtifactError{CorrelationID: "abc", Total: 3, Missing: []int{2}},
			sentinel: ErrIncompleteArtifact,
			wantMsg:  "scriptflow: artifact abc incomplete: missing fragment(s) 2 of 3",
		},
		{
			name: "incomplete with ranges",
			err: &IncompleteArtifactError{CorrelationID: "abc", Total: 50000, Missing: []int{2, 4},
				MissingRanges: []IntRange{{Lo: 2, Hi: 2}, {Lo: 4, Hi: 50000}}},
			sentinel: ErrIncompleteArtifact,
			wantMsg:  "scriptflow: artifact abc incomplete: missing fragment(s) 2, 4-50000 of 50000",
		},
		{
			name:     "incomplete unknown total",
			err:      &IncompleteArtifactError{CorrelationID: "abc"},
			sentinel: ErrIncompleteArtifact,
			wantMsg:  "scriptflow: artifact abc incomplete: fragment total unknown",
		},
		{
			name:     "no content",
			err:      &NoContentError{CorrelationID: "abc"},
			sentinel: ErrNoContent,
			wantMsg:  "scriptflow: correlation abc has no fragments and no context",
		},
		{
			name:     "sink write",
			err:      &SinkWriteError{Identifier: "abc_x.ps1", Err: cause},
			sentinel: ErrSinkWrite,
			wantMsg:  "scriptflow: sink write abc_x.ps1 failed: disk full",
		},
		{
			name:     "source",
			err:      &SourceError{Source: "a.jsonl", Err: cause},
			sentinel: ErrSourceUnavailable,
			wantMsg:  "scriptflow: source a.jsonl unavailable: disk full",
		},
		{
			name:     "unprocessable record",
			err:      &UnprocessableRecordError{MessageUUID: "01J", Err: cause},
			sentinel: ErrUnprocessableRecord,
			wantMsg:  "scriptflow: message 01J is not a record: disk full",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.sentinel) {
				t.Errorf("errors.Is(%T, sentinel) = false", tt.err)
			}
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", got, tt.wantMsg)
			}
		})
	}

	if !errors.Is(&SinkWriteError{Err: cause}, cause) {
		t.Error("SinkWriteError should unwrap to its cause")
	}
}

func TestJoinInts(t *testing.T) {
	if got := JoinInts([]int{1, 2, 10}); got != "1, 2, 10" {
		t.Errorf("JoinInts = %q", got)
	}
	if got := JoinInts(nil); got != "" {
		t.Errorf("JoinInts(nil) = %q", got)
	}
}

func TestFormatRanges(t *testing.T) {
	got := FormatRanges([]IntRange{{Lo: 1, Hi: 1}, {Lo: 3, Hi: 7}, {Lo: 10, Hi: 10}})
	if got != "1, 3-7, 10" {
		t.Errorf("FormatRanges = %q", got)
	}
	if got := FormatRanges(nil); got != "" {
		t.Errorf("FormatRanges(nil) = %q", got)
	}
	if n := (IntRange{Lo: 3, Hi: 7}).Len(); n != 5 {
		t.Errorf("Len = %d", n)
	}
}
