// Package reconstruct turns one correlation accumulator into an artifact: an
// ordered body, a completeness verdict, and a provenance header.
package reconstruct

import (
	"strconv"
	"strings"
	"time"

	"github.com/drblury/scriptflow/internal/runtime/aggregate"
	"github.com/drblury/scriptflow/internal/runtime/errors"
)

// Verdict is the completeness outcome of a reconstructed artifact.
type Verdict int

const (
	VerdictComplete Verdict = iota
	VerdictIncomplete
)

func (v Verdict) String() string {
	if v == VerdictIncomplete {
		return "incomplete"
	}
	return "complete"
}

// ContextOnlyPlaceholder opens the body of an artifact that has context but
// no fragments.
const ContextOnlyPlaceholder = "# [no script block fragments recorded; context information follows]"

// Disclaimer is added to the header of executable-format artifacts.
const Disclaimer = "WARNING: reconstructed from event logs for forensic review. Do not execute without inspection."

// MaxListedMissing bounds Artifact.Missing. MissingRanges and MissingCount
// always describe every gap.
const MaxListedMissing = 1000

// Options control header rendering.
type Options struct {
	Format Format
}

// Artifact is a reconstructed script block ready for emission.
type Artifact struct {
	CorrelationID string
	DisplayName   string
	Verdict       Verdict
	// Total is the declared fragment count, zero when never readable.
	Total int
	// Present lists the fragment keys used for the body, ascending.
	Present []int
	// Missing lists the first MaxListedMissing indices in [1, Total] with no
	// fragment.
	Missing []int
	// MissingRanges lists every gap in [1, Total], ascending.
	MissingRanges []errors.IntRange
	// MissingCount is the number of indices in MissingRanges.
	MissingCount int
	// OutOfRange lists keys above Total. They are included in the body in
	// key order and called out in the header.
	OutOfRange  []int
	ContextOnly bool
	StartTime   *time.Time
	Header      string
	Content     string
	Format      Format
}

// Body returns header, blank line, content.
func (a *Artifact) Body() []byte {
	var b strings.Builder
	b.Grow(len(a.Header) + 1 + len(a.Content))
	b.WriteString(a.Header)
	b.WriteByte('\n')
	b.WriteString(a.Content)
	return []byte(b.String())
}

// Incomplete returns an *errors.IncompleteArtifactError for an incomplete
// artifact and nil otherwise.
func (a *Artifact) Incomplete() error {
	if a.Verdict != VerdictIncomplete {
		return nil
	}
	return &errors.IncompleteArtifactError{
		CorrelationID: a.CorrelationID,
		Total:         a.Total,
		Missing:       append([]int(nil), a.Missing...),
		MissingRanges: append([]errors.IntRange(nil), a.MissingRanges...),
	}
}

// Reconstruct builds the artifact for acc. A correlation ID with neither
// fragments nor context is skipped with an *errors.NoContentError.
func Reconstruct(acc *aggregate.Accumulator, opts Options) (*Artifact, error) {
	art := &Artifact{
		CorrelationID: acc.CorrelationID,
		DisplayName:   acc.DisplayName,
		Total:         acc.TotalFragments,
		StartTime:     acc.StartTime,
		Format:        opts.Format,
	}

	switch {
	case len(acc.Fragments) > 0:
		art.Present = acc.Keys()
		if art.Total > 0 {
			art.setMissing(art.Present)
			art.OutOfRange = outOfRange(art.Present, art.Total)
		}
		if art.Total <= 0 || art.MissingCount > 0 {
			art.Verdict = VerdictIncomplete
		}
		var body strings.Builder
		for _, k := range art.Present {
			body.WriteString(acc.Fragments[k])
		}
		art.Content = body.String()
	case acc.ContextInfo != nil:
		art.ContextOnly = true
		if art.Total > 0 {
			art.setMissing(nil)
			art.Verdict = VerdictIncomplete
		}
		art.Content = ContextOnlyPlaceholder + "\n" + *acc.ContextInfo
	default:
		return nil, &errors.NoContentError{CorrelationID: acc.CorrelationID}
	}

	art.Header = renderHeader(art, acc.ContextInfo)
	return art, nil
}

// setMissing derives the gaps in [1, Total] from the ascending present keys.
// The work is proportional to the number of keys, not to Total.
func (a *Artifact) setMissing(keys []int) {
	a.MissingRanges = missingRanges(keys, a.Total)
	a.MissingCount = 0
	a.Missing = nil
	for _, r := range a.MissingRanges {
		a.MissingCount += r.Len()
		for i := r.Lo; i <= r.Hi && len(a.Missing) < MaxListedMissing; i++ {
			a.Missing = append(a.Missing, i)
		}
	}
}

func missingRanges(keys []int, total int) []errors.IntRange {
	var gaps []errors.IntRange
	next := 1
	for _, k := range keys {
		if k < next {
			continue
		}
		if k > total {
			break
		}
		if k > next {
			gaps = append(gaps, errors.IntRange{Lo: next, Hi: k - 1})
		}
		next = k + 1
	}
	if next <= total {
		gaps = append(gaps, errors.IntRange{Lo: next, Hi: total})
	}
	return gaps
}

func outOfRange(keys []int, total int) []int {
	var out []int
	for _, k := range keys {
		if k < 1 || k > total {
			out = append(out, k)
		}
	}
	return out
}

func renderHeader(art *Artifact, contextInfo *string) string {
	var h headerWriter
	h.line("Reconstructed script block: " + art.DisplayName)
	h.line("Correlation ID: " + art.CorrelationID)
	if art.StartTime != nil {
		h.line("Started: " + art.StartTime.UTC().Format(time.RFC3339Nano))
	}
	if art.Total > 0 {
		h.line("Fragments: " + strconv.Itoa(len(art.Present)-len(art.OutOfRange)) + " of " + strconv.Itoa(art.Total))
	}
	if contextInfo != nil {
		h.block("Context: ", *contextInfo)
	}
	if art.Verdict == VerdictIncomplete {
		if art.Total > 0 {
			h.line("WARNING: incomplete artifact, missing fragment(s) " + errors.FormatRanges(art.MissingRanges) + " of " + strconv.Itoa(art.Total))
		} else {
			h.line("WARNING: incomplete artifact, fragment total unknown; completeness cannot be verified")
		}
	}
	if len(art.OutOfRange) > 0 {
		h.line("WARNING: fragment(s) " + errors.JoinInts(art.OutOfRange) + " outside declared range 1-" + strconv.Itoa(art.Total) + ", included in key order")
	}
	if art.Format.Executable() {
		h.line(Disclaimer)
	}
	return h.String()
}

// headerWriter prefixes every line with "# " so the header stays a comment
// in the script format.
type headerWriter struct {
	strings.Builder
}

func (h *headerWriter) line(s string) {
	h.WriteString("# ")
	h.WriteString(s)
	h.WriteByte('\n')
}

// block writes a possibly multi-line value; continuation lines are indented.
func (h *headerWriter) block(label, value string) {
	lines := strings.Split(strings.ReplaceAll(value, "\r\n", "\n"), "\n")
	h.line(label + lines[0])
	indent := strings.Repeat(" ", len(label))
	for _, l := range lines[1:] {
		h.line(indent + l)
	}
}
