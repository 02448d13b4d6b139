package runtime

import (
	"context"

	"golang.org/x/sync/errgroup"

	configpkg "github.com/drblury/scriptflow/internal/runtime/config"
)

// Batch runs independent pipelines over many streams. Streams share only
// the pipeline's sink, whose Claim keeps identifiers unique across them.
type Batch struct {
	pipeline    *Pipeline
	parallelism int
}

// NewBatch returns a batch running at most parallelism streams at once.
// Values below one mean configpkg.DefaultParallelism.
func NewBatch(pipeline *Pipeline, parallelism int) *Batch {
	if parallelism <= 0 {
		parallelism = configpkg.DefaultParallelism
	}
	return &Batch{pipeline: pipeline, parallelism: parallelism}
}

// BatchReport holds one StreamReport per source, in input order.
type BatchReport struct {
	Streams []StreamReport
}

// Run processes every source. A failing source is recorded in its own
// report and never stops the others.
func (b *Batch) Run(ctx context.Context, sources []Source) BatchReport {
	reports := make([]StreamReport, len(sources))

	var g errgroup.Group
	g.SetLimit(b.parallelism)
	for i, src := range sources {
		g.Go(func() error {
			reports[i] = b.pipeline.ProcessStream(ctx, src)
			return nil
		})
	}
	_ = g.Wait()

	return BatchReport{Streams: reports}
}

// Artifacts counts the artifacts written across all streams.
func (r BatchReport) Artifacts() int {
	n := 0
	for i := range r.Streams {
		n += len(r.Streams[i].Artifacts)
	}
	return n
}

// Failed returns the reports of streams that could not be processed.
func (r BatchReport) Failed() []StreamReport {
	var out []StreamReport
	for _, s := range r.Streams {
		if s.Err != nil {
			out = append(out, s)
		}
	}
	return out
}

// HasFailures reports whether any stream failed or any artifact could not
// be written.
func (r BatchReport) HasFailures() bool {
	for _, s := range r.Streams {
		if s.Err != nil || len(s.Failures) > 0 {
			return true
		}
	}
	return false
}
