package scrape

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Pipeline runs one scrape. *Scraper implements it.
type Pipeline interface {
	Scrape(ctx context.Context, src Source) *Result
}

// Runner serializes scrapes across the process. Storage assumes one writer
// at a time, and HTTP, scheduler and MCP triggers all go through here.
type Runner struct {
	pipeline Pipeline
	sources  []Source

	mu    sync.Mutex
	group singleflight.Group
}

// NewRunner returns a Runner over p. RunAll visits sources in order.
func NewRunner(p Pipeline, sources []Source) *Runner {
	return &Runner{pipeline: p, sources: sources}
}

// Sources returns the sources RunAll visits.
func (r *Runner) Sources() []Source {
	return append([]Source(nil), r.sources...)
}

// Run scrapes a single source, waiting for any run in progress.
func (r *Runner) Run(ctx context.Context, src Source) *Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pipeline.Scrape(ctx, src)
}

// RunAll scrapes every source in turn. Callers arriving while a RunAll is
// already in flight get its results instead of starting another; shared
// reports whether that happened.
func (r *Runner) RunAll(ctx context.Context) (results []*Result, shared bool) {
	v, _, shared := r.group.Do("all", func() (any, error) {
		r.mu.Lock()
		defer r.mu.Unlock()

		out := make([]*Result, 0, len(r.sources))
		for _, src := range r.sources {
			out = append(out, r.pipeline.Scrape(ctx, src))
		}
		return out, nil
	})
	return v.([]*Result), shared
}
