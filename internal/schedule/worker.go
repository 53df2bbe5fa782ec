// Package schedule triggers scrape-all runs on a fixed interval.
package schedule

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/kalambet/deflator/internal/scrape"
)

// AllRunner runs every source once. *scrape.Runner implements it.
type AllRunner interface {
	RunAll(ctx context.Context) ([]*scrape.Result, bool)
}

// Worker calls RunAll every interval until its context ends.
type Worker struct {
	runner   AllRunner
	interval time.Duration
	logger   zerolog.Logger
}

// NewWorker returns a Worker. An interval <= 0 makes Run return immediately.
func NewWorker(runner AllRunner, interval time.Duration, logger zerolog.Logger) *Worker {
	return &Worker{
		runner:   runner,
		interval: interval,
		logger:   logger.With().Str("component", "schedule").Logger(),
	}
}

// Run waits one interval, scrapes, and repeats until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	if w.interval <= 0 {
		w.logger.Debug().Msg("scheduled scraping disabled")
		return
	}
	w.logger.Info().Dur("interval", w.interval).Msg("scheduled scraping enabled")

	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(w.interval):
		}

		if ctx.Err() != nil {
			return
		}
		w.RunOnce(ctx)
	}
}

// RunOnce performs a single scheduled scrape of every source and returns
// how many of them reported run-level errors.
func (w *Worker) RunOnce(ctx context.Context) int {
	results, shared := w.runner.RunAll(ctx)

	failed := 0
	for _, res := range results {
		ev := w.logger.Info()
		if n := len(res.GeneralErrors()); n > 0 {
			failed++
			ev = w.logger.Warn().Int("general_errors", n)
		}
		ev.Str("source", res.Source().String()).
			Bool("shared", shared).
			Int("succeeded", res.SucceededCount()).
			Int("failed", res.FailedCount()).
			Str("elapsed", res.TimeTaken()).
			Msg("scheduled scrape done")
	}
	return failed
}
