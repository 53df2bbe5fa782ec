package history

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/kalambet/deflator/internal/failure"
	"github.com/kalambet/deflator/internal/storage"
	"github.com/kalambet/deflator/internal/timefmt"
)

// ErrRunClosed is returned by every Writer method once the run has been
// finished one way or the other.
var ErrRunClosed = errors.New("run already closed")

// Writer owns one open run record. It is not safe for concurrent use; a
// run is driven by a single orchestrator call.
type Writer struct {
	gw     Gateway
	source string
	id     int64
	now    func() time.Time

	succ   int
	fail   int
	closed bool
}

// Open inserts an in-progress run for source and returns a Writer bound to
// the id the insert produced.
func Open(ctx context.Context, gw Gateway, source string, opts ...Option) (*Writer, error) {
	o := buildOptions(opts)
	ts := o.now()

	id, err := gw.Insert(ctx, storage.TableRuns, map[string]any{
		"source":        source,
		"ts_start_date": timefmt.Format(timefmt.Date, ts),
		"ts_start_time": timefmt.Format(timefmt.TimeMS, ts),
		"status":        string(StatusInProgress),
	})
	if err != nil {
		return nil, fmt.Errorf("opening run for %s: %w", source, err)
	}

	return &Writer{gw: gw, source: source, id: id, now: o.now}, nil
}

// RunID returns the id of the run this writer records into.
func (w *Writer) RunID() int64 { return w.id }

// Counts returns the successes and failures recorded so far.
func (w *Writer) Counts() (succeeded, failed int) { return w.succ, w.fail }

// OnItemSuccess records a downloaded item. localPath is stored relative to
// the scrape directory, always with forward slashes.
func (w *Writer) OnItemSuccess(ctx context.Context, localPath, name string) error {
	if w.closed {
		return ErrRunClosed
	}
	w.succ++

	ts := w.now()
	_, err := w.gw.Insert(ctx, storage.TableItems, map[string]any{
		"scrap_stat_id": w.id,
		"ts_date":       timefmt.Format(timefmt.Date, ts),
		"ts_week":       timefmt.Week(ts),
		"ts_time":       timefmt.Format(timefmt.TimeMS, ts),
		"local_path":    filepath.ToSlash(localPath),
		"name":          name,
		"impressions":   0,
	})
	if err != nil {
		return fmt.Errorf("recording item %s: %w", name, err)
	}
	return nil
}

// OnItemFailure records a failed item attempt.
func (w *Writer) OnItemFailure(ctx context.Context, name, description string, info failure.Info) error {
	if w.closed {
		return ErrRunClosed
	}
	w.fail++

	ts := w.now()
	_, err := w.gw.Insert(ctx, storage.TableFails, map[string]any{
		"scrap_stat_id": w.id,
		"ts_date":       timefmt.Format(timefmt.Date, ts),
		"ts_time":       timefmt.Format(timefmt.TimeMS, ts),
		"item_name":     name,
		"description":   description,
		"exc_type":      info.Type,
		"exc_value":     info.Value,
		"exc_traceback": info.Trace,
	})
	if err != nil {
		return fmt.Errorf("recording failure of %s: %w", name, err)
	}
	return nil
}

// Finish closes the run as complete.
func (w *Writer) Finish(ctx context.Context) error {
	return w.close(ctx, StatusComplete, nil)
}

// FinishExceptionally closes the run as failed with info attached.
func (w *Writer) FinishExceptionally(ctx context.Context, info failure.Info) error {
	return w.close(ctx, StatusFailed, &info)
}

func (w *Writer) close(ctx context.Context, status Status, info *failure.Info) error {
	if w.closed {
		return ErrRunClosed
	}

	ts := w.now()
	values := map[string]any{
		"ts_end_date": timefmt.Format(timefmt.Date, ts),
		"ts_end_time": timefmt.Format(timefmt.TimeMS, ts),
		"status":      string(status),
		"succ_count":  w.succ,
		"fail_count":  w.fail,
	}
	if info != nil {
		values["exc_type"] = info.Type
		values["exc_value"] = info.Value
		values["exc_traceback"] = info.Trace
	}

	if err := w.gw.Update(ctx, storage.TableRuns, values, map[string]any{"scrap_stat_id": w.id}); err != nil {
		return fmt.Errorf("closing run %d as %s: %w", w.id, status, err)
	}
	w.closed = true
	return nil
}
