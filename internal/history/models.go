// Package history records scrape runs and their items, and reads them back
// for statistics, galleries and de-duplication.
package history

import (
	"context"
	"time"

	"github.com/kalambet/deflator/internal/storage"
)

// Status is the lifecycle state of a run record.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusComplete   Status = "complete"
	StatusFailed     Status = "failed"
)

// DefaultDedupWindowMonths is how far back KnownItemNames looks unless
// configured otherwise.
const DefaultDedupWindowMonths = 6

// Gateway is the subset of *storage.Store the writer and readers use.
type Gateway interface {
	storage.Querier
	Insert(ctx context.Context, table string, values map[string]any) (int64, error)
	Update(ctx context.Context, table string, values, where map[string]any) error
}

// RunView is one row of the statistics listing.
type RunView struct {
	ID         int64  `json:"scrap_id"`
	Source     string `json:"source"`
	Status     Status `json:"status"`
	Start      string `json:"ts_start"`
	End        string `json:"ts_end"`
	Age        string `json:"age"`
	TimeTaken  string `json:"time_taken"`
	Succeeded  *int64 `json:"count_succ"`
	Failed     *int64 `json:"count_fail"`
	Percentage string `json:"succ_percentage"`

	ExcType      string `json:"exc_type,omitempty"`
	ExcValue     string `json:"exc_value,omitempty"`
	ExcTraceback string `json:"exc_traceback,omitempty"`
}

// ItemView is one downloaded item as shown in a gallery.
type ItemView struct {
	Datetime    string `json:"datetime"`
	Age         string `json:"age"`
	Name        string `json:"name"`
	LocalPath   string `json:"local_path"`
	Impressions int64  `json:"impressions"`
}

// Option configures a Writer or Reader.
type Option func(*options)

type options struct {
	now          func() time.Time
	windowMonths int
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now, windowMonths: DefaultDedupWindowMonths}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithClock replaces time.Now. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithDedupWindow sets how many months back KnownItemNames looks.
// Zero or a negative value disables the window entirely.
func WithDedupWindow(months int) Option {
	return func(o *options) { o.windowMonths = months }
}
