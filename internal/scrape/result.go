package scrape

import (
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/kalambet/deflator/internal/failure"
	"github.com/kalambet/deflator/internal/timefmt"
)

// ResultItem is the outcome of one attempted item: either Succeeded or Failed.
type ResultItem interface {
	Name() string
	resultItem()
}

// Succeeded is a stored item.
type Succeeded struct {
	RelativePath string `json:"relative_path"`
	RemoteURL    string `json:"remote_url"`
}

func (s Succeeded) Name() string { return path.Base(s.RelativePath) }

func (Succeeded) resultItem() {}

// Failed is an item that could not be stored.
type Failed struct {
	ItemName string       `json:"item_name"`
	Failure  failure.Info `json:"failure"`
}

func (f Failed) Name() string { return f.ItemName }

func (Failed) resultItem() {}

const unknownTimeTaken = "unknown"

// Result aggregates one run. It is owned by the orchestrator call that built
// it and is read-only once returned.
type Result struct {
	source        Source
	start         time.Time
	timeTaken     string
	finished      bool
	items         []ResultItem
	generalErrors []failure.Info
}

// NewResult starts an empty result for source.
func NewResult(source Source, start time.Time) *Result {
	return &Result{source: source, start: start, timeTaken: unknownTimeTaken}
}

// OnItem appends the outcome of one item.
func (r *Result) OnItem(item ResultItem) {
	r.items = append(r.items, item)
}

// OnScrapingException records a failure that is not tied to any item.
func (r *Result) OnScrapingException(info failure.Info) {
	r.generalErrors = append(r.generalErrors, info)
}

// OnScrapingFinished stamps the elapsed time. Only the first call counts.
func (r *Result) OnScrapingFinished(now time.Time) {
	if r.finished {
		return
	}
	r.finished = true
	r.timeTaken = timefmt.Between(r.start, now, true)
}

func (r *Result) Source() Source { return r.source }
func (r *Result) Start() time.Time { return r.start }
func (r *Result) TimeTaken() string { return r.timeTaken }
func (r *Result) Finished() bool { return r.finished }
func (r *Result) ItemsCount() int { return len(r.items) }
func (r *Result) SucceededCount() int { return len(r.Succeeded()) }
func (r *Result) FailedCount() int { return len(r.Failed()) }
func (r *Result) Items() []ResultItem { return append([]ResultItem(nil), r.items...) }

// GeneralErrors returns the run-level failures.
func (r *Result) GeneralErrors() []failure.Info {
	return append([]failure.Info(nil), r.generalErrors...)
}

// Succeeded returns the successful items in processing order.
func (r *Result) Succeeded() []Succeeded {
	var out []Succeeded
	for _, it := range r.items {
		if s, ok := it.(Succeeded); ok {
			out = append(out, s)
		}
	}
	return out
}

// Failed returns the failed items in processing order.
func (r *Result) Failed() []Failed {
	var out []Failed
	for _, it := range r.items {
		if f, ok := it.(Failed); ok {
			out = append(out, f)
		}
	}
	return out
}

// SuccessPercentage is the share of succeeded items, or "n/a" for no items.
func (r *Result) SuccessPercentage() string {
	return timefmt.Percentage(r.SucceededCount(), r.ItemsCount())
}

func (r *Result) String() string {
	return fmt.Sprintf("Result of [%s] scrapper: %d of %d (%s) scrapped in %s",
		r.source, r.SucceededCount(), r.ItemsCount(), r.SuccessPercentage(), r.timeTaken)
}

type resultJSON struct {
	Source            Source         `json:"source"`
	Start             string         `json:"ts_start"`
	TimeTaken         string         `json:"time_taken"`
	ItemsCount        int            `json:"items_count"`
	SucceededCount    int            `json:"items_succeeded_count"`
	FailedCount       int            `json:"items_failed_count"`
	SuccessPercentage string         `json:"success_percentage"`
	Succeeded         []Succeeded    `json:"items_succeeded"`
	Failed            []Failed       `json:"items_failed"`
	GeneralErrors     []failure.Info `json:"general_error_list"`
	Summary           string         `json:"summary"`
}

func (r *Result) MarshalJSON() ([]byte, error) {
	succeeded, failed := r.Succeeded(), r.Failed()
	if succeeded == nil {
		succeeded = []Succeeded{}
	}
	if failed == nil {
		failed = []Failed{}
	}
	general := r.GeneralErrors()
	if general == nil {
		general = []failure.Info{}
	}
	return json.Marshal(resultJSON{
		Source:            r.source,
		Start:             timefmt.Format(timefmt.DateTime, r.start),
		TimeTaken:         r.timeTaken,
		ItemsCount:        r.ItemsCount(),
		SucceededCount:    len(succeeded),
		FailedCount:       len(failed),
		SuccessPercentage: r.SuccessPercentage(),
		Succeeded:         succeeded,
		Failed:            failed,
		GeneralErrors:     general,
		Summary:           r.String(),
	})
}
