package scrape

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/kalambet/deflator/internal/failure"
	"github.com/kalambet/deflator/internal/history"
	"github.com/kalambet/deflator/internal/timefmt"
)

// itemFailureDescription is stored with every failed item.
const itemFailureDescription = "scrap failure"

// Remote is the network side of a scrape. *Fetcher implements it.
type Remote interface {
	Listing(ctx context.Context, t Target) ([]string, error)
	Download(ctx context.Context, rawURL, dest string) error
}

// Scraper runs the fetch, dedup, download and record pipeline for one source
// at a time. Scrape never fails; every problem ends up on the Result.
type Scraper struct {
	gw       history.Gateway
	remote   Remote
	settings Settings
	targets  map[Source]Target
	log      zerolog.Logger

	now          func() time.Time
	windowMonths int
}

// Option configures a Scraper.
type Option func(*Scraper)

// WithTargets replaces DefaultTargets.
func WithTargets(targets map[Source]Target) Option {
	return func(s *Scraper) { s.targets = targets }
}

// WithClock replaces time.Now for results and history records.
func WithClock(now func() time.Time) Option {
	return func(s *Scraper) { s.now = now }
}

// WithDedupWindow sets how many months of history count as already seen.
func WithDedupWindow(months int) Option {
	return func(s *Scraper) { s.windowMonths = months }
}

// New returns a Scraper recording into gw and reaching the sites through remote.
func New(gw history.Gateway, remote Remote, settings Settings, log zerolog.Logger, opts ...Option) *Scraper {
	s := &Scraper{
		gw:           gw,
		remote:       remote,
		settings:     settings,
		targets:      DefaultTargets(),
		log:          log,
		now:          time.Now,
		windowMonths: history.DefaultDedupWindowMonths,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scraper) historyOptions() []history.Option {
	return []history.Option{history.WithClock(s.now), history.WithDedupWindow(s.windowMonths)}
}

// Scrape downloads every new item of src and records the run. Noop yields an
// empty finished Result without touching storage.
func (s *Scraper) Scrape(ctx context.Context, src Source) *Result {
	res := NewResult(src, s.now())
	defer func() { res.OnScrapingFinished(s.now()) }()

	if src == Noop {
		return res
	}

	log := s.log.With().Str("source", string(src)).Logger()

	target, ok := s.targets[src]
	if !ok {
		res.OnScrapingException(failure.Capture(fmt.Errorf("no target configured for source %q", src)))
		log.Error().Msg("scrape skipped: no target configured")
		return res
	}

	w, err := history.Open(ctx, s.gw, string(src), s.historyOptions()...)
	if err != nil {
		res.OnScrapingException(failure.Capture(err))
		log.Error().Err(err).Msg("could not open run record")
		return res
	}
	log = log.With().Int64("run_id", w.RunID()).Logger()
	log.Info().Str("datafile", s.settings.Datafile).Msg("scrape started")

	// An opened run is always recorded and closed, even after ctx is cancelled.
	rec := context.WithoutCancel(ctx)

	if info, failed := s.execute(ctx, rec, log, target, src, w, res); failed {
		res.OnScrapingException(info)
		if err := w.FinishExceptionally(rec, info); err != nil {
			log.Error().Err(err).Msg("could not close failed run")
		}
		log.Error().Str("error", info.String()).Msg("scrape failed")
		return res
	}

	succ, fail := w.Counts()
	log.Info().
		Int("succeeded", succ).
		Int("failed", fail).
		Str("elapsed", timefmt.Between(res.Start(), s.now(), true)).
		Msg("scrape finished")
	return res
}

// execute runs everything between opening and closing the run. Any error or
// panic is turned into a failure.Info right where it surfaces. Remote calls
// use ctx; run records are written through rec.
func (s *Scraper) execute(ctx, rec context.Context, log zerolog.Logger, target Target, src Source, w *history.Writer, res *Result) (info failure.Info, failed bool) {
	defer func() {
		if r := recover(); r != nil {
			info, failed = failure.FromPanic(r), true
		}
	}()

	if err := s.process(ctx, rec, log, target, src, w, res); err != nil {
		return failure.Capture(err), true
	}
	return failure.Info{}, false
}

func (s *Scraper) process(ctx, rec context.Context, log zerolog.Logger, target Target, src Source, w *history.Writer, res *Result) error {
	remote, err := s.remote.Listing(ctx, target)
	if err != nil {
		return fmt.Errorf("fetching listing: %w", err)
	}

	known, err := history.NewReader(s.gw, s.historyOptions()...).KnownItemNames(ctx, string(src))
	if err != nil {
		return fmt.Errorf("reading known items: %w", err)
	}

	candidates := Candidates(remote, known)
	log.Debug().Int("listed", len(remote)).Int("new", len(candidates)).Msg("listing fetched")

	year, week := timefmt.WeekDir(res.Start())
	relDir := path.Join(string(src), year, week)

	for _, name := range candidates {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("scrape interrupted: %w", err)
		}

		item := s.fetchItem(ctx, target, relDir, name)
		res.OnItem(item)

		switch it := item.(type) {
		case Succeeded:
			log.Debug().Str("item", name).Str("path", it.RelativePath).Msg("item stored")
			if err := w.OnItemSuccess(rec, it.RelativePath, name); err != nil {
				return err
			}
		case Failed:
			log.Warn().Str("item", name).Str("error", it.Failure.String()).Msg("item failed")
			if err := w.OnItemFailure(rec, name, itemFailureDescription, it.Failure); err != nil {
				return err
			}
		}
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("scrape interrupted: %w", err)
	}
	return w.Finish(rec)
}

// fetchItem downloads one item. Failures, panics included, are returned as
// Failed and never escape.
func (s *Scraper) fetchItem(ctx context.Context, target Target, relDir, name string) (item ResultItem) {
	defer func() {
		if r := recover(); r != nil {
			item = Failed{ItemName: name, Failure: failure.FromPanic(r)}
		}
	}()

	if err := checkItemName(name); err != nil {
		return Failed{ItemName: name, Failure: failure.Capture(err)}
	}

	rel := path.Join(relDir, name)
	remoteURL := strings.TrimSuffix(target.ImageBase, "/") + "/" + url.PathEscape(name)
	dest := filepath.Join(s.settings.ScrapPath(), filepath.FromSlash(rel))

	if err := s.remote.Download(ctx, remoteURL, dest); err != nil {
		return Failed{ItemName: name, Failure: failure.Capture(err)}
	}
	return Succeeded{RelativePath: rel, RemoteURL: remoteURL}
}

var errUnsafeName = errors.New("unsafe item name")

func checkItemName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", errUnsafeName, name)
	}
	return nil
}
