package api

import (
	"context"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/kalambet/deflator/internal/history"
	"github.com/kalambet/deflator/internal/scrape"
)

// Reader is the read side of the run history.
type Reader interface {
	RecentRuns(ctx context.Context, limit any) ([]history.RunView, error)
	RecentItems(ctx context.Context, source string, limit any) ([]history.ItemView, error)
}

// Runner triggers scrapes. *scrape.Runner implements it.
type Runner interface {
	Run(ctx context.Context, src scrape.Source) *scrape.Result
	RunAll(ctx context.Context) ([]*scrape.Result, bool)
	Sources() []scrape.Source
}

type AppDeps struct {
	Reader    Reader
	Runner    Runner
	Token     string
	Taunts    []string // optional; DefaultTaunts when empty
	ScrapPath string   // served under /images/
	Limits    Limits
	Logger    zerolog.Logger
}

// Limits are the default page sizes when a request carries no limit.
type Limits struct {
	ImagesShown int
	ScrapsShown int
}

// ScrapeResponse is returned by /scrape.
type ScrapeResponse struct {
	Shared  bool             `json:"shared"`
	Results []*scrape.Result `json:"results"`
}

// ViewResponse is returned by /view/{source}.
type ViewResponse struct {
	Source    string             `json:"source"`
	ImageBase string             `json:"image_base"`
	Items     []history.ItemView `json:"items"`
}

func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(deps.Logger))

	r.Get("/health", handleHealth)
	r.Get("/sources", handleSources(deps))
	r.Get("/stats", handleStats(deps))
	r.Get("/view/{source}", handleView(deps))

	r.Group(func(r chi.Router) {
		r.Use(TokenAuth(deps.Token, deps.Taunts))
		r.Get("/scrape", handleScrape(deps))
		r.Post("/scrape", handleScrape(deps))
	})

	if deps.ScrapPath != "" {
		r.Get("/images/*", handleImages(deps.ScrapPath))
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpError(w, http.StatusNotFound, "not_found_error", "no route for %s", r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpError(w, http.StatusMethodNotAllowed, "invalid_request_error", "method %s not allowed", r.Method)
	})

	return r
}

func handleSources(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, deps.Runner.Sources())
	}
}

func handleStats(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", deps.Limits.ScrapsShown, 0)

		runs, err := deps.Reader.RecentRuns(r.Context(), limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "reading runs: %v", err)
			return
		}
		if runs == nil {
			runs = []history.RunView{}
		}
		writeJSON(w, http.StatusOK, runs)
	}
}

func handleView(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		src := scrape.Of(chi.URLParam(r, "source"))
		limit := parseIntParam(r, "limit", deps.Limits.ImagesShown, 0)

		resp := ViewResponse{Source: src.String(), ImageBase: "/images/", Items: []history.ItemView{}}
		if src != scrape.Noop {
			items, err := deps.Reader.RecentItems(r.Context(), src.String(), limit)
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "reading items: %v", err)
				return
			}
			if items != nil {
				resp.Items = items
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleScrape(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// A scrape outlives an impatient client.
		ctx := context.WithoutCancel(r.Context())

		if name := r.URL.Query().Get("source"); name != "" {
			src := scrape.Of(name)
			if src == scrape.Noop {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown source %q", name)
				return
			}
			res := deps.Runner.Run(ctx, src)
			writeJSON(w, http.StatusOK, ScrapeResponse{Results: []*scrape.Result{res}})
			return
		}

		results, shared := deps.Runner.RunAll(ctx)
		writeJSON(w, http.StatusOK, ScrapeResponse{Shared: shared, Results: results})
	}
}

func handleImages(root string) http.HandlerFunc {
	fs := http.StripPrefix("/images/", http.FileServer(http.Dir(root)))
	return func(w http.ResponseWriter, r *http.Request) {
		rel := path.Clean("/" + chi.URLParam(r, "*"))
		info, err := os.Stat(filepath.Join(root, filepath.FromSlash(rel)))
		if err != nil || info.IsDir() {
			httpError(w, http.StatusNotFound, "not_found_error", "no image at %s", rel)
			return
		}
		fs.ServeHTTP(w, r)
	}
}

func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("took", time.Since(start)).
				Msg("request")
		})
	}
}
