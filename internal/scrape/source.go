// Package scrape downloads new images from the configured gallery sites and
// records each run through the history package.
package scrape

import (
	"net/url"
	"path/filepath"
)

// Source identifies a scrape target. Its string value is stored with every
// run and used in routes and directory names.
type Source string

const (
	Noop       Source = "noop"
	Roumen     Source = "roumen"
	RoumenMaso Source = "roumen-maso"
)

var known = []Source{Noop, Roumen, RoumenMaso}

// Of returns the Source whose value is s, or Noop for anything unknown.
func Of(s string) Source {
	for _, src := range known {
		if string(src) == s {
			return src
		}
	}
	return Noop
}

// Sources returns every real target in a stable order, Noop excluded.
func Sources() []Source {
	return []Source{Roumen, RoumenMaso}
}

func (s Source) String() string { return string(s) }

// Target describes where a source lists its images and where it serves them.
type Target struct {
	BaseURL   string
	Params    url.Values
	ImageBase string
	// Marker selects the anchors that point at image pages.
	Marker string
}

// ListingURL is BaseURL with Params appended.
func (t Target) ListingURL() string {
	if len(t.Params) == 0 {
		return t.BaseURL
	}
	return t.BaseURL + "?" + t.Params.Encode()
}

// DefaultTargets returns the production configuration of every real source.
func DefaultTargets() map[Source]Target {
	return map[Source]Target{
		Roumen: {
			BaseURL:   "https://www.rouming.cz",
			ImageBase: "https://www.rouming.cz/upload",
			Marker:    "roumingShow.php",
		},
		RoumenMaso: {
			BaseURL:   "https://www.roumenovomaso.cz",
			Params:    url.Values{"agree": {"on"}},
			ImageBase: "https://www.roumenovomaso.cz/upload",
			Marker:    "masoShow.php",
		},
	}
}

// Settings locates the downloaded files and the datafile.
type Settings struct {
	BaseDir   string
	ImagesDir string
	// Datafile is the resolved path of the SQLite datafile runs are recorded in.
	Datafile string
}

// ScrapPath is the directory images are stored under.
func (s Settings) ScrapPath() string {
	return filepath.Join(s.BaseDir, s.ImagesDir)
}
