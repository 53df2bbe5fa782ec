package scrape

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listingPage = `<html><body>
<a href="/roumingShow.php?file=c.jpg">c</a>
<a href="roumingShow.php?id=1&file=b.jpg&x=y">b</a>
<a href="/other.php?file=ignored.jpg">other</a>
<a href="/roumingShow.php?file=">empty</a>
<a href="/roumingShow.php?nofile=1">missing</a>
<a>no href</a>
<a href="https://www.rouming.cz/roumingShow.php?file=a.jpg">a</a>
</body></html>`

func TestListing(t *testing.T) {
	var gotUA, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(listingPage))
	}))
	defer srv.Close()

	f := NewFetcher(srv.Client(), "", 0)
	names, err := f.Listing(context.Background(), Target{
		BaseURL: srv.URL,
		Params:  url.Values{"agree": {"on"}},
		Marker:  "roumingShow.php",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"c.jpg", "b.jpg", "a.jpg"}, names)
	assert.Equal(t, DefaultUserAgent, gotUA)
	assert.Equal(t, "agree=on", gotQuery)
}

func TestListingDecodesDeclaredCharset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=iso-8859-2")
		// 0xE8 is "č" in ISO-8859-2.
		w.Write([]byte("<a href=\"/masoShow.php?file=\xe8ert.jpg\">x</a>"))
	}))
	defer srv.Close()

	names, err := NewFetcher(srv.Client(), "agent/1.0", 0).Listing(context.Background(), Target{BaseURL: srv.URL, Marker: "masoShow.php"})
	require.NoError(t, err)
	assert.Equal(t, []string{"čert.jpg"}, names)
}

func TestListingHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewFetcher(srv.Client(), "", 0).Listing(context.Background(), Target{BaseURL: srv.URL, Marker: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestDownload(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Write([]byte("jpeg bytes"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	dest := filepath.Join(dir, "roumen", "2024", "10", "a.jpg")

	err := NewFetcher(srv.Client(), "agent/1.0", 0).Download(context.Background(), srv.URL+"/upload/a.jpg", dest)
	require.NoError(t, err)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "jpeg bytes", string(data))
	assert.Equal(t, "agent/1.0", gotUA)

	entries, err := os.ReadDir(filepath.Dir(dest))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestDownloadFailureLeavesNothing(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	dir := t.TempDir()
	dest := filepath.Join(dir, "a.jpg")

	err := NewFetcher(srv.Client(), "", 0).Download(context.Background(), srv.URL+"/upload/a.jpg", dest)
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestOf(t *testing.T) {
	assert.Equal(t, Roumen, Of("roumen"))
	assert.Equal(t, RoumenMaso, Of("roumen-maso"))
	assert.Equal(t, Noop, Of("noop"))
	assert.Equal(t, Noop, Of("Roumen"))
	assert.Equal(t, Noop, Of(""))
	assert.NotContains(t, Sources(), Noop)
}

func TestTargetListingURL(t *testing.T) {
	targets := DefaultTargets()
	assert.Equal(t, "https://www.rouming.cz", targets[Roumen].ListingURL())
	assert.Equal(t, "https://www.roumenovomaso.cz?agree=on", targets[RoumenMaso].ListingURL())
}
