package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabletopforge/component-extractor/internal/config"
	"github.com/tabletopforge/component-extractor/internal/observability"
	"github.com/tabletopforge/component-extractor/internal/testutil"
)

func newTestFetcher(t *testing.T, hosts []string, maxBytes int64) *Fetcher {
	t.Helper()
	return New(config.FetchConfig{
		AllowedHosts:    hosts,
		MaxDownloadSize: maxBytes,
		DownloadTimeout: 5 * time.Second,
	}, observability.Nop())
}

func TestFetch_LocalPathPassthrough(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "rulebook.pdf")
	testutil.WriteMinimalPDF(t, src)

	f := newTestFetcher(t, nil, 1<<20)
	path, err := f.Fetch(context.Background(), src, dir)
	require.NoError(t, err)
	assert.Equal(t, src, path)

	pages, err := f.PageCount(path)
	require.NoError(t, err)
	assert.Equal(t, 1, pages)
}

func TestFetch_LocalPathMissing(t *testing.T) {
	f := newTestFetcher(t, nil, 1<<20)
	_, err := f.Fetch(context.Background(), "/nonexistent/rulebook.pdf", t.TempDir())
	assert.Error(t, err)
}

func TestFetch_DisallowedHostNoNetworkCall(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	f := newTestFetcher(t, nil, 1<<20) // empty allowlist: nothing remote permitted
	_, err := f.Fetch(context.Background(), srv.URL+"/rulebook.pdf", t.TempDir())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrURLNotAllowed)
	assert.Equal(t, int64(0), hits.Load(), "allowlist must be checked before any network call")
}

func TestFetch_DeclaredOversizeRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "99999999")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f := newTestFetcher(t, []string{testHost(t, srv)}, 1024)
	dir := t.TempDir()
	_, err := f.Fetch(context.Background(), srv.URL+"/big.pdf", dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPDFTooLarge)
	assertNoPartialFile(t, dir)
}

func TestFetch_ActualOversizeRejected(t *testing.T) {
	// No Content-Length header; body alone exceeds the ceiling.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.(http.Flusher).Flush() // force chunked transfer, no Content-Length
		big := make([]byte, 4096)
		w.Write(big)
	}))
	defer srv.Close()

	f := newTestFetcher(t, []string{testHost(t, srv)}, 1024)
	dir := t.TempDir()
	_, err := f.Fetch(context.Background(), srv.URL+"/big.pdf", dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPDFTooLarge)
	assertNoPartialFile(t, dir)
}

func TestFetch_RemoteValidPDF(t *testing.T) {
	pdf := testutil.MinimalPDF()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(pdf)
	}))
	defer srv.Close()

	f := newTestFetcher(t, []string{testHost(t, srv)}, 1<<20)
	dir := t.TempDir()
	path, err := f.Fetch(context.Background(), srv.URL+"/rulebook.pdf", dir)
	require.NoError(t, err)
	assert.FileExists(t, path)
	assert.Equal(t, filepath.Join(dir, "source.pdf"), path)
}

func TestFetch_RemoteNotAPDF(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not a pdf</html>"))
	}))
	defer srv.Close()

	f := newTestFetcher(t, []string{testHost(t, srv)}, 1<<20)
	_, err := f.Fetch(context.Background(), srv.URL+"/fake.pdf", t.TempDir())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotPDF)
}

func testHost(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	return u.Hostname()
}

func assertNoPartialFile(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "rejected download must not leave a partial file")
}
