// Package fetch resolves extraction sources: local PDF paths pass through,
// remote URLs are downloaded under host allowlisting and byte/time ceilings.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/tabletopforge/component-extractor/internal/config"
	"github.com/tabletopforge/component-extractor/internal/observability"
)

// Policy violations during fetch.
var (
	ErrURLNotAllowed = errors.New("url host not in allowlist")
	ErrPDFTooLarge   = errors.New("pdf exceeds download size ceiling")
	ErrNotPDF        = errors.New("fetched file is not a valid pdf")
)

// Fetcher resolves source references to local PDF files.
type Fetcher struct {
	allowedHosts map[string]struct{}
	maxBytes     int64
	client       *http.Client
	logger       *observability.Logger
}

// New creates a Fetcher. An empty host allowlist means no remote fetches are
// permitted at all.
func New(cfg config.FetchConfig, logger *observability.Logger) *Fetcher {
	hosts := make(map[string]struct{}, len(cfg.AllowedHosts))
	for _, h := range cfg.AllowedHosts {
		hosts[strings.ToLower(h)] = struct{}{}
	}

	return &Fetcher{
		allowedHosts: hosts,
		maxBytes:     cfg.MaxDownloadSize,
		client: &http.Client{
			Timeout: cfg.DownloadTimeout,
		},
		logger: logger,
	}
}

// Fetch resolves sourceRef to a local path. Remote sources are downloaded into
// destDir (the job's temp root). The returned path always validates as a PDF.
func (f *Fetcher) Fetch(ctx context.Context, sourceRef, destDir string) (string, error) {
	var localPath string

	if isRemote(sourceRef) {
		var err error
		localPath, err = f.download(ctx, sourceRef, destDir)
		if err != nil {
			return "", err
		}
	} else {
		if _, err := os.Stat(sourceRef); err != nil {
			return "", fmt.Errorf("local pdf not found: %w", err)
		}
		localPath = sourceRef
	}

	if err := validatePDF(localPath); err != nil {
		return "", err
	}

	return localPath, nil
}

// PageCount returns the number of pages in a local PDF.
func (f *Fetcher) PageCount(path string) (int, error) {
	n, err := api.PageCountFile(path)
	if err != nil {
		return 0, fmt.Errorf("count pages: %w", err)
	}
	return n, nil
}

func isRemote(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}

// download fetches a remote PDF. The host allowlist is checked before any
// network call. The byte ceiling is checked twice: against the declared
// Content-Length before streaming, and against the actual bytes received
// afterwards. Either violation discards the partial file.
func (f *Fetcher) download(ctx context.Context, rawURL, destDir string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}

	host := strings.ToLower(u.Hostname())
	if _, ok := f.allowedHosts[host]; !ok {
		return "", fmt.Errorf("%w: %q", ErrURLNotAllowed, host)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download pdf: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download pdf: unexpected status %d", resp.StatusCode)
	}

	// Headers can lie or be absent, but a declared oversize is rejected
	// without reading a single body byte.
	if resp.ContentLength > f.maxBytes {
		return "", fmt.Errorf("%w: declared %d bytes, ceiling %d", ErrPDFTooLarge, resp.ContentLength, f.maxBytes)
	}

	dest := filepath.Join(destDir, "source.pdf")
	out, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("create download target: %w", err)
	}

	n, err := io.Copy(out, io.LimitReader(resp.Body, f.maxBytes+1))
	closeErr := out.Close()
	if err != nil {
		os.Remove(dest)
		return "", fmt.Errorf("stream pdf: %w", err)
	}
	if closeErr != nil {
		os.Remove(dest)
		return "", fmt.Errorf("flush download: %w", closeErr)
	}

	if n > f.maxBytes {
		os.Remove(dest)
		return "", fmt.Errorf("%w: received over %d bytes", ErrPDFTooLarge, f.maxBytes)
	}

	f.logger.Debug().Str("host", host).Int64("bytes", n).Msg("Downloaded PDF")
	return dest, nil
}

func validatePDF(path string) error {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	if err := api.ValidateFile(path, conf); err != nil {
		return fmt.Errorf("%w: %v", ErrNotPDF, err)
	}
	return nil
}
