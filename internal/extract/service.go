// Package extract implements the dual-strategy extractor: embedded raster
// objects first, full-page snapshots only when a rulebook has none.
package extract

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/tabletopforge/component-extractor/internal/config"
	"github.com/tabletopforge/component-extractor/internal/executor"
	"github.com/tabletopforge/component-extractor/internal/imaging"
	"github.com/tabletopforge/component-extractor/internal/observability"
)

// Extraction is the outcome of one dual-strategy run.
type Extraction struct {
	Candidates []Candidate
	// ToolsUnavailable is set when neither extraction tool exists in the
	// environment. The caller proceeds without extracted images; this is a
	// soft degrade, not an error.
	ToolsUnavailable bool
}

// Service runs the extraction tools through the sandboxed executor.
type Service struct {
	exec   *executor.Executor
	cfg    config.ExtractionConfig
	logger *observability.Logger
}

// NewService creates an extraction service.
func NewService(exec *executor.Executor, cfg config.ExtractionConfig, logger *observability.Logger) *Service {
	return &Service{exec: exec, cfg: cfg, logger: logger}
}

// Extract pulls candidate images from pdfPath into workDir/images. Embedded
// extraction runs first; snapshot rendering is the fallback when it yields
// nothing or its tool fails. Both tools missing yields a ToolsUnavailable
// result.
func (s *Service) Extract(ctx context.Context, pdfPath, workDir string, dpi int) (*Extraction, error) {
	embeddedOK := s.exec.Available(s.cfg.EmbeddedTool)
	snapshotOK := s.exec.Available(s.cfg.SnapshotTool)

	if !embeddedOK && !snapshotOK {
		s.logger.Warn().
			Str("embedded_tool", s.cfg.EmbeddedTool).
			Str("snapshot_tool", s.cfg.SnapshotTool).
			Msg("No extraction tools available, degrading")
		return &Extraction{ToolsUnavailable: true}, nil
	}

	stagedPDF, err := stageSource(pdfPath, workDir)
	if err != nil {
		return nil, err
	}

	outDir := filepath.Join(workDir, "images")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create image dir: %w", err)
	}

	if embeddedOK {
		candidates, err := s.extractEmbedded(ctx, stagedPDF, workDir, outDir)
		if err == nil && len(candidates) > 0 {
			return &Extraction{Candidates: candidates}, nil
		}
		if err != nil {
			if !executor.IsToolFailure(err) {
				return nil, err
			}
			s.logger.Warn().Err(err).Msg("Embedded extraction failed, falling back to snapshots")
		}
	}

	if !snapshotOK {
		// Embedded produced nothing and there is no fallback tool.
		return &Extraction{Candidates: nil}, nil
	}

	candidates, err := s.renderSnapshots(ctx, stagedPDF, workDir, outDir, dpi)
	if err != nil {
		if executor.IsToolFailure(err) {
			// Both strategies failed; terminal for this extraction only.
			return nil, fmt.Errorf("both extraction strategies failed: %w", err)
		}
		return nil, err
	}
	return &Extraction{Candidates: candidates}, nil
}

// extractEmbedded runs `pdfimages -all -p`, which writes one file per
// embedded raster object named <prefix>-<page>-<index>.<ext>.
func (s *Service) extractEmbedded(ctx context.Context, pdfRel, workDir, outDir string) ([]Candidate, error) {
	prefix := filepath.Join("images", "emb")
	_, err := s.exec.Execute(ctx, executor.Invocation{
		Command: s.cfg.EmbeddedTool,
		Args:    []string{"-all", "-p", pdfRel, prefix},
		WorkDir: workDir,
	})
	if err != nil {
		return nil, err
	}

	return s.collect(outDir, "emb-*", SourceEmbedded)
}

// renderSnapshots runs `pdftoppm -r <dpi> -png`, producing one page image per
// PDF page named <prefix>-<page>.png.
func (s *Service) renderSnapshots(ctx context.Context, pdfRel, workDir, outDir string, dpi int) ([]Candidate, error) {
	if dpi <= 0 {
		dpi = s.cfg.DefaultDPI
	}
	prefix := filepath.Join("images", "snap")
	_, err := s.exec.Execute(ctx, executor.Invocation{
		Command: s.cfg.SnapshotTool,
		Args:    []string{"-r", strconv.Itoa(dpi), "-png", pdfRel, prefix},
		WorkDir: workDir,
	})
	if err != nil {
		return nil, err
	}

	return s.collect(outDir, "snap-*", SourceSnapshot)
}

// collect globs generated files and probes each into a Candidate. Files that
// fail probing are skipped, not fatal.
func (s *Service) collect(outDir, pattern string, source Source) ([]Candidate, error) {
	matches, err := filepath.Glob(filepath.Join(outDir, pattern))
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", pattern, err)
	}
	sort.Strings(matches)

	candidates := make([]Candidate, 0, len(matches))
	for _, path := range matches {
		info, err := imaging.Probe(path)
		if err != nil {
			s.logger.Warn().Err(err).Str("path", path).Msg("Skipping unreadable extracted image")
			continue
		}
		candidates = append(candidates, Candidate{
			Path:      path,
			Source:    source,
			Page:      parsePage(filepath.Base(path), source),
			Width:     info.Width,
			Height:    info.Height,
			SizeBytes: info.SizeBytes,
			Format:    info.Format,
			HasAlpha:  info.HasAlpha,
		})
	}
	return candidates, nil
}

var (
	// pdfimages -p: emb-<page>-<index>.<ext>
	embeddedPageRe = regexp.MustCompile(`-(\d+)-\d+\.\w+$`)
	// pdftoppm: snap-<page>.png
	snapshotPageRe = regexp.MustCompile(`-(\d+)\.\w+$`)
)

// parsePage extracts the page number from a generated filename. Parse failure
// yields nil, never an abort.
func parsePage(name string, source Source) *int {
	re := snapshotPageRe
	if source == SourceEmbedded {
		re = embeddedPageRe
	}
	m := re.FindStringSubmatch(name)
	if m == nil {
		return nil
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return nil
	}
	return &n
}

// stageSource makes the PDF reachable under workDir so tool arguments satisfy
// path containment. Returns a path relative to workDir.
func stageSource(pdfPath, workDir string) (string, error) {
	abs, err := filepath.Abs(pdfPath)
	if err != nil {
		return "", fmt.Errorf("resolve pdf path: %w", err)
	}
	absRoot, err := filepath.Abs(workDir)
	if err != nil {
		return "", fmt.Errorf("resolve work dir: %w", err)
	}

	if rel, err := filepath.Rel(absRoot, abs); err == nil && filepath.IsLocal(rel) {
		return rel, nil
	}

	staged := filepath.Join(absRoot, "source.pdf")
	if err := os.Symlink(abs, staged); err != nil {
		// Symlinks can be unavailable; fall back to a copy.
		if err := copyFile(abs, staged); err != nil {
			return "", fmt.Errorf("stage pdf into job dir: %w", err)
		}
	}
	return "source.pdf", nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
