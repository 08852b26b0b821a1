// Package pipeline is the public facade of the component extractor: it wires
// fetching, dual-strategy extraction, normalization, background removal,
// ranking, and the result cache behind one call.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/tabletopforge/component-extractor/internal/bgremoval"
	"github.com/tabletopforge/component-extractor/internal/cache"
	"github.com/tabletopforge/component-extractor/internal/config"
	"github.com/tabletopforge/component-extractor/internal/executor"
	"github.com/tabletopforge/component-extractor/internal/extract"
	"github.com/tabletopforge/component-extractor/internal/fetch"
	"github.com/tabletopforge/component-extractor/internal/imaging"
	"github.com/tabletopforge/component-extractor/internal/observability"
	"github.com/tabletopforge/component-extractor/internal/rank"
)

// Pipeline owns the shared state of the extraction subsystem: the executor's
// admission ceiling and the result cache. It is created once by the server
// and passed by reference into request handlers.
type Pipeline struct {
	cfg        *config.Config
	logger     *observability.Logger
	exec       *executor.Executor
	fetcher    *fetch.Fetcher
	extractor  *extract.Service
	normalizer *imaging.Normalizer
	engine     *bgremoval.Engine
	results    *ResultCache
}

// New wires a Pipeline from configuration and a cache driver.
func New(cfg *config.Config, logger *observability.Logger, cacheClient cache.Client) *Pipeline {
	exec := executor.New(cfg.Executor, logger)
	return &Pipeline{
		cfg:        cfg,
		logger:     logger,
		exec:       exec,
		fetcher:    fetch.New(cfg.Fetch, logger),
		extractor:  extract.NewService(exec, cfg.Extraction, logger),
		normalizer: imaging.NewNormalizer(exec, cfg.Extraction.ConvertTool, logger),
		engine:     bgremoval.NewEngine(cfg.Removal, logger),
		results:    NewResultCache(cacheClient, cfg.Cache.TTL, logger),
	}
}

// Executor exposes the underlying executor, mainly for health reporting.
func (p *Pipeline) Executor() *executor.Executor { return p.exec }

// Extract runs one extraction request end to end. It never returns a Go
// error: every failure mode is folded into a well-formed Result.
func (p *Pipeline) Extract(ctx context.Context, sourceRef string, opts Options) (res *Result) {
	start := time.Now()
	eff := opts.Normalize(p.cfg.Extraction)
	jobID := uuid.NewString()

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().Interface("panic", r).Str("job_id", jobID).
				Msg("Extraction panicked")
			res = &Result{
				JobID:       jobID,
				Source:      "none",
				CacheStatus: CacheMiss,
				Options:     eff,
				Error:       "internal error",
				Details:     fmt.Sprint(r),
			}
		}
		res.DurationMs = time.Since(start).Milliseconds()
	}()

	log := p.logger.WithJob(jobID)

	key := p.results.Key(sourceRef, eff)
	if cached, ok := p.results.Get(ctx, key); ok {
		hit := *cached
		hit.CacheStatus = CacheHit
		log.Debug().Str("key", key).Msg("Result cache hit")
		return &hit
	}

	res = p.run(ctx, log, jobID, sourceRef, eff)
	res.Options = eff

	// Terminal results are cached, including the tools-unavailable soft
	// degrade; hard errors are not, so a transient failure can be retried.
	if res.Error == "" {
		if err := p.results.Set(ctx, key, res); err == nil {
			res.CacheStatus = CacheStore
		} else {
			res.CacheStatus = CacheMiss
		}
	} else {
		res.CacheStatus = CacheMiss
	}

	return res
}

func (p *Pipeline) run(ctx context.Context, log *observability.Logger, jobID, sourceRef string, eff EffectiveOptions) *Result {
	res := &Result{JobID: jobID, Source: "none"}

	workDir, err := os.MkdirTemp("", "component-extract-"+jobID[:8]+"-")
	if err != nil {
		return errorResult(res, "temp directory", err)
	}
	// The job owns this directory exclusively; it goes away on every exit
	// path.
	defer os.RemoveAll(workDir)

	pdfPath, err := p.fetcher.Fetch(ctx, sourceRef, workDir)
	if err != nil {
		log.Warn().Err(err).Str("source", sourceRef).Msg("Fetch failed")
		return errorResult(res, "fetch source", err)
	}

	if pages, err := p.fetcher.PageCount(pdfPath); err == nil {
		res.Pages = pages
	}

	extraction, err := p.extractor.Extract(ctx, pdfPath, workDir, eff.DPI)
	if err != nil {
		log.Warn().Err(err).Msg("Extraction failed")
		return errorResult(res, "extract images", err)
	}

	if extraction.ToolsUnavailable {
		res.ToolsUnavailable = true
		res.Images = []extract.Candidate{}
		return res
	}

	candidates := extraction.Candidates

	if eff.ConvertUnsupported {
		candidates = p.normalizeAll(ctx, candidates, workDir)
	}

	if eff.Trim {
		candidates = p.trimAll(ctx, candidates, workDir)
	}

	if eff.BgRemove {
		var outcomes []bgremoval.BatchResult
		candidates, outcomes = p.removeBackgrounds(ctx, candidates, eff)
		res.Removal = removalOutcomes(outcomes)
	}

	ranked := rank.Rank(candidates,
		rank.Filters{
			MinWidth:  eff.MinWidth,
			MinHeight: eff.MinHeight,
			MaxAspect: eff.MaxAspect,
		},
		rank.Boosts{
			EmbeddedBoost: eff.EmbeddedBoost,
			BoostPages:    eff.BoostPages,
			BoostFactor:   eff.BoostFactor,
		},
		eff.TopN,
	)

	ranked, err = p.publish(ranked, jobID)
	if err != nil {
		return errorResult(res, "publish images", err)
	}

	res.Images = ranked
	res.CandidateCount = len(ranked)
	res.Source = deriveSource(ranked)

	log.Info().Int("candidates", len(ranked)).Str("source", res.Source).
		Msg("Extraction complete")
	return res
}

// normalizeAll converts non-web-safe candidates to PNG, re-probing mutated
// files. Conversion failure keeps the original candidate.
func (p *Pipeline) normalizeAll(ctx context.Context, candidates []extract.Candidate, workDir string) []extract.Candidate {
	for i := range candidates {
		if !imaging.NeedsConversion(candidates[i].Path) {
			continue
		}
		newPath, converted := p.normalizer.Normalize(ctx, candidates[i].Path, workDir)
		if !converted {
			continue
		}
		candidates[i].Path = newPath
		reprobe(&candidates[i])
	}
	return candidates
}

// trimAll strips uniform borders via the convert tool. Best-effort: a missing
// tool or a failed run leaves the candidate as is.
func (p *Pipeline) trimAll(ctx context.Context, candidates []extract.Candidate, workDir string) []extract.Candidate {
	tool := p.cfg.Extraction.ConvertTool
	if !p.exec.Available(tool) {
		return candidates
	}

	for i := range candidates {
		rel, err := filepath.Rel(workDir, candidates[i].Path)
		if err != nil {
			continue
		}
		_, err = p.exec.Execute(ctx, executor.Invocation{
			Command: tool,
			Args:    []string{rel, "-trim", rel},
			WorkDir: workDir,
		})
		if err != nil {
			p.logger.Debug().Err(err).Str("path", candidates[i].Path).Msg("Trim failed")
			continue
		}
		reprobe(&candidates[i])
	}
	return candidates
}

func (p *Pipeline) removeBackgrounds(ctx context.Context, candidates []extract.Candidate, eff EffectiveOptions) ([]extract.Candidate, []bgremoval.BatchResult) {
	items := make([]bgremoval.BatchItem, len(candidates))
	for i, c := range candidates {
		items[i] = bgremoval.BatchItem{
			Path:          c.Path,
			ComponentType: "",
			BgThreshold:   uint8(eff.BgThreshold),
		}
	}

	outcomes := p.engine.ProcessBatch(ctx, items)
	for i, out := range outcomes {
		if out.Attempt == nil || out.Attempt.OutputPath == "" {
			continue
		}
		candidates[i].Path = out.Attempt.OutputPath
		candidates[i].HasAlpha = true
		reprobe(&candidates[i])
	}
	return candidates, outcomes
}

// publish moves surviving candidates out of the job temp dir into the
// output directory, since the temp dir is removed unconditionally.
func (p *Pipeline) publish(candidates []extract.Candidate, jobID string) ([]extract.Candidate, error) {
	if len(candidates) == 0 {
		return candidates, nil
	}

	outDir := p.cfg.Extraction.OutputDir
	if outDir == "" {
		outDir = "extracted"
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	for i := range candidates {
		dest := filepath.Join(outDir, jobID[:8]+"_"+filepath.Base(candidates[i].Path))
		if err := moveFile(candidates[i].Path, dest); err != nil {
			return nil, fmt.Errorf("move %s: %w", candidates[i].Path, err)
		}
		candidates[i].Path = dest
	}
	return candidates, nil
}

func reprobe(c *extract.Candidate) {
	info, err := imaging.Probe(c.Path)
	if err != nil {
		return
	}
	c.Width = info.Width
	c.Height = info.Height
	c.SizeBytes = info.SizeBytes
	c.Format = info.Format
	c.HasAlpha = info.HasAlpha
}

func errorResult(res *Result, stage string, err error) *Result {
	res.Images = []extract.Candidate{}
	res.Error = stage + " failed"
	res.Details = err.Error()
	return res
}

// moveFile renames, falling back to copy across filesystems.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
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
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
