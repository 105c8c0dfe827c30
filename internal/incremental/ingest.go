package incremental

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	ignore "github.com/sabhiram/go-gitignore"
	"golang.org/x/sync/errgroup"

	"isg/internal/errors"
	"isg/internal/extract"
	"isg/internal/paths"
)

// Directories never descended into during ingestion or watching
var ignoredDirs = map[string]bool{
	".git":             true,
	paths.StateDirName: true,
	".hg":              true,
	".svn":             true,
	"vendor":           true,
	"node_modules":     true,
	"bin":              true,
	"dist":             true,
	"out":              true,
	"build":            true,
	"target":           true,
	".cache":           true,
	"__pycache__":      true,
	".venv":            true,
	".idea":            true,
	".vscode":          true,
	"testdata":         true,
}

// maxSummaryWarnings caps the warnings carried in a Summary.
const maxSummaryWarnings = 200

// IngestOptions configures a bulk ingestion.
type IngestOptions struct {
	// Workers bounds parallel extraction. Zero means one.
	Workers int
	// IgnorePatterns are gitignore-style patterns applied after .gitignore.
	IgnorePatterns []string
	// Languages limits which files are read at all. Nil allows all.
	Languages extract.LanguageSet
	// MaxFileSize skips larger files without reading them. Zero disables it.
	MaxFileSize int64
	// KeepStale disables removal of records for files no longer present.
	KeepStale bool
	// CoverageDepth is how many leading directories group Summary.Coverage.
	// Values below 1 use 1.
	CoverageDepth int
}

// Ingest walks root and reindexes every supported file. Bad files are
// recorded in the Summary and never abort the run. Records of files that
// disappeared from the tree are removed unless KeepStale is set.
func (r *Reindexer) Ingest(ctx context.Context, root string, opts IngestOptions) (*Summary, error) {
	start := time.Now()
	sum := &Summary{
		RunID:       uuid.New().String(),
		Root:        root,
		SkipReasons: make(map[string]int),
		StartedAt:   start,
	}
	logger := r.logger.With("run_id", sum.RunID)
	logger.Info("Ingest started", "root", root, "workers", opts.Workers)

	matcher := CompileIgnore(root, opts.IgnorePatterns, logger)

	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}

	coverageDepth := opts.CoverageDepth
	if coverageDepth < 1 {
		coverageDepth = 1
	}

	var mu sync.Mutex
	present := make(map[string]bool)
	byFolder := make(map[string]*FolderCoverage)
	// folder must be called with mu held.
	folder := func(path string) *FolderCoverage {
		name := paths.FolderAt(path, coverageDepth)
		fc, ok := byFolder[name]
		if !ok {
			fc = &FolderCoverage{Folder: name}
			byFolder[name] = fc
		}
		return fc
	}
	skip := func(path, reason string) {
		mu.Lock()
		sum.FilesSkipped++
		sum.SkipReasons[reason]++
		folder(path).Skipped++
		mu.Unlock()
		recordIngestFile("skipped")
		logger.Debug("Skipping file", "path", path, "reason", reason)
	}
	warn := func(ws ...extract.Warning) {
		mu.Lock()
		defer mu.Unlock()
		for _, w := range ws {
			if len(sum.Warnings) < maxSummaryWarnings {
				sum.Warnings = append(sum.Warnings, w)
			} else {
				sum.WarningsDropped++
			}
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // Skip inaccessible entries, continue walking
		}
		if gctx.Err() != nil {
			return gctx.Err()
		}

		relPath, relErr := filepath.Rel(root, path)
		if relErr != nil || relPath == "." {
			return nil //nolint:nilerr
		}
		relPath = filepath.ToSlash(relPath)

		if d.IsDir() {
			if IsIgnoredDir(d.Name()) || matcher.MatchesPath(relPath+"/") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || matcher.MatchesPath(relPath) {
			return nil
		}

		lang, ok := extract.DetectLanguage(relPath)
		mu.Lock()
		sum.FilesSeen++
		folder(relPath).Seen++
		if ok {
			folder(relPath).Eligible++
		}
		mu.Unlock()

		if !ok {
			skip(relPath, string(extract.SkipUnsupported))
			return nil
		}
		if !opts.Languages.Allows(lang) {
			skip(relPath, string(extract.SkipLanguage))
			return nil
		}
		if opts.MaxFileSize > 0 {
			if info, err := d.Info(); err == nil && info.Size() > opts.MaxFileSize {
				skip(relPath, string(extract.SkipTooLarge))
				return nil
			}
		}

		mu.Lock()
		present[relPath] = true
		mu.Unlock()

		g.Go(func() error {
			content, err := os.ReadFile(path)
			if err != nil {
				skip(relPath, SkipReadError)
				return nil
			}

			stats, err := r.ReindexFile(gctx, relPath, content)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				reason := SkipStoreError
				if errors.Is(err, errors.ParseError) {
					reason = SkipParseError
				}
				mu.Lock()
				sum.FilesFailed++
				sum.SkipReasons[reason]++
				folder(relPath).Failed++
				mu.Unlock()
				recordIngestFile("failed")
				warn(extract.Warning{Path: relPath, Code: errors.CodeOf(err), Message: err.Error()})
				return nil
			}
			warn(stats.Warnings...)

			mu.Lock()
			defer mu.Unlock()
			switch stats.Outcome {
			case OutcomeIndexed:
				sum.FilesProcessed++
				folder(relPath).Parsed++
				sum.EntitiesCreated += stats.EntitiesAdded
				sum.EdgesCreated += stats.EdgesAdded
				recordIngestFile("processed")
			case OutcomeUnchanged:
				sum.FilesUnchanged++
				folder(relPath).Parsed++
				recordIngestFile("unchanged")
			case OutcomeSkipped:
				sum.FilesSkipped++
				sum.SkipReasons[string(stats.SkipReason)]++
				folder(relPath).Skipped++
				recordIngestFile("skipped")
			}
			return nil
		})
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if walkErr != nil {
		return nil, walkErr
	}

	if !opts.KeepStale {
		removed, err := r.removeStale(ctx, present)
		if err != nil {
			return nil, err
		}
		sum.FilesRemoved = removed
	}
	sum.Coverage = coverageReport(byFolder)

	sum.Duration = time.Since(start)
	logger.Info("Ingest complete",
		"files_seen", sum.FilesSeen,
		"files_processed", sum.FilesProcessed,
		"files_unchanged", sum.FilesUnchanged,
		"files_skipped", sum.FilesSkipped,
		"files_failed", sum.FilesFailed,
		"files_removed", sum.FilesRemoved,
		"entities_created", sum.EntitiesCreated,
		"edges_created", sum.EdgesCreated,
		"duration", sum.Duration.String(),
	)
	return sum, nil
}

// coverageReport orders folders by path and fills in the parsed share of
// eligible files.
func coverageReport(byFolder map[string]*FolderCoverage) []FolderCoverage {
	out := make([]FolderCoverage, 0, len(byFolder))
	for _, fc := range byFolder {
		if fc.Eligible > 0 {
			fc.CoveragePct = float64(fc.Parsed) / float64(fc.Eligible) * 100
		}
		out = append(out, *fc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Folder < out[j].Folder })
	return out
}

// removeStale drops records of files that were not found by the walk.
func (r *Reindexer) removeStale(ctx context.Context, present map[string]bool) (int, error) {
	records, err := r.hashes.ListFileRecords(ctx)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, rec := range records {
		if present[rec.FilePath] {
			continue
		}
		stats, err := r.RemoveFile(ctx, rec.FilePath)
		if err != nil {
			r.logger.Warn("Failed to remove stale file", "path", rec.FilePath, "error", err.Error())
			continue
		}
		if stats.Outcome == OutcomeRemoved {
			removed++
		}
	}
	return removed, nil
}

// IsIgnoredDir reports whether a directory with this base name is skipped.
func IsIgnoredDir(name string) bool {
	return ignoredDirs[name]
}

// CompileIgnore merges the root .gitignore with the configured patterns.
func CompileIgnore(root string, patterns []string, logger *slog.Logger) *ignore.GitIgnore {
	var lines []string
	if data, err := os.ReadFile(filepath.Join(root, ".gitignore")); err == nil {
		lines = append(lines, strings.Split(string(data), "\n")...)
	} else if !os.IsNotExist(err) {
		logger.Warn("Failed to read .gitignore", "error", err.Error())
	}
	lines = append(lines, patterns...)
	return ignore.CompileIgnoreLines(lines...)
}
