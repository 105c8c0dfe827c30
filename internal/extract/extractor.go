package extract

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"isg/internal/errors"
	"isg/internal/model"
)

// Options configures an Extractor.
type Options struct {
	// Languages limits extraction. Nil allows all.
	Languages LanguageSet
	// MaxFileSize skips larger files. Zero disables the limit.
	MaxFileSize int64
	// ParseTimeout abandons a single pathological parse. Zero disables it.
	ParseTimeout time.Duration
	// AllowPartial keeps the declarations of a file whose tree contains
	// syntax errors instead of skipping the file.
	AllowPartial bool
}

// Extractor converts source files to entities and edges. It is safe for
// concurrent use.
type Extractor struct {
	opts    Options
	logger  *slog.Logger
	parsers sync.Pool
}

// New creates an extractor.
func New(opts Options, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Extractor{opts: opts, logger: logger}
}

// ExtractFile detects the language from relPath and extracts content.
// Unsupported and binary files return a Result with Skipped set and no
// warning.
func (e *Extractor) ExtractFile(ctx context.Context, relPath string, content []byte) (*Result, error) {
	lang, ok := DetectLanguage(relPath)
	if !ok {
		return &Result{Path: relPath, Skipped: SkipUnsupported}, nil
	}
	return e.Extract(ctx, relPath, content, lang)
}

// Extract parses source as lang. A parse failure is returned as a
// PARSE_ERROR; the caller should record it and move on to the next file.
// Keys that fail validation drop only the affected entity or edge and are
// reported in Result.Warnings.
func (e *Extractor) Extract(ctx context.Context, relPath string, source []byte, lang Language) (*Result, error) {
	res := &Result{Path: relPath, Language: lang, Entities: []model.Entity{}, Edges: []model.Edge{}}

	switch {
	case !e.opts.Languages.Allows(lang):
		res.Skipped = SkipLanguage
		return res, nil
	case IsBinary(source):
		res.Skipped = SkipBinary
		return res, nil
	case e.opts.MaxFileSize > 0 && int64(len(source)) > e.opts.MaxFileSize:
		res.Skipped = SkipTooLarge
		return res, nil
	}

	if e.opts.ParseTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.ParseTimeout)
		defer cancel()
	}

	if err := e.extractTree(ctx, res, source); err != nil {
		e.logger.Warn("Skipping file", "path", relPath, "language", string(lang), "error", err.Error())
		return nil, err
	}

	e.logger.Debug("Extracted file",
		"path", relPath,
		"language", string(lang),
		"entities", len(res.Entities),
		"edges", len(res.Edges),
		"warnings", len(res.Warnings),
	)
	return res, nil
}

func parseError(path string, cause error) error {
	return errors.New(errors.ParseError, fmt.Sprintf("failed to parse %s", path), cause)
}
