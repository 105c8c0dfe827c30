// Package extract turns source files into ISG entities and dependency
// edges using tree-sitter grammars.
//
// Each supported Language has an adapter describing which syntax nodes are
// declarations (entities), which are call or reference sites (edges) and
// which are imports. Callees defined in the same file resolve directly to
// their entity key; everything else is emitted as an external target and
// resolved by name when a graph snapshot is built.
package extract

import (
	"bytes"

	"isg/internal/errors"
	"isg/internal/model"
)

// SkipReason explains why a file produced no extraction result.
type SkipReason string

const (
	SkipNone        SkipReason = ""
	SkipUnsupported SkipReason = "unsupported"
	SkipBinary      SkipReason = "binary"
	SkipLanguage    SkipReason = "language-disabled"
	SkipTooLarge    SkipReason = "too-large"
)

// Warning is a non-fatal problem found while extracting one file.
type Warning struct {
	Path    string           `json:"path"`
	Code    errors.ErrorCode `json:"code"`
	Message string           `json:"message"`
}

// Result is the extraction output for one file.
type Result struct {
	Path     string         `json:"path"`
	Language Language       `json:"language,omitempty"`
	Entities []model.Entity `json:"entities"`
	Edges    []model.Edge   `json:"edges"`
	Warnings []Warning      `json:"warnings,omitempty"`
	Skipped  SkipReason     `json:"skipped,omitempty"`
}

// binarySniffLen is how much of a file is inspected for NUL bytes.
const binarySniffLen = 8 << 10

// IsBinary reports whether content looks like a binary file.
func IsBinary(content []byte) bool {
	n := len(content)
	if n > binarySniffLen {
		n = binarySniffLen
	}
	return bytes.IndexByte(content[:n], 0) >= 0
}
