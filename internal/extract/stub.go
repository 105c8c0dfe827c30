//go:build !cgo

package extract

import (
	"context"
	stderrors "errors"
)

// ErrNoCGO is returned when the binary was built without cgo and the
// tree-sitter grammars are unavailable.
var ErrNoCGO = stderrors.New("tree-sitter extraction requires cgo")

// Available reports whether grammar-backed extraction is compiled in.
func Available() bool { return false }

func (e *Extractor) extractTree(_ context.Context, res *Result, _ []byte) error {
	return parseError(res.Path, ErrNoCGO)
}
