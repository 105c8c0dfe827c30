package isgkey

import "isg/internal/errors"

// ExternalPath is the path segment used for targets outside the indexed tree.
const ExternalPath = "unknown"

// externalLines is the sentinel range of external targets. Real entities
// start at line 1, so the pair (unknown, 0-0) never names an indexed file.
var externalLines = LineRange{Start: 0, End: 0}

// TargetKind distinguishes resolved from external edge targets.
type TargetKind int

const (
	// Resolved targets name an entity extracted from the tree.
	Resolved TargetKind = iota
	// External targets name something outside the tree, by name only.
	External
)

// String returns "resolved" or "external".
func (k TargetKind) String() string {
	if k == External {
		return "external"
	}
	return "resolved"
}

// Target is the destination of an edge: either a resolved entity key or an
// external name.
type Target struct {
	kind TargetKind
	key  EntityKey
}

// ResolvedTarget wraps an entity key.
func ResolvedTarget(k EntityKey) Target {
	return Target{kind: Resolved, key: k}
}

// ExternalTarget builds the sentinel-located target for an unresolved name.
func ExternalTarget(language, entityType, rawName string) (Target, error) {
	k := EntityKey{
		Language:   language,
		EntityType: entityType,
		Name:       Sanitize(rawName),
		Path:       ExternalPath,
		Lines:      externalLines,
	}
	if err := Validate(k.String()); err != nil {
		return Target{}, err
	}
	return Target{kind: External, key: k}, nil
}

// Kind reports the variant.
func (t Target) Kind() TargetKind { return t.kind }

// IsExternal reports whether the target is outside the tree.
func (t Target) IsExternal() bool { return t.kind == External }

// Key returns the underlying key. For external targets this is the
// sentinel-located key.
func (t Target) Key() EntityKey { return t.key }

// Name returns the sanitized target name.
func (t Target) Name() string { return t.key.Name }

// Encode returns the wire form stored in edges.to_key.
func (t Target) Encode() string { return t.key.String() }

// IsExternalKey reports whether a parsed key carries the external sentinel.
func IsExternalKey(k EntityKey) bool {
	return k.Path == ExternalPath && k.Lines == externalLines
}

// ParseTarget decodes an edges.to_key value.
func ParseTarget(s string) (Target, error) {
	k, err := Parse(s)
	if err != nil {
		return Target{}, err
	}
	if IsExternalKey(k) {
		return Target{kind: External, key: k}, nil
	}
	if k.Lines.Start == 0 {
		return Target{}, errors.Newf(errors.KeyFormatError, "key %q has line 0 but is not external", s)
	}
	return Target{kind: Resolved, key: k}, nil
}
