// Package isgkey builds and parses the stable identity strings used for
// entities and edge endpoints:
//
//	{language}:{entity_type}:{name}:{file_path}:{start}-{end}
//
// Names and paths are sanitized before composition so that a key always
// has exactly four structural colons.
package isgkey

import (
	"fmt"
	"strconv"
	"strings"

	"isg/internal/errors"
)

// Segments is the number of colon-delimited segments in a valid key.
const Segments = 5

// LineRange is an inclusive 1-based line span.
type LineRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// String renders the range as "start-end".
func (r LineRange) String() string {
	return strconv.Itoa(r.Start) + "-" + strconv.Itoa(r.End)
}

// EntityKey is a parsed key. All fields hold sanitized values.
type EntityKey struct {
	Language   string
	EntityType string
	Name       string
	Path       string
	Lines      LineRange
}

// String composes the wire form of the key.
func (k EntityKey) String() string {
	var b strings.Builder
	b.Grow(len(k.Language) + len(k.EntityType) + len(k.Name) + len(k.Path) + 16)
	b.WriteString(k.Language)
	b.WriteByte(':')
	b.WriteString(k.EntityType)
	b.WriteByte(':')
	b.WriteString(k.Name)
	b.WriteByte(':')
	b.WriteString(k.Path)
	b.WriteByte(':')
	b.WriteString(k.Lines.String())
	return b.String()
}

// IsZero reports whether k is the zero key.
func (k EntityKey) IsZero() bool {
	return k == EntityKey{}
}

var nameReplacer = strings.NewReplacer("::", "__", `\`, "__")

// Sanitize rewrites the qualified-name separators that collide with the key
// delimiter or with store escaping: "::" and "\" both become "__".
func Sanitize(raw string) string {
	return nameReplacer.Replace(raw)
}

var pathReplacer = strings.NewReplacer("/", "_", `\`, "_", ".", "_", ":", "_")

// SanitizePath flattens a file path into a single key segment.
// "src/app/main.go" becomes "src_app_main_go".
func SanitizePath(path string) string {
	return pathReplacer.Replace(path)
}

// Build sanitizes its inputs, composes the key and validates the result.
// A name that still contains ":" after sanitization is rejected with a
// KEY_FORMAT_ERROR rather than producing a key with extra segments.
func Build(language, entityType, rawName, filePath string, lines LineRange) (EntityKey, error) {
	k := EntityKey{
		Language:   language,
		EntityType: entityType,
		Name:       Sanitize(rawName),
		Path:       SanitizePath(filePath),
		Lines:      lines,
	}
	if err := Validate(k.String()); err != nil {
		return EntityKey{}, err
	}
	return k, nil
}

// Validate checks the segment grammar of a composed key.
func Validate(key string) error {
	_, err := Parse(key)
	return err
}

// Parse splits a wire key into its segments.
func Parse(key string) (EntityKey, error) {
	parts := strings.Split(key, ":")
	if len(parts) != Segments {
		return EntityKey{}, formatError(key, fmt.Sprintf("expected %d segments, got %d", Segments, len(parts)))
	}
	for i, p := range parts[:4] {
		if p == "" {
			return EntityKey{}, formatError(key, fmt.Sprintf("segment %d is empty", i+1))
		}
	}

	lines, err := parseRange(parts[4])
	if err != nil {
		return EntityKey{}, formatError(key, err.Error())
	}

	return EntityKey{
		Language:   parts[0],
		EntityType: parts[1],
		Name:       parts[2],
		Path:       parts[3],
		Lines:      lines,
	}, nil
}

func parseRange(s string) (LineRange, error) {
	startStr, endStr, ok := strings.Cut(s, "-")
	if !ok {
		return LineRange{}, fmt.Errorf("line range %q has no '-'", s)
	}
	start, err := strconv.Atoi(startStr)
	if err != nil || start < 0 {
		return LineRange{}, fmt.Errorf("bad start line %q", startStr)
	}
	end, err := strconv.Atoi(endStr)
	if err != nil || end < start {
		return LineRange{}, fmt.Errorf("bad end line %q", endStr)
	}
	return LineRange{Start: start, End: end}, nil
}

func formatError(key, reason string) error {
	return errors.New(errors.KeyFormatError, "invalid key "+strconv.Quote(key), fmt.Errorf("%s", reason))
}

// LocalName strips qualification from a sanitized name, keeping the part
// after the last "__", "." or "->". "std__vec__Vec__new" becomes "new".
func LocalName(sanitized string) string {
	cut := 0
	for _, sep := range []string{"__", ".", "->"} {
		if i := strings.LastIndex(sanitized, sep); i >= 0 && i+len(sep) > cut && i+len(sep) < len(sanitized) {
			cut = i + len(sep)
		}
	}
	return sanitized[cut:]
}
