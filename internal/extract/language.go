package extract

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Language is one of the closed set of grammars the extractor supports.
type Language string

const (
	LangRust       Language = "rust"
	LangPython     Language = "python"
	LangC          Language = "c"
	LangCPP        Language = "cpp"
	LangRuby       Language = "ruby"
	LangJavaScript Language = "javascript"
	LangTypeScript Language = "typescript"
	LangGo         Language = "go"
	LangJava       Language = "java"
	LangPHP        Language = "php"
	LangCSharp     Language = "csharp"
	LangSwift      Language = "swift"
)

// Languages returns every supported language in a fixed order.
func Languages() []Language {
	return []Language{
		LangRust, LangPython, LangC, LangCPP, LangRuby, LangJavaScript,
		LangTypeScript, LangGo, LangJava, LangPHP, LangCSharp, LangSwift,
	}
}

// ParseLanguage validates a language name.
func ParseLanguage(s string) (Language, error) {
	l := Language(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Languages() {
		if l == known {
			return l, nil
		}
	}
	return "", fmt.Errorf("unsupported language: %q", s)
}

var extensionLanguages = map[string]Language{
	".rs":    LangRust,
	".py":    LangPython,
	".pyi":   LangPython,
	".c":     LangC,
	".h":     LangC,
	".cc":    LangCPP,
	".cpp":   LangCPP,
	".cxx":   LangCPP,
	".hpp":   LangCPP,
	".hh":    LangCPP,
	".hxx":   LangCPP,
	".rb":    LangRuby,
	".rake":  LangRuby,
	".js":    LangJavaScript,
	".jsx":   LangJavaScript,
	".mjs":   LangJavaScript,
	".cjs":   LangJavaScript,
	".ts":    LangTypeScript,
	".mts":   LangTypeScript,
	".cts":   LangTypeScript,
	".go":    LangGo,
	".java":  LangJava,
	".php":   LangPHP,
	".cs":    LangCSharp,
	".swift": LangSwift,
}

// DetectLanguage maps a file path to a language by extension.
func DetectLanguage(path string) (Language, bool) {
	if strings.HasSuffix(path, ".d.ts") {
		return "", false
	}
	l, ok := extensionLanguages[strings.ToLower(filepath.Ext(path))]
	return l, ok
}

// LanguageSet is a filter over languages. The zero value allows all.
type LanguageSet map[Language]bool

// NewLanguageSet builds a set from names, ignoring unknown ones.
func NewLanguageSet(names []string) LanguageSet {
	if len(names) == 0 {
		return nil
	}
	set := make(LanguageSet, len(names))
	for _, n := range names {
		if l, err := ParseLanguage(n); err == nil {
			set[l] = true
		}
	}
	return set
}

// Allows reports whether l passes the filter.
func (s LanguageSet) Allows(l Language) bool {
	return len(s) == 0 || s[l]
}
