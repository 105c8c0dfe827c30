package extract

import (
	"path"
	"strings"

	"isg/internal/model"
)

var testDirSegments = map[string]bool{
	"test":      true,
	"tests":     true,
	"__tests__": true,
	"spec":      true,
	"specs":     true,
	"testdata":  true,
	"testing":   true,
}

// testFileSuffixes are matched against the lower-cased base name.
var testFileSuffixes = []string{
	"_test.go",
	"_test.py",
	"_test.rs",
	"_test.rb",
	"_spec.rb",
	".test.js", ".test.jsx", ".test.ts", ".test.mjs",
	".spec.js", ".spec.jsx", ".spec.ts", ".spec.mjs",
	"test.java", "tests.java",
	"test.cs", "tests.cs",
	"test.php",
	"tests.swift", "test.swift",
	"_test.c", "_test.cc", "_test.cpp",
}

// IsTestPath reports whether a slash-separated, repo-relative path looks
// like test code.
func IsTestPath(p string) bool {
	p = strings.ReplaceAll(p, "\\", "/")
	dir, base := path.Split(p)
	for _, seg := range strings.Split(strings.Trim(dir, "/"), "/") {
		if testDirSegments[strings.ToLower(seg)] {
			return true
		}
	}

	lower := strings.ToLower(base)
	if strings.HasPrefix(lower, "test_") && strings.HasSuffix(lower, ".py") {
		return true
	}
	if lower == "conftest.py" {
		return true
	}
	for _, suffix := range testFileSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}

// IsTestName reports whether a declaration name follows a test-framework
// naming convention.
func IsTestName(lang Language, name string) bool {
	switch lang {
	case LangGo:
		for _, prefix := range []string{"Test", "Benchmark", "Fuzz", "Example"} {
			if strings.HasPrefix(name, prefix) && (len(name) == len(prefix) || !isLower(name[len(prefix)])) {
				return true
			}
		}
	case LangPython, LangRust, LangRuby, LangC, LangCPP:
		return strings.HasPrefix(name, "test_")
	case LangJava, LangCSharp, LangPHP, LangSwift, LangJavaScript, LangTypeScript:
		return strings.HasPrefix(name, "test") && len(name) > 4 && !isLower(name[4])
	}
	return false
}

// Classify returns TEST when the path matches a test convention, or when a
// callable's name does. Types are never classified by name, and Go test
// functions are only recognized in _test.go files since the toolchain runs
// no others.
func Classify(lang Language, filePath, entityType, name string) model.EntityClass {
	if IsTestPath(filePath) {
		return model.ClassTest
	}
	if lang != LangGo && model.IsCallable(entityType) && IsTestName(lang, name) {
		return model.ClassTest
	}
	return model.ClassCode
}

func isLower(b byte) bool {
	return b >= 'a' && b <= 'z'
}
