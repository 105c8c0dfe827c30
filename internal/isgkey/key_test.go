package isgkey

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"isg/internal/errors"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"std::vector", "std__vector"},
		{"ActiveRecord::Base::find", "ActiveRecord__Base__find"},
		{`App\Http\Controller`, "App__Http__Controller"},
		{"plain", "plain"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Sanitize(tt.raw), "Sanitize(%q)", tt.raw)
	}
}

func TestSanitizePath(t *testing.T) {
	assert.Equal(t, "src_app_main_go", SanitizePath("src/app/main.go"))
	assert.Equal(t, "src_app_main_go", SanitizePath(`src\app\main.go`))
}

func TestBuild(t *testing.T) {
	k, err := Build("rust", "fn", "crate::util::parse", "src/util.rs", LineRange{Start: 10, End: 20})
	require.NoError(t, err)
	assert.Equal(t, "rust:fn:crate__util__parse:src_util_rs:10-20", k.String())

	parsed, err := Parse(k.String())
	require.NoError(t, err)
	assert.Equal(t, k, parsed)
}

func TestBuild_QualifiedNamesHaveFourDelimiters(t *testing.T) {
	names := []string{
		"std::collections::HashMap",
		`Illuminate\Support\Facades\Route`,
		"Foo::Bar\\Baz",
		"Outer::Inner::method",
	}
	for _, name := range names {
		k, err := Build("cpp", "fn", name, "lib/a.cpp", LineRange{Start: 1, End: 2})
		require.NoError(t, err, name)
		assert.Equal(t, 4, strings.Count(k.String(), ":"), "key %q", k.String())
	}
}

func TestBuild_DistinctNamesDoNotCollide(t *testing.T) {
	a, err := Build("rust", "fn", "a::run", "src/a.rs", LineRange{Start: 1, End: 1})
	require.NoError(t, err)
	b, err := Build("rust", "fn", "b::run", "src/a.rs", LineRange{Start: 1, End: 1})
	require.NoError(t, err)
	assert.NotEqual(t, a.String(), b.String())
}

func TestBuild_Deterministic(t *testing.T) {
	a, _ := Build("go", "method", "Server.Start", "cmd/srv.go", LineRange{Start: 3, End: 9})
	b, _ := Build("go", "method", "Server.Start", "cmd/srv.go", LineRange{Start: 3, End: 9})
	assert.Equal(t, a.String(), b.String())
}

func TestBuild_RejectsSingleColon(t *testing.T) {
	_, err := Build("ruby", "fn", ":symbol", "a.rb", LineRange{Start: 1, End: 1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.KeyFormatError))
}

func TestParse_Errors(t *testing.T) {
	bad := []string{
		"go:fn:foo:a_go",
		"go:fn:foo:a_go:1-2:extra",
		"go::foo:a_go:1-2",
		"go:fn:foo:a_go:12",
		"go:fn:foo:a_go:x-2",
		"go:fn:foo:a_go:5-2",
	}
	for _, s := range bad {
		_, err := Parse(s)
		assert.Error(t, err, s)
		assert.Equal(t, errors.KeyFormatError, errors.CodeOf(err), s)
	}
}

func TestTarget(t *testing.T) {
	ext, err := ExternalTarget("go", "fn", "fmt.Println")
	require.NoError(t, err)
	assert.True(t, ext.IsExternal())
	assert.Equal(t, "go:fn:fmt.Println:unknown:0-0", ext.Encode())

	back, err := ParseTarget(ext.Encode())
	require.NoError(t, err)
	assert.Equal(t, External, back.Kind())
	assert.Equal(t, "fmt.Println", back.Name())

	k, _ := Build("go", "fn", "main", "unknown", LineRange{Start: 1, End: 4})
	res, err := ParseTarget(ResolvedTarget(k).Encode())
	require.NoError(t, err)
	assert.Equal(t, Resolved, res.Kind(), "a real file named unknown is still resolved")

	_, err = ParseTarget("go:fn:x:a_go:0-0")
	assert.Error(t, err)
}

func TestLocalName(t *testing.T) {
	tests := map[string]string{
		"std__vec__Vec__new": "new",
		"fmt.Println":        "Println",
		"obj->run":           "run",
		"plain":              "plain",
		"trailing.":          "trailing.",
		"__init__":           "__init__",
	}
	for in, want := range tests {
		assert.Equal(t, want, LocalName(in), "LocalName(%q)", in)
	}
}
