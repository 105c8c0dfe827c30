//go:build cgo

package extract

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"isg/internal/errors"
	"isg/internal/isgkey"
	"isg/internal/model"
)

func newTestExtractor() *Extractor {
	return New(Options{}, nil)
}

func findEntity(t *testing.T, res *Result, name, entityType string) model.Entity {
	t.Helper()
	for _, e := range res.Entities {
		if e.Name == name && e.EntityType == entityType {
			return e
		}
	}
	t.Fatalf("entity %s %q not found in %v", entityType, name, entityNames(res))
	return model.Entity{}
}

func entityNames(res *Result) []string {
	out := make([]string, 0, len(res.Entities))
	for _, e := range res.Entities {
		out = append(out, e.EntityType+":"+e.Name)
	}
	return out
}

func hasEdge(res *Result, from string, edgeType model.EdgeType, toContains string) bool {
	for _, e := range res.Edges {
		if e.FromKey == from && e.EdgeType == edgeType && strings.Contains(e.ToKey, toContains) {
			return true
		}
	}
	return false
}

func TestExtract_Go(t *testing.T) {
	src := []byte(`package main

import "fmt"

type Server struct {
	name string
}

type Runner interface {
	Run() error
}

func (s *Server) Start() {
	helper()
	fmt.Println(s.name)
}

func helper() {}
`)

	res, err := newTestExtractor().Extract(context.Background(), "cmd/server.go", src, LangGo)
	require.NoError(t, err)

	server := findEntity(t, res, "Server", model.TypeStruct)
	assert.Equal(t, "go:struct:Server:cmd_server_go:5-7", server.Key)
	findEntity(t, res, "Runner", model.TypeInterface)
	start := findEntity(t, res, "Start", model.TypeMethod)
	helper := findEntity(t, res, "helper", model.TypeFn)
	file := findEntity(t, res, "server.go", model.TypeFile)
	assert.Equal(t, model.ClassCode, start.Class)

	assert.True(t, hasEdge(res, start.Key, model.EdgeCalls, helper.Key), "same-file call should resolve")
	assert.True(t, hasEdge(res, start.Key, model.EdgeCalls, "go:fn:Println:unknown:0-0"), "stdlib call should be external")
	assert.True(t, hasEdge(res, file.Key, model.EdgeUses, "go:module:fmt:unknown:0-0"))
}

func TestExtract_GoNoImportsHasNoFileEntity(t *testing.T) {
	src := []byte("package a\n\nfunc foo() { bar() }\n")

	res, err := newTestExtractor().Extract(context.Background(), "a.go", src, LangGo)
	require.NoError(t, err)

	require.Len(t, res.Entities, 1)
	require.Len(t, res.Edges, 1)
	assert.Equal(t, "go:fn:bar:unknown:0-0", res.Edges[0].ToKey)
	assert.Equal(t, "a.go:3", res.Edges[0].SourceLocation)
}

func TestExtract_RustQualifiedNames(t *testing.T) {
	src := []byte(`use std::collections::HashMap;

struct Cache;

impl Cache {
    fn build() -> Self {
        let m: HashMap<u8, u8> = HashMap::new();
        Cache
    }
}
`)

	res, err := newTestExtractor().Extract(context.Background(), "src/cache.rs", src, LangRust)
	require.NoError(t, err)

	build := findEntity(t, res, "build", model.TypeMethod)
	findEntity(t, res, "Cache", model.TypeImpl)
	assert.True(t, hasEdge(res, build.Key, model.EdgeCalls, "rust:fn:HashMap__new:unknown:0-0"))

	for _, e := range res.Edges {
		assert.NoError(t, isgkey.Validate(e.FromKey))
		assert.NoError(t, isgkey.Validate(e.ToKey), "edge %v", e)
		assert.NotContains(t, e.ToKey, "::")
	}
}

func TestExtract_PHPNamespaces(t *testing.T) {
	src := []byte(`<?php
namespace App\Http;

use Illuminate\Support\Facades\Route;

class Controller extends \App\Base implements Handler {
    public function handle() {
        \App\Util\log("x");
    }
}
`)

	res, err := newTestExtractor().Extract(context.Background(), "app/Controller.php", src, LangPHP)
	require.NoError(t, err)

	handle := findEntity(t, res, "handle", model.TypeMethod)
	controller := findEntity(t, res, "Controller", model.TypeClass)
	assert.True(t, hasEdge(res, controller.Key, model.EdgeImplements, "Handler"))
	assert.True(t, hasEdge(res, handle.Key, model.EdgeCalls, "App__Util__log"))

	require.NotEmpty(t, res.Edges)
	for _, e := range res.Edges {
		assert.NotContains(t, e.ToKey, `\`)
		assert.Equal(t, 4, strings.Count(e.ToKey, ":"), e.ToKey)
	}
}

func TestExtract_CPPQualifiedNames(t *testing.T) {
	src := []byte(`namespace app {
void helper() {}
}

class Widget : public base::Parent {
public:
    void draw();
};

void Widget::draw() {
    app::helper();
    render::flush();
}
`)

	res, err := newTestExtractor().Extract(context.Background(), "src/widget.cpp", src, LangCPP)
	require.NoError(t, err)

	helper := findEntity(t, res, "helper", model.TypeFn)
	draw := findEntity(t, res, "Widget::draw", model.TypeMethod)
	widget := findEntity(t, res, "Widget", model.TypeClass)
	assert.Contains(t, draw.Key, ":Widget__draw:")

	assert.True(t, hasEdge(res, draw.Key, model.EdgeCalls, helper.Key))
	assert.True(t, hasEdge(res, draw.Key, model.EdgeCalls, "cpp:fn:render__flush:unknown:0-0"))
	assert.True(t, hasEdge(res, widget.Key, model.EdgeExtends, "cpp:class:base__Parent:unknown:0-0"))

	for _, e := range res.Entities {
		assert.NoError(t, isgkey.Validate(e.Key))
	}
	for _, e := range res.Edges {
		assert.NoError(t, isgkey.Validate(e.ToKey), "edge %v", e)
		assert.NotContains(t, e.ToKey, "::")
	}
}

func TestExtract_RubyScopedNames(t *testing.T) {
	src := []byte(`module Helpers
  def self.format_name(x)
    x
  end
end

class Admin::User < Base::Record
  def save
    Helpers::format_name("x")
    Audit::Log.write("saved")
  end
end
`)

	res, err := newTestExtractor().Extract(context.Background(), "app/models/user.rb", src, LangRuby)
	require.NoError(t, err)

	format := findEntity(t, res, "format_name", model.TypeMethod)
	save := findEntity(t, res, "save", model.TypeFn)
	user := findEntity(t, res, "Admin::User", model.TypeClass)
	assert.Contains(t, user.Key, ":Admin__User:")

	assert.True(t, hasEdge(res, user.Key, model.EdgeExtends, "ruby:class:Base__Record:unknown:0-0"))
	assert.True(t, hasEdge(res, save.Key, model.EdgeCalls, format.Key))
	assert.True(t, hasEdge(res, save.Key, model.EdgeCalls, "ruby:fn:write:unknown:0-0"))

	for _, e := range res.Edges {
		assert.NoError(t, isgkey.Validate(e.FromKey))
		assert.NoError(t, isgkey.Validate(e.ToKey), "edge %v", e)
		assert.NotContains(t, e.FromKey, "::")
		assert.NotContains(t, e.ToKey, "::")
	}
}

func TestExtract_CSharpQualifiedNames(t *testing.T) {
	src := []byte(`using System.IO;

namespace App.Web
{
    class Handler : global::Base.Controller, IDisposable
    {
        void Run()
        {
            global::Util.Log.Write("x");
            var w = new global::App.Widget();
        }

        public void Dispose() {}
    }
}
`)

	res, err := newTestExtractor().Extract(context.Background(), "src/Handler.cs", src, LangCSharp)
	require.NoError(t, err)

	handler := findEntity(t, res, "Handler", model.TypeClass)
	run := findEntity(t, res, "Run", model.TypeMethod)

	assert.True(t, hasEdge(res, handler.Key, model.EdgeExtends, "global__Base.Controller"))
	assert.True(t, hasEdge(res, handler.Key, model.EdgeImplements, "IDisposable"))
	assert.True(t, hasEdge(res, run.Key, model.EdgeCalls, "Write:unknown:0-0"))
	assert.True(t, hasEdge(res, run.Key, model.EdgeCalls, "global__App.Widget"))

	require.NotEmpty(t, res.Edges)
	for _, e := range res.Edges {
		assert.NoError(t, isgkey.Validate(e.ToKey), "edge %v", e)
		assert.NotContains(t, e.ToKey, "::")
		assert.Equal(t, 4, strings.Count(e.ToKey, ":"), e.ToKey)
	}
}

func TestExtract_PythonClassesAndTests(t *testing.T) {
	src := []byte(`import os

class Base:
    pass

class Child(Base):
    def run(self):
        return os.getcwd()

def test_child():
    Child().run()
`)

	res, err := newTestExtractor().Extract(context.Background(), "pkg/test_child.py", src, LangPython)
	require.NoError(t, err)

	child := findEntity(t, res, "Child", model.TypeClass)
	base := findEntity(t, res, "Base", model.TypeClass)
	run := findEntity(t, res, "run", model.TypeMethod)
	testFn := findEntity(t, res, "test_child", model.TypeFn)

	assert.True(t, hasEdge(res, child.Key, model.EdgeExtends, base.Key))
	assert.True(t, hasEdge(res, testFn.Key, model.EdgeCalls, run.Key))
	assert.Equal(t, model.ClassTest, testFn.Class)
	assert.Equal(t, model.ClassTest, run.Class, "path marks the whole file as test code")
}

func TestExtract_JavaInheritance(t *testing.T) {
	src := []byte(`package app;

import java.util.List;

public class Service extends BaseService implements Runnable {
    public void run() {
        process();
    }
    private void process() {}
}
`)

	res, err := newTestExtractor().Extract(context.Background(), "src/main/java/app/Service.java", src, LangJava)
	require.NoError(t, err)

	svc := findEntity(t, res, "Service", model.TypeClass)
	run := findEntity(t, res, "run", model.TypeMethod)
	process := findEntity(t, res, "process", model.TypeMethod)
	assert.True(t, hasEdge(res, svc.Key, model.EdgeExtends, "BaseService"))
	assert.True(t, hasEdge(res, svc.Key, model.EdgeImplements, "Runnable"))
	assert.True(t, hasEdge(res, run.Key, model.EdgeCalls, process.Key))
}

func TestExtract_CIncludes(t *testing.T) {
	src := []byte(`#include <stdio.h>

static int add(int a, int b) { return a + b; }

int main(void) {
    printf("%d", add(1, 2));
    return 0;
}
`)

	res, err := newTestExtractor().Extract(context.Background(), "main.c", src, LangC)
	require.NoError(t, err)

	main := findEntity(t, res, "main", model.TypeFn)
	add := findEntity(t, res, "add", model.TypeFn)
	file := findEntity(t, res, "main.c", model.TypeFile)
	assert.True(t, hasEdge(res, main.Key, model.EdgeCalls, add.Key))
	assert.True(t, hasEdge(res, file.Key, model.EdgeIncludes, "stdio.h"))
}

func TestExtract_Skips(t *testing.T) {
	e := newTestExtractor()
	ctx := context.Background()

	res, err := e.ExtractFile(ctx, "README.md", []byte("# hi"))
	require.NoError(t, err)
	assert.Equal(t, SkipUnsupported, res.Skipped)
	assert.Empty(t, res.Warnings)

	res, err = e.ExtractFile(ctx, "blob.go", []byte{'p', 0, 1, 2})
	require.NoError(t, err)
	assert.Equal(t, SkipBinary, res.Skipped)
	assert.Empty(t, res.Warnings)

	limited := New(Options{Languages: NewLanguageSet([]string{"python"})}, nil)
	res, err = limited.ExtractFile(ctx, "a.go", []byte("package a"))
	require.NoError(t, err)
	assert.Equal(t, SkipLanguage, res.Skipped)
}

func TestExtract_SyntaxErrorIsParseError(t *testing.T) {
	src := []byte("package a\n\nfunc broken( {\n")

	_, err := newTestExtractor().Extract(context.Background(), "broken.go", src, LangGo)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ParseError))

	partial := New(Options{AllowPartial: true}, nil)
	res, err := partial.Extract(context.Background(), "broken.go", src, LangGo)
	require.NoError(t, err)
	require.NotEmpty(t, res.Warnings)
	assert.Equal(t, errors.ParseError, res.Warnings[0].Code)
}

func TestExtract_PartialTreeKeepsValidDeclarations(t *testing.T) {
	src := []byte("def a():\n    pass\n\ndef b():\n    return a()\n\nx = (\n")

	_, err := New(Options{}, nil).Extract(context.Background(), "m.py", src, LangPython)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ParseError))

	res, err := New(Options{AllowPartial: true}, nil).Extract(context.Background(), "m.py", src, LangPython)
	require.NoError(t, err)
	names := map[string]bool{}
	for _, e := range res.Entities {
		names[e.Name] = true
	}
	assert.True(t, names["a"], "entities: %v", res.Entities)
	assert.True(t, names["b"], "entities: %v", res.Entities)
	require.NotEmpty(t, res.Warnings)
	assert.Equal(t, errors.ParseError, res.Warnings[0].Code)
}

func TestExtract_Idempotent(t *testing.T) {
	src := []byte("package a\n\nfunc foo() { bar() }\n\nfunc bar() {}\n")
	e := newTestExtractor()

	first, err := e.Extract(context.Background(), "a.go", src, LangGo)
	require.NoError(t, err)
	second, err := e.Extract(context.Background(), "a.go", src, LangGo)
	require.NoError(t, err)
	assert.Equal(t, first.Entities, second.Entities)
	assert.Equal(t, first.Edges, second.Edges)
}

func TestExtract_AllLanguagesParse(t *testing.T) {
	samples := map[Language]string{
		LangRust:       "fn main() { helper(); }\nfn helper() {}\n",
		LangPython:     "def main():\n    helper()\n\ndef helper():\n    pass\n",
		LangC:          "void helper(void) {}\nint main(void) { helper(); return 0; }\n",
		LangCPP:        "namespace app { void helper() {} }\nint main() { app::helper(); }\n",
		LangRuby:       "class App\n  def main\n    helper()\n  end\nend\n",
		LangJavaScript: "function main() { helper(); }\nconst helper = () => 1;\n",
		LangTypeScript: "interface Runner { run(): void }\nfunction main(): void { helper(); }\nfunction helper(): void {}\n",
		LangGo:         "package a\nfunc main() { helper() }\nfunc helper() {}\n",
		LangJava:       "class App { void main() { helper(); } void helper() {} }\n",
		LangPHP:        "<?php\nfunction main() { helper(); }\nfunction helper() {}\n",
		LangCSharp:     "class App { void Main() { Helper(); } void Helper() {} }\n",
		LangSwift:      "func main() { helper() }\nfunc helper() {}\n",
	}

	e := newTestExtractor()
	for _, lang := range Languages() {
		t.Run(string(lang), func(t *testing.T) {
			src, ok := samples[lang]
			require.True(t, ok, "missing sample")
			res, err := e.Extract(context.Background(), "sample", []byte(src), lang)
			require.NoError(t, err)
			assert.NotEmpty(t, res.Entities)
			assert.NotEmpty(t, res.Edges)
			for _, ent := range res.Entities {
				assert.Equal(t, string(lang), ent.Language)
				assert.NoError(t, isgkey.Validate(ent.Key))
			}
		})
	}
}
