//go:build cgo

package extract

import (
	"strings"
	"unicode"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
	"github.com/smacker/go-tree-sitter/cpp"
	"github.com/smacker/go-tree-sitter/csharp"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/php"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/ruby"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/swift"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"isg/internal/isgkey"
	"isg/internal/model"
)

// entityRule classifies a declaration node.
type entityRule struct {
	// entityType is used unless kind is set.
	entityType string
	// name overrides defaultName.
	name func(n *sitter.Node, src []byte) string
	// kind computes the entity type from the node; "" skips the node.
	kind func(n *sitter.Node, src []byte) string
	// inherits emits Extends/Implements references from the new entity.
	inherits func(w *walker, n *sitter.Node)
}

// refRule emits references for a call, import or include site.
type refRule func(w *walker, n *sitter.Node)

// adapter is the capability set of one language: its grammar, its
// entity-node classifier and its reference-site classifier.
type adapter struct {
	grammar  func() *sitter.Language
	entities map[string]entityRule
	refs     map[string]refRule
}

func adapterFor(lang Language) *adapter {
	switch lang {
	case LangGo:
		return goAdapter
	case LangPython:
		return pythonAdapter
	case LangJavaScript:
		return javascriptAdapter
	case LangTypeScript:
		return typescriptAdapter
	case LangRust:
		return rustAdapter
	case LangJava:
		return javaAdapter
	case LangC:
		return cAdapter
	case LangCPP:
		return cppAdapter
	case LangRuby:
		return rubyAdapter
	case LangPHP:
		return phpAdapter
	case LangCSharp:
		return csharpAdapter
	case LangSwift:
		return swiftAdapter
	default:
		return nil
	}
}

// ============================================================================
// Shared rule builders
// ============================================================================

func callVia(fieldName string) refRule {
	return func(w *walker, n *sitter.Node) {
		w.addRef(n, model.EdgeCalls, refName(field(n, fieldName), w.src), model.TypeFn)
	}
}

func importVia(fieldName string, edgeType model.EdgeType) refRule {
	return func(w *walker, n *sitter.Node) {
		w.addRef(n, edgeType, unquote(text(field(n, fieldName), w.src)), model.TypeModule)
	}
}

func importFirst(types ...string) refRule {
	return func(w *walker, n *sitter.Node) {
		w.addRef(n, model.EdgeUses, text(firstNamed(n, types...), w.src), model.TypeModule)
	}
}

func inheritField(fieldName string, edgeType model.EdgeType) func(*walker, *sitter.Node) {
	return func(w *walker, n *sitter.Node) {
		w.inheritFrom(field(n, fieldName), edgeType)
	}
}

func inheritChild(childType string, edgeType model.EdgeType) func(*walker, *sitter.Node) {
	return func(w *walker, n *sitter.Node) {
		w.inheritFrom(firstNamed(n, childType), edgeType)
	}
}

func (w *walker) inheritFrom(n *sitter.Node, edgeType model.EdgeType) {
	if n == nil {
		return
	}
	target := model.TypeClass
	if edgeType == model.EdgeImplements {
		target = model.TypeInterface
	}
	for _, name := range typeNames(n, w.src) {
		w.addRef(n, edgeType, name, target)
	}
}

// requireBody skips forward declarations such as "struct foo;".
func requireBody(entityType string) func(*sitter.Node, []byte) string {
	return func(n *sitter.Node, _ []byte) string {
		if field(n, "body") == nil {
			return ""
		}
		return entityType
	}
}

func constName(name string) func(*sitter.Node, []byte) string {
	return func(*sitter.Node, []byte) string { return name }
}

// ============================================================================
// Go
// ============================================================================

var goAdapter = &adapter{
	grammar: golang.GetLanguage,
	entities: map[string]entityRule{
		"function_declaration": {entityType: model.TypeFn},
		"method_declaration":   {entityType: model.TypeMethod},
		"type_spec":            {kind: goTypeKind},
		"type_alias":           {entityType: model.TypeTypedef},
	},
	refs: map[string]refRule{
		"call_expression": callVia("function"),
		"import_spec":     importVia("path", model.EdgeUses),
	},
}

func goTypeKind(n *sitter.Node, _ []byte) string {
	switch t := field(n, "type"); {
	case t == nil:
		return model.TypeTypedef
	case t.Type() == "struct_type":
		return model.TypeStruct
	case t.Type() == "interface_type":
		return model.TypeInterface
	default:
		return model.TypeTypedef
	}
}

// ============================================================================
// Python
// ============================================================================

var pythonAdapter = &adapter{
	grammar: python.GetLanguage,
	entities: map[string]entityRule{
		"function_definition": {entityType: model.TypeFn},
		"class_definition":    {entityType: model.TypeClass, inherits: inheritField("superclasses", model.EdgeExtends)},
	},
	refs: map[string]refRule{
		"call":                  callVia("function"),
		"import_statement":      pythonImport,
		"import_from_statement": importVia("module_name", model.EdgeUses),
	},
}

func pythonImport(w *walker, n *sitter.Node) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		switch c.Type() {
		case "dotted_name":
			w.addRef(c, model.EdgeUses, text(c, w.src), model.TypeModule)
		case "aliased_import":
			w.addRef(c, model.EdgeUses, text(field(c, "name"), w.src), model.TypeModule)
		}
	}
}

// ============================================================================
// JavaScript and TypeScript
// ============================================================================

var javascriptAdapter = &adapter{
	grammar:  javascript.GetLanguage,
	entities: jsEntities(nil),
	refs:     jsRefs,
}

var typescriptAdapter = &adapter{
	grammar: typescript.GetLanguage,
	entities: jsEntities(map[string]entityRule{
		"interface_declaration":      {entityType: model.TypeInterface, inherits: tsInterfaceExtends},
		"type_alias_declaration":     {entityType: model.TypeTypedef},
		"enum_declaration":           {entityType: model.TypeEnum},
		"abstract_class_declaration": {entityType: model.TypeClass, inherits: jsHeritage},
		"internal_module":            {entityType: model.TypeNamespace},
		"abstract_method_signature":  {entityType: model.TypeMethod},
		"function_signature":         {entityType: model.TypeFn},
	}),
	refs: jsRefs,
}

var jsRefs = map[string]refRule{
	"call_expression":  callVia("function"),
	"new_expression":   callVia("constructor"),
	"import_statement": importVia("source", model.EdgeUses),
}

func jsEntities(extra map[string]entityRule) map[string]entityRule {
	m := map[string]entityRule{
		"function_declaration":           {entityType: model.TypeFn},
		"generator_function_declaration": {entityType: model.TypeFn},
		"class_declaration":              {entityType: model.TypeClass, inherits: jsHeritage},
		"method_definition":              {entityType: model.TypeMethod},
		"variable_declarator":            {kind: jsFunctionVariable},
	}
	for k, v := range extra {
		m[k] = v
	}
	return m
}

// jsFunctionVariable treats `const f = () => {}` as a function named f.
func jsFunctionVariable(n *sitter.Node, _ []byte) string {
	v := field(n, "value")
	if v == nil {
		return ""
	}
	switch v.Type() {
	case "arrow_function", "function", "function_expression", "generator_function":
		return model.TypeFn
	}
	return ""
}

func jsHeritage(w *walker, n *sitter.Node) {
	h := firstNamed(n, "class_heritage")
	if h == nil {
		return
	}
	for i := 0; i < int(h.NamedChildCount()); i++ {
		c := h.NamedChild(i)
		switch c.Type() {
		case "extends_clause":
			w.inheritFrom(c, model.EdgeExtends)
		case "implements_clause":
			w.inheritFrom(c, model.EdgeImplements)
		default:
			w.addRef(c, model.EdgeExtends, refName(c, w.src), model.TypeClass)
		}
	}
}

func tsInterfaceExtends(w *walker, n *sitter.Node) {
	if c := firstNamed(n, "extends_type_clause", "extends_clause"); c != nil {
		w.inheritFrom(c, model.EdgeExtends)
	}
}

// ============================================================================
// Rust
// ============================================================================

var rustAdapter = &adapter{
	grammar: rust.GetLanguage,
	entities: map[string]entityRule{
		"function_item":           {entityType: model.TypeFn},
		"function_signature_item": {entityType: model.TypeFn},
		"struct_item":             {entityType: model.TypeStruct},
		"union_item":              {entityType: model.TypeStruct},
		"enum_item":               {entityType: model.TypeEnum},
		"trait_item":              {entityType: model.TypeTrait, inherits: inheritField("bounds", model.EdgeExtends)},
		"impl_item":               {entityType: model.TypeImpl, name: rustImplName, inherits: rustImplTrait},
		"mod_item":                {entityType: model.TypeModule},
		"type_item":               {entityType: model.TypeTypedef},
	},
	refs: map[string]refRule{
		"call_expression": callVia("function"),
		"use_declaration": rustUse,
	},
}

func rustImplName(n *sitter.Node, src []byte) string {
	t := field(n, "type")
	if name := refName(t, src); name != "" {
		return name
	}
	return text(t, src)
}

func rustImplTrait(w *walker, n *sitter.Node) {
	if tr := field(n, "trait"); tr != nil {
		w.addRef(tr, model.EdgeImplements, refName(tr, w.src), model.TypeTrait)
	}
}

func rustUse(w *walker, n *sitter.Node) {
	arg := field(n, "argument")
	if arg == nil {
		return
	}
	var name string
	switch arg.Type() {
	case "scoped_use_list", "use_as_clause":
		name = text(field(arg, "path"), w.src)
	case "use_wildcard":
		name = strings.TrimSuffix(text(arg, w.src), "::*")
	default:
		name = text(arg, w.src)
	}
	w.addRef(n, model.EdgeUses, name, model.TypeModule)
}

// ============================================================================
// Java
// ============================================================================

var javaAdapter = &adapter{
	grammar: java.GetLanguage,
	entities: map[string]entityRule{
		"class_declaration":           {entityType: model.TypeClass, inherits: javaInherits},
		"record_declaration":          {entityType: model.TypeClass, inherits: javaInherits},
		"interface_declaration":       {entityType: model.TypeInterface, inherits: inheritChild("extends_interfaces", model.EdgeExtends)},
		"annotation_type_declaration": {entityType: model.TypeInterface},
		"enum_declaration":            {entityType: model.TypeEnum, inherits: javaInherits},
		"method_declaration":          {entityType: model.TypeMethod},
		"constructor_declaration":     {entityType: model.TypeMethod},
	},
	refs: map[string]refRule{
		"method_invocation":          callVia("name"),
		"object_creation_expression": callVia("type"),
		"import_declaration":         importFirst("scoped_identifier", "identifier"),
	},
}

func javaInherits(w *walker, n *sitter.Node) {
	w.inheritFrom(field(n, "superclass"), model.EdgeExtends)
	w.inheritFrom(field(n, "interfaces"), model.EdgeImplements)
}

// ============================================================================
// C and C++
// ============================================================================

var cAdapter = &adapter{
	grammar: c.GetLanguage,
	entities: map[string]entityRule{
		"function_definition": {entityType: model.TypeFn, name: cFunctionName},
		"struct_specifier":    {kind: requireBody(model.TypeStruct)},
		"union_specifier":     {kind: requireBody(model.TypeStruct)},
		"enum_specifier":      {kind: requireBody(model.TypeEnum)},
		"type_definition":     {entityType: model.TypeTypedef, name: cTypedefName},
	},
	refs: map[string]refRule{
		"call_expression": callVia("function"),
		"preproc_include": importVia("path", model.EdgeIncludes),
	},
}

var cppAdapter = &adapter{
	grammar: cpp.GetLanguage,
	entities: map[string]entityRule{
		"function_definition":  {kind: cppFunctionKind, name: cFunctionName},
		"class_specifier":      {kind: requireBody(model.TypeClass), inherits: inheritChild("base_class_clause", model.EdgeExtends)},
		"struct_specifier":     {kind: requireBody(model.TypeStruct), inherits: inheritChild("base_class_clause", model.EdgeExtends)},
		"union_specifier":      {kind: requireBody(model.TypeStruct)},
		"enum_specifier":       {kind: requireBody(model.TypeEnum)},
		"type_definition":      {entityType: model.TypeTypedef, name: cTypedefName},
		"alias_declaration":    {entityType: model.TypeTypedef},
		"namespace_definition": {entityType: model.TypeNamespace},
	},
	refs: map[string]refRule{
		"call_expression": callVia("function"),
		"preproc_include": importVia("path", model.EdgeIncludes),
	},
}

func cFunctionName(n *sitter.Node, src []byte) string {
	return declaratorName(field(n, "declarator"), src)
}

func cTypedefName(n *sitter.Node, src []byte) string {
	return declaratorName(field(n, "declarator"), src)
}

// cppFunctionKind marks out-of-line definitions such as Foo::bar as methods.
func cppFunctionKind(n *sitter.Node, src []byte) string {
	if strings.Contains(cFunctionName(n, src), "::") {
		return model.TypeMethod
	}
	return model.TypeFn
}

// ============================================================================
// Ruby
// ============================================================================

var rubyAdapter = &adapter{
	grammar: ruby.GetLanguage,
	entities: map[string]entityRule{
		"method":           {entityType: model.TypeFn},
		"singleton_method": {entityType: model.TypeMethod},
		"class":            {entityType: model.TypeClass, inherits: inheritField("superclass", model.EdgeExtends)},
		"module":           {entityType: model.TypeModule},
	},
	refs: map[string]refRule{
		"call": rubyCall,
	},
}

var rubyLoaders = map[string]bool{"require": true, "require_relative": true, "load": true}

// rubyCall turns require-style calls into Uses edges and everything else
// into Calls.
func rubyCall(w *walker, n *sitter.Node) {
	method := field(n, "method")
	if rubyLoaders[text(method, w.src)] && field(n, "receiver") == nil {
		if arg := firstNamed(field(n, "arguments"), "string"); arg != nil {
			w.addRef(n, model.EdgeUses, unquote(text(arg, w.src)), model.TypeModule)
		}
		return
	}
	w.addRef(n, model.EdgeCalls, refName(method, w.src), model.TypeFn)
}

// ============================================================================
// PHP
// ============================================================================

var phpAdapter = &adapter{
	grammar: php.GetLanguage,
	entities: map[string]entityRule{
		"function_definition":   {entityType: model.TypeFn},
		"method_declaration":    {entityType: model.TypeMethod},
		"class_declaration":     {entityType: model.TypeClass, inherits: phpInherits},
		"interface_declaration": {entityType: model.TypeInterface, inherits: inheritChild("base_clause", model.EdgeExtends)},
		"trait_declaration":     {entityType: model.TypeTrait},
		"enum_declaration":      {entityType: model.TypeEnum, inherits: phpInherits},
		"namespace_definition":  {entityType: model.TypeNamespace},
	},
	refs: map[string]refRule{
		"function_call_expression":        callVia("function"),
		"member_call_expression":          callVia("name"),
		"nullsafe_member_call_expression": callVia("name"),
		"scoped_call_expression":          callVia("name"),
		"object_creation_expression":      phpNew,
		"namespace_use_clause":            importFirst("qualified_name", "name"),
	},
}

func phpInherits(w *walker, n *sitter.Node) {
	w.inheritFrom(firstNamed(n, "base_clause"), model.EdgeExtends)
	w.inheritFrom(firstNamed(n, "class_interface_clause"), model.EdgeImplements)
}

func phpNew(w *walker, n *sitter.Node) {
	if c := firstNamed(n, "qualified_name", "name"); c != nil {
		w.addRef(n, model.EdgeCalls, text(c, w.src), model.TypeFn)
	}
}

// ============================================================================
// C#
// ============================================================================

var csharpAdapter = &adapter{
	grammar: csharp.GetLanguage,
	entities: map[string]entityRule{
		"class_declaration":                 {entityType: model.TypeClass, inherits: csharpBases},
		"record_declaration":                {entityType: model.TypeClass, inherits: csharpBases},
		"struct_declaration":                {entityType: model.TypeStruct, inherits: csharpBases},
		"interface_declaration":             {entityType: model.TypeInterface, inherits: inheritChild("base_list", model.EdgeExtends)},
		"enum_declaration":                  {entityType: model.TypeEnum},
		"method_declaration":                {entityType: model.TypeMethod},
		"constructor_declaration":           {entityType: model.TypeMethod},
		"local_function_statement":          {entityType: model.TypeFn},
		"namespace_declaration":             {entityType: model.TypeNamespace},
		"file_scoped_namespace_declaration": {entityType: model.TypeNamespace},
	},
	refs: map[string]refRule{
		"invocation_expression":      callVia("function"),
		"object_creation_expression": callVia("type"),
		"using_directive":            csharpUsing,
	},
}

// csharpBases splits a base list into the base class and the interfaces,
// using the I-prefix naming convention to tell them apart.
func csharpBases(w *walker, n *sitter.Node) {
	bl := firstNamed(n, "base_list")
	if bl == nil {
		return
	}
	for _, name := range typeNames(bl, w.src) {
		if isInterfaceName(isgkey.LocalName(isgkey.Sanitize(name))) {
			w.addRef(bl, model.EdgeImplements, name, model.TypeInterface)
		} else {
			w.addRef(bl, model.EdgeExtends, name, model.TypeClass)
		}
	}
}

func isInterfaceName(name string) bool {
	if len(name) < 2 || name[0] != 'I' {
		return false
	}
	return unicode.IsUpper(rune(name[1]))
}

func csharpUsing(w *walker, n *sitter.Node) {
	var last *sitter.Node
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c.Type() == "qualified_name" || c.Type() == "identifier" || c.Type() == "alias_qualified_name" {
			last = c
		}
	}
	w.addRef(n, model.EdgeUses, text(last, w.src), model.TypeModule)
}

// ============================================================================
// Swift
// ============================================================================

var swiftAdapter = &adapter{
	grammar: swift.GetLanguage,
	entities: map[string]entityRule{
		"function_declaration":          {entityType: model.TypeFn},
		"class_declaration":             {kind: swiftTypeKind, inherits: swiftInherits},
		"protocol_declaration":          {entityType: model.TypeInterface, inherits: swiftInherits},
		"protocol_function_declaration": {entityType: model.TypeMethod},
		"init_declaration":              {entityType: model.TypeMethod, name: constName("init")},
	},
	refs: map[string]refRule{
		"call_expression":    swiftCall,
		"import_declaration": importFirst("identifier"),
	},
}

var swiftDeclarationKinds = map[string]string{
	"class":     model.TypeClass,
	"actor":     model.TypeClass,
	"struct":    model.TypeStruct,
	"enum":      model.TypeEnum,
	"extension": model.TypeImpl,
}

func swiftTypeKind(n *sitter.Node, src []byte) string {
	if dk := field(n, "declaration_kind"); dk != nil {
		if t, ok := swiftDeclarationKinds[text(dk, src)]; ok {
			return t
		}
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if t, ok := swiftDeclarationKinds[n.Child(i).Type()]; ok {
			return t
		}
	}
	return model.TypeClass
}

func swiftInherits(w *walker, n *sitter.Node) {
	edgeType := model.EdgeExtends
	if swiftTypeKind(n, w.src) == model.TypeImpl {
		edgeType = model.EdgeImplements
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if c := n.NamedChild(i); c.Type() == "inheritance_specifier" {
			w.inheritFrom(c, edgeType)
		}
	}
}

func swiftCall(w *walker, n *sitter.Node) {
	if n.NamedChildCount() == 0 {
		return
	}
	w.addRef(n, model.EdgeCalls, refName(n.NamedChild(0), w.src), model.TypeFn)
}
