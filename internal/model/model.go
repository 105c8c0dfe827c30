// Package model defines the entity and edge records shared by the
// extractor, the store and the graph algorithms.
package model

import (
	"isg/internal/isgkey"
)

// EntityClass separates production code from test code.
type EntityClass string

const (
	ClassCode EntityClass = "CODE"
	ClassTest EntityClass = "TEST"
)

// Entity types. The set is closed; each language adapter maps its own
// grammar nodes onto a subset of these.
const (
	TypeFn        = "fn"
	TypeMethod    = "method"
	TypeStruct    = "struct"
	TypeClass     = "class"
	TypeEnum      = "enum"
	TypeTrait     = "trait"
	TypeInterface = "interface"
	TypeImpl      = "impl"
	TypeModule    = "module"
	TypeTypedef   = "typedef"
	TypeNamespace = "namespace"
	TypeFile      = "file"
)

// EntityTypes lists every entity type in display order.
var EntityTypes = []string{
	TypeFn, TypeMethod, TypeStruct, TypeClass, TypeEnum, TypeTrait,
	TypeInterface, TypeImpl, TypeModule, TypeTypedef, TypeNamespace, TypeFile,
}

// IsCallable reports whether an entity type can be the target of a call.
func IsCallable(entityType string) bool {
	return entityType == TypeFn || entityType == TypeMethod
}

// EdgeType is the kind of dependency an edge records.
type EdgeType string

const (
	EdgeCalls      EdgeType = "Calls"
	EdgeUses       EdgeType = "Uses"
	EdgeExtends    EdgeType = "Extends"
	EdgeImplements EdgeType = "Implements"
	EdgeIncludes   EdgeType = "Includes"
)

// Entity is one declared code element.
type Entity struct {
	Key        string      `json:"key" yaml:"key"`
	Name       string      `json:"name" yaml:"name"`
	EntityType string      `json:"entityType" yaml:"entityType"`
	FilePath   string      `json:"filePath" yaml:"filePath"`
	StartLine  int         `json:"startLine" yaml:"startLine"`
	EndLine    int         `json:"endLine" yaml:"endLine"`
	Language   string      `json:"language" yaml:"language"`
	Class      EntityClass `json:"entityClass" yaml:"entityClass"`
}

// Edge is a directed dependency owned by the file containing FromKey.
type Edge struct {
	FromKey        string   `json:"fromKey" yaml:"fromKey"`
	ToKey          string   `json:"toKey" yaml:"toKey"`
	EdgeType       EdgeType `json:"edgeType" yaml:"edgeType"`
	SourceLocation string   `json:"sourceLocation,omitempty" yaml:"sourceLocation,omitempty"`
}

// Target decodes ToKey into its resolved or external variant.
func (e Edge) Target() (isgkey.Target, error) {
	return isgkey.ParseTarget(e.ToKey)
}

// IsExternal reports whether the edge points outside the indexed tree.
func (e Edge) IsExternal() bool {
	k, err := isgkey.Parse(e.ToKey)
	return err == nil && isgkey.IsExternalKey(k)
}

// EdgeID is the identity of an edge row.
type EdgeID struct {
	FromKey  string
	ToKey    string
	EdgeType EdgeType
}

// ID returns the identity of e.
func (e Edge) ID() EdgeID {
	return EdgeID{FromKey: e.FromKey, ToKey: e.ToKey, EdgeType: e.EdgeType}
}
