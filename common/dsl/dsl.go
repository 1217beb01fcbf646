// Package dsl defines the workflow document's surface syntax: a graph of
// string-addressed nodes, parsed from YAML or JSON (JSON is valid YAML, so
// one parser serves both surface formats).
package dsl

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/flowforge/engine/common/value"
)

// Kind identifies a node's behavior. Parallel only ever appears in a
// Document prior to expansion; Fork and Join are synthesized by the
// expander and never appear in an authored document.
type Kind string

const (
	KindStart     Kind = "start"
	KindEnd       Kind = "end"
	KindAssign    Kind = "assign"
	KindFunction  Kind = "function"
	KindIf        Kind = "if"
	KindLoop      Kind = "loop"
	KindIteration Kind = "iteration"
	KindParallel  Kind = "parallel"
	KindFork      Kind = "fork"
	KindJoin      Kind = "join"
)

// RetryPolicy governs Function node retry-then-fail behavior.
type RetryPolicy struct {
	MaxAttempts       int     `yaml:"max_attempts" json:"max_attempts"`
	BackoffMS         int     `yaml:"backoff_ms" json:"backoff_ms"`
	BackoffMultiplier float64 `yaml:"backoff_multiplier" json:"backoff_multiplier"`
}

// Node is one vertex of the authored workflow graph, addressed by a
// document-unique string ID. Only the fields relevant to Kind are set.
type Node struct {
	ID   string `yaml:"id" json:"id"`
	Kind Kind   `yaml:"kind" json:"kind"`

	// Start, Assign, Function
	Next string `yaml:"next,omitempty" json:"next,omitempty"`

	// Assign
	Var  string `yaml:"var,omitempty" json:"var,omitempty"`
	Expr string `yaml:"expr,omitempty" json:"expr,omitempty"`

	// Function
	Function string       `yaml:"function,omitempty" json:"function,omitempty"`
	Params   value.Value  `yaml:"params,omitempty" json:"params,omitempty"`
	Output   string       `yaml:"output,omitempty" json:"output,omitempty"`
	Retry    *RetryPolicy `yaml:"retry,omitempty" json:"retry,omitempty"`
	OnFail   string       `yaml:"on_fail,omitempty" json:"on_fail,omitempty"`

	// If
	Cond string `yaml:"cond,omitempty" json:"cond,omitempty"`
	Then string `yaml:"then,omitempty" json:"then,omitempty"`
	Else string `yaml:"else,omitempty" json:"else,omitempty"`

	// Loop: re-evaluate Cond on every arrival; jump to Body while true,
	// to Exit once false. Body must eventually route back to this node's
	// ID to close the loop.
	Body string `yaml:"body,omitempty" json:"body,omitempty"`
	Exit string `yaml:"exit,omitempty" json:"exit,omitempty"`

	// Iteration: walks Collection (an expression over vars), binding each
	// element to ItemVar and jumping to Body; jumps to Done once
	// exhausted. Body must route back to this node's ID.
	Collection string `yaml:"collection,omitempty" json:"collection,omitempty"`
	ItemVar    string `yaml:"item_var,omitempty" json:"item_var,omitempty"`
	Done       string `yaml:"done,omitempty" json:"done,omitempty"`

	// Parallel: desugared away by the expander before compilation.
	Branches []string `yaml:"branches,omitempty" json:"branches,omitempty"`
	Join     string   `yaml:"join,omitempty" json:"join,omitempty"`

	// Fork: synthesized by the expander.
	Targets   []string `yaml:"targets,omitempty" json:"targets,omitempty"`
	JoinID    string   `yaml:"join_id,omitempty" json:"join_id,omitempty"`

	// Join: synthesized by the expander.
	Expect int `yaml:"expect,omitempty" json:"expect,omitempty"`
}

// Document is a parsed, not-yet-compiled workflow: a flat node list plus
// top-level metadata. There is no separate edge list — successors are
// named inline on each node (Next/Then/Else/Body/Exit/Done/Branches),
// which is the chosen resolution of the inline-next-vs-edges ambiguity
// (see DESIGN.md Open Questions).
type Document struct {
	Name     string            `yaml:"name" json:"name"`
	Version  string            `yaml:"version,omitempty" json:"version,omitempty"`
	Metadata map[string]string `yaml:"metadata,omitempty" json:"metadata,omitempty"`
	Nodes    []Node            `yaml:"nodes" json:"nodes"`
}

// Parse decodes a YAML or JSON workflow document. JSON is valid YAML, so a
// single decoder handles both surface formats.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("dsl: parse document: %w", err)
	}
	if doc.Name == "" {
		return nil, fmt.Errorf("dsl: document missing required \"name\"")
	}
	if len(doc.Nodes) == 0 {
		return nil, fmt.Errorf("dsl: document %q has no nodes", doc.Name)
	}
	return &doc, nil
}
