// Package compiler implements the Expander and the three-pass Compiler
// that turns a dsl.Document into an immutable blueprint.Blueprint.
package compiler

import (
	"fmt"
	"strings"

	"github.com/flowforge/engine/common/blueprint"
	"github.com/flowforge/engine/common/dsl"
	"github.com/flowforge/engine/common/expr"
	"github.com/flowforge/engine/common/function"
)

// Error aggregates every validation failure found while compiling a single
// Document, rather than stopping at the first one, the way ir.go's
// validate() reports every topology problem it finds in one pass.
type Error struct {
	Failures []string
}

func (e *Error) Error() string {
	return fmt.Sprintf("compiler: %d error(s): %s", len(e.Failures), strings.Join(e.Failures, "; "))
}

func (e *Error) add(format string, args ...interface{}) {
	e.Failures = append(e.Failures, fmt.Sprintf(format, args...))
}

// Options configures a single Compile call.
type Options struct {
	// Functions validates Function node parameter templates at compile
	// time; nil is permitted (skips Function.Validate calls) for tests
	// that only exercise control flow.
	Functions *function.Registry
	// Evaluator compiles If/Loop/Assign expressions eagerly so malformed
	// CEL syntax is a compile error rather than a first-run surprise.
	Evaluator *expr.Evaluator
}

// Compile runs index assignment, edge resolution, parameter baking, and
// validation (Fork/Join conservation, Function validation, reachability)
// over doc, which must already have been passed through Expand. It returns
// an immutable Blueprint or an aggregated *Error.
func Compile(doc *dsl.Document, opts Options) (*blueprint.Blueprint, []string, error) {
	cerr := &Error{}
	var warnings []string

	for _, n := range doc.Nodes {
		if n.Kind == dsl.KindParallel {
			cerr.add("node %q: Parallel nodes must be expanded before compiling", n.ID)
		}
	}
	if len(cerr.Failures) > 0 {
		return nil, nil, cerr
	}

	// Pass 1: index assignment, rejecting duplicate IDs.
	idToIndex := make(map[string]int, len(doc.Nodes))
	for i, n := range doc.Nodes {
		if n.ID == "" {
			cerr.add("node at position %d has no id", i)
			continue
		}
		if _, dup := idToIndex[n.ID]; dup {
			cerr.add("duplicate node id %q", n.ID)
			continue
		}
		idToIndex[n.ID] = i
	}

	resolve := func(from string, id string) int {
		if id == "" {
			return -1
		}
		idx, ok := idToIndex[id]
		if !ok {
			cerr.add("node %q: unknown successor id %q", from, id)
			return -1
		}
		return idx
	}

	startIdx := -1
	nodes := make([]blueprint.Node, len(doc.Nodes))

	// Pass 2 & 3: edge resolution and parameter baking, per node kind.
	for i, n := range doc.Nodes {
		out := blueprint.Node{ID: n.ID}

		switch n.Kind {
		case dsl.KindStart:
			if startIdx != -1 {
				cerr.add("multiple start nodes: %q and %q", doc.Nodes[startIdx].ID, n.ID)
			}
			startIdx = i
			out.Kind = blueprint.KindStart
			out.Next = resolve(n.ID, n.Next)

		case dsl.KindEnd:
			out.Kind = blueprint.KindEnd
			out.Next = -1

		case dsl.KindAssign:
			if n.Var == "" {
				cerr.add("node %q: assign requires \"var\"", n.ID)
			}
			if n.Expr == "" {
				cerr.add("node %q: assign requires \"expr\"", n.ID)
			} else if opts.Evaluator != nil {
				if err := opts.Evaluator.Compile(n.Expr); err != nil {
					cerr.add("node %q: invalid expr: %v", n.ID, err)
				}
			}
			out.Kind = blueprint.KindAssign
			out.Var = n.Var
			out.Expr = n.Expr
			out.Next = resolve(n.ID, n.Next)

		case dsl.KindFunction:
			if n.Function == "" {
				cerr.add("node %q: function node requires \"function\"", n.ID)
			} else if opts.Functions != nil {
				h, ok := opts.Functions.Lookup(n.Function)
				if !ok {
					cerr.add("node %q: unknown function %q", n.ID, n.Function)
				} else if err := h.Validate(n.Params); err != nil {
					cerr.add("node %q: function %q rejected params: %v", n.ID, n.Function, err)
				}
			}
			out.Kind = blueprint.KindFunction
			out.Function = n.Function
			out.Params = n.Params
			out.Output = n.Output
			out.Next = resolve(n.ID, n.Next)
			out.Retry = convertRetry(n.Retry)
			if n.OnFail != "" {
				out.OnFail = resolve(n.ID, n.OnFail)
			} else {
				out.OnFail = -1
			}

		case dsl.KindIf:
			if n.Cond == "" {
				cerr.add("node %q: if requires \"cond\"", n.ID)
			} else if opts.Evaluator != nil {
				if err := opts.Evaluator.Compile(n.Cond); err != nil {
					cerr.add("node %q: invalid cond: %v", n.ID, err)
				}
			}
			out.Kind = blueprint.KindIf
			out.Cond = n.Cond
			out.Then = resolve(n.ID, n.Then)
			out.Else = resolve(n.ID, n.Else)

		case dsl.KindLoop:
			if n.Cond == "" {
				cerr.add("node %q: loop requires \"cond\"", n.ID)
			} else if opts.Evaluator != nil {
				if err := opts.Evaluator.Compile(n.Cond); err != nil {
					cerr.add("node %q: invalid cond: %v", n.ID, err)
				}
			}
			if n.Body == "" {
				cerr.add("node %q: loop requires \"body\"", n.ID)
			}
			out.Kind = blueprint.KindLoop
			out.Cond = n.Cond
			out.Body = resolve(n.ID, n.Body)
			out.Exit = resolve(n.ID, n.Exit)

		case dsl.KindIteration:
			if n.Collection == "" {
				cerr.add("node %q: iteration requires \"collection\"", n.ID)
			}
			if n.ItemVar == "" {
				cerr.add("node %q: iteration requires \"item_var\"", n.ID)
			}
			if n.Body == "" {
				cerr.add("node %q: iteration requires \"body\"", n.ID)
			}
			out.Kind = blueprint.KindIteration
			out.Collection = n.Collection
			out.ItemVar = n.ItemVar
			out.Body = resolve(n.ID, n.Body)
			out.Done = resolve(n.ID, n.Done)

		case dsl.KindFork:
			out.Kind = blueprint.KindFork
			for _, t := range n.Targets {
				out.Targets = append(out.Targets, resolve(n.ID, t))
			}
			out.JoinIdx = resolve(n.ID, n.JoinID)

		case dsl.KindJoin:
			out.Kind = blueprint.KindJoin
			out.Expect = n.Expect
			out.Next = resolve(n.ID, n.Next)

		default:
			cerr.add("node %q: unknown kind %q", n.ID, n.Kind)
		}

		nodes[i] = out
	}

	if startIdx == -1 {
		cerr.add("document has no start node")
	}

	if len(cerr.Failures) == 0 {
		checkForkJoinConservation(doc, idToIndex, cerr)
		warnings = checkReachability(nodes, startIdx)
	}

	if len(cerr.Failures) > 0 {
		return nil, nil, cerr
	}

	return &blueprint.Blueprint{
		ID:        doc.Name,
		Name:      doc.Name,
		Version:   doc.Version,
		Metadata:  doc.Metadata,
		Nodes:     nodes,
		StartIdx:  startIdx,
		IDToIndex: idToIndex,
	}, warnings, nil
}

func convertRetry(r *dsl.RetryPolicy) *blueprint.RetryPolicy {
	if r == nil {
		return nil
	}
	return &blueprint.RetryPolicy{
		MaxAttempts:       r.MaxAttempts,
		BackoffMS:         r.BackoffMS,
		BackoffMultiplier: r.BackoffMultiplier,
	}
}

// checkForkJoinConservation requires that every Join's Expect equals the
// number of Fork targets that name it, so the atomic counter the worker
// will run against it can only ever be satisfied by exactly its own
// branches — a Join with a mismatched Expect is a compile error rather
// than a runtime deadlock or premature advance.
func checkForkJoinConservation(doc *dsl.Document, idToIndex map[string]int, cerr *Error) {
	arrivals := make(map[string]int)
	for _, n := range doc.Nodes {
		if n.Kind != dsl.KindFork {
			continue
		}
		arrivals[n.JoinID] += len(n.Targets)
	}
	for _, n := range doc.Nodes {
		if n.Kind != dsl.KindJoin {
			continue
		}
		got := arrivals[n.ID]
		if got != n.Expect {
			cerr.add("join %q: expect=%d but %d fork branch(es) target it", n.ID, n.Expect, got)
		}
	}
}

// checkReachability warns (rather than fails) about nodes no path from
// Start can reach, since an authored-but-currently-unused node is a likely
// authoring mistake, not a structural error.
func checkReachability(nodes []blueprint.Node, startIdx int) []string {
	if startIdx == -1 {
		return nil
	}
	seen := make([]bool, len(nodes))
	var visit func(i int)
	visit = func(i int) {
		if i < 0 || i >= len(nodes) || seen[i] {
			return
		}
		seen[i] = true
		n := nodes[i]
		switch n.Kind {
		case blueprint.KindStart, blueprint.KindAssign:
			visit(n.Next)
		case blueprint.KindFunction:
			visit(n.Next)
			visit(n.OnFail)
		case blueprint.KindIf:
			visit(n.Then)
			visit(n.Else)
		case blueprint.KindLoop:
			visit(n.Body)
			visit(n.Exit)
		case blueprint.KindIteration:
			visit(n.Body)
			visit(n.Done)
		case blueprint.KindFork:
			for _, t := range n.Targets {
				visit(t)
			}
			visit(n.JoinIdx)
		case blueprint.KindJoin:
			visit(n.Next)
		}
	}
	visit(startIdx)
	var warnings []string
	for i, ok := range seen {
		if !ok {
			warnings = append(warnings, fmt.Sprintf("node %q is unreachable from start", nodes[i].ID))
		}
	}
	return warnings
}
