package compiler

import (
	"testing"

	"github.com/flowforge/engine/common/blueprint"
	"github.com/flowforge/engine/common/dsl"
)

func TestCompile_SimpleSequential(t *testing.T) {
	doc := &dsl.Document{
		Name: "seq",
		Nodes: []dsl.Node{
			{ID: "a", Kind: dsl.KindStart, Next: "b"},
			{ID: "b", Kind: dsl.KindAssign, Var: "x", Expr: "1", Next: "c"},
			{ID: "c", Kind: dsl.KindEnd},
		},
	}

	bp, warnings, err := Compile(doc, Options{})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}

	aIdx, _ := bp.IndexOf("a")
	if bp.StartIdx != aIdx {
		t.Fatalf("start index = %d, want %d", bp.StartIdx, aIdx)
	}
	bIdx, _ := bp.IndexOf("b")
	if bp.Nodes[aIdx].Next != bIdx {
		t.Fatalf("a.Next = %d, want %d", bp.Nodes[aIdx].Next, bIdx)
	}
}

func TestCompile_ParallelFanOutExpandsAndConserves(t *testing.T) {
	doc := &dsl.Document{
		Name: "fanout",
		Nodes: []dsl.Node{
			{ID: "start", Kind: dsl.KindStart, Next: "p"},
			{ID: "p", Kind: dsl.KindParallel, Branches: []string{"b1", "b2"}, Join: "after"},
			// Neither branch names the synthetic join; the expander must
			// discover each branch's dangling terminal and rewire it.
			{ID: "b1", Kind: dsl.KindAssign, Var: "x", Expr: "1"},
			{ID: "b2", Kind: dsl.KindAssign, Var: "y", Expr: "2"},
			{ID: "after", Kind: dsl.KindEnd},
		},
	}

	expanded, err := Expand(doc)
	if err != nil {
		t.Fatalf("expand: %v", err)
	}

	bp, _, err := Compile(expanded, Options{})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	forkIdx, ok := bp.IndexOf("p__fork")
	if !ok {
		t.Fatalf("expected synthesized fork node")
	}
	joinIdx, ok := bp.IndexOf("p__join")
	if !ok {
		t.Fatalf("expected synthesized join node")
	}

	fork := bp.Nodes[forkIdx]
	if fork.Kind != blueprint.KindFork || len(fork.Targets) != 2 {
		t.Fatalf("fork = %+v", fork)
	}
	if fork.JoinIdx != joinIdx {
		t.Fatalf("fork.JoinIdx = %d, want %d", fork.JoinIdx, joinIdx)
	}

	join := bp.Nodes[joinIdx]
	if join.Expect != 2 {
		t.Fatalf("join.Expect = %d, want 2", join.Expect)
	}

	startIdx, _ := bp.IndexOf("start")
	if bp.Nodes[startIdx].Next != forkIdx {
		t.Fatalf("start should now point at the fork, got %d want %d", bp.Nodes[startIdx].Next, forkIdx)
	}
}

func TestCompile_ForkJoinConservationMismatchFails(t *testing.T) {
	doc := &dsl.Document{
		Name: "mismatch",
		Nodes: []dsl.Node{
			{ID: "start", Kind: dsl.KindStart, Next: "fork"},
			{ID: "fork", Kind: dsl.KindFork, Targets: []string{"b1"}, JoinID: "join"},
			{ID: "b1", Kind: dsl.KindAssign, Var: "x", Expr: "1", Next: "join"},
			{ID: "join", Kind: dsl.KindJoin, Expect: 2, Next: "end"},
			{ID: "end", Kind: dsl.KindEnd},
		},
	}

	if _, _, err := Compile(doc, Options{}); err == nil {
		t.Fatalf("expected a conservation error")
	}
}

func TestCompile_ConditionalBranch(t *testing.T) {
	doc := &dsl.Document{
		Name: "branch",
		Nodes: []dsl.Node{
			{ID: "start", Kind: dsl.KindStart, Next: "check"},
			{ID: "check", Kind: dsl.KindIf, Cond: "vars.ok == true", Then: "yes", Else: "no"},
			{ID: "yes", Kind: dsl.KindEnd},
			{ID: "no", Kind: dsl.KindEnd},
		},
	}

	bp, _, err := Compile(doc, Options{})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	checkIdx, _ := bp.IndexOf("check")
	yesIdx, _ := bp.IndexOf("yes")
	noIdx, _ := bp.IndexOf("no")
	node := bp.Nodes[checkIdx]
	if node.Then != yesIdx || node.Else != noIdx {
		t.Fatalf("if node = %+v", node)
	}
}

func TestCompile_UnknownSuccessorIsAggregatedError(t *testing.T) {
	doc := &dsl.Document{
		Name: "bad",
		Nodes: []dsl.Node{
			{ID: "start", Kind: dsl.KindStart, Next: "missing"},
		},
	}
	_, _, err := Compile(doc, Options{})
	if err == nil {
		t.Fatalf("expected error")
	}
	cerr, ok := err.(*Error)
	if !ok {
		t.Fatalf("expected *Error, got %T", err)
	}
	if len(cerr.Failures) == 0 {
		t.Fatalf("expected at least one failure")
	}
}

func TestCompile_UnreachableNodeIsWarningNotError(t *testing.T) {
	doc := &dsl.Document{
		Name: "unreachable",
		Nodes: []dsl.Node{
			{ID: "start", Kind: dsl.KindStart, Next: "end"},
			{ID: "end", Kind: dsl.KindEnd},
			{ID: "orphan", Kind: dsl.KindEnd},
		},
	}
	bp, warnings, err := Compile(doc, Options{})
	if err != nil {
		t.Fatalf("unreachable node should not be a compile error: %v", err)
	}
	if bp == nil {
		t.Fatalf("expected a blueprint")
	}
	if len(warnings) != 1 {
		t.Fatalf("expected 1 warning, got %v", warnings)
	}
}

func TestCompile_DuplicateIDFails(t *testing.T) {
	doc := &dsl.Document{
		Name: "dup",
		Nodes: []dsl.Node{
			{ID: "a", Kind: dsl.KindStart, Next: "a"},
			{ID: "a", Kind: dsl.KindEnd},
		},
	}
	if _, _, err := Compile(doc, Options{}); err == nil {
		t.Fatalf("expected duplicate id error")
	}
}

func TestExpand_SyntheticIDCollisionRejected(t *testing.T) {
	doc := &dsl.Document{
		Name: "collide",
		Nodes: []dsl.Node{
			{ID: "p", Kind: dsl.KindParallel, Branches: []string{"b1"}, Join: "j"},
			{ID: "p__fork", Kind: dsl.KindEnd},
			{ID: "b1", Kind: dsl.KindEnd},
			{ID: "j", Kind: dsl.KindEnd},
		},
	}
	if _, err := Expand(doc); err == nil {
		t.Fatalf("expected collision error")
	}
}
