package compiler

import (
	"fmt"

	"github.com/flowforge/engine/common/dsl"
)

// Expand desugars every Parallel node in doc into a synthetic Fork/Join
// pair, recursing so nested Parallels (a branch that is itself a Parallel)
// expand bottom-up before the enclosing one is processed. The result
// contains no Parallel nodes; Compile rejects any Document that still has
// one, so callers must run Expand first.
func Expand(doc *dsl.Document) (*dsl.Document, error) {
	out := &dsl.Document{
		Name:     doc.Name,
		Version:  doc.Version,
		Metadata: doc.Metadata,
		Nodes:    make([]dsl.Node, 0, len(doc.Nodes)),
	}

	existing := make(map[string]bool, len(doc.Nodes))
	for _, n := range doc.Nodes {
		existing[n.ID] = true
	}

	// parallelToFork maps each Parallel node's authored ID to its
	// synthetic fork ID; applied in one final pass so that nodes
	// referencing a Parallel by ID are rewritten regardless of whether
	// they were visited before or after that Parallel.
	parallelToFork := make(map[string]string)

	// branchJoins records, per Parallel processed, the branch root IDs and
	// the synthetic join ID their terminal nodes must be rewired to. Like
	// parallelToFork, it is applied in a final pass once every node
	// (including ones authored after the Parallel in document order) has
	// been copied into out.Nodes.
	type branchJoin struct {
		roots  []string
		joinID string
	}
	var branchJoins []branchJoin

	for _, n := range doc.Nodes {
		if n.Kind != dsl.KindParallel {
			out.Nodes = append(out.Nodes, n)
			continue
		}

		forkID := n.ID + "__fork"
		joinID := n.ID + "__join"
		if existing[forkID] {
			return nil, fmt.Errorf("compiler: synthetic fork id %q collides with an authored node", forkID)
		}
		if existing[joinID] {
			return nil, fmt.Errorf("compiler: synthetic join id %q collides with an authored node", joinID)
		}
		if len(n.Branches) == 0 {
			return nil, fmt.Errorf("compiler: parallel node %q has no branches", n.ID)
		}

		out.Nodes = append(out.Nodes, dsl.Node{
			ID:      forkID,
			Kind:    dsl.KindFork,
			Targets: n.Branches,
			JoinID:  joinID,
		})
		out.Nodes = append(out.Nodes, dsl.Node{
			ID:     joinID,
			Kind:   dsl.KindJoin,
			Expect: len(n.Branches),
			Next:   n.Join,
		})

		parallelToFork[n.ID] = forkID
		branchJoins = append(branchJoins, branchJoin{roots: n.Branches, joinID: joinID})
	}

	for from, to := range parallelToFork {
		retarget(out.Nodes, from, to)
	}

	byID := make(map[string]*dsl.Node, len(out.Nodes))
	for i := range out.Nodes {
		byID[out.Nodes[i].ID] = &out.Nodes[i]
	}
	for _, bj := range branchJoins {
		for _, root := range bj.roots {
			retargetBranchTerminals(byID, root, bj.joinID)
		}
	}

	return out, nil
}

// retarget rewrites every successor reference equal to from into to,
// across every emitted node.
func retarget(nodes []dsl.Node, from, to string) {
	for i := range nodes {
		n := &nodes[i]
		if n.Next == from {
			n.Next = to
		}
		if n.Then == from {
			n.Then = to
		}
		if n.Else == from {
			n.Else = to
		}
		if n.Body == from {
			n.Body = to
		}
		if n.Exit == from {
			n.Exit = to
		}
		if n.Done == from {
			n.Done = to
		}
		for j, b := range n.Branches {
			if b == from {
				n.Branches[j] = to
			}
		}
		for j, t := range n.Targets {
			if t == from {
				n.Targets[j] = to
			}
		}
	}
}

// retargetBranchTerminals walks a Parallel branch starting at rootID,
// following every successor field a node in the branch may carry, and
// rewires each dangling (empty) successor it finds to joinID. This is
// what lets a Blueprint author end a branch without predicting the
// compiler's private synthetic-join naming convention — the branch simply
// stops, the way any other node sequence does, and the expander closes it.
//
// A node whose successor is already set is not a branch terminus; the
// walk follows that reference instead of rewriting it, so an interior
// If/Loop/Iteration inside a branch is traversed rather than short-circuited.
func retargetBranchTerminals(byID map[string]*dsl.Node, rootID, joinID string) {
	visited := make(map[string]bool)

	var walk func(id string)
	follow := func(field *string) {
		if *field == "" {
			*field = joinID
			return
		}
		walk(*field)
	}
	walk = func(id string) {
		if id == "" || visited[id] {
			return
		}
		visited[id] = true

		n, ok := byID[id]
		if !ok {
			return
		}

		switch n.Kind {
		case dsl.KindEnd:
			// An explicit End inside a branch terminates the instance
			// right there; it never merges into the Parallel's join.
		case dsl.KindFork:
			// A nested Parallel's synthetic Fork has no linear successor
			// of its own (Targets/JoinID carry its outgoing edges); its
			// inner Join continues the walk.
			walk(n.JoinID)
		case dsl.KindIf:
			follow(&n.Then)
			follow(&n.Else)
		case dsl.KindLoop:
			if n.Body != "" {
				walk(n.Body)
			}
			follow(&n.Exit)
		case dsl.KindIteration:
			if n.Body != "" {
				walk(n.Body)
			}
			follow(&n.Done)
		default:
			follow(&n.Next)
		}
	}

	walk(rootID)
}
