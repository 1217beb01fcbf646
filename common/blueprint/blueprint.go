// Package blueprint defines the immutable, index-addressed program a
// Blueprint compiles down to. Blueprints are shared read-only across every
// Instance and Task derived from them — never copied per Task.
package blueprint

import "github.com/flowforge/engine/common/value"

// Kind mirrors dsl.Kind but over resolved node indices instead of string
// IDs; Parallel never appears here, having been desugared before compile.
type Kind string

const (
	KindStart     Kind = "start"
	KindEnd       Kind = "end"
	KindAssign    Kind = "assign"
	KindFunction  Kind = "function"
	KindIf        Kind = "if"
	KindLoop      Kind = "loop"
	KindIteration Kind = "iteration"
	KindFork      Kind = "fork"
	KindJoin      Kind = "join"
)

// RetryPolicy mirrors dsl.RetryPolicy.
type RetryPolicy struct {
	MaxAttempts       int
	BackoffMS         int
	BackoffMultiplier float64
}

// Node is one compiled vertex. Fields are populated according to Kind;
// successor fields hold node indices, -1 meaning "none" (End's successor,
// a Function with no OnFail, and any successor left unset).
type Node struct {
	ID   string // original authored ID, retained for diagnostics/history
	Kind Kind

	Next int // Start, Assign, Function(success path)

	// Assign
	Var  string
	Expr string

	// Function
	Function string
	Params   value.Value // may contain "${var}" interpolation markers
	Output   string      // variable name the result is assigned to
	Retry    *RetryPolicy
	OnFail   int // index to jump to once retries are exhausted, -1 = fail instance

	// If
	Cond string
	Then int
	Else int

	// Loop
	Body int
	Exit int

	// Iteration
	Collection string
	ItemVar    string
	Done       int

	// Fork
	Targets []int
	JoinIdx int // index of the Join this Fork feeds

	// Join
	Expect int
}

// Blueprint is the compiled, immutable program. It is safe for concurrent
// read access by any number of workers.
type Blueprint struct {
	ID        string
	Name      string
	Version   string
	Metadata  map[string]string
	Nodes     []Node
	StartIdx  int
	IDToIndex map[string]int
}

// IndexOf resolves an authored node ID to its compiled index.
func (b *Blueprint) IndexOf(id string) (int, bool) {
	idx, ok := b.IDToIndex[id]
	return idx, ok
}
