// Package expr evaluates the CEL expressions used by If/Loop conditions
// and Assign right-hand sides, against a flat variable scope.
package expr

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/flowforge/engine/common/value"
)

// Evaluator compiles and caches CEL programs keyed by expression text, the
// same way a single node's condition is re-evaluated on every iteration
// without recompiling.
type Evaluator struct {
	mu    sync.RWMutex
	cache map[string]cel.Program
}

func NewEvaluator() *Evaluator {
	return &Evaluator{cache: make(map[string]cel.Program)}
}

// Compile validates expr syntactically and caches the compiled program,
// returning the compile error the Compiler can surface without running
// anything. Calling Compile ahead of Eval is optional; Eval compiles
// lazily on first use.
func (e *Evaluator) Compile(expression string) error {
	_, err := e.program(expression)
	return err
}

// Eval evaluates expression against vars and returns a Value. Expressions
// address the instance's variable scope through a single "vars" map, e.g.
// "vars.count + 1" or "vars.status == 'ok'", mirroring the teacher's
// output/ctx map variables rather than declaring one CEL variable per
// instance variable name (which would require recompiling the environment
// per blueprint).
func (e *Evaluator) Eval(expression string, vars map[string]value.Value) (value.Value, error) {
	prg, err := e.program(expression)
	if err != nil {
		return value.Null(), err
	}

	native := make(map[string]interface{}, len(vars))
	for k, v := range vars {
		native[k] = v.ToNative()
	}

	out, _, err := prg.Eval(map[string]interface{}{"vars": native})
	if err != nil {
		return value.Null(), fmt.Errorf("expr: evaluate %q: %w", expression, err)
	}
	return value.FromNative(out.Value()), nil
}

// EvalBool evaluates expression and requires a boolean result, as used by
// If and Loop conditions.
func (e *Evaluator) EvalBool(expression string, vars map[string]value.Value) (bool, error) {
	v, err := e.Eval(expression, vars)
	if err != nil {
		return false, err
	}
	if v.Kind() != value.KindBool {
		return false, fmt.Errorf("expr: %q did not evaluate to a boolean", expression)
	}
	return v.AsBool(), nil
}

func (e *Evaluator) program(expression string) (cel.Program, error) {
	e.mu.RLock()
	prg, ok := e.cache[expression]
	e.mu.RUnlock()
	if ok {
		return prg, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if prg, ok := e.cache[expression]; ok {
		return prg, nil
	}

	env, err := cel.NewEnv(cel.Variable("vars", cel.DynType))
	if err != nil {
		return nil, fmt.Errorf("expr: new env: %w", err)
	}

	ast, iss := env.Compile(expression)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("expr: compile %q: %w", expression, iss.Err())
	}

	prg, err = env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("expr: program %q: %w", expression, err)
	}

	e.cache[expression] = prg
	return prg, nil
}

// ClearCache drops all compiled programs; intended for tests.
func (e *Evaluator) ClearCache() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cache = make(map[string]cel.Program)
}

// CacheSize reports the number of distinct cached expressions.
func (e *Evaluator) CacheSize() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.cache)
}
