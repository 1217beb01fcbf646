package engine

import (
	"os"
	"path/filepath"
	"testing"
)

const doubleYAML = `
name: double
nodes:
  - id: start
    kind: start
    next: double
  - id: double
    kind: assign
    var: x
    expr: "vars.x * 2"
    next: finish
  - id: finish
    kind: end
`

func TestLoadBlueprintsDir_CompilesAndRegisters(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "double.yaml"), []byte(doubleYAML), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	e := newEngine()
	loaded, err := e.LoadBlueprintsDir(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded) != 1 || loaded[0] != "double" {
		t.Fatalf("loaded = %v, want [double]", loaded)
	}
	if _, ok := e.Get("double"); !ok {
		t.Fatalf("expected blueprint %q to be registered", "double")
	}
}

func TestLoadBlueprintsDir_MissingDirIsNotAnError(t *testing.T) {
	e := newEngine()
	loaded, err := e.LoadBlueprintsDir(filepath.Join(t.TempDir(), "does-not-exist"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded) != 0 {
		t.Fatalf("loaded = %v, want empty", loaded)
	}
}

func TestLoadBlueprintsDir_IgnoresNonWorkflowFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("not a workflow"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	e := newEngine()
	loaded, err := e.LoadBlueprintsDir(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded) != 0 {
		t.Fatalf("loaded = %v, want empty", loaded)
	}
}
