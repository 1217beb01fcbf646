package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/flowforge/engine/common/dsl"
)

// LoadBlueprintsDir compiles and registers every .yaml/.yml/.json workflow
// document under dir. Blueprints are authored-as-files artifacts shared by
// every process that needs them (cmd/engine to accept Start calls,
// cmd/worker to resolve a Task's node): each process compiles its own copy
// at startup rather than fetching a network resource, the same way the
// Worker treats a Blueprint as immutable and owned by whoever resolves it
// locally. A missing dir is not an error; it just means no blueprints are
// preloaded and RegisterBlueprint must be called at runtime instead.
func (e *Engine) LoadBlueprintsDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("engine: read blueprints dir %q: %w", dir, err)
	}

	var loaded []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" && ext != ".json" {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		id, err := e.loadBlueprintFile(path)
		if err != nil {
			return loaded, fmt.Errorf("engine: load %s: %w", path, err)
		}
		loaded = append(loaded, id)
	}
	return loaded, nil
}

func (e *Engine) loadBlueprintFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	doc, err := dsl.Parse(data)
	if err != nil {
		return "", err
	}
	bp, _, err := e.Compile(doc)
	if err != nil {
		return "", err
	}
	e.RegisterBlueprint(bp)
	return bp.ID, nil
}
