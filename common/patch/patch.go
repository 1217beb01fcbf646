// Package patch applies live JSON Patch documents to an in-flight
// Instance's variable scope, for the narrow correction case (fix a bad
// input, unstick a stalled run) that doesn't warrant recompiling or
// restarting the Instance.
package patch

import (
	"encoding/json"
	"fmt"

	jsonpatch "github.com/evanphx/json-patch/v5"

	"github.com/flowforge/engine/common/value"
)

// Apply decodes ops as an RFC 6902 JSON Patch document and applies it to
// the JSON form of vars, returning the patched variable set. It never
// mutates vars in place.
func Apply(vars map[string]value.Value, ops []byte) (map[string]value.Value, error) {
	patch, err := jsonpatch.DecodePatch(ops)
	if err != nil {
		return nil, fmt.Errorf("patch: decode: %w", err)
	}

	native := make(map[string]interface{}, len(vars))
	for k, v := range vars {
		native[k] = v.ToNative()
	}
	before, err := json.Marshal(native)
	if err != nil {
		return nil, fmt.Errorf("patch: encode vars: %w", err)
	}

	after, err := patch.Apply(before)
	if err != nil {
		return nil, fmt.Errorf("patch: apply: %w", err)
	}

	result, err := value.FromJSON(after)
	if err != nil {
		return nil, fmt.Errorf("patch: decode result: %w", err)
	}
	out := make(map[string]value.Value, len(result.AsObject()))
	for k, v := range result.AsObject() {
		out[k] = v
	}
	return out, nil
}

// Validate reports whether ops would apply cleanly to vars without
// committing the result, letting callers reject a bad patch before it
// ever reaches a running Instance.
func Validate(vars map[string]value.Value, ops []byte) error {
	_, err := Apply(vars, ops)
	return err
}
