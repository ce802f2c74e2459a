// Package canon provides the canonical, deterministic JSON encoding that
// every hashed value in the core (commits, headers, agendas, delegation
// data, finalization targets) is serialized through before being fed to
// keccak-256. A simplified RFC 8785-like scheme: object keys are sorted
// recursively, arrays keep their order, and numbers/strings pass through
// encoding/json's own stable formatting.
package canon

import (
	"encoding/json"
	"sort"
)

// JSON marshals v to JSON and returns its canonical form.
func JSON(v any) []byte {
	raw, err := json.Marshal(v)
	if err != nil {
		// Every type that flows through canon.JSON in this module is a
		// plain struct of JSON-marshalable fields; a marshal failure here
		// means a caller added a field json can't encode (e.g. a channel
		// or func), which is a programming error, not a runtime condition.
		panic(err)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		panic(err)
	}
	canonical, err := json.Marshal(sortKeys(generic))
	if err != nil {
		panic(err)
	}
	return canonical
}

func sortKeys(v any) any {
	switch vv := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(vv))
		for k := range vv {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		ordered := make(map[string]any, len(vv))
		for _, k := range keys {
			ordered[k] = sortKeys(vv[k])
		}
		return ordered
	case []any:
		out := make([]any, len(vv))
		for i, e := range vv {
			out[i] = sortKeys(e)
		}
		return out
	default:
		return vv
	}
}
