package layeredconfig

import (
	"reflect"
	"sort"
)

// asMap reports whether v is a subtree and returns it as such. Every
// map-valued node in the tree model is a map[string]interface{}; there
// is no dedicated Node type (see SPEC_FULL.md §3).
func asMap(v interface{}) (map[string]interface{}, bool) {
	m, ok := v.(map[string]interface{})
	return m, ok
}

// deepCopyMap returns a recursive copy of m so that callers can mutate
// the result without contaminating a cached snapshot or a backend's
// own storage.
func deepCopyMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		if sub, ok := asMap(v); ok {
			out[k] = deepCopyMap(sub)
			continue
		}
		out[k] = v
	}
	return out
}

// sortedKeys returns the keys of m sorted lexicographically. Go maps
// carry no insertion order, so this substitutes a deterministic order
// wherever the contract only promises "current level" iteration.
func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// deepMerge overlays overlay on top of base, recursing into nested
// maps present on both sides so only leaf values are replaced. base is
// not mutated.
func deepMerge(base, overlay map[string]interface{}) map[string]interface{} {
	out := deepCopyMap(base)
	for k, v := range overlay {
		if overlaySub, ok := asMap(v); ok {
			if baseSub, ok := asMap(out[k]); ok {
				out[k] = deepMerge(baseSub, overlaySub)
				continue
			}
			out[k] = deepCopyMap(overlaySub)
			continue
		}
		out[k] = v
	}
	return out
}

func mapsEqual(a, b map[string]interface{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok {
			return false
		}
		am, aIsMap := asMap(av)
		bm, bIsMap := asMap(bv)
		if aIsMap != bIsMap {
			return false
		}
		if aIsMap {
			if !mapsEqual(am, bm) {
				return false
			}
			continue
		}
		if !reflect.DeepEqual(av, bv) {
			return false
		}
	}
	return true
}
