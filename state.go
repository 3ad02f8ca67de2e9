package eventfold

// State is the structured state of one aggregate instance. It is seeded from
// the write model's initial state and mutated only by event reducers.
//
// All views over an aggregate share a single State value; reducers may
// mutate it in place or deep-merge partial updates into it via SetState,
// and both must be visible through every view.
type State map[string]interface{}

// Clone returns a deep copy of the state. Maps and slices are copied
// recursively; scalar values are shared.
func (s State) Clone() State {
	if s == nil {
		return nil
	}
	return deepCopyMap(s)
}

// Merge deep-merges partial into the state in place. Nested maps are merged
// key by key; any other value (including slices) replaces the existing one.
func (s State) Merge(partial State) {
	deepMerge(s, partial)
}

func deepCopyMap(src map[string]interface{}) map[string]interface{} {
	dst := make(map[string]interface{}, len(src))
	for k, v := range src {
		dst[k] = deepCopyValue(v)
	}
	return dst
}

func deepCopyValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return deepCopyMap(val)
	case State:
		return State(deepCopyMap(val))
	case []interface{}:
		dst := make([]interface{}, len(val))
		for i, item := range val {
			dst[i] = deepCopyValue(item)
		}
		return dst
	default:
		return v
	}
}

func deepMerge(dst map[string]interface{}, src map[string]interface{}) {
	for k, v := range src {
		srcMap, srcIsMap := asMap(v)
		if srcIsMap {
			if dstMap, dstIsMap := asMap(dst[k]); dstIsMap {
				deepMerge(dstMap, srcMap)
				continue
			}
		}
		dst[k] = v
	}
}

func asMap(v interface{}) (map[string]interface{}, bool) {
	switch val := v.(type) {
	case map[string]interface{}:
		return val, true
	case State:
		return val, true
	default:
		return nil, false
	}
}

// stringValue reads a string field from a nested state value, returning ""
// if any step of the path is absent or not a map.
func stringValue(s map[string]interface{}, path ...string) string {
	v, ok := lookup(s, path...)
	if !ok {
		return ""
	}
	str, _ := v.(string)
	return str
}

// boolValue reads a bool field from a nested state value, returning false if
// any step of the path is absent or not a map.
func boolValue(s map[string]interface{}, path ...string) bool {
	v, ok := lookup(s, path...)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

func lookup(s map[string]interface{}, path ...string) (interface{}, bool) {
	var current interface{} = s
	for _, key := range path {
		m, ok := asMap(current)
		if !ok {
			return nil, false
		}
		current, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return current, true
}
