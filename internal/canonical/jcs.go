package canonical

import "encoding/json"

// marshalCanonicalJSON renders v as compact JSON with object members in
// lexicographic key order. encoding/json already sorts map[string]any keys
// and emits no insignificant whitespace, which gives RFC 8785's object
// member ordering and compactness guarantees; see DESIGN.md for why no
// dedicated JCS library from the retrieval pack was used instead.
func marshalCanonicalJSON(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}
