package utils

import (
	"encoding/json"
	"sort"
)

// DecodeJSONFields decodes the JSON object b into dst. When a value has a
// type the target field can't hold, that key is left unset and reported in
// skipped instead of failing the whole object. Input that is not a JSON
// object is still an error.
func DecodeJSONFields[T any](b []byte, dst *T) (skipped []string, err error) {
	var whole T
	if err := json.Unmarshal(b, &whole); err == nil {
		*dst = whole
		return nil, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return nil, err
	}

	// encoding/json allocates pointer fields before it notices a type
	// mismatch, so a bad key is decoded into a scratch value first and only
	// then into out.
	var out T
	for k, v := range fields {
		one, err := json.Marshal(map[string]json.RawMessage{k: v})
		if err != nil {
			skipped = append(skipped, k)
			continue
		}
		var trial T
		if err := json.Unmarshal(one, &trial); err != nil {
			skipped = append(skipped, k)
			continue
		}
		_ = json.Unmarshal(one, &out)
	}
	sort.Strings(skipped)
	*dst = out
	return skipped, nil
}
